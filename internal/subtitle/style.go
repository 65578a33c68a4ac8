// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package subtitle

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	DefaultColor    = "white"
	DefaultPosition = "bottom"
	DefaultFontSize = 24
)

// ASS 颜色为 &HAABBGGRR 顺序
var colorCodes = map[string]string{
	"white":   "&H00FFFFFF&",
	"black":   "&H00000000&",
	"red":     "&H000000FF&",
	"green":   "&H0000FF00&",
	"blue":    "&H00FF0000&",
	"yellow":  "&H0000FFFF&",
	"cyan":    "&H00FFFF00&",
	"magenta": "&H00FF00FF&",
	"orange":  "&H0000A5FF&",
	"pink":    "&H00C0C0FF&",
	"purple":  "&H00800080&",
	"gray":    "&H00808080&",
}

// numpad layout: 2 = bottom centre, 5 = middle centre, 8 = top centre
var alignmentCodes = map[string]int{
	"top":    8,
	"middle": 5,
	"bottom": 2,
}

// Style parameterizes the styled ASS output.
type Style struct {
	FontSize int    `json:"font_size"`
	Color    string `json:"color"`
	Position string `json:"position"`
}

// ColorCode maps a color name to its ASS code, falling back to white.
func ColorCode(name string) (string, bool) {
	code, ok := colorCodes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return colorCodes[DefaultColor], false
	}
	return code, true
}

// Alignment maps a screen position to its ASS alignment, falling back to bottom.
func Alignment(position string) (int, bool) {
	a, ok := alignmentCodes[strings.ToLower(strings.TrimSpace(position))]
	if !ok {
		return alignmentCodes[DefaultPosition], false
	}
	return a, true
}

// Colors lists the known color names.
func Colors() []string {
	out := make([]string, 0, len(colorCodes))
	for k := range colorCodes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Positions lists the known screen positions.
func Positions() []string {
	return []string{"top", "middle", "bottom"}
}

// Render serializes entries as an ASS track carrying style, whatever format they were read from.
func Render(entries []Entry, style Style) string {
	fontSize := style.FontSize
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}
	color, _ := ColorCode(style.Color)
	alignment, _ := Alignment(style.Position)

	var b strings.Builder
	b.WriteString("[Script Info]\n")
	b.WriteString("Title: Styled Subtitles\n")
	b.WriteString("ScriptType: v4.00+\n")
	b.WriteString("ScaledBorderAndShadow: yes\n")
	b.WriteString("\n[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Default,Microsoft YaHei,%d,%s,&H000000FF,&H00000000,&H80000000,0,0,0,0,100,100,0,0,1,2,0,%d,10,10,10,1\n", fontSize, color, alignment)
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: " + strings.Join(canonicalEventFields, ", ") + "\n")

	for _, e := range entries {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n", assTime(e.Start), assTime(e.End), assText(e.Text))
	}
	return b.String()
}

// assTime formats seconds as H:MM:SS.cc, rounded to the nearest centisecond.
func assTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	cs := int64(math.Round(sec * 100))
	h := cs / 360000
	cs -= h * 360000
	m := cs / 6000
	cs -= m * 6000
	s := cs / 100
	cs -= s * 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

func assText(s string) string {
	s = normalizeNewlines(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "\n", "\\N")
}
