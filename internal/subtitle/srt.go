// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package subtitle

import (
	"fmt"
	"strconv"
	"strings"
)

func parseSRT(content string) ([]Entry, []*ParseError) {
	var (
		entries []Entry
		errs    []*ParseError
	)

	lines := strings.Split(normalizeNewlines(content), "\n")
	var block []string
	blockStart := 0

	flush := func() {
		if len(block) == 0 {
			return
		}
		e, perr := parseSRTBlock(block, blockStart)
		if perr != nil {
			errs = append(errs, perr)
		} else {
			entries = append(entries, e)
		}
		block = block[:0]
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if len(block) == 0 {
			blockStart = i + 1
		}
		block = append(block, strings.TrimRight(line, " \t"))
	}
	flush()

	return entries, errs
}

// parseSRTBlock handles "index / start --> end / text..." and tolerates a missing index line.
func parseSRTBlock(block []string, lineNo int) (Entry, *ParseError) {
	timeIdx := -1
	for i := 0; i < len(block) && i < 2; i++ {
		if strings.Contains(block[i], "-->") {
			timeIdx = i
			break
		}
	}
	if timeIdx < 0 {
		return Entry{}, &ParseError{Line: lineNo, Raw: block[0], Reason: "missing timing line"}
	}

	timing := block[timeIdx]
	parts := strings.SplitN(timing, "-->", 2)
	start, err := parseSRTTimestamp(parts[0])
	if err != nil {
		return Entry{}, &ParseError{Line: lineNo + timeIdx, Raw: timing, Reason: err.Error()}
	}
	// 结束时间后可能带有坐标信息 (X1:... Y1:...)
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return Entry{}, &ParseError{Line: lineNo + timeIdx, Raw: timing, Reason: "missing end timestamp"}
	}
	end, err := parseSRTTimestamp(endFields[0])
	if err != nil {
		return Entry{}, &ParseError{Line: lineNo + timeIdx, Raw: timing, Reason: err.Error()}
	}
	if reason := validInterval(start, end); reason != "" {
		return Entry{}, &ParseError{Line: lineNo + timeIdx, Raw: timing, Reason: reason}
	}

	textLines := block[timeIdx+1:]
	if len(textLines) == 0 {
		return Entry{}, &ParseError{Line: lineNo + timeIdx, Raw: timing, Reason: "missing text"}
	}
	for i := range textLines {
		textLines[i] = strings.TrimSpace(textLines[i])
	}

	return Entry{Start: start, End: end, Text: strings.Join(textLines, " ")}, nil
}

// parseSRTTimestamp accepts HH:MM:SS,mmm and HH:MM:SS.mmm.
func parseSRTTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ",", ".")

	clock, frac, _ := strings.Cut(value, ".")
	hms := strings.Split(clock, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	seconds, err := clockSeconds(hms[0], hms[1], hms[2])
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	f, err := fraction(frac)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return seconds + f, nil
}

func clockSeconds(h, m, s string) (float64, error) {
	hours, errH := strconv.Atoi(strings.TrimSpace(h))
	minutes, errM := strconv.Atoi(strings.TrimSpace(m))
	secs, errS := strconv.Atoi(strings.TrimSpace(s))
	if errH != nil || errM != nil || errS != nil {
		return 0, fmt.Errorf("non-numeric clock")
	}
	if hours < 0 || minutes < 0 || minutes > 59 || secs < 0 || secs > 59 {
		return 0, fmt.Errorf("clock out of range")
	}
	return float64(hours*3600 + minutes*60 + secs), nil
}

// fraction turns the digits after the separator into a fraction of a second.
func fraction(digits string) (float64, error) {
	if digits == "" {
		return 0, nil
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-numeric fraction")
		}
	}
	return strconv.ParseFloat("0."+digits, 64)
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
