// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具
//
// Package subtitle parses SRT and ASS/SSA tracks into normalized intervals
// and writes them back out as a styled ASS track.

package subtitle

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNoEvents      = errors.New("ass: no [Events] section")
	ErrUnknownFormat = errors.New("unknown subtitle format")
)

// Format of a subtitle source
type Format string

const (
	FormatSRT Format = "srt"
	FormatASS Format = "ass"
)

// Entry is one normalized interval, times in seconds.
type Entry struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration of the entry in seconds.
func (e Entry) Duration() float64 { return e.End - e.Start }

// ParseError describes one entry that could not be used. It never aborts a load.
type ParseError struct {
	Line   int    `json:"line"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Raw)
}

// LoadStats counts what happened to the entries of a track during a load.
type LoadStats struct {
	Parsed  int           `json:"parsed"`
	Kept    int           `json:"kept"`
	Dropped int           `json:"dropped"`
	Clamped int           `json:"clamped"`
	Invalid int           `json:"invalid"`
	Errors  []*ParseError `json:"errors,omitempty"`
}

// Track is an ordered-by-start list of entries plus load diagnostics.
type Track struct {
	Format   Format    `json:"format"`
	Duration float64   `json:"duration"`
	Entries  []Entry   `json:"entries"`
	Stats    LoadStats `json:"stats"`
}

// Parse reads content in the given format and normalizes it against duration.
// A duration <= 0 means unknown: nothing is dropped or clamped.
func Parse(content string, format Format, duration float64) (*Track, error) {
	var (
		entries []Entry
		errs    []*ParseError
	)
	switch format {
	case FormatSRT:
		entries, errs = parseSRT(content)
	case FormatASS:
		var err error
		entries, errs, err = parseASS(content)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	kept, stats := Normalize(entries, duration)
	stats.Parsed += len(errs)
	stats.Invalid = len(errs)
	stats.Errors = errs

	return &Track{
		Format:   format,
		Duration: duration,
		Entries:  kept,
		Stats:    stats,
	}, nil
}

// Normalize drops entries starting at or after duration, clamps ends past
// duration and sorts by start. The input slice is not modified.
func Normalize(entries []Entry, duration float64) ([]Entry, LoadStats) {
	stats := LoadStats{Parsed: len(entries)}
	out := make([]Entry, 0, len(entries))

	for _, e := range entries {
		if duration > 0 {
			if e.Start >= duration {
				stats.Dropped++
				continue
			}
			if e.End > duration {
				e.End = duration
				stats.Clamped++
			}
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	stats.Kept = len(out)
	return out, stats
}

// validInterval checks the ordering invariant shared by both formats.
func validInterval(start, end float64) string {
	switch {
	case start < 0 || end < 0:
		return "negative timestamp"
	case end < start:
		return "end before start"
	case end == start:
		return "zero-length interval"
	}
	return ""
}
