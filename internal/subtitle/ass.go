// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package subtitle

import (
	"fmt"
	"strings"
)

// canonicalEventFields is the v4+ event layout assumed when [Events] has no Format line.
var canonicalEventFields = []string{"Layer", "Start", "End", "Style", "Name", "MarginL", "MarginR", "MarginV", "Effect", "Text"}

type eventLayout struct {
	fields int
	start  int
	end    int
	text   int
}

func layoutFrom(fields []string) (eventLayout, bool) {
	l := eventLayout{fields: len(fields), start: -1, end: -1, text: -1}
	for i, f := range fields {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "start":
			l.start = i
		case "end":
			l.end = i
		case "text":
			l.text = i
		}
	}
	ok := l.start >= 0 && l.end >= 0 && l.text == len(fields)-1
	return l, ok
}

func parseASS(content string) ([]Entry, []*ParseError, error) {
	lines := strings.Split(normalizeNewlines(content), "\n")

	eventsAt := -1
	for i, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), "[Events]") {
			eventsAt = i
			break
		}
	}
	if eventsAt < 0 {
		return nil, nil, ErrNoEvents
	}

	layout, _ := layoutFrom(canonicalEventFields)
	var (
		entries []Entry
		errs    []*ParseError
	)

	for i := eventsAt + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			break
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Format":
			// 字段名不匹配时保留默认顺序
			if l, ok := layoutFrom(strings.Split(value, ",")); ok {
				layout = l
			}
		case "Dialogue":
			e, perr := parseDialogue(value, layout, i+1, line)
			if perr != nil {
				errs = append(errs, perr)
				continue
			}
			entries = append(entries, e)
		}
	}

	return entries, errs, nil
}

// parseDialogue splits into the declared number of fields; everything past the
// last separator belongs to the text, which may itself contain commas.
func parseDialogue(value string, layout eventLayout, lineNo int, raw string) (Entry, *ParseError) {
	parts := strings.SplitN(strings.TrimSpace(value), ",", layout.fields)
	if len(parts) < layout.fields {
		return Entry{}, &ParseError{Line: lineNo, Raw: raw, Reason: fmt.Sprintf("expected %d fields, got %d", layout.fields, len(parts))}
	}

	start, err := parseASSTimestamp(parts[layout.start])
	if err != nil {
		return Entry{}, &ParseError{Line: lineNo, Raw: raw, Reason: err.Error()}
	}
	end, err := parseASSTimestamp(parts[layout.end])
	if err != nil {
		return Entry{}, &ParseError{Line: lineNo, Raw: raw, Reason: err.Error()}
	}
	if reason := validInterval(start, end); reason != "" {
		return Entry{}, &ParseError{Line: lineNo, Raw: raw, Reason: reason}
	}

	return Entry{Start: start, End: end, Text: strings.TrimSpace(parts[layout.text])}, nil
}

// parseASSTimestamp accepts H:MM:SS.cc, the legacy SSA H:MM:SS:cc and M:SS.cc.
func parseASSTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	parts := strings.Split(value, ":")
	if len(parts) == 4 {
		seconds, err := clockSeconds(parts[0], parts[1], parts[2])
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		f, err := fraction(parts[3])
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		return seconds + f, nil
	}

	clock, frac, _ := strings.Cut(value, ".")
	hms := strings.Split(clock, ":")
	switch len(hms) {
	case 2:
		hms = append([]string{"0"}, hms...)
	case 3:
	default:
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
