// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package parse

import (
	"container/ring"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/clipdesk/internal/process"
)

// MaxRunningFraction caps progress until success is confirmed.
const MaxRunningFraction = process.MaxRunningFraction

// Progress holds the latest FFmpeg status figures, for reports only
type Progress struct {
	Frame     uint64  `json:"frame"`
	Size      uint64  `json:"size_bytes"`
	Time      float64 `json:"time_seconds"`
	Duration  float64 `json:"duration_seconds"`
	Speed     float64 `json:"speed"`
	Quantizer float64 `json:"q"`
}

// Parser implements process.Parser for FFmpeg stderr
type Parser interface {
	process.Parser
	Progress() Progress
}

var (
	reDuration  = regexp.MustCompile(`Duration:\s*([0-9]+):([0-9]{2}):([0-9]{2})(?:\.([0-9]+))?`)
	reTime      = regexp.MustCompile(`time=\s*(-?)([0-9]+):([0-9]{2}):([0-9]{2})(?:\.([0-9]+))?`) // 支持 .0 .00 .000 等
	reTimeUs    = regexp.MustCompile(`out_time_us=\s*([0-9]+)`)                                   // -progress 输出，单位微秒
	reFrame     = regexp.MustCompile(`frame=\s*([0-9]+)`)
	reQuantizer = regexp.MustCompile(`q=\s*([0-9\.]+)`)
	reSize      = regexp.MustCompile(`size=\s*([0-9]+)(?:kB|KiB)`)
	reSpeed     = regexp.MustCompile(`speed=\s*([0-9\.]+)x`)
)

type parser struct {
	log      *ring.Ring
	logLines int

	progress Progress
	lock     sync.RWMutex
}

// Config for the parser
type Config struct {
	LogLines int
}

// New creates a Parser
func New(config Config) Parser {
	p := &parser{
		logLines: config.LogLines,
	}
	if p.logLines <= 0 {
		p.logLines = 100
	}
	p.log = ring.New(p.logLines)
	return p
}

// Line extracts the duration declaration and current position from one status line.
// It never fails: anything it cannot read is simply absent from the reading.
func Line(line string) process.Reading {
	var r process.Reading
	if m := reDuration.FindStringSubmatch(line); m != nil {
		if d, ok := clock(m[1], m[2], m[3], m[4]); ok && d > 0 {
			r.Duration = d
		}
	}
	if m := reTime.FindStringSubmatch(line); m != nil {
		if pos, ok := clock(m[2], m[3], m[4], m[5]); ok && m[1] == "" {
			r.Position = pos
			r.HasPosition = true
		}
	} else if m := reTimeUs.FindStringSubmatch(line); m != nil {
		if us, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			r.Position = float64(us) / 1e6
			r.HasPosition = true
		}
	}
	return r
}

// Fraction converts a position into completion against declared seconds.
// Positions beyond the declared duration are treated as corrupt and yield no update.
func Fraction(position, declared float64) (float64, bool) {
	if declared <= 0 || position < 0 {
		return 0, false
	}
	f := position / declared
	if f > 1 {
		return 0, false
	}
	if f > MaxRunningFraction {
		f = MaxRunningFraction
	}
	return f, true
}

func (p *parser) Parse(line string, declared float64) process.Reading {
	r := Line(line)
	if r.HasPosition {
		d := declared
		if d <= 0 {
			d = r.Duration
		}
		r.Fraction, r.OK = Fraction(r.Position, d)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.log.Value = process.Line{Timestamp: time.Now(), Data: line}
	p.log = p.log.Next()

	if r.Duration > 0 {
		p.progress.Duration = r.Duration
	}
	if !strings.Contains(line, "frame=") && !r.HasPosition {
		return r
	}
	if r.HasPosition {
		p.progress.Time = r.Position
	}
	if m := reFrame.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			p.progress.Frame = x
		}
	}
	if m := reQuantizer.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.progress.Quantizer = x
		}
	}
	if m := reSize.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			p.progress.Size = x * 1024
		}
	}
	if m := reSpeed.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.progress.Speed = x
		}
	}
	return r
}

func (p *parser) ResetLog() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.log = ring.New(p.logLines)
	p.progress = Progress{}
}

func (p *parser) Log() []process.Line {
	var out []process.Line
	p.lock.RLock()
	p.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(process.Line))
		}
	})
	p.lock.RUnlock()
	return out
}

func (p *parser) Progress() Progress {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.progress
}

func clock(h, m, s, frac string) (float64, bool) {
	hours, errH := strconv.Atoi(h)
	minutes, errM := strconv.Atoi(m)
	secs, errS := strconv.Atoi(s)
	if errH != nil || errM != nil || errS != nil || minutes > 59 || secs > 59 {
		return 0, false
	}
	v := float64(hours*3600 + minutes*60 + secs)
	if frac != "" {
		f, err := strconv.ParseFloat("0."+frac, 64)
		if err != nil {
			return 0, false
		}
		v += f
	}
	return v, true
}
