// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package process

import "time"

// Parser turns process output (e.g. FFmpeg stderr) into progress readings
type Parser interface {
	// Parse reads one status line. declared is the job's duration in seconds, 0 if unknown.
	Parse(line string, declared float64) Reading
	ResetLog()
	Log() []Line
}

// Reading is what a single status line carried. Zero values mean absent.
type Reading struct {
	Duration    float64 // media duration declared by the line, 0 if none
	Position    float64
	HasPosition bool
	Fraction    float64
	OK          bool // Fraction is usable
}

// Line is a timestamped log line
type Line struct {
	Timestamp time.Time
	Data      string
}

type nullParser struct{}

func (p *nullParser) Parse(line string, declared float64) Reading { return Reading{} }
func (p *nullParser) ResetLog()                                   {}
func (p *nullParser) Log() []Line                                 { return nil }
