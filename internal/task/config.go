// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package task

import (
	"github.com/ZSC714725/clipdesk/internal/ffmpeg"
	"github.com/ZSC714725/clipdesk/internal/subtitle"
)

// StyleConfig overrides the default subtitle style. Zero fields keep the default.
type StyleConfig struct {
	FontSize int    `json:"font_size,omitempty"`
	Color    string `json:"color,omitempty"`
	Position string `json:"position,omitempty"`
}

// Config for a clip job
type Config struct {
	ID        string   `json:"id"`
	Reference string   `json:"reference"`
	Kind      string   `json:"kind"`
	Inputs    []string `json:"inputs"`
	Output    string   `json:"output"`

	// trim, seconds; End 0 means until the end
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
	// extract_frame, seconds
	Position float64 `json:"position,omitempty"`

	// burn_subtitle / attach_subtitle
	Subtitle string       `json:"subtitle,omitempty"`
	Style    *StyleConfig `json:"style,omitempty"`
	Language string       `json:"language,omitempty"`

	Encoding *ffmpeg.Encoding      `json:"encoding,omitempty"`
	Denoise  ffmpeg.DenoiseOptions `json:"denoise"`
}

// Input is the primary input, "" if there is none.
func (c *Config) Input() string {
	if len(c.Inputs) == 0 {
		return ""
	}
	return c.Inputs[0]
}

// ReadPaths lists every file the job reads.
func (c *Config) ReadPaths() []string {
	paths := append([]string(nil), c.Inputs...)
	if c.Subtitle != "" {
		paths = append(paths, c.Subtitle)
	}
	return paths
}

// style applies the overrides on top of def.
func (c *Config) style(def subtitle.Style) subtitle.Style {
	if c.Style == nil {
		return def
	}
	if c.Style.FontSize > 0 {
		def.FontSize = c.Style.FontSize
	}
	if c.Style.Color != "" {
		def.Color = c.Style.Color
	}
	if c.Style.Position != "" {
		def.Position = c.Style.Position
	}
	return def
}

func (c *Config) encoding(def ffmpeg.Encoding) ffmpeg.Encoding {
	if c.Encoding == nil {
		return def
	}
	return *c.Encoding
}
