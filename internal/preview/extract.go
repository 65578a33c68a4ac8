// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package preview

import (
	"github.com/ZSC714725/clipdesk/internal/ffmpeg"
	"github.com/ZSC714725/clipdesk/internal/process"
)

type supervisedExtractor struct {
	builder *ffmpeg.Builder
	config  process.Config
}

// NewExtractor runs each extraction as its own supervised single-frame job.
// config is used as a template; every run gets a fresh supervisor id and no parser,
// since a single frame has no progress worth reading.
func NewExtractor(builder *ffmpeg.Builder, config process.Config) Extractor {
	config.ID = ""
	config.Parser = nil
	return &supervisedExtractor{builder: builder, config: config}
}

func (e *supervisedExtractor) Extract(input string, position float64, output string) error {
	j, err := e.builder.ExtractFrame(input, output, position)
	if err != nil {
		return err
	}

	s := process.New(e.config)
	if err := s.Start(j, nil, nil); err != nil {
		return err
	}
	return s.Wait().Err
}
