// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package ffmpeg

import "errors"

var (
	ErrNoInputs           = errors.New("no input files")
	ErrNoOutput           = errors.New("no output path")
	ErrInvalidRange       = errors.New("invalid time range")
	ErrNoSubtitle         = errors.New("no subtitle file")
	ErrEncoderUnavailable = errors.New("encoder not available in this ffmpeg build")
)
