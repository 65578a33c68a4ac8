// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package task

import "errors"

var (
	ErrNotFound             = errors.New("task not found")
	ErrTaskExists           = errors.New("task already exists")
	ErrTaskRunning          = errors.New("task is still running")
	ErrInvalidSpec          = errors.New("invalid job")
	ErrInvalidInputAddress  = errors.New("invalid input address")
	ErrInvalidOutputAddress = errors.New("invalid output address")
	ErrOutputBusy           = errors.New("another job is writing this output")
)
