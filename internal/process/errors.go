// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package process

import "errors"

var (
	ErrAlreadyStarted  = errors.New("supervisor already started")
	ErrNotStarted      = errors.New("supervisor not started")
	ErrShutdownTimeout = errors.New("process still alive after kill")

	ErrCompletionTimeout = errors.New("process exited but completion did not finish")
)
