// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package job

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// LaunchError means the executable could not be found or spawned. Fatal, never retried.
type LaunchError struct {
	Kind   Kind
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: launch %s: %v", e.Kind, e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NonZeroExitError means the encoder exited with a failure code.
type NonZeroExitError struct {
	Kind          Kind
	OutputPath    string
	ExitCode      int
	OutputExisted bool
	OutputSize    int64
}

func (e *NonZeroExitError) Error() string {
	return fmt.Sprintf("%s: exit code %d, %s", e.Kind, e.ExitCode, describeOutput(e.OutputPath, e.OutputExisted, e.OutputSize))
}

// EmptyOutputError means the encoder exited 0 but wrote nothing usable.
type EmptyOutputError struct {
	Kind          Kind
	OutputPath    string
	OutputExisted bool
}

func (e *EmptyOutputError) Error() string {
	return fmt.Sprintf("%s: exit code 0, %s", e.Kind, describeOutput(e.OutputPath, e.OutputExisted, 0))
}

// StreamReadError is a status stream failure. It only degrades progress reporting.
type StreamReadError struct {
	Kind Kind
	Err  error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("%s: read status stream: %v", e.Kind, e.Err)
}

func (e *StreamReadError) Unwrap() error { return e.Err }

func describeOutput(path string, existed bool, size int64) string {
	switch {
	case !existed:
		return fmt.Sprintf("output %s missing", path)
	case size == 0:
		return fmt.Sprintf("output %s empty", path)
	default:
		return fmt.Sprintf("output %s has %s (possibly truncated)", path, humanize.Bytes(uint64(size)))
	}
}

// CancelledError means the job was stopped on request. A non-empty output is
// kept since the quit token lets the encoder finalise the container.
type CancelledError struct {
	Kind          Kind
	OutputPath    string
	ExitCode      int
	OutputExisted bool
	OutputSize    int64
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s: cancelled, exit code %d, %s", e.Kind, e.ExitCode, describeOutput(e.OutputPath, e.OutputExisted, e.OutputSize))
}
