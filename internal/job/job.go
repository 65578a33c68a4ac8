// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具
//
// Package job holds the immutable description of one encoder run and its outcome.

package job

import (
	"fmt"
	"strings"
)

// Kind of operation a job performs
type Kind string

const (
	KindTrim           Kind = "trim"
	KindMerge          Kind = "merge"
	KindBurnSubtitle   Kind = "burn_subtitle"
	KindAttachSubtitle Kind = "attach_subtitle"
	KindDenoise        Kind = "denoise"
	KindExtractFrame   Kind = "extract_frame"
)

// Kinds lists every supported operation.
func Kinds() []Kind {
	return []Kind{KindTrim, KindMerge, KindBurnSubtitle, KindAttachSubtitle, KindDenoise, KindExtractFrame}
}

// ParseKind accepts the canonical names plus a few short aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trim", "cut":
		return KindTrim, nil
	case "merge", "concat":
		return KindMerge, nil
	case "burn_subtitle", "burn":
		return KindBurnSubtitle, nil
	case "attach_subtitle", "attach":
		return KindAttachSubtitle, nil
	case "denoise":
		return KindDenoise, nil
	case "extract_frame", "frame":
		return KindExtractFrame, nil
	}
	return "", fmt.Errorf("unknown job kind %q", s)
}

// Job is one fully resolved encoder invocation. It is never mutated after Build.
type Job struct {
	Kind       Kind     `json:"kind"`
	Inputs     []string `json:"inputs"`
	OutputPath string   `json:"output"`
	// DeclaredDuration is the progress divisor in seconds; 0 means unknown.
	DeclaredDuration float64 `json:"declared_duration,omitempty"`
	// ExpectedBytes drives the output-size progress fallback; 0 disables it.
	ExpectedBytes int64    `json:"expected_bytes,omitempty"`
	Binary        string   `json:"binary"`
	Argv          []string `json:"argv"`
}

// CommandLine renders the invocation for logs.
func (j Job) CommandLine() string {
	parts := make([]string, 0, len(j.Argv)+1)
	parts = append(parts, j.Binary)
	for _, a := range j.Argv {
		if strings.ContainsAny(a, " \t'\"") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Result is delivered exactly once when a job reaches a terminal state.
type Result struct {
	Kind          Kind   `json:"kind"`
	OutputPath    string `json:"output"`
	ExitCode      int    `json:"exit_code"`
	OutputExisted bool   `json:"output_existed"`
	OutputSize    int64  `json:"output_size"`
	Cancelled     bool   `json:"cancelled"`
	Err           error  `json:"-"`
}

// Success reports exit 0 with a non-empty output file.
func (r Result) Success() bool {
	return r.Err == nil
}

// Error returns the failure text, or "" on success.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
