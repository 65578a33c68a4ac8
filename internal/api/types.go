// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package api

import (
	"github.com/ZSC714725/clipdesk/internal/subtitle"
)

// JobStyle overrides the subtitle style
type JobStyle struct {
	FontSize int    `json:"font_size"`
	Color    string `json:"color"`
	Position string `json:"position"`
}

// JobEncoding for burned subtitles
type JobEncoding struct {
	Encoder     string `json:"encoder"`
	BitrateKbps int    `json:"bitrate_kbps"`
}

// JobDenoise for the denoise kind
type JobDenoise struct {
	PreserveVoice bool    `json:"preserve_voice"`
	Strength      float64 `json:"strength"`
	BoostDB       float64 `json:"boost_db"`
}

// JobRequest for POST /jobs
type JobRequest struct {
	ID        string   `json:"id"`
	Reference string   `json:"reference"`
	Kind      string   `json:"kind" binding:"required"`
	Inputs    []string `json:"inputs" binding:"required"`
	Output    string   `json:"output" binding:"required"`

	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Position float64 `json:"position"`

	Subtitle string       `json:"subtitle"`
	Style    *JobStyle    `json:"style"`
	Language string       `json:"language"`
	Encoding *JobEncoding `json:"encoding"`
	Denoise  JobDenoise   `json:"denoise"`
}

// Job represents a task in API response
type Job struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Reference string     `json:"reference"`
	Inputs    []string   `json:"inputs"`
	Output    string     `json:"output"`
	CreatedAt int64      `json:"created_at"`
	UpdatedAt int64      `json:"updated_at"`
	State     *JobState  `json:"state,omitempty"`
	Result    *JobResult `json:"result,omitempty"`
	Report    *JobReport `json:"report,omitempty"`
}

// JobState for API
type JobState struct {
	State    string    `json:"exec"`
	Fraction float64   `json:"fraction"`
	Pid      int       `json:"pid"`
	Runtime  int64     `json:"runtime_seconds"`
	LastLog  string    `json:"last_logline"`
	Progress *Progress `json:"progress"`
	Memory   uint64    `json:"memory_bytes"`
	CPU      float64   `json:"cpu_usage"`
	Command  []string  `json:"command"`
}

// Progress from FFmpeg parser
type Progress struct {
	Frame     uint64  `json:"frame"`
	Size      uint64  `json:"size_bytes"`
	Time      float64 `json:"time_seconds"`
	Duration  float64 `json:"duration_seconds"`
	Speed     float64 `json:"speed"`
	Quantizer float64 `json:"q"`
}

// JobResult is set once the job has finished
type JobResult struct {
	ExitCode      int    `json:"exit_code"`
	OutputExisted bool   `json:"output_existed"`
	OutputSize    int64  `json:"output_size"`
	Cancelled     bool   `json:"cancelled"`
	Error         string `json:"error,omitempty"`
}

// JobReport for logs
type JobReport struct {
	Log [][2]string `json:"log"`
}

// CommandRequest for cancel
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// PreviewRequest for POST /preview
type PreviewRequest struct {
	Input    string  `json:"input"`
	Position float64 `json:"position"`
}

// PreviewResponse carries the token of the requested frame
type PreviewResponse struct {
	TaskID string `json:"task_id"`
}

// SubtitleCheckRequest for POST /subtitles/check
type SubtitleCheckRequest struct {
	Path     string  `json:"path" binding:"required"`
	Duration float64 `json:"duration"`
}

// SubtitleCheckResponse reports what a load would keep
type SubtitleCheckResponse struct {
	Format   subtitle.Format    `json:"format"`
	Duration float64            `json:"duration"`
	Stats    subtitle.LoadStats `json:"stats"`
	Entries  []subtitle.Entry   `json:"entries"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
