// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package api

import (
	"github.com/ZSC714725/clipdesk/internal/ffmpeg/skills"
)

// SkillsEntry is one named capability
type SkillsEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SkillsResponse for API
type SkillsResponse struct {
	FFmpeg struct {
		Version       string `json:"version"`
		Compiler      string `json:"compiler"`
		Configuration string `json:"configuration"`
	} `json:"ffmpeg"`

	Filters  []SkillsEntry `json:"filter"`
	HWAccels []SkillsEntry `json:"hwaccels"`

	Encoders struct {
		Audio    []SkillsEntry `json:"audio"`
		Video    []SkillsEntry `json:"video"`
		Subtitle []SkillsEntry `json:"subtitle"`
	} `json:"encoders"`

	// HardwareEncoders are the selectors BurnSubtitle accepts besides libx264
	HardwareEncoders []string `json:"hardware_encoders"`
}

func skillsToAPI(s skills.Skills) SkillsResponse {
	resp := SkillsResponse{}

	resp.FFmpeg.Version = s.FFmpeg.Version
	resp.FFmpeg.Compiler = s.FFmpeg.Compiler
	resp.FFmpeg.Configuration = s.FFmpeg.Configuration

	resp.Filters = make([]SkillsEntry, len(s.Filters))
	for i, f := range s.Filters {
		resp.Filters[i] = SkillsEntry{f.Id, f.Name}
	}

	resp.HWAccels = make([]SkillsEntry, len(s.HWAccels))
	for i, h := range s.HWAccels {
		resp.HWAccels[i] = SkillsEntry{h.Id, h.Name}
	}

	resp.Encoders.Audio = encodersToAPI(s.Encoders.Audio)
	resp.Encoders.Video = encodersToAPI(s.Encoders.Video)
	resp.Encoders.Subtitle = encodersToAPI(s.Encoders.Subtitle)

	resp.HardwareEncoders = s.HardwareEncoders()
	if resp.HardwareEncoders == nil {
		resp.HardwareEncoders = []string{}
	}

	return resp
}

func encodersToAPI(list []skills.Encoder) []SkillsEntry {
	out := make([]SkillsEntry, len(list))
	for i, e := range list {
		out[i] = SkillsEntry{e.Id, e.Name}
	}
	return out
}
