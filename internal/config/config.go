// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
	Process  ProcessConfig  `yaml:"process"`
	Preview  PreviewConfig  `yaml:"preview"`
	Encode   EncodeConfig   `yaml:"encode"`
	Subtitle SubtitleConfig `yaml:"subtitle"`
	Debug    bool           `yaml:"debug"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind     string `yaml:"bind"`
	LockFile string `yaml:"lock_file"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path        string   `yaml:"path"`
	ProbePath   string   `yaml:"probe_path"`
	InputAllow  []string `yaml:"input_allow"`
	InputBlock  []string `yaml:"input_block"`
	OutputAllow []string `yaml:"output_allow"`
	OutputBlock []string `yaml:"output_block"`
}

// ProcessConfig 子进程监控与关闭升级的超时设置
type ProcessConfig struct {
	QuitTimeout      time.Duration `yaml:"quit_timeout"`
	TerminateTimeout time.Duration `yaml:"terminate_timeout"`
	KillTimeout      time.Duration `yaml:"kill_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	StallTimeout     time.Duration `yaml:"stall_timeout"`
}

// PreviewConfig 预览帧配置
type PreviewConfig struct {
	Dir string `yaml:"dir"`
}

// EncodeConfig 烧录字幕时的编码参数
type EncodeConfig struct {
	Encoder     string `yaml:"encoder"`
	BitrateKbps int    `yaml:"bitrate_kbps"`
	HWAccel     string `yaml:"hwaccel"` // 预览抽帧的 -hwaccel，空则不加
}

// SubtitleConfig 字幕默认样式
type SubtitleConfig struct {
	FontSize int    `yaml:"font_size"`
	Color    string `yaml:"color"`
	Position string `yaml:"position"`
	Language string `yaml:"language"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Bind: "127.0.0.1:8080"},
		FFmpeg: FFmpegConfig{Path: "ffmpeg", ProbePath: "ffprobe"},
		Process: ProcessConfig{
			QuitTimeout:      5 * time.Second,
			TerminateTimeout: 2 * time.Second,
			KillTimeout:      time.Second,
			PollInterval:     100 * time.Millisecond,
			StallTimeout:     30 * time.Second,
		},
		Subtitle: SubtitleConfig{FontSize: 24, Color: "white", Position: "bottom", Language: "chi"},
	}
}

// Load 从 YAML 文件加载配置，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.backfill()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CLIPDESK_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("CLIPDESK_FFMPEG"); v != "" {
		c.FFmpeg.Path = v
	}
	if v := os.Getenv("CLIPDESK_FFPROBE"); v != "" {
		c.FFmpeg.ProbePath = v
	}
}

// 填充空值
func (c *Config) backfill() {
	def := Default()
	if c.Server.Bind == "" {
		c.Server.Bind = def.Server.Bind
	}
	if c.FFmpeg.Path == "" {
		c.FFmpeg.Path = def.FFmpeg.Path
	}
	if c.FFmpeg.ProbePath == "" {
		c.FFmpeg.ProbePath = def.FFmpeg.ProbePath
	}
	if c.Process.QuitTimeout <= 0 {
		c.Process.QuitTimeout = def.Process.QuitTimeout
	}
	if c.Process.TerminateTimeout <= 0 {
		c.Process.TerminateTimeout = def.Process.TerminateTimeout
	}
	if c.Process.KillTimeout <= 0 {
		c.Process.KillTimeout = def.Process.KillTimeout
	}
	if c.Process.PollInterval <= 0 {
		c.Process.PollInterval = def.Process.PollInterval
	}
	if c.Process.StallTimeout <= 0 {
		c.Process.StallTimeout = def.Process.StallTimeout
	}
	if c.Preview.Dir == "" {
		c.Preview.Dir = os.TempDir()
	}
	if c.Subtitle.FontSize <= 0 {
		c.Subtitle.FontSize = def.Subtitle.FontSize
	}
	if c.Subtitle.Color == "" {
		c.Subtitle.Color = def.Subtitle.Color
	}
	if c.Subtitle.Position == "" {
		c.Subtitle.Position = def.Subtitle.Position
	}
	if c.Subtitle.Language == "" {
		c.Subtitle.Language = def.Subtitle.Language
	}
}

// Validate rejects values that would make the escalation unbounded or nonsensical.
func (c *Config) Validate() error {
	if c.Process.QuitTimeout > time.Minute {
		return fmt.Errorf("process.quit_timeout %s exceeds 1m", c.Process.QuitTimeout)
	}
	if c.Process.TerminateTimeout > time.Minute {
		return fmt.Errorf("process.terminate_timeout %s exceeds 1m", c.Process.TerminateTimeout)
	}
	if c.Process.KillTimeout > time.Minute {
		return fmt.Errorf("process.kill_timeout %s exceeds 1m", c.Process.KillTimeout)
	}
	if c.Encode.BitrateKbps < 0 {
		return fmt.Errorf("encode.bitrate_kbps must not be negative")
	}
	return nil
}
