// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ZSC714725/clipdesk/internal/config"
	"github.com/ZSC714725/clipdesk/internal/ffmpeg"
	"github.com/ZSC714725/clipdesk/internal/logger"
	"github.com/ZSC714725/clipdesk/internal/process"
	"github.com/ZSC714725/clipdesk/internal/subtitle"
	"github.com/ZSC714725/clipdesk/internal/task"
)

// commandContext holds the global flags and the lazily loaded config
type commandContext struct {
	configPath string
	envFile    string
	ffmpegBin  string
	debug      bool

	cfg *config.Config
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil {
			return nil, fmt.Errorf("load env %s: %w", c.envFile, err)
		}
	} else {
		_ = godotenv.Load() // .env 可选
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.ffmpegBin != "" {
		cfg.FFmpeg.Path = c.ffmpegBin
	}
	if c.debug {
		cfg.Debug = true
	}

	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) logger(prefix string) logger.Logger {
	return logger.New(prefix, c.cfg.Debug)
}

func (c *commandContext) ffmpeg() (ffmpeg.FFmpeg, error) {
	f := c.cfg.FFmpeg

	in, err := ffmpeg.NewValidator(f.InputAllow, f.InputBlock)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg.input: %w", err)
	}
	out, err := ffmpeg.NewValidator(f.OutputAllow, f.OutputBlock)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg.output: %w", err)
	}

	return ffmpeg.New(ffmpeg.Config{
		Binary:          f.Path,
		ProbeBinary:     f.ProbePath,
		HWAccel:         c.cfg.Encode.HWAccel,
		MaxLogLines:     100,
		ValidatorInput:  in,
		ValidatorOutput: out,
	})
}

// processConfig is the supervisor template shared by jobs and preview extractions
func (c *commandContext) processConfig(registry *process.Registry, log logger.Logger) process.Config {
	p := c.cfg.Process
	return process.Config{
		Launcher: process.NewExecLauncher(),
		Registry: registry,
		Logger:   log,
		Tiers: process.Tiers{
			Quit:      p.QuitTimeout,
			Terminate: p.TerminateTimeout,
			Kill:      p.KillTimeout,
		},
		PollInterval: p.PollInterval,
		StallTimeout: p.StallTimeout,
	}
}

func (c *commandContext) storeOptions(ff ffmpeg.FFmpeg, registry *process.Registry, log logger.Logger) task.Options {
	e := c.cfg.Encode
	s := c.cfg.Subtitle
	return task.Options{
		Builder:         ff.Builder(),
		Prober:          ff.Prober(),
		InputValidator:  ff.InputRules(),
		OutputValidator: ff.OutputRules(),
		NewParser:       func() process.Parser { return ff.NewParser() },
		NewSampler:      process.NewSysSampler,
		Process:         c.processConfig(registry, log),
		TempDir:         os.TempDir(),
		Style:           subtitle.Style{FontSize: s.FontSize, Color: s.Color, Position: s.Position},
		Encoding:        ffmpeg.Encoding{Encoder: e.Encoder, BitrateKbps: e.BitrateKbps},
		Language:        s.Language,
		Logger:          log,
	}
}
