// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package ffmpeg

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/ZSC714725/clipdesk/internal/ffmpeg/parse"
	"github.com/ZSC714725/clipdesk/internal/ffmpeg/skills"
)

// FFmpeg bundles the resolved binaries, path validation and detected skills
type FFmpeg interface {
	Binary() string
	Builder() *Builder
	Prober() Prober
	NewParser() parse.Parser
	// InputRules and OutputRules say what jobs may read and write.
	InputRules() Validator
	OutputRules() Validator
	Skills() skills.Skills
	ReloadSkills() error
}

// Config for FFmpeg
type Config struct {
	Binary          string
	ProbeBinary     string
	HWAccel         string
	MaxLogLines     int
	ValidatorInput  Validator
	ValidatorOutput Validator
}

type ffmpeg struct {
	binary       string
	hwaccel      string
	prober       Prober
	validatorIn  Validator
	validatorOut Validator
	skills       skills.Skills
	logLines     int
	skillsLock   sync.RWMutex
}

// New resolves the binaries and detects skills. A missing ffmpeg is an error,
// a missing ffprobe only surfaces when a job needs a duration.
func New(config Config) (FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg binary: %w", err)
	}

	probe := config.ProbeBinary
	if probe == "" {
		probe = "ffprobe"
	}
	if p, err := exec.LookPath(probe); err == nil {
		probe = p
	}

	f := &ffmpeg{
		binary:   binary,
		hwaccel:  config.HWAccel,
		prober:   NewProber(probe),
		logLines: config.MaxLogLines,
	}

	if f.logLines <= 0 {
		f.logLines = 100
	}

	if config.ValidatorInput != nil {
		f.validatorIn = config.ValidatorInput
	} else {
		f.validatorIn, _ = NewValidator(nil, nil)
	}
	if config.ValidatorOutput != nil {
		f.validatorOut = config.ValidatorOutput
	} else {
		f.validatorOut, _ = NewValidator(nil, nil)
	}

	s, err := skills.New(f.binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg: %w", err)
	}
	f.skills = s

	return f, nil
}

func (f *ffmpeg) Binary() string { return f.binary }

func (f *ffmpeg) Builder() *Builder {
	return &Builder{
		Binary:  f.binary,
		HWAccel: f.hwaccel,
		Available: func(encoder string) bool {
			return f.Skills().HasEncoder(encoder)
		},
	}
}

func (f *ffmpeg) Prober() Prober { return f.prober }

func (f *ffmpeg) NewParser() parse.Parser {
	return parse.New(parse.Config{LogLines: f.logLines})
}

func (f *ffmpeg) InputRules() Validator { return f.validatorIn }

func (f *ffmpeg) OutputRules() Validator { return f.validatorOut }

func (f *ffmpeg) Skills() skills.Skills {
	f.skillsLock.RLock()
	defer f.skillsLock.RUnlock()
	return f.skills
}

func (f *ffmpeg) ReloadSkills() error {
	s, err := skills.New(f.binary)
	if err != nil {
		return fmt.Errorf("reload skills: %w", err)
	}
	f.skillsLock.Lock()
	f.skills = s
	f.skillsLock.Unlock()
	return nil
}
