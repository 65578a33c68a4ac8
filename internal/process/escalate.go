// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package process

import (
	"time"

	"github.com/ZSC714725/clipdesk/internal/logger"
)

// Tiers bounds each step of the shutdown escalation.
type Tiers struct {
	Quit      time.Duration
	Terminate time.Duration
	Kill      time.Duration
}

// DefaultTiers 默认超时：q 5s，SIGTERM 2s，SIGKILL 1s
var DefaultTiers = Tiers{
	Quit:      5 * time.Second,
	Terminate: 2 * time.Second,
	Kill:      time.Second,
}

// Total is the longest Escalate can block.
func (t Tiers) Total() time.Duration {
	return t.Quit + t.Terminate + t.Kill
}

func (t Tiers) withDefaults() Tiers {
	if t.Quit <= 0 {
		t.Quit = DefaultTiers.Quit
	}
	if t.Terminate <= 0 {
		t.Terminate = DefaultTiers.Terminate
	}
	if t.Kill <= 0 {
		t.Kill = DefaultTiers.Kill
	}
	return t
}

type tier struct {
	name   string
	signal func() error
	wait   time.Duration
}

// Escalate stops h by sending the quit token, then SIGTERM, then SIGKILL, waiting
// a bounded time after each. It returns nil as soon as h is observed to exit and
// ErrShutdownTimeout when even the kill tier expires.
func Escalate(h Handle, t Tiers, log logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	t = t.withDefaults()

	tiers := []tier{
		{"quit", h.Quit, t.Quit},
		{"terminate", h.Terminate, t.Terminate},
		{"kill", h.Kill, t.Kill},
	}

	for _, step := range tiers {
		select {
		case <-h.Done():
			return nil
		default:
		}

		if err := step.signal(); err != nil {
			log.Debug("pid %d: %s: %v", h.Pid(), step.name, err)
		}

		timer := time.NewTimer(step.wait)
		select {
		case <-h.Done():
			timer.Stop()
			log.Info("pid %d exited after %s", h.Pid(), step.name)
			return nil
		case <-timer.C:
			log.Info("pid %d: %s timed out after %s", h.Pid(), step.name, step.wait)
		}
	}

	log.Warn("pid %d still running after kill, giving up", h.Pid())
	return ErrShutdownTimeout
}
