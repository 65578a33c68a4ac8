// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package logger

import "log"

// Logger provides a simple levelled logging interface
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

type defaultLogger struct {
	prefix string
	debug  bool
}

// New returns a logger writing through the standard log package.
// Debug lines are only written when debug is true.
func New(prefix string, debug bool) Logger {
	if prefix != "" {
		prefix += ": "
	}
	return &defaultLogger{prefix: prefix, debug: debug}
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	log.Printf("[INFO] "+l.prefix+format, args...)
}

func (l *defaultLogger) Warn(format string, args ...interface{}) {
	log.Printf("[WARN] "+l.prefix+format, args...)
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	log.Printf("[ERROR] "+l.prefix+format, args...)
}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	log.Printf("[DEBUG] "+l.prefix+format, args...)
}

// With returns a logger that prepends prefix to every message of l.
func With(l Logger, prefix string) Logger {
	if l == nil {
		return Nop()
	}
	return &prefixed{logger: l, prefix: prefix}
}

type prefixed struct {
	logger Logger
	prefix string
}

func (p *prefixed) Info(format string, args ...interface{}) {
	p.logger.Info(p.prefix+format, args...)
}

func (p *prefixed) Warn(format string, args ...interface{}) {
	p.logger.Warn(p.prefix+format, args...)
}

func (p *prefixed) Error(format string, args ...interface{}) {
	p.logger.Error(p.prefix+format, args...)
}

func (p *prefixed) Debug(format string, args ...interface{}) {
	p.logger.Debug(p.prefix+format, args...)
}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Info(format string, args ...interface{})  {}
func (nopLogger) Warn(format string, args ...interface{})  {}
func (nopLogger) Error(format string, args ...interface{}) {}
func (nopLogger) Debug(format string, args ...interface{}) {}
