// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具
//
// Package process supervises one FFmpeg subprocess per job: launch, progress,
// completion and the quit/terminate/kill shutdown escalation.

package process

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/clipdesk/internal/job"
	"github.com/ZSC714725/clipdesk/internal/logger"
)

const (
	// MaxRunningFraction caps progress until success is confirmed.
	MaxRunningFraction = 0.98
	// StallFraction is where progress is held once the process goes quiet.
	StallFraction = 0.95
	// SizeFallbackWeight scales output-size progress, which cannot see muxer overhead.
	SizeFallbackWeight = 0.9
	// CompletionGrace is how long Shutdown gives onComplete on top of the drain timeout.
	CompletionGrace = 5 * time.Second
)

// Config for a supervisor
type Config struct {
	ID       string
	Launcher Launcher
	Parser   Parser
	Sampler  Sampler
	Registry *Registry
	Logger   logger.Logger
	Tiers    Tiers
	// PollInterval is the output-size check period.
	PollInterval time.Duration
	// StallTimeout without a status line or output growth holds progress at StallFraction.
	StallTimeout time.Duration
	// DrainTimeout bounds how long the status stream may stay open after exit.
	DrainTimeout time.Duration
}

// Status of a supervisor
type Status struct {
	ID       string        `json:"id"`
	State    string        `json:"state"`
	Kind     job.Kind      `json:"kind"`
	Output   string        `json:"output"`
	Pid      int           `json:"pid"`
	Fraction float64       `json:"progress"`
	Duration time.Duration `json:"duration"`
	Time     time.Time     `json:"time"`
	CPU      float64       `json:"cpu"`
	Memory   uint64        `json:"memory"`
}

type stateType string

const (
	stateIdle        stateType = "idle"
	stateRunning     stateType = "running"
	stateTerminating stateType = "terminating"
	stateExited      stateType = "exited"
)

func (s stateType) String() string { return string(s) }

func (s stateType) IsRunning() bool {
	return s == stateRunning || s == stateTerminating
}

// Supervisor runs exactly one subprocess to completion or cancellation.
type Supervisor struct {
	id       string
	launcher Launcher
	parser   Parser
	sampler  Sampler
	registry *Registry
	logger   logger.Logger
	tiers    Tiers
	poll     time.Duration
	stall    time.Duration
	drain    time.Duration

	job    job.Job
	handle Handle

	state struct {
		state     stateType
		time      time.Time
		cancelled bool
		lock      sync.Mutex
	}
	progress struct {
		fraction float64
		lock     sync.RWMutex
	}
	escalation sync.Mutex

	onProgress func(float64)
	onComplete func(job.Result)

	result    job.Result
	completed chan struct{}
}

// progressState is owned by the monitor goroutine.
type progressState struct {
	last         float64
	lastSize     int64
	lastActivity time.Time
	stalled      bool
}

// New creates a Supervisor
func New(config Config) *Supervisor {
	s := &Supervisor{
		id:        config.ID,
		launcher:  config.Launcher,
		parser:    config.Parser,
		sampler:   config.Sampler,
		registry:  config.Registry,
		logger:    config.Logger,
		tiers:     config.Tiers.withDefaults(),
		poll:      config.PollInterval,
		stall:     config.StallTimeout,
		drain:     config.DrainTimeout,
		completed: make(chan struct{}),
	}

	if len(s.id) == 0 {
		s.id = shortuuid.New()
	}
	if s.launcher == nil {
		s.launcher = NewExecLauncher()
	}
	if s.parser == nil {
		s.parser = &nullParser{}
	}
	if s.sampler == nil {
		s.sampler = NewNullSampler()
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.poll <= 0 {
		s.poll = 100 * time.Millisecond
	}
	if s.stall <= 0 {
		s.stall = 30 * time.Second
	}
	if s.drain <= 0 {
		s.drain = 2 * time.Second
	}

	s.state.state = stateIdle
	s.state.time = time.Now()
	return s
}

// ID of the supervisor
func (s *Supervisor) ID() string { return s.id }

// Job returns the job being run, zero before Start.
func (s *Supervisor) Job() job.Job {
	s.state.lock.Lock()
	defer s.state.lock.Unlock()
	return s.job
}

// Start launches j. onProgress receives strictly increasing fractions; onComplete
// fires exactly once after the last progress call. Both run on the monitor goroutine.
// A launch failure is returned as *job.LaunchError and no callback fires.
func (s *Supervisor) Start(j job.Job, onProgress func(float64), onComplete func(job.Result)) error {
	s.state.lock.Lock()
	if s.state.state != stateIdle {
		s.state.lock.Unlock()
		return ErrAlreadyStarted
	}

	s.job = j
	h, err := s.launcher.Launch(j.Binary, j.Argv)
	if err != nil {
		err = &job.LaunchError{Kind: j.Kind, Binary: j.Binary, Err: err}
		s.result = job.Result{Kind: j.Kind, OutputPath: j.OutputPath, ExitCode: -1, Err: err}
		s.setStateLocked(stateExited)
		s.state.lock.Unlock()
		close(s.completed)
		s.logger.Error("[%s] %v", s.id, err)
		return err
	}

	s.handle = h
	s.onProgress = onProgress
	s.onComplete = onComplete
	s.setStateLocked(stateRunning)
	s.state.lock.Unlock()

	s.logger.Info("[%s] started pid %d: %s", s.id, h.Pid(), j.CommandLine())

	if err := s.sampler.Start(h.Pid()); err != nil {
		s.logger.Debug("[%s] sampler: %v", s.id, err)
	}
	if s.registry != nil {
		s.registry.Register(s)
	}

	s.parser.ResetLog()

	lines := make(chan string, 64)
	stop := make(chan struct{})
	go s.reader(h.Output(), lines, stop)
	go s.monitor(lines, stop)

	return nil
}

// Cancel runs the shutdown escalation and returns once the process has exited or
// every tier has timed out (ErrShutdownTimeout). It does not wait for onComplete.
func (s *Supervisor) Cancel() error {
	s.state.lock.Lock()
	switch s.state.state {
	case stateIdle:
		s.state.lock.Unlock()
		return ErrNotStarted
	case stateExited:
		s.state.lock.Unlock()
		return nil
	}
	h := s.handle
	select {
	case <-h.Done():
		// exited on its own, completion is already under way
	default:
		s.state.cancelled = true
		if s.state.state == stateRunning {
			s.setStateLocked(stateTerminating)
		}
	}
	s.state.lock.Unlock()

	s.escalation.Lock()
	defer s.escalation.Unlock()

	s.logger.Info("[%s] stopping pid %d", s.id, h.Pid())
	return Escalate(h, s.tiers, s.logger)
}

// Shutdown cancels the job and then waits, bounded by the drain timeout plus
// CompletionGrace, until onComplete has returned.
func (s *Supervisor) Shutdown() error {
	if err := s.Cancel(); err != nil {
		return err
	}

	select {
	case <-s.completed:
		return nil
	case <-time.After(s.drain + CompletionGrace):
		return ErrCompletionTimeout
	}
}

// Wait blocks until the job has completed and onComplete has returned.
func (s *Supervisor) Wait() job.Result {
	<-s.completed
	return s.result
}

// Completed is closed once the result is final.
func (s *Supervisor) Completed() <-chan struct{} {
	return s.completed
}

// IsRunning reports whether the subprocess has not been reaped yet.
func (s *Supervisor) IsRunning() bool {
	return s.getState().IsRunning()
}

// Fraction is the last emitted progress value.
func (s *Supervisor) Fraction() float64 {
	s.progress.lock.RLock()
	defer s.progress.lock.RUnlock()
	return s.progress.fraction
}

// Log returns the recent status lines.
func (s *Supervisor) Log() []Line {
	return s.parser.Log()
}

func (s *Supervisor) Status() Status {
	cpu, memory := s.sampler.Current()

	s.state.lock.Lock()
	st := Status{
		ID:       s.id,
		State:    s.state.state.String(),
		Kind:     s.job.Kind,
		Output:   s.job.OutputPath,
		Duration: time.Since(s.state.time),
		Time:     s.state.time,
		CPU:      cpu,
		Memory:   memory,
	}
	if s.handle != nil {
		st.Pid = s.handle.Pid()
	}
	s.state.lock.Unlock()

	st.Fraction = s.Fraction()
	return st
}

func (s *Supervisor) getState() stateType {
	s.state.lock.Lock()
	defer s.state.lock.Unlock()
	return s.state.state
}

func (s *Supervisor) setStateLocked(state stateType) {
	s.state.state = state
	s.state.time = time.Now()
}

func (s *Supervisor) reader(r io.Reader, lines chan<- string, stop <-chan struct{}) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLine)

	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-stop:
			close(lines)
			return
		}
	}
	close(lines)

	err := scanner.Err()
	if err == nil || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return
	}
	s.logger.Error("[%s] %v", s.id, &job.StreamReadError{Kind: s.job.Kind, Err: err})

	// Progress is lost from here on, but the pipe must stay empty or the child
	// blocks on its next status write. The monitor closes the stream after stop.
	select {
	case <-stop:
		return
	default:
	}
	if _, err := io.Copy(io.Discard, r); err != nil && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		s.logger.Debug("[%s] discard status stream: %v", s.id, err)
	}
}

// monitor owns the progress state. It consumes status lines, polls the output
// size and finishes the job once the process is reaped and the stream drained.
func (s *Supervisor) monitor(lines <-chan string, stop chan struct{}) {
	st := progressState{lastActivity: time.Now()}
	declared := s.job.DeclaredDuration

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	done := s.handle.Done()
	var drain <-chan time.Time

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				if done == nil {
					break loop
				}
				continue
			}
			r := s.parser.Parse(line, declared)
			// merge progress is size based, a Duration: line only covers the first input
			if declared <= 0 && r.Duration > 0 && s.job.ExpectedBytes == 0 {
				declared = r.Duration
				s.logger.Debug("[%s] adopted duration %.2fs from status stream", s.id, declared)
			}
			st.lastActivity = time.Now()
			st.stalled = false
			if r.OK {
				s.offer(&st, r.Fraction)
			}
		case now := <-ticker.C:
			s.pollOutput(&st, now)
		case <-done:
			done = nil
			if lines == nil {
				break loop
			}
			drain = time.After(s.drain)
		case <-drain:
			s.logger.Warn("[%s] status stream still open %s after exit", s.id, s.drain)
			break loop
		}
	}

	close(stop)
	if c, ok := s.handle.Output().(io.Closer); ok {
		c.Close()
	}

	s.complete(&st)
}

func (s *Supervisor) pollOutput(st *progressState, now time.Time) {
	if fi, err := os.Stat(s.job.OutputPath); err == nil && fi.Size() > st.lastSize {
		st.lastSize = fi.Size()
		st.lastActivity = now
		st.stalled = false
		if s.job.ExpectedBytes > 0 {
			f := float64(st.lastSize) / float64(s.job.ExpectedBytes) * SizeFallbackWeight
			if f > SizeFallbackWeight {
				f = SizeFallbackWeight
			}
			s.offer(st, f)
		}
		return
	}

	// nothing written yet means the encoder has not got going, not that it is finishing
	if !st.stalled && st.lastSize > 0 && now.Sub(st.lastActivity) >= s.stall {
		st.stalled = true
		s.logger.Warn("[%s] no status or output growth for %s, holding progress at %.0f%%", s.id, s.stall, StallFraction*100)
		s.offer(st, StallFraction)
	}
}

// offer emits f if it moves progress forward. Regressions are dropped.
func (s *Supervisor) offer(st *progressState, f float64) {
	limit := MaxRunningFraction
	if st.stalled {
		limit = StallFraction
	}
	if f > limit {
		f = limit
	}
	if f <= st.last {
		return
	}
	s.emit(st, f)
}

func (s *Supervisor) emit(st *progressState, f float64) {
	st.last = f
	s.progress.lock.Lock()
	s.progress.fraction = f
	s.progress.lock.Unlock()
	if s.onProgress != nil {
		s.onProgress(f)
	}
}

func (s *Supervisor) complete(st *progressState) {
	s.sampler.Stop()

	j := s.job
	res := job.Result{
		Kind:       j.Kind,
		OutputPath: j.OutputPath,
		ExitCode:   s.handle.ExitCode(),
	}
	if fi, err := os.Stat(j.OutputPath); err == nil {
		res.OutputExisted = true
		res.OutputSize = fi.Size()
	}
	if res.OutputExisted && res.OutputSize == 0 {
		if err := os.Remove(j.OutputPath); err != nil {
			s.logger.Error("[%s] remove empty output: %v", s.id, err)
		}
	}

	s.state.lock.Lock()
	res.Cancelled = s.state.cancelled
	s.setStateLocked(stateExited)
	s.state.lock.Unlock()

	switch {
	case res.Cancelled:
		res.Err = &job.CancelledError{Kind: j.Kind, OutputPath: j.OutputPath, ExitCode: res.ExitCode, OutputExisted: res.OutputExisted, OutputSize: res.OutputSize}
	case res.ExitCode != 0:
		res.Err = &job.NonZeroExitError{Kind: j.Kind, OutputPath: j.OutputPath, ExitCode: res.ExitCode, OutputExisted: res.OutputExisted, OutputSize: res.OutputSize}
	case res.OutputSize == 0:
		res.Err = &job.EmptyOutputError{Kind: j.Kind, OutputPath: j.OutputPath, OutputExisted: res.OutputExisted}
	}

	if s.registry != nil {
		s.registry.Deregister(s.id)
	}

	if res.Err == nil {
		s.emit(st, 1)
		s.logger.Info("[%s] %s finished: %s", s.id, j.Kind, j.OutputPath)
	} else {
		s.logger.Error("[%s] %v", s.id, res.Err)
	}

	s.result = res
	if s.onComplete != nil {
		s.onComplete(res)
	}
	close(s.completed)
}

// scanLine splits on \r as well as \n: FFmpeg rewrites its status line with \r.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}
