// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/clipdesk/internal/ffmpeg"
	"github.com/ZSC714725/clipdesk/internal/ffmpeg/parse"
	"github.com/ZSC714725/clipdesk/internal/job"
	"github.com/ZSC714725/clipdesk/internal/logger"
	"github.com/ZSC714725/clipdesk/internal/process"
	"github.com/ZSC714725/clipdesk/internal/subtitle"
)

// State of a task
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// DefaultBitrateKbps is used for a burn when neither the request nor the
// source video gives a bitrate.
const DefaultBitrateKbps = 3000

// Task is one submitted job
type Task struct {
	ID        string
	Reference string
	Config    *Config
	Job       job.Job
	CreatedAt int64

	sup    *process.Supervisor
	parser process.Parser
	temps  []string

	finish struct {
		result    *job.Result
		updatedAt int64
		lock      sync.RWMutex
	}
}

// Status returns process status
func (t *Task) Status() process.Status {
	return t.sup.Status()
}

// Progress returns parsed FFmpeg status figures
func (t *Task) Progress() parse.Progress {
	if p, ok := t.parser.(parse.Parser); ok {
		return p.Progress()
	}
	return parse.Progress{}
}

// Fraction is the last reported completion in [0, 1].
func (t *Task) Fraction() float64 {
	return t.sup.Fraction()
}

// Log returns the recent status lines
func (t *Task) Log() []process.Line {
	return t.sup.Log()
}

// IsRunning returns whether the process is running
func (t *Task) IsRunning() bool {
	_, done := t.Result()
	return !done
}

// Result is the final outcome, false while running.
func (t *Task) Result() (job.Result, bool) {
	t.finish.lock.RLock()
	defer t.finish.lock.RUnlock()
	if t.finish.result == nil {
		return job.Result{}, false
	}
	return *t.finish.result, true
}

// State derives the task state from its result
func (t *Task) State() State {
	res, done := t.Result()
	switch {
	case !done:
		return StateRunning
	case res.Cancelled:
		return StateCancelled
	case res.Success():
		return StateSucceeded
	default:
		return StateFailed
	}
}

// UpdatedAt is the unix time of the last state change
func (t *Task) UpdatedAt() int64 {
	t.finish.lock.RLock()
	defer t.finish.lock.RUnlock()
	if t.finish.updatedAt == 0 {
		return t.CreatedAt
	}
	return t.finish.updatedAt
}

// Done is closed once the task has finished
func (t *Task) Done() <-chan struct{} {
	return t.sup.Completed()
}

// Wait blocks until the task is finished
func (t *Task) Wait() job.Result {
	<-t.sup.Completed()
	res, _ := t.Result()
	return res
}

func (t *Task) setResult(res job.Result) {
	t.finish.lock.Lock()
	defer t.finish.lock.Unlock()
	t.finish.result = &res
	t.finish.updatedAt = time.Now().Unix()
}

// Store manages tasks in memory
type Store interface {
	Submit(ctx context.Context, config *Config) (*Task, error)
	Get(id string) (*Task, error)
	List(ids []string, reference string) []*Task
	Cancel(id string) error
	StopAll() error
	Delete(id string) error
}

// Options wires a Store
type Options struct {
	Builder         *ffmpeg.Builder
	Prober          ffmpeg.Prober
	InputValidator  ffmpeg.Validator
	OutputValidator ffmpeg.Validator
	// NewParser and NewSampler are called once per task
	NewParser  func() process.Parser
	NewSampler func() process.Sampler
	// Process is the supervisor template: launcher, registry, tiers and timings
	Process process.Config
	// TempDir holds concat lists and styled subtitles, os.TempDir() if empty
	TempDir      string
	Style        subtitle.Style
	Encoding     ffmpeg.Encoding
	Language     string
	ProbeTimeout time.Duration
	Logger       logger.Logger

	OnProgress func(t *Task, fraction float64)
	OnComplete func(t *Task, res job.Result)
}

type store struct {
	opts    Options
	logger  logger.Logger
	tasks   map[string]*Task
	outputs map[string]string // output path -> task id of the running writer
	mu      sync.RWMutex
}

// NewStore creates a task store
func NewStore(opts Options) Store {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.NewParser == nil {
		opts.NewParser = func() process.Parser { return parse.New(parse.Config{}) }
	}
	if opts.NewSampler == nil {
		opts.NewSampler = process.NewNullSampler
	}
	if opts.Style.FontSize == 0 {
		opts.Style.FontSize = subtitle.DefaultFontSize
	}
	if opts.Process.Logger == nil {
		opts.Process.Logger = opts.Logger
	}
	return &store{
		opts:    opts,
		logger:  opts.Logger,
		tasks:   make(map[string]*Task),
		outputs: make(map[string]string),
	}
}

func (s *store) Submit(ctx context.Context, config *Config) (*Task, error) {
	kind, err := job.ParseKind(config.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if len(config.Inputs) == 0 || config.Output == "" {
		return nil, fmt.Errorf("%w: need at least one input and an output", ErrInvalidSpec)
	}

	if v := s.opts.InputValidator; v != nil {
		if err := v.Check(config.ReadPaths()...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInputAddress, err)
		}
	}
	if v := s.opts.OutputValidator; v != nil {
		if err := v.Check(config.Output); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOutputAddress, err)
		}
	}

	output, err := filepath.Abs(config.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutputAddress, err)
	}
	for _, in := range config.ReadPaths() {
		if abs, err := filepath.Abs(in); err == nil && abs == output {
			return nil, fmt.Errorf("%w: output would overwrite input %s", ErrInvalidSpec, in)
		}
	}

	if len(config.ID) == 0 {
		config.ID = shortuuid.New()
	}
	if err := s.reserve(config.ID, output); err != nil {
		return nil, err
	}

	t := &Task{
		ID:        config.ID,
		Reference: config.Reference,
		Config:    config,
		CreatedAt: time.Now().Unix(),
		parser:    s.opts.NewParser(),
	}

	j, temps, err := s.prepare(ctx, kind, config, output)
	if err != nil {
		s.release(config.ID, output)
		removeAll(s.logger, temps)
		return nil, err
	}
	t.Job = j
	t.temps = temps

	pc := s.opts.Process
	pc.ID = t.ID
	pc.Parser = t.parser
	pc.Sampler = s.opts.NewSampler()
	t.sup = process.New(pc)

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()

	onProgress := func(f float64) {
		if s.opts.OnProgress != nil {
			s.opts.OnProgress(t, f)
		}
	}
	onComplete := func(res job.Result) {
		s.finish(t, output, res)
	}

	if err := t.sup.Start(j, onProgress, onComplete); err != nil {
		s.mu.Lock()
		delete(s.tasks, t.ID)
		s.mu.Unlock()
		s.release(t.ID, output)
		removeAll(s.logger, temps)
		return nil, err
	}

	s.logger.Info("task %s: %s -> %s", t.ID, kind, output)
	return t, nil
}

func (s *store) finish(t *Task, output string, res job.Result) {
	removeAll(s.logger, t.temps)
	t.setResult(res)
	s.release(t.ID, output)

	if res.Success() {
		s.logger.Info("task %s succeeded: %s", t.ID, res.OutputPath)
	} else {
		s.logger.Error("task %s: %v", t.ID, res.Err)
	}

	if s.opts.OnComplete != nil {
		s.opts.OnComplete(t, res)
	}
}

// reserve claims output for id. Two jobs writing one file would corrupt it.
func (s *store) reserve(id, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		return ErrTaskExists
	}
	if owner, busy := s.outputs[output]; busy {
		return fmt.Errorf("%w: %s (task %s)", ErrOutputBusy, output, owner)
	}
	s.outputs[output] = id
	return nil
}

func (s *store) release(id, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outputs[output] == id {
		delete(s.outputs, output)
	}
}

// prepare probes durations, writes temp artifacts and builds the job. The
// returned temp files must be removed by the caller even when err != nil.
func (s *store) prepare(ctx context.Context, kind job.Kind, c *Config, output string) (job.Job, []string, error) {
	b := s.opts.Builder
	var (
		j     job.Job
		temps []string
		err   error
	)

	switch kind {
	case job.KindTrim:
		var source float64
		if c.End <= 0 {
			source = s.duration(ctx, c.Input())
		}
		j, err = b.Trim(c.Input(), output, c.Start, c.End, source)

	case job.KindMerge:
		var total float64
		var size int64
		for _, in := range c.Inputs {
			d := s.duration(ctx, in)
			if d <= 0 {
				// a partial sum would overshoot to 0.98 early
				total = -1
			} else if total >= 0 {
				total += d
			}
			if fi, err := os.Stat(in); err == nil {
				size += fi.Size()
			}
		}
		var list string
		if list, err = ffmpeg.WriteConcatList(s.opts.TempDir, c.Inputs); err != nil {
			return job.Job{}, temps, err
		}
		temps = append(temps, list)
		j, err = b.Merge(list, c.Inputs, output, total, size)

	case job.KindBurnSubtitle, job.KindAttachSubtitle:
		if c.Subtitle == "" {
			return job.Job{}, temps, fmt.Errorf("%w: %v", ErrInvalidSpec, ffmpeg.ErrNoSubtitle)
		}
		duration := s.duration(ctx, c.Input())
		var styled string
		if styled, err = s.styledSubtitle(c, duration); err != nil {
			return job.Job{}, temps, err
		}
		temps = append(temps, styled)
		if kind == job.KindBurnSubtitle {
			enc := c.encoding(s.opts.Encoding)
			if enc.BitrateKbps == 0 {
				enc.BitrateKbps = s.bitrate(ctx, c.Input())
			}
			j, err = b.BurnSubtitle(c.Input(), styled, output, enc, duration)
		} else {
			lang := c.Language
			if lang == "" {
				lang = s.opts.Language
			}
			j, err = b.AttachSubtitle(c.Input(), styled, output, lang, duration)
		}

	case job.KindDenoise:
		j, err = b.Denoise(c.Input(), output, c.Denoise, s.duration(ctx, c.Input()))

	case job.KindExtractFrame:
		j, err = b.ExtractFrame(c.Input(), output, c.Position)

	default:
		err = fmt.Errorf("unsupported kind %s", kind)
	}

	if err != nil {
		if errors.Is(err, ffmpeg.ErrEncoderUnavailable) || isBuilderError(err) {
			err = fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		return job.Job{}, temps, err
	}
	return j, temps, nil
}

// styledSubtitle loads the user's subtitle against the video duration and
// writes the styled ASS the encoder consumes.
func (s *store) styledSubtitle(c *Config, duration float64) (string, error) {
	track, err := subtitle.LoadFile(c.Subtitle, duration)
	if err != nil {
		return "", fmt.Errorf("%w: subtitle %s: %v", ErrInvalidSpec, c.Subtitle, err)
	}
	st := track.Stats
	if st.Dropped > 0 || st.Clamped > 0 || st.Invalid > 0 {
		s.logger.Warn("subtitle %s: kept %d, dropped %d past end, clamped %d, invalid %d",
			c.Subtitle, st.Kept, st.Dropped, st.Clamped, st.Invalid)
	}
	if len(track.Entries) == 0 {
		return "", fmt.Errorf("%w: subtitle %s has no usable entries", ErrInvalidSpec, c.Subtitle)
	}
	return subtitle.WriteStyled(s.opts.TempDir, track, c.style(s.opts.Style))
}

// duration probes path; an unknown duration (0) only degrades progress reporting.
func (s *store) duration(ctx context.Context, path string) float64 {
	if s.opts.Prober == nil || path == "" {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	d, err := s.opts.Prober.Duration(ctx, path)
	if err != nil {
		s.logger.Warn("probe %s: %v", path, err)
		return 0
	}
	return d
}

// bitrate keeps a re-encode close to its source: the probed video bitrate, or
// DefaultBitrateKbps when ffprobe cannot tell.
func (s *store) bitrate(ctx context.Context, path string) int {
	if s.opts.Prober == nil {
		return DefaultBitrateKbps
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	kbps, err := s.opts.Prober.Bitrate(ctx, path)
	if err != nil {
		s.logger.Warn("probe bitrate %s: %v, using %dk", path, err, DefaultBitrateKbps)
		return DefaultBitrateKbps
	}
	return kbps
}

func (s *store) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *store) List(ids []string, reference string) []*Task {
	s.mu.RLock()
	var out []*Task
	for _, t := range s.tasks {
		if len(reference) > 0 && t.Reference != reference {
			continue
		}
		if len(ids) > 0 {
			found := false
			for _, id := range ids {
				if t.ID == id {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *store) Cancel(id string) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}
	return t.sup.Cancel()
}

// StopAll fans the shutdown escalation out over every running task and returns
// once their temp files are gone.
func (s *store) StopAll() error {
	if r := s.opts.Process.Registry; r != nil {
		return r.ShutdownAll()
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, t := range s.List(nil, "") {
		if !t.IsRunning() {
			continue
		}
		wg.Add(1)
		go func(t *Task) {
			defer wg.Done()
			if err := t.sup.Shutdown(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", t.ID, err))
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (s *store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.IsRunning() {
		return ErrTaskRunning
	}
	delete(s.tasks, id)
	return nil
}

func isBuilderError(err error) bool {
	for _, e := range []error{ffmpeg.ErrNoInputs, ffmpeg.ErrNoOutput, ffmpeg.ErrInvalidRange, ffmpeg.ErrNoSubtitle} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func removeAll(log logger.Logger, paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn("remove temp file: %v", err)
		}
	}
}
