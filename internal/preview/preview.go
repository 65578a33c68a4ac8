// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具
//
// Package preview turns a stream of seek requests into at most one frame
// extraction at a time, applying only the result of the latest request.

package preview

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/clipdesk/internal/logger"
)

var (
	// ErrClosed is returned by Request after Close
	ErrClosed = errors.New("preview controller closed")
	// ErrNoFrame means no extraction has been applied yet
	ErrNoFrame = errors.New("no preview frame yet")
)

// Extractor writes the frame at position of input to output. It blocks until
// the extraction has finished.
type Extractor interface {
	Extract(input string, position float64, output string) error
}

// Frame is an applied preview image
type Frame struct {
	TaskID   string  `json:"task_id"`
	Input    string  `json:"input"`
	Position float64 `json:"position"`
	Path     string  `json:"path"`
}

// Config for the controller
type Config struct {
	Extractor Extractor
	// Dir receives the extracted frames, os.TempDir() if empty.
	Dir string
	// OnApply is called for the current task only. It runs under the controller
	// lock and must not call back into the controller.
	OnApply func(Frame)
	Logger  logger.Logger
}

type task struct {
	id       string
	input    string
	position float64
}

// Controller gives the illusion of one continuously updating preview.
type Controller struct {
	extractor Extractor
	dir       string
	onApply   func(Frame)
	logger    logger.Logger

	lock    sync.Mutex
	input   string
	current string
	pending *task
	last    *Frame
	closed  bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New starts the controller's worker
func New(config Config) *Controller {
	c := &Controller{
		extractor: config.Extractor,
		dir:       config.Dir,
		onApply:   config.OnApply,
		logger:    config.Logger,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if c.dir == "" {
		c.dir = os.TempDir()
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}

	go c.worker()
	return c
}

// SetInput selects the video later requests extract from.
func (c *Controller) SetInput(path string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.input = path
}

// Request supersedes the current task with one at position and returns its id
// without blocking. A running extraction is never interrupted; its result is
// simply dropped if it is no longer current when it finishes.
func (c *Controller) Request(position float64) (string, error) {
	id := shortuuid.New()

	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return "", ErrClosed
	}
	c.current = id
	c.pending = &task{id: id, input: c.input, position: position}
	c.lock.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return id, nil
}

// Current returns the id of the most recent request.
func (c *Controller) Current() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.current
}

// Latest returns the last applied frame.
func (c *Controller) Latest() (Frame, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.last == nil {
		return Frame{}, false
	}
	return *c.last, true
}

// LatestImage returns the last applied frame and its contents. The file is read
// under the controller lock so a newer frame cannot delete it halfway.
func (c *Controller) LatestImage() (Frame, []byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.last == nil {
		return Frame{}, nil, ErrNoFrame
	}
	data, err := os.ReadFile(c.last.Path)
	if err != nil {
		return *c.last, nil, err
	}
	return *c.last, data, nil
}

// Close waits for an in-flight extraction, drops anything pending and removes
// the last applied frame.
func (c *Controller) Close() {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		<-c.done
		return
	}
	c.closed = true
	c.pending = nil
	c.lock.Unlock()

	close(c.quit)
	<-c.done

	c.lock.Lock()
	if c.last != nil {
		c.remove(c.last.Path)
		c.last = nil
	}
	c.lock.Unlock()
}

func (c *Controller) worker() {
	defer close(c.done)

	for {
		select {
		case <-c.quit:
			return
		case <-c.wake:
		}

		// requests that arrived during an extraction collapse into the newest one
		for {
			c.lock.Lock()
			t := c.pending
			c.pending = nil
			c.lock.Unlock()
			if t == nil {
				break
			}
			c.run(t)
		}
	}
}

func (c *Controller) run(t *task) {
	out := filepath.Join(c.dir, "clipdesk-frame-"+t.id+".jpg")

	if err := c.extractor.Extract(t.input, t.position, out); err != nil {
		c.logger.Error("preview %s at %.3fs: %v", t.id, t.position, err)
		c.remove(out)
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if t.id != c.current || c.closed {
		c.logger.Debug("preview %s superseded, discarding", t.id)
		c.remove(out)
		return
	}

	frame := Frame{TaskID: t.id, Input: t.input, Position: t.position, Path: out}
	if c.last != nil {
		c.remove(c.last.Path)
	}
	c.last = &frame

	if c.onApply != nil {
		c.onApply(frame)
	}
}

func (c *Controller) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("preview: %v", err)
	}
}
