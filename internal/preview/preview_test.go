package preview

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// gatedExtractor blocks every extraction until released and records the calls.
type gatedExtractor struct {
	mu      sync.Mutex
	calls   []float64
	started chan float64
	release chan struct{}
	fail    bool
}

func newGatedExtractor() *gatedExtractor {
	return &gatedExtractor{started: make(chan float64, 16), release: make(chan struct{}, 16)}
}

func (e *gatedExtractor) Extract(input string, position float64, output string) error {
	e.mu.Lock()
	e.calls = append(e.calls, position)
	e.mu.Unlock()

	e.started <- position
	<-e.release

	if err := os.WriteFile(output, []byte(fmt.Sprintf("frame %s@%v", input, position)), 0644); err != nil {
		return err
	}
	if e.fail {
		return errors.New("boom")
	}
	return nil
}

func (e *gatedExtractor) Calls() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.calls...)
}

func expectStart(t *testing.T, e *gatedExtractor, want float64) {
	t.Helper()
	select {
	case got := <-e.started:
		if got != want {
			t.Fatalf("extraction started at %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("extraction at %v never started", want)
	}
}

func listFrames(t *testing.T, dir string) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(dir, "clipdesk-frame-*.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestOnlyLastRequestIsApplied(t *testing.T) {
	dir := t.TempDir()
	ext := newGatedExtractor()

	var mu sync.Mutex
	var applied []Frame
	appliedCh := make(chan struct{}, 16)

	c := New(Config{
		Extractor: ext,
		Dir:       dir,
		OnApply: func(f Frame) {
			mu.Lock()
			applied = append(applied, f)
			mu.Unlock()
			appliedCh <- struct{}{}
		},
	})
	defer c.Close()
	c.SetInput("in.mp4")

	first, err := c.Request(0)
	if err != nil {
		t.Fatal(err)
	}
	expectStart(t, ext, 0)

	// the first extraction is still running, all of these return immediately
	var last string
	for i := 1; i <= 10; i++ {
		if last, err = c.Request(float64(i)); err != nil {
			t.Fatal(err)
		}
	}
	if c.Current() != last || first == last {
		t.Fatal("latest request should be current")
	}

	ext.release <- struct{}{} // finish the superseded first run
	expectStart(t, ext, 10)   // 1..9 were coalesced away
	ext.release <- struct{}{}

	select {
	case <-appliedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("frame never applied")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(applied) != 1 || applied[0].TaskID != last || applied[0].Position != 10 || applied[0].Input != "in.mp4" {
		t.Fatalf("applied = %+v", applied)
	}
	if calls := ext.Calls(); len(calls) != 2 {
		t.Fatalf("extractions = %v", calls)
	}
	frames := listFrames(t, dir)
	if len(frames) != 1 || frames[0] != applied[0].Path {
		t.Fatalf("frames on disk = %v", frames)
	}
	if f, ok := c.Latest(); !ok || f.TaskID != last {
		t.Fatalf("Latest = %+v, %v", f, ok)
	}
}

func TestNewFrameReplacesPrevious(t *testing.T) {
	dir := t.TempDir()
	ext := newGatedExtractor()
	appliedCh := make(chan Frame, 4)
	c := New(Config{Extractor: ext, Dir: dir, OnApply: func(f Frame) { appliedCh <- f }})

	for _, pos := range []float64{1, 2} {
		if _, err := c.Request(pos); err != nil {
			t.Fatal(err)
		}
		expectStart(t, ext, pos)
		ext.release <- struct{}{}
		<-appliedCh
	}

	if frames := listFrames(t, dir); len(frames) != 1 {
		t.Fatalf("frames on disk = %v", frames)
	}

	c.Close()
	if frames := listFrames(t, dir); len(frames) != 0 {
		t.Fatalf("Close should remove the last frame, found %v", frames)
	}
	if _, err := c.Request(3); !errors.Is(err, ErrClosed) {
		t.Fatalf("Request after Close = %v", err)
	}
}

func TestLatestImageSurvivesInFlightExtraction(t *testing.T) {
	dir := t.TempDir()
	ext := newGatedExtractor()
	appliedCh := make(chan Frame, 4)
	c := New(Config{Extractor: ext, Dir: dir, OnApply: func(f Frame) { appliedCh <- f }})
	c.SetInput("in.mp4")

	if _, _, err := c.LatestImage(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("LatestImage before any frame = %v", err)
	}

	if _, err := c.Request(1); err != nil {
		t.Fatal(err)
	}
	expectStart(t, ext, 1)
	ext.release <- struct{}{}
	first := <-appliedCh

	// a newer extraction in flight must not disturb the frame being served
	if _, err := c.Request(2); err != nil {
		t.Fatal(err)
	}
	expectStart(t, ext, 2)
	f, data, err := c.LatestImage()
	if err != nil || f.TaskID != first.TaskID || string(data) != "frame in.mp4@1" {
		t.Fatalf("LatestImage = %+v %q %v", f, data, err)
	}

	ext.release <- struct{}{}
	second := <-appliedCh
	f, data, err = c.LatestImage()
	if err != nil || f.TaskID != second.TaskID || string(data) != "frame in.mp4@2" {
		t.Fatalf("LatestImage = %+v %q %v", f, data, err)
	}

	c.Close()
	if _, _, err := c.LatestImage(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("LatestImage after Close = %v", err)
	}
}

func TestFailedExtractionIsNotApplied(t *testing.T) {
	dir := t.TempDir()
	ext := newGatedExtractor()
	ext.fail = true
	called := false
	c := New(Config{Extractor: ext, Dir: dir, OnApply: func(Frame) { called = true }})

	if _, err := c.Request(1); err != nil {
		t.Fatal(err)
	}
	expectStart(t, ext, 1)
	ext.release <- struct{}{}
	c.Close()

	if called {
		t.Fatal("failed extraction must not be applied")
	}
	if frames := listFrames(t, dir); len(frames) != 0 {
		t.Fatalf("partial frame left behind: %v", frames)
	}
}
