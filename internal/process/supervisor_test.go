package process_test

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZSC714725/clipdesk/internal/ffmpeg/parse"
	"github.com/ZSC714725/clipdesk/internal/job"
	"github.com/ZSC714725/clipdesk/internal/process"
)

// recorder collects progress and completion callbacks.
type recorder struct {
	mu       sync.Mutex
	progress []float64
	results  []job.Result
	// progress calls seen when onComplete ran
	atComplete int
}

func (r *recorder) onProgress(f float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, f)
}

func (r *recorder) onComplete(res job.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	r.atComplete = len(r.progress)
}

func (r *recorder) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.progress...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func writeOutput(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.mp4")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newSupervisor(h process.Handle, reg *process.Registry) *process.Supervisor {
	return process.New(process.Config{
		Launcher:     &fakeLauncher{handle: h},
		Parser:       parse.New(parse.Config{}),
		Registry:     reg,
		PollInterval: 5 * time.Millisecond,
		Tiers:        process.Tiers{Quit: 20 * time.Millisecond, Terminate: 20 * time.Millisecond, Kill: 20 * time.Millisecond},
	})
}

func TestSupervisorProgressIsMonotonic(t *testing.T) {
	out := writeOutput(t, "data")
	h := newFakeHandle(100)
	s := newSupervisor(h, nil)
	rec := &recorder{}

	j := job.Job{Kind: job.KindTrim, OutputPath: out, DeclaredDuration: 120, Binary: "ffmpeg"}
	if err := s.Start(j, rec.onProgress, rec.onComplete); err != nil {
		t.Fatal(err)
	}

	h.emit(
		"frame=1 time=00:00:30.00 speed=1x",
		"frame=2 time=01:00:00.00 speed=1x", // corrupt
		"frame=3 time=00:00:20.00 speed=1x", // regress
		"garbage time=xx",
		"frame=4 time=00:01:00.00 speed=1x",
	)
	h.exit(0)

	res := s.Wait()
	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if got := rec.snapshot(); !reflect.DeepEqual(got, []float64{0.25, 0.5, 1}) {
		t.Fatalf("progress = %v", got)
	}
	if len(rec.results) != 1 || rec.atComplete != 3 {
		t.Fatalf("onComplete fired %d times after %d progress calls", len(rec.results), rec.atComplete)
	}
	if s.IsRunning() || s.Status().State != "exited" {
		t.Fatalf("state = %s", s.Status().State)
	}
}

func TestSupervisorAdoptsStreamDuration(t *testing.T) {
	out := writeOutput(t, "data")
	h := newFakeHandle(101)
	s := newSupervisor(h, nil)
	rec := &recorder{}

	if err := s.Start(job.Job{Kind: job.KindDenoise, OutputPath: out}, rec.onProgress, rec.onComplete); err != nil {
		t.Fatal(err)
	}
	h.emit("  Duration: 00:00:10.00, start: 0.000000", "time=00:00:02.50")
	h.exit(0)
	s.Wait()

	if got := rec.snapshot(); !reflect.DeepEqual(got, []float64{0.25, 1}) {
		t.Fatalf("progress = %v", got)
	}
}

func TestSupervisorEmptyOutputFailsAndIsRemoved(t *testing.T) {
	out := writeOutput(t, "")
	h := newFakeHandle(102)
	s := newSupervisor(h, nil)
	rec := &recorder{}

	if err := s.Start(job.Job{Kind: job.KindDenoise, OutputPath: out}, rec.onProgress, rec.onComplete); err != nil {
		t.Fatal(err)
	}
	h.exit(0)
	res := s.Wait()

	var empty *job.EmptyOutputError
	if !errors.As(res.Err, &empty) || !empty.OutputExisted {
		t.Fatalf("expected EmptyOutputError, got %v", res.Err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("empty output should be deleted, stat err = %v", err)
	}
	for _, f := range rec.snapshot() {
		if f >= 1 {
			t.Fatal("failed job must not report 1.0")
		}
	}
}

func TestSupervisorNonZeroExit(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing.mp4")
	h := newFakeHandle(103)
	s := newSupervisor(h, nil)

	if err := s.Start(job.Job{Kind: job.KindMerge, OutputPath: out}, nil, nil); err != nil {
		t.Fatal(err)
	}
	h.exit(1)
	res := s.Wait()

	var nz *job.NonZeroExitError
	if !errors.As(res.Err, &nz) || nz.ExitCode != 1 || nz.OutputExisted {
		t.Fatalf("expected NonZeroExitError, got %#v", res.Err)
	}
}

func TestSupervisorLaunchError(t *testing.T) {
	s := process.New(process.Config{Launcher: &fakeLauncher{err: exec.ErrNotFound}})
	called := false
	err := s.Start(job.Job{Kind: job.KindTrim, Binary: "nope"}, nil, func(job.Result) { called = true })

	var le *job.LaunchError
	if !errors.As(err, &le) || !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected LaunchError, got %v", err)
	}
	if called {
		t.Fatal("onComplete must not fire for a launch failure")
	}
	if res := s.Wait(); res.Err == nil {
		t.Fatal("Wait should report the launch failure")
	}
	if err := s.Start(job.Job{}, nil, nil); !errors.Is(err, process.ErrAlreadyStarted) {
		t.Fatalf("second Start = %v", err)
	}
}

func TestSupervisorOutputSizeFallback(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mkv")
	h := newFakeHandle(104)
	s := newSupervisor(h, nil)
	rec := &recorder{}

	j := job.Job{Kind: job.KindMerge, OutputPath: out, ExpectedBytes: 1000}
	if err := s.Start(j, rec.onProgress, rec.onComplete); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(out, make([]byte, 500), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "size progress", func() bool { return len(rec.snapshot()) > 0 })

	if err := os.WriteFile(out, make([]byte, 5000), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "capped size progress", func() bool { return s.Fraction() == process.SizeFallbackWeight })

	h.exit(0)
	s.Wait()

	got := rec.snapshot()
	if got[0] != 0.45 || got[len(got)-1] != 1 {
		t.Fatalf("progress = %v", got)
	}
}

func TestSupervisorStallHoldsAt95(t *testing.T) {
	out := writeOutput(t, "data")
	h := newFakeHandle(105)
	s := process.New(process.Config{
		Launcher:     &fakeLauncher{handle: h},
		Parser:       parse.New(parse.Config{}),
		PollInterval: 5 * time.Millisecond,
		StallTimeout: 30 * time.Millisecond,
	})
	rec := &recorder{}

	if err := s.Start(job.Job{Kind: job.KindBurnSubtitle, OutputPath: out, DeclaredDuration: 120}, rec.onProgress, rec.onComplete); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "stall", func() bool { return s.Fraction() == process.StallFraction })

	h.emit("time=00:01:00.00")
	h.exit(0)
	s.Wait()

	if got := rec.snapshot(); !reflect.DeepEqual(got, []float64{process.StallFraction, 1}) {
		t.Fatalf("progress = %v", got)
	}
}

func TestSupervisorNoStallBeforeOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	h := newFakeHandle(110)
	s := process.New(process.Config{
		Launcher:     &fakeLauncher{handle: h},
		Parser:       parse.New(parse.Config{}),
		PollInterval: 5 * time.Millisecond,
		StallTimeout: 20 * time.Millisecond,
	})
	rec := &recorder{}

	if err := s.Start(job.Job{Kind: job.KindBurnSubtitle, OutputPath: out, DeclaredDuration: 120}, rec.onProgress, rec.onComplete); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("progress before any output = %v", got)
	}

	if err := os.WriteFile(out, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "stall", func() bool { return s.Fraction() == process.StallFraction })

	h.exit(0)
	s.Wait()
	if got := rec.snapshot(); !reflect.DeepEqual(got, []float64{process.StallFraction, 1}) {
		t.Fatalf("progress = %v", got)
	}
}

func TestSupervisorMergeIgnoresStreamDuration(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mkv")
	h := newFakeHandle(111)
	s := newSupervisor(h, nil)
	rec := &recorder{}

	j := job.Job{Kind: job.KindMerge, OutputPath: out, ExpectedBytes: 1000}
	if err := s.Start(j, rec.onProgress, rec.onComplete); err != nil {
		t.Fatal(err)
	}
	// the first input's duration is not the merged duration
	h.emit("  Duration: 00:00:10.00, start: 0.000000", "time=00:00:09.00")
	if err := os.WriteFile(out, make([]byte, 500), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "size progress", func() bool { return len(rec.snapshot()) > 0 })

	h.exit(0)
	s.Wait()
	if got := rec.snapshot(); !reflect.DeepEqual(got, []float64{0.45, 1}) {
		t.Fatalf("progress = %v", got)
	}
}

func TestSupervisorKeepsReadingAfterOverlongLine(t *testing.T) {
	out := writeOutput(t, "data")
	h := newFakeHandle(112)
	s := newSupervisor(h, nil)
	rec := &recorder{}

	if err := s.Start(job.Job{Kind: job.KindDenoise, OutputPath: out, DeclaredDuration: 10}, rec.onProgress, rec.onComplete); err != nil {
		t.Fatal(err)
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.emit(strings.Repeat("a", 1200*1024))
		io.WriteString(h.w, strings.Repeat("b", 300*1024))
		h.emit("time=00:00:05.00")
	}()
	select {
	case <-written:
	case <-time.After(2 * time.Second):
		t.Fatal("status writes blocked after an over-long line")
	}

	h.exit(0)
	if res := s.Wait(); !res.Success() {
		t.Fatalf("result = %+v", res)
	}
	if got := rec.snapshot(); !reflect.DeepEqual(got, []float64{1}) {
		t.Fatalf("progress = %v", got)
	}
}

func TestCancelEscalatesThroughAllTiers(t *testing.T) {
	out := writeOutput(t, "partial")
	h := newFakeHandle(106) // ignores quit and terminate
	s := newSupervisor(h, nil)
	if err := s.Start(job.Job{Kind: job.KindBurnSubtitle, OutputPath: out}, nil, nil); err != nil {
		t.Fatal(err)
	}

	begin := time.Now()
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel = %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 60*time.Millisecond+500*time.Millisecond {
		t.Fatalf("Cancel took %s", elapsed)
	}
	if got := h.Calls(); !reflect.DeepEqual(got, []string{"quit", "terminate", "kill"}) {
		t.Fatalf("calls = %v", got)
	}

	res := s.Wait()
	var ce *job.CancelledError
	if !res.Cancelled || !errors.As(res.Err, &ce) {
		t.Fatalf("expected cancellation, got %+v", res)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal("non-empty partial output should be kept")
	}
}

func TestCancelStopsAtQuitWhenHonoured(t *testing.T) {
	h := newFakeHandle(107)
	h.honorQuit = true
	s := newSupervisor(h, nil)
	if err := s.Start(job.Job{Kind: job.KindMerge, OutputPath: writeOutput(t, "x")}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(); err != nil {
		t.Fatal(err)
	}
	if got := h.Calls(); !reflect.DeepEqual(got, []string{"quit"}) {
		t.Fatalf("calls = %v", got)
	}
	if err := s.Cancel(); err != nil {
		t.Fatalf("second Cancel = %v", err)
	}
}

func TestCancelBeforeStart(t *testing.T) {
	s := process.New(process.Config{})
	if err := s.Cancel(); !errors.Is(err, process.ErrNotStarted) {
		t.Fatalf("Cancel = %v", err)
	}
}

func TestEscalateGivesUpWithinBound(t *testing.T) {
	h := newFakeHandle(108)
	h.ignoreAll = true
	tiers := process.Tiers{Quit: 10 * time.Millisecond, Terminate: 10 * time.Millisecond, Kill: 10 * time.Millisecond}

	begin := time.Now()
	err := process.Escalate(h, tiers, nil)
	if !errors.Is(err, process.ErrShutdownTimeout) {
		t.Fatalf("Escalate = %v", err)
	}
	if elapsed := time.Since(begin); elapsed > tiers.Total()+200*time.Millisecond {
		t.Fatalf("Escalate took %s", elapsed)
	}
	h.exit(-1)
}

func TestEscalateSkipsExitedProcess(t *testing.T) {
	h := newFakeHandle(109)
	h.exit(0)
	if err := process.Escalate(h, process.DefaultTiers, nil); err != nil {
		t.Fatal(err)
	}
	if len(h.Calls()) != 0 {
		t.Fatalf("calls = %v", h.Calls())
	}
}

func TestRegistryShutdownAll(t *testing.T) {
	reg := process.NewRegistry()
	var (
		sups     []*process.Supervisor
		mu       sync.Mutex
		finished int
	)
	onComplete := func(job.Result) {
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		finished++
		mu.Unlock()
	}
	for i := 0; i < 3; i++ {
		h := newFakeHandle(200 + i)
		h.honorTerm = true
		s := newSupervisor(h, reg)
		if err := s.Start(job.Job{Kind: job.KindTrim, OutputPath: writeOutput(t, "x")}, nil, onComplete); err != nil {
			t.Fatal(err)
		}
		sups = append(sups, s)
	}
	if reg.Len() != 3 {
		t.Fatalf("registry has %d entries", reg.Len())
	}
	if _, ok := reg.Get(sups[0].ID()); !ok {
		t.Fatal("Get should find a live supervisor")
	}

	if err := reg.ShutdownAll(); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if finished != 3 {
		t.Fatalf("ShutdownAll returned with %d of 3 completions done", finished)
	}
	mu.Unlock()
	for _, s := range sups {
		if res := s.Wait(); !res.Cancelled {
			t.Fatalf("%s not cancelled", s.ID())
		}
	}
	if reg.Len() != 0 {
		t.Fatalf("registry still has %d entries", reg.Len())
	}
}

func TestExecSupervisorRealProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	out := filepath.Join(t.TempDir(), "out.bin")
	s := process.New(process.Config{
		Parser:  parse.New(parse.Config{}),
		Sampler: process.NewSysSampler(),
	})
	rec := &recorder{}
	j := job.Job{
		Kind:       job.KindTrim,
		OutputPath: out,
		Binary:     "sh",
		Argv:       []string{"-c", `printf 'Duration: 00:00:02.00\ntime=00:00:01.00\n' >&2; printf data > "$0"`, out},
	}
	if err := s.Start(j, rec.onProgress, rec.onComplete); err != nil {
		t.Fatal(err)
	}
	res := s.Wait()
	if !res.Success() || res.OutputSize != 4 {
		t.Fatalf("result = %+v", res)
	}
	if got := rec.snapshot(); !reflect.DeepEqual(got, []float64{0.5, 1}) {
		t.Fatalf("progress = %v", got)
	}
}

func TestExecSupervisorKillsStubbornProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tiers := process.Tiers{Quit: 100 * time.Millisecond, Terminate: 100 * time.Millisecond, Kill: 2 * time.Second}
	reg := process.NewRegistry()
	s := process.New(process.Config{Registry: reg, Tiers: tiers})
	j := job.Job{
		Kind:       job.KindDenoise,
		OutputPath: filepath.Join(t.TempDir(), "never.wav"),
		Binary:     "sh",
		Argv:       []string{"-c", `trap "" TERM; while :; do sleep 0.05; done`},
	}
	if err := s.Start(j, nil, nil); err != nil {
		t.Fatal(err)
	}

	begin := time.Now()
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel = %v", err)
	}
	if elapsed := time.Since(begin); elapsed > tiers.Total()+time.Second {
		t.Fatalf("Cancel took %s", elapsed)
	}

	res := s.Wait()
	if !res.Cancelled || res.Success() {
		t.Fatalf("result = %+v", res)
	}
	if reg.Len() != 0 {
		t.Fatal("exited supervisor should be deregistered")
	}
}
