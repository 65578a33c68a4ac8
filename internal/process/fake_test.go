package process_test

import (
	"errors"
	"io"
	"sync"

	"github.com/ZSC714725/clipdesk/internal/process"
)

// fakeHandle is a controllable subprocess double.
type fakeHandle struct {
	pid int
	r   *io.PipeReader
	w   *io.PipeWriter

	honorQuit bool
	honorTerm bool
	ignoreAll bool

	mu    sync.Mutex
	calls []string
	code  int

	once sync.Once
	done chan struct{}
}

func newFakeHandle(pid int) *fakeHandle {
	r, w := io.Pipe()
	return &fakeHandle{pid: pid, r: r, w: w, done: make(chan struct{})}
}

func (h *fakeHandle) Pid() int              { return h.pid }
func (h *fakeHandle) Output() io.Reader     { return h.r }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code
}

func (h *fakeHandle) Quit() error {
	h.record("quit")
	if h.honorQuit && !h.ignoreAll {
		h.exit(255)
	}
	return nil
}

func (h *fakeHandle) Terminate() error {
	h.record("terminate")
	if h.honorTerm && !h.ignoreAll {
		h.exit(-1)
	}
	return nil
}

func (h *fakeHandle) Kill() error {
	h.record("kill")
	if !h.ignoreAll {
		h.exit(-1)
	}
	return nil
}

// emit writes status lines as the process would.
func (h *fakeHandle) emit(lines ...string) {
	for _, l := range lines {
		io.WriteString(h.w, l+"\r")
	}
}

func (h *fakeHandle) exit(code int) {
	h.once.Do(func() {
		h.mu.Lock()
		h.code = code
		h.mu.Unlock()
		h.w.Close()
		close(h.done)
	})
}

func (h *fakeHandle) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *fakeHandle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

type fakeLauncher struct {
	handle process.Handle
	err    error
}

func (l *fakeLauncher) Launch(binary string, args []string) (process.Handle, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.handle == nil {
		return nil, errors.New("no handle")
	}
	return l.handle, nil
}
