// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// QuitToken is what FFmpeg reads on stdin as "finish the file and exit".
const QuitToken = "q\n"

// Handle is one live subprocess.
type Handle interface {
	Pid() int
	// Output is the combined stdout/stderr stream. It reaches EOF once every writer has exited.
	Output() io.Reader
	// Quit writes the cooperative quit token to stdin.
	Quit() error
	// Terminate sends the graceful stop signal to the process group.
	Terminate() error
	// Kill sends the hard kill signal to the process group.
	Kill() error
	// Done is closed once the process has been reaped.
	Done() <-chan struct{}
	// ExitCode is valid after Done; -1 when the process died from a signal.
	ExitCode() int
}

// Launcher spawns subprocesses.
type Launcher interface {
	Launch(binary string, args []string) (Handle, error)
}

type execLauncher struct {
	exists func(pid int) (bool, error)
}

// NewExecLauncher returns a Launcher backed by os/exec. Every child gets its own
// process group so signals also reach anything it forks.
func NewExecLauncher() Launcher {
	return &execLauncher{exists: pidExists}
}

func (l *execLauncher) Launch(binary string, args []string) (Handle, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = sysProcAttr()

	// A plain pipe instead of StderrPipe: Wait must not close the read side
	// before the reader has drained it.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	stdin, err := cmd.StdinPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	pw.Close()

	// not reaped yet, so even an instantly exiting child is still listed
	if ok, err := l.exists(cmd.Process.Pid); err == nil && !ok {
		cmd.Process.Kill()
		cmd.Wait()
		pr.Close()
		return nil, fmt.Errorf("pid %d not found in process table after start", cmd.Process.Pid)
	}

	h := &execHandle{
		cmd:    cmd,
		stdin:  stdin,
		output: pr,
		done:   make(chan struct{}),
	}
	go h.wait()
	return h, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output *os.File

	exit struct {
		code int
		lock sync.Mutex
	}
	done chan struct{}
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	h.exit.lock.Lock()
	h.exit.code = code
	h.exit.lock.Unlock()
	close(h.done)
}

func (h *execHandle) Pid() int              { return h.cmd.Process.Pid }
func (h *execHandle) Output() io.Reader     { return h.output }
func (h *execHandle) Done() <-chan struct{} { return h.done }

func (h *execHandle) ExitCode() int {
	h.exit.lock.Lock()
	defer h.exit.lock.Unlock()
	return h.exit.code
}

func (h *execHandle) Quit() error {
	if h.exited() {
		return nil
	}
	_, err := io.WriteString(h.stdin, QuitToken)
	return err
}

func (h *execHandle) Terminate() error {
	if h.exited() {
		return nil
	}
	return terminate(h.cmd.Process)
}

func (h *execHandle) Kill() error {
	if h.exited() {
		return nil
	}
	return kill(h.cmd.Process)
}

func (h *execHandle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
