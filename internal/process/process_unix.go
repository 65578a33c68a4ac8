// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

//go:build !windows

package process

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	return signalGroup(p.Pid, unix.SIGTERM)
}

func kill(p *os.Process) error {
	return signalGroup(p.Pid, unix.SIGKILL)
}

// signalGroup signals the whole group led by pid, falling back to the pid alone.
func signalGroup(pid int, sig unix.Signal) error {
	if err := unix.Kill(-pid, sig); err != nil {
		if err == unix.ESRCH {
			return unix.Kill(pid, sig)
		}
		return err
	}
	return nil
}
