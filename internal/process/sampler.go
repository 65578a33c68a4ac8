// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package process

import (
	"sync"

	gopsutilprocess "github.com/shirou/gopsutil/v3/process"
)

// Sampler reports CPU and memory usage of a running process.
type Sampler interface {
	Start(pid int) error
	Stop()
	Current() (cpu float64, memory uint64)
}

// sysSampler 使用 gopsutil 采集进程 CPU 和内存
type sysSampler struct {
	mu   sync.RWMutex
	proc *gopsutilprocess.Process
}

// NewSysSampler 创建基于 gopsutil 的采样器
func NewSysSampler() Sampler {
	return &sysSampler{}
}

func (l *sysSampler) Start(pid int) error {
	proc, err := gopsutilprocess.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.proc = proc
	l.mu.Unlock()
	return nil
}

func (l *sysSampler) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.proc = nil
}

func (l *sysSampler) Current() (cpu float64, memory uint64) {
	l.mu.RLock()
	proc := l.proc
	l.mu.RUnlock()
	if proc == nil {
		return 0, 0
	}
	if cpuPct, err := proc.CPUPercent(); err == nil {
		cpu = cpuPct
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		memory = memInfo.RSS
	}
	return cpu, memory
}

type nullSampler struct{}

// NewNullSampler returns a sampler that always reports zero
func NewNullSampler() Sampler { return nullSampler{} }

func (nullSampler) Start(pid int) error        { return nil }
func (nullSampler) Stop()                      {}
func (nullSampler) Current() (float64, uint64) { return 0, 0 }

// pidExists looks the pid up in the OS process table. A spawned child that was
// never reaped is still listed, so a miss right after Start means the spawn failed.
func pidExists(pid int) (bool, error) {
	return gopsutilprocess.PidExists(int32(pid))
}
