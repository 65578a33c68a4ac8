// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package process

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry tracks every live supervisor so they can all be stopped at once.
// It does not own them: entries are added at Start and removed once the process has exited.
type Registry struct {
	entries map[string]*Supervisor
	lock    sync.Mutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Supervisor)}
}

// Register adds s under its id.
func (r *Registry) Register(s *Supervisor) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.entries[s.ID()] = s
}

// Deregister removes id. Unknown ids are ignored.
func (r *Registry) Deregister(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.entries, id)
}

// Get returns the live supervisor for id.
func (r *Registry) Get(id string) (*Supervisor, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	s, ok := r.entries[id]
	return s, ok
}

// List returns a snapshot sorted by id.
func (r *Registry) List() []*Supervisor {
	r.lock.Lock()
	list := make([]*Supervisor, 0, len(r.entries))
	for _, s := range r.entries {
		list = append(list, s)
	}
	r.lock.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// Len is the number of live supervisors.
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.entries)
}

// ShutdownAll shuts every registered supervisor down concurrently and returns once
// each has completed, onComplete included. Every wait is bounded by the supervisor's
// tiers and drain timeout, so this never blocks forever.
func (r *Registry) ShutdownAll() error {
	list := r.List()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range list {
		wg.Add(1)
		go func(s *Supervisor) {
			defer wg.Done()
			if err := s.Shutdown(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.ID(), err))
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	return errors.Join(errs...)
}
