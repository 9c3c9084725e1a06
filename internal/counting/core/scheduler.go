// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file implements the worker pool that executes merge tasks.
package core

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// DefaultMaxPending is the admission ceiling: Submit blocks while this many
// tasks are admitted but unfinished.
const DefaultMaxPending = 100

// DefaultWorkers is half the available parallelism, at least one.
func DefaultWorkers() int {
	return max(1, runtime.GOMAXPROCS(0)/2)
}

// Scheduler is a fixed-size pool of goroutines running fire-and-forget tasks
// with admission control. The number of pending tasks (queued or running)
// never exceeds the configured ceiling; producers wait instead.
type Scheduler struct {
	tasks      chan func()
	mu         sync.Mutex
	cond       *sync.Cond
	pending    int
	peak       int
	maxPending int
	workers    int
	closed     bool
	wg         sync.WaitGroup
	stopped    uint32
	completed  atomic.Int64
}

// NewScheduler starts workers goroutines. Zero or negative arguments select
// DefaultWorkers and DefaultMaxPending.
func NewScheduler(workers, maxPending int) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	s := &Scheduler{
		tasks:      make(chan func(), maxPending),
		maxPending: maxPending,
		workers:    workers,
	}
	s.cond = sync.NewCond(&s.mu)
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer s.wg.Done()
			for task := range s.tasks {
				s.run(task)
			}
		}()
	}
	return s
}

var (
	sharedOnce sync.Once
	shared     *Scheduler
)

// SharedScheduler returns the process-wide scheduler, creating it with the
// defaults on first use. It lives until Close is called on it, normally at
// process exit; a closed scheduler keeps working by running tasks inline.
func SharedScheduler() *Scheduler {
	sharedOnce.Do(func() {
		shared = NewScheduler(0, 0)
	})
	return shared
}

// Submit admits task for asynchronous execution, waiting while the pending
// count is at the ceiling. After Close the task runs on the caller's goroutine.
func (s *Scheduler) Submit(task func()) {
	s.mu.Lock()
	for s.pending >= s.maxPending && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		s.mu.Unlock()
		task()
		s.completed.Add(1)
		return
	}
	s.pending++
	if s.pending > s.peak {
		s.peak = s.pending
	}
	// Never blocks: the channel holds maxPending and pending <= maxPending.
	s.tasks <- task
	s.mu.Unlock()
}

func (s *Scheduler) run(task func()) {
	defer func() {
		s.completed.Add(1)
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
		s.cond.Broadcast()
	}()
	task()
}

// Pending returns the number of admitted, unfinished tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// PeakPending returns the highest pending count observed so far.
func (s *Scheduler) PeakPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// MaxPending returns the admission ceiling.
func (s *Scheduler) MaxPending() int { return s.maxPending }

// Workers returns the pool size.
func (s *Scheduler) Workers() int { return s.workers }

// Completed returns the number of tasks that finished.
func (s *Scheduler) Completed() int64 { return s.completed.Load() }

// Close stops accepting queued work, waits for already admitted tasks and
// stops the workers. It is safe to call more than once.
func (s *Scheduler) Close() {
	if !atomic.CompareAndSwapUint32(&s.stopped, 0, 1) {
		return
	}
	s.mu.Lock()
	s.closed = true
	close(s.tasks)
	s.mu.Unlock()
	s.cond.Broadcast()
	s.wg.Wait()
}
