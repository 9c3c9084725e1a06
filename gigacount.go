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

// Package gigacount counts n-grams over very large corpora.
//
// A GigaCounter has two phases. While buffering, Count and CountBatch hand
// sequences to a shared worker pool that merges them into per-shard hash maps;
// full shards are packed into compact sorted blobs and parked in a backlog so
// the heap stays small. The first read (or UnCount, Save, or an explicit
// Resolve) drains the pipeline once and replays every blob, in parallel, into
// a resolved counter. From then on every call goes straight to that counter.
package gigacount

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"gigacount/internal/counting/codec"
	"gigacount/internal/counting/core"
	"gigacount/internal/counting/counterio"
	"gigacount/internal/counting/telemetry"
	"gigacount/internal/counting/trie"
	"gigacount/pkg/ngram"
)

// Options configures a GigaCounter. The zero value is usable.
type Options struct {
	// Parallelism sets the shard count and the number of resolution workers.
	// 0 uses half the available parallelism (at least 1).
	Parallelism int

	// FlushFiles and FlushTokens are the per-shard thresholds after which a
	// shard is packed into the backlog. 0 uses the defaults (100 tasks,
	// 100000 tokens); a negative value disables the check.
	FlushFiles  int
	FlushTokens int

	// MaxBatch > 0 splits CountBatch input into tasks of at most MaxBatch
	// sequences so that each task re-checks the flush thresholds. 0 lets a
	// single batch overshoot the thresholds by any amount.
	MaxBatch int

	// Scheduler runs merge tasks. nil uses core.SharedScheduler(), unless
	// MaxPending is set.
	Scheduler *core.Scheduler

	// MaxPending > 0 with a nil Scheduler gives the counter a private
	// scheduler with that admission ceiling. It is closed on resolution.
	MaxPending int

	// Backlog holds packed blobs until resolution. nil keeps them in memory.
	// The counter takes ownership and closes it when resolving.
	Backlog core.Backlog

	// NewResolved builds the final counter. nil uses the trie counter.
	NewResolved func(parallelism int) ngram.Resolved

	// Logger receives progress and error reports. nil uses log.Default().
	Logger *log.Logger
}

// resolution is the terminal state: once published it never changes.
type resolution struct {
	counter ngram.Resolved
	err     error
}

// GigaCounter implements ngram.Counter on top of the buffering pipeline.
type GigaCounter struct {
	parallelism int
	maxBatch    int
	sched       *core.Scheduler
	newResolved func(int) ngram.Resolved
	logger      *log.Logger
	ownsSched   bool

	// mu is held shared by submitters and exclusively by the resolver, so no
	// task can be submitted once the resolution barrier has started.
	mu      sync.RWMutex
	pool    *core.ShardPool
	backlog core.Backlog

	res atomic.Pointer[resolution]
}

var _ ngram.Counter = (*GigaCounter)(nil)

// New creates a counter in the buffering phase.
func New(opts Options) *GigaCounter {
	private := opts.Scheduler == nil && opts.MaxPending > 0
	if private {
		opts.Scheduler = core.NewScheduler(opts.Parallelism, opts.MaxPending)
	}
	g := newFacade(opts)
	g.ownsSched = private
	g.pool = core.NewShardPool(g.parallelism, core.Thresholds{Files: opts.FlushFiles, Tokens: opts.FlushTokens})
	g.backlog = opts.Backlog
	if g.backlog == nil {
		g.backlog = core.NewMemoryBacklog()
	}
	return g
}

func newFacade(opts Options) *GigaCounter {
	g := &GigaCounter{
		parallelism: opts.Parallelism,
		maxBatch:    opts.MaxBatch,
		sched:       opts.Scheduler,
		newResolved: opts.NewResolved,
		logger:      opts.Logger,
	}
	if g.parallelism <= 0 {
		g.parallelism = core.DefaultWorkers()
	}
	if g.sched == nil {
		g.sched = core.SharedScheduler()
	}
	if g.newResolved == nil {
		g.newResolved = func(p int) ngram.Resolved { return trie.New(p) }
	}
	if g.logger == nil {
		g.logger = log.Default()
	}
	return g
}

// Count records one occurrence of seq. Before resolution the call returns as
// soon as the merge task is admitted.
func (g *GigaCounter) Count(seq ngram.Sequence) {
	if len(seq) == 0 {
		return
	}
	if r := g.res.Load(); r != nil {
		r.counter.Count(seq)
		return
	}
	g.submit([]ngram.Sequence{seq.Clone()})
}

// CountBatch records one occurrence of each sequence. Before resolution the
// batch is merged by a single task (or MaxBatch-sized tasks).
func (g *GigaCounter) CountBatch(seqs []ngram.Sequence) {
	if r := g.res.Load(); r != nil {
		r.counter.CountBatch(seqs)
		return
	}
	batch := make([]ngram.Sequence, 0, len(seqs))
	for _, s := range seqs {
		if len(s) > 0 {
			batch = append(batch, s.Clone())
		}
	}
	if len(batch) == 0 {
		return
	}
	if g.maxBatch <= 0 {
		g.submit(batch)
		return
	}
	for len(batch) > 0 {
		n := min(g.maxBatch, len(batch))
		g.submit(batch[:n:n])
		batch = batch[n:]
	}
}

// submit hands seqs to a merge task, or to the resolved counter if resolution
// won the race for the lock.
func (g *GigaCounter) submit(seqs []ngram.Sequence) {
	g.mu.RLock()
	if r := g.res.Load(); r != nil {
		g.mu.RUnlock()
		r.counter.CountBatch(seqs)
		return
	}
	defer g.mu.RUnlock()

	i := g.pool.Acquire()
	core.RecordSubmit(len(seqs))
	g.sched.Submit(func() { g.merge(i, seqs) })
	telemetry.ObserveSubmit(len(seqs), g.sched.Pending())
}

// merge runs on a scheduler worker while holding shard i.
func (g *GigaCounter) merge(i int, seqs []ngram.Sequence) {
	defer g.pool.Release(i)
	if g.pool.ShouldFlush(i) {
		if err := g.pool.Flush(i, g.pack); err != nil {
			g.logger.Printf("[gigacount] flush of shard %d failed, keeping buffer: %v", i, err)
		}
	}
	g.pool.Merge(i, seqs, 1)
}

// pack serializes buf and appends the blob to the backlog.
func (g *GigaCounter) pack(buf map[string]int64) error {
	blob, err := codec.Pack(buf)
	if err == nil {
		err = g.backlog.Append(blob)
	}
	core.RecordFlush(len(blob), err)
	telemetry.ObserveFlush(len(blob), err)
	return err
}

// UnCount forces resolution and removes one occurrence of seq.
func (g *GigaCounter) UnCount(seq ngram.Sequence) { g.counter().UnCount(seq) }

// UnCountBatch forces resolution and removes one occurrence of each sequence.
func (g *GigaCounter) UnCountBatch(seqs []ngram.Sequence) { g.counter().UnCountBatch(seqs) }

func (g *GigaCounter) Total() int64 { return g.counter().Total() }

func (g *GigaCounter) Counts(seq ngram.Sequence) [2]int64 { return g.counter().Counts(seq) }

func (g *GigaCounter) CountOfCount(n int, count int64) int {
	return g.counter().CountOfCount(n, count)
}

func (g *GigaCounter) SuccessorCount() int { return g.counter().SuccessorCount() }

func (g *GigaCounter) SuccessorCountOf(ctx ngram.Sequence) int {
	return g.counter().SuccessorCountOf(ctx)
}

func (g *GigaCounter) TopSuccessors(ctx ngram.Sequence, limit int) []uint32 {
	return g.counter().TopSuccessors(ctx, limit)
}

func (g *GigaCounter) DistinctCounts(rng int, ctx ngram.Sequence) []int {
	return g.counter().DistinctCounts(rng, ctx)
}

// Counter resolves if necessary and returns the resolved counter.
func (g *GigaCounter) Counter() ngram.Resolved { return g.counter() }

func (g *GigaCounter) counter() ngram.Resolved { return g.resolve().counter }

// Resolved reports whether the counter left the buffering phase.
func (g *GigaCounter) Resolved() bool { return g.res.Load() != nil }

// Err returns the error recorded by resolution, if any.
func (g *GigaCounter) Err() error {
	if r := g.res.Load(); r != nil {
		return r.err
	}
	return nil
}

// Stats describes the pipeline. Shards and Backlog are zero once resolved.
type Stats struct {
	Resolved    bool
	Parallelism int
	Shards      core.ShardStats
	Backlog     int
	Pending     int
}

func (g *GigaCounter) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := Stats{Resolved: g.res.Load() != nil, Parallelism: g.parallelism, Pending: g.sched.Pending()}
	if g.pool != nil {
		st.Shards = g.pool.Stats()
	}
	if g.backlog != nil {
		st.Backlog = g.backlog.Len()
	}
	return st
}

// Save resolves the counter and writes it to path. Failures are logged and
// returned; the in-memory counter stays usable either way.
func (g *GigaCounter) Save(path string) error {
	c := g.counter()
	wt, ok := c.(io.WriterTo)
	if !ok {
		err := fmt.Errorf("save %s: resolved counter %T is not serializable", path, c)
		g.logger.Printf("[gigacount] %v", err)
		return err
	}
	if err := counterio.Write(wt, path); err != nil {
		g.logger.Printf("[gigacount] %v", err)
		return err
	}
	return nil
}

// Load restores a counter written by Save. The result starts resolved and
// uses opts.Parallelism as the lock-shard hint; NewResolved and Backlog are
// ignored.
func Load(path string, opts Options) (*GigaCounter, error) {
	g := newFacade(opts)
	c, err := counterio.Read(path, g.parallelism)
	if err != nil {
		return nil, err
	}
	g.res.Store(&resolution{counter: c})
	return g, nil
}

// LoadOrNil is Load for callers that treat a missing or unreadable file as
// "no counter": the error is logged and nil is returned.
func LoadOrNil(path string, opts Options) *GigaCounter {
	g, err := Load(path, opts)
	if err != nil {
		logger := opts.Logger
		if logger == nil {
			logger = log.Default()
		}
		logger.Printf("[gigacount] load failed: %v", err)
		return nil
	}
	return g
}
