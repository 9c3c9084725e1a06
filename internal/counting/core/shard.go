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

// Package core holds the buffering side of the counting pipeline: the shard
// pool that absorbs concurrent writes, the shared task scheduler that feeds it,
// and the backlog of packed blobs awaiting resolution.
package core

import (
	"sync"
	"sync/atomic"

	"gigacount/pkg/ngram"
)

const (
	// DefaultFlushFiles is the number of merged tasks after which a shard is packed.
	DefaultFlushFiles = 100
	// DefaultFlushTokens is the number of merged tokens after which a shard is packed.
	DefaultFlushTokens = 1000 * DefaultFlushFiles
)

// Thresholds control when a shard buffer is packed into the backlog. A shard is
// flushed once either counter strictly exceeds its limit. Zero selects the
// default; a negative value disables that check.
type Thresholds struct {
	Files  int
	Tokens int
}

func (t Thresholds) withDefaults() Thresholds {
	if t.Files == 0 {
		t.Files = DefaultFlushFiles
	}
	if t.Tokens == 0 {
		t.Tokens = DefaultFlushTokens
	}
	return t
}

// shard is one partition of the write buffer. buffer, files and tokens are
// owned by whoever holds occupied; occupied itself is guarded by the pool mutex.
type shard struct {
	buffer   map[string]int64
	occupied bool
	files    int
	tokens   int
}

// ShardPool is a fixed set of independent write buffers. Each shard is used by
// at most one task at a time, which is what lets tasks merge without locking.
type ShardPool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	shards []shard
	cursor int
	busy   int
	th     Thresholds

	acquired atomic.Int64
	waits    atomic.Int64
}

// NewShardPool creates n empty shards (at least one).
func NewShardPool(n int, th Thresholds) *ShardPool {
	n = max(1, n)
	p := &ShardPool{shards: make([]shard, n), th: th.withDefaults()}
	for i := range p.shards {
		p.shards[i].buffer = make(map[string]int64)
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Size returns the number of shards.
func (p *ShardPool) Size() int { return len(p.shards) }

// Thresholds returns the effective flush thresholds.
func (p *ShardPool) Thresholds() Thresholds { return p.th }

// Acquire claims an unoccupied shard, scanning round-robin from the position
// after the last claimed one. It waits while every shard is occupied; release
// of any shard wakes it.
func (p *ShardPool) Acquire() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.shards)
	for {
		for k := 0; k < n; k++ {
			i := (p.cursor + k) % n
			if !p.shards[i].occupied {
				p.shards[i].occupied = true
				p.cursor = (i + 1) % n
				p.busy++
				p.acquired.Add(1)
				return i
			}
		}
		p.waits.Add(1)
		p.cond.Wait()
	}
}

// Release hands shard i back. It must be the last thing the holder does with
// the shard: everything written before Release is visible to the next holder
// and to WaitIdle.
func (p *ShardPool) Release(i int) {
	p.mu.Lock()
	p.shards[i].occupied = false
	p.busy--
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Merge adds multiplicity to every sequence in seqs. Only the holder of shard
// i may call it. Empty sequences are ignored.
func (p *ShardPool) Merge(i int, seqs []ngram.Sequence, multiplicity int64) {
	s := &p.shards[i]
	for _, seq := range seqs {
		if len(seq) == 0 {
			continue
		}
		s.buffer[seq.Key()] += multiplicity
		s.tokens += len(seq)
	}
	s.files++
}

// ShouldFlush reports whether shard i crossed either threshold. Holder only.
func (p *ShardPool) ShouldFlush(i int) bool {
	s := &p.shards[i]
	return (p.th.Files >= 0 && s.files > p.th.Files) ||
		(p.th.Tokens >= 0 && s.tokens > p.th.Tokens)
}

// Flush hands the buffer of shard i to pack. On success the shard starts over
// with an empty buffer. On failure the buffer is kept so nothing is lost, but
// the counters restart: the retry happens at the next threshold crossing, not
// on every following task. Holder only.
func (p *ShardPool) Flush(i int, pack func(buf map[string]int64) error) error {
	s := &p.shards[i]
	s.files = 0
	s.tokens = 0
	if len(s.buffer) > 0 {
		if err := pack(s.buffer); err != nil {
			return err
		}
	}
	s.buffer = make(map[string]int64)
	return nil
}

// WaitIdle blocks until no shard is occupied.
func (p *ShardPool) WaitIdle() {
	p.mu.Lock()
	for p.busy > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

// Drain visits every non-empty buffer and then drops all of them. The caller
// must guarantee that no shard can be acquired concurrently.
func (p *ShardPool) Drain(fn func(i int, buf map[string]int64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.shards {
		if len(p.shards[i].buffer) > 0 {
			fn(i, p.shards[i].buffer)
		}
		p.shards[i] = shard{}
	}
}

// ShardStats is a point-in-time view used by tests and the summary printer.
type ShardStats struct {
	Busy     int
	Acquired int64
	Waits    int64
	Entries  int
}

// Stats returns the current pool statistics. Entries is only exact when the
// pool is idle.
func (p *ShardPool) Stats() ShardStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := ShardStats{Busy: p.busy, Acquired: p.acquired.Load(), Waits: p.waits.Load()}
	for i := range p.shards {
		if !p.shards[i].occupied {
			st.Entries += len(p.shards[i].buffer)
		}
	}
	return st
}
