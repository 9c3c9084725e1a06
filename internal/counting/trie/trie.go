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

// Package trie provides the resolved counter: a prefix trie of token counts,
// partitioned by first token so that concurrent bulk inserts mostly touch
// different locks.
package trie

import (
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"gigacount/pkg/ngram"
)

// DefaultShards is used when New is given a non-positive shard count.
const DefaultShards = 16

type node struct {
	count    int64
	children map[uint32]*node
}

func (n *node) child(tok uint32) *node {
	if n.children == nil {
		return nil
	}
	return n.children[tok]
}

type shard struct {
	mu    sync.RWMutex
	roots map[uint32]*node
	// coc[depth][count] is the number of nodes at depth with that count.
	coc map[int]map[int64]int
}

func (s *shard) bump(depth int, old, cur int64) {
	if old > 0 {
		m := s.coc[depth]
		if m[old]--; m[old] == 0 {
			delete(m, old)
		}
	}
	if cur > 0 {
		m := s.coc[depth]
		if m == nil {
			m = make(map[int64]int)
			s.coc[depth] = m
		}
		m[cur]++
	}
}

// forget drops the counts-of-counts entries of a detached subtree.
func (s *shard) forget(n *node, depth int) {
	if n.count > 0 {
		s.bump(depth, n.count, 0)
	}
	for _, ch := range n.children {
		s.forget(ch, depth+1)
	}
}

// lookup returns the node for seq, or nil. Caller holds s.mu.
func (s *shard) lookup(seq ngram.Sequence) *node {
	n := s.roots[seq[0]]
	for _, tok := range seq[1:] {
		if n == nil {
			return nil
		}
		n = n.child(tok)
	}
	return n
}

// Counter is a thread-safe trie counter implementing ngram.Resolved.
type Counter struct {
	shards []shard
	total  atomic.Int64
}

var _ ngram.Resolved = (*Counter)(nil)

// New creates an empty counter with the given number of lock shards.
func New(shards int) *Counter {
	if shards <= 0 {
		shards = DefaultShards
	}
	c := &Counter{shards: make([]shard, shards)}
	for i := range c.shards {
		c.shards[i].roots = make(map[uint32]*node)
		c.shards[i].coc = make(map[int]map[int64]int)
	}
	return c
}

// Shards returns the number of lock shards.
func (c *Counter) Shards() int { return len(c.shards) }

func (c *Counter) shardFor(tok uint32) *shard {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], tok)
	return &c.shards[xxhash.Sum64(b[:])%uint64(len(c.shards))]
}

// Add applies freq to seq and every prefix of it. A negative freq is only
// applied when seq is present at least -freq times; otherwise Add is a no-op.
// Nodes whose count drops to zero are removed.
func (c *Counter) Add(seq ngram.Sequence, freq int64) {
	if len(seq) == 0 || freq == 0 {
		return
	}
	s := c.shardFor(seq[0])
	s.mu.Lock()
	defer s.mu.Unlock()

	if freq < 0 {
		n := s.lookup(seq)
		if n == nil || n.count < -freq {
			return
		}
	}

	parent := s.roots
	var prev, pruned *node
	prunedDepth := 0
	for depth, tok := range seq {
		n := parent[tok]
		if n == nil {
			n = &node{}
			parent[tok] = n
		}
		old := n.count
		n.count += freq
		s.bump(depth+1, old, n.count)
		if n.count == 0 && pruned == nil {
			pruned, prunedDepth = n, depth+1
			if prev == nil {
				delete(s.roots, tok)
			} else {
				delete(prev.children, tok)
			}
		}
		if depth == len(seq)-1 {
			break
		}
		if n.children == nil {
			n.children = make(map[uint32]*node)
		}
		prev = n
		parent = n.children
	}
	if pruned != nil {
		s.forget(pruned, prunedDepth)
	}
	c.total.Add(freq)
}

func (c *Counter) Count(seq ngram.Sequence)   { c.Add(seq, 1) }
func (c *Counter) UnCount(seq ngram.Sequence) { c.Add(seq, -1) }

func (c *Counter) CountBatch(seqs []ngram.Sequence) {
	for _, seq := range seqs {
		c.Add(seq, 1)
	}
}

func (c *Counter) UnCountBatch(seqs []ngram.Sequence) {
	for _, seq := range seqs {
		c.Add(seq, -1)
	}
}

func (c *Counter) Total() int64 { return c.total.Load() }

// Counts returns [count(context), count(seq)]. The context of a single token
// is the root, whose count is Total. An empty sequence yields [Total, Total].
func (c *Counter) Counts(seq ngram.Sequence) [2]int64 {
	total := c.total.Load()
	if len(seq) == 0 {
		return [2]int64{total, total}
	}
	s := c.shardFor(seq[0])
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [2]int64
	if n := s.lookup(seq); n != nil {
		out[1] = n.count
	}
	if len(seq) == 1 {
		out[0] = total
	} else if n := s.lookup(seq[:len(seq)-1]); n != nil {
		out[0] = n.count
	}
	return out
}

func (c *Counter) CountOfCount(n int, count int64) int {
	if n <= 0 || count <= 0 {
		return 0
	}
	out := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		out += s.coc[n][count]
		s.mu.RUnlock()
	}
	return out
}

func (c *Counter) SuccessorCount() int {
	out := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		out += len(s.roots)
		s.mu.RUnlock()
	}
	return out
}

func (c *Counter) SuccessorCountOf(ctx ngram.Sequence) int {
	if len(ctx) == 0 {
		return c.SuccessorCount()
	}
	s := c.shardFor(ctx[0])
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n := s.lookup(ctx); n != nil {
		return len(n.children)
	}
	return 0
}

type successor struct {
	tok   uint32
	count int64
}

// successors snapshots the children of ctx.
func (c *Counter) successors(ctx ngram.Sequence) []successor {
	var out []successor
	if len(ctx) == 0 {
		for i := range c.shards {
			s := &c.shards[i]
			s.mu.RLock()
			for tok, n := range s.roots {
				out = append(out, successor{tok, n.count})
			}
			s.mu.RUnlock()
		}
		return out
	}
	s := c.shardFor(ctx[0])
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n := s.lookup(ctx); n != nil {
		out = make([]successor, 0, len(n.children))
		for tok, ch := range n.children {
			out = append(out, successor{tok, ch.count})
		}
	}
	return out
}

func (c *Counter) TopSuccessors(ctx ngram.Sequence, limit int) []uint32 {
	if limit <= 0 {
		return nil
	}
	succ := c.successors(ctx)
	sort.Slice(succ, func(i, j int) bool {
		if succ[i].count != succ[j].count {
			return succ[i].count > succ[j].count
		}
		return succ[i].tok < succ[j].tok
	})
	out := make([]uint32, 0, min(limit, len(succ)))
	for _, s := range succ[:min(limit, len(succ))] {
		out = append(out, s.tok)
	}
	return out
}

func (c *Counter) DistinctCounts(rng int, ctx ngram.Sequence) []int {
	if rng <= 0 {
		return nil
	}
	out := make([]int, rng)
	for _, s := range c.successors(ctx) {
		out[min(s.count, int64(rng))-1]++
	}
	return out
}
