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

package trie

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Serialized layout, big endian:
//
//	"GCTR" | uint8 version | int64 total | uint32 roots | roots × node
//	node = uint32 token | int64 count | uint32 children | children × node
//
// Siblings are written in ascending token order, so equal counters encode to
// equal bytes.
const (
	magic    = "GCTR"
	version  = 1
	maxDepth = 1 << 12
)

// ErrFormat is wrapped by every decoding error.
var ErrFormat = errors.New("trie: invalid encoding")

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	buf [8]byte
	err error
}

func (cw *countingWriter) write(b []byte) {
	if cw.err != nil {
		return
	}
	n, err := cw.w.Write(b)
	cw.n += int64(n)
	cw.err = err
}

func (cw *countingWriter) u32(v uint32) {
	binary.BigEndian.PutUint32(cw.buf[:4], v)
	cw.write(cw.buf[:4])
}

func (cw *countingWriter) i64(v int64) {
	binary.BigEndian.PutUint64(cw.buf[:], uint64(v))
	cw.write(cw.buf[:])
}

func sortedTokens(m map[uint32]*node) []uint32 {
	toks := make([]uint32, 0, len(m))
	for t := range m {
		toks = append(toks, t)
	}
	sort.Slice(toks, func(i, j int) bool { return toks[i] < toks[j] })
	return toks
}

func (cw *countingWriter) node(tok uint32, n *node) {
	cw.u32(tok)
	cw.i64(n.count)
	cw.u32(uint32(len(n.children)))
	for _, t := range sortedTokens(n.children) {
		cw.node(t, n.children[t])
	}
}

// WriteTo streams the counter to w. It holds every shard's read lock for the
// duration, so concurrent Adds wait.
func (c *Counter) WriteTo(w io.Writer) (int64, error) {
	for i := range c.shards {
		c.shards[i].mu.RLock()
		defer c.shards[i].mu.RUnlock()
	}
	roots := make(map[uint32]*node)
	for i := range c.shards {
		for t, n := range c.shards[i].roots {
			roots[t] = n
		}
	}

	cw := &countingWriter{w: bufio.NewWriter(w)}
	cw.write([]byte(magic))
	cw.write([]byte{version})
	cw.i64(c.total.Load())
	cw.u32(uint32(len(roots)))
	for _, t := range sortedTokens(roots) {
		cw.node(t, roots[t])
	}
	if cw.err == nil {
		cw.err = cw.w.Flush()
	}
	return cw.n, cw.err
}

// MarshalBinary encodes the counter in the WriteTo format.
func (c *Counter) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type countingReader struct {
	r   *bufio.Reader
	n   int64
	buf [8]byte
}

func (cr *countingReader) read(b []byte) error {
	n, err := io.ReadFull(cr.r, b)
	cr.n += int64(n)
	if err != nil {
		return fmt.Errorf("%w: truncated at byte %d: %v", ErrFormat, cr.n, err)
	}
	return nil
}

func (cr *countingReader) u32() (uint32, error) {
	if err := cr.read(cr.buf[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(cr.buf[:4]), nil
}

func (cr *countingReader) i64() (int64, error) {
	if err := cr.read(cr.buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(cr.buf[:])), nil
}

// readNode decodes one node and its subtree, recording counts-of-counts in s.
func (cr *countingReader) readNode(s *shard, depth int, parentCount int64) (uint32, *node, error) {
	if depth > maxDepth {
		return 0, nil, fmt.Errorf("%w: depth exceeds %d", ErrFormat, maxDepth)
	}
	tok, err := cr.u32()
	if err != nil {
		return 0, nil, err
	}
	count, err := cr.i64()
	if err != nil {
		return 0, nil, err
	}
	if count <= 0 || count > parentCount {
		return 0, nil, fmt.Errorf("%w: count %d at depth %d (parent %d)", ErrFormat, count, depth, parentCount)
	}
	nc, err := cr.u32()
	if err != nil {
		return 0, nil, err
	}
	n := &node{count: count}
	s.bump(depth, 0, count)
	if nc > 0 {
		n.children = make(map[uint32]*node, min(int(nc), 1024))
		var prev uint32
		var sum int64
		for i := uint32(0); i < nc; i++ {
			t, ch, err := cr.readNode(s, depth+1, count)
			if err != nil {
				return 0, nil, err
			}
			if i > 0 && t <= prev {
				return 0, nil, fmt.Errorf("%w: children out of order at depth %d", ErrFormat, depth+1)
			}
			// Each child is at most count, so the sum cannot overflow before
			// the check trips.
			if sum += ch.count; sum > count {
				return 0, nil, fmt.Errorf("%w: children of depth %d node sum to more than its count %d", ErrFormat, depth, count)
			}
			prev = t
			n.children[t] = ch
		}
	}
	return tok, n, nil
}

// ReadFrom replaces the counter's contents with the encoding read from r.
// On error the counter is left empty.
func (c *Counter) ReadFrom(r io.Reader) (int64, error) {
	for i := range c.shards {
		c.shards[i].mu.Lock()
		defer c.shards[i].mu.Unlock()
	}
	c.reset()

	cr := &countingReader{r: bufio.NewReader(r)}
	n, err := c.readLocked(cr)
	if err != nil {
		c.reset()
	}
	return n, err
}

func (c *Counter) reset() {
	for i := range c.shards {
		c.shards[i].roots = make(map[uint32]*node)
		c.shards[i].coc = make(map[int]map[int64]int)
	}
	c.total.Store(0)
}

func (c *Counter) readLocked(cr *countingReader) (int64, error) {
	var head [len(magic) + 1]byte
	if err := cr.read(head[:]); err != nil {
		return cr.n, err
	}
	if string(head[:len(magic)]) != magic {
		return cr.n, fmt.Errorf("%w: bad magic %q", ErrFormat, head[:len(magic)])
	}
	if head[len(magic)] != version {
		return cr.n, fmt.Errorf("%w: unsupported version %d", ErrFormat, head[len(magic)])
	}
	total, err := cr.i64()
	if err != nil {
		return cr.n, err
	}
	if total < 0 {
		return cr.n, fmt.Errorf("%w: negative total %d", ErrFormat, total)
	}
	nr, err := cr.u32()
	if err != nil {
		return cr.n, err
	}
	var sum int64
	var prev uint32
	for i := uint32(0); i < nr; i++ {
		// Peek the token to pick the shard before decoding the subtree.
		b, err := cr.r.Peek(4)
		if err != nil {
			return cr.n, fmt.Errorf("%w: truncated at byte %d: %v", ErrFormat, cr.n, err)
		}
		s := c.shardFor(binary.BigEndian.Uint32(b))
		tok, n, err := cr.readNode(s, 1, total)
		if err != nil {
			return cr.n, err
		}
		if i > 0 && tok <= prev {
			return cr.n, fmt.Errorf("%w: roots out of order", ErrFormat)
		}
		prev = tok
		s.roots[tok] = n
		sum += n.count
	}
	if sum != total {
		return cr.n, fmt.Errorf("%w: total %d does not match root counts %d", ErrFormat, total, sum)
	}
	c.total.Store(total)
	return cr.n, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary.
func (c *Counter) UnmarshalBinary(data []byte) error {
	_, err := c.ReadFrom(bytes.NewReader(data))
	return err
}
