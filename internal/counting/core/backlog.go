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

package core

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBacklogClosed is returned by Append and Take after Close.
	ErrBacklogClosed = errors.New("backlog: closed")
	// ErrBlobTaken is returned by Take for an index that was already consumed.
	ErrBlobTaken = errors.New("backlog: blob already taken")
	// ErrNoBlob is returned by Take for an index outside [0, Len).
	ErrNoBlob = errors.New("backlog: no such blob")
)

// Backlog is the append-only store of packed blobs waiting for resolution.
// Append is called concurrently by merge tasks. Take consumes blob i exactly
// once and may be called concurrently for distinct indices; it never runs
// concurrently with Append.
type Backlog interface {
	Append(blob []byte) error
	Len() int
	Take(i int) ([]byte, error)
	// Close discards whatever is left and releases backing resources.
	Close() error
}

// MemoryBacklog keeps blobs on the heap. It is the default backlog.
type MemoryBacklog struct {
	mu     sync.Mutex
	blobs  [][]byte
	bytes  int64
	closed bool
}

// NewMemoryBacklog creates an empty in-memory backlog.
func NewMemoryBacklog() *MemoryBacklog {
	return &MemoryBacklog{}
}

func (b *MemoryBacklog) Append(blob []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBacklogClosed
	}
	b.blobs = append(b.blobs, blob)
	b.bytes += int64(len(blob))
	return nil
}

func (b *MemoryBacklog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

// Bytes returns the size of the blobs not yet taken.
func (b *MemoryBacklog) Bytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

func (b *MemoryBacklog) Take(i int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBacklogClosed
	}
	if i < 0 || i >= len(b.blobs) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoBlob, i, len(b.blobs))
	}
	blob := b.blobs[i]
	if blob == nil {
		return nil, fmt.Errorf("%w: index %d", ErrBlobTaken, i)
	}
	b.blobs[i] = nil
	b.bytes -= int64(len(blob))
	return blob, nil
}

func (b *MemoryBacklog) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs = nil
	b.bytes = 0
	b.closed = true
	return nil
}
