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

package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"gigacount/internal/counting/core"
)

const defaultOpTimeout = 5 * time.Second

// RedisBacklog stores each blob under its own key, <prefix>:<run>:<index>,
// where run is a ULID unique to this backlog. Take uses GETDEL so a blob is
// consumed exactly once.
type RedisBacklog struct {
	client  RedisKV
	prefix  string
	run     string
	timeout time.Duration

	mu     sync.Mutex
	n      int
	closed bool
}

// NewRedisBacklog creates a backlog over client. Empty prefix and zero timeout
// select the defaults.
func NewRedisBacklog(client RedisKV, prefix string, timeout time.Duration) *RedisBacklog {
	if prefix == "" {
		prefix = "gigacount:backlog"
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &RedisBacklog{client: client, prefix: prefix, run: ulid.Make().String(), timeout: timeout}
}

// BlobKey returns the Redis key holding blob i.
func (b *RedisBacklog) BlobKey(i int) string {
	return fmt.Sprintf("%s:%s:%d", b.prefix, b.run, i)
}

func (b *RedisBacklog) Append(blob []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return core.ErrBacklogClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.client.Set(ctx, b.BlobKey(b.n), blob); err != nil {
		return fmt.Errorf("redis backlog append %d: %w", b.n, err)
	}
	b.n++
	return nil
}

func (b *RedisBacklog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *RedisBacklog) Take(i int) ([]byte, error) {
	b.mu.Lock()
	n, closed := b.n, b.closed
	b.mu.Unlock()
	if closed {
		return nil, core.ErrBacklogClosed
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: index %d of %d", core.ErrNoBlob, i, n)
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	blob, err := b.client.GetDel(ctx, b.BlobKey(i))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: index %d", core.ErrBlobTaken, i)
	}
	if err != nil {
		return nil, fmt.Errorf("redis backlog take %d: %w", i, err)
	}
	return blob, nil
}

// Close deletes any blobs that were never taken and closes the client when
// it is an io.Closer.
func (b *RedisBacklog) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	const chunk = 512
	for start := 0; start < b.n; start += chunk {
		keys := make([]string, 0, chunk)
		for i := start; i < min(b.n, start+chunk); i++ {
			keys = append(keys, b.BlobKey(i))
		}
		if err := b.client.Del(ctx, keys...); err != nil {
			log.Printf("[backlog] redis cleanup of run %s failed: %v", b.run, err)
			return fmt.Errorf("redis backlog close: %w", err)
		}
	}
	if c, ok := b.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
