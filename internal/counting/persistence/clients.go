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
	"log"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned by RedisKV.GetDel for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// RedisKV is the subset of Redis the backlog needs.
type RedisKV interface {
	Set(ctx context.Context, key string, value []byte) error
	GetDel(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
}

// GoRedisKV implements RedisKV with go-redis.
type GoRedisKV struct{ c *redis.Client }

func NewGoRedisKV(addr string) *GoRedisKV {
	opt := &redis.Options{Addr: addr}
	return &GoRedisKV{c: redis.NewClient(opt)}
}

func (g *GoRedisKV) Set(ctx context.Context, key string, value []byte) error {
	return g.c.Set(ctx, key, value, 0).Err()
}

func (g *GoRedisKV) GetDel(ctx context.Context, key string) ([]byte, error) {
	b, err := g.c.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	return b, err
}

func (g *GoRedisKV) Del(ctx context.Context, keys ...string) error {
	return g.c.Del(ctx, keys...).Err()
}

// Close releases the underlying connection pool.
func (g *GoRedisKV) Close() error { return g.c.Close() }

// MemoryKV is an in-process RedisKV used when no Redis address is configured.
// It logs the first write so demo runs make the fallback visible.
type MemoryKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	logged sync.Once
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logged.Do(func() {
		log.Printf("[redis-demo] no redis address configured; keeping backlog blobs in process (first key %s)", key)
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) GetDel(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	delete(m.data, key)
	return v, nil
}

func (m *MemoryKV) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryKV) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
