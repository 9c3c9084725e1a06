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

// Package persistence provides backlog backends that move packed blobs out of
// the Go heap while a large corpus is being counted.
package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gigacount/internal/counting/core"
)

// Options configures BuildBacklog.
type Options struct {
	// SQLitePath is the database file for the sqlite adapter.
	SQLitePath string
	// RedisAddr selects a real Redis server; empty uses an in-process demo store.
	RedisAddr string
	// RedisPrefix namespaces blob keys. Default "gigacount:backlog".
	RedisPrefix string
	// OpTimeout bounds each remote operation. Default 5s.
	OpTimeout time.Duration
}

// BuildBacklog creates the backlog named by adapter: "" or "memory", "sqlite"
// or "redis".
func BuildBacklog(ctx context.Context, adapter string, opts Options) (core.Backlog, error) {
	switch adapter {
	case "", "memory":
		return core.NewMemoryBacklog(), nil
	case "sqlite":
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(os.TempDir(), "gigacount-backlog.db")
		}
		return NewSQLiteBacklog(ctx, path)
	case "redis":
		var kv RedisKV
		if opts.RedisAddr != "" {
			kv = NewGoRedisKV(opts.RedisAddr)
		} else {
			// Dependency-free demo mode.
			kv = NewMemoryKV()
		}
		return NewRedisBacklog(kv, opts.RedisPrefix, opts.OpTimeout), nil
	default:
		return nil, fmt.Errorf("unknown backlog adapter: %s", adapter)
	}
}
