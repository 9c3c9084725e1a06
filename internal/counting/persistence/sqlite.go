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
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"gigacount/internal/counting/core"
)

// SQLiteBacklog spills blobs into a SQLite table so the buffering phase only
// keeps shard buffers on the heap. Several backlogs may share one file; each
// is isolated by a ULID run id.
type SQLiteBacklog struct {
	db   *sql.DB
	run  string
	path string

	mu     sync.Mutex
	n      int
	closed bool
}

// NewSQLiteBacklog opens (or creates) the database at path with WAL mode.
func NewSQLiteBacklog(ctx context.Context, path string) (*SQLiteBacklog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initBacklogSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBacklog{db: db, run: ulid.Make().String(), path: path}, nil
}

func initBacklogSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS backlog_blobs (
	run TEXT NOT NULL,
	idx INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY(run, idx)
);`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Path returns the database file.
func (b *SQLiteBacklog) Path() string { return b.path }

func (b *SQLiteBacklog) Append(blob []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return core.ErrBacklogClosed
	}
	if _, err := b.db.Exec(`INSERT INTO backlog_blobs(run, idx, data) VALUES(?, ?, ?)`, b.run, b.n, blob); err != nil {
		return fmt.Errorf("sqlite backlog append %d: %w", b.n, err)
	}
	b.n++
	return nil
}

func (b *SQLiteBacklog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *SQLiteBacklog) Take(i int) ([]byte, error) {
	b.mu.Lock()
	n, closed := b.n, b.closed
	b.mu.Unlock()
	if closed {
		return nil, core.ErrBacklogClosed
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: index %d of %d", core.ErrNoBlob, i, n)
	}
	var blob []byte
	err := b.db.QueryRow(`DELETE FROM backlog_blobs WHERE run = ? AND idx = ? RETURNING data`, b.run, i).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: index %d", core.ErrBlobTaken, i)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite backlog take %d: %w", i, err)
	}
	return blob, nil
}

// Close removes this run's remaining rows and closes the database.
func (b *SQLiteBacklog) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	_, err := b.db.Exec(`DELETE FROM backlog_blobs WHERE run = ?`, b.run)
	if cerr := b.db.Close(); err == nil {
		err = cerr
	}
	return err
}
