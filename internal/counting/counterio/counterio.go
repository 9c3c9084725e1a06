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

// Package counterio saves and restores resolved counters as zstd-compressed
// files.
package counterio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"gigacount/internal/counting/trie"
)

// Write streams c to path through a zstd encoder. The file is written under a
// temporary name and renamed into place, so a failed write never leaves a
// truncated counter at path.
func Write(c io.WriterTo, path string) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write counter %s: %w", path, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("write counter %s: %w", path, err)
	}
	if _, err = c.WriteTo(enc); err != nil {
		enc.Close()
		return fmt.Errorf("write counter %s: %w", path, err)
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("write counter %s: %w", path, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("write counter %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("write counter %s: %w", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write counter %s: %w", path, err)
	}
	return nil
}

// Read loads a counter written by Write, using shards lock partitions.
func Read(path string, shards int) (*trie.Counter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read counter %s: %w", path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read counter %s: %w", path, err)
	}
	defer dec.Close()

	c := trie.New(shards)
	if _, err := c.ReadFrom(dec); err != nil {
		return nil, fmt.Errorf("read counter %s: %w", path, err)
	}
	return c, nil
}
