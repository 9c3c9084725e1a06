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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gigacount.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
order: 4
parallelism: 8
flush_files: 50
flush_tokens: -1
backlog:
  adapter: sqlite
  sqlite_path: /tmp/blobs.db
  op_timeout: 2s
metrics:
  enabled: true
  addr: ":9090"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Order != 4 || cfg.Parallelism != 8 || cfg.FlushFiles != 50 || cfg.FlushTokens != -1 {
		t.Fatalf("unexpected pipeline settings: %+v", cfg)
	}
	if cfg.Backlog.Adapter != "sqlite" || cfg.Backlog.SQLitePath != "/tmp/blobs.db" || cfg.Backlog.OpTimeout != 2*time.Second {
		t.Fatalf("unexpected backlog settings: %+v", cfg.Backlog)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9090" {
		t.Fatalf("unexpected metrics settings: %+v", cfg.Metrics)
	}
}

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, "parallelism: 2\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Order != 3 || cfg.Backlog.Adapter != "memory" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "order: [1")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(writeConfig(t, "backlog:\n  adapter: kafka\n")); err == nil {
		t.Fatalf("expected validation error for unknown adapter")
	}
	if _, err := Load(writeConfig(t, "order: 0\n")); err == nil {
		t.Fatalf("expected validation error for zero order")
	}
}
