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

// Package config loads counting-pipeline settings from YAML. Command-line
// flags override whatever the file sets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors the ngram-count flags. Zero values mean "use the default".
type Config struct {
	Order       int           `yaml:"order"`
	Parallelism int           `yaml:"parallelism"`
	FlushFiles  int           `yaml:"flush_files"`
	FlushTokens int           `yaml:"flush_tokens"`
	MaxPending  int           `yaml:"max_pending"`
	MaxBatch    int           `yaml:"max_batch"`
	Backlog     BacklogConfig `yaml:"backlog"`
	Output      string        `yaml:"output"`
	Metrics     MetricsConfig `yaml:"metrics"`
	HTTPAddr    string        `yaml:"http_addr"`
}

// BacklogConfig selects where packed blobs wait until resolution.
type BacklogConfig struct {
	Adapter     string        `yaml:"adapter"`
	SQLitePath  string        `yaml:"sqlite_path"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	OpTimeout   time.Duration `yaml:"op_timeout"`
}

// MetricsConfig controls Prometheus exposure.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Order:   3,
		Backlog: BacklogConfig{Adapter: "memory"},
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Order <= 0 {
		return fmt.Errorf("order must be positive, got %d", c.Order)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative, got %d", c.Parallelism)
	}
	if c.MaxPending < 0 {
		return fmt.Errorf("max_pending must not be negative, got %d", c.MaxPending)
	}
	if c.MaxBatch < 0 {
		return fmt.Errorf("max_batch must not be negative, got %d", c.MaxBatch)
	}
	switch c.Backlog.Adapter {
	case "", "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown backlog adapter %q", c.Backlog.Adapter)
	}
	return nil
}
