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

// Package main is the ngram-count command. It counts the n-grams of one or
// more token-id files through the buffering pipeline, prints a run summary,
// and can save the result or serve queries over it.
//
// Usage:
//
//	ngram-count [flags] file...
//
// Each input file holds whitespace-separated unsigned token ids and is
// counted as one document. Flags override values loaded with -config.
package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigacount"
	"gigacount/internal/counting/api"
	"gigacount/internal/counting/config"
	"gigacount/internal/counting/core"
	"gigacount/internal/counting/persistence"
	"gigacount/internal/counting/telemetry"
	"gigacount/pkg/ngram"
)

func main() {
	def := config.Default()
	configPath := flag.String("config", "", "Optional YAML config file; explicit flags override it")
	order := flag.Int("order", def.Order, "Longest n-gram to count")
	parallelism := flag.Int("parallelism", 0, "Shards and resolution workers (0 = half the CPUs)")
	flushFiles := flag.Int("flush_files", 0, "Tasks merged into a shard before it is parked (0 = 100, <0 disables)")
	flushTokens := flag.Int("flush_tokens", 0, "Tokens merged into a shard before it is parked (0 = 100000, <0 disables)")
	maxPending := flag.Int("max_pending", 0, "Admission ceiling of the worker pool (0 = 100)")
	maxBatch := flag.Int("max_batch", 0, "Split each file into tasks of at most this many sequences (0 = one task per file)")
	backlog := flag.String("backlog", def.Backlog.Adapter, "Where parked blobs wait: memory, sqlite or redis")
	sqlitePath := flag.String("sqlite_path", "", "SQLite backlog file (default in the temp dir)")
	redisAddr := flag.String("redis_addr", "", "Redis address for the redis backlog (empty = in-process demo store)")
	out := flag.String("out", "", "If non-empty, save the resolved counter to this file")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	httpAddr := flag.String("http_addr", "", "If non-empty, serve n-gram queries on this address after counting")
	flag.Parse()

	cfg := def
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "order":
			cfg.Order = *order
		case "parallelism":
			cfg.Parallelism = *parallelism
		case "flush_files":
			cfg.FlushFiles = *flushFiles
		case "flush_tokens":
			cfg.FlushTokens = *flushTokens
		case "max_pending":
			cfg.MaxPending = *maxPending
		case "max_batch":
			cfg.MaxBatch = *maxBatch
		case "backlog":
			cfg.Backlog.Adapter = *backlog
		case "sqlite_path":
			cfg.Backlog.SQLitePath = *sqlitePath
		case "redis_addr":
			cfg.Backlog.RedisAddr = *redisAddr
		case "out":
			cfg.Output = *out
		case "metrics_addr":
			cfg.Metrics.Enabled = *metricsAddr != ""
			cfg.Metrics.Addr = *metricsAddr
		case "http_addr":
			cfg.HTTPAddr = *httpAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ngram-count [flags] file...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	recordSettings(cfg)
	telemetry.Enable(telemetry.Config{Enabled: cfg.Metrics.Enabled, MetricsAddr: cfg.Metrics.Addr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Args()); err != nil {
		log.Fatalf("ngram-count: %v", err)
	}
}

func recordSettings(cfg config.Config) {
	core.SetSettingInt("order", cfg.Order)
	core.SetSettingInt("parallelism", cfg.Parallelism)
	core.SetSettingInt("flush_files", cfg.FlushFiles)
	core.SetSettingInt("flush_tokens", cfg.FlushTokens)
	core.SetSettingInt("max_pending", cfg.MaxPending)
	core.SetSettingInt("max_batch", cfg.MaxBatch)
	core.SetSetting("backlog", cfg.Backlog.Adapter)
	core.SetSettingDuration("op_timeout", cfg.Backlog.OpTimeout)
	core.SetSettingBool("metrics", cfg.Metrics.Enabled)
	core.SetSetting("http_addr", cfg.HTTPAddr)
}

func run(ctx context.Context, cfg config.Config, files []string) error {
	bl, err := persistence.BuildBacklog(ctx, cfg.Backlog.Adapter, persistence.Options{
		SQLitePath:  cfg.Backlog.SQLitePath,
		RedisAddr:   cfg.Backlog.RedisAddr,
		RedisPrefix: cfg.Backlog.RedisPrefix,
		OpTimeout:   cfg.Backlog.OpTimeout,
	})
	if err != nil {
		return err
	}

	counter := gigacount.New(gigacount.Options{
		Parallelism: cfg.Parallelism,
		FlushFiles:  cfg.FlushFiles,
		FlushTokens: cfg.FlushTokens,
		MaxPending:  cmp.Or(cfg.MaxPending, core.DefaultMaxPending),
		MaxBatch:    cfg.MaxBatch,
		Backlog:     bl,
	})

	start := time.Now()
	var tokens int
	for _, path := range files {
		if ctx.Err() != nil {
			fmt.Println("\nInterrupted, resolving what was read so far...")
			break
		}
		toks, err := readTokenFile(path)
		if err != nil {
			log.Printf("[ngram-count] skipping %s: %v", path, err)
			continue
		}
		tokens += len(toks)
		counter.CountBatch(ngram.SequenceForward(toks, cfg.Order))
	}
	fmt.Printf("Submitted %d tokens from %d files in %s\n", tokens, len(files), time.Since(start).Round(time.Millisecond))

	if err := counter.Resolve(); err != nil {
		log.Printf("[ngram-count] resolution finished with errors: %v", err)
	}
	core.PrintSummary(os.Stdout)

	if cfg.Output != "" {
		if err := counter.Save(cfg.Output); err != nil {
			return err
		}
		fmt.Printf("Saved counter to %s\n", cfg.Output)
	}

	if cfg.HTTPAddr == "" {
		return nil
	}
	return serve(ctx, counter, cfg.HTTPAddr)
}

// serve answers queries until ctx is cancelled.
func serve(ctx context.Context, counter ngram.Counter, addr string) error {
	httpServer := api.NewServer(counter).NewHTTPServer(addr)

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("N-gram query server listening on %s\n", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	fmt.Println("\nShutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	fmt.Println("Server gracefully stopped.")
	return nil
}
