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

// Package telemetry exposes opt-in Prometheus metrics for the counting
// pipeline. All observers are no-ops until Enable is called with Enabled set.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Enabled     bool
	MetricsAddr string // e.g. ":9090"; empty disables the standalone endpoint
}

var (
	modEnabled atomic.Bool

	// Global metrics only; no per-sequence labels.
	sequencesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gigacount_sequences_submitted_total",
		Help: "Sequences submitted to the buffering pipeline",
	})
	tasksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gigacount_tasks_submitted_total",
		Help: "Merge tasks submitted to the scheduler",
	})
	pendingTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gigacount_pending_tasks",
		Help: "Merge tasks admitted but not yet finished",
	})
	flushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gigacount_flushes_total",
		Help: "Shard flushes into the backlog, by result",
	}, []string{"result"})
	blobBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gigacount_blob_bytes",
		Help:    "Size distribution of packed blobs",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
	backlogBlobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gigacount_backlog_blobs",
		Help: "Blobs waiting in the backlog",
	})
	resolveSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gigacount_resolve_seconds",
		Help:    "Duration of the one-time resolution into the final counter",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	unpackErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gigacount_unpack_errors_total",
		Help: "Blobs that failed to unpack during resolution",
	})
)

func init() {
	prometheus.MustRegister(sequencesTotal, tasksTotal, pendingTasks, flushesTotal, blobBytes,
		backlogBlobs, resolveSeconds, unpackErrorsTotal)
}

// Enable switches observers on or off and optionally starts a /metrics
// endpoint.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

func Enabled() bool { return modEnabled.Load() }

func ObserveSubmit(sequences, pending int) {
	if !modEnabled.Load() {
		return
	}
	tasksTotal.Inc()
	sequencesTotal.Add(float64(sequences))
	pendingTasks.Set(float64(pending))
}

func ObserveFlush(size int, err error) {
	if !modEnabled.Load() {
		return
	}
	if err != nil {
		flushesTotal.WithLabelValues("error").Inc()
		return
	}
	flushesTotal.WithLabelValues("ok").Inc()
	blobBytes.Observe(float64(size))
	backlogBlobs.Inc()
}

func ObserveResolve(d time.Duration, unpackErrors int) {
	if !modEnabled.Load() {
		return
	}
	resolveSeconds.Observe(d.Seconds())
	backlogBlobs.Set(0)
	pendingTasks.Set(0)
	if unpackErrors > 0 {
		unpackErrorsTotal.Add(float64(unpackErrors))
	}
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
