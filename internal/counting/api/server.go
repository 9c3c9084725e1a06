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

// Package api exposes read-only n-gram queries over HTTP. Every handler
// answers from the counter it was built with; the first query resolves a
// counter that is still buffering.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gigacount/pkg/ngram"
)

const (
	defaultSuccessorLimit = 10
	// maxSuccessorLimit and maxDistinctRange bound the size of a response.
	maxSuccessorLimit = 1000
	maxDistinctRange  = 1024
)

// Server answers n-gram queries.
type Server struct {
	counter ngram.Counter
}

// NewServer creates a query server over counter.
func NewServer(counter ngram.Counter) *Server {
	return &Server{counter: counter}
}

// RegisterRoutes sets up the query routes on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/counts", s.handleCounts)
	mux.HandleFunc("/successors", s.handleSuccessors)
	mux.HandleFunc("/count-of-count", s.handleCountOfCount)
	mux.HandleFunc("/distinct", s.handleDistinct)
	mux.HandleFunc("/total", s.handleTotal)
}

type countsResponse struct {
	Seq     ngram.Sequence `json:"seq"`
	Context int64          `json:"context"`
	Count   int64          `json:"count"`
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	seq, ok := sequenceParam(w, r, "seq", true)
	if !ok {
		return
	}
	c := s.counter.Counts(seq)
	writeJSON(w, countsResponse{Seq: seq, Context: c[0], Count: c[1]})
}

type successorsResponse struct {
	Context  ngram.Sequence `json:"ctx"`
	Distinct int            `json:"distinct"`
	Top      []uint32       `json:"top"`
}

func (s *Server) handleSuccessors(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ctx, ok := sequenceParam(w, r, "ctx", false)
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit", defaultSuccessorLimit)
	if !ok {
		return
	}
	if limit < 0 || limit > maxSuccessorLimit {
		http.Error(w, fmt.Sprintf("limit must be between 0 and %d", maxSuccessorLimit), http.StatusBadRequest)
		return
	}
	top := s.counter.TopSuccessors(ctx, limit)
	if top == nil {
		top = []uint32{}
	}
	writeJSON(w, successorsResponse{Context: ctx, Distinct: s.counter.SuccessorCountOf(ctx), Top: top})
}

type countOfCountResponse struct {
	N     int   `json:"n"`
	Count int64 `json:"count"`
	Nodes int   `json:"nodes"`
}

func (s *Server) handleCountOfCount(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	n, ok := intParam(w, r, "n", -1)
	if !ok {
		return
	}
	count, ok := intParam(w, r, "count", -1)
	if !ok {
		return
	}
	if n < 1 || count < 1 {
		http.Error(w, "n and count must be positive", http.StatusBadRequest)
		return
	}
	writeJSON(w, countOfCountResponse{N: n, Count: int64(count), Nodes: s.counter.CountOfCount(n, int64(count))})
}

type distinctResponse struct {
	Context ngram.Sequence `json:"ctx"`
	Range   int            `json:"range"`
	Buckets []int          `json:"buckets"`
}

func (s *Server) handleDistinct(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ctx, ok := sequenceParam(w, r, "ctx", false)
	if !ok {
		return
	}
	rng, ok := intParam(w, r, "range", -1)
	if !ok {
		return
	}
	if rng < 1 || rng > maxDistinctRange {
		http.Error(w, fmt.Sprintf("range must be between 1 and %d", maxDistinctRange), http.StatusBadRequest)
		return
	}
	writeJSON(w, distinctResponse{Context: ctx, Range: rng, Buckets: s.counter.DistinctCounts(rng, ctx)})
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, map[string]int64{"total": s.counter.Total()})
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// sequenceParam parses a comma separated token list. An empty value is the
// root context unless required is set.
func sequenceParam(w http.ResponseWriter, r *http.Request, name string, required bool) (ngram.Sequence, bool) {
	raw := r.URL.Query().Get(name)
	seq, err := ngram.Parse(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if required && len(seq) == 0 {
		http.Error(w, fmt.Sprintf("%s is required", name), http.StatusBadRequest)
		return nil, false
	}
	return seq, true
}

// intParam parses an integer query value, returning def when it is absent.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid %s %q", name, raw), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewHTTPServer returns an http.Server on addr serving the query routes.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
