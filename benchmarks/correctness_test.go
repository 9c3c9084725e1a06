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

package benchmarks

import (
	"sync"
	"testing"

	"gigacount"
	"gigacount/internal/counting/core"
)

// TestPipelineMatchesMapCounter counts the same Zipf corpus concurrently
// through the pipeline and through the naive map and compares every prefix.
func TestPipelineMatchesMapCounter(t *testing.T) {
	docs := zipfDocs(3, 64, 200)
	s := core.NewScheduler(4, 8)
	defer s.Close()

	opts := quietOptions(s)
	opts.Parallelism = 3
	opts.FlushFiles = 2
	opts.FlushTokens = 500
	g := gigacount.New(opts)
	m := NewMapCounter()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(docs); i += 4 {
				g.CountBatch(docs[i])
				m.CountBatch(docs[i])
			}
		}(w)
	}
	wg.Wait()

	if err := g.Resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	keys := m.Keys()
	if len(keys) == 0 {
		t.Fatal("baseline recorded nothing")
	}
	for _, k := range keys {
		if got, want := g.Counts(k)[1], m.Count(k); got != want {
			t.Fatalf("count(%v) = %d, want %d", k, got, want)
		}
	}
}
