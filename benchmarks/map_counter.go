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

	"gigacount/pkg/ngram"
)

// MapCounter is the naive baseline: one mutex around one map holding the
// count of every prefix of every counted sequence.
type MapCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMapCounter() *MapCounter {
	return &MapCounter{counts: make(map[string]int64)}
}

func (m *MapCounter) CountBatch(seqs []ngram.Sequence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range seqs {
		for n := 1; n <= len(s); n++ {
			m.counts[s[:n].Key()]++
		}
	}
}

// Count returns how often seq occurred as a prefix.
func (m *MapCounter) Count(seq ngram.Sequence) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[seq.Key()]
}

// Keys returns every recorded prefix.
func (m *MapCounter) Keys() []ngram.Sequence {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ngram.Sequence, 0, len(m.counts))
	for k := range m.counts {
		s, err := ngram.FromKey(k)
		if err == nil {
			out = append(out, s)
		}
	}
	return out
}
