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

package ngram

// Counter is the query contract shared by every counting structure used by
// count-based language models.
//
// Count increments the stored frequency of a sequence and of every prefix
// along its path; UnCount reverses that. Counts returns the
// [context-count, count] pair used for maximum-likelihood estimates and is
// implementation-defined on an empty sequence.
type Counter interface {
	Count(seq Sequence)
	UnCount(seq Sequence)
	CountBatch(seqs []Sequence)
	UnCountBatch(seqs []Sequence)

	// Total is the aggregate number of counted observations.
	Total() int64
	Counts(seq Sequence) [2]int64
	// CountOfCount returns how many distinct sequences of length n were
	// seen exactly count times.
	CountOfCount(n int, count int64) int
	SuccessorCount() int
	SuccessorCountOf(ctx Sequence) int
	// TopSuccessors returns up to limit tokens following ctx, most frequent
	// first. Ties are broken by ascending token id.
	TopSuccessors(ctx Sequence, limit int) []uint32
	// DistinctCounts returns a histogram of length rng: entry i holds the
	// number of successors of ctx seen exactly i+1 times, and the last entry
	// also collects everything seen rng times or more.
	DistinctCounts(rng int, ctx Sequence) []int
}

// Resolved is a Counter that also accepts weighted bulk inserts. Add must be
// safe to call from many goroutines at once.
type Resolved interface {
	Counter
	Add(seq Sequence, freq int64)
}
