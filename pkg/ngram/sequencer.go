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

// SequenceForward returns, for every position in tokens, the run of up to
// order tokens starting there. Counting these sequences into a prefix counter
// records every n-gram of length 1..order exactly once per occurrence.
func SequenceForward(tokens []uint32, order int) []Sequence {
	if order <= 0 {
		return nil
	}
	out := make([]Sequence, 0, len(tokens))
	for start := range tokens {
		end := min(len(tokens), start+order)
		out = append(out, Sequence(tokens[start:end]))
	}
	return out
}

// SequenceAround returns the forward sequences that include the token at
// index, i.e. those starting at most order-1 positions before it.
func SequenceAround(tokens []uint32, index, order int) []Sequence {
	if order <= 0 || index < 0 || index >= len(tokens) {
		return nil
	}
	first := max(0, index-order+1)
	out := make([]Sequence, 0, index-first+1)
	for start := first; start <= index; start++ {
		end := min(len(tokens), start+order)
		out = append(out, Sequence(tokens[start:end]))
	}
	return out
}

// SequenceAt returns the longest sequence of at most order tokens that ends
// with the token at index.
func SequenceAt(tokens []uint32, index, order int) Sequence {
	if order <= 0 || index < 0 || index >= len(tokens) {
		return nil
	}
	return Sequence(tokens[max(0, index-order+1) : index+1])
}
