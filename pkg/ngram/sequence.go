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

// Package ngram defines the token sequences counted by the gigacount engine
// and the query contract every counter implementation honors.
package ngram

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Sequence is an ordered run of integer-coded tokens (an n-gram).
type Sequence []uint32

// Compare orders sequences element-wise. When one sequence is a prefix of the
// other, the shorter one sorts first.
func Compare(a, b Sequence) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Equal reports whether a and b hold the same tokens.
func Equal(a, b Sequence) bool { return Compare(a, b) == 0 }

// Context returns the sequence without its last token. The context of an
// empty or single-token sequence is empty.
func (s Sequence) Context() Sequence {
	if len(s) == 0 {
		return nil
	}
	return s[:len(s)-1]
}

// Clone returns a copy that does not alias s.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

// Key encodes s as a string of 4-byte big-endian tokens. Byte-wise ordering of
// keys matches Compare, so sorted keys are sorted sequences.
func (s Sequence) Key() string {
	var b strings.Builder
	b.Grow(4 * len(s))
	var buf [4]byte
	for _, t := range s {
		binary.BigEndian.PutUint32(buf[:], t)
		b.Write(buf[:])
	}
	return b.String()
}

// FromKey decodes a key produced by Sequence.Key.
func FromKey(key string) (Sequence, error) {
	if len(key)%4 != 0 {
		return nil, fmt.Errorf("ngram: key length %d is not a multiple of 4", len(key))
	}
	out := make(Sequence, len(key)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32([]byte(key[4*i : 4*i+4]))
	}
	return out, nil
}

// String renders s as comma separated token ids, e.g. "1,2,3".
func (s Sequence) String() string {
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = strconv.FormatUint(uint64(t), 10)
	}
	return strings.Join(parts, ",")
}

// Parse reads a comma separated list of token ids. Whitespace around ids is
// ignored; an empty string yields an empty sequence.
func Parse(s string) (Sequence, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Sequence{}, nil
	}
	fields := strings.Split(s, ",")
	out := make(Sequence, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("ngram: invalid token %q: %w", f, err)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
