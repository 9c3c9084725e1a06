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

package codec

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigacount/pkg/ngram"
)

func key(tokens ...uint32) string { return ngram.Sequence(tokens).Key() }

func TestPack_RoundTripSorted(t *testing.T) {
	buf := map[string]int64{
		key(3):       1,
		key(1, 2, 3): 4,
		key(1, 2):    2,
		key(1):       7,
		key(2, 0):    1,
	}
	blob, err := Pack(buf)
	require.NoError(t, err)

	var got []Entry
	n, err := Unpack(blob, func(seq ngram.Sequence, freq int64) {
		got = append(got, Entry{Seq: seq, Freq: freq})
	})
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	want := []Entry{
		{ngram.Sequence{1}, 7},
		{ngram.Sequence{1, 2}, 2},
		{ngram.Sequence{1, 2, 3}, 4},
		{ngram.Sequence{2, 0}, 1},
		{ngram.Sequence{3}, 1},
	}
	assert.Equal(t, want, got)
}

func TestPack_RandomBuffersRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		buf := make(map[string]int64)
		for i := 0; i < 200; i++ {
			seq := make(ngram.Sequence, 1+rng.Intn(4))
			for j := range seq {
				seq[j] = uint32(rng.Intn(50))
			}
			buf[seq.Key()] += int64(1 + rng.Intn(3))
		}
		blob, err := Pack(buf)
		require.NoError(t, err)

		seen := make(map[string]int64, len(buf))
		var prev ngram.Sequence
		for e, err := range All(blob) {
			require.NoError(t, err)
			if prev != nil {
				require.Negative(t, ngram.Compare(prev, e.Seq), "entries must be ascending")
			}
			prev = e.Seq
			_, dup := seen[e.Seq.Key()]
			require.False(t, dup, "duplicate entry %v", e.Seq)
			seen[e.Seq.Key()] = e.Freq
		}
		require.Equal(t, buf, seen)
	}
}

func TestPack_EmptyBuffer(t *testing.T) {
	blob, err := Pack(map[string]int64{})
	require.NoError(t, err)
	r, err := NewReader(blob)
	require.NoError(t, err)
	require.Equal(t, 0, r.Len())
	require.False(t, r.Next())
	require.NoError(t, r.Err())
}

func TestPack_RejectsInvalidEntries(t *testing.T) {
	_, err := Pack(map[string]int64{"": 1})
	require.ErrorIs(t, err, ErrInvalidEntry)
	_, err = Pack(map[string]int64{"abc": 1})
	require.ErrorIs(t, err, ErrInvalidEntry)
	_, err = Pack(map[string]int64{key(1): 0})
	require.ErrorIs(t, err, ErrInvalidEntry)
}

func TestUnpack_TruncatedAtEveryOffset(t *testing.T) {
	blob, err := Pack(map[string]int64{key(1, 2): 3, key(4): 1, key(9, 9, 9): 2})
	require.NoError(t, err)
	for cut := 0; cut < len(blob); cut++ {
		_, err := Unpack(blob[:cut], func(ngram.Sequence, int64) {})
		require.Error(t, err, "cut=%d", cut)
		require.True(t, errors.Is(err, ErrCorrupt), "cut=%d err=%v", cut, err)
		var ce *CorruptError
		require.ErrorAs(t, err, &ce)
	}
}

func TestUnpack_TrailingBytes(t *testing.T) {
	blob, err := Pack(map[string]int64{key(1): 1})
	require.NoError(t, err)
	blob = append(blob, 0, 0)
	_, err = Unpack(blob, func(ngram.Sequence, int64) {})
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "trailing")
}

func TestUnpack_OutOfOrder(t *testing.T) {
	var blob []byte
	blob = binary.BigEndian.AppendUint32(blob, 2)
	for _, tok := range []uint32{5, 1} {
		blob = binary.BigEndian.AppendUint32(blob, 1)
		blob = binary.BigEndian.AppendUint32(blob, tok)
		blob = binary.BigEndian.AppendUint64(blob, 1)
	}
	var delivered int
	_, err := Unpack(blob, func(ngram.Sequence, int64) { delivered++ })
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "out of order")
	assert.Equal(t, 1, delivered)
}

func TestUnpack_ZeroLengthKeyAndBadFrequency(t *testing.T) {
	var zero []byte
	zero = binary.BigEndian.AppendUint32(zero, 1)
	zero = binary.BigEndian.AppendUint32(zero, 0)
	zero = binary.BigEndian.AppendUint64(zero, 1)
	zero = binary.BigEndian.AppendUint32(zero, 0)
	_, err := Unpack(zero, func(ngram.Sequence, int64) {})
	require.ErrorIs(t, err, ErrCorrupt)

	var neg []byte
	neg = binary.BigEndian.AppendUint32(neg, 1)
	neg = binary.BigEndian.AppendUint32(neg, 1)
	neg = binary.BigEndian.AppendUint32(neg, 3)
	neg = binary.BigEndian.AppendUint64(neg, ^uint64(0))
	_, err = Unpack(neg, func(ngram.Sequence, int64) {})
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "non-positive")
}

func TestNewReader_ImplausibleEntryCount(t *testing.T) {
	blob := binary.BigEndian.AppendUint32(nil, 1<<30)
	_, err := NewReader(blob)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestAll_StopsEarly(t *testing.T) {
	blob, err := Pack(map[string]int64{key(1): 1, key(2): 1, key(3): 1})
	require.NoError(t, err)
	n := 0
	for range All(blob) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
