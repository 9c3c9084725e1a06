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

// Package codec packs a shard's partial counts into a sorted binary blob and
// replays such blobs back into (sequence, frequency) observations.
//
// Layout, all integers big endian:
//
//	uint32 entries
//	entries × { uint32 keyLen | keyLen × uint32 token | int64 frequency }
//
// Entries are strictly ascending in ngram.Compare order. There is no
// compression or delta encoding.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math"
	"sort"

	"gigacount/pkg/ngram"
)

var (
	// ErrCorrupt is wrapped by every error reported for a malformed blob.
	ErrCorrupt = errors.New("codec: corrupt blob")
	// ErrInvalidEntry is returned by Pack for buffers that cannot be encoded.
	ErrInvalidEntry = errors.New("codec: invalid entry")
)

// CorruptError describes where and why a blob failed to decode.
type CorruptError struct {
	Offset int
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("codec: corrupt blob at offset %d: %s", e.Offset, e.Reason)
}

func (e *CorruptError) Unwrap() error { return ErrCorrupt }

const (
	headerSize = 4
	tokenSize  = 4
	freqSize   = 8
)

// Pack serializes buf, a map from ngram.Sequence.Key to frequency. The map is
// only read.
func Pack(buf map[string]int64) ([]byte, error) {
	if uint64(len(buf)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d entries exceed the format limit", ErrInvalidEntry, len(buf))
	}
	keys := make([]string, 0, len(buf))
	size := headerSize
	for k, f := range buf {
		if len(k) == 0 || len(k)%tokenSize != 0 {
			return nil, fmt.Errorf("%w: key of %d bytes", ErrInvalidEntry, len(k))
		}
		if f <= 0 {
			return nil, fmt.Errorf("%w: frequency %d for %x", ErrInvalidEntry, f, k)
		}
		keys = append(keys, k)
		size += 4 + len(k) + freqSize
	}
	// Byte order of keys is sequence order.
	sort.Strings(keys)

	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint32(out, uint32(len(keys)))
	for _, k := range keys {
		out = binary.BigEndian.AppendUint32(out, uint32(len(k)/tokenSize))
		out = append(out, k...)
		out = binary.BigEndian.AppendUint64(out, uint64(buf[k]))
	}
	return out, nil
}

// Reader lazily decodes a packed blob. It is single-use: once Next returns
// false the reader is exhausted and Err reports why.
type Reader struct {
	blob    []byte
	off     int
	total   int
	read    int
	prevKey []byte
	seq     ngram.Sequence
	freq    int64
	err     error
}

// NewReader validates the blob header and returns a reader positioned before
// the first entry.
func NewReader(blob []byte) (*Reader, error) {
	if len(blob) < headerSize {
		return nil, &CorruptError{Offset: 0, Reason: fmt.Sprintf("truncated header (%d bytes)", len(blob))}
	}
	total := int(binary.BigEndian.Uint32(blob))
	// Smallest possible entry is a one-token key plus its frequency.
	if minSize := 4 + tokenSize + freqSize; total > (len(blob)-headerSize)/minSize {
		return nil, &CorruptError{Offset: 0, Reason: fmt.Sprintf("%d entries cannot fit in %d bytes", total, len(blob))}
	}
	return &Reader{blob: blob, off: headerSize, total: total}, nil
}

// Len is the number of entries the header announces.
func (r *Reader) Len() int { return r.total }

// Next advances to the next entry.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	if r.read == r.total {
		if r.off != len(r.blob) {
			r.err = &CorruptError{Offset: r.off, Reason: fmt.Sprintf("%d trailing bytes", len(r.blob)-r.off)}
		}
		return false
	}
	start := r.off
	if len(r.blob)-r.off < 4 {
		r.err = &CorruptError{Offset: r.off, Reason: "truncated key length"}
		return false
	}
	n := int(binary.BigEndian.Uint32(r.blob[r.off:]))
	r.off += 4
	if n == 0 {
		r.err = &CorruptError{Offset: start, Reason: "zero-length key"}
		return false
	}
	if n > (len(r.blob)-r.off)/tokenSize {
		r.err = &CorruptError{Offset: start, Reason: fmt.Sprintf("key of %d tokens overruns blob", n)}
		return false
	}
	key := r.blob[r.off : r.off+n*tokenSize]
	r.off += n * tokenSize
	if len(r.blob)-r.off < freqSize {
		r.err = &CorruptError{Offset: r.off, Reason: "truncated frequency"}
		return false
	}
	freq := int64(binary.BigEndian.Uint64(r.blob[r.off:]))
	r.off += freqSize
	if freq <= 0 {
		r.err = &CorruptError{Offset: start, Reason: fmt.Sprintf("non-positive frequency %d", freq)}
		return false
	}
	if r.prevKey != nil && bytes.Compare(r.prevKey, key) >= 0 {
		r.err = &CorruptError{Offset: start, Reason: "entries out of order"}
		return false
	}
	r.prevKey = key

	seq := make(ngram.Sequence, n)
	for i := range seq {
		seq[i] = binary.BigEndian.Uint32(key[i*tokenSize:])
	}
	r.seq, r.freq = seq, freq
	r.read++
	return true
}

// Entry returns the current sequence and its frequency. The sequence is owned
// by the caller.
func (r *Reader) Entry() (ngram.Sequence, int64) { return r.seq, r.freq }

// Err returns the first decode error, or nil when the blob was fully and
// cleanly consumed.
func (r *Reader) Err() error { return r.err }

// Entry is one decoded observation.
type Entry struct {
	Seq  ngram.Sequence
	Freq int64
}

// All yields every entry of blob in order. A decode failure is yielded once,
// as the final element.
func All(blob []byte) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		r, err := NewReader(blob)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for r.Next() {
			seq, freq := r.Entry()
			if !yield(Entry{Seq: seq, Freq: freq}, nil) {
				return
			}
		}
		if err := r.Err(); err != nil {
			yield(Entry{}, err)
		}
	}
}

// Unpack feeds every entry of blob to fn and returns how many were delivered.
// Entries preceding a corruption have already been delivered when the error
// is returned.
func Unpack(blob []byte, fn func(seq ngram.Sequence, freq int64)) (int, error) {
	r, err := NewReader(blob)
	if err != nil {
		return 0, err
	}
	n := 0
	for r.Next() {
		fn(r.Entry())
		n++
	}
	return n, r.Err()
}
