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

package gigacount

import (
	"bytes"
	"io"
	"log"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigacount/internal/counting/core"
	"gigacount/internal/counting/trie"
	"gigacount/pkg/ngram"
)

func seq(toks ...uint32) ngram.Sequence { return ngram.Sequence(toks) }

// newTestCounter builds a counter on a private scheduler so tests do not
// share worker state.
func newTestCounter(t *testing.T, opts Options) *GigaCounter {
	t.Helper()
	if opts.Scheduler == nil {
		s := core.NewScheduler(4, 16)
		t.Cleanup(s.Close)
		opts.Scheduler = s
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return New(opts)
}

// corpus returns deterministic pseudo-random documents of token ids.
func corpus(seed uint64, docs, length int) [][]uint32 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b9))
	out := make([][]uint32, docs)
	for d := range out {
		toks := make([]uint32, length)
		for i := range toks {
			toks[i] = uint32(r.IntN(12))
		}
		out[d] = toks
	}
	return out
}

// reference counts docs sequentially into a plain trie.
func reference(docs [][]uint32, order int) *trie.Counter {
	c := trie.New(1)
	for _, d := range docs {
		c.CountBatch(ngram.SequenceForward(d, order))
	}
	return c
}

func snapshot(t *testing.T, c ngram.Resolved) []byte {
	t.Helper()
	m, ok := c.(interface{ MarshalBinary() ([]byte, error) })
	require.True(t, ok, "resolved counter %T is not marshalable", c)
	b, err := m.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestGigaCounter_ExampleScenario(t *testing.T) {
	g := newTestCounter(t, Options{Parallelism: 2})
	g.Count(seq(1, 2))
	g.Count(seq(1, 3))
	g.Count(seq(1, 2))

	assert.False(t, g.Resolved())
	assert.Equal(t, [2]int64{3, 2}, g.Counts(seq(1, 2)))
	assert.True(t, g.Resolved())
	assert.Equal(t, 2, g.SuccessorCountOf(seq(1)))
	assert.Equal(t, int64(3), g.Total())
	assert.Equal(t, []uint32{2, 3}, g.TopSuccessors(seq(1), 5))
	assert.NoError(t, g.Err())
}

func TestGigaCounter_EmptySequencesIgnored(t *testing.T) {
	g := newTestCounter(t, Options{Parallelism: 1})
	g.Count(nil)
	g.CountBatch([]ngram.Sequence{{}, nil})
	g.CountBatch(nil)
	assert.Equal(t, int64(0), g.Total())
}

func TestGigaCounter_CallerMayReuseSlices(t *testing.T) {
	g := newTestCounter(t, Options{Parallelism: 2})
	buf := seq(7, 8)
	g.Count(buf)
	buf[1] = 9
	batch := []ngram.Sequence{buf}
	g.CountBatch(batch)
	batch[0][0] = 1

	assert.Equal(t, [2]int64{2, 1}, g.Counts(seq(7, 8)))
	assert.Equal(t, [2]int64{2, 1}, g.Counts(seq(7, 9)))
	assert.Equal(t, [2]int64{0, 0}, g.Counts(seq(1, 9)))
}

func TestGigaCounter_ConcurrentCountsCommute(t *testing.T) {
	docs := corpus(1, 400, 30)
	want := snapshot(t, reference(docs, 3))

	g := newTestCounter(t, Options{Parallelism: 4, FlushFiles: 3, FlushTokens: 200})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(docs); i += 8 {
				if i%2 == 0 {
					g.CountBatch(ngram.SequenceForward(docs[i], 3))
					continue
				}
				for _, s := range ngram.SequenceForward(docs[i], 3) {
					g.Count(s)
				}
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, g.Resolve())
	assert.True(t, bytes.Equal(want, snapshot(t, g.Counter())), "concurrent result differs from sequential count")
}

// countingBacklog records how many blobs were parked.
type countingBacklog struct {
	*core.MemoryBacklog
	mu      sync.Mutex
	appends int
}

func (b *countingBacklog) Append(blob []byte) error {
	b.mu.Lock()
	b.appends++
	b.mu.Unlock()
	return b.MemoryBacklog.Append(blob)
}

func TestGigaCounter_FlushThresholdsDoNotChangeResult(t *testing.T) {
	docs := corpus(2, 200, 25)

	run := func(files, tokens int) ([]byte, int) {
		bl := &countingBacklog{MemoryBacklog: core.NewMemoryBacklog()}
		g := newTestCounter(t, Options{Parallelism: 2, FlushFiles: files, FlushTokens: tokens, Backlog: bl})
		for _, d := range docs {
			g.CountBatch(ngram.SequenceForward(d, 4))
		}
		require.NoError(t, g.Resolve())
		return snapshot(t, g.Counter()), bl.appends
	}

	tiny, tinyBlobs := run(1, 1)
	never, _ := run(-1, -1)
	def, _ := run(0, 0)

	assert.Greater(t, tinyBlobs, len(docs)/4, "tiny thresholds should park many blobs")
	assert.Equal(t, never, tiny)
	assert.Equal(t, never, def)
}

func TestGigaCounter_MaxBatchSplitsTasks(t *testing.T) {
	s := core.NewScheduler(2, 8)
	t.Cleanup(s.Close)
	g := newTestCounter(t, Options{Parallelism: 2, MaxBatch: 3, Scheduler: s})

	batch := make([]ngram.Sequence, 10)
	for i := range batch {
		batch[i] = seq(uint32(i))
	}
	g.CountBatch(batch)
	require.NoError(t, g.Resolve())

	// Completed is bumped after the shard is released, so it may lag Resolve.
	assert.Eventually(t, func() bool { return s.Completed() == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(10), g.Total())
}

func TestGigaCounter_CountUnCountInverse(t *testing.T) {
	g := newTestCounter(t, Options{Parallelism: 2})
	g.CountBatch([]ngram.Sequence{seq(1, 2, 3), seq(2, 3)})
	g.Count(seq(4, 5))
	g.UnCount(seq(4, 5))

	assert.True(t, g.Resolved())
	assert.Equal(t, [2]int64{0, 0}, g.Counts(seq(4, 5)))
	assert.Equal(t, int64(2), g.Total())

	g.UnCountBatch([]ngram.Sequence{seq(1, 2, 3), seq(2, 3)})
	assert.Equal(t, int64(0), g.Total())
	assert.Equal(t, 0, g.SuccessorCount())
}

func TestGigaCounter_CountAfterResolveGoesDirect(t *testing.T) {
	g := newTestCounter(t, Options{Parallelism: 2})
	g.Count(seq(1))
	require.NoError(t, g.Resolve())
	require.NoError(t, g.Resolve())

	g.Count(seq(1))
	g.CountBatch([]ngram.Sequence{seq(1, 2)})
	assert.Equal(t, [2]int64{3, 3}, g.Counts(seq(1)))
	assert.Equal(t, 1, g.CountOfCount(2, 1))

	st := g.Stats()
	assert.True(t, st.Resolved)
	assert.Zero(t, st.Backlog)
}

func TestGigaCounter_SaveLoad(t *testing.T) {
	docs := corpus(3, 50, 20)
	g := newTestCounter(t, Options{Parallelism: 3, FlushFiles: 2})
	for _, d := range docs {
		g.CountBatch(ngram.SequenceForward(d, 3))
	}
	path := filepath.Join(t.TempDir(), "counts.gcz")
	require.NoError(t, g.Save(path))

	back, err := Load(path, Options{Parallelism: 2})
	require.NoError(t, err)
	assert.True(t, back.Resolved())
	assert.Equal(t, snapshot(t, g.Counter()), snapshot(t, back.Counter()))

	assert.Nil(t, LoadOrNil(filepath.Join(t.TempDir(), "missing"), Options{Logger: log.New(io.Discard, "", 0)}))
}

// plainCounter hides the serialization methods of the trie.
type plainCounter struct{ ngram.Resolved }

func TestGigaCounter_SaveNeedsSerializableCounter(t *testing.T) {
	g := newTestCounter(t, Options{
		Parallelism: 1,
		NewResolved: func(p int) ngram.Resolved { return plainCounter{trie.New(p)} },
	})
	g.Count(seq(1))
	err := g.Save(filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.Equal(t, [2]int64{1, 1}, g.Counts(seq(1)))
}

func TestGigaCounter_PrivateSchedulerBoundsPending(t *testing.T) {
	g := New(Options{Parallelism: 2, MaxPending: 3, Logger: log.New(io.Discard, "", 0)})
	require.True(t, g.ownsSched)
	for i := 0; i < 200; i++ {
		g.Count(seq(uint32(i%9), uint32(i%4)))
	}
	require.NoError(t, g.Resolve())

	assert.Equal(t, 3, g.sched.MaxPending())
	assert.LessOrEqual(t, g.sched.PeakPending(), 3)
	assert.Equal(t, int64(200), g.Total())
}
