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
	"errors"
	"fmt"
	"sync"
	"time"

	"gigacount/internal/counting/codec"
	"gigacount/internal/counting/core"
	"gigacount/internal/counting/telemetry"
	"gigacount/pkg/ngram"
)

// Resolve drains the buffering pipeline into the resolved counter. It runs at
// most once; later calls return the recorded error. Blobs that fail to decode
// are reported here while every intact blob is still counted.
func (g *GigaCounter) Resolve() error { return g.resolve().err }

func (g *GigaCounter) resolve() *resolution {
	if r := g.res.Load(); r != nil {
		return r
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if r := g.res.Load(); r != nil {
		return r
	}
	r := g.runResolution()
	g.res.Store(r)
	return r
}

// runResolution must be called with mu held exclusively.
func (g *GigaCounter) runResolution() *resolution {
	start := time.Now()

	// Every admitted task holds a shard until it finishes, so an idle pool
	// means the scheduler has nothing left for this counter.
	g.pool.WaitIdle()
	if g.ownsSched {
		g.sched.Close()
	}

	var leftovers []map[string]int64
	g.pool.Drain(func(i int, buf map[string]int64) {
		if err := g.pack(buf); err != nil {
			g.logger.Printf("[resolve] shard %d could not be parked (%v); merging it directly", i, err)
			leftovers = append(leftovers, buf)
		}
	})

	counter := g.newResolved(g.parallelism)
	for _, buf := range leftovers {
		for k, freq := range buf {
			seq, err := ngram.FromKey(k)
			if err != nil {
				continue
			}
			counter.Add(seq, freq)
		}
	}

	blobs := g.backlog.Len()
	if blobs >= 10 {
		g.logger.Printf("[resolve] replaying %d blobs with %d workers", blobs, g.parallelism)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for w := 0; w < g.parallelism; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for j := w; j < blobs; j += g.parallelism {
				if err := g.replay(j, counter); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()

	if err := g.backlog.Close(); err != nil {
		g.logger.Printf("[resolve] closing backlog: %v", err)
	}
	g.pool = nil
	g.backlog = nil

	d := time.Since(start)
	core.RecordResolve(d, len(errs))
	telemetry.ObserveResolve(d, len(errs))

	err := errors.Join(errs...)
	if err != nil {
		g.logger.Printf("[resolve] %d of %d blobs failed: %v", len(errs), blobs, err)
	}
	return &resolution{counter: counter, err: err}
}

// replay takes blob j out of the backlog and adds its entries to counter.
// Entries decoded before a corruption point are kept.
func (g *GigaCounter) replay(j int, counter ngram.Resolved) error {
	blob, err := g.backlog.Take(j)
	if err != nil {
		return fmt.Errorf("blob %d: %w", j, err)
	}
	if _, err := codec.Unpack(blob, counter.Add); err != nil {
		return fmt.Errorf("blob %d: %w", j, err)
	}
	return nil
}
