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

package core

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	sequencesSubmitted atomic.Int64
	tasksSubmitted     atomic.Int64
	flushes            atomic.Int64
	flushErrors        atomic.Int64
	blobsPacked        atomic.Int64
	blobBytes          atomic.Int64
	resolutions        atomic.Int64
	resolveNanos       atomic.Int64
	unpackErrors       atomic.Int64

	// settings holds human-readable configuration captured at runtime.
	settingsMu sync.RWMutex
	settings   = make(map[string]string)
)

func RecordSubmit(sequences int) {
	tasksSubmitted.Add(1)
	if sequences > 0 {
		sequencesSubmitted.Add(int64(sequences))
	}
}

func RecordFlush(blobSize int, err error) {
	flushes.Add(1)
	if err != nil {
		flushErrors.Add(1)
		return
	}
	blobsPacked.Add(1)
	blobBytes.Add(int64(blobSize))
}

func RecordResolve(d time.Duration, unpackErrs int) {
	resolutions.Add(1)
	resolveNanos.Add(int64(d))
	if unpackErrs > 0 {
		unpackErrors.Add(int64(unpackErrs))
	}
}

func SetSetting(name string, value string) {
	settingsMu.Lock()
	settings[name] = value
	settingsMu.Unlock()
}

func SetSettingInt(name string, v int)                { SetSetting(name, fmt.Sprintf("%d", v)) }
func SetSettingDuration(name string, d time.Duration) { SetSetting(name, d.String()) }
func SetSettingBool(name string, b bool)              { SetSetting(name, fmt.Sprintf("%t", b)) }

// Totals is a snapshot of the process-wide pipeline counters.
type Totals struct {
	Sequences    int64
	Tasks        int64
	Flushes      int64
	FlushErrors  int64
	Blobs        int64
	BlobBytes    int64
	Resolutions  int64
	ResolveTime  time.Duration
	UnpackErrors int64
}

func GetTotals() Totals {
	return Totals{
		Sequences:    sequencesSubmitted.Load(),
		Tasks:        tasksSubmitted.Load(),
		Flushes:      flushes.Load(),
		FlushErrors:  flushErrors.Load(),
		Blobs:        blobsPacked.Load(),
		BlobBytes:    blobBytes.Load(),
		Resolutions:  resolutions.Load(),
		ResolveTime:  time.Duration(resolveNanos.Load()),
		UnpackErrors: unpackErrors.Load(),
	}
}

func getSettingsSnapshot() map[string]string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	out := make(map[string]string, len(settings))
	for k, v := range settings {
		out[k] = v
	}
	return out
}

// PrintSummary writes a columnar end-of-run summary of the pipeline counters
// and the captured settings.
func PrintSummary(w io.Writer) {
	t := GetTotals()
	st := getSettingsSnapshot()
	keys := make([]string, 0, len(st))
	for k := range st {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var avgBlob string
	if t.Blobs > 0 {
		avgBlob = fmt.Sprintf("%d", t.BlobBytes/t.Blobs)
	} else {
		avgBlob = "n/a"
	}

	sep := strings.Repeat("-", 60)
	fmt.Fprintf(w, "[%s] Counting pipeline summary\n", time.Now().Format(time.RFC3339))
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "%-18s %12s\n", "Metric", "Value")
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "%-18s %12d\n", "Sequences", t.Sequences)
	fmt.Fprintf(w, "%-18s %12d\n", "Tasks", t.Tasks)
	fmt.Fprintf(w, "%-18s %12d\n", "Flushes", t.Flushes)
	fmt.Fprintf(w, "%-18s %12d\n", "Flush errors", t.FlushErrors)
	fmt.Fprintf(w, "%-18s %12d\n", "Blobs", t.Blobs)
	fmt.Fprintf(w, "%-18s %12d\n", "Blob bytes", t.BlobBytes)
	fmt.Fprintf(w, "%-18s %12s\n", "Avg blob bytes", avgBlob)
	fmt.Fprintf(w, "%-18s %12d\n", "Resolutions", t.Resolutions)
	fmt.Fprintf(w, "%-18s %12s\n", "Resolve time", t.ResolveTime.Round(time.Millisecond))
	fmt.Fprintf(w, "%-18s %12d\n", "Unpack errors", t.UnpackErrors)
	fmt.Fprintln(w, sep)

	if len(keys) > 0 {
		fmt.Fprintf(w, "Configured settings\n")
		fmt.Fprintln(w, sep)
		fmt.Fprintf(w, "%-30s %24s\n", "Name", "Value")
		fmt.Fprintln(w, sep)
		for _, k := range keys {
			fmt.Fprintf(w, "%-30s %24s\n", k, st[k])
		}
		fmt.Fprintln(w, sep)
	}
}

func resetTotalsForTests() {
	for _, c := range []*atomic.Int64{
		&sequencesSubmitted, &tasksSubmitted, &flushes, &flushErrors, &blobsPacked,
		&blobBytes, &resolutions, &resolveNanos, &unpackErrors,
	} {
		c.Store(0)
	}
	settingsMu.Lock()
	defer settingsMu.Unlock()
	for k := range settings {
		delete(settings, k)
	}
}
