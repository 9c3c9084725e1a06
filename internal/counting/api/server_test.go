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

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"gigacount/internal/counting/trie"
	"gigacount/pkg/ngram"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	c := trie.New(2)
	c.CountBatch([]ngram.Sequence{{1, 2}, {1, 3}, {1, 2}, {4}})

	mux := http.NewServeMux()
	NewServer(c).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestServer_Counts(t *testing.T) {
	ts := newTestServer(t)

	var got countsResponse
	if code := getJSON(t, ts, "/counts?seq=1,2", &got); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if got.Context != 3 || got.Count != 2 {
		t.Fatalf("counts = (%d, %d), want (3, 2)", got.Context, got.Count)
	}

	if code := getJSON(t, ts, "/counts", nil); code != http.StatusBadRequest {
		t.Fatalf("missing seq: expected 400, got %d", code)
	}
	if code := getJSON(t, ts, "/counts?seq=1,x", nil); code != http.StatusBadRequest {
		t.Fatalf("bad token: expected 400, got %d", code)
	}
}

func TestServer_Successors(t *testing.T) {
	ts := newTestServer(t)

	var got successorsResponse
	if code := getJSON(t, ts, "/successors?ctx=1&limit=1", &got); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if got.Distinct != 2 || !reflect.DeepEqual(got.Top, []uint32{2}) {
		t.Fatalf("successors = %+v, want distinct 2 top [2]", got)
	}

	// Empty ctx is the root.
	got = successorsResponse{}
	getJSON(t, ts, "/successors", &got)
	if got.Distinct != 2 || !reflect.DeepEqual(got.Top, []uint32{1, 4}) {
		t.Fatalf("root successors = %+v", got)
	}

	got = successorsResponse{}
	getJSON(t, ts, "/successors?ctx=9", &got)
	if got.Top == nil || len(got.Top) != 0 {
		t.Fatalf("unknown ctx should yield an empty list, got %+v", got.Top)
	}
}

func TestServer_CountOfCountAndDistinct(t *testing.T) {
	ts := newTestServer(t)

	var coc countOfCountResponse
	if code := getJSON(t, ts, "/count-of-count?n=2&count=1", &coc); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if coc.Nodes != 1 {
		t.Fatalf("count-of-count(2,1) = %d, want 1", coc.Nodes)
	}
	if code := getJSON(t, ts, "/count-of-count?n=0&count=1", nil); code != http.StatusBadRequest {
		t.Fatalf("n=0: expected 400, got %d", code)
	}

	var d distinctResponse
	if code := getJSON(t, ts, "/distinct?ctx=1&range=2", &d); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !reflect.DeepEqual(d.Buckets, []int{1, 1}) {
		t.Fatalf("distinct buckets = %v, want [1 1]", d.Buckets)
	}
	if code := getJSON(t, ts, "/distinct?ctx=1", nil); code != http.StatusBadRequest {
		t.Fatalf("missing range: expected 400, got %d", code)
	}
}

func TestServer_TotalAndMethod(t *testing.T) {
	ts := newTestServer(t)

	var got map[string]int64
	if code := getJSON(t, ts, "/total", &got); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if got["total"] != 4 {
		t.Fatalf("total = %d, want 4", got["total"])
	}

	resp, err := ts.Client().Post(ts.URL+"/total", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST /total: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestServer_RejectsOversizedQueries(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		path string
		want int
	}{
		{"/distinct?ctx=1&range=1024", http.StatusOK},
		{"/distinct?ctx=1&range=1025", http.StatusBadRequest},
		{"/distinct?ctx=1&range=20000000", http.StatusBadRequest},
		{"/successors?ctx=1&limit=1000", http.StatusOK},
		{"/successors?ctx=1&limit=1001", http.StatusBadRequest},
		{"/successors?ctx=1&limit=-1", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if code := getJSON(t, ts, tc.path, nil); code != tc.want {
			t.Fatalf("GET %s: expected %d, got %d", tc.path, tc.want, code)
		}
	}
}

func TestServer_NewHTTPServerHasTimeouts(t *testing.T) {
	srv := NewServer(trie.New(1)).NewHTTPServer("127.0.0.1:0")
	if srv.Addr != "127.0.0.1:0" || srv.Handler == nil {
		t.Fatalf("server not configured: addr=%q handler=%v", srv.Addr, srv.Handler)
	}
	if srv.ReadHeaderTimeout <= 0 || srv.ReadTimeout <= 0 || srv.WriteTimeout <= 0 || srv.IdleTimeout <= 0 {
		t.Fatalf("expected all timeouts set, got header=%s read=%s write=%s idle=%s",
			srv.ReadHeaderTimeout, srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/total", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/total through NewHTTPServer handler: expected 200, got %d", rec.Code)
	}
}
