// query-loadgen is a small HTTP load generator for the ngram-count query
// server. It reuses connections and spreads requests over workers.
//
// Modes:
//   - counts:     GET /counts?seq=a,b,...
//   - successors: GET /successors?ctx=a,...&limit=10
//
// Sequences are drawn from a Zipf distribution over token ids so that the hot
// part of the trie sees most of the traffic.
//
// Usage example:
//
//	query-loadgen -base=http://127.0.0.1:8080 -mode=counts -vocab=5000 -order=3 -n=20000 -c=16
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gigacount/pkg/ngram"
)

func main() {
	var (
		base    = flag.String("base", "http://127.0.0.1:8080", "Base URL including scheme and host")
		mode    = flag.String("mode", "counts", "Mode: counts|successors")
		vocab   = flag.Uint64("vocab", 5000, "Largest token id drawn")
		order   = flag.Int("order", 3, "Longest sequence queried")
		skew    = flag.Float64("skew", 1.1, "Zipf exponent (> 1)")
		N       = flag.Int("n", 10000, "Total requests to send")
		conc    = flag.Int("c", 8, "Number of concurrent workers")
		timeout = flag.Duration("timeout", 30*time.Second, "Overall timeout for the run")
	)
	flag.Parse()

	var path, param string
	switch strings.ToLower(*mode) {
	case "counts":
		path, param = "/counts", "seq"
	case "successors":
		path, param = "/successors", "ctx"
	default:
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want counts|successors)\n", *mode)
		os.Exit(2)
	}
	if *N <= 0 || *conc <= 0 || *order <= 0 || *vocab == 0 || *skew <= 1 {
		fmt.Fprintln(os.Stderr, "-n, -c, -order and -vocab must be > 0 and -skew > 1")
		os.Exit(2)
	}
	fullPath := strings.TrimRight(*base, "/") + path

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 256,
		IdleConnTimeout:     30 * time.Second,
	}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var ok, failed atomic.Int64
	worker := func(id, count int) {
		r := rand.New(rand.NewPCG(uint64(id), uint64(time.Now().UnixNano())))
		z := rand.NewZipf(r, *skew, 1, *vocab)
		for i := 0; i < count && ctx.Err() == nil; i++ {
			seq := make(ngram.Sequence, 1+r.IntN(*order))
			for j := range seq {
				seq[j] = uint32(z.Uint64())
			}
			u := fullPath + "?" + url.Values{param: {seq.String()}}.Encode()
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			resp, err := client.Do(req)
			if err != nil {
				failed.Add(1)
				time.Sleep(200 * time.Microsecond)
				continue
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ok.Add(1)
			} else {
				failed.Add(1)
			}
		}
	}

	start := time.Now()
	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()
	elapsed := max(time.Since(start), time.Millisecond)
	fmt.Printf("QueryLoadGen: mode=%s N=%d ok=%d failed=%d c=%d go=%d Duration=%s Throughput=%.0f req/s\n",
		*mode, *N, ok.Load(), failed.Load(), *conc, runtime.GOMAXPROCS(0), elapsed.Truncate(time.Millisecond),
		float64(ok.Load()+failed.Load())/elapsed.Seconds())
}
