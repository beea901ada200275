// Package bench drives concurrent GET /users/{id} requests against a running
// server and aggregates latency and throughput.
package bench

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config controls the workload.
type Config struct {
	Addr        string
	Concurrency int
	Requests    int
	Users       int
	Client      *http.Client
}

// Report is the aggregate of one run. Latency figures cover successful
// requests only.
type Report struct {
	Requests    int
	Concurrency int
	Errors      int
	Avg         time.Duration
	P95         time.Duration
	QPS         float64
}

// String renders the report the way the CLI prints it.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Requests: %d, Concurrency: %d, Errors: %d\n", r.Requests, r.Concurrency, r.Errors)
	fmt.Fprintf(&b, "Avg latency: %s\n", r.Avg.Truncate(time.Microsecond))
	fmt.Fprintf(&b, "P95 latency: %s\n", r.P95.Truncate(time.Microsecond))
	fmt.Fprintf(&b, "Total QPS: %.2f\n", r.QPS)
	return b.String()
}

// result is a per-request measurement for aggregation.
type result struct {
	latency time.Duration
	err     error
}

// Run issues cfg.Requests lookups of random user ids in 1..cfg.Users across
// cfg.Concurrency workers. A 404 counts as a successful lookup.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if cfg.Concurrency <= 0 || cfg.Requests <= 0 || cfg.Users <= 0 {
		return Report{}, fmt.Errorf("concurrency, requests and users must be positive")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	base := strings.TrimRight(cfg.Addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	jobs := make(chan int64, cfg.Requests)
	results := make(chan result, cfg.Requests)
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < cfg.Requests; i++ {
		jobs <- 1 + r.Int63n(int64(cfg.Users))
	}
	close(jobs)

	// Workers report failures as results; Wait never sees an error.
	var g errgroup.Group
	startAll := time.Now()
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for id := range jobs {
				start := time.Now()
				err := getUser(ctx, client, base, id)
				results <- result{latency: time.Since(start), err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	total := time.Since(startAll)

	var latencies []time.Duration
	var errs int
	for res := range results {
		if res.err != nil {
			errs++
			continue
		}
		latencies = append(latencies, res.latency)
	}
	rep := Report{Requests: len(latencies), Concurrency: cfg.Concurrency, Errors: errs}
	if len(latencies) == 0 {
		return rep, fmt.Errorf("no successful requests (errors=%d)", errs)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	rep.Avg = time.Duration(int64(sum) / int64(len(latencies)))
	rep.P95 = latencies[percentileIndex(len(latencies), 0.95)]
	rep.QPS = float64(len(latencies)) / total.Seconds()
	return rep, nil
}

func percentileIndex(n int, p float64) int {
	idx := int(float64(n)*p) - 1
	if idx < 0 {
		return 0
	}
	return idx
}

func getUser(ctx context.Context, client *http.Client, base string, id int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/users/%d", base, id), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("user %d: status %d", id, resp.StatusCode)
	}
	return nil
}
