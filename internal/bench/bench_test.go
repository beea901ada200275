package bench

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestRunCountsRequestsAndTreatsNotFoundAsSuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.HasPrefix(r.URL.Path, "/users/") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if hits.Load()%2 == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	rep, err := Run(context.Background(), Config{Addr: srv.URL, Concurrency: 4, Requests: 40, Users: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Requests != 40 || rep.Errors != 0 {
		t.Fatalf("report = %+v, want 40 requests and no errors", rep)
	}
	if hits.Load() != 40 {
		t.Fatalf("hits = %d, want 40", hits.Load())
	}
	if rep.P95 <= 0 || rep.QPS <= 0 {
		t.Fatalf("implausible report %+v", rep)
	}
}

func TestRunCountsServerErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rep, err := Run(context.Background(), Config{Addr: srv.URL, Concurrency: 2, Requests: 5, Users: 3})
	if err == nil {
		t.Fatal("expected error when every request fails")
	}
	if rep.Errors != 5 {
		t.Fatalf("errors = %d, want 5", rep.Errors)
	}
}

func TestRunRejectsEmptyWorkload(t *testing.T) {
	t.Parallel()

	if _, err := Run(context.Background(), Config{Addr: "localhost:1", Concurrency: 0, Requests: 1, Users: 1}); err == nil {
		t.Fatal("expected error for zero concurrency")
	}
}

func TestPercentileIndex(t *testing.T) {
	t.Parallel()

	cases := map[int]int{1: 0, 10: 8, 20: 18, 100: 94}
	for n, want := range cases {
		if got := percentileIndex(n, 0.95); got != want {
			t.Fatalf("percentileIndex(%d) = %d, want %d", n, got, want)
		}
	}
}
