package seed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"userposts/internal/apperr"
	"userposts/internal/db"
	"userposts/internal/model"
)

const (
	usersJSON    = `[{"id":1,"name":"Leanne Graham","address":{"city":"Gwenborough"}},{"id":2,"name":"Ervin Howell"}]`
	postsJSON    = `[{"userId":1,"id":1,"title":"t1","body":"b1"},{"userId":1,"id":2,"title":"t2","body":"b2"},{"userId":2,"id":3,"title":"t3","body":"b3"}]`
	commentsJSON = `[{"postId":1,"id":1,"name":"n1","email":"a@x","body":"c1"},{"postId":1,"id":2,"name":"n2","email":"b@x","body":"c2"},{"postId":3,"id":3,"name":"n3","email":"c@x","body":"c3"}]`
)

func newFixtureServer(t *testing.T, overrides map[string]func(http.ResponseWriter)) *httptest.Server {
	t.Helper()
	bodies := map[string]string{
		"/users":    usersJSON,
		"/posts":    postsJSON,
		"/comments": commentsJSON,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fn, ok := overrides[r.URL.Path]; ok {
			fn(w)
			return
		}
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newStore(t *testing.T) db.Gateway {
	t.Helper()
	gw, err := db.OpenSQLite(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close(context.Background()) })
	return gw
}

func count(t *testing.T, gw db.Gateway, name string) int {
	t.Helper()
	docs, err := gw.Collection(name).Find(context.Background(), db.All())
	if err != nil {
		t.Fatalf("find %s: %v", name, err)
	}
	return len(docs)
}

func TestLoadReplacesCollections(t *testing.T) {
	t.Parallel()

	srv := newFixtureServer(t, nil)
	gw := newStore(t)
	ctx := context.Background()

	stale := model.Document{"id": int64(99), "name": "stale"}
	if err := gw.Collection(db.Users).InsertOne(ctx, stale); err != nil {
		t.Fatalf("insert stale: %v", err)
	}

	loader := NewLoader(gw, srv.Client(), Config{BaseURL: srv.URL + "/"})
	sum, err := loader.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sum != (Summary{Users: 2, Posts: 3, Comments: 3}) {
		t.Fatalf("summary = %+v", sum)
	}
	if got := count(t, gw, db.Users); got != 2 {
		t.Fatalf("users = %d, want 2", got)
	}
	if _, err := gw.Collection(db.Users).FindOne(ctx, db.Eq(model.FieldID, int64(99))); err != db.ErrNotFound {
		t.Fatalf("stale user err = %v, want ErrNotFound", err)
	}

	user, err := gw.Collection(db.Users).FindOne(ctx, db.Eq(model.FieldID, int64(1)))
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if _, ok := user["address"].(map[string]any); !ok {
		t.Fatalf("extra user fields were dropped: %#v", user)
	}
	comments, err := gw.Collection(db.Comments).Find(ctx, db.Eq(model.FieldPostID, int64(1)))
	if err != nil || len(comments) != 2 {
		t.Fatalf("comments for post 1 = (%d, %v), want 2", len(comments), err)
	}
}

func TestLoadIsRepeatable(t *testing.T) {
	t.Parallel()

	srv := newFixtureServer(t, nil)
	gw := newStore(t)
	loader := NewLoader(gw, srv.Client(), Config{BaseURL: srv.URL})

	for i := 0; i < 2; i++ {
		if _, err := loader.Load(context.Background()); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if got := count(t, gw, db.Posts); got != 3 {
		t.Fatalf("posts = %d, want 3", got)
	}
	if got := count(t, gw, db.Comments); got != 3 {
		t.Fatalf("comments = %d, want 3", got)
	}
}

func TestLoadFetchFailureLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	cases := map[string]func(http.ResponseWriter){
		"/comments": func(w http.ResponseWriter) { w.WriteHeader(http.StatusBadGateway) },
		"/posts":    func(w http.ResponseWriter) { _, _ = w.Write([]byte(`{"not":"an array"}`)) },
		"/users":    func(w http.ResponseWriter) { _, _ = w.Write([]byte(`[{"id":1},null]`)) },
	}
	for path, fn := range cases {
		path, fn := path, fn
		t.Run(strings.TrimPrefix(path, "/"), func(t *testing.T) {
			t.Parallel()

			srv := newFixtureServer(t, map[string]func(http.ResponseWriter){path: fn})
			gw := newStore(t)
			ctx := context.Background()
			keep := model.Document{"id": int64(7), "name": "keep"}
			if err := gw.Collection(db.Users).InsertOne(ctx, keep); err != nil {
				t.Fatalf("insert: %v", err)
			}

			_, err := NewLoader(gw, srv.Client(), Config{BaseURL: srv.URL}).Load(ctx)
			if err == nil {
				t.Fatal("expected error")
			}
			if apperr.KindOf(err) != apperr.KindUpstream {
				t.Fatalf("kind = %q, want %q (err=%v)", apperr.KindOf(err), apperr.KindUpstream, err)
			}
			if got := count(t, gw, db.Users); got != 1 {
				t.Fatalf("users = %d, want 1 (untouched)", got)
			}
		})
	}
}

func TestLoadUnreachableSource(t *testing.T) {
	t.Parallel()

	srv := newFixtureServer(t, nil)
	url := srv.URL
	srv.Close()

	_, err := NewLoader(newStore(t), nil, Config{BaseURL: url}).Load(context.Background())
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("err = %v, want upstream", err)
	}
}

func TestLoadFetchesConcurrently(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == 3 {
			close(release)
		}
		<-release
		inFlight.Add(-1)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	sum, err := NewLoader(newStore(t), srv.Client(), Config{BaseURL: srv.URL}).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if peak.Load() != 3 {
		t.Fatalf("peak concurrent fetches = %d, want 3", peak.Load())
	}
	if sum != (Summary{}) {
		t.Fatalf("summary = %+v, want empty", sum)
	}
}
