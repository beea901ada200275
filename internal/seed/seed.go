// Package seed replaces the stored users, posts and comments with the
// canned dataset published by a jsonplaceholder-style source.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"userposts/internal/apperr"
	"userposts/internal/db"
	"userposts/internal/model"
)

// Config locates the seed source.
type Config struct {
	BaseURL string        `env:"SEED_BASE_URL" envDefault:"https://jsonplaceholder.typicode.com"`
	Timeout time.Duration `env:"SEED_TIMEOUT" envDefault:"30s"`
}

// Summary reports how many records each collection received.
type Summary struct {
	Users    int `json:"users"`
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
}

// Loader fetches the dataset and writes it through the gateway.
type Loader struct {
	store   db.Gateway
	client  *http.Client
	baseURL string
}

// NewLoader builds a Loader. A nil client gets one with cfg.Timeout.
func NewLoader(store db.Gateway, client *http.Client, cfg Config) *Loader {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Loader{
		store:   store,
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

type dataset struct {
	users    []model.Document
	posts    []model.Document
	comments []model.Document
}

// Load fetches users, posts and comments concurrently. Only when all three
// arrive does it clear the collections and insert the new data; a failed
// fetch leaves the store untouched.
func (l *Loader) Load(ctx context.Context) (Summary, error) {
	ctx, span := otel.Tracer("userposts/seed").Start(ctx, "seed.Load")
	defer span.End()

	data, err := l.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		return Summary{}, err
	}
	if err := l.replace(ctx, data); err != nil {
		span.RecordError(err)
		return Summary{}, err
	}
	sum := Summary{Users: len(data.users), Posts: len(data.posts), Comments: len(data.comments)}
	span.SetAttributes(
		attribute.Int("seed.users", sum.Users),
		attribute.Int("seed.posts", sum.Posts),
		attribute.Int("seed.comments", sum.Comments),
	)
	log.Printf("seed loaded users=%d posts=%d comments=%d", sum.Users, sum.Posts, sum.Comments)
	return sum, nil
}

func (l *Loader) fetch(ctx context.Context) (dataset, error) {
	var data dataset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var users []model.Document
		if err := l.getJSON(gctx, db.Users, &users); err != nil {
			return err
		}
		for i, u := range users {
			if u == nil {
				return apperr.Upstream(fmt.Sprintf("fetch users: record %d is not an object", i))
			}
			users[i] = model.Normalize(u)
		}
		data.users = users
		return nil
	})
	g.Go(func() error {
		var posts []model.Post
		if err := l.getJSON(gctx, db.Posts, &posts); err != nil {
			return err
		}
		data.posts = make([]model.Document, 0, len(posts))
		for _, p := range posts {
			data.posts = append(data.posts, p.Document())
		}
		return nil
	})
	g.Go(func() error {
		var comments []model.Comment
		if err := l.getJSON(gctx, db.Comments, &comments); err != nil {
			return err
		}
		data.comments = make([]model.Document, 0, len(comments))
		for _, c := range comments {
			data.comments = append(data.comments, c.Document())
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return dataset{}, err
	}
	return data, nil
}

// getJSON decodes {baseURL}/{resource} into out.
func (l *Loader) getJSON(ctx context.Context, resource string, out any) error {
	url := l.baseURL + "/" + resource
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, err, "fetch %s", resource)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, err, "fetch %s", resource)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return apperr.Upstream(fmt.Sprintf("fetch %s: unexpected status %d", resource, resp.StatusCode))
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return apperr.Wrap(apperr.KindUpstream, err, "decode %s", resource)
	}
	return nil
}

// replace clears every collection, then inserts the fetched data.
// The steps are independent writes; a failure midway leaves a partial state.
func (l *Loader) replace(ctx context.Context, data dataset) error {
	for _, name := range db.Collections {
		if _, err := l.store.Collection(name).DeleteMany(ctx, db.All()); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "clear %s", name)
		}
	}
	inserts := []struct {
		name string
		docs []model.Document
	}{
		{db.Users, data.users},
		{db.Posts, data.posts},
		{db.Comments, data.comments},
	}
	for _, ins := range inserts {
		if err := l.store.Collection(ins.name).InsertMany(ctx, ins.docs); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "insert %s", ins.name)
		}
	}
	return nil
}
