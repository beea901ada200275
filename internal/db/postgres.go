package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"userposts/internal/model"
)

// NewPostgresPool creates a connection pool for the JSONB-backed gateway.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 50
	// Reduce planning overhead by caching prepared statements per connection.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 256
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Postgres stores each collection as a table of JSONB documents.
// seq preserves insertion order; it never leaves the gateway.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects and ensures a table exists for every collection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := NewPostgresPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	for _, name := range Collections {
		table := pgx.Identifier{name}.Sanitize()
		index := pgx.Identifier{name + "_doc_gin"}.Sanitize()
		schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
	seq BIGSERIAL PRIMARY KEY,
	doc JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (doc jsonb_path_ops);`, table, index, table)
		// Multi-statement DDL needs the simple protocol.
		if _, err := pool.Exec(ctx, schema, pgx.QueryExecModeSimpleProtocol); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure table %s: %w", name, err)
		}
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Collection(name string) Collection {
	return &pgCollection{pool: p.pool, name: name, table: pgx.Identifier{name}.Sanitize()}
}

func (p *Postgres) Close(context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

type pgCollection struct {
	pool  *pgxpool.Pool
	name  string
	table string
}

// where renders the predicate for f; args start at $1.
func (c *pgCollection) where(f Filter) (string, []any) {
	switch {
	case f.matchesAll():
		return "TRUE", nil
	case len(f.Values) == 1 && isScalar(f.Values[0]):
		// Containment matches numerically, so 1 and 1.0 compare equal.
		return "doc @> $1", []any{map[string]any{f.Field: f.Values[0]}}
	case len(f.Values) == 1:
		// Containment would accept a stored object that merely includes the
		// filter object; objects and arrays must compare whole.
		return "(doc -> $2::text) = $1::jsonb", []any{f.Values[0], f.Field}
	}
	return "(doc -> $2::text) IN (SELECT jsonb_array_elements($1::jsonb))", []any{f.Values, f.Field}
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any, model.Document:
		return false
	}
	return true
}

func (c *pgCollection) Find(ctx context.Context, f Filter) ([]model.Document, error) {
	if f.matchesNone() {
		return []model.Document{}, nil
	}
	cond, args := c.where(f)
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE %s ORDER BY seq;`, c.table, cond)
	rows, err := c.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", c.name, f, err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		doc, err := model.DecodeDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s document: %w", c.name, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *pgCollection) FindOne(ctx context.Context, f Filter) (model.Document, error) {
	if f.matchesNone() {
		return nil, ErrNotFound
	}
	cond, args := c.where(f)
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE %s ORDER BY seq LIMIT 1;`, c.table, cond)
	var raw []byte
	err := c.pool.QueryRow(ctx, q, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one %s %s: %w", c.name, f, err)
	}
	doc, err := model.DecodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s document: %w", c.name, err)
	}
	return doc, nil
}

func (c *pgCollection) InsertOne(ctx context.Context, doc model.Document) error {
	q := fmt.Sprintf(`INSERT INTO %s (doc) VALUES ($1);`, c.table)
	if _, err := c.pool.Exec(ctx, q, map[string]any(doc)); err != nil {
		return fmt.Errorf("insert %s: %w", c.name, err)
	}
	return nil
}

// InsertMany queues one INSERT per document and sends them in a single
// round-trip.
func (c *pgCollection) InsertMany(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s (doc) VALUES ($1);`, c.table)
	batch := &pgx.Batch{}
	for _, d := range docs {
		batch.Queue(q, map[string]any(d))
	}
	br := c.pool.SendBatch(ctx, batch)
	for i := 0; i < len(docs); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert many %s: batch exec: %w", c.name, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert many %s: batch close: %w", c.name, err)
	}
	return nil
}

func (c *pgCollection) DeleteOne(ctx context.Context, f Filter) (int64, error) {
	if f.matchesNone() {
		return 0, nil
	}
	cond, args := c.where(f)
	q := fmt.Sprintf(`DELETE FROM %s WHERE seq = (SELECT seq FROM %s WHERE %s ORDER BY seq LIMIT 1);`, c.table, c.table, cond)
	tag, err := c.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete one %s %s: %w", c.name, f, err)
	}
	return tag.RowsAffected(), nil
}

func (c *pgCollection) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	if f.matchesNone() {
		return 0, nil
	}
	cond, args := c.where(f)
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s;`, c.table, cond)
	tag, err := c.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete many %s %s: %w", c.name, f, err)
	}
	return tag.RowsAffected(), nil
}
