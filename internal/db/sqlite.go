package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"userposts/internal/model"

	_ "modernc.org/sqlite"
)

// SQLite stores each collection as a table of JSON text documents and
// filters with json_extract.
type SQLite struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) the database file at path and ensures a table
// exists for every collection.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, name := range Collections {
		schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		  seq INTEGER PRIMARY KEY AUTOINCREMENT,
		  doc TEXT NOT NULL
		)`, quoteIdent(name))
		if _, err := sqlDB.Exec(schema); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ensure table %s: %w", name, err)
		}
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

func (s *SQLite) Collection(name string) Collection {
	return &sqliteCollection{sqlDB: s.sqlDB, name: name, table: quoteIdent(name)}
}

// Close closes the SQLite handle.
func (s *SQLite) Close(context.Context) error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type sqliteCollection struct {
	sqlDB *sql.DB
	name  string
	table string
}

func (c *sqliteCollection) where(f Filter) (string, []any) {
	if f.matchesAll() {
		return "1", nil
	}
	path := "$." + f.Field
	conds := make([]string, 0, len(f.Values))
	args := make([]any, 0, 2*len(f.Values))
	for _, v := range f.Values {
		cond, vargs := sqliteMatch(path, v)
		conds = append(conds, cond)
		args = append(args, vargs...)
	}
	return "(" + strings.Join(conds, " OR ") + ")", args
}

// sqliteMatch is the predicate for "field at path equals v". json_extract
// alone conflates true with 1 and an object with its JSON text, so the JSON
// type of the stored value is checked as well.
func sqliteMatch(path string, v any) (string, []any) {
	switch t := v.(type) {
	case nil:
		return "json_type(doc, ?) = 'null'", []any{path}
	case bool:
		if t {
			return "json_type(doc, ?) = 'true'", []any{path}
		}
		return "json_type(doc, ?) = 'false'", []any{path}
	case string:
		return "(json_type(doc, ?) = 'text' AND json_extract(doc, ?) = ?)", []any{path, path, t}
	case map[string]any, []any, model.Document:
		raw, err := json.Marshal(t)
		if err != nil {
			return "0", nil
		}
		// Both sides are encoding/json output with sorted keys; json() minifies.
		return "(json_type(doc, ?) IN ('object', 'array') AND json(json_extract(doc, ?)) = json(?))", []any{path, path, string(raw)}
	}
	return "(json_type(doc, ?) IN ('integer', 'real') AND json_extract(doc, ?) = ?)", []any{path, path, v}
}

func (c *sqliteCollection) Find(ctx context.Context, f Filter) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.matchesNone() {
		return []model.Document{}, nil
	}
	cond, args := c.where(f)
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE %s ORDER BY seq`, c.table, cond)
	rows, err := c.sqlDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", c.name, f, err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		doc, err := model.DecodeDocument([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s document: %w", c.name, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *sqliteCollection) FindOne(ctx context.Context, f Filter) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.matchesNone() {
		return nil, ErrNotFound
	}
	cond, args := c.where(f)
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE %s ORDER BY seq LIMIT 1`, c.table, cond)
	var raw string
	err := c.sqlDB.QueryRowContext(ctx, q, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one %s %s: %w", c.name, f, err)
	}
	doc, err := model.DecodeDocument([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode %s document: %w", c.name, err)
	}
	return doc, nil
}

func (c *sqliteCollection) InsertOne(ctx context.Context, doc model.Document) error {
	return c.InsertMany(ctx, []model.Document{doc})
}

// InsertMany writes all documents in one transaction.
func (c *sqliteCollection) InsertMany(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := c.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert %s: begin: %w", c.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (doc) VALUES (?)`, c.table))
	if err != nil {
		return fmt.Errorf("insert %s: prepare: %w", c.name, err)
	}
	defer stmt.Close()
	for _, d := range docs {
		raw, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("insert %s: encode: %w", c.name, err)
		}
		if _, err := stmt.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("insert %s: %w", c.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert %s: commit: %w", c.name, err)
	}
	return nil
}

func (c *sqliteCollection) DeleteOne(ctx context.Context, f Filter) (int64, error) {
	if f.matchesNone() {
		return 0, nil
	}
	cond, args := c.where(f)
	q := fmt.Sprintf(`DELETE FROM %s WHERE seq = (SELECT seq FROM %s WHERE %s ORDER BY seq LIMIT 1)`, c.table, c.table, cond)
	return c.exec(ctx, "delete one", f, q, args)
}

func (c *sqliteCollection) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	if f.matchesNone() {
		return 0, nil
	}
	cond, args := c.where(f)
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s`, c.table, cond)
	return c.exec(ctx, "delete many", f, q, args)
}

func (c *sqliteCollection) exec(ctx context.Context, op string, f Filter, q string, args []any) (int64, error) {
	res, err := c.sqlDB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%s %s %s: %w", op, c.name, f, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s %s: rows affected: %w", op, c.name, err)
	}
	return n, nil
}
