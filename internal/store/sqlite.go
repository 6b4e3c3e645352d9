package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteStore keeps each document as a JSON row. Live updates are delivered to
// watchers registered in the same process.
type SQLiteStore struct {
	db     *sqlx.DB
	hub    *hub
	logger *zerolog.Logger
}

type documentRow struct {
	ID   string `db:"id"`
	Data string `db:"data"`
}

func NewSQLiteStore(path string, logger *zerolog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, hub: newHub(), logger: logger}, nil
}

func createTables(db *sqlx.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
            collection TEXT NOT NULL,
            id TEXT NOT NULL,
            data TEXT NOT NULL,
            updated_at DATETIME NOT NULL,
            PRIMARY KEY (collection, id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	query, args, err := sq.Select("id", "data").
		From("documents").
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return Document{}, fmt.Errorf("build get query: %w", err)
	}

	var row documentRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return row.document()
}

func (s *SQLiteStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	builder := sq.Select("id", "data").
		From("documents").
		Where(sq.Eq{"collection": collection})

	if q.Field != "" {
		path := jsonPath(q.Field)
		builder = builder.Where("json_extract(data, ?) IS NOT NULL", path)
		if q.Start != nil {
			builder = builder.Where("json_extract(data, ?) >= ?", path, q.Start)
		}
		if q.End != nil {
			builder = builder.Where("json_extract(data, ?) <= ?", path, q.End)
		}
	}
	if q.OrderBy != "" {
		builder = builder.OrderByClause("json_extract(data, ?) ASC", jsonPath(q.OrderBy))
	}
	builder = builder.OrderBy("id ASC")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build range query: %w", err)
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if err := validateName(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	before, after, err := s.write(ctx, collection, id, func(existing map[string]any, found bool) (map[string]any, error) {
		if merge && found {
			return mergeData(existing, data), nil
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	s.hub.publish(collection, before, after)
	return nil
}

func (s *SQLiteStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateName(collection); err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, after, err := s.write(ctx, collection, id, func(_ map[string]any, _ bool) (map[string]any, error) {
		return data, nil
	})
	if err != nil {
		return "", err
	}
	s.hub.publish(collection, nil, after)
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, data map[string]any) error {
	before, after, err := s.write(ctx, collection, id, func(existing map[string]any, found bool) (map[string]any, error) {
		if !found {
			return nil, ErrNotFound
		}
		return mergeData(existing, data), nil
	})
	if err != nil {
		return err
	}
	s.hub.publish(collection, before, after)
	return nil
}

// write reads the current document and stores the result of apply in one
// transaction.
func (s *SQLiteStore) write(
	ctx context.Context,
	collection, id string,
	apply func(existing map[string]any, found bool) (map[string]any, error),
) (map[string]any, map[string]any, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sq.Select("id", "data").
		From("documents").
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build get query: %w", err)
	}

	var before map[string]any
	var row documentRow
	err = tx.GetContext(ctx, &row, query, args...)
	switch {
	case err == nil:
		doc, decodeErr := row.document()
		if decodeErr != nil {
			return nil, nil, decodeErr
		}
		before = doc.Data
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, nil, err
	}

	next, err := apply(before, before != nil)
	if err != nil {
		return nil, nil, err
	}
	after, err := normalize(next)
	if err != nil {
		return nil, nil, err
	}
	raw, err := json.Marshal(after)
	if err != nil {
		return nil, nil, fmt.Errorf("encode document: %w", err)
	}

	upsert, args, err := sq.Insert("documents").
		Columns("collection", "id", "data", "updated_at").
		Values(collection, id, string(raw), time.Now().UTC()).
		Suffix("ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return before, after, nil
}

func (s *SQLiteStore) Watch(ctx context.Context, collection string, q Query, fn func([]Document)) (Unsubscribe, error) {
	if err := validateName(collection); err != nil {
		return nil, err
	}
	load := func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, collection, q)
	}
	w := newWatcher(q, load, fn, s.logger)
	unsubscribe := s.hub.add(collection, w)
	w.start(ctx)
	return unsubscribe, nil
}

func (s *SQLiteStore) Close() error {
	s.hub.closeAll()
	return s.db.Close()
}

func (r documentRow) document() (Document, error) {
	data := make(map[string]any)
	if err := json.Unmarshal([]byte(r.Data), &data); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", r.ID, err)
	}
	return Document{ID: r.ID, Data: data}, nil
}

func jsonPath(field string) string {
	return "$." + field
}
