// Package store persists transactions, categories, rules and settings in
// a single SQLite database file.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"expensetracker/internal/domain"
)

//go:embed schema.sql
var schema string

// Store wraps the database handle. All methods are safe for concurrent
// use; SQLite serialises writers underneath.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database file, applies the schema and seeds
// the default category vocabulary.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, cat := range domain.DefaultCategories {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO categories (name) VALUES (?)", cat); err != nil {
			return fmt.Errorf("seed categories: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
