package store

import (
	"context"
	"fmt"
)

// ListCategories returns all category names sorted alphabetically.
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// AddCategory adds a category name, a no-op when it already exists.
func (s *Store) AddCategory(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO categories (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("add category: %w", err)
	}
	return nil
}
