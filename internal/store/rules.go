package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"expensetracker/internal/domain"
)

// UpsertRule creates or updates a keyword -> category rule. The keyword is
// unique case-insensitively: repeating the same pair bumps its confidence,
// mapping it to a different category overwrites the rule and resets the
// count to 1.
func (s *Store) UpsertRule(ctx context.Context, keyword, category, source string) error {
	keyword = strings.TrimSpace(keyword)
	if len(keyword) < 2 {
		return nil
	}

	var id int64
	var existingCat string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, category FROM category_rules WHERE UPPER(keyword) = UPPER(?)",
		keyword).Scan(&id, &existingCat)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO category_rules (keyword, category, source) VALUES (?, ?, ?)",
			keyword, category, source)
	case err != nil:
		return fmt.Errorf("lookup rule: %w", err)
	case existingCat == category:
		_, err = s.db.ExecContext(ctx,
			"UPDATE category_rules SET match_count = match_count + 1 WHERE id = ?", id)
	default:
		// User is overriding the keyword's meaning; confidence starts over.
		_, err = s.db.ExecContext(ctx,
			"UPDATE category_rules SET category = ?, match_count = 1, source = ? WHERE id = ?",
			category, source, id)
	}
	if err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	return nil
}

// ListRules returns every rule, most confident first.
func (s *Store) ListRules(ctx context.Context) ([]domain.CategoryRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, keyword, category, source, match_count
		FROM category_rules
		ORDER BY match_count DESC, keyword`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryRule
	for rows.Next() {
		var r domain.CategoryRule
		if err := rows.Scan(&r.ID, &r.Keyword, &r.Category, &r.Source, &r.MatchCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRule removes one rule.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM category_rules WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// CategorizedExamples returns a diverse sample of confirmed
// categorizations to use as few-shot prompt context. Grouping by category
// and description keeps the sample varied.
func (s *Store) CategorizedExamples(ctx context.Context, limit int) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT description, category
		FROM transactions
		WHERE category IS NOT NULL AND category != '' AND is_excluded = 0
		GROUP BY category, description
		ORDER BY MAX(created_at) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("categorized examples: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.Description, &t.Category); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
