package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"expensetracker/internal/dedup"
	"expensetracker/internal/domain"
)

const dateLayout = "2006-01-02"

// Filter narrows transaction listings. Zero values mean "no filter".
type Filter struct {
	Month           int
	Year            int
	Source          domain.Source
	IncludeExcluded bool
	Channel         dedup.Channel
}

func channelClause(ch dedup.Channel) string {
	switch ch {
	case dedup.ChannelEmail:
		return " AND uploaded_file LIKE 'email_%'"
	case dedup.ChannelFile:
		return " AND (uploaded_file IS NULL OR uploaded_file NOT LIKE 'email_%')"
	}
	return ""
}

const txnColumns = `id, date, description, amount, type, source,
	COALESCE(category, ''), is_cc_payment, is_excluded,
	COALESCE(month, 0), COALESCE(year, 0),
	COALESCE(uploaded_file, ''), COALESCE(email_body, '')`

func scanTransaction(row interface{ Scan(...any) error }) (domain.Transaction, error) {
	var t domain.Transaction
	var dateStr string
	var ccInt, exclInt int
	err := row.Scan(&t.ID, &dateStr, &t.Description, &t.Amount, &t.Type, &t.Source,
		&t.Category, &ccInt, &exclInt, &t.Month, &t.Year, &t.UploadedFile, &t.EmailBody)
	if err != nil {
		return t, err
	}
	t.Date, err = time.Parse(dateLayout, dateStr)
	if err != nil {
		return t, fmt.Errorf("bad date %q: %w", dateStr, err)
	}
	t.IsCCPayment = ccInt != 0
	t.IsExcluded = exclInt != 0
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	defer rows.Close()
	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTransactions bulk-inserts a parsed batch inside one transaction.
// Returns the number of rows written.
func (s *Store) InsertTransactions(ctx context.Context, txns []domain.Transaction) (int, error) {
	if len(txns) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions
			(date, description, amount, type, source, category,
			 is_cc_payment, is_excluded, month, year, uploaded_file, email_body)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range txns {
		_, err := stmt.ExecContext(ctx,
			t.Date.Format(dateLayout), t.Description, t.Amount, t.Type, t.Source,
			t.Category, boolInt(t.IsCCPayment), boolInt(t.IsExcluded),
			t.Month, t.Year, t.UploadedFile, t.EmailBody)
		if err != nil {
			return 0, fmt.Errorf("insert transaction: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return len(txns), nil
}

// ListTransactions returns transactions matching the filter, newest first.
func (s *Store) ListTransactions(ctx context.Context, f Filter) ([]domain.Transaction, error) {
	query := "SELECT " + txnColumns + " FROM transactions WHERE 1=1"
	var params []any

	if f.Month != 0 {
		query += " AND month = ?"
		params = append(params, f.Month)
	}
	if f.Year != 0 {
		query += " AND year = ?"
		params = append(params, f.Year)
	}
	if f.Source != "" {
		query += " AND source = ?"
		params = append(params, f.Source)
	}
	if !f.IncludeExcluded {
		query += " AND is_excluded = 0"
	}
	query += channelClause(f.Channel)
	query += " ORDER BY date DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

// GetTransaction fetches one row by ID.
func (s *Store) GetTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+txnColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if err != nil {
		return t, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// UpdateCategory sets the category of a single transaction.
func (s *Store) UpdateCategory(ctx context.Context, id int64, category string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET category = ? WHERE id = ?", category, id)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// UpdateExclusion marks or unmarks a transaction as excluded from totals.
func (s *Store) UpdateExclusion(ctx context.Context, id int64, excluded bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET is_excluded = ? WHERE id = ?", boolInt(excluded), id)
	if err != nil {
		return fmt.Errorf("update exclusion: %w", err)
	}
	return nil
}

// BulkUpdateCategories applies a batch of id -> category assignments.
func (s *Store) BulkUpdateCategories(ctx context.Context, updates map[int64]string) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk update: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "UPDATE transactions SET category = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare bulk update: %w", err)
	}
	defer stmt.Close()

	for id, cat := range updates {
		if _, err := stmt.ExecContext(ctx, cat, id); err != nil {
			return fmt.Errorf("update transaction %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// FlagCCPayments marks the rows as credit card bill payments, excludes
// them from totals and assigns the reserved category so the double-count
// disappears from every summary.
func (s *Store) FlagCCPayments(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.AddCategory(ctx, domain.CategoryCCPayment); err != nil {
		return err
	}
	query := fmt.Sprintf(
		"UPDATE transactions SET is_cc_payment = 1, is_excluded = 1, category = ? WHERE id IN (%s)",
		placeholders(len(ids)))
	params := make([]any, 0, len(ids)+1)
	params = append(params, domain.CategoryCCPayment)
	for _, id := range ids {
		params = append(params, id)
	}
	if _, err := s.db.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("flag cc payments: %w", err)
	}
	return nil
}

// UnflagCCPayments reverses FlagCCPayments for the given rows.
func (s *Store) UnflagCCPayments(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		"UPDATE transactions SET is_cc_payment = 0, is_excluded = 0 WHERE id IN (%s)",
		placeholders(len(ids)))
	params := make([]any, 0, len(ids))
	for _, id := range ids {
		params = append(params, id)
	}
	if _, err := s.db.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("unflag cc payments: %w", err)
	}
	return nil
}

// FindByKey returns stored rows with the same date, amount and type,
// scoped by channel. This is the candidate set for duplicate detection.
func (s *Store) FindByKey(ctx context.Context, date time.Time, amount float64, txnType domain.TxnType, channel dedup.Channel) ([]domain.Transaction, error) {
	query := "SELECT " + txnColumns + ` FROM transactions
		WHERE date = ? AND amount = ? AND type = ?` + channelClause(channel)
	rows, err := s.db.QueryContext(ctx, query, date.Format(dateLayout), amount, txnType)
	if err != nil {
		return nil, fmt.Errorf("find by key: %w", err)
	}
	return collectTransactions(rows)
}

var similarTokenSplit = regexp.MustCompile(`[/\-\s,.|]+`)

// genericTerms never identify a merchant on their own.
var genericTerms = map[string]struct{}{
	"BANK": {}, "HDFC": {}, "ICICI": {}, "AXIS": {}, "YESB": {}, "SBIN": {},
	"PAID": {}, "PAYMENT": {}, "PAYMEN": {}, "LIMITED": {}, "LTD": {},
	"NAVI": {}, "INDIA": {}, "POST": {}, "UPI": {},
	"P2M": {}, "P2A": {}, "P2V": {}, "NEFT": {}, "RTGS": {}, "IMPS": {},
}

// FindSimilarTransactions finds rows whose descriptions share merchant
// keywords with the given description, for bulk recategorization. The
// current transaction is excluded; category is deliberately not filtered
// so every related row is offered regardless of its present state.
func (s *Store) FindSimilarTransactions(ctx context.Context, description string, currentID int64, channel dedup.Channel) ([]domain.Transaction, error) {
	tokens := similarTokenSplit.Split(description, -1)

	var keywords []string
	for _, tok := range tokens {
		tok = strings.ToUpper(strings.TrimSpace(tok))
		if len(tok) < 4 || isDigits(tok) {
			continue
		}
		if _, generic := genericTerms[tok]; generic {
			continue
		}
		keywords = append(keywords, tok)
	}
	if len(keywords) == 0 {
		// Fallback: any 4+ char non-numeric token.
		for _, tok := range tokens {
			tok = strings.ToUpper(strings.TrimSpace(tok))
			if len(tok) >= 4 && !isDigits(tok) {
				keywords = append(keywords, tok)
			}
		}
	}
	if len(keywords) == 0 {
		return nil, nil
	}
	// Two keywords at most; stricter matching misses too many rows.
	if len(keywords) > 2 {
		keywords = keywords[:2]
	}

	query := "SELECT " + txnColumns + " FROM transactions WHERE id != ?"
	params := []any{currentID}
	for _, kw := range keywords {
		query += " AND UPPER(description) LIKE ?"
		params = append(params, "%"+kw+"%")
	}
	query += channelClause(channel)
	query += " ORDER BY date DESC"

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find similar transactions: %w", err)
	}
	return collectTransactions(rows)
}

// DeleteByUpload removes every transaction from one upload or email-sync
// batch. Returns the number of rows deleted.
func (s *Store) DeleteByUpload(ctx context.Context, uploadedFile string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM transactions WHERE uploaded_file = ?", uploadedFile)
	if err != nil {
		return 0, fmt.Errorf("delete by upload: %w", err)
	}
	return res.RowsAffected()
}

// MonthRef is one (year, month) pair that has data.
type MonthRef struct {
	Year  int
	Month int
}

// AvailableMonths lists the periods that have transactions, newest first.
func (s *Store) AvailableMonths(ctx context.Context, channel dedup.Channel) ([]MonthRef, error) {
	query := "SELECT DISTINCT year, month FROM transactions WHERE 1=1" +
		channelClause(channel) + " ORDER BY year DESC, month DESC"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("available months: %w", err)
	}
	defer rows.Close()

	var out []MonthRef
	for rows.Next() {
		var m MonthRef
		if err := rows.Scan(&m.Year, &m.Month); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MonthlySummary aggregates one period. Transfers and investments are
// carved out so the actual income and day-to-day spend can be derived.
type MonthlySummary struct {
	TotalEarnings float64
	TotalExpenses float64
	TransferIn    float64
	TransferOut   float64
	Investment    float64
}

// ActualEarnings is income without incoming self transfers.
func (m MonthlySummary) ActualEarnings() float64 {
	return m.TotalEarnings - m.TransferIn
}

// ActualExpenses is spending without outgoing transfers and investments.
func (m MonthlySummary) ActualExpenses() float64 {
	return m.TotalExpenses - m.TransferOut - m.Investment
}

// GetMonthlySummary aggregates all non-excluded rows of one period.
func (s *Store) GetMonthlySummary(ctx context.Context, month, year int, channel dedup.Channel) (MonthlySummary, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN type = 'credit' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'debit'  THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'credit' AND category = 'Transfer' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'debit'  AND category = 'Transfer' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'debit'  AND category = 'Investment' THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE month = ? AND year = ? AND is_excluded = 0` + channelClause(channel)

	var m MonthlySummary
	err := s.db.QueryRowContext(ctx, query, month, year).Scan(
		&m.TotalEarnings, &m.TotalExpenses, &m.TransferIn, &m.TransferOut, &m.Investment)
	if err != nil {
		return m, fmt.Errorf("monthly summary: %w", err)
	}
	return m, nil
}

// CategoryTotal is one slice of the spending breakdown.
type CategoryTotal struct {
	Category string
	Total    float64
}

// GetCategoryBreakdown returns debit spending grouped by category for one
// period, largest first. Uncategorized rows group under "Uncategorized".
func (s *Store) GetCategoryBreakdown(ctx context.Context, month, year int, channel dedup.Channel) ([]CategoryTotal, error) {
	query := `
		SELECT COALESCE(category, 'Uncategorized'), SUM(amount)
		FROM transactions
		WHERE month = ? AND year = ? AND type = 'debit' AND is_excluded = 0` +
		channelClause(channel) + `
		GROUP BY category
		ORDER BY SUM(amount) DESC`

	rows, err := s.db.QueryContext(ctx, query, month, year)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var c CategoryTotal
		if err := rows.Scan(&c.Category, &c.Total); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UploadRecord summarises one upload or email-sync batch.
type UploadRecord struct {
	UploadedFile string
	UploadedAt   string
	Count        int
	Month        int
	Year         int
	Source       domain.Source
	TotalDebits  float64
	TotalCredits float64
}

// UploadHistory lists past batches, newest first.
func (s *Store) UploadHistory(ctx context.Context, channel dedup.Channel) ([]UploadRecord, error) {
	where := ""
	switch channel {
	case dedup.ChannelEmail:
		where = "WHERE uploaded_file LIKE 'email_%'"
	case dedup.ChannelFile:
		where = "WHERE (uploaded_file IS NULL OR uploaded_file NOT LIKE 'email_%')"
	}
	query := fmt.Sprintf(`
		SELECT
			COALESCE(uploaded_file, ''),
			MIN(created_at),
			COUNT(*),
			COALESCE(month, 0), COALESCE(year, 0), source,
			SUM(CASE WHEN type = 'debit' THEN amount ELSE 0 END),
			SUM(CASE WHEN type = 'credit' THEN amount ELSE 0 END)
		FROM transactions
		%s
		GROUP BY uploaded_file, month, year, source
		ORDER BY MIN(created_at) DESC`, where)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("upload history: %w", err)
	}
	defer rows.Close()

	var out []UploadRecord
	for rows.Next() {
		var r UploadRecord
		if err := rows.Scan(&r.UploadedFile, &r.UploadedAt, &r.Count,
			&r.Month, &r.Year, &r.Source, &r.TotalDebits, &r.TotalCredits); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
