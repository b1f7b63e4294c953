package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/domain"
	"expensetracker/internal/email"
	"expensetracker/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func date(day int) time.Time {
	return time.Date(2025, 8, day, 0, 0, 0, 0, time.UTC)
}

// fakeCategorizer assigns a fixed category to everything it is given.
type fakeCategorizer struct {
	category string
	calls    int
	err      error
}

func (f *fakeCategorizer) Categorize(_ context.Context, txns []domain.Transaction, _ []string) (map[int64]string, error) {
	f.calls++
	out := make(map[int64]string, len(txns))
	for _, t := range txns {
		out[t.ID] = f.category
	}
	return out, f.err
}

func TestSaveBatchStampsFlagsAndCategorizes(t *testing.T) {
	st := newTestStore(t)
	cat := &fakeCategorizer{category: "Food"}
	in := NewIngestor(st, cat)
	ctx := context.Background()

	txns := []domain.Transaction{
		{Date: date(5), Description: "UPI/SWIGGY/123/pay", Amount: 450, Type: domain.Debit},
		{Date: date(6), Description: "NEFT CRED club payment", Amount: 20000, Type: domain.Debit},
		{Date: date(7), Description: "", Amount: 100, Type: domain.Credit},
	}
	report, err := in.SaveBatch(ctx, txns, domain.SourceBank, 8, 2025, "aug_statement.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Saved)
	assert.Equal(t, 1, report.FlaggedCC)
	assert.Equal(t, 2, report.Categorized)

	rows, err := st.ListTransactions(ctx, store.Filter{Month: 8, Year: 2025, IncludeExcluded: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, domain.SourceBank, r.Source)
		assert.Equal(t, "aug_statement.csv", r.UploadedFile)
	}

	// Newest first: the empty description row got a placeholder.
	assert.Equal(t, "No description", rows[0].Description)
	assert.Equal(t, "Food", rows[0].Category)
	assert.True(t, rows[1].IsCCPayment)
	assert.Equal(t, domain.CategoryCCPayment, rows[1].Category)
	assert.Equal(t, "Food", rows[2].Category)
}

func TestSaveBatchCategorizationFailureKeepsRows(t *testing.T) {
	st := newTestStore(t)
	cat := &fakeCategorizer{category: "Food", err: fmt.Errorf("model down")}
	in := NewIngestor(st, cat)
	ctx := context.Background()

	txns := []domain.Transaction{
		{Date: date(5), Description: "UPI/SWIGGY/123/pay", Amount: 450, Type: domain.Debit},
	}
	report, err := in.SaveBatch(ctx, txns, domain.SourceBank, 8, 2025, "aug.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Saved)

	rows, err := st.ListTransactions(ctx, store.Filter{Month: 8, Year: 2025})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestSaveBatchEmptyBatch(t *testing.T) {
	in := NewIngestor(newTestStore(t), &fakeCategorizer{category: "Food"})
	report, err := in.SaveBatch(context.Background(), nil, domain.SourceBank, 8, 2025, "x.csv")
	require.NoError(t, err)
	assert.Zero(t, report.Saved)
}

func TestSaveBatchCreditCardSourceSkipsCCFlagPass(t *testing.T) {
	st := newTestStore(t)
	in := NewIngestor(st, &fakeCategorizer{category: "Shopping"})
	ctx := context.Background()

	txns := []domain.Transaction{
		{Date: date(5), Description: "CRED CLUB MEMBERSHIP", Amount: 500, Type: domain.Debit},
	}
	report, err := in.SaveBatch(ctx, txns, domain.SourceCreditCard, 8, 2025, "card.csv")
	require.NoError(t, err)
	assert.Zero(t, report.FlaggedCC)

	rows, err := st.ListTransactions(ctx, store.Filter{Month: 8, Year: 2025})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsCCPayment)
}

func TestOutOfPeriod(t *testing.T) {
	txns := []domain.Transaction{
		{Date: date(5)},
		{Date: time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)},
		{Date: date(20)},
		{Date: time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC)},
	}
	assert.Equal(t, []int{1, 3}, OutOfPeriod(txns, 8, 2025))
	assert.Nil(t, OutOfPeriod(txns[:1], 8, 2025))
}

// fakePusher records the last notification.
type fakePusher struct {
	title, message, click string
	sent                  bool
}

func (f *fakePusher) Send(_ context.Context, title, message, clickURL string) {
	f.sent = true
	f.title, f.message, f.click = title, message, clickURL
}

func syncConfig(t *testing.T, st *store.Store) {
	t.Helper()
	err := SaveConfig(context.Background(), st, EmailSyncConfig{
		Host: "imap.example.com", Port: 993,
		Email: "user@example.com", Password: "secret", Folder: "INBOX",
	})
	require.NoError(t, err)
}

func TestSyncNotConfigured(t *testing.T) {
	st := newTestStore(t)
	s := NewEmailSyncer(st, NewIngestor(st, &fakeCategorizer{category: "Food"}), nil, nil)
	_, err := s.Sync(context.Background(), 8, 2025, SyncOptions{})
	assert.ErrorIs(t, err, ErrSyncNotConfigured)
}

func TestSyncFiltersDuplicatesAndSaves(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	syncConfig(t, st)

	// Already stored from an earlier sync of the same month.
	_, err := st.InsertTransactions(ctx, []domain.Transaction{{
		Date: date(6), Description: "SWIGGY ORDER payment", Amount: 300,
		Type: domain.Debit, Source: domain.SourceBank, Month: 8, Year: 2025,
		UploadedFile: "email_user@example.com_08_2025",
	}})
	require.NoError(t, err)

	fetch := func(_ context.Context, creds email.Credentials, month, year int, _ email.ProgressFunc, _ email.CancelFunc) ([]domain.Transaction, error) {
		assert.Equal(t, "imap.example.com", creds.Host)
		assert.Equal(t, "user@example.com", creds.Address)
		assert.Equal(t, 8, month)
		assert.Equal(t, 2025, year)
		return []domain.Transaction{
			{Date: date(5), Description: "ZOMATO LTD BANGALORE", Amount: 450, Type: domain.Debit},
			{Date: date(5), Description: "ZOMATO LTD BANGALORE", Amount: 450, Type: domain.Debit},
			{Date: date(6), Description: "UPI SWIGGY ORDER 1234", Amount: 300, Type: domain.Debit},
		}, nil
	}
	push := &fakePusher{}
	s := NewEmailSyncer(st, NewIngestor(st, &fakeCategorizer{category: "Food"}), fetch, push)

	report, err := s.Sync(ctx, 8, 2025, SyncOptions{Notify: true, ReviewURL: "http://localhost:8501"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 2, report.Duplicates)
	assert.Equal(t, 1, report.Saved)
	assert.Zero(t, report.NeedReview)

	rows, err := st.ListTransactions(ctx, store.Filter{Month: 8, Year: 2025})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.True(t, push.sent)
	assert.Equal(t, "1 new transaction(s)", push.title)
	assert.Equal(t, "1x Food\nTotal: Rs 450.00", push.message)
	assert.Equal(t, "http://localhost:8501", push.click)
}

func TestSyncNothingNewSkipsNotification(t *testing.T) {
	st := newTestStore(t)
	syncConfig(t, st)

	fetch := func(_ context.Context, _ email.Credentials, _, _ int, _ email.ProgressFunc, _ email.CancelFunc) ([]domain.Transaction, error) {
		return nil, nil
	}
	push := &fakePusher{}
	s := NewEmailSyncer(st, NewIngestor(st, &fakeCategorizer{category: "Food"}), fetch, push)

	report, err := s.Sync(context.Background(), 8, 2025, SyncOptions{Notify: true})
	require.NoError(t, err)
	assert.Zero(t, report.Fetched)
	assert.False(t, push.sent)
}

func TestSyncFetchErrorSurfaces(t *testing.T) {
	st := newTestStore(t)
	syncConfig(t, st)

	fetch := func(_ context.Context, _ email.Credentials, _, _ int, _ email.ProgressFunc, _ email.CancelFunc) ([]domain.Transaction, error) {
		return nil, email.ErrConnection
	}
	s := NewEmailSyncer(st, NewIngestor(st, &fakeCategorizer{category: "Food"}), fetch, nil)

	_, err := s.Sync(context.Background(), 8, 2025, SyncOptions{})
	assert.ErrorIs(t, err, email.ErrConnection)
}

func TestLoadConfigDefaults(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SetSetting(ctx, SettingEmailSync,
		`{"imap_server":"imap.example.com","email":"u@e.com","password":"p"}`))

	s := NewEmailSyncer(st, nil, nil, nil)
	cfg, err := s.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 993, cfg.Port)
	assert.Equal(t, "INBOX", cfg.Folder)
}

// flakySyncStore serves reads normally until the batch is inserted, then
// fails the excluded-inclusive month listing the notification re-read uses.
type flakySyncStore struct {
	*store.Store
	inserted bool
}

func (f *flakySyncStore) InsertTransactions(ctx context.Context, txns []domain.Transaction) (int, error) {
	n, err := f.Store.InsertTransactions(ctx, txns)
	f.inserted = true
	return n, err
}

func (f *flakySyncStore) ListTransactions(ctx context.Context, filter store.Filter) ([]domain.Transaction, error) {
	if f.inserted && filter.IncludeExcluded && filter.Source == "" {
		return nil, fmt.Errorf("database is locked")
	}
	return f.Store.ListTransactions(ctx, filter)
}

func TestSyncNotificationFallsBackWhenReadFails(t *testing.T) {
	st := &flakySyncStore{Store: newTestStore(t)}
	ctx := context.Background()
	syncConfig(t, st.Store)

	fetch := func(_ context.Context, _ email.Credentials, _, _ int, _ email.ProgressFunc, _ email.CancelFunc) ([]domain.Transaction, error) {
		return []domain.Transaction{
			{Date: date(5), Description: "ZOMATO LTD BANGALORE", Amount: 450, Type: domain.Debit},
		}, nil
	}
	push := &fakePusher{}
	s := NewEmailSyncer(st, NewIngestor(st, &fakeCategorizer{category: "Food"}), fetch, push)

	report, err := s.Sync(ctx, 8, 2025, SyncOptions{Notify: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Saved)

	// The stored rows got categorized, but the re-read failed, so the
	// notification falls back to the in-memory batch.
	require.True(t, push.sent)
	assert.Equal(t, "1 new transaction(s)", push.title)
	assert.Equal(t, "1x Uncategorized\nTotal: Rs 450.00", push.message)
}

// failingRuleStore refuses rule writes; everything else hits sqlite.
type failingRuleStore struct {
	*store.Store
}

func (f *failingRuleStore) UpsertRule(context.Context, string, string, string) error {
	return fmt.Errorf("rules table is locked")
}

func TestApplyRuleLearningFailureNonFatal(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.InsertTransactions(ctx, []domain.Transaction{
		{Date: date(5), Description: "UPI/P2M/520345/SWIGGY/HDFC/pay", Amount: 450, Type: domain.Debit,
			Source: domain.SourceBank, Category: "Shopping", Month: 8, Year: 2025, UploadedFile: "aug.csv"},
	})
	require.NoError(t, err)
	rows, err := st.ListTransactions(ctx, store.Filter{Month: 8, Year: 2025})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := NewRecategorizer(&failingRuleStore{Store: st})
	p, err := r.Propose(ctx, rows[0].ID, "Food")
	require.NoError(t, err)

	// The category update must land even though the rule cannot be saved.
	require.NoError(t, r.Apply(ctx, p, nil))

	got, err := st.GetTransaction(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Food", got.Category)
}

func TestProposeAndApplyRecategorization(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.InsertTransactions(ctx, []domain.Transaction{
		{Date: date(5), Description: "UPI/P2M/520345/SWIGGY/HDFC/pay", Amount: 450, Type: domain.Debit,
			Source: domain.SourceBank, Category: "Shopping", Month: 8, Year: 2025, UploadedFile: "aug.csv"},
		{Date: date(12), Description: "UPI/P2M/520399/SWIGGY/HDFC/pay", Amount: 600, Type: domain.Debit,
			Source: domain.SourceBank, Category: "Shopping", Month: 8, Year: 2025, UploadedFile: "aug.csv"},
		{Date: date(13), Description: "UPI/P2M/520412/BIGBASKET/ICIC/pay", Amount: 900, Type: domain.Debit,
			Source: domain.SourceBank, Category: "Groceries", Month: 8, Year: 2025, UploadedFile: "aug.csv"},
	})
	require.NoError(t, err)

	rows, err := st.ListTransactions(ctx, store.Filter{Month: 8, Year: 2025})
	require.NoError(t, err)
	var sourceID, similarID int64
	for _, r := range rows {
		switch r.Description {
		case "UPI/P2M/520345/SWIGGY/HDFC/pay":
			sourceID = r.ID
		case "UPI/P2M/520399/SWIGGY/HDFC/pay":
			similarID = r.ID
		}
	}

	r := NewRecategorizer(st)
	p, err := r.Propose(ctx, sourceID, "Food")
	require.NoError(t, err)
	assert.Equal(t, "Food", p.NewCategory)
	require.Len(t, p.Similar, 1)
	assert.Equal(t, similarID, p.Similar[0].ID)

	require.NoError(t, r.Apply(ctx, p, []int64{similarID}))

	got, err := st.GetTransaction(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, "Food", got.Category)
	got, err = st.GetTransaction(ctx, similarID)
	require.NoError(t, err)
	assert.Equal(t, "Food", got.Category)

	// The correction became a reusable keyword rule.
	rules, err := st.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "SWIGGY", rules[0].Keyword)
	assert.Equal(t, "Food", rules[0].Category)
	assert.Equal(t, domain.RuleSourceUser, rules[0].Source)
}
