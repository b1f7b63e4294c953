package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"expensetracker/internal/dedup"
	"expensetracker/internal/domain"
	"expensetracker/internal/email"
	"expensetracker/internal/logger"
	"expensetracker/internal/store"
)

// SettingEmailSync is the settings key holding the JSON-encoded email sync
// configuration.
const SettingEmailSync = "email_sync_config"

// EmailSyncConfig is what lives under SettingEmailSync.
type EmailSyncConfig struct {
	Host     string `json:"imap_server"`
	Port     int    `json:"imap_port"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Folder   string `json:"folder"`
}

// ErrSyncNotConfigured is returned when the email sync settings are missing
// or incomplete.
var ErrSyncNotConfigured = fmt.Errorf("email sync not configured")

// FetchFunc fetches one month of transaction alerts from a mailbox.
// email.FetchMonth satisfies it; tests substitute their own.
type FetchFunc func(ctx context.Context, creds email.Credentials, month, year int, onProgress email.ProgressFunc, isCancelled email.CancelFunc) ([]domain.Transaction, error)

// SyncStore is the persistence surface email sync needs beyond the Ingestor.
type SyncStore interface {
	dedup.Lookup
	GetSetting(ctx context.Context, key string) (string, bool, error)
	ListTransactions(ctx context.Context, f store.Filter) ([]domain.Transaction, error)
}

// Pusher sends one push notification. *notify.Notifier satisfies it.
type Pusher interface {
	Send(ctx context.Context, title, message, clickURL string)
}

// SyncReport summarises one email sync run.
type SyncReport struct {
	Fetched    int
	Duplicates int
	Saved      int
	NeedReview int
}

// SyncOptions tweak one Sync call.
type SyncOptions struct {
	OnProgress  email.ProgressFunc
	IsCancelled email.CancelFunc
	Notify      bool
	ReviewURL   string // click target for the notification
}

// EmailSyncer fetches transaction alerts over IMAP, filters out what the
// store already has, and ingests the rest under an email provenance tag.
type EmailSyncer struct {
	store  SyncStore
	ingest *Ingestor
	fetch  FetchFunc
	push   Pusher
}

func NewEmailSyncer(st SyncStore, in *Ingestor, fetch FetchFunc, push Pusher) *EmailSyncer {
	if fetch == nil {
		fetch = email.FetchMonth
	}
	return &EmailSyncer{store: st, ingest: in, fetch: fetch, push: push}
}

// LoadConfig reads and validates the stored sync configuration.
func (s *EmailSyncer) LoadConfig(ctx context.Context) (EmailSyncConfig, error) {
	var cfg EmailSyncConfig
	raw, ok, err := s.store.GetSetting(ctx, SettingEmailSync)
	if err != nil {
		return cfg, err
	}
	if !ok {
		return cfg, ErrSyncNotConfigured
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("email sync config: %w", err)
	}
	if cfg.Host == "" || cfg.Email == "" || cfg.Password == "" {
		return cfg, ErrSyncNotConfigured
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return cfg, nil
}

// SaveConfig stores the sync configuration under SettingEmailSync.
func SaveConfig(ctx context.Context, st interface {
	SetSetting(ctx context.Context, key, value string) error
}, cfg EmailSyncConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return st.SetSetting(ctx, SettingEmailSync, string(raw))
}

// Sync pulls the given month's alerts, dedupes within the fetched batch and
// against already-stored email transactions, and saves the remainder with
// an "email_<account>_<MM>_<YYYY>" provenance tag.
func (s *EmailSyncer) Sync(ctx context.Context, month, year int, opts SyncOptions) (*SyncReport, error) {
	// Every run gets its own ID so log lines from overlapping scheduled
	// syncs can be told apart.
	log := logger.FromContext(ctx).With().Str("sync_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx, log)
	report := &SyncReport{}

	cfg, err := s.LoadConfig(ctx)
	if err != nil {
		return report, err
	}
	creds := email.Credentials{
		Host: cfg.Host, Port: cfg.Port,
		Address: cfg.Email, Password: cfg.Password, Folder: cfg.Folder,
	}

	fetched, err := s.fetch(ctx, creds, month, year, opts.OnProgress, opts.IsCancelled)
	if err != nil {
		return report, err
	}
	report.Fetched = len(fetched)
	if len(fetched) == 0 {
		log.Info().Int("month", month).Int("year", year).Msg("no transaction alerts found")
		return report, nil
	}

	fresh, dupes, err := s.filterDuplicates(ctx, fetched)
	if err != nil {
		return report, err
	}
	report.Duplicates = dupes
	if len(fresh) == 0 {
		log.Info().Int("fetched", report.Fetched).Msg("all fetched transactions already stored")
		return report, nil
	}

	before, err := s.monthRowIDs(ctx, month, year)
	if err != nil {
		return report, err
	}

	provenance := fmt.Sprintf("%s%s_%02d_%d", domain.EmailUploadPrefix, cfg.Email, month, year)
	saveRep, err := s.ingest.SaveBatch(ctx, fresh, domain.SourceBank, month, year, provenance)
	if err != nil {
		return report, err
	}
	report.Saved = saveRep.Saved
	report.NeedReview = saveRep.Saved - saveRep.Categorized
	if report.NeedReview < 0 {
		report.NeedReview = 0
	}

	if opts.Notify && s.push != nil && report.Saved > 0 {
		title := fmt.Sprintf("%d new transaction(s)", report.Saved)
		s.push.Send(ctx, title, summarize(s.savedBatch(ctx, month, year, before, fresh), report.NeedReview), opts.ReviewURL)
	}
	return report, nil
}

func (s *EmailSyncer) monthRowIDs(ctx context.Context, month, year int) (map[int64]bool, error) {
	rows, err := s.store.ListTransactions(ctx, store.Filter{
		Month: month, Year: year, Channel: dedup.ChannelEmail, IncludeExcluded: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list email transactions: %w", err)
	}
	ids := make(map[int64]bool, len(rows))
	for _, t := range rows {
		ids[t.ID] = true
	}
	return ids, nil
}

// savedBatch re-reads the just-saved rows so the notification reflects the
// categories the ingest pass assigned. Falls back to the in-memory batch
// when the read fails.
func (s *EmailSyncer) savedBatch(ctx context.Context, month, year int, before map[int64]bool, fallback []domain.Transaction) []domain.Transaction {
	rows, err := s.store.ListTransactions(ctx, store.Filter{
		Month: month, Year: year, Channel: dedup.ChannelEmail, IncludeExcluded: true,
	})
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("failed to re-read synced batch")
		return fallback
	}
	var batch []domain.Transaction
	for _, t := range rows {
		if !before[t.ID] {
			batch = append(batch, t)
		}
	}
	if len(batch) == 0 {
		return fallback
	}
	return batch
}

// filterDuplicates drops within-batch repeats and anything already present
// among stored email-sourced transactions.
func (s *EmailSyncer) filterDuplicates(ctx context.Context, txns []domain.Transaction) ([]domain.Transaction, int, error) {
	skip := make(map[int]bool)
	for _, p := range dedup.WithinBatch(txns) {
		skip[p.Second] = true
	}
	matches, err := dedup.AgainstStore(ctx, s.store, txns, dedup.ChannelEmail)
	if err != nil {
		return nil, 0, err
	}
	for _, m := range matches {
		skip[m.Index] = true
	}

	var fresh []domain.Transaction
	for i, t := range txns {
		if !skip[i] {
			fresh = append(fresh, t)
		}
	}
	return fresh, len(skip), nil
}

// summarize builds the notification body: per-category counts of the saved
// batch, the total debit amount, and how many rows still need review.
func summarize(txns []domain.Transaction, needReview int) string {
	counts := make(map[string]int)
	var order []string
	var total float64
	for _, t := range txns {
		cat := t.Category
		if cat == "" {
			cat = "Uncategorized"
		}
		if counts[cat] == 0 {
			order = append(order, cat)
		}
		counts[cat]++
		if t.Type == domain.Debit {
			total += t.Amount
		}
	}

	line := ""
	for i, cat := range order {
		if i > 0 {
			line += ", "
		}
		line += fmt.Sprintf("%dx %s", counts[cat], cat)
	}
	msg := fmt.Sprintf("%s\nTotal: Rs %.2f", line, total)
	if needReview > 0 {
		msg += fmt.Sprintf("\n%d need review", needReview)
	}
	return msg
}

// MonthWindow returns the assignment period for "now", the common default
// for a scheduled daily sync.
func MonthWindow(now time.Time) (month, year int) {
	return int(now.Month()), now.Year()
}
