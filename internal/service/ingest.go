// Package service orchestrates the extract/dedup/categorize/store layers
// into the operations the CLI exposes. Services hold no per-call state;
// everything flows through arguments and the store.
package service

import (
	"context"
	"fmt"
	"strings"

	"expensetracker/internal/dedup"
	"expensetracker/internal/domain"
	"expensetracker/internal/logger"
	"expensetracker/internal/store"
)

// IngestStore is the persistence surface batch ingestion needs.
type IngestStore interface {
	InsertTransactions(ctx context.Context, txns []domain.Transaction) (int, error)
	ListTransactions(ctx context.Context, f store.Filter) ([]domain.Transaction, error)
	FlagCCPayments(ctx context.Context, ids []int64) error
	BulkUpdateCategories(ctx context.Context, updates map[int64]string) error
	ListCategories(ctx context.Context) ([]string, error)
}

// Categorizer is the slice of the engine ingestion drives.
type Categorizer interface {
	Categorize(ctx context.Context, txns []domain.Transaction, categories []string) (map[int64]string, error)
}

// SaveReport counts what one batch ingestion did.
type SaveReport struct {
	Saved       int
	FlaggedCC   int
	Categorized int
}

// Ingestor persists parsed batches and runs the post-insert passes.
type Ingestor struct {
	store IngestStore
	cat   Categorizer
}

func NewIngestor(st IngestStore, cat Categorizer) *Ingestor {
	return &Ingestor{store: st, cat: cat}
}

// SaveBatch stamps provenance and the assignment period on every
// transaction, inserts them, flags credit card bill payments among bank
// debits, and categorizes whatever is still uncategorized in the period.
//
// A categorization failure does not fail the save: the rows are already
// persisted and can be categorized later.
func (in *Ingestor) SaveBatch(ctx context.Context, txns []domain.Transaction, source domain.Source, month, year int, uploadedFile string) (*SaveReport, error) {
	log := logger.FromContext(ctx)
	report := &SaveReport{}
	if len(txns) == 0 {
		return report, nil
	}

	for i := range txns {
		txns[i].Source = source
		txns[i].Month = month
		txns[i].Year = year
		txns[i].UploadedFile = uploadedFile
		if strings.TrimSpace(txns[i].Description) == "" {
			txns[i].Description = "No description"
		}
	}

	saved, err := in.store.InsertTransactions(ctx, txns)
	if err != nil {
		return report, fmt.Errorf("save batch: %w", err)
	}
	report.Saved = saved

	channel := channelOf(uploadedFile)

	if source == domain.SourceBank {
		flagged, err := in.flagCCPayments(ctx, month, year, channel)
		if err != nil {
			return report, err
		}
		report.FlaggedCC = flagged
	}

	categorized, err := in.categorizePeriod(ctx, month, year, channel)
	if err != nil {
		log.Warn().Err(err).Msg("categorization failed, transactions saved uncategorized")
		return report, nil
	}
	report.Categorized = categorized

	log.Info().
		Int("saved", report.Saved).
		Int("flagged_cc", report.FlaggedCC).
		Int("categorized", report.Categorized).
		Str("file", uploadedFile).
		Msg("batch ingested")
	return report, nil
}

func (in *Ingestor) flagCCPayments(ctx context.Context, month, year int, channel dedup.Channel) (int, error) {
	rows, err := in.store.ListTransactions(ctx, store.Filter{
		Month: month, Year: year, Source: domain.SourceBank,
		IncludeExcluded: true, Channel: channel,
	})
	if err != nil {
		return 0, fmt.Errorf("list for cc detection: %w", err)
	}
	var candidates []domain.Transaction
	for _, t := range rows {
		if !t.IsCCPayment {
			candidates = append(candidates, t)
		}
	}
	ids := dedup.DetectCCPayments(candidates)
	if len(ids) == 0 {
		return 0, nil
	}
	if err := in.store.FlagCCPayments(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (in *Ingestor) categorizePeriod(ctx context.Context, month, year int, channel dedup.Channel) (int, error) {
	rows, err := in.store.ListTransactions(ctx, store.Filter{
		Month: month, Year: year, Channel: channel,
	})
	if err != nil {
		return 0, fmt.Errorf("list for categorization: %w", err)
	}
	var uncategorized []domain.Transaction
	for _, t := range rows {
		if t.Category == "" {
			uncategorized = append(uncategorized, t)
		}
	}
	if len(uncategorized) == 0 {
		return 0, nil
	}

	categories, err := in.store.ListCategories(ctx)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}
	results, err := in.cat.Categorize(ctx, uncategorized, categories)
	if len(results) > 0 {
		if uerr := in.store.BulkUpdateCategories(ctx, results); uerr != nil {
			return 0, fmt.Errorf("apply categories: %w", uerr)
		}
	}
	if err != nil {
		return len(results), err
	}
	return len(results), nil
}

// OutOfPeriod reports the indices of transactions dated outside the
// assignment period. Callers decide what to do with them; nothing is
// dropped here.
func OutOfPeriod(txns []domain.Transaction, month, year int) []int {
	var out []int
	for i, t := range txns {
		if int(t.Date.Month()) != month || t.Date.Year() != year {
			out = append(out, i)
		}
	}
	return out
}

func channelOf(uploadedFile string) dedup.Channel {
	if strings.HasPrefix(uploadedFile, domain.EmailUploadPrefix) {
		return dedup.ChannelEmail
	}
	return dedup.ChannelFile
}
