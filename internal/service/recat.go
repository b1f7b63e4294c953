package service

import (
	"context"
	"fmt"

	"expensetracker/internal/categorize"
	"expensetracker/internal/dedup"
	"expensetracker/internal/domain"
	"expensetracker/internal/logger"
)

// RecatStore is the persistence surface recategorization needs.
type RecatStore interface {
	categorize.RuleWriter
	GetTransaction(ctx context.Context, id int64) (domain.Transaction, error)
	FindSimilarTransactions(ctx context.Context, description string, currentID int64, channel dedup.Channel) ([]domain.Transaction, error)
	BulkUpdateCategories(ctx context.Context, updates map[int64]string) error
}

// Proposal is the first half of a recategorization: the corrected
// transaction plus stored transactions that look like the same merchant.
// Nothing has been written yet; the caller picks which Similar IDs to
// carry along and passes them to Apply.
type Proposal struct {
	Source      domain.Transaction
	NewCategory string
	Similar     []domain.Transaction
}

// Recategorizer implements the two-step correction protocol: propose a
// candidate set, then apply the caller's selection.
type Recategorizer struct {
	store RecatStore
}

func NewRecategorizer(st RecatStore) *Recategorizer {
	return &Recategorizer{store: st}
}

// Propose looks up transactions similar to the one being corrected. The
// source transaction itself is not yet updated.
func (r *Recategorizer) Propose(ctx context.Context, txnID int64, newCategory string) (*Proposal, error) {
	txn, err := r.store.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, fmt.Errorf("propose recategorization: %w", err)
	}

	// Similar rows are only offered within the same ingestion channel;
	// email alerts and statement lines describe merchants too differently
	// to match across.
	channel := dedup.ChannelFile
	if txn.IsEmailSourced() {
		channel = dedup.ChannelEmail
	}
	similar, err := r.store.FindSimilarTransactions(ctx, txn.Description, txn.ID, channel)
	if err != nil {
		return nil, fmt.Errorf("propose recategorization: %w", err)
	}
	return &Proposal{Source: txn, NewCategory: newCategory, Similar: similar}, nil
}

// Apply writes the new category to the source transaction and every
// selected similar transaction, then learns a keyword rule from the source
// so future batches categorize the merchant without a model call.
func (r *Recategorizer) Apply(ctx context.Context, p *Proposal, selected []int64) error {
	updates := map[int64]string{p.Source.ID: p.NewCategory}
	for _, id := range selected {
		updates[id] = p.NewCategory
	}
	if err := r.store.BulkUpdateCategories(ctx, updates); err != nil {
		return fmt.Errorf("apply recategorization: %w", err)
	}

	if err := categorize.LearnRule(ctx, r.store, p.Source.Description, p.NewCategory); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Str("description", p.Source.Description).
			Msg("failed to learn rule from correction")
	}
	return nil
}
