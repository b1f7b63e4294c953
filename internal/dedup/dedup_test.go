package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestWithinBatch(t *testing.T) {
	txns := []domain.Transaction{
		{Date: day(2), Amount: 450, Type: domain.Debit, Description: "SWIGGY BANGALORE"},
		{Date: day(2), Amount: 450, Type: domain.Debit, Description: "swiggy bangalore"},
		{Date: day(2), Amount: 450, Type: domain.Credit, Description: "SWIGGY BANGALORE"},
		{Date: day(3), Amount: 450, Type: domain.Debit, Description: "SWIGGY BANGALORE"},
	}
	pairs := WithinBatch(txns)
	require.Len(t, pairs, 1)
	assert.Equal(t, Pair{First: 0, Second: 1}, pairs[0])
}

type fakeLookup struct {
	rows       []domain.Transaction
	gotChannel Channel
}

func (f *fakeLookup) FindByKey(_ context.Context, date time.Time, amount float64, txnType domain.TxnType, channel Channel) ([]domain.Transaction, error) {
	f.gotChannel = channel
	var out []domain.Transaction
	for _, r := range f.rows {
		if r.Date.Equal(date) && r.Amount == amount && r.Type == txnType {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestAgainstStoreTokenOverlap(t *testing.T) {
	lookup := &fakeLookup{rows: []domain.Transaction{
		{ID: 7, Date: day(2), Amount: 450, Type: domain.Debit,
			Description: "UPI/402912345678/swiggy.bangalore@icici/SWIGGY BANGALORE"},
	}}
	incoming := []domain.Transaction{
		// Same transaction seen via email: different wording, two shared tokens.
		{Date: day(2), Amount: 450, Type: domain.Debit, Description: "SWIGGY BANGALORE (A/c: xx1234)"},
		// Same key but unrelated description.
		{Date: day(2), Amount: 450, Type: domain.Debit, Description: "ATM WDL MG ROAD"},
		// Different date.
		{Date: day(9), Amount: 450, Type: domain.Debit, Description: "SWIGGY BANGALORE"},
	}

	matches, err := AgainstStore(context.Background(), lookup, incoming, ChannelEmail)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Index)
	assert.Equal(t, int64(7), matches[0].Existing.ID)
	assert.Equal(t, ChannelEmail, lookup.gotChannel)
}

func TestAgainstStoreIdenticalDescription(t *testing.T) {
	lookup := &fakeLookup{rows: []domain.Transaction{
		{ID: 3, Date: day(5), Amount: 99, Type: domain.Debit, Description: "POS"},
	}}
	incoming := []domain.Transaction{
		// No 4+ char tokens at all; identical description still matches.
		{Date: day(5), Amount: 99, Type: domain.Debit, Description: "pos"},
	}
	matches, err := AgainstStore(context.Background(), lookup, incoming, ChannelFile)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestDetectCCPayments(t *testing.T) {
	txns := []domain.Transaction{
		{ID: 1, Source: domain.SourceBank, Type: domain.Debit, Description: "NEFT HDFC CARD PAYMENT"},
		{ID: 2, Source: domain.SourceBank, Type: domain.Debit, Description: "UPI/CRED club/bill"},
		{ID: 3, Source: domain.SourceBank, Type: domain.Debit, Description: "SWIGGY BANGALORE"},
		// Credits and card-source rows are never flagged.
		{ID: 4, Source: domain.SourceBank, Type: domain.Credit, Description: "CREDIT CARD REFUND"},
		{ID: 5, Source: domain.SourceCreditCard, Type: domain.Debit, Description: "CC BILL"},
	}
	assert.Equal(t, []int64{1, 2}, DetectCCPayments(txns))
}

func TestSuggestCCPaymentMatches(t *testing.T) {
	txns := []domain.Transaction{
		{ID: 1, Type: domain.Debit, Amount: 12005},
		{ID: 2, Type: domain.Debit, Amount: 12500},
		{ID: 3, Type: domain.Credit, Amount: 12000},
	}
	assert.Equal(t, []int64{1}, SuggestCCPaymentMatches(txns, 12000, 10))
	assert.Empty(t, SuggestCCPaymentMatches(txns, 50000, 10))
}
