// Package dedup detects duplicate transactions across three situations:
// repeats inside one statement file, overlap between a new batch and what
// is already stored, and credit card bill payments that show up twice
// (once as a bank debit, once as the card statement itself).
package dedup

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"expensetracker/internal/domain"
)

// Channel scopes duplicate checks by ingestion path. Email alerts and
// statement files legitimately describe the same transaction differently,
// so each channel is checked only against its own history.
type Channel int

const (
	ChannelAny Channel = iota
	ChannelFile
	ChannelEmail
)

// Lookup is the slice of the store the cross-store check needs.
type Lookup interface {
	FindByKey(ctx context.Context, date time.Time, amount float64, txnType domain.TxnType, channel Channel) ([]domain.Transaction, error)
}

// Pair points at two indexes in the same batch that carry the same
// transaction; the second occurrence is the one to skip.
type Pair struct {
	First, Second int
}

// WithinBatch finds repeats inside one parsed batch. The key is exact:
// date, amount to two decimals, type, and the first 50 description
// characters uppercased.
func WithinBatch(txns []domain.Transaction) []Pair {
	var pairs []Pair
	seen := make(map[string]int, len(txns))
	for i, t := range txns {
		key := fmt.Sprintf("%s|%.2f|%s|%s",
			t.Date.Format("2006-01-02"), t.Amount, t.Type,
			strings.ToUpper(truncate(t.Description, 50)))
		if first, dup := seen[key]; dup {
			pairs = append(pairs, Pair{First: first, Second: i})
		} else {
			seen[key] = i
		}
	}
	return pairs
}

// Match links an incoming transaction to the stored row it duplicates.
type Match struct {
	Index    int
	Incoming domain.Transaction
	Existing domain.Transaction
}

var tokenSplit = regexp.MustCompile(`[/\-\s,.|]+`)

// AgainstStore checks each incoming transaction against stored rows with
// the same date, amount and type. Descriptions rarely match exactly
// across sources, so two overlapping 4+ character tokens count as the
// same transaction. One match per incoming transaction is enough.
func AgainstStore(ctx context.Context, lookup Lookup, txns []domain.Transaction, channel Channel) ([]Match, error) {
	var matches []Match
	for i, t := range txns {
		rows, err := lookup.FindByKey(ctx, t.Date, t.Amount, t.Type, channel)
		if err != nil {
			return nil, fmt.Errorf("find duplicates: %w", err)
		}
		newDesc := strings.ToUpper(t.Description)
		newTokens := descTokens(newDesc)
		for _, row := range rows {
			dbDesc := strings.ToUpper(row.Description)
			if dbDesc == newDesc || tokenOverlap(descTokens(dbDesc), newTokens) >= 2 {
				matches = append(matches, Match{Index: i, Incoming: t, Existing: row})
				break
			}
		}
	}
	return matches, nil
}

func descTokens(desc string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range tokenSplit.Split(desc, -1) {
		if len(tok) >= 4 {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

func tokenOverlap(a, b map[string]struct{}) int {
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}

// ccPaymentKeywords mark bank debits that are credit card bill payments.
var ccPaymentKeywords = []string{
	"credit card",
	"cc payment",
	"card payment",
	"credit card payment",
	"cc bill",
	"card bill",
	"credit card bill",
	"cred",
	"visa bill",
	"mastercard bill",
	"amex bill",
	"rupay bill",
	"hdfc card",
	"icici card",
	"sbi card",
	"axis card",
	"kotak card",
	"citi card",
	"rbl card",
	"au card",
	"indusind card",
	"yes card",
	"bob card",
	"onecard",
	"slice",
	"simpl",
	"lazypay",
	"uni card",
	"fi card",
	"jupiter card",
	"navi card",
}

// DetectCCPayments returns IDs of bank debits that look like credit card
// bill payments. When the card statement is also uploaded these rows
// double-count the spend, so callers flag and exclude them.
func DetectCCPayments(txns []domain.Transaction) []int64 {
	var flagged []int64
	for _, t := range txns {
		if t.Source != domain.SourceBank || t.Type != domain.Debit {
			continue
		}
		if MatchesCCKeywords(t.Description) {
			flagged = append(flagged, t.ID)
		}
	}
	return flagged
}

// MatchesCCKeywords reports whether a description names a credit card
// payment.
func MatchesCCKeywords(description string) bool {
	desc := strings.ToLower(description)
	for _, kw := range ccPaymentKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// SuggestCCPaymentMatches finds bank debits whose amount is within
// tolerance of a card statement total. Catches payments the keyword list
// misses.
func SuggestCCPaymentMatches(bankTxns []domain.Transaction, ccTotal, tolerance float64) []int64 {
	var ids []int64
	for _, t := range bankTxns {
		if t.Type != domain.Debit {
			continue
		}
		diff := t.Amount - ccTotal
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
