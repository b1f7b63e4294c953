package domain

import (
	"strings"
	"time"
)

// TxnType says which direction money moved. The Amount field is always a
// positive magnitude; the sign lives here.
type TxnType string

const (
	Debit  TxnType = "debit"
	Credit TxnType = "credit"
)

// ParseTxnType normalises a free-form type string, defaulting to debit.
func ParseTxnType(s string) TxnType {
	if strings.EqualFold(strings.TrimSpace(s), string(Credit)) {
		return Credit
	}
	return Debit
}

// Source identifies which statement family a transaction came from.
type Source string

const (
	SourceBank       Source = "bank"
	SourceCreditCard Source = "credit_card"
)

// EmailUploadPrefix is the reserved provenance prefix for email-synced
// batches. File uploads never start with it, so the two channels can be
// queried and deleted independently.
const EmailUploadPrefix = "email_"

// Reserved category names.
const (
	CategoryOther     = "Other"
	CategoryCCPayment = "Credit Card Payment"
)

// Transaction is the canonical record every extractor converges on and the
// dedup/categorization/storage layers consume.
type Transaction struct {
	ID          int64
	Date        time.Time // date-valued; time component is always midnight
	Description string
	Amount      float64 // > 0 always
	Type        TxnType
	Source      Source
	Category    string // empty means "needs classification"
	IsCCPayment bool
	IsExcluded  bool

	// Assignment period chosen at upload time. Not necessarily the month of
	// Date; out-of-period rows are flagged, never dropped.
	Month int
	Year  int

	// Provenance tag of the originating upload or email-sync batch.
	UploadedFile string

	// Raw alert text, kept only for email-sourced transactions and used as
	// categorization context.
	EmailBody string
}

// IsEmailSourced reports whether the transaction came from an email-sync
// batch rather than a file upload.
func (t *Transaction) IsEmailSourced() bool {
	return strings.HasPrefix(t.UploadedFile, EmailUploadPrefix)
}

// Rule provenance values.
const (
	RuleSourceUser   = "user"
	RuleSourceSystem = "system"
)

// CategoryRule is a learned keyword -> category mapping. MatchCount is a
// confidence counter; the rule layer tries high-confidence rules first.
type CategoryRule struct {
	ID         int64
	Keyword    string
	Category   string
	Source     string // "user" or "system"
	MatchCount int
}

// DefaultCategories seeds the category vocabulary on first run. The set is
// open; users add to it freely.
var DefaultCategories = []string{
	"Food", "Travel", "Shopping", "Rent", "Utilities",
	"Entertainment", "Health", "EMI", "Salary", "Investment",
	"Transfer", "Groceries", "Fuel", "Insurance", "Subscriptions",
	"Education", CategoryOther,
}
