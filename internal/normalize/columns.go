package normalize

import "strings"

// Keyword sets for column-role detection. Matching is case-insensitive
// substring, so "Txn Date" and "Transaction Date & Time" both hit the date
// set.
var (
	DateKeywords = []string{
		"date", "txn date", "tran date", "transaction date", "trans date",
		"value date", "posting date", "txn dt", "tran dt",
	}
	DescriptionKeywords = []string{
		"description", "narration", "particulars", "details",
		"transaction details", "remarks", "narrative",
	}
	DebitKeywords = []string{
		"debit", "withdrawal", "dr", "debit amount", "withdrawal amt",
		"spent", "debit amt",
	}
	CreditKeywords = []string{
		"credit", "deposit", "cr", "credit amount", "deposit amt",
		"earned", "credit amt",
	}
	AmountKeywords = []string{"amount", "transaction amount", "txn amount", "amt"}
)

// MatchColumn reports whether a header cell loosely matches any keyword.
func MatchColumn(col string, keywords []string) bool {
	normalised := strings.ToLower(strings.TrimSpace(col))
	if normalised == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(normalised, kw) {
			return true
		}
	}
	return false
}

// FindIndex returns the first column index matching any keyword, or -1.
func FindIndex(header []string, keywords []string) int {
	for i, col := range header {
		if MatchColumn(col, keywords) {
			return i
		}
	}
	return -1
}
