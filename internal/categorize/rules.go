// Package categorize assigns spending categories with two layers: learned
// keyword rules first, then a local language model for whatever the rules
// do not cover. Rules come from user corrections, so the engine gets more
// deterministic the longer it is used.
package categorize

import (
	"context"
	"strings"

	"expensetracker/internal/domain"
)

// ApplyRules matches stored keyword rules against a batch. Rules arrive
// ordered by match count descending, so the first case-insensitive
// substring hit is also the most confident one. Unmatched transactions are
// left for the model.
func ApplyRules(rules []domain.CategoryRule, txns []domain.Transaction) map[int64]string {
	if len(rules) == 0 {
		return nil
	}
	results := make(map[int64]string)
	for _, txn := range txns {
		descUpper := strings.ToUpper(txn.Description)
		for _, rule := range rules {
			if strings.Contains(descUpper, strings.ToUpper(rule.Keyword)) {
				results[txn.ID] = rule.Category
				break
			}
		}
	}
	return results
}

// FriendlyDescription extracts the merchant or payee name from a raw bank
// narration. Formats handled:
//
//	UPI/P2M/123456/Merchant Name/Bank/...  -> Merchant Name
//	NEFT/REF/Name/Bank/...                 -> Name
//	RTGS/REF/Name/...                      -> Name
//	ECOM PUR/Merchant/City/Date/...        -> Merchant
//	ACH-DR-ENTITY NAME-RefNo               -> ACH: ENTITY NAME
//
// Anything else is returned unchanged.
func FriendlyDescription(desc string) string {
	d := strings.TrimSpace(desc)
	if d == "" {
		return d
	}
	upper := strings.ToUpper(d)

	segment := func(idx int) string {
		parts := strings.Split(d, "/")
		if idx < len(parts) {
			return strings.Join(strings.Fields(parts[idx]), " ")
		}
		return ""
	}

	switch {
	case strings.HasPrefix(upper, "UPI/"):
		if name := segment(3); name != "" {
			return name
		}
	case strings.HasPrefix(upper, "NEFT/"), strings.HasPrefix(upper, "RTGS/"):
		if name := segment(2); name != "" {
			return name
		}
	case strings.HasPrefix(upper, "ECOM PUR/"):
		if name := segment(1); name != "" {
			return name
		}
	case strings.HasPrefix(upper, "ACH-DR-"):
		remainder := d[len("ACH-DR-"):]
		// Usually "ENTITY NAME-RefNumber"; drop the reference when it
		// looks like one.
		if idx := strings.LastIndex(remainder, "-"); idx > 0 && len(remainder)-idx-1 > 10 {
			return "ACH: " + remainder[:idx]
		}
		return "ACH: " + remainder
	}
	return d
}

// genericKeywords would match far too many transactions to be useful
// rules.
var genericKeywords = map[string]struct{}{
	"no description": {},
	"transaction":    {},
	"payment":        {},
	"upi":            {},
	"neft":           {},
	"rtgs":           {},
	"ach":            {},
}

// RuleWriter is the slice of the store that rule learning needs.
type RuleWriter interface {
	UpsertRule(ctx context.Context, keyword, category, source string) error
}

// LearnRule derives a keyword rule from a user correction. The friendly
// merchant name becomes the keyword; short or generic names are skipped
// rather than saved as rules that would misfire.
func LearnRule(ctx context.Context, store RuleWriter, description, category string) error {
	keyword := FriendlyDescription(description)
	if len(keyword) < 3 {
		return nil
	}
	if _, generic := genericKeywords[strings.ToLower(keyword)]; generic {
		return nil
	}
	return store.UpsertRule(ctx, keyword, category, domain.RuleSourceUser)
}
