package normalize

import (
	"strconv"
	"strings"
	"unicode"
)

// CleanAmount converts a raw amount cell ("₹1,234.56", "$500", "(450.00)")
// to a positive magnitude. Parentheses mean negative in accounting exports;
// either way the caller gets the absolute value, because sign is carried by
// the transaction type, never by the number. Returns false for empty, zero,
// or unparsable input.
func CleanAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '₹' || r == '$' || r == ',':
		case unicode.IsSpace(r):
		// Letters cover trailing markers like "Cr" and "Dr"; direction is
		// decided by the caller, not here.
		case unicode.IsLetter(r):
		case r == '(':
			b.WriteRune('-')
		case r == ')':
		default:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if f < 0 {
		f = -f
	}
	if f == 0 {
		return 0, false
	}
	return f, true
}
