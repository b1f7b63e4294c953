package categorize

import (
	"fmt"
	"strings"

	"expensetracker/internal/domain"
)

const (
	batchSize         = 20
	maxPromptRules    = 15
	maxPromptExamples = 25
	maxPromptBody     = 300
)

// domainHints carry the Indian banking conventions the model would
// otherwise guess wrong.
const domainHints = `Hints:
- UPI/P2M/... is a payment to a merchant; UPI/P2A/... is a transfer to a person (usually "Transfer").
- NEFT/RTGS/IMPS transfers to individuals are usually "Transfer"; incoming salary credits are "Salary".
- SIP, mutual fund, Zerodha, Groww and similar debits are "Investment".
- EMI, loan instalment and NACH debits for loans are "EMI".
- Round-figure self transfers between own accounts are "Transfer", not income or spending.`

// buildPrompt assembles the categorization prompt for one batch: the
// allowed vocabulary, the strongest learned rules, past confirmed examples
// and the enriched transaction lines. The model must answer with a bare
// JSON object mapping index to category.
func buildPrompt(txns []domain.Transaction, categories []string, rules []domain.CategoryRule, examples []domain.Transaction) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a personal finance assistant. Categorise each transaction below into exactly ONE of these categories:\n[%s]\n\n",
		strings.Join(categories, ", "))

	if len(rules) > 0 {
		if len(rules) > maxPromptRules {
			rules = rules[:maxPromptRules]
		}
		b.WriteString("Known merchant rules (keyword -> category):\n")
		for _, r := range rules {
			fmt.Fprintf(&b, "  %q -> %s\n", r.Keyword, r.Category)
		}
		b.WriteString("\n")
	}

	if len(examples) > 0 {
		if len(examples) > maxPromptExamples {
			examples = examples[:maxPromptExamples]
		}
		b.WriteString("Previously confirmed categorisations:\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "  %q -> %s\n", ex.Description, ex.Category)
		}
		b.WriteString("\n")
	}

	b.WriteString(domainHints)
	b.WriteString("\n\nTransactions:\n")
	for i, t := range txns {
		fmt.Fprintf(&b, "  %d: %q | %s | Rs.%.2f | %s\n",
			i, t.Description, t.Type, t.Amount, t.Date.Format("2006-01-02"))
		if t.EmailBody != "" {
			body := strings.Join(strings.Fields(t.EmailBody), " ")
			if len(body) > maxPromptBody {
				body = body[:maxPromptBody]
			}
			fmt.Fprintf(&b, "     email: %s\n", body)
		}
	}

	b.WriteString(`
Rules:
- Return ONLY a valid JSON object mapping the index (as string) to the chosen category.
- If you are unsure, use "Other".
- Do NOT add any explanation, markdown formatting, or extra text.
- Your entire response must be parseable JSON. Nothing else.

Example output:
{"0": "Food", "1": "Shopping", "2": "Rent"}
`)

	return b.String()
}
