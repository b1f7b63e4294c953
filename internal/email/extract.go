// Package email fetches Indian bank transaction alert emails over IMAP and
// extracts canonical transactions from them. The regex patterns are tuned
// for the alert formats of common Indian banks (HDFC, ICICI, SBI, Axis,
// Kotak and the major card and wallet issuers).
package email

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"expensetracker/internal/domain"
	"expensetracker/internal/normalize"
)

// bankSenders are matched as substrings of the From header. Partial match
// is deliberate: "hdfcbank" covers alerts@hdfcbank.net and
// alerts@hdfcbank.bank.in alike.
var bankSenders = []string{
	"hdfcbank",
	"hdfcbank.bank",
	"icicibank",
	"sbi.co.in",
	"axisbank",
	"axis.bank",
	"kotak",
	"indusind",
	"yesbank",
	"yes.bank",
	"idfc",
	"idfcfirst",
	"rbl",
	"federal",
	"canarabank",
	"bankofbaroda",
	"bob.co",
	"pnb",
	"iob",
	"unionbank",
	"citi",
	"sc.com",
	"americanexpress",
	"hsbc",
	"dbs",
	"idbi",
	"bandhan",
	"aubank",
	"au.bank",
	"paytm",
	"freecharge",
	"phonepe",
	"gpay",
	"amazonpay",
	"slice",
	"onecard",
	"jupiter",
	"fi.money",
	"niyo",
}

// alertSubjectKeywords mark a subject as a transaction alert.
var alertSubjectKeywords = []string{
	"transaction alert",
	"debit alert",
	"credit alert",
	"account alert",
	"a/c alert",
	"alert : update",
	"alert: update",
	"transaction confirmation",
	"purchase alert",
	"payment alert",
	"upi alert",
	"upi txn",
	"upi transaction",
	"neft alert",
	"imps alert",
	"rtgs alert",
	"fund transfer",
	"atm withdrawal",
	"debited",
	"credited",
	"spent on",
	"payment of rs",
	"transaction of rs",
	"you have done",
	"imps transaction",
	"imps transfer",
	"payment received",
}

var subjectAmountRe = regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*[\d,]+`)

// isTransactionAlert re-checks a candidate locally: the sender must be a
// known bank AND the subject must either carry an alert keyword or quote
// an amount. Server-side IMAP search is loose, so this filter does the
// real gatekeeping.
func isTransactionAlert(sender, subject string) bool {
	senderLower := strings.ToLower(sender)
	subjectLower := strings.ToLower(subject)

	isBank := false
	for _, b := range bankSenders {
		if strings.Contains(senderLower, b) {
			isBank = true
			break
		}
	}
	if !isBank {
		return false
	}
	for _, kw := range alertSubjectKeywords {
		if strings.Contains(subjectLower, kw) {
			return true
		}
	}
	return subjectAmountRe.MatchString(subjectLower)
}

// Promotional emails from bank domains are common and regularly quote
// amounts, so candidates are screened by body content too: two or more
// promo phrases, or zero real alert markers, means marketing.
var promoKeywords = []string{
	"view the web version",
	"view this message in your mobile",
	"unsubscribe",
	"click here to view",
	"newsletter",
	"offer valid",
	"offers are live",
	"grab incredible",
	"t&c apply",
	"terms and conditions apply",
	"limited period offer",
	"exclusive offer",
	"exciting offer",
	"cashback offer",
	"emi plans",
	"can't see this email properly",
	"aclmails.in",
	"trkp.aclmails",
}

var alertMarkers = []string{
	"debited",
	"credited",
	"withdrawn",
	"spent",
	"transaction",
	"txn",
	"payment of",
	"received",
	"a/c",
	"card",
	"account",
}

func isPromotional(body string) bool {
	bodyLower := strings.ToLower(body)

	promoCount := 0
	for _, kw := range promoKeywords {
		if strings.Contains(bodyLower, kw) {
			promoCount++
		}
	}
	if promoCount >= 2 {
		return true
	}
	for _, m := range alertMarkers {
		if strings.Contains(bodyLower, m) {
			return false
		}
	}
	return true
}

// Amount: Rs.500, Rs 500.00, INR 500, ₹500, Rs.1,23,456.78.
var amountRe = regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*([\d,]+(?:\.\d{1,2})?)`)

var debitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:debited|deducted|spent|withdrawn|paid|purchase|payment)`),
	regexp.MustCompile(`(?i)debit(?:ed)?\s+(?:of|by|with|for)\s+`),
	regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*[\d,]+(?:\.\d{2})?\s+(?:has been |was )?debited`),
	regexp.MustCompile(`(?i)debited\s+(?:from|on|with)`),
}

var creditPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:credited|received|deposited|refund)`),
	regexp.MustCompile(`(?i)credit(?:ed)?\s+(?:of|by|with|for|to)\s+`),
	regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*[\d,]+(?:\.\d{2})?\s+(?:has been |was )?credited`),
	regexp.MustCompile(`(?i)credited\s+(?:to|into|in)`),
	regexp.MustCompile(`(?i)payment\s+.*?received`),
	regexp.MustCompile(`(?i)received\s+your\s+payment`),
}

// descriptionPatterns are ordered by specificity; the first match wins.
var descriptionPatterns = []*regexp.Regexp{
	// "Transaction Info: UPI/P2M/639743533859/CRED Club" (Axis account format)
	regexp.MustCompile(`(?i)transaction\s+info[:\s]+(.{3,100}?)(?:\s+(?:if this|feel free|call|regard|always|avl|available|bal|please|for any))`),
	// Axis Burgundy: "debited with INR X on ... by NEFT/..."
	regexp.MustCompile(`(?i)(?:debited|credited)\s+with\s+(?:inr|rs\.?|₹)\s*[\d,]+.*?\s+by\s+([A-Za-z0-9/\-.\s]+?)(?:\s*\.|\s+To check)`),
	// "Merchant Name: SPOTIFY SI" (Axis credit card format)
	regexp.MustCompile(`(?i)merchant\s+name[:\s]+([A-Za-z0-9\s&./_'-]{2,60}?)(?:\s+(?:axis|hdfc|icici|sbi|card|date|available|total|credit|if this))`),
	// Standalone UPI reference string
	regexp.MustCompile(`(?i)(UPI/[A-Za-z0-9]+/\d+/[A-Za-z0-9\s.&_-]+?)(?:\s+(?:if |feel |call |regard|always|$))`),
	// "to VPA user@bank MERCHANT NAME on DD-..."
	regexp.MustCompile(`(?i)(?:to|from)\s+(?:vpa\s+)?([a-zA-Z0-9._]+@[a-zA-Z0-9]+(?:\s+[A-Z][A-Za-z0-9\s&.'-]*?)?)\s+on\s+\d`),
	// Bare VPA fallback
	regexp.MustCompile(`(?i)(?:to|from)\s+(?:vpa\s+)?([a-zA-Z0-9._]+@[a-zA-Z0-9]+)`),
	// "Info: DESCRIPTION" (common in HDFC)
	regexp.MustCompile(`(?i)(?:transaction\s+)?info[:\s]+(.{3,80}?)(?:\s+(?:if this|avl|available|bal|feel free|call))`),
	regexp.MustCompile(`(?i)(?:merchant|payee|beneficiary)[:\s]+(.{3,60}?)(?:\s*$|\s+(?:ref|on|date|card|account|if this))`),
	regexp.MustCompile(`(?i)(?:at|towards)\s+([A-Z][A-Za-z0-9\s&.'-]{2,40})(?:\s+on|\s+via|\s+ref|\s*\.)`),
	regexp.MustCompile(`(?i)(?:imps|neft|rtgs)[:/\s]+(.{3,50}?)(?:\s+ref|\s+on|\s+if|\s*$)`),
	// Broad fallback for "debited/credited ... by NEFT-..."
	regexp.MustCompile(`(?i)(?:debited|credited)\s+.*?\s+(?:towards|by)\s+((?:UPI|NEFT|IMPS|RTGS|ACH)[A-Za-z0-9/\-.\s]*?)(?:\s*\.|\s+(?:Avl|Available|If |if |Your|$))`),
	regexp.MustCompile(`(?i)transfer\s+(?:to|from)\s+(.{3,50}?)(?:\s+ref|\s+on|\s+if|\s*$)`),
	regexp.MustCompile(`(?i)(?:at)\s+([A-Z][A-Za-z0-9\s&.'-]{2,30}?)(?:\s+on\s+\d)`),
	regexp.MustCompile(`(?i)refund\s+(?:from|by)\s+(.{3,40}?)(?:\s*\.|\s+(?:Avl|Available|If|$))`),
}

var dateBodyPatterns = []*regexp.Regexp{
	// "Date & Time: 10-01-2026, 14:07" (Axis format)
	regexp.MustCompile(`(?i)date\s*[&]\s*time[:\s]+(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
	// "on 01-01-2026" / "dated 24 Dec 2025"
	regexp.MustCompile(`(?i)(?:on|dated?)\s+(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{1,2}\s*(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s*,?\s*\d{2,4})`),
	// US order: "on Dec 24, 2025" (ICICI credit card)
	regexp.MustCompile(`(?i)(?:on|dated?)\s+((?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s*\d{2,4})`),
	// Bare date in the text (Axis often has one)
	regexp.MustCompile(`(?:^|\s)(\d{2}[/-]\d{2}[/-]\d{4})(?:\s|,)`),
}

var cardRe = regexp.MustCompile(`(?i)(?:card|a/c|account|acct?)\s*(?:no\.?\s*)?(?:ending\s+(?:with\s+)?|xx+)?(\d{4})`)

var collapseWS = regexp.MustCompile(`\s+`)

var descCleanups = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*(?:Avl|Available|Your current)\s+(?:Bal|Balance|Credit).*$`),
	regexp.MustCompile(`(?i)\s*(?:The Available|If this|If not).*$`),
	regexp.MustCompile(`(?i)[.\s]+(?:The|In|To|For|If|Please|Your)\s*$`),
}

// maxEmailBody caps how much of the alert body is stored on the
// transaction for later model context.
const maxEmailBody = 2000

// extractTransaction pulls one transaction from an alert email. The
// subject and body are combined so subject-only alerts still extract.
// Returns false for promotional emails and bodies with no usable amount
// or date.
func extractTransaction(body, subject string, headerDate time.Time) (domain.Transaction, bool) {
	if isPromotional(body) {
		return domain.Transaction{}, false
	}

	fullText := subject + " " + body

	amount, ok := extractAmount(fullText)
	if !ok {
		return domain.Transaction{}, false
	}

	txnType := determineType(fullText)

	date, ok := extractBodyDate(fullText)
	if !ok {
		if headerDate.IsZero() {
			return domain.Transaction{}, false
		}
		date = headerDate.UTC().Truncate(24 * time.Hour)
	}

	stored := body
	if len(stored) > maxEmailBody {
		stored = stored[:maxEmailBody]
	}

	return domain.Transaction{
		Date:        date,
		Description: extractDescription(fullText, subject),
		Amount:      amount,
		Type:        txnType,
		Source:      domain.SourceBank,
		Month:       int(date.Month()),
		Year:        date.Year(),
		EmailBody:   stored,
	}, true
}

// extractAmount returns the first positive amount quoted with a currency
// marker. Alert emails usually quote the transaction amount before the
// balance, so first match is the right pick.
func extractAmount(text string) (float64, bool) {
	for _, m := range amountRe.FindAllStringSubmatch(text, -1) {
		cleaned := strings.ReplaceAll(m[1], ",", "")
		amt, err := strconv.ParseFloat(cleaned, 64)
		if err == nil && amt > 0 {
			return amt, true
		}
	}
	return 0, false
}

// determineType scores the debit and credit pattern families against the
// text. Credit wins only on a strict majority; ties and uncertainty fall
// back to debit.
func determineType(text string) domain.TxnType {
	debitScore := 0
	for _, p := range debitPatterns {
		if p.MatchString(text) {
			debitScore++
		}
	}
	creditScore := 0
	for _, p := range creditPatterns {
		if p.MatchString(text) {
			creditScore++
		}
	}
	if creditScore > debitScore {
		return domain.Credit
	}
	return domain.Debit
}

func extractBodyDate(text string) (time.Time, bool) {
	for _, p := range dateBodyPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if t, ok := normalize.ParseDate(m[1]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractDescription tries each description pattern in order, cleans the
// first hit, and enriches it with the card or account suffix when one is
// present. With no pattern hit the cleaned subject is the fallback.
func extractDescription(text, subject string) string {
	var descPart string
	for _, p := range descriptionPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		desc := collapseWS.ReplaceAllString(strings.TrimSpace(m[1]), " ")
		desc = strings.TrimRight(desc, ".,;")
		for _, c := range descCleanups {
			desc = strings.TrimSpace(c.ReplaceAllString(desc, ""))
		}
		desc = strings.TrimRight(desc, ".,;")
		if len(desc) >= 2 {
			descPart = desc
			break
		}
	}

	var cardPart string
	if m := cardRe.FindStringSubmatch(text); m != nil {
		cardPart = "(A/c: xx" + m[1] + ")"
	}

	switch {
	case descPart != "" && cardPart != "":
		return descPart + " " + cardPart
	case descPart != "":
		return descPart
	case cardPart != "":
		hint := strings.TrimSpace(subjectHintRe.ReplaceAllString(subject, ""))
		if len(hint) > 60 {
			hint = strings.TrimSpace(hint[:60])
		}
		if hint == "" {
			hint = "Transaction"
		}
		return hint + " " + cardPart
	}

	cleaned := strings.TrimSpace(subjectCleanRe.ReplaceAllString(subject, ""))
	if cleaned == "" {
		return "Email transaction"
	}
	if len(cleaned) > 80 {
		cleaned = cleaned[:80]
	}
	return cleaned
}

var subjectHintRe = regexp.MustCompile(`(?i)(?:alert|update|transaction|your|bank|a/c|account|axis|hdfc|icici|sbi)[:\s]*`)

var subjectCleanRe = regexp.MustCompile(`(?i)(?:alert|update|transaction|your|bank|a/c|account)[:\s]*`)
