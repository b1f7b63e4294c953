package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"expensetracker/internal/domain"
	"expensetracker/internal/logger"
)

// ErrConnection covers both unreachable servers and failed logins.
var ErrConnection = errors.New("imap connection failed")

// ErrCancelled is returned when the caller's cancel predicate fires
// mid-fetch. Transactions extracted so far are discarded.
var ErrCancelled = errors.New("email fetch cancelled")

// Credentials holds everything needed to reach one mailbox.
type Credentials struct {
	Host     string
	Port     int
	Address  string
	Password string
	Folder   string
}

// ProgressFunc receives live updates: a coarse step name ("search",
// "download", "done") and a human-readable detail line.
type ProgressFunc func(step, detail string)

// CancelFunc is polled between searches and between messages; returning
// true aborts the fetch.
type CancelFunc func() bool

// imapSearches are the server-side queries used to find candidate alert
// emails. Subject searches are precise and fast; the FROM entries catch
// major banks that use unusual subjects. Broad FROM terms like "alerts@"
// are avoided on purpose, they return hundreds of promos.
var imapSearches = []struct {
	field   string
	keyword string
}{
	{"Subject", "debited"},
	{"Subject", "credited"},
	{"Subject", "spent on"},
	{"Subject", "transaction alert"},
	{"Subject", "debit alert"},
	{"Subject", "credit alert"},
	{"Subject", "payment alert"},
	{"Subject", "debited from your"},
	{"Subject", "credited to your"},
	{"Subject", "withdrawn from"},
	{"Subject", "UPI txn"},
	{"Subject", "UPI transaction"},
	{"Subject", "IMPS"},
	{"Subject", "payment received"},
	{"Subject", "payment of rs"},
	{"From", "hdfcbank"},
	{"From", "icicibank"},
	{"From", "axis.bank"},
	{"From", "axisbank"},
}

// FetchMonth connects, finds all bank alert emails for one calendar
// month, extracts transactions from them, and disconnects. The result is
// deduplicated; emails repeating the same alert are collapsed.
func FetchMonth(ctx context.Context, creds Credentials, month, year int, onProgress ProgressFunc, isCancelled CancelFunc) ([]domain.Transaction, error) {
	log := logger.FromContext(ctx)

	progress := func(step, detail string) {
		if onProgress != nil {
			onProgress(step, detail)
		}
	}
	cancelled := func() bool {
		if isCancelled != nil && isCancelled() {
			return true
		}
		return ctx.Err() != nil
	}

	c, err := client.DialTLS(fmt.Sprintf("%s:%d", creds.Host, creds.Port), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot reach %s:%d: %v", ErrConnection, creds.Host, creds.Port, err)
	}
	defer c.Logout()

	if err := c.Login(creds.Address, creds.Password); err != nil {
		return nil, fmt.Errorf("%w: authentication failed, use an app password for Gmail: %v", ErrConnection, err)
	}

	folder := creds.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := c.Select(folder, true); err != nil {
		return nil, fmt.Errorf("%w: select %s: %v", ErrConnection, folder, err)
	}

	since := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	before := since.AddDate(0, 1, 0)

	progress("search", "Searching inbox for bank transaction alerts...")

	candidates := make(map[uint32]struct{})
	for i, s := range imapSearches {
		if cancelled() {
			return nil, ErrCancelled
		}
		progress("search", fmt.Sprintf("Searching %d/%d: %s", i+1, len(imapSearches), s.keyword))

		criteria := imap.NewSearchCriteria()
		criteria.Since = since
		criteria.Before = before
		criteria.Header.Add(s.field, s.keyword)

		ids, err := c.Search(criteria)
		if err != nil {
			log.Debug().Str("keyword", s.keyword).Err(err).Msg("imap search failed")
			continue
		}
		for _, id := range ids {
			candidates[id] = struct{}{}
		}
	}

	if len(candidates) == 0 {
		progress("done", "No bank alert emails found.")
		return nil, nil
	}

	ids := make([]uint32, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	progress("download", fmt.Sprintf("Found %d candidate emails. Downloading...", len(ids)))

	var (
		txns           []domain.Transaction
		skippedFilter  int
		skippedNoBody  int
		skippedNoExtr  int
		failedSubjects []string
	)
	for i, id := range ids {
		if cancelled() {
			return nil, ErrCancelled
		}
		if i == 0 || (i+1)%5 == 0 {
			progress("download", fmt.Sprintf("Processing %d/%d (%d extracted so far)", i+1, len(ids), len(txns)))
		}

		pm, err := fetchMessage(c, id)
		if err != nil {
			log.Warn().Uint32("id", id).Err(err).Msg("error processing email")
			continue
		}
		if !isTransactionAlert(pm.Sender, pm.Subject) {
			skippedFilter++
			continue
		}
		if pm.Body == "" {
			skippedNoBody++
			continue
		}
		txn, ok := extractTransaction(pm.Body, pm.Subject, pm.Date)
		if !ok {
			skippedNoExtr++
			if len(failedSubjects) < 10 {
				failedSubjects = append(failedSubjects, truncate(pm.Subject, 80))
			}
			continue
		}
		txns = append(txns, txn)
	}

	log.Info().
		Int("candidates", len(ids)).
		Int("extracted", len(txns)).
		Int("filtered_out", skippedFilter).
		Int("no_body", skippedNoBody).
		Int("extraction_failed", skippedNoExtr).
		Msg("email fetch summary")
	if len(failedSubjects) > 0 {
		log.Info().Strs("subjects", failedSubjects).Msg("failed extraction subjects (sample)")
	}

	progress("done", fmt.Sprintf("Done: %d transactions from %d emails (skipped: %d non-alert, %d parse failed)",
		len(txns), len(ids), skippedFilter, skippedNoExtr))

	return dedupe(txns), nil
}

func fetchMessage(c *client.Client, id uint32) (parsedMessage, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)

	section := &imap.BodySectionName{Peek: true}
	ch := make(chan *imap.Message, 1)
	if err := c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, ch); err != nil {
		return parsedMessage{}, err
	}
	msg := <-ch
	if msg == nil {
		return parsedMessage{}, errors.New("no message returned")
	}
	body := msg.GetBody(section)
	if body == nil {
		return parsedMessage{}, errors.New("message has no body section")
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return parsedMessage{}, err
	}
	return parseMessage(&buf)
}

// dedupe collapses repeated alerts for the same transaction. The key uses
// the first 30 description characters so small boilerplate differences
// between duplicate alerts do not defeat it.
func dedupe(txns []domain.Transaction) []domain.Transaction {
	seen := make(map[string]struct{}, len(txns))
	out := txns[:0]
	for _, t := range txns {
		key := fmt.Sprintf("%s|%.2f|%s|%s", t.Date.Format("2006-01-02"), t.Amount, t.Type, truncate(t.Description, 30))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
