package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"expensetracker/internal/domain"
	"expensetracker/internal/logger"
	"expensetracker/internal/normalize"
)

// cellGap is the horizontal whitespace, in points, that separates two
// table cells on a PDF row. Smaller gaps are treated as word spacing
// inside one cell.
const cellGap = 10.0

// txnLineRe matches the common text-layout statement line:
// date, free-form description, amount (decimals optional, some layouts
// print whole rupees), optional Cr/Dr marker.
var txnLineRe = regexp.MustCompile(
	`(?i)^(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{1,2}[ -][A-Za-z]{3,9}[ -]\d{2,4})\s+(.+?)\s+(-?[\d,]+(?:\.\d{1,2})?)\s*(cr|dr)?\.?$`)

// ParsePDF extracts transactions from a PDF statement. Table
// reconstruction from glyph positions is tried first; when the document
// has no recognisable table, each text line is matched against the
// date/description/amount pattern instead.
func ParsePDF(ctx context.Context, filename string, data []byte, source domain.Source) ([]domain.Transaction, error) {
	log := logger.FromContext(ctx)

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	rows, lines := collectPDFContent(r)

	if len(rows) > 0 {
		if headerIdx, cols, err := locateHeader(rows); err == nil {
			txns := convertRows(rows[headerIdx+1:], cols, source)
			if len(txns) > 0 {
				log.Debug().Str("file", filename).Int("count", len(txns)).Msg("pdf table extraction succeeded")
				return txns, nil
			}
		}
	}

	txns := parseTextLines(lines, source)
	if len(txns) == 0 {
		return nil, ErrNoTransactions
	}
	log.Debug().Str("file", filename).Int("count", len(txns)).Msg("pdf line extraction succeeded")
	return txns, nil
}

// collectPDFContent walks every page once, producing both cell rows
// (split on horizontal gaps) and flat text lines for the fallback pass.
func collectPDFContent(r *pdf.Reader) ([][]string, []string) {
	var (
		rows  [][]string
		lines []string
	)
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageRows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range pageRows {
			cells := splitRowCells(row.Content)
			if len(cells) == 0 {
				continue
			}
			rows = append(rows, cells)
			lines = append(lines, strings.Join(cells, " "))
		}
	}
	if len(lines) == 0 {
		lines = plainTextLines(r)
	}
	return rows, lines
}

func plainTextLines(r *pdf.Reader) []string {
	rd, err := r.GetPlainText()
	if err != nil {
		return nil
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rd); err != nil {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(buf.String(), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// splitRowCells groups positioned glyph runs into cells. Runs are assumed
// sorted by X within a row; a gap wider than cellGap starts a new cell.
func splitRowCells(content pdf.TextHorizontal) []string {
	var (
		cells   []string
		current strings.Builder
		lastEnd float64
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			cells = append(cells, s)
		}
		current.Reset()
	}
	for i, t := range content {
		if i > 0 && t.X-lastEnd > cellGap {
			flush()
		} else if i > 0 && t.X > lastEnd {
			current.WriteByte(' ')
		}
		current.WriteString(t.S)
		lastEnd = t.X + t.W
	}
	flush()
	return cells
}

func parseTextLines(lines []string, source domain.Source) []domain.Transaction {
	var txns []domain.Transaction
	for _, line := range lines {
		m := txnLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		date, ok := normalize.ParseDate(m[1])
		if !ok {
			continue
		}
		amount, ok := normalize.CleanAmount(m[3])
		if !ok {
			continue
		}
		txnType := domain.Debit
		if strings.EqualFold(m[4], "cr") || strings.HasPrefix(m[3], "-") {
			txnType = domain.Credit
		}
		txns = append(txns, domain.Transaction{
			Date:        date,
			Description: strings.TrimSpace(m[2]),
			Amount:      amount,
			Type:        txnType,
			Source:      source,
			Month:       int(date.Month()),
			Year:        date.Year(),
		})
	}
	return txns
}
