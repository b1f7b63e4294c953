// Package extract turns raw statement files into canonical transactions.
// Each extractor handles one file family: tabular (CSV and spreadsheets),
// PDF, and images via a vision model. All of them produce the same
// domain.Transaction slice and leave provenance and persistence to the
// caller.
package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"expensetracker/internal/domain"
	"expensetracker/internal/logger"
	"expensetracker/internal/normalize"
)

// ErrNoColumns means no usable header row was found: the file either is
// not a statement or uses a layout none of the keyword sets cover.
var ErrNoColumns = errors.New("could not identify statement columns")

// ErrNoTransactions means the layout was recognised but every data row was
// rejected.
var ErrNoTransactions = errors.New("no transactions found")

// maxSpreadsheetCells bounds how much of an .xls sheet is read.
const maxSpreadsheetCells = 20000

// ParseTabular extracts transactions from a CSV, XLSX or XLS statement.
// The source tells the converter which account family the rows belong to;
// it is stamped on every transaction. The returned mapping records how the
// layout was read so callers can show it for confirmation.
func ParseTabular(ctx context.Context, filename string, data []byte, source domain.Source) ([]domain.Transaction, ColumnMapping, error) {
	log := logger.FromContext(ctx)

	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(data)
	case ".xls":
		rows, err = readXLS(data)
	default:
		rows, err = readCSV(data)
	}
	if err != nil {
		return nil, ColumnMapping{}, fmt.Errorf("read %s: %w", filename, err)
	}

	headerIdx, cols, err := locateHeader(rows)
	if err != nil {
		return nil, ColumnMapping{}, err
	}
	log.Debug().
		Str("file", filename).
		Int("header_row", headerIdx).
		Int("rows", len(rows)-headerIdx-1).
		Msg("statement layout detected")

	txns := convertRows(rows[headerIdx+1:], cols, source)
	if len(txns) == 0 {
		return nil, cols, ErrNoTransactions
	}
	return txns, cols, nil
}

// readCSV tries progressively laxer parses. Bank exports routinely mix
// encodings, ragged rows and stray quotes, so a strict UTF-8 read is only
// the first attempt.
func readCSV(data []byte) ([][]string, error) {
	type strategy struct {
		decoder *encoding.Decoder
		lazy    bool
	}
	strategies := []strategy{
		{nil, false},
		{nil, true},
		{charmap.ISO8859_1.NewDecoder(), true},
		{charmap.Windows1252.NewDecoder(), true},
	}

	var lastErr error
	for _, st := range strategies {
		var src io.Reader = bytes.NewReader(data)
		if st.decoder != nil {
			src = st.decoder.Reader(src)
		}
		r := csv.NewReader(src)
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		r.LazyQuotes = st.lazy

		rows, err := r.ReadAll()
		if err != nil {
			lastErr = err
			continue
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("empty file")
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetRows(f.GetSheetName(0))
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	rows := wb.ReadAllCells(maxSpreadsheetCells)
	if len(rows) == 0 {
		return nil, errors.New("empty workbook")
	}
	return rows, nil
}

// ColumnMapping holds the index of each recognised column role, -1 when
// the statement has no such column. Callers can surface it so the user can
// verify how the layout was read.
type ColumnMapping struct {
	Date        int
	Description int
	Debit       int
	Credit      int
	Amount      int
}

// locateHeader scans for the first row that looks like a statement header:
// at least three cells, one matching a date keyword and one matching a
// money keyword. Everything above it is preamble (account holder name,
// address, statement period) and is discarded.
func locateHeader(rows [][]string) (int, ColumnMapping, error) {
	for i, row := range rows {
		if countNonEmpty(row) < 3 {
			continue
		}
		if normalize.FindIndex(row, normalize.DateKeywords) < 0 {
			continue
		}
		hasMoney := normalize.FindIndex(row, normalize.DebitKeywords) >= 0 ||
			normalize.FindIndex(row, normalize.CreditKeywords) >= 0 ||
			normalize.FindIndex(row, normalize.AmountKeywords) >= 0
		if !hasMoney {
			continue
		}
		cols, ok := detectColumns(row)
		if ok {
			return i, cols, nil
		}
	}
	return 0, ColumnMapping{}, ErrNoColumns
}

// detectColumns assigns one column per role. Roles are claimed in a fixed
// order and a claimed column is never reused, so "Withdrawal Amt" binds to
// the debit role even though it also matches the generic amount keywords.
// A date column and at least one money column are required; the
// description column is optional, rows without one get a placeholder.
func detectColumns(header []string) (ColumnMapping, bool) {
	cols := ColumnMapping{Date: -1, Description: -1, Debit: -1, Credit: -1, Amount: -1}
	used := make(map[int]bool, len(header))

	claim := func(keywords []string) int {
		for i, cell := range header {
			if used[i] {
				continue
			}
			if normalize.MatchColumn(cell, keywords) {
				used[i] = true
				return i
			}
		}
		return -1
	}

	cols.Date = claim(normalize.DateKeywords)
	cols.Description = claim(normalize.DescriptionKeywords)
	cols.Debit = claim(normalize.DebitKeywords)
	cols.Credit = claim(normalize.CreditKeywords)
	cols.Amount = claim(normalize.AmountKeywords)

	if cols.Date < 0 {
		return cols, false
	}
	if cols.Debit < 0 && cols.Credit < 0 && cols.Amount < 0 {
		return cols, false
	}
	return cols, true
}

func convertRows(rows [][]string, cols ColumnMapping, source domain.Source) []domain.Transaction {
	var txns []domain.Transaction
	for _, row := range rows {
		txn, ok := convertRow(row, cols, source)
		if ok {
			txns = append(txns, txn)
		}
	}
	return txns
}

// convertRow builds one transaction from a data row. The debit column is
// checked before credit: in two-column statements a row carries exactly one
// of the two, and on a malformed row with both, treating it as a debit is
// the conservative reading.
func convertRow(row []string, cols ColumnMapping, source domain.Source) (domain.Transaction, bool) {
	date, ok := cellDate(row, cols.Date)
	if !ok {
		return domain.Transaction{}, false
	}
	// A dated row with a parseable amount is real money movement even when
	// the narration cell is blank; keep it under a placeholder.
	desc := strings.TrimSpace(cell(row, cols.Description))
	if desc == "" {
		desc = "No description"
	}

	var (
		amount  float64
		txnType domain.TxnType
		found   bool
	)
	if v, ok := cellAmount(row, cols.Debit); ok {
		amount, txnType, found = v, domain.Debit, true
	} else if v, ok := cellAmount(row, cols.Credit); ok {
		amount, txnType, found = v, domain.Credit, true
	} else if v, ok := cellAmount(row, cols.Amount); ok {
		amount, found = v, true
		txnType = singleAmountType(cell(row, cols.Amount))
	}
	if !found {
		return domain.Transaction{}, false
	}

	return domain.Transaction{
		Date:        date,
		Description: desc,
		Amount:      amount,
		Type:        txnType,
		Source:      source,
		Month:       int(date.Month()),
		Year:        date.Year(),
	}, true
}

// singleAmountType decides direction for statements with one amount
// column: a "cr" marker or a leading minus means credit, everything else
// is a debit.
func singleAmountType(raw string) domain.TxnType {
	s := strings.ToLower(strings.TrimSpace(raw))
	if strings.Contains(s, "cr") || strings.HasPrefix(s, "-") {
		return domain.Credit
	}
	return domain.Debit
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func cellDate(row []string, idx int) (time.Time, bool) {
	return normalize.ParseDate(cell(row, idx))
}

func cellAmount(row []string, idx int) (float64, bool) {
	if idx < 0 {
		return 0, false
	}
	return normalize.CleanAmount(cell(row, idx))
}

func countNonEmpty(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}
