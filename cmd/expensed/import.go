package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"expensetracker/internal/categorize"
	"expensetracker/internal/dedup"
	"expensetracker/internal/domain"
	"expensetracker/internal/extract"
	"expensetracker/internal/service"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		sourceStr       string
		month, year     int
		skipOutOfPeriod bool
	)

	cmd := &cobra.Command{
		Use:   "import <statement file>",
		Short: "Parse a statement file and save its transactions",
		Long: `Parse a bank or credit card statement and save its transactions.

Supported formats: CSV, xlsx, xls, PDF, and screenshots (png/jpg, needs
the vision model pulled in Ollama). Duplicates of already stored
transactions are skipped automatically.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)

			source := domain.SourceBank
			if sourceStr == string(domain.SourceCreditCard) {
				source = domain.SourceCreditCard
			} else if sourceStr != string(domain.SourceBank) {
				return fmt.Errorf("unknown source %q, use bank or credit_card", sourceStr)
			}
			if month == 0 || year == 0 {
				month, year = service.MonthWindow(time.Now())
			}

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			txns, err := parseFile(cmd, a, path, data, source)
			if err != nil {
				return err
			}
			fmt.Printf("Parsed %d transaction(s) from %s\n", len(txns), filepath.Base(path))

			if outside := service.OutOfPeriod(txns, month, year); len(outside) > 0 {
				if skipOutOfPeriod {
					txns = dropIndexes(txns, outside)
					fmt.Printf("Skipped %d transaction(s) dated outside %02d/%d\n", len(outside), month, year)
				} else {
					fmt.Printf("Note: %d transaction(s) are dated outside %02d/%d but will be assigned to it\n",
						len(outside), month, year)
				}
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			txns, dupes, err := filterImportDuplicates(ctx, st, txns)
			if err != nil {
				return err
			}
			if dupes > 0 {
				fmt.Printf("Skipped %d duplicate(s) already in the database\n", dupes)
			}
			if len(txns) == 0 {
				fmt.Println("Nothing new to save.")
				return nil
			}

			engine := categorize.NewEngine(a.ollamaClient(), a.cfg.Ollama.Model, st)
			ingestor := service.NewIngestor(st, engine)
			report, err := ingestor.SaveBatch(ctx, txns, source, month, year, filepath.Base(path))
			if err != nil {
				return err
			}

			fmt.Printf("Saved %d transaction(s): %d categorized, %d flagged as credit card payments\n",
				report.Saved, report.Categorized, report.FlaggedCC)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceStr, "source", string(domain.SourceBank), "statement source: bank or credit_card")
	cmd.Flags().IntVar(&month, "month", 0, "assignment month (defaults to current)")
	cmd.Flags().IntVar(&year, "year", 0, "assignment year (defaults to current)")
	cmd.Flags().BoolVar(&skipOutOfPeriod, "skip-out-of-period", false, "drop transactions dated outside the assignment period")
	return cmd
}

func parseFile(cmd *cobra.Command, a *app, path string, data []byte, source domain.Source) ([]domain.Transaction, error) {
	ctx := a.ctx(cmd)
	name := filepath.Base(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx", ".xlsm", ".xls":
		txns, cols, err := extract.ParseTabular(ctx, name, data, source)
		if err != nil {
			return nil, err
		}
		fmt.Printf("Detected columns: date=%d description=%d debit=%d credit=%d amount=%d\n",
			cols.Date, cols.Description, cols.Debit, cols.Credit, cols.Amount)
		return txns, nil
	case ".pdf":
		return extract.ParsePDF(ctx, name, data, source)
	case ".png", ".jpg", ".jpeg", ".webp":
		ex := extract.NewVisionExtractor(a.ollamaClient(), a.cfg.Ollama.VisionModel)
		return ex.Extract(ctx, name, data, source)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func filterImportDuplicates(ctx context.Context, lookup dedup.Lookup, txns []domain.Transaction) ([]domain.Transaction, int, error) {
	skip := make(map[int]bool)
	for _, p := range dedup.WithinBatch(txns) {
		skip[p.Second] = true
	}
	matches, err := dedup.AgainstStore(ctx, lookup, txns, dedup.ChannelFile)
	if err != nil {
		return nil, 0, err
	}
	for _, m := range matches {
		skip[m.Index] = true
	}

	var fresh []domain.Transaction
	for i, t := range txns {
		if !skip[i] {
			fresh = append(fresh, t)
		}
	}
	return fresh, len(skip), nil
}

func dropIndexes(txns []domain.Transaction, indexes []int) []domain.Transaction {
	drop := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		drop[i] = true
	}
	var kept []domain.Transaction
	for i, t := range txns {
		if !drop[i] {
			kept = append(kept, t)
		}
	}
	return kept
}
