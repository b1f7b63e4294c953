package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"expensetracker/internal/categorize"
	"expensetracker/internal/dedup"
	"expensetracker/internal/domain"
	"expensetracker/internal/service"
	"expensetracker/internal/store"
)

func newCategorizeCmd(a *app) *cobra.Command {
	var month, year int

	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize uncategorized transactions for one month",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			if month == 0 || year == 0 {
				month, year = service.MonthWindow(time.Now())
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.ListTransactions(ctx, store.Filter{Month: month, Year: year})
			if err != nil {
				return err
			}
			var pending []domain.Transaction
			for _, t := range rows {
				if t.Category == "" {
					pending = append(pending, t)
				}
			}
			if len(pending) == 0 {
				fmt.Printf("Nothing to categorize for %02d/%d.\n", month, year)
				return nil
			}

			categories, err := st.ListCategories(ctx)
			if err != nil {
				return err
			}
			engine := categorize.NewEngine(a.ollamaClient(), a.cfg.Ollama.Model, st)
			results, catErr := engine.Categorize(ctx, pending, categories)
			if len(results) > 0 {
				if err := st.BulkUpdateCategories(ctx, results); err != nil {
					return err
				}
			}
			fmt.Printf("Categorized %d of %d transaction(s)\n", len(results), len(pending))
			return catErr
		},
	}

	cmd.Flags().IntVar(&month, "month", 0, "month (defaults to current)")
	cmd.Flags().IntVar(&year, "year", 0, "year (defaults to current)")
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	var month, year int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show earnings, spending and category breakdown for one month",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			if month == 0 || year == 0 {
				month, year = service.MonthWindow(time.Now())
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			sum, err := st.GetMonthlySummary(ctx, month, year, dedup.ChannelAny)
			if err != nil {
				return err
			}
			breakdown, err := st.GetCategoryBreakdown(ctx, month, year, dedup.ChannelAny)
			if err != nil {
				return err
			}

			fmt.Printf("Summary for %02d/%d\n", month, year)
			fmt.Printf("  Earnings:  Rs %.2f (Rs %.2f excluding transfers)\n",
				sum.TotalEarnings, sum.ActualEarnings())
			fmt.Printf("  Expenses:  Rs %.2f (Rs %.2f excluding transfers and investments)\n",
				sum.TotalExpenses, sum.ActualExpenses())
			fmt.Printf("  Invested:  Rs %.2f\n", sum.Investment)

			if len(breakdown) == 0 {
				fmt.Println("  No spending recorded.")
				return nil
			}
			fmt.Println("  Spending by category:")
			for _, c := range breakdown {
				fmt.Printf("    %-20s Rs %10.2f\n", c.Category, c.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&month, "month", 0, "month (defaults to current)")
	cmd.Flags().IntVar(&year, "year", 0, "year (defaults to current)")
	return cmd
}
