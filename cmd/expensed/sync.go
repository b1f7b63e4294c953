package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"expensetracker/internal/categorize"
	"expensetracker/internal/notify"
	"expensetracker/internal/service"
)

func newSyncEmailCmd(a *app) *cobra.Command {
	var (
		month, year int
		noNotify    bool
		reviewURL   string
	)

	cmd := &cobra.Command{
		Use:   "sync-email",
		Short: "Fetch bank alert emails and save their transactions",
		Long: `Fetch transaction alert emails for one month over IMAP, extract the
transactions, drop duplicates and save the rest. Designed to run from
cron; configure the mailbox once with "expensed init".`,
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

			engine := categorize.NewEngine(a.ollamaClient(), a.cfg.Ollama.Model, st)
			ingestor := service.NewIngestor(st, engine)
			pusher := notify.New(a.cfg.Ntfy.Server, a.cfg.Ntfy.Topic)
			syncer := service.NewEmailSyncer(st, ingestor, nil, pusher)

			report, err := syncer.Sync(ctx, month, year, service.SyncOptions{
				OnProgress: func(step, detail string) {
					a.log.Info().Str("step", step).Msg(detail)
				},
				Notify:    !noNotify,
				ReviewURL: reviewURL,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Fetched %d alert(s): %d duplicate(s), %d saved",
				report.Fetched, report.Duplicates, report.Saved)
			if report.NeedReview > 0 {
				fmt.Printf(", %d need review", report.NeedReview)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().IntVar(&month, "month", 0, "month to sync (defaults to current)")
	cmd.Flags().IntVar(&year, "year", 0, "year to sync (defaults to current)")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "skip the ntfy push notification")
	cmd.Flags().StringVar(&reviewURL, "review-url", "", "click target for the notification")
	return cmd
}
