// expensed is the expense tracker command line: statement import, email
// sync, categorization and monthly reporting against a local SQLite
// database and a local Ollama instance.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"expensetracker/internal/config"
	"expensetracker/internal/logger"
	"expensetracker/internal/ollama"
	"expensetracker/internal/store"
)

// app carries what every subcommand needs once the root flags are parsed.
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configPath, dbPath string

	root := &cobra.Command{
		Use:           "expensed",
		Short:         "Personal expense tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log = logger.New()
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DatabasePath = dbPath
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "override database path")

	root.AddCommand(
		newInitCmd(a),
		newImportCmd(a),
		newSyncEmailCmd(a),
		newCategorizeCmd(a),
		newSummaryCmd(a),
	)
	return root
}

// ctx returns a command context carrying the logger.
func (a *app) ctx(cmd *cobra.Command) context.Context {
	return logger.WithContext(cmd.Context(), a.log)
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, a.cfg.DatabasePath)
}

func (a *app) ollamaClient() *ollama.Client {
	return ollama.NewClient(a.cfg.Ollama.BaseURL)
}
