package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"expensetracker/internal/config"
	"expensetracker/internal/service"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		provider string
		host     string
		port     int
		address  string
		password string
		folder   string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and optionally store email sync settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Printf("Database ready at %s\n", a.cfg.DatabasePath)

			if address == "" {
				return nil
			}
			if password == "" {
				return fmt.Errorf("--password is required with --email")
			}
			if provider != "" {
				preset, ok := config.IMAPPresets[strings.ToLower(provider)]
				if !ok {
					return fmt.Errorf("unknown provider %q, use --imap-host instead", provider)
				}
				host, port = preset.Host, preset.Port
			}
			if host == "" {
				return fmt.Errorf("--imap-provider or --imap-host is required with --email")
			}

			err = service.SaveConfig(ctx, st, service.EmailSyncConfig{
				Host: host, Port: port,
				Email: address, Password: password, Folder: folder,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Email sync configured for %s\n", address)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "imap-provider", "", "mail provider preset (gmail, outlook, yahoo, zoho)")
	cmd.Flags().StringVar(&host, "imap-host", "", "IMAP host for custom providers")
	cmd.Flags().IntVar(&port, "imap-port", 993, "IMAP port")
	cmd.Flags().StringVar(&address, "email", "", "mailbox address to sync transaction alerts from")
	cmd.Flags().StringVar(&password, "password", "", "mailbox password or app password")
	cmd.Flags().StringVar(&folder, "folder", "INBOX", "mailbox folder to search")
	return cmd
}
