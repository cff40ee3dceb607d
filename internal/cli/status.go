package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tgmon/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured monitoring setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()

		fmt.Printf("Database: %s\n\n", cfg.Storage.Path)

		agg, err := st.GetAggregator(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fmt.Println(color.New(color.FgRed).Sprint("Aggregator: not configured"))
		case err != nil:
			return fmt.Errorf("load aggregator: %w", err)
		default:
			fmt.Printf("Aggregator: %s  %s  via %s\n", agg.ChatRef, resolutionMark(agg.ChatID, agg.ChatTitle), agg.AccountName)
		}

		accounts, err := st.ListAccounts(ctx, false)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		if len(accounts) == 0 {
			fmt.Println("\nNo accounts registered.")
			return nil
		}

		fmt.Printf("\nAccounts (%d):\n", len(accounts))
		for _, a := range accounts {
			watches, err := st.ListWatches(ctx, a.Name, false)
			if err != nil {
				return fmt.Errorf("list watches for %s: %w", a.Name, err)
			}
			active := 0
			for _, w := range watches {
				if w.Enabled {
					active++
				}
			}
			fmt.Printf("  %s  %s  %d/%d watches enabled\n", a.Name, enabledMark(a.Enabled), active, len(watches))
			for _, w := range watches {
				fmt.Printf("    [%d] %s  %s  %s\n", w.ID, w.ChatRef, resolutionMark(w.ChatID, w.ChatTitle), enabledMark(w.Enabled))
			}
		}
		return nil
	},
}

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	return statusCmd
}
