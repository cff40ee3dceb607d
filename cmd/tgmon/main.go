package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tgmon/internal/cli"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "tgmon",
		Short:   "tgmon watches Telegram chats and forwards mentions to one place",
		Version: version,
		Long: `tgmon monitors group chats for multiple accounts, detects mentions of the
account (and replies to its messages), and forwards a formatted notification
to a single aggregator chat.`,
	}
	rootCmd.PersistentFlags().String("config", "./config.yaml", "Path to the config file (YAML or JSON)")

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.AccountCmd())
	rootCmd.AddCommand(cli.WatchCmd())
	rootCmd.AddCommand(cli.AggregatorCmd())
	rootCmd.AddCommand(cli.StatusCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
