package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tgmon/internal/storage"
)

var aggregatorCmd = &cobra.Command{
	Use:   "aggregator",
	Short: "Manage the notification destination",
}

var aggregatorSetCmd = &cobra.Command{
	Use:   "set <chat-ref> --account <name>",
	Short: "Point notifications at a chat",
	Long:  "Point all notifications at a chat, sent through the given account's connection. Repointing clears the stored resolution.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, _ := cmd.Flags().GetString("account")
		if account == "" {
			return errors.New("--account is required")
		}

		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if _, err := st.GetAccount(cmd.Context(), account); err != nil {
			return fmt.Errorf("account %s: %w", account, err)
		}
		if err := st.SetAggregator(cmd.Context(), storage.Aggregator{
			ChatRef:     args[0],
			AccountName: account,
		}); err != nil {
			return fmt.Errorf("set aggregator: %w", err)
		}
		fmt.Printf("Notifications go to %s through account %s.\n", args[0], account)
		return nil
	},
}

var aggregatorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the notification destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		agg, err := st.GetAggregator(cmd.Context())
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Println("Aggregator is not configured. Run: tgmon aggregator set <chat-ref> --account <name>")
			return nil
		}
		if err != nil {
			return fmt.Errorf("load aggregator: %w", err)
		}
		fmt.Printf("Destination: %s  %s\n", agg.ChatRef, resolutionMark(agg.ChatID, agg.ChatTitle))
		fmt.Printf("Sent through: %s\n", agg.AccountName)
		return nil
	},
}

// AggregatorCmd returns the aggregator command with all subcommands attached.
func AggregatorCmd() *cobra.Command {
	aggregatorSetCmd.Flags().String("account", "", "Account whose connection carries the notifications")

	aggregatorCmd.AddCommand(aggregatorSetCmd)
	aggregatorCmd.AddCommand(aggregatorShowCmd)
	return aggregatorCmd
}
