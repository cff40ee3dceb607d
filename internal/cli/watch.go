package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tgmon/internal/storage"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage watched chats",
}

var watchAddCmd = &cobra.Command{
	Use:   "add <account> <chat-ref>",
	Short: "Watch a chat for an account",
	Long:  "Watch a chat for an account. The chat reference is an @handle or a numeric chat id; it is resolved on monitor startup.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		// Fail early on unknown accounts instead of on monitor startup.
		if _, err := st.GetAccount(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("account %s: %w", args[0], err)
		}

		id, err := st.AddWatch(cmd.Context(), storage.Watch{
			AccountName: args[0],
			ChatRef:     args[1],
			Enabled:     true,
		})
		if err != nil {
			return fmt.Errorf("add watch: %w", err)
		}
		fmt.Printf("Watch [%d] added: %s watches %s.\n", id, args[0], args[1])
		return nil
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watches, optionally for one account",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		accountFilter, _ := cmd.Flags().GetString("account")

		var accounts []storage.Account
		if accountFilter != "" {
			a, err := st.GetAccount(cmd.Context(), accountFilter)
			if err != nil {
				return fmt.Errorf("account %s: %w", accountFilter, err)
			}
			accounts = []storage.Account{a}
		} else {
			accounts, err = st.ListAccounts(cmd.Context(), false)
			if err != nil {
				return fmt.Errorf("list accounts: %w", err)
			}
		}

		total := 0
		for _, a := range accounts {
			watches, err := st.ListWatches(cmd.Context(), a.Name, false)
			if err != nil {
				return fmt.Errorf("list watches for %s: %w", a.Name, err)
			}
			if len(watches) == 0 {
				continue
			}
			fmt.Printf("%s (%s):\n", a.Name, enabledMark(a.Enabled))
			for _, w := range watches {
				fmt.Printf("  [%d] %s  %s  %s\n", w.ID, w.ChatRef, resolutionMark(w.ChatID, w.ChatTitle), enabledMark(w.Enabled))
			}
			total += len(watches)
		}
		if total == 0 {
			fmt.Println("No watches configured.")
		}
		return nil
	},
}

var watchEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a watch",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setWatchEnabled(cmd, args[0], true) },
}

var watchDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a watch",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setWatchEnabled(cmd, args[0], false) },
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a watch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWatchID(args[0])
		if err != nil {
			return err
		}
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.RemoveWatch(cmd.Context(), id); err != nil {
			return fmt.Errorf("remove watch: %w", err)
		}
		fmt.Printf("Watch [%d] removed.\n", id)
		return nil
	},
}

func setWatchEnabled(cmd *cobra.Command, rawID string, enabled bool) error {
	id, err := parseWatchID(rawID)
	if err != nil {
		return err
	}
	st, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetWatchEnabled(cmd.Context(), id, enabled); err != nil {
		return fmt.Errorf("update watch: %w", err)
	}
	fmt.Printf("Watch [%d] is now %s.\n", id, enabledWord(enabled))
	return nil
}

func parseWatchID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid watch id %q", raw)
	}
	return id, nil
}

func resolutionMark(chatID *int64, title *string) string {
	if chatID == nil {
		return color.New(color.FgYellow).Sprint("(unresolved)")
	}
	name := ""
	if title != nil {
		name = *title
	}
	return fmt.Sprintf("%s (%d)", name, *chatID)
}

// WatchCmd returns the watch command with all subcommands attached.
func WatchCmd() *cobra.Command {
	watchListCmd.Flags().String("account", "", "Only show watches of this account")

	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchListCmd)
	watchCmd.AddCommand(watchEnableCmd)
	watchCmd.AddCommand(watchDisableCmd)
	watchCmd.AddCommand(watchRemoveCmd)
	return watchCmd
}
