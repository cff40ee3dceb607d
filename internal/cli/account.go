package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tgmon/internal/storage"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage monitored accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register an account",
	Long:  "Register an account by name. The bot token comes from --token or from the environment variable named by --token-env.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		tokenEnv, _ := cmd.Flags().GetString("token-env")
		if token == "" && tokenEnv != "" {
			token = os.Getenv(tokenEnv)
			if token == "" {
				return fmt.Errorf("environment variable %s is empty", tokenEnv)
			}
		}
		if token == "" {
			return errors.New("either --token or --token-env is required")
		}

		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.AddAccount(cmd.Context(), storage.Account{
			Name:    args[0],
			Token:   token,
			Enabled: true,
		}); err != nil {
			return fmt.Errorf("add account: %w", err)
		}
		fmt.Printf("Account %s added.\n", args[0])
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		accounts, err := st.ListAccounts(cmd.Context(), false)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts registered.")
			return nil
		}
		for _, a := range accounts {
			watches, err := st.ListWatches(cmd.Context(), a.Name, false)
			if err != nil {
				return fmt.Errorf("list watches for %s: %w", a.Name, err)
			}
			fmt.Printf("%s  %s  %d watch(es)\n", a.Name, enabledMark(a.Enabled), len(watches))
		}
		return nil
	},
}

var accountEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable an account",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAccountEnabled(cmd, args[0], true) },
}

var accountDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable an account without deleting its watches",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAccountEnabled(cmd, args[0], false) },
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete an account and all of its watches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.RemoveAccount(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("remove account: %w", err)
		}
		fmt.Printf("Account %s removed.\n", args[0])
		return nil
	},
}

func setAccountEnabled(cmd *cobra.Command, name string, enabled bool) error {
	st, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetAccountEnabled(cmd.Context(), name, enabled); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	fmt.Printf("Account %s is now %s.\n", name, enabledWord(enabled))
	return nil
}

func enabledMark(enabled bool) string {
	if enabled {
		return color.New(color.FgGreen).Sprint("enabled")
	}
	return color.New(color.FgRed).Sprint("disabled")
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// AccountCmd returns the account command with all subcommands attached.
func AccountCmd() *cobra.Command {
	accountAddCmd.Flags().String("token", "", "Bot token for the account")
	accountAddCmd.Flags().String("token-env", "", "Environment variable holding the bot token")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountEnableCmd)
	accountCmd.AddCommand(accountDisableCmd)
	accountCmd.AddCommand(accountRemoveCmd)
	return accountCmd
}
