package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/bassamadnan/ordermail/config"
)

var newAccount config.Account

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage the mailboxes to scan",
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an account to the config file",
	Example: `  ordermail accounts add --email me@example.com --imap-server imap.example.com --password-env ME_PASSWORD
  ordermail accounts add --email me@gmail.com --source gmail --credentials credentials.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := manager.AddAccount(newAccount); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", newAccount.Email)
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove EMAIL",
	Short: "Remove an account from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := manager.RemoveAccount(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	},
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		accounts := manager.Get().Accounts
		if len(accounts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no accounts configured")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), accountsTable(accounts))
		return nil
	},
}

func accountsTable(accounts []config.Account) string {
	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		server := a.IMAPServer
		if a.SourceName() == config.SourceGmail {
			server = "gmail api"
		}
		secret := "none"
		switch {
		case a.PasswordEnv != "":
			secret = "$" + a.PasswordEnv
		case a.Password != "":
			secret = "inline"
		case a.CredentialsFile != "":
			secret = a.CredentialsFile
		}
		rows = append(rows, []string{a.Email, a.SourceName(), server, secret})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("EMAIL", "SOURCE", "SERVER", "SECRET").
		Rows(rows...).
		String()
}

func init() {
	f := accountsAddCmd.Flags()
	f.StringVar(&newAccount.Email, "email", "", "Mailbox address (required)")
	f.StringVar(&newAccount.Source, "source", config.SourceIMAP, "imap or gmail")
	f.StringVar(&newAccount.IMAPServer, "imap-server", "", "IMAP host, with optional :port")
	f.StringVar(&newAccount.Password, "password", "", "Password stored in the config file")
	f.StringVar(&newAccount.PasswordEnv, "password-env", "", "Environment variable holding the password")
	f.StringVar(&newAccount.CredentialsFile, "credentials", "", "Gmail OAuth client credentials file")
	f.StringVar(&newAccount.TokenFile, "token", "", "Gmail OAuth token file")
	_ = accountsAddCmd.MarkFlagRequired("email")

	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
	accountsCmd.AddCommand(accountsListCmd)
}
