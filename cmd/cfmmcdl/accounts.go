package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cfmmcdl/pkg/accounts"
	"cfmmcdl/pkg/ui"
)

// accountsCmd represents the accounts command
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage the account roster",
	Long: `Manage the roster of portal accounts.

The roster file holds division, company and account number only. Passwords
are stored separately: in the system keychain when available, otherwise in
an encrypted file next to the roster.

Never share your roster directory!`,
}

// accountsAddCmd represents the accounts add command
var accountsAddCmd = &cobra.Command{
	Use:   "add [account-number]",
	Short: "Add an account and store its password",
	Long: `Add an account to the roster. You will be prompted for the division
name, the futures company short name and the portal password. The password
never touches the roster file.`,
	Example: `  # Interactive add
  cfmmcdl accounts add

  # Add with the number on the command line
  cfmmcdl accounts add 00012345`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAccountsAdd,
}

// accountsListCmd represents the accounts list command
var accountsListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List roster accounts",
	Long:  `List roster accounts, optionally filtered by a substring of the division, company or number.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAccountsList,
}

// accountsRemoveCmd represents the accounts remove command
var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <account-number>...",
	Short: "Remove accounts and their stored passwords",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAccountsRemove,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	var accountNo string
	if len(args) > 0 {
		accountNo = strings.TrimSpace(args[0])
	} else {
		accountNo = promptLine(reader, "account number")
	}
	if accountNo == "" {
		return fmt.Errorf("account number is required")
	}

	division := promptLine(reader, "division name")
	company := promptLine(reader, "company short name")

	fmt.Print(ui.Cyan("portal password: "))
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return fmt.Errorf("password is required")
	}

	roster := accounts.NewRoster(cfg.Accounts.RosterFile)
	if err := roster.Add(accounts.Account{
		DivisionName: division,
		CompanyShort: company,
		AccountNo:    accountNo,
	}); err != nil {
		return err
	}

	vault, err := accounts.NewVault(vaultPath())
	if err != nil {
		return err
	}
	if err := vault.Set(accountNo, string(password)); err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("account %s added", accountNo))
	return nil
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	roster := accounts.NewRoster(cfg.Accounts.RosterFile)

	query := ""
	if len(args) > 0 {
		query = args[0]
	}
	list, err := roster.Search(query)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		ui.PrintWarning("no accounts found")
		return nil
	}
	accounts.SortByAccountNo(list)
	ui.RenderAccountsTable(os.Stdout, list)
	return nil
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	roster := accounts.NewRoster(cfg.Accounts.RosterFile)
	if err := roster.Remove(args...); err != nil {
		return err
	}

	vault, err := accounts.NewVault(vaultPath())
	if err != nil {
		return err
	}
	for _, no := range args {
		if err := vault.Delete(no); err != nil {
			ui.PrintWarning("failed to remove stored password", err)
		}
	}

	ui.PrintSuccess(fmt.Sprintf("%d account(s) removed", len(args)))
	return nil
}

func promptLine(reader *bufio.Reader, label string) string {
	fmt.Print(ui.Cyan(label + ": "))
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
