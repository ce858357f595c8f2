package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pixivcrawl/pkg/auth"
	"pixivcrawl/pkg/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored pixiv cookies",
	Long: `Manage stored pixiv session cookies.

Cookies are stored in the system keychain when available, otherwise in an
AES-GCM encrypted file under ~/.config/pixivcrawl. PIXIVCRAWL_COOKIE is
read as a fallback.

The cookie gives full access to your pixiv account. Never share it.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store a pixiv cookie",
	Long: `Store a pixiv cookie under a name (default "default").

The cookie is read without echo. Type 'help' at the prompt for detailed
instructions on copying it from your browser.`,
	Example: `  pixivcrawl auth login
  pixivcrawl auth login work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove a stored cookie",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts with masked cookies",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var useCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a stored account the default",
	Args:  cobra.ExactArgs(1),
	RunE:  runUse,
}

var userAgent string

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(useCmd)

	loginCmd.Flags().StringVar(&userAgent, "user-agent", "", "User-Agent sent with this cookie")
}

func accountName(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return auth.DefaultAccount
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := accountName(args)
	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already exists. Replace its cookie? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	auth.ShowQuickGuide(os.Stdout)
	fmt.Println()

	account := &auth.Account{Name: name, UserAgent: userAgent}
	for {
		fmt.Print("Cookie: ")
		cookie, err := readSecret(reader)
		if err != nil {
			return fmt.Errorf("failed to read cookie: %w", err)
		}

		if strings.EqualFold(cookie, "help") {
			auth.ShowCookieGuide(os.Stdout)
			continue
		}

		account.Cookie = cookie
		if err := account.Validate(); err != nil {
			ui.PrintWarning("That does not look like a cookie header", err)
			fmt.Print("Try again? (Y/n): ")
			again, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(again)) == "n" {
				return err
			}
			continue
		}
		break
	}

	if !account.HasSession() {
		ui.PrintWarning("The cookie has no PHPSESSID; only public works will be visible")
	}

	account.LastModified = time.Now()
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store cookie: %w", err)
	}

	ui.PrintSuccess("Stored cookie for account " + name)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := accountName(args)
	if _, err := manager.Retrieve(name); errors.Is(err, auth.ErrCredentialsNotFound) {
		return fmt.Errorf("account %q not found", name)
	}
	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}

	ui.PrintSuccess("Account removed: " + name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "use 'pixivcrawl auth login' to add one")
		return nil
	}

	for _, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		marker := " "
		if sanitized.Name == auth.DefaultAccount {
			marker = "*"
		}
		fmt.Fprintf(ui.Stdout, "%s %s\n", marker, ui.Cyan(sanitized.Name))
		fmt.Fprintf(ui.Stdout, "    cookie:   %s\n", sanitized.Cookie)
		if sanitized.UserAgent != "" {
			fmt.Fprintf(ui.Stdout, "    agent:    %s\n", sanitized.UserAgent)
		}
		if !sanitized.LastModified.IsZero() {
			fmt.Fprintf(ui.Stdout, "    modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

// runUse copies an account to the default name
func runUse(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	account, err := manager.Retrieve(args[0])
	if err != nil {
		return fmt.Errorf("account %q not found", args[0])
	}

	account.Name = auth.DefaultAccount
	account.LastModified = time.Now()
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store default account: %w", err)
	}

	ui.PrintSuccess("Default account is now a copy of " + args[0])
	return nil
}

// readSecret reads a line from stdin without echo when it is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
