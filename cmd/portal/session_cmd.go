package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/outlivion/portal/core"
)

var (
	assertionFile string
	assertion     core.TelegramAssertion
	refreshWithin time.Duration
	statusJSON    bool
)

func init() {
	flags := loginCmd.Flags()
	flags.StringVarP(&assertionFile, "assertion-file", "f", "", "read the Telegram login widget payload from a JSON file (- for stdin)")
	flags.StringVar(&assertion.ID, "id", "", "Telegram user id")
	flags.StringVar(&assertion.FirstName, "first-name", "", "Telegram first name")
	flags.StringVar(&assertion.LastName, "last-name", "", "Telegram last name")
	flags.StringVar(&assertion.Username, "username", "", "Telegram username")
	flags.StringVar(&assertion.PhotoURL, "photo-url", "", "Telegram photo URL")
	flags.StringVar(&assertion.AuthDate, "auth-date", "", "auth_date of the signed payload")
	flags.StringVar(&assertion.Hash, "hash", "", "hash of the signed payload")
	flags.StringVar(&assertion.ReferralID, "referral", "", "referral id")

	refreshCmd.Flags().DurationVar(&refreshWithin, "if-expiring", 0, "only refresh when the access credential expires within this window")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")

	rootCmd.AddCommand(loginCmd, logoutCmd, refreshCmd, statusCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a Telegram login widget payload",
	Example: `  # Payload saved from the login widget callback
  portal login -f telegram.json

  # Fields given one by one
  portal login --id 42 --auth-date 1767225600 --hash 3f1c...`,
	Args: cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		input := assertion
		if assertionFile != "" {
			loaded, err := readAssertion(cmd.InOrStdin(), assertionFile)
			if err != nil {
				return err
			}
			input = loaded
		}

		s.nav.SetCurrentPath(core.DefaultLoginPath)
		resp, err := s.portal.Session.Login(cmd.Context(), input)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if resp.User != nil && resp.User.Username != "" {
			fmt.Fprintf(out, "Signed in as @%s\n", resp.User.Username)
		} else {
			fmt.Fprintln(out, "Signed in")
		}
		if resp.User != nil && resp.User.IsNewUser {
			fmt.Fprintln(out, "Welcome! Run `portal plans` to pick a subscription.")
		}
		return nil
	}),
}

func readAssertion(stdin io.Reader, path string) (core.TelegramAssertion, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return core.TelegramAssertion{}, fmt.Errorf("open assertion file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var a core.TelegramAssertion
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return core.TelegramAssertion{}, fmt.Errorf("decode assertion: %w", err)
	}
	return a, nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		s.portal.Session.Logout(cmd.Context())
		return nil
	}),
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the renewal credential for a new access credential",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		out := cmd.OutOrStdout()
		if refreshWithin > 0 {
			refreshed, err := s.portal.Session.RefreshIfExpiring(cmd.Context(), refreshWithin)
			if err != nil {
				return err
			}
			if !refreshed {
				fmt.Fprintln(out, "Session still valid, nothing to do")
				return nil
			}
		} else if _, err := s.portal.Session.Refresh(cmd.Context()); err != nil {
			return err
		}

		if exp, ok := s.portal.Session.AccessExpiry(); ok {
			fmt.Fprintf(out, "Session refreshed, valid until %s\n", exp.Local().Format(time.RFC1123))
		} else {
			fmt.Fprintln(out, "Session refreshed")
		}
		return nil
	}),
}

type statusView struct {
	Authenticated bool               `json:"authenticated"`
	ExpiresAt     *time.Time         `json:"expiresAt,omitempty"`
	User          *core.User         `json:"user,omitempty"`
	Subscription  *core.Subscription `json:"subscription,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session and subscription",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		s.nav.SetCurrentPath(core.DefaultLandingPath)
		view := statusView{Authenticated: s.portal.Session.IsAuthenticated()}
		if exp, ok := s.portal.Session.AccessExpiry(); ok {
			view.ExpiresAt = &exp
		}
		if view.Authenticated {
			overview, err := s.portal.Account.Overview(cmd.Context())
			if err != nil {
				return err
			}
			view.User = overview.User
			view.Subscription = overview.Subscription
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			return printJSON(out, view)
		}
		if !view.Authenticated {
			fmt.Fprintln(out, "Not signed in. Run `portal login`.")
			return nil
		}
		printStatus(out, view)
		return nil
	}),
}

func printStatus(out io.Writer, view statusView) {
	if u := view.User; u != nil {
		name := u.Username
		if name == "" {
			name = u.FirstName
		}
		fmt.Fprintf(out, "Account:      %s (telegram %s)\n", name, u.TelegramID)
		if u.Balance != nil {
			fmt.Fprintf(out, "Balance:      %.2f\n", *u.Balance)
		}
	}
	if sub := view.Subscription; sub != nil {
		switch {
		case sub.IsExpired:
			fmt.Fprintln(out, "Subscription: expired")
		case sub.EndDate != nil:
			fmt.Fprintf(out, "Subscription: %s until %s (%d days left)\n", sub.Status, sub.EndDate.Local().Format("2006-01-02"), sub.DaysRemaining)
		default:
			fmt.Fprintf(out, "Subscription: %s\n", sub.Status)
		}
	}
	if view.ExpiresAt != nil {
		fmt.Fprintf(out, "Session:      valid until %s\n", view.ExpiresAt.Local().Format(time.RFC1123))
	}
}
