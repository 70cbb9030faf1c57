package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/outlivion/portal/core"
)

// pendingPayment remembers the payment handed off to the provider so a later
// `portal confirm` can resume it. It lives in the credential store and is
// cleared with the session.
const (
	pendingPayment    = "pendingPaymentId"
	pendingPaymentTTL = 24 * time.Hour
)

var (
	planID    string
	devices   int
	promoCode string
	waitPay   bool
)

func init() {
	for _, cmd := range []*cobra.Command{quoteCmd, checkoutCmd} {
		cmd.Flags().StringVarP(&planID, "plan", "p", string(core.DefaultPlan), "plan id (see `portal plans`)")
		cmd.Flags().IntVarP(&devices, "devices", "d", 1, "number of devices")
		cmd.Flags().StringVar(&promoCode, "promo", "", "promo code")
	}
	checkoutCmd.Flags().BoolVar(&waitPay, "wait", term.IsTerminal(int(os.Stdin.Fd())), "wait for the payment and confirm it")

	rootCmd.AddCommand(plansCmd, quoteCmd, promoCmd, checkoutCmd, confirmCmd, abandonCmd)
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List subscription plans",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PLAN\tNAME\tPRICE\tPER DEVICE / 30 DAYS\t")
		for _, plan := range s.portal.Catalog {
			name := plan.Name
			if plan.IsFeatured {
				name += " *"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d %s\t\n", plan.ID, name, plan.BasePrice, plan.PricePerDevicePerPeriod, plan.DiscountLabel)
		}
		return w.Flush()
	}),
}

// buildIntent turns the plan flags into a priced purchase intent, validating
// the promo code when one is given.
func buildIntent(cmd *cobra.Command, s *session) (*core.PurchaseIntent, error) {
	if _, err := s.portal.Catalog.Lookup(core.PlanID(planID)); err != nil {
		return nil, err
	}
	intent := s.portal.NewIntent()
	if err := intent.SelectPlan(core.PlanID(planID)); err != nil {
		return nil, err
	}
	if err := intent.SetDevices(devices); err != nil {
		return nil, err
	}
	if promoCode != "" {
		intent.SetPromoCode(promoCode)
		if _, err := s.portal.Promo.Apply(cmd.Context(), intent); err != nil {
			return nil, err
		}
	}
	return intent, nil
}

func printQuote(out io.Writer, q core.Quote) {
	fmt.Fprintf(out, "Plan:     %s × %d devices\n", q.Plan, q.Devices)
	fmt.Fprintf(out, "Subtotal: %d\n", q.Subtotal)
	if q.Discount != nil {
		fmt.Fprintf(out, "Discount: -%d\n", q.DiscountAmount)
	}
	fmt.Fprintf(out, "Total:    %d\n", q.Total)
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a plan for a number of devices",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		intent, err := buildIntent(cmd, s)
		if err != nil {
			return err
		}
		quote, err := s.portal.Quote(intent)
		if err != nil {
			return err
		}
		printQuote(cmd.OutOrStdout(), quote)
		return nil
	}),
}

var promoCmd = &cobra.Command{
	Use:   "promo <code>",
	Short: "Check a promo code",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		discount, err := s.portal.Promo.Validate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if discount.Type == core.DiscountPercentage {
			fmt.Fprintf(out, "%s: %.2f%% off\n", core.NormalizePromoCode(args[0]), discount.Percent())
		} else {
			fmt.Fprintf(out, "%s: %d off\n", core.NormalizePromoCode(args[0]), discount.Value)
		}
		return nil
	}),
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Create a payment for a plan and hand off to the payment page",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		s.nav.SetCurrentPath(core.DefaultSelectionPath)
		intent, err := buildIntent(cmd, s)
		if err != nil {
			return err
		}
		quote, err := s.portal.Quote(intent)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printQuote(out, quote)

		resp, err := s.portal.Checkout.Begin(cmd.Context(), intent)
		if err != nil {
			return err
		}
		if err := s.portal.Store.Set(pendingPayment, resp.PaymentID, pendingPaymentTTL); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to remember pending payment")
		}

		if !waitPay {
			fmt.Fprintf(out, "After paying, run `portal confirm %s`.\n", resp.PaymentID)
			return nil
		}

		fmt.Fprint(out, "Press Enter once paid, or type \"abandon\" to go back to plan selection: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if strings.EqualFold(strings.TrimSpace(line), "abandon") {
			if err := s.portal.Checkout.Abandon(cmd.Context()); err != nil {
				return err
			}
			return s.portal.Store.Delete(pendingPayment)
		}
		return confirmPayment(cmd, s, resp.PaymentID)
	}),
}

var confirmCmd = &cobra.Command{
	Use:   "confirm [payment-id]",
	Short: "Poll the payment history until the payment settles",
	Long:  `Confirm a payment after returning from the payment page. Defaults to the payment started by the last checkout.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		paymentID := ""
		if len(args) == 1 {
			paymentID = args[0]
		} else if pending, err := s.portal.Store.Get(pendingPayment); err == nil {
			paymentID = pending
		}
		return confirmPayment(cmd, s, paymentID)
	}),
}

func confirmPayment(cmd *cobra.Command, s *session, paymentID string) error {
	out := cmd.OutOrStdout()
	s.nav.SetCurrentPath("/billing/success")
	fmt.Fprintln(out, "Confirming payment…")

	state, err := s.portal.Checkout.Resume(cmd.Context(), paymentID)
	if state.Settled() && state != core.CheckoutIdle {
		if delErr := s.portal.Store.Delete(pendingPayment); delErr != nil {
			s.logger.Warn().Err(delErr).Msg("Failed to clear pending payment")
		}
	}
	if err != nil {
		if errors.Is(err, core.ErrPollExhausted) || errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w; run `portal confirm %s` again later", err, paymentID)
		}
		return err
	}

	fmt.Fprintln(out, "Payment confirmed.")
	if _, ok := s.nav.WaitNavigation(s.portal.ConfirmDelay + time.Second); !ok {
		s.logger.Debug().Msg("No landing navigation after confirmation")
	}
	return nil
}

var abandonCmd = &cobra.Command{
	Use:   "abandon",
	Short: "Forget the pending payment and return to plan selection",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		if err := s.portal.Store.Delete(pendingPayment); err != nil {
			return err
		}
		s.nav.Navigate(core.DefaultSelectionPath)
		return nil
	}),
}
