package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkichain/pkichain/client"
	"github.com/pkichain/pkichain/models"
	"github.com/pkichain/pkichain/order"
)

var errNoPlan = errors.New("no active plan")

type planAPI interface {
	PurchasePlan(ctx context.Context, body models.PurchasePlanRequest) error
	CreateCheckoutSession(ctx context.Context, planType string) (string, error)
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Show and buy plans",
}

var plansShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active plan and its usage",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		_, c := loggedIn()
		plan, err := c.MyPlan(ctx)
		if client.IsNotFound(err) {
			err = errNoPlan
		}
		if err != nil {
			slog.Error("failed to fetch plan", slog.Any("error", err))
			os.Exit(1)
		}
		printPlan(os.Stdout, plan)
	},
}

var plansPurchaseCmd = &cobra.Command{
	Use:       "purchase <free|standard|premium>",
	Short:     "Buy a plan",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{models.PlanFree, models.PlanStandard, models.PlanPremium},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		_, c := loggedIn()
		url, err := purchasePlan(ctx, c, args[0])
		if err != nil {
			slog.Error("plan purchase failed", slog.String("plan", args[0]), slog.Any("error", err))
			os.Exit(1)
		}
		if url == "" {
			slog.Info("plan activated", slog.String("plan", args[0]))
			return
		}
		fmt.Printf("Complete the payment at:\n  %s\nthen run 'pkichain plans verify <session-id>'.\n", url)
	},
}

var plansVerifyCmd = &cobra.Command{
	Use:   "verify <session-id>",
	Short: "Verify a completed checkout",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		_, c := loggedIn()
		if err := c.VerifyPayment(ctx, args[0]); err != nil {
			slog.Error("payment verification failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("payment verified, plan is active")
	},
}

// purchasePlan activates the free plan directly. Paid plans return the
// checkout URL.
func purchasePlan(ctx context.Context, api planAPI, planType string) (string, error) {
	planType = strings.ToLower(strings.TrimSpace(planType))
	if !slices.Contains([]string{models.PlanFree, models.PlanStandard, models.PlanPremium}, planType) {
		return "", fmt.Errorf("unknown plan type %q", planType)
	}
	if planType == models.PlanFree {
		return "", api.PurchasePlan(ctx, models.PurchasePlanRequest{PlanType: planType})
	}
	return api.CreateCheckoutSession(ctx, planType)
}

func printPlan(out io.Writer, plan *models.Plan) {
	fmt.Fprintf(out, "Plan:    %s (%s)\n", plan.Type, plan.Status)
	if plan.ExpiryDate != "" {
		fmt.Fprintf(out, "Expires: %s\n", plan.ExpiryDate)
	}
	for _, t := range []string{"basic", "san", "wildcard"} {
		u, _ := plan.Usage.For(t)
		if u.Limit == 0 {
			continue
		}
		fmt.Fprintf(out, "  %-9s %d/%d used, %d remaining\n", t, u.Used, u.Limit, u.Remaining)
	}
	if next, ok := order.NextPlan(plan.Type); ok {
		fmt.Fprintf(out, "Upgrade available: %s\n", next)
	}
}

func init() {
	plansCmd.AddCommand(plansShowCmd, plansPurchaseCmd, plansVerifyCmd)
	rootCmd.AddCommand(plansCmd)
}
