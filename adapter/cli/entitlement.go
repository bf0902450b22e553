package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

var entitlementCmd = &cobra.Command{
	Use:   "entitlement <sku>...",
	Short: "Show whether purchases entitle the given SKUs",
	Long: `Evaluate every stored purchase against the given SKUs and report
which one, if any, currently grants access.

Examples:
  billingsim entitlement gold_monthly
  billingsim entitlement gold_monthly gold_yearly`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Manager == nil {
			return ErrNotInitialized
		}

		evaluations, winner, res := app.Manager.EvaluateEntitlement(cmd.Context(), args)
		if err := ResultError(res); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, e := range evaluations {
			if e.Decision == domain.DecisionSKUMismatch {
				continue
			}
			line := fmt.Sprintf("%s %s: %s", strings.Join(e.Purchase.SKUs, ","), e.Purchase.PurchaseToken, e.Decision)
			if !e.ExpiresAt.IsZero() {
				line += fmt.Sprintf(" (expires %s)", e.ExpiresAt.UTC().Format("2006-01-02"))
			}
			fmt.Fprintln(out, line)
		}

		if winner == nil {
			fmt.Fprintln(out, "Not entitled.")
			return nil
		}
		fmt.Fprintf(out, "Entitled by %s\n", winner.PurchaseToken)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(entitlementCmd)
}
