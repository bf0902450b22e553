package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	billingApp "github.com/felixgeelhaar/billingsim/internal/billing/application"
	storefrontApp "github.com/felixgeelhaar/billingsim/internal/storefront/application"
)

var (
	buyType    string
	buyTimeout time.Duration
	buyMode    string
	buyPayload []string
)

var buyCmd = &cobra.Command{
	Use:   "buy <sku>",
	Short: "Run a purchase flow for a product",
	Long: `Launch a purchase flow through the simulated client and wait for its outcome.

Modes:
  approve   the storefront buys the product immediately
  cancel    the storefront answers as if the user backed out
  prompt    the storefront shows the request and asks on stdin

Examples:
  billingsim buy premium_upgrade --type inapp
  billingsim buy gold_monthly --type subs --mode prompt
  billingsim buy gold_monthly --payload campaign=spring`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Manager == nil || app.Storefront == nil {
			return ErrNotInitialized
		}

		productType, err := ParseOptionalType(buyType)
		if err != nil {
			return err
		}
		payload, err := parsePayload(buyPayload)
		if err != nil {
			return err
		}

		prompt := false
		switch buyMode {
		case "":
		case "prompt":
			prompt = true
			app.Storefront.SetMode(storefrontApp.ModeManual)
		default:
			mode, err := storefrontApp.ParseMode(buyMode)
			if err != nil {
				return err
			}
			app.Storefront.SetMode(mode)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), buyTimeout)
		defer cancel()

		updates, stop := app.Manager.Updates()
		defer stop()

		res := app.Manager.InitiatePurchase(ctx, billingApp.FlowParams{
			SKU:              args[0],
			Type:             productType,
			DeveloperPayload: payload,
		})
		if err := ResultError(res); err != nil {
			return err
		}

		if prompt {
			if err := promptDecision(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), app.Storefront); err != nil {
				return err
			}
		}

		update, err := waitForFlow(ctx, updates)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Purchase flow finished: %s\n", update.Result.String())
		for _, p := range update.Purchases {
			PrintPurchase(out, p)
		}
		if update.Subscribed && update.Entitlement != nil {
			fmt.Fprintf(out, "Subscribed via %s\n", strings.Join(update.Entitlement.SKUs, ","))
		}
		return ResultError(update.Result)
	},
}

// waitForFlow returns the first purchase-flow update, skipping restores.
func waitForFlow(ctx context.Context, updates <-chan billingApp.Update) (billingApp.Update, error) {
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return billingApp.Update{}, errors.New("billing manager shut down")
			}
			if u.Kind == billingApp.UpdatePurchaseFlow {
				return u, nil
			}
		case <-ctx.Done():
			return billingApp.Update{}, fmt.Errorf("waiting for purchase flow: %w", ctx.Err())
		}
	}
}

// promptDecision shows the parked request and approves or cancels it
// according to the operator's answer.
func promptDecision(ctx context.Context, in io.Reader, out io.Writer, sf *storefrontApp.Storefront) error {
	pending, err := sf.WaitPending(ctx)
	if err != nil {
		return fmt.Errorf("waiting for storefront request: %w", err)
	}
	req := pending[0].Request

	fmt.Fprintln(out, "Storefront purchase request:")
	for _, p := range req.Products {
		fmt.Fprintf(out, "  %s [%s] %s\n", p.SKU, p.Type, p.Price)
	}
	fmt.Fprint(out, "Approve purchase? [y/N]: ")

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return sf.Approve(ctx, req.ID)
	default:
		return sf.Cancel(ctx, req.ID)
	}
}

func parsePayload(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	payload := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid payload %q, use key=value", pair)
		}
		payload[strings.TrimSpace(key)] = value
	}
	return payload, nil
}

func init() {
	buyCmd.Flags().StringVarP(&buyType, "type", "t", "", "product type (inapp, subs)")
	buyCmd.Flags().DurationVar(&buyTimeout, "timeout", 30*time.Second, "how long to wait for the flow outcome")
	buyCmd.Flags().StringVar(&buyMode, "mode", "", "storefront mode (approve, cancel, prompt)")
	buyCmd.Flags().StringArrayVar(&buyPayload, "payload", nil, "developer payload entry key=value (repeatable)")
	rootCmd.AddCommand(buyCmd)
}

