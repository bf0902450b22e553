package product

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/billingsim/adapter/cli"
	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

var (
	addType        string
	addPrice       string
	addMicros      int64
	addCurrency    string
	addTitle       string
	addDescription string
	addPeriod      string
	addTrial       string
)

var addCmd = &cobra.Command{
	Use:   "add <sku>",
	Short: "Add or replace a product",
	Long: `Add a product to the catalog. A product with the same SKU and type is replaced.

Examples:
  billingsim products add premium_upgrade --type inapp --price '$1.99' --micros 1990000
  billingsim products add gold_monthly --type subs --price '$4.99' --period P1M --trial P1W`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Store == nil {
			return cli.ErrNotInitialized
		}
		if addType == "" {
			return errors.New("type is required")
		}

		productType, err := domain.ParseProductType(addType)
		if err != nil {
			return err
		}

		p := domain.Product{
			SKU:                args[0],
			Type:               productType,
			Price:              addPrice,
			PriceAmountMicros:  addMicros,
			CurrencyCode:       addCurrency,
			Title:              addTitle,
			Description:        addDescription,
			SubscriptionPeriod: addPeriod,
			FreeTrialPeriod:    addTrial,
		}
		if p.Title == "" {
			p.Title = p.SKU
		}
		for _, period := range []string{p.SubscriptionPeriod, p.FreeTrialPeriod} {
			if period == "" {
				continue
			}
			if _, err := domain.ParsePeriod(period); err != nil {
				return err
			}
		}

		if err := app.Store.PutProduct(cmd.Context(), p); err != nil {
			return fmt.Errorf("failed to add product: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Product saved: %s [%s]\n", p.SKU, p.Type)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVarP(&addType, "type", "t", "", "product type (inapp, subs)")
	addCmd.Flags().StringVar(&addPrice, "price", "", "formatted price, e.g. $4.99")
	addCmd.Flags().Int64Var(&addMicros, "micros", 0, "price in micro-units")
	addCmd.Flags().StringVar(&addCurrency, "currency", "USD", "ISO 4217 currency code")
	addCmd.Flags().StringVar(&addTitle, "title", "", "product title (defaults to the SKU)")
	addCmd.Flags().StringVar(&addDescription, "description", "", "product description")
	addCmd.Flags().StringVar(&addPeriod, "period", "", "subscription period, e.g. P1M")
	addCmd.Flags().StringVar(&addTrial, "trial", "", "free trial period, e.g. P1W")
}
