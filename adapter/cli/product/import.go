package product

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/billingsim/adapter/cli"
	"github.com/felixgeelhaar/billingsim/internal/billing/infrastructure/catalog"
)

var importCmd = &cobra.Command{
	Use:   "import <catalog.yaml>",
	Short: "Import products from a YAML catalog",
	Long: `Import products from a YAML catalog file. Existing products with the
same SKU and type are replaced.

Example catalog:
  products:
    - sku: gold_monthly
      type: subscription
      price: "$4.99"
      price_amount_micros: 4990000
      subscription_period: P1M`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Store == nil {
			return cli.ErrNotInitialized
		}

		n, err := catalog.Import(cmd.Context(), app.Store, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d products from %s\n", n, args[0])
		return nil
	},
}
