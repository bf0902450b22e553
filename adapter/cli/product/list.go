package product

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/billingsim/adapter/cli"
	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

var (
	listType string
	listSKUs []string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List products",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Store == nil {
			return cli.ErrNotInitialized
		}

		productType, err := cli.ParseOptionalType(listType)
		if err != nil {
			return err
		}

		filter := domain.ProductFilter{Type: productType}
		if len(listSKUs) > 0 {
			filter.SKUs = listSKUs
		}

		products, err := app.Store.ListProducts(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("failed to list products: %w", err)
		}
		cli.PrintProducts(cmd.OutOrStdout(), products)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "filter by product type (inapp, subs)")
	listCmd.Flags().StringSliceVar(&listSKUs, "sku", nil, "filter by SKU (repeatable)")
}
