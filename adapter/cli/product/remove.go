package product

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/billingsim/adapter/cli"
)

var removeCmd = &cobra.Command{
	Use:     "remove <sku>",
	Short:   "Remove every product with the SKU",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Store == nil {
			return cli.ErrNotInitialized
		}
		if err := app.Store.RemoveProduct(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to remove product: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Product removed: %s\n", args[0])
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all products",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Store == nil {
			return cli.ErrNotInitialized
		}
		if err := app.Store.ClearProducts(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear products: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Catalog cleared.")
		return nil
	},
}
