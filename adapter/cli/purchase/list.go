package purchase

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/billingsim/adapter/cli"
	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

var (
	listType    string
	historyType string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List owned purchases",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Manager == nil {
			return cli.ErrNotInitialized
		}
		purchases, err := queryByType(cmd.Context(), listType, app.Manager.QueryPurchases)
		if err != nil {
			return err
		}
		cli.PrintPurchases(cmd.OutOrStdout(), purchases)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the purchase history",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Manager == nil {
			return cli.ErrNotInitialized
		}
		purchases, err := queryByType(cmd.Context(), historyType, app.Manager.QueryPurchaseHistory)
		if err != nil {
			return err
		}
		cli.PrintPurchases(cmd.OutOrStdout(), purchases)
		return nil
	},
}

// queryByType runs query for the given type, or for every type when value is empty.
func queryByType(
	ctx context.Context,
	value string,
	query func(context.Context, domain.ProductType) ([]domain.Purchase, domain.Result),
) ([]domain.Purchase, error) {
	productType, err := cli.ParseOptionalType(value)
	if err != nil {
		return nil, err
	}

	types := []domain.ProductType{domain.ProductTypeOneTime, domain.ProductTypeSubscription}
	if productType != "" {
		types = []domain.ProductType{productType}
	}

	var all []domain.Purchase
	for _, t := range types {
		purchases, res := query(ctx, t)
		if err := cli.ResultError(res); err != nil {
			return nil, err
		}
		all = append(all, purchases...)
	}
	return all, nil
}

func init() {
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "filter by product type (inapp, subs)")
	historyCmd.Flags().StringVarP(&historyType, "type", "t", "", "filter by product type (inapp, subs)")
}
