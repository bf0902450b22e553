package purchase

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/billingsim/adapter/cli"
)

var consumeCmd = &cobra.Command{
	Use:   "consume <purchase-token>",
	Short: "Consume a purchase so it can be bought again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Manager == nil {
			return cli.ErrNotInitialized
		}
		if err := cli.ResultError(app.Manager.Consume(cmd.Context(), args[0])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purchase consumed: %s\n", args[0])
		return nil
	},
}

var ackCmd = &cobra.Command{
	Use:     "ack <purchase-token>",
	Short:   "Acknowledge a purchase",
	Aliases: []string{"acknowledge"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Manager == nil {
			return cli.ErrNotInitialized
		}
		if err := cli.ResultError(app.Manager.Acknowledge(cmd.Context(), args[0])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purchase acknowledged: %s\n", args[0])
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all purchases",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Store == nil {
			return cli.ErrNotInitialized
		}
		if err := app.Store.ClearPurchases(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear purchases: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Purchases cleared.")
		return nil
	},
}
