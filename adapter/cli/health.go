package cli

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/billingsim/pkg/observability"
	"github.com/spf13/cobra"
)

var healthConnect bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the record store, billing client and storefront",
	Long: `Run the component health checks and print one line per component.

The billing client connects lazily, so it reports degraded until a command
has used it. Pass --connect to connect it first. The command fails only when
a component is unhealthy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Health == nil {
			return ErrNotInitialized
		}
		ctx := cmd.Context()

		if healthConnect && app.Manager != nil {
			app.Manager.Start(ctx)
		}

		health := app.Health.GetOverallHealth(ctx)
		out := cmd.OutOrStdout()
		for _, name := range app.Health.Names() {
			check := health.Checks[name]
			fmt.Fprintf(out, "%-16s %-10s %s\n", name, check.Status, check.Message)
		}
		fmt.Fprintf(out, "overall: %s\n", health.Status)

		if health.Status == observability.HealthStatusUnhealthy {
			return errors.New("one or more components are unhealthy")
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().BoolVar(&healthConnect, "connect", false, "connect the billing client before checking")
	rootCmd.AddCommand(healthCmd)
}
