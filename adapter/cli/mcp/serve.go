package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/billingsim/internal/app"
	mcpinternal "github.com/felixgeelhaar/billingsim/internal/mcp"
	"github.com/felixgeelhaar/billingsim/pkg/config"
	"github.com/felixgeelhaar/billingsim/pkg/observability"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start an MCP server over HTTP exposing the billing and storefront tools.

The server owns its own billing client: it connects and restores purchases
before accepting requests. Set MCP_AUTH_TOKEN to require a bearer token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.MCPAddr = serveAddr
		}

		logger := observability.NewLogger(observability.LogConfig{
			Level:       cfg.SlogLevel(),
			Format:      observability.ParseLogFormat(cfg.LogFormat),
			Output:      cmd.ErrOrStderr(),
			ServiceName: "billingsim-mcp",
		})

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		container.Manager.Start(ctx)

		cliApp := mcpinternal.NewCLIApp(container)
		err = mcpinternal.Serve(ctx, cfg, cliApp, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides MCP_ADDR)")
}
