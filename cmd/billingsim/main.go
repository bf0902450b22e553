package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/billingsim/adapter/cli"
	"github.com/felixgeelhaar/billingsim/adapter/cli/mcp"
	"github.com/felixgeelhaar/billingsim/adapter/cli/product"
	"github.com/felixgeelhaar/billingsim/adapter/cli/purchase"
	"github.com/felixgeelhaar/billingsim/internal/app"
	"github.com/felixgeelhaar/billingsim/pkg/config"
	"github.com/felixgeelhaar/billingsim/pkg/observability"
)

func main() {
	// Setup logger
	logger := observability.NewLogger(observability.DefaultLogConfig())

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logCfg := observability.DefaultLogConfig()
	logCfg.Level = cfg.SlogLevel()
	logCfg.Format = observability.ParseLogFormat(cfg.LogFormat)
	logCfg.ServiceVersion = cli.Version
	logger = observability.NewLogger(logCfg)
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	// Register commands
	cli.AddCommand(product.Cmd)
	cli.AddCommand(purchase.Cmd)
	cli.AddCommand(mcp.Cmd)

	// The MCP server builds its own container.
	if len(os.Args) > 1 && os.Args[1] == mcp.Cmd.Name() {
		cli.Execute(ctx)
		return
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}

	cliApp := cli.NewApp(container.Store, container.Manager, container.Storefront)
	cliApp.Health = container.Health
	cli.SetApp(cliApp)

	code := 0
	func() {
		defer container.Close()
		if err := cli.Run(ctx); err != nil {
			code = 1
		}
	}()
	os.Exit(code)
}
