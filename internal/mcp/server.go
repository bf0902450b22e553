package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"

	"github.com/felixgeelhaar/billingsim/adapter/cli"
	mcplocal "github.com/felixgeelhaar/billingsim/adapter/mcp"
	"github.com/felixgeelhaar/billingsim/pkg/config"
	"github.com/felixgeelhaar/billingsim/pkg/observability"
)

const (
	serverName    = "billingsim-mcp"
	serverVersion = "1.0.0"
)

// Serve starts the simulator's MCP server and blocks until the context is
// canceled. Operators drive the manual storefront through it.
func Serve(ctx context.Context, cfg *config.Config, cliApp *cli.App, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cliApp == nil {
		return errors.New("CLI app is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv, err := newServer(cliApp, logger)
	if err != nil {
		return err
	}

	reportStartupHealth(ctx, cliApp.Health, logger)

	attrs := []any{"addr", cfg.MCPAddr, "auth", cfg.MCPAuthToken != ""}
	if cliApp.Storefront != nil {
		attrs = append(attrs, "storefront_mode", string(cliApp.Storefront.Mode()))
	}
	logger.Info("mcp server listening", attrs...)

	stack := middlewareStack(cfg.MCPAuthToken, logger)
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil, mcpgo.WithMiddleware(stack...))
}

// newServer registers the billing and storefront tools. Resources and prompts
// are optional and only logged when they fail.
func newServer(cliApp *cli.App, logger *slog.Logger) (*mcpgo.Server, error) {
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    serverName,
		Version: serverVersion,
		Capabilities: mcpgo.Capabilities{
			Tools:     true,
			Resources: true,
			Prompts:   true,
		},
	})

	deps := mcplocal.ToolDependencies{App: cliApp}
	if err := mcplocal.RegisterCLITools(srv, deps); err != nil {
		return nil, fmt.Errorf("failed to register billing tools: %w", err)
	}
	if err := mcplocal.RegisterResources(srv, deps); err != nil {
		logger.Warn("failed to register MCP resources", "error", err)
	}
	if err := mcplocal.RegisterPrompts(srv, deps); err != nil {
		logger.Warn("failed to register MCP prompts", "error", err)
	}
	return srv, nil
}

// reportStartupHealth logs every component that is not healthy when the
// server starts.
func reportStartupHealth(ctx context.Context, health *observability.HealthRegistry, logger *slog.Logger) {
	if health == nil {
		return
	}
	overall := health.GetOverallHealth(ctx)
	for _, name := range health.Names() {
		check := overall.Checks[name]
		if check.Status == observability.HealthStatusHealthy {
			continue
		}
		logger.Warn("component not healthy at startup",
			"component", name,
			"status", string(check.Status),
			"message", check.Message,
		)
	}
}

// middlewareStack puts bearer-token auth in front of the default stack when
// token is set.
func middlewareStack(token string, logger *slog.Logger) []middleware.Middleware {
	mwLogger := middlewareLogger{logger: logger}
	stack := middleware.DefaultStack(mwLogger)
	if token == "" {
		logger.Warn("MCP auth token not set; storefront tools are open to any client")
		return stack
	}

	authenticator := middleware.BearerTokenAuthenticator(middleware.StaticTokens(map[string]*middleware.Identity{
		token: {ID: "operator", Name: "billingsim operator"},
	}))
	return append([]middleware.Middleware{middleware.Auth(authenticator, middleware.WithAuthLogger(mwLogger))}, stack...)
}

// middlewareLogger forwards mcp-go middleware logs to slog.
type middlewareLogger struct {
	logger *slog.Logger
}

func (l middlewareLogger) Debug(msg string, fields ...middleware.Field) {
	l.log(slog.LevelDebug, msg, fields)
}

func (l middlewareLogger) Info(msg string, fields ...middleware.Field) {
	l.log(slog.LevelInfo, msg, fields)
}

func (l middlewareLogger) Warn(msg string, fields ...middleware.Field) {
	l.log(slog.LevelWarn, msg, fields)
}

func (l middlewareLogger) Error(msg string, fields ...middleware.Field) {
	l.log(slog.LevelError, msg, fields)
}

func (l middlewareLogger) log(level slog.Level, msg string, fields []middleware.Field) {
	l.logger.LogAttrs(context.Background(), level, msg, fieldAttrs(fields)...)
}

func fieldAttrs(fields []middleware.Field) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(fields))
	for _, field := range fields {
		attrs = append(attrs, slog.Any(field.Key, field.Value))
	}
	return attrs
}
