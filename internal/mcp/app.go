package mcp

import (
	"github.com/felixgeelhaar/billingsim/adapter/cli"
	"github.com/felixgeelhaar/billingsim/internal/app"
)

// NewCLIApp creates a CLI application instance backed by the provided container.
func NewCLIApp(container *app.Container) *cli.App {
	cliApp := cli.NewApp(container.Store, container.Manager, container.Storefront)
	cliApp.Health = container.Health
	return cliApp
}
