package cli

import (
	"errors"

	billingApp "github.com/felixgeelhaar/billingsim/internal/billing/application"
	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
	storefrontApp "github.com/felixgeelhaar/billingsim/internal/storefront/application"
	"github.com/felixgeelhaar/billingsim/pkg/observability"
)

// ErrNotInitialized is returned by commands run without a wired application.
var ErrNotInitialized = errors.New("application not initialized - record store required")

// App holds the CLI application dependencies.
type App struct {
	// Store is used for catalog and record administration.
	Store domain.Store

	// Manager drives the simulated client for purchases and queries.
	Manager *billingApp.Manager

	// Storefront answers purchase flows launched by the client.
	Storefront *storefrontApp.Storefront

	// Health runs component health checks. Optional.
	Health *observability.HealthRegistry
}

// NewApp creates a new CLI application.
func NewApp(store domain.Store, manager *billingApp.Manager, storefront *storefrontApp.Storefront) *App {
	return &App{
		Store:      store,
		Manager:    manager,
		Storefront: storefront,
	}
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
