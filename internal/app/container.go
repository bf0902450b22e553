package app

import (
	"context"
	"fmt"
	"log/slog"

	billingApp "github.com/felixgeelhaar/billingsim/internal/billing/application"
	"github.com/felixgeelhaar/billingsim/internal/billing/infrastructure/catalog"
	"github.com/felixgeelhaar/billingsim/internal/billing/infrastructure/persistence"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/flowbus"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore"
	_ "github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore/redis"    // Register Redis driver
	_ "github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore/sqlite"   // Register SQLite driver
	storefrontApp "github.com/felixgeelhaar/billingsim/internal/storefront/application"
	"github.com/felixgeelhaar/billingsim/pkg/config"
	"github.com/felixgeelhaar/billingsim/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Storage
	KV    kvstore.Store
	Store *persistence.RecordStore

	// Purchase flow channel
	Bus flowbus.Bus

	// Workers
	Runner *billingApp.PoolRunner

	// Simulated billing
	Storefront *storefrontApp.Storefront
	Client     *billingApp.Client
	Manager    *billingApp.Manager

	// Health checks
	Health *observability.HealthRegistry
}

// NewContainer creates a new dependency container.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := storefrontApp.ParseMode(cfg.StorefrontMode)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	kv, err := kvstore.Open(ctx, kvstore.Config{
		URL:       cfg.StoreURL,
		Namespace: cfg.StoreNamespace,
		Breaker: kvstore.BreakerConfig{
			Enabled:     cfg.BreakerEnabled,
			MaxFailures: breakerFailures(cfg.BreakerFailures),
			Timeout:     cfg.BreakerTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	c.KV = kv
	c.Store = persistence.NewRecordStore(kv, logger)

	if cfg.CatalogPath != "" {
		n, err := catalog.Import(ctx, c.Store, cfg.CatalogPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to import catalog: %w", err)
		}
		logger.Info("catalog imported", "path", cfg.CatalogPath, "products", n)
	}

	bus, err := flowbus.New(flowbus.Config{
		Kind:        flowbus.Kind(cfg.ChannelKind),
		RabbitMQURL: cfg.RabbitMQURL,
		NATSURL:     cfg.NATSURL,
		Logger:      logger,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create flow channel: %w", err)
	}
	c.Bus = bus
	logger.Info("flow channel ready", "kind", cfg.ChannelKind)

	c.Runner = billingApp.NewPoolRunner(cfg.RunnerWorkers, logger)

	c.Storefront = storefrontApp.New(bus, c.Store, storefrontApp.Config{
		Mode:        mode,
		PackageName: cfg.PackageName,
		Logger:      logger,
	})

	c.Client = billingApp.NewClient(billingApp.ClientConfig{
		Store:  c.Store,
		Bus:    bus,
		UI:     c.Storefront,
		Runner: c.Runner,
		Logger: logger,
	})

	c.Manager = billingApp.NewManager(c.Client, billingApp.ManagerConfig{
		ValidSKUs:          cfg.ValidSKUs,
		RestoreMaxAttempts: cfg.RestoreMaxAttempts,
		Logger:             logger,
	})

	c.Health = newHealthRegistry(c)

	return c, nil
}

// Close releases all resources.
func (c *Container) Close() {
	if c.Manager != nil {
		c.Manager.Destroy()
	}
	if c.Runner != nil {
		c.Runner.Close()
	}
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			c.Logger.Error("failed to close flow channel", "error", err)
		}
	}
	if c.KV != nil {
		if err := c.KV.Close(); err != nil {
			c.Logger.Error("failed to close record store", "error", err)
		}
	}
}

func breakerFailures(n int) uint32 {
	if n <= 0 {
		return 0
	}
	return uint32(n)
}
