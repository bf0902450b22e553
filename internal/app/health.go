package app

import (
	"context"
	"fmt"

	billingApp "github.com/felixgeelhaar/billingsim/internal/billing/application"
	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
	"github.com/felixgeelhaar/billingsim/internal/billing/infrastructure/persistence"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore"
	storefrontApp "github.com/felixgeelhaar/billingsim/internal/storefront/application"
	"github.com/felixgeelhaar/billingsim/pkg/observability"
)

func newHealthRegistry(c *Container) *observability.HealthRegistry {
	r := observability.NewHealthRegistry()
	r.Register("store", storeHealthChecker(c.KV))
	r.Register("billing_client", clientHealthChecker(c.Client))
	r.Register("storefront", storefrontHealthChecker(c.Storefront))
	return r
}

func storeHealthChecker(kv kvstore.Store) observability.HealthChecker {
	return observability.PingHealthChecker("store", observability.HealthStatusUnhealthy, func(ctx context.Context) error {
		_, err := kvstore.GetOrDefault(ctx, kv, persistence.ProductsKey, "")
		return err
	})
}

// clientHealthChecker reports the connection state. A client that has not
// connected yet is degraded; a closed one cannot recover.
func clientHealthChecker(client *billingApp.Client) observability.HealthChecker {
	return func(context.Context) observability.HealthCheckResult {
		state := client.State()
		result := observability.HealthCheckResult{
			Status:  observability.HealthStatusDegraded,
			Message: "billing client " + state.String(),
			Details: map[string]any{"state": state.String(), "channel": client.Channel()},
		}
		switch state {
		case domain.StateConnected:
			result.Status = observability.HealthStatusHealthy
		case domain.StateClosed:
			result.Status = observability.HealthStatusUnhealthy
		}
		return result
	}
}

func storefrontHealthChecker(sf *storefrontApp.Storefront) observability.HealthChecker {
	return func(context.Context) observability.HealthCheckResult {
		pending := len(sf.Pending())
		return observability.HealthCheckResult{
			Status:  observability.HealthStatusHealthy,
			Message: fmt.Sprintf("storefront mode %s, %d pending", sf.Mode(), pending),
			Details: map[string]any{"mode": string(sf.Mode()), "pending": pending},
		}
	}
}
