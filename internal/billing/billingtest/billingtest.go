// Package billingtest wires an in-memory billing simulator for adapter tests.
package billingtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	billingApp "github.com/felixgeelhaar/billingsim/internal/billing/application"
	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
	"github.com/felixgeelhaar/billingsim/internal/billing/infrastructure/persistence"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/flowbus"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore"
	storefrontApp "github.com/felixgeelhaar/billingsim/internal/storefront/application"
)

// Products seeded by New.
var (
	GoldMonthly = domain.Product{
		SKU:                "gold_monthly",
		Type:               domain.ProductTypeSubscription,
		Price:              "$4.99",
		PriceAmountMicros:  4_990_000,
		CurrencyCode:       "USD",
		Title:              "Gold monthly",
		SubscriptionPeriod: "P1M",
	}
	PremiumUpgrade = domain.Product{
		SKU:               "premium_upgrade",
		Type:              domain.ProductTypeOneTime,
		Price:             "$1.99",
		PriceAmountMicros: 1_990_000,
		CurrencyCode:      "USD",
		Title:             "Premium upgrade",
	}
)

// PackageName is the package name stamped on approved purchases.
const PackageName = "com.example.billingtest"

// Simulator is a fully wired in-memory simulator.
type Simulator struct {
	Store      *persistence.RecordStore
	Bus        *flowbus.InProcessBus
	Storefront *storefrontApp.Storefront
	Client     *billingApp.Client
	Manager    *billingApp.Manager
}

// New returns a simulator seeded with GoldMonthly and PremiumUpgrade whose
// manager treats GoldMonthly as entitling. It is torn down when the test ends.
func New(t testing.TB, mode storefrontApp.Mode) *Simulator {
	t.Helper()

	store := persistence.NewRecordStore(kvstore.NewMemoryStore(), nil)
	for _, p := range []domain.Product{GoldMonthly, PremiumUpgrade} {
		require.NoError(t, store.PutProduct(context.Background(), p))
	}

	bus := flowbus.NewInProcessBus(nil)
	sf := storefrontApp.New(bus, store, storefrontApp.Config{
		Mode:        mode,
		PackageName: PackageName,
	})
	client := billingApp.NewClient(billingApp.ClientConfig{
		Store: store,
		Bus:   bus,
		UI:    sf,
	})
	manager := billingApp.NewManager(client, billingApp.ManagerConfig{
		ValidSKUs: []string{GoldMonthly.SKU},
	})

	t.Cleanup(func() {
		manager.Destroy()
		_ = bus.Close()
	})

	return &Simulator{
		Store:      store,
		Bus:        bus,
		Storefront: sf,
		Client:     client,
		Manager:    manager,
	}
}

// Seed stores purchases directly, bypassing the purchase flow.
func (s *Simulator) Seed(t testing.TB, purchases ...domain.Purchase) {
	t.Helper()
	for _, p := range purchases {
		require.NoError(t, s.Store.AddPurchase(context.Background(), p))
	}
}

// Purchase builds a stored purchase of product made at purchaseTime.
func Purchase(product domain.Product, token string, purchaseTime int64) domain.Purchase {
	p := domain.Purchase{
		OrderID:       product.SKU + "..0",
		PackageName:   PackageName,
		SKUs:          []string{product.SKU},
		PurchaseTime:  purchaseTime,
		PurchaseToken: token,
		Signature:     domain.DebugSignature(product.SKU, product.Type),
	}
	if product.Type == domain.ProductTypeSubscription {
		p.AutoRenewing = domain.Bool(false)
	}
	return p
}
