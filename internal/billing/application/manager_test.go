package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

func newManagerFixture(t *testing.T, validSKUs ...string) (*fixture, *Manager) {
	t.Helper()
	f := newFixture(t)
	m := NewManager(f.cl, ManagerConfig{ValidSKUs: validSKUs, RestoreMaxAttempts: 2})
	t.Cleanup(m.Destroy)
	return f, m
}

func nextUpdate(t *testing.T, updates <-chan Update) Update {
	t.Helper()
	select {
	case u := <-updates:
		return u
	case <-time.After(eventually):
		t.Fatal("no manager update")
		return Update{}
	}
}

func TestManager_StartRestoresEntitlement(t *testing.T) {
	ctx := context.Background()
	f, m := newManagerFixture(t, "gold")
	f.seedProducts(t, monthly("gold"))
	require.NoError(t, f.store.AddPurchase(ctx, purchaseOf(monthly("gold"), "gold-1", time.Now().Add(-24*time.Hour))))

	updates, cancel := m.Updates()
	defer cancel()

	m.Start(ctx)

	u := nextUpdate(t, updates)
	assert.Equal(t, UpdateRestore, u.Kind)
	assert.True(t, u.Result.OK())
	assert.True(t, u.Subscribed)
	require.NotNil(t, u.Entitlement)
	assert.Equal(t, "gold-1", u.Entitlement.PurchaseToken)
	assert.True(t, m.Subscribed())
	assert.True(t, f.cl.IsReady())
}

func TestManager_ExpiredSubscriptionIsNotEntitled(t *testing.T) {
	ctx := context.Background()
	f, m := newManagerFixture(t, "gold")
	f.seedProducts(t, monthly("gold"))
	require.NoError(t, f.store.AddPurchase(ctx, purchaseOf(monthly("gold"), "gold-1", time.Now().Add(-40*24*time.Hour))))

	updates, cancel := m.Updates()
	defer cancel()
	m.Start(ctx)

	u := nextUpdate(t, updates)
	assert.False(t, u.Subscribed)
	assert.Nil(t, m.Entitlement())
}

func TestManager_PurchaseFlowGrantsSubscription(t *testing.T) {
	ctx := context.Background()
	f, m := newManagerFixture(t, "gold")
	f.seedProducts(t, monthly("gold"))
	f.ui.respond = func(req domain.FlowRequest) *domain.FlowResult {
		p := purchaseOf(req.Products[0], "gold-new", time.Now())
		p.AutoRenewing = domain.Bool(true)
		return &domain.FlowResult{RequestID: req.ID, Code: domain.ResponseOK, Purchases: []domain.Purchase{p}}
	}

	updates, cancel := m.Updates()
	defer cancel()

	res := m.InitiatePurchase(ctx, FlowParams{SKU: "gold", Type: domain.ProductTypeSubscription})
	require.True(t, res.OK(), res.String())

	u := nextUpdate(t, updates)
	assert.Equal(t, UpdatePurchaseFlow, u.Kind)
	assert.True(t, u.Result.OK())
	require.Len(t, u.Purchases, 1)
	assert.Equal(t, "gold-new", u.Purchases[0].PurchaseToken)
	assert.True(t, u.Subscribed)
}

func TestManager_UserCancelSurfacesResult(t *testing.T) {
	ctx := context.Background()
	f, m := newManagerFixture(t, "gold")
	f.seedProducts(t, monthly("gold"))
	f.ui.respond = func(req domain.FlowRequest) *domain.FlowResult {
		return &domain.FlowResult{RequestID: req.ID, Code: domain.ResponseUserCanceled}
	}

	updates, cancel := m.Updates()
	defer cancel()

	require.True(t, m.InitiatePurchase(ctx, FlowParams{SKU: "gold"}).OK())
	u := nextUpdate(t, updates)
	assert.Equal(t, domain.ResponseUserCanceled, u.Result.Code)
	assert.False(t, u.Subscribed)
}

// countingStore counts purchase-partition reads, one per entitlement refresh.
type countingStore struct {
	domain.Store
	mu    sync.Mutex
	lists int
}

func (s *countingStore) ListPurchases(ctx context.Context, t domain.ProductType) ([]domain.Purchase, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	return s.Store.ListPurchases(ctx, t)
}

func (s *countingStore) Lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func TestManager_AlreadyOwnedRestoreIsCapped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedProducts(t, monthly("gold"))
	require.NoError(t, f.store.AddPurchase(ctx, purchaseOf(monthly("gold"), "gold-1", time.Now())))
	f.ui.respond = func(req domain.FlowRequest) *domain.FlowResult {
		return &domain.FlowResult{RequestID: req.ID, Code: domain.ResponseItemAlreadyOwned}
	}

	store := &countingStore{Store: f.store}
	cl := NewClient(ClientConfig{Store: store, Bus: f.bus, UI: f.ui, Channel: "capped"})
	m := NewManager(cl, ManagerConfig{ValidSKUs: []string{"gold"}, RestoreMaxAttempts: 2})
	defer m.Destroy()

	updates, cancel := m.Updates()
	defer cancel()

	for i := 0; i < 4; i++ {
		require.True(t, m.InitiatePurchase(ctx, FlowParams{SKU: "gold"}).OK())
		u := nextUpdate(t, updates)
		assert.Equal(t, domain.ResponseItemAlreadyOwned, u.Result.Code)
	}
	assert.Equal(t, 2, store.Lists(), "only RestoreMaxAttempts consecutive restores run")
	assert.True(t, m.Subscribed())

	// An explicit restore resets the budget.
	m.RestorePurchases(ctx)
	nextUpdate(t, updates)
	require.True(t, m.InitiatePurchase(ctx, FlowParams{SKU: "gold"}).OK())
	nextUpdate(t, updates)
	assert.Equal(t, 4, store.Lists())
}

func TestManager_SyncOperations(t *testing.T) {
	ctx := context.Background()
	f, m := newManagerFixture(t, "gold")
	f.seedProducts(t, monthly("gold"), lifetime("gem"))
	require.NoError(t, f.store.AddPurchase(ctx, purchaseOf(lifetime("gem"), "gem-1", time.Now())))

	products, res := m.QueryProducts(ctx, "", []string{"gold", "gem"})
	require.True(t, res.OK())
	assert.Len(t, products, 2)

	purchases, res := m.QueryPurchases(ctx, domain.ProductTypeOneTime)
	require.True(t, res.OK())
	assert.Len(t, purchases, 1)

	history, res := m.QueryPurchaseHistory(ctx, domain.ProductTypeSubscription)
	require.True(t, res.OK())
	assert.Empty(t, history)

	assert.True(t, m.Acknowledge(ctx, "gem-1").OK())
	assert.True(t, m.Consume(ctx, "gem-1").OK())
	assert.Equal(t, domain.ResponseItemNotOwned, m.Consume(ctx, "gem-1").Code)
}

func TestManager_EvaluateEntitlement(t *testing.T) {
	ctx := context.Background()
	f, m := newManagerFixture(t)
	f.seedProducts(t, monthly("gold"), lifetime("gem"))
	require.NoError(t, f.store.AddPurchase(ctx, purchaseOf(monthly("gold"), "gold-old", time.Now().Add(-60*24*time.Hour))))
	require.NoError(t, f.store.AddPurchase(ctx, purchaseOf(monthly("gold"), "gold-new", time.Now())))
	require.NoError(t, f.store.AddPurchase(ctx, purchaseOf(lifetime("gem"), "gem-1", time.Now())))

	evals, winner, res := m.EvaluateEntitlement(ctx, []string{"gold"})
	require.True(t, res.OK())
	require.Len(t, evals, 3)
	assert.Equal(t, domain.DecisionExpired, evals[0].Decision)
	assert.Equal(t, domain.DecisionActive, evals[1].Decision)
	assert.Equal(t, domain.DecisionSKUMismatch, evals[2].Decision)
	require.NotNil(t, winner)
	assert.Equal(t, "gold-new", winner.PurchaseToken)
}

func TestManager_CanceledContext(t *testing.T) {
	_, m := newManagerFixture(t, "gold")

	// Park the coordinator behind an attempt that never finishes.
	m.coordinator.mu.Lock()
	m.coordinator.connecting = true
	m.coordinator.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := m.Consume(ctx, "t")
	assert.Equal(t, domain.ResponseError, res.Code)
}

func TestManager_DestroyClosesUpdates(t *testing.T) {
	_, m := newManagerFixture(t)
	updates, cancel := m.Updates()
	defer cancel()

	m.Destroy()
	_, open := <-updates
	assert.False(t, open)
	assert.False(t, m.Client().IsReady())
}
