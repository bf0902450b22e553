package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
	"github.com/felixgeelhaar/billingsim/internal/billing/infrastructure/persistence"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/flowbus"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore"
)

// fakeUI answers purchase requests by publishing whatever respond returns.
type fakeUI struct {
	bus     flowbus.Bus
	respond func(req domain.FlowRequest) *domain.FlowResult

	mu       sync.Mutex
	requests []domain.FlowRequest
}

func (u *fakeUI) RequestPurchase(ctx context.Context, req domain.FlowRequest) error {
	u.mu.Lock()
	u.requests = append(u.requests, req)
	u.mu.Unlock()

	if u.respond == nil {
		return nil
	}
	res := u.respond(req)
	if res == nil {
		return nil
	}
	data, err := domain.EncodeFlowResult(*res)
	if err != nil {
		return err
	}
	return u.bus.Publish(ctx, req.Channel, data)
}

func (u *fakeUI) Requests() []domain.FlowRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]domain.FlowRequest(nil), u.requests...)
}

// purchasesRecorder collects OnPurchasesUpdated calls.
type purchasesRecorder struct {
	mu    sync.Mutex
	calls []recordedUpdate
}

type recordedUpdate struct {
	result    domain.Result
	purchases []domain.Purchase
}

func (r *purchasesRecorder) OnPurchasesUpdated(result domain.Result, purchases []domain.Purchase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedUpdate{result, purchases})
}

func (r *purchasesRecorder) Calls() []recordedUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedUpdate(nil), r.calls...)
}

// setupRecorder collects StateListener calls.
type setupRecorder struct {
	mu           sync.Mutex
	results      []domain.Result
	disconnected int
}

func (r *setupRecorder) OnSetupFinished(result domain.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *setupRecorder) OnServiceDisconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected++
}

func (r *setupRecorder) Last() domain.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[len(r.results)-1]
}

type fixture struct {
	store *persistence.RecordStore
	bus   *flowbus.InProcessBus
	ui    *fakeUI
	rec   *purchasesRecorder
	cl    *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	bus := flowbus.NewInProcessBus(nil)
	t.Cleanup(func() { _ = bus.Close() })

	f := &fixture{
		store: persistence.NewRecordStore(kvstore.NewMemoryStore(), nil),
		bus:   bus,
		ui:    &fakeUI{bus: bus},
		rec:   &purchasesRecorder{},
	}
	f.cl = NewClient(ClientConfig{
		Store:             f.store,
		Bus:               bus,
		UI:                f.ui,
		PurchasesListener: f.rec,
	})
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	l := &setupRecorder{}
	f.cl.StartConnection(l)
	require.True(t, l.Last().OK())
}

func (f *fixture) seedProducts(t *testing.T, products ...domain.Product) {
	t.Helper()
	for _, p := range products {
		require.NoError(t, f.store.PutProduct(context.Background(), p))
	}
}

func monthly(sku string) domain.Product {
	return domain.Product{
		SKU:                sku,
		Type:               domain.ProductTypeSubscription,
		Price:              "$4.99",
		PriceAmountMicros:  4990000,
		CurrencyCode:       "USD",
		Title:              sku,
		SubscriptionPeriod: "P1M",
	}
}

func lifetime(sku string) domain.Product {
	return domain.Product{
		SKU:               sku,
		Type:              domain.ProductTypeOneTime,
		Price:             "$9.99",
		PriceAmountMicros: 9990000,
		CurrencyCode:      "USD",
		Title:             sku,
	}
}

func purchaseOf(p domain.Product, token string, at time.Time) domain.Purchase {
	pu := domain.Purchase{
		SKUs:          []string{p.SKU},
		PurchaseTime:  at.UnixMilli(),
		PurchaseToken: token,
		Signature:     domain.DebugSignature(p.SKU, p.Type),
	}
	if p.Type == domain.ProductTypeSubscription {
		pu.AutoRenewing = domain.Bool(false)
	}
	return pu
}

const eventually = time.Second
const tick = 5 * time.Millisecond
