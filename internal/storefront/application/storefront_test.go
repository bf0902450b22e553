package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
	"github.com/felixgeelhaar/billingsim/internal/billing/infrastructure/persistence"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/flowbus"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore"
)

const channel = "test.purchase_flow"

type resultCollector struct {
	mu      sync.Mutex
	results []domain.FlowResult
}

func (c *resultCollector) HandleMessage(_ context.Context, msg flowbus.Message) {
	res, err := domain.DecodeFlowResult(msg.Payload)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
}

func (c *resultCollector) all() []domain.FlowResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.FlowResult(nil), c.results...)
}

func (c *resultCollector) waitFor(t *testing.T, n int) []domain.FlowResult {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.all()) >= n }, time.Second, 5*time.Millisecond)
	return c.all()
}

type fixture struct {
	store     *persistence.RecordStore
	sf        *Storefront
	collector *resultCollector
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, mode Mode) *fixture {
	t.Helper()

	bus := flowbus.NewInProcessBus(nil)
	t.Cleanup(func() { _ = bus.Close() })

	collector := &resultCollector{}
	require.NoError(t, bus.Subscribe(channel, collector))

	store := persistence.NewRecordStore(kvstore.NewMemoryStore(), nil)
	sf := New(bus, store, Config{
		Mode:        mode,
		PackageName: "com.example.app",
		Now:         func() time.Time { return fixedNow },
	})
	return &fixture{store: store, sf: sf, collector: collector}
}

func request(id string, products ...domain.Product) domain.FlowRequest {
	return domain.FlowRequest{
		ID:               id,
		Channel:          channel,
		Products:         products,
		DeveloperPayload: map[string]string{"campaign": "spring"},
		RequestedAt:      fixedNow,
	}
}

var (
	gold = domain.Product{
		SKU:                "gold_monthly",
		Type:               domain.ProductTypeSubscription,
		SubscriptionPeriod: "P1M",
	}
	gems = domain.Product{
		SKU:  "gems_100",
		Type: domain.ProductTypeOneTime,
	}
)

func TestParseMode(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Mode
	}{
		{"", ModeApprove},
		{"approve", ModeApprove},
		{"cancel", ModeCancel},
		{"manual", ModeManual},
	} {
		got, err := ParseMode(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseMode("prompt-me")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestStorefront_ApproveBuildsPurchase(t *testing.T) {
	f := newFixture(t, ModeApprove)

	require.NoError(t, f.sf.RequestPurchase(context.Background(), request("req-1", gold)))

	res := f.collector.waitFor(t, 1)[0]
	assert.Equal(t, domain.ResponseOK, res.Code)
	assert.Equal(t, "req-1", res.RequestID)
	require.Len(t, res.Purchases, 1)

	p := res.Purchases[0]
	assert.Equal(t, "gold_monthly..0", p.OrderID)
	assert.Equal(t, "com.example.app", p.PackageName)
	assert.Equal(t, []string{"gold_monthly"}, p.SKUs)
	assert.Equal(t, fixedNow.UnixMilli(), p.PurchaseTime)
	assert.NotEmpty(t, p.PurchaseToken)
	assert.Equal(t, domain.ProductTypeSubscription, p.Type())
	assert.True(t, p.IsAutoRenewing())
	assert.False(t, p.Acknowledged)
	assert.Equal(t, map[string]string{"campaign": "spring"}, p.DeveloperPayload)
}

func TestStorefront_OneTimePurchaseIsNotAutoRenewing(t *testing.T) {
	f := newFixture(t, ModeApprove)

	require.NoError(t, f.sf.RequestPurchase(context.Background(), request("req-1", gems)))

	res := f.collector.waitFor(t, 1)[0]
	require.Len(t, res.Purchases, 1)
	assert.Nil(t, res.Purchases[0].AutoRenewing)
	assert.Equal(t, domain.ProductTypeOneTime, res.Purchases[0].Type())
}

func TestStorefront_EmptyRequestIsUnavailable(t *testing.T) {
	f := newFixture(t, ModeApprove)

	require.NoError(t, f.sf.RequestPurchase(context.Background(), request("req-1")))

	res := f.collector.waitFor(t, 1)[0]
	assert.Equal(t, domain.ResponseItemUnavailable, res.Code)
	assert.Empty(t, res.Purchases)
}

func TestStorefront_OwnedOneTimeProduct(t *testing.T) {
	f := newFixture(t, ModeApprove)
	ctx := context.Background()

	require.NoError(t, f.store.AddPurchase(ctx, domain.Purchase{
		SKUs:          []string{"gems_100"},
		PurchaseToken: "tok-owned",
		Signature:     domain.DebugSignature("gems_100", domain.ProductTypeOneTime),
	}))

	require.NoError(t, f.sf.RequestPurchase(ctx, request("req-1", gems)))

	res := f.collector.waitFor(t, 1)[0]
	assert.Equal(t, domain.ResponseItemAlreadyOwned, res.Code)
	assert.Contains(t, res.DebugMessage, "gems_100")
}

func TestStorefront_CancelMode(t *testing.T) {
	f := newFixture(t, ModeCancel)

	require.NoError(t, f.sf.RequestPurchase(context.Background(), request("req-1", gold)))

	res := f.collector.waitFor(t, 1)[0]
	assert.Equal(t, domain.ResponseUserCanceled, res.Code)
	assert.Equal(t, "req-1", res.RequestID)
}

func TestStorefront_ManualModeParksRequests(t *testing.T) {
	f := newFixture(t, ModeManual)
	ctx := context.Background()

	require.NoError(t, f.sf.RequestPurchase(ctx, request("req-1", gold)))
	require.NoError(t, f.sf.RequestPurchase(ctx, request("req-2", gems)))
	require.NoError(t, f.sf.RequestPurchase(ctx, request("req-3", gems)))

	pending := f.sf.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "req-1", pending[0].Request.ID)
	assert.Equal(t, "req-2", pending[1].Request.ID)
	assert.Equal(t, fixedNow, pending[0].ReceivedAt)
	assert.Empty(t, f.collector.all())

	require.NoError(t, f.sf.Cancel(ctx, "req-2"))
	require.NoError(t, f.sf.Approve(ctx, "req-1"))
	require.NoError(t, f.sf.Fail(ctx, "req-3", domain.ResponseError, "card declined"))

	results := f.collector.waitFor(t, 3)
	assert.Equal(t, domain.ResponseUserCanceled, results[0].Code)
	assert.Equal(t, "req-2", results[0].RequestID)
	assert.Equal(t, domain.ResponseOK, results[1].Code)
	assert.Equal(t, "req-1", results[1].RequestID)
	assert.Equal(t, domain.ResponseError, results[2].Code)
	assert.Equal(t, "card declined", results[2].DebugMessage)
	assert.Empty(t, f.sf.Pending())
}

func TestStorefront_UnknownPendingRequest(t *testing.T) {
	f := newFixture(t, ModeManual)
	ctx := context.Background()

	assert.ErrorIs(t, f.sf.Approve(ctx, "missing"), ErrRequestNotFound)
	assert.ErrorIs(t, f.sf.Cancel(ctx, "missing"), ErrRequestNotFound)

	require.NoError(t, f.sf.RequestPurchase(ctx, request("req-1", gold)))
	require.NoError(t, f.sf.Approve(ctx, "req-1"))
	assert.ErrorIs(t, f.sf.Approve(ctx, "req-1"), ErrRequestNotFound)
}

func TestStorefront_FailRejectsNonFailureCodes(t *testing.T) {
	f := newFixture(t, ModeManual)
	ctx := context.Background()

	require.NoError(t, f.sf.RequestPurchase(ctx, request("req-1", gold)))

	assert.ErrorIs(t, f.sf.Fail(ctx, "req-1", domain.ResponseOK, ""), ErrInvalidCode)
	assert.ErrorIs(t, f.sf.Fail(ctx, "req-1", domain.ResponseCode(42), ""), ErrInvalidCode)
	assert.Len(t, f.sf.Pending(), 1, "rejected failure leaves the request parked")
}

func TestStorefront_WaitPending(t *testing.T) {
	f := newFixture(t, ModeManual)

	done := make(chan []PendingRequest, 1)
	go func() {
		pending, err := f.sf.WaitPending(context.Background())
		if err == nil {
			done <- pending
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, f.sf.RequestPurchase(context.Background(), request("req-1", gold)))

	select {
	case pending := <-done:
		require.Len(t, pending, 1)
		assert.Equal(t, "req-1", pending[0].Request.ID)
	case <-time.After(time.Second):
		t.Fatal("WaitPending did not return")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.sf.Approve(context.Background(), "req-1"))
	_, err := f.sf.WaitPending(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStorefront_SetMode(t *testing.T) {
	f := newFixture(t, ModeManual)
	ctx := context.Background()

	require.NoError(t, f.sf.RequestPurchase(ctx, request("req-1", gold)))
	f.sf.SetMode(ModeCancel)
	require.NoError(t, f.sf.RequestPurchase(ctx, request("req-2", gold)))

	res := f.collector.waitFor(t, 1)[0]
	assert.Equal(t, "req-2", res.RequestID)
	assert.Len(t, f.sf.Pending(), 1)
	assert.Equal(t, ModeCancel, f.sf.Mode())
}
