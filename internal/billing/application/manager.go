package application

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

// DefaultRestoreMaxAttempts caps consecutive automatic restores triggered by
// ITEM_ALREADY_OWNED results.
const DefaultRestoreMaxAttempts = 3

// ManagerConfig configures the owning-application manager.
type ManagerConfig struct {
	// ValidSKUs are the subscription SKUs that grant the "subscribed" state.
	ValidSKUs []string
	// RestoreMaxAttempts caps consecutive already-owned auto-restores.
	RestoreMaxAttempts int
	Now                func() time.Time
	Logger             *slog.Logger
}

// UpdateKind tells what produced an Update.
type UpdateKind string

const (
	UpdateRestore      UpdateKind = "restore"
	UpdatePurchaseFlow UpdateKind = "purchase_flow"
)

// Update is sent to manager subscribers after every purchase-flow outcome
// and every entitlement refresh.
type Update struct {
	Kind        UpdateKind
	Result      domain.Result
	Purchases   []domain.Purchase
	Subscribed  bool
	Entitlement *domain.Purchase
}

// Manager is the application-side owner of a Client. It keeps the client
// connected through a Coordinator, restores purchases on connect and tracks
// whether any valid subscription is currently entitled.
type Manager struct {
	client      *Client
	coordinator *Coordinator
	resolver    *domain.Resolver
	validSKUs   []string
	maxRestores int
	now         func() time.Time
	logger      *slog.Logger

	mu              sync.Mutex
	subscribed      bool
	entitlement     *domain.Purchase
	restoreAttempts int
	subscribers     map[int]chan Update
	nextSubscriber  int
	destroyed       bool
}

// NewManager creates a manager for client and registers itself as the
// client's purchase listener.
func NewManager(client *Client, cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RestoreMaxAttempts <= 0 {
		cfg.RestoreMaxAttempts = DefaultRestoreMaxAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		client:      client,
		resolver:    domain.NewResolver(cfg.Logger),
		validSKUs:   slices.Clone(cfg.ValidSKUs),
		maxRestores: cfg.RestoreMaxAttempts,
		now:         cfg.Now,
		logger:      cfg.Logger.With("component", "billing_manager"),
		subscribers: make(map[int]chan Update),
	}
	m.coordinator = NewCoordinator(client, StateListenerFuncs{
		ServiceDisconnected: m.onServiceDisconnected,
	}, cfg.Logger)
	client.SetPurchasesUpdatedListener(m)
	return m
}

// Client returns the managed client.
func (m *Manager) Client() *Client {
	return m.client
}

// Coordinator returns the connection coordinator.
func (m *Manager) Coordinator() *Coordinator {
	return m.coordinator
}

// Start connects the client and restores purchases.
func (m *Manager) Start(ctx context.Context) {
	m.RestorePurchases(ctx)
}

// RestorePurchases re-reads owned subscriptions and re-resolves entitlement.
// Explicit restores reset the already-owned auto-restore budget.
func (m *Manager) RestorePurchases(ctx context.Context) {
	m.mu.Lock()
	m.restoreAttempts = 0
	m.mu.Unlock()

	m.refresh(ctx, UpdateRestore, domain.NewResult(domain.ResponseOK), nil)
}

// refresh resolves entitlement from the stored subscriptions and publishes an
// Update carrying result and purchases.
func (m *Manager) refresh(ctx context.Context, kind UpdateKind, result domain.Result, purchases []domain.Purchase) {
	m.coordinator.EnsureConnectedThen(func() {
		m.client.QueryPurchases(ctx, domain.ProductTypeSubscription, func(qr domain.Result, owned []domain.Purchase) {
			if !qr.OK() {
				m.logger.Warn("failed to restore purchases", "result", qr.String())
				m.publish(Update{Kind: kind, Result: qr, Purchases: purchases})
				return
			}
			m.client.QueryProductDetails(ctx, ProductQuery{
				Type: domain.ProductTypeSubscription,
				SKUs: m.validSKUs,
			}, func(pr domain.Result, products []domain.Product) {
				if !pr.OK() {
					m.logger.Warn("failed to load subscription products", "result", pr.String())
					m.publish(Update{Kind: kind, Result: pr, Purchases: purchases})
					return
				}
				winner := m.resolver.Resolve(owned, products, m.validSKUs, m.now())
				m.setEntitlement(winner)
				m.publish(Update{Kind: kind, Result: result, Purchases: purchases})
			})
		})
	})
}

func (m *Manager) setEntitlement(winner *domain.Purchase) {
	m.mu.Lock()
	defer m.mu.Unlock()

	was := m.subscribed
	m.subscribed = winner != nil
	m.entitlement = winner
	if was != m.subscribed {
		token := ""
		if winner != nil {
			token = winner.PurchaseToken
		}
		m.logger.Info("subscription state changed", "subscribed", m.subscribed, "purchase_token", token)
	}
}

// OnPurchasesUpdated handles purchase-flow outcomes delivered by the client.
func (m *Manager) OnPurchasesUpdated(result domain.Result, purchases []domain.Purchase) {
	ctx := context.Background()

	switch result.Code {
	case domain.ResponseOK:
		m.mu.Lock()
		m.restoreAttempts = 0
		m.mu.Unlock()
		m.refresh(ctx, UpdatePurchaseFlow, result, purchases)

	case domain.ResponseItemAlreadyOwned:
		m.mu.Lock()
		m.restoreAttempts++
		attempt := m.restoreAttempts
		m.mu.Unlock()

		if attempt > m.maxRestores {
			m.logger.Warn("already-owned restore limit reached",
				"attempts", attempt-1,
				"max_attempts", m.maxRestores,
			)
			m.publish(Update{Kind: UpdatePurchaseFlow, Result: result})
			return
		}
		m.logger.Info("item already owned, restoring purchases", "attempt", attempt)
		m.refresh(ctx, UpdatePurchaseFlow, result, nil)

	default:
		m.logger.Info("purchase flow did not complete", "result", result.String())
		m.publish(Update{Kind: UpdatePurchaseFlow, Result: result})
	}
}

func (m *Manager) onServiceDisconnected() {
	m.mu.Lock()
	m.subscribed = false
	m.entitlement = nil
	m.mu.Unlock()
}

// Subscribed reports whether a valid subscription is currently entitled.
func (m *Manager) Subscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed
}

// Entitlement returns the purchase currently granting the subscription, if any.
func (m *Manager) Entitlement() *domain.Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entitlement == nil {
		return nil
	}
	p := m.entitlement.Clone()
	return &p
}

// Updates registers a subscriber. The returned cancel func must be called to
// release it. Slow subscribers miss updates rather than block delivery.
func (m *Manager) Updates() (<-chan Update, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Update, 16)
	if m.destroyed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSubscriber
	m.nextSubscriber++
	m.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subscribers[id]; ok {
				delete(m.subscribers, id)
				close(sub)
			}
		})
	}
}

func (m *Manager) publish(u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.Subscribed = m.subscribed
	if m.entitlement != nil {
		p := m.entitlement.Clone()
		u.Entitlement = &p
	}
	for id, ch := range m.subscribers {
		select {
		case ch <- u:
		default:
			m.logger.Warn("update subscriber is full, dropping update", "subscriber", id)
		}
	}
}

// InitiatePurchase connects if needed and launches a purchase flow. It
// returns the hand-off result; the outcome arrives as an Update.
func (m *Manager) InitiatePurchase(ctx context.Context, p FlowParams) domain.Result {
	res, err := await(ctx, func(done func(domain.Result)) {
		m.coordinator.EnsureConnectedThen(func() {
			done(m.client.LaunchPurchaseFlow(ctx, p))
		})
	})
	if err != nil {
		return canceled(err)
	}
	return res
}

// QueryProducts returns products of productType among skus.
func (m *Manager) QueryProducts(ctx context.Context, productType domain.ProductType, skus []string) ([]domain.Product, domain.Result) {
	type reply struct {
		result   domain.Result
		products []domain.Product
	}
	r, err := await(ctx, func(done func(reply)) {
		m.coordinator.EnsureConnectedThen(func() {
			m.client.QueryProductDetails(ctx, ProductQuery{Type: productType, SKUs: skus}, func(res domain.Result, products []domain.Product) {
				done(reply{res, products})
			})
		})
	})
	if err != nil {
		return nil, canceled(err)
	}
	return r.products, r.result
}

// QueryPurchases returns owned purchases of productType.
func (m *Manager) QueryPurchases(ctx context.Context, productType domain.ProductType) ([]domain.Purchase, domain.Result) {
	return m.queryPurchases(ctx, productType, m.client.QueryPurchases)
}

// QueryPurchaseHistory returns the purchase history of productType.
func (m *Manager) QueryPurchaseHistory(ctx context.Context, productType domain.ProductType) ([]domain.Purchase, domain.Result) {
	return m.queryPurchases(ctx, productType, m.client.QueryPurchaseHistory)
}

func (m *Manager) queryPurchases(
	ctx context.Context,
	productType domain.ProductType,
	query func(context.Context, domain.ProductType, func(domain.Result, []domain.Purchase)),
) ([]domain.Purchase, domain.Result) {
	type reply struct {
		result    domain.Result
		purchases []domain.Purchase
	}
	r, err := await(ctx, func(done func(reply)) {
		m.coordinator.EnsureConnectedThen(func() {
			query(ctx, productType, func(res domain.Result, purchases []domain.Purchase) {
				done(reply{res, purchases})
			})
		})
	})
	if err != nil {
		return nil, canceled(err)
	}
	return r.purchases, r.result
}

// Consume consumes the purchase with token.
func (m *Manager) Consume(ctx context.Context, token string) domain.Result {
	res, err := await(ctx, func(done func(domain.Result)) {
		m.coordinator.EnsureConnectedThen(func() {
			m.client.Consume(ctx, token, func(res domain.Result, _ string) {
				done(res)
			})
		})
	})
	if err != nil {
		return canceled(err)
	}
	return res
}

// Acknowledge acknowledges the purchase with token.
func (m *Manager) Acknowledge(ctx context.Context, token string) domain.Result {
	res, err := await(ctx, func(done func(domain.Result)) {
		m.coordinator.EnsureConnectedThen(func() {
			m.client.Acknowledge(ctx, token, done)
		})
	})
	if err != nil {
		return canceled(err)
	}
	return res
}

// EvaluateEntitlement reports a per-purchase decision for skus across every
// stored purchase, plus the purchase that currently grants access, if any.
func (m *Manager) EvaluateEntitlement(ctx context.Context, skus []string) ([]domain.Evaluation, *domain.Purchase, domain.Result) {
	var owned []domain.Purchase
	for _, t := range []domain.ProductType{domain.ProductTypeSubscription, domain.ProductTypeOneTime} {
		purchases, res := m.QueryPurchases(ctx, t)
		if !res.OK() {
			return nil, nil, res
		}
		owned = append(owned, purchases...)
	}

	products, res := m.QueryProducts(ctx, "", skus)
	if !res.OK() {
		return nil, nil, res
	}

	now := m.now()
	return m.resolver.Evaluate(owned, products, skus, now),
		m.resolver.Resolve(owned, products, skus, now),
		domain.NewResult(domain.ResponseOK)
}

// Destroy closes the client and releases every update subscriber.
func (m *Manager) Destroy() {
	m.client.EndConnection()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.destroyed = true
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
}

// await runs start and waits for it to call done, or for ctx to end.
func await[T any](ctx context.Context, start func(done func(T))) (T, error) {
	ch := make(chan T, 1)
	var once sync.Once
	start(func(v T) {
		once.Do(func() { ch <- v })
	})

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func canceled(err error) domain.Result {
	return domain.NewResultf(domain.ResponseError, "%v", err)
}

var _ PurchasesUpdatedListener = (*Manager)(nil)
