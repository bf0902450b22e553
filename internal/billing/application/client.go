package application

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/flowbus"
)

// DefaultFlowChannel is the channel purchase-flow outcomes are published on.
const DefaultFlowChannel = "billingsim.purchase_flow"

// Feature names apps commonly check. A connected client reports every
// feature as supported.
const (
	FeatureSubscriptions       = "subscriptions"
	FeatureSubscriptionsUpdate = "subscriptionsUpdate"
	FeaturePriceChange         = "priceChangeConfirmation"
)

// ClientConfig configures a simulated billing client.
type ClientConfig struct {
	Store  domain.Store
	Bus    flowbus.Bus
	UI     PurchaseFlowUI
	Runner Runner
	// Channel is the flow channel name. Defaults to DefaultFlowChannel.
	Channel string
	// PurchasesListener receives purchase-flow outcomes. It may also be set later.
	PurchasesListener PurchasesUpdatedListener
	Logger            *slog.Logger
}

// ProductQuery selects products for QueryProductDetails.
// A nil or empty SKUs list matches no products.
type ProductQuery struct {
	Type domain.ProductType
	SKUs []string
}

// FlowParams describes the product a purchase flow is launched for.
type FlowParams struct {
	SKU              string
	Type             domain.ProductType
	DeveloperPayload map[string]string
}

// Client simulates a connection to the remote billing service.
// Connection state moves DISCONNECTED -> CONNECTING -> CONNECTED -> CLOSED and
// never leaves CLOSED.
type Client struct {
	store   domain.Store
	bus     flowbus.Bus
	ui      PurchaseFlowUI
	runner  Runner
	channel string
	logger  *slog.Logger

	mu                sync.Mutex
	state             domain.ConnectionState
	stateListener     StateListener
	purchasesListener PurchasesUpdatedListener

	// consumeMu keeps find-then-remove in Consume atomic.
	consumeMu sync.Mutex
}

// NewClient creates a disconnected client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Runner == nil {
		cfg.Runner = InlineRunner{}
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultFlowChannel
	}
	return &Client{
		store:             cfg.Store,
		bus:               cfg.Bus,
		ui:                cfg.UI,
		runner:            cfg.Runner,
		channel:           cfg.Channel,
		logger:            cfg.Logger.With("component", "billing_client"),
		state:             domain.StateDisconnected,
		purchasesListener: cfg.PurchasesListener,
	}
}

// SetPurchasesUpdatedListener replaces the purchase-flow listener.
func (c *Client) SetPurchasesUpdatedListener(l PurchasesUpdatedListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purchasesListener = l
}

// Channel returns the flow channel the client listens on.
func (c *Client) Channel() string {
	return c.channel
}

// State returns the current connection state.
func (c *Client) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsReady reports whether the client is connected.
func (c *Client) IsReady() bool {
	return c.State() == domain.StateConnected
}

// StartConnection connects the client and reports the outcome to listener.
// Connecting a connected client reports OK again; connecting a closed client
// reports DEVELOPER_ERROR.
func (c *Client) StartConnection(listener StateListener) {
	if listener == nil {
		listener = StateListenerFuncs{}
	}

	c.mu.Lock()
	switch c.state {
	case domain.StateClosed:
		c.mu.Unlock()
		c.logger.Warn("client was already closed and can't be reused, create another instance")
		listener.OnSetupFinished(domain.NewResultf(domain.ResponseDeveloperError, "client is closed"))
		return
	case domain.StateConnected:
		c.mu.Unlock()
		c.logger.Debug("client already connected")
		listener.OnSetupFinished(domain.NewResult(domain.ResponseOK))
		return
	case domain.StateConnecting:
		c.mu.Unlock()
		listener.OnSetupFinished(domain.NewResultf(domain.ResponseDeveloperError, "client is already connecting"))
		return
	}
	c.state = domain.StateConnecting
	c.mu.Unlock()

	if err := c.bus.Subscribe(c.channel, c); err != nil {
		c.mu.Lock()
		c.state = domain.StateDisconnected
		c.mu.Unlock()
		c.logger.Error("failed to subscribe to flow channel", "channel", c.channel, "error", err)
		listener.OnSetupFinished(domain.NewResultf(domain.ResponseError, "flow channel unavailable: %v", err))
		return
	}

	c.mu.Lock()
	if c.state == domain.StateClosed {
		// EndConnection won the race while subscribing.
		c.mu.Unlock()
		_ = c.bus.Unsubscribe(c.channel, c)
		listener.OnSetupFinished(domain.NewResultf(domain.ResponseDeveloperError, "client is closed"))
		return
	}
	c.state = domain.StateConnected
	c.stateListener = listener
	c.mu.Unlock()

	c.logger.Info("client connected", "channel", c.channel)
	listener.OnSetupFinished(domain.NewResult(domain.ResponseOK))
}

// EndConnection closes the client for good. A connected client leaves the
// flow channel and notifies the listener passed to StartConnection.
func (c *Client) EndConnection() {
	c.mu.Lock()
	prev := c.state
	c.state = domain.StateClosed
	listener := c.stateListener
	c.stateListener = nil
	c.mu.Unlock()

	if prev != domain.StateConnected {
		if prev != domain.StateClosed {
			c.logger.Debug("client closed before connecting", "state", prev.String())
		}
		return
	}

	if err := c.bus.Unsubscribe(c.channel, c); err != nil {
		c.logger.Warn("failed to unsubscribe from flow channel", "channel", c.channel, "error", err)
	}
	c.logger.Info("client closed")
	if listener != nil {
		listener.OnServiceDisconnected()
	}
}

// IsFeatureSupported reports OK for every feature on a connected client.
func (c *Client) IsFeatureSupported(feature string) domain.Result {
	if !c.IsReady() {
		return disconnected()
	}
	c.logger.Debug("feature check", "feature", feature)
	return domain.NewResult(domain.ResponseOK)
}

// QueryProductDetails lists stored products of the given type whose SKU is in
// q.SKUs. The callback runs on the client's runner.
func (c *Client) QueryProductDetails(ctx context.Context, q ProductQuery, cb func(domain.Result, []domain.Product)) {
	if !c.IsReady() {
		cb(disconnected(), nil)
		return
	}
	if q.Type != "" && !q.Type.IsValid() {
		cb(domain.NewResultf(domain.ResponseDeveloperError, "unknown product type %q", q.Type), nil)
		return
	}

	filter := domain.ProductFilter{Type: q.Type, SKUs: q.SKUs}
	if filter.SKUs == nil {
		filter.SKUs = []string{}
	}

	c.runner.Run(func() {
		products, err := c.store.ListProducts(ctx, filter)
		if err != nil {
			c.logger.Error("failed to query products", "type", q.Type.String(), "error", err)
			cb(domain.NewResultf(domain.ResponseError, "product query failed"), nil)
			return
		}
		cb(domain.NewResult(domain.ResponseOK), products)
	})
}

// QueryPurchases lists owned purchases of productType.
func (c *Client) QueryPurchases(ctx context.Context, productType domain.ProductType, cb func(domain.Result, []domain.Purchase)) {
	c.queryPurchases(ctx, "query_purchases", productType, cb)
}

// QueryPurchaseHistory lists the purchase history of productType. History
// and owned purchases share one partition, so consumed purchases are absent.
func (c *Client) QueryPurchaseHistory(ctx context.Context, productType domain.ProductType, cb func(domain.Result, []domain.Purchase)) {
	c.queryPurchases(ctx, "query_purchase_history", productType, cb)
}

func (c *Client) queryPurchases(ctx context.Context, op string, productType domain.ProductType, cb func(domain.Result, []domain.Purchase)) {
	if !c.IsReady() {
		cb(disconnected(), nil)
		return
	}
	if strings.TrimSpace(productType.String()) == "" {
		c.logger.Warn("purchase query without product type", "operation", op)
		cb(domain.NewResultf(domain.ResponseDeveloperError, "product type must not be blank"), nil)
		return
	}

	c.runner.Run(func() {
		purchases, err := c.store.ListPurchases(ctx, productType)
		if err != nil {
			c.logger.Error("failed to query purchases", "operation", op, "error", err)
			cb(domain.NewResultf(domain.ResponseError, "purchase query failed"), nil)
			return
		}
		cb(domain.NewResult(domain.ResponseOK), purchases)
	})
}

// LaunchPurchaseFlow hands the product to the storefront and returns without
// waiting for the outcome, which arrives on the flow channel.
func (c *Client) LaunchPurchaseFlow(ctx context.Context, p FlowParams) domain.Result {
	if !c.IsReady() {
		return disconnected()
	}
	if strings.TrimSpace(p.SKU) == "" {
		return domain.NewResultf(domain.ResponseDeveloperError, "sku must not be blank")
	}
	if c.ui == nil {
		return domain.NewResultf(domain.ResponseError, "no storefront configured")
	}

	products, err := c.store.ListProducts(ctx, domain.ProductFilter{Type: p.Type, SKUs: []string{p.SKU}})
	if err != nil {
		c.logger.Error("failed to resolve product for purchase flow", "sku", p.SKU, "error", err)
		return domain.NewResultf(domain.ResponseError, "product lookup failed")
	}
	if len(products) == 0 {
		return domain.NewResultf(domain.ResponseItemUnavailable, "unknown product %s", p.SKU)
	}

	req := domain.FlowRequest{
		ID:               uuid.NewString(),
		Channel:          c.channel,
		Products:         products,
		DeveloperPayload: p.DeveloperPayload,
		RequestedAt:      time.Now().UTC(),
	}
	if err := c.ui.RequestPurchase(ctx, req); err != nil {
		c.logger.Error("storefront rejected purchase request", "request_id", req.ID, "error", err)
		return domain.NewResultf(domain.ResponseError, "storefront unavailable")
	}

	c.logger.Info("purchase flow launched", "request_id", req.ID, "sku", p.SKU)
	return domain.NewResult(domain.ResponseOK)
}

// HandleMessage receives flow outcomes from the channel. Successful purchases
// are stored before the listener is told about them.
func (c *Client) HandleMessage(ctx context.Context, msg flowbus.Message) {
	c.mu.Lock()
	listener := c.purchasesListener
	c.mu.Unlock()

	notify := func(result domain.Result, purchases []domain.Purchase) {
		if listener == nil {
			c.logger.Warn("purchase flow result without listener", "code", result.Code.String())
			return
		}
		listener.OnPurchasesUpdated(result, purchases)
	}

	flow, err := domain.DecodeFlowResult(msg.Payload)
	if err != nil {
		c.logger.Error("malformed purchase flow message", "message_id", msg.ID, "error", err)
		notify(domain.NewResultf(domain.ResponseError, "malformed purchase flow message"), nil)
		return
	}

	if !flow.Result().OK() {
		c.logger.Info("purchase flow finished without purchase",
			"request_id", flow.RequestID,
			"code", flow.Code.String(),
		)
		notify(flow.Result(), nil)
		return
	}

	if len(flow.Purchases) == 0 {
		notify(domain.NewResultf(domain.ResponseError, "purchase flow result carries no purchases"), nil)
		return
	}
	for _, p := range flow.Purchases {
		if err := c.store.AddPurchase(ctx, p); err != nil {
			c.logger.Error("failed to store purchase", "purchase_token", p.PurchaseToken, "error", err)
			notify(domain.NewResultf(domain.ResponseError, "failed to store purchase"), nil)
			return
		}
	}

	c.logger.Info("purchase flow completed", "request_id", flow.RequestID, "purchases", len(flow.Purchases))
	notify(domain.NewResult(domain.ResponseOK), flow.Purchases)
}

// Consume removes the purchase with token. Unknown tokens yield ITEM_NOT_OWNED.
func (c *Client) Consume(ctx context.Context, token string, cb func(domain.Result, string)) {
	if !c.IsReady() {
		cb(disconnected(), token)
		return
	}
	if strings.TrimSpace(token) == "" {
		cb(domain.NewResultf(domain.ResponseDeveloperError, "purchase token must not be blank"), token)
		return
	}

	c.runner.Run(func() {
		c.consumeMu.Lock()
		defer c.consumeMu.Unlock()

		found, err := c.store.FindPurchaseByToken(ctx, token)
		if err != nil {
			c.logger.Error("failed to look up purchase", "purchase_token", token, "error", err)
			cb(domain.NewResultf(domain.ResponseError, "purchase lookup failed"), token)
			return
		}
		if found == nil {
			cb(domain.NewResultf(domain.ResponseItemNotOwned, "no purchase with token %s", token), token)
			return
		}
		if err := c.store.RemovePurchase(ctx, token); err != nil {
			c.logger.Error("failed to consume purchase", "purchase_token", token, "error", err)
			cb(domain.NewResultf(domain.ResponseError, "consume failed"), token)
			return
		}
		c.logger.Info("purchase consumed", "purchase_token", token)
		cb(domain.NewResult(domain.ResponseOK), token)
	})
}

// Acknowledge marks the purchase with token acknowledged. Ownership is not
// checked, so an unknown token still reports OK.
func (c *Client) Acknowledge(ctx context.Context, token string, cb func(domain.Result)) {
	if !c.IsReady() {
		cb(disconnected())
		return
	}
	if strings.TrimSpace(token) == "" {
		cb(domain.NewResultf(domain.ResponseDeveloperError, "purchase token must not be blank"))
		return
	}

	c.runner.Run(func() {
		if err := c.store.Acknowledge(ctx, token); err != nil {
			c.logger.Error("failed to acknowledge purchase", "purchase_token", token, "error", err)
			cb(domain.NewResultf(domain.ResponseError, "acknowledge failed"))
			return
		}
		cb(domain.NewResult(domain.ResponseOK))
	})
}

func disconnected() domain.Result {
	return domain.NewResultf(domain.ResponseServiceDisconnected, "client is not connected")
}

var _ flowbus.Handler = (*Client)(nil)
