// Package application implements the simulated storefront screen that
// resolves purchase requests and publishes their outcome on the flow channel.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/flowbus"
)

var (
	// ErrRequestNotFound is returned when no pending request has the ID.
	ErrRequestNotFound = errors.New("purchase request not found")
	// ErrInvalidMode is returned for an unknown storefront mode.
	ErrInvalidMode = errors.New("invalid storefront mode")
	// ErrInvalidCode is returned when a request is failed with OK or an unknown code.
	ErrInvalidCode = errors.New("invalid failure code")
)

// Mode decides how requests are answered.
type Mode string

const (
	// ModeApprove buys every request immediately.
	ModeApprove Mode = "approve"
	// ModeCancel answers every request as canceled by the user.
	ModeCancel Mode = "cancel"
	// ModeManual parks requests until an operator approves or cancels them.
	ModeManual Mode = "manual"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeApprove, ModeCancel, ModeManual:
		return m, nil
	case "":
		return ModeApprove, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Config configures the storefront.
type Config struct {
	Mode        Mode
	PackageName string
	Now         func() time.Time
	Logger      *slog.Logger
}

// PendingRequest is a request parked in manual mode.
type PendingRequest struct {
	Request    domain.FlowRequest `json:"request"`
	ReceivedAt time.Time          `json:"received_at"`
}

// Storefront plays the role of the store's purchase screen.
type Storefront struct {
	bus         flowbus.Bus
	purchases   domain.PurchaseRepository
	packageName string
	now         func() time.Time
	logger      *slog.Logger

	mu      sync.Mutex
	mode    Mode
	pending map[string]PendingRequest
	order   []string
	waiters []chan struct{}
}

// New creates a storefront that answers on bus and checks ownership in purchases.
func New(bus flowbus.Bus, purchases domain.PurchaseRepository, cfg Config) *Storefront {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeApprove
	}
	return &Storefront{
		bus:         bus,
		purchases:   purchases,
		packageName: cfg.PackageName,
		now:         cfg.Now,
		logger:      cfg.Logger.With("component", "storefront"),
		mode:        cfg.Mode,
		pending:     make(map[string]PendingRequest),
	}
}

// Mode returns the current mode.
func (s *Storefront) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches how future requests are answered. Parked requests stay parked.
func (s *Storefront) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// RequestPurchase receives a purchase request from the client. Requests for
// unknown products or already-owned one-time products are answered at once;
// the rest follow the storefront mode.
func (s *Storefront) RequestPurchase(ctx context.Context, req domain.FlowRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	log := s.logger.With("request_id", req.ID)

	if len(req.Products) == 0 {
		return s.publish(ctx, req, domain.FlowResult{
			Code:         domain.ResponseItemUnavailable,
			DebugMessage: "no purchasable product in request",
		})
	}

	owned, err := s.ownedOneTime(ctx, req.Products)
	if err != nil {
		return fmt.Errorf("failed to check ownership: %w", err)
	}
	if owned != "" {
		log.Info("product already owned", "sku", owned)
		return s.publish(ctx, req, domain.FlowResult{
			Code:         domain.ResponseItemAlreadyOwned,
			DebugMessage: fmt.Sprintf("%s is already owned", owned),
		})
	}

	switch s.Mode() {
	case ModeCancel:
		return s.publish(ctx, req, domain.FlowResult{Code: domain.ResponseUserCanceled})
	case ModeManual:
		s.park(req)
		log.Info("purchase request waiting for operator", "sku", req.Products[0].SKU)
		return nil
	default:
		return s.publish(ctx, req, s.approve(req))
	}
}

func (s *Storefront) ownedOneTime(ctx context.Context, products []domain.Product) (string, error) {
	var skus []string
	for _, p := range products {
		if p.Type == domain.ProductTypeOneTime {
			skus = append(skus, p.SKU)
		}
	}
	if len(skus) == 0 {
		return "", nil
	}

	owned, err := s.purchases.ListPurchases(ctx, domain.ProductTypeOneTime)
	if err != nil {
		return "", err
	}
	for _, p := range owned {
		if !p.HasAnySKU(skus) {
			continue
		}
		for _, sku := range p.SKUs {
			if slices.Contains(skus, sku) {
				return sku, nil
			}
		}
	}
	return "", nil
}

// approve builds the purchase the store would return for req.
func (s *Storefront) approve(req domain.FlowRequest) domain.FlowResult {
	first := req.Products[0]
	skus := make([]string, 0, len(req.Products))
	for _, p := range req.Products {
		skus = append(skus, p.SKU)
	}

	purchase := domain.Purchase{
		OrderID:          first.SKU + "..0",
		PackageName:      s.packageName,
		SKUs:             skus,
		PurchaseTime:     s.now().UnixMilli(),
		PurchaseToken:    uuid.NewString(),
		Signature:        domain.DebugSignature(first.SKU, first.Type),
		State:            domain.PurchaseStatePurchased,
		DeveloperPayload: req.DeveloperPayload,
	}
	if first.Type == domain.ProductTypeSubscription {
		purchase.AutoRenewing = domain.Bool(true)
	}

	return domain.FlowResult{
		Code:      domain.ResponseOK,
		Purchases: []domain.Purchase{purchase},
	}
}

func (s *Storefront) park(req domain.FlowRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[req.ID] = PendingRequest{Request: req, ReceivedAt: s.now().UTC()}
	s.order = append(s.order, req.ID)
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

// Pending lists parked requests, oldest first.
func (s *Storefront) Pending() []PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingRequest, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.pending[id])
	}
	return out
}

// WaitPending blocks until at least one request is parked or ctx ends.
func (s *Storefront) WaitPending(ctx context.Context) ([]PendingRequest, error) {
	for {
		s.mu.Lock()
		if len(s.order) > 0 {
			s.mu.Unlock()
			return s.Pending(), nil
		}
		w := make(chan struct{})
		s.waiters = append(s.waiters, w)
		s.mu.Unlock()

		select {
		case <-w:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Storefront) take(id string) (domain.FlowRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return domain.FlowRequest{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	delete(s.pending, id)
	s.order = slices.DeleteFunc(s.order, func(other string) bool { return other == id })
	return p.Request, nil
}

// Approve buys a parked request.
func (s *Storefront) Approve(ctx context.Context, id string) error {
	req, err := s.take(id)
	if err != nil {
		return err
	}
	return s.publish(ctx, req, s.approve(req))
}

// Cancel answers a parked request as canceled by the user.
func (s *Storefront) Cancel(ctx context.Context, id string) error {
	req, err := s.take(id)
	if err != nil {
		return err
	}
	return s.publish(ctx, req, domain.FlowResult{Code: domain.ResponseUserCanceled})
}

// Fail answers a parked request with an arbitrary failure code.
func (s *Storefront) Fail(ctx context.Context, id string, code domain.ResponseCode, message string) error {
	if code == domain.ResponseOK || !code.IsKnown() {
		return fmt.Errorf("%w: %s", ErrInvalidCode, code)
	}
	req, err := s.take(id)
	if err != nil {
		return err
	}
	return s.publish(ctx, req, domain.FlowResult{Code: code, DebugMessage: message})
}

func (s *Storefront) publish(ctx context.Context, req domain.FlowRequest, res domain.FlowResult) error {
	res.RequestID = req.ID
	data, err := domain.EncodeFlowResult(res)
	if err != nil {
		return fmt.Errorf("failed to encode flow result: %w", err)
	}
	if err := s.bus.Publish(ctx, req.Channel, data); err != nil {
		return fmt.Errorf("failed to publish flow result: %w", err)
	}
	s.logger.Debug("flow result published",
		"request_id", req.ID,
		"channel", req.Channel,
		"code", res.Code.String(),
	)
	return nil
}
