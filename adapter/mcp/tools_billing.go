package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/billingsim/adapter/cli"
	billingApp "github.com/felixgeelhaar/billingsim/internal/billing/application"
	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
	storefrontApp "github.com/felixgeelhaar/billingsim/internal/storefront/application"
)

type productsInput struct {
	Type string   `json:"type,omitempty"`
	SKUs []string `json:"skus,omitempty"`
}

type purchasesInput struct {
	Type    string `json:"type,omitempty"`
	History bool   `json:"history,omitempty"`
}

type buyInput struct {
	SKU            string            `json:"sku" jsonschema:"required"`
	Type           string            `json:"type,omitempty"`
	Payload        map[string]string `json:"payload,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

type tokenInput struct {
	PurchaseToken string `json:"purchase_token" jsonschema:"required"`
}

type entitlementInput struct {
	SKUs []string `json:"skus" jsonschema:"required"`
}

type purchasesOutput struct {
	Result    resultOutput      `json:"result"`
	Purchases []domain.Purchase `json:"purchases"`
}

type buyOutput struct {
	Result     resultOutput      `json:"result"`
	Pending    bool              `json:"pending,omitempty"`
	Purchases  []domain.Purchase `json:"purchases,omitempty"`
	Subscribed bool              `json:"subscribed"`
}

type evaluationOutput struct {
	PurchaseToken string   `json:"purchase_token"`
	SKUs          []string `json:"skus"`
	Decision      string   `json:"decision"`
	Period        string   `json:"period,omitempty"`
	ExpiresAt     string   `json:"expires_at,omitempty"`
}

type entitlementOutput struct {
	Result      resultOutput       `json:"result"`
	Entitled    bool               `json:"entitled"`
	GrantedBy   string             `json:"granted_by,omitempty"`
	Evaluations []evaluationOutput `json:"evaluations"`
}

// billingTools holds the handlers behind the billing.* tools.
type billingTools struct {
	app *cli.App
}

func registerBillingTools(srv *mcp.Server, deps ToolDependencies) error {
	t := billingTools{app: deps.App}

	srv.Tool("billing.products").
		Description("List catalog products, optionally filtered by type (inapp, subs) and SKUs").
		Handler(t.products)

	srv.Tool("billing.purchases").
		Description("List owned purchases or the purchase history").
		Handler(t.purchases)

	srv.Tool("billing.buy").
		Description("Launch a purchase flow and wait for its outcome. In manual storefront mode the request is parked for storefront.approve").
		Handler(t.buy)

	srv.Tool("billing.consume").
		Description("Consume a purchase by token").
		Handler(t.consume)

	srv.Tool("billing.acknowledge").
		Description("Acknowledge a purchase by token").
		Handler(t.acknowledge)

	srv.Tool("billing.entitlement").
		Description("Evaluate which purchase currently entitles the given SKUs").
		Handler(t.entitlement)

	return nil
}

func (t billingTools) products(ctx context.Context, input productsInput) ([]domain.Product, error) {
	if err := requireStore(t.app); err != nil {
		return nil, err
	}
	productType, err := cli.ParseOptionalType(input.Type)
	if err != nil {
		return nil, err
	}
	filter := domain.ProductFilter{Type: productType}
	if len(input.SKUs) > 0 {
		filter.SKUs = input.SKUs
	}
	return t.app.Store.ListProducts(ctx, filter)
}

func (t billingTools) purchases(ctx context.Context, input purchasesInput) (purchasesOutput, error) {
	if err := requireManager(t.app); err != nil {
		return purchasesOutput{}, err
	}
	productType, err := cli.ParseOptionalType(input.Type)
	if err != nil {
		return purchasesOutput{}, err
	}

	query := t.app.Manager.QueryPurchases
	if input.History {
		query = t.app.Manager.QueryPurchaseHistory
	}

	types := []domain.ProductType{domain.ProductTypeOneTime, domain.ProductTypeSubscription}
	if productType != "" {
		types = []domain.ProductType{productType}
	}

	out := purchasesOutput{
		Result:    toResultOutput(domain.NewResult(domain.ResponseOK)),
		Purchases: []domain.Purchase{},
	}
	for _, pt := range types {
		purchases, res := query(ctx, pt)
		if !res.OK() {
			out.Result = toResultOutput(res)
			out.Purchases = []domain.Purchase{}
			return out, nil
		}
		out.Purchases = append(out.Purchases, purchases...)
	}
	return out, nil
}

func (t billingTools) buy(ctx context.Context, input buyInput) (buyOutput, error) {
	if err := requireManager(t.app); err != nil {
		return buyOutput{}, err
	}
	if strings.TrimSpace(input.SKU) == "" {
		return buyOutput{}, errors.New("sku is required")
	}
	productType, err := cli.ParseOptionalType(input.Type)
	if err != nil {
		return buyOutput{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, waitTimeout(input.TimeoutSeconds))
	defer cancel()

	updates, stop := t.app.Manager.Updates()
	defer stop()

	res := t.app.Manager.InitiatePurchase(ctx, billingApp.FlowParams{
		SKU:              input.SKU,
		Type:             productType,
		DeveloperPayload: input.Payload,
	})
	if !res.OK() {
		return buyOutput{Result: toResultOutput(res), Subscribed: t.app.Manager.Subscribed()}, nil
	}
	if t.app.Storefront != nil && t.app.Storefront.Mode() == storefrontApp.ModeManual {
		return buyOutput{Result: toResultOutput(res), Pending: true, Subscribed: t.app.Manager.Subscribed()}, nil
	}

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return buyOutput{}, errors.New("billing manager shut down")
			}
			if u.Kind != billingApp.UpdatePurchaseFlow {
				continue
			}
			return buyOutput{
				Result:     toResultOutput(u.Result),
				Purchases:  u.Purchases,
				Subscribed: u.Subscribed,
			}, nil
		case <-ctx.Done():
			return buyOutput{}, fmt.Errorf("waiting for purchase flow: %w", ctx.Err())
		}
	}
}

func (t billingTools) consume(ctx context.Context, input tokenInput) (resultOutput, error) {
	if err := requireManager(t.app); err != nil {
		return resultOutput{}, err
	}
	return toResultOutput(t.app.Manager.Consume(ctx, input.PurchaseToken)), nil
}

func (t billingTools) acknowledge(ctx context.Context, input tokenInput) (resultOutput, error) {
	if err := requireManager(t.app); err != nil {
		return resultOutput{}, err
	}
	return toResultOutput(t.app.Manager.Acknowledge(ctx, input.PurchaseToken)), nil
}

func (t billingTools) entitlement(ctx context.Context, input entitlementInput) (entitlementOutput, error) {
	if err := requireManager(t.app); err != nil {
		return entitlementOutput{}, err
	}
	if len(input.SKUs) == 0 {
		return entitlementOutput{}, errors.New("at least one sku is required")
	}

	evaluations, winner, res := t.app.Manager.EvaluateEntitlement(ctx, input.SKUs)
	out := entitlementOutput{
		Result:      toResultOutput(res),
		Evaluations: []evaluationOutput{},
	}
	for _, e := range evaluations {
		if e.Decision == domain.DecisionSKUMismatch {
			continue
		}
		eo := evaluationOutput{
			PurchaseToken: e.Purchase.PurchaseToken,
			SKUs:          e.Purchase.SKUs,
			Decision:      string(e.Decision),
			Period:        e.Period,
		}
		if !e.ExpiresAt.IsZero() {
			eo.ExpiresAt = e.ExpiresAt.UTC().Format(time.RFC3339)
		}
		out.Evaluations = append(out.Evaluations, eo)
	}
	if winner != nil {
		out.Entitled = true
		out.GrantedBy = winner.PurchaseToken
	}
	return out, nil
}
