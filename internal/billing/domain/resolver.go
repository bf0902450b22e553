package domain

import (
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
)

// Decision explains how the resolver judged a single purchase.
type Decision string

const (
	DecisionSKUMismatch       Decision = "sku_mismatch"
	DecisionAutoRenewing      Decision = "auto_renewing"
	DecisionActive            Decision = "active"
	DecisionExpired           Decision = "expired"
	DecisionUnknownProduct    Decision = "unknown_product"
	DecisionNoPeriod          Decision = "no_period"
	DecisionUnparseablePeriod Decision = "unparseable_period"
)

// Evaluation is the resolver's verdict on one purchase.
type Evaluation struct {
	Purchase  Purchase
	Decision  Decision
	Period    string
	ExpiresAt time.Time
	Err       error
}

// Grants reports whether the evaluated purchase currently grants access.
func (e Evaluation) Grants() bool {
	return e.Decision == DecisionAutoRenewing || e.Decision == DecisionActive
}

// Resolver decides whether a set of purchases currently grants an entitlement.
// It is a pure function of its inputs and the supplied time.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger uses slog.Default().
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve returns the purchase that currently grants access to any of
// validSKUs, or nil. Auto-renewing purchases win over period arithmetic;
// otherwise the first purchase in input order whose trial or subscription
// period has not elapsed at now is returned. Purchases with a malformed
// period are skipped.
func (r *Resolver) Resolve(purchases []Purchase, products []Product, validSKUs []string, now time.Time) *Purchase {
	matching := make([]Purchase, 0, len(purchases))
	for _, p := range purchases {
		if p.HasAnySKU(validSKUs) {
			matching = append(matching, p)
		}
	}
	if len(matching) == 0 {
		return nil
	}

	for _, p := range matching {
		if p.IsAutoRenewing() {
			found := p.Clone()
			return &found
		}
	}

	for _, p := range matching {
		eval := r.evaluatePeriod(p, products, validSKUs, now)
		if eval.Decision == DecisionActive {
			found := p.Clone()
			return &found
		}
	}
	return nil
}

// Evaluate reports a decision for every purchase, in input order. Unlike
// Resolve it distinguishes expired purchases from ones whose period could not
// be parsed.
func (r *Resolver) Evaluate(purchases []Purchase, products []Product, validSKUs []string, now time.Time) []Evaluation {
	evals := make([]Evaluation, 0, len(purchases))
	for _, p := range purchases {
		switch {
		case !p.HasAnySKU(validSKUs):
			evals = append(evals, Evaluation{Purchase: p, Decision: DecisionSKUMismatch})
		case p.IsAutoRenewing():
			evals = append(evals, Evaluation{Purchase: p, Decision: DecisionAutoRenewing})
		default:
			evals = append(evals, r.evaluatePeriod(p, products, validSKUs, now))
		}
	}
	return evals
}

func (r *Resolver) evaluatePeriod(p Purchase, products []Product, validSKUs []string, now time.Time) Evaluation {
	eval := Evaluation{Purchase: p}

	product, ok := associatedProduct(p, products, validSKUs)
	if !ok {
		eval.Decision = DecisionUnknownProduct
		return eval
	}

	switch {
	case strings.TrimSpace(product.FreeTrialPeriod) != "":
		eval.Period = product.FreeTrialPeriod
	case strings.TrimSpace(product.SubscriptionPeriod) != "":
		eval.Period = product.SubscriptionPeriod
	default:
		eval.Decision = DecisionNoPeriod
		return eval
	}

	days, err := PeriodToDays(eval.Period)
	if err != nil {
		r.logger.Warn("skipping purchase with malformed period",
			"purchase_token", p.PurchaseToken,
			"sku", product.SKU,
			"period", eval.Period,
			"error", err,
		)
		eval.Decision = DecisionUnparseablePeriod
		eval.Err = err
		return eval
	}

	expiresAt := expiryMillis(p.PurchaseTime, days)
	eval.ExpiresAt = time.UnixMilli(expiresAt)
	if expiresAt > now.UnixMilli() {
		eval.Decision = DecisionActive
	} else {
		eval.Decision = DecisionExpired
	}
	return eval
}

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// expiryMillis returns purchaseTime plus days, saturating at math.MaxInt64.
func expiryMillis(purchaseTime, days int64) int64 {
	if days > (math.MaxInt64-max(purchaseTime, 0))/dayMillis {
		return math.MaxInt64
	}
	return purchaseTime + days*dayMillis
}

// associatedProduct finds the catalog entry for the first of the purchase's
// SKUs that is also a valid SKU. A product whose type matches the purchase's
// signature tag is preferred.
func associatedProduct(p Purchase, products []Product, validSKUs []string) (Product, bool) {
	purchaseType := p.Type()
	for _, sku := range p.SKUs {
		if !slices.Contains(validSKUs, sku) {
			continue
		}
		var fallback *Product
		for i := range products {
			if products[i].SKU != sku {
				continue
			}
			if purchaseType == "" || products[i].Type == purchaseType {
				return products[i], true
			}
			if fallback == nil {
				fallback = &products[i]
			}
		}
		if fallback != nil {
			return *fallback, true
		}
	}
	return Product{}, false
}
