package domain

import (
	"fmt"
	"slices"
	"strings"
)

// ProductType distinguishes one-time products from subscriptions.
// The string values match the store's wire format.
type ProductType string

const (
	// ProductTypeOneTime is a product bought once (and optionally consumed).
	ProductTypeOneTime ProductType = "inapp"
	// ProductTypeSubscription is a renewing product.
	ProductTypeSubscription ProductType = "subs"
)

// String returns the wire value of the product type.
func (t ProductType) String() string {
	return string(t)
}

// IsValid reports whether t is a known product type.
func (t ProductType) IsValid() bool {
	switch t {
	case ProductTypeOneTime, ProductTypeSubscription:
		return true
	default:
		return false
	}
}

// ParseProductType accepts the wire values as well as the long-form names
// used by the CLI ("one_time", "subscription").
func ParseProductType(s string) (ProductType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inapp", "one_time", "one-time", "onetime":
		return ProductTypeOneTime, nil
	case "subs", "subscription", "sub":
		return ProductTypeSubscription, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProductType, s)
	}
}

// Product describes a purchasable item in the simulated catalog.
// A product is identified by its (SKU, Type) pair.
type Product struct {
	SKU                string      `json:"productId" yaml:"sku"`
	Type               ProductType `json:"type" yaml:"type"`
	Price              string      `json:"price" yaml:"price"`
	PriceAmountMicros  int64       `json:"price_amount_micros" yaml:"price_amount_micros"`
	CurrencyCode       string      `json:"price_currency_code" yaml:"currency_code"`
	Title              string      `json:"title" yaml:"title"`
	Description        string      `json:"description" yaml:"description"`
	SubscriptionPeriod string      `json:"subscriptionPeriod,omitempty" yaml:"subscription_period,omitempty"`
	FreeTrialPeriod    string      `json:"freeTrialPeriod,omitempty" yaml:"free_trial_period,omitempty"`

	IntroductoryPrice             string `json:"introductoryPrice,omitempty" yaml:"introductory_price,omitempty"`
	IntroductoryPriceAmountMicros int64  `json:"introductoryPriceAmountMicros,omitempty" yaml:"introductory_price_amount_micros,omitempty"`
	IntroductoryPricePeriod       string `json:"introductoryPricePeriod,omitempty" yaml:"introductory_price_period,omitempty"`
	IntroductoryPriceCycles       int    `json:"introductoryPriceCycles,omitempty" yaml:"introductory_price_cycles,omitempty"`
}

// Validate checks the identity fields of the product.
func (p Product) Validate() error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: sku is required", ErrInvalidProduct)
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q for sku %s", ErrInvalidProduct, p.Type, p.SKU)
	}
	return nil
}

// SameIdentity reports whether p and other share the (SKU, Type) identity.
func (p Product) SameIdentity(other Product) bool {
	return p.SKU == other.SKU && p.Type == other.Type
}

// ProductFilter selects products from the store.
// An empty Type matches every type; a nil SKUs slice matches every SKU.
type ProductFilter struct {
	Type ProductType
	SKUs []string
}

// Matches reports whether the product passes the filter.
func (f ProductFilter) Matches(p Product) bool {
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if f.SKUs != nil && !slices.Contains(f.SKUs, p.SKU) {
		return false
	}
	return true
}
