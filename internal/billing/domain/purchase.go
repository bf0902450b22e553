package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// PurchaseState is the lifecycle state reported for a purchase.
type PurchaseState int

const (
	PurchaseStatePurchased PurchaseState = 0
	PurchaseStateCanceled  PurchaseState = 1
	PurchaseStatePending   PurchaseState = 2
)

// String returns the display name of the state.
func (s PurchaseState) String() string {
	switch s {
	case PurchaseStatePurchased:
		return "PURCHASED"
	case PurchaseStateCanceled:
		return "CANCELED"
	case PurchaseStatePending:
		return "PENDING"
	default:
		return fmt.Sprintf("PurchaseState(%d)", int(s))
	}
}

const debugSignaturePrefix = "debug-signature-"

// DebugSignature builds the simulated signature for a purchase of sku.
// The product type is encoded as the suffix so purchases can be partitioned by type.
func DebugSignature(sku string, productType ProductType) string {
	return debugSignaturePrefix + sku + "-" + string(productType)
}

// Purchase is a simulated purchase record.
// PurchaseToken uniquely identifies a purchase within the store.
type Purchase struct {
	OrderID          string
	PackageName      string
	SKUs             []string
	PurchaseTime     int64
	PurchaseToken    string
	Signature        string
	State            PurchaseState
	Acknowledged     bool
	AutoRenewing     *bool
	DeveloperPayload map[string]string
}

// Validate checks the invariants every stored purchase must satisfy.
func (p Purchase) Validate() error {
	if len(p.SKUs) == 0 {
		return fmt.Errorf("%w: at least one sku is required", ErrInvalidPurchase)
	}
	for _, sku := range p.SKUs {
		if strings.TrimSpace(sku) == "" {
			return fmt.Errorf("%w: blank sku", ErrInvalidPurchase)
		}
	}
	if strings.TrimSpace(p.PurchaseToken) == "" {
		return fmt.Errorf("%w: purchase token is required", ErrInvalidPurchase)
	}
	return nil
}

// IsAutoRenewing reports whether the purchase is flagged as auto-renewing.
// An absent flag counts as false.
func (p Purchase) IsAutoRenewing() bool {
	return p.AutoRenewing != nil && *p.AutoRenewing
}

// HasAnySKU reports whether the purchase covers at least one of skus.
func (p Purchase) HasAnySKU(skus []string) bool {
	for _, sku := range p.SKUs {
		if slices.Contains(skus, sku) {
			return true
		}
	}
	return false
}

// Type derives the product type from the signature tag.
// It returns "" when the signature carries no known type suffix.
func (p Purchase) Type() ProductType {
	for _, t := range []ProductType{ProductTypeOneTime, ProductTypeSubscription} {
		if strings.HasSuffix(p.Signature, "-"+string(t)) {
			return t
		}
	}
	return ""
}

// Clone returns a deep copy of the purchase.
func (p Purchase) Clone() Purchase {
	c := p
	c.SKUs = slices.Clone(p.SKUs)
	if p.AutoRenewing != nil {
		v := *p.AutoRenewing
		c.AutoRenewing = &v
	}
	if len(p.DeveloperPayload) > 0 {
		c.DeveloperPayload = maps.Clone(p.DeveloperPayload)
	} else {
		c.DeveloperPayload = nil
	}
	return c
}

// Bool returns a pointer to v, for optional flags such as AutoRenewing.
func Bool(v bool) *bool {
	return &v
}

type purchaseData struct {
	OrderID          string            `json:"orderId,omitempty"`
	PackageName      string            `json:"packageName,omitempty"`
	ProductIDs       []string          `json:"productIds"`
	PurchaseTime     int64             `json:"purchaseTime"`
	PurchaseToken    string            `json:"purchaseToken"`
	PurchaseState    PurchaseState     `json:"purchaseState"`
	Acknowledged     bool              `json:"acknowledged"`
	AutoRenewing     *bool             `json:"autoRenewing,omitempty"`
	DeveloperPayload map[string]string `json:"developerPayload,omitempty"`
}

type purchaseRecord struct {
	Purchase  purchaseData `json:"purchase"`
	Signature string       `json:"signature"`
}

// MarshalJSON encodes the purchase as {"purchase":{...},"signature":"..."}.
// Absent optional fields are omitted rather than written as null.
func (p Purchase) MarshalJSON() ([]byte, error) {
	rec := purchaseRecord{
		Purchase: purchaseData{
			OrderID:       p.OrderID,
			PackageName:   p.PackageName,
			ProductIDs:    p.SKUs,
			PurchaseTime:  p.PurchaseTime,
			PurchaseToken: p.PurchaseToken,
			PurchaseState: p.State,
			Acknowledged:  p.Acknowledged,
			AutoRenewing:  p.AutoRenewing,
		},
		Signature: p.Signature,
	}
	if len(p.DeveloperPayload) > 0 {
		rec.Purchase.DeveloperPayload = p.DeveloperPayload
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes the envelope written by MarshalJSON.
func (p *Purchase) UnmarshalJSON(data []byte) error {
	var rec purchaseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*p = Purchase{
		OrderID:          rec.Purchase.OrderID,
		PackageName:      rec.Purchase.PackageName,
		SKUs:             rec.Purchase.ProductIDs,
		PurchaseTime:     rec.Purchase.PurchaseTime,
		PurchaseToken:    rec.Purchase.PurchaseToken,
		Signature:        rec.Signature,
		State:            rec.Purchase.PurchaseState,
		Acknowledged:     rec.Purchase.Acknowledged,
		AutoRenewing:     rec.Purchase.AutoRenewing,
		DeveloperPayload: rec.Purchase.DeveloperPayload,
	}
	return nil
}
