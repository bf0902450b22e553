package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchase_JSONOmitsAbsentOptionalFields(t *testing.T) {
	p := Purchase{
		SKUs:          []string{"com.example.sku"},
		PurchaseTime:  1700000000000,
		PurchaseToken: "token-1",
		Signature:     DebugSignature("com.example.sku", ProductTypeOneTime),
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw struct {
		Purchase  map[string]any `json:"purchase"`
		Signature string         `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "debug-signature-com.example.sku-inapp", raw.Signature)

	inner := raw.Purchase
	for _, key := range []string{"orderId", "packageName", "autoRenewing", "developerPayload"} {
		assert.NotContains(t, inner, key)
	}
	assert.Equal(t, "token-1", inner["purchaseToken"])
	assert.Equal(t, false, inner["acknowledged"])

	var decoded Purchase
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, p, decoded)
	assert.Nil(t, decoded.AutoRenewing)
}

func TestPurchase_JSONRoundTripWithOptionalFields(t *testing.T) {
	p := Purchase{
		OrderID:          "com.example.sub..0",
		PackageName:      "com.example.app",
		SKUs:             []string{"com.example.sub", "com.example.addon"},
		PurchaseTime:     1700000000000,
		PurchaseToken:    "token-2",
		Signature:        DebugSignature("com.example.sub", ProductTypeSubscription),
		State:            PurchaseStatePending,
		Acknowledged:     true,
		AutoRenewing:     Bool(false),
		DeveloperPayload: map[string]string{"campaign": "spring"},
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"autoRenewing":false`)

	var decoded Purchase
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, p, decoded)
}

func TestPurchase_TypeFromSignature(t *testing.T) {
	assert.Equal(t, ProductTypeSubscription, Purchase{Signature: "debug-signature-a.b-subs"}.Type())
	assert.Equal(t, ProductTypeOneTime, Purchase{Signature: "debug-signature-a.b-inapp"}.Type())
	assert.Equal(t, ProductType(""), Purchase{Signature: "real-signature"}.Type())
}

func TestPurchase_Validate(t *testing.T) {
	assert.NoError(t, Purchase{SKUs: []string{"a"}, PurchaseToken: "t"}.Validate())
	assert.ErrorIs(t, Purchase{PurchaseToken: "t"}.Validate(), ErrInvalidPurchase)
	assert.ErrorIs(t, Purchase{SKUs: []string{" "}, PurchaseToken: "t"}.Validate(), ErrInvalidPurchase)
	assert.ErrorIs(t, Purchase{SKUs: []string{"a"}, PurchaseToken: "  "}.Validate(), ErrInvalidPurchase)
}

func TestPurchase_CloneIsIndependent(t *testing.T) {
	p := Purchase{
		SKUs:             []string{"a"},
		PurchaseToken:    "t",
		AutoRenewing:     Bool(true),
		DeveloperPayload: map[string]string{"k": "v"},
	}
	c := p.Clone()
	c.SKUs[0] = "b"
	*c.AutoRenewing = false
	c.DeveloperPayload["k"] = "changed"

	assert.Equal(t, "a", p.SKUs[0])
	assert.True(t, *p.AutoRenewing)
	assert.Equal(t, "v", p.DeveloperPayload["k"])
}

func TestParseProductType(t *testing.T) {
	for in, want := range map[string]ProductType{
		"inapp":        ProductTypeOneTime,
		"ONE_TIME":     ProductTypeOneTime,
		"subs":         ProductTypeSubscription,
		"subscription": ProductTypeSubscription,
	} {
		got, err := ParseProductType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseProductType("")
	assert.ErrorIs(t, err, ErrInvalidProductType)
}

func TestProductFilter_Matches(t *testing.T) {
	p := Product{SKU: "a", Type: ProductTypeSubscription}

	assert.True(t, ProductFilter{}.Matches(p))
	assert.True(t, ProductFilter{Type: ProductTypeSubscription, SKUs: []string{"a"}}.Matches(p))
	assert.False(t, ProductFilter{Type: ProductTypeOneTime}.Matches(p))
	assert.False(t, ProductFilter{SKUs: []string{}}.Matches(p))
	assert.False(t, ProductFilter{SKUs: []string{"b"}}.Matches(p))
}

func TestResponseCode_String(t *testing.T) {
	assert.Equal(t, "ITEM_NOT_OWNED", ResponseItemNotOwned.String())
	assert.Equal(t, "ResponseCode(42)", ResponseCode(42).String())
	assert.Equal(t, "DEVELOPER_ERROR: blank token", NewResultf(ResponseDeveloperError, "blank token").String())
}
