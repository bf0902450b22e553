package domain

import "context"

// ProductRepository persists the simulated product catalog.
type ProductRepository interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	// PutProduct inserts the product or replaces the one with the same (SKU, Type).
	PutProduct(ctx context.Context, product Product) error
	// RemoveProduct removes every product with the given SKU.
	RemoveProduct(ctx context.Context, sku string) error
	ClearProducts(ctx context.Context) error
}

// PurchaseRepository persists simulated purchases keyed by purchase token.
type PurchaseRepository interface {
	// ListPurchases returns purchases whose signature tag matches productType.
	// An empty productType returns every purchase.
	ListPurchases(ctx context.Context, productType ProductType) ([]Purchase, error)
	// FindPurchaseByToken returns nil when no purchase has the token.
	FindPurchaseByToken(ctx context.Context, token string) (*Purchase, error)
	// AddPurchase stores the purchase, replacing any record with the same token.
	AddPurchase(ctx context.Context, purchase Purchase) error
	RemovePurchase(ctx context.Context, token string) error
	ClearPurchases(ctx context.Context) error
	// Acknowledge marks the purchase acknowledged. An absent token is a no-op.
	Acknowledge(ctx context.Context, token string) error
}

// Store is the record store used by the simulated client.
type Store interface {
	ProductRepository
	PurchaseRepository
}
