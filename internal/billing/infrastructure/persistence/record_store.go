package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore"
)

// Partition keys in the key/value surface.
const (
	ProductsKey  = "products"
	PurchasesKey = "purchases"
)

// RecordStore implements domain.Store as two JSON arrays kept under the
// ProductsKey and PurchasesKey entries of a kvstore.Store.
// Every mutation is a read-modify-write of one whole partition, serialized
// per partition.
type RecordStore struct {
	kv     kvstore.Store
	logger *slog.Logger

	productsMu  sync.Mutex
	purchasesMu sync.Mutex
}

// NewRecordStore creates a record store over kv.
func NewRecordStore(kv kvstore.Store, logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{kv: kv, logger: logger}
}

// ListProducts returns the stored products matching filter, in insertion order.
func (s *RecordStore) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.productsMu.Lock()
	defer s.productsMu.Unlock()

	products, err := s.loadProducts(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if filter.Matches(p) {
			result = append(result, p)
		}
	}
	return result, nil
}

// PutProduct inserts the product or replaces the one with the same (SKU, Type).
func (s *RecordStore) PutProduct(ctx context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}

	s.productsMu.Lock()
	defer s.productsMu.Unlock()

	products, err := s.loadProducts(ctx)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(products, product.SameIdentity)
	if idx >= 0 {
		products[idx] = product
	} else {
		products = append(products, product)
	}
	return s.save(ctx, ProductsKey, products)
}

// RemoveProduct removes every product with the given SKU.
func (s *RecordStore) RemoveProduct(ctx context.Context, sku string) error {
	s.productsMu.Lock()
	defer s.productsMu.Unlock()

	products, err := s.loadProducts(ctx)
	if err != nil {
		return err
	}

	kept := slices.DeleteFunc(products, func(p domain.Product) bool {
		return p.SKU == sku
	})
	return s.save(ctx, ProductsKey, kept)
}

// ClearProducts removes the products partition.
func (s *RecordStore) ClearProducts(ctx context.Context) error {
	s.productsMu.Lock()
	defer s.productsMu.Unlock()

	if err := s.kv.Delete(ctx, ProductsKey); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}
	return nil
}

// ListPurchases returns purchases whose signature tag matches productType.
// An empty productType returns every purchase.
func (s *RecordStore) ListPurchases(ctx context.Context, productType domain.ProductType) ([]domain.Purchase, error) {
	s.purchasesMu.Lock()
	defer s.purchasesMu.Unlock()

	purchases, err := s.loadPurchases(ctx)
	if err != nil {
		return nil, err
	}
	if productType == "" {
		return purchases, nil
	}

	result := make([]domain.Purchase, 0, len(purchases))
	for _, p := range purchases {
		if p.Type() == productType {
			result = append(result, p)
		}
	}
	return result, nil
}

// FindPurchaseByToken returns nil when no purchase has the token.
func (s *RecordStore) FindPurchaseByToken(ctx context.Context, token string) (*domain.Purchase, error) {
	s.purchasesMu.Lock()
	defer s.purchasesMu.Unlock()

	purchases, err := s.loadPurchases(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range purchases {
		if p.PurchaseToken == token {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

// AddPurchase stores the purchase, replacing any record with the same token.
func (s *RecordStore) AddPurchase(ctx context.Context, purchase domain.Purchase) error {
	if err := purchase.Validate(); err != nil {
		return err
	}

	s.purchasesMu.Lock()
	defer s.purchasesMu.Unlock()

	purchases, err := s.loadPurchases(ctx)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(purchases, func(p domain.Purchase) bool {
		return p.PurchaseToken == purchase.PurchaseToken
	})
	if idx >= 0 {
		purchases[idx] = purchase.Clone()
	} else {
		purchases = append(purchases, purchase.Clone())
	}
	return s.save(ctx, PurchasesKey, purchases)
}

// RemovePurchase removes the purchase with the token, if any.
func (s *RecordStore) RemovePurchase(ctx context.Context, token string) error {
	s.purchasesMu.Lock()
	defer s.purchasesMu.Unlock()

	purchases, err := s.loadPurchases(ctx)
	if err != nil {
		return err
	}

	kept := slices.DeleteFunc(purchases, func(p domain.Purchase) bool {
		return p.PurchaseToken == token
	})
	return s.save(ctx, PurchasesKey, kept)
}

// ClearPurchases removes the purchases partition.
func (s *RecordStore) ClearPurchases(ctx context.Context) error {
	s.purchasesMu.Lock()
	defer s.purchasesMu.Unlock()

	if err := s.kv.Delete(ctx, PurchasesKey); err != nil {
		return fmt.Errorf("failed to clear purchases: %w", err)
	}
	return nil
}

// Acknowledge marks the purchase acknowledged. An absent token is a no-op.
func (s *RecordStore) Acknowledge(ctx context.Context, token string) error {
	s.purchasesMu.Lock()
	defer s.purchasesMu.Unlock()

	purchases, err := s.loadPurchases(ctx)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(purchases, func(p domain.Purchase) bool {
		return p.PurchaseToken == token
	})
	if idx < 0 {
		s.logger.Debug("acknowledge of unknown purchase ignored", "purchase_token", token)
		return nil
	}
	if purchases[idx].Acknowledged {
		return nil
	}

	acked := purchases[idx].Clone()
	acked.Acknowledged = true
	purchases[idx] = acked
	return s.save(ctx, PurchasesKey, purchases)
}

func (s *RecordStore) loadProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := s.load(ctx, ProductsKey, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *RecordStore) loadPurchases(ctx context.Context) ([]domain.Purchase, error) {
	var purchases []domain.Purchase
	if err := s.load(ctx, PurchasesKey, &purchases); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *RecordStore) load(ctx context.Context, key string, into any) error {
	raw, err := kvstore.GetOrDefault(ctx, s.kv, key, "")
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *RecordStore) save(ctx context.Context, key string, records any) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if string(data) == "null" {
		data = []byte("[]")
	}
	if err := s.kv.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	s.logger.Debug("partition written", "partition", key, "bytes", len(data))
	return nil
}

var _ domain.Store = (*RecordStore)(nil)
