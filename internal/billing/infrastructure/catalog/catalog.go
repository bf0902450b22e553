// Package catalog loads simulated product catalogs from YAML files.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

// ErrEmptyCatalog is returned when a catalog file declares no products.
var ErrEmptyCatalog = errors.New("catalog declares no products")

// File is the on-disk catalog layout.
//
//	products:
//	  - sku: gold_monthly
//	    type: subs
//	    price: "$4.99"
//	    subscription_period: P1M
type File struct {
	Products []domain.Product `yaml:"products"`
}

// Parse decodes a catalog and validates every product.
// Product types accept the aliases understood by domain.ParseProductType.
func Parse(r io.Reader) ([]domain.Product, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCatalog
		}
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if len(file.Products) == 0 {
		return nil, ErrEmptyCatalog
	}

	products := make([]domain.Product, 0, len(file.Products))
	for i, p := range file.Products {
		t, err := domain.ParseProductType(string(p.Type))
		if err != nil {
			return nil, fmt.Errorf("product %d (%s): %w", i, p.SKU, err)
		}
		p.Type = t
		if p.CurrencyCode == "" {
			p.CurrencyCode = "USD"
		}
		if p.Title == "" {
			p.Title = p.SKU
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		if p.SubscriptionPeriod != "" {
			if _, err := domain.ParsePeriod(p.SubscriptionPeriod); err != nil {
				return nil, fmt.Errorf("product %s: subscription period: %w", p.SKU, err)
			}
		}
		if p.FreeTrialPeriod != "" {
			if _, err := domain.ParsePeriod(p.FreeTrialPeriod); err != nil {
				return nil, fmt.Errorf("product %s: free trial period: %w", p.SKU, err)
			}
		}
		products = append(products, p)
	}
	return products, nil
}

// LoadFile parses the catalog at path.
func LoadFile(path string) ([]domain.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Import loads the catalog at path and puts every product into repo.
// It returns the number of products written.
func Import(ctx context.Context, repo domain.ProductRepository, path string) (int, error) {
	products, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	for _, p := range products {
		if err := repo.PutProduct(ctx, p); err != nil {
			return 0, fmt.Errorf("failed to store product %s: %w", p.SKU, err)
		}
	}
	return len(products), nil
}
