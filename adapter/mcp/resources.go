package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

// RegisterResources registers MCP resources that expose simulator records.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	app := deps.App

	srv.Resource("billingsim://products").
		Name("Products").
		Description("The simulated product catalog").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if err := requireStore(app); err != nil {
				return nil, err
			}
			products, err := app.Store.ListProducts(ctx, domain.ProductFilter{})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, products)
		})

	srv.Resource("billingsim://purchases").
		Name("Purchases").
		Description("Every stored purchase record").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if err := requireStore(app); err != nil {
				return nil, err
			}
			purchases, err := app.Store.ListPurchases(ctx, "")
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, purchases)
		})

	srv.Resource("billingsim://storefront/pending").
		Name("Pending purchase requests").
		Description("Purchase requests waiting for an operator decision").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if err := requireStorefront(app); err != nil {
				return nil, err
			}
			return jsonResource(uri, app.Storefront.Pending())
		})

	srv.Resource("billingsim://health").
		Name("Health").
		Description("Health of the record store, billing client and storefront").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.Health == nil {
				return nil, errNotInitialized
			}
			return jsonResource(uri, app.Health.GetOverallHealth(ctx))
		})

	return nil
}

func jsonResource(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
