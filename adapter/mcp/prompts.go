package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common simulator workflows.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("purchase_walkthrough").
		Description("Walk through a purchase flow end to end, from catalog to entitlement.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			sku := args["sku"]
			if sku == "" {
				sku = "<sku>"
			}
			return &mcp.PromptResult{
				Description: "Purchase walkthrough",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`Exercise the billing simulator for %s:

1. Read billingsim://products and confirm the product exists
2. Call billing.buy with the sku
3. If the result is pending, list storefront.pending and approve the request
4. Call billing.purchases to find the new purchase token
5. Call billing.entitlement with the sku and report whether it entitles the app
6. Acknowledge the purchase with billing.acknowledge

Report every response code you see along the way.`, sku),
						},
					},
				},
			}, nil
		})

	return nil
}
