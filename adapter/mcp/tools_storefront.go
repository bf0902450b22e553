package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
	storefrontApp "github.com/felixgeelhaar/billingsim/internal/storefront/application"
)

type requestInput struct {
	RequestID string `json:"request_id" jsonschema:"required"`
}

type failInput struct {
	RequestID string `json:"request_id" jsonschema:"required"`
	Code      int    `json:"code" jsonschema:"required"`
	Message   string `json:"message,omitempty"`
}

type modeInput struct {
	Mode string `json:"mode" jsonschema:"required"`
}

type pendingOutput struct {
	Mode     string                         `json:"mode"`
	Requests []storefrontApp.PendingRequest `json:"requests"`
}

type answeredOutput struct {
	RequestID string `json:"request_id"`
	Answer    string `json:"answer"`
}

func registerStorefrontTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("storefront.pending").
		Description("List purchase requests waiting for an operator decision").
		Handler(func(ctx context.Context, input struct{}) (pendingOutput, error) {
			if err := requireStorefront(app); err != nil {
				return pendingOutput{}, err
			}
			return pendingOutput{
				Mode:     string(app.Storefront.Mode()),
				Requests: app.Storefront.Pending(),
			}, nil
		})

	srv.Tool("storefront.approve").
		Description("Approve a pending purchase request").
		Handler(func(ctx context.Context, input requestInput) (answeredOutput, error) {
			if err := requireStorefront(app); err != nil {
				return answeredOutput{}, err
			}
			if err := app.Storefront.Approve(ctx, input.RequestID); err != nil {
				return answeredOutput{}, err
			}
			return answeredOutput{RequestID: input.RequestID, Answer: "approved"}, nil
		})

	srv.Tool("storefront.cancel").
		Description("Cancel a pending purchase request as the user").
		Handler(func(ctx context.Context, input requestInput) (answeredOutput, error) {
			if err := requireStorefront(app); err != nil {
				return answeredOutput{}, err
			}
			if err := app.Storefront.Cancel(ctx, input.RequestID); err != nil {
				return answeredOutput{}, err
			}
			return answeredOutput{RequestID: input.RequestID, Answer: "canceled"}, nil
		})

	srv.Tool("storefront.fail").
		Description("Answer a pending purchase request with a failure response code").
		Handler(func(ctx context.Context, input failInput) (answeredOutput, error) {
			if err := requireStorefront(app); err != nil {
				return answeredOutput{}, err
			}
			code := domain.ResponseCode(input.Code)
			if err := app.Storefront.Fail(ctx, input.RequestID, code, input.Message); err != nil {
				return answeredOutput{}, err
			}
			return answeredOutput{RequestID: input.RequestID, Answer: code.String()}, nil
		})

	srv.Tool("storefront.mode").
		Description("Switch how new purchase requests are answered (approve, cancel, manual)").
		Handler(func(ctx context.Context, input modeInput) (map[string]any, error) {
			if err := requireStorefront(app); err != nil {
				return nil, err
			}
			if input.Mode == "" {
				return nil, errors.New("mode is required")
			}
			mode, err := storefrontApp.ParseMode(input.Mode)
			if err != nil {
				return nil, fmt.Errorf("set storefront mode: %w", err)
			}
			app.Storefront.SetMode(mode)
			return map[string]any{"mode": string(mode)}, nil
		})

	return nil
}
