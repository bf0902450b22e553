package application

import (
	"context"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

// StateListener observes the client's connection lifecycle.
type StateListener interface {
	// OnSetupFinished reports the outcome of StartConnection.
	OnSetupFinished(result domain.Result)
	// OnServiceDisconnected is called once when a connected client is closed.
	OnServiceDisconnected()
}

// PurchasesUpdatedListener receives purchase-flow outcomes.
type PurchasesUpdatedListener interface {
	OnPurchasesUpdated(result domain.Result, purchases []domain.Purchase)
}

// StateListenerFuncs adapts plain functions to StateListener. Nil fields are skipped.
type StateListenerFuncs struct {
	SetupFinished       func(domain.Result)
	ServiceDisconnected func()
}

func (f StateListenerFuncs) OnSetupFinished(result domain.Result) {
	if f.SetupFinished != nil {
		f.SetupFinished(result)
	}
}

func (f StateListenerFuncs) OnServiceDisconnected() {
	if f.ServiceDisconnected != nil {
		f.ServiceDisconnected()
	}
}

// PurchasesUpdatedFunc adapts a function to PurchasesUpdatedListener.
type PurchasesUpdatedFunc func(result domain.Result, purchases []domain.Purchase)

func (f PurchasesUpdatedFunc) OnPurchasesUpdated(result domain.Result, purchases []domain.Purchase) {
	f(result, purchases)
}

// PurchaseFlowUI is the external storefront screen that resolves a purchase
// attempt and later publishes its outcome on the request's channel.
type PurchaseFlowUI interface {
	RequestPurchase(ctx context.Context, req domain.FlowRequest) error
}
