package mcp

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/billingsim/adapter/cli"
	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 5 * time.Minute
)

var errNotInitialized = errors.New("billing simulator not initialized")

// resultOutput is the tool rendering of a simulator result.
type resultOutput struct {
	Code         int    `json:"code"`
	Status       string `json:"status"`
	DebugMessage string `json:"debug_message,omitempty"`
}

func toResultOutput(res domain.Result) resultOutput {
	return resultOutput{
		Code:         int(res.Code),
		Status:       res.Code.String(),
		DebugMessage: res.DebugMessage,
	}
}

func requireManager(app *cli.App) error {
	if app == nil || app.Manager == nil {
		return errNotInitialized
	}
	return nil
}

func requireStore(app *cli.App) error {
	if app == nil || app.Store == nil {
		return errNotInitialized
	}
	return nil
}

func requireStorefront(app *cli.App) error {
	if app == nil || app.Storefront == nil {
		return errNotInitialized
	}
	return nil
}

func waitTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultWaitTimeout
	}
	d := time.Duration(seconds) * time.Second
	if d > maxWaitTimeout {
		return maxWaitTimeout
	}
	return d
}
