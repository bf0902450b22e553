package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlowRequest is handed to the storefront when a purchase flow is launched.
// The storefront answers with exactly one FlowResult on Channel.
type FlowRequest struct {
	ID               string            `json:"id"`
	Channel          string            `json:"channel"`
	Products         []Product         `json:"products"`
	DeveloperPayload map[string]string `json:"developer_payload,omitempty"`
	RequestedAt      time.Time         `json:"requested_at"`
}

// FlowResult is the outcome of a purchase flow as published on the channel.
type FlowResult struct {
	RequestID    string       `json:"request_id,omitempty"`
	Code         ResponseCode `json:"code"`
	DebugMessage string       `json:"debug_message,omitempty"`
	Purchases    []Purchase   `json:"purchases,omitempty"`
}

// Result returns the code and debug message as a Result.
func (r FlowResult) Result() Result {
	return Result{Code: r.Code, DebugMessage: r.DebugMessage}
}

// EncodeFlowResult serializes r for publishing.
func EncodeFlowResult(r FlowResult) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeFlowResult parses a published flow result.
// Unknown response codes are rejected as malformed.
func DecodeFlowResult(data []byte) (FlowResult, error) {
	var r FlowResult
	if len(data) == 0 {
		return r, fmt.Errorf("empty flow result")
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to decode flow result: %w", err)
	}
	if !r.Code.IsKnown() {
		return r, fmt.Errorf("unknown response code %d", int(r.Code))
	}
	return r, nil
}
