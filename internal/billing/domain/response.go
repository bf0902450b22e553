package domain

import "fmt"

// ResponseCode is the outcome of a simulated billing operation.
// Values follow the numbering used by the real billing service.
type ResponseCode int

const (
	ResponseFeatureNotSupported ResponseCode = -2
	ResponseServiceDisconnected ResponseCode = -1
	ResponseOK                  ResponseCode = 0
	ResponseUserCanceled        ResponseCode = 1
	ResponseItemUnavailable     ResponseCode = 4
	ResponseDeveloperError      ResponseCode = 5
	ResponseError               ResponseCode = 6
	ResponseItemAlreadyOwned    ResponseCode = 7
	ResponseItemNotOwned        ResponseCode = 8
)

var responseNames = map[ResponseCode]string{
	ResponseFeatureNotSupported: "FEATURE_NOT_SUPPORTED",
	ResponseServiceDisconnected: "SERVICE_DISCONNECTED",
	ResponseOK:                  "OK",
	ResponseUserCanceled:        "USER_CANCELED",
	ResponseItemUnavailable:     "ITEM_UNAVAILABLE",
	ResponseDeveloperError:      "DEVELOPER_ERROR",
	ResponseError:               "ERROR",
	ResponseItemAlreadyOwned:    "ITEM_ALREADY_OWNED",
	ResponseItemNotOwned:        "ITEM_NOT_OWNED",
}

// String returns the canonical upper-case name of the code.
func (c ResponseCode) String() string {
	if name, ok := responseNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ResponseCode(%d)", int(c))
}

// IsKnown reports whether c is one of the defined response codes.
func (c ResponseCode) IsKnown() bool {
	_, ok := responseNames[c]
	return ok
}

// Result carries a response code and an optional debug message.
type Result struct {
	Code         ResponseCode `json:"code"`
	DebugMessage string       `json:"debug_message,omitempty"`
}

// NewResult returns a Result with the given code.
func NewResult(code ResponseCode) Result {
	return Result{Code: code}
}

// NewResultf returns a Result with a formatted debug message.
func NewResultf(code ResponseCode, format string, args ...any) Result {
	return Result{Code: code, DebugMessage: fmt.Sprintf(format, args...)}
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Code == ResponseOK
}

func (r Result) String() string {
	if r.DebugMessage == "" {
		return r.Code.String()
	}
	return r.Code.String() + ": " + r.DebugMessage
}
