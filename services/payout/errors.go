package payout

import "fmt"

// Provider and client error codes.
const (
	CodeInsufficientFunds  = "insufficient_funds"
	CodeAccountInactive    = "account_inactive"
	CodeInvalidDestination = "invalid_destination"
	CodeUnknownUser        = "unknown_user"
	CodeInvalidLedger      = "invalid_ledger"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeRateLimited        = "rate_limited"
	CodeServerError        = "server_error"
	CodeTransport          = "transport"
	CodeBadResponse        = "bad_response"
	CodeInvalidRequest     = "invalid_request"
)

var permanentCodes = map[string]bool{
	CodeInsufficientFunds:  true,
	CodeAccountInactive:    true,
	CodeInvalidDestination: true,
	CodeUnknownUser:        true,
	CodeInvalidLedger:      true,
	CodeUnauthorized:       true,
	CodeForbidden:          true,
	CodeInvalidRequest:     true,
}

// Error is a failed transfer as reported by the provider or the transport.
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("payout %s: %s", e.Code, e.Message)
	if e.HTTPStatus != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.HTTPStatus)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying the same transfer cannot succeed without operator action.
func (e *Error) Permanent() bool {
	return permanentCodes[e.Code]
}
