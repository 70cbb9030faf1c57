package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Failure kinds. Every *APIError matches exactly one of these with errors.Is.
var (
	ErrNetworkUnreachable = errors.New("network unreachable") // no response received
	ErrAuthorityRejected  = errors.New("authority rejected")  // 401, session is cleared
	ErrRequestRejected    = errors.New("request rejected")    // other 4xx
	ErrBackendFault       = errors.New("backend fault")       // 5xx
	ErrNotFound           = errors.New("not found")           // polled payment absent from history
)

// Credential store errors
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrSealerRequired     = errors.New("sealer is required")
)

// Session errors
var (
	ErrInvalidAssertion  = errors.New("identity assertion requires id and hash")
	ErrMissingCredential = errors.New("backend returned no access credential")
)

// Purchase errors
var (
	ErrInvalidPlan         = errors.New("unknown plan")
	ErrInvalidDeviceCount  = errors.New("device count out of range")
	ErrInvalidDiscount     = errors.New("invalid discount")
	ErrPromoCodeRequired   = errors.New("promo code is required")
	ErrPromoInvalid        = errors.New("promo code is not valid")
	ErrStaleDiscount       = errors.New("promo code changed during validation")
	ErrNoSubscription      = errors.New("no active subscription")
	ErrCheckoutInProgress  = errors.New("checkout already in progress")
	ErrInvalidTransition   = errors.New("invalid checkout transition")
	ErrInvalidPaymentReply = errors.New("backend returned no payment id or payment url")
	ErrMissingPaymentID    = errors.New("payment id is missing")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrPollExhausted       = errors.New("payment not resolved within attempt budget")
	ErrPollCancelled       = errors.New("payment polling cancelled")
)

// Config errors
var (
	ErrBaseURLRequired = errors.New("backend base url is required")
	ErrSecretRequired  = errors.New("secret is required")
	ErrSecretTooShort  = errors.New("secret too short")
)

const (
	CodeNetworkError   = "NETWORK_ERROR"
	CodeNoRefreshToken = "NO_REFRESH_TOKEN"
)

// APIError is the normalized failure raised by the access layer for every
// non-2xx response and every transport failure.
type APIError struct {
	Status  int      `json:"status"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`

	// Err is the transport cause for network failures.
	Err error `json:"-"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	if e.Status > 0 {
		fmt.Fprintf(&b, "%d ", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, "%s: ", e.Code)
	}
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Details, "; "))
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Kind returns the failure kind sentinel for the status.
func (e *APIError) Kind() error {
	switch {
	case e.Status == 0:
		return ErrNetworkUnreachable
	case e.Status == http.StatusUnauthorized:
		return ErrAuthorityRejected
	case e.Status >= 400 && e.Status < 500:
		return ErrRequestRejected
	default:
		return ErrBackendFault
	}
}

func (e *APIError) Is(target error) bool {
	return e.Kind() == target
}

// StatusOf returns the HTTP status carried by err, or -1 when err is not an
// *APIError.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return -1
}
