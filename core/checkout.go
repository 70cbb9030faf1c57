package core

import "time"

// CheckoutState is the state of one checkout attempt:
//
//	Idle → Creating → Redirected → Polling → Confirmed | Failed | Abandoned
type CheckoutState string

const (
	CheckoutIdle       CheckoutState = "idle"
	CheckoutCreating   CheckoutState = "creating"
	CheckoutRedirected CheckoutState = "redirected"
	CheckoutPolling    CheckoutState = "polling"
	CheckoutConfirmed  CheckoutState = "confirmed"
	CheckoutFailed     CheckoutState = "failed"
	CheckoutAbandoned  CheckoutState = "abandoned"
)

// CheckoutStatus is a snapshot of the orchestrator.
type CheckoutStatus struct {
	State     CheckoutState `json:"state"`
	AttemptID string        `json:"attemptId,omitempty"`
	PaymentID string        `json:"paymentId,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Settled reports whether no checkout step is in flight, so a new attempt
// may start.
func (s CheckoutState) Settled() bool {
	switch s {
	case CheckoutIdle, CheckoutConfirmed, CheckoutFailed, CheckoutAbandoned:
		return true
	default:
		return false
	}
}
