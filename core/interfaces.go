package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// ============================================
// CREDENTIAL STORE PORT
// ============================================

// CredentialStore keeps named credentials with an expiry. Every Set replaces
// the whole value, and setting an empty value or a non-positive ttl deletes
// the entry. An expired entry is indistinguishable from a missing one: both
// return ErrCredentialNotFound.
type CredentialStore interface {
	Set(name, value string, ttl time.Duration) error
	Get(name string) (string, error)
	Delete(name string) error
	Clear() error
}

// Sealer protects credential values at rest in persistent stores.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// ============================================
// NAVIGATION PORT
// ============================================

// Navigator is the host's navigation stack: a browser tab, an HTTP response,
// or a terminal.
type Navigator interface {
	CurrentPath() string
	// Navigate moves to an in-portal path.
	Navigate(path string)
	// Redirect hands control to an external target (full navigation).
	Redirect(target string)
}

// ============================================
// BACKEND PORT (access layer)
// ============================================

// Backend performs JSON calls against the billing backend. A nil out
// discards the response body; a nil body sends none.
type Backend interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// PaymentLocator finds one payment record by id. It returns an error
// matching ErrNotFound when the id is absent.
type PaymentLocator interface {
	FindPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// ============================================
// SERVICES (for HTTP adapters and the CLI)
// ============================================

type SessionService interface {
	Login(ctx context.Context, assertion TelegramAssertion) (*AuthResponse, error)
	Refresh(ctx context.Context) (*AuthResponse, error)
	// RefreshIfExpiring refreshes only when the access credential expires
	// within the given window.
	RefreshIfExpiring(ctx context.Context, within time.Duration) (bool, error)
	AccessExpiry() (time.Time, bool)
	Logout(ctx context.Context)
	IsAuthenticated() bool
	Current() Session
}

type PromoService interface {
	Validate(ctx context.Context, code string) (Discount, error)
	Apply(ctx context.Context, intent *PurchaseIntent) (Discount, error)
}

type CheckoutService interface {
	Begin(ctx context.Context, intent *PurchaseIntent) (*CreatePaymentResponse, error)
	Resume(ctx context.Context, paymentID string) (CheckoutState, error)
	Abandon(ctx context.Context) error
	Cancel()
	Status() CheckoutStatus
}

type AccountService interface {
	User(ctx context.Context) (*User, error)
	Subscription(ctx context.Context) (*Subscription, error)
	Payments(ctx context.Context) ([]Payment, error)
	UserServers(ctx context.Context) ([]ServerConfig, error)
	Servers(ctx context.Context) ([]Server, error)
	ServerConfig(ctx context.Context, serverID string) (*ServerConfig, error)
	DeleteServerConfig(ctx context.Context, serverID string) error
	Overview(ctx context.Context) (*Overview, error)
}

// ============================================
// HTTP PORT
// ============================================

type HTTPAdapter interface {
	RegisterRoutes(p *Portal) error
}
