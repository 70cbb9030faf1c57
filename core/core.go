package core

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// SessionConfig holds credential lifetimes.
type SessionConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// LogoutPath is where Logout navigates to.
	LogoutPath string
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		AccessTTL:  24 * time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		LogoutPath: DefaultLoginPath,
	}
}

// PaymentConfig tunes confirmation polling. Interval and attempt budget are
// caller-supplied; nothing depends on a specific value.
type PaymentConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	ConfirmDelay time.Duration

	// SelectionPath is where Abandon returns to; LandingPath is where a
	// confirmed payment goes.
	SelectionPath string
	LandingPath   string
}

func DefaultPaymentConfig() PaymentConfig {
	return PaymentConfig{
		PollInterval:  2 * time.Second,
		MaxAttempts:   5,
		ConfirmDelay:  3 * time.Second,
		SelectionPath: DefaultSelectionPath,
		LandingPath:   DefaultLandingPath,
	}
}

type Config struct {
	BaseURL string

	Store CredentialStore

	// Optional config
	HTTP           HTTPAdapter
	Navigator      Navigator
	SessionConfig  *SessionConfig
	PaymentConfig  *PaymentConfig
	Catalog        Catalog
	Routes         *RouteTable
	MaxDevices     int
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	UserAgent      string
	Logger         *zerolog.Logger
}

type Portal struct {
	Backend  Backend
	Session  SessionService
	Promo    PromoService
	Checkout CheckoutService
	Account  AccountService

	Store        CredentialStore
	Catalog      Catalog
	Routes       RouteTable
	MaxDevices   int
	ConfirmDelay time.Duration
	Logger       zerolog.Logger
}

// NewIntent starts a purchase intent on the default plan with one device.
func (p *Portal) NewIntent() *PurchaseIntent {
	intent := &PurchaseIntent{planID: DefaultPlan, devices: 1, maxDevices: p.MaxDevices}
	if p.MaxDevices == 0 {
		intent.maxDevices = DefaultMaxDevices
	}
	return intent
}

// Quote prices intent against the portal's catalog.
func (p *Portal) Quote(intent *PurchaseIntent) (Quote, error) {
	return intent.Quote(p.Catalog)
}
