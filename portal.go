package portal

import (
	"github.com/rs/zerolog"

	"github.com/outlivion/portal/client"
	"github.com/outlivion/portal/core"
	"github.com/outlivion/portal/services"
)

// interfaces
type (
	CredentialStore = core.CredentialStore
	Sealer          = core.Sealer
	Navigator       = core.Navigator
	Backend         = core.Backend
	PaymentLocator  = core.PaymentLocator

	HTTPAdapter = core.HTTPAdapter

	SessionService  = core.SessionService
	PromoService    = core.PromoService
	CheckoutService = core.CheckoutService
	AccountService  = core.AccountService
)

// structs
type (
	Portal        = core.Portal
	Config        = core.Config
	SessionConfig = core.SessionConfig
	PaymentConfig = core.PaymentConfig
	StoreConfig   = core.StoreConfig
	RouteTable    = core.RouteTable
	Catalog       = core.Catalog
)

type (
	TelegramAssertion = core.TelegramAssertion
	User              = core.User
	Subscription      = core.Subscription
	Payment           = core.Payment
	Server            = core.Server
	ServerConfig      = core.ServerConfig
	PurchaseIntent    = core.PurchaseIntent
	Quote             = core.Quote
	Discount          = core.Discount
	CheckoutState     = core.CheckoutState
	CheckoutStatus    = core.CheckoutStatus
	APIError          = core.APIError
	StoreStats        = core.StoreStats
)

// Constructors & helpers (convenience re-exports)
var (
	NewInMemoryStore     = core.NewInMemoryStore
	NewPurchaseIntent    = core.NewPurchaseIntent
	DefaultSessionConfig = core.DefaultSessionConfig
	DefaultPaymentConfig = core.DefaultPaymentConfig
	DefaultRouteTable    = core.DefaultRouteTable
	DefaultCatalog       = core.DefaultCatalog
	WithNavigator        = core.WithNavigator
)

var (
	ErrNetworkUnreachable = core.ErrNetworkUnreachable
	ErrAuthorityRejected  = core.ErrAuthorityRejected
	ErrRequestRejected    = core.ErrRequestRejected
	ErrBackendFault       = core.ErrBackendFault
	ErrNotFound           = core.ErrNotFound
)

var (
	ErrCredentialNotFound = core.ErrCredentialNotFound
	ErrSealerRequired     = core.ErrSealerRequired
	ErrInvalidAssertion   = core.ErrInvalidAssertion
	ErrMissingCredential  = core.ErrMissingCredential
)

var (
	ErrInvalidPlan         = core.ErrInvalidPlan
	ErrInvalidDeviceCount  = core.ErrInvalidDeviceCount
	ErrPromoCodeRequired   = core.ErrPromoCodeRequired
	ErrPromoInvalid        = core.ErrPromoInvalid
	ErrStaleDiscount       = core.ErrStaleDiscount
	ErrNoSubscription      = core.ErrNoSubscription
	ErrCheckoutInProgress  = core.ErrCheckoutInProgress
	ErrInvalidTransition   = core.ErrInvalidTransition
	ErrInvalidPaymentReply = core.ErrInvalidPaymentReply
	ErrMissingPaymentID    = core.ErrMissingPaymentID
	ErrPaymentFailed       = core.ErrPaymentFailed
	ErrPollExhausted       = core.ErrPollExhausted
	ErrPollCancelled       = core.ErrPollCancelled
)

var (
	ErrBaseURLRequired = core.ErrBaseURLRequired
	ErrSecretRequired  = core.ErrSecretRequired
	ErrSecretTooShort  = core.ErrSecretTooShort
)

func New(config Config) (*Portal, error) {
	if config.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}

	// Set Defaults

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	store := config.Store
	if store == nil {
		store = NewInMemoryStore(StoreConfig{})
	}

	navigator := config.Navigator
	if navigator == nil {
		navigator = core.NopNavigator{}
	}

	routes := DefaultRouteTable()
	if config.Routes != nil {
		routes = *config.Routes
	}
	if routes.LoginPath == "" {
		routes.LoginPath = core.DefaultLoginPath
	}
	if routes.LandingPath == "" {
		routes.LandingPath = core.DefaultLandingPath
	}

	sessionConfig := DefaultSessionConfig()
	if config.SessionConfig != nil {
		sessionConfig = mergeSessionConfig(*config.SessionConfig, sessionConfig)
	}

	paymentConfig := DefaultPaymentConfig()
	if config.PaymentConfig != nil {
		paymentConfig = mergePaymentConfig(*config.PaymentConfig, paymentConfig)
	}

	catalog := config.Catalog
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}

	maxDevices := config.MaxDevices
	if maxDevices == 0 {
		maxDevices = core.DefaultMaxDevices
	}

	backend, err := client.New(client.Config{
		BaseURL:    config.BaseURL,
		Store:      store,
		Timeout:    config.RequestTimeout,
		LoginPath:  routes.LoginPath,
		Navigator:  navigator,
		HTTPClient: config.HTTPClient,
		UserAgent:  config.UserAgent,
		Logger:     logger.With().Str("component", "client").Logger(),
	})
	if err != nil {
		return nil, err
	}

	p := &Portal{
		Backend: backend,
		Session: services.NewSessionManager(
			sessionConfig,
			store,
			backend,
			navigator,
			logger.With().Str("component", "session").Logger(),
		),
		Promo: services.NewPromoValidator(
			backend,
			logger.With().Str("component", "promo").Logger(),
		),
		Checkout: services.NewPaymentOrchestrator(
			paymentConfig,
			backend,
			services.NewHistoryLocator(backend),
			navigator,
			logger.With().Str("component", "checkout").Logger(),
		),
		Account: services.NewAccountReader(
			backend,
			navigator,
			paymentConfig.SelectionPath,
			logger.With().Str("component", "account").Logger(),
		),
		Store:        store,
		Catalog:      catalog,
		Routes:       routes,
		MaxDevices:   maxDevices,
		ConfirmDelay: paymentConfig.ConfirmDelay,
		Logger:       logger,
	}

	if config.HTTP != nil {
		if err := config.HTTP.RegisterRoutes(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func mergeSessionConfig(c, defaults SessionConfig) SessionConfig {
	if c.AccessTTL <= 0 {
		c.AccessTTL = defaults.AccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = defaults.RefreshTTL
	}
	if c.LogoutPath == "" {
		c.LogoutPath = defaults.LogoutPath
	}
	return c
}

func mergePaymentConfig(c, defaults PaymentConfig) PaymentConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.ConfirmDelay < 0 {
		c.ConfirmDelay = defaults.ConfirmDelay
	}
	if c.SelectionPath == "" {
		c.SelectionPath = defaults.SelectionPath
	}
	if c.LandingPath == "" {
		c.LandingPath = defaults.LandingPath
	}
	return c
}
