package fiber

import (
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/outlivion/portal/core"
)

// Adapter serves the portal screens over fiber. It holds the one purchase
// intent of the process; the portal is single-user.
type Adapter struct {
	app    *fiber.App
	portal *core.Portal

	mu     sync.Mutex
	intent *core.PurchaseIntent
}

var _ core.HTTPAdapter = (*Adapter)(nil)

func New(app *fiber.App) *Adapter {
	return &Adapter{app: app}
}

func (a *Adapter) RegisterRoutes(p *core.Portal) error {
	a.portal = p
	a.intent = p.NewIntent()

	a.app.Use(RequestLogger(p.Logger))
	a.app.Use(Guard(p.Routes, p.Session.IsAuthenticated))

	a.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Public routes
	a.app.Get("/", a.screen(a.home))
	a.app.Get("/terms", a.screen(a.terms))

	// Auth-only routes
	a.app.Get("/login", a.screen(a.loginScreen))
	a.app.Post("/login", a.screen(a.login))

	// Protected routes
	a.app.Post("/logout", a.screen(a.logout))
	a.app.Get("/dashboard", a.screen(a.dashboard))
	a.app.Get("/profile", a.screen(a.profile))
	a.app.Post("/promo", a.screen(a.checkPromo))
	a.app.Get("/billing", a.screen(a.billing))
	a.app.Post("/billing", a.screen(a.selectPlan))
	a.app.Post("/billing/promo", a.screen(a.applyPromo))
	a.app.Post("/billing/checkout", a.screen(a.checkout))
	a.app.Get(successPath, a.screen(a.confirm))
	a.app.Post("/billing/abandon", a.screen(a.abandon))
	a.app.Get("/config/:serverId", a.screen(a.serverConfig))
	a.app.Delete("/config/:serverId", a.screen(a.deleteServerConfig))
	a.app.Get("/transactions", a.screen(a.transactions))

	return nil
}
