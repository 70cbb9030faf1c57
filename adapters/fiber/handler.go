package fiber

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/outlivion/portal/core"
)

// requestNavigator records the navigation a handler asks for so it can be
// answered with a redirect. Navigations after the response are dropped.
type requestNavigator struct {
	mu       sync.Mutex
	current  string
	target   string
	external bool
	sealed   bool
}

var _ core.Navigator = (*requestNavigator)(nil)

func (n *requestNavigator) CurrentPath() string {
	return n.current
}

func (n *requestNavigator) Navigate(path string) {
	n.record(path, false)
}

func (n *requestNavigator) Redirect(target string) {
	n.record(target, true)
}

func (n *requestNavigator) record(target string, external bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sealed {
		return
	}
	n.target = target
	n.external = external
}

func (n *requestNavigator) seal() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sealed = true
	return n.target, n.external
}

// successPath is the payment provider's return screen, the only screen a
// running poll belongs to.
const successPath = "/billing/success"

type screenHandler func(c fiber.Ctx, nav core.Navigator) error

// screen installs a request-scoped navigator and turns whatever it recorded
// into a 303 redirect. Opening any other screen while a payment is polled
// cancels the poll.
func (a *Adapter) screen(h screenHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Path() != successPath && a.portal.Checkout.Status().State == core.CheckoutPolling {
			a.portal.Logger.Debug().Str("path", c.Path()).Msg("Left the payment screen, cancelling poll")
			a.portal.Checkout.Cancel()
		}

		nav := &requestNavigator{current: c.Path()}
		c.SetContext(core.WithNavigator(c.Context(), nav))

		err := h(c, nav)

		target, external := nav.seal()
		if target == "" {
			return err
		}
		if err != nil {
			a.portal.Logger.Debug().Err(err).Str("location", target).Msg("handler navigated away after error")
		}
		if !external {
			target = core.SafeReturnPath(target, a.landingPath())
		}
		return c.Redirect().Status(fiber.StatusSeeOther).To(target)
	}
}

func (a *Adapter) home(c fiber.Ctx, _ core.Navigator) error {
	return c.JSON(fiber.Map{
		"screen":        "home",
		"authenticated": a.portal.Session.IsAuthenticated(),
	})
}

func (a *Adapter) terms(c fiber.Ctx, _ core.Navigator) error {
	return c.JSON(fiber.Map{"screen": "terms"})
}

func (a *Adapter) loginScreen(c fiber.Ctx, _ core.Navigator) error {
	return c.JSON(fiber.Map{
		"screen":   "login",
		"redirect": core.SafeReturnPath(c.Query(core.ReturnParam), a.landingPath()),
	})
}

func (a *Adapter) login(c fiber.Ctx, nav core.Navigator) error {
	var assertion core.TelegramAssertion
	if err := c.Bind().Body(&assertion); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if _, err := a.portal.Session.Login(c.Context(), assertion); err != nil {
		return writeError(c, err)
	}

	nav.Navigate(core.SafeReturnPath(c.Query(core.ReturnParam), a.landingPath()))
	return nil
}

func (a *Adapter) logout(c fiber.Ctx, _ core.Navigator) error {
	a.resetIntent()
	a.portal.Checkout.Cancel()
	a.portal.Session.Logout(c.Context())
	return nil
}

func (a *Adapter) dashboard(c fiber.Ctx, _ core.Navigator) error {
	overview, err := a.portal.Account.Overview(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"screen":       "dashboard",
		"user":         overview.User,
		"subscription": overview.Subscription,
	})
}

func (a *Adapter) profile(c fiber.Ctx, _ core.Navigator) error {
	user, err := a.portal.Account.User(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"screen": "profile", "user": user})
}

// checkPromo validates a code on its own, without touching the purchase.
func (a *Adapter) checkPromo(c fiber.Ctx, _ core.Navigator) error {
	var input promoInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	discount, err := a.portal.Promo.Validate(c.Context(), input.Code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"screen":   "promo",
		"code":     core.NormalizePromoCode(input.Code),
		"discount": discount,
	})
}

// billing is the plan selection screen. The payment history is shown when
// the backend returns it.
func (a *Adapter) billing(c fiber.Ctx, _ core.Navigator) error {
	payments, err := a.portal.Account.Payments(c.Context())
	if err != nil {
		a.portal.Logger.Debug().Err(err).Msg("Payment history unavailable")
		payments = nil
	}
	return a.billingView(c, fiber.Map{"payments": payments})
}

func (a *Adapter) billingView(c fiber.Ctx, extra ...fiber.Map) error {
	intent := a.purchase()
	quote, err := a.portal.Quote(intent)
	if err != nil {
		return writeError(c, err)
	}
	body := fiber.Map{
		"screen":   "billing",
		"plans":    a.portal.Catalog,
		"intent":   intent.Snapshot(),
		"quote":    quote,
		"checkout": a.portal.Checkout.Status(),
	}
	for _, m := range extra {
		for k, v := range m {
			body[k] = v
		}
	}
	return c.JSON(body)
}

type planSelection struct {
	Plan    core.PlanID `json:"plan"`
	Devices int         `json:"devices"`
}

func (a *Adapter) selectPlan(c fiber.Ctx, _ core.Navigator) error {
	var input planSelection
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if input.Plan != "" {
		if _, err := a.portal.Catalog.Lookup(input.Plan); err != nil {
			return writeError(c, err)
		}
		if err := a.purchase().SelectPlan(input.Plan); err != nil {
			return writeError(c, err)
		}
	}
	if input.Devices != 0 {
		if err := a.purchase().SetDevices(input.Devices); err != nil {
			return writeError(c, err)
		}
	}
	return a.billingView(c)
}

type promoInput struct {
	Code string `json:"code"`
}

func (a *Adapter) applyPromo(c fiber.Ctx, _ core.Navigator) error {
	var input promoInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	intent := a.purchase()
	intent.SetPromoCode(input.Code)
	if _, err := a.portal.Promo.Apply(c.Context(), intent); err != nil {
		return writeError(c, err)
	}
	return a.billingView(c)
}

func (a *Adapter) checkout(c fiber.Ctx, _ core.Navigator) error {
	if _, err := a.portal.Checkout.Begin(c.Context(), a.purchase()); err != nil {
		return writeError(c, err)
	}
	return nil
}

// confirm is the return target of the payment provider. It blocks while the
// payment is polled; a confirmed payment tells the browser to move on to the
// landing screen after the confirmation delay.
func (a *Adapter) confirm(c fiber.Ctx, _ core.Navigator) error {
	paymentID := c.Query("paymentId")
	state, err := a.portal.Checkout.Resume(c.Context(), paymentID)
	if errors.Is(err, core.ErrMissingPaymentID) {
		return writeError(c, err)
	}

	body := fiber.Map{
		"screen":    "billing-success",
		"paymentId": paymentID,
		"state":     state,
	}
	if err != nil {
		body["error"] = errorMessage(err)
	}
	if state == core.CheckoutConfirmed {
		a.resetIntent()
		c.Set("Refresh", refreshHeader(a.confirmDelay(), a.landingPath()))
	}
	return c.JSON(body)
}

func (a *Adapter) abandon(c fiber.Ctx, _ core.Navigator) error {
	if err := a.portal.Checkout.Abandon(c.Context()); err != nil {
		return writeError(c, err)
	}
	return nil
}

func (a *Adapter) serverConfig(c fiber.Ctx, _ core.Navigator) error {
	cfg, err := a.portal.Account.ServerConfig(c.Context(), c.Params("serverId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"screen": "config", "config": cfg})
}

func (a *Adapter) deleteServerConfig(c fiber.Ctx, _ core.Navigator) error {
	if err := a.portal.Account.DeleteServerConfig(c.Context(), c.Params("serverId")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (a *Adapter) transactions(c fiber.Ctx, _ core.Navigator) error {
	payments, err := a.portal.Account.Payments(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"screen": "transactions", "payments": payments})
}

func (a *Adapter) purchase() *core.PurchaseIntent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.intent
}

func (a *Adapter) resetIntent() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.intent = a.portal.NewIntent()
}

func (a *Adapter) landingPath() string {
	if a.portal.Routes.LandingPath == "" {
		return core.DefaultLandingPath
	}
	return a.portal.Routes.LandingPath
}

func (a *Adapter) confirmDelay() time.Duration {
	if a.portal.ConfirmDelay < 0 {
		return core.DefaultPaymentConfig().ConfirmDelay
	}
	return a.portal.ConfirmDelay
}

func refreshHeader(delay time.Duration, location string) string {
	return strconv.Itoa(int(delay.Round(time.Second)/time.Second)) + "; url=" + location
}

// writeError maps a portal error to a JSON error response.
func writeError(c fiber.Ctx, err error) error {
	body := fiber.Map{"error": errorMessage(err)}
	var apiErr *core.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		body["code"] = apiErr.Code
	}
	return c.Status(mapErrorToStatus(err)).JSON(body)
}

func errorMessage(err error) string {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) && !errors.Is(err, core.ErrPromoInvalid) && !errors.Is(err, core.ErrNoSubscription) {
		return apiErr.Message
	}
	return err.Error()
}

// mapErrorToStatus maps portal error types to HTTP status codes
func mapErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case errors.Is(err, core.ErrNoSubscription):
		return http.StatusForbidden

	case errors.Is(err, core.ErrPromoInvalid),
		errors.Is(err, core.ErrPromoCodeRequired),
		errors.Is(err, core.ErrInvalidPlan),
		errors.Is(err, core.ErrInvalidDeviceCount),
		errors.Is(err, core.ErrMissingPaymentID):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrCheckoutInProgress),
		errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrStaleDiscount),
		errors.Is(err, core.ErrPollCancelled):
		return http.StatusConflict

	case errors.Is(err, core.ErrAuthorityRejected),
		errors.Is(err, core.ErrInvalidAssertion):
		return http.StatusUnauthorized

	case errors.Is(err, core.ErrRequestRejected):
		return core.StatusOf(err)

	case errors.Is(err, core.ErrNetworkUnreachable),
		errors.Is(err, core.ErrBackendFault),
		errors.Is(err, core.ErrInvalidPaymentReply),
		errors.Is(err, core.ErrMissingCredential):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
