package fiber

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/outlivion/portal/core"
	"github.com/outlivion/portal/internal/logging"
	"github.com/outlivion/portal/internal/metrics"
)

// Guard runs the route guard in front of every page navigation.
//
// Protected paths without a session redirect to the login screen with the
// original path preserved; the login screen redirects an existing session to
// the landing screen. Navigations that proceed carry the security headers.
func Guard(table core.RouteTable, authenticated func() bool) fiber.Handler {
	return func(c fiber.Ctx) error {
		decision := table.Decide(c.Path(), authenticated())
		if decision.Action == core.GuardSkip {
			return c.Next()
		}
		metrics.GuardDecisionsTotal.WithLabelValues(decision.Class.String(), decision.Action.String()).Inc()

		if decision.Action == core.GuardRedirect {
			return c.Redirect().Status(fiber.StatusTemporaryRedirect).To(decision.Location)
		}

		for _, h := range decision.Headers {
			c.Set(h.Key, h.Value)
		}
		return c.Next()
	}
}

// RequestLogger tags the request context with a request id, which the access
// layer forwards to the backend, and logs each request at debug level.
func RequestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		ctx, id := logging.WithRequestID(c.Context(), c.Get(fiber.HeaderXRequestID))
		c.SetContext(ctx)
		c.Set(fiber.HeaderXRequestID, id)

		err := c.Next()

		logger.Debug().
			Str("request_id", id).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("request")
		return err
	}
}
