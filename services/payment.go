package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/outlivion/portal/core"
	"github.com/outlivion/portal/internal/metrics"
)

// PaymentOrchestrator drives one checkout attempt at a time:
//
//	Idle → Creating → Redirected → Polling → Confirmed | Failed | Abandoned
//
// Every Cancel or Abandon bumps a generation counter; poll results that
// arrive for an older generation are dropped.
type PaymentOrchestrator struct {
	config    core.PaymentConfig
	backend   core.Backend
	locator   core.PaymentLocator
	navigator core.Navigator
	logger    zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	state        core.CheckoutState
	attemptID    string
	paymentID    string
	attempts     int
	err          error
	updatedAt    time.Time
	generation   uint64
	cancelPoll   context.CancelFunc
	confirmTimer *time.Timer
}

var _ core.CheckoutService = (*PaymentOrchestrator)(nil)

func NewPaymentOrchestrator(config core.PaymentConfig, backend core.Backend, locator core.PaymentLocator, navigator core.Navigator, logger zerolog.Logger) *PaymentOrchestrator {
	defaults := core.DefaultPaymentConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.ConfirmDelay < 0 {
		config.ConfirmDelay = 0
	}
	if config.SelectionPath == "" {
		config.SelectionPath = defaults.SelectionPath
	}
	if config.LandingPath == "" {
		config.LandingPath = defaults.LandingPath
	}
	if locator == nil {
		locator = NewHistoryLocator(backend)
	}
	return &PaymentOrchestrator{
		config:    config,
		backend:   backend,
		locator:   locator,
		navigator: navigator,
		logger:    logger,
		now:       time.Now,
		state:     core.CheckoutIdle,
		updatedAt: time.Now(),
	}
}

// Begin creates the payment and hands control to the external payment page.
// A failed creation returns to Idle with the backend failure unchanged.
// Creation is never retried.
func (o *PaymentOrchestrator) Begin(ctx context.Context, intent *core.PurchaseIntent) (*core.CreatePaymentResponse, error) {
	snapshot := intent.Snapshot()
	if snapshot.Devices < 1 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidDeviceCount, snapshot.Devices)
	}

	// Step 1: Enter Creating
	o.mu.Lock()
	if !o.state.Settled() {
		state := o.state
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", core.ErrCheckoutInProgress, state)
	}
	o.stopConfirmLocked()
	o.generation++
	gen := o.generation
	o.attemptID = ulid.Make().String()
	o.paymentID = ""
	o.attempts = 0
	o.err = nil
	o.transitionLocked(core.CheckoutCreating)
	o.mu.Unlock()

	// Step 2: Create the payment
	req := core.CreatePaymentRequest{
		Plan:      snapshot.PlanID,
		Devices:   snapshot.Devices,
		PromoCode: snapshot.PromoCode,
	}
	var resp core.CreatePaymentResponse
	err := o.backend.Post(ctx, core.EndpointCreatePayment.Path, req, &resp)
	if err == nil && (resp.PaymentID == "" || resp.PaymentURL == "") {
		err = core.ErrInvalidPaymentReply
	}

	// Step 3: Settle Creating
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return nil, core.ErrPollCancelled
	}
	if err != nil {
		o.err = err
		o.transitionLocked(core.CheckoutIdle)
		o.mu.Unlock()
		return nil, err
	}
	o.paymentID = resp.PaymentID
	o.transitionLocked(core.CheckoutRedirected)
	o.mu.Unlock()

	// Step 4: Full navigation to the payment page
	if nav := core.NavigatorFrom(ctx, o.navigator); nav != nil {
		nav.Redirect(resp.PaymentURL)
	}
	return &resp, nil
}

// Resume polls for paymentID after the user returns from the payment page.
// It blocks until a terminal state, the attempt budget runs out, or the
// poll is cancelled by Cancel, Abandon or ctx.
func (o *PaymentOrchestrator) Resume(ctx context.Context, paymentID string) (core.CheckoutState, error) {
	if paymentID == "" {
		return o.Status().State, core.ErrMissingPaymentID
	}
	nav := core.NavigatorFrom(ctx, o.navigator)

	// Step 1: Enter Polling
	o.mu.Lock()
	switch {
	case o.state == core.CheckoutRedirected:
		if o.paymentID != paymentID {
			o.logger.Warn().
				Str("attempt_id", o.attemptID).
				Str("expected", o.paymentID).
				Str("payment_id", paymentID).
				Msg("Returned with a different payment id")
		}
	case o.state.Settled():
		// fresh return without a Begin in this process
		o.stopConfirmLocked()
		o.attemptID = ulid.Make().String()
	default:
		state := o.state
		o.mu.Unlock()
		return state, fmt.Errorf("%w: resume from %s", core.ErrInvalidTransition, state)
	}
	o.generation++
	gen := o.generation
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelPoll = cancel
	o.paymentID = paymentID
	o.attempts = 0
	o.err = nil
	o.transitionLocked(core.CheckoutPolling)
	o.mu.Unlock()

	// Step 2: Poll on a fixed interval within the attempt budget
	found := false
	for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
		payment, err := o.locator.FindPayment(pollCtx, paymentID)

		o.mu.Lock()
		stale := gen != o.generation
		if !stale {
			o.attempts = attempt
		}
		o.mu.Unlock()
		if stale {
			return o.Status().State, core.ErrPollCancelled
		}

		result := pollResult(payment, err)
		metrics.PaymentPollResultsTotal.WithLabelValues(result).Inc()
		o.logger.Debug().
			Str("payment_id", paymentID).
			Int("attempt", attempt).
			Str("result", result).
			Msg("Payment poll")

		switch {
		case err != nil && errors.Is(err, core.ErrNotFound):
		case err != nil:
			if pollCtx.Err() != nil {
				return o.cancelled(gen)
			}
			return o.finish(gen, nav, core.CheckoutFailed, fmt.Errorf("%w: %w", core.ErrPaymentFailed, err))
		case payment.Status == core.PaymentCompleted:
			return o.finish(gen, nav, core.CheckoutConfirmed, nil)
		case payment.Status == core.PaymentFailed:
			return o.finish(gen, nav, core.CheckoutFailed, fmt.Errorf("%w: payment %s", core.ErrPaymentFailed, paymentID))
		default:
			found = true
		}

		if attempt == o.config.MaxAttempts {
			break
		}
		if !sleepCtx(pollCtx, o.config.PollInterval) {
			return o.cancelled(gen)
		}
	}

	// Step 3: Budget exhausted
	if !found {
		return o.finish(gen, nav, core.CheckoutFailed, fmt.Errorf("%w: payment %s", core.ErrNotFound, paymentID))
	}
	return o.finish(gen, nav, core.CheckoutFailed, fmt.Errorf("%w: payment %s after %d attempts", core.ErrPollExhausted, paymentID, o.config.MaxAttempts))
}

// Abandon discards local state and returns to plan selection. The backend
// payment is left as is.
func (o *PaymentOrchestrator) Abandon(ctx context.Context) error {
	o.mu.Lock()
	switch o.state {
	case core.CheckoutRedirected, core.CheckoutPolling, core.CheckoutFailed:
	default:
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: abandon from %s", core.ErrInvalidTransition, state)
	}
	o.resetLocked()
	o.transitionLocked(core.CheckoutAbandoned)
	o.mu.Unlock()

	if nav := core.NavigatorFrom(ctx, o.navigator); nav != nil {
		nav.Navigate(o.config.SelectionPath)
	}
	return nil
}

// Cancel stops any poll or pending confirmation navigation and returns to
// Idle without navigating.
func (o *PaymentOrchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
	if o.state != core.CheckoutIdle {
		o.transitionLocked(core.CheckoutIdle)
	}
}

func (o *PaymentOrchestrator) Status() core.CheckoutStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	status := core.CheckoutStatus{
		State:     o.state,
		AttemptID: o.attemptID,
		PaymentID: o.paymentID,
		Attempts:  o.attempts,
		Err:       o.err,
		UpdatedAt: o.updatedAt,
	}
	if o.err != nil {
		status.Error = o.err.Error()
	}
	return status
}

func (o *PaymentOrchestrator) finish(gen uint64, nav core.Navigator, state core.CheckoutState, err error) (core.CheckoutState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return o.state, core.ErrPollCancelled
	}

	o.cancelPoll = nil
	o.err = err
	o.transitionLocked(state)

	if state == core.CheckoutConfirmed && nav != nil {
		landing := o.config.LandingPath
		o.confirmTimer = time.AfterFunc(o.config.ConfirmDelay, func() {
			o.mu.Lock()
			current := gen == o.generation && o.state == core.CheckoutConfirmed
			o.mu.Unlock()
			if current {
				nav.Navigate(landing)
			}
		})
	}
	return state, err
}

// cancelled settles a poll stopped by its context. A poll superseded by
// Cancel or Abandon has already been settled by them.
func (o *PaymentOrchestrator) cancelled(gen uint64) (core.CheckoutState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen == o.generation {
		o.resetLocked()
		o.transitionLocked(core.CheckoutIdle)
	}
	return o.state, core.ErrPollCancelled
}

func (o *PaymentOrchestrator) resetLocked() {
	o.generation++
	if o.cancelPoll != nil {
		o.cancelPoll()
		o.cancelPoll = nil
	}
	o.stopConfirmLocked()
	o.paymentID = ""
	o.attempts = 0
	o.err = nil
}

func (o *PaymentOrchestrator) stopConfirmLocked() {
	if o.confirmTimer != nil {
		o.confirmTimer.Stop()
		o.confirmTimer = nil
	}
}

func (o *PaymentOrchestrator) transitionLocked(state core.CheckoutState) {
	o.state = state
	o.updatedAt = o.now()
	metrics.CheckoutTransitionsTotal.WithLabelValues(string(state)).Inc()

	event := o.logger.Info()
	if o.err != nil {
		event = o.logger.Warn().Err(o.err)
	}
	event.
		Str("attempt_id", o.attemptID).
		Str("payment_id", o.paymentID).
		Str("state", string(state)).
		Msg("Checkout transition")
}

func pollResult(payment *core.Payment, err error) string {
	switch {
	case err != nil && errors.Is(err, core.ErrNotFound):
		return "not_found"
	case err != nil:
		return "error"
	case !payment.Status.Terminal():
		// Unknown statuses keep polling like pending ones.
		return string(core.PaymentPending)
	default:
		return string(payment.Status)
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
