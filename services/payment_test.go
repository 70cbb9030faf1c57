package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outlivion/portal/core"
)

const testPaymentURL = "https://pay.example.com/checkout/pay-1"

func testPaymentConfig() core.PaymentConfig {
	return core.PaymentConfig{
		PollInterval:  time.Millisecond,
		MaxAttempts:   3,
		ConfirmDelay:  5 * time.Millisecond,
		SelectionPath: "/billing",
		LandingPath:   "/dashboard",
	}
}

func newTestOrchestrator(backend *FakeBackend) (*PaymentOrchestrator, *RecordingNavigator) {
	nav := NewRecordingNavigator("/billing")
	o := NewPaymentOrchestrator(testPaymentConfig(), backend, NewHistoryLocator(backend), nav, zerolog.Nop())
	return o, nav
}

func createdReply() FakeResponse {
	return FakeResponse{Body: core.CreatePaymentResponse{PaymentID: "pay-1", PaymentURL: testPaymentURL, Amount: 864, Currency: "RUB"}}
}

func paymentsReply(payments ...core.Payment) FakeResponse {
	if payments == nil {
		payments = []core.Payment{}
	}
	return FakeResponse{Body: payments}
}

func payment(id string, status core.PaymentStatus) core.Payment {
	return core.Payment{ID: id, Amount: 864, Currency: "RUB", Status: status, Plan: core.Plan180Days}
}

func waitNavigation(t *testing.T, nav *RecordingNavigator) string {
	t.Helper()
	select {
	case path := <-nav.Navigated():
		return path
	case <-time.After(2 * time.Second):
		t.Fatal("no navigation")
		return ""
	}
}

// Requirement: Begin submits plan, devices, and the promo code only when a
// discount is applied for it, then hands off to the payment page.
func TestPaymentOrchestrator_Begin(t *testing.T) {
	tests := []struct {
		name      string
		promo     string
		applied   bool
		wantPromo string
	}{
		{name: "with applied promo", promo: "X", applied: true, wantPromo: "X"},
		{name: "unvalidated promo is not sent", promo: "X"},
		{name: "no promo"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			backend := NewFakeBackend()
			backend.On("POST", "/billing/create", createdReply())
			o, nav := newTestOrchestrator(backend)
			intent, err := core.NewPurchaseIntent(core.Plan180Days, 2)
			require.NoError(t, err)
			intent.SetPromoCode(test.promo)
			if test.applied {
				require.NoError(t, intent.ApplyDiscount(test.promo, core.Discount{Type: core.DiscountPercentage, Value: 1000}))
			}

			// Act
			resp, err := o.Begin(context.Background(), intent)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, "pay-1", resp.PaymentID)
			calls := backend.Calls("POST", "/billing/create")
			require.Len(t, calls, 1)
			var sent core.CreatePaymentRequest
			require.NoError(t, json.Unmarshal(calls[0].Body, &sent))
			assert.Equal(t, core.CreatePaymentRequest{Plan: core.Plan180Days, Devices: 2, PromoCode: test.wantPromo}, sent)

			status := o.Status()
			assert.Equal(t, core.CheckoutRedirected, status.State)
			assert.Equal(t, "pay-1", status.PaymentID)
			assert.NotEmpty(t, status.AttemptID)
			assert.Equal(t, []string{testPaymentURL}, nav.Redirects())
			assert.Empty(t, backend.Calls("GET", "/user/payments"), "no poll before the user returns")
		})
	}
}

// Requirement: a failed creation returns to Idle and surfaces the failure unchanged, with no retry.
func TestPaymentOrchestrator_Begin_Failures(t *testing.T) {
	networkErr := &core.APIError{Status: 0, Code: core.CodeNetworkError, Message: "Network error. Please check your connection."}

	tests := []struct {
		name    string
		reply   FakeResponse
		wantErr error
	}{
		{name: "network blip", reply: FakeResponse{Err: networkErr}, wantErr: networkErr},
		{name: "rejected", reply: FakeError(400, "Invalid plan"), wantErr: core.ErrRequestRejected},
		{name: "missing payment url", reply: FakeResponse{Body: core.CreatePaymentResponse{PaymentID: "pay-1"}}, wantErr: core.ErrInvalidPaymentReply},
		{name: "missing payment id", reply: FakeResponse{Body: core.CreatePaymentResponse{PaymentURL: testPaymentURL}}, wantErr: core.ErrInvalidPaymentReply},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			backend := NewFakeBackend()
			backend.On("POST", "/billing/create", test.reply)
			o, nav := newTestOrchestrator(backend)
			intent, err := core.NewPurchaseIntent(core.Plan30Days, 1)
			require.NoError(t, err)

			// Act
			resp, err := o.Begin(context.Background(), intent)

			// Assert
			assert.Nil(t, resp)
			require.ErrorIs(t, err, test.wantErr)
			if test.wantErr == networkErr {
				assert.Same(t, networkErr, err)
			}
			assert.Equal(t, core.CheckoutIdle, o.Status().State)
			assert.Len(t, backend.Calls("POST", "/billing/create"), 1)
			assert.Empty(t, nav.Redirects())
		})
	}
}

// Requirement: a second Begin while an attempt is in flight is refused.
func TestPaymentOrchestrator_Begin_InProgress(t *testing.T) {
	backend := NewFakeBackend()
	backend.On("POST", "/billing/create", createdReply())
	o, _ := newTestOrchestrator(backend)
	intent, err := core.NewPurchaseIntent(core.Plan30Days, 1)
	require.NoError(t, err)
	_, err = o.Begin(context.Background(), intent)
	require.NoError(t, err)

	_, err = o.Begin(context.Background(), intent)

	require.ErrorIs(t, err, core.ErrCheckoutInProgress)
	assert.Len(t, backend.Calls("POST", "/billing/create"), 1)
}

// Requirement: polling terminates per the termination policy within the attempt budget.
func TestPaymentOrchestrator_Resume(t *testing.T) {
	tests := []struct {
		name      string
		replies   []FakeResponse
		wantState core.CheckoutState
		wantErr   error
		wantCalls int
	}{
		{
			name:      "completed after pending",
			replies:   []FakeResponse{paymentsReply(payment("pay-1", core.PaymentPending)), paymentsReply(payment("other", core.PaymentFailed), payment("pay-1", core.PaymentCompleted))},
			wantState: core.CheckoutConfirmed,
			wantCalls: 2,
		},
		{
			name:      "completed after not yet listed",
			replies:   []FakeResponse{paymentsReply(), paymentsReply(payment("pay-1", core.PaymentCompleted))},
			wantState: core.CheckoutConfirmed,
			wantCalls: 2,
		},
		{
			name:      "record failed",
			replies:   []FakeResponse{paymentsReply(payment("pay-1", core.PaymentFailed))},
			wantState: core.CheckoutFailed,
			wantErr:   core.ErrPaymentFailed,
			wantCalls: 1,
		},
		{
			name:      "never terminal within budget",
			replies:   []FakeResponse{paymentsReply(payment("pay-1", core.PaymentPending))},
			wantState: core.CheckoutFailed,
			wantErr:   core.ErrPollExhausted,
			wantCalls: 3,
		},
		{
			name:      "never found",
			replies:   []FakeResponse{paymentsReply(payment("other", core.PaymentCompleted))},
			wantState: core.CheckoutFailed,
			wantErr:   core.ErrNotFound,
			wantCalls: 3,
		},
		{
			name:      "record fetch fails",
			replies:   []FakeResponse{FakeError(500, "boom")},
			wantState: core.CheckoutFailed,
			wantErr:   core.ErrBackendFault,
			wantCalls: 1,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			backend := NewFakeBackend()
			backend.On("GET", "/user/payments", test.replies...)
			o, nav := newTestOrchestrator(backend)

			// Act
			state, err := o.Resume(context.Background(), "pay-1")

			// Assert
			assert.Equal(t, test.wantState, state)
			assert.Equal(t, test.wantState, o.Status().State)
			assert.Len(t, backend.Calls("GET", "/user/payments"), test.wantCalls)
			if test.wantErr != nil {
				require.ErrorIs(t, err, test.wantErr)
				if test.wantState == core.CheckoutFailed && test.wantErr != core.ErrPollExhausted && test.wantErr != core.ErrNotFound {
					assert.ErrorIs(t, err, core.ErrPaymentFailed)
				}
				assert.Equal(t, err.Error(), o.Status().Error)
				assert.Empty(t, nav.Navigations())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "/dashboard", waitNavigation(t, nav))
		})
	}
}

// Requirement: polling only starts after creation resolved, and continues the same attempt.
func TestPaymentOrchestrator_BeginThenResume(t *testing.T) {
	backend := NewFakeBackend()
	backend.On("POST", "/billing/create", createdReply())
	backend.On("GET", "/user/payments", paymentsReply(payment("pay-1", core.PaymentCompleted)))
	o, nav := newTestOrchestrator(backend)
	intent, err := core.NewPurchaseIntent(core.Plan180Days, 2)
	require.NoError(t, err)

	_, err = o.Begin(context.Background(), intent)
	require.NoError(t, err)
	attemptID := o.Status().AttemptID
	state, err := o.Resume(context.Background(), "pay-1")

	require.NoError(t, err)
	assert.Equal(t, core.CheckoutConfirmed, state)
	assert.Equal(t, attemptID, o.Status().AttemptID)
	assert.Equal(t, "/dashboard", waitNavigation(t, nav))
}

// Requirement: a cancelled poll applies no further transition, even when a
// completed result arrives afterwards.
func TestPaymentOrchestrator_CancelDropsStaleResult(t *testing.T) {
	// Arrange
	backend := NewFakeBackend()
	backend.On("GET", "/user/payments", paymentsReply(payment("pay-1", core.PaymentCompleted)))
	o, nav := newTestOrchestrator(backend)
	backend.OnCall(func(FakeCall) { o.Cancel() })

	// Act
	state, err := o.Resume(context.Background(), "pay-1")

	// Assert
	require.ErrorIs(t, err, core.ErrPollCancelled)
	assert.Equal(t, core.CheckoutIdle, state)
	assert.Equal(t, core.CheckoutIdle, o.Status().State)
	time.Sleep(4 * testPaymentConfig().ConfirmDelay)
	assert.Empty(t, nav.Navigations())
}

// Requirement: navigating away (context cancellation) stops polling.
func TestPaymentOrchestrator_ContextCancelStopsPolling(t *testing.T) {
	backend := NewFakeBackend()
	backend.On("GET", "/user/payments", paymentsReply(payment("pay-1", core.PaymentPending)))
	o, _ := newTestOrchestrator(backend)
	ctx, cancel := context.WithCancel(context.Background())
	backend.OnCall(func(FakeCall) { cancel() })

	state, err := o.Resume(ctx, "pay-1")

	require.ErrorIs(t, err, core.ErrPollCancelled)
	assert.Equal(t, core.CheckoutIdle, state)
	assert.Len(t, backend.Calls("GET", "/user/payments"), 1)
}

// Requirement: cancelling after confirmation suppresses the scheduled landing navigation.
func TestPaymentOrchestrator_CancelAfterConfirm(t *testing.T) {
	backend := NewFakeBackend()
	backend.On("GET", "/user/payments", paymentsReply(payment("pay-1", core.PaymentCompleted)))
	nav := NewRecordingNavigator("/billing/success")
	cfg := testPaymentConfig()
	cfg.ConfirmDelay = 50 * time.Millisecond
	o := NewPaymentOrchestrator(cfg, backend, nil, nav, zerolog.Nop())

	state, err := o.Resume(context.Background(), "pay-1")
	require.NoError(t, err)
	require.Equal(t, core.CheckoutConfirmed, state)
	o.Cancel()

	time.Sleep(2 * cfg.ConfirmDelay)
	assert.Empty(t, nav.Navigations())
}

// Requirement: abandon is available from Redirected and Failed, discards local
// state, returns to plan selection, and never calls the backend.
func TestPaymentOrchestrator_Abandon(t *testing.T) {
	tests := []struct {
		name    string
		arrange func(t *testing.T, o *PaymentOrchestrator)
	}{
		{
			name: "from redirected",
			arrange: func(t *testing.T, o *PaymentOrchestrator) {
				intent, err := core.NewPurchaseIntent(core.Plan30Days, 1)
				require.NoError(t, err)
				_, err = o.Begin(context.Background(), intent)
				require.NoError(t, err)
			},
		},
		{
			name: "from failed",
			arrange: func(t *testing.T, o *PaymentOrchestrator) {
				state, _ := o.Resume(context.Background(), "pay-1")
				require.Equal(t, core.CheckoutFailed, state)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			backend := NewFakeBackend()
			backend.On("POST", "/billing/create", createdReply())
			backend.On("GET", "/user/payments", paymentsReply(payment("pay-1", core.PaymentFailed)))
			o, nav := newTestOrchestrator(backend)
			test.arrange(t, o)
			createCalls := len(backend.Calls("POST", "/billing/create"))
			pollCalls := len(backend.Calls("GET", "/user/payments"))

			// Act
			err := o.Abandon(context.Background())

			// Assert
			require.NoError(t, err)
			status := o.Status()
			assert.Equal(t, core.CheckoutAbandoned, status.State)
			assert.Empty(t, status.PaymentID)
			assert.Empty(t, status.Error)
			assert.Equal(t, []string{"/billing"}, nav.Navigations())
			assert.Len(t, backend.Calls("POST", "/billing/create"), createCalls)
			assert.Len(t, backend.Calls("GET", "/user/payments"), pollCalls)
		})
	}
}

func TestPaymentOrchestrator_InvalidTransitions(t *testing.T) {
	o, nav := newTestOrchestrator(NewFakeBackend())

	require.ErrorIs(t, o.Abandon(context.Background()), core.ErrInvalidTransition)

	_, err := o.Resume(context.Background(), "")
	require.ErrorIs(t, err, core.ErrMissingPaymentID)

	assert.Equal(t, core.CheckoutIdle, o.Status().State)
	assert.Empty(t, nav.Navigations())
}

// Requirement: a new attempt may begin after a terminal state.
func TestPaymentOrchestrator_BeginAfterFailure(t *testing.T) {
	backend := NewFakeBackend()
	backend.On("GET", "/user/payments", paymentsReply(payment("pay-1", core.PaymentFailed)))
	backend.On("POST", "/billing/create", createdReply())
	o, _ := newTestOrchestrator(backend)
	state, _ := o.Resume(context.Background(), "pay-1")
	require.Equal(t, core.CheckoutFailed, state)
	firstAttempt := o.Status().AttemptID

	intent, err := core.NewPurchaseIntent(core.Plan30Days, 1)
	require.NoError(t, err)
	_, err = o.Begin(context.Background(), intent)

	require.NoError(t, err)
	status := o.Status()
	assert.Equal(t, core.CheckoutRedirected, status.State)
	assert.NotEqual(t, firstAttempt, status.AttemptID)
	assert.Empty(t, status.Error)
}
