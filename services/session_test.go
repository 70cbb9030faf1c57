package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outlivion/portal/core"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Helper function to create a SessionManager for tests
func newTestSessionManager(backend core.Backend) (*SessionManager, *core.InMemoryStore, *testClock, *RecordingNavigator) {
	clock := newTestClock()
	store := core.NewInMemoryStore(core.StoreConfig{Now: clock.Now})
	nav := NewRecordingNavigator("/login")
	sm := NewSessionManager(core.DefaultSessionConfig(), store, backend, nav, zerolog.Nop())
	sm.now = clock.Now
	return sm, store, clock, nav
}

func validAssertion() core.TelegramAssertion {
	return core.TelegramAssertion{ID: "42", FirstName: "Ada", AuthDate: "1767225600", Hash: "abc123"}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return s
}

// Requirement: a successful login stores access, renewal, and identity
// credentials with their respective ttls.
func TestSessionManager_Login(t *testing.T) {
	tests := []struct {
		name         string
		reply        core.AuthResponse
		wantAccess   string
		wantRefresh  string
		wantIdentity string
	}{
		{
			name:         "access and refresh",
			reply:        core.AuthResponse{AccessToken: "acc-1", RefreshToken: "ref-1", User: &core.User{ID: "u1", TelegramID: "42"}},
			wantAccess:   "acc-1",
			wantRefresh:  "ref-1",
			wantIdentity: "42",
		},
		{
			name:         "legacy token field",
			reply:        core.AuthResponse{Token: "legacy-1"},
			wantAccess:   "legacy-1",
			wantIdentity: "42",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			backend := NewFakeBackend()
			backend.On("POST", "/auth/telegram", FakeResponse{Body: test.reply})
			sm, store, clock, _ := newTestSessionManager(backend)

			// Act
			resp, err := sm.Login(context.Background(), validAssertion())

			// Assert
			require.NoError(t, err)
			assert.Equal(t, test.wantAccess, resp.Credential())
			assert.True(t, sm.IsAuthenticated())

			access, _ := store.Get(core.CredentialAccess)
			refresh, _ := store.Get(core.CredentialRefresh)
			identity, _ := store.Get(core.CredentialIdentity)
			assert.Equal(t, test.wantAccess, access)
			assert.Equal(t, test.wantRefresh, refresh)
			assert.Equal(t, test.wantIdentity, identity)

			calls := backend.Calls("POST", "/auth/telegram")
			require.Len(t, calls, 1)
			var sent core.TelegramAssertion
			require.NoError(t, json.Unmarshal(calls[0].Body, &sent))
			assert.Equal(t, validAssertion(), sent)

			// access lives 1 day, refresh 7 days
			clock.Advance(25 * time.Hour)
			assert.False(t, sm.IsAuthenticated())
			if test.wantRefresh != "" {
				refresh, err = store.Get(core.CredentialRefresh)
				require.NoError(t, err)
				assert.Equal(t, test.wantRefresh, refresh)
			}
			clock.Advance(7 * 24 * time.Hour)
			_, err = store.Get(core.CredentialRefresh)
			assert.ErrorIs(t, err, core.ErrCredentialNotFound)
		})
	}
}

// Requirement: a login without a renewal credential removes a stale one.
func TestSessionManager_Login_DropsStaleRefresh(t *testing.T) {
	backend := NewFakeBackend()
	backend.On("POST", "/auth/telegram", FakeResponse{Body: core.AuthResponse{AccessToken: "acc-2"}})
	sm, store, _, _ := newTestSessionManager(backend)
	require.NoError(t, store.Set(core.CredentialRefresh, "old-refresh", time.Hour))

	_, err := sm.Login(context.Background(), validAssertion())

	require.NoError(t, err)
	_, err = store.Get(core.CredentialRefresh)
	assert.ErrorIs(t, err, core.ErrCredentialNotFound)
}

// Requirement: a failed login stays Anonymous and returns the backend failure unchanged.
func TestSessionManager_Login_Failures(t *testing.T) {
	rejected := &core.APIError{Status: 400, Code: "INVALID_HASH", Message: "Invalid Telegram data"}

	tests := []struct {
		name      string
		assertion core.TelegramAssertion
		reply     FakeResponse
		wantErr   error
		wantCalls int
	}{
		{name: "backend rejects", assertion: validAssertion(), reply: FakeResponse{Err: rejected}, wantErr: rejected, wantCalls: 1},
		{name: "no credential in reply", assertion: validAssertion(), reply: FakeResponse{Body: core.AuthResponse{}}, wantErr: core.ErrMissingCredential, wantCalls: 1},
		{name: "missing hash", assertion: core.TelegramAssertion{ID: "42"}, wantErr: core.ErrInvalidAssertion},
		{name: "missing id", assertion: core.TelegramAssertion{Hash: "h"}, wantErr: core.ErrInvalidAssertion},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			backend := NewFakeBackend()
			backend.On("POST", "/auth/telegram", test.reply)
			sm, store, _, _ := newTestSessionManager(backend)

			// Act
			resp, err := sm.Login(context.Background(), test.assertion)

			// Assert
			assert.Nil(t, resp)
			require.ErrorIs(t, err, test.wantErr)
			if test.wantErr == rejected {
				assert.Same(t, rejected, err)
			}
			assert.False(t, sm.IsAuthenticated())
			assert.Equal(t, 0, store.Len())
			assert.Len(t, backend.Calls("POST", "/auth/telegram"), test.wantCalls)
		})
	}
}

// Requirement: logout clears every credential, navigates to the login screen,
// and is safe when already anonymous.
func TestSessionManager_Logout(t *testing.T) {
	tests := []struct {
		name   string
		seeded bool
	}{
		{name: "from authenticated", seeded: true},
		{name: "from anonymous", seeded: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sm, store, _, nav := newTestSessionManager(NewFakeBackend())
			if test.seeded {
				require.NoError(t, store.Set(core.CredentialAccess, "a", time.Hour))
				require.NoError(t, store.Set(core.CredentialRefresh, "r", time.Hour))
				require.NoError(t, store.Set(core.CredentialIdentity, "42", time.Hour))
			}

			sm.Logout(context.Background())

			assert.Equal(t, 0, store.Len())
			assert.False(t, sm.IsAuthenticated())
			assert.Equal(t, []string{"/login"}, nav.Navigations())
		})
	}
}

// Requirement: the navigator on the context wins over the configured one.
func TestSessionManager_Logout_ContextNavigator(t *testing.T) {
	sm, _, _, configured := newTestSessionManager(NewFakeBackend())
	requestNav := NewRecordingNavigator("/dashboard")

	sm.Logout(core.WithNavigator(context.Background(), requestNav))

	assert.Empty(t, configured.Navigations())
	assert.Equal(t, []string{"/login"}, requestNav.Navigations())
}

// Requirement: refresh without a stored renewal credential fails locally with NO_REFRESH_TOKEN.
func TestSessionManager_Refresh_NoCredential(t *testing.T) {
	tests := []struct {
		name     string
		refresh  string
		identity string
	}{
		{name: "nothing stored"},
		{name: "refresh without identity", refresh: "r"},
		{name: "identity without refresh", identity: "42"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			backend := NewFakeBackend()
			sm, store, _, _ := newTestSessionManager(backend)
			require.NoError(t, store.Set(core.CredentialAccess, "still-here", time.Hour))
			require.NoError(t, store.Set(core.CredentialRefresh, test.refresh, time.Hour))
			require.NoError(t, store.Set(core.CredentialIdentity, test.identity, time.Hour))

			_, err := sm.Refresh(context.Background())

			var apiErr *core.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, 401, apiErr.Status)
			assert.Equal(t, core.CodeNoRefreshToken, apiErr.Code)
			assert.Empty(t, backend.Calls("POST", "/auth/refresh"))
			assert.True(t, sm.IsAuthenticated(), "local refresh failure must not clear the session")
		})
	}
}

// Requirement: refresh sends the renewal credential and identity and replaces the access credential.
func TestSessionManager_Refresh(t *testing.T) {
	// Arrange
	backend := NewFakeBackend()
	backend.On("POST", "/auth/refresh", FakeResponse{Body: core.AuthResponse{AccessToken: "acc-new", RefreshToken: "ref-new"}})
	sm, store, _, _ := newTestSessionManager(backend)
	require.NoError(t, store.Set(core.CredentialAccess, "acc-old", time.Hour))
	require.NoError(t, store.Set(core.CredentialRefresh, "ref-old", time.Hour))
	require.NoError(t, store.Set(core.CredentialIdentity, "42", time.Hour))

	// Act
	_, err := sm.Refresh(context.Background())

	// Assert
	require.NoError(t, err)
	calls := backend.Calls("POST", "/auth/refresh")
	require.Len(t, calls, 1)
	var sent core.RefreshRequest
	require.NoError(t, json.Unmarshal(calls[0].Body, &sent))
	assert.Equal(t, core.RefreshRequest{RefreshToken: "ref-old", TelegramID: "42"}, sent)
	assert.Equal(t, "acc-new", sm.Current().Credential)
	refresh, _ := store.Get(core.CredentialRefresh)
	assert.Equal(t, "ref-new", refresh)
}

// Requirement: proactive refresh only fires inside the expiry window or when the access credential is gone.
func TestSessionManager_RefreshIfExpiring(t *testing.T) {
	tests := []struct {
		name          string
		access        func(t *testing.T, now time.Time) string
		wantRefreshed bool
	}{
		{name: "far from expiry", access: func(t *testing.T, now time.Time) string { return signedToken(t, now.Add(20*time.Hour)) }},
		{name: "inside window", access: func(t *testing.T, now time.Time) string { return signedToken(t, now.Add(2*time.Minute)) }, wantRefreshed: true},
		{name: "already past exp", access: func(t *testing.T, now time.Time) string { return signedToken(t, now.Add(-time.Minute)) }, wantRefreshed: true},
		{name: "opaque credential", access: func(*testing.T, time.Time) string { return "opaque" }},
		{name: "no access credential", access: func(*testing.T, time.Time) string { return "" }, wantRefreshed: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			backend := NewFakeBackend()
			backend.On("POST", "/auth/refresh", FakeResponse{Body: core.AuthResponse{AccessToken: "acc-new"}})
			sm, store, clock, _ := newTestSessionManager(backend)
			require.NoError(t, store.Set(core.CredentialAccess, test.access(t, clock.Now()), time.Hour))
			require.NoError(t, store.Set(core.CredentialRefresh, "ref", time.Hour))
			require.NoError(t, store.Set(core.CredentialIdentity, "42", time.Hour))

			// Act
			refreshed, err := sm.RefreshIfExpiring(context.Background(), 5*time.Minute)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, test.wantRefreshed, refreshed)
			assert.Len(t, backend.Calls("POST", "/auth/refresh"), map[bool]int{true: 1, false: 0}[test.wantRefreshed])
		})
	}
}

func TestSessionManager_AccessExpiry(t *testing.T) {
	sm, store, clock, _ := newTestSessionManager(NewFakeBackend())
	exp := clock.Now().Add(3 * time.Hour).Truncate(time.Second)
	require.NoError(t, store.Set(core.CredentialAccess, signedToken(t, exp), time.Hour))

	got, ok := sm.AccessExpiry()

	require.True(t, ok)
	assert.True(t, exp.Equal(got))
}

// Requirement: isAuthenticated reflects the store on every call, with no caching.
func TestSessionManager_IsAuthenticated_ObservesExternalClear(t *testing.T) {
	sm, store, _, _ := newTestSessionManager(NewFakeBackend())
	require.NoError(t, store.Set(core.CredentialAccess, "tok", time.Hour))
	require.True(t, sm.IsAuthenticated())

	require.NoError(t, store.Clear())

	assert.False(t, sm.IsAuthenticated())
	assert.Equal(t, core.Session{}, sm.Current())
}
