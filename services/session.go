package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/outlivion/portal/core"
	"github.com/outlivion/portal/pkg/crypto"
)

// SessionManager owns the session lifecycle. Authentication is derived from
// the credential store on every call, so a 401 clear by the access layer is
// observed on the very next check.
type SessionManager struct {
	config    core.SessionConfig
	store     core.CredentialStore
	backend   core.Backend
	navigator core.Navigator
	logger    zerolog.Logger
	now       func() time.Time
}

var _ core.SessionService = (*SessionManager)(nil)

func NewSessionManager(config core.SessionConfig, store core.CredentialStore, backend core.Backend, navigator core.Navigator, logger zerolog.Logger) *SessionManager {
	defaults := core.DefaultSessionConfig()
	if config.AccessTTL <= 0 {
		config.AccessTTL = defaults.AccessTTL
	}
	if config.RefreshTTL <= 0 {
		config.RefreshTTL = defaults.RefreshTTL
	}
	if config.LogoutPath == "" {
		config.LogoutPath = defaults.LogoutPath
	}
	return &SessionManager{
		config:    config,
		store:     store,
		backend:   backend,
		navigator: navigator,
		logger:    logger,
		now:       time.Now,
	}
}

// Login exchanges a Telegram assertion for session credentials. On failure
// the store is left untouched and the backend failure is returned as is.
func (sm *SessionManager) Login(ctx context.Context, assertion core.TelegramAssertion) (*core.AuthResponse, error) {
	// Step 1: Validate input
	if strings.TrimSpace(assertion.ID) == "" || strings.TrimSpace(assertion.Hash) == "" {
		return nil, core.ErrInvalidAssertion
	}

	// Step 2: Exchange the assertion
	var resp core.AuthResponse
	if err := sm.backend.Post(ctx, core.EndpointLogin.Path, assertion, &resp); err != nil {
		sm.logger.Info().Err(err).Str("telegram_id", assertion.ID).Msg("Login failed")
		return nil, err
	}
	if resp.Credential() == "" {
		return nil, core.ErrMissingCredential
	}

	// Step 3: Store every credential as a whole value
	identity := assertion.ID
	if resp.User != nil && resp.User.TelegramID != "" {
		identity = resp.User.TelegramID
	}
	if err := sm.storeCredentials(&resp, identity); err != nil {
		return nil, err
	}

	sm.logger.Info().
		Str("telegram_id", identity).
		Str("credential", crypto.Fingerprint(resp.Credential())).
		Bool("refreshable", resp.RefreshToken != "").
		Msg("Login succeeded")
	return &resp, nil
}

// Refresh exchanges the stored renewal credential for a new access
// credential. It is never called implicitly.
func (sm *SessionManager) Refresh(ctx context.Context) (*core.AuthResponse, error) {
	refreshToken, _ := sm.store.Get(core.CredentialRefresh)
	telegramID, _ := sm.store.Get(core.CredentialIdentity)
	if refreshToken == "" || telegramID == "" {
		return nil, &core.APIError{
			Status:  http.StatusUnauthorized,
			Code:    core.CodeNoRefreshToken,
			Message: "No refresh token available",
		}
	}

	var resp core.AuthResponse
	body := core.RefreshRequest{RefreshToken: refreshToken, TelegramID: telegramID}
	if err := sm.backend.Post(ctx, core.EndpointRefresh.Path, body, &resp); err != nil {
		sm.logger.Info().Err(err).Msg("Refresh failed")
		return nil, err
	}
	if resp.Credential() == "" {
		return nil, core.ErrMissingCredential
	}

	if err := sm.store.Set(core.CredentialAccess, resp.Credential(), sm.config.AccessTTL); err != nil {
		return nil, fmt.Errorf("failed to store access credential: %w", err)
	}
	if resp.RefreshToken != "" {
		if err := sm.store.Set(core.CredentialRefresh, resp.RefreshToken, sm.config.RefreshTTL); err != nil {
			return nil, fmt.Errorf("failed to store refresh credential: %w", err)
		}
	}

	sm.logger.Info().Str("credential", crypto.Fingerprint(resp.Credential())).Msg("Access credential refreshed")
	return &resp, nil
}

// RefreshIfExpiring refreshes when the access credential is missing or its
// exp claim falls within the window. Credentials without a readable exp are
// left alone.
func (sm *SessionManager) RefreshIfExpiring(ctx context.Context, within time.Duration) (bool, error) {
	if sm.IsAuthenticated() {
		exp, ok := sm.AccessExpiry()
		if !ok || exp.Sub(sm.now()) > within {
			return false, nil
		}
	}
	if _, err := sm.Refresh(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// AccessExpiry reads the exp claim of the access credential without
// verifying it. The backend remains the only authority on validity.
func (sm *SessionManager) AccessExpiry() (time.Time, bool) {
	token, err := sm.store.Get(core.CredentialAccess)
	if err != nil || token == "" {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Logout clears every credential and navigates to the logout target. It
// always succeeds and is safe without a session.
func (sm *SessionManager) Logout(ctx context.Context) {
	if err := sm.store.Clear(); err != nil {
		sm.logger.Error().Err(err).Msg("Failed to clear credential store on logout")
	}
	sm.logger.Info().Msg("Logged out")

	if nav := core.NavigatorFrom(ctx, sm.navigator); nav != nil {
		nav.Navigate(sm.config.LogoutPath)
	}
}

// IsAuthenticated never touches the network.
func (sm *SessionManager) IsAuthenticated() bool {
	token, err := sm.store.Get(core.CredentialAccess)
	return err == nil && token != ""
}

func (sm *SessionManager) Current() core.Session {
	token, err := sm.store.Get(core.CredentialAccess)
	if err != nil {
		token = ""
	}
	return core.Session{Credential: token, Authenticated: token != ""}
}

// Identity returns the stored Telegram id, if any.
func (sm *SessionManager) Identity() string {
	id, _ := sm.store.Get(core.CredentialIdentity)
	return id
}

func (sm *SessionManager) storeCredentials(resp *core.AuthResponse, identity string) error {
	if err := sm.store.Set(core.CredentialAccess, resp.Credential(), sm.config.AccessTTL); err != nil {
		return fmt.Errorf("failed to store access credential: %w", err)
	}

	if resp.RefreshToken == "" {
		// drop a renewal credential left over from an older session
		if err := sm.store.Delete(core.CredentialRefresh); err != nil {
			return fmt.Errorf("failed to remove stale refresh credential: %w", err)
		}
	} else if err := sm.store.Set(core.CredentialRefresh, resp.RefreshToken, sm.config.RefreshTTL); err != nil {
		return fmt.Errorf("failed to store refresh credential: %w", err)
	}

	if err := sm.store.Set(core.CredentialIdentity, identity, sm.config.RefreshTTL); err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}
	return nil
}
