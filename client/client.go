package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/outlivion/portal/core"
	"github.com/outlivion/portal/internal/logging"
	"github.com/outlivion/portal/internal/metrics"
	"github.com/outlivion/portal/pkg/crypto"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "outlivion-portal"

	maxErrorBody    = 64 << 10
	maxResponseBody = 10 << 20
)

const (
	msgNetworkError    = "Network error. Please check your connection."
	msgGenericError    = "An error occurred"
	msgInvalidResponse = "Invalid response from server"
	codeInvalidReply   = "INVALID_RESPONSE"
)

type Config struct {
	BaseURL string

	Store core.CredentialStore

	// Optional config
	Timeout    time.Duration
	LoginPath  string
	Navigator  core.Navigator
	HTTPClient *http.Client
	UserAgent  string
	Logger     zerolog.Logger
}

// Client is the single choke point for backend calls. It attaches the
// stored credential, normalizes every failure into *core.APIError, and
// clears the session when the backend rejects the credential.
//
// It never retries.
type Client struct {
	baseURL   *url.URL
	store     core.CredentialStore
	timeout   time.Duration
	loginPath string
	navigator core.Navigator
	http      *http.Client
	userAgent string
	logger    zerolog.Logger
}

var _ core.Backend = (*Client)(nil)

var defaultResolver = NewResolver()

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, core.ErrBaseURLRequired
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", core.ErrBaseURLRequired, cfg.BaseURL)
	}
	if cfg.Store == nil {
		return nil, errors.New("credential store is required")
	}

	// Set Defaults

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = core.DefaultLoginPath
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: NewTransport(defaultResolver)}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		baseURL:   base,
		store:     cfg.Store,
		timeout:   timeout,
		loginPath: loginPath,
		navigator: cfg.Navigator,
		http:      httpClient,
		userAgent: userAgent,
		logger:    cfg.Logger,
	}, nil
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do performs one backend call. A 2xx body is decoded into out (when out is
// non-nil); anything else returns a *core.APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	operation := core.OperationFor(method, path)
	requestID := logging.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Request-ID", requestID)

	credential, _ := c.store.Get(core.CredentialAccess)
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	metrics.BackendRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())

	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(operation, metrics.Outcome(0)).Inc()
		c.logger.Debug().
			Err(err).
			Str("method", method).
			Str("path", path).
			Str("request_id", requestID).
			Msg("Backend unreachable")
		return &core.APIError{Status: 0, Code: core.CodeNetworkError, Message: msgNetworkError, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	metrics.BackendRequestsTotal.WithLabelValues(operation, metrics.Outcome(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Str("request_id", requestID).
		Msg("Backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		if resp.StatusCode == http.StatusUnauthorized {
			c.forceLogout(ctx, credential)
		}
		return apiErr
	}

	return decodeBody(resp, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	target := c.baseURL.String() + "/" + strings.TrimPrefix(path, "/")

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// forceLogout clears the store and, in a navigable context outside the login
// screen, sends the user to login with the current path as return target.
// Concurrent 401s may each run this; every step is idempotent.
func (c *Client) forceLogout(ctx context.Context, credential string) {
	if err := c.store.Clear(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear credential store after 401")
	}
	metrics.ForcedLogoutsTotal.Inc()
	c.logger.Warn().
		Str("credential", crypto.Fingerprint(credential)).
		Msg("Backend rejected credential, session cleared")

	nav := core.NavigatorFrom(ctx, c.navigator)
	if nav == nil {
		return
	}
	current := nav.CurrentPath()
	if strings.Contains(current, c.loginPath) {
		return
	}
	nav.Navigate(core.LoginLocation(c.loginPath, current))
}

type errorBody struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func decodeError(resp *http.Response) *core.APIError {
	apiErr := &core.APIError{Status: resp.StatusCode, Message: msgGenericError}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	if json.Unmarshal(b, &eb) != nil {
		return apiErr
	}

	switch {
	case eb.Error != "":
		apiErr.Message = eb.Error
	case eb.Message != "":
		apiErr.Message = eb.Message
	}
	apiErr.Code = eb.Code
	apiErr.Details = parseDetails(eb.Details)
	return apiErr
}

// parseDetails accepts a list of strings or a single string.
func parseDetails(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return list
	}
	var single string
	if json.Unmarshal(raw, &single) == nil && single != "" {
		return []string{single}
	}
	return nil
}

func decodeBody(resp *http.Response, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &core.APIError{Status: 0, Code: core.CodeNetworkError, Message: msgNetworkError, Err: err}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &core.APIError{Status: resp.StatusCode, Code: codeInvalidReply, Message: msgInvalidResponse, Err: err}
	}
	return nil
}
