package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/outlivion/portal/core"
)

// AccountReader serves the read-only account screens.
type AccountReader struct {
	backend       core.Backend
	navigator     core.Navigator
	selectionPath string
	logger        zerolog.Logger
}

var _ core.AccountService = (*AccountReader)(nil)

func NewAccountReader(backend core.Backend, navigator core.Navigator, selectionPath string, logger zerolog.Logger) *AccountReader {
	if selectionPath == "" {
		selectionPath = core.DefaultSelectionPath
	}
	return &AccountReader{backend: backend, navigator: navigator, selectionPath: selectionPath, logger: logger}
}

func (a *AccountReader) User(ctx context.Context) (*core.User, error) {
	var user core.User
	if err := a.backend.Get(ctx, core.EndpointUser.Path, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *AccountReader) Subscription(ctx context.Context) (*core.Subscription, error) {
	var sub core.Subscription
	if err := a.backend.Get(ctx, core.EndpointSubscription.Path, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (a *AccountReader) Payments(ctx context.Context) ([]core.Payment, error) {
	var payments []core.Payment
	if err := a.backend.Get(ctx, core.EndpointPayments.Path, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (a *AccountReader) UserServers(ctx context.Context) ([]core.ServerConfig, error) {
	var configs []core.ServerConfig
	if err := a.backend.Get(ctx, core.EndpointUserServers.Path, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

func (a *AccountReader) Servers(ctx context.Context) ([]core.Server, error) {
	var servers []core.Server
	if err := a.backend.Get(ctx, core.EndpointServers.Path, &servers); err != nil {
		return nil, a.subscriptionRequired(ctx, err)
	}
	return servers, nil
}

// ServerConfig returns the connection artifact for serverID. Without an
// active subscription the caller is sent to plan selection.
func (a *AccountReader) ServerConfig(ctx context.Context, serverID string) (*core.ServerConfig, error) {
	if serverID == "" {
		return nil, errors.New("server id is required")
	}
	var cfg core.ServerConfig
	if err := a.backend.Get(ctx, core.EndpointServerConfig.Format(serverID), &cfg); err != nil {
		return nil, a.subscriptionRequired(ctx, err)
	}
	return &cfg, nil
}

func (a *AccountReader) DeleteServerConfig(ctx context.Context, serverID string) error {
	if serverID == "" {
		return errors.New("server id is required")
	}
	return a.backend.Delete(ctx, core.EndpointDeleteServerConfig.Format(serverID), nil)
}

// Overview loads the user and subscription concurrently.
func (a *AccountReader) Overview(ctx context.Context) (*core.Overview, error) {
	var overview core.Overview

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := a.User(gctx)
		overview.User = user
		return err
	})
	g.Go(func() error {
		sub, err := a.Subscription(gctx)
		overview.Subscription = sub
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &overview, nil
}

func (a *AccountReader) subscriptionRequired(ctx context.Context, err error) error {
	if core.StatusOf(err) != http.StatusForbidden {
		return err
	}
	a.logger.Info().Str("target", a.selectionPath).Msg("No active subscription, redirecting to plan selection")
	if nav := core.NavigatorFrom(ctx, a.navigator); nav != nil {
		nav.Navigate(a.selectionPath)
	}
	return fmt.Errorf("%w: %w", core.ErrNoSubscription, err)
}
