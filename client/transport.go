package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog"
)

const defaultResolverRefresh = 5 * time.Minute

// Resolver dials backend hosts through a DNS cache.
type Resolver struct {
	cache  *dnscache.Resolver
	dialer *net.Dialer

	refreshOnce sync.Once
}

func NewResolver() *Resolver {
	return &Resolver{
		cache: &dnscache.Resolver{},
		dialer: &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		},
	}
}

// DialContext resolves the host through the cache and tries each address in
// turn.
func (r *Resolver) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	ips, err := r.cache.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no IP addresses found", Name: host}
	}

	var errs []error
	for _, ip := range ips {
		conn, err := r.dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// StartRefresh refreshes cached entries every interval until ctx is done.
// Only the first call starts a loop.
func (r *Resolver) StartRefresh(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = defaultResolverRefresh
	}
	r.refreshOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					r.cache.Refresh(true)
					logger.Debug().Dur("interval", interval).Msg("DNS cache refreshed")
				}
			}
		}()
	})
}

// NewTransport returns an HTTP transport that dials through r.
func NewTransport(r *Resolver) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = r.DialContext
	transport.MaxIdleConnsPerHost = 8
	return transport
}
