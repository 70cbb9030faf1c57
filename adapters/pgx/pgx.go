package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outlivion/portal/core"
)

const (
	defaultProfile   = "default"
	defaultOpTimeout = 5 * time.Second
)

type Adapter struct {
	pool      *pgxpool.Pool
	sealer    core.Sealer
	profile   string
	now       func() time.Time
	opTimeout time.Duration
}

var _ core.CredentialStore = (*Adapter)(nil)

// Option customizes an Adapter.
type Option func(*Adapter)

func WithProfile(profile string) Option {
	return func(a *Adapter) {
		if profile != "" {
			a.profile = profile
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.opTimeout = d
		}
	}
}

// New returns a Postgres-backed credential store over pool. Call Migrate
// once before first use.
func New(pool *pgxpool.Pool, sealer core.Sealer, opts ...Option) (*Adapter, error) {
	if sealer == nil {
		return nil, core.ErrSealerRequired
	}
	a := &Adapter{
		pool:      pool,
		sealer:    sealer,
		profile:   defaultProfile,
		now:       time.Now,
		opTimeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Connect opens a pool for databaseURL and verifies it is reachable.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func (a *Adapter) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS public.portal_credentials (
			profile TEXT NOT NULL,
			name TEXT NOT NULL,
			value BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (profile, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_portal_credentials_expires_at ON public.portal_credentials (expires_at)`,
	}
	for _, q := range statements {
		if _, err := a.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("migrate credentials: %w", err)
		}
	}
	return nil
}

func (a *Adapter) Set(name, value string, ttl time.Duration) error {
	if ttl <= 0 || value == "" {
		return a.Delete(name)
	}

	sealed, err := a.sealer.Seal([]byte(value))
	if err != nil {
		return fmt.Errorf("seal credential %q: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.opTimeout)
	defer cancel()

	now := a.now().UTC()
	q := `INSERT INTO public.portal_credentials (profile, name, value, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (profile, name) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`
	if _, err := a.pool.Exec(ctx, q, a.profile, name, sealed, now.Add(ttl), now); err != nil {
		return fmt.Errorf("store credential %q: %w", name, err)
	}
	return nil
}

func (a *Adapter) Get(name string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.opTimeout)
	defer cancel()

	q := `SELECT value, expires_at FROM public.portal_credentials WHERE profile = $1 AND name = $2`
	var sealed []byte
	var expiresAt time.Time
	err := a.pool.QueryRow(ctx, q, a.profile, name).Scan(&sealed, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", core.ErrCredentialNotFound
		}
		return "", fmt.Errorf("load credential %q: %w", name, err)
	}

	if !a.now().Before(expiresAt) {
		_ = a.Delete(name)
		return "", core.ErrCredentialNotFound
	}

	plain, err := a.sealer.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("open credential %q: %w", name, err)
	}
	return string(plain), nil
}

func (a *Adapter) Delete(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.opTimeout)
	defer cancel()

	q := `DELETE FROM public.portal_credentials WHERE profile = $1 AND name = $2`
	if _, err := a.pool.Exec(ctx, q, a.profile, name); err != nil {
		return fmt.Errorf("delete credential %q: %w", name, err)
	}
	return nil
}

func (a *Adapter) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.opTimeout)
	defer cancel()

	q := `DELETE FROM public.portal_credentials WHERE profile = $1`
	if _, err := a.pool.Exec(ctx, q, a.profile); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// DeleteExpired removes expired credentials of every profile.
func (a *Adapter) DeleteExpired(ctx context.Context) (int64, error) {
	q := `DELETE FROM public.portal_credentials WHERE expires_at <= $1`
	tag, err := a.pool.Exec(ctx, q, a.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}
