package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/outlivion/portal"
	pgxadapter "github.com/outlivion/portal/adapters/pgx"
	sqliteadapter "github.com/outlivion/portal/adapters/sqlite"
	"github.com/outlivion/portal/core"
	"github.com/outlivion/portal/internal/config"
	"github.com/outlivion/portal/internal/logging"
	"github.com/outlivion/portal/pkg/crypto"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	envFile   string
	apiURL    string
	storeName string
	profile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "portal",
	Short:         "Outlivion VPN customer portal",
	Long:          `Sign in with Telegram, buy or extend a VPN subscription and fetch server configurations`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "env file to load before reading PORTAL_* variables")
	flags.StringVar(&apiURL, "api-url", "", "billing backend base URL (PORTAL_API_URL)")
	flags.StringVar(&storeName, "store", "", "credential store: sqlite, postgres or memory (PORTAL_STORE)")
	flags.StringVar(&profile, "profile", "", "credential profile (PORTAL_PROFILE)")
	flags.StringVar(&logLevel, "log-level", "", "log level (PORTAL_LOG_LEVEL)")
	flags.StringVar(&logFormat, "log-format", "", "log format: json, console or auto (PORTAL_LOG_FORMAT)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "portal %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Fprintf(out, "Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Fprintf(out, "Commit: %s\n", GitCommit)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the env configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = apiURL
	}
	if flags.Changed("store") {
		cfg.Store = storeName
	}
	if flags.Changed("profile") {
		cfg.Profile = profile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// session is everything one command invocation needs.
type session struct {
	cfg    config.Config
	portal *core.Portal
	nav    *printNavigator
	logger zerolog.Logger
	close  func()
}

type setupOptions struct {
	http       portal.HTTPAdapter
	navigator  core.Navigator
	httpClient *http.Client
}

func setup(cmd *cobra.Command, opts setupOptions) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "portal",
	})

	store, closeStore, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}

	nav := newPrintNavigator(cmd.OutOrStdout())
	var navigator core.Navigator = nav
	if opts.navigator != nil {
		navigator = opts.navigator
	}

	p, err := portal.New(portal.Config{
		BaseURL:   cfg.APIURL,
		Store:     store,
		HTTP:      opts.http,
		Navigator: navigator,
		PaymentConfig: &portal.PaymentConfig{
			PollInterval: cfg.PollInterval,
			MaxAttempts:  cfg.PollAttempts,
			ConfirmDelay: cfg.ConfirmDelay,
		},
		RequestTimeout: cfg.RequestTimeout,
		HTTPClient:     opts.httpClient,
		UserAgent:      "outlivion-portal/" + Version,
		Logger:         &logger,
	})
	if err != nil {
		closeStore()
		return nil, err
	}

	return &session{cfg: cfg, portal: p, nav: nav, logger: logger, close: closeStore}, nil
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (core.CredentialStore, func(), error) {
	if !cfg.Persistent() {
		return portal.NewInMemoryStore(portal.StoreConfig{}), func() {}, nil
	}

	sealer, err := crypto.NewSealer(cfg.Secret)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Store {
	case config.StoreSQLite:
		store, err := sqliteadapter.Open(sqliteadapter.Config{
			Path:    cfg.SQLitePath,
			Sealer:  sealer,
			Profile: cfg.Profile,
			Logger:  logger.With().Str("component", "store").Logger(),
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close credential store")
			}
		}, nil

	case config.StorePostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := pgxadapter.Connect(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := pgxadapter.New(pool, sealer, pgxadapter.WithProfile(cfg.Profile))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := store.Migrate(connectCtx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	}

	return nil, nil, fmt.Errorf("unsupported store %q", cfg.Store)
}

// withSession runs fn with a ready session and closes it afterwards.
func withSession(fn func(cmd *cobra.Command, args []string, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := setup(cmd, setupOptions{})
		if err != nil {
			return err
		}
		defer s.close()
		return describe(fn(cmd, args, s))
	}
}

// describe turns a portal failure into the message the user should see.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *core.APIError
	switch {
	case errors.Is(err, core.ErrAuthorityRejected):
		return errors.New("session expired, run `portal login` again")
	case errors.Is(err, core.ErrNoSubscription):
		return errors.New("no active subscription, run `portal checkout` to buy one")
	case errors.Is(err, core.ErrPromoInvalid):
		return errors.New("promo code is invalid or expired")
	case errors.As(err, &apiErr) && !errors.Is(err, core.ErrPaymentFailed):
		return errors.New(apiErr.Message)
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
