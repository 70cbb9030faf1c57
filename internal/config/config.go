package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

const defaultAPIURL = "http://localhost:3001"
const defaultSQLitePath = "./portal.db"
const defaultProfile = "default"
const defaultListen = "127.0.0.1:3000"
const defaultRequestTimeout = 30 * time.Second
const defaultPollInterval = 2 * time.Second
const defaultPollAttempts = 5
const defaultConfirmDelay = 3 * time.Second
const minSecretLen = 32

type Config struct {
	APIURL      string
	Store       string
	SQLitePath  string
	DatabaseURL string
	Secret      string
	Profile     string
	LogLevel    string
	LogFormat   string
	Listen      string

	RequestTimeout time.Duration
	PollInterval   time.Duration
	PollAttempts   int
	ConfirmDelay   time.Duration
}

// Load reads the given .env files (".env" when none are named), then the
// PORTAL_* environment. Variables already set in the environment win over
// file values. A missing env file is not an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := Config{
		APIURL:         envOrDefault("PORTAL_API_URL", defaultAPIURL),
		Store:          strings.ToLower(envOrDefault("PORTAL_STORE", StoreSQLite)),
		SQLitePath:     envOrDefault("PORTAL_SQLITE_PATH", defaultSQLitePath),
		DatabaseURL:    envOrDefault("PORTAL_DATABASE_URL", ""),
		Secret:         envOrDefault("PORTAL_SECRET", ""),
		Profile:        envOrDefault("PORTAL_PROFILE", defaultProfile),
		LogLevel:       envOrDefault("PORTAL_LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("PORTAL_LOG_FORMAT", "auto"),
		Listen:         envOrDefault("PORTAL_LISTEN", defaultListen),
		RequestTimeout: envDurationOrDefault("PORTAL_REQUEST_TIMEOUT", defaultRequestTimeout),
		PollInterval:   envDurationOrDefault("PORTAL_POLL_INTERVAL", defaultPollInterval),
		PollAttempts:   envIntOrDefault("PORTAL_POLL_ATTEMPTS", defaultPollAttempts),
		ConfirmDelay:   envDurationOrDefault("PORTAL_CONFIRM_DELAY", defaultConfirmDelay),
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.APIURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api url %q", c.APIURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url scheme must be http or https, got %q", u.Scheme)
	}

	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("missing PORTAL_SQLITE_PATH for sqlite store")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("missing PORTAL_DATABASE_URL for postgres store")
		}
	default:
		return fmt.Errorf("store must be one of: %s, %s, %s", StoreSQLite, StorePostgres, StoreMemory)
	}
	if c.Persistent() {
		if c.Secret == "" {
			return errors.New("missing PORTAL_SECRET for persistent store")
		}
		if len(c.Secret) < minSecretLen {
			return fmt.Errorf("PORTAL_SECRET must be at least %d characters", minSecretLen)
		}
	}
	if strings.TrimSpace(c.Profile) == "" {
		return errors.New("profile must not be empty")
	}

	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.PollAttempts <= 0 {
		return errors.New("poll attempts must be positive")
	}
	if c.ConfirmDelay < 0 {
		return errors.New("confirm delay must not be negative")
	}
	return nil
}

// Persistent reports whether credentials outlive the process.
func (c Config) Persistent() bool {
	return c.Store == StoreSQLite || c.Store == StorePostgres
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
