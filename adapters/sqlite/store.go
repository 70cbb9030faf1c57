package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/outlivion/portal/core"
)

const (
	defaultProfile  = "default"
	cleanupInterval = 5 * time.Minute
	privateDirPerm  = 0o700
)

type Config struct {
	Path   string
	Sealer core.Sealer

	// Optional config
	Profile string
	Now     func() time.Time
	Logger  zerolog.Logger
}

// Store is a file-backed core.CredentialStore. Values are sealed before
// they are written; each profile is an independent session.
type Store struct {
	db      *sql.DB
	sealer  core.Sealer
	profile string
	now     func() time.Time
	logger  zerolog.Logger

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

var _ core.CredentialStore = (*Store)(nil)

// Open opens (or creates) the credential database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if cfg.Sealer == nil {
		return nil, core.ErrSealerRequired
	}
	if cfg.Profile == "" {
		cfg.Profile = defaultProfile
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), privateDirPerm); err != nil {
		return nil, fmt.Errorf("create credential store dir: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(5000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open credential db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:          db,
		sealer:      cfg.Sealer,
		profile:     cfg.Profile,
		now:         cfg.Now,
		logger:      cfg.Logger,
		stopCleanup: make(chan struct{}),
	}
	if err := s.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.Join(err, fmt.Errorf("close credential db after schema init failure: %w", closeErr))
		}
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to restrict credential db permissions")
	}

	go s.cleanupLoop()
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		profile TEXT NOT NULL,
		name TEXT NOT NULL,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (profile, name)
	);
	CREATE INDEX IF NOT EXISTS idx_credentials_expires_at ON credentials(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init credential schema: %w", err)
	}
	return nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.DeleteExpired(); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to delete expired credentials")
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// Set replaces the named credential. An empty value or a non-positive ttl
// deletes it.
func (s *Store) Set(name, value string, ttl time.Duration) error {
	if ttl <= 0 || value == "" {
		return s.Delete(name)
	}

	sealed, err := s.sealer.Seal([]byte(value))
	if err != nil {
		return fmt.Errorf("seal credential %q: %w", name, err)
	}

	now := s.now()
	_, err = s.db.Exec(`
		INSERT INTO credentials (profile, name, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(profile, name) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, s.profile, name, sealed, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("store credential %q: %w", name, err)
	}
	return nil
}

func (s *Store) Get(name string) (string, error) {
	var (
		sealed    []byte
		expiresAt int64
	)
	err := s.db.QueryRow(
		`SELECT value, expires_at FROM credentials WHERE profile = ? AND name = ?`,
		s.profile, name,
	).Scan(&sealed, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrCredentialNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load credential %q: %w", name, err)
	}

	if !s.now().Before(time.Unix(0, expiresAt)) {
		if err := s.Delete(name); err != nil {
			s.logger.Warn().Err(err).Str("name", name).Msg("Failed to delete expired credential")
		}
		return "", core.ErrCredentialNotFound
	}

	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("open credential %q: %w", name, err)
	}
	return string(plain), nil
}

func (s *Store) Delete(name string) error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE profile = ? AND name = ?`, s.profile, name); err != nil {
		return fmt.Errorf("delete credential %q: %w", name, err)
	}
	return nil
}

// Clear removes every credential of this store's profile.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE profile = ?`, s.profile); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// DeleteExpired removes expired credentials of every profile.
func (s *Store) DeleteExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM credentials WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired credentials: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		err = s.db.Close()
	})
	return err
}
