// Package tokenstore persists provider OAuth tokens in a small SQLite
// database, one row per provider key. It satisfies browser.TokenStore.
package tokenstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"golang.org/x/oauth2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// DirPerms is used when creating the database directory.
const DirPerms = 0o700

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	sqlLoadToken   = `SELECT token FROM tokens WHERE provider_key = ?`
	sqlSaveToken   = `INSERT INTO tokens (provider_key, token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(provider_key) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`
	sqlDeleteToken = `DELETE FROM tokens WHERE provider_key = ?`
	sqlListKeys    = `SELECT provider_key FROM tokens ORDER BY provider_key`
)

// record is the stored JSON form of a token. The wrapper leaves room for
// metadata next to the token.
type record struct {
	Token *oauth2.Token `json:"token"`
}

// Store is a SQLite-backed token store. All methods are safe for concurrent
// use; writes are serialized through a single connection.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use MemoryPath for tests.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), DirPerms); err != nil {
			return nil, fmt.Errorf("tokenstore: creating directory for %s: %w", path, err)
		}

		// DSN parameters ensure pragmas apply to every connection from the pool.
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: opening database %s: %w", path, err)
	}

	// Sole-writer pattern; also keeps a :memory: database on one connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("token store ready", slog.String("path", path))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// runMigrations applies all pending schema migrations to the database.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("tokenstore: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("tokenstore: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("tokenstore: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Load returns the token stored for key, or (nil, nil) when there is none.
func (s *Store) Load(ctx context.Context, key string) (*oauth2.Token, error) {
	var raw string

	err := s.db.QueryRowContext(ctx, sqlLoadToken, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenstore: loading %q: %w", key, err)
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("tokenstore: decoding %q: %w", key, err)
	}

	if rec.Token == nil {
		return nil, fmt.Errorf("tokenstore: %q has no token field (reconnect required)", key)
	}

	return rec.Token, nil
}

// Save stores tok for key, replacing any previous token. A nil token
// deletes the row.
func (s *Store) Save(ctx context.Context, key string, tok *oauth2.Token) error {
	if tok == nil {
		return s.Delete(ctx, key)
	}

	data, err := json.Marshal(record{Token: tok})
	if err != nil {
		return fmt.Errorf("tokenstore: encoding %q: %w", key, err)
	}

	if _, err := s.db.ExecContext(ctx, sqlSaveToken, key, string(data), s.nowFunc().Unix()); err != nil {
		return fmt.Errorf("tokenstore: saving %q: %w", key, err)
	}

	s.logger.Debug("token saved", slog.String("provider", key), slog.Time("expiry", tok.Expiry))

	return nil
}

// Delete removes the token stored for key. Deleting a missing key is not
// an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteToken, key); err != nil {
		return fmt.Errorf("tokenstore: deleting %q: %w", key, err)
	}

	s.logger.Debug("token deleted", slog.String("provider", key))

	return nil
}

// Keys returns every provider key with a stored token, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, sqlListKeys)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("tokenstore: scanning key: %w", err)
		}

		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tokenstore: iterating keys: %w", err)
	}

	return keys, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
