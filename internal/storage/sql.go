package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS lexmask_kv (
		name       TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

// SQLStore persists keys in a single lexmask_kv table. The same
// implementation serves SQLite and PostgreSQL; sqlx rebinds placeholders
// for the driver in use.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite database file.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite storage requires a path")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	return initSQLStore(ctx, db)
}

// NewPostgresStore connects to PostgreSQL.
func NewPostgresStore(ctx context.Context, databaseURL string, maxOpenConns int) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", maskDatabaseURL(databaseURL), err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	return initSQLStore(ctx, db)
}

func initSQLStore(ctx context.Context, db *sqlx.DB) (*SQLStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.ExecContext(ctx, createTableQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create lexmask_kv table: %w", err)
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	query := s.db.Rebind(`SELECT value FROM lexmask_kv WHERE name = ?`)

	err := s.db.GetContext(ctx, &value, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	query := s.db.Rebind(`
		INSERT INTO lexmask_kv (name, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`)

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// maskDatabaseURL hides the password of a connection URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	scheme := strings.Index(url, "://")
	creds := url[:at]
	if scheme >= 0 {
		creds = url[scheme+3 : at]
	}
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return url
	}
	prefix := url[:at-len(creds)]
	return prefix + creds[:colon] + ":***" + url[at:]
}
