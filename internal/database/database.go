// Package database opens the PostgreSQL connection pool and ensures the
// schema is current.
package database

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printdesk/printdesk/db"
	"github.com/printdesk/printdesk/internal/config"
)

// Connect runs migrations and returns a ready pool. The pool is the single
// shared database handle; callers own its lifetime and must call Close.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connURL := buildURL(cfg)

	if err := db.Migrate(connURL); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// buildURL renders a postgres:// URL with properly escaped credentials.
func buildURL(cfg *config.Config) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", cfg.PostgresHost, cfg.PostgresPort),
		Path:     "/" + cfg.PostgresDBName,
		RawQuery: "sslmode=" + cfg.PostgresSSLMode,
	}
	return u.String()
}
