// Package database provides the PostgreSQL connection pool and migration
// utilities shared by every store.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Client wraps the pgx connection pool used by all stores.
type Client struct {
	pool *pgxpool.Pool
}

// NewClient opens a connection pool, verifies connectivity and applies all
// pending migrations.
func NewClient(ctx context.Context, databaseURL string) (*Client, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(pool, poolConfig.ConnConfig.Database); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{pool: pool}, nil
}

// Pool returns the underlying connection pool for stores and health checks.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close releases every pooled connection.
func (c *Client) Close() {
	c.pool.Close()
}
