// Package database provides database connection utilities.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// PoolConfig holds optional pool sizing. Zero values keep the pgxpool defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// PoolOption configures the connection pool.
type PoolOption func(*pgxpool.Config)

// WithPoolConfig applies pool sizing from cfg.
func WithPoolConfig(cfg PoolConfig) PoolOption {
	return func(c *pgxpool.Config) {
		if cfg.MaxConns > 0 {
			c.MaxConns = cfg.MaxConns
		}

		if cfg.MinConns > 0 {
			c.MinConns = cfg.MinConns
		}

		if cfg.MaxConnLifetime > 0 {
			c.MaxConnLifetime = cfg.MaxConnLifetime
		}
	}
}

// WithVectorTypes registers the pgvector types (vector, halfvec, sparsevec) on every new connection
// so embeddings are sent in binary format. The vector extension must already exist in the database.
func WithVectorTypes() PoolOption {
	return func(c *pgxpool.Config) {
		c.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if err := pgxvec.RegisterTypes(ctx, conn); err != nil {
				return fmt.Errorf("register pgvector types: %w", err)
			}

			return nil
		}
	}
}

// NewPostgresPool creates a new PostgreSQL connection pool and verifies it with a ping.
func NewPostgresPool(ctx context.Context, databaseURL string, opts ...PoolOption) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	for _, opt := range opts {
		opt(config)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL", "max_conns", config.MaxConns)

	return pool, nil
}
