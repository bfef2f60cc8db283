package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions tunes the connection pool and query logging.
type PoolOptions struct {
	MaxConns int32
	MinConns int32

	// SlowQuery is the minimum duration for a successful query to be logged.
	// Zero logs every query.
	SlowQuery time.Duration

	// LogArgs includes bind arguments in query logs.
	LogArgs bool
}

// NewPool parses databaseURL, installs the otelpgx tracer wrapped with query
// logging and metrics, connects and pings.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	cfg.ConnConfig.Tracer = newQueryTracer(
		otelpgx.NewTracer(),
		opts.SlowQuery,
		opts.LogArgs,
	)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
