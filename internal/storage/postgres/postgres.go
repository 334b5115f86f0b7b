// Package postgres stores the combat journal in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/dicecrawl/internal/config"
)

// ErrSchemaMissing is returned by Health when the journal table has not been
// migrated.
var ErrSchemaMissing = errors.New("postgres: combat_journal table missing; run cmd/migrate")

// applicationName tags journal connections in pg_stat_activity.
const applicationName = "dicecrawl-journal"

// Pool owns the connection pool shared by the journal repository.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to the journal database described by cfg.
//
// Precondition: cfg must pass config.DatabaseConfig validation.
// Postcondition: Returns a Pool that answered a ping, or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Pool{pool: pool}, nil
}

// Health pings the database and checks that the journal schema is present,
// all within timeout.
//
// Postcondition: Returns ErrSchemaMissing when migrations have not been applied.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	var present bool
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass('combat_journal') IS NOT NULL`).Scan(&present); err != nil {
		return fmt.Errorf("checking journal schema: %w", err)
	}
	if !present {
		return ErrSchemaMissing
	}
	return nil
}

// Journal returns a JournalRepository over this pool.
func (p *Pool) Journal() *JournalRepository {
	return NewJournalRepository(p.pool)
}

// DB exposes the raw pool to tests and tooling.
func (p *Pool) DB() *pgxpool.Pool { return p.pool }

// Close releases every connection. The pool is unusable afterwards.
func (p *Pool) Close() {
	p.pool.Close()
}
