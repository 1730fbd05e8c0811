package db

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles the two local analytical databases. The default store holds
// the replicated CRM mirror, exclusions, currency settings, and the sync log;
// the planning store holds discount versions, plans, the cashback matrix, and
// calculator settings.
type Stores struct {
	Default  *pgxpool.Pool
	Planning *pgxpool.Pool
}

func (s *Stores) Close() {
	if s.Default != nil {
		s.Default.Close()
	}
	if s.Planning != nil && s.Planning != s.Default {
		s.Planning.Close()
	}
}

// NewStores connects both local pools. PLANNING_DATABASE_URL defaults to
// DATABASE_URL so a single-database deployment works out of the box.
func NewStores(ctx context.Context) (*Stores, error) {
	def, err := newPool(ctx, "DATABASE_URL")
	if err != nil {
		return nil, err
	}

	planningURL := os.Getenv("PLANNING_DATABASE_URL")
	if planningURL == "" || planningURL == os.Getenv("DATABASE_URL") {
		return &Stores{Default: def, Planning: def}, nil
	}

	plan, err := newPool(ctx, "PLANNING_DATABASE_URL")
	if err != nil {
		def.Close()
		return nil, err
	}
	return &Stores{Default: def, Planning: plan}, nil
}

// NewSourcePool connects to the upstream operational database. It is only
// ever read from.
func NewSourcePool(ctx context.Context) (*pgxpool.Pool, error) {
	return newPool(ctx, "SOURCE_DATABASE_URL")
}

func newPool(ctx context.Context, envVar string) (*pgxpool.Pool, error) {
	connStr := os.Getenv(envVar)
	if connStr == "" {
		return nil, fmt.Errorf("%s environment variable not set", envVar)
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", envVar, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database (%s): %w", envVar, err)
	}

	return pool, nil
}
