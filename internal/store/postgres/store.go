// Package postgres provides a PostgreSQL-backed implementation of
// internal/store.Store using pgx/v5 and a pgxpool.Pool.
//
// All operations are safe for concurrent use.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoclipper/pipeline/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the central PostgreSQL-backed store for the clip extraction
// pipeline. It holds a single pgxpool.Pool shared by all four entity stores.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to dsn, runs Migrate, and returns a
// ready-to-use Store.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Subscriptions() store.Subscriptions { return &subscriptionStore{pool: s.pool} }
func (s *Store) Items() store.Items                 { return &itemStore{pool: s.pool} }
func (s *Store) Clips() store.Clips                 { return &clipStore{pool: s.pool} }
func (s *Store) PostJobs() store.PostJobs           { return &postJobStore{pool: s.pool} }
