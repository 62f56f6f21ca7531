package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Checker pings the backing stores.
type Checker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewChecker creates a Checker.
func NewChecker(pool *pgxpool.Pool, rdb *redis.Client) *Checker {
	return &Checker{pool: pool, rdb: rdb}
}

// Ping returns the joined errors of every unreachable store.
func (h *Checker) Ping(ctx context.Context) error {
	var errs []error
	if err := h.pool.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("postgres: %w", err))
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}
	return errors.Join(errs...)
}
