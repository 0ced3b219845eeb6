package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig sizes the snapshot connection pool. Zero durations fall back
// to the defaults below.
type PoolConfig struct {
	URL         string
	MaxConns    int32
	MinConns    int32
	HealthEvery time.Duration
	ConnectWait time.Duration
}

const (
	defaultHealthEvery = 30 * time.Second
	defaultConnectWait = 5 * time.Second
)

func (pc PoolConfig) build() (*pgxpool.Config, error) {
	if pc.MaxConns > 0 && pc.MinConns > pc.MaxConns {
		return nil, fmt.Errorf("min conns %d exceeds max conns %d", pc.MinConns, pc.MaxConns)
	}
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	cfg.MinConns = pc.MinConns
	cfg.HealthCheckPeriod = pc.HealthEvery
	if cfg.HealthCheckPeriod <= 0 {
		cfg.HealthCheckPeriod = defaultHealthEvery
	}
	return cfg, nil
}

// Open creates the pool and waits for one successful ping. The pool backs
// snapshot persistence only; the care store itself stays in memory.
func Open(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pc.build()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	wait := pc.ConnectWait
	if wait <= 0 {
		wait = defaultConnectWait
	}
	pingCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s: %w", cfg.ConnConfig.Host, err)
	}
	return pool, nil
}
