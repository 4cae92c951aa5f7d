// Package leaderelection elects one controller replica with a Postgres
// advisory lock.
//
// The lock is session-scoped and held for the lifetime of one dedicated
// connection. There is no TTL: if the connection dies, Postgres releases
// the lock server-side. The heartbeat ping only detects local connection
// death so the replica stops acting as leader promptly.
package leaderelection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	LockKey           int64         `env:"LOCK_KEY" envDefault:"5302641"`
	RetryInterval     time.Duration `env:"RETRY_INTERVAL" envDefault:"5s" validate:"gt=0"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"2s" validate:"gt=0"`
}

type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Elector campaigns for the lock until its context is done.
type Elector struct {
	pool              *pgxpool.Pool // required
	lockKey           int64
	retryInterval     time.Duration
	heartbeatInterval time.Duration
	metrics           MetricsSink // optional
	log               *slog.Logger

	leader atomic.Bool
}

func New(pool *pgxpool.Pool, cfg *Config, log *slog.Logger) *Elector {
	if log == nil {
		log = slog.Default()
	}
	return &Elector{
		pool:              pool,
		lockKey:           cfg.LockKey,
		retryInterval:     cfg.RetryInterval,
		heartbeatInterval: cfg.HeartbeatInterval,
		log:               log.With("component", "leaderelection.Elector", "lock_key", cfg.LockKey),
	}
}

func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// IsLeader reports whether this replica currently holds the lock.
func (e *Elector) IsLeader() bool {
	return e.leader.Load()
}

// Run blocks until ctx is done.
func (e *Elector) Run(ctx context.Context) {
	e.log.Info("starting election loop", "retry_interval", e.retryInterval, "heartbeat_interval", e.heartbeatInterval)

	for {
		reason := e.runOnce(ctx)
		if ctx.Err() != nil {
			e.log.Info("stopped election loop")
			return
		}
		if reason != "" {
			e.log.Warn("lost leadership", "reason", reason)
		}

		select {
		case <-ctx.Done():
			e.log.Info("stopped election loop")
			return
		case <-time.After(e.retryInterval):
		}
	}
}

// runOnce returns the reason leadership was lost, or "" if the lock
// wasn't acquired.
func (e *Elector) runOnce(ctx context.Context) string {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Error("didn't acquire connection", "error", err)
		}
		return ""
	}
	// The lock belongs to the session, so the connection is closed rather
	// than returned to the pool.
	pgConn := conn.Hijack()
	defer func() {
		_ = pgConn.Close(context.Background())
	}()

	var acquired bool
	if err = pgConn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&acquired); err != nil {
		if ctx.Err() == nil {
			e.log.Error("didn't query advisory lock", "error", err)
		}
		return ""
	}
	if !acquired {
		e.log.Debug("lock held by another replica")
		return ""
	}

	e.log.Info("acquired leadership")
	e.leader.Store(true)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	reason := e.holdLock(ctx, pgConn.Ping)

	e.leader.Store(false)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}
	e.log.Info("released leadership", "reason", reason)
	return reason
}

func (e *Elector) holdLock(ctx context.Context, ping func(context.Context) error) string {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return reasonShutdown
		case <-ticker.C:
			if err := ping(ctx); err != nil {
				if ctx.Err() != nil {
					return reasonShutdown
				}
				e.log.Error("didn't ping connection", "error", err)
				return reasonConnLost
			}
		}
	}
}

const (
	reasonShutdown = "shutdown"
	reasonConnLost = "conn_lost"
)

// Static is a fixed leadership answer for single-replica deployments and tests.
type Static bool

func (s Static) IsLeader() bool {
	return bool(s)
}
