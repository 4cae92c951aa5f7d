package pg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChannelGenerationChanged is notified with the generation id by a trigger
// on every insert or update of a generation.
const ChannelGenerationChanged = "generation_changed"

// Watcher listens for generation changes.
type Watcher struct {
	pool    *pgxpool.Pool
	channel string
	log     *slog.Logger
}

func NewWatcher(pool *pgxpool.Pool, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		pool:    pool,
		channel: ChannelGenerationChanged,
		log:     log.With("component", "pg.Watcher"),
	}
}

// Watch calls f with the id of every changed generation until ctx is done
// or the connection fails. It holds one pool connection while it runs.
func (w *Watcher) Watch(ctx context.Context, f func(id uuid.UUID)) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("pg.Watcher: %w", err)
	}
	defer func() {
		// LISTEN is session state; don't hand the connection back to the pool.
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}()

	if _, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{w.channel}.Sanitize()); err != nil {
		return fmt.Errorf("pg.Watcher: %w", err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("pg.Watcher: %w", err)
		}

		id, err := uuid.Parse(n.Payload)
		if err != nil {
			w.log.Warn("ignored notification", "channel", n.Channel, "payload", n.Payload, "error", err)
			continue
		}
		f(id)
	}
}
