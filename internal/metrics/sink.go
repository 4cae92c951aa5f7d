// Package metrics records controller activity.
package metrics

import "time"

// Sink records metrics. Implementations must not block or return errors.
type Sink interface {
	ReconcileCompleted(duration time.Duration, err error)
	StatusApplied(status string)
	RetryScheduled(retryCount int)
	GenerationTerminated(result string)

	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Leader loss reasons.
const (
	ReasonShutdown = "shutdown"
	ReasonConnLost = "conn_lost"
)
