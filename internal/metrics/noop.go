package metrics

import "time"

// NoopSink is used when metrics are disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) ReconcileCompleted(duration time.Duration, err error) {}
func (n *NoopSink) StatusApplied(status string)                          {}
func (n *NoopSink) RetryScheduled(retryCount int)                        {}
func (n *NoopSink) GenerationTerminated(result string)                   {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                    {}
func (n *NoopSink) LeaderAcquired()                                      {}
func (n *NoopSink) LeaderLost(reason string)                             {}
