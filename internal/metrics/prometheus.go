package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var _ Sink = (*PrometheusSink)(nil)

// PrometheusSink implements Sink with Prometheus collectors.
// Registration errors are logged and the collector keeps working unregistered.
type PrometheusSink struct {
	reconcilesTotal     *prometheus.CounterVec
	reconcileDuration   prometheus.Histogram
	statusAppliedTotal  *prometheus.CounterVec
	retriesTotal        *prometheus.CounterVec
	terminatedTotal     *prometheus.CounterVec
	isLeader            prometheus.Gauge
	leaderAcquiredTotal prometheus.Counter
	leaderLostTotal     *prometheus.CounterVec
	log                 *slog.Logger
}

func NewPrometheusSink(reg prometheus.Registerer, log *slog.Logger) *PrometheusSink {
	if log == nil {
		log = slog.Default()
	}
	s := &PrometheusSink{log: log}
	s.initControllerMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initControllerMetrics(reg prometheus.Registerer) {
	s.reconcilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sbomer_controller_reconciles_total",
		Help: "Total number of reconciles by outcome.",
	}, []string{"outcome"})
	s.reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sbomer_controller_reconcile_duration_seconds",
		Help:    "Duration of each reconcile in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
	s.statusAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sbomer_generation_status_applied_total",
		Help: "Total number of persisted status transitions by target status.",
	}, []string{"status"})
	s.retriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sbomer_generation_retries_total",
		Help: "Total number of out-of-memory retries by the retry count they reached.",
	}, []string{"retry_count"})
	s.terminatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sbomer_generation_terminated_total",
		Help: "Total number of generations that reached a terminal status by result.",
	}, []string{"result"})

	s.register(reg, s.reconcilesTotal, "sbomer_controller_reconciles_total")
	s.register(reg, s.reconcileDuration, "sbomer_controller_reconcile_duration_seconds")
	s.register(reg, s.statusAppliedTotal, "sbomer_generation_status_applied_total")
	s.register(reg, s.retriesTotal, "sbomer_generation_retries_total")
	s.register(reg, s.terminatedTotal, "sbomer_generation_terminated_total")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.isLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sbomer_leader_is_leader",
		Help: "Whether this replica holds the leader lock (1) or not (0).",
	})
	s.leaderAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sbomer_leader_acquired_total",
		Help: "Total number of times this replica acquired the leader lock.",
	})
	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sbomer_leader_lost_total",
		Help: "Total number of times this replica lost the leader lock by reason.",
	}, []string{"reason"})

	s.register(reg, s.isLeader, "sbomer_leader_is_leader")
	s.register(reg, s.leaderAcquiredTotal, "sbomer_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "sbomer_leader_lost_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.log.Warn("didn't register metric", "name", name, "error", err)
	}
}

func (s *PrometheusSink) ReconcileCompleted(duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.reconcilesTotal.WithLabelValues(outcome).Inc()
	s.reconcileDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) StatusApplied(status string) {
	s.statusAppliedTotal.WithLabelValues(status).Inc()
}

func (s *PrometheusSink) RetryScheduled(retryCount int) {
	s.retriesTotal.WithLabelValues(strconv.Itoa(retryCount)).Inc()
}

func (s *PrometheusSink) GenerationTerminated(result string) {
	s.terminatedTotal.WithLabelValues(result).Inc()
}

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.isLeader.Set(1)
	} else {
		s.isLeader.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquiredTotal.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}
