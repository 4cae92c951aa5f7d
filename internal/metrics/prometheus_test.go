package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusSink(t *testing.T) {
	t.Run("counts reconciles by outcome", func(t *testing.T) {
		sink := NewPrometheusSink(prometheus.NewRegistry(), nil)

		sink.ReconcileCompleted(time.Second, nil)
		sink.ReconcileCompleted(time.Second, nil)
		sink.ReconcileCompleted(time.Second, errors.New("boom"))

		if got, want := testutil.ToFloat64(sink.reconcilesTotal.WithLabelValues("success")), 2.0; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := testutil.ToFloat64(sink.reconcilesTotal.WithLabelValues("error")), 1.0; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("records generation outcomes", func(t *testing.T) {
		sink := NewPrometheusSink(prometheus.NewRegistry(), nil)

		sink.StatusApplied("GENERATING")
		sink.RetryScheduled(1)
		sink.GenerationTerminated("ERR_OOM")

		if got, want := testutil.ToFloat64(sink.statusAppliedTotal.WithLabelValues("GENERATING")), 1.0; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := testutil.ToFloat64(sink.retriesTotal.WithLabelValues("1")), 1.0; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := testutil.ToFloat64(sink.terminatedTotal.WithLabelValues("ERR_OOM")), 1.0; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("tracks leadership", func(t *testing.T) {
		sink := NewPrometheusSink(prometheus.NewRegistry(), nil)

		sink.LeaderStatusChanged(true)
		sink.LeaderAcquired()
		if got, want := testutil.ToFloat64(sink.isLeader), 1.0; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}

		sink.LeaderStatusChanged(false)
		sink.LeaderLost(ReasonConnLost)
		if got, want := testutil.ToFloat64(sink.isLeader), 0.0; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := testutil.ToFloat64(sink.leaderLostTotal.WithLabelValues(ReasonConnLost)), 1.0; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("keeps working when registration fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		_ = NewPrometheusSink(reg, nil)
		sink := NewPrometheusSink(reg, nil)

		sink.GenerationTerminated("SUCCESS")
		if got, want := testutil.ToFloat64(sink.terminatedTotal.WithLabelValues("SUCCESS")), 1.0; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}
