package docker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/google/uuid"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
	"github.com/project-ncl/sbomer-sub004/internal/retry"
)

func newTestInfo(tb testing.TB, state *types.ContainerState, deadline time.Time) types.ContainerJSON {
	tb.Helper()

	spec := execution.Spec{
		Name:     "generation-aaaaaaaa-0000-0000-0000-000000000000-3-0",
		OwnerRef: execution.OwnerReference{GenerationID: uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000")},
		Phase:    execution.PhaseGenerate,
		Timeout:  time.Hour,
	}
	b, err := json.Marshal(spec)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}

	labels := map[string]string{LabelSpec: string(b)}
	if !deadline.IsZero() {
		labels[LabelDeadline] = deadline.Format(time.RFC3339Nano)
	}

	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:      "c1",
			Created: "2024-01-01T00:00:00Z",
			State:   state,
		},
		Config: &container.Config{Labels: labels},
	}
}

func TestToResource(t *testing.T) {
	t.Run("reports running containers as unknown", func(t *testing.T) {
		r, err := toResource(newTestInfo(t, &types.ContainerState{Status: "running", Running: true}, time.Time{}))
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := r.Condition().Status, execution.ConditionUnknown; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
		if got, want := r.Spec.Phase, execution.PhaseGenerate; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	})

	t.Run("reports a zero exit as true", func(t *testing.T) {
		r, err := toResource(newTestInfo(t, &types.ContainerState{Status: "exited"}, time.Time{}))
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := r.Condition().Status, execution.ConditionTrue; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	})

	t.Run("reports a non-zero exit as false with the exit code", func(t *testing.T) {
		r, err := toResource(newTestInfo(t, &types.ContainerState{Status: "exited", ExitCode: 3}, time.Time{}))
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := r.Condition().Status, execution.ConditionFalse; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
		if code, ok := retry.FailedExitCode(r.Status.Steps); !ok || code != 3 {
			t.Fatalf("got %d %v, want 3 true", code, ok)
		}
		if retry.IsOOMKilled(r.Status.Steps) {
			t.Fatal("didn't want OOM")
		}
	})

	t.Run("reports an OOM kill", func(t *testing.T) {
		r, err := toResource(newTestInfo(t, &types.ContainerState{Status: "exited", ExitCode: 137, OOMKilled: true}, time.Time{}))
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if !retry.IsOOMKilled(r.Status.Steps) {
			t.Fatal("want OOM")
		}
	})

	t.Run("reports a kill after the deadline as a timeout", func(t *testing.T) {
		deadline := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
		state := &types.ContainerState{Status: "exited", ExitCode: 137, FinishedAt: deadline.Add(time.Second).Format(time.RFC3339Nano)}

		r, err := toResource(newTestInfo(t, state, deadline))
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := r.Condition().Reason, retry.ReasonTimedOut; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
		if retry.IsOOMKilled(r.Status.Steps) {
			t.Fatal("didn't want OOM")
		}
	})

	t.Run("rejects a container without a spec", func(t *testing.T) {
		info := newTestInfo(t, &types.ContainerState{Status: "exited"}, time.Time{})
		info.Config.Labels = nil
		if _, err := toResource(info); err == nil {
			t.Fatal("want error")
		}
	})
}

func TestIsExpired(t *testing.T) {
	deadline := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	t.Run("expires running containers past the deadline", func(t *testing.T) {
		info := newTestInfo(t, &types.ContainerState{Status: "running", Running: true}, deadline)
		if !isExpired(info, deadline.Add(time.Second)) {
			t.Fatal("want expired")
		}
		if isExpired(info, deadline.Add(-time.Second)) {
			t.Fatal("didn't want expired")
		}
	})

	t.Run("doesn't expire exited containers", func(t *testing.T) {
		info := newTestInfo(t, &types.ContainerState{Status: "exited"}, deadline)
		if isExpired(info, deadline.Add(time.Hour)) {
			t.Fatal("didn't want expired")
		}
	})
}
