package memory

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
)

func newTestSpec(id uuid.UUID, attempt int) *execution.Spec {
	return &execution.Spec{
		Name:        execution.Name(id, execution.PhaseGenerate, attempt),
		OwnerRef:    execution.OwnerReference{GenerationID: id},
		Phase:       execution.PhaseGenerate,
		Annotations: map[string]string{execution.AnnotationRetryAttempt: strconv.Itoa(attempt)},
		TaskRef:     "quay.io/sbomer/generator-rpm:latest",
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	id := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000")

	t.Run("creates unknown resources", func(t *testing.T) {
		s := NewStore()
		r, err := s.Create(ctx, newTestSpec(id, 0))
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := r.Condition().Status, execution.ConditionUnknown; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	})

	t.Run("treats an identical create as a no-op", func(t *testing.T) {
		s := NewStore()
		if _, err := s.Create(ctx, newTestSpec(id, 0)); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if _, err := s.Create(ctx, newTestSpec(id, 0)); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		resources, _ := s.ListFor(ctx, id)
		if got, want := len(resources), 1; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})

	t.Run("rejects a different spec under the same name", func(t *testing.T) {
		s := NewStore()
		if _, err := s.Create(ctx, newTestSpec(id, 0)); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		spec := newTestSpec(id, 0)
		spec.TaskRef = "other"
		if _, err := s.Create(ctx, spec); !errors.Is(err, execution.ErrAlreadyExists) {
			t.Fatalf("got %v, want %q", err, execution.ErrAlreadyExists)
		}
	})

	t.Run("lists only owned resources", func(t *testing.T) {
		s := NewStore()
		other := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000")
		_, _ = s.Create(ctx, newTestSpec(id, 0))
		_, _ = s.Create(ctx, newTestSpec(other, 0))

		resources, err := s.ListFor(ctx, id)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := len(resources), 1; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})

	t.Run("deletes idempotently", func(t *testing.T) {
		s := NewStore()
		r, _ := s.Create(ctx, newTestSpec(id, 0))
		if err := s.Delete(ctx, r.Ref()); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if err := s.Delete(ctx, r.Ref()); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		resources, _ := s.ListFor(ctx, id)
		if len(resources) != 0 {
			t.Fatalf("got %d resources, want none", len(resources))
		}
	})

	t.Run("notifies watchers of status changes", func(t *testing.T) {
		s := NewStore()
		r, _ := s.Create(ctx, newTestSpec(id, 0))

		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		got := make(chan uuid.UUID, 1)
		started := make(chan struct{})
		go func() {
			close(started)
			_ = s.Watch(watchCtx, func(id uuid.UUID) {
				select {
				case got <- id:
				default:
				}
			})
		}()
		<-started

		deadline := time.After(5 * time.Second)
		for {
			err := s.SetStatus(r.Spec.Name, execution.Status{
				Conditions: []execution.Condition{{Status: execution.ConditionTrue}},
			})
			if err != nil {
				t.Fatalf("didn't want %q", err)
			}
			select {
			case gotID := <-got:
				if gotID != id {
					t.Fatalf("got %s, want %s", gotID, id)
				}
				return
			case <-time.After(10 * time.Millisecond):
			case <-deadline:
				t.Fatal("didn't get notified")
			}
		}
	})
}
