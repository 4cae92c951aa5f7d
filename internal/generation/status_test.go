package generation

import (
	"math/rand/v2"
	"slices"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		next    Status
		want    bool
	}{
		{"accepts any status when current is absent", "", StatusGenerating, true},
		{"accepts a forward status", StatusNew, StatusInitializing, true},
		{"accepts a skipped forward status", StatusNew, StatusGenerating, true},
		{"accepts finished from generating", StatusGenerating, StatusFinished, true},
		{"rejects the same status", StatusGenerating, StatusGenerating, false},
		{"rejects a backward status", StatusGenerating, StatusInitialized, false},
		{"accepts failed from new", StatusNew, StatusFailed, true},
		{"accepts failed from initializing", StatusInitializing, StatusFailed, true},
		{"rejects failed after finished", StatusFinished, StatusFailed, false},
		{"rejects finished after failed", StatusFailed, StatusFinished, false},
		{"rejects no-op", StatusNew, StatusNoOp, false},
		{"rejects unknown status", StatusNew, Status("PAUSED"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.current, tt.next); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredecessors(t *testing.T) {
	t.Run("lists non-terminal statuses for failed", func(t *testing.T) {
		got := Predecessors(StatusFailed)
		want := []Status{StatusNew, StatusInitializing, StatusInitialized, StatusGenerating}
		if !slices.Equal(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("lists lower statuses for generating", func(t *testing.T) {
		got := Predecessors(StatusGenerating)
		want := []Status{StatusNew, StatusInitializing, StatusInitialized}
		if !slices.Equal(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("lists nothing for new", func(t *testing.T) {
		if got := Predecessors(StatusNew); len(got) != 0 {
			t.Fatalf("got %v, want none", got)
		}
	})
}

func TestStatusMonotonicity(t *testing.T) {
	forward := []Status{StatusNew, StatusInitializing, StatusInitialized, StatusGenerating, StatusFinished}

	t.Run("ends at the highest status for any delivery order", func(t *testing.T) {
		r := rand.New(rand.NewPCG(1, 2))
		for i := 0; i < 200; i++ {
			updates := slices.Clone(forward)
			r.Shuffle(len(updates), func(a, b int) { updates[a], updates[b] = updates[b], updates[a] })

			current := Status("")
			for _, next := range updates {
				if !CanTransition(current, next) {
					continue
				}
				if current != "" && next.Ordinal() < current.Ordinal() {
					t.Fatalf("regressed from %s to %s", current, next)
				}
				current = next
			}

			if current != StatusFinished {
				t.Fatalf("got %s, want %s for %v", current, StatusFinished, updates)
			}
		}
	})
}

func TestStatusFromString(t *testing.T) {
	t.Run("knows no-op", func(t *testing.T) {
		if _, known := StatusFromString("NO_OP"); !known {
			t.Fatal("want known")
		}
	})

	t.Run("doesn't know lowercase", func(t *testing.T) {
		if _, known := StatusFromString("new"); known {
			t.Fatal("want unknown")
		}
	})
}
