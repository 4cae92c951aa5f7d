package generation

import (
	"errors"
	"fmt"
	"testing"
)

func TestFailureUpdate(t *testing.T) {
	t.Run("keeps the result of a generation error", func(t *testing.T) {
		err := fmt.Errorf("collect: %w", Errorf(ResultErrGeneration, "manifest %s has no components", "a.json"))

		u := FailureUpdate(err)
		if got, want := u.Status, StatusFailed; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
		if got, want := u.Result, ResultErrGeneration; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
		if got, want := u.Reason, "manifest a.json has no components"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("maps other errors to a system error", func(t *testing.T) {
		u := FailureUpdate(errors.New("connection refused"))
		if got, want := u.Result, ResultErrSystem; got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
		if got, want := u.Reason, "connection refused"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})
}

func TestErrorf(t *testing.T) {
	t.Run("wraps with %w", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := Errorf(ResultErrSystem, "read manifest: %w", cause)
		if !errors.Is(err, cause) {
			t.Fatalf("want %q to wrap %q", err, cause)
		}
	})
}
