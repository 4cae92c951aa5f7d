// Package retry decides what happens to a generation after its job failed.
//
// Only out-of-memory failures are retried, each time with more memory.
// Every other failure is terminal.
package retry

import (
	"fmt"
	"math"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

const (
	exitCodeOOMKilled = 137 // 128 + SIGKILL

	ReasonOOMKilled = "OOMKilled"
	ReasonTimedOut  = "TimedOut"
)

type Class int

const (
	ClassGeneral Class = iota
	ClassOOM
)

func (c Class) String() string {
	if c == ClassOOM {
		return "oom"
	}
	return "general"
}

// FailedExitCode returns the exit code of the first step that exited non-zero.
// It returns false if no step did.
func FailedExitCode(steps []execution.StepResult) (int, bool) {
	for _, s := range steps {
		if s.Terminated != nil && s.Terminated.ExitCode != 0 {
			return s.Terminated.ExitCode, true
		}
	}
	return 0, false
}

// IsOOMKilled reports whether any step was killed for running out of memory.
// A SIGKILL exit counts unless the platform attributed it to a timeout.
func IsOOMKilled(steps []execution.StepResult) bool {
	for _, s := range steps {
		if s.Terminated == nil {
			continue
		}
		switch {
		case s.Terminated.Reason == ReasonOOMKilled:
			return true
		case s.Terminated.Reason == ReasonTimedOut:
			continue
		case s.Terminated.ExitCode == exitCodeOOMKilled:
			return true
		}
	}
	return false
}

func Classify(r *execution.Resource) Class {
	if IsOOMKilled(r.Status.Steps) {
		return ClassOOM
	}
	return ClassGeneral
}

type Policy struct {
	MaxRetries       int     `env:"MAX_RETRIES" envDefault:"3" validate:"gte=0"`
	MemoryMultiplier float64 `env:"MEMORY_MULTIPLIER" envDefault:"1.5" validate:"gte=1"`
}

// Decision is the outcome of a failed job.
// Either Retry is true and Attempt is the attempt of the phase to create
// next, or Update fails the generation.
// RetryCount is the retry count the generation has after the failure.
type Decision struct {
	Retry      bool
	Attempt    int
	RetryCount int
	Update     *generation.Update
}

// Decide classifies the failed resource r and picks the next step.
//
// Retries are counted per generation across all of its phases. The count
// starts from the one r was created with, so deciding twice on the same
// failure gives the same decision. The failure that exceeds MaxRetries
// still counts: with MaxRetries 2 the generation fails with a count of 3.
func (p *Policy) Decide(r *execution.Resource) *Decision {
	if Classify(r) == ClassGeneral {
		return &Decision{
			RetryCount: r.Spec.RetryCount(),
			Update: &generation.Update{
				Status: generation.StatusFailed,
				Result: generation.ResultErrGeneral,
				Reason: "Generation failed: " + diagnostics(r),
			},
		}
	}

	retryCount := r.Spec.RetryCount() + 1
	if retryCount > p.MaxRetries {
		return &Decision{
			RetryCount: retryCount,
			Update: &generation.Update{
				Status: generation.StatusFailed,
				Result: generation.ResultErrOOM,
				Reason: fmt.Sprintf(
					"Generation failed: the system ran out of memory after %d retries with memory limit %s: %s",
					p.MaxRetries, r.Spec.Resources.Limits.Memory.String(), diagnostics(r),
				),
			},
		}
	}

	return &Decision{Retry: true, Attempt: r.Spec.Attempt() + 1, RetryCount: retryCount}
}

// ScaleMemory returns base multiplied by multiplier to the power of attempt.
func ScaleMemory(base resource.Quantity, multiplier float64, attempt int) resource.Quantity {
	if attempt <= 0 || base.IsZero() {
		return base.DeepCopy()
	}
	scaled := math.Round(float64(base.Value()) * math.Pow(multiplier, float64(attempt)))
	return *resource.NewQuantity(int64(scaled), base.Format)
}

func diagnostics(r *execution.Resource) string {
	var b strings.Builder

	cond := r.Condition()
	if cond.Reason != "" {
		b.WriteString(cond.Reason)
	}
	if cond.Message != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(cond.Message)
	}

	if code, ok := FailedExitCode(r.Status.Steps); ok {
		for _, s := range r.Status.Steps {
			if s.Terminated == nil || s.Terminated.ExitCode != code {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "step %q exited with code %d", s.Name, code)
			if s.Terminated.Reason != "" {
				fmt.Fprintf(&b, " (%s)", s.Terminated.Reason)
			}
			break
		}
	} else {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString("no step exited with a non-zero code")
	}

	return b.String()
}
