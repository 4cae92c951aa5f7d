package docker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
	"github.com/project-ncl/sbomer-sub004/internal/retry"
)

const exitCodeKilled = 137

// toResource converts an inspected container to the resource it runs.
func toResource(info types.ContainerJSON) (*execution.Resource, error) {
	if info.ContainerJSONBase == nil || info.Config == nil || info.State == nil {
		return nil, errors.New("incomplete container inspection")
	}

	var spec execution.Spec
	if err := json.Unmarshal([]byte(info.Config.Labels[LabelSpec]), &spec); err != nil {
		return nil, fmt.Errorf("container %s has an invalid spec label: %w", info.ID, err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, info.Created)

	return &execution.Resource{
		Spec:      spec,
		CreatedAt: createdAt,
		Status:    toStatus(spec.Phase, info.State, deadline(info)),
	}, nil
}

func toStatus(phase execution.Phase, state *types.ContainerState, deadline time.Time) execution.Status {
	switch state.Status {
	case "exited", "dead":
	default:
		// created, running, paused, restarting and removing
		return execution.Status{
			Conditions: []execution.Condition{{Status: execution.ConditionUnknown, Reason: state.Status}},
			Steps:      []execution.StepResult{{Name: string(phase)}},
		}
	}

	if state.ExitCode == 0 && !state.OOMKilled {
		return execution.Status{
			Conditions: []execution.Condition{{Status: execution.ConditionTrue, Reason: "Succeeded"}},
			Steps: []execution.StepResult{{
				Name:       string(phase),
				Terminated: &execution.Terminated{ExitCode: 0, Reason: "Completed"},
			}},
		}
	}

	reason := "Error"
	finishedAt, _ := time.Parse(time.RFC3339Nano, state.FinishedAt)
	switch {
	case state.OOMKilled:
		reason = retry.ReasonOOMKilled
	case state.ExitCode == exitCodeKilled && !deadline.IsZero() && !finishedAt.Before(deadline):
		reason = retry.ReasonTimedOut
	}

	message := fmt.Sprintf("container exited with code %d", state.ExitCode)
	if state.Error != "" {
		message += ": " + state.Error
	}

	return execution.Status{
		Conditions: []execution.Condition{{Status: execution.ConditionFalse, Reason: reason, Message: message}},
		Steps: []execution.StepResult{{
			Name:       string(phase),
			Terminated: &execution.Terminated{ExitCode: state.ExitCode, Reason: reason},
		}},
	}
}

func timedOutStatus(spec execution.Spec) execution.Status {
	return execution.Status{
		Conditions: []execution.Condition{{
			Status:  execution.ConditionFalse,
			Reason:  retry.ReasonTimedOut,
			Message: fmt.Sprintf("container exceeded its timeout of %s", spec.Timeout),
		}},
		Steps: []execution.StepResult{{
			Name:       string(spec.Phase),
			Terminated: &execution.Terminated{ExitCode: exitCodeKilled, Reason: retry.ReasonTimedOut},
		}},
	}
}

func deadline(info types.ContainerJSON) time.Time {
	if info.Config == nil {
		return time.Time{}
	}
	d, err := time.Parse(time.RFC3339Nano, info.Config.Labels[LabelDeadline])
	if err != nil {
		return time.Time{}
	}
	return d
}

// isExpired reports whether the container still runs past its deadline.
func isExpired(info types.ContainerJSON, now time.Time) bool {
	if info.State == nil || !info.State.Running {
		return false
	}
	d := deadline(info)
	return !d.IsZero() && now.After(d)
}
