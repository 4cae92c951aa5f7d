// Package docker runs execution resources as Docker containers.
//
// Every attempt is one container named after the spec. The spec itself
// travels in the container labels, so the store keeps no state of its own.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
)

const (
	LabelGenerationID   = "sbomer.generation-id"
	LabelPhase          = "sbomer.phase"
	LabelDeadline       = "sbomer.deadline"
	LabelDigest         = "sbomer.digest"
	LabelSpec           = "sbomer.spec"
	LabelServiceAccount = "sbomer.service-account"

	logTailLines = "20"
)

var _ execution.Store = (*Store)(nil)

// Client is the part of the Docker API client the store uses.
type Client interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	Events(ctx context.Context, options events.ListOptions) (<-chan events.Message, <-chan error)
}

var _ Client = (*client.Client)(nil)

type Store struct {
	client Client // required
	log    *slog.Logger
	now    func() time.Time
}

// NewClient connects to the daemon configured by the DOCKER_* environment variables.
func NewClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker.NewClient: %w", err)
	}
	return cli, nil
}

func NewStore(cli Client, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		client: cli,
		log:    log.With("component", "docker.Store"),
		now:    time.Now,
	}
}

// Create implements execution.Store.
func (s *Store) Create(ctx context.Context, spec *execution.Spec) (*execution.Resource, error) {
	digest, err := spec.Digest()
	if err != nil {
		return nil, fmt.Errorf("docker.Store: %w", err)
	}

	info, err := s.client.ContainerInspect(ctx, spec.Name)
	if err == nil {
		if info.Config == nil || info.Config.Labels[LabelDigest] != digest {
			return nil, fmt.Errorf("docker.Store: %s: %w", spec.Name, execution.ErrAlreadyExists)
		}
		return s.observe(ctx, info)
	} else if !errdefs.IsNotFound(err) {
		return nil, fmt.Errorf("docker.Store: %w", err)
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("docker.Store: %w", err)
	}

	labels := map[string]string{
		LabelGenerationID:   spec.OwnerRef.GenerationID.String(),
		LabelPhase:          string(spec.Phase),
		LabelDigest:         digest,
		LabelSpec:           string(specJSON),
		LabelServiceAccount: spec.ServiceAccount,
	}
	if spec.Timeout > 0 {
		labels[LabelDeadline] = s.now().Add(spec.Timeout).UTC().Format(time.RFC3339Nano)
	}
	for k, v := range spec.Annotations {
		labels[k] = v
	}

	env := make([]string, len(spec.Params))
	for i, p := range spec.Params {
		env[i] = p.Name + "=" + p.Value
	}

	if err = os.MkdirAll(spec.WorkspaceBinding.HostPath, 0o777); err != nil {
		return nil, fmt.Errorf("docker.Store: %w", err)
	}

	createResp, err := s.client.ContainerCreate(
		ctx,
		&container.Config{
			Image:  spec.TaskRef,
			Env:    env,
			Labels: labels,
		},
		&container.HostConfig{
			CapDrop: strslice.StrSlice{"ALL"},
			CapAdd: strslice.StrSlice{ // https://github.com/moby/moby/blob/master/oci/caps/defaults.go#L6-L19
				"CAP_CHOWN",
				"CAP_DAC_OVERRIDE",
				"CAP_FSETID",
				"CAP_FOWNER",
				"CAP_SETGID",
				"CAP_SETUID",
				"CAP_KILL",
			},
			ReadonlyRootfs: true,
			Mounts: []mount.Mount{
				{
					Type:   mount.TypeBind,
					Source: spec.WorkspaceBinding.HostPath,
					Target: spec.WorkspaceBinding.MountPath,
				},
				{
					Type:   mount.TypeTmpfs,
					Target: "/tmp",
					TmpfsOptions: &mount.TmpfsOptions{
						SizeBytes: 1024 * 1024 * 1024, // 1GB
						Mode:      0o1777,
					},
				},
			},
			Resources: container.Resources{
				Memory:            spec.Resources.Limits.Memory.Value(),
				MemoryReservation: spec.Resources.Requests.Memory.Value(),
				NanoCPUs:          spec.Resources.Limits.CPU.MilliValue() * 1_000_000,
			},
		},
		nil,
		nil,
		spec.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("docker.Store: %w", err)
	}
	if len(createResp.Warnings) > 0 {
		s.log.Warn("created container with warnings", "name", spec.Name, "warnings", createResp.Warnings)
	}

	if err = s.client.ContainerStart(ctx, createResp.ID, container.StartOptions{}); err != nil {
		if removeErr := s.client.ContainerRemove(ctx, createResp.ID, container.RemoveOptions{Force: true}); removeErr != nil {
			s.log.Error("didn't remove container", "id", createResp.ID, "error", removeErr)
		}
		return nil, fmt.Errorf("docker.Store: %w", err)
	}

	info, err = s.client.ContainerInspect(ctx, createResp.ID)
	if err != nil {
		return nil, fmt.Errorf("docker.Store: %w", err)
	}
	return s.observe(ctx, info)
}

// Delete implements execution.Store.
func (s *Store) Delete(ctx context.Context, ref *execution.Reference) error {
	err := s.client.ContainerRemove(ctx, ref.Name, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("docker.Store: %w", err)
	}
	return nil
}

// ListFor implements execution.Store.
// It kills containers that run past their deadline.
func (s *Store) ListFor(ctx context.Context, generationID uuid.UUID) ([]*execution.Resource, error) {
	containers, err := s.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelGenerationID+"="+generationID.String())),
	})
	if err != nil {
		return nil, fmt.Errorf("docker.Store: %w", err)
	}

	resources := make([]*execution.Resource, 0, len(containers))
	for _, c := range containers {
		info, err := s.client.ContainerInspect(ctx, c.ID)
		if errdefs.IsNotFound(err) {
			continue // removed since listed
		} else if err != nil {
			return nil, fmt.Errorf("docker.Store: %w", err)
		}

		r, err := s.observe(ctx, info)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// Watch implements execution.Store.
func (s *Store) Watch(ctx context.Context, f func(generationID uuid.UUID)) error {
	messages, errs := s.client.Events(ctx, events.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("type", string(events.ContainerEventType)),
			filters.Arg("label", LabelGenerationID),
		),
	})

	for {
		select {
		case m := <-messages:
			id, err := uuid.Parse(m.Actor.Attributes[LabelGenerationID])
			if err != nil {
				s.log.Warn("ignored event", "action", m.Action, "container_id", m.Actor.ID, "error", err)
				continue
			}
			f(id)
		case err := <-errs:
			if err == nil || errors.Is(err, io.EOF) {
				return errors.New("docker.Store: event stream closed")
			}
			return fmt.Errorf("docker.Store: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Store) observe(ctx context.Context, info types.ContainerJSON) (*execution.Resource, error) {
	r, err := toResource(info)
	if err != nil {
		return nil, fmt.Errorf("docker.Store: %w", err)
	}

	if isExpired(info, s.now()) {
		if err = s.client.ContainerKill(ctx, info.ID, "SIGKILL"); err != nil && !errdefs.IsNotFound(err) && !errdefs.IsConflict(err) {
			return nil, fmt.Errorf("docker.Store: %w", err)
		}
		s.log.Info("killed expired container", "name", r.Spec.Name, "timeout", r.Spec.Timeout)
		r.Status = timedOutStatus(r.Spec)
		return r, nil
	}

	if r.Condition().Status == execution.ConditionFalse {
		if logs := s.logTail(ctx, info.ID); logs != "" {
			r.Status.Conditions[0].Message += "\n" + logs
		}
	}
	return r, nil
}

func (s *Store) logTail(ctx context.Context, id string) string {
	rc, err := s.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: logTailLines})
	if err != nil {
		s.log.Warn("didn't read container logs", "id", id, "error", err)
		return ""
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err = stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		s.log.Warn("didn't read container logs", "id", id, "error", err)
	}
	return strings.TrimSpace(buf.String())
}
