package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

const (
	initDirName        = "init"
	initResultFileName = "config.json"
)

var (
	_ Generator   = (*Container)(nil)
	_ Generator   = (*InitContainer)(nil)
	_ Initializer = (*InitContainer)(nil)
)

// Container is a generator that runs one container image per attempt.
type Container struct {
	name      string
	version   string
	types     []generation.TargetType
	image     string
	params    func(g *generation.Generation) []execution.Param
	policy    *Policy
	collector Collector
}

func (c *Container) Name() string {
	return c.name
}

func (c *Container) SupportedTypes() []generation.TargetType {
	return c.types
}

func (c *Container) FirstPhase() execution.Phase {
	return execution.PhaseGenerate
}

// Desired implements Generator.
func (c *Container) Desired(g *generation.Generation, phase execution.Phase, attempt int) (*execution.Spec, error) {
	if phase != execution.PhaseGenerate {
		return nil, fmt.Errorf("generator.Container: %s: %w", c.name, ErrNoInitPhase)
	}
	return Desired(c.policy, g, phase, attempt, c.task(g)), nil
}

func (c *Container) task(g *generation.Generation) *Task {
	var params []execution.Param
	if c.params != nil {
		params = c.params(g)
	}
	return &Task{Image: c.image, Name: c.name, Version: c.versionFor(g), Params: params}
}

// versionFor prefers the version requested by the generation.
func (c *Container) versionFor(g *generation.Generation) string {
	if g.Generator.Version != "" {
		return g.Generator.Version
	}
	return c.version
}

// ReconcileGenerating implements Generator.
func (c *Container) ReconcileGenerating(ctx context.Context, g *generation.Generation, _ *execution.Resource) (*generation.Update, error) {
	manifests, err := c.collector.Collect(ctx, g)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(manifests))
	for i, m := range manifests {
		ids[i] = m.ID.String()
	}

	return &generation.Update{
		Status: generation.StatusFinished,
		Result: generation.ResultSuccess,
		Reason: "Generation finished successfully. Generated manifests: " + strings.Join(ids, ", "),
	}, nil
}

// InitContainer is a Container preceded by an init container that resolves
// the generator config.
type InitContainer struct {
	*Container
	initImage string
}

func (c *InitContainer) FirstPhase() execution.Phase {
	return execution.PhaseInit
}

// Desired implements Generator.
func (c *InitContainer) Desired(g *generation.Generation, phase execution.Phase, attempt int) (*execution.Spec, error) {
	if phase != execution.PhaseInit {
		return c.Container.Desired(g, phase, attempt)
	}
	task := c.task(g)
	task.Image = c.initImage
	return Desired(c.policy, g, phase, attempt, task), nil
}

// ParseInitResult implements Initializer.
func (c *InitContainer) ParseInitResult(g *generation.Generation) (json.RawMessage, error) {
	name := filepath.Join(WorkDir(c.policy, g), initDirName, initResultFileName)

	b, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, generation.Errorf(generation.ResultErrSystem, "init job of %s produced no %s", c.name, initResultFileName)
	} else if err != nil {
		return nil, generation.Errorf(generation.ResultErrSystem, "read init result: %w", err)
	}

	var config map[string]any
	if err = json.Unmarshal(b, &config); err != nil {
		return nil, generation.Errorf(generation.ResultErrGeneration, "init job of %s produced an invalid %s: %w", c.name, initResultFileName, err)
	}

	var buf bytes.Buffer
	if err = json.Compact(&buf, b); err != nil {
		return nil, generation.Errorf(generation.ResultErrGeneration, "init job of %s produced an invalid %s: %w", c.name, initResultFileName, err)
	}
	return buf.Bytes(), nil
}
