package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

var (
	ErrUnsupportedTargetType = errors.New("unsupported target type")
	ErrAlreadyRegistered     = errors.New("already registered")
	ErrNoInitPhase           = errors.New("no init phase")
)

// Generator drives the jobs of the target types it supports.
type Generator interface {
	Name() string
	SupportedTypes() []generation.TargetType

	// FirstPhase returns the phase a new generation starts with.
	FirstPhase() execution.Phase

	Desired(g *generation.Generation, phase execution.Phase, attempt int) (*execution.Spec, error)

	// ReconcileGenerating computes the update of a generation
	// whose generate job succeeded.
	ReconcileGenerating(ctx context.Context, g *generation.Generation, r *execution.Resource) (*generation.Update, error)
}

// Initializer is implemented by generators with an init phase.
type Initializer interface {
	// ParseInitResult returns the generator config the init job of g produced.
	ParseInitResult(g *generation.Generation) (json.RawMessage, error)
}

type Collector interface {
	Collect(ctx context.Context, g *generation.Generation) ([]*generation.Manifest, error)
}

// Registry selects generators by target type.
type Registry struct {
	generators map[generation.TargetType]Generator
}

func NewRegistry() *Registry {
	return &Registry{generators: make(map[generation.TargetType]Generator)}
}

func (r *Registry) Register(g Generator) error {
	for _, t := range g.SupportedTypes() {
		if existing, ok := r.generators[t]; ok {
			return fmt.Errorf("generator.Registry: %s for %s: %w by %s", g.Name(), t, ErrAlreadyRegistered, existing.Name())
		}
	}
	for _, t := range g.SupportedTypes() {
		r.generators[t] = g
	}
	return nil
}

func (r *Registry) For(t generation.TargetType) (Generator, error) {
	g, ok := r.generators[t]
	if !ok {
		return nil, fmt.Errorf("generator.Registry: %s: %w", t, ErrUnsupportedTargetType)
	}
	return g, nil
}

// TargetTypes returns the supported target types, sorted.
func (r *Registry) TargetTypes() []generation.TargetType {
	types := make([]generation.TargetType, 0, len(r.generators))
	for t := range r.generators {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
