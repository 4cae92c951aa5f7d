// Package memory provides an in-process generation.Database.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

const (
	CallBegin                      = "Begin"
	CallCommit                     = "Commit"
	CallRollback                   = "Rollback"
	CallCreateGeneration           = "CreateGeneration"
	CallGetGeneration              = "GetGeneration"
	CallListGenerations            = "ListGenerations"
	CallUpdateGenerationStatus     = "UpdateGenerationStatus"
	CallUpdateGenerationRetryCount = "UpdateGenerationRetryCount"
	CallUpdateGenerationConfig     = "UpdateGenerationConfig"
	CallCreateManifest             = "CreateManifest"
	CallListManifests              = "ListManifests"
)

var (
	_ generation.Database   = (*Database)(nil)
	_ generation.DatabaseTx = (*DatabaseTx)(nil)
)

type state struct {
	mu          sync.Mutex
	generations map[uuid.UUID]*generation.Generation
	manifests   []*generation.Manifest
	calls       []string
	now         func() time.Time

	// failStatus fails the next update to failStatus with failErr.
	failStatus generation.Status
	failErr    error
}

// Database keeps generations and manifests in memory.
// It records the name of every call it serves, see Calls.
type Database struct {
	state *state
}

func NewDatabase() *Database {
	return &Database{state: &state{
		generations: make(map[uuid.UUID]*generation.Generation),
		now:         time.Now,
	}}
}

// Calls returns the calls served so far, in order.
func (d *Database) Calls() []string {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	return slices.Clone(d.state.calls)
}

// CountCalls returns how many times the named call was served.
func (d *Database) CountCalls(name string) int {
	n := 0
	for _, c := range d.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (d *Database) appendCall(c string) {
	d.state.calls = append(d.state.calls, c)
}

// FailStatusUpdateOnce makes the next update to status return err.
func (d *Database) FailStatusUpdateOnce(status generation.Status, err error) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.state.failStatus = status
	d.state.failErr = err
}

// Begin implements generation.Database.
// Manifests created in the transaction are only visible after Commit.
func (d *Database) Begin(ctx context.Context) (generation.DatabaseTx, error) {
	d.state.mu.Lock()
	d.appendCall(CallBegin)
	d.state.mu.Unlock()
	return &DatabaseTx{Database: d}, nil
}

// CreateGeneration implements generation.Database.
func (d *Database) CreateGeneration(ctx context.Context, params *generation.DatabaseCreateGenerationParams) (*generation.Generation, error) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.appendCall(CallCreateGeneration)

	if params.IdempotencyKey != nil {
		for _, g := range d.state.generations {
			if g.IdempotencyKey != nil && *g.IdempotencyKey == *params.IdempotencyKey {
				return nil, fmt.Errorf("memory.Database: %w", generation.ErrIdempotencyKeyAlreadyUsed)
			}
		}
	}

	now := d.state.now()
	g := &generation.Generation{
		ID:             uuid.New(),
		IdempotencyKey: params.IdempotencyKey,
		Target:         params.Target,
		Generator:      params.Generator,
		Status:         generation.StatusNew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	d.state.generations[g.ID] = g
	return cloneGeneration(g), nil
}

// Put stores g as is, replacing any generation with the same id.
func (d *Database) Put(g *generation.Generation) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.state.generations[g.ID] = cloneGeneration(g)
}

// GetGeneration implements generation.Database.
func (d *Database) GetGeneration(ctx context.Context, params *generation.DatabaseGetGenerationParams) (*generation.Generation, error) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.appendCall(CallGetGeneration)

	g, ok := d.state.generations[params.ID]
	if !ok {
		return nil, generation.ErrNotFound
	}
	return cloneGeneration(g), nil
}

// ListGenerations implements generation.Database.
func (d *Database) ListGenerations(ctx context.Context, params *generation.DatabaseListGenerationsParams) ([]*generation.Generation, error) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.appendCall(CallListGenerations)

	var generations []*generation.Generation
	for _, g := range d.state.generations {
		if len(params.Statuses) > 0 && !slices.Contains(params.Statuses, g.Status) {
			continue
		}
		generations = append(generations, cloneGeneration(g))
	}
	slices.SortFunc(generations, func(a, b *generation.Generation) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if params.Limit > 0 && len(generations) > params.Limit {
		generations = generations[:params.Limit]
	}
	return generations, nil
}

// UpdateGenerationStatus implements generation.Database.
func (d *Database) UpdateGenerationStatus(ctx context.Context, params *generation.DatabaseUpdateGenerationStatusParams) (*generation.Generation, error) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.appendCall(CallUpdateGenerationStatus)

	if err := d.state.failErr; err != nil && d.state.failStatus == params.Status {
		d.state.failErr = nil
		return nil, err
	}

	g, ok := d.state.generations[params.ID]
	if !ok {
		return nil, generation.ErrNotFound
	}
	if !generation.CanTransition(g.Status, params.Status) {
		return nil, fmt.Errorf("memory.Database: %s to %s: %w", g.Status, params.Status, generation.ErrStaleStatus)
	}
	g.Status = params.Status
	g.Result = params.Result
	g.Reason = params.Reason
	g.UpdatedAt = d.state.now()
	return cloneGeneration(g), nil
}

// UpdateGenerationRetryCount implements generation.Database.
func (d *Database) UpdateGenerationRetryCount(ctx context.Context, params *generation.DatabaseUpdateGenerationRetryCountParams) (*generation.Generation, error) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.appendCall(CallUpdateGenerationRetryCount)

	g, ok := d.state.generations[params.ID]
	if !ok {
		return nil, generation.ErrNotFound
	}
	g.RetryCount = params.RetryCount
	g.UpdatedAt = d.state.now()
	return cloneGeneration(g), nil
}

// UpdateGenerationConfig implements generation.Database.
func (d *Database) UpdateGenerationConfig(ctx context.Context, params *generation.DatabaseUpdateGenerationConfigParams) (*generation.Generation, error) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.appendCall(CallUpdateGenerationConfig)

	g, ok := d.state.generations[params.ID]
	if !ok {
		return nil, generation.ErrNotFound
	}
	g.Generator.Config = slices.Clone(params.Config)
	g.UpdatedAt = d.state.now()
	return cloneGeneration(g), nil
}

// CreateManifest implements generation.Database.
func (d *Database) CreateManifest(ctx context.Context, params *generation.DatabaseCreateManifestParams) (*generation.Manifest, error) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.appendCall(CallCreateManifest)

	if m := findManifest(d.state.manifests, params); m != nil {
		c := *m
		return &c, nil
	}
	m, err := d.newManifest(params)
	if err != nil {
		return nil, err
	}
	d.state.manifests = append(d.state.manifests, m)
	c := *m
	return &c, nil
}

// findManifest returns the manifest of the generation read from the same
// source path, or nil.
func findManifest(manifests []*generation.Manifest, params *generation.DatabaseCreateManifestParams) *generation.Manifest {
	for _, m := range manifests {
		if m.GenerationID == params.GenerationID && m.SourcePath == params.SourcePath {
			return m
		}
	}
	return nil
}

func (d *Database) newManifest(params *generation.DatabaseCreateManifestParams) (*generation.Manifest, error) {
	if _, ok := d.state.generations[params.GenerationID]; !ok {
		return nil, fmt.Errorf("memory.Database: generation %s: %w", params.GenerationID, generation.ErrNotFound)
	}
	if !json.Valid(params.Content) {
		return nil, fmt.Errorf("memory.Database: manifest content isn't valid JSON")
	}
	return &generation.Manifest{
		ID:           uuid.New(),
		GenerationID: params.GenerationID,
		SourcePath:   params.SourcePath,
		Content:      slices.Clone(params.Content),
		CreatedAt:    d.state.now(),
	}, nil
}

// ListManifests implements generation.Database.
func (d *Database) ListManifests(ctx context.Context, params *generation.DatabaseListManifestsParams) ([]*generation.Manifest, error) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.appendCall(CallListManifests)

	var manifests []*generation.Manifest
	for _, m := range d.state.manifests {
		if m.GenerationID == params.GenerationID {
			c := *m
			manifests = append(manifests, &c)
		}
	}
	return manifests, nil
}

// DatabaseTx buffers created manifests until Commit.
// Every other write is applied immediately.
type DatabaseTx struct {
	*Database
	pending []*generation.Manifest
	closed  bool
}

// CreateManifest implements generation.Database.
func (tx *DatabaseTx) CreateManifest(ctx context.Context, params *generation.DatabaseCreateManifestParams) (*generation.Manifest, error) {
	tx.state.mu.Lock()
	defer tx.state.mu.Unlock()
	tx.appendCall(CallCreateManifest)

	m := findManifest(tx.state.manifests, params)
	if m == nil {
		m = findManifest(tx.pending, params)
	}
	if m != nil {
		c := *m
		return &c, nil
	}
	m, err := tx.newManifest(params)
	if err != nil {
		return nil, err
	}
	tx.pending = append(tx.pending, m)
	c := *m
	return &c, nil
}

func (tx *DatabaseTx) Commit(ctx context.Context) error {
	tx.state.mu.Lock()
	defer tx.state.mu.Unlock()
	if tx.closed {
		return generation.ErrTxAlreadyClosed
	}
	tx.closed = true
	tx.appendCall(CallCommit)
	for _, m := range tx.pending {
		if findManifest(tx.state.manifests, &generation.DatabaseCreateManifestParams{GenerationID: m.GenerationID, SourcePath: m.SourcePath}) == nil {
			tx.state.manifests = append(tx.state.manifests, m)
		}
	}
	tx.pending = nil
	return nil
}

func (tx *DatabaseTx) Rollback(ctx context.Context) error {
	tx.state.mu.Lock()
	defer tx.state.mu.Unlock()
	if tx.closed {
		return generation.ErrTxAlreadyClosed
	}
	tx.closed = true
	tx.appendCall(CallRollback)
	tx.pending = nil
	return nil
}

func cloneGeneration(g *generation.Generation) *generation.Generation {
	c := *g
	c.Generator.Config = slices.Clone(g.Generator.Config)
	return &c
}
