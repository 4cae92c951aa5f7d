// Package memory provides an in-process execution.Store.
// Resources never run on their own; their status is set with SetStatus.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
)

var _ execution.Store = (*Store)(nil)

type entry struct {
	resource *execution.Resource
	digest   string
}

type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	watchers  []chan uuid.UUID
	now       func() time.Time
	createErr error
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// FailCreates makes every following Create return err until it is called with nil.
func (s *Store) FailCreates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// Create implements execution.Store.
func (s *Store) Create(ctx context.Context, spec *execution.Spec) (*execution.Resource, error) {
	digest, err := spec.Digest()
	if err != nil {
		return nil, fmt.Errorf("memory.Store: %w", err)
	}

	s.mu.Lock()
	if s.createErr != nil {
		err = s.createErr
		s.mu.Unlock()
		return nil, fmt.Errorf("memory.Store: %w", err)
	}
	if e, ok := s.entries[spec.Name]; ok {
		s.mu.Unlock()
		if e.digest != digest {
			return nil, fmt.Errorf("memory.Store: %s: %w", spec.Name, execution.ErrAlreadyExists)
		}
		return cloneResource(e.resource), nil
	}
	r := &execution.Resource{
		Spec:      *spec,
		CreatedAt: s.now(),
		Status: execution.Status{
			Conditions: []execution.Condition{{Status: execution.ConditionUnknown}},
		},
	}
	s.entries[spec.Name] = &entry{resource: r, digest: digest}
	s.mu.Unlock()

	s.notify(spec.OwnerRef.GenerationID)
	return cloneResource(r), nil
}

// Delete implements execution.Store.
func (s *Store) Delete(ctx context.Context, ref *execution.Reference) error {
	s.mu.Lock()
	e, ok := s.entries[ref.Name]
	delete(s.entries, ref.Name)
	s.mu.Unlock()

	if ok {
		s.notify(e.resource.Spec.OwnerRef.GenerationID)
	}
	return nil
}

// ListFor implements execution.Store.
func (s *Store) ListFor(ctx context.Context, generationID uuid.UUID) ([]*execution.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resources []*execution.Resource
	for _, e := range s.entries {
		if e.resource.Spec.OwnerRef.GenerationID == generationID {
			resources = append(resources, cloneResource(e.resource))
		}
	}
	slices.SortFunc(resources, func(a, b *execution.Resource) int {
		if a.Spec.Name < b.Spec.Name {
			return -1
		} else if a.Spec.Name > b.Spec.Name {
			return 1
		}
		return 0
	})
	return resources, nil
}

// Watch implements execution.Store.
func (s *Store) Watch(ctx context.Context, f func(generationID uuid.UUID)) error {
	ch := make(chan uuid.UUID, 64)

	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.watchers = slices.DeleteFunc(s.watchers, func(c chan uuid.UUID) bool { return c == ch })
		s.mu.Unlock()
	}()

	for {
		select {
		case id := <-ch:
			f(id)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SetStatus replaces the observed status of the named resource.
func (s *Store) SetStatus(name string, status execution.Status) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("memory.Store: %s not found", name)
	}
	e.resource.Status = status
	s.mu.Unlock()

	s.notify(e.resource.Spec.OwnerRef.GenerationID)
	return nil
}

// notify doesn't block: a full watcher misses the event and relies on resync.
func (s *Store) notify(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- id:
		default:
		}
	}
}

func cloneResource(r *execution.Resource) *execution.Resource {
	c := *r
	c.Status.Conditions = slices.Clone(r.Status.Conditions)
	c.Status.Steps = slices.Clone(r.Status.Steps)
	return &c
}
