package controller

import (
	"sync"

	"github.com/google/uuid"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

// StatusCache remembers the last status this replica persisted per generation.
// Only the leader writes to it. It may be stale or empty at any time:
// the database stays authoritative.
type StatusCache interface {
	Get(id uuid.UUID) (generation.Status, bool)
	Put(id uuid.UUID, status generation.Status)
	Delete(id uuid.UUID)
}

type syncStatusCache struct {
	m sync.Map
}

func NewStatusCache() StatusCache {
	return &syncStatusCache{}
}

func (c *syncStatusCache) Get(id uuid.UUID) (generation.Status, bool) {
	v, ok := c.m.Load(id)
	if !ok {
		return "", false
	}
	return v.(generation.Status), true
}

func (c *syncStatusCache) Put(id uuid.UUID, status generation.Status) {
	c.m.Store(id, status)
}

func (c *syncStatusCache) Delete(id uuid.UUID) {
	c.m.Delete(id)
}
