package generation

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrTxAlreadyClosed           = errors.New("tx already closed")
	ErrIdempotencyKeyAlreadyUsed = errors.New("idempotency key already used")

	// ErrStaleStatus is returned when a status update lost to a newer
	// persisted status.
	ErrStaleStatus = errors.New("stale status")
)

type Database interface {
	Begin(ctx context.Context) (DatabaseTx, error)
	CreateGeneration(ctx context.Context, params *DatabaseCreateGenerationParams) (*Generation, error)
	GetGeneration(ctx context.Context, params *DatabaseGetGenerationParams) (*Generation, error)
	ListGenerations(ctx context.Context, params *DatabaseListGenerationsParams) ([]*Generation, error)
	UpdateGenerationStatus(ctx context.Context, params *DatabaseUpdateGenerationStatusParams) (*Generation, error)
	UpdateGenerationRetryCount(ctx context.Context, params *DatabaseUpdateGenerationRetryCountParams) (*Generation, error)
	UpdateGenerationConfig(ctx context.Context, params *DatabaseUpdateGenerationConfigParams) (*Generation, error)
	CreateManifest(ctx context.Context, params *DatabaseCreateManifestParams) (*Manifest, error)
	ListManifests(ctx context.Context, params *DatabaseListManifestsParams) ([]*Manifest, error)
}

type DatabaseTx interface {
	Database
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type DatabaseCreateGenerationParams struct {
	IdempotencyKey *uuid.UUID
	Target         Target
	Generator      Generator
}

type DatabaseGetGenerationParams struct {
	ID uuid.UUID
}

type DatabaseListGenerationsParams struct {
	Statuses []Status // empty means any
	Limit    int      // zero means no limit
}

// DatabaseUpdateGenerationStatusParams describes a conditional status update.
// The update is only applied if CanTransition allows it against the
// persisted status, otherwise ErrStaleStatus is returned.
type DatabaseUpdateGenerationStatusParams struct {
	ID     uuid.UUID
	Status Status
	Result Result
	Reason string
}

type DatabaseUpdateGenerationRetryCountParams struct {
	ID         uuid.UUID
	RetryCount int
}

type DatabaseUpdateGenerationConfigParams struct {
	ID     uuid.UUID
	Config json.RawMessage
}

// DatabaseCreateManifestParams creates a manifest unless the generation
// already has one read from SourcePath. The existing one is returned then.
type DatabaseCreateManifestParams struct {
	GenerationID uuid.UUID
	SourcePath   string
	Content      json.RawMessage
}

type DatabaseListManifestsParams struct {
	GenerationID uuid.UUID
}
