package execution

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrAlreadyExists is returned by Create when a resource with the same name
// but a different spec exists.
var ErrAlreadyExists = errors.New("already exists")

// Store is the job platform that runs execution resources.
type Store interface {
	// Create submits spec. Creating an identical spec again returns
	// the existing resource.
	Create(ctx context.Context, spec *Spec) (*Resource, error)

	// Delete removes the resource. Deleting a missing resource succeeds.
	Delete(ctx context.Context, ref *Reference) error

	ListFor(ctx context.Context, generationID uuid.UUID) ([]*Resource, error)

	// Watch calls f with the owning generation id of every changed resource
	// until ctx is done or the underlying stream fails.
	Watch(ctx context.Context, f func(generationID uuid.UUID)) error
}
