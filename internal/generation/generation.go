package generation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TargetType string

const (
	TargetTypeBuild          TargetType = "BUILD"
	TargetTypeBrewRPM        TargetType = "BREW_RPM"
	TargetTypeContainerImage TargetType = "CONTAINER_IMAGE"
)

var knownTargetTypes = map[TargetType]struct{}{
	TargetTypeBuild:          {},
	TargetTypeBrewRPM:        {},
	TargetTypeContainerImage: {},
}

// TargetTypeFromString returns the target type and whether it is known.
func TargetTypeFromString(s string) (TargetType, bool) {
	t := TargetType(s)
	_, known := knownTargetTypes[t]
	return t, known
}

type Target struct {
	Type       TargetType
	Identifier string
}

// Generator identifies the tool that produces manifests for a generation.
// Config is opaque to the controller and is handed to the tool as is.
type Generator struct {
	Name    string
	Version string
	Config  json.RawMessage
}

// Generation is the persisted record of one manifest generation request.
// The controller is its only writer after creation.
type Generation struct {
	ID             uuid.UUID
	IdempotencyKey *uuid.UUID
	Target         Target
	Generator      Generator
	Status         Status
	Result         Result
	Reason         string
	RetryCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Manifest is a validated output document of a successful generation.
type Manifest struct {
	ID           uuid.UUID
	GenerationID uuid.UUID
	SourcePath   string
	Content      json.RawMessage
	CreatedAt    time.Time
}

// Update is a status change computed by a reconcile.
type Update struct {
	Status Status
	Result Result
	Reason string
}
