package pg

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

const generationColumns = `
	id, idempotency_key,
	target_type, target_identifier,
	generator_name, generator_version, generator_config,
	status, result, reason, retry_count,
	created_at, updated_at
`

const manifestColumns = `id, generation_id, source_path, content, created_at`

type row struct {
	ID               uuid.UUID  `db:"id"`
	IdempotencyKey   *uuid.UUID `db:"idempotency_key"`
	TargetType       string     `db:"target_type"`
	TargetIdentifier string     `db:"target_identifier"`
	GeneratorName    string     `db:"generator_name"`
	GeneratorVersion string     `db:"generator_version"`
	GeneratorConfig  []byte     `db:"generator_config"`
	Status           string     `db:"status"`
	Result           string     `db:"result"`
	Reason           string     `db:"reason"`
	RetryCount       int        `db:"retry_count"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func rowToGeneration(collectableRow pgx.CollectableRow) (*generation.Generation, error) {
	collectedRow, err := pgx.RowToStructByName[row](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to generation: %w", err)
	}

	targetType, known := generation.TargetTypeFromString(collectedRow.TargetType)
	if !known {
		slog.Default().Warn(
			"unknown target type encountered while reading generation",
			"target_type", collectedRow.TargetType,
			"generation_id", collectedRow.ID,
		)
	}
	status, known := generation.StatusFromString(collectedRow.Status)
	if !known {
		slog.Default().Warn(
			"unknown status encountered while reading generation",
			"status", collectedRow.Status,
			"generation_id", collectedRow.ID,
		)
	}
	result, known := generation.ResultFromString(collectedRow.Result)
	if !known {
		slog.Default().Warn(
			"unknown result encountered while reading generation",
			"result", collectedRow.Result,
			"generation_id", collectedRow.ID,
		)
	}

	g := &generation.Generation{
		ID:             collectedRow.ID,
		IdempotencyKey: collectedRow.IdempotencyKey,
		Target: generation.Target{
			Type:       targetType,
			Identifier: collectedRow.TargetIdentifier,
		},
		Generator: generation.Generator{
			Name:    collectedRow.GeneratorName,
			Version: collectedRow.GeneratorVersion,
			Config:  collectedRow.GeneratorConfig,
		},
		Status:     status,
		Result:     result,
		Reason:     collectedRow.Reason,
		RetryCount: collectedRow.RetryCount,
		CreatedAt:  collectedRow.CreatedAt,
		UpdatedAt:  collectedRow.UpdatedAt,
	}
	return g, nil
}

type manifestRow struct {
	ID           uuid.UUID `db:"id"`
	GenerationID uuid.UUID `db:"generation_id"`
	SourcePath   string    `db:"source_path"`
	Content      []byte    `db:"content"`
	CreatedAt    time.Time `db:"created_at"`
}

func rowToManifest(collectableRow pgx.CollectableRow) (*generation.Manifest, error) {
	collectedRow, err := pgx.RowToStructByName[manifestRow](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to manifest: %w", err)
	}

	m := &generation.Manifest{
		ID:           collectedRow.ID,
		GenerationID: collectedRow.GenerationID,
		SourcePath:   collectedRow.SourcePath,
		Content:      collectedRow.Content,
		CreatedAt:    collectedRow.CreatedAt,
	}
	return m, nil
}
