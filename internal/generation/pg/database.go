package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

var _ generation.Database = (*Database)(nil)

type Database struct {
	db Querier // required
}

func NewDatabase(db Querier) *Database {
	return &Database{db: db}
}

// Begin implements generation.Database.
func (d *Database) Begin(ctx context.Context) (generation.DatabaseTx, error) {
	pgxTx, err := d.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return newDatabaseTx(pgxTx), nil
}

// CreateGeneration implements generation.Database.
func (d *Database) CreateGeneration(ctx context.Context, params *generation.DatabaseCreateGenerationParams) (*generation.Generation, error) {
	query := `
		INSERT INTO generations (
			idempotency_key,
			target_type, target_identifier,
			generator_name, generator_version, generator_config,
			status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + generationColumns
	args := []any{
		params.IdempotencyKey,
		string(params.Target.Type), params.Target.Identifier,
		params.Generator.Name, params.Generator.Version, jsonbArg(params.Generator.Config),
		string(generation.StatusNew),
	}

	rows, _ := d.db.Query(ctx, query, args...)
	g, err := pgx.CollectExactlyOneRow(rows, rowToGeneration)
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == "generations_idempotency_key_key" {
		return nil, generation.ErrIdempotencyKeyAlreadyUsed
	} else if err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}

	return g, nil
}

// GetGeneration implements generation.Database.
func (d *Database) GetGeneration(ctx context.Context, params *generation.DatabaseGetGenerationParams) (*generation.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = $1`
	args := []any{params.ID}

	rows, _ := d.db.Query(ctx, query, args...)
	g, err := pgx.CollectExactlyOneRow(rows, rowToGeneration)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generation.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}

	return g, nil
}

// ListGenerations implements generation.Database.
func (d *Database) ListGenerations(ctx context.Context, params *generation.DatabaseListGenerationsParams) ([]*generation.Generation, error) {
	query := `
		SELECT ` + generationColumns + `
		FROM generations
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
		ORDER BY created_at, id
		LIMIT $2
	`
	var limit *int
	if params.Limit > 0 {
		limit = &params.Limit
	}
	args := []any{statusStrings(params.Statuses), limit}

	rows, _ := d.db.Query(ctx, query, args...)
	generations, err := pgx.CollectRows(rows, rowToGeneration)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}

	return generations, nil
}

// UpdateGenerationStatus implements generation.Database.
//
// The update is conditioned on the persisted status so that concurrent
// writers can't regress it.
func (d *Database) UpdateGenerationStatus(ctx context.Context, params *generation.DatabaseUpdateGenerationStatusParams) (*generation.Generation, error) {
	query := `
		UPDATE generations
		SET status = $2, result = $3, reason = $4, updated_at = greatest(now(), updated_at)
		WHERE id = $1 AND status = ANY($5::text[])
		RETURNING ` + generationColumns
	args := []any{
		params.ID,
		string(params.Status), string(params.Result), params.Reason,
		statusStrings(generation.Predecessors(params.Status)),
	}

	rows, _ := d.db.Query(ctx, query, args...)
	g, err := pgx.CollectExactlyOneRow(rows, rowToGeneration)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := d.GetGeneration(ctx, &generation.DatabaseGetGenerationParams{ID: params.ID}); getErr != nil {
			return nil, getErr
		}
		return nil, generation.ErrStaleStatus
	} else if err != nil {
		return nil, fmt.Errorf("update generation status: %w", err)
	}

	return g, nil
}

// UpdateGenerationRetryCount implements generation.Database.
func (d *Database) UpdateGenerationRetryCount(ctx context.Context, params *generation.DatabaseUpdateGenerationRetryCountParams) (*generation.Generation, error) {
	query := `
		UPDATE generations
		SET retry_count = $2, updated_at = greatest(now(), updated_at)
		WHERE id = $1
		RETURNING ` + generationColumns
	args := []any{params.ID, params.RetryCount}

	rows, _ := d.db.Query(ctx, query, args...)
	g, err := pgx.CollectExactlyOneRow(rows, rowToGeneration)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generation.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("update generation retry count: %w", err)
	}

	return g, nil
}

// UpdateGenerationConfig implements generation.Database.
func (d *Database) UpdateGenerationConfig(ctx context.Context, params *generation.DatabaseUpdateGenerationConfigParams) (*generation.Generation, error) {
	query := `
		UPDATE generations
		SET generator_config = $2, updated_at = greatest(now(), updated_at)
		WHERE id = $1
		RETURNING ` + generationColumns
	args := []any{params.ID, jsonbArg(params.Config)}

	rows, _ := d.db.Query(ctx, query, args...)
	g, err := pgx.CollectExactlyOneRow(rows, rowToGeneration)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generation.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("update generation config: %w", err)
	}

	return g, nil
}

// CreateManifest implements generation.Database.
func (d *Database) CreateManifest(ctx context.Context, params *generation.DatabaseCreateManifestParams) (*generation.Manifest, error) {
	query := `
		INSERT INTO manifests (generation_id, source_path, content)
		VALUES ($1, $2, $3)
		ON CONFLICT (generation_id, source_path) DO UPDATE
		SET source_path = manifests.source_path
		RETURNING ` + manifestColumns
	args := []any{params.GenerationID, params.SourcePath, jsonbArg(params.Content)}

	rows, _ := d.db.Query(ctx, query, args...)
	m, err := pgx.CollectExactlyOneRow(rows, rowToManifest)
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return nil, generation.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("create manifest: %w", err)
	}

	return m, nil
}

// ListManifests implements generation.Database.
func (d *Database) ListManifests(ctx context.Context, params *generation.DatabaseListManifestsParams) ([]*generation.Manifest, error) {
	query := `
		SELECT ` + manifestColumns + `
		FROM manifests
		WHERE generation_id = $1
		ORDER BY created_at, source_path
	`
	args := []any{params.GenerationID}

	rows, _ := d.db.Query(ctx, query, args...)
	manifests, err := pgx.CollectRows(rows, rowToManifest)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}

	return manifests, nil
}

// jsonbArg passes raw JSON to a jsonb parameter, empty JSON as NULL.
func jsonbArg(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func statusStrings(statuses []generation.Status) []string {
	s := make([]string, len(statuses))
	for i, status := range statuses {
		s[i] = string(status)
	}
	return s
}
