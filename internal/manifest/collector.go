// Package manifest collects the manifests written by a finished generation job.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	cdx "github.com/CycloneDX/cyclonedx-go"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

const FileName = "manifest.json"

// Database is the part of generation.Database the collector writes to.
type Database interface {
	Begin(ctx context.Context) (generation.DatabaseTx, error)
}

// Storage receives persisted manifests.
type Storage interface {
	UploadManifest(ctx context.Context, m *generation.Manifest) error
}

type Collector struct {
	rootDir  string
	database Database // required
	storage  Storage  // optional
	log      *slog.Logger
}

func NewCollector(rootDir string, database Database, storage Storage, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		rootDir:  rootDir,
		database: database,
		storage:  storage,
		log:      log.With("component", "manifest.Collector"),
	}
}

type document struct {
	path    string
	content []byte
}

// Collect finds, validates, persists and uploads the manifests of g.
// Failures are *generation.Error. An upload failure returns the manifests
// that were persisted along with an ERR_POST error.
func (c *Collector) Collect(ctx context.Context, g *generation.Generation) ([]*generation.Manifest, error) {
	dir := filepath.Join(c.rootDir, g.ID.String())

	paths, err := Find(dir)
	if err != nil {
		return nil, generation.Errorf(generation.ResultErrSystem, "find manifests: %w", err)
	}
	if len(paths) == 0 {
		return nil, generation.Errorf(generation.ResultErrSystem, "no manifests produced in %s", dir)
	}

	docs := make([]*document, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, generation.Errorf(generation.ResultErrSystem, "read manifest: %w", err)
		}
		bom, err := Parse(content)
		if err != nil {
			return nil, generation.Errorf(generation.ResultErrSystem, "parse manifest %s: %w", relPath(dir, p), err)
		}
		if err = Validate(bom); err != nil {
			return nil, generation.Errorf(generation.ResultErrGeneration, "invalid manifest %s: %w", relPath(dir, p), err)
		}
		docs = append(docs, &document{path: relPath(dir, p), content: content})
	}

	manifests, err := c.persist(ctx, g, docs)
	if err != nil {
		return nil, generation.Errorf(generation.ResultErrSystem, "persist manifests: %w", err)
	}

	if c.storage != nil {
		for _, m := range manifests {
			if err = c.storage.UploadManifest(ctx, m); err != nil {
				return manifests, generation.Errorf(generation.ResultErrPost, "upload manifest %s: %w", m.ID, err)
			}
		}
	}

	c.log.Info("collected manifests", "generation_id", g.ID, "count", len(manifests))
	return manifests, nil
}

func (c *Collector) persist(ctx context.Context, g *generation.Generation, docs []*document) (manifests []*generation.Manifest, err error) {
	tx, err := c.database.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, generation.ErrTxAlreadyClosed) {
				c.log.Error("didn't roll back", "generation_id", g.ID, "error", rollbackErr)
			}
		}
	}()

	for _, d := range docs {
		m, err := tx.CreateManifest(ctx, &generation.DatabaseCreateManifestParams{
			GenerationID: g.ID,
			SourcePath:   d.path,
			Content:      d.content,
		})
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return manifests, nil
}

// Find returns the sorted paths of every manifest file beneath dir.
// A missing dir has no manifests.
func Find(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && d.Name() == FileName {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

// Parse decodes a CycloneDX JSON document.
func Parse(content []byte) (*cdx.BOM, error) {
	var bom cdx.BOM
	if err := cdx.NewBOMDecoder(bytes.NewReader(content), cdx.BOMFileFormatJSON).Decode(&bom); err != nil {
		return nil, err
	}
	return &bom, nil
}

// Validate checks the minimal shape of a manifest: it has to describe
// at least one component.
func Validate(bom *cdx.BOM) error {
	if bom.Components == nil || len(*bom.Components) == 0 {
		return errors.New("no components")
	}
	for i, c := range *bom.Components {
		if c.Name == "" {
			return fmt.Errorf("component %d has no name", i)
		}
	}
	return nil
}

func relPath(dir, p string) string {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return p
	}
	return rel
}
