package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"openhowl/core/apperr"
	"openhowl/logger"
	"openhowl/model"

	"github.com/google/uuid"
)

// SoundRepository defines the interface for sound catalog operations.
type SoundRepository interface {
	List(ctx context.Context) ([]*model.Sound, error)
	Get(ctx context.Context, id string) (*model.Sound, error)
	Create(ctx context.Context, sound *model.Sound) (*model.Sound, error)
	Update(ctx context.Context, id string, sound *model.Sound) (*model.Sound, error)
	Delete(ctx context.Context, id string) (*model.Sound, error)
	Revision(ctx context.Context) (int64, error)
}

// AssetRemover deletes the stored audio behind a sound's FilePath.
type AssetRemover interface {
	Remove(ctx context.Context, ref string) error
}

// NewID returns a fresh sound identifier. Ingestion reserves one before the
// asset is stored so the asset can be named after the sound.
func NewID() string {
	return uuid.NewString()
}

// jsonSoundRepository keeps the whole catalog in one JSON file. Every
// mutation is a read-modify-write under mu, published by atomic rename.
// Reads take no lock: a rename swaps the file in one step.
type jsonSoundRepository struct {
	path   string
	assets AssetRemover
	mu     sync.Mutex
}

// NewJSONSoundRepository creates a catalog backed by the file at path.
// assets may be nil, in which case deletes leave asset files alone.
func NewJSONSoundRepository(path string, assets AssetRemover) SoundRepository {
	return &jsonSoundRepository{path: path, assets: assets}
}

// read decodes the catalog file. legacy reports a bare-array file that has
// not been written back as version 2 yet.
func (r *jsonSoundRepository) read() (c *model.Catalog, legacy bool, err error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return &model.Catalog{Version: model.CatalogVersion, Sounds: []*model.Sound{}}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read catalog %s: %w", r.path, err)
	}
	return decodeCatalog(data)
}

// load returns the catalog for readers. A legacy file is migrated and saved
// under mu first so the ids it assigns are stable.
func (r *jsonSoundRepository) load() (*model.Catalog, error) {
	c, legacy, err := r.read()
	if err != nil || !legacy {
		return c, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// 可能已被并发的写入迁移
	c, legacy, err = r.read()
	if err != nil || !legacy {
		return c, err
	}
	if err := r.persistMigration(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *jsonSoundRepository) persistMigration(c *model.Catalog) error {
	if err := r.save(c); err != nil {
		return fmt.Errorf("failed to save migrated catalog: %w", err)
	}
	logger.Info("[SoundRepo] migrated legacy catalog", logger.Int("sounds", len(c.Sounds)))
	return nil
}

func decodeCatalog(data []byte) (*model.Catalog, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &model.Catalog{Version: model.CatalogVersion, Sounds: []*model.Sound{}}, false, nil
	}

	switch trimmed[0] {
	case '[':
		var legacy []*model.Sound
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, false, apperr.Wrap(apperr.CorruptCatalog, err, "catalog is not valid JSON")
		}
		return migrateV1(legacy), true, nil
	case '{':
		var c model.Catalog
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return nil, false, apperr.Wrap(apperr.CorruptCatalog, err, "catalog is not valid JSON")
		}
		if c.Version != model.CatalogVersion {
			return nil, false, apperr.New(apperr.CorruptCatalog, "unsupported catalog version %d", c.Version)
		}
		c.Sounds = compact(c.Sounds)
		return &c, false, nil
	default:
		return nil, false, apperr.New(apperr.CorruptCatalog, "catalog is not valid JSON")
	}
}

// migrateV1 upgrades the bare-array layout: ids are assigned where missing and
// record defaults are applied. Callers persist the result before handing out
// any id.
func migrateV1(legacy []*model.Sound) *model.Catalog {
	sounds := compact(legacy)
	for _, s := range sounds {
		if s.ID == "" {
			s.ID = NewID()
		}
		s.ApplyDefaults()
	}
	return &model.Catalog{Version: model.CatalogVersion, Sounds: sounds}
}

func compact(sounds []*model.Sound) []*model.Sound {
	out := make([]*model.Sound, 0, len(sounds))
	for _, s := range sounds {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// save writes the catalog to a temp file next to the target, syncs it and
// renames it into place.
func (r *jsonSoundRepository) save(c *model.Catalog) error {
	c.Version = model.CatalogVersion
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp catalog: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp catalog: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp catalog: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace catalog: %w", err)
	}
	return nil
}

// mutate runs fn against a freshly loaded catalog and persists the result
// with a bumped revision. Only one mutate runs at a time.
func (r *jsonSoundRepository) mutate(ctx context.Context, fn func(c *model.Catalog) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	c, legacy, err := r.read()
	if err != nil {
		return err
	}
	if legacy {
		if err := r.persistMigration(c); err != nil {
			return err
		}
	}
	if err := fn(c); err != nil {
		return err
	}
	c.Revision++
	return r.save(c)
}

// List returns every sound in catalog order.
func (r *jsonSoundRepository) List(ctx context.Context) ([]*model.Sound, error) {
	c, err := r.load()
	if err != nil {
		return nil, err
	}
	return c.Sounds, nil
}

// Get returns the sound with id or a NotFound error.
func (r *jsonSoundRepository) Get(ctx context.Context, id string) (*model.Sound, error) {
	c, err := r.load()
	if err != nil {
		return nil, err
	}
	idx := c.Find(id)
	if idx < 0 {
		return nil, apperr.New(apperr.NotFound, "sound %s not found", id)
	}
	return c.Sounds[idx], nil
}

// Create appends a sound. An empty ID is filled with NewID(); a reserved ID
// that is already taken is rejected.
func (r *jsonSoundRepository) Create(ctx context.Context, sound *model.Sound) (*model.Sound, error) {
	created := sound.Clone()
	if created.ID == "" {
		created.ID = NewID()
	}
	created.ApplyDefaults()

	err := r.mutate(ctx, func(c *model.Catalog) error {
		if c.Find(created.ID) >= 0 {
			return apperr.New(apperr.BadRequest, "sound id %s already exists", created.ID)
		}
		c.Sounds = append(c.Sounds, created)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("[SoundRepo] sound created",
		logger.String("id", created.ID),
		logger.String("name", created.Name),
		logger.Int64("lengthMs", created.Length))
	return created.Clone(), nil
}

// Update replaces the sound with id. The id and the asset fields
// (FilePath, FileFormat, Length) always come from the stored record.
func (r *jsonSoundRepository) Update(ctx context.Context, id string, sound *model.Sound) (*model.Sound, error) {
	var updated *model.Sound
	err := r.mutate(ctx, func(c *model.Catalog) error {
		idx := c.Find(id)
		if idx < 0 {
			return apperr.New(apperr.NotFound, "sound %s not found", id)
		}
		current := c.Sounds[idx]

		updated = sound.Clone()
		updated.ID = current.ID
		updated.FilePath = current.FilePath
		updated.FileFormat = current.FileFormat
		updated.Length = current.Length
		updated.ApplyDefaults()

		c.Sounds[idx] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("[SoundRepo] sound updated", logger.String("id", id))
	return updated.Clone(), nil
}

// Delete removes the sound and then tries to remove its asset. Asset removal
// failures are logged and do not fail the delete.
func (r *jsonSoundRepository) Delete(ctx context.Context, id string) (*model.Sound, error) {
	var removed *model.Sound
	err := r.mutate(ctx, func(c *model.Catalog) error {
		idx := c.Find(id)
		if idx < 0 {
			return apperr.New(apperr.NotFound, "sound %s not found", id)
		}
		removed = c.Sounds[idx]
		c.Sounds = append(c.Sounds[:idx], c.Sounds[idx+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.assets != nil && removed.FilePath != "" {
		if err := r.assets.Remove(ctx, removed.FilePath); err != nil {
			logger.Warn("[SoundRepo] failed to remove asset",
				logger.String("id", id),
				logger.String("filePath", removed.FilePath),
				logger.ErrorField(err))
		}
	}

	logger.Info("[SoundRepo] sound deleted", logger.String("id", id))
	return removed, nil
}

// Revision returns the catalog's mutation counter.
func (r *jsonSoundRepository) Revision(ctx context.Context) (int64, error) {
	c, err := r.load()
	if err != nil {
		return 0, err
	}
	return c.Revision, nil
}
