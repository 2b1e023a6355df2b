package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/datadesk/datadesk/internal/errors"
	"github.com/datadesk/datadesk/internal/models"
	"github.com/datadesk/datadesk/internal/storage/history"
)

// DatasetService is the dataset registry: it owns the schema catalog.
type DatasetService struct {
	fs      *FileStore
	locks   *lockManager
	history *history.Service

	// mu serializes catalog mutations; record-level writes are serialized
	// per dataset by locks.
	mu sync.Mutex
}

// NewDatasetService creates a dataset registry over a FileStore.
// hist may be nil to disable change history.
func NewDatasetService(fs *FileStore, locks *lockManager, hist *history.Service) *DatasetService {
	return &DatasetService{fs: fs, locks: locks, history: hist}
}

// Get retrieves a dataset by ID.
func (s *DatasetService) Get(ctx context.Context, id string) (*models.Dataset, error) {
	ds := s.fs.Dataset(id)
	if ds == nil {
		return nil, apierrors.DatasetNotFound(id)
	}
	return ds, nil
}

// List returns all datasets.
func (s *DatasetService) List(ctx context.Context) ([]*models.Dataset, error) {
	return slices.Collect(s.fs.Catalog().All()), nil
}

// Create registers a new dataset definition and returns it.
func (s *DatasetService) Create(ctx context.Context, name, description, datasetType string, fields []models.FieldDefinition) (*models.Dataset, error) {
	now := time.Now()
	ds := &models.Dataset{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		Type:         datasetType,
		Fields:       fields,
		CreatedAt:    now,
		LastModified: now,
	}
	if err := ds.Validate(); err != nil {
		return nil, apierrors.BadRequest(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRelationTargets(ds); err != nil {
		return nil, err
	}
	if err := s.fs.Catalog().Append(ds); err != nil {
		return nil, apierrors.InternalWithError("failed to persist dataset", err)
	}

	s.commit(ctx, fmt.Sprintf("create: dataset %s - %s", ds.ID, ds.Name))
	return ds, nil
}

// Update replaces a dataset's name, description and field list. Stored
// records are not rewritten: breaking field changes are only logged and
// values are coerced lazily on the next read.
func (s *DatasetService) Update(ctx context.Context, id, name, description string, fields []models.FieldDefinition) (*models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.fs.Dataset(id)
	if ds == nil {
		return nil, apierrors.DatasetNotFound(id)
	}

	updated := ds.Clone()
	updated.Name = name
	updated.Description = description
	if fields != nil {
		updated.Fields = fields
	}
	updated.LastModified = time.Now()

	if err := updated.Validate(); err != nil {
		return nil, apierrors.BadRequest(err.Error())
	}
	if err := s.checkRelationTargets(updated); err != nil {
		return nil, err
	}

	logFieldChanges(ctx, ds, updated)

	if err := s.fs.Catalog().Update(updated); err != nil {
		return nil, apierrors.InternalWithError("failed to persist dataset", err)
	}

	s.commit(ctx, "update: dataset "+id)
	return updated, nil
}

// Delete removes a dataset and all its records. It fails when another
// dataset declares a relation field targeting this dataset and that
// dataset currently holds at least one record.
func (s *DatasetService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.fs.Dataset(id)
	if ds == nil {
		return apierrors.DatasetNotFound(id)
	}

	for other := range s.fs.Catalog().All() {
		if other.ID == id {
			continue
		}
		targets := false
		for _, f := range other.RelationFields() {
			if f.RelatedDataset == id {
				targets = true
				break
			}
		}
		if !targets {
			continue
		}
		table, err := s.fs.Records(other.ID)
		if err != nil {
			return apierrors.InternalWithError("failed to open records", err)
		}
		if table.Len() > 0 {
			return apierrors.ReferentialIntegrity(fmt.Sprintf("cannot delete dataset %q", ds.Name)).
				WithDetail("dataset", id).
				WithDetail("referencedBy", other.ID)
		}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.fs.RemoveRecords(id); err != nil {
		return apierrors.InternalWithError("failed to remove records", err)
	}
	if err := s.fs.Catalog().Delete(id); err != nil {
		return apierrors.InternalWithError("failed to remove dataset", err)
	}

	s.commit(ctx, "delete: dataset "+id)
	return nil
}

// checkRelationTargets verifies every relation field points at a dataset
// that exists (self-references are allowed).
func (s *DatasetService) checkRelationTargets(ds *models.Dataset) error {
	for _, f := range ds.RelationFields() {
		if f.RelatedDataset == ds.ID {
			continue
		}
		if s.fs.Dataset(f.RelatedDataset) == nil {
			return apierrors.BadRequest(fmt.Sprintf("field %q: relatedDataset %q does not exist", f.Key, f.RelatedDataset)).
				WithDetail("field", f.Key)
		}
	}
	return nil
}

// logFieldChanges diffs the old and new field lists and logs changes that
// can break existing records (removed keys, changed types).
func logFieldChanges(ctx context.Context, old, updated *models.Dataset) {
	prev := make(map[string]models.FieldDefinition, len(old.Fields))
	for _, f := range old.Fields {
		prev[f.Key] = f
	}
	for _, f := range updated.Fields {
		if p, ok := prev[f.Key]; ok {
			if p.Type != f.Type || p.IsRelation != f.IsRelation {
				slog.WarnContext(ctx, "Field type changed; existing values coerced on read",
					"dataset", updated.ID, "field", f.Key, "from", p.Type, "to", f.Type)
			}
			delete(prev, f.Key)
		}
	}
	for key := range prev {
		slog.InfoContext(ctx, "Field removed; stored values ignored on read",
			"dataset", updated.ID, "field", key)
	}
}

func (s *DatasetService) commit(ctx context.Context, msg string) {
	if s.history == nil {
		return
	}
	if err := s.history.Commit(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to commit change", "err", err)
	}
}
