package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/datadesk/datadesk/internal/errors"
	"github.com/datadesk/datadesk/internal/models"
	"github.com/datadesk/datadesk/internal/storage/history"
)

// DefaultDuplicateThreshold is the confidence the duplicate detector
// requires a match to exceed before reporting it, unless a unique field
// forces the report.
const DefaultDuplicateThreshold = 0.5

// RecordService implements record CRUD, bulk import, duplicate detection
// and relation resolution over a FileStore. All mutating operations are
// serialized per dataset; deletes additionally run the referential
// integrity walk (see integrity.go).
type RecordService struct {
	fs      *FileStore
	locks   *lockManager
	history *history.Service

	// DuplicateThreshold overrides DefaultDuplicateThreshold when > 0.
	DuplicateThreshold float64
}

// NewRecordService creates a record service. hist may be nil to disable
// change history.
func NewRecordService(fs *FileStore, locks *lockManager, hist *history.Service) *RecordService {
	return &RecordService{fs: fs, locks: locks, history: hist}
}

// Add validates and persists a new record, returning its flattened form.
func (s *RecordService) Add(ctx context.Context, datasetID string, fields map[string]any) (map[string]any, error) {
	unlock := s.locks.Lock(datasetID)
	defer unlock()

	// Looked up under the writer lock so a concurrent dataset delete
	// cannot interleave and leave an orphan record behind.
	ds := s.fs.Dataset(datasetID)
	if ds == nil {
		return nil, apierrors.DatasetNotFound(datasetID)
	}

	data, err := validateRecordData(ds, fields, true)
	if err != nil {
		return nil, err
	}

	table, err := s.fs.Records(datasetID)
	if err != nil {
		return nil, apierrors.InternalWithError("failed to open records", err)
	}
	if err := checkUnique(ds, table, data, ""); err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &models.DataRecord{
		ID:           s.newRecordID(),
		DatasetID:    datasetID,
		Data:         data,
		CreatedAt:    now,
		LastModified: now,
	}
	if err := table.Append(rec); err != nil {
		return nil, apierrors.InternalWithError("failed to persist record", err)
	}
	s.fs.IndexRecord(rec.ID, datasetID)

	s.commit(ctx, fmt.Sprintf("create: record %s in dataset %s", rec.ID, datasetID))
	return rec.Flatten(), nil
}

// Update validates and replaces a record's field data wholesale,
// returning its flattened form. The record is addressed by bare id.
func (s *RecordService) Update(ctx context.Context, id string, fields map[string]any) (map[string]any, error) {
	datasetID, ok := s.fs.OwnerOf(id)
	if !ok {
		return nil, apierrors.RecordNotFound(id)
	}

	unlock := s.locks.Lock(datasetID)
	defer unlock()

	ds := s.fs.Dataset(datasetID)
	if ds == nil {
		return nil, apierrors.DatasetNotFound(datasetID)
	}

	data, err := validateRecordData(ds, fields, true)
	if err != nil {
		return nil, err
	}

	table, err := s.fs.Records(datasetID)
	if err != nil {
		return nil, apierrors.InternalWithError("failed to open records", err)
	}
	existing := table.Get(id)
	if existing == nil {
		return nil, apierrors.RecordNotFound(id)
	}
	if err := checkUnique(ds, table, data, id); err != nil {
		return nil, err
	}

	rec := &models.DataRecord{
		ID:           id,
		DatasetID:    datasetID,
		Data:         data,
		CreatedAt:    existing.CreatedAt,
		LastModified: time.Now(),
	}
	if err := table.Update(rec); err != nil {
		return nil, apierrors.InternalWithError("failed to persist record", err)
	}

	s.commit(ctx, fmt.Sprintf("update: record %s in dataset %s", id, datasetID))
	return rec.Flatten(), nil
}

// Get returns a single record by bare id, flattened and coerced to the
// dataset's current schema.
func (s *RecordService) Get(ctx context.Context, id string) (map[string]any, error) {
	rec, ds, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.Data = coerceOnRead(ds, rec.Data)
	return rec.Flatten(), nil
}

// List returns all records of a dataset, flattened and coerced to the
// dataset's current schema.
func (s *RecordService) List(ctx context.Context, datasetID string) ([]map[string]any, error) {
	ds := s.fs.Dataset(datasetID)
	if ds == nil {
		return nil, apierrors.DatasetNotFound(datasetID)
	}
	table, err := s.fs.Records(datasetID)
	if err != nil {
		return nil, apierrors.InternalWithError("failed to open records", err)
	}

	out := make([]map[string]any, 0, table.Len())
	for rec := range table.All() {
		rec.Data = coerceOnRead(ds, rec.Data)
		out = append(out, rec.Flatten())
	}
	return out, nil
}

// Import persists a batch of rows. A row that fails validation or a
// uniqueness check is skipped, not fatal: the returned count is the
// number of rows actually persisted. Callers are expected to have
// resolved duplicates beforehand via CheckForDuplicates.
func (s *RecordService) Import(ctx context.Context, datasetID string, rows []map[string]any) (int, error) {
	unlock := s.locks.Lock(datasetID)
	defer unlock()

	ds := s.fs.Dataset(datasetID)
	if ds == nil {
		return 0, apierrors.DatasetNotFound(datasetID)
	}

	table, err := s.fs.Records(datasetID)
	if err != nil {
		return 0, apierrors.InternalWithError("failed to open records", err)
	}

	count := 0
	for i, row := range rows {
		data, err := validateRecordData(ds, row, true)
		if err != nil {
			slog.WarnContext(ctx, "Import row rejected", "dataset", datasetID, "row", i, "err", err)
			continue
		}
		if err := checkUnique(ds, table, data, ""); err != nil {
			slog.WarnContext(ctx, "Import row rejected", "dataset", datasetID, "row", i, "err", err)
			continue
		}
		now := time.Now()
		rec := &models.DataRecord{
			ID:           s.newRecordID(),
			DatasetID:    datasetID,
			Data:         data,
			CreatedAt:    now,
			LastModified: now,
		}
		if err := table.Append(rec); err != nil {
			return count, apierrors.InternalWithError("failed to persist record", err)
		}
		s.fs.IndexRecord(rec.ID, datasetID)
		count++
	}

	s.commit(ctx, fmt.Sprintf("import: %d records into dataset %s", count, datasetID))
	return count, nil
}

// lookup fetches a record by bare id together with its dataset.
func (s *RecordService) lookup(id string) (*models.DataRecord, *models.Dataset, error) {
	datasetID, ok := s.fs.OwnerOf(id)
	if !ok {
		return nil, nil, apierrors.RecordNotFound(id)
	}
	ds := s.fs.Dataset(datasetID)
	if ds == nil {
		return nil, nil, apierrors.DatasetNotFound(datasetID)
	}
	table, err := s.fs.Records(datasetID)
	if err != nil {
		return nil, nil, apierrors.InternalWithError("failed to open records", err)
	}
	rec := table.Get(id)
	if rec == nil {
		return nil, nil, apierrors.RecordNotFound(id)
	}
	return rec, ds, nil
}

// newRecordID generates a UUID v4 that is unused across the whole store.
// Collisions are vanishingly rare; the loop is there so the global
// uniqueness invariant never depends on luck.
func (s *RecordService) newRecordID() string {
	for {
		id := uuid.NewString()
		if _, taken := s.fs.OwnerOf(id); !taken {
			return id
		}
	}
}

func (s *RecordService) commit(ctx context.Context, msg string) {
	if s.history == nil {
		return
	}
	if err := s.history.Commit(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to commit change", "err", err)
	}
}
