package storage

import (
	"context"
	"strings"

	apierrors "github.com/datadesk/datadesk/internal/errors"
	"github.com/datadesk/datadesk/internal/models"
)

// relationDataSuffix is appended to a relation field's key to hold the
// embedded target record in resolved views.
const relationDataSuffix = "_data"

// isValidID rejects values that cannot be a record id before any lookup
// happens. Relation fields hold UUIDs; short strings and anything with a
// path separator are garbage from hand-edited files.
func isValidID(id string) bool {
	return len(id) > 8 && !strings.Contains(id, "/")
}

// GetWithRelations returns a single record with each relation field
// resolved one level deep: the referenced record's flattened form is
// embedded under "<key>_data". Dangling references are left unresolved.
func (s *RecordService) GetWithRelations(ctx context.Context, id string) (map[string]any, error) {
	rec, ds, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.Data = coerceOnRead(ds, rec.Data)
	out := rec.Flatten()
	s.resolveRelations(ds.RelationFields(), out)
	return out, nil
}

// ListWithRelations returns all records of a dataset with relation fields
// resolved one level deep, as in GetWithRelations.
func (s *RecordService) ListWithRelations(ctx context.Context, datasetID string) ([]map[string]any, error) {
	ds := s.fs.Dataset(datasetID)
	if ds == nil {
		return nil, apierrors.DatasetNotFound(datasetID)
	}
	relations := ds.RelationFields()

	records, err := s.List(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		s.resolveRelations(relations, rec)
	}
	return records, nil
}

// resolveRelations embeds referenced records into a flattened record.
// Resolution is strictly one level deep: embedded records keep their raw
// relation ids so cycles cannot recurse.
func (s *RecordService) resolveRelations(relations []models.FieldDefinition, rec map[string]any) {
	for _, f := range relations {
		ref, _ := rec[f.Key].(string)
		if !isValidID(ref) {
			continue
		}
		table, err := s.fs.Records(f.RelatedDataset)
		if err != nil {
			continue
		}
		target := table.Get(ref)
		if target == nil {
			continue
		}
		if ds := s.fs.Dataset(f.RelatedDataset); ds != nil {
			target.Data = coerceOnRead(ds, target.Data)
		}
		rec[f.Key+relationDataSuffix] = target.Flatten()
	}
}
