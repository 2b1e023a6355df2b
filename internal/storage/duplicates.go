package storage

import (
	"context"
	"slices"

	apierrors "github.com/datadesk/datadesk/internal/errors"
	"github.com/datadesk/datadesk/internal/models"
)

// compareFields picks the fields used for duplicate matching: unique and
// searchable fields if any are marked, otherwise every field that is not
// a relation or a file reference.
func compareFields(ds *models.Dataset) []models.FieldDefinition {
	var out []models.FieldDefinition
	for _, f := range ds.Fields {
		if f.IsUnique || f.IsSearchable {
			out = append(out, f)
		}
	}
	if out != nil {
		return out
	}
	for _, f := range ds.Fields {
		if f.IsRelation || f.Type == models.FieldTypeFile || f.Type == models.FieldTypeFileMultiple {
			continue
		}
		out = append(out, f)
	}
	return out
}

// CheckForDuplicates compares import rows against the existing records of
// a dataset and reports likely duplicates without mutating anything.
//
// Per row and existing record, confidence is the fraction of compared
// fields whose normalized values agree, counting only fields where both
// sides hold a value. A row is reported when its best confidence reaches
// the threshold, or unconditionally when any unique field matches.
func (s *RecordService) CheckForDuplicates(ctx context.Context, datasetID string, rows []map[string]any) ([]models.DuplicateMatch, error) {
	ds := s.fs.Dataset(datasetID)
	if ds == nil {
		return nil, apierrors.DatasetNotFound(datasetID)
	}
	table, err := s.fs.Records(datasetID)
	if err != nil {
		return nil, apierrors.InternalWithError("failed to open records", err)
	}

	threshold := s.DuplicateThreshold
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	fields := compareFields(ds)

	var matches []models.DuplicateMatch
	for _, row := range rows {
		m := models.DuplicateMatch{ImportRecord: row}
		report := false

		for rec := range table.All() {
			matched, compared := 0, 0
			var keys []string
			uniqueHit := false
			for i := range fields {
				f := &fields[i]
				a, okA := normalizeValue(f, row[f.Key])
				b, okB := normalizeValue(f, rec.Data[f.Key])
				if !okA || !okB {
					continue
				}
				compared++
				if a == b {
					matched++
					keys = append(keys, f.Key)
					if f.IsUnique {
						uniqueHit = true
					}
				}
			}
			if compared == 0 || matched == 0 {
				continue
			}
			confidence := float64(matched) / float64(compared)
			if confidence <= threshold && !uniqueHit {
				continue
			}

			report = true
			m.ExistingRecords = append(m.ExistingRecords, rec.Flatten())
			for _, k := range keys {
				if !slices.Contains(m.DuplicateFields, k) {
					m.DuplicateFields = append(m.DuplicateFields, k)
				}
			}
			if confidence > m.Confidence {
				m.Confidence = confidence
			}
		}

		if report {
			matches = append(matches, m)
		}
	}
	return matches, nil
}
