package storage

import (
	apierrors "github.com/datadesk/datadesk/internal/errors"
	"github.com/datadesk/datadesk/internal/jsonldb"
	"github.com/datadesk/datadesk/internal/models"
)

// checkUnique verifies that no existing record of the dataset (other than
// excludeID, the record being updated) holds an equal value in any field
// marked unique. Must be called with the dataset's writer lock held so the
// check and the following write are atomic.
func checkUnique(ds *models.Dataset, table *jsonldb.Table[*models.DataRecord], data map[string]any, excludeID string) error {
	type uniqueField struct {
		def *models.FieldDefinition
		key string
	}
	var fields []uniqueField
	for i := range ds.Fields {
		f := &ds.Fields[i]
		if !f.IsUnique {
			continue
		}
		if _, present := data[f.Key]; present {
			fields = append(fields, uniqueField{def: f, key: f.Key})
		}
	}
	if len(fields) == 0 {
		return nil
	}

	candidate := make(map[string]string, len(fields))
	for _, uf := range fields {
		if norm, ok := normalizeValue(uf.def, data[uf.key]); ok {
			candidate[uf.key] = norm
		}
	}
	if len(candidate) == 0 {
		return nil
	}

	for rec := range table.All() {
		if rec.ID == excludeID {
			continue
		}
		for _, uf := range fields {
			want, ok := candidate[uf.key]
			if !ok {
				continue
			}
			got, ok := normalizeValue(uf.def, rec.Data[uf.key])
			if ok && got == want {
				name := uf.def.DisplayName
				if name == "" {
					name = uf.key
				}
				return apierrors.UniqueConstraint(uf.key, name)
			}
		}
	}
	return nil
}
