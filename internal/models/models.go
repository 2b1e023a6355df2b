// Package models defines the core data structures of the record store.
package models

import (
	"fmt"
	"time"
)

// FieldType represents the type of a dataset field.
type FieldType string

const (
	// FieldTypeDate stores ISO8601 date strings.
	FieldTypeDate FieldType = "date"
	// FieldTypeBoolean stores boolean values.
	FieldTypeBoolean FieldType = "boolean"
	// FieldTypeNumber stores numeric values (integer or float).
	FieldTypeNumber FieldType = "number"
	// FieldTypePercentage stores numeric values interpreted as percentages.
	FieldTypePercentage FieldType = "percentage"
	// FieldTypeText stores plain text values.
	FieldTypeText FieldType = "text"
	// FieldTypeTags stores a list of free-form tag strings.
	FieldTypeTags FieldType = "tags"
	// FieldTypeMarkdown stores markdown text.
	FieldTypeMarkdown FieldType = "markdown"
	// FieldTypeSelectSingle stores a single selection from predefined options.
	FieldTypeSelectSingle FieldType = "select-single"
	// FieldTypeSelectMultiple stores multiple selections from predefined options.
	FieldTypeSelectMultiple FieldType = "select-multiple"
	// FieldTypeAutocomplete stores free text with suggested completions.
	FieldTypeAutocomplete FieldType = "autocomplete"
	// FieldTypeFile stores a relative path to an uploaded file.
	FieldTypeFile FieldType = "file"
	// FieldTypeFileMultiple stores a list of relative paths to uploaded files.
	FieldTypeFileMultiple FieldType = "file-multiple"
	// FieldTypeJSON stores arbitrary JSON values.
	FieldTypeJSON FieldType = "json"
)

// fieldTypes is the closed set of valid field types.
var fieldTypes = map[FieldType]struct{}{
	FieldTypeDate:           {},
	FieldTypeBoolean:        {},
	FieldTypeNumber:         {},
	FieldTypePercentage:     {},
	FieldTypeText:           {},
	FieldTypeTags:           {},
	FieldTypeMarkdown:       {},
	FieldTypeSelectSingle:   {},
	FieldTypeSelectMultiple: {},
	FieldTypeAutocomplete:   {},
	FieldTypeFile:           {},
	FieldTypeFileMultiple:   {},
	FieldTypeJSON:           {},
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	_, ok := fieldTypes[t]
	return ok
}

// DeleteBehavior controls what happens to referencing records when the
// target of a relation field is deleted.
type DeleteBehavior string

const (
	// CascadeDeleteIfReferenced deletes referencing records along with the target.
	CascadeDeleteIfReferenced DeleteBehavior = "cascadeDeleteIfReferenced"
	// PreventDeleteIfReferenced blocks the delete while references exist.
	PreventDeleteIfReferenced DeleteBehavior = "preventDeleteIfReferenced"
)

// SelectOption represents an option for select fields.
type SelectOption struct {
	ID    string `json:"id" jsonschema:"description=Unique option identifier"`
	Label string `json:"label" jsonschema:"description=Display label of the option"`
	Color string `json:"color,omitempty" jsonschema:"description=Color for visual distinction"`
}

// FieldDefinition describes one column of a dataset: its key, type and
// constraints. Relation fields reference records of another dataset by id.
type FieldDefinition struct {
	Key          string    `json:"key" jsonschema:"description=Storage key of the field"`
	Type         FieldType `json:"type" jsonschema:"description=Field type (date/number/text/etc)"`
	DisplayName  string    `json:"displayName" jsonschema:"description=Human readable field name"`
	Description  string    `json:"description,omitempty" jsonschema:"description=Optional field description"`
	Unit         string    `json:"unit,omitempty" jsonschema:"description=Unit of measure for numeric fields"`
	IsSearchable bool      `json:"isSearchable,omitempty" jsonschema:"description=Whether the field participates in search and duplicate matching"`
	IsOptional   bool      `json:"isOptional,omitempty" jsonschema:"description=Whether the field may be absent"`
	IsUnique     bool      `json:"isUnique,omitempty" jsonschema:"description=Whether values must be unique within the dataset"`

	IsRelation     bool           `json:"isRelation,omitempty" jsonschema:"description=Whether this field references a record of another dataset"`
	RelatedDataset string         `json:"relatedDataset,omitempty" jsonschema:"description=ID of the related dataset"`
	RelatedField   string         `json:"relatedField,omitempty" jsonschema:"description=Display field of the related dataset"`
	DeleteBehavior DeleteBehavior `json:"deleteBehavior,omitempty" jsonschema:"description=cascadeDeleteIfReferenced or preventDeleteIfReferenced"`

	Options []SelectOption `json:"options,omitempty" jsonschema:"description=Allowed values for select fields"`
}

// Validate checks that a single field definition is well-formed.
// Relation target existence is checked by the registry, not here.
func (f *FieldDefinition) Validate() error {
	if f.Key == "" {
		return fmt.Errorf("field key is required")
	}
	if f.IsRelation {
		if f.RelatedDataset == "" {
			return fmt.Errorf("field %q: relation requires relatedDataset", f.Key)
		}
		switch f.DeleteBehavior {
		case CascadeDeleteIfReferenced, PreventDeleteIfReferenced:
		default:
			return fmt.Errorf("field %q: invalid deleteBehavior %q", f.Key, f.DeleteBehavior)
		}
		return nil
	}
	if !f.Type.Valid() {
		return fmt.Errorf("field %q: unknown type %q", f.Key, f.Type)
	}
	return nil
}

// Dataset is a user-defined table: a name plus a list of field definitions.
type Dataset struct {
	ID           string            `json:"id" jsonschema:"description=Unique dataset identifier"`
	Name         string            `json:"name" jsonschema:"description=Dataset name"`
	Description  string            `json:"description,omitempty" jsonschema:"description=Dataset description"`
	Type         string            `json:"type" jsonschema:"description=Dataset category (bloodwork/experiment/...)"`
	Fields       []FieldDefinition `json:"fields" jsonschema:"description=Schema of the dataset"`
	CreatedAt    time.Time         `json:"createdAt" jsonschema:"description=Creation timestamp"`
	LastModified time.Time         `json:"lastModified" jsonschema:"description=Last modification timestamp"`
}

// Clone returns a deep copy of the Dataset.
func (d *Dataset) Clone() *Dataset {
	c := *d
	if d.Fields != nil {
		c.Fields = make([]FieldDefinition, len(d.Fields))
		copy(c.Fields, d.Fields)
		for i := range c.Fields {
			if opts := d.Fields[i].Options; opts != nil {
				c.Fields[i].Options = make([]SelectOption, len(opts))
				copy(c.Fields[i].Options, opts)
			}
		}
	}
	return &c
}

// GetID returns the Dataset's ID.
func (d *Dataset) GetID() string {
	return d.ID
}

// Field returns the field definition with the given key, or nil.
func (d *Dataset) Field(key string) *FieldDefinition {
	for i := range d.Fields {
		if d.Fields[i].Key == key {
			return &d.Fields[i]
		}
	}
	return nil
}

// RelationFields returns all relation fields of the dataset.
func (d *Dataset) RelationFields() []FieldDefinition {
	var out []FieldDefinition
	for _, f := range d.Fields {
		if f.IsRelation && f.RelatedDataset != "" {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks the dataset definition: name present, field keys unique,
// every field well-formed.
func (d *Dataset) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("dataset name is required")
	}
	seen := make(map[string]struct{}, len(d.Fields))
	for i := range d.Fields {
		f := &d.Fields[i]
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("duplicate field key %q", f.Key)
		}
		seen[f.Key] = struct{}{}
	}
	return nil
}

// Metadata keys merged into flattened record maps. These are reserved and
// stripped from incoming field data.
const (
	MetaID           = "id"
	MetaDatasetID    = "datasetId"
	MetaCreatedAt    = "createdAt"
	MetaLastModified = "lastModified"
)

// ReservedKey reports whether key is a record metadata key.
func ReservedKey(key string) bool {
	switch key {
	case MetaID, MetaDatasetID, MetaCreatedAt, MetaLastModified:
		return true
	}
	return false
}

// DataRecord is a single row of a dataset. Field values live in Data keyed
// by field key; the ID is a UUID v4 unique across the whole store.
type DataRecord struct {
	ID           string         `json:"id" jsonschema:"description=Unique record identifier (UUID v4)"`
	DatasetID    string         `json:"datasetId" jsonschema:"description=Owning dataset"`
	Data         map[string]any `json:"data" jsonschema:"description=Field values keyed by field key"`
	CreatedAt    time.Time      `json:"createdAt" jsonschema:"description=Creation timestamp"`
	LastModified time.Time      `json:"lastModified" jsonschema:"description=Last modification timestamp"`
}

// Clone returns a deep-enough copy of the DataRecord. Nested values are
// shared; callers treat record data as immutable once stored.
func (r *DataRecord) Clone() *DataRecord {
	c := *r
	if r.Data != nil {
		c.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			c.Data[k] = v
		}
	}
	return &c
}

// GetID returns the DataRecord's ID.
func (r *DataRecord) GetID() string {
	return r.ID
}

// Flatten merges field data and metadata into a single map, the shape the
// UI consumes.
func (r *DataRecord) Flatten() map[string]any {
	out := make(map[string]any, len(r.Data)+4)
	for k, v := range r.Data {
		out[k] = v
	}
	out[MetaID] = r.ID
	out[MetaDatasetID] = r.DatasetID
	out[MetaCreatedAt] = r.CreatedAt
	out[MetaLastModified] = r.LastModified
	return out
}

// DuplicateMatch reports one import candidate that resembles existing records.
type DuplicateMatch struct {
	ImportRecord    map[string]any   `json:"importRecord" jsonschema:"description=The candidate row as submitted"`
	ExistingRecords []map[string]any `json:"existingRecords" jsonschema:"description=Stored records the candidate resembles"`
	DuplicateFields []string         `json:"duplicateFields" jsonschema:"description=Field keys that drove the match"`
	Confidence      float64          `json:"confidence" jsonschema:"description=Fraction of compared fields that match (0-1)"`
}
