package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/datadesk/datadesk/internal/errors"
	"github.com/datadesk/datadesk/internal/models"
)

// dateLayouts are the accepted date encodings, tried in order.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// validateRecordData checks every present value against its field
// definition and coerces it to the canonical representation for its type.
// When requireAll is set, non-optional fields must be present (record
// creation and wholesale updates); import and partial paths pass false.
//
// Keys not in the schema pass through unchanged: they are either metadata
// the caller already stripped or values of a field that was since removed
// from the dataset, which are ignored on read.
func validateRecordData(ds *models.Dataset, data map[string]any, requireAll bool) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for key, value := range data {
		if models.ReservedKey(key) {
			continue
		}
		f := ds.Field(key)
		if f == nil {
			out[key] = value
			continue
		}
		if value == nil {
			continue
		}
		coerced, err := coerceFieldValue(f, value)
		if err != nil {
			return nil, apierrors.Validation(f.Key, fmt.Sprintf("invalid value for field %q: %v", f.Key, err))
		}
		out[key] = coerced
	}

	if requireAll {
		for i := range ds.Fields {
			f := &ds.Fields[i]
			if f.IsOptional {
				continue
			}
			if _, ok := out[f.Key]; !ok {
				return nil, apierrors.Validation(f.Key, fmt.Sprintf("missing required field %q", f.Key))
			}
		}
	}
	return out, nil
}

// coerceFieldValue converts a JSON-decoded value to the canonical Go
// representation for the field's type, or reports why it cannot.
func coerceFieldValue(f *models.FieldDefinition, value any) (any, error) {
	if f.IsRelation {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("relation value must be a record id string")
		}
		return s, nil
	}

	switch f.Type {
	case models.FieldTypeDate:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected a date string")
		}
		if _, err := parseDate(s); err != nil {
			return nil, fmt.Errorf("unparseable date %q", s)
		}
		return s, nil

	case models.FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected a boolean")
			}
			return b, nil
		case float64:
			// JSON numbers 0/1 from checkbox exports.
			if v == 0 || v == 1 {
				return v == 1, nil
			}
		}
		return nil, fmt.Errorf("expected a boolean")

	case models.FieldTypeNumber, models.FieldTypePercentage:
		return coerceNumber(value)

	case models.FieldTypeText, models.FieldTypeMarkdown, models.FieldTypeAutocomplete, models.FieldTypeFile:
		return coerceText(value)

	case models.FieldTypeTags, models.FieldTypeFileMultiple:
		return coerceStringSlice(value)

	case models.FieldTypeSelectSingle:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected an option string")
		}
		if err := checkOption(f, s); err != nil {
			return nil, err
		}
		return s, nil

	case models.FieldTypeSelectMultiple:
		items, err := coerceStringSlice(value)
		if err != nil {
			return nil, err
		}
		for _, s := range items {
			if err := checkOption(f, s); err != nil {
				return nil, err
			}
		}
		return items, nil

	case models.FieldTypeJSON:
		return value, nil
	}
	return nil, fmt.Errorf("unknown field type %q", f.Type)
}

func coerceNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("number is not finite")
		}
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number")
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected a number")
}

func coerceText(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		// Format without decimals for whole numbers.
		if v == math.Trunc(v) && !math.IsInf(v, 0) && !math.IsNaN(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("expected a string")
}

func coerceStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of strings")
}

func checkOption(f *models.FieldDefinition, s string) error {
	if len(f.Options) == 0 {
		return nil
	}
	for _, opt := range f.Options {
		if s == opt.ID || s == opt.Label {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of the allowed options", s)
}

// coerceOnRead applies best-effort coercion on the read path so records
// written under an older schema still come back in the shape the current
// field definitions promise. Values that cannot be coerced are returned
// as stored.
func coerceOnRead(ds *models.Dataset, data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		f := ds.Field(key)
		if f == nil || value == nil {
			out[key] = value
			continue
		}
		if coerced, err := coerceFieldValue(f, value); err == nil {
			out[key] = coerced
		} else {
			out[key] = value
		}
	}
	return out
}
