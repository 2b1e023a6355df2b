package storage

import (
	"sort"
	"strconv"
	"strings"

	"github.com/datadesk/datadesk/internal/models"
)

// normalizeValue reduces a field value to a canonical comparison key:
// text is trimmed and case-folded, dates compare at day granularity,
// numbers by numeric value, string lists order-insensitively. The second
// return is false when the value is absent or empty.
//
// Both the uniqueness check and the duplicate detector compare through
// this function so "A@x.com " and "a@x.com" collide the way users expect.
func normalizeValue(f *models.FieldDefinition, value any) (string, bool) {
	if value == nil {
		return "", false
	}
	if f.IsRelation {
		s, _ := value.(string)
		return s, s != ""
	}

	switch f.Type {
	case models.FieldTypeDate:
		s, _ := value.(string)
		if s == "" {
			return "", false
		}
		if t, err := parseDate(s); err == nil {
			return t.UTC().Format("2006-01-02"), true
		}
		return strings.TrimSpace(s), true

	case models.FieldTypeBoolean:
		if b, ok := value.(bool); ok {
			return strconv.FormatBool(b), true
		}
		return "", false

	case models.FieldTypeNumber, models.FieldTypePercentage:
		if n, err := coerceNumber(value); err == nil {
			return strconv.FormatFloat(n, 'g', -1, 64), true
		}
		return "", false

	case models.FieldTypeTags, models.FieldTypeSelectMultiple, models.FieldTypeFileMultiple:
		items, err := coerceStringSlice(value)
		if err != nil || len(items) == 0 {
			return "", false
		}
		normalized := make([]string, len(items))
		for i, s := range items {
			normalized[i] = strings.ToLower(strings.TrimSpace(s))
		}
		sort.Strings(normalized)
		return strings.Join(normalized, "\x00"), true

	default:
		s, err := coerceText(value)
		if err != nil || strings.TrimSpace(s) == "" {
			return "", false
		}
		return strings.ToLower(strings.TrimSpace(s)), true
	}
}
