package storage

import (
	"context"
	"testing"

	"github.com/datadesk/datadesk/internal/models"
)

func TestCheckForDuplicatesOnRelationPair(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)

	tests := mustCreateDataset(t, dsSvc, "blood_tests", []models.FieldDefinition{
		{Key: "date", Type: models.FieldTypeDate},
	})
	markers := mustCreateDataset(t, dsSvc, "blood_markers", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
	})
	resultsFields := []models.FieldDefinition{
		relationTo("blood_test_id", tests.ID, models.CascadeDeleteIfReferenced),
		relationTo("blood_marker_id", markers.ID, models.CascadeDeleteIfReferenced),
		{Key: "value", Type: models.FieldTypeNumber, IsOptional: true},
	}
	resultsFields[0].IsSearchable = true
	resultsFields[1].IsSearchable = true
	results := mustCreateDataset(t, dsSvc, "blood_results", resultsFields)

	test := mustAddRecord(t, recSvc, tests.ID, map[string]any{"date": "2024-01-01"})
	marker := mustAddRecord(t, recSvc, markers.ID, map[string]any{"name": "LDL"})
	mustAddRecord(t, recSvc, results.ID, map[string]any{
		"blood_test_id":   test["id"],
		"blood_marker_id": marker["id"],
		"value":           float64(3),
	})

	matches, err := recSvc.CheckForDuplicates(ctx, results.ID, []map[string]any{
		{"blood_test_id": test["id"], "blood_marker_id": marker["id"], "value": float64(4)},
		{"blood_test_id": "some-other-test-id", "blood_marker_id": "some-other-marker-id", "value": float64(5)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	m := matches[0]
	if m.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", m.Confidence)
	}
	if len(m.DuplicateFields) != 2 {
		t.Fatalf("duplicateFields = %v", m.DuplicateFields)
	}
	seen := map[string]bool{}
	for _, k := range m.DuplicateFields {
		seen[k] = true
	}
	if !seen["blood_test_id"] || !seen["blood_marker_id"] {
		t.Fatalf("duplicateFields = %v", m.DuplicateFields)
	}
	if len(m.ExistingRecords) != 1 {
		t.Fatalf("got %d existing records", len(m.ExistingRecords))
	}
}

func TestDuplicateConfidenceMonotonicity(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)
	ds := mustCreateDataset(t, dsSvc, "people", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText, IsSearchable: true},
		{Key: "email", Type: models.FieldTypeText, IsSearchable: true},
		{Key: "phone", Type: models.FieldTypeText, IsSearchable: true},
	})
	mustAddRecord(t, recSvc, ds.ID, map[string]any{
		"name": "Ada", "email": "a@x.com", "phone": "123",
	})

	recSvc.DuplicateThreshold = 0.1
	matches, err := recSvc.CheckForDuplicates(ctx, ds.ID, []map[string]any{
		{"name": "Other", "email": "a@x.com", "phone": "999"},
		{"name": "Ada", "email": "a@x.com", "phone": "999"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[1].Confidence < matches[0].Confidence {
		t.Fatalf("more matching fields must not lower confidence: %v < %v",
			matches[1].Confidence, matches[0].Confidence)
	}
}

func TestDuplicateUniqueFieldForcesReport(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)
	ds := mustCreateDataset(t, dsSvc, "people", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText, IsSearchable: true},
		{Key: "email", Type: models.FieldTypeText, IsUnique: true},
		{Key: "phone", Type: models.FieldTypeText, IsSearchable: true},
	})
	mustAddRecord(t, recSvc, ds.ID, map[string]any{
		"name": "Ada", "email": "a@x.com", "phone": "123",
	})

	// Only one of three compared fields matches, below the default
	// threshold, but it is the unique one.
	matches, err := recSvc.CheckForDuplicates(ctx, ds.ID, []map[string]any{
		{"name": "Other", "email": "a@x.com", "phone": "999"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("unique field match must force a report, got %d matches", len(matches))
	}
}

func TestDuplicateBelowThresholdNotReported(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)
	ds := mustCreateDataset(t, dsSvc, "people", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText, IsSearchable: true},
		{Key: "email", Type: models.FieldTypeText, IsSearchable: true},
		{Key: "phone", Type: models.FieldTypeText, IsSearchable: true},
	})
	mustAddRecord(t, recSvc, ds.ID, map[string]any{
		"name": "Ada", "email": "a@x.com", "phone": "123",
	})

	matches, err := recSvc.CheckForDuplicates(ctx, ds.ID, []map[string]any{
		{"name": "Ada", "email": "b@y.com", "phone": "999"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("1/3 match is below the 0.5 threshold, got %d matches", len(matches))
	}
}

func TestDuplicateAtThresholdNotReported(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)
	ds := mustCreateDataset(t, dsSvc, "people", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText, IsSearchable: true},
		{Key: "email", Type: models.FieldTypeText, IsSearchable: true},
	})
	mustAddRecord(t, recSvc, ds.ID, map[string]any{
		"name": "Ada", "email": "a@x.com",
	})

	// 1/2 match sits exactly at the default threshold; the confidence
	// has to exceed it before a match is reported.
	matches, err := recSvc.CheckForDuplicates(ctx, ds.ID, []map[string]any{
		{"name": "Ada", "email": "b@y.com"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("confidence equal to the threshold must not report, got %d matches", len(matches))
	}
}

func TestCompareFieldsFallback(t *testing.T) {
	dsSvc, _ := newTestStore(t)
	ds := mustCreateDataset(t, dsSvc, "plain", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
		{Key: "attachment", Type: models.FieldTypeFile, IsOptional: true},
		relationTo("other_id", ds0ID(t, dsSvc), models.PreventDeleteIfReferenced),
	})

	fields := compareFields(ds)
	if len(fields) != 1 || fields[0].Key != "name" {
		t.Fatalf("fallback must skip relation and file fields: %#v", fields)
	}
}

// ds0ID creates a throwaway relation target dataset.
func ds0ID(t *testing.T, svc *DatasetService) string {
	t.Helper()
	return mustCreateDataset(t, svc, "target", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
	}).ID
}
