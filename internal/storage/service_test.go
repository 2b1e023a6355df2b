package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	apierrors "github.com/datadesk/datadesk/internal/errors"
	"github.com/datadesk/datadesk/internal/models"
)

func newTestStore(t *testing.T) (*DatasetService, *RecordService) {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ds, rs := NewServices(fs, nil)
	return ds, rs
}

func mustCreateDataset(t *testing.T, svc *DatasetService, name string, fields []models.FieldDefinition) *models.Dataset {
	t.Helper()
	ds, err := svc.Create(context.Background(), name, "", "test", fields)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func mustAddRecord(t *testing.T, svc *RecordService, datasetID string, fields map[string]any) map[string]any {
	t.Helper()
	rec, err := svc.Add(context.Background(), datasetID, fields)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func relationTo(key, target string, behavior models.DeleteBehavior) models.FieldDefinition {
	return models.FieldDefinition{
		Key:            key,
		IsRelation:     true,
		IsOptional:     true,
		RelatedDataset: target,
		DeleteBehavior: behavior,
	}
}

func TestDatasetCRUD(t *testing.T) {
	ctx := context.Background()
	dsSvc, _ := newTestStore(t)

	ds := mustCreateDataset(t, dsSvc, "People", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
	})
	if ds.ID == "" {
		t.Fatal("expected an id")
	}

	got, err := dsSvc.Get(ctx, ds.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "People" {
		t.Fatalf("got name %q", got.Name)
	}

	updated, err := dsSvc.Update(ctx, ds.ID, "Persons", "desc", nil)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Persons" || updated.Description != "desc" {
		t.Fatalf("update not applied: %+v", updated)
	}
	if len(updated.Fields) != 1 {
		t.Fatal("nil fields must keep the existing schema")
	}

	all, err := dsSvc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d datasets", len(all))
	}

	if err := dsSvc.Delete(ctx, ds.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := dsSvc.Get(ctx, ds.ID); err == nil {
		t.Fatal("expected not found after delete")
	}
}

func TestDatasetCreateRejectsMissingRelationTarget(t *testing.T) {
	dsSvc, _ := newTestStore(t)
	_, err := dsSvc.Create(context.Background(), "Orders", "", "test", []models.FieldDefinition{
		relationTo("customer_id", "no-such-dataset", models.PreventDeleteIfReferenced),
	})
	if err == nil {
		t.Fatal("expected an error for unknown relation target")
	}
}

func TestDatasetDeleteBlockedByReferencingRecords(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)

	people := mustCreateDataset(t, dsSvc, "People", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
	})
	notes := mustCreateDataset(t, dsSvc, "Notes", []models.FieldDefinition{
		{Key: "body", Type: models.FieldTypeText},
		relationTo("person_id", people.ID, models.PreventDeleteIfReferenced),
	})

	p := mustAddRecord(t, recSvc, people.ID, map[string]any{"name": "Ada"})
	mustAddRecord(t, recSvc, notes.ID, map[string]any{"body": "hi", "person_id": p["id"]})

	err := dsSvc.Delete(ctx, people.ID)
	if err == nil {
		t.Fatal("expected delete to be blocked")
	}
	if !strings.Contains(err.Error(), "referenced by other records") {
		t.Fatalf("error %q must contain the legacy substring", err)
	}

	// Dropping the referencing dataset unblocks the delete.
	if err := dsSvc.Delete(ctx, notes.ID); err != nil {
		t.Fatal(err)
	}
	if err := dsSvc.Delete(ctx, people.ID); err != nil {
		t.Fatal(err)
	}
}

func TestRecordCRUD(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)
	ds := mustCreateDataset(t, dsSvc, "People", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
		{Key: "score", Type: models.FieldTypeNumber, IsOptional: true},
	})

	rec := mustAddRecord(t, recSvc, ds.ID, map[string]any{"name": "Ada", "score": "10"})
	id, _ := rec["id"].(string)
	if id == "" {
		t.Fatal("expected a record id")
	}
	if rec["datasetId"] != ds.ID {
		t.Fatalf("datasetId = %v", rec["datasetId"])
	}
	if rec["score"] != 10.0 {
		t.Fatalf("score not coerced: %v", rec["score"])
	}

	got, err := recSvc.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "Ada" {
		t.Fatalf("got %v", got["name"])
	}

	updated, err := recSvc.Update(ctx, id, map[string]any{"name": "Grace"})
	if err != nil {
		t.Fatal(err)
	}
	if updated["name"] != "Grace" {
		t.Fatalf("got %v", updated["name"])
	}
	if updated["createdAt"] != rec["createdAt"] {
		t.Fatal("createdAt must survive updates")
	}

	list, err := recSvc.List(ctx, ds.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d records", len(list))
	}

	if err := recSvc.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	var ews apierrors.ErrorWithStatus
	if _, err := recSvc.Get(ctx, id); !errors.As(err, &ews) || ews.Code() != apierrors.ErrRecordNotFound {
		t.Fatalf("expected RECORD_NOT_FOUND, got %v", err)
	}
}

func TestUniqueConstraint(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)
	ds := mustCreateDataset(t, dsSvc, "People", []models.FieldDefinition{
		{Key: "email", Type: models.FieldTypeText, DisplayName: "Email Address", IsUnique: true},
	})

	first := mustAddRecord(t, recSvc, ds.ID, map[string]any{"email": "a@x.com"})

	_, err := recSvc.Add(ctx, ds.ID, map[string]any{"email": " A@X.COM "})
	if err == nil {
		t.Fatal("expected a unique violation for a case-folded duplicate")
	}
	if !strings.Contains(err.Error(), "must be unique") || !strings.Contains(err.Error(), "Email Address") {
		t.Fatalf("error %q must contain the legacy substring and display name", err)
	}
	var ews apierrors.ErrorWithStatus
	if !errors.As(err, &ews) || ews.Code() != apierrors.ErrUniqueConstraint {
		t.Fatalf("expected UNIQUE_CONSTRAINT, got %v", err)
	}

	// Updating a record to its own value is not a collision.
	id, _ := first["id"].(string)
	if _, err := recSvc.Update(ctx, id, map[string]any{"email": "a@x.com"}); err != nil {
		t.Fatal(err)
	}

	second := mustAddRecord(t, recSvc, ds.ID, map[string]any{"email": "b@x.com"})
	sid, _ := second["id"].(string)
	if _, err := recSvc.Update(ctx, sid, map[string]any{"email": "a@x.com"}); err == nil {
		t.Fatal("expected a unique violation on update")
	}
}

func TestCascadeDeleteTransitive(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)

	a := mustCreateDataset(t, dsSvc, "A", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
	})
	b := mustCreateDataset(t, dsSvc, "B", []models.FieldDefinition{
		relationTo("a_id", a.ID, models.CascadeDeleteIfReferenced),
	})
	c := mustCreateDataset(t, dsSvc, "C", []models.FieldDefinition{
		relationTo("b_id", b.ID, models.CascadeDeleteIfReferenced),
	})

	ra := mustAddRecord(t, recSvc, a.ID, map[string]any{"name": "root"})
	rb := mustAddRecord(t, recSvc, b.ID, map[string]any{"a_id": ra["id"]})
	rc := mustAddRecord(t, recSvc, c.ID, map[string]any{"b_id": rb["id"]})
	keep := mustAddRecord(t, recSvc, b.ID, map[string]any{"a_id": "unrelated-id"})

	if err := recSvc.Delete(ctx, ra["id"].(string)); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{ra["id"].(string), rb["id"].(string), rc["id"].(string)} {
		if _, err := recSvc.Get(ctx, id); err == nil {
			t.Fatalf("record %s should have been cascaded", id)
		}
	}
	if _, err := recSvc.Get(ctx, keep["id"].(string)); err != nil {
		t.Fatal("unrelated record must survive the cascade")
	}
}

func TestPreventDelete(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)

	a := mustCreateDataset(t, dsSvc, "A", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
	})
	b := mustCreateDataset(t, dsSvc, "B", []models.FieldDefinition{
		relationTo("a_id", a.ID, models.PreventDeleteIfReferenced),
	})

	ra := mustAddRecord(t, recSvc, a.ID, map[string]any{"name": "root"})
	rb := mustAddRecord(t, recSvc, b.ID, map[string]any{"a_id": ra["id"]})

	err := recSvc.Delete(ctx, ra["id"].(string))
	if err == nil {
		t.Fatal("expected the delete to be blocked")
	}
	if !strings.Contains(err.Error(), "referenced by other records") {
		t.Fatalf("error %q must contain the legacy substring", err)
	}
	var ews apierrors.ErrorWithStatus
	if !errors.As(err, &ews) || ews.Code() != apierrors.ErrReferentialIntegrity {
		t.Fatalf("expected REFERENTIAL_INTEGRITY, got %v", err)
	}

	// Nothing was deleted.
	if _, err := recSvc.Get(ctx, ra["id"].(string)); err != nil {
		t.Fatal("blocked delete must leave the target intact")
	}

	// Removing the reference unblocks the delete.
	if err := recSvc.Delete(ctx, rb["id"].(string)); err != nil {
		t.Fatal(err)
	}
	if err := recSvc.Delete(ctx, ra["id"].(string)); err != nil {
		t.Fatal(err)
	}
}

func TestCascadeCycleTerminates(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)

	a := mustCreateDataset(t, dsSvc, "A", []models.FieldDefinition{
		{Key: "b_id", Type: models.FieldTypeText, IsOptional: true},
	})
	b := mustCreateDataset(t, dsSvc, "B", []models.FieldDefinition{
		relationTo("a_id", a.ID, models.CascadeDeleteIfReferenced),
	})
	// Close the cycle: A gains a cascade relation back to B.
	a2 := a.Clone()
	a2.Fields = append(a2.Fields, relationTo("b_ref", b.ID, models.CascadeDeleteIfReferenced))
	if _, err := dsSvc.Update(ctx, a.ID, a.Name, "", a2.Fields); err != nil {
		t.Fatal(err)
	}

	ra := mustAddRecord(t, recSvc, a.ID, map[string]any{})
	rb := mustAddRecord(t, recSvc, b.ID, map[string]any{"a_id": ra["id"]})
	if _, err := recSvc.Update(ctx, ra["id"].(string), map[string]any{"b_ref": rb["id"]}); err != nil {
		t.Fatal(err)
	}

	if err := recSvc.Delete(ctx, ra["id"].(string)); err != nil {
		t.Fatal(err)
	}
	if _, err := recSvc.Get(ctx, rb["id"].(string)); err == nil {
		t.Fatal("cycle partner should have been deleted")
	}
}

func TestPreventEdgeOfPlannedRecordDoesNotVeto(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)

	a := mustCreateDataset(t, dsSvc, "A", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
	})
	// B references A twice: a prevent edge and a cascade edge. A record
	// holding both references is pulled in by the cascade, so its prevent
	// reference must not block the delete.
	b := mustCreateDataset(t, dsSvc, "B", []models.FieldDefinition{
		relationTo("guard_id", a.ID, models.PreventDeleteIfReferenced),
		relationTo("owner_id", a.ID, models.CascadeDeleteIfReferenced),
	})

	ra := mustAddRecord(t, recSvc, a.ID, map[string]any{"name": "root"})
	rb := mustAddRecord(t, recSvc, b.ID, map[string]any{"guard_id": ra["id"], "owner_id": ra["id"]})

	if err := recSvc.Delete(ctx, ra["id"].(string)); err != nil {
		t.Fatalf("planned record must not veto its own cascade: %v", err)
	}
	if _, err := recSvc.Get(ctx, rb["id"].(string)); err == nil {
		t.Fatal("referencing record should have been cascaded")
	}
}

func TestRelationResolution(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)

	people := mustCreateDataset(t, dsSvc, "People", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
	})
	notes := mustCreateDataset(t, dsSvc, "Notes", []models.FieldDefinition{
		{Key: "body", Type: models.FieldTypeText},
		relationTo("person_id", people.ID, models.PreventDeleteIfReferenced),
	})

	p := mustAddRecord(t, recSvc, people.ID, map[string]any{"name": "Ada"})
	n := mustAddRecord(t, recSvc, notes.ID, map[string]any{"body": "hi", "person_id": p["id"]})
	dangling := mustAddRecord(t, recSvc, notes.ID, map[string]any{"body": "lost", "person_id": "ffffffff-0000-0000-0000-000000000000"})

	got, err := recSvc.GetWithRelations(ctx, n["id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	embedded, ok := got["person_id_data"].(map[string]any)
	if !ok {
		t.Fatalf("expected embedded record, got %#v", got["person_id_data"])
	}
	if embedded["name"] != "Ada" || embedded["id"] != p["id"] {
		t.Fatalf("embedded record wrong: %#v", embedded)
	}

	list, err := recSvc.ListWithRelations(ctx, notes.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d records", len(list))
	}
	for _, rec := range list {
		if rec["id"] == dangling["id"] {
			if _, ok := rec["person_id_data"]; ok {
				t.Fatal("dangling reference must stay unresolved")
			}
		}
	}
}

func TestAddAfterDatasetDeleteRefused(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)
	ds := mustCreateDataset(t, dsSvc, "People", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
	})
	if err := dsSvc.Delete(ctx, ds.ID); err != nil {
		t.Fatal(err)
	}

	// The dataset check runs under the same writer lock the dataset
	// delete holds, so an interleaved add cannot recreate its records.
	_, err := recSvc.Add(ctx, ds.ID, map[string]any{"name": "Ada"})
	var ews apierrors.ErrorWithStatus
	if !errors.As(err, &ews) || ews.Code() != apierrors.ErrDatasetNotFound {
		t.Fatalf("expected DATASET_NOT_FOUND, got %v", err)
	}
}

func TestConcurrentAddRespectsUniqueField(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)
	ds := mustCreateDataset(t, dsSvc, "People", []models.FieldDefinition{
		{Key: "email", Type: models.FieldTypeText, IsUnique: true, DisplayName: "Email Address"},
	})

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = recSvc.Add(ctx, ds.ID, map[string]any{"email": "a@x.com"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !strings.Contains(err.Error(), "must be unique") {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d concurrent adds succeeded, want exactly 1", succeeded)
	}
	list, err := recSvc.List(ctx, ds.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d records, want 1", len(list))
	}
}

func TestImportPartialSuccess(t *testing.T) {
	ctx := context.Background()
	dsSvc, recSvc := newTestStore(t)
	ds := mustCreateDataset(t, dsSvc, "People", []models.FieldDefinition{
		{Key: "email", Type: models.FieldTypeText, IsUnique: true},
		{Key: "score", Type: models.FieldTypeNumber, IsOptional: true},
	})

	count, err := recSvc.Import(ctx, ds.ID, []map[string]any{
		{"email": "a@x.com"},
		{"email": "a@x.com"},                  // duplicate of the row above
		{"email": "b@x.com", "score": "nope"}, // invalid number
		{"score": float64(2)},                 // missing required email
		{"email": "c@x.com", "score": float64(3)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("imported %d, want 2", count)
	}

	list, err := recSvc.List(ctx, ds.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d records", len(list))
	}
}

func TestRecordsPersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	fs, err := NewFileStore(root)
	if err != nil {
		t.Fatal(err)
	}
	dsSvc, recSvc := NewServices(fs, nil)
	ds := mustCreateDataset(t, dsSvc, "People", []models.FieldDefinition{
		{Key: "name", Type: models.FieldTypeText},
	})
	rec := mustAddRecord(t, recSvc, ds.ID, map[string]any{"name": "Ada"})

	fs2, err := NewFileStore(root)
	if err != nil {
		t.Fatal(err)
	}
	_, recSvc2 := NewServices(fs2, nil)
	got, err := recSvc2.Get(ctx, rec["id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "Ada" {
		t.Fatalf("got %v", got["name"])
	}
}
