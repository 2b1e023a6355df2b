package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCommitAndLog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc, err := New(dir, "test", "test@localhost")
	if err != nil {
		t.Fatal(err)
	}

	// A fresh repository has no entries yet.
	entries, err := svc.Log(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}

	// A commit on a clean worktree is a no-op.
	if err := svc.Commit(ctx, "noop"); err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(dir, "a.jsonl")
	if err := os.WriteFile(file, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := svc.Commit(ctx, "create: record"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, []byte("{}\n{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := svc.Commit(ctx, "update: record"); err != nil {
		t.Fatal(err)
	}

	entries, err = svc.Log(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries: %v", len(entries), entries)
	}
	if entries[0] != "update: record" || entries[1] != "create: record" {
		t.Fatalf("entries = %v", entries)
	}

	entries, err = svc.Log(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("limit not applied: %v", entries)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc, err := New(dir, "test", "test@localhost")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := svc.Commit(ctx, "create: record"); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(dir, "test", "test@localhost")
	if err != nil {
		t.Fatal(err)
	}
	entries, err := reopened.Log(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0] != "create: record" {
		t.Fatalf("entries = %v", entries)
	}
}
