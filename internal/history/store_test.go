package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func sampleEntry(runID string) *Entry {
	return &Entry{
		RunID:      runID,
		Target:     "https://example.com/acme/billing.git",
		Project:    "/home/dev/billing",
		FinalStage: "complete",
		Status:     "complete",
		TokensIn:   84000,
		TokensOut:  21000,
		Cost:       1.37,
		StartedAt:  time.Now().Add(-10 * time.Minute),
		FinishedAt: time.Now(),
	}
}

func TestRecordAndGet(t *testing.T) {
	store := setupTestStore(t)

	e := sampleEntry("run-1")
	if err := store.Record(e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := store.Get("run-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Target != e.Target {
		t.Errorf("Target = %q, want %q", got.Target, e.Target)
	}
	if got.FinalStage != "complete" || got.Status != "complete" {
		t.Errorf("stage/status = (%q, %q)", got.FinalStage, got.Status)
	}
	if got.TokensIn != 84000 || got.TokensOut != 21000 {
		t.Errorf("tokens = (%d, %d), want (84000, 21000)", got.TokensIn, got.TokensOut)
	}
	if got.Cost != 1.37 {
		t.Errorf("Cost = %v, want 1.37", got.Cost)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Get("missing")
	if err == nil {
		t.Fatal("expected error for missing run")
	}
	if !strings.Contains(err.Error(), "run not found") {
		t.Errorf("error = %v, want run not found", err)
	}
}

func TestRecord_Upserts(t *testing.T) {
	store := setupTestStore(t)

	e := sampleEntry("run-1")
	e.FinalStage = "planned"
	e.Status = "failed"
	if err := store.Record(e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// A resumed run records again with its final shape.
	e.FinalStage = "complete"
	e.Status = "complete"
	e.TokensIn += 5000
	if err := store.Record(e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := store.List(0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].FinalStage != "complete" || entries[0].TokensIn != 89000 {
		t.Errorf("upserted entry = %+v", entries[0])
	}
}

func TestList_NewestFirst(t *testing.T) {
	store := setupTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		e := sampleEntry(id)
		e.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Record(e); err != nil {
			t.Fatalf("Record %s failed: %v", id, err)
		}
	}

	entries, err := store.List(0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"run-c", "run-b", "run-a"}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}
	for i, id := range want {
		if entries[i].RunID != id {
			t.Errorf("entries[%d].RunID = %s, want %s", i, entries[i].RunID, id)
		}
	}

	limited, err := store.List(2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 2 || limited[0].RunID != "run-c" {
		t.Errorf("limited list = %+v", limited)
	}
}

func TestDelete(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Record(sampleEntry("run-1")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Delete("run-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("run-1"); err == nil {
		t.Error("expected error deleting missing run")
	}
}

func TestDefaultDBPath(t *testing.T) {
	original := os.Getenv("XDG_DATA_HOME")
	defer os.Setenv("XDG_DATA_HOME", original)

	os.Setenv("XDG_DATA_HOME", "/custom/data")
	path := DefaultDBPath()
	expected := "/custom/data/glassbox/history.db"
	if path != expected {
		t.Errorf("DefaultDBPath() = %q, want %q", path, expected)
	}

	os.Unsetenv("XDG_DATA_HOME")
	path = DefaultDBPath()
	home, _ := os.UserHomeDir()
	expected = filepath.Join(home, ".local", "share", "glassbox", "history.db")
	if path != expected {
		t.Errorf("DefaultDBPath() = %q, want %q", path, expected)
	}
}
