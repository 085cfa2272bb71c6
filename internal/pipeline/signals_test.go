package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteStopSignal_ShouldStop(t *testing.T) {
	root := t.TempDir()

	sm, err := NewSignalManager(root, "run-a")
	if err != nil {
		t.Fatalf("NewSignalManager() error = %v", err)
	}
	defer sm.Close()

	if sm.ShouldStop() {
		t.Fatal("ShouldStop() = true before any signal")
	}

	if err := WriteStopSignal(root, "run-a"); err != nil {
		t.Fatalf("WriteStopSignal() error = %v", err)
	}

	// The stat fallback makes the signal visible without waiting on the
	// watcher goroutine.
	if !sm.ShouldStop() {
		t.Error("ShouldStop() = false after stop signal written")
	}
}

func TestShouldStop_IgnoresOtherRuns(t *testing.T) {
	root := t.TempDir()

	sm, err := NewSignalManager(root, "run-a")
	if err != nil {
		t.Fatalf("NewSignalManager() error = %v", err)
	}
	defer sm.Close()

	if err := WriteStopSignal(root, "run-b"); err != nil {
		t.Fatalf("WriteStopSignal() error = %v", err)
	}
	if sm.ShouldStop() {
		t.Error("ShouldStop() = true for another run's signal")
	}
}

func TestClear_RemovesSignal(t *testing.T) {
	root := t.TempDir()

	sm, err := NewSignalManager(root, "run-a")
	if err != nil {
		t.Fatalf("NewSignalManager() error = %v", err)
	}
	defer sm.Close()

	if err := WriteStopSignal(root, "run-a"); err != nil {
		t.Fatalf("WriteStopSignal() error = %v", err)
	}
	if !sm.ShouldStop() {
		t.Fatal("signal not visible before Clear")
	}

	sm.Clear()
	if _, err := os.Stat(filepath.Join(SignalsDir(root), "stop-run-a")); !os.IsNotExist(err) {
		t.Error("stop file still on disk after Clear")
	}
}

func TestSignalsDir(t *testing.T) {
	got := SignalsDir("/work/project")
	want := filepath.Join("/work/project", ".glassbox", "signals")
	if got != want {
		t.Errorf("SignalsDir() = %s, want %s", got, want)
	}
}
