package pipeline

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SignalManager watches the project's .glassbox/signals directory for a
// per-run stop file. `glassbox stop <run-id>` writes the file, possibly
// from another process; the executor polls ShouldStop between stages and
// between batches.
type SignalManager struct {
	signalsDir string
	runID      string

	mu         sync.RWMutex
	stopSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalManager creates a signal manager for the given project and run.
func NewSignalManager(projectRoot, runID string) (*SignalManager, error) {
	signalsDir := SignalsDir(projectRoot)
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	sm := &SignalManager{
		signalsDir: signalsDir,
		runID:      runID,
		done:       make(chan struct{}),
	}

	// Start file watcher for immediate signals
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher - ShouldStop falls back to stat polling
		return sm, nil
	}
	sm.watcher = watcher

	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		sm.watcher = nil
		return sm, nil
	}

	go sm.watchSignals()

	return sm, nil
}

// watchSignals monitors the signals directory for this run's stop file.
func (sm *SignalManager) watchSignals() {
	for {
		select {
		case <-sm.done:
			return
		case event, ok := <-sm.watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(event.Name)
			if base == stopFileName(sm.runID) && (event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0) {
				sm.mu.Lock()
				sm.stopSignal = true
				sm.mu.Unlock()
			}
		case <-sm.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// ShouldStop returns true if a stop signal has been received.
func (sm *SignalManager) ShouldStop() bool {
	// Also check the file directly in case the watcher missed it
	stopPath := filepath.Join(sm.signalsDir, stopFileName(sm.runID))
	if _, err := os.Stat(stopPath); err == nil {
		sm.mu.Lock()
		sm.stopSignal = true
		sm.mu.Unlock()
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stopSignal
}

// Clear removes this run's stop file and resets the signal state.
func (sm *SignalManager) Clear() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.stopSignal = false
	os.Remove(filepath.Join(sm.signalsDir, stopFileName(sm.runID)))
}

// Close shuts down the signal manager.
func (sm *SignalManager) Close() {
	close(sm.done)
	if sm.watcher != nil {
		sm.watcher.Close()
	}
}

// SignalsDir returns the signals directory for a project root.
func SignalsDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".glassbox", "signals")
}

// WriteStopSignal creates the stop file for a run. It is what
// `glassbox stop` calls, usually from a different process than the one
// executing the run.
func WriteStopSignal(projectRoot, runID string) error {
	dir := SignalsDir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, stopFileName(runID))
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// stopFileName is the per-run stop file basename.
func stopFileName(runID string) string {
	return "stop-" + runID
}
