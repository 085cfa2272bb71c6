package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/glassbox/internal/history"
	"github.com/ShayCichocki/glassbox/internal/state"
)

var (
	statusWatch bool
	statusAll   bool
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show run progress and history",
	Long: `Display the state of recon runs in this project.

Without arguments, lists every run in .glassbox/state.db newest first.
With a run ID, shows that run's stage, persisted boundaries, degraded
units, and token usage.

Use --watch to re-render whenever the state database changes, and
--all to list finished runs across all projects from the global
history ledger.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Re-render when the state database changes")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "List runs across all projects from the history ledger")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusAll {
		return displayHistory()
	}

	runID := ""
	if len(args) > 0 {
		runID = args[0]
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	if statusWatch {
		return watchStatus(cwd, runID)
	}
	return renderStatus(cwd, runID)
}

// renderStatus prints the status view once.
func renderStatus(projectRoot, runID string) error {
	dbPath := state.ProjectDBPath(projectRoot)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs in this project. Start one with 'glassbox run <target>'.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if runID != "" {
		return displayRun(db, runID)
	}
	return displayRuns(db)
}

// watchStatus re-renders the status view on every state-database change
// until interrupted. SQLite in WAL mode writes through state.db-wal, so
// the whole .glassbox directory is watched and filtered by name.
func watchStatus(projectRoot, runID string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	stateDir := filepath.Dir(state.ProjectDBPath(projectRoot))
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := watcher.Add(stateDir); err != nil {
		return fmt.Errorf("watch state directory: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	clearScreen()
	if err := renderStatus(projectRoot, runID); err != nil {
		return err
	}

	var lastRender time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), "state.db") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Transactions land as bursts of write events.
			if time.Since(lastRender) < 250*time.Millisecond {
				continue
			}
			lastRender = time.Now()

			clearScreen()
			if err := renderStatus(projectRoot, runID); err != nil {
				return err
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func clearScreen() {
	fmt.Print("\033[H\033[2J")
}

// displayRuns lists every run in the project, newest first.
func displayRuns(db *state.DB) error {
	runs, err := db.ListRuns(nil)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs in this project. Start one with 'glassbox run <target>'.")
		return nil
	}

	fmt.Printf("%-26s %-20s %-10s %-8s %s\n", "RUN", "STAGE", "STATUS", "AGE", "TARGET")
	for _, r := range runs {
		fmt.Printf("%-26s %-20s %-10s %-8s %s\n",
			r.ID, r.Stage, r.Status, formatAge(time.Since(r.UpdatedAt)), r.Target)
	}
	fmt.Println("\nRun 'glassbox status <run-id>' for details.")
	return nil
}

// displayRun shows one run in detail.
func displayRun(db *state.DB, runID string) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  Target:  %s\n", run.Target)
	fmt.Printf("  Output:  %s\n", run.OutputDir)
	fmt.Printf("  Stage:   %s\n", run.Stage)
	fmt.Printf("  Status:  %s\n", run.Status)
	if run.ErrorKind != "" {
		fmt.Printf("  Error:   [%s] %s\n", run.ErrorKind, run.ErrorMsg)
	}
	fmt.Printf("  Tokens:  %s in, %s out ($%.4f)\n",
		formatTokens(run.TokensIn), formatTokens(run.TokensOut), run.Cost)
	fmt.Printf("  Started: %s ago\n", formatAge(time.Since(run.StartedAt)))
	if run.CompletedAt != nil {
		fmt.Printf("  Took:    %s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Second))
	}

	stages, err := db.CheckpointStages(run.ID)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	if len(stages) > 0 {
		names := make([]string, len(stages))
		for i, s := range stages {
			names[i] = s.String()
		}
		fmt.Printf("  Boundaries: %s\n", strings.Join(names, " → "))
	}

	degraded, err := db.ListDegraded(run.ID)
	if err != nil {
		return fmt.Errorf("list degraded units: %w", err)
	}
	if len(degraded) > 0 {
		fmt.Printf("\nDegraded units (%d):\n", len(degraded))
		for _, d := range degraded {
			fmt.Printf("  [%s] %s: %s\n", d.Stage, d.Unit, d.Reason)
		}
	}
	return nil
}

// displayHistory lists finished runs across projects from the ledger.
func displayHistory() error {
	store, err := history.Open(history.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("open history ledger: %w", err)
	}
	defer store.Close()

	entries, err := store.List(20)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Printf("%-26s %-14s %-20s %-10s %-12s %s\n", "RUN", "PROJECT", "STAGE", "STATUS", "TOKENS", "COST")
	for _, e := range entries {
		fmt.Printf("%-26s %-14s %-20s %-10s %-12s $%.4f\n",
			e.RunID, e.Project, e.FinalStage, e.Status,
			formatTokens(e.TokensIn+e.TokensOut), e.Cost)
	}
	return nil
}

// formatAge formats a duration as a compact age string.
func formatAge(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}

// formatTokens formats a token count with comma grouping.
func formatTokens(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	offset := len(s) % 3
	if offset > 0 {
		result.WriteString(s[:offset])
		result.WriteString(",")
	}
	for i := offset; i < len(s); i += 3 {
		result.WriteString(s[i : i+3])
		if i+3 < len(s) {
			result.WriteString(",")
		}
	}
	return result.String()
}
