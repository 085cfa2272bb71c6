package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/glassbox/internal/state"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

var (
	cleanupForce      bool
	cleanupDryRun     bool
	cleanupDeprecated bool
	cleanupRuns       bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [run-id]",
	Short: "Remove staged uploads and old run data",
	Long: `Clean up disk space used by finished runs.

Removes the staged file copies (uploads/) left behind by runs that
finished with upload.keep_staged set, or that were interrupted before
their own cleanup ran. Runs that are still moving are never touched.

With a run ID, only that run's directories are considered.

Flags:
  --deprecated   also remove superseded diagram sources (_deprecated/)
  --runs         purge complete/failed runs older than 30 days from the
                 state database (their checkpoints go with them)

Examples:
  glassbox cleanup                 # interactive cleanup of all runs
  glassbox cleanup 20260114-091500-a1b2c3d4
  glassbox cleanup --dry-run       # show what would be removed
  glassbox cleanup --runs --force  # also purge old run rows, no prompt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
	cleanupCmd.Flags().BoolVar(&cleanupDeprecated, "deprecated", false, "Also remove superseded diagram sources (_deprecated/)")
	cleanupCmd.Flags().BoolVar(&cleanupRuns, "runs", false, "Purge finished runs older than 30 days from the state database")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs in this project; nothing to clean.")
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

	var runs []state.Run
	if len(args) > 0 {
		run, err := db.GetRun(args[0])
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}
		if run == nil {
			return fmt.Errorf("run not found: %s", args[0])
		}
		runs = []state.Run{*run}
	} else {
		runs, err = db.ListRuns(nil)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
	}

	var targets []string
	for _, r := range runs {
		// Never pull staged content out from under a live run.
		if r.Status == models.RunRunning {
			continue
		}
		candidates := []string{filepath.Join(r.OutputDir, "uploads")}
		if cleanupDeprecated {
			candidates = append(candidates, filepath.Join(r.OutputDir, "_deprecated"))
		}
		for _, dir := range candidates {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				targets = append(targets, dir)
			}
		}
	}

	if len(targets) == 0 && !cleanupRuns {
		fmt.Println("Nothing to clean.")
		return nil
	}

	if len(targets) > 0 {
		fmt.Printf("Found %d cleanup target(s):\n", len(targets))
		for _, dir := range targets {
			fmt.Printf("  - %s\n", dir)
		}
		fmt.Println()

		if cleanupDryRun {
			fmt.Println("Dry run mode - nothing was removed.")
		} else if !cleanupForce && !confirm("Remove these directories?") {
			fmt.Println("Cleanup cancelled.")
		} else {
			removed := 0
			for _, dir := range targets {
				if err := os.RemoveAll(dir); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: remove %s: %v\n", dir, err)
					continue
				}
				removed++
			}
			fmt.Printf("Removed %d director(ies).\n", removed)
		}
	}

	if cleanupRuns {
		if err := purgeOldRuns(db); err != nil {
			return err
		}
	}
	return nil
}

// purgeOldRuns drops finished run rows older than 30 days.
func purgeOldRuns(db *state.DB) error {
	const runMaxAge = 30 * 24 * time.Hour

	if cleanupDryRun {
		runs, err := db.ListRuns(nil)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		cutoff := time.Now().Add(-runMaxAge)
		count := 0
		for _, r := range runs {
			finished := r.Status == models.RunComplete || r.Status == models.RunFailed
			if finished && r.StartedAt.Before(cutoff) {
				count++
			}
		}
		fmt.Printf("Dry run: would purge %d run(s) older than 30 days.\n", count)
		return nil
	}

	purged, err := db.PurgeOldRuns(runMaxAge)
	if err != nil {
		return fmt.Errorf("purge old runs: %w", err)
	}
	if purged > 0 {
		fmt.Printf("Purged %d run(s) older than 30 days.\n", purged)
	} else {
		fmt.Println("No runs older than 30 days found.")
	}
	return nil
}

// confirm asks a yes/no question on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
