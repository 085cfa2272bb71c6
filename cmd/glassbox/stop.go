package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/glassbox/internal/pipeline"
	"github.com/ShayCichocki/glassbox/internal/state"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

var stopCmd = &cobra.Command{
	Use:   "stop <run-id>",
	Short: "Stop a running pipeline",
	Long: `Signal a running pipeline to stop at the next safe point.

The stop is cooperative: a signal file is written under
.glassbox/signals/ and the running process notices it between stages
and between in-flight LLM batches. Completed stage boundaries stay
persisted, so the run can be resumed later with
'glassbox resume <run-id>'.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	runID := args[0]
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no runs in this project")
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	run, err := db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}
	if run.Status != models.RunRunning {
		fmt.Printf("Run %s is not running (status %s); nothing to stop.\n", runID, run.Status)
		return nil
	}

	if err := pipeline.WriteStopSignal(cwd, runID); err != nil {
		return fmt.Errorf("write stop signal: %w", err)
	}

	fmt.Printf("Stop requested. Run %s will halt at the next stage boundary.\n", runID)
	fmt.Printf("Resume later with: glassbox resume %s\n", runID)
	return nil
}
