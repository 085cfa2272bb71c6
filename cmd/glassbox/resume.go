package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/glassbox/internal/state"
)

var (
	resumeHeadless    bool
	resumeSelect      string
	resumeVerbose     bool
	resumeSkipRender  bool
	resumeKeepUploads bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume an interrupted or suspended run",
	Long: `Resume a run from its last persisted stage boundary.

Completed stages are never redone: the executor restores each stage's
checkpoint payload from .glassbox/state.db and continues from the first
stage that has not committed. A run suspended at the diagram checkpoint
re-presents the proposed diagrams.

Run IDs are printed when a run starts and listed by 'glassbox status'.`,
	Args: cobra.ExactArgs(1),
	RunE: resumeRecon,
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeHeadless, "headless", false, "Read the diagram selection from stdin instead of the picker UI")
	resumeCmd.Flags().StringVar(&resumeSelect, "select", "", "Answer the diagram checkpoint up front (\"1,3\", \"all\", \"none\")")
	resumeCmd.Flags().BoolVarP(&resumeVerbose, "verbose", "v", false, "Print debug output")
	resumeCmd.Flags().BoolVar(&resumeSkipRender, "skip-render", false, "Validate diagram syntax without calling the render service")
	resumeCmd.Flags().BoolVar(&resumeKeepUploads, "keep-uploads", false, "Keep staged file copies after the run completes")
}

func resumeRecon(cmd *cobra.Command, args []string) error {
	runID := args[0]
	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	opts := pipelineOptions{
		headless:    resumeHeadless,
		preselect:   resumeSelect,
		verbose:     resumeVerbose || os.Getenv("GLASSBOX_DEBUG") != "",
		skipRender:  resumeSkipRender,
		keepUploads: resumeKeepUploads,
	}

	deps, err := buildPipeline(projectRoot, opts)
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Resuming run %s\n\n", runID)

	run, err := drive(deps, func() (*state.Run, error) {
		return deps.exec.Resume(ctx, runID)
	})
	if run != nil {
		recordHistory(run, projectRoot)
	}
	if err != nil {
		return err
	}

	printOutcome(deps, run)
	return nil
}
