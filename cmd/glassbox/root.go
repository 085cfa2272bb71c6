package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/glassbox/internal/pipeline"
)

var rootCmd = &cobra.Command{
	Use:   "glassbox",
	Short: "Whitebox codebase recon and diagram generation",
	Long: `Glassbox drives an LLM through a staged recon of a codebase:
scan the tree, tag every file with an architectural role, stage the
selected content, distill it into a knowledge document, plan diagrams,
pause for a human selection, then draft, render, and audit PlantUML
diagrams.

Every stage boundary is checkpointed to .glassbox/state.db, so an
interrupted or suspended run resumes exactly where it left off:

  glassbox run https://github.com/org/repo
  glassbox resume <run-id>

Artifacts land under <output>/<run-id>/:
  file_inventory.json   every file with size, language, and role
  project_map.txt       human-readable tree
  codebase_knowledge.xml  the distilled knowledge document
  diagram_plan.json     proposed and selected diagrams
  diagrams/*.puml       drafted sources (+ rendered images)
  audit_report.md       duplicate-audit verdicts`,
	SilenceUsage: true,
}

// Execute runs the root command. Pipeline failures carry a classified
// exit code: 2 schema, 3 transport, 4 integrity, 5 resource, 1 other.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var runErr *pipeline.RunError
		if errors.As(err, &runErr) {
			os.Exit(runErr.Kind.ExitCode())
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
