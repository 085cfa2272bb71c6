package main

import (
	"os"

	"github.com/mattn/go-isatty"

	"github.com/ShayCichocki/glassbox/internal/pipeline"
	"github.com/ShayCichocki/glassbox/internal/tui"
)

// buildCheckpoint picks the diagram-selection surface for this
// invocation. An explicit --select answers without prompting, headless
// mode (or a non-terminal stdin/stdout) reads stdin, and a real
// terminal gets the picker UI.
func buildCheckpoint(opts pipelineOptions) pipeline.Checkpoint {
	if opts.preselect != "" {
		return &pipeline.HeadlessCheckpoint{Out: os.Stdout, Preselect: opts.preselect}
	}
	if opts.headless || !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return &pipeline.HeadlessCheckpoint{In: os.Stdin, Out: os.Stdout}
	}
	return &tui.SelectCheckpoint{}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
