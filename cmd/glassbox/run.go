package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/glassbox/internal/api"
	"github.com/ShayCichocki/glassbox/internal/config"
	"github.com/ShayCichocki/glassbox/internal/draft"
	"github.com/ShayCichocki/glassbox/internal/history"
	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/pipeline"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/render"
	"github.com/ShayCichocki/glassbox/internal/scout"
	"github.com/ShayCichocki/glassbox/internal/state"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

var (
	runOutput      string
	runHeadless    bool
	runSelect      string
	runDryRun      bool
	runVerbose     bool
	runSkipRender  bool
	runKeepUploads bool
)

var runCmd = &cobra.Command{
	Use:   "run <repo-url-or-path>",
	Short: "Run the recon pipeline against a repository",
	Long: `Run the full recon pipeline against a local directory or a git URL.

The pipeline scans the target, tags every file with a role, stages the
selected content, distills it into codebase_knowledge.xml, proposes
diagrams, and pauses for you to pick which ones to draft. Selected
diagrams are drafted as PlantUML, rendered, and audited for duplicates.

Remote targets are shallow-cloned into the run workspace. Every stage
boundary is persisted, so an interrupted run can be resumed with
'glassbox resume <run-id>'.

The diagram selection is interactive on a terminal. Use --headless to
read the selection from stdin (EOF selects all), or --select to answer
it up front:

  glassbox run . --headless --select all
  glassbox run https://github.com/org/repo --select 1,3

Use --dry-run to stop after the survey and inspect the tagged inventory
before spending deep-model tokens.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecon,
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Base output directory (default \"glassbox-out\")")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Read the diagram selection from stdin instead of the picker UI")
	runCmd.Flags().StringVar(&runSelect, "select", "", "Answer the diagram checkpoint up front (\"1,3\", \"all\", \"none\")")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Stop after the survey and print the tagged inventory")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print debug output")
	runCmd.Flags().BoolVar(&runSkipRender, "skip-render", false, "Validate diagram syntax without calling the render service")
	runCmd.Flags().BoolVar(&runKeepUploads, "keep-uploads", false, "Keep staged file copies after the run completes")
}

// pipelineOptions carries the per-invocation flags run and resume share.
type pipelineOptions struct {
	output      string
	headless    bool
	preselect   string
	dryRun      bool
	verbose     bool
	skipRender  bool
	keepUploads bool
}

// pipelineDeps bundles the collaborators run and resume both construct.
type pipelineDeps struct {
	cfg         *config.Config
	db          *state.DB
	client      *api.Client
	exec        *pipeline.Executor
	projectRoot string
}

// Close releases the state database. The executor's event channel is
// closed separately by drive, after the run returns.
func (d *pipelineDeps) Close() {
	d.db.Close()
}

func runRecon(cmd *cobra.Command, args []string) error {
	target := args[0]
	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	opts := pipelineOptions{
		output:      runOutput,
		headless:    runHeadless,
		preselect:   runSelect,
		dryRun:      runDryRun,
		verbose:     runVerbose || os.Getenv("GLASSBOX_DEBUG") != "",
		skipRender:  runSkipRender,
		keepUploads: runKeepUploads,
	}

	deps, err := buildPipeline(projectRoot, opts)
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Starting recon: %s\n", target)
	fmt.Printf("  Output: %s\n", deps.cfg.Output.Dir)
	fmt.Printf("  Models: %s / %s\n\n", deps.cfg.Models.Fast, deps.cfg.Models.Deep)

	run, err := drive(deps, func() (*state.Run, error) {
		return deps.exec.Run(ctx, target)
	})
	if run != nil {
		recordHistory(run, projectRoot)
	}
	if err != nil {
		return err
	}

	if opts.dryRun {
		if err := printInventory(run.OutputDir); err != nil {
			return fmt.Errorf("print inventory: %w", err)
		}
	}
	printOutcome(deps, run)
	return nil
}

// buildPipeline loads configuration and wires every collaborator the
// executor needs. Flag overrides are applied on top of the layered config.
func buildPipeline(projectRoot string, opts pipelineOptions) (*pipelineDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.output != "" {
		cfg.Output.Dir = opts.output
	}
	if opts.skipRender {
		cfg.Draft.SkipRender = true
	}
	if opts.keepUploads {
		cfg.Upload.KeepStaged = true
	}

	clientCfg := api.ClientConfig{
		FastModel:     cfg.Models.Fast,
		DeepModel:     cfg.Models.Deep,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !cfg.Anthropic.UseAWSBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w\n\nSet ANTHROPIC_API_KEY, or anthropic.api_key in .glassbox.yaml", err)
		}
		clientCfg.APIKey = key
	}
	client, err := api.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}

	invoker := invoke.New(client, invoke.Options{
		MaxAttempts:       cfg.Invoker.MaxAttempts,
		TransportRetries:  cfg.Invoker.TransportRetries,
		BackoffBase:       cfg.Invoker.BackoffBase,
		Timeout:           cfg.Invoker.Timeout,
		MaxTokens:         cfg.Invoker.MaxTokens,
		RequestsPerMinute: cfg.Invoker.RequestsPerMinute,
	})

	prompts := prompt.NewRegistry()
	overridePath := filepath.Join(projectRoot, ".glassbox", "prompts.yaml")
	if _, err := os.Stat(overridePath); err == nil {
		if err := prompts.LoadOverrides(overridePath); err != nil {
			return nil, fmt.Errorf("load prompt overrides: %w", err)
		}
	}

	db, err := state.OpenProject(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	var renderer draft.Renderer
	if !cfg.Draft.SkipRender {
		renderer = render.NewClient(cfg.Render.Endpoint, cfg.Render.Format, cfg.Render.Timeout)
	}

	var stopAfter models.Stage
	if opts.dryRun {
		stopAfter = models.StageSurveyed
	}

	exec, err := pipeline.New(pipeline.Deps{
		Store:       db,
		Invoker:     invoker,
		Prompts:     prompts,
		Checkpoint:  buildCheckpoint(opts),
		Config:      cfg,
		Renderer:    renderer,
		ProjectRoot: projectRoot,
		Usage: func() (int64, int64, float64) {
			in, out := client.Tracker().Total()
			return in, out, client.Tracker().Cost()
		},
		StopAfter: stopAfter,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if opts.verbose {
		debugf := func(format string, args ...interface{}) {
			fmt.Printf("[DEBUG] "+format+"\n", args...)
		}
		invoker.SetDebugLog(debugf)
		exec.SetDebugLog(debugf)
	}

	return &pipelineDeps{
		cfg:         cfg,
		db:          db,
		client:      client,
		exec:        exec,
		projectRoot: projectRoot,
	}, nil
}

// drive runs start while a goroutine prints progress events, and returns
// once the run is over and the event channel is drained.
func drive(deps *pipelineDeps, start func() (*state.Run, error)) (*state.Run, error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(deps.exec.Events())
	}()

	run, err := start()
	deps.exec.Close()
	<-done
	return run, err
}

// printEvents renders pipeline progress until the event channel closes.
func printEvents(events <-chan pipeline.Event) {
	for ev := range events {
		switch ev.Status {
		case pipeline.EventStarted:
			fmt.Printf("%s %s: %s\n", color.CyanString("▸"), ev.Stage, ev.Message)
		case pipeline.EventCompleted:
			fmt.Printf("%s %s: %s\n", color.GreenString("✓"), ev.Stage, ev.Message)
		case pipeline.EventDegraded:
			fmt.Printf("%s %s: %s\n", color.YellowString("⚠"), ev.Stage, ev.Message)
		case pipeline.EventFailed:
			fmt.Printf("%s %s: %s\n", color.RedString("✗"), ev.Stage, ev.Message)
		}
	}
}

// printOutcome summarizes a run that ended without a terminal error.
func printOutcome(deps *pipelineDeps, run *state.Run) {
	switch run.Status {
	case models.RunComplete:
		elapsed := time.Since(run.StartedAt).Round(time.Second)
		fmt.Printf("\nDone! Artifacts in %s (%s, ~%s tokens, $%.4f)\n",
			run.OutputDir, elapsed, formatTokens(run.TokensIn+run.TokensOut), run.Cost)
	case models.RunAwaiting:
		fmt.Printf("\nRun suspended at the diagram checkpoint.\nResume with: glassbox resume %s\n", run.ID)
	case models.RunRunning:
		fmt.Printf("\nStopped after %s.\nResume with: glassbox resume %s\n", run.Stage, run.ID)
	}
}

// recordHistory upserts the run's row in the global ledger. Ledger
// failures never affect the run outcome.
func recordHistory(run *state.Run, projectRoot string) {
	store, err := history.Open(history.DefaultDBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: history ledger unavailable: %v\n", err)
		return
	}
	defer store.Close()

	entry := &history.Entry{
		RunID:      run.ID,
		Target:     run.Target,
		Project:    filepath.Base(projectRoot),
		FinalStage: run.Stage.String(),
		Status:     string(run.Status),
		TokensIn:   run.TokensIn,
		TokensOut:  run.TokensOut,
		Cost:       run.Cost,
		StartedAt:  run.StartedAt,
	}
	if run.CompletedAt != nil {
		entry.FinishedAt = *run.CompletedAt
	}
	if err := store.Record(entry); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: record history: %v\n", err)
	}
}

// printInventory renders the tagged inventory after a dry run.
func printInventory(outputDir string) error {
	inv, err := scout.ReadInventory(filepath.Join(outputDir, scout.InventoryName))
	if err != nil {
		return err
	}

	counts := make(map[models.Role]int)
	for _, e := range inv.Entries {
		counts[e.Role]++
	}

	fmt.Printf("\nInventory: %d files\n", len(inv.Entries))
	for _, role := range models.AllRoles() {
		if counts[role] > 0 {
			fmt.Printf("  %-8s %d\n", role, counts[role])
		}
	}
	fmt.Println()
	for _, e := range inv.Entries {
		marker := " "
		if !e.Binary && e.Role.Selected() {
			marker = "*"
		}
		fmt.Printf(" %s %-8s %s\n", marker, e.Role, e.Path)
	}
	fmt.Println("\n* = selected for distillation")
	return nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	return ctx, cancel
}
