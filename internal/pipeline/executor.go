// Package pipeline drives a recon run through its stage machine: scout,
// survey, upload, distill, plan, selection checkpoint, draft, audit. The
// executor owns stage ordering, boundary persistence, cancellation, and
// progress events; the stage packages own their semantics.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/glassbox/internal/audit"
	"github.com/ShayCichocki/glassbox/internal/config"
	"github.com/ShayCichocki/glassbox/internal/distill"
	"github.com/ShayCichocki/glassbox/internal/draft"
	"github.com/ShayCichocki/glassbox/internal/git"
	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/knowledge"
	"github.com/ShayCichocki/glassbox/internal/plan"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/scout"
	"github.com/ShayCichocki/glassbox/internal/state"
	"github.com/ShayCichocki/glassbox/internal/survey"
	"github.com/ShayCichocki/glassbox/internal/upload"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

const (
	// workspaceDir is where remote targets are cloned, under the run's
	// output directory.
	workspaceDir = "workspace"
	// uploadsDir is where staged file copies live, under the run's
	// output directory.
	uploadsDir = "uploads"
	// stopPollInterval is how often the stop signal is checked while a
	// stage is in flight.
	stopPollInterval = 500 * time.Millisecond

	defaultEventBuffer = 64
)

// Invoker is the supervised LLM boundary shared by every stage.
type Invoker interface {
	Invoke(ctx context.Context, req invoke.Request) (any, error)
}

// UsageFunc reports cumulative token usage and cost since the process
// started, for run accounting.
type UsageFunc func() (tokensIn, tokensOut int64, cost float64)

// Deps are the collaborators one executor drives.
type Deps struct {
	Store      state.Store
	Invoker    Invoker
	Prompts    *prompt.Registry
	Checkpoint Checkpoint
	Config     *config.Config

	// Renderer is the diagram render boundary. Nil disables rendering;
	// drafted diagrams stop at syntax-valid.
	Renderer draft.Renderer

	// ProjectRoot anchors the stop-signal directory. Empty disables the
	// stop-file check.
	ProjectRoot string

	// Usage is optional. Nil leaves token accounting at zero.
	Usage UsageFunc

	// StopAfter ends the run early once the named stage has been
	// committed, leaving the run resumable. StageNone disables it.
	StopAfter models.Stage

	// EventBuffer sizes the progress event channel. Zero uses a default.
	EventBuffer int
}

// Executor runs the stage machine for one run at a time.
type Executor struct {
	deps     Deps
	emitter  *eventEmitter
	signals  *SignalManager
	debugLog func(format string, args ...interface{})

	// Usage captured from the run row at execute start, so a resumed
	// run adds this process's consumption instead of overwriting the
	// previous attempt's.
	baseTokensIn  int64
	baseTokensOut int64
	baseCost      float64
}

// New creates an executor. Store, Invoker, Prompts, Checkpoint, and
// Config are required.
func New(deps Deps) (*Executor, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("pipeline: no state store")
	}
	if deps.Invoker == nil {
		return nil, fmt.Errorf("pipeline: no invoker")
	}
	if deps.Prompts == nil {
		return nil, fmt.Errorf("pipeline: no prompt registry")
	}
	if deps.Checkpoint == nil {
		return nil, fmt.Errorf("pipeline: no selection checkpoint")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("pipeline: no config")
	}
	buffer := deps.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Executor{
		deps:     deps,
		emitter:  newEventEmitter(buffer),
		debugLog: func(format string, args ...interface{}) {},
	}, nil
}

// SetDebugLog sets the debug logging function, propagated to every
// stage the executor constructs.
func (e *Executor) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		e.debugLog = fn
	}
}

// Events returns the progress event channel. Consume it from a separate
// goroutine; the emitter drops events rather than block the pipeline.
func (e *Executor) Events() <-chan Event {
	return e.emitter.events
}

// Close releases the event channel. Call after Run or Resume returns.
func (e *Executor) Close() {
	e.emitter.close()
}

// Run starts a fresh run against target and drives it to completion,
// suspension, or failure. The returned run reflects the final persisted
// state even when the error is non-nil.
func (e *Executor) Run(ctx context.Context, target string) (*state.Run, error) {
	runID := newRunID()
	outputDir := filepath.Join(e.deps.Config.Output.Dir, runID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	run := &state.Run{
		ID:        runID,
		Target:    target,
		OutputDir: outputDir,
		Stage:     models.StageNone,
		Status:    models.RunRunning,
	}
	if err := e.deps.Store.CreateRun(run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	e.debugLog("[pipeline] run %s started for %s", runID, target)

	rc := &Context{RunID: runID, Target: target, OutputDir: outputDir}
	return run, e.execute(ctx, run, rc)
}

// Resume picks up a previous run at the stage after its last committed
// boundary. Completed runs are returned unchanged.
func (e *Executor) Resume(ctx context.Context, runID string) (*state.Run, error) {
	run, err := e.deps.Store.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if run.Status == models.RunComplete {
		return run, nil
	}

	rc, err := restore(e.deps.Store, run)
	if err != nil {
		return nil, fmt.Errorf("restore run %s: %w", runID, err)
	}

	run.Status = models.RunRunning
	run.ErrorKind = ""
	run.ErrorMsg = ""
	if err := e.deps.Store.UpdateRun(run); err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}
	e.debugLog("[pipeline] run %s resumed at stage %s", runID, run.Stage)

	return run, e.execute(ctx, run, rc)
}

// execute advances the run one stage at a time. Each completed stage is
// committed as a checkpoint before the next begins, so a crash or stop
// at any point loses at most the stage in flight.
func (e *Executor) execute(ctx context.Context, run *state.Run, rc *Context) error {
	e.baseTokensIn = run.TokensIn
	e.baseTokensOut = run.TokensOut
	e.baseCost = run.Cost

	if e.deps.ProjectRoot != "" {
		sig, err := NewSignalManager(e.deps.ProjectRoot, run.ID)
		if err != nil {
			e.debugLog("[pipeline] stop-signal watcher unavailable: %v", err)
		} else {
			// A stop file is aimed at a live attempt. One left over from
			// the attempt it already ended is cleared, not honored.
			sig.Clear()
			e.signals = sig
			defer func() {
				sig.Close()
				e.signals = nil
			}()
		}
	}

	// Derived context so the stop signal cancels in-flight stage work
	// between batches, not just between stages.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if e.signals != nil {
		go e.watchStop(ctx, cancel)
	}

	for run.Stage < models.StageComplete {
		stage := run.Stage.Next()
		if stage == models.StageComplete {
			return e.complete(run)
		}
		if err := e.interrupted(ctx); err != nil {
			return e.fail(run, stage, err)
		}

		e.emit(stage, EventStarted, stageBanner[stage])

		var (
			payload any
			msg     string
			err     error
		)
		switch stage {
		case models.StageScouted:
			payload, msg, err = e.scout(ctx, rc)
		case models.StageSurveyed:
			payload, msg, err = e.survey(ctx, run, rc)
		case models.StageUploaded:
			payload, msg, err = e.upload(ctx, run, rc)
		case models.StageDistilled:
			payload, msg, err = e.distill(ctx, run, rc)
		case models.StagePlanned:
			payload, msg, err = e.plan(ctx, rc)
		case models.StageAwaitingSelection:
			var suspended bool
			payload, msg, suspended, err = e.selection(rc)
			if err == nil && suspended {
				return e.suspend(run)
			}
		case models.StageDrafted:
			payload, msg, err = e.draft(ctx, run, rc)
		case models.StageAudited:
			payload, msg, err = e.audit(ctx, rc)
		default:
			err = fmt.Errorf("no handler for stage %s", stage)
		}
		if err != nil {
			return e.fail(run, stage, err)
		}

		if err := e.deps.Store.SaveCheckpoint(run.ID, stage, payload); err != nil {
			return e.fail(run, stage, fmt.Errorf("persist %s boundary: %w", stage, err))
		}
		run.Stage = stage
		e.syncUsage(run)
		if err := e.deps.Store.UpdateRun(run); err != nil {
			return e.fail(run, stage, fmt.Errorf("update run: %w", err))
		}
		e.emit(stage, EventCompleted, msg)
		e.debugLog("[pipeline] run %s committed stage %s", run.ID, stage)

		// Nothing selected means nothing to draft and nothing to audit.
		if stage == models.StageAwaitingSelection && len(rc.Plan.Selected()) == 0 {
			e.emit(models.StageDrafted, EventCompleted, "no diagrams selected; skipping draft and audit")
			run.Stage = models.StageAudited
		}

		if e.deps.StopAfter != models.StageNone && run.Stage >= e.deps.StopAfter {
			e.debugLog("[pipeline] run %s stopped after %s by request", run.ID, run.Stage)
			return nil
		}
	}
	return e.complete(run)
}

// watchStop polls the stop signal and cancels the run context when it
// appears. The fsnotify watcher inside SignalManager makes the poll a
// cheap flag read in the common case.
func (e *Executor) watchStop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.signals.ShouldStop() {
				e.debugLog("[pipeline] stop signal observed, canceling run")
				cancel()
				return
			}
		}
	}
}

// interrupted reports why the run should not start its next stage, if
// any reason exists.
func (e *Executor) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.signals != nil && e.signals.ShouldStop() {
		return fmt.Errorf("stop requested: %w", context.Canceled)
	}
	return nil
}

func (e *Executor) scout(ctx context.Context, rc *Context) (any, string, error) {
	root := rc.Target
	if git.IsRemote(rc.Target) {
		root = filepath.Join(rc.OutputDir, workspaceDir, git.RepoName(rc.Target))
		// A failed earlier attempt may have left a partial clone.
		if err := os.RemoveAll(root); err != nil {
			return nil, "", fmt.Errorf("clear workspace: %w", err)
		}
		if err := git.CloneShallow(ctx, rc.Target, root); err != nil {
			return nil, "", err
		}
	}

	scanner := scout.NewScanner(e.deps.Config.Scout.MaxFileBytes)
	scanner.SetDebugLog(e.debugLog)
	inv, tm, err := scanner.Scan(root, rc.Target)
	if err != nil {
		return nil, "", err
	}
	if err := scout.WriteInventory(filepath.Join(rc.OutputDir, scout.InventoryName), inv); err != nil {
		return nil, "", err
	}
	if err := scout.WriteMap(filepath.Join(rc.OutputDir, scout.MapName), tm); err != nil {
		return nil, "", err
	}

	rc.Root = root
	rc.Inventory = inv
	msg := fmt.Sprintf("%d files inventoried", len(inv.Entries))
	return scoutedPayload{Root: root, Inventory: inv}, msg, nil
}

func (e *Executor) survey(ctx context.Context, run *state.Run, rc *Context) (any, string, error) {
	surveyor := survey.New(e.deps.Invoker, e.deps.Prompts, e.deps.Config.Scout.SurveyChunk)
	surveyor.SetDebugLog(e.debugLog)
	report, err := surveyor.Survey(ctx, rc.Inventory)
	if err != nil {
		return nil, "", err
	}
	for i, failure := range report.Failures {
		e.recordDegraded(run, models.StageSurveyed, fmt.Sprintf("chunk-%d", i+1), failure)
	}

	// Role tags are part of the persisted inventory.
	if err := scout.WriteInventory(filepath.Join(rc.OutputDir, scout.InventoryName), rc.Inventory); err != nil {
		return nil, "", err
	}

	msg := fmt.Sprintf("%d files tagged (%d heuristic, %d by model)",
		report.Heuristic+report.Tagged, report.Heuristic, report.Tagged)
	return inventoryPayload{Inventory: rc.Inventory}, msg, nil
}

func (e *Executor) upload(ctx context.Context, run *state.Run, rc *Context) (any, string, error) {
	stager := upload.NewStager(rc.Root, filepath.Join(rc.OutputDir, uploadsDir), e.deps.Config.Upload.MaxFailures)
	stager.SetDebugLog(e.debugLog)
	manifest, err := stager.Stage(ctx, rc.Inventory)
	if err != nil {
		return nil, "", err
	}
	for _, f := range manifest.Failed {
		e.recordDegraded(run, models.StageUploaded, f.Path, f.Reason)
	}
	if err := upload.WriteManifest(filepath.Join(rc.OutputDir, upload.ManifestName), manifest); err != nil {
		return nil, "", err
	}
	// Staging rewrites entry content references.
	if err := scout.WriteInventory(filepath.Join(rc.OutputDir, scout.InventoryName), rc.Inventory); err != nil {
		return nil, "", err
	}

	msg := fmt.Sprintf("%d files staged", len(manifest.Staged))
	return inventoryPayload{Inventory: rc.Inventory}, msg, nil
}

func (e *Executor) distill(ctx context.Context, run *state.Run, rc *Context) (any, string, error) {
	// The stager resolves content references against staged copies on
	// disk, so rebuilding it on resume is free.
	stager := upload.NewStager(rc.Root, filepath.Join(rc.OutputDir, uploadsDir), e.deps.Config.Upload.MaxFailures)
	stager.SetDebugLog(e.debugLog)

	distiller := distill.New(e.deps.Invoker, e.deps.Prompts, stager, distill.Options{
		SmallFileThreshold: e.deps.Config.Distill.SmallFileThreshold,
		BatchSize:          e.deps.Config.Distill.BatchSize,
		Concurrency:        e.deps.Config.Distill.Concurrency,
	})
	distiller.SetDebugLog(e.debugLog)
	artifact, degraded, err := distiller.Distill(ctx, rc.Inventory)
	if err != nil {
		return nil, "", err
	}
	for _, u := range degraded {
		e.recordDegraded(run, models.StageDistilled, u.UnitID, u.Reason)
	}
	if err := knowledge.WriteDocument(filepath.Join(rc.OutputDir, knowledge.DocumentName), artifact); err != nil {
		return nil, "", err
	}

	rc.Artifact = artifact
	msg := fmt.Sprintf("%d units distilled, %d relationships", len(artifact.Units), len(artifact.Relationships))
	return artifactPayload{Artifact: artifact}, msg, nil
}

func (e *Executor) plan(ctx context.Context, rc *Context) (any, string, error) {
	planner := plan.New(e.deps.Invoker, e.deps.Prompts, plan.Options{
		OverlapThreshold: e.deps.Config.Plan.OverlapThreshold,
		MaxPerPass:       e.deps.Config.Plan.MaxPerPass,
	})
	planner.SetDebugLog(e.debugLog)
	p, report, err := planner.Plan(ctx, rc.Artifact)
	if err != nil {
		return nil, "", err
	}
	if err := plan.WritePlan(filepath.Join(rc.OutputDir, plan.PlanName), p); err != nil {
		return nil, "", err
	}

	rc.Plan = p
	msg := fmt.Sprintf("%d diagrams proposed (%d infeasible, %d duplicates rejected)",
		len(p.Pending()), report.Infeasible, report.Duplicates)
	return planPayload{Plan: p}, msg, nil
}

// selection runs the human checkpoint. A quit answer suspends the run
// without committing the boundary, so resuming presents the plan again.
func (e *Executor) selection(rc *Context) (any, string, bool, error) {
	pending := rc.Plan.Pending()
	var sel Selection
	if len(pending) > 0 {
		var err error
		sel, err = e.deps.Checkpoint.Present(pending)
		if err != nil {
			return nil, "", false, fmt.Errorf("selection checkpoint: %w", err)
		}
	}
	if sel.Quit {
		return nil, "", true, nil
	}

	count := ApplySelection(rc.Plan, sel)
	if err := plan.WritePlan(filepath.Join(rc.OutputDir, plan.PlanName), rc.Plan); err != nil {
		return nil, "", false, err
	}
	msg := fmt.Sprintf("%d of %d diagrams selected", count, len(pending))
	return planPayload{Plan: rc.Plan}, msg, false, nil
}

func (e *Executor) draft(ctx context.Context, run *state.Run, rc *Context) (any, string, error) {
	critic := draft.NewCritic(e.deps.Invoker, e.deps.Prompts, e.deps.Renderer, e.deps.Config.Draft.MaxFixes)
	critic.SetDebugLog(e.debugLog)
	drafter := draft.New(e.deps.Invoker, e.deps.Prompts, critic)
	drafter.SetDebugLog(e.debugLog)

	artifacts, report, err := drafter.Draft(ctx, rc.Plan, rc.Artifact, rc.OutputDir)
	if err != nil {
		return nil, "", err
	}
	for _, a := range artifacts {
		if a.State == models.ArtifactRenderFailed {
			e.recordDegraded(run, models.StageDrafted, a.PlanID, a.RenderReason)
		}
	}
	for _, failure := range report.Failures {
		unit, reason, _ := strings.Cut(failure, ": ")
		e.recordDegraded(run, models.StageDrafted, unit, reason)
	}

	rc.Drafted = artifacts
	msg := fmt.Sprintf("%d diagrams drafted (%d rendered, %d render-failed)",
		report.Drafted, report.Rendered, report.RenderFailed)
	return draftedPayload{Artifacts: artifacts}, msg, nil
}

func (e *Executor) audit(ctx context.Context, rc *Context) (any, string, error) {
	auditor := audit.New(e.deps.Invoker, e.deps.Prompts, audit.Options{
		OverlapThreshold: e.deps.Config.Audit.OverlapThreshold,
		TitleThreshold:   e.deps.Config.Audit.TitleThreshold,
	})
	auditor.SetDebugLog(e.debugLog)
	records, err := auditor.Audit(ctx, rc.Drafted, rc.OutputDir)
	if err != nil {
		return nil, "", err
	}
	if _, err := audit.WriteReport(rc.OutputDir, records); err != nil {
		return nil, "", err
	}

	rc.Records = records
	deprecated := 0
	for _, r := range records {
		if r.Deprecated != "" {
			deprecated++
		}
	}
	msg := fmt.Sprintf("%d pairs audited, %d diagrams deprecated", len(records), deprecated)
	return auditedPayload{Artifacts: rc.Drafted, Records: records}, msg, nil
}

// complete marks the run finished and removes staged uploads unless the
// config keeps them.
func (e *Executor) complete(run *state.Run) error {
	now := time.Now()
	run.Stage = models.StageComplete
	run.Status = models.RunComplete
	run.CompletedAt = &now
	e.syncUsage(run)
	if err := e.deps.Store.UpdateRun(run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	if !e.deps.Config.Upload.KeepStaged {
		if err := os.RemoveAll(filepath.Join(run.OutputDir, uploadsDir)); err != nil {
			e.debugLog("[pipeline] cleanup staged uploads: %v", err)
		}
	}

	e.emit(models.StageComplete, EventCompleted, "run complete")
	e.debugLog("[pipeline] run %s complete", run.ID)
	return nil
}

// suspend parks the run at the selection checkpoint so a later resume
// can present the plan again.
func (e *Executor) suspend(run *state.Run) error {
	run.Status = models.RunAwaiting
	e.syncUsage(run)
	if err := e.deps.Store.UpdateRun(run); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	e.emit(models.StageAwaitingSelection, EventCompleted, "run suspended; resume to select diagrams")
	e.debugLog("[pipeline] run %s suspended at selection", run.ID)
	return nil
}

// fail records the classified failure on the run and wraps the cause in
// a RunError for the caller's exit code.
func (e *Executor) fail(run *state.Run, stage models.Stage, err error) error {
	kind := classify(err)
	run.Status = models.RunFailed
	run.ErrorKind = kind
	run.ErrorMsg = err.Error()
	e.syncUsage(run)
	if updateErr := e.deps.Store.UpdateRun(run); updateErr != nil {
		e.debugLog("[pipeline] persist failure for run %s: %v", run.ID, updateErr)
	}
	e.emit(stage, EventFailed, err.Error())
	return &RunError{Stage: stage, Kind: kind, Err: err}
}

func (e *Executor) recordDegraded(run *state.Run, stage models.Stage, unit, reason string) {
	if err := e.deps.Store.RecordDegraded(run.ID, stage, unit, reason); err != nil {
		e.debugLog("[pipeline] record degraded unit %s: %v", unit, err)
	}
	e.emit(stage, EventDegraded, fmt.Sprintf("%s: %s", unit, reason))
}

func (e *Executor) syncUsage(run *state.Run) {
	if e.deps.Usage == nil {
		return
	}
	in, out, cost := e.deps.Usage()
	run.TokensIn = e.baseTokensIn + in
	run.TokensOut = e.baseTokensOut + out
	run.Cost = e.baseCost + cost
}

func (e *Executor) emit(stage models.Stage, status EventStatus, message string) {
	e.emitter.emit(Event{Stage: stage, Status: status, Message: message, Time: time.Now()})
}

// stageBanner is the message attached to each stage's started event.
var stageBanner = map[models.Stage]string{
	models.StageScouted:           "scanning target",
	models.StageSurveyed:          "tagging file roles",
	models.StageUploaded:          "staging selected files",
	models.StageDistilled:         "distilling knowledge units",
	models.StagePlanned:           "proposing diagrams",
	models.StageAwaitingSelection: "awaiting diagram selection",
	models.StageDrafted:           "drafting diagrams",
	models.StageAudited:           "auditing drafted diagrams",
}

// newRunID builds a sortable, collision-safe run identifier.
func newRunID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.New().String()[:8]
}
