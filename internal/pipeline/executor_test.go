package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ShayCichocki/glassbox/internal/config"
	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/plan"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/state"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// stageInvoker answers each request from a canned response keyed by
// schema name, validated through the request's own schema. Stages run
// Map batches concurrently, so call recording is locked.
type stageInvoker struct {
	mu        sync.Mutex
	responses map[string]string
	failWith  map[string]error
	calls     []string
}

func (f *stageInvoker) Invoke(_ context.Context, req invoke.Request) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Schema.Name)
	f.mu.Unlock()

	if err := f.failWith[req.Schema.Name]; err != nil {
		return nil, err
	}
	raw, ok := f.responses[req.Schema.Name]
	if !ok {
		return nil, fmt.Errorf("no canned response for schema %q", req.Schema.Name)
	}
	res := req.Schema.Validate(raw)
	if !res.Valid {
		return nil, &invoke.SchemaError{Schema: req.Schema.Name, Attempts: 1, Violations: res.Violations}
	}
	return res.Value, nil
}

func (f *stageInvoker) count(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == schema {
			n++
		}
	}
	return n
}

// happyResponses scripts a clean run over the three-file test repo: one
// survey chunk, verbatim distillation with one inferred edge, and one
// disjoint proposal per planning pass.
func happyResponses() map[string]string {
	return map[string]string{
		"survey-roles":         `{"roles": {"server.go": "route", "store.go": "service"}}`,
		"reduce-relationships": `{"relationships": [{"source": "server.go", "target": "store.go", "kind": "calls"}]}`,
		"plan-behavioral":      `[{"name": "Request flow", "type": "sequence", "focus": "how a request reaches the store", "files": ["server.go"], "complexity": "low"}]`,
		"plan-structural":      `[{"name": "Store internals", "type": "component", "focus": "how the store is put together", "files": ["store.go"], "complexity": "low"}]`,
		"draft":                "@startuml\nactor User\nUser -> Store : fetch\n@enduml",
	}
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return []byte("image-bytes"), nil
}

func (f *fakeRenderer) Format() string { return "png" }

// writeTestRepo lays down a local target small enough to distill
// verbatim: one doc file the heuristics tag and two source files left
// for the survey model.
func writeTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"README.md": "# billing demo\n",
		"server.go": "package demo\n\nfunc handle() {\n\tload()\n}\n",
		"store.go":  "package demo\n\nfunc load() {}\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

func newTestExecutor(t *testing.T, inv Invoker, cp Checkpoint) (*Executor, *state.DB) {
	t.Helper()
	base := t.TempDir()
	db, err := state.Open(filepath.Join(base, "state.db"))
	if err != nil {
		t.Fatalf("opening state db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrating state db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Output.Dir = filepath.Join(base, "out")

	exec, err := New(Deps{
		Store:      db,
		Invoker:    inv,
		Prompts:    prompt.NewRegistry(),
		Checkpoint: cp,
		Config:     cfg,
		Renderer:   &fakeRenderer{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(exec.Close)
	return exec, db
}

// resumeExecutor builds a second executor over an existing store, the
// way a later process invocation would.
func resumeExecutor(t *testing.T, db *state.DB, inv Invoker, cp Checkpoint) *Executor {
	t.Helper()
	cfg := config.Default()
	exec, err := New(Deps{
		Store:      db,
		Invoker:    inv,
		Prompts:    prompt.NewRegistry(),
		Checkpoint: cp,
		Config:     cfg,
		Renderer:   &fakeRenderer{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(exec.Close)
	return exec
}

func drainEvents(exec *Executor) []Event {
	var events []Event
	for {
		select {
		case ev := <-exec.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestRun_CompletesAllStages(t *testing.T) {
	repo := writeTestRepo(t)
	inv := &stageInvoker{responses: happyResponses()}
	cp := &HeadlessCheckpoint{In: strings.NewReader("1\n"), Out: &bytes.Buffer{}}
	exec, db := newTestExecutor(t, inv, cp)

	run, err := exec.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status != models.RunComplete {
		t.Fatalf("Status = %s, want complete", run.Status)
	}
	if run.Stage != models.StageComplete {
		t.Errorf("Stage = %s, want complete", run.Stage)
	}
	if run.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	// Every boundary artifact lands in the run's output directory.
	for _, name := range []string{
		"file_inventory.json",
		"project_map.txt",
		"upload_config.json",
		"codebase_knowledge.xml",
		"diagram_plan.json",
		"audit_report.md",
	} {
		if _, err := os.Stat(filepath.Join(run.OutputDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}
	for _, pattern := range []string{"diagrams/D01_*.puml", "diagrams/D01_*.png"} {
		matches, _ := filepath.Glob(filepath.Join(run.OutputDir, pattern))
		if len(matches) != 1 {
			t.Errorf("glob %s matched %d files, want 1", pattern, len(matches))
		}
	}
	if _, err := os.Stat(filepath.Join(run.OutputDir, "uploads")); !os.IsNotExist(err) {
		t.Error("staged uploads not cleaned up after completion")
	}

	// Only the chosen item is selected; the other stays proposed.
	p, err := plan.ReadPlan(filepath.Join(run.OutputDir, plan.PlanName))
	if err != nil {
		t.Fatalf("reading plan: %v", err)
	}
	if got := len(p.Selected()); got != 1 {
		t.Errorf("selected items = %d, want 1", got)
	}
	if item := p.Item("D02"); item == nil || item.Status != models.PlanProposed {
		t.Errorf("D02 status = %v, want proposed", item)
	}

	stages, err := db.CheckpointStages(run.ID)
	if err != nil {
		t.Fatalf("CheckpointStages() error = %v", err)
	}
	if len(stages) != 8 {
		t.Errorf("checkpoint count = %d, want 8 (%v)", len(stages), stages)
	}

	// One call per supervised step; no Map batches (all files verbatim)
	// and no audit comparison (scopes and titles are disjoint).
	wantCalls := map[string]int{
		"survey-roles":         1,
		"map-summaries":        0,
		"reduce-relationships": 1,
		"plan-behavioral":      1,
		"plan-structural":      1,
		"plan-dedup":           0,
		"draft":                1,
		"audit":                0,
	}
	for schema, want := range wantCalls {
		if got := inv.count(schema); got != want {
			t.Errorf("%s calls = %d, want %d", schema, got, want)
		}
	}

	events := drainEvents(exec)
	var sawComplete bool
	for _, ev := range events {
		if ev.Stage == models.StageComplete && ev.Status == EventCompleted {
			sawComplete = true
		}
	}
	if !sawComplete {
		t.Error("no completion event emitted")
	}
}

func TestRun_NoneSelectionSkipsDraftAndAudit(t *testing.T) {
	repo := writeTestRepo(t)
	inv := &stageInvoker{responses: happyResponses()}
	cp := &HeadlessCheckpoint{Preselect: "none", Out: io.Discard}
	exec, db := newTestExecutor(t, inv, cp)

	run, err := exec.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status != models.RunComplete {
		t.Fatalf("Status = %s, want complete", run.Status)
	}

	if inv.count("draft") != 0 {
		t.Error("draft call made despite empty selection")
	}
	if _, err := os.Stat(filepath.Join(run.OutputDir, "diagrams")); !os.IsNotExist(err) {
		t.Error("diagrams directory created despite empty selection")
	}
	if _, err := os.Stat(filepath.Join(run.OutputDir, "audit_report.md")); !os.IsNotExist(err) {
		t.Error("audit report written despite empty selection")
	}

	// The plan survives with every item still proposed.
	p, err := plan.ReadPlan(filepath.Join(run.OutputDir, plan.PlanName))
	if err != nil {
		t.Fatalf("reading plan: %v", err)
	}
	for _, item := range p.Items {
		if item.Status != models.PlanProposed {
			t.Errorf("item %s status = %s, want proposed", item.ID, item.Status)
		}
	}

	stages, err := db.CheckpointStages(run.ID)
	if err != nil {
		t.Fatalf("CheckpointStages() error = %v", err)
	}
	if last := stages[len(stages)-1]; last != models.StageAwaitingSelection {
		t.Errorf("last checkpoint = %s, want awaiting_selection", last)
	}
}

func TestRun_QuitSuspendsAndResumeCompletes(t *testing.T) {
	repo := writeTestRepo(t)
	inv := &stageInvoker{responses: happyResponses()}
	cp := &HeadlessCheckpoint{In: strings.NewReader("quit\n"), Out: io.Discard}
	exec, db := newTestExecutor(t, inv, cp)

	run, err := exec.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status != models.RunAwaiting {
		t.Fatalf("Status = %s, want awaiting", run.Status)
	}
	if run.Stage != models.StagePlanned {
		t.Errorf("Stage = %s, want planned", run.Stage)
	}

	// A later invocation picks the run up and answers the checkpoint.
	inv2 := &stageInvoker{responses: happyResponses()}
	exec2 := resumeExecutor(t, db, inv2, &HeadlessCheckpoint{In: strings.NewReader("all\n"), Out: io.Discard})

	resumed, err := exec2.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != models.RunComplete {
		t.Fatalf("resumed Status = %s, want complete", resumed.Status)
	}

	// Completed stages are restored from checkpoints, not re-run.
	for _, schema := range []string{"survey-roles", "reduce-relationships", "plan-behavioral", "plan-structural"} {
		if got := inv2.count(schema); got != 0 {
			t.Errorf("%s re-invoked %d times on resume", schema, got)
		}
	}
	if got := inv2.count("draft"); got != 2 {
		t.Errorf("draft calls on resume = %d, want 2", got)
	}
}

func TestRun_TransportFailureClassified(t *testing.T) {
	repo := writeTestRepo(t)
	inv := &stageInvoker{
		responses: happyResponses(),
		failWith: map[string]error{
			"plan-behavioral": &invoke.TransportError{Attempts: 3, Status: 529, Err: errors.New("overloaded")},
		},
	}
	exec, db := newTestExecutor(t, inv, &HeadlessCheckpoint{Preselect: "all"})

	run, err := exec.Run(context.Background(), repo)
	if err == nil {
		t.Fatal("Run() error = nil, want transport failure")
	}
	var re *RunError
	if !errors.As(err, &re) {
		t.Fatalf("error type = %T, want *RunError", err)
	}
	if re.Stage != models.StagePlanned {
		t.Errorf("failed stage = %s, want planned", re.Stage)
	}
	if re.Kind != models.ErrKindTransport {
		t.Errorf("error kind = %s, want transport", re.Kind)
	}
	if run.Status != models.RunFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
	if run.ErrorKind != models.ErrKindTransport {
		t.Errorf("persisted ErrorKind = %s, want transport", run.ErrorKind)
	}

	// The distilled boundary held, so a resume redoes only planning.
	inv2 := &stageInvoker{responses: happyResponses()}
	exec2 := resumeExecutor(t, db, inv2, &HeadlessCheckpoint{Preselect: "all"})
	resumed, err := exec2.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != models.RunComplete {
		t.Fatalf("resumed Status = %s, want complete", resumed.Status)
	}
	if got := inv2.count("survey-roles") + inv2.count("reduce-relationships"); got != 0 {
		t.Errorf("pre-plan stages re-invoked %d times on resume", got)
	}
	if got := inv2.count("plan-behavioral"); got != 1 {
		t.Errorf("plan-behavioral calls on resume = %d, want 1", got)
	}
}

func TestRun_CanceledContextClassified(t *testing.T) {
	repo := writeTestRepo(t)
	inv := &stageInvoker{responses: happyResponses()}
	exec, _ := newTestExecutor(t, inv, &HeadlessCheckpoint{Preselect: "all"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := exec.Run(ctx, repo)
	var re *RunError
	if !errors.As(err, &re) {
		t.Fatalf("error type = %T, want *RunError", err)
	}
	if re.Kind != models.ErrKindCanceled {
		t.Errorf("error kind = %s, want canceled", re.Kind)
	}
	if run.Status != models.RunFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
	if len(inv.calls) != 0 {
		t.Errorf("%d LLM calls made under canceled context", len(inv.calls))
	}
}

func TestRun_DegradedSurveyChunkRecorded(t *testing.T) {
	repo := writeTestRepo(t)
	inv := &stageInvoker{
		responses: happyResponses(),
		failWith: map[string]error{
			"survey-roles": &invoke.SchemaError{Schema: "survey-roles", Attempts: 3},
		},
	}
	cp := &HeadlessCheckpoint{Preselect: "none"}
	exec, db := newTestExecutor(t, inv, cp)

	run, err := exec.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Status != models.RunComplete {
		t.Fatalf("Status = %s, want complete (survey degrades, not fails)", run.Status)
	}

	units, err := db.ListDegraded(run.ID)
	if err != nil {
		t.Fatalf("ListDegraded() error = %v", err)
	}
	var surveyed int
	for _, u := range units {
		if u.Stage == models.StageSurveyed {
			surveyed++
		}
	}
	if surveyed == 0 {
		t.Error("no degraded unit recorded for the failed survey chunk")
	}
}

func TestRun_StopAfterLeavesRunResumable(t *testing.T) {
	repo := writeTestRepo(t)
	inv := &stageInvoker{responses: happyResponses()}
	cp := &HeadlessCheckpoint{Preselect: "all"}

	base := t.TempDir()
	db, err := state.Open(filepath.Join(base, "state.db"))
	if err != nil {
		t.Fatalf("opening state db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrating state db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Output.Dir = filepath.Join(base, "out")
	exec, err := New(Deps{
		Store:      db,
		Invoker:    inv,
		Prompts:    prompt.NewRegistry(),
		Checkpoint: cp,
		Config:     cfg,
		Renderer:   &fakeRenderer{},
		StopAfter:  models.StageSurveyed,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(exec.Close)

	run, err := exec.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Stage != models.StageSurveyed {
		t.Errorf("Stage = %s, want surveyed", run.Stage)
	}
	if run.Status != models.RunRunning {
		t.Errorf("Status = %s, want running (resumable)", run.Status)
	}
	if got := inv.count("reduce-relationships"); got != 0 {
		t.Errorf("distill ran %d times despite the stop", got)
	}

	inv2 := &stageInvoker{responses: happyResponses()}
	exec2 := resumeExecutor(t, db, inv2, cp)
	resumed, err := exec2.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != models.RunComplete {
		t.Errorf("resumed Status = %s, want complete", resumed.Status)
	}
}

// stopWritingCheckpoint answers the checkpoint normally but first files a
// stop request against the running run, the way `glassbox stop` would
// from another terminal.
type stopWritingCheckpoint struct {
	t           *testing.T
	db          *state.DB
	projectRoot string
}

func (s *stopWritingCheckpoint) Present(items []models.DiagramPlanItem) (Selection, error) {
	run, err := s.db.LatestRun()
	if err != nil || run == nil {
		s.t.Fatalf("looking up running run: %v", err)
	}
	if err := WriteStopSignal(s.projectRoot, run.ID); err != nil {
		s.t.Fatalf("WriteStopSignal() error = %v", err)
	}
	return selectAll(items), nil
}

func TestRun_StopSignalCancelsBeforeNextStage(t *testing.T) {
	repo := writeTestRepo(t)
	inv := &stageInvoker{responses: happyResponses()}

	base := t.TempDir()
	projectRoot := filepath.Join(base, "project")
	db, err := state.Open(filepath.Join(base, "state.db"))
	if err != nil {
		t.Fatalf("opening state db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrating state db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Output.Dir = filepath.Join(base, "out")
	exec, err := New(Deps{
		Store:       db,
		Invoker:     inv,
		Prompts:     prompt.NewRegistry(),
		Checkpoint:  &stopWritingCheckpoint{t: t, db: db, projectRoot: projectRoot},
		Config:      cfg,
		Renderer:    &fakeRenderer{},
		ProjectRoot: projectRoot,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(exec.Close)

	run, err := exec.Run(context.Background(), repo)
	var re *RunError
	if !errors.As(err, &re) {
		t.Fatalf("Run() error type = %T, want *RunError", err)
	}
	if re.Kind != models.ErrKindCanceled {
		t.Errorf("error kind = %s, want canceled", re.Kind)
	}
	if re.Stage != models.StageDrafted {
		t.Errorf("failed stage = %s, want drafted (stop lands before the next stage)", re.Stage)
	}
	if run.Status != models.RunFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
	if got := inv.count("draft"); got != 0 {
		t.Errorf("draft ran %d times after the stop request", got)
	}

	// The selection boundary still committed, so the stopped run resumes
	// at drafting. The stale stop file must not end it again.
	inv2 := &stageInvoker{responses: happyResponses()}
	exec2, err := New(Deps{
		Store:       db,
		Invoker:     inv2,
		Prompts:     prompt.NewRegistry(),
		Checkpoint:  &HeadlessCheckpoint{Preselect: "all"},
		Config:      cfg,
		Renderer:    &fakeRenderer{},
		ProjectRoot: projectRoot,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(exec2.Close)

	resumed, err := exec2.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != models.RunComplete {
		t.Errorf("resumed Status = %s, want complete", resumed.Status)
	}
}

func TestResume_UnknownRun(t *testing.T) {
	inv := &stageInvoker{responses: happyResponses()}
	exec, _ := newTestExecutor(t, inv, &HeadlessCheckpoint{Preselect: "all"})

	if _, err := exec.Resume(context.Background(), "no-such-run"); err == nil {
		t.Fatal("Resume() error = nil, want not found")
	} else if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want run not found", err)
	}
}

func TestResume_CompletedRunIsNoOp(t *testing.T) {
	repo := writeTestRepo(t)
	inv := &stageInvoker{responses: happyResponses()}
	exec, db := newTestExecutor(t, inv, &HeadlessCheckpoint{Preselect: "1"})

	run, err := exec.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	inv2 := &stageInvoker{responses: happyResponses()}
	exec2 := resumeExecutor(t, db, inv2, &HeadlessCheckpoint{Preselect: "all"})
	resumed, err := exec2.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != models.RunComplete {
		t.Errorf("Status = %s, want complete", resumed.Status)
	}
	if len(inv2.calls) != 0 {
		t.Errorf("%d LLM calls made resuming a completed run", len(inv2.calls))
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	cfg := config.Default()
	base := Deps{
		Store:      &state.DB{},
		Invoker:    &stageInvoker{},
		Prompts:    prompt.NewRegistry(),
		Checkpoint: &HeadlessCheckpoint{},
		Config:     cfg,
	}

	tests := []struct {
		name  string
		strip func(*Deps)
	}{
		{"store", func(d *Deps) { d.Store = nil }},
		{"invoker", func(d *Deps) { d.Invoker = nil }},
		{"prompts", func(d *Deps) { d.Prompts = nil }},
		{"checkpoint", func(d *Deps) { d.Checkpoint = nil }},
		{"config", func(d *Deps) { d.Config = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := base
			tt.strip(&deps)
			if _, err := New(deps); err == nil {
				t.Errorf("New() without %s accepted", tt.name)
			}
		})
	}
}
