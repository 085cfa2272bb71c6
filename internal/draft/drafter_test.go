package draft

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/render"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

const goodSource = "@startuml\nA -> B: request\n@enduml"

type fakeInvoker struct {
	draftRaw   string
	draftErr   error
	fixRaws    []string
	fixErr     error
	draftCalls int
	fixCalls   int
	fixPrompts []string
}

func (f *fakeInvoker) Invoke(_ context.Context, req invoke.Request) (any, error) {
	var raw string
	switch req.Schema.Name {
	case prompt.RoleDraft:
		f.draftCalls++
		if f.draftErr != nil {
			return nil, f.draftErr
		}
		raw = f.draftRaw
	case prompt.RoleFix:
		f.fixCalls++
		f.fixPrompts = append(f.fixPrompts, req.Prompt)
		if f.fixErr != nil {
			return nil, f.fixErr
		}
		raw = f.fixRaws[0]
		if len(f.fixRaws) > 1 {
			f.fixRaws = f.fixRaws[1:]
		}
	default:
		return nil, fmt.Errorf("unexpected schema %q", req.Schema.Name)
	}

	res := req.Schema.Validate(raw)
	if !res.Valid {
		return nil, &invoke.SchemaError{Schema: req.Schema.Name, Attempts: 1, Violations: res.Violations}
	}
	return res.Value, nil
}

type fakeRenderer struct {
	errs  []error
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	return []byte("png-bytes"), nil
}

func (f *fakeRenderer) Format() string { return "png" }

func draftArtifact() *models.KnowledgeArtifact {
	a := models.NewKnowledgeArtifact("repo")
	a.Units["a.go"] = &models.KnowledgeUnit{
		ID: "a.go", Role: models.RoleEntry, Mode: models.UnitVerbatim,
		Lines: 3, Content: "package main",
	}
	a.Units["b.go"] = &models.KnowledgeUnit{
		ID: "b.go", Role: models.RoleService, Mode: models.UnitSummary,
		Lines: 200, Summary: "Request router.",
	}
	return a
}

func draftPlan() *models.DiagramPlan {
	return &models.DiagramPlan{
		Target: "repo",
		Items: []models.DiagramPlanItem{
			{ID: "D01", Name: "Request Lifecycle", Type: models.DiagramSequence,
				Focus: "how a request flows", Files: []string{"a.go", "b.go"},
				Status: models.PlanSelected},
			{ID: "D02", Name: "Skipped", Type: models.DiagramComponent,
				Focus: "unchosen", Files: []string{"a.go"},
				Status: models.PlanProposed},
		},
	}
}

func TestDraftWritesSourceAndImage(t *testing.T) {
	dir := t.TempDir()
	inv := &fakeInvoker{draftRaw: "```plantuml\n" + goodSource + "\n```"}
	renderer := &fakeRenderer{}
	critic := NewCritic(inv, prompt.NewRegistry(), renderer, 1)

	artifacts, report, err := New(inv, prompt.NewRegistry(), critic).
		Draft(context.Background(), draftPlan(), draftArtifact(), dir)
	if err != nil {
		t.Fatalf("Draft() error = %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("got %d artifacts, want 1 (only the selected item)", len(artifacts))
	}

	art := artifacts[0]
	if art.PlanID != "D01" || art.State != models.ArtifactRendered {
		t.Errorf("artifact = %s/%s, want D01/rendered", art.PlanID, art.State)
	}
	if art.Source != goodSource {
		t.Errorf("Source = %q, want the cleaned draft", art.Source)
	}

	wantBase := filepath.Join(dir, "diagrams", "D01_request_lifecycle")
	if art.SourcePath != wantBase+".puml" {
		t.Errorf("SourcePath = %q, want %q", art.SourcePath, wantBase+".puml")
	}
	if art.ImagePath != wantBase+".png" {
		t.Errorf("ImagePath = %q, want %q", art.ImagePath, wantBase+".png")
	}
	source, err := os.ReadFile(art.SourcePath)
	if err != nil {
		t.Fatalf("reading source: %v", err)
	}
	if strings.TrimSpace(string(source)) != goodSource {
		t.Errorf("written source = %q", source)
	}
	image, err := os.ReadFile(art.ImagePath)
	if err != nil {
		t.Fatalf("reading image: %v", err)
	}
	if string(image) != "png-bytes" {
		t.Errorf("written image = %q", image)
	}

	if report.Drafted != 1 || report.Rendered != 1 || report.RenderFailed != 0 {
		t.Errorf("report = %+v", report)
	}
	if inv.draftCalls != 1 || inv.fixCalls != 0 {
		t.Errorf("calls = %d draft, %d fix, want 1/0", inv.draftCalls, inv.fixCalls)
	}
}

func TestDraftKeepsRenderFailedSource(t *testing.T) {
	dir := t.TempDir()
	renderErr := &render.Error{Status: 400, Reason: "Syntax error at line 2"}
	inv := &fakeInvoker{
		draftRaw: goodSource,
		fixRaws:  []string{"@startuml\nA -> B: retry\n@enduml"},
	}
	renderer := &fakeRenderer{errs: []error{renderErr, renderErr, renderErr}}
	critic := NewCritic(inv, prompt.NewRegistry(), renderer, 2)

	artifacts, report, err := New(inv, prompt.NewRegistry(), critic).
		Draft(context.Background(), draftPlan(), draftArtifact(), dir)
	if err != nil {
		t.Fatalf("Draft() error = %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(artifacts))
	}

	art := artifacts[0]
	if art.State != models.ArtifactRenderFailed {
		t.Errorf("State = %s, want render-failed", art.State)
	}
	if !strings.Contains(art.RenderReason, "Syntax error at line 2") {
		t.Errorf("RenderReason = %q, want the service reason", art.RenderReason)
	}
	if art.ImagePath != "" {
		t.Errorf("ImagePath = %q, want empty", art.ImagePath)
	}
	if _, err := os.Stat(art.SourcePath); err != nil {
		t.Errorf("render-failed source was not written: %v", err)
	}

	if inv.fixCalls != 2 {
		t.Errorf("fix calls = %d, want the full budget of 2", inv.fixCalls)
	}
	if renderer.calls != 3 {
		t.Errorf("render calls = %d, want 3 (initial + 2 fixes)", renderer.calls)
	}
	if report.RenderFailed != 1 {
		t.Errorf("report.RenderFailed = %d, want 1", report.RenderFailed)
	}
}

func TestDraftRecordsFailedItem(t *testing.T) {
	dir := t.TempDir()
	inv := &fakeInvoker{draftErr: &invoke.TransportError{Attempts: 3, Status: 503}}
	critic := NewCritic(inv, prompt.NewRegistry(), &fakeRenderer{}, 1)

	artifacts, report, err := New(inv, prompt.NewRegistry(), critic).
		Draft(context.Background(), draftPlan(), draftArtifact(), dir)
	if err != nil {
		t.Fatalf("Draft() error = %v, want per-item degradation", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("got %d artifacts, want 0", len(artifacts))
	}
	if len(report.Failures) != 1 || !strings.HasPrefix(report.Failures[0], "D01:") {
		t.Errorf("Failures = %v, want one D01 entry", report.Failures)
	}
}

func TestDraftStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := &fakeInvoker{draftRaw: goodSource}
	critic := NewCritic(inv, prompt.NewRegistry(), &fakeRenderer{}, 1)
	_, _, err := New(inv, prompt.NewRegistry(), critic).
		Draft(ctx, draftPlan(), draftArtifact(), t.TempDir())
	if err == nil {
		t.Fatal("Draft() ignored canceled context")
	}
}

func TestCriticFixRecoversRender(t *testing.T) {
	renderErr := &render.Error{Status: 400, Reason: "bad arrow"}
	inv := &fakeInvoker{fixRaws: []string{"@startuml\nA -> B: fixed\n@enduml"}}
	renderer := &fakeRenderer{errs: []error{renderErr}}
	critic := NewCritic(inv, prompt.NewRegistry(), renderer, 2)

	art := &models.DiagramArtifact{PlanID: "D01", Source: goodSource, State: models.ArtifactUnvalidated}
	image, err := critic.Review(context.Background(), art)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if art.State != models.ArtifactRendered {
		t.Errorf("State = %s, want rendered", art.State)
	}
	if !strings.Contains(art.Source, "fixed") {
		t.Errorf("Source = %q, want the corrected draft", art.Source)
	}
	if len(image) == 0 {
		t.Error("Review() returned no image bytes")
	}
	if inv.fixCalls != 1 {
		t.Errorf("fix calls = %d, want 1", inv.fixCalls)
	}
	if !strings.Contains(inv.fixPrompts[0], "bad arrow") {
		t.Errorf("fix prompt lacks the render reason: %q", inv.fixPrompts[0])
	}
}

func TestCriticTransportFailureSkipsFixes(t *testing.T) {
	inv := &fakeInvoker{}
	renderer := &fakeRenderer{errs: []error{fmt.Errorf("connection refused")}}
	critic := NewCritic(inv, prompt.NewRegistry(), renderer, 3)

	art := &models.DiagramArtifact{PlanID: "D01", Source: goodSource, State: models.ArtifactUnvalidated}
	if _, err := critic.Review(context.Background(), art); err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if art.State != models.ArtifactRenderFailed {
		t.Errorf("State = %s, want render-failed", art.State)
	}
	if inv.fixCalls != 0 {
		t.Errorf("fix calls = %d, want 0 for a transport failure", inv.fixCalls)
	}
}

func TestCriticNilRendererStopsAtSyntaxValid(t *testing.T) {
	inv := &fakeInvoker{}
	critic := NewCritic(inv, prompt.NewRegistry(), nil, 1)

	art := &models.DiagramArtifact{PlanID: "D01", Source: goodSource, State: models.ArtifactUnvalidated}
	image, err := critic.Review(context.Background(), art)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if art.State != models.ArtifactSyntaxValid {
		t.Errorf("State = %s, want syntax-valid", art.State)
	}
	if image != nil {
		t.Errorf("image = %v, want nil", image)
	}
}

func TestCleanNormalizesResponses(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare source", goodSource, goodSource},
		{"fenced with language", "```plantuml\n" + goodSource + "\n```", goodSource},
		{"fenced bare", "```\n" + goodSource + "\n```", goodSource},
		{"surrounding prose", "Here is the diagram:\n" + goodSource + "\nHope this helps!", goodSource},
		{"missing envelope", "A -> B: request", "@startuml\nA -> B: request\n@enduml"},
		{"escaped underscores", "@startuml\nclass user\\_store\n@enduml", "@startuml\nclass user_store\n@enduml"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.raw); got != tt.want {
				t.Errorf("Clean() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSourceSchema(t *testing.T) {
	schema := SourceSchema(prompt.RoleDraft)

	res := schema.Validate("```plantuml\n" + goodSource + "\n```")
	if !res.Valid {
		t.Fatalf("valid draft rejected: %v", res.Violations)
	}
	if res.Value.(string) != goodSource {
		t.Errorf("Value = %q, want cleaned source", res.Value)
	}

	if res := schema.Validate("I cannot draw that diagram."); res.Valid {
		t.Error("prose-only response accepted")
	}
	if res := schema.Validate(""); res.Valid {
		t.Error("empty response accepted")
	}
}

func TestComplexityWarnings(t *testing.T) {
	if w := ComplexityWarnings(goodSource); len(w) != 0 {
		t.Errorf("small source warned: %v", w)
	}

	long := "@startuml\n" + strings.Repeat("A -> B\n", 120) + "@enduml"
	if w := ComplexityWarnings(long); len(w) != 1 || !strings.Contains(w[0], "lines") {
		t.Errorf("long source warnings = %v", w)
	}

	var b strings.Builder
	b.WriteString("@startuml\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "class C%d\n", i)
	}
	b.WriteString("@enduml")
	if w := ComplexityWarnings(b.String()); len(w) != 1 || !strings.Contains(w[0], "participants or classes") {
		t.Errorf("dense source warnings = %v", w)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Request Lifecycle", "request_lifecycle"},
		{"Auth & Session Flow!", "auth__session_flow"},
		{"CamelCase-Kept", "camelcase-kept"},
		{strings.Repeat("long name ", 20), strings.Repeat("long_name_", 5)},
	}
	for _, tt := range tests {
		if got := Slug(tt.name); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
