package plan

import (
	"context"
	"fmt"
	"testing"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// fakeInvoker answers each planning role from a canned raw response,
// pushed through the request's real schema.
type fakeInvoker struct {
	behavioralRaw string
	structuralRaw string
	dedupRaw      string

	behavioralErr error
	structuralErr error
	dedupErr      error

	dedupCalls   int
	dedupPrompts []string
}

func (f *fakeInvoker) Invoke(_ context.Context, req invoke.Request) (any, error) {
	var raw string
	var err error
	switch req.Schema.Name {
	case prompt.RolePlanBehavioral:
		raw, err = f.behavioralRaw, f.behavioralErr
	case prompt.RolePlanStructural:
		raw, err = f.structuralRaw, f.structuralErr
	case "plan-dedup":
		f.dedupCalls++
		f.dedupPrompts = append(f.dedupPrompts, req.Prompt)
		raw, err = f.dedupRaw, f.dedupErr
	default:
		return nil, fmt.Errorf("unexpected schema %q", req.Schema.Name)
	}
	if err != nil {
		return nil, err
	}
	res := req.Schema.Validate(raw)
	if !res.Valid {
		return nil, &invoke.SchemaError{Schema: req.Schema.Name, Attempts: 1, Violations: res.Violations}
	}
	return res.Value, nil
}

func planArtifact() *models.KnowledgeArtifact {
	a := models.NewKnowledgeArtifact("demo")
	for _, id := range []string{"a.go", "b.go", "c.go"} {
		a.Units[id] = &models.KnowledgeUnit{ID: id, Mode: models.UnitVerbatim}
	}
	return a
}

func TestPlanAssignsSequentialIDs(t *testing.T) {
	fi := &fakeInvoker{
		behavioralRaw: `[
			{"name": "Request flow", "type": "sequence", "focus": "how a request travels", "files": ["a.go", "b.go"], "complexity": "medium"},
			{"name": "Job lifecycle", "type": "state", "focus": "job states", "files": ["b.go", "c.go"], "complexity": "low"}
		]`,
		structuralRaw: `[
			{"name": "Component map", "type": "component", "focus": "module boundaries", "files": ["a.go", "c.go"], "complexity": "medium"}
		]`,
	}
	p := New(fi, prompt.NewRegistry(), Options{})

	plan, report, err := p.Plan(context.Background(), planArtifact())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Items) != 3 {
		t.Fatalf("plan has %d items, want 3", len(plan.Items))
	}
	for i, wantID := range []string{"D01", "D02", "D03"} {
		if plan.Items[i].ID != wantID {
			t.Errorf("item %d ID = %q, want %q", i, plan.Items[i].ID, wantID)
		}
	}
	if !plan.Items[0].Type.Behavioral() || plan.Items[2].Type.Behavioral() {
		t.Error("behavioral pass items must precede structural pass items")
	}
	if report.Proposed != 3 {
		t.Errorf("report.Proposed = %d, want 3", report.Proposed)
	}
	if got := len(plan.Pending()); got != 3 {
		t.Errorf("pending = %d, want 3", got)
	}
	if fi.dedupCalls != 0 {
		t.Errorf("dedup ran %d times with no overlap above threshold, want 0", fi.dedupCalls)
	}
}

func TestPlanRejectsInfeasibleDeterministically(t *testing.T) {
	fi := &fakeInvoker{
		behavioralRaw: `[
			{"name": "Ghost flow", "type": "sequence", "focus": "x", "files": ["ghost.go"], "complexity": "low"}
		]`,
		structuralRaw: `[
			{"name": "Component map", "type": "component", "focus": "y", "files": ["a.go"], "complexity": "low"}
		]`,
	}
	p := New(fi, prompt.NewRegistry(), Options{})

	plan, report, err := p.Plan(context.Background(), planArtifact())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if got := plan.Item("D01").Status; got != models.PlanRejectedInfeasible {
		t.Errorf("D01 status = %q, want rejected-infeasible", got)
	}
	if report.Infeasible != 1 {
		t.Errorf("report.Infeasible = %d, want 1", report.Infeasible)
	}
	if fi.dedupCalls != 0 {
		t.Errorf("dedup ran %d times over a single survivor, want 0", fi.dedupCalls)
	}
}

func TestPlanDedupRejectsOverlap(t *testing.T) {
	fi := &fakeInvoker{
		behavioralRaw: `[
			{"name": "Flow A", "type": "sequence", "focus": "x", "files": ["a.go", "b.go"], "complexity": "low"}
		]`,
		structuralRaw: `[
			{"name": "Map of A and B", "type": "component", "focus": "same modules", "files": ["a.go", "b.go"], "complexity": "low"}
		]`,
		dedupRaw: `[
			{"id": "D01", "action": "keep", "reason": "better coverage"},
			{"id": "D02", "action": "reject", "reason": "same scope as D01"}
		]`,
	}
	p := New(fi, prompt.NewRegistry(), Options{OverlapThreshold: 0.5})

	plan, report, err := p.Plan(context.Background(), planArtifact())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if fi.dedupCalls != 1 {
		t.Fatalf("dedup calls = %d, want 1", fi.dedupCalls)
	}
	if got := plan.Item("D02").Status; got != models.PlanRejectedDuplicate {
		t.Errorf("D02 status = %q, want rejected-duplicate", got)
	}
	pending := plan.Pending()
	if len(pending) != 1 || pending[0].ID != "D01" {
		t.Errorf("pending = %v, want [D01]", pending)
	}
	if report.Duplicates != 1 {
		t.Errorf("report.Duplicates = %d, want 1", report.Duplicates)
	}
}

func TestPlanDedupFailureKeepsGroup(t *testing.T) {
	fi := &fakeInvoker{
		behavioralRaw: `[
			{"name": "Flow A", "type": "sequence", "focus": "x", "files": ["a.go", "b.go"], "complexity": "low"}
		]`,
		structuralRaw: `[
			{"name": "Map", "type": "component", "focus": "y", "files": ["a.go", "b.go"], "complexity": "low"}
		]`,
		dedupErr: &invoke.TransportError{Attempts: 3, Status: 429},
	}
	p := New(fi, prompt.NewRegistry(), Options{OverlapThreshold: 0.5})

	plan, report, err := p.Plan(context.Background(), planArtifact())
	if err != nil {
		t.Fatalf("Plan() error = %v, want degraded success", err)
	}
	if got := len(plan.Pending()); got != 2 {
		t.Errorf("pending = %d, want 2 (group kept whole)", got)
	}
	if report.DegradedGroups != 1 {
		t.Errorf("report.DegradedGroups = %d, want 1", report.DegradedGroups)
	}
}

func TestPlanPassFailureAborts(t *testing.T) {
	fi := &fakeInvoker{
		behavioralErr: &invoke.SchemaError{Schema: prompt.RolePlanBehavioral, Attempts: 3},
	}
	p := New(fi, prompt.NewRegistry(), Options{})

	if _, _, err := p.Plan(context.Background(), planArtifact()); err == nil {
		t.Fatal("Plan() succeeded despite pass failure")
	}
}

func TestProposalSchema(t *testing.T) {
	schema := ProposalSchema("plan-behavioral", behavioralTypes, 2)

	tests := []struct {
		name  string
		raw   string
		valid bool
	}{
		{
			"well formed",
			`[{"name": "n", "type": "sequence", "focus": "f", "files": ["a.go"], "complexity": "low"}]`,
			true,
		},
		{
			"empty array",
			`[]`,
			true,
		},
		{
			"wrong pass type",
			`[{"name": "n", "type": "component", "focus": "f", "files": ["a.go"], "complexity": "low"}]`,
			false,
		},
		{
			"no files",
			`[{"name": "n", "type": "state", "focus": "f", "files": [], "complexity": "low"}]`,
			false,
		},
		{
			"over budget",
			`[{"name": "1", "type": "state", "focus": "f", "files": ["a.go"], "complexity": "low"},
			  {"name": "2", "type": "state", "focus": "f", "files": ["a.go"], "complexity": "low"},
			  {"name": "3", "type": "state", "focus": "f", "files": ["a.go"], "complexity": "low"}]`,
			false,
		},
		{
			"bad complexity",
			`[{"name": "n", "type": "state", "focus": "f", "files": ["a.go"], "complexity": "extreme"}]`,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := schema.Validate(tt.raw)
			if res.Valid != tt.valid {
				t.Errorf("Validate() = %v, want %v (violations: %v)", res.Valid, tt.valid, res.Violations)
			}
		})
	}
}

func TestDedupSchema(t *testing.T) {
	schema := DedupSchema([]string{"D01", "D02"})

	tests := []struct {
		name  string
		raw   string
		valid bool
	}{
		{"keep one", `[{"id": "D01", "action": "keep"}, {"id": "D02", "action": "reject", "reason": "dup"}]`, true},
		{"missing id", `[{"id": "D01", "action": "keep"}]`, false},
		{"unknown id", `[{"id": "D01", "action": "keep"}, {"id": "D09", "action": "reject"}]`, false},
		{"all rejected", `[{"id": "D01", "action": "reject"}, {"id": "D02", "action": "reject"}]`, false},
		{"bad action", `[{"id": "D01", "action": "maybe"}, {"id": "D02", "action": "keep"}]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := schema.Validate(tt.raw)
			if res.Valid != tt.valid {
				t.Errorf("Validate() = %v, want %v (violations: %v)", res.Valid, tt.valid, res.Violations)
			}
		})
	}
}

func TestScopeOverlap(t *testing.T) {
	tests := []struct {
		a, b []string
		want float64
	}{
		{[]string{"a", "b"}, []string{"a", "b"}, 1.0},
		{[]string{"a", "b"}, []string{"b", "c"}, 1.0 / 3.0},
		{[]string{"a"}, []string{"b"}, 0},
		{nil, []string{"a"}, 0},
	}
	for _, tt := range tests {
		if got := scopeOverlap(tt.a, tt.b); got != tt.want {
			t.Errorf("scopeOverlap(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestOverlapGroupsPartition(t *testing.T) {
	items := []models.DiagramPlanItem{
		{ID: "D01", Files: []string{"a.go", "b.go"}},
		{ID: "D02", Files: []string{"a.go", "b.go", "c.go"}},
		{ID: "D03", Files: []string{"z.go"}},
	}
	groups := overlapGroups(items, 0.5)

	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	sizes := map[int]int{}
	for _, g := range groups {
		sizes[len(g)]++
	}
	if sizes[2] != 1 || sizes[1] != 1 {
		t.Errorf("group sizes = %v, want one pair and one singleton", sizes)
	}
}
