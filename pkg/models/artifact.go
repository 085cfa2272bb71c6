package models

// ValidationState tracks a DiagramArtifact through critique and rendering.
type ValidationState string

const (
	// ArtifactUnvalidated is the state of a fresh draft.
	ArtifactUnvalidated ValidationState = "unvalidated"
	// ArtifactSyntaxValid means local syntax checks passed.
	ArtifactSyntaxValid ValidationState = "syntax-valid"
	// ArtifactRenderFailed means the render boundary rejected the source
	// after all fix attempts; RenderReason carries the reported cause.
	ArtifactRenderFailed ValidationState = "render-failed"
	// ArtifactRendered means the diagram rendered successfully.
	ArtifactRendered ValidationState = "rendered"
)

// Valid returns true if the state is a known value.
func (s ValidationState) Valid() bool {
	switch s {
	case ArtifactUnvalidated, ArtifactSyntaxValid, ArtifactRenderFailed, ArtifactRendered:
		return true
	default:
		return false
	}
}

// DiagramArtifact is the drafted output for one selected plan item.
// Created by the drafter, mutated by the critic (validation state) and the
// auditor (supersession); terminal once superseded or rendered-final.
type DiagramArtifact struct {
	// PlanID ties the artifact 1:1 to its DiagramPlanItem.
	PlanID string `json:"plan_id"`
	// Name is the diagram title, copied from the plan item.
	Name string `json:"name"`
	// Type is the diagram kind, copied from the plan item.
	Type DiagramType `json:"type"`
	// Files is the target scope, copied from the plan item.
	Files []string `json:"files"`
	// Source is the PlantUML source text.
	Source string `json:"source"`
	// State is the critic's validation verdict.
	State ValidationState `json:"state"`
	// RenderReason is the machine-readable render failure cause, if any.
	RenderReason string `json:"render_reason,omitempty"`
	// Warnings lists complexity warnings the critic attached.
	Warnings []string `json:"warnings,omitempty"`
	// SourcePath is where the .puml source was written.
	SourcePath string `json:"source_path,omitempty"`
	// ImagePath is where the rendered image was written, if rendered.
	ImagePath string `json:"image_path,omitempty"`
	// SupersededBy is set by the auditor when a duplicate audit deprecates
	// this artifact in favor of another. Empty means live.
	SupersededBy string `json:"superseded_by,omitempty"`
}

// Superseded reports whether the auditor deprecated this artifact.
func (d *DiagramArtifact) Superseded() bool {
	return d.SupersededBy != ""
}
