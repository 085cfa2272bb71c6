// Package models defines the shared data model for a recon run: pipeline
// stages, the file inventory, the knowledge artifact, diagram plans and
// artifacts, and audit records.
package models

import "fmt"

// Stage identifies a pipeline stage boundary. Stages are strictly ordered;
// a run advances one stage at a time and persists at each boundary.
type Stage int

const (
	// StageNone is the zero value: no stage has completed yet.
	StageNone Stage = iota
	// StageScouted means the target has been fetched and inventoried.
	StageScouted
	// StageSurveyed means every inventory entry carries a role tag.
	StageSurveyed
	// StageUploaded means selected file content is staged and referenced.
	StageUploaded
	// StageDistilled means the knowledge artifact is built and frozen.
	StageDistilled
	// StagePlanned means the diagram plan exists.
	StagePlanned
	// StageAwaitingSelection is the human checkpoint suspension point.
	StageAwaitingSelection
	// StageDrafted means selected diagrams have been drafted and validated.
	StageDrafted
	// StageAudited means the duplicate audit has run.
	StageAudited
	// StageComplete is the successful terminal state.
	StageComplete
)

var stageNames = map[Stage]string{
	StageNone:              "none",
	StageScouted:           "scouted",
	StageSurveyed:          "surveyed",
	StageUploaded:          "uploaded",
	StageDistilled:         "distilled",
	StagePlanned:           "planned",
	StageAwaitingSelection: "awaiting_selection",
	StageDrafted:           "drafted",
	StageAudited:           "audited",
	StageComplete:          "complete",
}

// String returns the stable lowercase name used in the state store.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage converts a stored stage name back to a Stage.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return StageNone, fmt.Errorf("unknown stage %q", name)
}

// Next returns the stage that follows s in pipeline order.
// Calling Next on StageComplete returns StageComplete.
func (s Stage) Next() Stage {
	if s >= StageComplete {
		return StageComplete
	}
	return s + 1
}

// RunStatus describes the overall run state in the state store.
type RunStatus string

const (
	// RunRunning indicates the pipeline is executing stages.
	RunRunning RunStatus = "running"
	// RunAwaiting indicates the run is suspended at the human checkpoint.
	RunAwaiting RunStatus = "awaiting"
	// RunComplete indicates the run finished successfully.
	RunComplete RunStatus = "complete"
	// RunFailed indicates the run hit a non-recoverable stage failure.
	RunFailed RunStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunAwaiting, RunComplete, RunFailed:
		return true
	default:
		return false
	}
}
