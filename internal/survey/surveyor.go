// Package survey assigns an architectural role to every inventoried file.
// Heuristics tag the obvious cases; the rest go to the model in path
// chunks. A chunk whose calls exhaust retries falls back to heuristics
// instead of failing the run.
package survey

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/validation"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// Invoker is the supervised LLM caller the surveyor depends on.
type Invoker interface {
	Invoke(ctx context.Context, req invoke.Request) (any, error)
}

// Surveyor tags inventory entries with roles.
type Surveyor struct {
	invoker   Invoker
	prompts   *prompt.Registry
	chunkSize int
	debugLog  func(format string, args ...interface{})
}

// Report summarizes one survey pass.
type Report struct {
	// Heuristic counts files tagged without an LLM call.
	Heuristic int
	// Tagged counts files tagged by the model.
	Tagged int
	// DegradedChunks counts chunks that fell back to heuristics.
	DegradedChunks int
	// Failures holds the error from each degraded chunk.
	Failures []string
}

// New creates a surveyor. chunkSize bounds how many paths go into one
// LLM call.
func New(invoker Invoker, prompts *prompt.Registry, chunkSize int) *Surveyor {
	if chunkSize <= 0 {
		chunkSize = 120
	}
	return &Surveyor{
		invoker:   invoker,
		prompts:   prompts,
		chunkSize: chunkSize,
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (s *Surveyor) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		s.debugLog = fn
	}
}

// Survey tags every entry in the inventory, mutating it in place. Only
// context cancellation aborts; call failures degrade their chunk to
// heuristic-only tagging and the run continues.
func (s *Surveyor) Survey(ctx context.Context, inv *models.FileInventory) (*Report, error) {
	report := &Report{}

	var pending []int
	for i := range inv.Entries {
		if role, ok := HeuristicRole(inv.Entries[i]); ok {
			inv.Entries[i].Role = role
			report.Heuristic++
			continue
		}
		pending = append(pending, i)
	}
	s.debugLog("[survey.Survey] %d heuristic, %d for the model", report.Heuristic, len(pending))

	tmpl, err := s.prompts.Get(prompt.RoleSurvey, models.TierFast)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(pending); start += s.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + s.chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		roles, err := s.surveyChunk(ctx, tmpl, inv, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.debugLog("[survey.Survey] chunk %d-%d degraded: %v", start, end, err)
			report.DegradedChunks++
			report.Failures = append(report.Failures, err.Error())
			for _, idx := range chunk {
				inv.Entries[idx].Role = FallbackRole(inv.Entries[idx])
			}
			continue
		}
		for _, idx := range chunk {
			inv.Entries[idx].Role = roles[inv.Entries[idx].Path]
			report.Tagged++
		}
	}
	return report, nil
}

// surveyChunk runs one classification call covering the chunk's paths.
func (s *Surveyor) surveyChunk(ctx context.Context, tmpl prompt.Template, inv *models.FileInventory, chunk []int) (map[string]models.Role, error) {
	paths := make([]string, len(chunk))
	var block strings.Builder
	for i, idx := range chunk {
		e := inv.Entries[idx]
		paths[i] = e.Path
		if e.Lang != "" {
			fmt.Fprintf(&block, "%s (%s, %d lines)\n", e.Path, e.Lang, e.Lines)
		} else {
			fmt.Fprintf(&block, "%s (%d lines)\n", e.Path, e.Lines)
		}
	}

	value, err := s.invoker.Invoke(ctx, invoke.Request{
		System: tmpl.System,
		Prompt: fmt.Sprintf(tmpl.User, roleList(), block.String()),
		Tier:   models.TierFast,
		Schema: ChunkSchema(paths),
	})
	if err != nil {
		return nil, err
	}
	return value.(map[string]models.Role), nil
}

// roleList renders the allowed roles for the prompt.
func roleList() string {
	roles := models.AllRoles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// ChunkSchema validates one survey response: a JSON object mapping every
// requested path to an allowed role, with full coverage and nothing extra.
func ChunkSchema(paths []string) validation.Schema {
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[p] = true
	}

	return validation.Schema{
		Name:         "survey-roles",
		Instructions: `a JSON object {"roles": {"<path>": "<role>"}} covering every listed file exactly once`,
		Check: func(raw string) (any, []validation.Violation) {
			var payload struct {
				Roles map[string]string `json:"roles"`
			}
			if v := validation.DecodeJSON(raw, &payload); v != nil {
				return nil, v
			}
			if len(payload.Roles) == 0 {
				return nil, []validation.Violation{{
					Field: "roles", Rule: validation.RuleRequired,
					Detail: "must not be empty",
				}}
			}

			var violations []validation.Violation
			out := make(map[string]models.Role, len(paths))
			for p, r := range payload.Roles {
				if !want[p] {
					violations = append(violations, validation.Violation{
						Field: "roles." + p, Rule: validation.RuleCoverage,
						Detail: "path was not in the requested set",
					})
					continue
				}
				role := models.Role(strings.ToLower(strings.TrimSpace(r)))
				if !role.Valid() {
					violations = append(violations, validation.Violation{
						Field: "roles." + p, Rule: validation.RuleEnum,
						Detail: fmt.Sprintf("unknown role %q", r),
					})
					continue
				}
				out[p] = role
			}

			var missing []string
			for p := range want {
				if _, ok := out[p]; !ok {
					if _, answered := payload.Roles[p]; !answered {
						missing = append(missing, p)
					}
				}
			}
			sort.Strings(missing)
			for _, p := range missing {
				violations = append(violations, validation.Violation{
					Field: "roles." + p, Rule: validation.RuleCoverage,
					Detail: "missing from the response",
				})
			}

			if len(violations) > 0 {
				return nil, violations
			}
			return out, nil
		},
	}
}
