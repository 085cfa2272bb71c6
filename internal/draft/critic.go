package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/internal/render"
	"github.com/ShayCichocki/glassbox/internal/validation"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// Readability limits. Sources past these still render; the critic only
// attaches warnings.
const (
	maxSourceLines  = 100
	maxDeclarations = 20
)

// DefaultMaxFixes bounds corrective redrafts per artifact.
const DefaultMaxFixes = 3

// Renderer is the diagram-render boundary. *render.Client satisfies it;
// a nil Renderer means rendering is skipped and artifacts stop at
// syntax-valid.
type Renderer interface {
	Render(ctx context.Context, source string) ([]byte, error)
	Format() string
}

// Critic validates drafted sources and drives the render boundary.
// Actionable failures (syntax, render rejection) are sent back through
// the fix prompt up to maxFixes times; after that the artifact is left
// render-failed with the last reason.
type Critic struct {
	invoker  Invoker
	prompts  *prompt.Registry
	renderer Renderer
	maxFixes int
	debugLog func(format string, args ...interface{})
}

// NewCritic creates a critic. maxFixes <= 0 selects DefaultMaxFixes.
func NewCritic(invoker Invoker, prompts *prompt.Registry, renderer Renderer, maxFixes int) *Critic {
	if maxFixes <= 0 {
		maxFixes = DefaultMaxFixes
	}
	return &Critic{
		invoker:  invoker,
		prompts:  prompts,
		renderer: renderer,
		maxFixes: maxFixes,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (c *Critic) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		c.debugLog = fn
	}
}

// ImageExt returns the rendered image extension, or "" when rendering is
// disabled.
func (c *Critic) ImageExt() string {
	if c.renderer == nil {
		return ""
	}
	return c.renderer.Format()
}

// Review takes an unvalidated artifact through syntax checking and
// rendering, redrafting the source on actionable failures. On success
// the artifact is marked rendered and the image bytes are returned. A
// review that exhausts its fix budget marks the artifact render-failed
// and returns no error; only context cancellation aborts.
func (c *Critic) Review(ctx context.Context, art *models.DiagramArtifact) ([]byte, error) {
	var reason string

	for attempt := 0; attempt <= c.maxFixes; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if violations := validation.CheckPlantUML(art.Source); len(violations) > 0 {
			reason = "syntax validation failed: " + validation.FormatViolations(violations)
		} else {
			art.State = models.ArtifactSyntaxValid
			art.Warnings = ComplexityWarnings(art.Source)

			if c.renderer == nil {
				return nil, nil
			}

			image, err := c.renderer.Render(ctx, art.Source)
			if err == nil {
				art.State = models.ArtifactRendered
				art.RenderReason = ""
				return image, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			reason = err.Error()
			var re *render.Error
			if !errors.As(err, &re) {
				// The service never saw the source; a redraft cannot help.
				break
			}
		}

		c.debugLog("[draft] %s review attempt %d rejected: %s", art.PlanID, attempt+1, reason)
		if attempt == c.maxFixes {
			break
		}

		fixed, err := c.redraft(ctx, art.Source, reason)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.debugLog("[draft] %s fix call failed: %v", art.PlanID, err)
			break
		}
		art.Source = fixed
	}

	art.State = models.ArtifactRenderFailed
	art.RenderReason = reason
	return nil, nil
}

// redraft asks the fix prompt for a corrected source.
func (c *Critic) redraft(ctx context.Context, source, reason string) (string, error) {
	tmpl, err := c.prompts.Get(prompt.RoleFix, models.TierDeep)
	if err != nil {
		return "", err
	}
	value, err := c.invoker.Invoke(ctx, invoke.Request{
		System: tmpl.System,
		Prompt: fmt.Sprintf(tmpl.User, reason, source),
		Tier:   models.TierDeep,
		Schema: SourceSchema(prompt.RoleFix),
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// SourceSchema validates a draft or fix response: after cleaning, the
// source must hold exactly one @startuml/@enduml envelope with a
// non-empty body.
func SourceSchema(name string) validation.Schema {
	return validation.Schema{
		Name:         name,
		Instructions: "PlantUML source only, starting with @startuml and ending with @enduml",
		Check: func(raw string) (any, []validation.Violation) {
			source := Clean(raw)
			if violations := validation.CheckPlantUML(source); len(violations) > 0 {
				return nil, violations
			}
			return source, nil
		},
	}
}

// declarationKeywords are the line prefixes counted toward the
// participant/class budget.
var declarationKeywords = []string{
	"class ", "interface ", "abstract ", "entity ", "enum ",
	"participant ", "actor ",
}

// ComplexityWarnings flags sources likely too dense to read: over 100
// lines, or over 20 declared participants/classes.
func ComplexityWarnings(source string) []string {
	lines := strings.Split(strings.TrimSpace(source), "\n")

	declared := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, kw := range declarationKeywords {
			if strings.HasPrefix(trimmed, kw) {
				declared++
				break
			}
		}
	}

	var warnings []string
	if len(lines) > maxSourceLines {
		warnings = append(warnings,
			fmt.Sprintf("diagram has %d lines (>%d), may be too complex", len(lines), maxSourceLines))
	}
	if declared > maxDeclarations {
		warnings = append(warnings,
			fmt.Sprintf("diagram declares %d participants or classes (>%d), consider splitting", declared, maxDeclarations))
	}
	return warnings
}
