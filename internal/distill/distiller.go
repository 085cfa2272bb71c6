// Package distill runs the Map-Reduce pass that turns staged file content
// into the knowledge artifact. Map summarizes file batches concurrently;
// Merge unions the batch outputs; Reduce infers cross-unit relationships
// over the merged set. Map failures degrade individual units; a Reduce
// failure aborts the stage.
package distill

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/glassbox/internal/invoke"
	"github.com/ShayCichocki/glassbox/internal/prompt"
	"github.com/ShayCichocki/glassbox/pkg/models"
)

// Invoker is the supervised LLM caller the distiller depends on.
type Invoker interface {
	Invoke(ctx context.Context, req invoke.Request) (any, error)
}

// ContentResolver turns upload refs back into file content. The upload
// stager satisfies it.
type ContentResolver interface {
	Resolve(ref string) (string, error)
}

// Options tunes the distillation pass.
type Options struct {
	// SmallFileThreshold is the line count under which a file is kept
	// verbatim without an LLM call.
	SmallFileThreshold int
	// BatchSize is how many files go into one Map batch.
	BatchSize int
	// Concurrency bounds in-flight Map batches.
	Concurrency int
}

// Distiller builds the knowledge artifact for one run.
type Distiller struct {
	invoker  Invoker
	prompts  *prompt.Registry
	resolver ContentResolver
	opts     Options
	debugLog func(format string, args ...interface{})
}

// New creates a distiller. Zero option fields fall back to defaults.
func New(invoker Invoker, prompts *prompt.Registry, resolver ContentResolver, opts Options) *Distiller {
	if opts.SmallFileThreshold <= 0 {
		opts.SmallFileThreshold = 50
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 2
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	return &Distiller{
		invoker:  invoker,
		prompts:  prompts,
		resolver: resolver,
		opts:     opts,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (d *Distiller) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		d.debugLog = fn
	}
}

// Distill maps every selected inventory entry into a knowledge unit,
// merges the batches, and reduces the merged set into relationship edges.
// Returns the finished artifact plus the units that degraded along the
// way. Only cancellation, a merge conflict, or a Reduce failure abort.
func (d *Distiller) Distill(ctx context.Context, inv *models.FileInventory) (*models.KnowledgeArtifact, []models.DegradedUnit, error) {
	batches := MakeBatches(inv.Selected(), d.opts.BatchSize)
	d.debugLog("[distill.Distill] %d batches of up to %d files", len(batches), d.opts.BatchSize)

	results := make([]batchResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			res, err := d.mapBatch(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	unitSets := make([][]*models.KnowledgeUnit, len(results))
	var degraded []models.DegradedUnit
	for i, res := range results {
		unitSets[i] = res.units
		degraded = append(degraded, res.degraded...)
	}

	units, err := Merge(unitSets...)
	if err != nil {
		return nil, nil, err
	}

	artifact := models.NewKnowledgeArtifact(inv.Target)
	artifact.Units = units

	if err := d.reduce(ctx, artifact); err != nil {
		return nil, nil, fmt.Errorf("inferring relationships: %w", err)
	}
	artifact.GeneratedAt = time.Now().UTC()

	d.debugLog("[distill.Distill] %d units, %d edges, %d rejected, %d degraded",
		len(artifact.Units), len(artifact.Relationships), len(artifact.Rejected), len(degraded))
	return artifact, degraded, nil
}
