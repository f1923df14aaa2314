// Package generator runs generate(year) for a dataset: load the raw extract,
// derive keys, reconcile, write the canonical file. Each call owns its
// (dataset, year) exclusively through a Locker and shares no state with other
// calls.
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/datasets"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/keys"
	"github.com/Ramsey-B/clover/pkg/loader"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/writer"
)

const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

// Catalog records generation runs.
type Catalog interface {
	Create(ctx context.Context, generation *models.Generation) (*models.Generation, error)
	Complete(ctx context.Context, id string, result models.GenerationResult) error
	Fail(ctx context.Context, id string, cause error) error
}

type Dependencies struct {
	Registry   *datasets.Registry
	Loader     *loader.Loader
	Reconciler *reconcile.Reconciler
	Writer     *writer.Writer
	Locker     Locker          // defaults to a LocalLocker
	Catalog    Catalog         // optional
	Emitter    *events.Emitter // optional
	Logger     ectologger.Logger
}

// Report summarizes a successful generation.
type Report struct {
	RunID            string                    `json:"run_id"`
	Dataset          string                    `json:"dataset"`
	Year             int                       `json:"year"`
	OutputPath       string                    `json:"output_path"`
	Arrays           []string                  `json:"arrays"`
	Counts           map[models.EntityKind]int `json:"counts"`
	Dropped          map[models.EntityKind]int `json:"dropped"`
	OrphanedSPMUnits int                       `json:"orphaned_spm_units"`
	Replaced         bool                      `json:"replaced"`
	Duration         time.Duration             `json:"duration"`
}

type Generator struct {
	registry   *datasets.Registry
	loader     *loader.Loader
	reconciler *reconcile.Reconciler
	writer     *writer.Writer
	locker     Locker
	catalog    Catalog
	emitter    *events.Emitter
	logger     ectologger.Logger
}

func NewGenerator(deps Dependencies) *Generator {
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if deps.Emitter == nil {
		deps.Emitter = events.NewEmitter(nil, deps.Logger)
	}
	return &Generator{
		registry:   deps.Registry,
		loader:     deps.Loader,
		reconciler: deps.Reconciler,
		writer:     deps.Writer,
		locker:     deps.Locker,
		catalog:    deps.Catalog,
		emitter:    deps.Emitter,
		logger:     deps.Logger,
	}
}

func (g *Generator) Registry() *datasets.Registry {
	return g.registry
}

func lockKey(dataset string, year int) string {
	return fmt.Sprintf("generate:%s:%d", dataset, year)
}

// Generate builds the canonical file for (name, year), replacing any prior
// output. On failure no output for that year is left behind.
func (g *Generator) Generate(ctx context.Context, name string, year int) (report *Report, err error) {
	ctx, span := tracing.StartSpan(ctx, "generator.Generator.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("dataset", name), attribute.Int("year", year))

	start := time.Now()
	ds, err := g.registry.Get(name)
	if err != nil {
		return nil, err
	}

	unlock, err := g.locker.Lock(ctx, lockKey(name, year))
	if err != nil {
		return nil, errors.Wrap(errors.KindConflict, err).AddDataset(name).AddYear(year)
	}
	defer func() {
		if unlockErr := unlock(ctx); unlockErr != nil {
			g.logger.WithContext(ctx).WithError(unlockErr).Warn("Failed to release generation lock")
		}
	}()

	runID := uuid.New().String()
	logger := g.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset": name,
		"year":    year,
		"run_id":  runID,
	})

	if g.catalog != nil {
		if _, err := g.catalog.Create(ctx, &models.Generation{ID: runID, Dataset: name, Year: year}); err != nil {
			return nil, err
		}
	}

	logger.Info("Generating dataset")
	report, err = g.run(ctx, ds, year, runID)
	if err != nil {
		g.fail(ctx, ds.Name, year, runID, err, time.Since(start))
		return nil, err
	}
	report.Duration = time.Since(start)

	if g.catalog != nil {
		result := models.GenerationResult{
			OutputPath:            report.OutputPath,
			PersonCount:           report.Counts[models.EntityPerson],
			HouseholdCount:        report.Counts[models.EntityHousehold],
			SPMUnitCount:          report.Counts[models.EntitySPMUnit],
			DroppedPersonCount:    report.Dropped[models.EntityPerson],
			DroppedHouseholdCount: report.Dropped[models.EntityHousehold],
			OrphanedSPMUnitCount:  report.OrphanedSPMUnits,
		}
		if err := g.catalog.Complete(ctx, runID, result); err != nil {
			logger.WithError(err).Warn("Failed to record completed generation")
		}
	}

	_ = g.emitter.EmitGenerated(ctx, events.DatasetEvent{
		Dataset:    name,
		Year:       year,
		RunID:      runID,
		OutputPath: report.OutputPath,
		Counts:     entityCounts(report.Counts),
		Dropped:    entityCounts(report.Dropped),
	})

	metrics.RecordGeneration(name, statusSucceeded, report.Duration)
	metrics.RecordRows(metrics.RowsDropped, name, entityCounts(report.Dropped))
	metrics.ArraysWritten.WithLabelValues(name).Add(float64(len(report.Arrays)))

	logger.WithFields(map[string]any{
		"path":        report.OutputPath,
		"persons":     report.Counts[models.EntityPerson],
		"households":  report.Counts[models.EntityHousehold],
		"spm_units":   report.Counts[models.EntitySPMUnit],
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Generated dataset")

	return report, nil
}

func (g *Generator) run(ctx context.Context, ds datasets.Dataset, year int, runID string) (*Report, error) {
	replaced, err := g.writer.Storage().Remove(ds.Name, year)
	if err != nil {
		return nil, err
	}
	if replaced {
		g.logger.WithContext(ctx).WithFields(map[string]any{
			"dataset": ds.Name,
			"year":    year,
		}).Info("Removed stale output")
	}

	extract, err := g.loader.Load(ctx, ds.Survey, year)
	if err != nil {
		return nil, err
	}
	metrics.RecordRows(metrics.RowsLoaded, ds.Name, map[string]int{
		models.EntityPerson.String():    extract.Person.Len(),
		models.EntityHousehold.String(): extract.Household.Len(),
		models.EntitySPMUnit.String():   extract.SPMUnit.Len(),
	})

	mapping, err := ds.Mapping()
	if err != nil {
		return nil, errors.Wrap(errors.KindConfiguration, err).AddDataset(ds.Name)
	}
	pop, err := keys.NewDeriver(mapping, g.logger).Derive(ctx, ds.Name, extract, ds.Keys)
	if err != nil {
		return nil, err
	}

	result, err := g.reconciler.Reconcile(ctx, pop)
	if err != nil {
		return nil, err
	}

	out, err := g.writer.Write(ctx, result.Population, ds.Fields(), runID)
	if err != nil {
		return nil, err
	}

	return &Report{
		RunID:            runID,
		Dataset:          ds.Name,
		Year:             year,
		OutputPath:       out.Path,
		Arrays:           out.Arrays,
		Counts:           out.Counts,
		Dropped:          result.Dropped(),
		OrphanedSPMUnits: result.OrphanedSPMUnits,
		Replaced:         replaced || out.Replaced,
	}, nil
}

func (g *Generator) fail(ctx context.Context, dataset string, year int, runID string, cause error, duration time.Duration) {
	logger := g.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"dataset": dataset,
		"year":    year,
		"run_id":  runID,
		"kind":    errors.KindOf(cause),
	})

	if _, err := g.writer.Storage().Remove(dataset, year); err != nil {
		logger.WithField("remove_error", err.Error()).Warn("Failed to remove output after failed generation")
	}
	if g.catalog != nil {
		if err := g.catalog.Fail(ctx, runID, cause); err != nil {
			logger.WithField("catalog_error", err.Error()).Warn("Failed to record failed generation")
		}
	}
	_ = g.emitter.EmitFailed(ctx, dataset, year, runID, cause)
	metrics.RecordGeneration(dataset, statusFailed, duration)

	logger.Error("Dataset generation failed")
}

// Remove deletes the output for (name, year).
func (g *Generator) Remove(ctx context.Context, name string, year int) error {
	ctx, span := tracing.StartSpan(ctx, "generator.Generator.Remove")
	defer span.End()

	if _, err := g.registry.Get(name); err != nil {
		return err
	}

	unlock, err := g.locker.Lock(ctx, lockKey(name, year))
	if err != nil {
		return errors.Wrap(errors.KindConflict, err).AddDataset(name).AddYear(year)
	}
	defer func() {
		_ = unlock(ctx)
	}()

	removed, err := g.writer.Storage().Remove(name, year)
	if err != nil {
		return err
	}
	if !removed {
		return errors.New(errors.KindNotFound, "no output to remove").AddDataset(name).AddYear(year)
	}

	_ = g.emitter.EmitRemoved(ctx, name, year)
	g.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset": name,
		"year":    year,
	}).Info("Removed dataset output")
	return nil
}

// Years lists the years with output for name.
func (g *Generator) Years(name string) ([]int, error) {
	if _, err := g.registry.Get(name); err != nil {
		return nil, err
	}
	return g.writer.Storage().Years(name)
}

func entityCounts(counts map[models.EntityKind]int) map[string]int {
	out := make(map[string]int, len(counts))
	for entity, count := range counts {
		out[entity.String()] = count
	}
	return out
}
