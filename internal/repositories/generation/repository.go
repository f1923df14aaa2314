package generation

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// GenerationRepository is the catalog of generation runs
type GenerationRepository interface {
	Create(ctx context.Context, generation *models.Generation) (*models.Generation, error)
	Complete(ctx context.Context, id string, result models.GenerationResult) error
	Fail(ctx context.Context, id string, cause error) error
	GetByID(ctx context.Context, id string) (*models.Generation, error)
	List(ctx context.Context, dataset string, limit int) ([]*models.Generation, error)
	Latest(ctx context.Context, dataset string, year int) (*models.Generation, error)
}

type Repository struct {
	db               database.DB
	logger           ectologger.Logger
	builder          database.Builder
	generationStruct *sqlbuilder.Struct
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	builder := database.NewBuilder(db.DriverName())
	return &Repository{
		db:               db,
		logger:           logger,
		builder:          builder,
		generationStruct: builder.NewStruct(new(GenerationRow)),
	}
}

// Create records a new running generation
func (r *Repository) Create(ctx context.Context, generation *models.Generation) (*models.Generation, error) {
	ctx, span := tracing.StartSpan(ctx, "GenerationRepository.Create")
	defer span.End()

	if generation.ID == "" {
		generation.ID = uuid.New().String()
	}
	generation.Status = models.GenerationRunning
	generation.StartedAt = Now()

	ib := r.generationStruct.InsertInto(generationsTable, FromGeneration(generation))
	query, args := ib.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":      generation.ID,
		"dataset": generation.Dataset,
		"year":    generation.Year,
	}).Debug("Creating generation")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create generation")
		return nil, errors.Newf(errors.KindIO, "failed to create generation: %w", err)
	}
	return generation, nil
}

// Complete marks a generation succeeded and stores its counts
func (r *Repository) Complete(ctx context.Context, id string, result models.GenerationResult) error {
	ctx, span := tracing.StartSpan(ctx, "GenerationRepository.Complete")
	defer span.End()

	ub := r.builder.NewUpdateBuilder()
	ub.Update(generationsTable).
		Set(
			ub.Assign("status", string(models.GenerationSucceeded)),
			ub.Assign("output_path", result.OutputPath),
			ub.Assign("person_count", result.PersonCount),
			ub.Assign("household_count", result.HouseholdCount),
			ub.Assign("spm_unit_count", result.SPMUnitCount),
			ub.Assign("dropped_person_count", result.DroppedPersonCount),
			ub.Assign("dropped_household_count", result.DroppedHouseholdCount),
			ub.Assign("orphaned_spm_unit_count", result.OrphanedSPMUnitCount),
			ub.Assign("completed_at", Now()),
		).
		Where(ub.Equal("id", id))

	return r.update(ctx, ub, id, "complete")
}

// Fail marks a generation failed with the error that stopped it
func (r *Repository) Fail(ctx context.Context, id string, cause error) error {
	ctx, span := tracing.StartSpan(ctx, "GenerationRepository.Fail")
	defer span.End()

	message := ""
	if cause != nil {
		message = cause.Error()
	}

	ub := r.builder.NewUpdateBuilder()
	ub.Update(generationsTable).
		Set(
			ub.Assign("status", string(models.GenerationFailed)),
			ub.Assign("error", message),
			ub.Assign("completed_at", Now()),
		).
		Where(ub.Equal("id", id))

	return r.update(ctx, ub, id, "fail")
}

func (r *Repository) update(ctx context.Context, ub *sqlbuilder.UpdateBuilder, id, action string) error {
	query, args := ub.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":     id,
		"action": action,
	}).Debug("Updating generation")

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s generation", action)
		return errors.Newf(errors.KindIO, "failed to %s generation: %w", action, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return errors.Newf(errors.KindNotFound, "generation %s not found", id)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*models.Generation, error) {
	ctx, span := tracing.StartSpan(ctx, "GenerationRepository.GetByID")
	defer span.End()

	sb := r.generationStruct.SelectFrom(generationsTable)
	sb.Where(sb.Equal("id", id))

	return r.get(ctx, sb)
}

// List returns runs newest first. An empty dataset lists every dataset; a
// limit of zero or less returns everything.
func (r *Repository) List(ctx context.Context, dataset string, limit int) ([]*models.Generation, error) {
	ctx, span := tracing.StartSpan(ctx, "GenerationRepository.List")
	defer span.End()

	sb := r.generationStruct.SelectFrom(generationsTable)
	if dataset != "" {
		sb.Where(sb.Equal("dataset", dataset))
	}
	sb.OrderBy("started_at").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset": dataset,
		"limit":   limit,
	}).Debug("Listing generations")

	rows := []GenerationRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list generations")
		return nil, errors.Newf(errors.KindIO, "failed to list generations: %w", err)
	}
	return ToGenerations(rows), nil
}

// Latest returns the most recent run for (dataset, year)
func (r *Repository) Latest(ctx context.Context, dataset string, year int) (*models.Generation, error) {
	ctx, span := tracing.StartSpan(ctx, "GenerationRepository.Latest")
	defer span.End()

	sb := r.generationStruct.SelectFrom(generationsTable)
	sb.Where(
		sb.Equal("dataset", dataset),
		sb.Equal("year", year),
	)
	sb.OrderBy("started_at").Desc()
	sb.Limit(1)

	return r.get(ctx, sb)
}

func (r *Repository) get(ctx context.Context, sb *sqlbuilder.SelectBuilder) (*models.Generation, error) {
	query, args := sb.Build()

	var row GenerationRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.KindNotFound, "generation not found")
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get generation")
		return nil, errors.Newf(errors.KindIO, "failed to get generation: %w", err)
	}
	return ToGeneration(&row), nil
}
