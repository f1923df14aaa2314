// Package loader reads a survey's raw extract for one year, generating the
// extract upstream first when it does not exist yet.
package loader

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RawHandle is an open raw extract.
type RawHandle interface {
	Load(ctx context.Context) (*models.RawExtract, error)
	Close() error
}

// RawProvider stores and generates raw survey extracts.
type RawProvider interface {
	Has(survey string, year int) bool
	Generate(ctx context.Context, survey string, year int) error
	Open(ctx context.Context, survey string, year int) (RawHandle, error)
}

type Loader struct {
	provider RawProvider
	logger   ectologger.Logger
}

func NewLoader(provider RawProvider, logger ectologger.Logger) *Loader {
	return &Loader{
		provider: provider,
		logger:   logger,
	}
}

// Load returns the person, household and spm_unit tables for (survey, year).
// A missing extract is generated first; if that fails the load fails. Another
// year is never substituted. The raw handle is closed before Load returns.
func (l *Loader) Load(ctx context.Context, survey string, year int) (extract *models.RawExtract, err error) {
	ctx, span := tracing.StartSpan(ctx, "loader.Loader.Load")
	defer span.End()

	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"survey": survey,
		"year":   year,
	})

	if !l.provider.Has(survey, year) {
		log.Info("Raw extract missing, generating it")
		if err := l.provider.Generate(ctx, survey, year); err != nil {
			log.WithError(err).Error("Failed to generate raw extract")
			return nil, errors.Wrap(errors.KindMissingUpstream, err).AddDataset(survey).AddYear(year)
		}
		if !l.provider.Has(survey, year) {
			return nil, errors.New(errors.KindMissingUpstream, "raw extract still missing after generation").AddDataset(survey).AddYear(year)
		}
	}

	handle, err := l.provider.Open(ctx, survey, year)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, err).AddDataset(survey).AddYear(year)
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil && err == nil {
			extract, err = nil, errors.Wrap(errors.KindIO, closeErr).AddDataset(survey).AddYear(year)
		}
	}()

	extract, err = handle.Load(ctx)
	if err != nil {
		return nil, err
	}
	if extract.Person == nil || extract.Household == nil || extract.SPMUnit == nil {
		return nil, errors.New(errors.KindSchemaDrift, "raw extract is missing a table").AddDataset(survey).AddYear(year)
	}
	if extract.Year != year {
		return nil, errors.Newf(errors.KindMissingUpstream, "raw extract holds year %d", extract.Year).AddDataset(survey).AddYear(year)
	}

	log.WithFields(map[string]any{
		"persons":    extract.Person.Len(),
		"households": extract.Household.Len(),
		"spm_units":  extract.SPMUnit.Len(),
	}).Info("Loaded raw extract")

	return extract, nil
}
