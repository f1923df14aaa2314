// Package writer projects a reconciled population onto the canonical output
// fields and persists it as one array file per (dataset, year).
//
// Every field is resolved before anything touches disk, so schema drift never
// leaves a partial file behind. The new file is written next to the final path
// and only renamed into place once complete; a prior output for the same year
// is removed first.
package writer

import (
	"context"
	stderrors "errors"
	"os"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/arraystore"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fields"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Metadata keys stored with every output file.
const (
	MetaDataset     = "dataset"
	MetaYear        = "year"
	MetaGeneratedAt = "generated_at"
	MetaRunID       = "run_id"
)

// Output describes a written canonical file.
type Output struct {
	Path     string
	Arrays   []string
	Counts   map[models.EntityKind]int
	Replaced bool
}

type Writer struct {
	storage *Storage
	logger  ectologger.Logger
	now     func() time.Time
}

func NewWriter(storage *Storage, logger ectologger.Logger) *Writer {
	return &Writer{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

func (w *Writer) Storage() *Storage {
	return w.storage
}

type array struct {
	field  fields.Field
	ints   []int64
	floats []float64
}

// Write persists pop projected onto fs. runID is recorded in the file's
// metadata.
func (w *Writer) Write(ctx context.Context, pop *models.Population, fs fields.Fields, runID string) (*Output, error) {
	ctx, span := tracing.StartSpan(ctx, "writer.Writer.Write")
	defer span.End()

	if err := fs.Validate(); err != nil {
		return nil, errors.Wrap(errors.KindConfiguration, err).AddDataset(pop.Dataset).AddYear(pop.Year)
	}

	arrays, err := project(pop, fs)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(w.storage.Folder(), 0o755); err != nil {
		return nil, errors.Wrap(errors.KindIO, err).AddDataset(pop.Dataset).AddYear(pop.Year)
	}

	tmp := w.storage.tempPath(pop.Dataset, pop.Year)
	if err := w.writeFile(ctx, tmp, pop, arrays, runID); err != nil {
		_ = os.Remove(tmp)
		return nil, errors.Wrap(errors.KindIO, err).AddDataset(pop.Dataset).AddYear(pop.Year)
	}

	replaced, err := w.storage.Remove(pop.Dataset, pop.Year)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}

	path := w.storage.Path(pop.Dataset, pop.Year)
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, errors.Wrap(errors.KindIO, err).AddDataset(pop.Dataset).AddYear(pop.Year)
	}

	out := &Output{
		Path:     path,
		Arrays:   fs.IDs(),
		Counts:   pop.Counts(),
		Replaced: replaced,
	}

	logger := w.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset": pop.Dataset,
		"year":    pop.Year,
		"path":    path,
		"arrays":  len(arrays),
	})
	if replaced {
		logger.Info("Replaced existing canonical dataset")
	} else {
		logger.Info("Wrote canonical dataset")
	}

	return out, nil
}

// project resolves every field against the population. All drift is reported
// together.
func project(pop *models.Population, fs fields.Fields) ([]array, error) {
	arrays := make([]array, 0, len(fs))
	var errs []error

	for _, field := range fs {
		a, err := resolve(pop, field)
		if err != nil {
			errs = append(errs, errors.Wrap(errors.KindSchemaDrift, err).
				AddDataset(pop.Dataset).
				AddYear(pop.Year).
				AddEntity(field.Entity.String()))
			continue
		}
		arrays = append(arrays, a)
	}

	if len(errs) > 0 {
		return nil, stderrors.Join(errs...)
	}
	return arrays, nil
}

func resolve(pop *models.Population, field fields.Field) (array, error) {
	table := pop.Table(field.Entity)
	if table == nil {
		return array{}, errors.Newf(errors.KindConfiguration, "field %s has no %s table", field.ID, field.Entity)
	}

	col, err := table.Column(field.Source)
	if err != nil {
		return array{}, err
	}
	if !col.IsNumeric() && field.Type == fields.TypeFloat {
		return array{}, errors.Newf(errors.KindSchemaDrift, "field %s needs a numeric column, found %s", field.ID, col.Type).
			AddColumn(field.Source)
	}

	a := array{field: field}
	switch field.Type {
	case fields.TypeInt:
		a.ints, err = col.Int64s()
		if err != nil {
			return array{}, err
		}
	default:
		a.floats = col.Float64s()
	}
	return a, nil
}

func (w *Writer) writeFile(ctx context.Context, path string, pop *models.Population, arrays []array, runID string) (err error) {
	file, err := arraystore.Create(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, a := range arrays {
		entity := a.field.Entity.String()
		if a.field.Type == fields.TypeInt {
			err = file.WriteInt64s(ctx, a.field.ID, entity, a.ints)
		} else {
			err = file.WriteFloat64s(ctx, a.field.ID, entity, a.floats)
		}
		if err != nil {
			return err
		}
	}

	metadata := map[string]string{
		MetaDataset:     pop.Dataset,
		MetaYear:        strconv.Itoa(pop.Year),
		MetaGeneratedAt: w.now().UTC().Format(time.RFC3339),
		MetaRunID:       runID,
	}
	for entity, count := range pop.Counts() {
		metadata["count_"+entity.String()] = strconv.Itoa(count)
	}
	for key, value := range metadata {
		if err = file.SetMetadata(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}
