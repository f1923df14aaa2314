// Package rawstore keeps raw survey extracts, one sqlite file per
// (survey, year), with the survey's own table and column names.
package rawstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RawTables are the tables every raw extract carries.
var RawTables = []models.EntityKind{models.EntityPerson, models.EntityHousehold, models.EntitySPMUnit}

type Store struct {
	folder   string
	importer *Importer
	logger   ectologger.Logger
}

// NewStore creates a store rooted at folder. importer may be nil, in which
// case missing years cannot be generated.
func NewStore(folder string, importer *Importer, logger ectologger.Logger) *Store {
	return &Store{
		folder:   folder,
		importer: importer,
		logger:   logger,
	}
}

func (s *Store) Path(survey string, year int) string {
	return filepath.Join(s.folder, fmt.Sprintf("raw_%s_%d.db", survey, year))
}

func (s *Store) Has(survey string, year int) bool {
	info, err := os.Stat(s.Path(survey, year))
	return err == nil && !info.IsDir()
}

// Years lists the years stored for survey, ascending.
func (s *Store) Years(survey string) ([]int, error) {
	matches, err := filepath.Glob(filepath.Join(s.folder, fmt.Sprintf("raw_%s_*.db", survey)))
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, err)
	}

	pattern := regexp.MustCompile(fmt.Sprintf(`^raw_%s_(\d{4})\.db$`, regexp.QuoteMeta(survey)))
	years := []int{}
	for _, match := range matches {
		parts := pattern.FindStringSubmatch(filepath.Base(match))
		if len(parts) != 2 {
			continue
		}
		year, _ := strconv.Atoi(parts[1])
		years = append(years, year)
	}
	sort.Ints(years)
	return years, nil
}

// Generate builds the raw extract for (survey, year) from its source files.
func (s *Store) Generate(ctx context.Context, survey string, year int) error {
	if s.importer == nil {
		return errors.New(errors.KindMissingUpstream, "no raw source is configured").AddDataset(survey).AddYear(year)
	}
	if err := os.MkdirAll(s.folder, 0o755); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	return s.importer.Import(ctx, survey, year, s.Path(survey, year))
}

func (s *Store) Remove(survey string, year int) error {
	err := os.Remove(s.Path(survey, year))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.KindIO, err)
	}
	return nil
}

// Open opens the raw extract for reading. The caller must Close the handle.
func (s *Store) Open(ctx context.Context, survey string, year int) (*Handle, error) {
	if !s.Has(survey, year) {
		return nil, errors.New(errors.KindMissingUpstream, "raw extract does not exist").AddDataset(survey).AddYear(year)
	}

	db, err := database.OpenSQLite(ctx, s.Path(survey, year))
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, err).AddDataset(survey).AddYear(year)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"survey": survey,
		"year":   year,
	}).Debug("Opened raw extract")

	return &Handle{
		db:     db,
		survey: survey,
		year:   year,
		logger: s.logger,
	}, nil
}

// Handle is an open raw extract.
type Handle struct {
	db     *sqlx.DB
	survey string
	year   int
	logger ectologger.Logger
}

func (h *Handle) Close() error {
	return h.db.Close()
}

// Load reads the person, household and spm_unit tables.
func (h *Handle) Load(ctx context.Context) (*models.RawExtract, error) {
	ctx, span := tracing.StartSpan(ctx, "rawstore.Handle.Load")
	defer span.End()

	extract := &models.RawExtract{
		Survey: h.survey,
		Year:   h.year,
	}

	for _, entity := range RawTables {
		table, err := h.loadTable(ctx, entity)
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, err).AddDataset(h.survey).AddYear(h.year).AddEntity(entity.String())
		}
		switch entity {
		case models.EntityPerson:
			extract.Person = table
		case models.EntityHousehold:
			extract.Household = table
		case models.EntitySPMUnit:
			extract.SPMUnit = table
		}
	}

	return extract, nil
}

func (h *Handle) loadTable(ctx context.Context, entity models.EntityKind) (*models.Table, error) {
	rows, err := h.db.QueryxContext(ctx, "SELECT * FROM "+quoteIdent(entity.String()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	builders := make([]*columnBuilder, len(columnTypes))
	for i, ct := range columnTypes {
		builders[i] = newColumnBuilder(ct.Name(), declaredType(ct.DatabaseTypeName()))
	}

	values := make([]any, len(builders))
	dest := make([]any, len(builders))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, b := range builders {
			if err := b.append(values[i]); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	table := models.NewTable(entity)
	for _, b := range builders {
		if err := table.SetColumn(b.build()); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func declaredType(name string) models.ColumnType {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "INT"):
		return models.ColumnTypeInt
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"):
		return models.ColumnTypeFloat
	default:
		return models.ColumnTypeString
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
