package rawstore

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// sqlite caps bound variables per statement
const maxInsertVariables = 30000

// ImporterConfig describes where decoded survey files live and how to build
// an SPM unit table when the survey ships none.
type ImporterConfig struct {
	SourceFolder string
	SPMUnitKey   string // person column identifying the SPM unit
	SPMPrefix    string // person columns copied onto derived SPM unit rows
}

// Importer builds raw extracts from decoded CSV files laid out as
// <source>/<survey>/<year>/{person,household,spm_unit}.csv.
type Importer struct {
	config ImporterConfig
	logger ectologger.Logger
}

func NewImporter(config ImporterConfig, logger ectologger.Logger) *Importer {
	if config.SPMUnitKey == "" {
		config.SPMUnitKey = "SPM_ID"
	}
	if config.SPMPrefix == "" {
		config.SPMPrefix = "SPM_"
	}
	return &Importer{
		config: config,
		logger: logger,
	}
}

func (i *Importer) SourceDir(survey string, year int) string {
	return filepath.Join(i.config.SourceFolder, survey, strconv.Itoa(year))
}

// Import writes the raw extract for (survey, year) to dest. The file appears
// at dest only once it is complete.
func (i *Importer) Import(ctx context.Context, survey string, year int, dest string) (err error) {
	ctx, span := tracing.StartSpan(ctx, "rawstore.Importer.Import")
	defer span.End()

	dir := i.SourceDir(survey, year)
	if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
		return errors.Newf(errors.KindMissingUpstream, "raw source folder %s does not exist", dir).AddDataset(survey).AddYear(year)
	}

	person, err := readCSV(filepath.Join(dir, "person.csv"))
	if err != nil {
		return errors.Wrap(errors.KindMissingUpstream, err).AddDataset(survey).AddYear(year).AddEntity(models.EntityPerson.String())
	}
	household, err := readCSV(filepath.Join(dir, "household.csv"))
	if err != nil {
		return errors.Wrap(errors.KindMissingUpstream, err).AddDataset(survey).AddYear(year).AddEntity(models.EntityHousehold.String())
	}

	spmPath := filepath.Join(dir, "spm_unit.csv")
	var spmUnit *csvTable
	if _, statErr := os.Stat(spmPath); statErr == nil {
		spmUnit, err = readCSV(spmPath)
	} else {
		spmUnit, err = deriveSPMUnits(person, i.config.SPMUnitKey, i.config.SPMPrefix)
		i.logger.WithContext(ctx).WithFields(map[string]any{
			"survey": survey,
			"year":   year,
		}).Info("No SPM unit file found, deriving SPM units from person records")
	}
	if err != nil {
		return errors.Wrap(errors.KindMissingUpstream, err).AddDataset(survey).AddYear(year).AddEntity(models.EntitySPMUnit.String())
	}

	tmp := dest + ".tmp-" + uuid.New().String()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err = i.write(ctx, tmp, map[models.EntityKind]*csvTable{
		models.EntityPerson:    person,
		models.EntityHousehold: household,
		models.EntitySPMUnit:   spmUnit,
	}); err != nil {
		return errors.Wrap(errors.KindIO, err).AddDataset(survey).AddYear(year)
	}

	if err = os.Rename(tmp, dest); err != nil {
		return errors.Wrap(errors.KindIO, err).AddDataset(survey).AddYear(year)
	}

	i.logger.WithContext(ctx).WithFields(map[string]any{
		"survey":     survey,
		"year":       year,
		"persons":    len(person.records),
		"households": len(household.records),
		"spm_units":  len(spmUnit.records),
	}).Info("Generated raw extract")
	return nil
}

func (i *Importer) write(ctx context.Context, path string, tables map[models.EntityKind]*csvTable) error {
	db, err := database.OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	builder := database.NewBuilder(database.DriverSQLite)
	for _, entity := range RawTables {
		if err := writeTable(ctx, tx, builder, entity.String(), tables[entity]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func writeTable(ctx context.Context, tx *sqlx.Tx, builder database.Builder, name string, table *csvTable) error {
	types := table.inferTypes()

	ctb := builder.NewCreateTableBuilder().CreateTable(quoteIdent(name))
	cols := make([]string, len(table.header))
	for i, column := range table.header {
		cols[i] = quoteIdent(column)
		ctb.Define(cols[i], sqlType(types[i]))
	}
	query, args := ctb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	if len(table.header) == 0 {
		return nil
	}
	batch := insertBatchSize(len(table.header))
	for start := 0; start < len(table.records); start += batch {
		end := min(start+batch, len(table.records))

		ib := builder.NewInsertBuilder()
		ib.InsertInto(quoteIdent(name)).Cols(cols...)
		for _, record := range table.records[start:end] {
			values := make([]any, len(record))
			for i, cell := range record {
				values[i] = cellValue(cell, types[i])
			}
			ib.Values(values...)
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// insertBatchSize is the number of rows per INSERT for a table this wide.
func insertBatchSize(columns int) int {
	return max(maxInsertVariables/columns, 1)
}

func sqlType(typ models.ColumnType) string {
	switch typ {
	case models.ColumnTypeInt:
		return "INTEGER"
	case models.ColumnTypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func cellValue(cell string, typ models.ColumnType) any {
	if cell == "" {
		return nil
	}
	switch typ {
	case models.ColumnTypeInt:
		n, _ := strconv.ParseInt(cell, 10, 64)
		return n
	case models.ColumnTypeFloat:
		f, _ := strconv.ParseFloat(cell, 64)
		return f
	default:
		return cell
	}
}

// csvTable is a decoded CSV file with trimmed cells.
type csvTable struct {
	header  []string
	records [][]string
}

func readCSV(path string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Newf(errors.KindMissingUpstream, "%s is empty", path)
	}
	if err != nil {
		return nil, err
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	table := &csvTable{header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		table.records = append(table.records, record)
	}
	return table, nil
}

// inferTypes picks the narrowest type that holds every non-empty cell of each
// column without changing its value: integer, then float, then text.
func (t *csvTable) inferTypes() []models.ColumnType {
	types := make([]models.ColumnType, len(t.header))
	for col := range t.header {
		isInt, isFloat := true, true
		for _, record := range t.records {
			cell := record[col]
			if cell == "" {
				continue
			}
			if isInt {
				if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
					isInt = false
				}
			}
			if isFloat && !exactFloat(cell) {
				isFloat = false
			}
			if !isInt && !isFloat {
				break
			}
		}
		switch {
		case isInt:
			types[col] = models.ColumnTypeInt
		case isFloat:
			types[col] = models.ColumnTypeFloat
		default:
			types[col] = models.ColumnTypeString
		}
	}
	return types
}

// float64 keeps any decimal of up to 15 significant digits distinct
const maxFloatDigits = 15

// exactFloat reports whether cell survives a round trip through float64.
// Long serial numbers fail it, so distinct serials never collapse onto one
// float.
func exactFloat(cell string) bool {
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}

	mantissa := strings.TrimLeft(cell, "+-")
	if i := strings.IndexAny(mantissa, "eE"); i >= 0 {
		mantissa = mantissa[:i]
	}
	for _, r := range mantissa {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	digits := strings.Trim(strings.Replace(mantissa, ".", "", 1), "0")
	return len(digits) <= maxFloatDigits
}

func (t *csvTable) index(column string) int {
	for i, name := range t.header {
		if name == column {
			return i
		}
	}
	return -1
}

// deriveSPMUnits builds one SPM unit row per distinct key in first-seen order,
// carrying the person columns that start with prefix. The first person seen
// for a unit supplies its values.
func deriveSPMUnits(person *csvTable, key, prefix string) (*csvTable, error) {
	keyIndex := person.index(key)
	if keyIndex < 0 {
		return nil, errors.New(errors.KindSchemaDrift, "column not found").AddEntity(models.EntityPerson.String()).AddColumn(key)
	}

	columns := []int{keyIndex}
	for i, name := range person.header {
		if i != keyIndex && strings.HasPrefix(name, prefix) {
			columns = append(columns, i)
		}
	}

	spmUnit := &csvTable{header: make([]string, len(columns))}
	for i, col := range columns {
		spmUnit.header[i] = person.header[col]
	}

	seen := map[string]bool{}
	for _, record := range person.records {
		id := record[keyIndex]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = record[col]
		}
		spmUnit.records = append(spmUnit.records, row)
	}
	return spmUnit, nil
}
