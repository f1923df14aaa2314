// Package arraystore reads and writes canonical microdata files: a single
// sqlite file holding named numeric arrays plus string metadata.
package arraystore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/errors"
)

const (
	arraysTable   = "arrays"
	metadataTable = "metadata"
)

type DType string

const (
	DTypeInt64   DType = "int64"
	DTypeFloat64 DType = "float64"
)

// ArrayInfo describes one stored array.
type ArrayInfo struct {
	Name   string `db:"name"`
	Entity string `db:"entity"`
	DType  DType  `db:"dtype"`
	Length int    `db:"length"`
}

type File struct {
	db      *sqlx.DB
	path    string
	builder database.Builder
}

// Create makes a new, empty array file at path. An existing file is an error.
func Create(ctx context.Context, path string) (*File, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Newf(errors.KindIO, "array file %s already exists", path)
	}

	f, err := open(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := f.createTables(ctx); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// Open opens an existing array file for reading.
func Open(ctx context.Context, path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(errors.KindNotFound, err)
	}
	return open(ctx, path)
}

func open(ctx context.Context, path string) (*File, error) {
	db, err := database.OpenSQLite(ctx, path)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, err)
	}
	return &File{
		db:      db,
		path:    path,
		builder: database.NewBuilder(database.DriverSQLite),
	}, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Close() error {
	return f.db.Close()
}

func (f *File) createTables(ctx context.Context) error {
	arrays := f.builder.NewCreateTableBuilder().CreateTable(arraysTable).
		Define("name", "TEXT", "PRIMARY KEY").
		Define("entity", "TEXT", "NOT NULL").
		Define("dtype", "TEXT", "NOT NULL").
		Define("length", "INTEGER", "NOT NULL").
		Define("data", "BLOB")

	metadata := f.builder.NewCreateTableBuilder().CreateTable(metadataTable).
		Define("key", "TEXT", "PRIMARY KEY").
		Define("value", "TEXT", "NOT NULL")

	for _, ctb := range []*sqlbuilder.CreateTableBuilder{arrays, metadata} {
		query, args := ctb.Build()
		if _, err := f.db.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(errors.KindIO, err)
		}
	}
	return nil
}

func (f *File) WriteInt64s(ctx context.Context, name, entity string, values []int64) error {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[i*8:], uint64(v))
	}
	return f.write(ctx, name, entity, DTypeInt64, len(values), data)
}

func (f *File) WriteFloat64s(ctx context.Context, name, entity string, values []float64) error {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
	}
	return f.write(ctx, name, entity, DTypeFloat64, len(values), data)
}

func (f *File) write(ctx context.Context, name, entity string, dtype DType, length int, data []byte) error {
	exists, err := f.hasArray(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return errors.Newf(errors.KindConfiguration, "array %s written twice", name).AddColumn(name)
	}

	ib := f.builder.NewInsertBuilder()
	ib.InsertInto(arraysTable).
		Cols("name", "entity", "dtype", "length", "data").
		Values(name, entity, string(dtype), length, data)

	query, args := ib.Build()
	if _, err := f.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.KindIO, err).AddColumn(name)
	}
	return nil
}

func (f *File) hasArray(ctx context.Context, name string) (bool, error) {
	sb := f.builder.NewSelectBuilder()
	sb.Select("COUNT(*)").From(arraysTable).Where(sb.Equal("name", name))

	query, args := sb.Build()
	var count int
	if err := f.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, errors.Wrap(errors.KindIO, err).AddColumn(name)
	}
	return count > 0, nil
}

func (f *File) SetMetadata(ctx context.Context, key, value string) error {
	ib := f.builder.NewInsertBuilder()
	ib.ReplaceInto(metadataTable).
		Cols("key", "value").
		Values(key, value)

	query, args := ib.Build()
	if _, err := f.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	return nil
}

// Arrays lists stored arrays ordered by name.
func (f *File) Arrays(ctx context.Context) ([]ArrayInfo, error) {
	sb := f.builder.NewSelectBuilder()
	sb.Select("name", "entity", "dtype", "length").From(arraysTable).OrderBy("name")

	query, args := sb.Build()
	infos := []ArrayInfo{}
	if err := f.db.SelectContext(ctx, &infos, query, args...); err != nil {
		return nil, errors.Wrap(errors.KindIO, err)
	}
	return infos, nil
}

func (f *File) Names(ctx context.Context) ([]string, error) {
	infos, err := f.Arrays(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names, nil
}

func (f *File) Int64s(ctx context.Context, name string) ([]int64, error) {
	data, err := f.read(ctx, name, DTypeInt64)
	if err != nil {
		return nil, err
	}
	values := make([]int64, len(data)/8)
	for i := range values {
		values[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return values, nil
}

func (f *File) Float64s(ctx context.Context, name string) ([]float64, error) {
	data, err := f.read(ctx, name, DTypeFloat64)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(data)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return values, nil
}

func (f *File) read(ctx context.Context, name string, dtype DType) ([]byte, error) {
	sb := f.builder.NewSelectBuilder()
	sb.Select("dtype", "length", "data").From(arraysTable).Where(sb.Equal("name", name))

	query, args := sb.Build()
	var row struct {
		DType  DType  `db:"dtype"`
		Length int    `db:"length"`
		Data   []byte `db:"data"`
	}
	err := f.db.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.KindNotFound, "array not found").AddColumn(name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, err).AddColumn(name)
	}

	if row.DType != dtype {
		return nil, errors.Newf(errors.KindConfiguration, "array is %s, not %s", row.DType, dtype).AddColumn(name)
	}
	if len(row.Data) != row.Length*8 {
		return nil, errors.Newf(errors.KindIO, "array holds %d bytes, expected %d", len(row.Data), row.Length*8).AddColumn(name)
	}
	return row.Data, nil
}

func (f *File) Metadata(ctx context.Context) (map[string]string, error) {
	sb := f.builder.NewSelectBuilder()
	sb.Select("key", "value").From(metadataTable)

	query, args := sb.Build()
	rows, err := f.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, err)
	}
	defer rows.Close()

	metadata := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(errors.KindIO, err)
		}
		metadata[key] = value
	}
	return metadata, rows.Err()
}
