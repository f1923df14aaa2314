package models

import (
	"math"
	"strconv"

	"github.com/Ramsey-B/clover/pkg/errors"
)

type EntityKind string

const (
	EntityPerson    EntityKind = "person"
	EntityHousehold EntityKind = "household"
	EntitySPMUnit   EntityKind = "spm_unit"
)

func (e EntityKind) String() string {
	return string(e)
}

type ColumnType string

const (
	ColumnTypeInt    ColumnType = "int"
	ColumnTypeFloat  ColumnType = "float"
	ColumnTypeString ColumnType = "string"
)

// Column is a named, typed vector. Exactly one of the value slices is used,
// according to Type. Missing numeric values are stored as NaN in float columns.
type Column struct {
	Name    string
	Type    ColumnType
	Ints    []int64
	Floats  []float64
	Strings []string
}

func NewIntColumn(name string, values []int64) *Column {
	return &Column{Name: name, Type: ColumnTypeInt, Ints: values}
}

func NewFloatColumn(name string, values []float64) *Column {
	return &Column{Name: name, Type: ColumnTypeFloat, Floats: values}
}

func NewStringColumn(name string, values []string) *Column {
	return &Column{Name: name, Type: ColumnTypeString, Strings: values}
}

func (c *Column) Len() int {
	switch c.Type {
	case ColumnTypeInt:
		return len(c.Ints)
	case ColumnTypeFloat:
		return len(c.Floats)
	default:
		return len(c.Strings)
	}
}

// Value returns the raw cell value.
func (c *Column) Value(i int) any {
	switch c.Type {
	case ColumnTypeInt:
		return c.Ints[i]
	case ColumnTypeFloat:
		return c.Floats[i]
	default:
		return c.Strings[i]
	}
}

func (c *Column) Key(i int) (NativeKey, error) {
	key, err := NewNativeKey(c.Value(i))
	if err != nil {
		return "", errors.Wrap(errors.KindInvalidKey, err).AddColumn(c.Name)
	}
	return key, nil
}

// IsNumeric reports whether the column can be exported as a numeric array.
func (c *Column) IsNumeric() bool {
	return c.Type == ColumnTypeInt || c.Type == ColumnTypeFloat
}

// Float64s returns the column as floats. String columns are parsed; cells that
// do not parse become NaN.
func (c *Column) Float64s() []float64 {
	out := make([]float64, c.Len())
	switch c.Type {
	case ColumnTypeInt:
		for i, v := range c.Ints {
			out[i] = float64(v)
		}
	case ColumnTypeFloat:
		copy(out, c.Floats)
	default:
		for i, v := range c.Strings {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				f = math.NaN()
			}
			out[i] = f
		}
	}
	return out
}

// Int64s returns the column as integers. Float cells must be integral and
// string cells must parse as integers.
func (c *Column) Int64s() ([]int64, error) {
	out := make([]int64, c.Len())
	switch c.Type {
	case ColumnTypeInt:
		copy(out, c.Ints)
	case ColumnTypeFloat:
		for i, v := range c.Floats {
			if math.IsNaN(v) || v != math.Trunc(v) {
				return nil, errors.Newf(errors.KindSchemaDrift, "row %d holds non-integer value %v", i, v).AddColumn(c.Name)
			}
			out[i] = int64(v)
		}
	default:
		for i, v := range c.Strings {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, errors.Newf(errors.KindSchemaDrift, "row %d holds non-integer value %q", i, v).AddColumn(c.Name)
			}
			out[i] = n
		}
	}
	return out, nil
}

// Select returns a new column holding the given rows in order.
func (c *Column) Select(rows []int) *Column {
	out := &Column{Name: c.Name, Type: c.Type}
	switch c.Type {
	case ColumnTypeInt:
		out.Ints = make([]int64, len(rows))
		for i, r := range rows {
			out.Ints[i] = c.Ints[r]
		}
	case ColumnTypeFloat:
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = c.Floats[r]
		}
	default:
		out.Strings = make([]string, len(rows))
		for i, r := range rows {
			out.Strings[i] = c.Strings[r]
		}
	}
	return out
}

// Table holds the rows of one entity kind as equal-length columns.
type Table struct {
	Entity  EntityKind
	columns []*Column
	index   map[string]int
	rows    int
}

func NewTable(entity EntityKind) *Table {
	return &Table{
		Entity: entity,
		index:  map[string]int{},
		rows:   -1,
	}
}

func (t *Table) Len() int {
	if t.rows < 0 {
		return 0
	}
	return t.rows
}

// SetColumn adds a column, replacing any existing column of the same name.
func (t *Table) SetColumn(col *Column) error {
	if t.rows >= 0 && col.Len() != t.rows {
		return errors.Newf(errors.KindSchemaDrift, "column has %d rows, table has %d", col.Len(), t.rows).
			AddEntity(t.Entity.String()).
			AddColumn(col.Name)
	}
	t.rows = col.Len()

	if i, ok := t.index[col.Name]; ok {
		t.columns[i] = col
		return nil
	}
	t.index[col.Name] = len(t.columns)
	t.columns = append(t.columns, col)
	return nil
}

// Column returns the named column. A missing column is schema drift.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, errors.New(errors.KindSchemaDrift, "column not found").
			AddEntity(t.Entity.String()).
			AddColumn(name)
	}
	return t.columns[i], nil
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

func (t *Table) Columns() []*Column {
	return t.columns
}

func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.Name
	}
	return names
}

// Clone returns a table sharing column data with t. Setting columns on the
// clone leaves t untouched.
func (t *Table) Clone() *Table {
	out := NewTable(t.Entity)
	out.rows = t.rows
	for name, i := range t.index {
		out.index[name] = i
	}
	out.columns = append(out.columns, t.columns...)
	return out
}

// Filter returns a new table with the rows for which keep is true, in their
// original order.
func (t *Table) Filter(keep []bool) *Table {
	rows := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			rows = append(rows, i)
		}
	}

	out := NewTable(t.Entity)
	out.rows = len(rows)
	for _, col := range t.columns {
		out.index[col.Name] = len(out.columns)
		out.columns = append(out.columns, col.Select(rows))
	}
	return out
}
