package rawstore

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Ramsey-B/clover/pkg/models"
)

// columnBuilder collects scanned cells into a typed column. Integer columns
// holding NULLs are widened to float with NaN for the missing cells.
type columnBuilder struct {
	name    string
	typ     models.ColumnType
	ints    []int64
	floats  []float64
	strings []string
	nulls   []int
}

func newColumnBuilder(name string, typ models.ColumnType) *columnBuilder {
	return &columnBuilder{name: name, typ: typ}
}

func (b *columnBuilder) append(value any) error {
	switch b.typ {
	case models.ColumnTypeInt:
		if value == nil {
			b.nulls = append(b.nulls, len(b.ints))
			b.ints = append(b.ints, 0)
			return nil
		}
		n, err := toInt64(value)
		if err != nil {
			return fmt.Errorf("column %s: %w", b.name, err)
		}
		b.ints = append(b.ints, n)
	case models.ColumnTypeFloat:
		if value == nil {
			b.floats = append(b.floats, math.NaN())
			return nil
		}
		f, err := toFloat64(value)
		if err != nil {
			return fmt.Errorf("column %s: %w", b.name, err)
		}
		b.floats = append(b.floats, f)
	default:
		b.strings = append(b.strings, toString(value))
	}
	return nil
}

func (b *columnBuilder) build() *models.Column {
	switch b.typ {
	case models.ColumnTypeInt:
		if len(b.nulls) == 0 {
			return models.NewIntColumn(b.name, nonNil(b.ints))
		}
		floats := make([]float64, len(b.ints))
		for i, v := range b.ints {
			floats[i] = float64(v)
		}
		for _, i := range b.nulls {
			floats[i] = math.NaN()
		}
		return models.NewFloatColumn(b.name, floats)
	case models.ColumnTypeFloat:
		return models.NewFloatColumn(b.name, nonNil(b.floats))
	default:
		return models.NewStringColumn(b.name, nonNil(b.strings))
	}
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("non-integer value %v", v)
		}
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value type %T", value)
	}
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unexpected value type %T", value)
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
