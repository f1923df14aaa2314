package models

import (
	"math"
	"testing"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNativeKey(t *testing.T) {
	fromInt, err := NewNativeKey(int64(2019000012))
	require.NoError(t, err)
	fromFloat, err := NewNativeKey(2019000012.0)
	require.NoError(t, err)
	fromString, err := NewNativeKey(" 2019000012 ")
	require.NoError(t, err)

	assert.Equal(t, fromInt, fromFloat)
	assert.Equal(t, fromInt, fromString)

	n, err := fromInt.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(2019000012), n)

	textKey, err := NewNativeKey("2019HU0000012")
	require.NoError(t, err)
	_, err = textKey.Int64()
	assert.True(t, errors.IsKind(err, errors.KindInvalidKey))

	_, err = NewNativeKey(math.NaN())
	assert.True(t, errors.IsKind(err, errors.KindInvalidKey))
	_, err = NewNativeKey("  ")
	assert.Error(t, err)
	_, err = NewNativeKey(nil)
	assert.Error(t, err)
}

func TestNativeKeyFloatPrecision(t *testing.T) {
	key, err := NewNativeKey(float64(1<<53 - 1))
	require.NoError(t, err)
	assert.Equal(t, NativeKey("9007199254740991"), key)

	_, err = NewNativeKey(float64(1 << 53))
	assert.True(t, errors.IsKind(err, errors.KindInvalidKey))

	// both serials round to the same float64
	_, err = NewNativeKey(12345678901234567890.0)
	assert.True(t, errors.IsKind(err, errors.KindInvalidKey))

	key, err = NewNativeKey(2.5)
	require.NoError(t, err)
	assert.Equal(t, NativeKey("2.5"), key)
}

func TestFormatKeys(t *testing.T) {
	keys := []NativeKey{"a", "b", "c", "d"}
	assert.Equal(t, "a, b, c, d", FormatKeys(keys, 5))
	assert.Equal(t, "a, b, ... (2 more)", FormatKeys(keys, 2))
}

func TestTable(t *testing.T) {
	table := NewTable(EntityPerson)
	require.NoError(t, table.SetColumn(NewIntColumn("SPORDER", []int64{1, 2, 3})))
	require.NoError(t, table.SetColumn(NewFloatColumn("PWGTP", []float64{10, 20, 30})))
	assert.Equal(t, 3, table.Len())

	t.Run("rejects mismatched lengths", func(t *testing.T) {
		err := table.SetColumn(NewIntColumn("AGEP", []int64{1}))
		assert.True(t, errors.IsKind(err, errors.KindSchemaDrift))
	})

	t.Run("missing column is schema drift", func(t *testing.T) {
		_, err := table.Column("VEH")
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindSchemaDrift))
		assert.Equal(t, "entity 'person' -> column 'VEH': column not found", err.Error())
	})

	t.Run("replaces columns in place", func(t *testing.T) {
		require.NoError(t, table.SetColumn(NewIntColumn("SPORDER", []int64{4, 5, 6})))
		assert.Equal(t, []string{"SPORDER", "PWGTP"}, table.Names())
		col, err := table.Column("SPORDER")
		require.NoError(t, err)
		assert.Equal(t, []int64{4, 5, 6}, col.Ints)
	})

	t.Run("filter keeps order", func(t *testing.T) {
		filtered := table.Filter([]bool{true, false, true})
		assert.Equal(t, 2, filtered.Len())
		col, err := filtered.Column("PWGTP")
		require.NoError(t, err)
		assert.Equal(t, []float64{10, 30}, col.Floats)
		assert.Equal(t, 3, table.Len())
	})
}

func TestColumnConversions(t *testing.T) {
	floats := NewFloatColumn("VEH", []float64{1, 2, math.NaN()})
	_, err := floats.Int64s()
	assert.True(t, errors.IsKind(err, errors.KindSchemaDrift))

	ints, err := NewFloatColumn("SPM_ID", []float64{7, 8}).Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, ints)

	parsed := NewStringColumn("X", []string{"1.5", "oops"}).Float64s()
	assert.Equal(t, 1.5, parsed[0])
	assert.True(t, math.IsNaN(parsed[1]))

	assert.Equal(t, []float64{3, 4}, NewIntColumn("Y", []int64{3, 4}).Float64s())
}

func TestPopulationCounts(t *testing.T) {
	person := NewTable(EntityPerson)
	require.NoError(t, person.SetColumn(NewIntColumn("person_id", []int64{1, 2})))
	household := NewTable(EntityHousehold)
	require.NoError(t, household.SetColumn(NewIntColumn("household_id", []int64{0})))

	pop := &Population{Person: person, Household: household, SPMUnit: NewTable(EntitySPMUnit)}
	assert.Equal(t, map[EntityKind]int{
		EntityPerson:    2,
		EntityHousehold: 1,
		EntitySPMUnit:   0,
	}, pop.Counts())
}
