package rawstore

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	source := t.TempDir()
	importer := NewImporter(ImporterConfig{SourceFolder: source}, testLogger())
	return NewStore(t.TempDir(), importer, testLogger()), source
}

func TestGenerateAndLoad(t *testing.T) {
	ctx := context.Background()
	store, source := newTestStore(t)

	writeFile(t, filepath.Join(source, "acs", "2019", "person.csv"),
		"SERIALNO,SPORDER,PWGTP,SPM_ID,SPM_RESOURCES,SPM_POVTHRESHOLD,AGEP\n"+
			"2019HU01,1,10.5,100,50000,26000,40\n"+
			"2019HU01,2,11,100,50000,26000,\n"+
			"2019HU02,1,12,200,20000,13000,71\n")
	writeFile(t, filepath.Join(source, "acs", "2019", "household.csv"),
		"\ufeffSERIALNO,WGTP,VEH\n"+
			"2019HU01,30,2\n"+
			"2019HU02,40,\n")

	assert.False(t, store.Has("acs", 2019))
	require.NoError(t, store.Generate(ctx, "acs", 2019))
	assert.True(t, store.Has("acs", 2019))

	years, err := store.Years("acs")
	require.NoError(t, err)
	assert.Equal(t, []int{2019}, years)

	handle, err := store.Open(ctx, "acs", 2019)
	require.NoError(t, err)
	defer handle.Close()

	extract, err := handle.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acs", extract.Survey)
	assert.Equal(t, 2019, extract.Year)
	assert.Equal(t, 3, extract.Person.Len())
	assert.Equal(t, 2, extract.Household.Len())

	t.Run("keeps raw column names and types", func(t *testing.T) {
		serial, err := extract.Person.Column("SERIALNO")
		require.NoError(t, err)
		assert.Equal(t, models.ColumnTypeString, serial.Type)
		assert.Equal(t, []string{"2019HU01", "2019HU01", "2019HU02"}, serial.Strings)

		order, err := extract.Person.Column("SPORDER")
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 1}, order.Ints)

		weight, err := extract.Person.Column("PWGTP")
		require.NoError(t, err)
		assert.Equal(t, []float64{10.5, 11, 12}, weight.Floats)
	})

	t.Run("integer columns with gaps become float", func(t *testing.T) {
		age, err := extract.Person.Column("AGEP")
		require.NoError(t, err)
		require.Equal(t, models.ColumnTypeFloat, age.Type)
		assert.Equal(t, 40.0, age.Floats[0])
		assert.True(t, math.IsNaN(age.Floats[1]))

		vehicles, err := extract.Household.Column("VEH")
		require.NoError(t, err)
		assert.True(t, math.IsNaN(vehicles.Floats[1]))
	})

	t.Run("derives spm units from persons", func(t *testing.T) {
		assert.Equal(t, []string{"SPM_ID", "SPM_RESOURCES", "SPM_POVTHRESHOLD"}, extract.SPMUnit.Names())
		ids, err := extract.SPMUnit.Column("SPM_ID")
		require.NoError(t, err)
		assert.Equal(t, []int64{100, 200}, ids.Ints)
	})
}

func TestGenerateKeepsLongSerialsDistinct(t *testing.T) {
	ctx := context.Background()
	store, source := newTestStore(t)

	dir := filepath.Join(source, "acs", "2021")
	writeFile(t, filepath.Join(dir, "person.csv"),
		"SERIALNO,SPORDER,SPM_ID\n"+
			"12345678901234567890,1,1\n"+
			"12345678901234567891,1,2\n")
	writeFile(t, filepath.Join(dir, "household.csv"),
		"SERIALNO,WGTP\n"+
			"12345678901234567890,10\n"+
			"12345678901234567891,20\n")

	require.NoError(t, store.Generate(ctx, "acs", 2021))

	handle, err := store.Open(ctx, "acs", 2021)
	require.NoError(t, err)
	defer handle.Close()

	extract, err := handle.Load(ctx)
	require.NoError(t, err)

	for _, table := range []*models.Table{extract.Household, extract.Person} {
		serial, err := table.Column("SERIALNO")
		require.NoError(t, err)
		require.Equal(t, models.ColumnTypeString, serial.Type)
		assert.Equal(t, []string{"12345678901234567890", "12345678901234567891"}, serial.Strings)
	}
}

func TestInferTypes(t *testing.T) {
	table := &csvTable{
		header: []string{"int", "float", "long", "mixed", "text", "empty"},
		records: [][]string{
			{"1", "1.50", "12345678901234567890", "12345678901234567", "HU01", ""},
			{"-2", "2", "12345678901234567891", "1.5", "7", ""},
			{"", "1e3", "", "", "", ""},
		},
	}

	assert.Equal(t, []models.ColumnType{
		models.ColumnTypeInt,
		models.ColumnTypeFloat,
		models.ColumnTypeString,
		models.ColumnTypeString,
		models.ColumnTypeString,
		models.ColumnTypeInt,
	}, table.inferTypes())
}

func TestExactFloat(t *testing.T) {
	assert.True(t, exactFloat("26000"))
	assert.True(t, exactFloat("0.000125"))
	assert.True(t, exactFloat("-1.5e10"))
	assert.True(t, exactFloat("100000000000000000000000"))
	assert.True(t, exactFloat("123456789012345"))
	assert.False(t, exactFloat("1234567890123456"))
	assert.False(t, exactFloat("12345678901234567890"))
	assert.False(t, exactFloat("NaN"))
	assert.False(t, exactFloat("Inf"))
	assert.False(t, exactFloat("0x1p-2"))
	assert.False(t, exactFloat("HU01"))
}

func TestInsertBatchSize(t *testing.T) {
	assert.Equal(t, 10000, insertBatchSize(3))
	assert.Equal(t, 1, insertBatchSize(maxInsertVariables))
	assert.Equal(t, 1, insertBatchSize(maxInsertVariables+1))
}

func TestGenerateUsesSPMUnitFile(t *testing.T) {
	ctx := context.Background()
	store, source := newTestStore(t)

	dir := filepath.Join(source, "cps", "2020")
	writeFile(t, filepath.Join(dir, "person.csv"), "PH_SEQ,A_LINENO,SPM_ID\n1,1,7\n")
	writeFile(t, filepath.Join(dir, "household.csv"), "H_SEQ,HSUP_WGT\n1,99.5\n")
	writeFile(t, filepath.Join(dir, "spm_unit.csv"), "SPM_ID,SPM_RESOURCES,SPM_POVTHRESHOLD,SPM_NUMPER\n7,1000,2000,1\n")

	require.NoError(t, store.Generate(ctx, "cps", 2020))

	handle, err := store.Open(ctx, "cps", 2020)
	require.NoError(t, err)
	defer handle.Close()

	extract, err := handle.Load(ctx)
	require.NoError(t, err)
	assert.True(t, extract.SPMUnit.HasColumn("SPM_NUMPER"))
}

func TestGenerateMissingSource(t *testing.T) {
	ctx := context.Background()
	store, source := newTestStore(t)

	err := store.Generate(ctx, "acs", 2018)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindMissingUpstream))
	assert.False(t, store.Has("acs", 2018))

	t.Run("missing household file", func(t *testing.T) {
		writeFile(t, filepath.Join(source, "acs", "2017", "person.csv"), "SERIALNO,SPORDER,SPM_ID\n1,1,1\n")
		err := store.Generate(ctx, "acs", 2017)
		assert.True(t, errors.IsKind(err, errors.KindMissingUpstream))
		assert.False(t, store.Has("acs", 2017))
	})

	t.Run("no spm key to derive from", func(t *testing.T) {
		writeFile(t, filepath.Join(source, "acs", "2016", "person.csv"), "SERIALNO,SPORDER\n1,1\n")
		writeFile(t, filepath.Join(source, "acs", "2016", "household.csv"), "SERIALNO\n1\n")
		err := store.Generate(ctx, "acs", 2016)
		assert.Error(t, err)
		assert.False(t, store.Has("acs", 2016))
	})

	entries, err := os.ReadDir(filepath.Dir(store.Path("acs", 2019)))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreWithoutImporter(t *testing.T) {
	store := NewStore(t.TempDir(), nil, testLogger())

	err := store.Generate(context.Background(), "acs", 2019)
	assert.True(t, errors.IsKind(err, errors.KindMissingUpstream))

	_, err = store.Open(context.Background(), "acs", 2019)
	assert.True(t, errors.IsKind(err, errors.KindMissingUpstream))

	assert.NoError(t, store.Remove("acs", 2019))
}
