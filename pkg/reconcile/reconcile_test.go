package reconcile

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fields"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
)

func buildPopulation(t *testing.T, households []int64, personHouseholds []int64, spmUnits []int64) *models.Population {
	t.Helper()

	household := models.NewTable(models.EntityHousehold)
	require.NoError(t, household.SetColumn(models.NewIntColumn(fields.HouseholdID, households)))
	weights := make([]float64, len(households))
	for i := range weights {
		weights[i] = float64(10 * (i + 1))
	}
	require.NoError(t, household.SetColumn(models.NewFloatColumn("WGTP", weights)))

	personIDs := make([]int64, len(personHouseholds))
	personUnits := make([]int64, len(personHouseholds))
	for i, hh := range personHouseholds {
		personIDs[i] = hh*100 + int64(i%100)
		personUnits[i] = hh
	}
	person := models.NewTable(models.EntityPerson)
	require.NoError(t, person.SetColumn(models.NewIntColumn(fields.PersonID, personIDs)))
	require.NoError(t, person.SetColumn(models.NewIntColumn(fields.PersonHouseholdID, personHouseholds)))
	require.NoError(t, person.SetColumn(models.NewIntColumn(fields.PersonSPMUnitID, personUnits)))

	spmUnit := models.NewTable(models.EntitySPMUnit)
	require.NoError(t, spmUnit.SetColumn(models.NewIntColumn(fields.SPMUnitID, spmUnits)))

	return &models.Population{Dataset: "acs", Year: 2019, Person: person, Household: household, SPMUnit: spmUnit}
}

func ints(t *testing.T, table *models.Table, name string) []int64 {
	t.Helper()
	col, err := table.Column(name)
	require.NoError(t, err)
	return col.Ints
}

func TestReconcile(t *testing.T) {
	r := NewReconciler(logging.Discard())

	t.Run("drops unreferenced households and orphaned persons", func(t *testing.T) {
		// household 0 ("A") has no persons, person in household 5 ("B") has no household
		pop := buildPopulation(t, []int64{0, 1, 2}, []int64{1, 5, 2, 1}, []int64{0, 1, 2})

		result, err := r.Reconcile(context.Background(), pop)
		require.NoError(t, err)

		assert.Equal(t, []int64{1, 2}, ints(t, result.Population.Household, fields.HouseholdID))
		assert.Equal(t, []int64{1, 2, 1}, ints(t, result.Population.Person, fields.PersonHouseholdID))
		assert.Equal(t, 1, result.DroppedHouseholds)
		assert.Equal(t, 1, result.DroppedPersons)
		assert.Equal(t, 1, result.OrphanedSPMUnits)
		assert.Equal(t, map[models.EntityKind]int{
			models.EntityHousehold: 1,
			models.EntityPerson:    1,
			models.EntitySPMUnit:   0,
		}, result.Dropped())

		weights, err := result.Population.Household.Column("WGTP")
		require.NoError(t, err)
		assert.Equal(t, []float64{20, 30}, weights.Floats)
	})

	t.Run("closed population passes through", func(t *testing.T) {
		pop := buildPopulation(t, []int64{0, 1}, []int64{0, 1, 1}, []int64{0, 1})

		result, err := r.Reconcile(context.Background(), pop)
		require.NoError(t, err)
		assert.Equal(t, 0, result.DroppedHouseholds)
		assert.Equal(t, 0, result.DroppedPersons)
		assert.Equal(t, 3, result.Population.Person.Len())
		assert.Same(t, pop.SPMUnit, result.Population.SPMUnit)
	})

	t.Run("leaves the input population untouched", func(t *testing.T) {
		pop := buildPopulation(t, []int64{0, 1, 2}, []int64{2}, []int64{2})

		result, err := r.Reconcile(context.Background(), pop)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Population.Household.Len())
		assert.Equal(t, 3, pop.Household.Len())
	})

	t.Run("missing id column is schema drift", func(t *testing.T) {
		pop := buildPopulation(t, []int64{0}, []int64{0}, []int64{0})
		pop.Person = models.NewTable(models.EntityPerson)

		_, err := r.Reconcile(context.Background(), pop)
		assert.True(t, errors.IsKind(err, errors.KindSchemaDrift))
	})
}

func TestReconcileClosure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	r := NewReconciler(logging.Discard())

	properties.Property("every person has a household and every household a person", prop.ForAll(
		func(householdCount int, personHouseholds []int64) bool {
			households := make([]int64, householdCount)
			for i := range households {
				households[i] = int64(i)
			}
			pop := buildPopulation(t, households, personHouseholds, []int64{})

			result, err := r.Reconcile(context.Background(), pop)
			if err != nil {
				return false
			}

			kept := idSet(ints(t, result.Population.Household, fields.HouseholdID))
			referenced := idSet(ints(t, result.Population.Person, fields.PersonHouseholdID))
			if len(kept) != len(referenced) {
				return false
			}
			for id := range referenced {
				if !kept[id] {
					return false
				}
			}
			return result.DroppedHouseholds+result.Population.Household.Len() == householdCount &&
				result.DroppedPersons+result.Population.Person.Len() == len(personHouseholds)
		},
		gen.IntRange(0, 20),
		gen.SliceOf(gen.Int64Range(0, 30)),
	))

	properties.TestingRun(t)
}
