// Package reconcile enforces the household/person referential invariant on a
// keyed population: every household has at least one person and every person
// has a household.
package reconcile

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fields"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Result struct {
	Population        *models.Population
	DroppedHouseholds int
	DroppedPersons    int
	// SPM units no surviving person belongs to. They are kept and only counted.
	OrphanedSPMUnits int
}

// Dropped returns the dropped row count per entity.
func (r *Result) Dropped() map[models.EntityKind]int {
	return map[models.EntityKind]int{
		models.EntityHousehold: r.DroppedHouseholds,
		models.EntityPerson:    r.DroppedPersons,
		models.EntitySPMUnit:   0,
	}
}

type Reconciler struct {
	logger ectologger.Logger
}

func NewReconciler(logger ectologger.Logger) *Reconciler {
	return &Reconciler{
		logger: logger,
	}
}

// Reconcile filters households against the original person set, then persons
// against the filtered household set. One pass each way is enough for a
// single many-to-one relationship.
func (r *Reconciler) Reconcile(ctx context.Context, pop *models.Population) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Reconciler.Reconcile")
	defer span.End()

	withContext := func(err error) error {
		return errors.Wrap(errors.KindSchemaDrift, err).AddDataset(pop.Dataset).AddYear(pop.Year)
	}

	personHouseholds, err := idColumn(pop.Person, fields.PersonHouseholdID)
	if err != nil {
		return nil, withContext(err)
	}
	households, err := idColumn(pop.Household, fields.HouseholdID)
	if err != nil {
		return nil, withContext(err)
	}

	referenced := idSet(personHouseholds)
	keepHouseholds := make([]bool, len(households))
	for i, id := range households {
		keepHouseholds[i] = referenced[id]
	}
	household := pop.Household.Filter(keepHouseholds)

	surviving := make(map[int64]bool, household.Len())
	for i, id := range households {
		if keepHouseholds[i] {
			surviving[id] = true
		}
	}
	keepPersons := make([]bool, len(personHouseholds))
	for i, id := range personHouseholds {
		keepPersons[i] = surviving[id]
	}
	person := pop.Person.Filter(keepPersons)

	result := &Result{
		Population: &models.Population{
			Dataset:   pop.Dataset,
			Year:      pop.Year,
			Person:    person,
			Household: household,
			SPMUnit:   pop.SPMUnit,
		},
		DroppedHouseholds: pop.Household.Len() - household.Len(),
		DroppedPersons:    pop.Person.Len() - person.Len(),
	}

	orphaned, err := orphanedSPMUnits(person, pop.SPMUnit)
	if err != nil {
		return nil, withContext(err)
	}
	result.OrphanedSPMUnits = orphaned

	logger := r.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset":            pop.Dataset,
		"year":               pop.Year,
		"dropped_households": result.DroppedHouseholds,
		"dropped_persons":    result.DroppedPersons,
		"orphaned_spm_units": result.OrphanedSPMUnits,
	})
	if result.DroppedHouseholds > 0 || result.DroppedPersons > 0 {
		logger.Warn("Dropped rows without a matching household or person")
	} else {
		logger.Debug("Population already referentially closed")
	}

	return result, nil
}

func orphanedSPMUnits(person, spmUnit *models.Table) (int, error) {
	if spmUnit == nil || !spmUnit.HasColumn(fields.SPMUnitID) {
		return 0, nil
	}
	personUnits, err := idColumn(person, fields.PersonSPMUnitID)
	if err != nil {
		return 0, err
	}
	units, err := idColumn(spmUnit, fields.SPMUnitID)
	if err != nil {
		return 0, err
	}

	used := idSet(personUnits)
	orphaned := 0
	for _, id := range units {
		if !used[id] {
			orphaned++
		}
	}
	return orphaned, nil
}

func idColumn(table *models.Table, name string) ([]int64, error) {
	col, err := table.Column(name)
	if err != nil {
		return nil, err
	}
	return col.Int64s()
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
