// Package keys derives dense integer identifiers for households, persons and
// SPM units from a survey's native keys.
//
// household_id is the household's row position. Persons find their household
// through an explicit serial -> household_id table, and person_id packs the
// household id and the person's order:
//
//	person_id = household_id*100 + order    (0 <= order < 100)
//
// SPM unit ids pass through from the survey. Tax unit and family ids come from
// the SPM unit id through a UnitMapping.
package keys

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fields"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// number of offending keys quoted in error messages
const reportedKeys = 5

var validate = validator.New(validator.WithRequiredStructEnabled())

// KeySpec names the raw columns holding a survey's native keys.
type KeySpec struct {
	HouseholdSerial string `json:"household_serial" yaml:"household_serial" validate:"required"` // household table
	PersonSerial    string `json:"person_serial" yaml:"person_serial" validate:"required"`       // person table, matches HouseholdSerial
	PersonOrder     string `json:"person_order" yaml:"person_order" validate:"required"`         // person table
	PersonSPMUnit   string `json:"person_spm_unit" yaml:"person_spm_unit" validate:"required"`   // person table
	SPMUnit         string `json:"spm_unit" yaml:"spm_unit" validate:"required"`                 // spm_unit table
}

func (s KeySpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errors.Wrap(errors.KindConfiguration, err)
	}
	return nil
}

type Deriver struct {
	mapping UnitMapping
	logger  ectologger.Logger
}

func NewDeriver(mapping UnitMapping, logger ectologger.Logger) *Deriver {
	if mapping == nil {
		mapping = SPMUnitMapping{}
	}
	return &Deriver{
		mapping: mapping,
		logger:  logger,
	}
}

// Derive adds the identifier columns to copies of the extract's tables. A
// person whose serial matches no household fails the whole derivation.
func (d *Deriver) Derive(ctx context.Context, dataset string, extract *models.RawExtract, spec KeySpec) (*models.Population, error) {
	ctx, span := tracing.StartSpan(ctx, "keys.Deriver.Derive")
	defer span.End()

	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(errors.KindConfiguration, err).AddDataset(dataset).AddYear(extract.Year)
	}

	pop := &models.Population{
		Dataset:   dataset,
		Year:      extract.Year,
		Person:    extract.Person.Clone(),
		Household: extract.Household.Clone(),
		SPMUnit:   extract.SPMUnit.Clone(),
	}

	withContext := func(err error) error {
		return errors.Wrap(errors.KindInvalidKey, err).AddDataset(dataset).AddYear(extract.Year)
	}

	index, err := d.deriveHouseholds(ctx, pop.Household, spec)
	if err != nil {
		return nil, withContext(err)
	}
	if err := d.derivePersons(pop.Person, index, spec); err != nil {
		return nil, withContext(err)
	}
	if err := d.deriveSPMUnits(ctx, pop.Person, pop.SPMUnit, spec); err != nil {
		return nil, withContext(err)
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset":      dataset,
		"year":         extract.Year,
		"households":   pop.Household.Len(),
		"persons":      pop.Person.Len(),
		"spm_units":    pop.SPMUnit.Len(),
		"unit_mapping": d.mapping.Name(),
	}).Info("Derived entity keys")

	return pop, nil
}

func (d *Deriver) deriveHouseholds(ctx context.Context, household *models.Table, spec KeySpec) (*HouseholdIndex, error) {
	serials, err := nativeKeys(household, spec.HouseholdSerial)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, household.Len())
	for i := range ids {
		ids[i] = int64(i)
	}
	if err := household.SetColumn(models.NewIntColumn(fields.HouseholdID, ids)); err != nil {
		return nil, err
	}

	index := NewHouseholdIndex(serials)
	if duplicates := index.Duplicates(); len(duplicates) > 0 {
		d.logger.WithContext(ctx).WithFields(map[string]any{
			"duplicates": len(duplicates),
			"serials":    models.FormatKeys(duplicates, reportedKeys),
		}).Warn("Duplicate household serials, the last occurrence keeps the serial")
	}
	return index, nil
}

func (d *Deriver) derivePersons(person *models.Table, index *HouseholdIndex, spec KeySpec) error {
	serials, err := nativeKeys(person, spec.PersonSerial)
	if err != nil {
		return err
	}

	householdIDs := make([]int64, len(serials))
	var missing []models.NativeKey
	for i, serial := range serials {
		id, ok := index.Lookup(serial)
		if !ok {
			missing = append(missing, serial)
			continue
		}
		householdIDs[i] = id
	}
	if len(missing) > 0 {
		return errors.Newf(errors.KindReferentialDefect, "%d persons reference missing households: %s",
			len(missing), models.FormatKeys(missing, reportedKeys)).
			AddEntity(models.EntityPerson.String()).
			AddColumn(spec.PersonSerial)
	}

	orderColumn, err := person.Column(spec.PersonOrder)
	if err != nil {
		return err
	}
	orders, err := orderColumn.Int64s()
	if err != nil {
		return errors.New(errors.KindInvalidKey, "person order must be an integer").
			AddEntity(models.EntityPerson.String()).
			AddColumn(spec.PersonOrder)
	}

	personIDs := make([]int64, len(orders))
	seen := make(map[int64]bool, len(orders))
	for i, order := range orders {
		id, err := PersonID(householdIDs[i], order)
		if err != nil {
			return errors.Wrap(errors.KindInvalidKey, err).AddEntity(models.EntityPerson.String()).AddColumn(spec.PersonOrder)
		}
		if seen[id] {
			return errors.Newf(errors.KindInvalidKey, "person_id %d is assigned twice (household serial %s, order %d)", id, serials[i], order).
				AddEntity(models.EntityPerson.String())
		}
		seen[id] = true
		personIDs[i] = id
	}

	if err := person.SetColumn(models.NewIntColumn(fields.PersonID, personIDs)); err != nil {
		return err
	}
	return person.SetColumn(models.NewIntColumn(fields.PersonHouseholdID, householdIDs))
}

func (d *Deriver) deriveSPMUnits(ctx context.Context, person, spmUnit *models.Table, spec KeySpec) error {
	personUnits, err := intKeys(person, spec.PersonSPMUnit)
	if err != nil {
		return err
	}
	units, err := intKeys(spmUnit, spec.SPMUnit)
	if err != nil {
		return err
	}

	known := make(map[int64]bool, len(units))
	for _, id := range units {
		known[id] = true
	}
	unknown := 0
	for _, id := range personUnits {
		if !known[id] {
			unknown++
		}
	}
	if unknown > 0 {
		d.logger.WithContext(ctx).WithField("persons", unknown).Warn("Persons reference SPM units missing from the SPM unit table")
	}

	for _, col := range d.unitColumns(personUnits, fields.PersonSPMUnitID, fields.PersonTaxUnitID, fields.PersonFamilyID) {
		if err := person.SetColumn(col); err != nil {
			return err
		}
	}
	for _, col := range d.unitColumns(units, fields.SPMUnitID, fields.TaxUnitID, fields.FamilyID) {
		if err := spmUnit.SetColumn(col); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deriver) unitColumns(spmUnitIDs []int64, spmName, taxUnitName, familyName string) []*models.Column {
	taxUnits := make([]int64, len(spmUnitIDs))
	families := make([]int64, len(spmUnitIDs))
	for i, id := range spmUnitIDs {
		taxUnits[i] = d.mapping.TaxUnitID(id)
		families[i] = d.mapping.FamilyID(id)
	}
	return []*models.Column{
		models.NewIntColumn(spmName, spmUnitIDs),
		models.NewIntColumn(taxUnitName, taxUnits),
		models.NewIntColumn(familyName, families),
	}
}

func nativeKeys(table *models.Table, column string) ([]models.NativeKey, error) {
	col, err := table.Column(column)
	if err != nil {
		return nil, err
	}

	keys := make([]models.NativeKey, col.Len())
	for i := range keys {
		key, err := col.Key(i)
		if err != nil {
			return nil, errors.Wrap(errors.KindInvalidKey, err).AddEntity(table.Entity.String())
		}
		keys[i] = key
	}
	return keys, nil
}

func intKeys(table *models.Table, column string) ([]int64, error) {
	keys, err := nativeKeys(table, column)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(keys))
	for i, key := range keys {
		id, err := key.Int64()
		if err != nil {
			return nil, errors.Wrap(errors.KindInvalidKey, err).AddEntity(table.Entity.String()).AddColumn(column)
		}
		ids[i] = id
	}
	return ids, nil
}
