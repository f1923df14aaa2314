package fields

import "github.com/Ramsey-B/clover/pkg/models"

// Derived identifier columns. The key deriver writes these into the entity
// tables under the same names they carry in the output file.
const (
	PersonID          = "person_id"
	PersonHouseholdID = "person_household_id"
	PersonSPMUnitID   = "person_spm_unit_id"
	PersonTaxUnitID   = "person_tax_unit_id"
	PersonFamilyID    = "person_family_id"
	HouseholdID       = "household_id"
	SPMUnitID         = "spm_unit_id"
	TaxUnitID         = "tax_unit_id"
	FamilyID          = "family_id"
)

// IdentifierFields is the id contract every canonical file carries.
func IdentifierFields() Fields {
	return Fields{
		{ID: PersonID, Name: "Person ID", Entity: models.EntityPerson, Source: PersonID, Type: TypeInt},
		{ID: PersonHouseholdID, Name: "Person household ID", Entity: models.EntityPerson, Source: PersonHouseholdID, Type: TypeInt},
		{ID: PersonSPMUnitID, Name: "Person SPM unit ID", Entity: models.EntityPerson, Source: PersonSPMUnitID, Type: TypeInt},
		{ID: PersonTaxUnitID, Name: "Person tax unit ID", Entity: models.EntityPerson, Source: PersonTaxUnitID, Type: TypeInt},
		{ID: PersonFamilyID, Name: "Person family ID", Entity: models.EntityPerson, Source: PersonFamilyID, Type: TypeInt},
		{ID: HouseholdID, Name: "Household ID", Entity: models.EntityHousehold, Source: HouseholdID, Type: TypeInt},
		{ID: SPMUnitID, Name: "SPM unit ID", Entity: models.EntitySPMUnit, Source: SPMUnitID, Type: TypeInt},
		{ID: TaxUnitID, Name: "Tax unit ID", Entity: models.EntitySPMUnit, Source: TaxUnitID, Type: TypeInt},
		{ID: FamilyID, Name: "Family ID", Entity: models.EntitySPMUnit, Source: FamilyID, Type: TypeInt},
	}
}
