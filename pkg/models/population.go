package models

// RawExtract is the survey's raw tables for one year, as delivered by the raw
// survey provider.
type RawExtract struct {
	Survey    string
	Year      int
	Person    *Table
	Household *Table
	SPMUnit   *Table
}

// Population is the keyed entity tables for one (dataset, year). After
// reconciliation every person references a household that exists and every
// household has at least one person.
type Population struct {
	Dataset   string
	Year      int
	Person    *Table
	Household *Table
	SPMUnit   *Table
}

func (p *Population) Table(entity EntityKind) *Table {
	switch entity {
	case EntityPerson:
		return p.Person
	case EntityHousehold:
		return p.Household
	case EntitySPMUnit:
		return p.SPMUnit
	default:
		return nil
	}
}

// Counts returns the row count per entity.
func (p *Population) Counts() map[EntityKind]int {
	counts := map[EntityKind]int{}
	for _, entity := range []EntityKind{EntityPerson, EntityHousehold, EntitySPMUnit} {
		if table := p.Table(entity); table != nil {
			counts[entity] = table.Len()
		}
	}
	return counts
}
