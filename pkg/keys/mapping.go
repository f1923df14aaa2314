package keys

import (
	"github.com/Ramsey-B/clover/pkg/errors"
)

// UnitMapping maps an SPM unit id into the tax unit and family id spaces.
// Surveys that record tax units or families separately supply their own
// mapping; callers only ever go through this interface.
type UnitMapping interface {
	Name() string
	TaxUnitID(spmUnitID int64) int64
	FamilyID(spmUnitID int64) int64
}

// SPMUnitMapping is the degenerate mapping for surveys that do not model tax
// units or families: each SPM unit stands in for exactly one of each, with the
// same id.
type SPMUnitMapping struct{}

func (SPMUnitMapping) Name() string {
	return "spm_unit"
}

func (SPMUnitMapping) TaxUnitID(spmUnitID int64) int64 {
	return spmUnitID
}

func (SPMUnitMapping) FamilyID(spmUnitID int64) int64 {
	return spmUnitID
}

// MappingByName resolves a mapping named in a dataset definition.
func MappingByName(name string) (UnitMapping, error) {
	switch name {
	case "", "spm_unit":
		return SPMUnitMapping{}, nil
	default:
		return nil, errors.Newf(errors.KindConfiguration, "unknown unit mapping %q", name)
	}
}
