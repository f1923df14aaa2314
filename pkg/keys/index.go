package keys

import (
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

// MaxPersonOrder bounds the within-household person order. person_id packs
// the order into the last two decimal digits, so orders must stay below it.
const MaxPersonOrder = 100

// PersonID packs a household id and a within-household order into a person id.
func PersonID(householdID, order int64) (int64, error) {
	if order < 0 || order >= MaxPersonOrder {
		return 0, errors.Newf(errors.KindInvalidKey, "person order %d is outside [0, %d)", order, MaxPersonOrder)
	}
	return householdID*MaxPersonOrder + order, nil
}

// HouseholdIndex maps native household serials to dense household ids.
// household_id is the row position; when a serial repeats, the last row wins.
type HouseholdIndex struct {
	ids        map[models.NativeKey]int64
	duplicates []models.NativeKey
}

func NewHouseholdIndex(serials []models.NativeKey) *HouseholdIndex {
	index := &HouseholdIndex{
		ids: make(map[models.NativeKey]int64, len(serials)),
	}
	for position, serial := range serials {
		if _, ok := index.ids[serial]; ok {
			index.duplicates = append(index.duplicates, serial)
		}
		index.ids[serial] = int64(position)
	}
	return index
}

func (ix *HouseholdIndex) Lookup(serial models.NativeKey) (int64, bool) {
	id, ok := ix.ids[serial]
	return id, ok
}

func (ix *HouseholdIndex) Len() int {
	return len(ix.ids)
}

// Duplicates lists serials seen more than once, once per extra occurrence.
func (ix *HouseholdIndex) Duplicates() []models.NativeKey {
	return ix.duplicates
}
