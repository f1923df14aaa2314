package fields

import (
	"testing"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetField(t *testing.T) {
	fields := Fields{
		{ID: "person_weight", Entity: models.EntityPerson, Source: "PWGTP", Type: TypeFloat},
		{ID: "household_weight", Entity: models.EntityHousehold, Source: "WGTP", Type: TypeFloat},
	}

	field, err := fields.GetField("household_weight")
	assert.NoError(t, err)
	assert.Equal(t, "WGTP", field.Source)

	_, err = fields.GetField("poverty_threshold")
	assert.Error(t, err)
	assert.Equal(t, "column 'poverty_threshold': field not found", err.Error())
}

func TestForEntity(t *testing.T) {
	ids := IdentifierFields().ForEntity(models.EntitySPMUnit).IDs()
	assert.Equal(t, []string{SPMUnitID, TaxUnitID, FamilyID}, ids)
}

func TestValidate(t *testing.T) {
	t.Run("identifier fields are valid", func(t *testing.T) {
		assert.NoError(t, IdentifierFields().Validate())
	})

	t.Run("rejects unknown entity", func(t *testing.T) {
		fields := Fields{{ID: "x", Entity: "tax_unit", Source: "X", Type: TypeFloat}}
		err := fields.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindConfiguration))
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		fields := Fields{{ID: "x", Entity: models.EntityPerson, Source: "X", Type: "string"}}
		assert.Error(t, fields.Validate())
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		fields := Fields{
			{ID: "x", Entity: models.EntityPerson, Source: "X", Type: TypeFloat},
			{ID: "x", Entity: models.EntityHousehold, Source: "Y", Type: TypeFloat},
		}
		err := fields.Validate()
		require.Error(t, err)
		assert.Equal(t, "column 'x': duplicate output field", err.Error())
	})
}

func TestMerge(t *testing.T) {
	base := Fields{{ID: "a"}, {ID: "b"}}
	merged := base.Merge(Fields{{ID: "b", Source: "other"}, {ID: "c"}})
	assert.Equal(t, []string{"a", "b", "c"}, merged.IDs())
	assert.Equal(t, "", merged[1].Source)
}
