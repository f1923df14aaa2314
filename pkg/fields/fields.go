// Package fields defines the output schema of a canonical microdata file.
//
// # Overview
//
// Each Field names one array in the output file and says where its values
// come from:
//   - Entity: which reconciled table holds the source column
//   - Source: the column in that table (a raw survey column or a derived id)
//   - Type: the array's numeric type in the output file
//
// # Example
//
//	Fields{
//	  {ID: "person_weight", Entity: models.EntityPerson, Source: "PWGTP", Type: TypeFloat},
//	  {ID: "household_vehicles_owned", Entity: models.EntityHousehold, Source: "VEH", Type: TypeFloat},
//	}
//
// # IDs are the contract
//
// The ID is the array name the downstream rule engine binds against. Renaming
// an ID is a breaking change; renaming a Source only follows survey drift.
package fields

import (
	"github.com/Gobusters/ectolinq"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

type Type string

const (
	TypeInt   Type = "int"
	TypeFloat Type = "float"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Field defines one named output array.
type Field struct {
	ID     string            `json:"id" yaml:"id" validate:"required"`                                         // Output array name
	Name   string            `json:"name" yaml:"name"`                                                         // Human-readable label
	Entity models.EntityKind `json:"entity" yaml:"entity" validate:"required,oneof=person household spm_unit"` // Table holding the source
	Source string            `json:"source" yaml:"source" validate:"required"`                                 // Column read from the table
	Type   Type              `json:"type" yaml:"type" validate:"required,oneof=int float"`                     // Output numeric type
}

func (f Field) Validate() error {
	if err := validate.Struct(f); err != nil {
		return errors.Wrap(errors.KindConfiguration, err).AddColumn(f.ID)
	}
	return nil
}

type Fields []Field

func (f Fields) GetField(id string) (Field, error) {
	field := ectolinq.Find(f, func(field Field) bool {
		return field.ID == id
	})
	if ectolinq.IsEmpty(field) {
		return Field{}, errors.New(errors.KindConfiguration, "field not found").AddColumn(id)
	}
	return field, nil
}

func (f Fields) ForEntity(entity models.EntityKind) Fields {
	return ectolinq.Filter(f, func(field Field) bool {
		return field.Entity == entity
	})
}

func (f Fields) IDs() []string {
	return ectolinq.Map(f, func(field Field) string {
		return field.ID
	})
}

// Validate checks every field and rejects duplicate output names.
func (f Fields) Validate() error {
	seen := map[string]bool{}
	for _, field := range f {
		if err := field.Validate(); err != nil {
			return err
		}
		if seen[field.ID] {
			return errors.New(errors.KindConfiguration, "duplicate output field").AddColumn(field.ID)
		}
		seen[field.ID] = true
	}
	return nil
}

// Merge returns f followed by the fields of other whose IDs f does not
// already define.
func (f Fields) Merge(other Fields) Fields {
	out := append(Fields{}, f...)
	for _, field := range other {
		if !ectolinq.Contains(f.IDs(), field.ID) {
			out = append(out, field)
		}
	}
	return out
}
