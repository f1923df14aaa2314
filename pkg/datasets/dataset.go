// Package datasets describes the canonical datasets that can be generated and
// keeps them in an explicit Registry owned by the caller.
package datasets

import (
	"github.com/Gobusters/ectolinq"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fields"
	"github.com/Ramsey-B/clover/pkg/keys"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Dataset is one canonical dataset: which raw survey it is built from, how
// its entities are keyed and which variables it carries beyond the ids.
type Dataset struct {
	Name        string        `json:"name" yaml:"name" validate:"required,alphanum"`
	Label       string        `json:"label" yaml:"label"`
	Survey      string        `json:"survey" yaml:"survey" validate:"required,alphanum"`
	UnitMapping string        `json:"unit_mapping" yaml:"unit_mapping"`
	Keys        keys.KeySpec  `json:"keys" yaml:"keys"`
	Variables   fields.Fields `json:"variables" yaml:"variables"`
}

func (d Dataset) Validate() error {
	withContext := func(err error) error {
		return errors.Wrap(errors.KindConfiguration, err).AddDataset(d.Name)
	}

	if err := validate.Struct(d); err != nil {
		return withContext(err)
	}
	if err := d.Keys.Validate(); err != nil {
		return withContext(err)
	}
	if _, err := keys.MappingByName(d.UnitMapping); err != nil {
		return withContext(err)
	}
	if err := d.Variables.Validate(); err != nil {
		return withContext(err)
	}

	ids := fields.IdentifierFields().IDs()
	for _, variable := range d.Variables {
		if ectolinq.Contains(ids, variable.ID) {
			return withContext(errors.New(errors.KindConfiguration, "variable shadows a derived identifier").AddColumn(variable.ID))
		}
	}
	return nil
}

// Fields is the full output schema: the identifier contract followed by the
// dataset's variables.
func (d Dataset) Fields() fields.Fields {
	return fields.IdentifierFields().Merge(d.Variables)
}

func (d Dataset) Mapping() (keys.UnitMapping, error) {
	return keys.MappingByName(d.UnitMapping)
}
