package database

import (
	"github.com/huandu/go-sqlbuilder"
)

// Flavor returns the sqlbuilder flavor for a driver name.
func Flavor(driver string) sqlbuilder.Flavor {
	if driver == DriverPostgres {
		return sqlbuilder.PostgreSQL
	}
	return sqlbuilder.SQLite
}

// Builder creates query builders for one database flavor.
type Builder struct {
	flavor sqlbuilder.Flavor
}

func NewBuilder(driver string) Builder {
	return Builder{flavor: Flavor(driver)}
}

func (b Builder) Flavor() sqlbuilder.Flavor {
	return b.flavor
}

func (b Builder) NewInsertBuilder() *sqlbuilder.InsertBuilder {
	return b.flavor.NewInsertBuilder()
}

func (b Builder) NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return b.flavor.NewUpdateBuilder()
}

func (b Builder) NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return b.flavor.NewDeleteBuilder()
}

func (b Builder) NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return b.flavor.NewSelectBuilder()
}

func (b Builder) NewCreateTableBuilder() *sqlbuilder.CreateTableBuilder {
	return b.flavor.NewCreateTableBuilder()
}

// NewStruct binds a db-tagged struct to the builder's flavor.
func (b Builder) NewStruct(v any) *sqlbuilder.Struct {
	return sqlbuilder.NewStruct(v).For(b.flavor)
}
