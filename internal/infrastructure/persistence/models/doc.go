// Package models contains GORM persistence models that map to database tables.
// They are kept apart from the domain so the domain layer stays free of ORM
// concerns; stores in the persistence package convert between the two.
//
// Postgres schemas are owned by the SQL files under migrations/. The sqlite
// driver, used for development and tests, creates them from these models.
package models

// All returns every persistence model, in dependency order
func All() []any {
	return []any{
		&PersonEventModel{},
		&ReadModelDocument{},
	}
}
