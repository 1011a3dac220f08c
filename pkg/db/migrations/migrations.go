// Package migrations holds the schema of the atm results database
package migrations

import (
	"github.com/agentic-turing/atm/pkg/db"
)

// All returns every registered migration
func All() []db.Migration {
	return []db.Migration{
		Migration20250601120000CreateTranslationRuns(),
		Migration20250601120001CreateAPICalls(),
	}
}
