package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/agentic-turing/atm/pkg/db"
)

// Migration20250601120001CreateAPICalls creates the api_calls table
func Migration20250601120001CreateAPICalls() db.Migration {
	return db.Migration{
		Version:     20250601120001,
		Description: "Create api_calls table",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS api_calls (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT REFERENCES translation_runs(id) ON DELETE CASCADE,
					provider TEXT NOT NULL,
					model TEXT NOT NULL,
					stage INTEGER NOT NULL,
					noise_level INTEGER NOT NULL,
					input_tokens INTEGER NOT NULL,
					output_tokens INTEGER NOT NULL,
					cost REAL NOT NULL,
					created_at DATETIME NOT NULL
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create api_calls table")
			}
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_api_calls_run_id ON api_calls(run_id)`); err != nil {
				return errors.Wrap(err, "failed to create api_calls index")
			}
			return nil
		},
	}
}
