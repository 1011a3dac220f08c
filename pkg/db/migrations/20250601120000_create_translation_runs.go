package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/agentic-turing/atm/pkg/db"
)

// Migration20250601120000CreateTranslationRuns creates the translation_runs table
func Migration20250601120000CreateTranslationRuns() db.Migration {
	return db.Migration{
		Version:     20250601120000,
		Description: "Create translation_runs table",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS translation_runs (
					id TEXT PRIMARY KEY,
					noise_level INTEGER NOT NULL,
					input_text TEXT NOT NULL,
					final_output TEXT,
					status TEXT NOT NULL,
					error TEXT,
					started_at DATETIME NOT NULL,
					finished_at DATETIME
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create translation_runs table")
			}
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_translation_runs_started_at ON translation_runs(started_at DESC)`); err != nil {
				return errors.Wrap(err, "failed to create translation_runs index")
			}
			return nil
		},
	}
}
