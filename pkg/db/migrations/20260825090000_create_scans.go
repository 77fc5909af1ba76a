package migrations

import (
	"database/sql"

	"github.com/jingkaihe/skilldoctor/pkg/db"
	"github.com/pkg/errors"
)

// Migration20260825090000CreateScans creates the scans table that backs scan history.
func Migration20260825090000CreateScans() db.Migration {
	return db.Migration{
		Version:     20260825090000,
		Description: "Create scans table",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS scans (
					id TEXT PRIMARY KEY,
					started_at DATETIME NOT NULL,
					duration_ms INTEGER NOT NULL,
					library_root TEXT NOT NULL,
					record_slug TEXT NOT NULL DEFAULT '',
					records INTEGER NOT NULL,
					checks_attempted INTEGER NOT NULL,
					checks_passed INTEGER NOT NULL,
					health_score REAL NOT NULL,
					critical INTEGER NOT NULL,
					high INTEGER NOT NULL,
					medium INTEGER NOT NULL,
					warning INTEGER NOT NULL,
					fixable INTEGER NOT NULL,
					report_json TEXT NOT NULL
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create scans table")
			}

			if _, err := tx.Exec(
				"CREATE INDEX IF NOT EXISTS idx_scans_started_at ON scans(started_at DESC)",
			); err != nil {
				return errors.Wrap(err, "failed to create scans index")
			}

			return nil
		},
		Down: func(tx *sql.Tx) error {
			if _, err := tx.Exec("DROP INDEX IF EXISTS idx_scans_started_at"); err != nil {
				return errors.Wrap(err, "failed to drop scans index")
			}
			if _, err := tx.Exec("DROP TABLE IF EXISTS scans"); err != nil {
				return errors.Wrap(err, "failed to drop scans table")
			}
			return nil
		},
	}
}
