package soundcache

import (
	"database/sql"
)

const currentSchemaVersion = 1

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS lookups (
			theme TEXT NOT NULL,
			profile TEXT NOT NULL,
			locale TEXT NOT NULL,
			event_id TEXT NOT NULL,
			path TEXT NOT NULL,
			resolved_theme TEXT,
			created_at INTEGER NOT NULL,
			used_at INTEGER NOT NULL,
			PRIMARY KEY (theme, profile, locale, event_id)
		);

		CREATE INDEX IF NOT EXISTS idx_lookups_used_at ON lookups(used_at);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	return err
}
