package sqlite

import "database/sql"

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS checks (
    id             TEXT PRIMARY KEY,
    client         TEXT NOT NULL,
    server         TEXT NOT NULL,
    state          TEXT NOT NULL
                   CHECK(state IN ('healthy','timeout','failed')),
    server_name    TEXT NOT NULL DEFAULT '',
    server_version TEXT NOT NULL DEFAULT '',
    reason         TEXT NOT NULL DEFAULT '',
    elapsed_ms     INTEGER NOT NULL DEFAULT 0,
    checked_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_server ON checks(client, server, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_checks_checked ON checks(checked_at DESC);
`

func runMigrations(db *sql.DB) error {
	var current int
	row := db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&current); err != nil {
		// no schema_version table yet
		current = 0
	}

	if current >= schemaVersion {
		return nil
	}

	if current < 1 {
		if _, err := db.Exec(schemaV1); err != nil {
			return err
		}
	}

	_, err := db.Exec(`
		DELETE FROM schema_version;
		INSERT INTO schema_version (version) VALUES (?);
	`, schemaVersion)
	return err
}
