package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "runs: one row per completed simulation",
		SQL: `
CREATE TABLE runs (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL DEFAULT '',
    seed             INTEGER NOT NULL,
    agents           INTEGER NOT NULL,
    horizon_days     INTEGER NOT NULL,
    insights_enabled INTEGER NOT NULL DEFAULT 0,
    params           TEXT NOT NULL,

    -- Outcome summary
    churned          INTEGER NOT NULL DEFAULT 0,
    premium          INTEGER NOT NULL DEFAULT 0,
    event_count      INTEGER NOT NULL DEFAULT 0,

    created_at       INTEGER NOT NULL
);

CREATE INDEX idx_runs_created_at ON runs(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "agents: final roster per run",
		SQL: `
CREATE TABLE agents (
    run_id         TEXT NOT NULL,
    idx            INTEGER NOT NULL,
    agent_id       TEXT NOT NULL,
    persona        TEXT NOT NULL CHECK (persona IN ('casual', 'engaged', 'struggler', 'power-user')),
    join_day       INTEGER NOT NULL,
    state          TEXT NOT NULL CHECK (state IN ('pending', 'active', 'churned')),
    churn_day      INTEGER,
    premium        INTEGER NOT NULL DEFAULT 0,
    conversion_day INTEGER,
    data           TEXT NOT NULL,

    PRIMARY KEY (run_id, idx),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX idx_agents_agent_id ON agents(run_id, agent_id);
CREATE INDEX idx_agents_persona         ON agents(run_id, persona);
`,
	},
	{
		Version:     3,
		Description: "events: append-only event log per run",
		SQL: `
CREATE TABLE events (
    run_id   TEXT NOT NULL,
    seq      INTEGER NOT NULL,
    day      INTEGER NOT NULL,
    kind     TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    payload  TEXT NOT NULL,

    PRIMARY KEY (run_id, seq),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX idx_events_kind ON events(run_id, kind);
CREATE INDEX idx_events_day  ON events(run_id, day);
`,
	},
	{
		Version:     4,
		Description: "snapshots: periodic analytics reports",
		SQL: `
CREATE TABLE snapshots (
    run_id TEXT NOT NULL,
    day    INTEGER NOT NULL,
    report TEXT NOT NULL,

    PRIMARY KEY (run_id, day),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     5,
		Description: "runs: track sink pushes",
		SQL: `
ALTER TABLE runs ADD COLUMN pushed_at INTEGER;
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
