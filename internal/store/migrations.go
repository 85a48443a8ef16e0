package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT NOT NULL,
	position   INTEGER NOT NULL,
	task_id    TEXT NOT NULL,
	data       TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	PRIMARY KEY (key, position)
);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	fetched_at DATETIME NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_snapshots_task_id ON snapshots(task_id);
CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
