package accounts

// migration is one schema step; versions are sequential from 1.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	email        TEXT NOT NULL UNIQUE,
	token        TEXT NOT NULL DEFAULT '',
	messages     TEXT NOT NULL DEFAULT '[]',
	connected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
