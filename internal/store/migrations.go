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

CREATE TABLE IF NOT EXISTS attempts (
	message_id   TEXT PRIMARY KEY,
	count        INTEGER NOT NULL DEFAULT 0,
	last_attempt DATETIME NOT NULL,
	last_reason  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS reply_ledger (
	recipient TEXT NOT NULL,
	sent_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reply_ledger_recipient
	ON reply_ledger(recipient, sent_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
