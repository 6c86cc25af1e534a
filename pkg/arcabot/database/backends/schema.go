package backends

// Migration is one versioned schema step. Statements must be idempotent
// (IF NOT EXISTS) so a partially recorded step can be re-applied.
type Migration struct {
	Version int
	SQL     string
}

// LatestVersion is the schema version produced by the full migration list.
const LatestVersion = 2

// SQLiteMigrations returns the ordered schema steps for SQLite.
func SQLiteMigrations() []Migration {
	return []Migration{
		{Version: 1, SQL: `
CREATE TABLE IF NOT EXISTS bots (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	phone_number TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'OFFLINE',
	last_sync    BIGINT,
	created_at   BIGINT NOT NULL,
	updated_at   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS bot_configs (
	bot_id             TEXT PRIMARY KEY REFERENCES bots(id) ON DELETE CASCADE,
	fallback_text      TEXT NOT NULL DEFAULT '',
	welcome_text       TEXT NOT NULL DEFAULT '',
	auto_reply_enabled BOOLEAN NOT NULL DEFAULT 1,
	ai_enabled         BOOLEAN NOT NULL DEFAULT 0,
	ignore_groups      BOOLEAN NOT NULL DEFAULT 0,
	system_instruction TEXT NOT NULL DEFAULT '',
	updated_at         BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduled_messages (
	id                 TEXT PRIMARY KEY,
	bot_id             TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
	recipient_address  TEXT NOT NULL,
	recipient_name     TEXT NOT NULL DEFAULT '',
	message_text       TEXT NOT NULL,
	attachment_ref     TEXT NOT NULL DEFAULT '',
	scheduled_for      BIGINT NOT NULL,
	recurrence_type    TEXT NOT NULL DEFAULT 'once',
	recurrence_day     INTEGER,
	recurrence_weekday INTEGER,
	status             TEXT NOT NULL DEFAULT 'pending',
	sent_at            BIGINT,
	error_text         TEXT NOT NULL DEFAULT '',
	created_at         BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scheduled_due ON scheduled_messages(status, scheduled_for);
CREATE INDEX IF NOT EXISTS idx_scheduled_bot ON scheduled_messages(bot_id);

CREATE TABLE IF NOT EXISTS conversation_turns (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	bot_id     TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
	peer_id    TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_peer ON conversation_turns(bot_id, peer_id, created_at);
`},
		{Version: 2, SQL: `
CREATE TABLE IF NOT EXISTS bot_credentials (
	bot_id     TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
	category   TEXT NOT NULL,
	key_id     TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (bot_id, category, key_id)
);
`},
	}
}

// PostgreSQLMigrations returns the ordered schema steps for PostgreSQL.
func PostgreSQLMigrations() []Migration {
	return []Migration{
		{Version: 1, SQL: `
CREATE TABLE IF NOT EXISTS bots (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	phone_number TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'OFFLINE',
	last_sync    BIGINT,
	created_at   BIGINT NOT NULL,
	updated_at   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS bot_configs (
	bot_id             TEXT PRIMARY KEY REFERENCES bots(id) ON DELETE CASCADE,
	fallback_text      TEXT NOT NULL DEFAULT '',
	welcome_text       TEXT NOT NULL DEFAULT '',
	auto_reply_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	ai_enabled         BOOLEAN NOT NULL DEFAULT FALSE,
	ignore_groups      BOOLEAN NOT NULL DEFAULT FALSE,
	system_instruction TEXT NOT NULL DEFAULT '',
	updated_at         BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduled_messages (
	id                 TEXT PRIMARY KEY,
	bot_id             TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
	recipient_address  TEXT NOT NULL,
	recipient_name     TEXT NOT NULL DEFAULT '',
	message_text       TEXT NOT NULL,
	attachment_ref     TEXT NOT NULL DEFAULT '',
	scheduled_for      BIGINT NOT NULL,
	recurrence_type    TEXT NOT NULL DEFAULT 'once',
	recurrence_day     INTEGER,
	recurrence_weekday INTEGER,
	status             TEXT NOT NULL DEFAULT 'pending',
	sent_at            BIGINT,
	error_text         TEXT NOT NULL DEFAULT '',
	created_at         BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scheduled_due ON scheduled_messages(status, scheduled_for);
CREATE INDEX IF NOT EXISTS idx_scheduled_bot ON scheduled_messages(bot_id);

CREATE TABLE IF NOT EXISTS conversation_turns (
	seq        BIGSERIAL PRIMARY KEY,
	bot_id     TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
	peer_id    TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_peer ON conversation_turns(bot_id, peer_id, created_at);
`},
		{Version: 2, SQL: `
CREATE TABLE IF NOT EXISTS bot_credentials (
	bot_id     TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
	category   TEXT NOT NULL,
	key_id     TEXT NOT NULL,
	value      BYTEA NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (bot_id, category, key_id)
);
`},
	}
}
