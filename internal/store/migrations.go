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

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS email_accounts (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name               TEXT NOT NULL DEFAULT '',
	email_address      TEXT NOT NULL,
	imap_host          TEXT NOT NULL,
	imap_port          INTEGER NOT NULL DEFAULT 993,
	imap_username      TEXT NOT NULL,
	imap_password      TEXT NOT NULL,
	use_tls            INTEGER NOT NULL DEFAULT 1,
	active             INTEGER NOT NULL DEFAULT 1,
	last_synced_at     DATETIME,
	last_rules_version TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS flight_groups (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	auto_generated INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS flights (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	group_id           TEXT REFERENCES flight_groups(id) ON DELETE SET NULL,
	airline_name       TEXT NOT NULL DEFAULT '',
	airline_code       TEXT NOT NULL DEFAULT '',
	flight_number      TEXT NOT NULL,
	booking_reference  TEXT NOT NULL DEFAULT '',
	departure_airport  TEXT NOT NULL,
	departure_time     DATETIME NOT NULL,
	departure_terminal TEXT NOT NULL DEFAULT '',
	departure_gate     TEXT NOT NULL DEFAULT '',
	arrival_airport    TEXT NOT NULL,
	arrival_time       DATETIME NOT NULL,
	arrival_terminal   TEXT NOT NULL DEFAULT '',
	arrival_gate       TEXT NOT NULL DEFAULT '',
	passenger_name     TEXT NOT NULL DEFAULT '',
	seat               TEXT NOT NULL DEFAULT '',
	cabin_class        TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'upcoming',
	duration_minutes   INTEGER NOT NULL DEFAULT 1,
	account_id         TEXT REFERENCES email_accounts(id) ON DELETE SET NULL,
	email_subject      TEXT NOT NULL DEFAULT '',
	email_date         DATETIME,
	email_message_id   TEXT NOT NULL DEFAULT '',
	manually_added     INTEGER NOT NULL DEFAULT 0,
	notes              TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, email_message_id)
);

CREATE INDEX IF NOT EXISTS idx_flights_user_id ON flights(user_id);
CREATE INDEX IF NOT EXISTS idx_flights_group_id ON flights(group_id);
CREATE INDEX IF NOT EXISTS idx_flights_departure_time ON flights(departure_time);
CREATE INDEX IF NOT EXISTS idx_flight_groups_user_id ON flight_groups(user_id);
CREATE INDEX IF NOT EXISTS idx_email_accounts_user_id ON email_accounts(user_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
