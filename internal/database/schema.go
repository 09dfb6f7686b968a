package database

// The participant counter is guarded twice: the conditional UPDATEs in the
// repositories, and the CHECK constraint below as a last line.

const postgresSchema = `
CREATE TABLE IF NOT EXISTS events (
	id                   TEXT PRIMARY KEY,
	title                TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	location             TEXT NOT NULL DEFAULT '',
	start_date           TIMESTAMPTZ NOT NULL,
	end_date             TIMESTAMPTZ NOT NULL,
	fee                  BIGINT NOT NULL CHECK (fee >= 0),
	max_participants     INTEGER NOT NULL CHECK (max_participants > 0),
	current_participants INTEGER NOT NULL DEFAULT 0,
	status               TEXT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL,
	CHECK (start_date <= end_date),
	CHECK (current_participants >= 0 AND current_participants <= max_participants)
);

CREATE TABLE IF NOT EXISTS registrations (
	id                TEXT PRIMARY KEY,
	event_id          TEXT NOT NULL REFERENCES events(id),
	user_id           TEXT NOT NULL,
	registration_date TIMESTAMPTZ NOT NULL,
	payment_amount    BIGINT NOT NULL,
	status            TEXT NOT NULL,
	payment_status    TEXT NOT NULL,
	payment_reference TEXT NOT NULL DEFAULT '',
	paid_at           TIMESTAMPTZ,
	UNIQUE (event_id, user_id),
	CHECK ((status = 'confirmed') = (payment_status = 'paid'))
);

CREATE INDEX IF NOT EXISTS registrations_user_idx ON registrations (user_id);

CREATE TABLE IF NOT EXISTS cancellations (
	registration_id TEXT PRIMARY KEY,
	event_id        TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	cancelled_by    TEXT NOT NULL,
	cancelled_at    TIMESTAMPTZ NOT NULL
);
`

const sqlitePragmas = `
PRAGMA foreign_keys = ON;
PRAGMA journal_mode = WAL;
PRAGMA busy_timeout = 5000;
`

// SQLite timestamps are stored as Unix microseconds.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id                   TEXT PRIMARY KEY,
	title                TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	location             TEXT NOT NULL DEFAULT '',
	start_date           INTEGER NOT NULL,
	end_date             INTEGER NOT NULL,
	fee                  INTEGER NOT NULL CHECK (fee >= 0),
	max_participants     INTEGER NOT NULL CHECK (max_participants > 0),
	current_participants INTEGER NOT NULL DEFAULT 0,
	status               TEXT NOT NULL,
	created_at           INTEGER NOT NULL,
	updated_at           INTEGER NOT NULL,
	CHECK (start_date <= end_date),
	CHECK (current_participants >= 0 AND current_participants <= max_participants)
);

CREATE TABLE IF NOT EXISTS registrations (
	id                TEXT PRIMARY KEY,
	event_id          TEXT NOT NULL REFERENCES events(id),
	user_id           TEXT NOT NULL,
	registration_date INTEGER NOT NULL,
	payment_amount    INTEGER NOT NULL,
	status            TEXT NOT NULL,
	payment_status    TEXT NOT NULL,
	payment_reference TEXT NOT NULL DEFAULT '',
	paid_at           INTEGER,
	UNIQUE (event_id, user_id),
	CHECK ((status = 'confirmed') = (payment_status = 'paid'))
);

CREATE INDEX IF NOT EXISTS registrations_user_idx ON registrations (user_id);

CREATE TABLE IF NOT EXISTS cancellations (
	registration_id TEXT PRIMARY KEY,
	event_id        TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	cancelled_by    TEXT NOT NULL,
	cancelled_at    INTEGER NOT NULL
);
`
