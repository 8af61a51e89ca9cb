package store

const postgresSchema = `
CREATE TABLE IF NOT EXISTS trust_atoms (
	id            TEXT PRIMARY KEY,
	issuer        TEXT NOT NULL,
	target        TEXT NOT NULL,
	overall       DOUBLE PRECISION NOT NULL,
	record        JSONB NOT NULL,
	replaces      TEXT,
	superseded_by TEXT,
	expires_at    TIMESTAMPTZ,
	issued_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trust_atoms_target_idx ON trust_atoms (target);
CREATE INDEX IF NOT EXISTS trust_atoms_issuer_idx ON trust_atoms (issuer);

CREATE TABLE IF NOT EXISTS stakes (
	issuer     TEXT PRIMARY KEY,
	amount     DOUBLE PRECISION NOT NULL CHECK (amount >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stake_events (
	id         TEXT PRIMARY KEY,
	issuer     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	amount     DOUBLE PRECISION NOT NULL,
	remaining  DOUBLE PRECISION NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS stake_events_issuer_idx ON stake_events (issuer, created_at);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trust_atoms (
	id            TEXT PRIMARY KEY,
	issuer        TEXT NOT NULL,
	target        TEXT NOT NULL,
	overall       REAL NOT NULL,
	record        TEXT NOT NULL,
	replaces      TEXT,
	superseded_by TEXT,
	expires_at    TEXT,
	issued_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS trust_atoms_target_idx ON trust_atoms (target);
CREATE INDEX IF NOT EXISTS trust_atoms_issuer_idx ON trust_atoms (issuer);

CREATE TABLE IF NOT EXISTS stakes (
	issuer     TEXT PRIMARY KEY,
	amount     REAL NOT NULL CHECK (amount >= 0),
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stake_events (
	id         TEXT PRIMARY KEY,
	issuer     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	amount     REAL NOT NULL,
	remaining  REAL NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS stake_events_issuer_idx ON stake_events (issuer, created_at);
`
