package repository

const schemaDDL = `
CREATE TABLE IF NOT EXISTS players (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	title             TEXT NOT NULL UNIQUE,
	join_date         TEXT,
	main_character_id INTEGER REFERENCES characters(id)
);

CREATE TABLE IF NOT EXISTS characters (
	id        INTEGER PRIMARY KEY,
	name      TEXT NOT NULL,
	title     TEXT,
	join_date TEXT,
	player_id INTEGER REFERENCES players(id)
);

CREATE INDEX IF NOT EXISTS idx_characters_name ON characters(name);
CREATE INDEX IF NOT EXISTS idx_characters_player ON characters(player_id);

CREATE TABLE IF NOT EXISTS solar_systems (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS item_types (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS killmails (
	id                  INTEGER PRIMARY KEY,
	killmail_time       TEXT NOT NULL,
	character_id        INTEGER NOT NULL REFERENCES characters(id),
	solar_system_id     INTEGER NOT NULL REFERENCES solar_systems(id),
	victim_ship_type_id INTEGER NOT NULL REFERENCES item_types(id),
	total_value         REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_killmails_time ON killmails(killmail_time);
CREATE INDEX IF NOT EXISTS idx_killmails_character ON killmails(character_id);

CREATE TABLE IF NOT EXISTS monthly_uploads (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	year             INTEGER NOT NULL,
	month            INTEGER NOT NULL,
	upload_date      TEXT NOT NULL,
	tax_rate         REAL NOT NULL DEFAULT 0,
	ore_convert_rate REAL NOT NULL DEFAULT 0,
	uploaded_by      TEXT NOT NULL DEFAULT '',
	UNIQUE(year, month)
);

CREATE TABLE IF NOT EXISTS pap_records (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	upload_id            INTEGER NOT NULL REFERENCES monthly_uploads(id) ON DELETE CASCADE,
	character_id         INTEGER NOT NULL REFERENCES characters(id),
	pap_points           REAL NOT NULL DEFAULT 0,
	strategic_pap_points REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_pap_upload ON pap_records(upload_id);

CREATE TABLE IF NOT EXISTS bounty_records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	upload_id    INTEGER NOT NULL REFERENCES monthly_uploads(id) ON DELETE CASCADE,
	character_id INTEGER NOT NULL REFERENCES characters(id),
	tax_isk      REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_bounty_upload ON bounty_records(upload_id);

CREATE TABLE IF NOT EXISTS mining_records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	upload_id    INTEGER NOT NULL REFERENCES monthly_uploads(id) ON DELETE CASCADE,
	character_id INTEGER NOT NULL REFERENCES characters(id),
	volume_m3    REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_mining_upload ON mining_records(upload_id);

CREATE TABLE IF NOT EXISTS system_state (
	key        TEXT PRIMARY KEY,
	date_value TEXT
);

CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
);
`

const dropDDL = `
DROP TABLE IF EXISTS users;
DROP TABLE IF EXISTS system_state;
DROP TABLE IF EXISTS mining_records;
DROP TABLE IF EXISTS bounty_records;
DROP TABLE IF EXISTS pap_records;
DROP TABLE IF EXISTS monthly_uploads;
DROP TABLE IF EXISTS killmails;
DROP TABLE IF EXISTS item_types;
DROP TABLE IF EXISTS solar_systems;
DROP TABLE IF EXISTS characters;
DROP TABLE IF EXISTS players;
`
