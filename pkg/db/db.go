// Package db opens, migrates, and seeds the sqlite store.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stronghold/pkg/core"
)

// Open wires a sqlite handle. The driver name decides the
// implementation: "sqlite3" (cgo) in production, "sqlite" (pure Go)
// for tests and tooling. sqlite has one writer; a single connection
// keeps database/sql from queueing on SQLITE_BUSY.
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS system_meta (key TEXT PRIMARY KEY, value TEXT);

CREATE TABLE IF NOT EXISTS realms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	key TEXT UNIQUE,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE TABLE IF NOT EXISTS players (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	realm_id INTEGER REFERENCES realms(id),
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE TABLE IF NOT EXISTS materials (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE TABLE IF NOT EXISTS building_templates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE TABLE IF NOT EXISTS material_effects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	building_template_id INTEGER NOT NULL REFERENCES building_templates(id),
	material_id INTEGER NOT NULL REFERENCES materials(id),
	amount INTEGER NOT NULL,
	trigger_event TEXT NOT NULL CHECK (trigger_event IN ('build', 'tick')),
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE TABLE IF NOT EXISTS buildings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	building_template_id INTEGER NOT NULL REFERENCES building_templates(id),
	player_id INTEGER NOT NULL REFERENCES players(id),
	built_at INTEGER NOT NULL,
	destroyed_at INTEGER
);

CREATE TABLE IF NOT EXISTS storage (
	player_id INTEGER NOT NULL REFERENCES players(id),
	material_id INTEGER NOT NULL REFERENCES materials(id),
	balance INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (player_id, material_id)
);

CREATE TABLE IF NOT EXISTS ticks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticked_at INTEGER NOT NULL UNIQUE,
	prev_hash TEXT NOT NULL,
	state_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	tick_id INTEGER PRIMARY KEY REFERENCES ticks(id),
	state_blob BLOB NOT NULL,
	state_hash TEXT NOT NULL
);
`

// Migrate creates all tables. The UNIQUE constraint on ticks.ticked_at
// is load-bearing: it serializes concurrent tick advancers.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// newRealmKey mints the public identifier for a realm.
func newRealmKey() string {
	return uuid.NewString()
}

// Identity is the server's stable identity, minted on first boot.
type Identity struct {
	ServerID    string
	GenesisHash string
}

// InitIdentity loads the identity from system_meta, generating and
// persisting one on first boot. The genesis hash anchors the tick
// state-hash chain.
func InitIdentity(db *sql.DB, now time.Time) (Identity, error) {
	var id Identity
	err := db.QueryRow(`SELECT value FROM system_meta WHERE key = 'server_id'`).Scan(&id.ServerID)
	if err == sql.ErrNoRows {
		id.ServerID = uuid.NewString()
		id.GenesisHash = core.Hash([]byte(fmt.Sprintf("GENESIS-%d-%s", now.UnixNano(), id.ServerID)))

		tx, err := db.Begin()
		if err != nil {
			return Identity{}, err
		}
		tx.Exec(`INSERT INTO system_meta (key, value) VALUES ('server_id', ?)`, id.ServerID)
		tx.Exec(`INSERT INTO system_meta (key, value) VALUES ('genesis_hash', ?)`, id.GenesisHash)
		return id, tx.Commit()
	}
	if err != nil {
		return Identity{}, err
	}
	err = db.QueryRow(`SELECT value FROM system_meta WHERE key = 'genesis_hash'`).Scan(&id.GenesisHash)
	return id, err
}
