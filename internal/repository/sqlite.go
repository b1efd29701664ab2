package repository

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fotastore/server/internal/observability"
)

// NewSQLiteDB opens the embedded store and creates its tables.
// Foreign keys and the busy timeout are set through the DSN so every
// pooled connection gets them; the pool is capped at one connection
// because SQLite serialises writers anyway.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	observability.SetDBSystem("sqlite")
	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Accounts (user / gateway pairings)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		gateway_hid TEXT NOT NULL,
		user_email TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Which account is current; at most one row
	CREATE TABLE IF NOT EXISTS session_state (
		id INTEGER PRIMARY KEY DEFAULT 1,
		account_id TEXT REFERENCES accounts(id) ON DELETE SET NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (id = 1)
	);

	-- Per-device FOTA state, ordered by position within an account
	CREATE TABLE IF NOT EXISTS upgrade_states (
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		device_hid TEXT NOT NULL,
		position INTEGER NOT NULL,
		state TEXT NOT NULL,
		device_name TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		transaction_hid TEXT NOT NULL DEFAULT '',
		firmware_file_url TEXT NOT NULL DEFAULT '',
		firmware_file_size INTEGER NOT NULL DEFAULT 0,
		md5_checksum TEXT NOT NULL DEFAULT '',
		file_token TEXT NOT NULL DEFAULT '',
		release_hid TEXT NOT NULL DEFAULT '',
		confirm_as_failed INTEGER NOT NULL DEFAULT 0,
		start_upgrade_time DATETIME,
		canceled INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (account_id, device_hid)
	);

	CREATE INDEX IF NOT EXISTS idx_upgrade_states_position ON upgrade_states(account_id, position);
	CREATE INDEX IF NOT EXISTS idx_upgrade_states_state ON upgrade_states(account_id, state);

	-- Remote confirmations awaiting acknowledgment
	CREATE TABLE IF NOT EXISTS pended_transactions (
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		transaction_hid TEXT NOT NULL,
		position INTEGER NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('success', 'failure')),
		message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		PRIMARY KEY (account_id, transaction_hid)
	);

	CREATE INDEX IF NOT EXISTS idx_pended_transactions_position ON pended_transactions(account_id, position);
	`

	_, err := db.Exec(schema)
	return err
}
