package repository

import (
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/fotastore/server/internal/observability"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	observability.SetDBSystem("postgresql")
	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		gateway_hid TEXT NOT NULL,
		user_email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS session_state (
		id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		account_id TEXT REFERENCES accounts(id) ON DELETE SET NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS upgrade_states (
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		device_hid TEXT NOT NULL,
		position BIGINT NOT NULL,
		state TEXT NOT NULL,
		device_name TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		transaction_hid TEXT NOT NULL DEFAULT '',
		firmware_file_url TEXT NOT NULL DEFAULT '',
		firmware_file_size BIGINT NOT NULL DEFAULT 0,
		md5_checksum TEXT NOT NULL DEFAULT '',
		file_token TEXT NOT NULL DEFAULT '',
		release_hid TEXT NOT NULL DEFAULT '',
		confirm_as_failed BOOLEAN NOT NULL DEFAULT FALSE,
		start_upgrade_time TIMESTAMPTZ,
		canceled BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (account_id, device_hid)
	);

	CREATE INDEX IF NOT EXISTS idx_upgrade_states_position ON upgrade_states(account_id, position);
	CREATE INDEX IF NOT EXISTS idx_upgrade_states_state ON upgrade_states(account_id, state);

	CREATE TABLE IF NOT EXISTS pended_transactions (
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		transaction_hid TEXT NOT NULL,
		position BIGINT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('success', 'failure')),
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (account_id, transaction_hid)
	);

	CREATE INDEX IF NOT EXISTS idx_pended_transactions_position ON pended_transactions(account_id, position);
	`

	_, err := db.Exec(schema)
	return err
}
