package repository

import (
	"context"
	"database/sql"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/observability"
)

const upgradeStateColumns = `device_hid, state, device_name, error_message, transaction_hid,
	firmware_file_url, firmware_file_size, md5_checksum, file_token, release_hid,
	confirm_as_failed, start_upgrade_time, canceled, updated_at`

// UpgradeStateRepository persists DeviceUpgradeState records scoped by account
type UpgradeStateRepository struct {
	q       DBTX
	metrics *observability.DatabaseMetrics
}

// NewUpgradeStateRepository creates a new UpgradeStateRepository
func NewUpgradeStateRepository(q DBTX, metrics *observability.DatabaseMetrics) *UpgradeStateRepository {
	return &UpgradeStateRepository{q: q, metrics: metrics}
}

// WithTx returns a copy of the repository bound to tx
func (r *UpgradeStateRepository) WithTx(tx *sql.Tx) *UpgradeStateRepository {
	return &UpgradeStateRepository{q: tx, metrics: r.metrics}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUpgradeState(row rowScanner) (*models.DeviceUpgradeState, error) {
	var s models.DeviceUpgradeState
	err := row.Scan(
		&s.DeviceHid, &s.State, &s.DeviceName, &s.ErrorMessage, &s.TransactionHid,
		&s.FirmwareFileURL, &s.FirmwareFileSize, &s.MD5Checksum, &s.FileToken, &s.ReleaseHid,
		&s.ConfirmAsFailedTransaction, &s.StartUpgradeTime, &s.Canceled, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get returns the device's record, or nil if it has none
func (r *UpgradeStateRepository) Get(ctx context.Context, accountID, deviceHid string) (*models.DeviceUpgradeState, error) {
	ctx, done := observe(ctx, r.metrics, "SELECT", "upgrade_states")

	row := r.q.QueryRowContext(ctx,
		`SELECT `+upgradeStateColumns+` FROM upgrade_states WHERE account_id = $1 AND device_hid = $2`,
		accountID, deviceHid,
	)
	state, err := scanUpgradeState(row)
	if err == sql.ErrNoRows {
		done(nil)
		return nil, nil
	}
	if err := done(err); err != nil {
		return nil, err
	}
	return state, nil
}

// List returns the account's records in insertion order
func (r *UpgradeStateRepository) List(ctx context.Context, accountID string) ([]*models.DeviceUpgradeState, error) {
	return r.query(ctx,
		`SELECT `+upgradeStateColumns+` FROM upgrade_states WHERE account_id = $1 ORDER BY position`,
		accountID,
	)
}

// ListByState returns the account's records in the given state, in insertion order
func (r *UpgradeStateRepository) ListByState(ctx context.Context, accountID string, state models.UpgradeState) ([]*models.DeviceUpgradeState, error) {
	return r.query(ctx,
		`SELECT `+upgradeStateColumns+` FROM upgrade_states WHERE account_id = $1 AND state = $2 ORDER BY position`,
		accountID, string(state),
	)
}

func (r *UpgradeStateRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.DeviceUpgradeState, error) {
	ctx, done := observe(ctx, r.metrics, "SELECT", "upgrade_states")

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, done(err)
	}
	defer rows.Close()

	states := []*models.DeviceUpgradeState{}
	for rows.Next() {
		state, err := scanUpgradeState(rows)
		if err != nil {
			return nil, done(err)
		}
		states = append(states, state)
	}
	return states, done(rows.Err())
}

// Insert appends a record after the account's last one
func (r *UpgradeStateRepository) Insert(ctx context.Context, accountID string, s *models.DeviceUpgradeState) error {
	ctx, done := observe(ctx, r.metrics, "INSERT", "upgrade_states")

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO upgrade_states (account_id, position, `+upgradeStateColumns+`)
		VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM upgrade_states WHERE account_id = $1),
			$2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		accountID,
		s.DeviceHid, string(s.State), s.DeviceName, s.ErrorMessage, s.TransactionHid,
		s.FirmwareFileURL, s.FirmwareFileSize, s.MD5Checksum, s.FileToken, s.ReleaseHid,
		s.ConfirmAsFailedTransaction, dbTimePtr(s.StartUpgradeTime), s.Canceled, dbTime(s.UpdatedAt),
	)
	return done(err)
}

// Replace overwrites every field of an existing record, keeping its position.
// It reports false if the device had no record.
func (r *UpgradeStateRepository) Replace(ctx context.Context, accountID string, s *models.DeviceUpgradeState) (bool, error) {
	ctx, done := observe(ctx, r.metrics, "UPDATE", "upgrade_states")

	// parameters are numbered in order of appearance; SQLite binds $N by position
	result, err := r.q.ExecContext(ctx,
		`UPDATE upgrade_states SET
			state = $1, device_name = $2, error_message = $3, transaction_hid = $4,
			firmware_file_url = $5, firmware_file_size = $6, md5_checksum = $7, file_token = $8,
			release_hid = $9, confirm_as_failed = $10, start_upgrade_time = $11, canceled = $12,
			updated_at = $13
		WHERE account_id = $14 AND device_hid = $15`,
		string(s.State), s.DeviceName, s.ErrorMessage, s.TransactionHid,
		s.FirmwareFileURL, s.FirmwareFileSize, s.MD5Checksum, s.FileToken,
		s.ReleaseHid, s.ConfirmAsFailedTransaction, dbTimePtr(s.StartUpgradeTime), s.Canceled,
		dbTime(s.UpdatedAt),
		accountID, s.DeviceHid,
	)
	if err != nil {
		return false, done(err)
	}
	n, err := result.RowsAffected()
	return n > 0, done(err)
}

// Delete removes the device's record and reports whether one existed
func (r *UpgradeStateRepository) Delete(ctx context.Context, accountID, deviceHid string) (bool, error) {
	ctx, done := observe(ctx, r.metrics, "DELETE", "upgrade_states")

	result, err := r.q.ExecContext(ctx,
		`DELETE FROM upgrade_states WHERE account_id = $1 AND device_hid = $2`, accountID, deviceHid)
	if err != nil {
		return false, done(err)
	}
	n, err := result.RowsAffected()
	return n > 0, done(err)
}

// DeleteAll removes every record of the account and returns how many went
func (r *UpgradeStateRepository) DeleteAll(ctx context.Context, accountID string) (int, error) {
	ctx, done := observe(ctx, r.metrics, "DELETE", "upgrade_states")

	result, err := r.q.ExecContext(ctx, `DELETE FROM upgrade_states WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, done(err)
	}
	n, err := result.RowsAffected()
	return int(n), done(err)
}
