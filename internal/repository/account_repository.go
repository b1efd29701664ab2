package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/observability"
)

// AccountRepository persists accounts and the current-account pointer
type AccountRepository struct {
	q       DBTX
	metrics *observability.DatabaseMetrics
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(q DBTX, metrics *observability.DatabaseMetrics) *AccountRepository {
	return &AccountRepository{q: q, metrics: metrics}
}

// WithTx returns a copy of the repository bound to tx
func (r *AccountRepository) WithTx(tx *sql.Tx) *AccountRepository {
	return &AccountRepository{q: tx, metrics: r.metrics}
}

func (r *AccountRepository) Add(ctx context.Context, account *models.Account) error {
	ctx, done := observe(ctx, r.metrics, "INSERT", "accounts")
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO accounts (id, gateway_hid, user_email, created_at) VALUES ($1, $2, $3, $4)`,
		account.ID, account.GatewayHid, account.UserEmail, dbTime(account.CreatedAt),
	)
	return done(err)
}

// GetByID returns the account, or nil if it does not exist
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	ctx, done := observe(ctx, r.metrics, "SELECT", "accounts")

	var account models.Account
	err := r.q.QueryRowContext(ctx,
		`SELECT id, gateway_hid, user_email, created_at FROM accounts WHERE id = $1`, id,
	).Scan(&account.ID, &account.GatewayHid, &account.UserEmail, &account.CreatedAt)
	if err == sql.ErrNoRows {
		done(nil)
		return nil, nil
	}
	if err := done(err); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	ctx, done := observe(ctx, r.metrics, "SELECT", "accounts")

	rows, err := r.q.QueryContext(ctx,
		`SELECT id, gateway_hid, user_email, created_at FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, done(err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(&account.ID, &account.GatewayHid, &account.UserEmail, &account.CreatedAt); err != nil {
			return nil, done(err)
		}
		accounts = append(accounts, &account)
	}
	return accounts, done(rows.Err())
}

// Delete removes the account; its upgrade states and pended transactions
// go with it through ON DELETE CASCADE
func (r *AccountRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, done := observe(ctx, r.metrics, "DELETE", "accounts")

	result, err := r.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return false, done(err)
	}
	n, err := result.RowsAffected()
	return n > 0, done(err)
}

// GetCurrentID returns the persisted current account id, or "" if none
func (r *AccountRepository) GetCurrentID(ctx context.Context) (string, error) {
	ctx, done := observe(ctx, r.metrics, "SELECT", "session_state")

	var id sql.NullString
	err := r.q.QueryRowContext(ctx, `SELECT account_id FROM session_state WHERE id = 1`).Scan(&id)
	if err == sql.ErrNoRows {
		done(nil)
		return "", nil
	}
	if err := done(err); err != nil {
		return "", err
	}
	return id.String, nil
}

// SetCurrentID persists the current account id; "" clears it
func (r *AccountRepository) SetCurrentID(ctx context.Context, id string) error {
	ctx, done := observe(ctx, r.metrics, "UPSERT", "session_state")

	accountID := sql.NullString{String: id, Valid: id != ""}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO session_state (id, account_id, updated_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = EXCLUDED.updated_at`,
		accountID, dbTime(time.Now()),
	)
	return done(err)
}
