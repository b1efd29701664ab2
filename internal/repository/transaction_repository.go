package repository

import (
	"context"
	"database/sql"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/observability"
)

// TransactionRepository persists the pended transaction log scoped by account
type TransactionRepository struct {
	q       DBTX
	metrics *observability.DatabaseMetrics
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(q DBTX, metrics *observability.DatabaseMetrics) *TransactionRepository {
	return &TransactionRepository{q: q, metrics: metrics}
}

// WithTx returns a copy of the repository bound to tx
func (r *TransactionRepository) WithTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{q: tx, metrics: r.metrics}
}

// Add appends the transaction unless one with the same hid is already
// pended; it reports whether a row was written
func (r *TransactionRepository) Add(ctx context.Context, accountID string, t *models.UpgradeTransaction) (bool, error) {
	ctx, done := observe(ctx, r.metrics, "INSERT", "pended_transactions")

	result, err := r.q.ExecContext(ctx,
		`INSERT INTO pended_transactions (account_id, position, transaction_hid, type, message, created_at)
		VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM pended_transactions WHERE account_id = $1),
			$2, $3, $4, $5)
		ON CONFLICT (account_id, transaction_hid) DO NOTHING`,
		accountID, t.TransactionHid, string(t.Type), t.Message, dbTime(t.CreatedAt),
	)
	if err != nil {
		return false, done(err)
	}
	n, err := result.RowsAffected()
	return n > 0, done(err)
}

// Get returns the pended transaction, or nil if there is none
func (r *TransactionRepository) Get(ctx context.Context, accountID, transactionHid string) (*models.UpgradeTransaction, error) {
	ctx, done := observe(ctx, r.metrics, "SELECT", "pended_transactions")

	var t models.UpgradeTransaction
	err := r.q.QueryRowContext(ctx,
		`SELECT transaction_hid, type, message, created_at FROM pended_transactions
		WHERE account_id = $1 AND transaction_hid = $2`,
		accountID, transactionHid,
	).Scan(&t.TransactionHid, &t.Type, &t.Message, &t.CreatedAt)
	if err == sql.ErrNoRows {
		done(nil)
		return nil, nil
	}
	if err := done(err); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns the account's pended transactions in insertion order
func (r *TransactionRepository) List(ctx context.Context, accountID string) ([]*models.UpgradeTransaction, error) {
	ctx, done := observe(ctx, r.metrics, "SELECT", "pended_transactions")

	rows, err := r.q.QueryContext(ctx,
		`SELECT transaction_hid, type, message, created_at FROM pended_transactions
		WHERE account_id = $1 ORDER BY position`,
		accountID,
	)
	if err != nil {
		return nil, done(err)
	}
	defer rows.Close()

	transactions := []*models.UpgradeTransaction{}
	for rows.Next() {
		var t models.UpgradeTransaction
		if err := rows.Scan(&t.TransactionHid, &t.Type, &t.Message, &t.CreatedAt); err != nil {
			return nil, done(err)
		}
		transactions = append(transactions, &t)
	}
	return transactions, done(rows.Err())
}

// Remove deletes the pended transaction and reports whether it existed
func (r *TransactionRepository) Remove(ctx context.Context, accountID, transactionHid string) (bool, error) {
	ctx, done := observe(ctx, r.metrics, "DELETE", "pended_transactions")

	result, err := r.q.ExecContext(ctx,
		`DELETE FROM pended_transactions WHERE account_id = $1 AND transaction_hid = $2`,
		accountID, transactionHid,
	)
	if err != nil {
		return false, done(err)
	}
	n, err := result.RowsAffected()
	return n > 0, done(err)
}

// Clear removes every pended transaction of the account and returns the count
func (r *TransactionRepository) Clear(ctx context.Context, accountID string) (int, error) {
	ctx, done := observe(ctx, r.metrics, "DELETE", "pended_transactions")

	result, err := r.q.ExecContext(ctx, `DELETE FROM pended_transactions WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, done(err)
	}
	n, err := result.RowsAffected()
	return int(n), done(err)
}
