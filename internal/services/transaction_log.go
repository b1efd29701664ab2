package services

import (
	"context"
	"database/sql"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/observability"
)

// TransactionLog keeps the current account's pended transactions, the
// confirmations sent to the cloud whose acknowledgment was not seen yet
type TransactionLog struct {
	scope   *AccountScope
	events  EventPublisher
	metrics *observability.StoreMetrics
	logger  *observability.Logger
}

// NewTransactionLog creates a new TransactionLog bound to scope
func NewTransactionLog(scope *AccountScope, events EventPublisher, metrics *observability.StoreMetrics) *TransactionLog {
	if events == nil {
		events = NopPublisher{}
	}
	return &TransactionLog{
		scope:   scope,
		events:  events,
		metrics: metrics,
		logger:  observability.GetLogger().WithField("component", "transaction_log"),
	}
}

// Add pends a transaction. A transaction hid that is already pended is
// left as it is and Add reports false.
func (l *TransactionLog) Add(ctx context.Context, transactionHid string, txType models.TransactionType, message string) (bool, error) {
	ctx, span := observability.StartServiceSpan(ctx, "TransactionLog", "Add")
	span.SetAttributes(observability.TransactionHid(transactionHid))

	pended, err := models.NewUpgradeTransaction(transactionHid, txType, message)
	if err != nil {
		observability.EndSpan(span, err)
		return false, err
	}

	var added bool
	err = l.scope.write(ctx, func(ctx context.Context, account *models.Account, tx *sql.Tx) error {
		var err error
		added, err = l.scope.txs.WithTx(tx).Add(ctx, account.ID, pended)
		return err
	}, func(account *models.Account) {
		l.metrics.RecordTransactionAdd(ctx, string(txType), added)
		if added {
			l.events.Publish(ctx, Event{
				Type:           EventTransactionPended,
				AccountID:      account.ID,
				TransactionHid: transactionHid,
				Payload:        pended,
			})
		}
	})
	observability.EndSpan(span, err)
	if err != nil {
		l.logger.WithContext(ctx).WithField("transaction_hid", transactionHid).WithError(err).Warn("Pending transaction failed")
		return false, err
	}
	return added, nil
}

// Remove drops a pended transaction once its acknowledgment arrived and
// reports whether it was pended
func (l *TransactionLog) Remove(ctx context.Context, transactionHid string) (bool, error) {
	var removed bool
	err := l.scope.write(ctx, func(ctx context.Context, account *models.Account, tx *sql.Tx) error {
		var err error
		removed, err = l.scope.txs.WithTx(tx).Remove(ctx, account.ID, transactionHid)
		return err
	}, func(account *models.Account) {
		if removed {
			l.metrics.RecordTransactionsRemoved(ctx, 1, "acknowledged")
			l.events.Publish(ctx, Event{Type: EventTransactionResolved, AccountID: account.ID, TransactionHid: transactionHid})
		}
	})
	if err != nil {
		l.logger.WithField("transaction_hid", transactionHid).WithError(err).Warn("Removing transaction failed")
		return false, err
	}
	return removed, nil
}

// ClearAll drops every pended transaction of the current account and
// returns how many there were
func (l *TransactionLog) ClearAll(ctx context.Context) (int, error) {
	var n int
	err := l.scope.write(ctx, func(ctx context.Context, account *models.Account, tx *sql.Tx) error {
		var err error
		n, err = l.scope.txs.WithTx(tx).Clear(ctx, account.ID)
		return err
	}, func(account *models.Account) {
		l.metrics.RecordTransactionsRemoved(ctx, n, "cleared")
		l.events.Publish(ctx, Event{Type: EventTransactionsCleared, AccountID: account.ID, Payload: map[string]int{"removed": n}})
	})
	if err != nil {
		l.logger.WithError(err).Warn("Clearing transactions failed")
		return 0, err
	}
	return n, nil
}

// Pending returns the pended transactions in the order they were added
func (l *TransactionLog) Pending(ctx context.Context) ([]*models.UpgradeTransaction, error) {
	var pending []*models.UpgradeTransaction
	err := l.scope.read(func(account *models.Account) error {
		var err error
		pending, err = l.scope.txs.List(ctx, account.ID)
		return err
	})
	return pending, err
}
