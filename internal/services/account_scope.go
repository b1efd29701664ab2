package services

import (
	"context"
	"database/sql"
	"sync"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/observability"
	"github.com/fotastore/server/internal/repository"
)

// AccountScope owns the single current account. The upgrade store and the
// transaction log resolve their account through it, and every mutation they
// make runs under its writer lock, so there is one logical writer per
// process no matter how many goroutines call in.
type AccountScope struct {
	mu       sync.RWMutex
	db       *sql.DB
	accounts *repository.AccountRepository
	states   *repository.UpgradeStateRepository
	txs      *repository.TransactionRepository
	current  *models.Account
	events   EventPublisher
	metrics  *observability.StoreMetrics
	logger   *observability.Logger
}

// NewAccountScope creates an AccountScope with no current account.
// Call Restore to pick up the account that was current before a restart.
func NewAccountScope(db *sql.DB, dbMetrics *observability.DatabaseMetrics, storeMetrics *observability.StoreMetrics, events EventPublisher) *AccountScope {
	if events == nil {
		events = NopPublisher{}
	}
	return &AccountScope{
		db:       db,
		accounts: repository.NewAccountRepository(db, dbMetrics),
		states:   repository.NewUpgradeStateRepository(db, dbMetrics),
		txs:      repository.NewTransactionRepository(db, dbMetrics),
		events:   events,
		metrics:  storeMetrics,
		logger:   observability.GetLogger().WithField("component", "account_scope"),
	}
}

// Current returns a copy of the current account, or nil if none is set
func (s *AccountScope) Current() *models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	account := *s.current
	return &account
}

// Restore loads the persisted current account. A pointer to an account
// that no longer exists is dropped.
func (s *AccountScope) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.accounts.GetCurrentID(ctx)
	if err != nil {
		return err
	}
	if id == "" {
		s.current = nil
		return nil
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	s.current = account
	if account == nil {
		s.logger.WithField("account_id", id).Warn("Persisted current account no longer exists")
		return s.accounts.SetCurrentID(ctx, "")
	}
	s.logger.WithField("account_id", id).Info("Restored current account")
	return nil
}

// SetCurrent makes the account with the given id current. The previous
// account's data is left untouched.
func (s *AccountScope) SetCurrent(ctx context.Context, accountID string) (*models.Account, error) {
	ctx, span := observability.StartServiceSpan(ctx, "AccountScope", "SetCurrent")
	span.SetAttributes(observability.AccountID(accountID))

	s.mu.Lock()
	defer s.mu.Unlock()

	var account *models.Account
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		accounts := s.accounts.WithTx(tx)

		var err error
		account, err = accounts.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return models.ErrAccountNotFound
		}
		return accounts.SetCurrentID(ctx, accountID)
	})
	observability.EndSpan(span, err)
	if err != nil {
		s.logger.WithContext(ctx).WithField("account_id", accountID).WithError(err).Warn("Switching account failed")
		return nil, err
	}

	s.current = account
	s.metrics.RecordAccountSwitch(ctx, false)
	s.events.Publish(ctx, Event{Type: EventAccountSwitched, AccountID: account.ID})
	s.logger.WithField("account_id", account.ID).Info("Current account switched")

	copied := *account
	return &copied, nil
}

// Clear leaves no account current; store operations fail with
// models.ErrNoActiveAccount until SetCurrent is called again
func (s *AccountScope) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.accounts.SetCurrentID(ctx, ""); err != nil {
		return err
	}
	if s.current != nil {
		s.events.Publish(ctx, Event{Type: EventAccountCleared, AccountID: s.current.ID})
	}
	s.current = nil
	s.metrics.RecordAccountSwitch(ctx, true)
	return nil
}

// Create registers a new account with empty collections
func (s *AccountScope) Create(ctx context.Context, gatewayHid, userEmail string) (*models.Account, error) {
	account, err := models.NewAccount(gatewayHid, userEmail)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.accounts.Add(ctx, account); err != nil {
		s.logger.WithField("gateway_hid", gatewayHid).WithError(err).Error("Creating account failed")
		return nil, err
	}
	return account, nil
}

// List returns every known account
func (s *AccountScope) List(ctx context.Context) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts.List(ctx)
}

// Destroy deletes an account together with its upgrade states and pended
// transactions. Destroying the current account clears the scope.
func (s *AccountScope) Destroy(ctx context.Context, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.accounts.Delete(ctx, accountID)
	if err != nil {
		s.logger.WithField("account_id", accountID).WithError(err).Error("Destroying account failed")
		return false, err
	}
	if removed && s.current != nil && s.current.ID == accountID {
		s.current = nil
		s.metrics.RecordAccountSwitch(ctx, true)
		s.events.Publish(ctx, Event{Type: EventAccountCleared, AccountID: accountID})
	}
	return removed, nil
}

// Reset empties both collections of the current account in one transaction
func (s *AccountScope) Reset(ctx context.Context) (states int, transactions int, err error) {
	err = s.write(ctx, func(ctx context.Context, account *models.Account, tx *sql.Tx) error {
		var err error
		if states, err = s.states.WithTx(tx).DeleteAll(ctx, account.ID); err != nil {
			return err
		}
		transactions, err = s.txs.WithTx(tx).Clear(ctx, account.ID)
		return err
	}, func(account *models.Account) {
		s.metrics.RecordTransactionsRemoved(ctx, transactions, "reset")
		s.events.Publish(ctx, Event{Type: EventUpgradeStatesCleared, AccountID: account.ID, Payload: map[string]int{"removed": states}})
		s.events.Publish(ctx, Event{Type: EventTransactionsCleared, AccountID: account.ID, Payload: map[string]int{"removed": transactions}})
	})
	if err != nil {
		return 0, 0, err
	}

	s.logger.WithFields(map[string]interface{}{
		"upgrade_states": states,
		"transactions":   transactions,
	}).Info("Account reset")
	return states, transactions, nil
}

// write runs fn inside one transaction against the current account while
// holding the writer lock. committed, when not nil, runs after the commit
// and before the lock is released, so events published from it follow
// commit order. It fails with models.ErrNoActiveAccount when no account is
// current.
func (s *AccountScope) write(
	ctx context.Context,
	fn func(ctx context.Context, account *models.Account, tx *sql.Tx) error,
	committed func(account *models.Account),
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return models.ErrNoActiveAccount
	}
	account := s.current
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ctx, account, tx)
	})
	if err != nil {
		return err
	}
	if committed != nil {
		committed(account)
	}
	return nil
}

// read runs fn against the current account under the read lock
func (s *AccountScope) read(fn func(account *models.Account) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return models.ErrNoActiveAccount
	}
	return fn(s.current)
}
