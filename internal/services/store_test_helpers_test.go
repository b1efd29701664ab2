package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

type testStore struct {
	db     *sql.DB
	scope  *AccountScope
	store  *UpgradeStore
	log    *TransactionLog
	events *recordingPublisher
}

func newTestStore(t *testing.T, cfg UpgradeStoreConfig) *testStore {
	t.Helper()
	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "fota-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	events := &recordingPublisher{}
	scope := NewAccountScope(db, nil, nil, events)
	return &testStore{
		db:     db,
		scope:  scope,
		store:  NewUpgradeStore(scope, cfg, events, nil),
		log:    NewTransactionLog(scope, events, nil),
		events: events,
	}
}

// loginAs creates an account and makes it current
func (s *testStore) loginAs(t *testing.T, gatewayHid string) *models.Account {
	t.Helper()
	ctx := context.Background()
	account, err := s.scope.Create(ctx, gatewayHid, "")
	require.NoError(t, err)
	_, err = s.scope.SetCurrent(ctx, account.ID)
	require.NoError(t, err)
	return account
}
