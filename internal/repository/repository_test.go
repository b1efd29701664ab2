package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fotastore/server/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "fota-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func addTestAccount(t *testing.T, db *sql.DB, gatewayHid string) *models.Account {
	account, err := models.NewAccount(gatewayHid, "")
	require.NoError(t, err)
	require.NoError(t, NewAccountRepository(db, nil).Add(context.Background(), account))
	return account
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("rolls back every statement when fn fails", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		states := NewUpgradeStateRepository(db, nil)
		boom := errors.New("boom")

		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			s, _ := models.NewDeviceUpgradeState("dev-1")
			if err := states.WithTx(tx).Insert(ctx, account.ID, s); err != nil {
				return err
			}
			return boom
		})

		assert.ErrorIs(t, err, boom)
		got, err := states.Get(ctx, account.ID, "dev-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		txs := NewTransactionRepository(db, nil)

		assert.Panics(t, func() {
			_ = WithTx(ctx, db, func(tx *sql.Tx) error {
				pended, _ := models.NewUpgradeTransaction("tx-1", models.TransactionSuccess, "")
				if _, err := txs.WithTx(tx).Add(ctx, account.ID, pended); err != nil {
					return err
				}
				panic("interrupted")
			})
		})

		list, err := txs.List(ctx, account.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("commits on success", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		states := NewUpgradeStateRepository(db, nil)

		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			s, _ := models.NewDeviceUpgradeState("dev-1")
			return states.WithTx(tx).Insert(ctx, account.ID, s)
		})

		require.NoError(t, err)
		got, err := states.Get(ctx, account.ID, "dev-1")
		require.NoError(t, err)
		require.NotNil(t, got)
	})
}

func TestUpgradeStateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips every field", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		repo := NewUpgradeStateRepository(db, nil)

		started := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
		want := &models.DeviceUpgradeState{
			DeviceHid:                  "dev-1",
			State:                      models.StateUpgrading,
			DeviceName:                 "Hallway sensor",
			TransactionHid:             "tx-9",
			FirmwareFileURL:            "https://fw.example.com/r1.bin",
			FirmwareFileSize:           524288,
			MD5Checksum:                "9e107d9d372bb6826bd81d3542a419d6",
			FileToken:                  "tok",
			ReleaseHid:                 "r1",
			ConfirmAsFailedTransaction: true,
			StartUpgradeTime:           &started,
			Canceled:                   true,
			UpdatedAt:                  started,
		}
		require.NoError(t, repo.Insert(ctx, account.ID, want))

		got, err := repo.Get(ctx, account.ID, "dev-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.StartUpgradeTime)
		assert.True(t, started.Equal(*got.StartUpgradeTime))
		assert.True(t, started.Equal(got.UpdatedAt))

		got.StartUpgradeTime, got.UpdatedAt = want.StartUpgradeTime, want.UpdatedAt
		assert.Equal(t, want, got)
	})

	t.Run("replace keeps insertion order", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		repo := NewUpgradeStateRepository(db, nil)

		for _, hid := range []string{"dev-a", "dev-b", "dev-c"} {
			s, _ := models.NewDeviceUpgradeState(hid)
			require.NoError(t, repo.Insert(ctx, account.ID, s))
		}

		updated := &models.DeviceUpgradeState{DeviceHid: "dev-a", State: models.StateScheduled, ReleaseHid: "r2", UpdatedAt: time.Now()}
		replaced, err := repo.Replace(ctx, account.ID, updated)
		require.NoError(t, err)
		assert.True(t, replaced)

		list, err := repo.List(ctx, account.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "dev-a", list[0].DeviceHid)
		assert.Equal(t, models.StateScheduled, list[0].State)
		assert.Equal(t, "dev-c", list[2].DeviceHid)
	})

	t.Run("replace of missing device reports false", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		repo := NewUpgradeStateRepository(db, nil)

		replaced, err := repo.Replace(ctx, account.ID, &models.DeviceUpgradeState{DeviceHid: "ghost", State: models.StateIdle})
		require.NoError(t, err)
		assert.False(t, replaced)
	})

	t.Run("duplicate insert violates uniqueness", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		repo := NewUpgradeStateRepository(db, nil)

		s, _ := models.NewDeviceUpgradeState("dev-1")
		require.NoError(t, repo.Insert(ctx, account.ID, s))
		err := repo.Insert(ctx, account.ID, s)
		assert.ErrorIs(t, err, models.ErrPersistence)
	})

	t.Run("records are scoped by account", func(t *testing.T) {
		db := setupTestDB(t)
		first := addTestAccount(t, db, "gw-1")
		second := addTestAccount(t, db, "gw-2")
		repo := NewUpgradeStateRepository(db, nil)

		s, _ := models.NewDeviceUpgradeState("dev-1")
		require.NoError(t, repo.Insert(ctx, first.ID, s))

		got, err := repo.Get(ctx, second.ID, "dev-1")
		require.NoError(t, err)
		assert.Nil(t, got)

		removed, err := repo.Delete(ctx, second.ID, "dev-1")
		require.NoError(t, err)
		assert.False(t, removed)

		removed, err = repo.Delete(ctx, first.ID, "dev-1")
		require.NoError(t, err)
		assert.True(t, removed)
	})

	t.Run("list by state", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		repo := NewUpgradeStateRepository(db, nil)

		require.NoError(t, repo.Insert(ctx, account.ID, &models.DeviceUpgradeState{DeviceHid: "a", State: models.StateUpgrading, UpdatedAt: time.Now()}))
		require.NoError(t, repo.Insert(ctx, account.ID, &models.DeviceUpgradeState{DeviceHid: "b", State: models.StateIdle, UpdatedAt: time.Now()}))

		list, err := repo.ListByState(ctx, account.ID, models.StateUpgrading)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "a", list[0].DeviceHid)
	})
}

func TestTransactionRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate add is a no-op", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		repo := NewTransactionRepository(db, nil)

		first, _ := models.NewUpgradeTransaction("tx-1", models.TransactionSuccess, "")
		second, _ := models.NewUpgradeTransaction("tx-1", models.TransactionFailure, "late retry")

		added, err := repo.Add(ctx, account.ID, first)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = repo.Add(ctx, account.ID, second)
		require.NoError(t, err)
		assert.False(t, added)

		list, err := repo.List(ctx, account.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, models.TransactionSuccess, list[0].Type)
	})

	t.Run("clear returns removed count", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		repo := NewTransactionRepository(db, nil)

		for _, hid := range []string{"tx-1", "tx-2", "tx-3"} {
			pended, _ := models.NewUpgradeTransaction(hid, models.TransactionFailure, "")
			_, err := repo.Add(ctx, account.ID, pended)
			require.NoError(t, err)
		}

		n, err := repo.Clear(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = repo.Clear(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("delete cascades to both collections", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		accounts := NewAccountRepository(db, nil)
		states := NewUpgradeStateRepository(db, nil)
		txs := NewTransactionRepository(db, nil)

		s, _ := models.NewDeviceUpgradeState("dev-1")
		require.NoError(t, states.Insert(ctx, account.ID, s))
		pended, _ := models.NewUpgradeTransaction("tx-1", models.TransactionSuccess, "")
		_, err := txs.Add(ctx, account.ID, pended)
		require.NoError(t, err)
		require.NoError(t, accounts.SetCurrentID(ctx, account.ID))

		removed, err := accounts.Delete(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		stateList, err := states.List(ctx, account.ID)
		require.NoError(t, err)
		assert.Empty(t, stateList)

		txList, err := txs.List(ctx, account.ID)
		require.NoError(t, err)
		assert.Empty(t, txList)

		currentID, err := accounts.GetCurrentID(ctx)
		require.NoError(t, err)
		assert.Empty(t, currentID)
	})

	t.Run("current id round trips and clears", func(t *testing.T) {
		db := setupTestDB(t)
		account := addTestAccount(t, db, "gw-1")
		accounts := NewAccountRepository(db, nil)

		currentID, err := accounts.GetCurrentID(ctx)
		require.NoError(t, err)
		assert.Empty(t, currentID)

		require.NoError(t, accounts.SetCurrentID(ctx, account.ID))
		currentID, err = accounts.GetCurrentID(ctx)
		require.NoError(t, err)
		assert.Equal(t, account.ID, currentID)

		require.NoError(t, accounts.SetCurrentID(ctx, ""))
		currentID, err = accounts.GetCurrentID(ctx)
		require.NoError(t, err)
		assert.Empty(t, currentID)
	})

	t.Run("get missing account returns nil", func(t *testing.T) {
		db := setupTestDB(t)
		account, err := NewAccountRepository(db, nil).GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, account)
	})
}
