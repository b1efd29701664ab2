package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fotastore/server/internal/models"
)

func TestTransactionLog(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate add keeps the first entry", func(t *testing.T) {
		ts := newTestStore(t, strict)
		ts.loginAs(t, "gw-1")

		added, err := ts.log.Add(ctx, "tx-1", models.TransactionSuccess, "")
		require.NoError(t, err)
		assert.True(t, added)

		added, err = ts.log.Add(ctx, "tx-1", models.TransactionFailure, "retry")
		require.NoError(t, err)
		assert.False(t, added)

		pending, err := ts.log.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, models.TransactionSuccess, pending[0].Type)

		removed, err := ts.log.Remove(ctx, "tx-1")
		require.NoError(t, err)
		assert.True(t, removed)

		pending, err = ts.log.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("remove of absent transaction returns false", func(t *testing.T) {
		ts := newTestStore(t, strict)
		ts.loginAs(t, "gw-1")

		removed, err := ts.log.Remove(ctx, "tx-404")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("clear all returns the number of entries", func(t *testing.T) {
		ts := newTestStore(t, strict)
		ts.loginAs(t, "gw-1")

		hids := []string{"tx-1", "tx-2", "tx-3", "tx-4"}
		for _, hid := range hids {
			_, err := ts.log.Add(ctx, hid, models.TransactionFailure, "")
			require.NoError(t, err)
		}

		pending, err := ts.log.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, len(hids))
		for i, p := range pending {
			assert.Equal(t, hids[i], p.TransactionHid)
		}

		n, err := ts.log.ClearAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(hids), n)

		n, err = ts.log.ClearAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		ts := newTestStore(t, strict)
		ts.loginAs(t, "gw-1")

		_, err := ts.log.Add(ctx, "", models.TransactionSuccess, "")
		assert.ErrorIs(t, err, models.ErrEmptyTransactionHid)

		_, err = ts.log.Add(ctx, "tx-1", "maybe", "")
		assert.ErrorIs(t, err, models.ErrInvalidTransactionType)
	})

	t.Run("events follow the log", func(t *testing.T) {
		ts := newTestStore(t, strict)
		ts.loginAs(t, "gw-1")
		before := len(ts.events.Types())

		_, err := ts.log.Add(ctx, "tx-1", models.TransactionSuccess, "")
		require.NoError(t, err)
		_, err = ts.log.Add(ctx, "tx-1", models.TransactionSuccess, "")
		require.NoError(t, err)
		_, err = ts.log.Remove(ctx, "tx-1")
		require.NoError(t, err)

		assert.Equal(t, []string{EventTransactionPended, EventTransactionResolved}, ts.events.Types()[before:])
	})
}
