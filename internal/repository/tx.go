package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/observability"
)

// WithTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; any error or panic rolls back every statement fn executed.
// Errors returned by fn pass through unchanged; begin and commit failures
// come back as *models.PersistenceError.
func WithTx(ctx context.Context, db TxBeginner, fn func(tx *sql.Tx) error) (err error) {
	ctx, span := observability.StartDBSpan(ctx, "TRANSACTION", "")
	defer func() { observability.EndSpan(span, err) }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.NewPersistenceError("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			observability.WithContext(ctx).WithError(rbErr).Warn("Rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return models.NewPersistenceError("commit transaction", err)
	}
	return nil
}

// observe opens a DB span and returns a func that ends it and records the
// query metric. Database errors passed to it are returned wrapped as
// *models.PersistenceError.
func observe(ctx context.Context, metrics *observability.DatabaseMetrics, op, table string) (context.Context, func(error) error) {
	start := time.Now()
	ctx, span := observability.StartDBSpan(ctx, op, table)

	return ctx, func(err error) error {
		metrics.RecordQuery(ctx, op, table, time.Since(start), err)
		observability.EndSpan(span, err)
		return models.NewPersistenceError(fmt.Sprintf("%s %s", op, table), err)
	}
}

// dbTime normalises timestamps to the precision every backend keeps
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func dbTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := dbTime(*t)
	return &v
}
