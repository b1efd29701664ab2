package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var dbSystem atomic.Value

func init() {
	dbSystem.Store("sqlite")
}

// SetDBSystem records which database engine DB spans report
func SetDBSystem(system string) {
	dbSystem.Store(system)
}

// Tracer returns a tracer for the given name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartDBSpan starts a span for database operations
func StartDBSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("DB %s %s", operation, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", dbSystem.Load().(string)),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		),
	)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// EndSpan sets the span status from err and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// DatabaseMetrics holds database-related metrics
type DatabaseMetrics struct {
	queryDuration metric.Float64Histogram
	queryCount    metric.Int64Counter
	errorCount    metric.Int64Counter
}

// NewDatabaseMetrics creates database metrics instruments
func NewDatabaseMetrics() (*DatabaseMetrics, error) {
	meter := otel.Meter(instrumentationName)

	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	queryCount, err := meter.Int64Counter(
		"db.query.count",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{queries}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"db.error.count",
		metric.WithDescription("Total number of database errors"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		return nil, err
	}

	return &DatabaseMetrics{
		queryDuration: queryDuration,
		queryCount:    queryCount,
		errorCount:    errorCount,
	}, nil
}

// RecordQuery records a database query metrics
func (m *DatabaseMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
	)

	m.queryCount.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.errorCount.Add(ctx, 1, attrs)
	}
}

// StoreMetrics counts upgrade-state and transaction-log activity
type StoreMetrics struct {
	upserts             metric.Int64Counter
	rejectedTransitions metric.Int64Counter
	deletes             metric.Int64Counter
	transactionsAdded   metric.Int64Counter
	transactionsRemoved metric.Int64Counter
	pending             metric.Int64UpDownCounter
	accountSwitches     metric.Int64Counter
}

// NewStoreMetrics creates store metrics instruments
func NewStoreMetrics() (*StoreMetrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &StoreMetrics{}

	var err error
	if m.upserts, err = meter.Int64Counter(
		"fota.upgrade.upserts",
		metric.WithDescription("Upgrade state writes by result and state"),
		metric.WithUnit("{writes}"),
	); err != nil {
		return nil, err
	}

	if m.rejectedTransitions, err = meter.Int64Counter(
		"fota.upgrade.rejected_transitions",
		metric.WithDescription("Upgrade state writes refused by the transition graph"),
		metric.WithUnit("{writes}"),
	); err != nil {
		return nil, err
	}

	if m.deletes, err = meter.Int64Counter(
		"fota.upgrade.deletes",
		metric.WithDescription("Upgrade state records removed"),
		metric.WithUnit("{records}"),
	); err != nil {
		return nil, err
	}

	if m.transactionsAdded, err = meter.Int64Counter(
		"fota.transactions.added",
		metric.WithDescription("Pended transaction insert attempts by outcome"),
		metric.WithUnit("{transactions}"),
	); err != nil {
		return nil, err
	}

	if m.transactionsRemoved, err = meter.Int64Counter(
		"fota.transactions.removed",
		metric.WithDescription("Pended transactions removed, individually or by clear"),
		metric.WithUnit("{transactions}"),
	); err != nil {
		return nil, err
	}

	if m.pending, err = meter.Int64UpDownCounter(
		"fota.transactions.pending",
		metric.WithDescription("Pended transactions written or removed through this process"),
		metric.WithUnit("{transactions}"),
	); err != nil {
		return nil, err
	}

	if m.accountSwitches, err = meter.Int64Counter(
		"fota.account.switches",
		metric.WithDescription("Changes of the current account"),
		metric.WithUnit("{switches}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordUpsert records a committed upgrade state write
func (m *StoreMetrics) RecordUpsert(ctx context.Context, result, state string) {
	if m == nil {
		return
	}
	m.upserts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		UpgradeState(state),
	))
}

// RecordRejectedTransition records a write refused by the transition graph
func (m *StoreMetrics) RecordRejectedTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.rejectedTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordDelete records a removed upgrade state record
func (m *StoreMetrics) RecordDelete(ctx context.Context) {
	if m == nil {
		return
	}
	m.deletes.Add(ctx, 1)
}

// RecordTransactionAdd records an Add call; duplicates are counted separately
func (m *StoreMetrics) RecordTransactionAdd(ctx context.Context, txType string, added bool) {
	if m == nil {
		return
	}
	m.transactionsAdded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", txType),
		attribute.Bool("duplicate", !added),
	))
	if added {
		m.pending.Add(ctx, 1)
	}
}

// RecordTransactionsRemoved records n pended transactions leaving the log
func (m *StoreMetrics) RecordTransactionsRemoved(ctx context.Context, n int, reason string) {
	if m == nil || n == 0 {
		return
	}
	m.transactionsRemoved.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
	m.pending.Add(ctx, -int64(n))
}

// RecordAccountSwitch records a change of the current account
func (m *StoreMetrics) RecordAccountSwitch(ctx context.Context, cleared bool) {
	if m == nil {
		return
	}
	m.accountSwitches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cleared", cleared)))
}
