package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/observability"
)

// UpgradeStoreConfig controls how upgrade records are accepted
type UpgradeStoreConfig struct {
	// StrictTransitions rejects upserts that break the upgrade state graph.
	// When false a bad transition is logged and written anyway.
	StrictTransitions bool
	// UpgradeTimeout is how long a device may stay in upgrading before
	// StaleUpgrades reports it. Zero disables the check.
	UpgradeTimeout time.Duration
}

// UpgradeStore keeps the current account's per-device upgrade records
type UpgradeStore struct {
	scope   *AccountScope
	cfg     UpgradeStoreConfig
	events  EventPublisher
	metrics *observability.StoreMetrics
	logger  *observability.Logger
	now     func() time.Time
}

// NewUpgradeStore creates a new UpgradeStore bound to scope
func NewUpgradeStore(scope *AccountScope, cfg UpgradeStoreConfig, events EventPublisher, metrics *observability.StoreMetrics) *UpgradeStore {
	if events == nil {
		events = NopPublisher{}
	}
	return &UpgradeStore{
		scope:   scope,
		cfg:     cfg,
		events:  events,
		metrics: metrics,
		logger:  observability.GetLogger().WithField("component", "upgrade_store"),
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Get returns the device's record, or nil if it has none
func (s *UpgradeStore) Get(ctx context.Context, deviceHid string) (*models.DeviceUpgradeState, error) {
	var state *models.DeviceUpgradeState
	err := s.scope.read(func(account *models.Account) error {
		var err error
		state, err = s.scope.states.Get(ctx, account.ID, deviceHid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// List returns every record of the current account in insertion order
func (s *UpgradeStore) List(ctx context.Context) ([]*models.DeviceUpgradeState, error) {
	var states []*models.DeviceUpgradeState
	err := s.scope.read(func(account *models.Account) error {
		var err error
		states, err = s.scope.states.List(ctx, account.ID)
		return err
	})
	return states, err
}

// StaleUpgrades returns the records that have been upgrading for longer
// than the configured timeout. The records are not modified.
func (s *UpgradeStore) StaleUpgrades(ctx context.Context, now time.Time) ([]*models.DeviceUpgradeState, error) {
	var upgrading []*models.DeviceUpgradeState
	err := s.scope.read(func(account *models.Account) error {
		var err error
		upgrading, err = s.scope.states.ListByState(ctx, account.ID, models.StateUpgrading)
		return err
	})
	if err != nil {
		return nil, err
	}

	stale := []*models.DeviceUpgradeState{}
	for _, state := range upgrading {
		if state.UpgradeTimedOut(now, s.cfg.UpgradeTimeout) {
			stale = append(stale, state)
		}
	}
	return stale, nil
}

// Upsert replaces the device's record, or appends it if the device has
// none. The whole record is overwritten and UpdatedAt is set. On success
// *state holds exactly what was stored.
func (s *UpgradeStore) Upsert(ctx context.Context, state *models.DeviceUpgradeState) (models.UpsertResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "UpgradeStore", "Upsert")
	if state == nil {
		observability.EndSpan(span, models.ErrEmptyDeviceHid)
		return models.Inserted, models.ErrEmptyDeviceHid
	}
	span.SetAttributes(observability.DeviceHid(state.DeviceHid), observability.UpgradeState(string(state.State)))

	if err := state.Validate(); err != nil {
		observability.EndSpan(span, err)
		return models.Inserted, err
	}

	record := *state
	record.UpdatedAt = s.now()
	if record.StartUpgradeTime != nil {
		started := storedTime(*record.StartUpgradeTime)
		record.StartUpgradeTime = &started
	}

	var result models.UpsertResult
	err := s.scope.write(ctx, func(ctx context.Context, account *models.Account, tx *sql.Tx) error {
		states := s.scope.states.WithTx(tx)

		existing, err := states.Get(ctx, account.ID, record.DeviceHid)
		if err != nil {
			return err
		}

		if existing == nil {
			if !models.CanInsert(record.State) {
				if err := s.rejectTransition(ctx, "", record.State); err != nil {
					return err
				}
			}
			result = models.Inserted
			return states.Insert(ctx, account.ID, &record)
		}

		if models.CancelsFinished(existing, &record) {
			return models.ErrCancelTerminal
		}
		if !models.CanTransition(existing.State, record.State) {
			if err := s.rejectTransition(ctx, existing.State, record.State); err != nil {
				return err
			}
		}
		result = models.Updated
		_, err = states.Replace(ctx, account.ID, &record)
		return err
	}, func(account *models.Account) {
		s.metrics.RecordUpsert(ctx, result.String(), string(record.State))
		s.events.Publish(ctx, Event{
			Type:      EventUpgradeStateChanged,
			AccountID: account.ID,
			DeviceHid: record.DeviceHid,
			Payload:   &record,
		})
	})
	observability.EndSpan(span, err)
	if err != nil {
		s.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"device_hid": record.DeviceHid,
			"state":      record.State,
		}).WithError(err).Warn("Upsert failed")
		return models.Inserted, err
	}

	s.logger.WithFields(map[string]interface{}{
		"device_hid": record.DeviceHid,
		"state":      record.State,
		"result":     result.String(),
	}).Debug("Upgrade state stored")

	*state = record
	return result, nil
}

// storedTime is t at the precision and zone the database hands back
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// rejectTransition returns models.ErrInvalidTransition in strict mode and
// nil, after a warning, otherwise
func (s *UpgradeStore) rejectTransition(ctx context.Context, from, to models.UpgradeState) error {
	s.metrics.RecordRejectedTransition(ctx, string(from), string(to))
	if s.cfg.StrictTransitions {
		return models.ErrInvalidTransition
	}
	s.logger.WithFields(map[string]interface{}{
		"from": from,
		"to":   to,
	}).Warn("Accepting out-of-order upgrade state")
	return nil
}

// Delete removes the device's record and reports whether one existed
func (s *UpgradeStore) Delete(ctx context.Context, deviceHid string) (bool, error) {
	var removed bool
	err := s.scope.write(ctx, func(ctx context.Context, account *models.Account, tx *sql.Tx) error {
		var err error
		removed, err = s.scope.states.WithTx(tx).Delete(ctx, account.ID, deviceHid)
		return err
	}, func(account *models.Account) {
		if removed {
			s.metrics.RecordDelete(ctx)
			s.events.Publish(ctx, Event{Type: EventUpgradeStateDeleted, AccountID: account.ID, DeviceHid: deviceHid})
		}
	})
	if err != nil {
		s.logger.WithField("device_hid", deviceHid).WithError(err).Warn("Delete failed")
		return false, err
	}
	return removed, nil
}

// Cancel marks an in-flight upgrade as canceled. It reports false when the
// device has no record and fails with models.ErrCancelTerminal when the
// upgrade already finished.
func (s *UpgradeStore) Cancel(ctx context.Context, deviceHid string) (bool, error) {
	var record *models.DeviceUpgradeState
	err := s.scope.write(ctx, func(ctx context.Context, account *models.Account, tx *sql.Tx) error {
		states := s.scope.states.WithTx(tx)

		existing, err := states.Get(ctx, account.ID, deviceHid)
		if err != nil || existing == nil {
			return err
		}
		if existing.State.IsTerminal() {
			return models.ErrCancelTerminal
		}

		existing.Canceled = true
		existing.UpdatedAt = s.now()
		if _, err := states.Replace(ctx, account.ID, existing); err != nil {
			return err
		}
		record = existing
		return nil
	}, func(account *models.Account) {
		if record != nil {
			s.events.Publish(ctx, Event{
				Type:      EventUpgradeStateChanged,
				AccountID: account.ID,
				DeviceHid: deviceHid,
				Payload:   record,
			})
		}
	})
	if err != nil {
		s.logger.WithField("device_hid", deviceHid).WithError(err).Warn("Cancel failed")
		return false, err
	}
	if record == nil {
		return false, nil
	}

	s.logger.WithField("device_hid", deviceHid).Info("Upgrade canceled")
	return true, nil
}
