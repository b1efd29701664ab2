package services

import (
	"context"
	"time"
)

// Event types published when the store changes
const (
	EventUpgradeStateChanged  = "upgrade_state_changed"
	EventUpgradeStateDeleted  = "upgrade_state_deleted"
	EventUpgradeStatesCleared = "upgrade_states_cleared"
	EventTransactionPended    = "transaction_pended"
	EventTransactionResolved  = "transaction_resolved"
	EventTransactionsCleared  = "transactions_cleared"
	EventAccountSwitched      = "account_switched"
	EventAccountCleared       = "account_cleared"
)

// Event describes a committed change. It is published after the
// transaction commits, never for a rolled-back write.
type Event struct {
	Type           string      `json:"type"`
	AccountID      string      `json:"accountId"`
	DeviceHid      string      `json:"deviceHid,omitempty"`
	TransactionHid string      `json:"transactionHid,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
	At             time.Time   `json:"at"`
}

// EventPublisher fans committed changes out to observers. Publish must not
// block the caller for long and must not fail the store operation.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// MultiPublisher forwards each event to every publisher in order
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	for _, p := range m {
		p.Publish(ctx, event)
	}
}
