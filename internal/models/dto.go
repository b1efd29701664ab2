package models

import "time"

// HealthResponse is returned by health check
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	ActiveAccount bool      `json:"activeAccount"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse describes the current account scope
type SessionResponse struct {
	Active  bool     `json:"active"`
	Account *Account `json:"account,omitempty"`
}

// SetSessionRequest switches the current account
type SetSessionRequest struct {
	AccountID string `json:"accountId"`
}

// CreateAccountRequest is the request body for creating an account
type CreateAccountRequest struct {
	GatewayHid  string `json:"gatewayHid"`
	UserEmail   string `json:"userEmail"`
	MakeCurrent bool   `json:"makeCurrent"`
}

// AccountListResponse is returned when listing accounts
type AccountListResponse struct {
	Accounts  []*Account `json:"accounts"`
	CurrentID string     `json:"currentId,omitempty"`
}

// ResetResponse reports what an account reset removed
type ResetResponse struct {
	UpgradeStatesRemoved int `json:"upgradeStatesRemoved"`
	TransactionsRemoved  int `json:"transactionsRemoved"`
}

// UpsertResponse is returned after writing a device upgrade state
type UpsertResponse struct {
	Result UpsertResult        `json:"result"`
	State  *DeviceUpgradeState `json:"state"`
}

// UpgradeStateListResponse is returned when listing upgrade states
type UpgradeStateListResponse struct {
	States []*DeviceUpgradeState `json:"states"`
	Count  int                   `json:"count"`
}

// RemovedResponse reports whether a keyed delete found its record
type RemovedResponse struct {
	Removed bool `json:"removed"`
}

// AddTransactionRequest is the request body for pending a transaction
type AddTransactionRequest struct {
	TransactionHid string `json:"transactionHid"`
	Type           string `json:"type"`
	Message        string `json:"message"`
}

// AddTransactionResponse reports whether the transaction was newly pended
type AddTransactionResponse struct {
	Added bool `json:"added"`
}

// TransactionListResponse is returned when listing pended transactions
type TransactionListResponse struct {
	Transactions []*UpgradeTransaction `json:"transactions"`
	Count        int                   `json:"count"`
}

// ClearResponse reports how many entries a clear removed
type ClearResponse struct {
	Removed int `json:"removed"`
}
