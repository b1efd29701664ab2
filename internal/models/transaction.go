package models

import (
	"strings"
	"time"
)

// TransactionType is the outcome a pended confirmation asserts
type TransactionType string

const (
	TransactionSuccess TransactionType = "success"
	TransactionFailure TransactionType = "failure"
)

// ParseTransactionType converts a stored or user-supplied value into a TransactionType
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TransactionSuccess, TransactionFailure:
		return t, nil
	}
	return "", ErrInvalidTransactionType
}

// UpgradeTransaction is a remote confirmation whose acknowledgment has
// not been observed yet
type UpgradeTransaction struct {
	TransactionHid string          `json:"transactionHid"`
	Type           TransactionType `json:"type"`
	Message        string          `json:"message,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// NewUpgradeTransaction creates a pended transaction with validation
func NewUpgradeTransaction(transactionHid string, txType TransactionType, message string) (*UpgradeTransaction, error) {
	if strings.TrimSpace(transactionHid) == "" {
		return nil, ErrEmptyTransactionHid
	}
	if txType != TransactionSuccess && txType != TransactionFailure {
		return nil, ErrInvalidTransactionType
	}

	return &UpgradeTransaction{
		TransactionHid: transactionHid,
		Type:           txType,
		Message:        message,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

var (
	ErrEmptyTransactionHid    = StoreError{"transaction hid cannot be empty"}
	ErrInvalidTransactionType = StoreError{"transaction type must be success or failure"}
)
