package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account is the signed-in user and gateway pairing that owns all
// upgrade state and pended transactions
type Account struct {
	ID         string    `json:"id"`
	GatewayHid string    `json:"gatewayHid"`
	UserEmail  string    `json:"userEmail"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewAccount creates a new Account with validation
func NewAccount(gatewayHid, userEmail string) (*Account, error) {
	gatewayHid = strings.TrimSpace(gatewayHid)
	if gatewayHid == "" {
		return nil, ErrEmptyGatewayHid
	}

	userEmail = strings.TrimSpace(strings.ToLower(userEmail))
	if userEmail != "" && !strings.Contains(userEmail, "@") {
		return nil, ErrInvalidAccountEmail
	}

	return &Account{
		ID:         uuid.New().String(),
		GatewayHid: gatewayHid,
		UserEmail:  userEmail,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

var (
	ErrEmptyGatewayHid     = StoreError{"gateway hid cannot be empty"}
	ErrInvalidAccountEmail = StoreError{"invalid account email"}
)
