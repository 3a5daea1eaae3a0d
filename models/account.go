package models

import (
	"github.com/shopspring/decimal"
)

// Account is a member's internal ledger account. The balance is a signed
// decimal: debits decrease it, credits increase it, and overdraft is allowed
// everywhere except peer-to-peer transfers.
type Account struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	FirstName string          `json:"first_name,omitempty"`
	LastName  string          `json:"last_name,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
}

// DisplayName returns the account's human-readable name, falling back to the
// username when no name is recorded.
func (a *Account) DisplayName() string {
	if a.FirstName == "" && a.LastName == "" {
		return a.Username
	}
	if a.FirstName == "" {
		return a.LastName
	}
	return a.FirstName + " " + a.LastName
}
