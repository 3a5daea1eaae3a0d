package status

import "errors"

var (
	ErrInvalidWeight      = errors.New("weights: weight must be a non-negative integer")
	ErrEventNotFound      = errors.New("events: event not found")
	ErrEventSettled       = errors.New("events: event already settled")
	ErrNoParticipants     = errors.New("events: no participants")
	ErrRegistrationClosed = errors.New("events: self registration closed")

	ErrAccountNotFound     = errors.New("accounts: account not found")
	ErrInvalidAmount       = errors.New("ledger: amount must be positive")
	ErrSelfTransfer        = errors.New("ledger: sender and recipient are the same account")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrLedgerMutation      = errors.New("ledger: balance mutation failed")
)
