package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind identifies what produced a balance movement.
type TransactionKind string

const (
	KindRecharge            TransactionKind = "recharge"
	KindTransfer            TransactionKind = "transfer"
	KindExceptionalMovement TransactionKind = "exceptional_movement"
	KindSale                TransactionKind = "sale"
	KindEventDebit          TransactionKind = "event_debit"
)

// PaymentMethod is how real-world money backed a recharge.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodCheque PaymentMethod = "cheque"
	MethodLydia  PaymentMethod = "lydia"
)

// Transaction is one journal row. Every balance mutation leaves exactly one
// row per leg: a transfer is a single row (sender debited, recipient
// credited), a settlement writes one event_debit row per participant.
type Transaction struct {
	ID            string          `json:"id"`
	Kind          TransactionKind `json:"kind"`
	SenderID      string          `json:"sender_id,omitempty"`
	RecipientID   string          `json:"recipient_id,omitempty"`
	OperatorID    string          `json:"operator_id,omitempty"`
	EventID       string          `json:"event_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	IsCredit      bool            `json:"is_credit"`
	Method        PaymentMethod   `json:"method,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Justification string          `json:"justification,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
