// Package notify pushes settlement results to members. Notification is best
// effort: the settlement is already committed when a notifier runs, so
// failures are logged and never propagated.
package notify

import (
	"context"

	"github.com/shopspring/decimal"
)

// Settlement describes a committed settlement.
type Settlement struct {
	EventID     string                     `json:"event_id"`
	Description string                     `json:"description"`
	Strategy    string                     `json:"strategy"`
	Total       decimal.Decimal            `json:"total"`
	RecipientID string                     `json:"recipient_id"`
	ManagerID   string                     `json:"manager_id"`
	Amounts     map[string]decimal.Decimal `json:"amounts"`
}

type Notifier interface {
	SettlementCompleted(ctx context.Context, s Settlement)
}

// Noop is the default notifier.
type Noop struct{}

func (Noop) SettlementCompleted(context.Context, Settlement) {}
