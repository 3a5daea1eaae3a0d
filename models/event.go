package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WeightRole selects which of the two weight columns of an entry an
// operation targets. Registration tracks intent to attend, participation
// tracks the cost-bearing share used at settlement. The two are independent.
type WeightRole string

const (
	RoleRegistrant  WeightRole = "registrant"
	RoleParticipant WeightRole = "participant"
)

// Event is a shared-cost activity paid by many users at settlement time.
//
// Price is nil until the event is settled, unless a manager pre-set it as an
// estimate. After settlement it holds the total price (pay by total) or the
// price per share (pay by ponderation), depending on PaymentByPonderation.
type Event struct {
	ID                    string           `json:"id"`
	Description           string           `json:"description"`
	Date                  time.Time        `json:"date"`
	PaidAt                time.Time        `json:"paid_at"`
	Price                 *decimal.Decimal `json:"price,omitempty"`
	Done                  bool             `json:"done"`
	PaymentByPonderation  bool             `json:"payment_by_ponderation"`
	Remark                string           `json:"remark,omitempty"`
	ManagerID             string           `json:"manager_id"`
	AllowSelfRegistration bool             `json:"allow_self_registration"`
	RegistrationDeadline  *time.Time       `json:"registration_deadline,omitempty"`
}

// HasPrice reports whether a price has been recorded for the event.
func (e *Event) HasPrice() bool {
	return e.Price != nil
}

// SelfRegistrationOpenAt reports whether a user may self-register at the
// given time: the event is not settled, self-registration is enabled and the
// deadline (when set) has not passed. The deadline is a date, inclusive.
func (e *Event) SelfRegistrationOpenAt(now time.Time) bool {
	if e.Done || !e.AllowSelfRegistration {
		return false
	}
	if e.RegistrationDeadline == nil {
		return true
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	dy, dm, dd := e.RegistrationDeadline.Date()
	deadline := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	return !today.After(deadline)
}

// WeightEntry holds one user's weights for one event. An entry with both
// weights at zero is semantically absent and must be deleted rather than
// persisted as a zero row.
type WeightEntry struct {
	EventID       string `json:"event_id"`
	UserID        string `json:"user_id"`
	Registration  int    `json:"registration_weight"`
	Participation int    `json:"participation_weight"`
}

// Weight returns the weight for the given role.
func (w *WeightEntry) Weight(role WeightRole) int {
	if role == RoleRegistrant {
		return w.Registration
	}
	return w.Participation
}

// SetWeight overwrites the weight for the given role.
func (w *WeightEntry) SetWeight(role WeightRole, weight int) {
	if role == RoleRegistrant {
		w.Registration = weight
	} else {
		w.Participation = weight
	}
}

// IsZero reports whether both weights are zero.
func (w *WeightEntry) IsZero() bool {
	return w.Registration == 0 && w.Participation == 0
}

// WeightLine is one row of a weight listing, ready for export. Cost is only
// populated when the event carries a price and the listing targets
// participants.
type WeightLine struct {
	UserID        string           `json:"user_id"`
	Username      string           `json:"username"`
	LastName      string           `json:"last_name,omitempty"`
	Registration  int              `json:"registration_weight"`
	Participation int              `json:"participation_weight"`
	Cost          *decimal.Decimal `json:"cost,omitempty"`
}
