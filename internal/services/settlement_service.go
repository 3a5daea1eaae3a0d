package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"campus-ledger/internal/locker"
	"campus-ledger/internal/notify"
	"campus-ledger/internal/status"
	"campus-ledger/internal/store"
	"campus-ledger/models"
	"campus-ledger/monitoring"
	"campus-ledger/utils"
)

// previewPrice is the cost projection shared by the settlement preview and
// the weight listings. Before a ponderation settlement the recorded price is
// a total to divide by the participation weight sum; after one it is a price
// per share to multiply.
func previewPrice(ev *models.Event, totalParticipation, weight int) decimal.Decimal {
	if !ev.HasPrice() {
		return decimal.Zero
	}
	if ev.PaymentByPonderation {
		return ev.Price.Mul(decimal.NewFromInt(int64(weight)))
	}
	if totalParticipation == 0 {
		return decimal.Zero
	}
	return ev.Price.
		Div(decimal.NewFromInt(int64(totalParticipation))).
		Mul(decimal.NewFromInt(int64(weight))).
		Round(2)
}

// SettlementService converts the weight registry of an event into ledger
// movements, exactly once per event. Every strategy runs under the event's
// lock and inside one store transaction: either every participant is debited
// and the event marked done, or nothing is.
type SettlementService struct {
	store       store.Store
	locks       locker.Locker
	notifier    notify.Notifier
	recipientID string

	now func() time.Time
}

// NewSettlementService wires the engine. recipientID is the account credited
// by every settlement (the association's house account, injected rather than
// looked up by a well-known name). notifier may be nil.
func NewSettlementService(st store.Store, locks locker.Locker, recipientID string, notifier notify.Notifier) *SettlementService {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &SettlementService{
		store:       st,
		locks:       locks,
		notifier:    notifier,
		recipientID: recipientID,
		now:         time.Now,
	}
}

type applyFunc func(tx store.Store, ev *models.Event, entries []*models.WeightEntry, totalParticipation int) (map[string]decimal.Decimal, decimal.Decimal, error)

func (s *SettlementService) settle(ctx context.Context, eventID, operatorID, strategy string, apply applyFunc) error {
	release, err := s.locks.Acquire(ctx, locker.EventKey(eventID))
	if err != nil {
		return err
	}
	defer release()

	var outcome notify.Settlement
	err = s.store.Transactional(ctx, func(tx store.Store) error {
		ev, err := tx.Events().Get(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Done {
			return status.ErrEventSettled
		}

		entries, err := tx.Weights().ListByEvent(ctx, eventID)
		if err != nil {
			return err
		}
		totalParticipation := 0
		for _, entry := range entries {
			totalParticipation += entry.Participation
		}

		amounts, moved, err := apply(tx, ev, entries, totalParticipation)
		if err != nil {
			return err
		}

		ev.Done = true
		ev.PaidAt = s.now()
		if err := tx.Events().Update(ctx, ev); err != nil {
			return err
		}

		outcome = notify.Settlement{
			EventID:     ev.ID,
			Description: ev.Description,
			Strategy:    strategy,
			Total:       moved,
			RecipientID: s.recipientID,
			ManagerID:   ev.ManagerID,
			Amounts:     amounts,
		}
		return nil
	})

	if err != nil {
		monitoring.TrackSettlement(strategy, "error", decimal.Zero)
		return err
	}
	monitoring.TrackSettlement(strategy, "ok", outcome.Total)
	slog.Info("event settled",
		"event_id", eventID,
		"strategy", strategy,
		"operator_id", operatorID,
		"total", outcome.Total.StringFixed(2),
		"participants", len(outcome.Amounts))
	s.notifier.SettlementCompleted(ctx, outcome)
	return nil
}

// leg debits one participant and credits the recipient, leaving a journal
// row. Any storage failure surfaces as ErrLedgerMutation so the transaction
// rolls the whole settlement back.
func (s *SettlementService) leg(ctx context.Context, tx store.Store, ev *models.Event, operatorID, userID string, amount decimal.Decimal) error {
	if err := tx.Accounts().AddBalance(ctx, userID, amount.Neg()); err != nil {
		return fmt.Errorf("%w: debit %s: %w", status.ErrLedgerMutation, userID, err)
	}
	if err := tx.Accounts().AddBalance(ctx, s.recipientID, amount); err != nil {
		return fmt.Errorf("%w: credit recipient: %w", status.ErrLedgerMutation, err)
	}
	row := &models.Transaction{
		ID:            newID(),
		Kind:          models.KindEventDebit,
		SenderID:      userID,
		RecipientID:   s.recipientID,
		OperatorID:    operatorID,
		EventID:       ev.ID,
		Amount:        amount,
		Justification: ev.Description,
		Reference:     utils.ReferenceCode("EV"),
		CreatedAt:     s.now(),
	}
	if err := tx.Transactions().Create(ctx, row); err != nil {
		return fmt.Errorf("%w: journal %s: %w", status.ErrLedgerMutation, userID, err)
	}
	monitoring.TrackTransaction(string(models.KindEventDebit))
	return nil
}

// PayByTotal settles the event by dividing totalPrice by the participation
// weight sum. The per-share price is rounded to the cent before multiplying
// by each weight, so the debited sum may drift a few cents from totalPrice;
// that drift is recorded as-is, not redistributed.
func (s *SettlementService) PayByTotal(ctx context.Context, eventID, operatorID string, totalPrice decimal.Decimal) error {
	if totalPrice.IsNegative() {
		return status.ErrInvalidAmount
	}
	return s.settle(ctx, eventID, operatorID, "pay_by_total",
		func(tx store.Store, ev *models.Event, entries []*models.WeightEntry, totalParticipation int) (map[string]decimal.Decimal, decimal.Decimal, error) {
			if totalParticipation == 0 {
				return nil, decimal.Zero, status.ErrNoParticipants
			}
			perShare := totalPrice.
				Div(decimal.NewFromInt(int64(totalParticipation))).
				Round(2)

			amounts := make(map[string]decimal.Decimal)
			moved := decimal.Zero
			for _, entry := range entries {
				if entry.Participation == 0 {
					continue
				}
				amount := perShare.Mul(decimal.NewFromInt(int64(entry.Participation)))
				if err := s.leg(ctx, tx, ev, operatorID, entry.UserID, amount); err != nil {
					return nil, decimal.Zero, err
				}
				amounts[entry.UserID] = amount
				moved = moved.Add(amount)
			}

			price := totalPrice
			ev.Price = &price
			ev.PaymentByPonderation = false
			ev.Remark = fmt.Sprintf("paid by total (total price: %s)", totalPrice.StringFixed(2))
			return amounts, moved, nil
		})
}

// PayByPonderation settles the event with a directly supplied price per
// share: each participant pays pricePerShare times their weight, with no
// division involved.
func (s *SettlementService) PayByPonderation(ctx context.Context, eventID, operatorID string, pricePerShare decimal.Decimal) error {
	if pricePerShare.IsNegative() {
		return status.ErrInvalidAmount
	}
	return s.settle(ctx, eventID, operatorID, "pay_by_ponderation",
		func(tx store.Store, ev *models.Event, entries []*models.WeightEntry, totalParticipation int) (map[string]decimal.Decimal, decimal.Decimal, error) {
			if totalParticipation == 0 {
				return nil, decimal.Zero, status.ErrNoParticipants
			}
			amounts := make(map[string]decimal.Decimal)
			moved := decimal.Zero
			for _, entry := range entries {
				if entry.Participation == 0 {
					continue
				}
				amount := pricePerShare.Mul(decimal.NewFromInt(int64(entry.Participation)))
				if err := s.leg(ctx, tx, ev, operatorID, entry.UserID, amount); err != nil {
					return nil, decimal.Zero, err
				}
				amounts[entry.UserID] = amount
				moved = moved.Add(amount)
			}

			price := pricePerShare
			ev.Price = &price
			ev.PaymentByPonderation = true
			ev.Remark = fmt.Sprintf("paid by ponderation (price per share: %s)", pricePerShare.StringFixed(2))
			return amounts, moved, nil
		})
}

// EndWithoutPayment closes the event without touching any balance, keeping
// it on record (paid outside the ledger, cancelled, and so on). It needs no
// participants: it is the way out for an event the monetary strategies
// refuse to settle.
func (s *SettlementService) EndWithoutPayment(ctx context.Context, eventID, operatorID, remark string) error {
	return s.settle(ctx, eventID, operatorID, "no_payment",
		func(tx store.Store, ev *models.Event, entries []*models.WeightEntry, totalParticipation int) (map[string]decimal.Decimal, decimal.Decimal, error) {
			price := decimal.Zero
			ev.Price = &price
			ev.Remark = "no payment: " + remark
			return map[string]decimal.Decimal{}, decimal.Zero, nil
		})
}

// PriceOfUser projects what the user would pay if the event were settled
// now, without mutating anything. Zero when the event has no price or no
// participation weight.
func (s *SettlementService) PriceOfUser(ctx context.Context, eventID, userID string) (decimal.Decimal, error) {
	ev, err := s.store.Events().Get(ctx, eventID)
	if err != nil {
		return decimal.Zero, err
	}
	entries, err := s.store.Weights().ListByEvent(ctx, eventID)
	if err != nil {
		return decimal.Zero, err
	}
	totalParticipation, weight := 0, 0
	for _, entry := range entries {
		totalParticipation += entry.Participation
		if entry.UserID == userID {
			weight = entry.Participation
		}
	}
	return previewPrice(ev, totalParticipation, weight), nil
}
