package services

import (
	"context"
	"log/slog"
	"time"

	"campus-ledger/internal/locker"
	"campus-ledger/internal/status"
	"campus-ledger/internal/store"
	"campus-ledger/models"
)

// EventService owns the event lifecycle around the registry and the
// settlement engine: creation, listing, edits while open, deletion and
// member self-registration. Edits and deletion run under the event lock so
// they cannot interleave with a settlement.
type EventService struct {
	store   store.Store
	locks   locker.Locker
	weights *WeightService

	now func() time.Time
}

func NewEventService(st store.Store, locks locker.Locker, weights *WeightService) *EventService {
	return &EventService{store: st, locks: locks, weights: weights, now: time.Now}
}

func (s *EventService) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = newID()
	}
	event.Done = false
	event.PaidAt = time.Time{}
	if err := s.store.Events().Create(ctx, event); err != nil {
		return err
	}
	slog.Info("event created", "event_id", event.ID, "description", event.Description)
	return nil
}

func (s *EventService) Get(ctx context.Context, eventID string) (*models.Event, error) {
	return s.store.Events().Get(ctx, eventID)
}

func (s *EventService) List(ctx context.Context, filter store.EventFilter) ([]*models.Event, error) {
	return s.store.Events().List(ctx, filter)
}

// Update edits the fields of an open event, including a pre-set price
// estimate. Settlement outcome fields (ponderation flag, done, paid-at)
// belong to the settlement engine and are preserved.
func (s *EventService) Update(ctx context.Context, event *models.Event) error {
	release, err := s.locks.Acquire(ctx, locker.EventKey(event.ID))
	if err != nil {
		return err
	}
	defer release()

	current, err := s.store.Events().Get(ctx, event.ID)
	if err != nil {
		return err
	}
	if current.Done {
		return status.ErrEventSettled
	}
	current.Description = event.Description
	current.Date = event.Date
	current.ManagerID = event.ManagerID
	current.AllowSelfRegistration = event.AllowSelfRegistration
	current.RegistrationDeadline = event.RegistrationDeadline
	current.Price = nil
	if event.Price != nil {
		price := *event.Price
		current.Price = &price
	}
	return s.store.Events().Update(ctx, current)
}

// Delete removes an open event together with its weight entries. Settled
// events are history and stay.
func (s *EventService) Delete(ctx context.Context, eventID string) error {
	release, err := s.locks.Acquire(ctx, locker.EventKey(eventID))
	if err != nil {
		return err
	}
	defer release()

	return s.store.Transactional(ctx, func(tx store.Store) error {
		ev, err := tx.Events().Get(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Done {
			return status.ErrEventSettled
		}
		if err := tx.Weights().DeleteByEvent(ctx, eventID); err != nil {
			return err
		}
		return tx.Events().Delete(ctx, eventID)
	})
}

// SelfRegister lets a member set their own registration weight while the
// event accepts self-registration. The deadline is date-inclusive: on the
// deadline day registration is still open.
func (s *EventService) SelfRegister(ctx context.Context, eventID, userID string, weight int) error {
	ev, err := s.store.Events().Get(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.Done {
		return status.ErrEventSettled
	}
	if !ev.SelfRegistrationOpenAt(s.now()) {
		return status.ErrRegistrationClosed
	}
	return s.weights.Change(ctx, eventID, userID, weight, models.RoleRegistrant)
}
