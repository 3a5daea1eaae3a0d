package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"campus-ledger/internal/locker"
	"campus-ledger/internal/status"
	"campus-ledger/internal/store"
	"campus-ledger/models"
	"campus-ledger/monitoring"
)

// ListOrder picks the user attribute weight listings are sorted by.
type ListOrder string

const (
	OrderByUsername ListOrder = "username"
	OrderByLastName ListOrder = "last_name"
)

// WeightRow is one row from the external spreadsheet collaborator.
type WeightRow struct {
	Username string
	Weight   int
}

// RowResult reports the outcome of one imported row. Err is nil when the row
// was applied.
type RowResult struct {
	Row      int
	Username string
	Err      error
}

// WeightService is the weight registry: it maintains, per event, the
// registration and participation weight of every user. Mutations run under
// the same event-scoped lock the settlement engine settles under, and check
// the lifecycle inside it: once a settlement commits, no weight of that
// event can change.
type WeightService struct {
	store store.Store
	locks locker.Locker
}

func NewWeightService(st store.Store, locks locker.Locker) *WeightService {
	return &WeightService{store: st, locks: locks}
}

// openEvent loads the event and rejects settled ones.
func (s *WeightService) openEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ev, err := s.store.Events().Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Done {
		return nil, status.ErrEventSettled
	}
	return ev, nil
}

// Add adds delta to one role's weight, creating the entry on first use.
// Negative deltas are rejected; use Change to set an absolute value.
func (s *WeightService) Add(ctx context.Context, eventID, userID string, delta int, role models.WeightRole) error {
	if delta < 0 {
		return status.ErrInvalidWeight
	}

	release, err := s.locks.Acquire(ctx, locker.EventKey(eventID))
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.openEvent(ctx, eventID); err != nil {
		return err
	}
	if delta == 0 {
		// Adding nothing must not materialize a zero row.
		return nil
	}
	if err := s.store.Weights().AddDelta(ctx, eventID, userID, role, delta); err != nil {
		return err
	}
	monitoring.TrackWeightMutation("add")
	return nil
}

// Change sets one role's weight to an absolute value. When both weights end
// up at zero the entry is deleted: a zero row is semantically absent and is
// never persisted.
func (s *WeightService) Change(ctx context.Context, eventID, userID string, weight int, role models.WeightRole) error {
	if weight < 0 {
		return status.ErrInvalidWeight
	}

	release, err := s.locks.Acquire(ctx, locker.EventKey(eventID))
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.openEvent(ctx, eventID); err != nil {
		return err
	}
	entry, err := s.store.Weights().Get(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if entry == nil {
		if weight == 0 {
			return nil
		}
		entry = &models.WeightEntry{EventID: eventID, UserID: userID}
	}
	entry.SetWeight(role, weight)

	if entry.IsZero() {
		err = s.store.Weights().Delete(ctx, eventID, userID)
	} else {
		err = s.store.Weights().Upsert(ctx, entry)
	}
	if err != nil {
		return err
	}
	monitoring.TrackWeightMutation("change")
	return nil
}

// Get returns the role's weight, 0 when no entry exists. Absence is never an
// error.
func (s *WeightService) Get(ctx context.Context, eventID, userID string, role models.WeightRole) (int, error) {
	entry, err := s.store.Weights().Get(ctx, eventID, userID)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, nil
	}
	return entry.Weight(role), nil
}

// RemoveUser deletes the user's entry outright. Removing an absent user is a
// no-op.
func (s *WeightService) RemoveUser(ctx context.Context, eventID, userID string) error {
	release, err := s.locks.Acquire(ctx, locker.EventKey(eventID))
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.openEvent(ctx, eventID); err != nil {
		return err
	}
	if err := s.store.Weights().Delete(ctx, eventID, userID); err != nil {
		return err
	}
	monitoring.TrackWeightMutation("remove")
	return nil
}

// Total sums the role's weight across all entries of the event.
func (s *WeightService) Total(ctx context.Context, eventID string, role models.WeightRole) (int, error) {
	entries, err := s.store.Weights().ListByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, entry := range entries {
		total += entry.Weight(role)
	}
	return total, nil
}

// CountNonzero counts entries whose role weight is non-zero.
func (s *WeightService) CountNonzero(ctx context.Context, eventID string, role models.WeightRole) (int, error) {
	entries, err := s.store.Weights().ListByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if entry.Weight(role) != 0 {
			count++
		}
	}
	return count, nil
}

// List produces the export rows for the event: every user touched, with both
// weights, sorted by the requested user attribute. When the event carries a
// price and the listing targets participants, each row also carries the
// user's projected cost.
func (s *WeightService) List(ctx context.Context, eventID string, role models.WeightRole, order ListOrder) ([]models.WeightLine, error) {
	ev, err := s.store.Events().Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.Weights().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	totalParticipation := 0
	for _, entry := range entries {
		totalParticipation += entry.Participation
	}

	withCost := ev.HasPrice() && role == models.RoleParticipant
	lines := make([]models.WeightLine, 0, len(entries))
	for _, entry := range entries {
		acc, err := s.store.Accounts().Get(ctx, entry.UserID)
		if err != nil {
			return nil, fmt.Errorf("weights of event %s: %w", eventID, err)
		}
		line := models.WeightLine{
			UserID:        entry.UserID,
			Username:      acc.Username,
			LastName:      acc.LastName,
			Registration:  entry.Registration,
			Participation: entry.Participation,
		}
		if withCost {
			cost := previewPrice(ev, totalParticipation, entry.Participation)
			line.Cost = &cost
		}
		lines = append(lines, line)
	}

	sort.Slice(lines, func(i, j int) bool {
		if order == OrderByLastName && lines[i].LastName != lines[j].LastName {
			return lines[i].LastName < lines[j].LastName
		}
		return lines[i].Username < lines[j].Username
	})
	return lines, nil
}

// Import applies rows produced by the spreadsheet collaborator with Change
// semantics. Row-level failures (unknown username, non-positive weight) are
// collected per row and reported back, never swallowed; event-level failures
// abort the whole import.
func (s *WeightService) Import(ctx context.Context, eventID string, role models.WeightRole, rows []WeightRow) ([]RowResult, error) {
	if _, err := s.openEvent(ctx, eventID); err != nil {
		return nil, err
	}

	results := make([]RowResult, 0, len(rows))
	for i, row := range rows {
		result := RowResult{Row: i + 1, Username: row.Username}

		acc, err := s.store.Accounts().GetByUsername(ctx, row.Username)
		switch {
		case errors.Is(err, status.ErrAccountNotFound):
			result.Err = err
		case err != nil:
			return nil, err
		case row.Weight <= 0:
			result.Err = status.ErrInvalidWeight
		default:
			result.Err = s.Change(ctx, eventID, acc.ID, row.Weight, role)
		}
		results = append(results, result)
	}
	return results, nil
}
