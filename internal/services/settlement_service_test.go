package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-ledger/internal/status"
	"campus-ledger/internal/store"
	"campus-ledger/models"
)

func newSettlement(f *fixture) *SettlementService {
	svc := NewSettlementService(f.store, f.locks, houseID, nil)
	svc.now = func() time.Time {
		return time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestPayByTotal(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1", "alice", "Martin", "100.00")
	f.seedAccount(t, "u2", "bob", "Durand", "100.00")
	f.seedEvent(t, "ev1", "1000.00")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 9, models.RoleParticipant))
	require.NoError(t, weights.Change(ctx, "ev1", "u2", 1, models.RoleParticipant))

	svc := newSettlement(f)
	require.NoError(t, svc.PayByTotal(ctx, "ev1", "op", decimal.RequireFromString("100")))

	// per share = 100/10 = 10.00
	requireDecimalEqual(t, "10.00", f.balance(t, "u1"))
	requireDecimalEqual(t, "90.00", f.balance(t, "u2"))
	requireDecimalEqual(t, "100.00", f.balance(t, houseID))

	ev, err := f.store.Events().Get(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, ev.Done)
	assert.False(t, ev.PaymentByPonderation)
	assert.False(t, ev.PaidAt.IsZero())
	require.True(t, ev.HasPrice())
	requireDecimalEqual(t, "100", *ev.Price)

	rows, err := f.store.Transactions().ListByEvent(ctx, "ev1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, models.KindEventDebit, row.Kind)
		assert.Equal(t, houseID, row.RecipientID)
		assert.Equal(t, "op", row.OperatorID)
	}
}

func TestPayByTotalRoundingDriftPreserved(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"u1", "u2", "u3"} {
		f.seedAccount(t, id, id, "", "50.00")
	}
	f.seedEvent(t, "ev1", "")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, weights.Change(ctx, "ev1", id, 1, models.RoleParticipant))
	}

	svc := newSettlement(f)
	require.NoError(t, svc.PayByTotal(ctx, "ev1", "op", decimal.RequireFromString("100.00")))

	// 100/3 rounds to 33.33 per share; the 0.01 drift stays.
	requireDecimalEqual(t, "16.67", f.balance(t, "u1"))
	requireDecimalEqual(t, "99.99", f.balance(t, houseID))
}

func TestPayByPonderation(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1", "alice", "Martin", "0")
	f.seedAccount(t, "u2", "bob", "Durand", "0")
	f.seedEvent(t, "ev1", "150.00")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 10, models.RoleParticipant))
	require.NoError(t, weights.Change(ctx, "ev1", "u2", 40, models.RoleParticipant))
	// Registration weight must not leak into a participant settlement.
	require.NoError(t, weights.Change(ctx, "ev1", "u2", 5, models.RoleRegistrant))

	svc := newSettlement(f)
	require.NoError(t, svc.PayByPonderation(ctx, "ev1", "op", decimal.RequireFromString("3")))

	requireDecimalEqual(t, "-30", f.balance(t, "u1"))
	requireDecimalEqual(t, "-120", f.balance(t, "u2"))
	requireDecimalEqual(t, "150", f.balance(t, houseID))

	ev, err := f.store.Events().Get(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, ev.Done)
	assert.True(t, ev.PaymentByPonderation)
	require.True(t, ev.HasPrice())
	requireDecimalEqual(t, "3", *ev.Price)
}

func TestEndWithoutPayment(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1", "alice", "Martin", "25.00")
	f.seedEvent(t, "ev1", "")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 2, models.RoleParticipant))

	svc := newSettlement(f)
	require.NoError(t, svc.EndWithoutPayment(ctx, "ev1", "op", "paid in cash on site"))

	requireDecimalEqual(t, "25.00", f.balance(t, "u1"))
	requireDecimalEqual(t, "0", f.balance(t, houseID))

	ev, err := f.store.Events().Get(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, ev.Done)
	assert.Equal(t, "no payment: paid in cash on site", ev.Remark)
	require.True(t, ev.HasPrice())
	requireDecimalEqual(t, "0", *ev.Price)

	rows, err := f.store.Transactions().ListByEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSettlementNoParticipants(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1", "alice", "Martin", "10.00")
	f.seedEvent(t, "ev1", "")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	// Registration alone does not make a participant.
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 3, models.RoleRegistrant))

	svc := newSettlement(f)
	total := decimal.RequireFromString("100")
	assert.ErrorIs(t, svc.PayByTotal(ctx, "ev1", "op", total), status.ErrNoParticipants)
	assert.ErrorIs(t, svc.PayByPonderation(ctx, "ev1", "op", total), status.ErrNoParticipants)

	ev, err := f.store.Events().Get(ctx, "ev1")
	require.NoError(t, err)
	assert.False(t, ev.Done)
	requireDecimalEqual(t, "10.00", f.balance(t, "u1"))
	requireDecimalEqual(t, "0", f.balance(t, houseID))
}

func TestEndWithoutPaymentNeedsNoParticipants(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1", "alice", "Martin", "10.00")
	f.seedEvent(t, "ev1", "")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 3, models.RoleRegistrant))

	// The monetary strategies refuse an event with zero participation; the
	// no-payment close is how such an event still gets closed.
	svc := newSettlement(f)
	require.NoError(t, svc.EndWithoutPayment(ctx, "ev1", "op", "cancelled"))

	ev, err := f.store.Events().Get(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, ev.Done)
	assert.Equal(t, "no payment: cancelled", ev.Remark)
	requireDecimalEqual(t, "10.00", f.balance(t, "u1"))
	requireDecimalEqual(t, "0", f.balance(t, houseID))
}

func TestSettlementExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1", "alice", "Martin", "0")
	f.seedEvent(t, "ev1", "")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 1, models.RoleParticipant))

	svc := newSettlement(f)
	total := decimal.RequireFromString("50")
	require.NoError(t, svc.PayByTotal(ctx, "ev1", "op", total))
	assert.ErrorIs(t, svc.PayByTotal(ctx, "ev1", "op", total), status.ErrEventSettled)
	assert.ErrorIs(t, svc.EndWithoutPayment(ctx, "ev1", "op", "x"), status.ErrEventSettled)

	requireDecimalEqual(t, "-50", f.balance(t, "u1"))
	rows, err := f.store.Transactions().ListByEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSettlementConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1", "alice", "Martin", "0")
	f.seedEvent(t, "ev1", "")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 1, models.RoleParticipant))

	svc := newSettlement(f)
	const attempts = 10
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.PayByTotal(ctx, "ev1", "op", decimal.RequireFromString("30"))
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, status.ErrEventSettled)
		}
	}
	assert.Equal(t, 1, won, "exactly one settlement attempt may succeed")
	requireDecimalEqual(t, "-30", f.balance(t, "u1"))
	requireDecimalEqual(t, "30", f.balance(t, houseID))
}

// failingAccounts makes AddBalance fail for one account so a settlement dies
// mid-flight.
type failingAccounts struct {
	store.AccountStore
	failID string
}

func (a *failingAccounts) AddBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	if id == a.failID {
		return errors.New("storage gone away")
	}
	return a.AccountStore.AddBalance(ctx, id, delta)
}

type failingStore struct {
	store.Store
	failID string
}

func (s *failingStore) Accounts() store.AccountStore {
	return &failingAccounts{AccountStore: s.Store.Accounts(), failID: s.failID}
}

func (s *failingStore) Transactional(ctx context.Context, fn func(store.Store) error) error {
	return s.Store.Transactional(ctx, func(tx store.Store) error {
		return fn(&failingStore{Store: tx, failID: s.failID})
	})
}

func TestSettlementRollsBackOnLedgerFailure(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1", "alice", "Martin", "40.00")
	f.seedAccount(t, "u2", "bob", "Durand", "40.00")
	f.seedEvent(t, "ev1", "")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 1, models.RoleParticipant))
	require.NoError(t, weights.Change(ctx, "ev1", "u2", 1, models.RoleParticipant))

	// u2's debit fails after u1 was already debited; everything must be
	// rolled back.
	svc := NewSettlementService(&failingStore{Store: f.store, failID: "u2"}, f.locks, houseID, nil)
	err := svc.PayByTotal(ctx, "ev1", "op", decimal.RequireFromString("20"))
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrLedgerMutation)

	requireDecimalEqual(t, "40.00", f.balance(t, "u1"))
	requireDecimalEqual(t, "40.00", f.balance(t, "u2"))
	requireDecimalEqual(t, "0", f.balance(t, houseID))

	ev, getErr := f.store.Events().Get(ctx, "ev1")
	require.NoError(t, getErr)
	assert.False(t, ev.Done, "event must stay open after a failed settlement")

	rows, listErr := f.store.Transactions().ListByEvent(ctx, "ev1")
	require.NoError(t, listErr)
	assert.Empty(t, rows)

	// The event stays open, so a retry succeeds once storage recovers.
	retry := newSettlement(f)
	require.NoError(t, retry.PayByTotal(ctx, "ev1", "op", decimal.RequireFromString("20")))
	requireDecimalEqual(t, "20", f.balance(t, houseID))
}

func TestSettlementNegativePriceRejected(t *testing.T) {
	f := newFixture(t)
	svc := newSettlement(f)
	ctx := context.Background()
	neg := decimal.RequireFromString("-1")

	assert.ErrorIs(t, svc.PayByTotal(ctx, "ev1", "op", neg), status.ErrInvalidAmount)
	assert.ErrorIs(t, svc.PayByPonderation(ctx, "ev1", "op", neg), status.ErrInvalidAmount)
}

func TestPriceOfUser(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "u1", "alice", "Martin", "0")
	f.seedAccount(t, "u2", "bob", "Durand", "0")
	f.seedEvent(t, "ev1", "100.00")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 9, models.RoleParticipant))
	require.NoError(t, weights.Change(ctx, "ev1", "u2", 1, models.RoleParticipant))

	svc := newSettlement(f)

	price, err := svc.PriceOfUser(ctx, "ev1", "u1")
	require.NoError(t, err)
	requireDecimalEqual(t, "90.00", price)

	price, err = svc.PriceOfUser(ctx, "ev1", "u2")
	require.NoError(t, err)
	requireDecimalEqual(t, "10.00", price)

	// A user with no entry previews at zero.
	price, err = svc.PriceOfUser(ctx, "ev1", "ghost")
	require.NoError(t, err)
	assert.True(t, price.IsZero())
}

func TestPriceOfUserRoundsAfterMultiply(t *testing.T) {
	f := newFixture(t)
	f.seedEvent(t, "ev1", "100.00")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 1, models.RoleParticipant))
	require.NoError(t, weights.Change(ctx, "ev1", "u2", 1, models.RoleParticipant))
	require.NoError(t, weights.Change(ctx, "ev1", "u3", 1, models.RoleParticipant))

	svc := newSettlement(f)
	price, err := svc.PriceOfUser(ctx, "ev1", "u1")
	require.NoError(t, err)
	// Preview divides then multiplies before rounding: 100/3 -> 33.33.
	requireDecimalEqual(t, "33.33", price)
}

func TestPriceOfUserPonderation(t *testing.T) {
	f := newFixture(t)
	f.seedEvent(t, "ev1", "3")
	ctx := context.Background()
	ev, err := f.store.Events().Get(ctx, "ev1")
	require.NoError(t, err)
	ev.PaymentByPonderation = true
	require.NoError(t, f.store.Events().Update(ctx, ev))

	weights := NewWeightService(f.store, f.locks)
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 40, models.RoleParticipant))

	svc := newSettlement(f)
	price, err := svc.PriceOfUser(ctx, "ev1", "u1")
	require.NoError(t, err)
	requireDecimalEqual(t, "120", price)
}

func TestPriceOfUserNoPrice(t *testing.T) {
	f := newFixture(t)
	f.seedEvent(t, "ev1", "")
	weights := NewWeightService(f.store, f.locks)
	ctx := context.Background()
	require.NoError(t, weights.Change(ctx, "ev1", "u1", 4, models.RoleParticipant))

	svc := newSettlement(f)
	price, err := svc.PriceOfUser(ctx, "ev1", "u1")
	require.NoError(t, err)
	assert.True(t, price.IsZero())
}
