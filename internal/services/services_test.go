package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"campus-ledger/internal/locker"
	"campus-ledger/internal/store/memstore"
	"campus-ledger/models"
)

const houseID = "house"

type fixture struct {
	store *memstore.Memstore
	locks *locker.KeyedMutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.New(),
		locks: locker.NewKeyedMutex(),
	}
	f.seedAccount(t, houseID, "house", "", "0")
	return f
}

func (f *fixture) seedAccount(t *testing.T, id, username, lastName, balance string) *models.Account {
	t.Helper()
	acc := &models.Account{
		ID:       id,
		Username: username,
		LastName: lastName,
		Balance:  decimal.RequireFromString(balance),
	}
	require.NoError(t, f.store.Accounts().Create(context.Background(), acc))
	return acc
}

func (f *fixture) seedEvent(t *testing.T, id string, price string) *models.Event {
	t.Helper()
	ev := &models.Event{
		ID:          id,
		Description: "spring gala " + id,
		Date:        time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC),
		ManagerID:   houseID,
	}
	if price != "" {
		p := decimal.RequireFromString(price)
		ev.Price = &p
	}
	require.NoError(t, f.store.Events().Create(context.Background(), ev))
	return ev
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	acc, err := f.store.Accounts().Get(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func requireDecimalEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got),
		"expected %s, got %s", want, got.String())
}
