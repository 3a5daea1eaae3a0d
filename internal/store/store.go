// Package store defines the persistence boundary of the ledger core. The
// core never owns an on-disk format; it talks to these interfaces and the
// concrete stores (memstore, sqlstore) decide the representation.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"campus-ledger/models"
)

// Store bundles the four collaborator stores plus a transactional scope.
// Transactional runs fn against a store whose mutations are committed
// together or not at all; settlement relies on this for its all-or-nothing
// guarantee.
type Store interface {
	Events() EventStore
	Weights() WeightStore
	Accounts() AccountStore
	Transactions() TransactionStore

	Transactional(ctx context.Context, fn func(Store) error) error
}

// EventFilter narrows ListEvents. Zero values mean "no constraint".
type EventFilter struct {
	Year      int
	Done      *bool
	ManagerID string
}

type EventStore interface {
	Create(ctx context.Context, event *models.Event) error
	// Get returns status.ErrEventNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*models.Event, error)
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter EventFilter) ([]*models.Event, error)
}

type WeightStore interface {
	// Get returns (nil, nil) when no entry exists; absence is valent-0
	// for the registry, never an error.
	Get(ctx context.Context, eventID, userID string) (*models.WeightEntry, error)
	// AddDelta atomically adds delta to one role's weight, creating the
	// entry when missing. The increment must not lose concurrent updates.
	AddDelta(ctx context.Context, eventID, userID string, role models.WeightRole, delta int) error
	Upsert(ctx context.Context, entry *models.WeightEntry) error
	// Delete is a no-op when no entry exists.
	Delete(ctx context.Context, eventID, userID string) error
	ListByEvent(ctx context.Context, eventID string) ([]*models.WeightEntry, error)
	DeleteByEvent(ctx context.Context, eventID string) error
}

type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	// Get and GetByUsername return status.ErrAccountNotFound when unknown.
	Get(ctx context.Context, id string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	// AddBalance atomically adds delta (negative for debits) to the
	// account balance.
	AddBalance(ctx context.Context, id string, delta decimal.Decimal) error
	List(ctx context.Context) ([]*models.Account, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	ListByAccount(ctx context.Context, accountID string) ([]*models.Transaction, error)
	ListByEvent(ctx context.Context, eventID string) ([]*models.Transaction, error)
}
