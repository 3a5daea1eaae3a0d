// Package memstore is an in-memory store.Store, used by the tests and by
// embedders that do not need durable persistence.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"campus-ledger/internal/status"
	"campus-ledger/internal/store"
	"campus-ledger/models"
)

type state struct {
	events       map[string]*models.Event
	weights      map[string]map[string]*models.WeightEntry
	accounts     map[string]*models.Account
	transactions []*models.Transaction
}

func newState() *state {
	return &state{
		events:   make(map[string]*models.Event),
		weights:  make(map[string]map[string]*models.WeightEntry),
		accounts: make(map[string]*models.Account),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, ev := range s.events {
		copied := *ev
		c.events[id] = &copied
	}
	for eventID, byUser := range s.weights {
		m := make(map[string]*models.WeightEntry, len(byUser))
		for userID, entry := range byUser {
			copied := *entry
			m[userID] = &copied
		}
		c.weights[eventID] = m
	}
	for id, acc := range s.accounts {
		copied := *acc
		c.accounts[id] = &copied
	}
	c.transactions = make([]*models.Transaction, len(s.transactions))
	for i, tx := range s.transactions {
		copied := *tx
		c.transactions[i] = &copied
	}
	return c
}

// Memstore keeps everything behind one mutex. Transactional clones the
// state, runs fn against the clone and swaps it in on success, so a failed
// settlement leaves no trace.
type Memstore struct {
	mu    sync.Mutex
	state *state
	inTx  bool
}

func New() *Memstore {
	return &Memstore{state: newState()}
}

func (m *Memstore) lock() {
	if !m.inTx {
		m.mu.Lock()
	}
}

func (m *Memstore) unlock() {
	if !m.inTx {
		m.mu.Unlock()
	}
}

func (m *Memstore) Events() store.EventStore             { return (*eventStore)(m) }
func (m *Memstore) Weights() store.WeightStore           { return (*weightStore)(m) }
func (m *Memstore) Accounts() store.AccountStore         { return (*accountStore)(m) }
func (m *Memstore) Transactions() store.TransactionStore { return (*transactionStore)(m) }

func (m *Memstore) Transactional(ctx context.Context, fn func(store.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := m.state.clone()
	tx := &Memstore{state: clone, inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = clone
	return nil
}

type eventStore Memstore

func (s *eventStore) Create(ctx context.Context, event *models.Event) error {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	copied := *event
	m.state.events[event.ID] = &copied
	return nil
}

func (s *eventStore) Get(ctx context.Context, id string) (*models.Event, error) {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	ev, ok := m.state.events[id]
	if !ok {
		return nil, status.ErrEventNotFound
	}
	copied := *ev
	return &copied, nil
}

func (s *eventStore) Update(ctx context.Context, event *models.Event) error {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	if _, ok := m.state.events[event.ID]; !ok {
		return status.ErrEventNotFound
	}
	copied := *event
	m.state.events[event.ID] = &copied
	return nil
}

func (s *eventStore) Delete(ctx context.Context, id string) error {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	delete(m.state.events, id)
	delete(m.state.weights, id)
	return nil
}

func (s *eventStore) List(ctx context.Context, filter store.EventFilter) ([]*models.Event, error) {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	var out []*models.Event
	for _, ev := range m.state.events {
		if filter.Year != 0 && ev.Date.Year() != filter.Year {
			continue
		}
		if filter.Done != nil && ev.Done != *filter.Done {
			continue
		}
		if filter.ManagerID != "" && ev.ManagerID != filter.ManagerID {
			continue
		}
		copied := *ev
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type weightStore Memstore

func (s *weightStore) Get(ctx context.Context, eventID, userID string) (*models.WeightEntry, error) {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	entry, ok := m.state.weights[eventID][userID]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (s *weightStore) AddDelta(ctx context.Context, eventID, userID string, role models.WeightRole, delta int) error {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	byUser, ok := m.state.weights[eventID]
	if !ok {
		byUser = make(map[string]*models.WeightEntry)
		m.state.weights[eventID] = byUser
	}
	entry, ok := byUser[userID]
	if !ok {
		entry = &models.WeightEntry{EventID: eventID, UserID: userID}
		byUser[userID] = entry
	}
	entry.SetWeight(role, entry.Weight(role)+delta)
	return nil
}

func (s *weightStore) Upsert(ctx context.Context, entry *models.WeightEntry) error {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	byUser, ok := m.state.weights[entry.EventID]
	if !ok {
		byUser = make(map[string]*models.WeightEntry)
		m.state.weights[entry.EventID] = byUser
	}
	copied := *entry
	byUser[entry.UserID] = &copied
	return nil
}

func (s *weightStore) Delete(ctx context.Context, eventID, userID string) error {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	delete(m.state.weights[eventID], userID)
	return nil
}

func (s *weightStore) ListByEvent(ctx context.Context, eventID string) ([]*models.WeightEntry, error) {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	byUser := m.state.weights[eventID]
	out := make([]*models.WeightEntry, 0, len(byUser))
	for _, entry := range byUser {
		copied := *entry
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *weightStore) DeleteByEvent(ctx context.Context, eventID string) error {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	delete(m.state.weights, eventID)
	return nil
}

type accountStore Memstore

func (s *accountStore) Create(ctx context.Context, account *models.Account) error {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	copied := *account
	m.state.accounts[account.ID] = &copied
	return nil
}

func (s *accountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	acc, ok := m.state.accounts[id]
	if !ok {
		return nil, status.ErrAccountNotFound
	}
	copied := *acc
	return &copied, nil
}

func (s *accountStore) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	for _, acc := range m.state.accounts {
		if acc.Username == username {
			copied := *acc
			return &copied, nil
		}
	}
	return nil, status.ErrAccountNotFound
}

func (s *accountStore) AddBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	acc, ok := m.state.accounts[id]
	if !ok {
		return status.ErrAccountNotFound
	}
	acc.Balance = acc.Balance.Add(delta)
	return nil
}

func (s *accountStore) List(ctx context.Context) ([]*models.Account, error) {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	out := make([]*models.Account, 0, len(m.state.accounts))
	for _, acc := range m.state.accounts {
		copied := *acc
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

type transactionStore Memstore

func (s *transactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	copied := *tx
	m.state.transactions = append(m.state.transactions, &copied)
	return nil
}

func (s *transactionStore) ListByAccount(ctx context.Context, accountID string) ([]*models.Transaction, error) {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	var out []*models.Transaction
	for _, tx := range m.state.transactions {
		if tx.SenderID == accountID || tx.RecipientID == accountID {
			copied := *tx
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *transactionStore) ListByEvent(ctx context.Context, eventID string) ([]*models.Transaction, error) {
	m := (*Memstore)(s)
	m.lock()
	defer m.unlock()
	var out []*models.Transaction
	for _, tx := range m.state.transactions {
		if tx.EventID == eventID {
			copied := *tx
			out = append(out, &copied)
		}
	}
	return out, nil
}
