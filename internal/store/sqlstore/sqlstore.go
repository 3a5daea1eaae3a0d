// Package sqlstore is the SQL-backed store.Store, written against
// pocketbase/dbx. The sqlite driver (modernc, cgo-free) and the postgres
// driver (lib/pq) are both registered; the caller picks one by name.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"campus-ledger/internal/status"
	"campus-ledger/internal/store"
	"campus-ledger/models"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Store struct {
	db      *dbx.DB
	builder dbx.Builder
}

// Open connects with the named driver ("sqlite" or "postgres") and bootstraps
// the schema.
func Open(driver, dsn string) (*Store, error) {
	db, err := dbx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	s := &Store{db: db, builder: db}
	if err := s.Setup(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("setup %s store: %w", driver, err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Events() store.EventStore             { return (*eventStore)(s) }
func (s *Store) Weights() store.WeightStore           { return (*weightStore)(s) }
func (s *Store) Accounts() store.AccountStore         { return (*accountStore)(s) }
func (s *Store) Transactions() store.TransactionStore { return (*transactionStore)(s) }

func (s *Store) Transactional(ctx context.Context, fn func(store.Store) error) error {
	if _, ok := s.builder.(*dbx.Tx); ok {
		return fn(s)
	}
	return s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		return fn(&Store{db: s.db, builder: tx})
	})
}

const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

type eventRow struct {
	ID                    string         `db:"id"`
	Description           string         `db:"description"`
	Date                  string         `db:"date"`
	PaidAt                string         `db:"paid_at"`
	Price                 sql.NullString `db:"price"`
	Done                  bool           `db:"done"`
	PaymentByPonderation  bool           `db:"payment_by_ponderation"`
	Remark                string         `db:"remark"`
	ManagerID             string         `db:"manager_id"`
	AllowSelfRegistration bool           `db:"allow_self_registration"`
	RegistrationDeadline  sql.NullString `db:"registration_deadline"`
}

func (r *eventRow) model() (*models.Event, error) {
	ev := &models.Event{
		ID:                    r.ID,
		Description:           r.Description,
		Date:                  parseTime(r.Date),
		PaidAt:                parseTime(r.PaidAt),
		Done:                  r.Done,
		PaymentByPonderation:  r.PaymentByPonderation,
		Remark:                r.Remark,
		ManagerID:             r.ManagerID,
		AllowSelfRegistration: r.AllowSelfRegistration,
	}
	if r.Price.Valid {
		price, err := decimal.NewFromString(r.Price.String)
		if err != nil {
			return nil, fmt.Errorf("event %s: bad price %q: %w", r.ID, r.Price.String, err)
		}
		ev.Price = &price
	}
	if r.RegistrationDeadline.Valid && r.RegistrationDeadline.String != "" {
		deadline := parseTime(r.RegistrationDeadline.String)
		ev.RegistrationDeadline = &deadline
	}
	return ev, nil
}

func eventParams(ev *models.Event) dbx.Params {
	params := dbx.Params{
		"id":                      ev.ID,
		"description":             ev.Description,
		"date":                    formatTime(ev.Date),
		"paid_at":                 formatTime(ev.PaidAt),
		"price":                   nil,
		"done":                    ev.Done,
		"payment_by_ponderation":  ev.PaymentByPonderation,
		"remark":                  ev.Remark,
		"manager_id":              ev.ManagerID,
		"allow_self_registration": ev.AllowSelfRegistration,
		"registration_deadline":   nil,
	}
	if ev.Price != nil {
		params["price"] = ev.Price.StringFixed(2)
	}
	if ev.RegistrationDeadline != nil {
		params["registration_deadline"] = formatTime(*ev.RegistrationDeadline)
	}
	return params
}

type eventStore Store

func (s *eventStore) Create(ctx context.Context, event *models.Event) error {
	_, err := s.builder.NewQuery(
		`INSERT INTO events (id, description, date, paid_at, price, done, payment_by_ponderation,
			remark, manager_id, allow_self_registration, registration_deadline)
		VALUES ({:id}, {:description}, {:date}, {:paid_at}, {:price}, {:done}, {:payment_by_ponderation},
			{:remark}, {:manager_id}, {:allow_self_registration}, {:registration_deadline})`,
	).Bind(eventParams(event)).WithContext(ctx).Execute()
	return err
}

func (s *eventStore) Get(ctx context.Context, id string) (*models.Event, error) {
	var row eventRow
	err := s.builder.NewQuery(`SELECT * FROM events WHERE id = {:id}`).
		Bind(dbx.Params{"id": id}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.model()
}

func (s *eventStore) Update(ctx context.Context, event *models.Event) error {
	res, err := s.builder.NewQuery(
		`UPDATE events SET description = {:description}, date = {:date}, paid_at = {:paid_at},
			price = {:price}, done = {:done}, payment_by_ponderation = {:payment_by_ponderation},
			remark = {:remark}, manager_id = {:manager_id},
			allow_self_registration = {:allow_self_registration},
			registration_deadline = {:registration_deadline}
		WHERE id = {:id}`,
	).Bind(eventParams(event)).WithContext(ctx).Execute()
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return status.ErrEventNotFound
	}
	return nil
}

func (s *eventStore) Delete(ctx context.Context, id string) error {
	if _, err := s.builder.NewQuery(`DELETE FROM event_weights WHERE event_id = {:id}`).
		Bind(dbx.Params{"id": id}).WithContext(ctx).Execute(); err != nil {
		return err
	}
	_, err := s.builder.NewQuery(`DELETE FROM events WHERE id = {:id}`).
		Bind(dbx.Params{"id": id}).WithContext(ctx).Execute()
	return err
}

func (s *eventStore) List(ctx context.Context, filter store.EventFilter) ([]*models.Event, error) {
	query := `SELECT * FROM events WHERE 1 = 1`
	params := dbx.Params{}
	if filter.Year != 0 {
		query += ` AND substr(date, 1, 4) = {:year}`
		params["year"] = fmt.Sprintf("%04d", filter.Year)
	}
	if filter.Done != nil {
		query += ` AND done = {:done}`
		params["done"] = *filter.Done
	}
	if filter.ManagerID != "" {
		query += ` AND manager_id = {:manager_id}`
		params["manager_id"] = filter.ManagerID
	}
	query += ` ORDER BY date`

	var rows []eventRow
	if err := s.builder.NewQuery(query).Bind(params).WithContext(ctx).All(&rows); err != nil {
		return nil, err
	}
	out := make([]*models.Event, 0, len(rows))
	for i := range rows {
		ev, err := rows[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

type weightRow struct {
	EventID       string `db:"event_id"`
	UserID        string `db:"user_id"`
	Registration  int    `db:"registration_weight"`
	Participation int    `db:"participation_weight"`
}

func (r *weightRow) model() *models.WeightEntry {
	return &models.WeightEntry{
		EventID:       r.EventID,
		UserID:        r.UserID,
		Registration:  r.Registration,
		Participation: r.Participation,
	}
}

type weightStore Store

func (s *weightStore) Get(ctx context.Context, eventID, userID string) (*models.WeightEntry, error) {
	var row weightRow
	err := s.builder.NewQuery(
		`SELECT * FROM event_weights WHERE event_id = {:event} AND user_id = {:user}`,
	).Bind(dbx.Params{"event": eventID, "user": userID}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *weightStore) AddDelta(ctx context.Context, eventID, userID string, role models.WeightRole, delta int) error {
	reg, part := 0, 0
	if role == models.RoleRegistrant {
		reg = delta
	} else {
		part = delta
	}
	// Single upsert so concurrent increments cannot lose updates.
	_, err := s.builder.NewQuery(
		`INSERT INTO event_weights (event_id, user_id, registration_weight, participation_weight)
		VALUES ({:event}, {:user}, {:reg}, {:part})
		ON CONFLICT (event_id, user_id) DO UPDATE SET
			registration_weight = event_weights.registration_weight + {:reg},
			participation_weight = event_weights.participation_weight + {:part}`,
	).Bind(dbx.Params{"event": eventID, "user": userID, "reg": reg, "part": part}).
		WithContext(ctx).Execute()
	return err
}

func (s *weightStore) Upsert(ctx context.Context, entry *models.WeightEntry) error {
	_, err := s.builder.NewQuery(
		`INSERT INTO event_weights (event_id, user_id, registration_weight, participation_weight)
		VALUES ({:event}, {:user}, {:reg}, {:part})
		ON CONFLICT (event_id, user_id) DO UPDATE SET
			registration_weight = {:reg},
			participation_weight = {:part}`,
	).Bind(dbx.Params{
		"event": entry.EventID,
		"user":  entry.UserID,
		"reg":   entry.Registration,
		"part":  entry.Participation,
	}).WithContext(ctx).Execute()
	return err
}

func (s *weightStore) Delete(ctx context.Context, eventID, userID string) error {
	_, err := s.builder.NewQuery(
		`DELETE FROM event_weights WHERE event_id = {:event} AND user_id = {:user}`,
	).Bind(dbx.Params{"event": eventID, "user": userID}).WithContext(ctx).Execute()
	return err
}

func (s *weightStore) ListByEvent(ctx context.Context, eventID string) ([]*models.WeightEntry, error) {
	var rows []weightRow
	err := s.builder.NewQuery(
		`SELECT * FROM event_weights WHERE event_id = {:event} ORDER BY user_id`,
	).Bind(dbx.Params{"event": eventID}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]*models.WeightEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *weightStore) DeleteByEvent(ctx context.Context, eventID string) error {
	_, err := s.builder.NewQuery(`DELETE FROM event_weights WHERE event_id = {:event}`).
		Bind(dbx.Params{"event": eventID}).WithContext(ctx).Execute()
	return err
}

type accountRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	FirstName    string `db:"first_name"`
	LastName     string `db:"last_name"`
	BalanceCents int64  `db:"balance_cents"`
}

func (r *accountRow) model() *models.Account {
	return &models.Account{
		ID:        r.ID,
		Username:  r.Username,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Balance:   fromCents(r.BalanceCents),
	}
}

type accountStore Store

func (s *accountStore) Create(ctx context.Context, account *models.Account) error {
	_, err := s.builder.NewQuery(
		`INSERT INTO accounts (id, username, first_name, last_name, balance_cents)
		VALUES ({:id}, {:username}, {:first_name}, {:last_name}, {:balance_cents})`,
	).Bind(dbx.Params{
		"id":            account.ID,
		"username":      account.Username,
		"first_name":    account.FirstName,
		"last_name":     account.LastName,
		"balance_cents": toCents(account.Balance),
	}).WithContext(ctx).Execute()
	return err
}

func (s *accountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	var row accountRow
	err := s.builder.NewQuery(`SELECT * FROM accounts WHERE id = {:id}`).
		Bind(dbx.Params{"id": id}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *accountStore) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	var row accountRow
	err := s.builder.NewQuery(`SELECT * FROM accounts WHERE username = {:username}`).
		Bind(dbx.Params{"username": username}).WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *accountStore) AddBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	res, err := s.builder.NewQuery(
		`UPDATE accounts SET balance_cents = balance_cents + {:delta} WHERE id = {:id}`,
	).Bind(dbx.Params{"id": id, "delta": toCents(delta)}).WithContext(ctx).Execute()
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return status.ErrAccountNotFound
	}
	return nil
}

func (s *accountStore) List(ctx context.Context) ([]*models.Account, error) {
	var rows []accountRow
	if err := s.builder.NewQuery(`SELECT * FROM accounts ORDER BY username`).
		WithContext(ctx).All(&rows); err != nil {
		return nil, err
	}
	out := make([]*models.Account, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

type transactionRow struct {
	ID            string `db:"id"`
	Kind          string `db:"kind"`
	SenderID      string `db:"sender_id"`
	RecipientID   string `db:"recipient_id"`
	OperatorID    string `db:"operator_id"`
	EventID       string `db:"event_id"`
	Amount        string `db:"amount"`
	IsCredit      bool   `db:"is_credit"`
	Method        string `db:"method"`
	Reference     string `db:"reference"`
	Justification string `db:"justification"`
	CreatedAt     string `db:"created_at"`
}

func (r *transactionRow) model() (*models.Transaction, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: bad amount %q: %w", r.ID, r.Amount, err)
	}
	return &models.Transaction{
		ID:            r.ID,
		Kind:          models.TransactionKind(r.Kind),
		SenderID:      r.SenderID,
		RecipientID:   r.RecipientID,
		OperatorID:    r.OperatorID,
		EventID:       r.EventID,
		Amount:        amount,
		IsCredit:      r.IsCredit,
		Method:        models.PaymentMethod(r.Method),
		Reference:     r.Reference,
		Justification: r.Justification,
		CreatedAt:     parseTime(r.CreatedAt),
	}, nil
}

type transactionStore Store

func (s *transactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	_, err := s.builder.NewQuery(
		`INSERT INTO transactions (id, kind, sender_id, recipient_id, operator_id, event_id,
			amount, is_credit, method, reference, justification, created_at)
		VALUES ({:id}, {:kind}, {:sender_id}, {:recipient_id}, {:operator_id}, {:event_id},
			{:amount}, {:is_credit}, {:method}, {:reference}, {:justification}, {:created_at})`,
	).Bind(dbx.Params{
		"id":            tx.ID,
		"kind":          string(tx.Kind),
		"sender_id":     tx.SenderID,
		"recipient_id":  tx.RecipientID,
		"operator_id":   tx.OperatorID,
		"event_id":      tx.EventID,
		"amount":        tx.Amount.StringFixed(2),
		"is_credit":     tx.IsCredit,
		"method":        string(tx.Method),
		"reference":     tx.Reference,
		"justification": tx.Justification,
		"created_at":    formatTime(tx.CreatedAt),
	}).WithContext(ctx).Execute()
	return err
}

func (s *transactionStore) list(ctx context.Context, query string, params dbx.Params) ([]*models.Transaction, error) {
	var rows []transactionRow
	if err := s.builder.NewQuery(query).Bind(params).WithContext(ctx).All(&rows); err != nil {
		return nil, err
	}
	out := make([]*models.Transaction, 0, len(rows))
	for i := range rows {
		tx, err := rows[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *transactionStore) ListByAccount(ctx context.Context, accountID string) ([]*models.Transaction, error) {
	return s.list(ctx,
		`SELECT * FROM transactions WHERE sender_id = {:id} OR recipient_id = {:id} ORDER BY created_at`,
		dbx.Params{"id": accountID})
}

func (s *transactionStore) ListByEvent(ctx context.Context, eventID string) ([]*models.Transaction, error) {
	return s.list(ctx,
		`SELECT * FROM transactions WHERE event_id = {:id} ORDER BY created_at`,
		dbx.Params{"id": eventID})
}
