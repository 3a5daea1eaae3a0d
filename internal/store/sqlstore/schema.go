package sqlstore

import "context"

// Balances are kept in integer cents so they can be moved with a single
// atomic UPDATE. Dates are RFC 3339 text, decimal amounts are text; both
// portable between sqlite and postgres.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		balance_cents BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		date TEXT NOT NULL,
		paid_at TEXT NOT NULL DEFAULT '',
		price TEXT,
		done INTEGER NOT NULL DEFAULT 0,
		payment_by_ponderation INTEGER NOT NULL DEFAULT 0,
		remark TEXT NOT NULL DEFAULT '',
		manager_id TEXT NOT NULL,
		allow_self_registration INTEGER NOT NULL DEFAULT 0,
		registration_deadline TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS event_weights (
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		registration_weight INTEGER NOT NULL DEFAULT 0,
		participation_weight INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (event_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		sender_id TEXT NOT NULL DEFAULT '',
		recipient_id TEXT NOT NULL DEFAULT '',
		operator_id TEXT NOT NULL DEFAULT '',
		event_id TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		is_credit INTEGER NOT NULL DEFAULT 0,
		method TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		justification TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_event ON transactions (event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions (sender_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_recipient ON transactions (recipient_id)`,
}

// Setup creates the tables when they do not exist yet.
func (s *Store) Setup(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.builder.NewQuery(stmt).WithContext(ctx).Execute(); err != nil {
			return err
		}
	}
	return nil
}
