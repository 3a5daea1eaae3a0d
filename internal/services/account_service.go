package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"campus-ledger/internal/locker"
	"campus-ledger/internal/status"
	"campus-ledger/internal/store"
	"campus-ledger/models"
	"campus-ledger/monitoring"
	"campus-ledger/utils"
)

func newID() string {
	return uuid.NewString()
}

// AccountService covers the ledger movements that are not event
// settlements: recharges, member-to-member transfers, exceptional
// movements and shop sales. Balances may go negative except where a
// rule says otherwise (transfers).
type AccountService struct {
	store store.Store
	locks locker.Locker

	now func() time.Time
}

func NewAccountService(st store.Store, locks locker.Locker) *AccountService {
	return &AccountService{store: st, locks: locks, now: time.Now}
}

func (s *AccountService) Get(ctx context.Context, accountID string) (*models.Account, error) {
	return s.store.Accounts().Get(ctx, accountID)
}

func (s *AccountService) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.store.Accounts().GetByUsername(ctx, username)
}

func (s *AccountService) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = newID()
	}
	return s.store.Accounts().Create(ctx, account)
}

// Recharge credits a member account from an external payment (cash,
// cheque or lydia) recorded by an operator.
func (s *AccountService) Recharge(ctx context.Context, accountID, operatorID string, amount decimal.Decimal, method models.PaymentMethod, reference string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, status.ErrInvalidAmount
	}
	release, err := s.locks.Acquire(ctx, locker.AccountKey(accountID))
	if err != nil {
		return nil, err
	}
	defer release()

	row := &models.Transaction{
		ID:          newID(),
		Kind:        models.KindRecharge,
		RecipientID: accountID,
		OperatorID:  operatorID,
		Amount:      amount,
		IsCredit:    true,
		Method:      method,
		Reference:   reference,
		CreatedAt:   s.now(),
	}
	if row.Reference == "" {
		row.Reference = utils.ReferenceCode("RC")
	}
	err = s.store.Transactional(ctx, func(tx store.Store) error {
		if err := tx.Accounts().AddBalance(ctx, accountID, amount); err != nil {
			return err
		}
		return tx.Transactions().Create(ctx, row)
	})
	if err != nil {
		return nil, err
	}
	monitoring.TrackTransaction(string(models.KindRecharge))
	slog.Info("account recharged",
		"account_id", accountID, "amount", amount.StringFixed(2), "method", method)
	return row, nil
}

// Transfer moves money between two member accounts. Unlike event debits
// it refuses to overdraw the sender.
func (s *AccountService) Transfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, justification string) (*models.Transaction, error) {
	if senderID == recipientID {
		return nil, status.ErrSelfTransfer
	}
	if !amount.IsPositive() {
		return nil, status.ErrInvalidAmount
	}
	release, err := locker.AcquireAll(ctx, s.locks,
		locker.AccountKey(senderID), locker.AccountKey(recipientID))
	if err != nil {
		return nil, err
	}
	defer release()

	row := &models.Transaction{
		ID:            newID(),
		Kind:          models.KindTransfer,
		SenderID:      senderID,
		RecipientID:   recipientID,
		Amount:        amount,
		Justification: justification,
		Reference:     utils.ReferenceCode("TR"),
		CreatedAt:     s.now(),
	}
	err = s.store.Transactional(ctx, func(tx store.Store) error {
		sender, err := tx.Accounts().Get(ctx, senderID)
		if err != nil {
			return err
		}
		if sender.Balance.LessThan(amount) {
			return status.ErrInsufficientBalance
		}
		if err := tx.Accounts().AddBalance(ctx, senderID, amount.Neg()); err != nil {
			return err
		}
		if err := tx.Accounts().AddBalance(ctx, recipientID, amount); err != nil {
			return err
		}
		return tx.Transactions().Create(ctx, row)
	})
	if err != nil {
		return nil, err
	}
	monitoring.TrackTransaction(string(models.KindTransfer))
	return row, nil
}

// ExceptionalMovement credits or debits an account outside any sale or
// event, with a mandatory justification (corrections, penalties).
func (s *AccountService) ExceptionalMovement(ctx context.Context, accountID, operatorID string, amount decimal.Decimal, isCredit bool, justification string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, status.ErrInvalidAmount
	}
	release, err := s.locks.Acquire(ctx, locker.AccountKey(accountID))
	if err != nil {
		return nil, err
	}
	defer release()

	delta := amount
	if !isCredit {
		delta = amount.Neg()
	}
	row := &models.Transaction{
		ID:            newID(),
		Kind:          models.KindExceptionalMovement,
		RecipientID:   accountID,
		OperatorID:    operatorID,
		Amount:        amount,
		IsCredit:      isCredit,
		Justification: justification,
		Reference:     utils.ReferenceCode("EX"),
		CreatedAt:     s.now(),
	}
	err = s.store.Transactional(ctx, func(tx store.Store) error {
		if err := tx.Accounts().AddBalance(ctx, accountID, delta); err != nil {
			return err
		}
		return tx.Transactions().Create(ctx, row)
	})
	if err != nil {
		return nil, err
	}
	monitoring.TrackTransaction(string(models.KindExceptionalMovement))
	return row, nil
}

// Sale debits a member for a shop purchase. Overdraft is allowed, the
// shop decides its own policy before calling.
func (s *AccountService) Sale(ctx context.Context, accountID, operatorID string, amount decimal.Decimal, label string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, status.ErrInvalidAmount
	}
	release, err := s.locks.Acquire(ctx, locker.AccountKey(accountID))
	if err != nil {
		return nil, err
	}
	defer release()

	row := &models.Transaction{
		ID:            newID(),
		Kind:          models.KindSale,
		SenderID:      accountID,
		OperatorID:    operatorID,
		Amount:        amount,
		Justification: label,
		Reference:     utils.ReferenceCode("SA"),
		CreatedAt:     s.now(),
	}
	err = s.store.Transactional(ctx, func(tx store.Store) error {
		if err := tx.Accounts().AddBalance(ctx, accountID, amount.Neg()); err != nil {
			return err
		}
		return tx.Transactions().Create(ctx, row)
	})
	if err != nil {
		return nil, err
	}
	monitoring.TrackTransaction(string(models.KindSale))
	return row, nil
}

// History returns the journal rows touching an account, newest first.
func (s *AccountService) History(ctx context.Context, accountID string) ([]*models.Transaction, error) {
	return s.store.Transactions().ListByAccount(ctx, accountID)
}
