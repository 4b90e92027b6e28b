// Package ledger applies balance operations to owner accounts. Every applied
// operation records a history entry in the same atomic write, so an account's
// retained entries always agree with its balances.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/workmesh/workledger/internal/app/domain/account"
	"github.com/workmesh/workledger/internal/app/metrics"
	"github.com/workmesh/workledger/internal/app/storage"
	apperr "github.com/workmesh/workledger/internal/errors"
	"github.com/workmesh/workledger/pkg/logger"
)

// maxRetries bounds how often a version conflict is retried before the
// conflict is surfaced to the caller.
const maxRetries = 3

// Operation names two purposes: metrics labels and entry reasons.
const (
	OpCredit  = "credit"
	OpDebit   = "debit"
	OpHold    = "hold"
	OpRelease = "release"
	OpRefund  = "refund"
)

// Service is the account ledger. It is stateless; all state lives in the
// injected store.
type Service struct {
	accounts storage.AccountStore
	log      *logger.Logger
}

// NewService creates a ledger service.
func NewService(accounts storage.AccountStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{accounts: accounts, log: log}
}

func (s *Service) Name() string { return "ledger" }

func (s *Service) Start(ctx context.Context) error { return nil }

func (s *Service) Stop(ctx context.Context) error { return nil }

// EnsureAccount returns the owner's account, creating an empty one on first
// use. A concurrent first-use race resolves to the account the other writer
// created.
func (s *Service) EnsureAccount(ctx context.Context, ownerID string) (account.Account, error) {
	if ownerID == "" {
		return account.Account{}, apperr.Validation("owner id is required")
	}

	acct, err := s.accounts.GetAccountByOwner(ctx, ownerID)
	if err == nil {
		return acct, nil
	}
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		return account.Account{}, err
	}

	now := time.Now().UTC()
	created, err := s.accounts.CreateAccount(ctx, account.Account{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Currency:  account.DefaultCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err == nil {
		s.log.WithContext(ctx).WithField("owner_id", ownerID).Info("account created")
		return created, nil
	}
	if apperr.IsCode(err, apperr.CodeConflict) {
		return s.accounts.GetAccountByOwner(ctx, ownerID)
	}
	return account.Account{}, err
}

// GetAccount returns the account by ID.
func (s *Service) GetAccount(ctx context.Context, id string) (account.Account, error) {
	return s.accounts.GetAccount(ctx, id)
}

// GetAccountByOwner returns the account belonging to the owner.
func (s *Service) GetAccountByOwner(ctx context.Context, ownerID string) (account.Account, error) {
	return s.accounts.GetAccountByOwner(ctx, ownerID)
}

// ListEntries returns the account's retained history, most recent first.
func (s *Service) ListEntries(ctx context.Context, accountID string) ([]account.Entry, error) {
	return s.accounts.ListEntries(ctx, accountID)
}

// Credit adds funds to the owner's spendable balance.
func (s *Service) Credit(ctx context.Context, ownerID string, amount int64, reason string) (account.Account, error) {
	return s.apply(ctx, ownerID, OpCredit, amount, reason, account.Credit)
}

// Debit removes funds from the owner's spendable balance.
func (s *Service) Debit(ctx context.Context, ownerID string, amount int64, reason string) (account.Account, error) {
	return s.apply(ctx, ownerID, OpDebit, amount, reason, account.Debit)
}

// Hold moves funds from the owner's spendable balance into escrow.
func (s *Service) Hold(ctx context.Context, ownerID string, amount int64, reason string) (account.Account, error) {
	return s.apply(ctx, ownerID, OpHold, amount, reason, account.Hold)
}

// Release removes funds from the owner's escrowed balance.
func (s *Service) Release(ctx context.Context, ownerID string, amount int64, reason string) (account.Account, error) {
	return s.apply(ctx, ownerID, OpRelease, amount, reason, account.Release)
}

// Refund returns escrowed funds to the owner's spendable balance.
func (s *Service) Refund(ctx context.Context, ownerID string, amount int64, reason string) (account.Account, error) {
	return s.apply(ctx, ownerID, OpRefund, amount, reason, account.Refund)
}

// entryType maps an operation to its history entry type.
func entryType(op string) account.EntryType {
	switch op {
	case OpCredit:
		return account.EntryCredit
	case OpDebit:
		return account.EntryDebit
	case OpHold:
		return account.EntryHold
	case OpRelease:
		return account.EntryRelease
	default:
		return account.EntryRefund
	}
}

// apply runs one ledger operation with bounded conflict retries. The account
// is re-read on every attempt so the mutation always starts from the latest
// committed snapshot.
func (s *Service) apply(
	ctx context.Context,
	ownerID, op string,
	amount int64,
	reason string,
	mutate func(account.Account, int64) (account.Account, error),
) (account.Account, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		acct, err := s.EnsureAccount(ctx, ownerID)
		if err != nil {
			metrics.RecordLedgerOperation(op, err)
			return account.Account{}, err
		}

		next, err := mutate(acct, amount)
		if err != nil {
			metrics.RecordLedgerOperation(op, err)
			return account.Account{}, err
		}
		next.UpdatedAt = time.Now().UTC()

		entry := account.Entry{
			ID:           uuid.NewString(),
			AccountID:    acct.ID,
			Type:         entryType(op),
			Amount:       amount,
			BalanceAfter: next.Balance,
			HeldAfter:    next.HeldBalance,
			Reason:       reason,
			CreatedAt:    next.UpdatedAt,
		}

		updated, err := s.accounts.UpdateAccount(ctx, next, entry)
		if err == nil {
			metrics.RecordLedgerOperation(op, nil)
			s.log.WithContext(ctx).
				WithField("owner_id", ownerID).
				WithField("operation", op).
				WithField("amount", amount).
				Info("ledger operation applied")
			return updated, nil
		}
		if !apperr.IsCode(err, apperr.CodeConflict) {
			metrics.RecordLedgerOperation(op, err)
			return account.Account{}, err
		}

		metrics.RecordStorageConflict()
		lastErr = err
	}

	metrics.RecordLedgerOperation(op, lastErr)
	s.log.WithContext(ctx).
		WithField("owner_id", ownerID).
		WithField("operation", op).
		Warn("ledger operation exhausted conflict retries")
	return account.Account{}, lastErr
}
