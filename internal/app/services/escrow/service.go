// Package escrow orchestrates fund movements between payer and payee
// accounts. A hold, release or refund either commits all of its record
// updates or none of them; settlements that fail midway are marked
// retryable and re-driven by the reconciler.
package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workmesh/workledger/internal/app/auth"
	"github.com/workmesh/workledger/internal/app/domain/account"
	"github.com/workmesh/workledger/internal/app/domain/payment"
	"github.com/workmesh/workledger/internal/app/metrics"
	"github.com/workmesh/workledger/internal/app/notify"
	"github.com/workmesh/workledger/internal/app/services/ledger"
	"github.com/workmesh/workledger/internal/app/storage"
	apperr "github.com/workmesh/workledger/internal/errors"
	"github.com/workmesh/workledger/pkg/logger"
)

const (
	// maxRetries bounds version-conflict retries per operation.
	maxRetries = 3

	// DefaultPlatformFeeBps is the platform fee in basis points (5%).
	DefaultPlatformFeeBps = 500

	// DefaultMaxAmount caps a single hold at $1,000,000 in minor units.
	DefaultMaxAmount = 100_000_000
)

// Config tunes fee and amount policy.
type Config struct {
	PlatformFeeBps int64 `yaml:"platform_fee_bps"`
	ProcessingFee  int64 `yaml:"processing_fee"`
	MaxAmount      int64 `yaml:"max_amount"`
}

// DefaultConfig returns the production fee policy.
func DefaultConfig() Config {
	return Config{PlatformFeeBps: DefaultPlatformFeeBps, MaxAmount: DefaultMaxAmount}
}

// HoldRequest describes a new escrow hold.
type HoldRequest struct {
	PayerID     string `json:"payer_id"`
	PayeeID     string `json:"payee_id"`
	ProjectID   string `json:"project_id"`
	MilestoneID string `json:"milestone_id,omitempty"`
	Amount      int64  `json:"amount"`
}

// Service moves funds through escrow. All multi-record writes go through the
// escrow store, which commits them atomically with per-record version checks.
type Service struct {
	cfg          Config
	ledger       *ledger.Service
	transactions storage.TransactionStore
	escrow       storage.EscrowStore
	notifier     notify.Notifier
	log          *logger.Logger
}

// NewService creates the escrow orchestrator.
func NewService(
	cfg Config,
	ledgerSvc *ledger.Service,
	transactions storage.TransactionStore,
	escrowStore storage.EscrowStore,
	notifier notify.Notifier,
	log *logger.Logger,
) *Service {
	if cfg.PlatformFeeBps == 0 {
		cfg.PlatformFeeBps = DefaultPlatformFeeBps
	}
	if cfg.MaxAmount == 0 {
		cfg.MaxAmount = DefaultMaxAmount
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(nil)
	}
	if log == nil {
		log = logger.NewDefault("escrow")
	}
	return &Service{
		cfg:          cfg,
		ledger:       ledgerSvc,
		transactions: transactions,
		escrow:       escrowStore,
		notifier:     notifier,
		log:          log,
	}
}

func (s *Service) Name() string { return "escrow" }

func (s *Service) Start(ctx context.Context) error { return nil }

func (s *Service) Stop(ctx context.Context) error { return nil }

// CalculateFees computes the charges taken from the payee leg of a release.
// The platform fee rounds half up.
func (s *Service) CalculateFees(amount int64) payment.Fees {
	return payment.Fees{
		Platform:   (amount*s.cfg.PlatformFeeBps + 5000) / 10000,
		Processing: s.cfg.ProcessingFee,
	}
}

// HoldFunds moves the amount from the payer's spendable balance into escrow
// and records a HELD transaction. The payer's balance check, the balance
// update, the transaction record and the history entry commit together.
func (s *Service) HoldFunds(ctx context.Context, actor auth.Actor, req HoldRequest) (payment.Transaction, error) {
	if req.PayerID == "" || req.PayeeID == "" {
		return payment.Transaction{}, apperr.Validation("payer and payee are required")
	}
	if req.PayerID == req.PayeeID {
		return payment.Transaction{}, apperr.Validation("payer and payee must differ")
	}
	if req.Amount <= 0 {
		return payment.Transaction{}, apperr.Validation("amount must be positive, got %d", req.Amount)
	}
	if req.Amount > s.cfg.MaxAmount {
		return payment.Transaction{}, apperr.Validation("amount %d exceeds maximum %d", req.Amount, s.cfg.MaxAmount)
	}
	if actor.ID != req.PayerID && !actor.Admin() {
		return payment.Transaction{}, apperr.Forbidden("only the payer may place a hold")
	}

	fees := s.CalculateFees(req.Amount)
	if fees.Total() >= req.Amount {
		return payment.Transaction{}, apperr.Validation("amount %d does not cover fees %d", req.Amount, fees.Total())
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		payer, err := s.ledger.EnsureAccount(ctx, req.PayerID)
		if err != nil {
			return payment.Transaction{}, err
		}
		if _, err := s.ledger.EnsureAccount(ctx, req.PayeeID); err != nil {
			return payment.Transaction{}, err
		}

		held, err := account.Hold(payer, req.Amount)
		if err != nil {
			return payment.Transaction{}, err
		}
		now := time.Now().UTC()
		held.UpdatedAt = now

		tx := payment.Transaction{
			ID:          uuid.NewString(),
			PayerID:     payer.OwnerID,
			PayeeID:     req.PayeeID,
			ProjectID:   req.ProjectID,
			MilestoneID: req.MilestoneID,
			Amount:      req.Amount,
			Currency:    payer.Currency,
			Fees:        fees,
			Status:      payment.StatusHeld,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		tx = tx.WithEvent(payment.EventHeld, actor.ID, fmt.Sprintf("held %d", req.Amount), now)

		entry := account.Entry{
			ID:            uuid.NewString(),
			AccountID:     payer.ID,
			Type:          account.EntryHold,
			Amount:        req.Amount,
			BalanceAfter:  held.Balance,
			HeldAfter:     held.HeldBalance,
			Reason:        "escrow hold",
			ProjectID:     req.ProjectID,
			TransactionID: tx.ID,
			CreatedAt:     now,
		}

		created, err := s.escrow.ApplyHold(ctx, held, tx, entry)
		if err == nil {
			metrics.RecordLedgerOperation(ledger.OpHold, nil)
			metrics.AddHeldAmount(req.Amount)
			s.log.WithContext(ctx).
				WithField("transaction_id", created.ID).
				WithField("amount", req.Amount).
				Info("funds held")
			s.notifier.Notify(notify.Event{
				Kind:          notify.KindFundsHeld,
				ProjectID:     req.ProjectID,
				TransactionID: created.ID,
				Amount:        req.Amount,
				Recipients:    []string{req.PayerID, req.PayeeID},
				OccurredAt:    now,
			})
			return created, nil
		}
		if !apperr.IsCode(err, apperr.CodeConflict) {
			return payment.Transaction{}, err
		}
		metrics.RecordStorageConflict()
		lastErr = err
	}
	return payment.Transaction{}, lastErr
}

// ReleaseFunds settles a HELD transaction in the payee's favour. The payer's
// held balance drops by the full amount, the payee is credited the amount net
// of fees, and the record moves to RELEASED. Only the payer or an admin may
// release.
func (s *Service) ReleaseFunds(ctx context.Context, actor auth.Actor, txID string) (payment.Transaction, error) {
	return s.settle(ctx, actor, txID, payment.StatusReleased, false)
}

// RefundFunds settles a HELD transaction back to the payer. The full amount
// returns to the payer's spendable balance with no fee taken, and the record
// moves to REFUNDED. Only the payer or an admin may refund.
func (s *Service) RefundFunds(ctx context.Context, actor auth.Actor, txID string) (payment.Transaction, error) {
	return s.settle(ctx, actor, txID, payment.StatusRefunded, false)
}

// GetTransaction returns a transaction by ID.
func (s *Service) GetTransaction(ctx context.Context, id string) (payment.Transaction, error) {
	return s.transactions.GetTransaction(ctx, id)
}

// ListByProject returns all transactions recorded against a project.
func (s *Service) ListByProject(ctx context.Context, projectID string) ([]payment.Transaction, error) {
	return s.transactions.ListTransactionsByProject(ctx, projectID)
}

// settle drives a HELD transaction to its terminal status. With reconcile set
// it also accepts FAILED retryable transactions, which is how the reconciler
// re-drives interrupted settlements.
func (s *Service) settle(ctx context.Context, actor auth.Actor, txID string, target payment.Status, reconcile bool) (payment.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		tx, err := s.transactions.GetTransaction(ctx, txID)
		if err != nil {
			return payment.Transaction{}, err
		}
		if reconcile && tx.Status == payment.StatusFailed && tx.Retryable {
			// Re-driven settlement proceeds from the failed state.
		} else if err := tx.EnsureSettleable(); err != nil {
			return payment.Transaction{}, err
		}
		if actor.ID != tx.PayerID && !actor.Admin() {
			return payment.Transaction{}, apperr.Forbidden("only the payer may settle transaction %s", tx.ID)
		}

		settled, err := s.settleOnce(ctx, actor, tx, target)
		if err == nil {
			return settled, nil
		}
		if !apperr.IsCode(err, apperr.CodeConflict) {
			return payment.Transaction{}, s.markFailed(ctx, tx, target, err)
		}
		metrics.RecordStorageConflict()
		lastErr = err
	}
	return payment.Transaction{}, lastErr
}

// settleOnce performs one settlement attempt against the snapshots it reads.
func (s *Service) settleOnce(ctx context.Context, actor auth.Actor, tx payment.Transaction, target payment.Status) (payment.Transaction, error) {
	payer, err := s.ledger.GetAccountByOwner(ctx, tx.PayerID)
	if err != nil {
		return payment.Transaction{}, err
	}

	now := time.Now().UTC()
	var (
		accounts []account.Account
		entries  []account.Entry
	)

	switch target {
	case payment.StatusReleased:
		payerNext, err := account.Release(payer, tx.Amount)
		if err != nil {
			return payment.Transaction{}, err
		}
		payerNext.UpdatedAt = now

		payee, err := s.ledger.EnsureAccount(ctx, tx.PayeeID)
		if err != nil {
			return payment.Transaction{}, err
		}
		payeeNext, err := account.Credit(payee, tx.NetAmount())
		if err != nil {
			return payment.Transaction{}, err
		}
		payeeNext.UpdatedAt = now

		accounts = []account.Account{payerNext, payeeNext}
		entries = []account.Entry{
			{
				ID: uuid.NewString(), AccountID: payerNext.ID, Type: account.EntryRelease,
				Amount: tx.Amount, BalanceAfter: payerNext.Balance, HeldAfter: payerNext.HeldBalance,
				Reason: "escrow release", ProjectID: tx.ProjectID, TransactionID: tx.ID, CreatedAt: now,
			},
			{
				ID: uuid.NewString(), AccountID: payeeNext.ID, Type: account.EntryCredit,
				Amount: tx.NetAmount(), BalanceAfter: payeeNext.Balance, HeldAfter: payeeNext.HeldBalance,
				Reason: "escrow payout", ProjectID: tx.ProjectID, TransactionID: tx.ID, CreatedAt: now,
			},
		}
		tx = tx.WithEvent(payment.EventReleased, actor.ID, fmt.Sprintf("released %d net %d", tx.Amount, tx.NetAmount()), now)

	case payment.StatusRefunded:
		payerNext, err := account.Refund(payer, tx.Amount)
		if err != nil {
			return payment.Transaction{}, err
		}
		payerNext.UpdatedAt = now

		accounts = []account.Account{payerNext}
		entries = []account.Entry{
			{
				ID: uuid.NewString(), AccountID: payerNext.ID, Type: account.EntryRefund,
				Amount: tx.Amount, BalanceAfter: payerNext.Balance, HeldAfter: payerNext.HeldBalance,
				Reason: "escrow refund", ProjectID: tx.ProjectID, TransactionID: tx.ID, CreatedAt: now,
			},
		}
		tx = tx.WithEvent(payment.EventRefunded, actor.ID, fmt.Sprintf("refunded %d", tx.Amount), now)

	default:
		return payment.Transaction{}, apperr.Validation("unsupported settlement target %s", target)
	}

	tx.Status = target
	tx.Retryable = false
	tx.UpdatedAt = now

	settled, err := s.escrow.Settle(ctx, accounts, tx, entries)
	if err != nil {
		return payment.Transaction{}, err
	}

	metrics.RecordSettlement(string(target))
	metrics.AddHeldAmount(-tx.Amount)
	s.log.WithContext(ctx).
		WithField("transaction_id", settled.ID).
		WithField("status", string(target)).
		Info("transaction settled")

	kind := notify.KindFundsReleased
	if target == payment.StatusRefunded {
		kind = notify.KindFundsRefunded
	}
	s.notifier.Notify(notify.Event{
		Kind:          kind,
		ProjectID:     settled.ProjectID,
		TransactionID: settled.ID,
		Amount:        settled.Amount,
		Recipients:    []string{settled.PayerID, settled.PayeeID},
		OccurredAt:    now,
	})
	return settled, nil
}

// markFailed records an interrupted settlement as FAILED and retryable so the
// reconciler can re-drive it, then reports the partial failure. Account
// balances are untouched because the settlement write is atomic.
func (s *Service) markFailed(ctx context.Context, tx payment.Transaction, target payment.Status, cause error) error {
	now := time.Now().UTC()
	failed := tx.WithEvent(payment.EventSettlementError, "system", string(target), now)
	failed.Status = payment.StatusFailed
	failed.Retryable = true
	failed.UpdatedAt = now

	if _, err := s.transactions.UpdateTransaction(ctx, failed); err != nil {
		s.log.WithContext(ctx).WithError(err).
			WithField("transaction_id", tx.ID).
			Error("could not record failed settlement")
	}

	metrics.RecordSettlement("failed")
	s.notifier.Notify(notify.Event{
		Kind:          notify.KindSettlementFailed,
		ProjectID:     tx.ProjectID,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Recipients:    []string{tx.PayerID, tx.PayeeID},
		OccurredAt:    now,
	})
	return apperr.PartialFailure("settlement of transaction %s did not complete", tx.ID).WithCause(cause)
}
