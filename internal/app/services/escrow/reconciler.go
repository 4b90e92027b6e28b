package escrow

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/workmesh/workledger/internal/app/auth"
	"github.com/workmesh/workledger/internal/app/domain/payment"
	"github.com/workmesh/workledger/pkg/logger"
)

// DefaultReconcileSchedule re-drives failed settlements every minute.
const DefaultReconcileSchedule = "@every 1m"

// Reconciler periodically re-drives FAILED retryable transactions to the
// terminal status their interrupted settlement intended.
type Reconciler struct {
	svc      *Service
	schedule string
	log      *logger.Logger
	cron     *cron.Cron
}

// NewReconciler creates a reconciler on the given cron schedule. An empty
// schedule uses the default.
func NewReconciler(svc *Service, schedule string, log *logger.Logger) *Reconciler {
	if schedule == "" {
		schedule = DefaultReconcileSchedule
	}
	if log == nil {
		log = logger.NewDefault("escrow-reconciler")
	}
	return &Reconciler{svc: svc, schedule: schedule, log: log}
}

func (r *Reconciler) Name() string { return "escrow-reconciler" }

// Start schedules the reconcile job.
func (r *Reconciler) Start(ctx context.Context) error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.svc.ReconcileOnce(context.Background()); err != nil {
			r.log.WithError(err).Warn("reconcile pass failed")
		}
	}); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// ReconcileOnce settles every retryable transaction. It returns the number
// successfully settled; individual failures are logged and left retryable for
// the next pass.
func (s *Service) ReconcileOnce(ctx context.Context) (int, error) {
	pending, err := s.transactions.ListRetryableTransactions(ctx)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, tx := range pending {
		target, ok := intendedTarget(tx)
		if !ok {
			s.log.WithField("transaction_id", tx.ID).Warn("retryable transaction has no recorded intent")
			continue
		}
		if _, err := s.settle(ctx, auth.System, tx.ID, target, true); err != nil {
			s.log.WithError(err).WithField("transaction_id", tx.ID).Warn("reconcile settlement failed")
			continue
		}
		settled++
	}

	if len(pending) > 0 {
		s.log.WithField("pending", len(pending)).WithField("settled", settled).Info("reconcile pass complete")
	}
	return settled, nil
}

// intendedTarget recovers the terminal status an interrupted settlement was
// driving toward from the transaction's latest settlement error event.
func intendedTarget(tx payment.Transaction) (payment.Status, bool) {
	for i := len(tx.Events) - 1; i >= 0; i-- {
		if tx.Events[i].Type != payment.EventSettlementError {
			continue
		}
		switch payment.Status(tx.Events[i].Detail) {
		case payment.StatusReleased:
			return payment.StatusReleased, true
		case payment.StatusRefunded:
			return payment.StatusRefunded, true
		}
		return "", false
	}
	return "", false
}
