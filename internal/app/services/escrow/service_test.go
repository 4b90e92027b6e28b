package escrow

import (
	"context"
	"testing"

	"github.com/workmesh/workledger/internal/app/auth"
	"github.com/workmesh/workledger/internal/app/domain/account"
	"github.com/workmesh/workledger/internal/app/domain/payment"
	"github.com/workmesh/workledger/internal/app/services/ledger"
	"github.com/workmesh/workledger/internal/app/storage"
	"github.com/workmesh/workledger/internal/app/storage/memory"
	apperr "github.com/workmesh/workledger/internal/errors"
)

var (
	client     = auth.Actor{ID: "client-1", Role: auth.RoleClient}
	freelancer = auth.Actor{ID: "freelancer-1", Role: auth.RoleFreelancer}
	admin      = auth.Actor{ID: "ops-1", Role: auth.RoleAdmin}
)

type fixture struct {
	store  *memory.Store
	ledger *ledger.Service
	svc    *Service
}

func newFixture(t *testing.T, escrowStore storage.EscrowStore) *fixture {
	t.Helper()
	store := memory.New()
	if escrowStore == nil {
		escrowStore = store
	}
	led := ledger.NewService(store, nil)
	svc := NewService(DefaultConfig(), led, store, escrowStore, nil, nil)
	return &fixture{store: store, ledger: led, svc: svc}
}

func (f *fixture) fund(t *testing.T, ownerID string, amount int64) {
	t.Helper()
	if _, err := f.ledger.Credit(context.Background(), ownerID, amount, "test funding"); err != nil {
		t.Fatalf("fund %s: %v", ownerID, err)
	}
}

func (f *fixture) hold(t *testing.T, amount int64) payment.Transaction {
	t.Helper()
	tx, err := f.svc.HoldFunds(context.Background(), client, HoldRequest{
		PayerID:   client.ID,
		PayeeID:   freelancer.ID,
		ProjectID: "project-1",
		Amount:    amount,
	})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	return tx
}

func (f *fixture) balances(t *testing.T, ownerID string) account.Account {
	t.Helper()
	acct, err := f.ledger.GetAccountByOwner(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("get account %s: %v", ownerID, err)
	}
	return acct
}

func TestHoldFundsMovesBalanceIntoEscrow(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, client.ID, 10_000)

	tx := f.hold(t, 5_000)

	if tx.Status != payment.StatusHeld {
		t.Fatalf("got status %s, want held", tx.Status)
	}
	if tx.Fees.Platform != 250 {
		t.Fatalf("got platform fee %d, want 250", tx.Fees.Platform)
	}
	if tx.NetAmount() != 4_750 {
		t.Fatalf("got net %d, want 4750", tx.NetAmount())
	}
	if len(tx.Events) != 1 || tx.Events[0].Type != payment.EventHeld {
		t.Fatalf("got events %+v, want single held event", tx.Events)
	}

	payer := f.balances(t, client.ID)
	if payer.Balance != 5_000 || payer.HeldBalance != 5_000 {
		t.Fatalf("payer balance=%d held=%d, want 5000/5000", payer.Balance, payer.HeldBalance)
	}
}

func TestHoldFundsInsufficientBalanceChangesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, client.ID, 1_000)

	_, err := f.svc.HoldFunds(context.Background(), client, HoldRequest{
		PayerID: client.ID, PayeeID: freelancer.ID, Amount: 5_000,
	})
	if !apperr.IsCode(err, apperr.CodeInsufficientFunds) {
		t.Fatalf("got %v, want insufficient funds", err)
	}

	payer := f.balances(t, client.ID)
	if payer.Balance != 1_000 || payer.HeldBalance != 0 {
		t.Fatalf("failed hold moved balances: %d/%d", payer.Balance, payer.HeldBalance)
	}
	txs, err := f.svc.ListByProject(context.Background(), "project-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("failed hold recorded %d transactions", len(txs))
	}
}

func TestHoldFundsValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  HoldRequest
	}{
		{"zero amount", HoldRequest{PayerID: client.ID, PayeeID: freelancer.ID}},
		{"negative amount", HoldRequest{PayerID: client.ID, PayeeID: freelancer.ID, Amount: -5}},
		{"over ceiling", HoldRequest{PayerID: client.ID, PayeeID: freelancer.ID, Amount: DefaultMaxAmount + 1}},
		{"self payment", HoldRequest{PayerID: client.ID, PayeeID: client.ID, Amount: 100}},
		{"missing payee", HoldRequest{PayerID: client.ID, Amount: 100}},
	}
	for _, tc := range cases {
		if _, err := f.svc.HoldFunds(ctx, client, tc.req); !apperr.IsCode(err, apperr.CodeValidation) {
			t.Fatalf("%s: got %v, want validation error", tc.name, err)
		}
	}

	_, err := f.svc.HoldFunds(ctx, freelancer, HoldRequest{
		PayerID: client.ID, PayeeID: freelancer.ID, Amount: 100,
	})
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("foreign payer: got %v, want forbidden", err)
	}
}

func TestReleaseFundsPaysNetToPayee(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, client.ID, 10_000)
	tx := f.hold(t, 5_000)

	released, err := f.svc.ReleaseFunds(context.Background(), client, tx.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != payment.StatusReleased {
		t.Fatalf("got status %s, want released", released.Status)
	}

	payer := f.balances(t, client.ID)
	if payer.Balance != 5_000 || payer.HeldBalance != 0 {
		t.Fatalf("payer balance=%d held=%d, want 5000/0", payer.Balance, payer.HeldBalance)
	}
	payee := f.balances(t, freelancer.ID)
	if payee.Balance != 4_750 || payee.HeldBalance != 0 {
		t.Fatalf("payee balance=%d held=%d, want 4750/0", payee.Balance, payee.HeldBalance)
	}
	if payee.TotalEarned != 4_750 {
		t.Fatalf("payee total earned %d, want 4750", payee.TotalEarned)
	}
}

func TestRefundFundsReturnsFullAmount(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, client.ID, 10_000)
	tx := f.hold(t, 5_000)

	refunded, err := f.svc.RefundFunds(context.Background(), admin, tx.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != payment.StatusRefunded {
		t.Fatalf("got status %s, want refunded", refunded.Status)
	}

	payer := f.balances(t, client.ID)
	if payer.Balance != 10_000 || payer.HeldBalance != 0 {
		t.Fatalf("payer balance=%d held=%d, want 10000/0", payer.Balance, payer.HeldBalance)
	}
	payee := f.balances(t, freelancer.ID)
	if payee.Balance != 0 {
		t.Fatalf("refund paid the payee %d", payee.Balance)
	}
}

func TestSettledTransactionCannotSettleAgain(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, client.ID, 10_000)
	tx := f.hold(t, 5_000)

	if _, err := f.svc.ReleaseFunds(context.Background(), client, tx.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := f.svc.RefundFunds(context.Background(), client, tx.ID); !apperr.IsCode(err, apperr.CodeInvalidState) {
		t.Fatalf("refund after release: got %v, want invalid state", err)
	}
	if _, err := f.svc.ReleaseFunds(context.Background(), client, tx.ID); !apperr.IsCode(err, apperr.CodeInvalidState) {
		t.Fatalf("double release: got %v, want invalid state", err)
	}

	payee := f.balances(t, freelancer.ID)
	if payee.Balance != 4_750 {
		t.Fatalf("payee balance %d after double settle attempts, want 4750", payee.Balance)
	}
}

func TestSettlementAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, client.ID, 10_000)
	tx := f.hold(t, 5_000)

	if _, err := f.svc.ReleaseFunds(context.Background(), freelancer, tx.ID); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("payee release: got %v, want forbidden", err)
	}

	if _, err := f.svc.ReleaseFunds(context.Background(), admin, tx.ID); err != nil {
		t.Fatalf("admin release: %v", err)
	}
}

func TestCalculateFeesRoundsHalfUp(t *testing.T) {
	f := newFixture(t, nil)

	// 101 -> 5.05, 110 -> 5.5, 99 -> 4.95, 1 -> 0.05 before rounding.
	cases := []struct {
		amount int64
		want   int64
	}{
		{10_000, 500},
		{5_000, 250},
		{101, 5},
		{110, 6},
		{99, 5},
		{1, 0},
	}
	for _, tc := range cases {
		if got := f.svc.CalculateFees(tc.amount).Platform; got != tc.want {
			t.Fatalf("fee(%d) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

// flakyEscrowStore fails a fixed number of Settle calls with an internal
// error before delegating.
type flakyEscrowStore struct {
	storage.EscrowStore
	failures int
}

func (s *flakyEscrowStore) Settle(ctx context.Context, accounts []account.Account, tx payment.Transaction, entries []account.Entry) (payment.Transaction, error) {
	if s.failures > 0 {
		s.failures--
		return payment.Transaction{}, apperr.Internal("storage unavailable")
	}
	return s.EscrowStore.Settle(ctx, accounts, tx, entries)
}

func TestFailedSettlementIsRetryableAndReconciled(t *testing.T) {
	store := memory.New()
	flaky := &flakyEscrowStore{EscrowStore: store, failures: 1}
	led := ledger.NewService(store, nil)
	svc := NewService(DefaultConfig(), led, store, flaky, nil, nil)
	ctx := context.Background()

	if _, err := led.Credit(ctx, client.ID, 10_000, "test funding"); err != nil {
		t.Fatalf("fund: %v", err)
	}
	tx, err := svc.HoldFunds(ctx, client, HoldRequest{
		PayerID: client.ID, PayeeID: freelancer.ID, ProjectID: "project-1", Amount: 5_000,
	})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	_, err = svc.ReleaseFunds(ctx, client, tx.ID)
	if !apperr.IsCode(err, apperr.CodePartialFailure) {
		t.Fatalf("got %v, want partial failure", err)
	}

	failed, err := svc.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if failed.Status != payment.StatusFailed || !failed.Retryable {
		t.Fatalf("got status=%s retryable=%v, want failed/true", failed.Status, failed.Retryable)
	}

	// Balances are untouched until the settlement commits.
	payer, err := led.GetAccountByOwner(ctx, client.ID)
	if err != nil {
		t.Fatalf("get payer: %v", err)
	}
	if payer.Balance != 5_000 || payer.HeldBalance != 5_000 {
		t.Fatalf("payer balance=%d held=%d after failed settlement, want 5000/5000", payer.Balance, payer.HeldBalance)
	}

	settled, err := svc.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if settled != 1 {
		t.Fatalf("reconciled %d transactions, want 1", settled)
	}

	final, err := svc.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != payment.StatusReleased {
		t.Fatalf("got status %s after reconcile, want released", final.Status)
	}
	payee, err := led.GetAccountByOwner(ctx, freelancer.ID)
	if err != nil {
		t.Fatalf("get payee: %v", err)
	}
	if payee.Balance != 4_750 {
		t.Fatalf("payee balance %d after reconcile, want 4750", payee.Balance)
	}
}
