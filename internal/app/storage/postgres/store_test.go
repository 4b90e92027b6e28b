package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/workmesh/workledger/internal/app/domain/account"
	"github.com/workmesh/workledger/internal/app/domain/payment"
	apperr "github.com/workmesh/workledger/internal/errors"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestMigrateAppliesAllStatements(t *testing.T) {
	store, mock := newMockStore(t)
	for range migrations {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Migrate(context.Background(), store.db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateAccountDuplicateOwnerConflicts(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_owner_id_key"})

	_, err := store.CreateAccount(context.Background(), account.Account{OwnerID: "owner-1"})
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateAccountStaleVersionConflicts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.UpdateAccount(context.Background(), account.Account{ID: "a1", Version: 3})
	if !errors.Is(err, apperr.Sentinel(apperr.CodeConflict)) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateAccountAppendsAndEvictsHistory(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO account_entries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM account_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	updated, err := store.UpdateAccount(context.Background(), account.Account{ID: "a1", Balance: 100, Version: 1},
		account.Entry{AccountID: "a1", Type: account.EntryCredit, Amount: 100, BalanceAfter: 100})
	if err != nil {
		t.Fatalf("update account: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSettleRollsBackOnSecondLegConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	payer := account.Account{ID: "payer", Version: 2}
	payee := account.Account{ID: "payee", Version: 7}
	txr := payment.Transaction{ID: "tx1", Status: payment.StatusReleased, Version: 1}

	_, err := store.Settle(context.Background(), []account.Account{payer, payee}, txr, nil)
	if !errors.Is(err, apperr.Sentinel(apperr.CodeConflict)) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSettleCommitsAllLegs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO account_entries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM account_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO account_entries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM account_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE transactions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payer := account.Account{ID: "payer", Version: 2}
	payee := account.Account{ID: "payee", Balance: 475, Version: 7}
	txr := payment.Transaction{ID: "tx1", Status: payment.StatusReleased, Version: 1}
	entries := []account.Entry{
		{AccountID: "payer", Type: account.EntryRelease, Amount: 500},
		{AccountID: "payee", Type: account.EntryCredit, Amount: 475},
	}

	settled, err := store.Settle(context.Background(), []account.Account{payer, payee}, txr, entries)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Version != 2 {
		t.Fatalf("expected version 2, got %d", settled.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM transactions").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetTransaction(context.Background(), "missing")
	if !errors.Is(err, apperr.Sentinel(apperr.CodeNotFound)) {
		t.Fatalf("expected not found, got %v", err)
	}
}
