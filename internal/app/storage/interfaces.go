// Package storage declares the persistence contracts for the ledger, escrow
// and project services. Implementations must provide per-record optimistic
// locking: every update carries the version the caller read, and a mismatch
// fails with a storage-conflict error without writing.
package storage

import (
	"context"

	"github.com/workmesh/workledger/internal/app/domain/account"
	"github.com/workmesh/workledger/internal/app/domain/payment"
	"github.com/workmesh/workledger/internal/app/domain/project"
)

// AccountStore persists balance accounts and their bounded history view.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	GetAccountByOwner(ctx context.Context, ownerID string) (account.Account, error)
	ListAccounts(ctx context.Context) ([]account.Account, error)

	// UpdateAccount applies a version-checked write and appends any history
	// entries in the same atomic step, evicting the oldest entries beyond
	// the store's history limit.
	UpdateAccount(ctx context.Context, acct account.Account, entries ...account.Entry) (account.Account, error)

	// ListEntries returns the retained history, most recent first.
	ListEntries(ctx context.Context, accountID string) ([]account.Entry, error)
}

// TransactionStore persists escrow transaction records.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx payment.Transaction) (payment.Transaction, error)
	UpdateTransaction(ctx context.Context, tx payment.Transaction) (payment.Transaction, error)
	GetTransaction(ctx context.Context, id string) (payment.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID string) ([]payment.Transaction, error)
	ListTransactionsByProject(ctx context.Context, projectID string) ([]payment.Transaction, error)

	// ListRetryableTransactions returns failed settlements awaiting
	// reconciliation.
	ListRetryableTransactions(ctx context.Context) ([]payment.Transaction, error)
}

// EscrowStore applies multi-record escrow writes as a single atomic unit.
// Either every record commits or none does; there is no observable state in
// which the transaction record and the account balances disagree.
type EscrowStore interface {
	// ApplyHold persists the payer update (version-checked), the new HELD
	// transaction record and its history entry together.
	ApplyHold(ctx context.Context, payer account.Account, tx payment.Transaction, entry account.Entry) (payment.Transaction, error)

	// Settle persists the updated accounts (each version-checked), the
	// settled transaction record and the history entries together. For a
	// refund both legs collapse into a single account update.
	Settle(ctx context.Context, accounts []account.Account, tx payment.Transaction, entries []account.Entry) (payment.Transaction, error)
}

// ProjectStore persists projects with their embedded milestones, bids and
// completion state.
type ProjectStore interface {
	CreateProject(ctx context.Context, p project.Project) (project.Project, error)
	GetProject(ctx context.Context, id string) (project.Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]project.Project, error)
	ListActiveProjects(ctx context.Context) ([]project.Project, error)

	// UpdateProject applies a version-checked write. Dual-confirmation
	// finalization relies on this check to run exactly once under races.
	UpdateProject(ctx context.Context, p project.Project) (project.Project, error)

	DeleteProject(ctx context.Context, id string) error
}
