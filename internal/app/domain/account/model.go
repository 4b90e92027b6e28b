// Package account defines the balance record for a single owner and the pure
// transitions the ledger applies to it. Transitions operate on value
// snapshots; the storage layer performs the actual atomic write with a
// version check.
package account

import (
	"time"

	"github.com/workmesh/workledger/internal/errors"
)

// DefaultCurrency is assigned to accounts created lazily.
const DefaultCurrency = "USD"

// Account holds the spendable and escrowed balances for one owner. Balance
// excludes held funds: a hold moves the amount from Balance into HeldBalance.
// Amounts are minor units (cents). Version supports optimistic locking and is
// advanced by the store on every committed write.
type Account struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Balance     int64     `json:"balance"`
	HeldBalance int64     `json:"held_balance"`
	TotalEarned int64     `json:"total_earned"`
	TotalSpent  int64     `json:"total_spent"`
	Currency    string    `json:"currency"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Credit adds amount to the spendable balance.
func Credit(a Account, amount int64) (Account, error) {
	if err := validateAmount(amount); err != nil {
		return Account{}, err
	}
	a.Balance += amount
	a.TotalEarned += amount
	return a, nil
}

// Debit removes amount from the spendable balance.
func Debit(a Account, amount int64) (Account, error) {
	if err := validateAmount(amount); err != nil {
		return Account{}, err
	}
	if a.Balance < amount {
		return Account{}, errors.InsufficientFunds("account %s: balance %d below %d", a.ID, a.Balance, amount)
	}
	a.Balance -= amount
	a.TotalSpent += amount
	return a, nil
}

// Hold moves amount from the spendable balance into escrow.
func Hold(a Account, amount int64) (Account, error) {
	if err := validateAmount(amount); err != nil {
		return Account{}, err
	}
	if a.Balance < amount {
		return Account{}, errors.InsufficientFunds("account %s: balance %d below hold %d", a.ID, a.Balance, amount)
	}
	a.Balance -= amount
	a.HeldBalance += amount
	return a, nil
}

// Release removes amount from escrow. Crediting the counterparty is a
// separate transition applied atomically in the same settlement.
func Release(a Account, amount int64) (Account, error) {
	if err := validateAmount(amount); err != nil {
		return Account{}, err
	}
	if a.HeldBalance < amount {
		return Account{}, errors.InsufficientHeld("account %s: held %d below %d", a.ID, a.HeldBalance, amount)
	}
	a.HeldBalance -= amount
	return a, nil
}

// Refund returns amount from escrow to the same owner's spendable balance.
func Refund(a Account, amount int64) (Account, error) {
	if err := validateAmount(amount); err != nil {
		return Account{}, err
	}
	if a.HeldBalance < amount {
		return Account{}, errors.InsufficientHeld("account %s: held %d below refund %d", a.ID, a.HeldBalance, amount)
	}
	a.HeldBalance -= amount
	a.Balance += amount
	return a, nil
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return errors.Validation("amount must be positive, got %d", amount)
	}
	return nil
}
