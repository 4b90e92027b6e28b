package account

import "time"

// EntryType labels a ledger history entry.
type EntryType string

const (
	EntryCredit  EntryType = "credit"
	EntryDebit   EntryType = "debit"
	EntryHold    EntryType = "hold"
	EntryRelease EntryType = "release"
	EntryRefund  EntryType = "refund"
)

// Entry is one line of an account's transaction-history view. The view is
// bounded: stores retain the most recent entries per account and evict the
// oldest inline on append.
type Entry struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	Type          EntryType `json:"type"`
	Amount        int64     `json:"amount"`
	BalanceAfter  int64     `json:"balance_after"`
	HeldAfter     int64     `json:"held_after"`
	Reason        string    `json:"reason,omitempty"`
	ProjectID     string    `json:"project_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
