// Package payment defines the escrow transaction record: an append-only
// account of one money movement from payer to payee, with a one-way status
// machine and an ordered audit trail of events.
package payment

import (
	"time"

	"github.com/workmesh/workledger/internal/errors"
)

// Status of a transaction. HELD may move to RELEASED or REFUNDED exactly
// once; both are terminal. FAILED marks a settlement that could not complete
// and, when Retryable, is re-driven by the reconciler.
type Status string

const (
	StatusHeld     Status = "held"
	StatusReleased Status = "released"
	StatusRefunded Status = "refunded"
	StatusFailed   Status = "failed"
)

// Event types appended to the audit trail.
const (
	EventHeld            = "held"
	EventReleased        = "released"
	EventRefunded        = "refunded"
	EventSettlementError = "settlement_error"
)

// Fees breaks down the platform and processing charges taken from the payee
// leg of a release. Refunds carry no fee.
type Fees struct {
	Platform   int64 `json:"platform"`
	Processing int64 `json:"processing"`
}

// Total is the combined fee.
func (f Fees) Total() int64 { return f.Platform + f.Processing }

// Event is one entry of a transaction's audit trail. Events are append-only
// and never rewritten.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail,omitempty"`
}

// Transaction records a single escrow movement. Once settled it is immutable
// apart from its event trail.
type Transaction struct {
	ID          string    `json:"id"`
	PayerID     string    `json:"payer_id"`
	PayeeID     string    `json:"payee_id"`
	ProjectID   string    `json:"project_id,omitempty"`
	MilestoneID string    `json:"milestone_id,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Fees        Fees      `json:"fees"`
	Status      Status    `json:"status"`
	Retryable   bool      `json:"retryable,omitempty"`
	Events      []Event   `json:"events"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NetAmount is what the payee receives on release.
func (t Transaction) NetAmount() int64 {
	return t.Amount - t.Fees.Platform - t.Fees.Processing
}

// Terminal reports whether the transaction can no longer change status.
func (t Transaction) Terminal() bool {
	return t.Status == StatusReleased || t.Status == StatusRefunded
}

// EnsureSettleable returns InvalidState unless the transaction is still HELD.
func (t Transaction) EnsureSettleable() error {
	if t.Status == StatusHeld {
		return nil
	}
	return errors.InvalidState("transaction %s is %s, only held transactions can be settled", t.ID, t.Status)
}

// WithEvent returns the transaction with an audit event appended.
func (t Transaction) WithEvent(eventType, actor, detail string, at time.Time) Transaction {
	events := make([]Event, len(t.Events), len(t.Events)+1)
	copy(events, t.Events)
	t.Events = append(events, Event{Type: eventType, Timestamp: at, Actor: actor, Detail: detail})
	return t
}
