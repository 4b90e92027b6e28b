// Package notify carries domain events from the core services to external
// delivery channels. Delivery is strictly best-effort: a notifier must never
// block a caller or influence already-committed financial state.
package notify

import (
	"time"

	"github.com/workmesh/workledger/pkg/logger"
)

// Event kinds emitted by the core services.
const (
	KindFundsHeld         = "funds_held"
	KindFundsReleased     = "funds_released"
	KindFundsRefunded     = "funds_refunded"
	KindSettlementFailed  = "settlement_failed"
	KindProjectOpened     = "project_opened"
	KindBidSubmitted      = "bid_submitted"
	KindBidAccepted       = "bid_accepted"
	KindProjectCompleted  = "project_completed"
	KindProjectCancelled  = "project_cancelled"
	KindMilestoneOverdue  = "milestone_overdue"
	KindMilestoneAdvanced = "milestone_advanced"
)

// Event is the plain value handed to the notification layer after a committed
// transition.
type Event struct {
	Kind          string    `json:"kind"`
	ProjectID     string    `json:"project_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Recipients    []string  `json:"recipients"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier receives events for delivery.
type Notifier interface {
	Notify(event Event)
}

// LogNotifier writes events to the structured log. It is the default sink
// when no delivery channel is configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewDefault("notify")
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(event Event) {
	n.log.WithField("kind", event.Kind).
		WithField("project_id", event.ProjectID).
		WithField("transaction_id", event.TransactionID).
		WithField("recipients", len(event.Recipients)).
		Info("event emitted")
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(event Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(event)
		}
	}
}
