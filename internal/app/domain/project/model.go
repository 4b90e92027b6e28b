// Package project defines the lifecycle of a unit of work: its status
// machine, bids, milestones, the dual-confirmation completion protocol and
// the derived health score.
package project

import (
	"time"

	"github.com/workmesh/workledger/internal/errors"
)

// Status of a project. COMPLETED and CANCELLED are terminal.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions is the full set of legal status moves.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusOpen, StatusCancelled},
	StatusOpen:       {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EnsureTransition returns InvalidTransition unless from→to is legal.
func EnsureTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return errors.InvalidTransition("cannot move project from %s to %s", from, to)
}

// MilestoneStatus progresses PENDING → COMPLETED → APPROVED, never backward.
type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneCompleted MilestoneStatus = "completed"
	MilestoneApproved  MilestoneStatus = "approved"
)

// Milestone is a sub-deliverable with its own amount and due date.
type Milestone struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Amount      int64           `json:"amount"`
	DueDate     time.Time       `json:"due_date"`
	Status      MilestoneStatus `json:"status"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty"`
}

// Finished reports whether the milestone no longer counts as outstanding.
func (m Milestone) Finished() bool {
	return m.Status == MilestoneCompleted || m.Status == MilestoneApproved
}

// BidStatus of an applicant's bid. Rejected bids are retained for history
// rather than removed from the applicant list.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// Bid is one applicant's proposal. A bidder has at most one bid per project;
// resubmission overwrites the pending bid in place.
type Bid struct {
	BidderID             string     `json:"bidder_id"`
	ProposedAmount       int64      `json:"proposed_amount"`
	ProposedDurationDays int        `json:"proposed_duration_days"`
	CoverLetter          string     `json:"cover_letter,omitempty"`
	Status               BidStatus  `json:"status"`
	SubmittedAt          time.Time  `json:"submitted_at"`
	AcceptedAt           *time.Time `json:"accepted_at,omitempty"`
}

// Completion tracks the dual-confirmation protocol. The project finalizes
// exactly once, the moment both flags are true.
type Completion struct {
	ClientConfirmed       bool       `json:"client_confirmed"`
	FreelancerConfirmed   bool       `json:"freelancer_confirmed"`
	ClientConfirmedAt     *time.Time `json:"client_confirmed_at,omitempty"`
	FreelancerConfirmedAt *time.Time `json:"freelancer_confirmed_at,omitempty"`
	FinalizedAt           *time.Time `json:"finalized_at,omitempty"`
}

// Project is a unit of work owned by a client, assigned to at most one
// freelancer through bid acceptance. It exclusively owns its milestones and
// bids. HealthScore is a cache of the pure calculator, never authoritative.
type Project struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"owner_id"`
	AssigneeID   string      `json:"assignee_id,omitempty"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Status       Status      `json:"status"`
	BudgetTotal  int64       `json:"budget_total"`
	AgreedBudget int64       `json:"agreed_budget,omitempty"`
	Currency     string      `json:"currency"`
	StartDate    time.Time   `json:"start_date"`
	EndDate      time.Time   `json:"end_date"`
	Milestones   []Milestone `json:"milestones,omitempty"`
	Bids         []Bid       `json:"bids,omitempty"`
	Completion   Completion  `json:"completion"`
	HealthScore  int         `json:"health_score"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// AcceptedBid returns the accepted bid, if any.
func (p Project) AcceptedBid() (Bid, bool) {
	for _, b := range p.Bids {
		if b.Status == BidAccepted {
			return b, true
		}
	}
	return Bid{}, false
}

// BidIndex locates a bidder's bid in the applicant list, or -1.
func (p Project) BidIndex(bidderID string) int {
	for i, b := range p.Bids {
		if b.BidderID == bidderID {
			return i
		}
	}
	return -1
}

// MilestoneIndex locates a milestone by ID, or -1.
func (p Project) MilestoneIndex(milestoneID string) int {
	for i, m := range p.Milestones {
		if m.ID == milestoneID {
			return i
		}
	}
	return -1
}

// ValidateBudget enforces that milestone amounts fit the total budget at
// creation time.
func (p Project) ValidateBudget() error {
	if p.BudgetTotal <= 0 {
		return errors.Validation("budget_total must be positive, got %d", p.BudgetTotal)
	}
	var sum int64
	for _, m := range p.Milestones {
		if m.Amount < 0 {
			return errors.Validation("milestone %q has negative amount", m.Title)
		}
		sum += m.Amount
	}
	if sum > p.BudgetTotal {
		return errors.Validation("milestone amounts %d exceed budget_total %d", sum, p.BudgetTotal)
	}
	return nil
}

// AdvanceMilestone applies the monotonic milestone progression and stamps the
// first entry into each state. Moving backward or skipping is rejected.
func AdvanceMilestone(m Milestone, to MilestoneStatus, now time.Time) (Milestone, error) {
	switch {
	case m.Status == MilestonePending && to == MilestoneCompleted:
		m.Status = MilestoneCompleted
		m.CompletedAt = &now
		return m, nil
	case m.Status == MilestoneCompleted && to == MilestoneApproved:
		m.Status = MilestoneApproved
		m.ApprovedAt = &now
		return m, nil
	default:
		return Milestone{}, errors.InvalidTransition("milestone cannot move from %s to %s", m.Status, to)
	}
}
