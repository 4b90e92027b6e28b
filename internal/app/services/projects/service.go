// Package projects manages the project lifecycle: drafting, bidding,
// assignment, milestone progression and the dual-confirmation completion
// protocol.
package projects

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/workmesh/workledger/internal/app/auth"
	"github.com/workmesh/workledger/internal/app/cache"
	"github.com/workmesh/workledger/internal/app/domain/project"
	"github.com/workmesh/workledger/internal/app/metrics"
	"github.com/workmesh/workledger/internal/app/notify"
	"github.com/workmesh/workledger/internal/app/storage"
	apperr "github.com/workmesh/workledger/internal/errors"
	"github.com/workmesh/workledger/pkg/logger"
)

// maxRetries bounds version-conflict retries per operation.
const maxRetries = 3

// CreateRequest describes a new draft project.
type CreateRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	BudgetTotal int64            `json:"budget_total"`
	Currency    string           `json:"currency,omitempty"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     time.Time        `json:"end_date"`
	Milestones  []MilestoneInput `json:"milestones,omitempty"`
}

// MilestoneInput describes one milestone of a new project.
type MilestoneInput struct {
	Title   string    `json:"title"`
	Amount  int64     `json:"amount"`
	DueDate time.Time `json:"due_date"`
}

// BidRequest is a freelancer's proposal on an open project.
type BidRequest struct {
	ProposedAmount       int64  `json:"proposed_amount"`
	ProposedDurationDays int    `json:"proposed_duration_days"`
	CoverLetter          string `json:"cover_letter,omitempty"`
}

// Service manages projects. Health scores are recomputed on read from the
// pure calculator; the optional cache only avoids recomputation, never
// staleness, because its keys include the project version.
type Service struct {
	projects storage.ProjectStore
	health   *cache.HealthCache
	notifier notify.Notifier
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates the project service. The health cache may be nil.
func NewService(projects storage.ProjectStore, health *cache.HealthCache, notifier notify.Notifier, log *logger.Logger) *Service {
	if notifier == nil {
		notifier = notify.NewLogNotifier(nil)
	}
	if log == nil {
		log = logger.NewDefault("projects")
	}
	return &Service{
		projects: projects,
		health:   health,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Name() string { return "projects" }

func (s *Service) Start(ctx context.Context) error { return nil }

func (s *Service) Stop(ctx context.Context) error { return nil }

// CreateProject records a new project in DRAFT.
func (s *Service) CreateProject(ctx context.Context, actor auth.Actor, req CreateRequest) (project.Project, error) {
	if actor.ID == "" {
		return project.Project{}, apperr.Unauthorized("project creation requires an authenticated owner")
	}
	if req.Title == "" {
		return project.Project{}, apperr.Validation("title is required")
	}
	if !req.EndDate.After(req.StartDate) {
		return project.Project{}, apperr.Validation("end_date must be after start_date")
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	now := s.now()
	p := project.Project{
		ID:          uuid.NewString(),
		OwnerID:     actor.ID,
		Title:       req.Title,
		Description: req.Description,
		Status:      project.StatusDraft,
		BudgetTotal: req.BudgetTotal,
		Currency:    currency,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		HealthScore: 100,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, m := range req.Milestones {
		if m.Title == "" {
			return project.Project{}, apperr.Validation("milestone title is required")
		}
		p.Milestones = append(p.Milestones, project.Milestone{
			ID:      uuid.NewString(),
			Title:   m.Title,
			Amount:  m.Amount,
			DueDate: m.DueDate,
			Status:  project.MilestonePending,
		})
	}
	if err := p.ValidateBudget(); err != nil {
		return project.Project{}, err
	}

	created, err := s.projects.CreateProject(ctx, p)
	if err != nil {
		return project.Project{}, err
	}
	s.log.WithContext(ctx).WithField("project_id", created.ID).Info("project created")
	return created, nil
}

// GetProject returns the project with a freshly computed health score.
func (s *Service) GetProject(ctx context.Context, id string) (project.Project, error) {
	p, err := s.projects.GetProject(ctx, id)
	if err != nil {
		return project.Project{}, err
	}
	p.HealthScore = s.healthScore(ctx, p)
	return p, nil
}

// ListByOwner returns the owner's projects with fresh health scores.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]project.Project, error) {
	list, err := s.projects.ListProjectsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].HealthScore = s.healthScore(ctx, list[i])
	}
	return list, nil
}

// OpenProject publishes a draft for bidding.
func (s *Service) OpenProject(ctx context.Context, actor auth.Actor, id string) (project.Project, error) {
	updated, err := s.update(ctx, id, func(p project.Project) (project.Project, error) {
		if p.OwnerID != actor.ID && !actor.Admin() {
			return project.Project{}, apperr.Forbidden("only the owner may open project %s", p.ID)
		}
		if err := project.EnsureTransition(p.Status, project.StatusOpen); err != nil {
			return project.Project{}, err
		}
		p.Status = project.StatusOpen
		return p, nil
	})
	if err != nil {
		return project.Project{}, err
	}

	metrics.RecordProjectTransition(string(project.StatusOpen))
	s.notifier.Notify(notify.Event{
		Kind:       notify.KindProjectOpened,
		ProjectID:  updated.ID,
		Recipients: []string{updated.OwnerID},
		OccurredAt: s.now(),
	})
	return updated, nil
}

// CancelProject moves a non-terminal project to CANCELLED. Escrowed funds are
// not touched here; refunds go through the escrow service.
func (s *Service) CancelProject(ctx context.Context, actor auth.Actor, id string) (project.Project, error) {
	updated, err := s.update(ctx, id, func(p project.Project) (project.Project, error) {
		if p.OwnerID != actor.ID && !actor.Admin() {
			return project.Project{}, apperr.Forbidden("only the owner may cancel project %s", p.ID)
		}
		if err := project.EnsureTransition(p.Status, project.StatusCancelled); err != nil {
			return project.Project{}, err
		}
		p.Status = project.StatusCancelled
		return p, nil
	})
	if err != nil {
		return project.Project{}, err
	}

	metrics.RecordProjectTransition(string(project.StatusCancelled))
	s.notifier.Notify(notify.Event{
		Kind:       notify.KindProjectCancelled,
		ProjectID:  updated.ID,
		Recipients: recipients(updated),
		OccurredAt: s.now(),
	})
	return updated, nil
}

// DeleteProject removes a draft. Published projects are cancelled, never
// deleted, so their history survives.
func (s *Service) DeleteProject(ctx context.Context, actor auth.Actor, id string) error {
	p, err := s.projects.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if p.OwnerID != actor.ID && !actor.Admin() {
		return apperr.Forbidden("only the owner may delete project %s", p.ID)
	}
	if p.Status != project.StatusDraft {
		return apperr.InvalidState("only draft projects can be deleted, project %s is %s", p.ID, p.Status)
	}
	return s.projects.DeleteProject(ctx, id)
}

// SubmitBid records or replaces the bidder's proposal on an open project.
func (s *Service) SubmitBid(ctx context.Context, actor auth.Actor, projectID string, req BidRequest) (project.Project, error) {
	if req.ProposedAmount <= 0 {
		return project.Project{}, apperr.Validation("proposed_amount must be positive, got %d", req.ProposedAmount)
	}

	updated, err := s.update(ctx, projectID, func(p project.Project) (project.Project, error) {
		if p.Status != project.StatusOpen {
			return project.Project{}, apperr.InvalidState("project %s is %s, bids require an open project", p.ID, p.Status)
		}
		if p.AssigneeID != "" {
			return project.Project{}, apperr.InvalidState("project %s is already assigned", p.ID)
		}
		if actor.ID == p.OwnerID {
			return project.Project{}, apperr.Validation("owner cannot bid on their own project")
		}

		bid := project.Bid{
			BidderID:             actor.ID,
			ProposedAmount:       req.ProposedAmount,
			ProposedDurationDays: req.ProposedDurationDays,
			CoverLetter:          req.CoverLetter,
			Status:               project.BidPending,
			SubmittedAt:          s.now(),
		}
		if i := p.BidIndex(actor.ID); i >= 0 {
			p.Bids[i] = bid
		} else {
			p.Bids = append(p.Bids, bid)
		}
		return p, nil
	})
	if err != nil {
		return project.Project{}, err
	}

	s.notifier.Notify(notify.Event{
		Kind:       notify.KindBidSubmitted,
		ProjectID:  updated.ID,
		Recipients: []string{updated.OwnerID},
		OccurredAt: s.now(),
	})
	return updated, nil
}

// AcceptBid assigns the project to one bidder. All other bids move to
// REJECTED and are retained; the project enters IN_PROGRESS with the accepted
// amount as its agreed budget.
func (s *Service) AcceptBid(ctx context.Context, actor auth.Actor, projectID, bidderID string) (project.Project, error) {
	updated, err := s.update(ctx, projectID, func(p project.Project) (project.Project, error) {
		if p.OwnerID != actor.ID && !actor.Admin() {
			return project.Project{}, apperr.Forbidden("only the owner may accept bids on project %s", p.ID)
		}
		if err := project.EnsureTransition(p.Status, project.StatusInProgress); err != nil {
			return project.Project{}, err
		}
		idx := p.BidIndex(bidderID)
		if idx < 0 {
			return project.Project{}, apperr.NotFound("no bid from %s on project %s", bidderID, p.ID)
		}

		now := s.now()
		for i := range p.Bids {
			if i == idx {
				p.Bids[i].Status = project.BidAccepted
				p.Bids[i].AcceptedAt = &now
				continue
			}
			p.Bids[i].Status = project.BidRejected
		}
		p.AssigneeID = bidderID
		p.AgreedBudget = p.Bids[idx].ProposedAmount
		p.Status = project.StatusInProgress
		return p, nil
	})
	if err != nil {
		return project.Project{}, err
	}

	metrics.RecordProjectTransition(string(project.StatusInProgress))
	s.notifier.Notify(notify.Event{
		Kind:       notify.KindBidAccepted,
		ProjectID:  updated.ID,
		Recipients: recipients(updated),
		OccurredAt: s.now(),
	})
	return updated, nil
}

// AdvanceMilestone moves a milestone one step forward. The assignee marks
// work completed; the owner approves it.
func (s *Service) AdvanceMilestone(ctx context.Context, actor auth.Actor, projectID, milestoneID string, to project.MilestoneStatus) (project.Project, error) {
	updated, err := s.update(ctx, projectID, func(p project.Project) (project.Project, error) {
		if p.Status != project.StatusInProgress {
			return project.Project{}, apperr.InvalidState("project %s is %s, milestones advance only in progress", p.ID, p.Status)
		}
		idx := p.MilestoneIndex(milestoneID)
		if idx < 0 {
			return project.Project{}, apperr.NotFound("no milestone %s on project %s", milestoneID, p.ID)
		}

		switch to {
		case project.MilestoneCompleted:
			if actor.ID != p.AssigneeID && !actor.Admin() {
				return project.Project{}, apperr.Forbidden("only the assignee may complete milestones")
			}
		case project.MilestoneApproved:
			if actor.ID != p.OwnerID && !actor.Admin() {
				return project.Project{}, apperr.Forbidden("only the owner may approve milestones")
			}
		default:
			return project.Project{}, apperr.Validation("unknown milestone status %q", to)
		}

		next, err := project.AdvanceMilestone(p.Milestones[idx], to, s.now())
		if err != nil {
			return project.Project{}, err
		}
		p.Milestones[idx] = next
		return p, nil
	})
	if err != nil {
		return project.Project{}, err
	}

	s.notifier.Notify(notify.Event{
		Kind:       notify.KindMilestoneAdvanced,
		ProjectID:  updated.ID,
		Recipients: recipients(updated),
		OccurredAt: s.now(),
	})
	return updated, nil
}

// ConfirmCompletion records the actor's completion confirmation. Confirming
// twice is a no-op. The moment both parties have confirmed, the project
// finalizes to COMPLETED exactly once; the version check on the write
// guarantees a racing second confirmation observes the first.
func (s *Service) ConfirmCompletion(ctx context.Context, actor auth.Actor, projectID string) (project.Project, error) {
	var finalized bool
	updated, err := s.update(ctx, projectID, func(p project.Project) (project.Project, error) {
		finalized = false
		if p.Status != project.StatusInProgress {
			return project.Project{}, apperr.InvalidState("project %s is %s, completion requires an in-progress project", p.ID, p.Status)
		}

		now := s.now()
		switch actor.ID {
		case p.OwnerID:
			if p.Completion.ClientConfirmed {
				return p, nil
			}
			p.Completion.ClientConfirmed = true
			p.Completion.ClientConfirmedAt = &now
		case p.AssigneeID:
			if p.Completion.FreelancerConfirmed {
				return p, nil
			}
			p.Completion.FreelancerConfirmed = true
			p.Completion.FreelancerConfirmedAt = &now
		default:
			return project.Project{}, apperr.Forbidden("only the owner or assignee may confirm completion")
		}

		if p.Completion.ClientConfirmed && p.Completion.FreelancerConfirmed {
			p.Status = project.StatusCompleted
			p.Completion.FinalizedAt = &now
			finalized = true
		}
		return p, nil
	})
	if err != nil {
		return project.Project{}, err
	}

	if finalized {
		metrics.RecordProjectTransition(string(project.StatusCompleted))
		s.notifier.Notify(notify.Event{
			Kind:       notify.KindProjectCompleted,
			ProjectID:  updated.ID,
			Recipients: recipients(updated),
			OccurredAt: s.now(),
		})
	}
	return updated, nil
}

// HealthScore returns the current score for the project.
func (s *Service) HealthScore(ctx context.Context, projectID string) (int, error) {
	p, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return s.healthScore(ctx, p), nil
}

func (s *Service) healthScore(ctx context.Context, p project.Project) int {
	if score, ok := s.health.Get(ctx, p.ID, p.Version); ok {
		return score
	}
	score := project.HealthScore(p, s.now())
	s.health.Set(ctx, p.ID, p.Version, score)
	return score
}

// update runs one read-mutate-write cycle with bounded conflict retries.
func (s *Service) update(ctx context.Context, id string, mutate func(project.Project) (project.Project, error)) (project.Project, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		p, err := s.projects.GetProject(ctx, id)
		if err != nil {
			return project.Project{}, err
		}
		next, err := mutate(p)
		if err != nil {
			return project.Project{}, err
		}
		next.UpdatedAt = s.now()

		updated, err := s.projects.UpdateProject(ctx, next)
		if err == nil {
			return updated, nil
		}
		if !apperr.IsCode(err, apperr.CodeConflict) {
			return project.Project{}, err
		}
		metrics.RecordStorageConflict()
		lastErr = err
	}
	return project.Project{}, lastErr
}

func recipients(p project.Project) []string {
	if p.AssigneeID == "" {
		return []string{p.OwnerID}
	}
	return []string{p.OwnerID, p.AssigneeID}
}
