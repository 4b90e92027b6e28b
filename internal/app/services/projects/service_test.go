package projects

import (
	"context"
	"testing"
	"time"

	"github.com/workmesh/workledger/internal/app/auth"
	"github.com/workmesh/workledger/internal/app/domain/project"
	"github.com/workmesh/workledger/internal/app/notify"
	"github.com/workmesh/workledger/internal/app/storage/memory"
	apperr "github.com/workmesh/workledger/internal/errors"
)

var (
	owner    = auth.Actor{ID: "client-1", Role: auth.RoleClient}
	bidder   = auth.Actor{ID: "freelancer-1", Role: auth.RoleFreelancer}
	bidder2  = auth.Actor{ID: "freelancer-2", Role: auth.RoleFreelancer}
	stranger = auth.Actor{ID: "someone-else", Role: auth.RoleFreelancer}
)

var base = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type recorder struct {
	events []notify.Event
}

func (r *recorder) Notify(e notify.Event) { r.events = append(r.events, e) }

func (r *recorder) kinds() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func newService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	svc := NewService(memory.New(), nil, rec, nil)
	svc.now = func() time.Time { return base }
	return svc, rec
}

func createOpenProject(t *testing.T, svc *Service) project.Project {
	t.Helper()
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, owner, CreateRequest{
		Title:       "Marketplace API",
		BudgetTotal: 50_000,
		StartDate:   base,
		EndDate:     base.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p, err = svc.OpenProject(ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return p
}

func assignProject(t *testing.T, svc *Service) project.Project {
	t.Helper()
	ctx := context.Background()
	p := createOpenProject(t, svc)
	if _, err := svc.SubmitBid(ctx, bidder, p.ID, BidRequest{ProposedAmount: 45_000}); err != nil {
		t.Fatalf("bid: %v", err)
	}
	p, err := svc.AcceptBid(ctx, owner, p.ID, bidder.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return p
}

func TestCreateProjectStartsAsDraft(t *testing.T) {
	svc, _ := newService(t)

	p, err := svc.CreateProject(context.Background(), owner, CreateRequest{
		Title:       "Marketplace API",
		BudgetTotal: 50_000,
		StartDate:   base,
		EndDate:     base.AddDate(0, 1, 0),
		Milestones: []MilestoneInput{
			{Title: "Design", Amount: 20_000, DueDate: base.AddDate(0, 0, 10)},
			{Title: "Build", Amount: 30_000, DueDate: base.AddDate(0, 0, 25)},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != project.StatusDraft {
		t.Fatalf("got status %s, want draft", p.Status)
	}
	if len(p.Milestones) != 2 || p.Milestones[0].Status != project.MilestonePending {
		t.Fatalf("unexpected milestones %+v", p.Milestones)
	}
	if p.HealthScore != 100 {
		t.Fatalf("new project health %d, want 100", p.HealthScore)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"missing title", CreateRequest{BudgetTotal: 100, StartDate: base, EndDate: base.AddDate(0, 1, 0)}},
		{"no budget", CreateRequest{Title: "x", StartDate: base, EndDate: base.AddDate(0, 1, 0)}},
		{"end before start", CreateRequest{Title: "x", BudgetTotal: 100, StartDate: base.AddDate(0, 1, 0), EndDate: base}},
		{"milestones exceed budget", CreateRequest{
			Title: "x", BudgetTotal: 100, StartDate: base, EndDate: base.AddDate(0, 1, 0),
			Milestones: []MilestoneInput{{Title: "m", Amount: 200}},
		}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateProject(ctx, owner, tc.req); !apperr.IsCode(err, apperr.CodeValidation) {
			t.Fatalf("%s: got %v, want validation error", tc.name, err)
		}
	}
}

func TestLifecycleTransitions(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p := createOpenProject(t, svc)

	// Draft-only moves are rejected once open.
	if _, err := svc.OpenProject(ctx, owner, p.ID); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("reopen: got %v, want invalid transition", err)
	}

	cancelled, err := svc.CancelProject(ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != project.StatusCancelled {
		t.Fatalf("got status %s, want cancelled", cancelled.Status)
	}

	// Terminal states accept nothing.
	if _, err := svc.CancelProject(ctx, owner, p.ID); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("cancel cancelled: got %v, want invalid transition", err)
	}
}

func TestOnlyOwnerManagesLifecycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, owner, CreateRequest{
		Title: "x", BudgetTotal: 100, StartDate: base, EndDate: base.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.OpenProject(ctx, stranger, p.ID); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("foreign open: got %v, want forbidden", err)
	}
	if _, err := svc.CancelProject(ctx, stranger, p.ID); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("foreign cancel: got %v, want forbidden", err)
	}
	if err := svc.DeleteProject(ctx, stranger, p.ID); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("foreign delete: got %v, want forbidden", err)
	}
}

func TestSubmitBidUpsertsPerBidder(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p := createOpenProject(t, svc)

	if _, err := svc.SubmitBid(ctx, bidder, p.ID, BidRequest{ProposedAmount: 50_000}); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	updated, err := svc.SubmitBid(ctx, bidder, p.ID, BidRequest{ProposedAmount: 42_000, CoverLetter: "revised"})
	if err != nil {
		t.Fatalf("rebid: %v", err)
	}

	if len(updated.Bids) != 1 {
		t.Fatalf("got %d bids, want 1 after upsert", len(updated.Bids))
	}
	if updated.Bids[0].ProposedAmount != 42_000 || updated.Bids[0].CoverLetter != "revised" {
		t.Fatalf("rebid did not replace: %+v", updated.Bids[0])
	}
}

func TestSubmitBidRules(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	draft, err := svc.CreateProject(ctx, owner, CreateRequest{
		Title: "x", BudgetTotal: 100, StartDate: base, EndDate: base.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SubmitBid(ctx, bidder, draft.ID, BidRequest{ProposedAmount: 90}); !apperr.IsCode(err, apperr.CodeInvalidState) {
		t.Fatalf("bid on draft: got %v, want invalid state", err)
	}

	p := createOpenProject(t, svc)
	if _, err := svc.SubmitBid(ctx, owner, p.ID, BidRequest{ProposedAmount: 90}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("owner bid: got %v, want validation error", err)
	}
	if _, err := svc.SubmitBid(ctx, bidder, p.ID, BidRequest{}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("zero amount: got %v, want validation error", err)
	}
}

func TestAcceptBidAssignsAndRejectsOthers(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	p := createOpenProject(t, svc)

	if _, err := svc.SubmitBid(ctx, bidder, p.ID, BidRequest{ProposedAmount: 50_000}); err != nil {
		t.Fatalf("bid 1: %v", err)
	}
	if _, err := svc.SubmitBid(ctx, bidder2, p.ID, BidRequest{ProposedAmount: 45_000}); err != nil {
		t.Fatalf("bid 2: %v", err)
	}

	if _, err := svc.AcceptBid(ctx, bidder, p.ID, bidder.ID); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("non-owner accept: got %v, want forbidden", err)
	}

	updated, err := svc.AcceptBid(ctx, owner, p.ID, bidder2.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if updated.Status != project.StatusInProgress {
		t.Fatalf("got status %s, want in_progress", updated.Status)
	}
	if updated.AssigneeID != bidder2.ID {
		t.Fatalf("got assignee %q, want %q", updated.AssigneeID, bidder2.ID)
	}
	if updated.AgreedBudget != 45_000 {
		t.Fatalf("got agreed budget %d, want 45000", updated.AgreedBudget)
	}

	accepted, ok := updated.AcceptedBid()
	if !ok || accepted.BidderID != bidder2.ID || accepted.AcceptedAt == nil {
		t.Fatalf("accepted bid not recorded: %+v", accepted)
	}
	// The losing bid stays on record as rejected.
	if i := updated.BidIndex(bidder.ID); i < 0 || updated.Bids[i].Status != project.BidRejected {
		t.Fatalf("losing bid not retained as rejected")
	}

	// No further bids or acceptances once assigned.
	if _, err := svc.SubmitBid(ctx, stranger, p.ID, BidRequest{ProposedAmount: 10_000}); !apperr.IsCode(err, apperr.CodeInvalidState) {
		t.Fatalf("late bid: got %v, want invalid state", err)
	}
	if _, err := svc.AcceptBid(ctx, owner, p.ID, bidder.ID); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("second accept: got %v, want invalid transition", err)
	}

	kinds := rec.kinds()
	if kinds[len(kinds)-1] != notify.KindBidAccepted {
		t.Fatalf("last event %s, want bid accepted", kinds[len(kinds)-1])
	}
}

func TestAcceptBidUnknownBidder(t *testing.T) {
	svc, _ := newService(t)
	p := createOpenProject(t, svc)

	_, err := svc.AcceptBid(context.Background(), owner, p.ID, "nobody")
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestDualConfirmationCompletesExactlyOnce(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	p := assignProject(t, svc)

	first, err := svc.ConfirmCompletion(ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("client confirm: %v", err)
	}
	if first.Status != project.StatusInProgress {
		t.Fatalf("one confirmation moved status to %s", first.Status)
	}
	if !first.Completion.ClientConfirmed || first.Completion.FreelancerConfirmed {
		t.Fatalf("unexpected completion state %+v", first.Completion)
	}

	// Repeating the same confirmation changes nothing.
	again, err := svc.ConfirmCompletion(ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if again.Status != project.StatusInProgress || again.Completion.FinalizedAt != nil {
		t.Fatalf("repeat confirmation finalized the project")
	}

	done, err := svc.ConfirmCompletion(ctx, bidder, p.ID)
	if err != nil {
		t.Fatalf("freelancer confirm: %v", err)
	}
	if done.Status != project.StatusCompleted {
		t.Fatalf("got status %s, want completed", done.Status)
	}
	if done.Completion.FinalizedAt == nil {
		t.Fatalf("finalized project missing timestamp")
	}

	// Terminal: further confirmations are rejected.
	if _, err := svc.ConfirmCompletion(ctx, owner, p.ID); !apperr.IsCode(err, apperr.CodeInvalidState) {
		t.Fatalf("confirm after completion: got %v, want invalid state", err)
	}

	completions := 0
	for _, k := range rec.kinds() {
		if k == notify.KindProjectCompleted {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("emitted %d completion events, want 1", completions)
	}
}

func TestConfirmCompletionRequiresParticipant(t *testing.T) {
	svc, _ := newService(t)
	p := assignProject(t, svc)

	_, err := svc.ConfirmCompletion(context.Background(), stranger, p.ID)
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
}

func TestMilestoneProgression(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, owner, CreateRequest{
		Title:       "Marketplace API",
		BudgetTotal: 50_000,
		StartDate:   base,
		EndDate:     base.AddDate(0, 1, 0),
		Milestones:  []MilestoneInput{{Title: "Design", Amount: 20_000, DueDate: base.AddDate(0, 0, 10)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	milestoneID := p.Milestones[0].ID

	// Milestones are frozen outside IN_PROGRESS.
	if _, err := svc.AdvanceMilestone(ctx, owner, p.ID, milestoneID, project.MilestoneApproved); !apperr.IsCode(err, apperr.CodeInvalidState) {
		t.Fatalf("advance on draft: got %v, want invalid state", err)
	}

	if _, err = svc.OpenProject(ctx, owner, p.ID); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err = svc.SubmitBid(ctx, bidder, p.ID, BidRequest{ProposedAmount: 45_000}); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if _, err = svc.AcceptBid(ctx, owner, p.ID, bidder.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Approval cannot skip completion.
	if _, err := svc.AdvanceMilestone(ctx, owner, p.ID, milestoneID, project.MilestoneApproved); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("skip to approved: got %v, want invalid transition", err)
	}
	// Only the assignee completes work.
	if _, err := svc.AdvanceMilestone(ctx, owner, p.ID, milestoneID, project.MilestoneCompleted); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("owner complete: got %v, want forbidden", err)
	}

	completed, err := svc.AdvanceMilestone(ctx, bidder, p.ID, milestoneID, project.MilestoneCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Milestones[0].Status != project.MilestoneCompleted || completed.Milestones[0].CompletedAt == nil {
		t.Fatalf("milestone not completed: %+v", completed.Milestones[0])
	}

	// Only the owner approves.
	if _, err := svc.AdvanceMilestone(ctx, bidder, p.ID, milestoneID, project.MilestoneApproved); !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("assignee approve: got %v, want forbidden", err)
	}
	approved, err := svc.AdvanceMilestone(ctx, owner, p.ID, milestoneID, project.MilestoneApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Milestones[0].Status != project.MilestoneApproved || approved.Milestones[0].ApprovedAt == nil {
		t.Fatalf("milestone not approved: %+v", approved.Milestones[0])
	}

	// Approved is terminal for a milestone.
	if _, err := svc.AdvanceMilestone(ctx, bidder, p.ID, milestoneID, project.MilestoneCompleted); !apperr.IsCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("demote approved: got %v, want invalid transition", err)
	}
}

func TestDeleteProjectDraftOnly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	draft, err := svc.CreateProject(ctx, owner, CreateRequest{
		Title: "x", BudgetTotal: 100, StartDate: base, EndDate: base.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteProject(ctx, owner, draft.ID); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := svc.GetProject(ctx, draft.ID); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("get deleted: got %v, want not found", err)
	}

	open := createOpenProject(t, svc)
	if err := svc.DeleteProject(ctx, owner, open.ID); !apperr.IsCode(err, apperr.CodeInvalidState) {
		t.Fatalf("delete open: got %v, want invalid state", err)
	}
}

func TestGetProjectRecomputesHealth(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, owner, CreateRequest{
		Title:       "Marketplace API",
		BudgetTotal: 50_000,
		StartDate:   base,
		EndDate:     base.AddDate(0, 1, 0),
		Milestones:  []MilestoneInput{{Title: "Design", Amount: 20_000, DueDate: base.AddDate(0, 0, 5)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Six days in, the day-five milestone is overdue but overall progress is
	// still within tolerance.
	svc.now = func() time.Time { return base.AddDate(0, 0, 6) }
	got, err := svc.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.HealthScore != 80 {
		t.Fatalf("got health %d, want 80 with one overdue milestone", got.HealthScore)
	}
}

func TestScanOnceFlagsOverdueMilestones(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, owner, CreateRequest{
		Title:       "Marketplace API",
		BudgetTotal: 50_000,
		StartDate:   base,
		EndDate:     base.AddDate(0, 1, 0),
		Milestones:  []MilestoneInput{{Title: "Design", Amount: 20_000, DueDate: base.AddDate(0, 0, 5)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err = svc.OpenProject(ctx, owner, p.ID); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err = svc.SubmitBid(ctx, bidder, p.ID, BidRequest{ProposedAmount: 45_000}); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if _, err = svc.AcceptBid(ctx, owner, p.ID, bidder.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	svc.now = func() time.Time { return base.AddDate(0, 0, 6) }
	if err := svc.ScanOnce(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}

	overdue := 0
	for _, e := range rec.events {
		if e.Kind == notify.KindMilestoneOverdue {
			overdue++
			if e.ProjectID != p.ID {
				t.Fatalf("overdue event for wrong project %s", e.ProjectID)
			}
		}
	}
	if overdue != 1 {
		t.Fatalf("got %d overdue events, want 1", overdue)
	}

	refreshed, err := svc.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if refreshed.HealthScore != 80 {
		t.Fatalf("got health %d after scan, want 80", refreshed.HealthScore)
	}
}
