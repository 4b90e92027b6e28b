package project

import (
	"testing"
	"time"
)

func day(offset int) time.Time {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func TestHealthScoreOneOverdueMilestone(t *testing.T) {
	// Two milestones, one overdue and unfinished, project end not passed,
	// progress on track: 100 - 20 = 80.
	now := day(10)
	p := Project{
		Status:    StatusInProgress,
		StartDate: day(0),
		EndDate:   day(30),
		Milestones: []Milestone{
			{ID: "m1", DueDate: day(5), Status: MilestonePending},
			{ID: "m2", DueDate: day(25), Status: MilestoneApproved},
		},
	}
	if got := HealthScore(p, now); got != 80 {
		t.Fatalf("expected 80, got %d", got)
	}
}

func TestHealthScoreProjectOverdue(t *testing.T) {
	now := day(34) // 4 days past the end date
	p := Project{
		Status:    StatusInProgress,
		StartDate: day(0),
		EndDate:   day(30),
	}
	if got := HealthScore(p, now); got != 80 {
		t.Fatalf("expected 100-4*5=80, got %d", got)
	}

	// Far past the end date the penalty caps at 30.
	if got := HealthScore(p, day(90)); got != 70 {
		t.Fatalf("expected capped 70, got %d", got)
	}

	// A completed project takes no end-date penalty.
	p.Status = StatusCompleted
	if got := HealthScore(p, day(90)); got != 100 {
		t.Fatalf("completed project should score 100, got %d", got)
	}
}

func TestHealthScoreBehindSchedule(t *testing.T) {
	// Halfway through the window with nothing finished: expected 50,
	// progress 0, gap beyond tolerance, so 100 - 20 - 15 = 65 once the
	// milestone is also overdue, or 100 - 15 = 85 if it is not yet due.
	p := Project{
		Status:    StatusInProgress,
		StartDate: day(0),
		EndDate:   day(20),
		Milestones: []Milestone{
			{ID: "m1", DueDate: day(18), Status: MilestonePending},
		},
	}
	if got := HealthScore(p, day(10)); got != 85 {
		t.Fatalf("expected 85, got %d", got)
	}

	p.Milestones[0].DueDate = day(5)
	if got := HealthScore(p, day(10)); got != 65 {
		t.Fatalf("expected 65, got %d", got)
	}
}

func TestHealthScoreClampsToRange(t *testing.T) {
	// Six overdue milestones plus a long-overdue project would go negative
	// without clamping.
	milestones := make([]Milestone, 6)
	for i := range milestones {
		milestones[i] = Milestone{ID: "m", DueDate: day(1), Status: MilestonePending}
	}
	p := Project{
		Status:     StatusInProgress,
		StartDate:  day(0),
		EndDate:    day(2),
		Milestones: milestones,
	}
	if got := HealthScore(p, day(60)); got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}
}

func TestHealthScoreZeroMilestones(t *testing.T) {
	p := Project{Status: StatusOpen, StartDate: day(0), EndDate: day(30)}
	if got := HealthScore(p, day(10)); got != 100 {
		t.Fatalf("expected 100 for healthy empty project, got %d", got)
	}

	// Zero-value dates must not panic or skew the score.
	if got := HealthScore(Project{Status: StatusDraft}, day(0)); got != 100 {
		t.Fatalf("expected 100 for zero-value project, got %d", got)
	}
}

func TestExpectedProgressInterpolation(t *testing.T) {
	cases := []struct {
		now  time.Time
		want int
	}{
		{day(-5), 0},
		{day(0), 0},
		{day(5), 25},
		{day(10), 50},
		{day(20), 100},
		{day(25), 100},
	}
	for _, tc := range cases {
		if got := expectedProgress(day(0), day(20), tc.now); got != tc.want {
			t.Fatalf("at %v expected %d, got %d", tc.now, tc.want, got)
		}
	}
}

func TestExpectedProgressLongWindow(t *testing.T) {
	// A decade-long window must not overflow the interpolation arithmetic.
	start := day(0)
	end := start.AddDate(10, 0, 0)

	if got := expectedProgress(start, end, start.AddDate(5, 0, 0)); got < 49 || got > 51 {
		t.Fatalf("midpoint of ten-year window: expected ~50, got %d", got)
	}
	if got := expectedProgress(start, end, start.AddDate(1, 0, 0)); got < 9 || got > 11 {
		t.Fatalf("one year into ten-year window: expected ~10, got %d", got)
	}
}
