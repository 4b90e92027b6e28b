package project

import "time"

// Health score penalties.
const (
	healthMax               = 100
	overdueMilestonePenalty = 20
	overdueProjectPerDay    = 5
	overdueProjectCap       = 30
	behindSchedulePenalty   = 15
	behindScheduleTolerance = 20
)

// HealthScore derives a 0–100 schedule-adherence score from a project
// snapshot. It is a pure function of the snapshot and now; the stored
// Project.HealthScore is only a cache of this result.
func HealthScore(p Project, now time.Time) int {
	score := healthMax

	for _, m := range p.Milestones {
		if m.DueDate.Before(now) && !m.Finished() {
			score -= overdueMilestonePenalty
		}
	}

	if !p.EndDate.IsZero() && p.EndDate.Before(now) && p.Status != StatusCompleted {
		daysOverdue := int(now.Sub(p.EndDate).Hours() / 24)
		penalty := daysOverdue * overdueProjectPerDay
		if penalty > overdueProjectCap {
			penalty = overdueProjectCap
		}
		score -= penalty
	}

	if len(p.Milestones) > 0 {
		finished := 0
		for _, m := range p.Milestones {
			if m.Finished() {
				finished++
			}
		}
		progressPct := finished * 100 / len(p.Milestones)
		expectedPct := expectedProgress(p.StartDate, p.EndDate, now)
		if progressPct < expectedPct-behindScheduleTolerance {
			score -= behindSchedulePenalty
		}
	}

	if score < 0 {
		score = 0
	}
	if score > healthMax {
		score = healthMax
	}
	return score
}

// expectedProgress interpolates linearly between start and end, clamped to
// [0,100]: 0 before the start, 100 after the end.
func expectedProgress(start, end, now time.Time) int {
	if start.IsZero() || end.IsZero() || !now.After(start) {
		return 0
	}
	if !end.After(start) || !now.Before(end) {
		return 100
	}
	// Whole seconds keep elapsed*100 within int64 for any realistic window.
	elapsed := int64(now.Sub(start) / time.Second)
	total := int64(end.Sub(start) / time.Second)
	if total == 0 {
		return 100
	}
	return int(elapsed * 100 / total)
}
