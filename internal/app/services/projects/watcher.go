package projects

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/workmesh/workledger/internal/app/domain/project"
	"github.com/workmesh/workledger/internal/app/notify"
	apperr "github.com/workmesh/workledger/internal/errors"
	"github.com/workmesh/workledger/pkg/logger"
)

// DefaultWatchSchedule scans active projects hourly.
const DefaultWatchSchedule = "@every 1h"

// Watcher periodically scans in-progress projects, alerts on overdue
// milestones and persists refreshed health scores.
type Watcher struct {
	svc      *Service
	schedule string
	log      *logger.Logger
	cron     *cron.Cron
}

// NewWatcher creates a watcher on the given cron schedule. An empty schedule
// uses the default.
func NewWatcher(svc *Service, schedule string, log *logger.Logger) *Watcher {
	if schedule == "" {
		schedule = DefaultWatchSchedule
	}
	if log == nil {
		log = logger.NewDefault("project-watcher")
	}
	return &Watcher{svc: svc, schedule: schedule, log: log}
}

func (w *Watcher) Name() string { return "project-watcher" }

// Start schedules the scan job.
func (w *Watcher) Start(ctx context.Context) error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.schedule, func() {
		if err := w.svc.ScanOnce(context.Background()); err != nil {
			w.log.WithError(err).Warn("project scan failed")
		}
	}); err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running scan to finish.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cron == nil {
		return nil
	}
	stopCtx := w.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// ScanOnce runs one watcher pass over the active projects.
func (s *Service) ScanOnce(ctx context.Context) error {
	active, err := s.projects.ListActiveProjects(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, p := range active {
		if p.Status != project.StatusInProgress {
			continue
		}

		for _, m := range p.Milestones {
			if m.Finished() || !m.DueDate.Before(now) {
				continue
			}
			s.notifier.Notify(notify.Event{
				Kind:       notify.KindMilestoneOverdue,
				ProjectID:  p.ID,
				Recipients: recipients(p),
				OccurredAt: now,
			})
		}

		score := project.HealthScore(p, now)
		if score == p.HealthScore {
			continue
		}
		_, err := s.update(ctx, p.ID, func(cur project.Project) (project.Project, error) {
			cur.HealthScore = project.HealthScore(cur, now)
			return cur, nil
		})
		if err != nil && !apperr.IsCode(err, apperr.CodeConflict) {
			s.log.WithError(err).WithField("project_id", p.ID).Warn("health refresh failed")
		}
	}
	return nil
}
