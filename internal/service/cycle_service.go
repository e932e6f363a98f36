package service

import (
	"context"
	"time"

	"salva/internal/logger"
	"salva/internal/model"
	"salva/internal/repository"
)

// CycleReport sums up one user's cycle.
type CycleReport struct {
	UserID      uint
	FirstSync   *SyncResult
	Matching    *MatchResult
	Materialize *MaterializeResult
	SecondSync  *SyncResult
}

// Failures returns every per-record failure of the cycle.
func (r *CycleReport) Failures() []Failure {
	var out []Failure
	if r.FirstSync != nil {
		out = append(out, r.FirstSync.Failures...)
	}
	if r.Matching != nil {
		out = append(out, r.Matching.Failures...)
	}
	if r.Materialize != nil {
		out = append(out, r.Materialize.Failures...)
	}
	if r.SecondSync != nil {
		out = append(out, r.SecondSync.Failures...)
	}
	return out
}

// CycleService runs the periodic pipeline: sync, match, materialize, sync again.
type CycleService struct {
	users        *repository.UserRepository
	sync         *CalendarSync
	matcher      *Matcher
	materializer *Materializer
	calendar     string
	windowDays   int
	log          *logger.Logger
	now          func() time.Time
}

func NewCycleService(users *repository.UserRepository, sync *CalendarSync, matcher *Matcher, materializer *Materializer, calendarName string, windowDays int, log *logger.Logger) *CycleService {
	return &CycleService{
		users:        users,
		sync:         sync,
		matcher:      matcher,
		materializer: materializer,
		calendar:     calendarName,
		windowDays:   windowDays,
		log:          log.With("service", "cycle"),
		now:          time.Now,
	}
}

// RunUser runs the pipeline for one user over [today, today+window).
func (s *CycleService) RunUser(ctx context.Context, user model.User) (*CycleReport, error) {
	start := dateOf(s.now())
	end := start.AddDate(0, 0, s.windowDays)
	report := &CycleReport{UserID: user.ID}

	var err error
	if report.FirstSync, err = s.sync.Sync(ctx, user.ID, s.calendar, start, end); err != nil {
		return report, err
	}
	if report.Matching, err = s.matcher.MatchPending(ctx, user.ID); err != nil {
		return report, err
	}
	if report.Materialize, err = s.materializer.RunWeek(ctx, user.ID); err != nil {
		return report, err
	}
	if report.SecondSync, err = s.sync.Sync(ctx, user.ID, s.calendar, start, end); err != nil {
		return report, err
	}
	return report, nil
}

// RunAll runs every user in turn. One user's failure is logged and the others still run.
func (s *CycleService) RunAll(ctx context.Context) ([]*CycleReport, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]*CycleReport, 0, len(users))
	for _, u := range users {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		report, err := s.RunUser(ctx, u)
		if err != nil {
			s.log.Error("cycle failed", "user_id", u.ID, "error", err)
		}
		if failures := report.Failures(); len(failures) > 0 {
			s.log.Warn("cycle finished with failures", "user_id", u.ID, "count", len(failures))
		}
		reports = append(reports, report)
	}
	return reports, nil
}
