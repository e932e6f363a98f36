package service

import (
	"context"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"salva/internal/logger"
	"salva/internal/model"
	"salva/internal/repository"
)

const (
	biweeklyGapDays = 7
	monthlyGapDays  = 21
)

// MaterializeResult is the outcome of one materialization pass.
type MaterializeResult struct {
	Created  []model.TaskInstance
	Skipped  int
	Failures []Failure
}

// Materializer expands active templates into SYSTEM instances for the upcoming week.
type Materializer struct {
	templates *repository.TemplateRepository
	instances *repository.InstanceRepository
	weekday   time.Weekday
	log       *logger.Logger
	now       func() time.Time
}

func NewMaterializer(templates *repository.TemplateRepository, instances *repository.InstanceRepository, weekday time.Weekday, log *logger.Logger) *Materializer {
	return &Materializer{
		templates: templates,
		instances: instances,
		weekday:   weekday,
		log:       log.With("service", "materializer"),
		now:       time.Now,
	}
}

// RunWeek materializes the user's templates, but only on the configured weekday.
func (m *Materializer) RunWeek(ctx context.Context, userID uint) (*MaterializeResult, error) {
	today := dateOf(m.now())
	if today.Weekday() != m.weekday {
		m.log.Debug("not the materialization day", "today", today.Weekday().String(), "expected", m.weekday.String())
		return &MaterializeResult{}, nil
	}
	return m.Materialize(ctx, userID, today)
}

// Materialize expands every active template of userID relative to today, regardless of weekday.
func (m *Materializer) Materialize(ctx context.Context, userID uint, today time.Time) (*MaterializeResult, error) {
	today = dateOf(today)
	templates, err := m.templates.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	res := &MaterializeResult{}
	for i := range templates {
		t := &templates[i]
		rec := t.Recurrence()

		var dates []time.Time
		switch t.RecurrencePattern {
		case model.RecurrenceDaily:
			m.log.Info("daily templates are not materialized", "template_id", t.ID, "time", rec.Time)
			continue
		case model.RecurrenceWeekly:
			for _, offset := range rec.Days {
				dates = append(dates, today.AddDate(0, 0, offset))
			}
		case model.RecurrenceBiweekly, model.RecurrenceMonthly:
			gap := biweeklyGapDays
			if t.RecurrencePattern == model.RecurrenceMonthly {
				gap = monthlyGapDays
			}
			due, err := m.dueAfterGap(ctx, t.ID, today, gap)
			if err != nil {
				res.Failures = append(res.Failures, Failure{Op: "materialize", TemplateID: t.ID, Err: err})
				continue
			}
			if !due {
				res.Skipped++
				continue
			}
			dates = append(dates, today.AddDate(0, 0, firstOffset(rec)))
		case model.RecurrenceCustom:
			dates, err = customDates(rec, today)
			if err != nil {
				m.log.Warn("invalid custom recurrence", "template_id", t.ID, "error", err)
				res.Failures = append(res.Failures, Failure{Op: "materialize", TemplateID: t.ID, Err: err})
				continue
			}
		default:
			continue
		}

		for _, day := range dates {
			inst, err := m.createInstance(ctx, t, day)
			if err != nil {
				m.log.Error("materialize failed", "template_id", t.ID, "day", day.Format("2006-01-02"), "error", err)
				res.Failures = append(res.Failures, Failure{Op: "materialize", TemplateID: t.ID, Err: err})
				continue
			}
			if inst == nil {
				res.Skipped++
				continue
			}
			res.Created = append(res.Created, *inst)
		}
	}

	m.log.Info("materialization finished", "user_id", userID, "created", len(res.Created),
		"skipped", res.Skipped, "failed", len(res.Failures))
	return res, nil
}

// ShouldScheduleBiweekly reports whether the last non-cancelled instance is at least 7 days old.
func (m *Materializer) ShouldScheduleBiweekly(ctx context.Context, templateID uint, today time.Time) (bool, error) {
	return m.dueAfterGap(ctx, templateID, today, biweeklyGapDays)
}

// ShouldScheduleMonthly reports whether the last non-cancelled instance is at least 21 days old.
func (m *Materializer) ShouldScheduleMonthly(ctx context.Context, templateID uint, today time.Time) (bool, error) {
	return m.dueAfterGap(ctx, templateID, today, monthlyGapDays)
}

func (m *Materializer) dueAfterGap(ctx context.Context, templateID uint, today time.Time, gap int) (bool, error) {
	last, err := m.instances.LastByTemplate(ctx, templateID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	days := int(dateOf(today).Sub(dateOf(last.ScheduledStart)).Hours() / 24)
	return days >= gap, nil
}

// createInstance returns nil when the instance already exists.
func (m *Materializer) createInstance(ctx context.Context, t *model.TaskTemplate, day time.Time) (*model.TaskInstance, error) {
	hour, minute := timeOfDay(t.Recurrence().Time)
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)

	dup, err := m.instances.FindDuplicate(ctx, t.UserID, t.Title, start)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, nil
	}

	inst := &model.TaskInstance{
		UserID:         t.UserID,
		TemplateID:     &t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Priority:       t.Priority,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(t.DurationOrDefault()),
		Origin:         model.OriginSystem,
		Status:         model.StatusScheduled,
	}
	if err := m.instances.Create(ctx, inst); err != nil {
		return nil, err
	}
	if err := m.templates.MarkMaterialized(ctx, t.ID, m.now(), day); err != nil {
		return nil, err
	}
	m.log.Info("instance materialized", "template_id", t.ID, "instance_id", inst.ID, "start", start)
	return inst, nil
}

func customDates(rec model.RecurrenceData, today time.Time) ([]time.Time, error) {
	rule := strings.TrimPrefix(strings.TrimSpace(rec.RRule), "RRULE:")
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = today
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}
	return r.Between(today, today.AddDate(0, 0, 7).Add(-time.Second), true), nil
}

func firstOffset(rec model.RecurrenceData) int {
	if len(rec.Days) == 0 {
		return 0
	}
	return rec.Days[0]
}

// timeOfDay parses "H:MM", defaulting to 09:00.
func timeOfDay(s string) (int, int) {
	if strings.TrimSpace(s) == "" {
		return 9, 0
	}
	m, err := ParseClockMinutes(s)
	if err != nil || m >= minutesPerDay {
		return 9, 0
	}
	return m / 60, m % 60
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
