package service

import (
	"context"
	"strings"
	"time"

	"salva/internal/logger"
	"salva/internal/model"
	"salva/internal/repository"
)

// PlanContext is what the generator sees when drafting a day.
type PlanContext struct {
	Date        string            `json:"date"`
	Weekday     string            `json:"weekday"`
	Events      []PlannedEvent    `json:"existing_events"`
	FreeSlots   []Interval        `json:"free_slots"`
	Preferences model.Preferences `json:"preferences"`
}

// PlannedEvent is an existing or proposed item of the day, times as "HH:MM".
type PlannedEvent struct {
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description,omitempty"`
}

// Proposal is a generator's draft for one day.
type Proposal struct {
	Tasks     []PlannedEvent `json:"tasks"`
	Reasoning string         `json:"reasoning"`
}

// Generator drafts a plan. A nil proposal with a nil error means nothing usable came back.
type Generator interface {
	Propose(ctx context.Context, pc PlanContext) (*Proposal, error)
}

// DayPlanner asks the generator for tasks and keeps those that fit the free slots.
type DayPlanner struct {
	users     *repository.UserRepository
	instances *repository.InstanceRepository
	generator Generator
	dayStart  string
	dayEnd    string
	log       *logger.Logger
}

func NewDayPlanner(users *repository.UserRepository, instances *repository.InstanceRepository, generator Generator, dayStart, dayEnd string, log *logger.Logger) *DayPlanner {
	return &DayPlanner{
		users:     users,
		instances: instances,
		generator: generator,
		dayStart:  dayStart,
		dayEnd:    dayEnd,
		log:       log.With("service", "planner"),
	}
}

// PlanResult lists what PlanDay stored and what it turned down.
type PlanResult struct {
	Created   []model.TaskInstance
	Rejected  []PlannedEvent
	Reasoning string
}

// BuildContext gathers the day's scheduled instances and free slots. Times are UTC.
func (p *DayPlanner) BuildContext(ctx context.Context, user *model.User, date time.Time) (PlanContext, []model.TaskInstance, error) {
	day := dateOf(date)
	existing, err := p.instances.List(ctx, user.ID, repository.InstanceFilter{
		Start:  day,
		End:    day.AddDate(0, 0, 1),
		Status: model.StatusScheduled,
	})
	if err != nil {
		return PlanContext{}, nil, err
	}

	pc := PlanContext{
		Date:        day.Format("2006-01-02"),
		Weekday:     day.Weekday().String(),
		Preferences: user.Prefs(),
	}
	busy := make([]Interval, 0, len(existing))
	for _, inst := range existing {
		ev := PlannedEvent{
			Title: inst.Title,
			Start: clock(inst.ScheduledStart),
			End:   clockEnd(day, inst.ScheduledEnd),
		}
		if inst.Description != nil {
			ev.Description = *inst.Description
		}
		pc.Events = append(pc.Events, ev)
		busy = append(busy, Interval{Start: ev.Start, End: ev.End})
	}
	pc.FreeSlots = FreeSlots(p.dayStart, p.dayEnd, busy)
	return pc, existing, nil
}

// PlanDay drafts tasks for date. Proposed tasks must lie entirely inside one free slot and the
// day never exceeds the user's max tasks. Accepted tasks become SYSTEM instances, pushed by the
// next sync.
func (p *DayPlanner) PlanDay(ctx context.Context, userID uint, date time.Time) (*PlanResult, error) {
	user, err := p.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	pc, existing, err := p.BuildContext(ctx, user, date)
	if err != nil {
		return nil, err
	}
	res := &PlanResult{}

	room := user.Prefs().MaxTasksPerDay - len(existing)
	if room <= 0 || len(pc.FreeSlots) == 0 {
		p.log.Info("day already full", "user_id", userID, "date", pc.Date)
		return res, nil
	}

	proposal, err := p.generator.Propose(ctx, pc)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		p.log.Warn("no usable proposal", "user_id", userID, "date", pc.Date)
		return res, nil
	}
	res.Reasoning = proposal.Reasoning

	day := dateOf(date)
	var placed [][2]int
	for _, task := range proposal.Tasks {
		s, serr := ParseClockMinutes(task.Start)
		e, eerr := ParseClockMinutes(task.End)
		if serr != nil || eerr != nil || e <= s || strings.TrimSpace(task.Title) == "" ||
			!insideSlot(s, e, pc.FreeSlots) || overlaps(s, e, placed) || len(res.Created) >= room {
			res.Rejected = append(res.Rejected, task)
			continue
		}

		inst := &model.TaskInstance{
			UserID:         userID,
			Title:          task.Title,
			ScheduledStart: day.Add(time.Duration(s) * time.Minute),
			ScheduledEnd:   day.Add(time.Duration(e) * time.Minute),
			Origin:         model.OriginSystem,
		}
		if task.Description != "" {
			desc := task.Description
			inst.Description = &desc
		}
		if err := p.instances.Create(ctx, inst); err != nil {
			p.log.Warn("planned task not stored", "title", task.Title, "error", err)
			res.Rejected = append(res.Rejected, task)
			continue
		}
		placed = append(placed, [2]int{s, e})
		res.Created = append(res.Created, *inst)
	}

	p.log.Info("day planned", "user_id", userID, "date", pc.Date, "created", len(res.Created), "rejected", len(res.Rejected))
	return res, nil
}

func insideSlot(s, e int, slots []Interval) bool {
	for _, slot := range slots {
		lo, err1 := ParseClockMinutes(slot.Start)
		hi, err2 := ParseClockMinutes(slot.End)
		if err1 == nil && err2 == nil && s >= lo && e <= hi {
			return true
		}
	}
	return false
}

func overlaps(s, e int, placed [][2]int) bool {
	for _, iv := range placed {
		if s < iv[1] && iv[0] < e {
			return true
		}
	}
	return false
}

func clock(t time.Time) string {
	t = t.UTC()
	return FormatMinutes(t.Hour()*60 + t.Minute())
}

// clockEnd clamps ends past midnight to 24:00.
func clockEnd(day, end time.Time) string {
	if !end.UTC().Before(day.AddDate(0, 0, 1)) {
		return FormatMinutes(minutesPerDay)
	}
	return clock(end)
}
