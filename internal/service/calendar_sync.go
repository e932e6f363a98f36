package service

import (
	"context"
	"fmt"
	"time"

	"salva/internal/apperr"
	"salva/internal/calendar"
	"salva/internal/compare"
	"salva/internal/logger"
	"salva/internal/model"
	"salva/internal/repository"
)

// Failure is one record a batch operation skipped.
type Failure struct {
	Op         string
	InstanceID uint
	TemplateID uint
	UID        string
	Err        error
}

func (f Failure) Error() string {
	switch {
	case f.InstanceID != 0:
		return fmt.Sprintf("%s instance %d: %v", f.Op, f.InstanceID, f.Err)
	case f.TemplateID != 0:
		return fmt.Sprintf("%s template %d: %v", f.Op, f.TemplateID, f.Err)
	case f.UID != "":
		return fmt.Sprintf("%s event %s: %v", f.Op, f.UID, f.Err)
	default:
		return fmt.Sprintf("%s: %v", f.Op, f.Err)
	}
}

// SyncResult is the outcome of one Sync call.
type SyncResult struct {
	Pulled    []model.TaskInstance
	Pushed    []model.TaskInstance
	Cancelled []model.TaskInstance
	Failures  []Failure
}

// CalendarSync reconciles stored instances with the external calendar.
type CalendarSync struct {
	instances       *repository.InstanceRepository
	client          calendar.Client
	defaultCalendar string
	log             *logger.Logger
}

func NewCalendarSync(instances *repository.InstanceRepository, client calendar.Client, defaultCalendar string, log *logger.Logger) *CalendarSync {
	return &CalendarSync{
		instances:       instances,
		client:          client,
		defaultCalendar: defaultCalendar,
		log:             log.With("service", "calendar_sync"),
	}
}

// Pull imports the events of calendarName in [start, end). Unknown uids become CALENDAR/PENDING
// instances, known ones get their changed fields applied. Only created instances are returned.
// A failing search is returned as an error; a bad record is reported as a Failure and skipped.
func (s *CalendarSync) Pull(ctx context.Context, userID uint, calendarName string, start, end time.Time) ([]model.TaskInstance, []Failure, error) {
	raws, err := s.client.Search(ctx, calendarName, start, end)
	if err != nil {
		return nil, nil, err
	}

	var (
		created  []model.TaskInstance
		failures []Failure
		updated  int
	)
	for _, raw := range raws {
		parsed, err := calendar.ParseEvent(raw)
		if err != nil {
			s.log.Warn("skipping unparseable event", "path", raw.Path, "error", err)
			failures = append(failures, Failure{Op: "parse", UID: raw.Path, Err: err})
			continue
		}

		existing, err := s.instances.FindByCalendarEvent(ctx, parsed.UID)
		if err != nil {
			failures = append(failures, Failure{Op: "pull", UID: parsed.UID, Err: err})
			continue
		}

		if existing != nil {
			if existing.UserID != userID {
				err := apperr.Consistency("event %s is mirrored by user %d", parsed.UID, existing.UserID)
				s.log.Warn("skipping foreign event", "uid", parsed.UID, "owner", existing.UserID)
				failures = append(failures, Failure{Op: "pull", UID: parsed.UID, Err: err})
				continue
			}
			changes := Diff(*existing, parsed)
			if len(changes) == 0 {
				continue
			}
			if err := s.instances.ApplyChanges(ctx, existing.ID, changes); err != nil {
				failures = append(failures, Failure{Op: "pull", InstanceID: existing.ID, UID: parsed.UID, Err: err})
				continue
			}
			updated++
			s.log.Info("instance updated from calendar", "instance_id", existing.ID, "fields", len(changes))
			continue
		}

		inst := instanceFromEvent(userID, calendarName, parsed)
		if err := s.instances.Create(ctx, inst); err != nil {
			failures = append(failures, Failure{Op: "pull", UID: parsed.UID, Err: err})
			continue
		}
		s.log.Info("event imported", "instance_id", inst.ID, "uid", parsed.UID)
		created = append(created, *inst)
	}

	s.log.Info("pull finished", "user_id", userID, "calendar", calendarName,
		"created", len(created), "updated", updated, "failed", len(failures))
	return created, failures, nil
}

func instanceFromEvent(userID uint, calendarName string, p calendar.ParsedEvent) *model.TaskInstance {
	uid := p.UID
	name := calendarName
	inst := &model.TaskInstance{
		UserID:          userID,
		Title:           p.Title,
		ScheduledStart:  p.Start,
		ScheduledEnd:    p.EndOrDefault(),
		Description:     p.Description,
		Location:        p.Location,
		LocationLat:     p.Lat,
		LocationLon:     p.Lon,
		URL:             p.URL,
		CalendarEventID: &uid,
		CalendarName:    &name,
		Origin:          model.OriginCalendar,
	}
	if p.Alerts != nil {
		inst.AlertsMinutes = p.Alerts
	}
	return inst
}

// Diff returns the instance columns whose value differs from the parsed event. An event without
// an end is compared as lasting one hour.
func Diff(inst model.TaskInstance, p calendar.ParsedEvent) map[string]any {
	var alerts []int
	if inst.AlertsMinutes != nil {
		alerts = []int(inst.AlertsMinutes)
	}
	fields := []struct {
		key      string
		current  any
		incoming any
	}{
		{repository.FieldTitle, inst.Title, p.Title},
		{repository.FieldStart, inst.ScheduledStart, p.Start},
		{repository.FieldEnd, inst.ScheduledEnd, p.EndOrDefault()},
		{repository.FieldDescription, inst.Description, p.Description},
		{repository.FieldLocation, inst.Location, p.Location},
		{repository.FieldLat, inst.LocationLat, p.Lat},
		{repository.FieldLon, inst.LocationLon, p.Lon},
		{repository.FieldURL, inst.URL, p.URL},
		{repository.FieldAlerts, alerts, p.Alerts},
	}

	changes := make(map[string]any)
	for _, f := range fields {
		if !compare.Equal(f.current, f.incoming) {
			changes[f.key] = f.incoming
		}
	}
	return changes
}

// Push creates the external event for inst, then records its uid. An instance that already has
// an external id is a Consistency error. If the calendar refuses the event, the instance is left
// untouched and an External error is returned.
func (s *CalendarSync) Push(ctx context.Context, inst *model.TaskInstance) (*model.TaskInstance, error) {
	if inst.HasExternalEvent() {
		return nil, apperr.Consistency("instance %d already has event %s", inst.ID, *inst.CalendarEventID)
	}
	calendarName := s.calendarFor(inst)

	uid, err := s.client.CreateEvent(ctx, calendarName, calendar.NewEvent{
		Title:        inst.Title,
		Start:        inst.ScheduledStart,
		End:          inst.ScheduledEnd,
		Description:  inst.Description,
		Location:     inst.Location,
		URL:          inst.URL,
		AlertMinutes: []int(inst.AlertsMinutes),
	})
	if err != nil {
		s.log.Error("push failed, nothing stored", "instance_id", inst.ID, "error", err)
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.External("create event for instance %d: %v", inst.ID, err)
		}
		return nil, err
	}

	if err := s.instances.SetCalendarEvent(ctx, inst.ID, uid, calendarName); err != nil {
		s.log.Error("event created but not recorded, removing it", "instance_id", inst.ID, "uid", uid, "error", err)
		if _, derr := s.client.Delete(ctx, calendarName, uid, inst.ScheduledStart.Add(-time.Hour), inst.ScheduledEnd.Add(time.Hour)); derr != nil {
			s.log.Error("orphan external event left behind", "uid", uid, "error", derr)
		}
		return nil, err
	}
	s.log.Info("instance pushed", "instance_id", inst.ID, "uid", uid, "calendar", calendarName)
	return s.instances.Get(ctx, inst.ID)
}

func (s *CalendarSync) calendarFor(inst *model.TaskInstance) string {
	if inst.CalendarName != nil && *inst.CalendarName != "" {
		return *inst.CalendarName
	}
	return s.defaultCalendar
}

// DetectDrift cancels SCHEDULED mirrors whose external event disappeared. A failed probe is a
// Failure, never a cancellation.
func (s *CalendarSync) DetectDrift(ctx context.Context, userID uint, start, end time.Time) ([]model.TaskInstance, []Failure, error) {
	linked, err := s.instances.ListLinked(ctx, userID, start, end)
	if err != nil {
		return nil, nil, err
	}

	var (
		cancelled []model.TaskInstance
		failures  []Failure
	)
	for i := range linked {
		inst := &linked[i]
		uid := *inst.CalendarEventID
		exists, err := s.client.Exists(ctx, s.calendarFor(inst), uid, start, end)
		if err != nil {
			s.log.Warn("drift probe failed", "instance_id", inst.ID, "uid", uid, "error", err)
			failures = append(failures, Failure{Op: "drift", InstanceID: inst.ID, UID: uid, Err: err})
			continue
		}
		if exists {
			continue
		}
		got, err := s.instances.Cancel(ctx, inst.ID)
		if err != nil {
			failures = append(failures, Failure{Op: "drift", InstanceID: inst.ID, UID: uid, Err: err})
			continue
		}
		s.log.Info("instance cancelled, event removed externally", "instance_id", inst.ID, "uid", uid)
		cancelled = append(cancelled, *got)
	}
	return cancelled, failures, nil
}

// Sync runs pull, drift detection and push over [start, end). Per-record problems land in
// Failures; only a store failure aborts the pass.
func (s *CalendarSync) Sync(ctx context.Context, userID uint, calendarName string, start, end time.Time) (*SyncResult, error) {
	res := &SyncResult{}

	pulled, failures, err := s.Pull(ctx, userID, calendarName, start, end)
	if err != nil {
		s.log.Error("pull failed", "user_id", userID, "calendar", calendarName, "error", err)
		res.Failures = append(res.Failures, Failure{Op: "pull", Err: err})
	}
	res.Pulled = pulled
	res.Failures = append(res.Failures, failures...)

	cancelled, failures, err := s.DetectDrift(ctx, userID, start, end)
	if err != nil {
		return res, err
	}
	res.Cancelled = cancelled
	res.Failures = append(res.Failures, failures...)

	pending, err := s.instances.ListPushable(ctx, userID, start, end)
	if err != nil {
		return res, err
	}
	for i := range pending {
		pushed, err := s.Push(ctx, &pending[i])
		if err != nil {
			res.Failures = append(res.Failures, Failure{Op: "push", InstanceID: pending[i].ID, Err: err})
			continue
		}
		res.Pushed = append(res.Pushed, *pushed)
	}

	s.log.Info("sync finished", "user_id", userID, "pulled", len(res.Pulled), "pushed", len(res.Pushed),
		"cancelled", len(res.Cancelled), "failed", len(res.Failures))
	return res, nil
}

// DeleteEvent removes uid from the calendar and, only if that worked, cancels its mirror.
func (s *CalendarSync) DeleteEvent(ctx context.Context, calendarName, uid string, start, end time.Time) (bool, error) {
	ok, err := s.client.Delete(ctx, calendarName, uid, start, end)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if _, err := s.instances.CancelByCalendarEvent(ctx, uid); err != nil {
		return true, err
	}
	return true, nil
}

// CancelAndDelete cancels an instance, first removing its external event when it has one.
func (s *CalendarSync) CancelAndDelete(ctx context.Context, instanceID uint) (*model.TaskInstance, error) {
	inst, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.HasExternalEvent() && inst.Status == model.StatusScheduled {
		start := inst.ScheduledStart.Add(-24 * time.Hour)
		end := inst.ScheduledEnd.Add(24 * time.Hour)
		if _, err := s.DeleteEvent(ctx, s.calendarFor(inst), *inst.CalendarEventID, start, end); err != nil {
			return nil, err
		}
	}
	return s.instances.Cancel(ctx, instanceID)
}
