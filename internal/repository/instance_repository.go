package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"salva/internal/apperr"
	"salva/internal/model"
)

// InstanceRepository handles dated task occurrences and enforces their status machines.
type InstanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *InstanceRepository) WithTx(tx *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: tx}
}

// InstanceFilter narrows List. Zero values mean no bound.
type InstanceFilter struct {
	Start  time.Time
	End    time.Time
	Status model.TaskStatus
}

// Create inserts inst with a derived normalized title. Linking a template marks the instance
// MATCHED and bumps the template counter in the same transaction.
func (r *InstanceRepository) Create(ctx context.Context, inst *model.TaskInstance) error {
	inst.Title = strings.TrimSpace(inst.Title)
	if inst.Title == "" {
		return apperr.Validation("instance title is required")
	}
	if inst.ScheduledStart.IsZero() {
		return apperr.Validation("instance start is required")
	}
	inst.ScheduledStart = inst.ScheduledStart.UTC()
	if inst.ScheduledEnd.IsZero() {
		inst.ScheduledEnd = inst.ScheduledStart.Add(time.Hour)
	}
	inst.ScheduledEnd = inst.ScheduledEnd.UTC()
	inst.NormalizedTitle = model.NormalizeTitle(inst.Title)
	if inst.Priority == 0 {
		inst.Priority = 3
	}
	if inst.Status == "" {
		inst.Status = model.StatusScheduled
	}
	if inst.Origin == "" {
		inst.Origin = model.OriginSystem
	}
	if !inst.Status.Valid() || !inst.Origin.Valid() {
		return apperr.Validation("invalid status %q or origin %q", inst.Status, inst.Origin)
	}
	inst.MatchingStatus = model.MatchingPending
	if inst.TemplateID != nil {
		inst.MatchingStatus = model.MatchingMatched
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if inst.HasExternalEvent() {
			var n int64
			if err := tx.Model(&model.TaskInstance{}).Where("calendar_event_id = ?", *inst.CalendarEventID).Count(&n).Error; err != nil {
				return fmt.Errorf("check calendar event: %w", err)
			}
			if n > 0 {
				return apperr.Consistency("calendar event %s already mirrored", *inst.CalendarEventID)
			}
		}
		if err := tx.Create(inst).Error; err != nil {
			return fmt.Errorf("create instance: %w", err)
		}
		if inst.TemplateID != nil {
			if err := NewTemplateRepository(tx).IncrementInstanceCount(ctx, *inst.TemplateID, inst.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *InstanceRepository) Get(ctx context.Context, id uint) (*model.TaskInstance, error) {
	var inst model.TaskInstance
	if err := r.db.WithContext(ctx).First(&inst, id).Error; err != nil {
		return nil, notFound(err, "instance", id)
	}
	return &inst, nil
}

// FindByCalendarEvent returns the mirror of uid, or nil when there is none.
func (r *InstanceRepository) FindByCalendarEvent(ctx context.Context, uid string) (*model.TaskInstance, error) {
	var inst model.TaskInstance
	err := r.db.WithContext(ctx).Where("calendar_event_id = ?", uid).First(&inst).Error
	switch {
	case err == nil:
		return &inst, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find instance by event: %w", err)
	}
}

func (r *InstanceRepository) List(ctx context.Context, userID uint, f InstanceFilter) ([]model.TaskInstance, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	q = window(q, f.Start, f.End)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []model.TaskInstance
	if err := q.Order("scheduled_start, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return out, nil
}

func (r *InstanceRepository) ListByMatchingStatus(ctx context.Context, userID uint, status model.MatchingStatus) ([]model.TaskInstance, error) {
	var out []model.TaskInstance
	if err := r.db.WithContext(ctx).Where("user_id = ? AND matching_status = ?", userID, status).
		Order("scheduled_start, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list instances by matching status: %w", err)
	}
	return out, nil
}

// ListLinked returns SCHEDULED instances that mirror an external event.
func (r *InstanceRepository) ListLinked(ctx context.Context, userID uint, start, end time.Time) ([]model.TaskInstance, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND status = ? AND calendar_event_id IS NOT NULL", userID, model.StatusScheduled)
	var out []model.TaskInstance
	if err := window(q, start, end).Order("scheduled_start, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list linked instances: %w", err)
	}
	return out, nil
}

// ListPushable returns SCHEDULED instances without an external id that did not come from the calendar.
func (r *InstanceRepository) ListPushable(ctx context.Context, userID uint, start, end time.Time) ([]model.TaskInstance, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND status = ? AND calendar_event_id IS NULL AND origin <> ?",
		userID, model.StatusScheduled, model.OriginCalendar)
	var out []model.TaskInstance
	if err := window(q, start, end).Order("scheduled_start, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list pushable instances: %w", err)
	}
	return out, nil
}

// LastByTemplate returns the latest non-cancelled instance of a template, or nil.
func (r *InstanceRepository) LastByTemplate(ctx context.Context, templateID uint) (*model.TaskInstance, error) {
	var inst model.TaskInstance
	err := r.db.WithContext(ctx).Where("template_id = ? AND status <> ?", templateID, model.StatusCancelled).
		Order("scheduled_start DESC").First(&inst).Error
	switch {
	case err == nil:
		return &inst, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("last instance of template: %w", err)
	}
}

// FindDuplicate returns a non-cancelled instance with the exact (user, title, start), or nil.
func (r *InstanceRepository) FindDuplicate(ctx context.Context, userID uint, title string, start time.Time) (*model.TaskInstance, error) {
	var inst model.TaskInstance
	err := r.db.WithContext(ctx).Where("user_id = ? AND title = ? AND scheduled_start = ? AND status <> ?",
		userID, strings.TrimSpace(title), start.UTC(), model.StatusCancelled).First(&inst).Error
	switch {
	case err == nil:
		return &inst, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find duplicate instance: %w", err)
	}
}

// Diff keys accepted by ApplyChanges, named after their columns.
const (
	FieldTitle       = "title"
	FieldStart       = "scheduled_start"
	FieldEnd         = "scheduled_end"
	FieldDescription = "description"
	FieldLocation    = "location"
	FieldLat         = "location_lat"
	FieldLon         = "location_lon"
	FieldURL         = "url"
	FieldAlerts      = "alerts_minutes"
)

// ApplyChanges writes only the given columns and bumps updated_at.
func (r *InstanceRepository) ApplyChanges(ctx context.Context, id uint, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}
	updates := make(map[string]interface{}, len(changes)+2)
	for k, v := range changes {
		switch k {
		case FieldTitle:
			title, _ := v.(string)
			updates[FieldTitle] = title
			updates["normalized_title"] = model.NormalizeTitle(title)
		case FieldStart, FieldEnd:
			t, ok := v.(time.Time)
			if !ok {
				return apperr.Validation("field %s expects a time, got %T", k, v)
			}
			updates[k] = t.UTC()
		case FieldAlerts:
			alerts, _ := v.([]int)
			if alerts == nil {
				updates[k] = nil
			} else {
				updates[k] = datatypes.JSONSlice[int](alerts)
			}
		case FieldDescription, FieldLocation, FieldLat, FieldLon, FieldURL:
			updates[k] = v
		default:
			return apperr.Validation("unknown instance field %q", k)
		}
	}
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).Model(&model.TaskInstance{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("apply instance changes: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("instance %d", id)
	}
	return nil
}

// SetCalendarEvent records the external identity once; an instance already linked is a Consistency error.
func (r *InstanceRepository) SetCalendarEvent(ctx context.Context, id uint, uid, calendarName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inst model.TaskInstance
		if err := tx.First(&inst, id).Error; err != nil {
			return notFound(err, "instance", id)
		}
		if inst.HasExternalEvent() {
			return apperr.Consistency("instance %d already linked to event %s", id, *inst.CalendarEventID)
		}
		var n int64
		if err := tx.Model(&model.TaskInstance{}).Where("calendar_event_id = ?", uid).Count(&n).Error; err != nil {
			return fmt.Errorf("check calendar event: %w", err)
		}
		if n > 0 {
			return apperr.Consistency("calendar event %s already mirrored", uid)
		}
		if err := tx.Model(&inst).Updates(map[string]interface{}{
			"calendar_event_id": uid,
			"calendar_name":     calendarName,
		}).Error; err != nil {
			return fmt.Errorf("set calendar event: %w", err)
		}
		return nil
	})
}

// MarkMatched links the instance to a template and re-increments the template counter.
func (r *InstanceRepository) MarkMatched(ctx context.Context, id, templateID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := advance(tx, id, model.MatchingMatched, map[string]interface{}{"template_id": templateID}); err != nil {
			return err
		}
		return NewTemplateRepository(tx).IncrementInstanceCount(ctx, templateID, time.Now().UTC())
	})
}

func (r *InstanceRepository) MarkOrphan(ctx context.Context, id uint) error {
	return advance(r.db.WithContext(ctx), id, model.MatchingOrphan, nil)
}

func (r *InstanceRepository) MarkClustered(ctx context.Context, id uint) error {
	return advance(r.db.WithContext(ctx), id, model.MatchingClustered, nil)
}

func advance(db *gorm.DB, id uint, next model.MatchingStatus, extra map[string]interface{}) error {
	var inst model.TaskInstance
	if err := db.Select("id", "matching_status").First(&inst, id).Error; err != nil {
		return notFound(err, "instance", id)
	}
	if !inst.MatchingStatus.CanAdvanceTo(next) {
		return apperr.Consistency("instance %d cannot move from %s to %s", id, inst.MatchingStatus, next)
	}
	updates := map[string]interface{}{"matching_status": next}
	for k, v := range extra {
		updates[k] = v
	}
	if err := db.Model(&model.TaskInstance{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update matching status: %w", err)
	}
	return nil
}

func (r *InstanceRepository) Complete(ctx context.Context, id uint, at time.Time) (*model.TaskInstance, error) {
	inst, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inst.Status.CanTransitionTo(model.StatusCompleted) {
		return nil, apperr.Consistency("instance %d is %s and cannot be completed", id, inst.Status)
	}
	at = at.UTC()
	inst.Status = model.StatusCompleted
	inst.CompletedAt = &at
	if err := r.db.WithContext(ctx).Model(inst).Updates(map[string]interface{}{
		"status":       inst.Status,
		"completed_at": at,
	}).Error; err != nil {
		return nil, fmt.Errorf("complete instance: %w", err)
	}
	return inst, nil
}

// Cancel moves a SCHEDULED instance to CANCELLED. Cancelling twice is a no-op.
func (r *InstanceRepository) Cancel(ctx context.Context, id uint) (*model.TaskInstance, error) {
	inst, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Status == model.StatusCancelled {
		return inst, nil
	}
	if !inst.Status.CanTransitionTo(model.StatusCancelled) {
		return nil, apperr.Consistency("instance %d is %s and cannot be cancelled", id, inst.Status)
	}
	inst.Status = model.StatusCancelled
	if err := r.db.WithContext(ctx).Model(inst).Update("status", inst.Status).Error; err != nil {
		return nil, fmt.Errorf("cancel instance: %w", err)
	}
	return inst, nil
}

// CancelByCalendarEvent cancels the mirror of uid, returning nil when nothing mirrors it.
func (r *InstanceRepository) CancelByCalendarEvent(ctx context.Context, uid string) (*model.TaskInstance, error) {
	inst, err := r.FindByCalendarEvent(ctx, uid)
	if err != nil || inst == nil {
		return nil, err
	}
	return r.Cancel(ctx, inst.ID)
}

func window(q *gorm.DB, start, end time.Time) *gorm.DB {
	if !start.IsZero() {
		q = q.Where("scheduled_start >= ?", start.UTC())
	}
	if !end.IsZero() {
		q = q.Where("scheduled_start < ?", end.UTC())
	}
	return q
}
