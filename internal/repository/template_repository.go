package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"salva/internal/apperr"
	"salva/internal/model"
)

// TemplateRepository handles recurring task definitions.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TemplateRepository) WithTx(tx *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: tx}
}

func validateTemplate(t *model.TaskTemplate) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return apperr.Validation("template title is required")
	}
	if t.Priority < 1 || t.Priority > 5 {
		return apperr.Validation("priority must be between 1 and 5, got %d", t.Priority)
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return apperr.Validation("confidence must be between 0 and 1, got %v", t.Confidence)
	}
	if t.RecurrencePattern == "" {
		t.RecurrencePattern = model.RecurrenceNone
	}
	if !t.RecurrencePattern.Valid() {
		return apperr.Validation("unknown recurrence pattern %q", t.RecurrencePattern)
	}
	if t.TimePreference == "" {
		t.TimePreference = model.PreferAnytime
	}
	if !t.TimePreference.Valid() {
		return apperr.Validation("unknown time preference %q", t.TimePreference)
	}
	if t.Origin == "" {
		t.Origin = model.OriginUser
	}
	if !t.Origin.Valid() {
		return apperr.Validation("unknown origin %q", t.Origin)
	}
	if t.RecurrenceInterval < 1 {
		t.RecurrenceInterval = 1
	}
	for _, d := range t.Recurrence().Days {
		if d < 0 || d > 6 {
			return apperr.Validation("recurrence day offset %d out of range 0-6", d)
		}
	}
	t.NormalizedTitle = model.NormalizeTitle(t.Title)
	return nil
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.TaskTemplate) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Get(ctx context.Context, id uint) (*model.TaskTemplate, error) {
	var t model.TaskTemplate
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err, "template", id)
	}
	return &t, nil
}

func (r *TemplateRepository) ListByUser(ctx context.Context, userID uint, activeOnly bool) ([]model.TaskTemplate, error) {
	var templates []model.TaskTemplate
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Order("priority DESC, id").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// TemplateUpdate lists the user-editable fields; nil means unchanged.
type TemplateUpdate struct {
	Title             *string
	Description       *string
	Priority          *int
	EstimatedDuration *int
	Pattern           *model.RecurrencePattern
	Recurrence        *model.RecurrenceData
	TimePreference    *model.TimePreference
}

func (r *TemplateRepository) Update(ctx context.Context, id uint, upd TemplateUpdate) (*model.TaskTemplate, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = upd.Description
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.EstimatedDuration != nil {
		t.EstimatedDuration = upd.EstimatedDuration
	}
	if upd.Pattern != nil {
		t.RecurrencePattern = *upd.Pattern
	}
	if upd.Recurrence != nil {
		t.RecurrenceData = datatypes.NewJSONType(*upd.Recurrence)
	}
	if upd.TimePreference != nil {
		t.TimePreference = *upd.TimePreference
	}
	if err := validateTemplate(t); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Save(t).Error; err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

// IncrementInstanceCount bumps the counter and the last materialization timestamp.
func (r *TemplateRepository) IncrementInstanceCount(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.TaskTemplate{}).Where("id = ?", id).Updates(map[string]interface{}{
		"instance_count":           gorm.Expr("instance_count + 1"),
		"last_instance_created_at": at.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("increment template count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("template %d", id)
	}
	return nil
}

// MarkMaterialized records a materialization pass and the next suggested date.
func (r *TemplateRepository) MarkMaterialized(ctx context.Context, id uint, last, next time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.TaskTemplate{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_instance_created_at": last.UTC(),
		"next_suggested_date":      next.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("mark template materialized: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("template %d", id)
	}
	return nil
}

func (r *TemplateRepository) Deactivate(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&model.TaskTemplate{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivate template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("template %d", id)
	}
	return nil
}

// Delete hard-deletes a template nothing references; otherwise use Deactivate.
func (r *TemplateRepository) Delete(ctx context.Context, id uint) error {
	var refs int64
	if err := r.db.WithContext(ctx).Model(&model.TaskInstance{}).Where("template_id = ?", id).Count(&refs).Error; err != nil {
		return fmt.Errorf("count template instances: %w", err)
	}
	if refs > 0 {
		return apperr.Consistency("template %d is referenced by %d instances, deactivate it instead", id, refs)
	}
	res := r.db.WithContext(ctx).Delete(&model.TaskTemplate{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("template %d", id)
	}
	return nil
}
