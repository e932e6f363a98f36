package service

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"

	"salva/internal/apperr"
	"salva/internal/model"
	"salva/internal/repository"
)

// TemplateInput represents data required to create a template.
type TemplateInput struct {
	Title           string
	Description     string
	Priority        int
	DurationMinutes int
	Pattern         model.RecurrencePattern
	Days            []int
	Time            string
	RRule           string
	TimePreference  model.TimePreference
}

// TaskService wraps the user-facing template and instance operations.
type TaskService struct {
	templates *repository.TemplateRepository
	instances *repository.InstanceRepository
	sync      *CalendarSync
}

func NewTaskService(templates *repository.TemplateRepository, instances *repository.InstanceRepository, sync *CalendarSync) *TaskService {
	return &TaskService{templates: templates, instances: instances, sync: sync}
}

func (s *TaskService) CreateTemplate(ctx context.Context, user *model.User, input TemplateInput) (*model.TaskTemplate, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperr.Validation("title is required")
	}
	if input.Time != "" {
		if _, err := ParseClockMinutes(input.Time); err != nil {
			return nil, apperr.Validation("invalid time of day %q", input.Time)
		}
	}

	tmpl := model.NewTemplate(user.ID, input.Title)
	if input.Description != "" {
		desc := input.Description
		tmpl.Description = &desc
	}
	if input.Priority != 0 {
		tmpl.Priority = input.Priority
	}
	if input.DurationMinutes > 0 {
		d := input.DurationMinutes
		tmpl.EstimatedDuration = &d
	}
	if input.Pattern != "" {
		tmpl.RecurrencePattern = input.Pattern
	}
	if input.TimePreference != "" {
		tmpl.TimePreference = input.TimePreference
	}
	tmpl.RecurrenceData = datatypes.NewJSONType(model.RecurrenceData{
		Days:  input.Days,
		Time:  input.Time,
		RRule: input.RRule,
	})

	if err := s.templates.Create(ctx, &tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (s *TaskService) ListTemplates(ctx context.Context, user *model.User) ([]model.TaskTemplate, error) {
	return s.templates.ListByUser(ctx, user.ID, true)
}

func (s *TaskService) DeactivateTemplate(ctx context.Context, user *model.User, templateID uint) error {
	tmpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return err
	}
	if tmpl.UserID != user.ID {
		return apperr.NotFound("template %d", templateID)
	}
	return s.templates.Deactivate(ctx, templateID)
}

// GetInstance returns an instance owned by user; other users' instances are reported as missing.
func (s *TaskService) GetInstance(ctx context.Context, user *model.User, instanceID uint) (*model.TaskInstance, error) {
	inst, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.UserID != user.ID {
		return nil, apperr.NotFound("instance %d", instanceID)
	}
	return inst, nil
}

func (s *TaskService) CompleteInstance(ctx context.Context, user *model.User, instanceID uint, completedAt time.Time) (*model.TaskInstance, error) {
	if _, err := s.GetInstance(ctx, user, instanceID); err != nil {
		return nil, err
	}
	return s.instances.Complete(ctx, instanceID, completedAt)
}

// CancelInstance cancels locally and removes the external event if there is one.
func (s *TaskService) CancelInstance(ctx context.Context, user *model.User, instanceID uint) (*model.TaskInstance, error) {
	if _, err := s.GetInstance(ctx, user, instanceID); err != nil {
		return nil, err
	}
	return s.sync.CancelAndDelete(ctx, instanceID)
}
