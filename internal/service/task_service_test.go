package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salva/internal/apperr"
	"salva/internal/model"
	"salva/internal/testutil"
)

func newTaskService(t *testing.T) (stores, *fakeCalendar, *TaskService) {
	t.Helper()
	s := newStores(t)
	fake := newFakeCalendar()
	sync := NewCalendarSync(s.instances, fake, "Work", nopLog())
	return s, fake, NewTaskService(s.templates, s.instances, sync)
}

func TestCreateTemplateFromInput(t *testing.T) {
	s, _, svc := newTaskService(t)
	ctx := context.Background()
	user := testutil.NewUser(t, s.db, "ana@example.com")

	tmpl, err := svc.CreateTemplate(ctx, user, TemplateInput{
		Title:           "Sport",
		Priority:        4,
		DurationMinutes: 90,
		Pattern:         model.RecurrenceWeekly,
		Days:            []int{1, 3},
		Time:            "18:00",
		TimePreference:  model.PreferEvening,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OriginUser, tmpl.Origin)
	assert.Equal(t, 90, *tmpl.EstimatedDuration)
	assert.Equal(t, []int{1, 3}, tmpl.Recurrence().Days)

	_, err = svc.CreateTemplate(ctx, user, TemplateInput{Title: " "})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = svc.CreateTemplate(ctx, user, TemplateInput{Title: "Sport", Time: "25h"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = svc.CreateTemplate(ctx, user, TemplateInput{Title: "Sport", Days: []int{9}})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	list, err := svc.ListTemplates(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	other := testutil.NewUser(t, s.db, "bob@example.com")
	err = svc.DeactivateTemplate(ctx, other, tmpl.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	require.NoError(t, svc.DeactivateTemplate(ctx, user, tmpl.ID))
	list, err = svc.ListTemplates(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInstanceOwnership(t *testing.T) {
	s, _, svc := newTaskService(t)
	ctx := context.Background()
	ana := testutil.NewUser(t, s.db, "ana@example.com")
	bob := testutil.NewUser(t, s.db, "bob@example.com")
	inst := mustInstance(t, s, &model.TaskInstance{UserID: ana.ID, Title: "Courses", ScheduledStart: day(2026, time.March, 2, 18, 0)})

	_, err := svc.GetInstance(ctx, bob, inst.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = svc.CompleteInstance(ctx, bob, inst.ID, time.Now())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	done, err := svc.CompleteInstance(ctx, ana, inst.ID, day(2026, time.March, 2, 19, 0))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)

	_, err = svc.CancelInstance(ctx, ana, inst.ID)
	assert.True(t, errors.Is(err, apperr.ErrConsistency))
}

func TestCancelInstanceDeletesPushedEvent(t *testing.T) {
	s, fake, svc := newTaskService(t)
	ctx := context.Background()
	user := testutil.NewUser(t, s.db, "ana@example.com")
	inst := mustInstance(t, s, &model.TaskInstance{UserID: user.ID, Title: "Courses", ScheduledStart: day(2026, time.March, 2, 18, 0)})
	_, err := svc.sync.Push(ctx, inst)
	require.NoError(t, err)

	got, err := svc.CancelInstance(ctx, user, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Zero(t, fake.count())
}
