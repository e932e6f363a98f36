package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"salva/internal/model"
	"salva/internal/testutil"
)

// sunday is a materialization day.
var sunday = day(2026, time.March, 1, 0, 0)

func newTemplate(t *testing.T, s stores, userID uint, title string, pattern model.RecurrencePattern, rec model.RecurrenceData) *model.TaskTemplate {
	t.Helper()
	tmpl := model.NewTemplate(userID, title)
	tmpl.RecurrencePattern = pattern
	tmpl.RecurrenceData = datatypes.NewJSONType(rec)
	require.NoError(t, s.templates.Create(context.Background(), &tmpl))
	return &tmpl
}

func newMaterializer(s stores) *Materializer {
	m := NewMaterializer(s.templates, s.instances, time.Sunday, nopLog())
	m.now = func() time.Time { return sunday.Add(8 * time.Hour) }
	return m
}

func TestMaterializeWeeklyCreatesOnePerOffset(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	user := testutil.NewUser(t, s.db, "ana@example.com")
	dur := 45
	tmpl := model.NewTemplate(user.ID, "Sport")
	tmpl.RecurrencePattern = model.RecurrenceWeekly
	tmpl.EstimatedDuration = &dur
	tmpl.RecurrenceData = datatypes.NewJSONType(model.RecurrenceData{Days: []int{1, 3}, Time: "7:30"})
	require.NoError(t, s.templates.Create(ctx, &tmpl))

	res, err := newMaterializer(s).Materialize(ctx, user.ID, sunday)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Created, 2)

	first := res.Created[0]
	assert.True(t, first.ScheduledStart.Equal(day(2026, time.March, 2, 7, 30)))
	assert.True(t, first.ScheduledEnd.Equal(day(2026, time.March, 2, 8, 15)))
	assert.Equal(t, model.OriginSystem, first.Origin)
	assert.Equal(t, model.MatchingMatched, first.MatchingStatus)
	require.NotNil(t, first.TemplateID)
	assert.Equal(t, tmpl.ID, *first.TemplateID)
	assert.True(t, res.Created[1].ScheduledStart.Equal(day(2026, time.March, 4, 7, 30)))

	got, err := s.templates.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.InstanceCount)
	require.NotNil(t, got.NextSuggestedDate)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	user := testutil.NewUser(t, s.db, "ana@example.com")
	newTemplate(t, s, user.ID, "Sport", model.RecurrenceWeekly, model.RecurrenceData{Days: []int{1}})
	m := newMaterializer(s)

	res, err := m.Materialize(ctx, user.ID, sunday)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.True(t, res.Created[0].ScheduledStart.Equal(day(2026, time.March, 2, 9, 0)))

	res, err = m.Materialize(ctx, user.ID, sunday)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, 1, res.Skipped)
}

func TestMaterializeBiweeklyWaitsForGap(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	user := testutil.NewUser(t, s.db, "ana@example.com")
	tmpl := newTemplate(t, s, user.ID, "Ménage", model.RecurrenceBiweekly, model.RecurrenceData{Days: []int{2}, Time: "10:00"})
	m := newMaterializer(s)

	recent := mustInstance(t, s, &model.TaskInstance{UserID: user.ID, TemplateID: &tmpl.ID, Title: "Ménage", ScheduledStart: sunday.AddDate(0, 0, -5)})

	due, err := m.ShouldScheduleBiweekly(ctx, tmpl.ID, sunday)
	require.NoError(t, err)
	assert.False(t, due)

	res, err := m.Materialize(ctx, user.ID, sunday)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, 1, res.Skipped)

	// A cancelled occurrence does not count as the last one.
	_, err = s.instances.Cancel(ctx, recent.ID)
	require.NoError(t, err)
	mustInstance(t, s, &model.TaskInstance{UserID: user.ID, TemplateID: &tmpl.ID, Title: "Ménage", ScheduledStart: sunday.AddDate(0, 0, -10)})

	due, err = m.ShouldScheduleBiweekly(ctx, tmpl.ID, sunday)
	require.NoError(t, err)
	assert.True(t, due)

	res, err = m.Materialize(ctx, user.ID, sunday)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.True(t, res.Created[0].ScheduledStart.Equal(day(2026, time.March, 3, 10, 0)))
}

func TestShouldScheduleMonthly(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	user := testutil.NewUser(t, s.db, "ana@example.com")
	tmpl := newTemplate(t, s, user.ID, "Loyer", model.RecurrenceMonthly, model.RecurrenceData{})
	m := newMaterializer(s)

	due, err := m.ShouldScheduleMonthly(ctx, tmpl.ID, sunday)
	require.NoError(t, err)
	assert.True(t, due, "no previous instance")

	inst := mustInstance(t, s, &model.TaskInstance{UserID: user.ID, TemplateID: &tmpl.ID, Title: "Loyer", ScheduledStart: sunday.AddDate(0, 0, -20)})
	due, err = m.ShouldScheduleMonthly(ctx, tmpl.ID, sunday)
	require.NoError(t, err)
	assert.False(t, due)

	_, err = s.instances.Cancel(ctx, inst.ID)
	require.NoError(t, err)
	mustInstance(t, s, &model.TaskInstance{UserID: user.ID, TemplateID: &tmpl.ID, Title: "Loyer", ScheduledStart: sunday.AddDate(0, 0, -21)})
	due, err = m.ShouldScheduleMonthly(ctx, tmpl.ID, sunday)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestMaterializeDailyAndNoneAreSkipped(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	user := testutil.NewUser(t, s.db, "ana@example.com")
	newTemplate(t, s, user.ID, "Méditation", model.RecurrenceDaily, model.RecurrenceData{Time: "7:00"})
	newTemplate(t, s, user.ID, "Ponctuel", model.RecurrenceNone, model.RecurrenceData{})

	res, err := newMaterializer(s).Materialize(ctx, user.ID, sunday)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Empty(t, res.Failures)
}

func TestMaterializeCustomRRule(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	user := testutil.NewUser(t, s.db, "ana@example.com")
	newTemplate(t, s, user.ID, "Piscine", model.RecurrenceCustom, model.RecurrenceData{RRule: "RRULE:FREQ=WEEKLY;BYDAY=MO,WE", Time: "12:15"})
	bad := newTemplate(t, s, user.ID, "Cassé", model.RecurrenceCustom, model.RecurrenceData{RRule: "FREQ=NEVER"})

	res, err := newMaterializer(s).Materialize(ctx, user.ID, sunday)
	require.NoError(t, err)
	require.Len(t, res.Created, 2)
	assert.True(t, res.Created[0].ScheduledStart.Equal(day(2026, time.March, 2, 12, 15)))
	assert.True(t, res.Created[1].ScheduledStart.Equal(day(2026, time.March, 4, 12, 15)))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, bad.ID, res.Failures[0].TemplateID)
}

func TestRunWeekOnlyOnMaterializationDay(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	user := testutil.NewUser(t, s.db, "ana@example.com")
	newTemplate(t, s, user.ID, "Sport", model.RecurrenceWeekly, model.RecurrenceData{Days: []int{1}})
	m := newMaterializer(s)

	m.now = func() time.Time { return sunday.AddDate(0, 0, 1) }
	res, err := m.RunWeek(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Created)

	m.now = func() time.Time { return sunday.Add(8 * time.Hour) }
	res, err = m.RunWeek(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
}

func TestTimeOfDayDefaults(t *testing.T) {
	h, m := timeOfDay("")
	assert.Equal(t, [2]int{9, 0}, [2]int{h, m})
	h, m = timeOfDay("18:45")
	assert.Equal(t, [2]int{18, 45}, [2]int{h, m})
	h, m = timeOfDay("garbage")
	assert.Equal(t, [2]int{9, 0}, [2]int{h, m})
	h, m = timeOfDay("24:00")
	assert.Equal(t, [2]int{9, 0}, [2]int{h, m})
}
