package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salva/internal/apperr"
)

func TestMatchingStatusOnlyAdvances(t *testing.T) {
	allowed := map[MatchingStatus][]MatchingStatus{
		MatchingPending:   {MatchingMatched, MatchingOrphan},
		MatchingOrphan:    {MatchingClustered},
		MatchingClustered: {MatchingMatched},
		MatchingMatched:   {MatchingMatched},
	}
	all := []MatchingStatus{MatchingPending, MatchingMatched, MatchingOrphan, MatchingClustered}

	for from, targets := range allowed {
		for _, to := range all {
			want := false
			for _, ok := range targets {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanAdvanceTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTaskStatusTerminalStates(t *testing.T) {
	assert.True(t, StatusScheduled.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusScheduled.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusScheduled))
	assert.False(t, StatusScheduled.CanTransitionTo(StatusScheduled))
}

func TestClusterStatusTransitions(t *testing.T) {
	assert.True(t, ClusterActive.CanTransitionTo(ClusterPromoted))
	assert.True(t, ClusterActive.CanTransitionTo(ClusterDismissed))
	assert.False(t, ClusterPromoted.CanTransitionTo(ClusterActive))
	assert.False(t, ClusterDismissed.CanTransitionTo(ClusterPromoted))
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, RecurrenceBiweekly.Valid())
	assert.False(t, RecurrencePattern("yearly").Valid())
	assert.True(t, OriginDetected.Valid())
	assert.False(t, MatchMethod("regex").Valid())
	assert.True(t, PreferEvening.Valid())
}

func TestPreferencesValidateNormalizesWorkDays(t *testing.T) {
	p := DefaultPreferences()
	p.WorkDays = []int{5, 1, 3, 1, 5}

	out, err := p.Validate()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, out.WorkDays)
}

func TestPreferencesValidateRejectsOutOfRange(t *testing.T) {
	cases := map[string]func(p *Preferences){
		"hour":     func(p *Preferences) { p.WorkHoursStart = "24:00" },
		"garbage":  func(p *Preferences) { p.WorkHoursEnd = "noon" },
		"weekday":  func(p *Preferences) { p.WorkDays = []int{0, 2} },
		"max low":  func(p *Preferences) { p.MaxTasksPerDay = 0 },
		"max high": func(p *Preferences) { p.MaxTasksPerDay = 21 },
		"buffer":   func(p *Preferences) { p.BufferBetweenTasksMinutes = -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultPreferences()
			mutate(&p)
			_, err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "courses", NormalizeTitle("Faire les courses !"))
	assert.Equal(t, "rendezvous chez coiffeur", NormalizeTitle("  Rendez-vous   chez coiffeur"))
	assert.Equal(t, "sport salle", NormalizeTitle("Sport à la salle"))
	assert.Equal(t, "", NormalizeTitle("   "))
}

func TestTemplateDurationOrDefault(t *testing.T) {
	tpl := NewTemplate(1, "Sport")
	assert.Equal(t, 60.0, tpl.DurationOrDefault().Minutes())

	d := 90
	tpl.EstimatedDuration = &d
	assert.Equal(t, 90.0, tpl.DurationOrDefault().Minutes())
}
