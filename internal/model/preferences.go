package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"salva/internal/apperr"
)

// Preferences is the validated per-user scheduling preference set.
type Preferences struct {
	WorkHoursStart             string `json:"work_hours_start"`
	WorkHoursEnd               string `json:"work_hours_end"`
	WorkDays                   []int  `json:"work_days"`
	MaxTasksPerDay             int    `json:"max_tasks_per_day"`
	DefaultTaskDurationMinutes int    `json:"default_task_duration_minutes"`
	BufferBetweenTasksMinutes  int    `json:"buffer_between_tasks_minutes"`
	Language                   string `json:"language"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		WorkHoursStart:             "9:00",
		WorkHoursEnd:               "18:30",
		WorkDays:                   []int{1, 2, 3, 4, 5},
		MaxTasksPerDay:             5,
		DefaultTaskDurationMinutes: 60,
		BufferBetweenTasksMinutes:  15,
		Language:                   "fr",
	}
}

// Validate returns the normalized copy of p: weekdays deduplicated and sorted.
func (p Preferences) Validate() (Preferences, error) {
	for _, v := range []string{p.WorkHoursStart, p.WorkHoursEnd} {
		if err := validateHour(v); err != nil {
			return p, err
		}
	}

	seen := make(map[int]struct{}, len(p.WorkDays))
	days := make([]int, 0, len(p.WorkDays))
	for _, d := range p.WorkDays {
		if d < 1 || d > 7 {
			return p, apperr.Validation("work day %d out of range 1-7", d)
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Ints(days)

	if p.MaxTasksPerDay < 1 || p.MaxTasksPerDay > 20 {
		return p, apperr.Validation("max_tasks_per_day must be between 1 and 20, got %d", p.MaxTasksPerDay)
	}
	if p.DefaultTaskDurationMinutes < 0 || p.BufferBetweenTasksMinutes < 0 {
		return p, apperr.Validation("durations must not be negative")
	}

	out := p
	out.WorkDays = days
	return out, nil
}

func validateHour(v string) error {
	head, _, _ := strings.Cut(strings.TrimSpace(v), ":")
	h, err := strconv.Atoi(head)
	if err != nil {
		return apperr.Validation("invalid hour %q", v)
	}
	if h < 0 || h > 23 {
		return apperr.Validation("hour %d out of range 0-23", h)
	}
	return nil
}

func (p Preferences) String() string {
	return fmt.Sprintf("%s-%s days=%v max=%d", p.WorkHoursStart, p.WorkHoursEnd, p.WorkDays, p.MaxTasksPerDay)
}
