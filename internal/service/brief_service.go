package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"salva/internal/model"
	"salva/internal/repository"
)

// BriefService builds human-readable summaries for daily notifications.
type BriefService struct {
	instances *repository.InstanceRepository
	clusters  *repository.ClusterRepository
}

func NewBriefService(instances *repository.InstanceRepository, clusters *repository.ClusterRepository) *BriefService {
	return &BriefService{instances: instances, clusters: clusters}
}

// Today returns the user's SCHEDULED instances for the local day containing now.
func (s *BriefService) Today(ctx context.Context, user model.User, now time.Time) ([]model.TaskInstance, error) {
	loc := user.Location()
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return s.instances.List(ctx, user.ID, repository.InstanceFilter{
		Start:  dayStart,
		End:    dayStart.AddDate(0, 0, 1),
		Status: model.StatusScheduled,
	})
}

// Slots returns today's free slots within the user's working hours, in local time.
func (s *BriefService) Slots(ctx context.Context, user model.User, now time.Time) ([]Interval, error) {
	tasks, err := s.Today(ctx, user, now)
	if err != nil {
		return nil, err
	}
	loc := user.Location()
	busy := make([]Interval, 0, len(tasks))
	for _, t := range tasks {
		start, end := t.ScheduledStart.In(loc), t.ScheduledEnd.In(loc)
		endMin := end.Hour()*60 + end.Minute()
		if end.YearDay() != start.YearDay() {
			endMin = minutesPerDay
		}
		busy = append(busy, Interval{Start: FormatMinutes(start.Hour()*60 + start.Minute()), End: FormatMinutes(endMin)})
	}
	prefs := user.Prefs()
	return FreeSlots(prefs.WorkHoursStart, prefs.WorkHoursEnd, busy), nil
}

func (s *BriefService) DailyBrief(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.Today(ctx, user, now)
	if err != nil {
		return "", err
	}
	slots, err := s.Slots(ctx, user, now)
	if err != nil {
		return "", err
	}
	clusters, err := s.clusters.ListActive(ctx, user.ID)
	if err != nil {
		return "", err
	}
	loc := user.Location()

	var builder strings.Builder
	builder.WriteString("📋 <b>Programme du jour</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.In(loc).Format("02.01.2006")))

	builder.WriteString("🔥 <b>Tâches</b>\n")
	if len(tasks) == 0 {
		builder.WriteString("— rien de prévu\n")
	} else {
		for _, t := range tasks {
			builder.WriteString(formatInstance(t, loc))
		}
	}

	builder.WriteString("\n🕳 <b>Créneaux libres</b>\n")
	if len(slots) == 0 {
		builder.WriteString("— aucun\n")
	} else {
		for _, sl := range slots {
			builder.WriteString(fmt.Sprintf("• %s–%s\n", sl.Start, sl.End))
		}
	}

	if len(clusters) > 0 {
		builder.WriteString("\n♻️ <b>Habitudes détectées</b>\n")
		for _, c := range clusters {
			builder.WriteString(formatCluster(c))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatInstance(t model.TaskInstance, loc *time.Location) string {
	var sb strings.Builder

	icon := "🟢"
	if t.Origin == model.OriginCalendar {
		icon = "📅"
	}
	sb.WriteString(fmt.Sprintf("%s <code>#%d</code> %s–%s %s", icon, t.ID,
		t.ScheduledStart.In(loc).Format("15:04"), t.ScheduledEnd.In(loc).Format("15:04"),
		html.EscapeString(strings.TrimSpace(t.Title))))

	if t.Location != nil && strings.TrimSpace(*t.Location) != "" {
		sb.WriteString(fmt.Sprintf("\n   📍 %s", html.EscapeString(strings.TrimSpace(*t.Location))))
	}
	if t.Description != nil && strings.TrimSpace(*t.Description) != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(*t.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

func formatCluster(c model.OrphanCluster) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("• %s <i>(%d fois", html.EscapeString(c.RepresentativeTitle), len(c.Links)))
	if c.DetectedFrequencyDays != nil {
		sb.WriteString(fmt.Sprintf(", tous les ≈%.0f j.", *c.DetectedFrequencyDays))
	}
	sb.WriteString(")</i>\n")
	return sb.String()
}
