package calendar

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"salva/internal/apperr"
)

const productID = "-//salva//scheduler//EN"

var (
	propAction = ical.ComponentProperty("ACTION")
)

// NewUID returns a fresh event uid.
func NewUID() string {
	return uuid.NewString()
}

// EncodeEvent renders ev as a VCALENDAR holding one VEVENT with a DISPLAY alarm per alert minute.
func EncodeEvent(uid string, ev NewEvent, stamp time.Time) (string, error) {
	if strings.TrimSpace(uid) == "" {
		return "", apperr.Validation("event uid is required")
	}
	if strings.TrimSpace(ev.Title) == "" {
		return "", apperr.Validation("event title is required")
	}
	if ev.Start.IsZero() {
		return "", apperr.Validation("event start is required")
	}
	end := ev.End
	if end.IsZero() || !end.After(ev.Start) {
		end = ev.Start.Add(time.Hour)
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)

	ve := cal.AddEvent(uid)
	ve.SetDtStampTime(stamp.UTC())
	ve.SetStartAt(ev.Start.UTC())
	ve.SetEndAt(end.UTC())
	ve.SetSummary(ev.Title)
	if ev.Description != nil && *ev.Description != "" {
		ve.SetDescription(*ev.Description)
	}
	if ev.Location != nil && *ev.Location != "" {
		ve.SetLocation(*ev.Location)
	}
	if ev.URL != nil && *ev.URL != "" {
		ve.SetProperty(propURL, *ev.URL)
	}

	seen := make(map[int]struct{}, len(ev.AlertMinutes))
	for _, m := range ev.AlertMinutes {
		if m < 0 {
			m = -m
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		alarm := ve.AddAlarm()
		alarm.SetProperty(propAction, "DISPLAY")
		alarm.SetProperty(ical.ComponentPropertyDescription, ev.Title)
		alarm.SetProperty(propTrigger, FormatTrigger(m))
	}

	return cal.Serialize(), nil
}

// FormatTrigger renders a lead time as a negative duration, e.g. 90 -> "-PT1H30M".
func FormatTrigger(minutes int) string {
	if minutes == 0 {
		return "PT0M"
	}
	days := minutes / (24 * 60)
	rest := minutes % (24 * 60)
	var b strings.Builder
	b.WriteString("-P")
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if rest > 0 {
		b.WriteString("T")
		if h := rest / 60; h > 0 {
			fmt.Fprintf(&b, "%dH", h)
		}
		if m := rest % 60; m > 0 {
			fmt.Fprintf(&b, "%dM", m)
		}
	}
	return b.String()
}
