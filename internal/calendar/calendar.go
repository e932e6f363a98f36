// Package calendar is the boundary to the external calendar service: the Client contract,
// the single ICS parsing function and the CalDAV implementation.
package calendar

import (
	"context"
	"time"
)

// Client is the external calendar service. Implementations bound every call with a timeout.
type Client interface {
	// Search returns the raw events of calendarName overlapping [start, end).
	Search(ctx context.Context, calendarName string, start, end time.Time) ([]RawEvent, error)
	// CreateEvent stores a new event and returns its uid.
	CreateEvent(ctx context.Context, calendarName string, ev NewEvent) (string, error)
	Exists(ctx context.Context, calendarName, uid string, start, end time.Time) (bool, error)
	// Delete removes the event and reports whether it was found.
	Delete(ctx context.Context, calendarName, uid string, start, end time.Time) (bool, error)
}

// RawEvent is one calendar object as returned by the service.
type RawEvent struct {
	Path string
	Data string
}

// NewEvent is the payload of CreateEvent.
type NewEvent struct {
	Title        string
	Start        time.Time
	End          time.Time
	Description  *string
	Location     *string
	URL          *string
	AlertMinutes []int
}

// ParsedEvent is a validated VEVENT. Start is always set and in UTC.
type ParsedEvent struct {
	UID         string
	Title       string
	Start       time.Time
	End         *time.Time
	Description *string
	Location    *string
	Lat         *float64
	Lon         *float64
	URL         *string
	Alerts      []int
}

// EndOrDefault returns End, or Start plus one hour when the event has none.
func (p ParsedEvent) EndOrDefault() time.Time {
	if p.End == nil {
		return p.Start.Add(time.Hour)
	}
	return *p.End
}
