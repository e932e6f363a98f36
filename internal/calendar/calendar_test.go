package calendar

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salva/internal/apperr"
)

func ics(lines ...string) RawEvent {
	body := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	body = append(body, "END:VCALENDAR", "")
	return RawEvent{Path: "/cal/work/x.ics", Data: strings.Join(body, "\r\n")}
}

func TestParseEventFullRecord(t *testing.T) {
	raw := ics(
		"BEGIN:VEVENT",
		"UID:abc-123",
		"DTSTAMP:20260220T080000Z",
		"DTSTART:20260223T090000Z",
		"DTEND:20260223T103000Z",
		"SUMMARY:Réunion équipe",
		"DESCRIPTION:Ordre du jour",
		"LOCATION:Bureau",
		"GEO:48.8566;2.3522",
		"URL:https://meet.example.com/x",
		"BEGIN:VALARM",
		"ACTION:DISPLAY",
		"TRIGGER:-PT15M",
		"END:VALARM",
		"BEGIN:VALARM",
		"ACTION:DISPLAY",
		"TRIGGER:-PT1H",
		"END:VALARM",
		"BEGIN:VALARM",
		"ACTION:DISPLAY",
		"TRIGGER:-PT15M",
		"END:VALARM",
		"END:VEVENT",
	)

	ev, err := ParseEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, "abc-123", ev.UID)
	assert.Equal(t, "Réunion équipe", ev.Title)
	assert.Equal(t, time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC), ev.Start)
	require.NotNil(t, ev.End)
	assert.Equal(t, time.Date(2026, 2, 23, 10, 30, 0, 0, time.UTC), *ev.End)
	assert.Equal(t, "Ordre du jour", *ev.Description)
	assert.Equal(t, "Bureau", *ev.Location)
	assert.Equal(t, "https://meet.example.com/x", *ev.URL)
	assert.InDelta(t, 48.8566, *ev.Lat, 1e-9)
	assert.InDelta(t, 2.3522, *ev.Lon, 1e-9)
	assert.Equal(t, []int{15, 60}, ev.Alerts)
}

func TestParseEventDefaults(t *testing.T) {
	ev, err := ParseEvent(ics(
		"BEGIN:VEVENT",
		"UID:naive",
		"DTSTART:20260223T090000",
		"END:VEVENT",
	))
	require.NoError(t, err)

	assert.Equal(t, defaultTitle, ev.Title)
	assert.Equal(t, time.UTC, ev.Start.Location())
	assert.Equal(t, 9, ev.Start.Hour())
	assert.Nil(t, ev.End)
	assert.Equal(t, ev.Start.Add(time.Hour), ev.EndOrDefault())
	assert.Nil(t, ev.Description)
	assert.Nil(t, ev.Lat)
	assert.Nil(t, ev.Alerts)
}

func TestParseEventTimezonesAndDates(t *testing.T) {
	ev, err := ParseEvent(ics(
		"BEGIN:VEVENT",
		"UID:tz",
		"DTSTART;TZID=Europe/Paris:20260223T090000",
		"DTEND;VALUE=DATE:20260224",
		"END:VEVENT",
	))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 2, 23, 8, 0, 0, 0, time.UTC), ev.Start)
	assert.Equal(t, time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC), *ev.End)
}

func TestParseEventStructuredLocation(t *testing.T) {
	ev, err := ParseEvent(ics(
		"BEGIN:VEVENT",
		"UID:apple",
		"DTSTART:20260223T090000Z",
		"X-APPLE-STRUCTURED-LOCATION;VALUE=URI;X-TITLE=Gare:geo:45.76,4.83",
		"END:VEVENT",
	))
	require.NoError(t, err)
	require.NotNil(t, ev.Lat)
	assert.InDelta(t, 45.76, *ev.Lat, 1e-9)
	assert.InDelta(t, 4.83, *ev.Lon, 1e-9)
}

func TestParseEventRejectsIncompleteRecords(t *testing.T) {
	_, err := ParseEvent(ics("BEGIN:VEVENT", "DTSTART:20260223T090000Z", "END:VEVENT"))
	assert.True(t, errors.Is(err, apperr.ErrParse))

	_, err = ParseEvent(ics("BEGIN:VEVENT", "UID:no-start", "SUMMARY:x", "END:VEVENT"))
	assert.True(t, errors.Is(err, apperr.ErrParse))

	_, err = ParseEvent(ics("BEGIN:VTODO", "UID:todo", "END:VTODO"))
	assert.True(t, errors.Is(err, apperr.ErrParse))

	_, err = ParseEvent(RawEvent{Data: "not a calendar"})
	assert.True(t, errors.Is(err, apperr.ErrParse))
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"-PT15M":     -15 * time.Minute,
		"PT1H":       time.Hour,
		"-P1D":       -24 * time.Hour,
		"-P1DT2H30M": -(26*time.Hour + 30*time.Minute),
		"-P1W":       -7 * 24 * time.Hour,
		"+PT30S":     30 * time.Second,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "15M", "PT", "P1H", "PT1D", "-PTM"} {
		_, err := ParseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatTrigger(t *testing.T) {
	assert.Equal(t, "-PT15M", FormatTrigger(15))
	assert.Equal(t, "-PT1H30M", FormatTrigger(90))
	assert.Equal(t, "-P1D", FormatTrigger(1440))
	assert.Equal(t, "PT0M", FormatTrigger(0))
}

func TestEncodeThenParse(t *testing.T) {
	desc, loc, url := "Apporter le rapport", "Salle B", "https://example.com/r"
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	payload, err := EncodeEvent("uid-42", NewEvent{
		Title:        "Point hebdo",
		Start:        start,
		End:          start.Add(45 * time.Minute),
		Description:  &desc,
		Location:     &loc,
		URL:          &url,
		AlertMinutes: []int{30, 10, 30},
	}, start.Add(-time.Hour))
	require.NoError(t, err)
	assert.Contains(t, payload, "BEGIN:VALARM")

	ev, err := ParseEvent(RawEvent{Data: payload})
	require.NoError(t, err)
	assert.Equal(t, "uid-42", ev.UID)
	assert.Equal(t, "Point hebdo", ev.Title)
	assert.Equal(t, start, ev.Start)
	assert.Equal(t, start.Add(45*time.Minute), *ev.End)
	assert.Equal(t, loc, *ev.Location)
	assert.Equal(t, url, *ev.URL)
	assert.Equal(t, []int{10, 30}, ev.Alerts)
}

func TestEncodeThenParseKeepsBackslashes(t *testing.T) {
	desc, loc, url := `backup C:\notes; lundi, mardi`, `Salle 3\Nord`, "https://example.com/r;v=1,2"
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	payload, err := EncodeEvent("uid-7", NewEvent{
		Title:       `Sauvegarde \\nas`,
		Start:       start,
		Description: &desc,
		Location:    &loc,
		URL:         &url,
	}, start)
	require.NoError(t, err)

	ev, err := ParseEvent(RawEvent{Data: payload})
	require.NoError(t, err)
	assert.Equal(t, `Sauvegarde \\nas`, ev.Title)
	assert.Equal(t, desc, *ev.Description)
	assert.Equal(t, loc, *ev.Location)
	assert.Equal(t, url, *ev.URL)
}

func TestParseEventUnescapesTextOnce(t *testing.T) {
	ev, err := ParseEvent(ics(
		"BEGIN:VEVENT",
		"UID:text",
		"DTSTART:20260223T090000Z",
		`DESCRIPTION:ligne 1\nligne 2\, suite\\fin`,
		`URL:https://example.com/a\b`,
		"END:VEVENT",
	))
	require.NoError(t, err)
	assert.Equal(t, "ligne 1\nligne 2, suite\\fin", *ev.Description)
	assert.Equal(t, `https://example.com/a\b`, *ev.URL)
}

func TestParseEventRejectsNonFiniteCoordinates(t *testing.T) {
	for _, geo := range []string{"GEO:nan;nan", "GEO:inf;2.35", "GEO:48.85;-Inf", "GEO:91;2.35", "GEO:48.85;181"} {
		ev, err := ParseEvent(ics("BEGIN:VEVENT", "UID:geo", "DTSTART:20260223T090000Z", geo, "END:VEVENT"))
		require.NoError(t, err, geo)
		assert.Nil(t, ev.Lat, geo)
		assert.Nil(t, ev.Lon, geo)
	}

	ev, err := ParseEvent(ics("BEGIN:VEVENT", "UID:geo", "DTSTART:20260223T090000Z", "GEO:-90;180", "END:VEVENT"))
	require.NoError(t, err)
	require.NotNil(t, ev.Lat)
	assert.Equal(t, -90.0, *ev.Lat)
	assert.Equal(t, 180.0, *ev.Lon)
}

func TestEncodeEventValidates(t *testing.T) {
	_, err := EncodeEvent("", NewEvent{Title: "x", Start: time.Now()}, time.Now())
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = EncodeEvent("u", NewEvent{Title: "x"}, time.Now())
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestNewUIDIsUnique(t *testing.T) {
	assert.NotEqual(t, NewUID(), NewUID())
}
