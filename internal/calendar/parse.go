package calendar

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"salva/internal/apperr"
)

const defaultTitle = "Sans titre"

var (
	propGeo                = ical.ComponentProperty("GEO")
	propStructuredLocation = ical.ComponentProperty("X-APPLE-STRUCTURED-LOCATION")
	propURL                = ical.ComponentProperty("URL")
	propTrigger            = ical.ComponentProperty("TRIGGER")
)

// ParseEvent turns the first VEVENT of raw into a ParsedEvent. A payload that does not parse,
// holds no VEVENT, or lacks UID or DTSTART is a Parse error.
func ParseEvent(raw RawEvent) (ParsedEvent, error) {
	var out ParsedEvent

	cal, err := ical.ParseCalendar(strings.NewReader(raw.Data))
	if err != nil {
		return out, apperr.Parse("ics %s: %v", raw.Path, err)
	}
	events := cal.Events()
	if len(events) == 0 {
		return out, apperr.Parse("ics %s: no VEVENT", raw.Path)
	}
	ve := events[0]

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = strings.TrimSpace(p.Value)
	}
	if out.UID == "" {
		return out, apperr.Parse("ics %s: missing UID", raw.Path)
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || strings.TrimSpace(startProp.Value) == "" {
		return out, apperr.Parse("event %s: missing DTSTART", out.UID)
	}
	start, err := parseDateTime(startProp)
	if err != nil {
		return out, apperr.Parse("event %s: DTSTART: %v", out.UID, err)
	}
	out.Start = start

	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil && strings.TrimSpace(p.Value) != "" {
		end, err := parseDateTime(p)
		if err != nil {
			return out, apperr.Parse("event %s: DTEND: %v", out.UID, err)
		}
		out.End = &end
	}

	out.Title = defaultTitle
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && strings.TrimSpace(p.Value) != "" {
		out.Title = strings.TrimSpace(p.Value)
	}
	out.Description = propValue(ve, ical.ComponentPropertyDescription)
	out.Location = propValue(ve, ical.ComponentPropertyLocation)
	out.URL = propValue(ve, propURL)
	out.Lat, out.Lon = coordinates(ve)
	out.Alerts = alerts(ve, out.Start)

	return out, nil
}

// propValue returns the property value as decoded by the parser. TEXT values arrive
// unescaped and URI values arrive verbatim. Blank values are nil.
func propValue(ve *ical.VEvent, name ical.ComponentProperty) *string {
	p := ve.GetProperty(name)
	if p == nil {
		return nil
	}
	v := p.Value
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

// parseDateTime reads a DATE or DATE-TIME property. Floating times and dates are taken as UTC.
func parseDateTime(p *ical.IANAProperty) (time.Time, error) {
	val := strings.TrimSpace(p.Value)

	isDate := !strings.Contains(val, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}
	if isDate {
		t, err := time.ParseInLocation("20060102", val, time.UTC)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}

	if strings.HasSuffix(val, "Z") {
		t, err := time.Parse("20060102T150405Z", val)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}

	loc := time.UTC
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tzs[0], `"`)); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", val, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// coordinates reads GEO ("lat;lon") first, then X-APPLE-STRUCTURED-LOCATION ("geo:lat,lon").
func coordinates(ve *ical.VEvent) (*float64, *float64) {
	if p := ve.GetProperty(propGeo); p != nil {
		if lat, lon, ok := splitPair(p.Value, ";"); ok {
			return &lat, &lon
		}
	}
	if p := ve.GetProperty(propStructuredLocation); p != nil {
		if _, rest, found := strings.Cut(p.Value, "geo:"); found {
			if lat, lon, ok := splitPair(rest, ","); ok {
				return &lat, &lon
			}
		}
	}
	return nil, nil
}

func splitPair(s, sep string) (float64, float64, bool) {
	a, b, found := strings.Cut(strings.TrimSpace(s), sep)
	if !found {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, false
	}
	if !validCoordinate(lat, 90) || !validCoordinate(lon, 180) {
		return 0, 0, false
	}
	return lat, lon, true
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}

// alerts collects VALARM lead times in minutes, sorted and de-duplicated. Nil when there are none.
func alerts(ve *ical.VEvent, start time.Time) []int {
	seen := make(map[int]struct{})
	for _, c := range ve.Components {
		alarm, ok := c.(*ical.VAlarm)
		if !ok {
			continue
		}
		p := alarm.GetProperty(propTrigger)
		if p == nil {
			continue
		}
		var lead time.Duration
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE-TIME") {
			at, err := parseDateTime(p)
			if err != nil {
				continue
			}
			lead = start.Sub(at)
		} else {
			d, err := ParseDuration(p.Value)
			if err != nil {
				continue
			}
			lead = -d
		}
		if lead < 0 {
			lead = -lead
		}
		seen[int(lead/time.Minute)] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]int, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}

// ParseDuration reads an RFC 5545 duration such as "-PT15M", "P1D" or "-P1DT2H30M".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, apperr.Parse("invalid duration %q", s)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			if num != "" || inTime {
				return 0, apperr.Parse("invalid duration %q", s)
			}
			inTime = true
			continue
		}
		if num == "" {
			return 0, apperr.Parse("invalid duration %q", s)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, apperr.Parse("invalid duration %q", s)
		}
		num = ""
		var unit time.Duration
		switch {
		case r == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			unit = 24 * time.Hour
		case r == 'H' && inTime:
			unit = time.Hour
		case r == 'M' && inTime:
			unit = time.Minute
		case r == 'S' && inTime:
			unit = time.Second
		default:
			return 0, apperr.Parse("invalid duration unit %q", r)
		}
		total += time.Duration(n) * unit
	}
	if num != "" {
		return 0, apperr.Parse("invalid duration %q", s)
	}
	if neg {
		total = -total
	}
	return total, nil
}
