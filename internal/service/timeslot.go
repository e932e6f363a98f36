package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Interval is a time-of-day range in "H:MM"-style text.
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

const minutesPerDay = 24 * 60

// FreeSlots returns the gaps between the busy intervals inside [dayStart, dayEnd], in order and
// formatted "HH:MM". Bounds that do not parse fall back to 00:00 and 24:00; busy intervals that
// do not parse, or are empty once clipped, are ignored.
func FreeSlots(dayStart, dayEnd string, busy []Interval) []Interval {
	lo, hi := dayBounds(dayStart, dayEnd)

	merged := mergeBusy(lo, hi, busy)

	var free []Interval
	cursor := lo
	for _, iv := range merged {
		if iv[0] > cursor {
			free = append(free, Interval{Start: FormatMinutes(cursor), End: FormatMinutes(iv[0])})
		}
		if iv[1] > cursor {
			cursor = iv[1]
		}
	}
	if cursor < hi {
		free = append(free, Interval{Start: FormatMinutes(cursor), End: FormatMinutes(hi)})
	}
	return free
}

// MergeBusy clips busy to the day bounds and merges overlapping or touching intervals.
func MergeBusy(dayStart, dayEnd string, busy []Interval) []Interval {
	lo, hi := dayBounds(dayStart, dayEnd)
	merged := mergeBusy(lo, hi, busy)
	out := make([]Interval, 0, len(merged))
	for _, iv := range merged {
		out = append(out, Interval{Start: FormatMinutes(iv[0]), End: FormatMinutes(iv[1])})
	}
	return out
}

func dayBounds(dayStart, dayEnd string) (int, int) {
	lo, err := ParseClockMinutes(dayStart)
	if err != nil {
		lo = 0
	}
	hi, err := ParseClockMinutes(dayEnd)
	if err != nil {
		hi = minutesPerDay
	}
	return lo, hi
}

func mergeBusy(lo, hi int, busy []Interval) [][2]int {
	intervals := make([][2]int, 0, len(busy))
	for _, b := range busy {
		s, err := ParseClockMinutes(b.Start)
		if err != nil {
			continue
		}
		e, err := ParseClockMinutes(b.End)
		if err != nil {
			continue
		}
		if s < lo {
			s = lo
		}
		if e > hi {
			e = hi
		}
		if e <= s {
			continue
		}
		intervals = append(intervals, [2]int{s, e})
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i][0] < intervals[j][0] })

	var merged [][2]int
	for _, iv := range intervals {
		if n := len(merged); n > 0 && iv[0] <= merged[n-1][1] {
			if iv[1] > merged[n-1][1] {
				merged[n-1][1] = iv[1]
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// ParseClockMinutes reads "HH:MM", "H:MM", "9", "9h" or "9h30" as minutes since midnight.
func ParseClockMinutes(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}
	head, tail := s, ""
	if h, m, ok := strings.Cut(s, ":"); ok {
		head, tail = h, m
	} else if h, m, ok := strings.Cut(s, "h"); ok {
		head, tail = h, m
	}
	hours, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	minutes := 0
	if tail != "" {
		if minutes, err = strconv.Atoi(tail); err != nil {
			return 0, fmt.Errorf("invalid time %q", s)
		}
	}
	if hours < 0 || minutes < 0 || minutes > 59 || hours*60+minutes > minutesPerDay {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return hours*60 + minutes, nil
}

// FormatMinutes renders minutes since midnight as "HH:MM".
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
