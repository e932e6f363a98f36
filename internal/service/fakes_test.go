package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"salva/internal/calendar"
	"salva/internal/logger"
	"salva/internal/model"
	"salva/internal/repository"
	"salva/internal/testutil"
)

var errCalendarDown = errors.New("calendar unreachable")

type storedEvent struct {
	calendar string
	raw      calendar.RawEvent
	start    time.Time
	end      time.Time
}

// fakeCalendar keeps events as ICS text so every read goes through calendar.ParseEvent.
type fakeCalendar struct {
	mu     sync.Mutex
	events map[string]storedEvent
	seq    int

	failSearch bool
	failCreate bool
	failExists bool
	failDelete bool
	creates    int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]storedEvent)}
}

func (f *fakeCalendar) Search(_ context.Context, calendarName string, start, end time.Time) ([]calendar.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSearch {
		return nil, errCalendarDown
	}
	var out []calendar.RawEvent
	for _, ev := range f.events {
		if ev.calendar == calendarName && ev.start.Before(end) && ev.end.After(start) {
			out = append(out, ev.raw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, calendarName string, ev calendar.NewEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return "", errCalendarDown
	}
	f.creates++
	f.seq++
	uid := fmt.Sprintf("uid-%d", f.seq)
	data, err := calendar.EncodeEvent(uid, ev, time.Now())
	if err != nil {
		return "", err
	}
	f.events[uid] = storedEvent{
		calendar: calendarName,
		raw:      calendar.RawEvent{Path: "/" + calendarName + "/" + uid + ".ics", Data: data},
		start:    ev.Start,
		end:      ev.End,
	}
	return uid, nil
}

func (f *fakeCalendar) Exists(_ context.Context, calendarName, uid string, _, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failExists {
		return false, errCalendarDown
	}
	ev, ok := f.events[uid]
	return ok && ev.calendar == calendarName, nil
}

func (f *fakeCalendar) Delete(_ context.Context, calendarName, uid string, _, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return false, errCalendarDown
	}
	ev, ok := f.events[uid]
	if !ok || ev.calendar != calendarName {
		return false, nil
	}
	delete(f.events, uid)
	return true, nil
}

// put stores an event as if it had been created by another client.
func (f *fakeCalendar) put(calendarName, uid string, ev calendar.NewEvent) {
	data, err := calendar.EncodeEvent(uid, ev, time.Now())
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	end := ev.End
	if end.IsZero() {
		end = ev.Start.Add(time.Hour)
	}
	f.events[uid] = storedEvent{
		calendar: calendarName,
		raw:      calendar.RawEvent{Path: "/" + calendarName + "/" + uid + ".ics", Data: data},
		start:    ev.Start,
		end:      end,
	}
}

func (f *fakeCalendar) putRaw(calendarName, path, data string, start time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[path] = storedEvent{
		calendar: calendarName,
		raw:      calendar.RawEvent{Path: path, Data: data},
		start:    start,
		end:      start.Add(time.Hour),
	}
}

func (f *fakeCalendar) remove(uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.events, uid)
}

func (f *fakeCalendar) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// stores bundles the repositories a service test needs.
type stores struct {
	db        *gorm.DB
	users     *repository.UserRepository
	templates *repository.TemplateRepository
	instances *repository.InstanceRepository
	matches   *repository.MatchRepository
	clusters  *repository.ClusterRepository
	patterns  *repository.PatternRepository
}

func newStores(t *testing.T) stores {
	t.Helper()
	db := testutil.NewDB(t)
	return stores{
		db:        db,
		users:     repository.NewUserRepository(db),
		templates: repository.NewTemplateRepository(db),
		instances: repository.NewInstanceRepository(db),
		matches:   repository.NewMatchRepository(db),
		clusters:  repository.NewClusterRepository(db),
		patterns:  repository.NewPatternRepository(db),
	}
}

func nopLog() *logger.Logger { return logger.NewNop() }

func day(y int, m time.Month, d, hour, minute int) time.Time {
	return time.Date(y, m, d, hour, minute, 0, 0, time.UTC)
}

func strptr(s string) *string { return &s }

func mustInstance(t *testing.T, s stores, inst *model.TaskInstance) *model.TaskInstance {
	t.Helper()
	if err := s.instances.Create(context.Background(), inst); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	return inst
}
