package calendar

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"salva/internal/apperr"
	"salva/internal/logger"
)

// CalDAVConfig holds the endpoint and credentials of a CalDAV server.
type CalDAVConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// CalDAVClient implements Client over CalDAV. Calendars are resolved by display name.
type CalDAVClient struct {
	client  *caldav.Client
	timeout time.Duration
	log     *logger.Logger

	// discover lists the calendars of the current principal as name -> path.
	discover func(ctx context.Context) (map[string]string, error)

	mu        sync.Mutex
	calendars map[string]string
}

func NewCalDAVClient(cfg CalDAVConfig, log *logger.Logger) (*CalDAVClient, error) {
	if cfg.URL == "" {
		return nil, apperr.Validation("caldav url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := webdav.HTTPClientWithBasicAuth(&http.Client{Timeout: cfg.Timeout}, cfg.Username, cfg.Password)
	c, err := caldav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, apperr.External("caldav client: %v", err)
	}
	out := &CalDAVClient{
		client:  c,
		timeout: cfg.Timeout,
		log:     log.With("component", "caldav"),
	}
	out.discover = out.findCalendars
	return out, nil
}

func (c *CalDAVClient) findCalendars(ctx context.Context) (map[string]string, error) {
	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, apperr.External("find principal: %v", err)
	}
	home, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, apperr.External("find calendar home: %v", err)
	}
	cals, err := c.client.FindCalendars(ctx, home)
	if err != nil {
		return nil, apperr.External("list calendars: %v", err)
	}
	paths := make(map[string]string, len(cals))
	for _, cal := range cals {
		paths[cal.Name] = cal.Path
	}
	return paths, nil
}

// calendarPath resolves name from the cache. A miss triggers one rediscovery so calendars
// created after startup are found.
func (c *CalDAVClient) calendarPath(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if path, ok := c.calendars[name]; ok {
		return path, nil
	}
	paths, err := c.discover(ctx)
	if err != nil {
		return "", err
	}
	c.calendars = paths
	c.log.Debug("calendars discovered", "count", len(paths))

	path, ok := c.calendars[name]
	if !ok {
		return "", apperr.NotFound("calendar %q", name)
	}
	return path, nil
}

func (c *CalDAVClient) query(ctx context.Context, calendarName string, start, end time.Time) ([]caldav.CalendarObject, error) {
	path, err := c.calendarPath(ctx, calendarName)
	if err != nil {
		return nil, err
	}
	q := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: start.UTC(),
				End:   end.UTC(),
			}},
		},
	}
	objs, err := c.client.QueryCalendar(ctx, path, q)
	if err != nil {
		return nil, apperr.External("query %s: %v", calendarName, err)
	}
	return objs, nil
}

func (c *CalDAVClient) Search(ctx context.Context, calendarName string, start, end time.Time) ([]RawEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	objs, err := c.query(ctx, calendarName, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]RawEvent, 0, len(objs))
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		var buf bytes.Buffer
		if err := goical.NewEncoder(&buf).Encode(obj.Data); err != nil {
			c.log.Warn("encode calendar object", "path", obj.Path, "error", err)
			continue
		}
		out = append(out, RawEvent{Path: obj.Path, Data: buf.String()})
	}
	return out, nil
}

func (c *CalDAVClient) CreateEvent(ctx context.Context, calendarName string, ev NewEvent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	path, err := c.calendarPath(ctx, calendarName)
	if err != nil {
		return "", err
	}
	uid := NewUID()
	payload, err := EncodeEvent(uid, ev, time.Now())
	if err != nil {
		return "", err
	}
	cal, err := goical.NewDecoder(strings.NewReader(payload)).Decode()
	if err != nil {
		return "", apperr.Parse("re-decode event %s: %v", uid, err)
	}
	if _, err := c.client.PutCalendarObject(ctx, strings.TrimSuffix(path, "/")+"/"+uid+".ics", cal); err != nil {
		return "", apperr.External("put event %s: %v", uid, err)
	}
	c.log.Info("event created", "calendar", calendarName, "uid", uid)
	return uid, nil
}

// find returns the object path holding uid within the window, or "".
func (c *CalDAVClient) find(ctx context.Context, calendarName, uid string, start, end time.Time) (string, error) {
	objs, err := c.query(ctx, calendarName, start, end)
	if err != nil {
		return "", err
	}
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			if v, err := ev.Props.Text(goical.PropUID); err == nil && v == uid {
				return obj.Path, nil
			}
		}
	}
	return "", nil
}

func (c *CalDAVClient) Exists(ctx context.Context, calendarName, uid string, start, end time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	path, err := c.find(ctx, calendarName, uid, start, end)
	if err != nil {
		return false, err
	}
	return path != "", nil
}

func (c *CalDAVClient) Delete(ctx context.Context, calendarName, uid string, start, end time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	path, err := c.find(ctx, calendarName, uid, start, end)
	if err != nil {
		return false, err
	}
	if path == "" {
		c.log.Warn("event not found for deletion", "calendar", calendarName, "uid", uid)
		return false, nil
	}
	if err := c.client.RemoveAll(ctx, path); err != nil {
		return false, apperr.External("delete event %s: %v", uid, err)
	}
	c.log.Info("event deleted", "calendar", calendarName, "uid", uid)
	return true, nil
}
