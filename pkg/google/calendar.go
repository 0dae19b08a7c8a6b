package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/harrisonrobin/caltask/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
)

const (
	DefaultStoreName        = "Task Manager"
	DefaultStoreDescription = "Tasks for Personal Management App"
	DefaultResultCap        = 500
)

// Config holds the store settings. Zero values fall back to the defaults.
type Config struct {
	// StoreName is the display name of the calendar holding the tasks.
	StoreName        string
	StoreDescription string
	// Lookback bounds how far into the past ListTasks reaches. Zero means
	// one calendar year.
	Lookback  time.Duration
	ResultCap int
	EventMode EventMode
	// TimeZone is an IANA zone name used by Timed events.
	TimeZone string
}

// Location is the zone due dates are entered and shown in: TimeZone when
// set, the local zone otherwise.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// DefaultConfig returns the settings the store uses when none are given.
func DefaultConfig() Config {
	return Config{
		StoreName:        DefaultStoreName,
		StoreDescription: DefaultStoreDescription,
		ResultCap:        DefaultResultCap,
		EventMode:        AllDay,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StoreName == "" {
		c.StoreName = d.StoreName
	}
	if c.StoreDescription == "" {
		c.StoreDescription = d.StoreDescription
	}
	if c.ResultCap <= 0 {
		c.ResultCap = d.ResultCap
	}
	if c.EventMode == "" {
		c.EventMode = d.EventMode
	}
	return c
}

// Store keeps tasks as events on a single dedicated calendar.
//
// Every call is a direct request against the Calendar API; the store holds
// no task state and takes no locks. Concurrent writers to the same task
// overwrite each other (last writer wins), and two first-time EnsureStore
// calls racing each other can both create a calendar.
type Store struct {
	cfg        Config
	log        *zap.Logger
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// NewStore creates a task store.
func NewStore(cfg Config, opts ...Option) *Store {
	s := &Store{
		cfg: cfg.withDefaults(),
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective settings.
func (s *Store) Config() Config {
	return s.cfg
}

var errStopPaging = errors.New("stop paging")

// EnsureStore returns the id of the task calendar, creating it when the
// identity has none. The primary calendar never qualifies, even if it has
// the right name. When several calendars share the name the first one
// listed wins.
func (s *Store) EnsureStore(ctx context.Context, cred oauth2.TokenSource) (string, error) {
	srv, err := s.service(ctx, cred)
	if err != nil {
		return "", err
	}

	var calendarID string
	err = srv.CalendarList.List().Context(ctx).Pages(ctx, func(list *calendar.CalendarList) error {
		for _, item := range list.Items {
			if item.Summary == s.cfg.StoreName && !item.Primary {
				calendarID = item.Id
				return errStopPaging
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopPaging) {
		return "", wrapErr("list calendars", err)
	}
	if calendarID != "" {
		s.log.Debug("found task calendar", zap.String("name", s.cfg.StoreName), zap.String("calendar", calendarID))
		return calendarID, nil
	}

	created, err := srv.Calendars.Insert(&calendar.Calendar{
		Summary:     s.cfg.StoreName,
		Description: s.cfg.StoreDescription,
	}).Context(ctx).Do()
	if err != nil {
		return "", wrapErr("create calendar", err)
	}
	s.log.Info("created task calendar", zap.String("name", s.cfg.StoreName), zap.String("calendar", created.Id))
	return created.Id, nil
}

// resolve returns storeID, or the ensured task calendar when it is empty.
func (s *Store) resolve(ctx context.Context, cred oauth2.TokenSource, storeID string) (string, error) {
	if storeID != "" {
		return storeID, nil
	}
	return s.EnsureStore(ctx, cred)
}

// StoreExists reports whether the calendar storeID is still reachable. A
// not-found answer is (false, nil); any other failure is returned.
func (s *Store) StoreExists(ctx context.Context, cred oauth2.TokenSource, storeID string) (bool, error) {
	srv, err := s.service(ctx, cred)
	if err != nil {
		return false, err
	}
	_, err = srv.Calendars.Get(storeID).Context(ctx).Do()
	if err != nil {
		err = wrapErr("get calendar", err)
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListTasks returns the tasks due within the lookback window, ordered by
// due date, up to the result cap. Tasks beyond the cap are not returned.
// Malformed task metadata is replaced with defaults and logged.
func (s *Store) ListTasks(ctx context.Context, cred oauth2.TokenSource, storeID string) ([]model.Task, error) {
	decoded, err := s.ListTasksDetailed(ctx, cred, storeID)
	if err != nil {
		return nil, err
	}
	tasks := make([]model.Task, 0, len(decoded))
	for _, d := range decoded {
		s.logAnomalies(d)
		tasks = append(tasks, d.Task)
	}
	return tasks, nil
}

// ListTasksDetailed is ListTasks with the decode anomalies of every task.
func (s *Store) ListTasksDetailed(ctx context.Context, cred oauth2.TokenSource, storeID string) ([]Decoded, error) {
	storeID, err := s.resolve(ctx, cred, storeID)
	if err != nil {
		return nil, err
	}
	srv, err := s.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	since := s.windowStart()
	s.log.Debug("listing tasks", zap.String("calendar", storeID), zap.Time("since", since), zap.Int("cap", s.cfg.ResultCap))

	events, err := srv.Events.List(storeID).
		TimeMin(since.Format(time.RFC3339)).
		MaxResults(int64(s.cfg.ResultCap)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapErr("list events", err)
	}

	items := events.Items
	if len(items) > s.cfg.ResultCap {
		items = items[:s.cfg.ResultCap]
	}
	out := make([]Decoded, 0, len(items))
	for _, item := range items {
		out = append(out, DecodeEvent(item))
	}
	return out, nil
}

func (s *Store) windowStart() time.Time {
	now := s.now()
	if s.cfg.Lookback <= 0 {
		return now.AddDate(-1, 0, 0)
	}
	return now.Add(-s.cfg.Lookback)
}

// CreateTask stores a new task and returns it with its assigned id.
func (s *Store) CreateTask(ctx context.Context, cred oauth2.TokenSource, task model.Task, storeID string) (model.Task, error) {
	event, err := s.encode(task)
	if err != nil {
		return model.Task{}, err
	}
	storeID, err = s.resolve(ctx, cred, storeID)
	if err != nil {
		return model.Task{}, err
	}
	srv, err := s.service(ctx, cred)
	if err != nil {
		return model.Task{}, err
	}

	created, err := srv.Events.Insert(storeID, event).Context(ctx).Do()
	if err != nil {
		return model.Task{}, wrapErr("create event", err)
	}
	s.log.Debug("created task", zap.String("calendar", storeID), zap.String("id", created.Id))
	return s.decode(created), nil
}

// UpdateTask overwrites the task with the given id. Every field is written,
// so task must be complete; there is no field-level merge.
func (s *Store) UpdateTask(ctx context.Context, cred oauth2.TokenSource, storeID, id string, task model.Task) (model.Task, error) {
	event, err := s.encode(task)
	if err != nil {
		return model.Task{}, err
	}
	srv, err := s.service(ctx, cred)
	if err != nil {
		return model.Task{}, err
	}

	updated, err := srv.Events.Patch(storeID, id, event).Context(ctx).Do()
	if err != nil {
		return model.Task{}, wrapErr("patch event", err)
	}
	s.log.Debug("updated task", zap.String("calendar", storeID), zap.String("id", id))
	return s.decode(updated), nil
}

// UpdateTaskStatus moves a task to another column. It reads the task and
// writes it back with the new status in two separate requests; a change
// made by someone else in between is lost.
func (s *Store) UpdateTaskStatus(ctx context.Context, cred oauth2.TokenSource, storeID, id string, status model.Status) (model.Task, error) {
	status, err := model.ParseStatus(string(status))
	if err != nil {
		return model.Task{}, err
	}
	task, err := s.GetTask(ctx, cred, storeID, id)
	if err != nil {
		return model.Task{}, err
	}
	task.Status = status
	return s.UpdateTask(ctx, cred, storeID, id, task)
}

// GetTask reads a single task.
func (s *Store) GetTask(ctx context.Context, cred oauth2.TokenSource, storeID, id string) (model.Task, error) {
	srv, err := s.service(ctx, cred)
	if err != nil {
		return model.Task{}, err
	}
	event, err := srv.Events.Get(storeID, id).Context(ctx).Do()
	if err != nil {
		return model.Task{}, wrapErr("get event", err)
	}
	return s.decode(event), nil
}

// DeleteTask removes the task permanently. Deleting a task that no longer
// exists is an error.
func (s *Store) DeleteTask(ctx context.Context, cred oauth2.TokenSource, storeID, id string) error {
	srv, err := s.service(ctx, cred)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete(storeID, id).Context(ctx).Do(); err != nil {
		return wrapErr("delete event", err)
	}
	s.log.Debug("deleted task", zap.String("calendar", storeID), zap.String("id", id))
	return nil
}

func (s *Store) encode(task model.Task) (*calendar.Event, error) {
	return EncodeTask(task, EncodeOptions{
		Mode:     s.cfg.EventMode,
		TimeZone: s.cfg.TimeZone,
		Now:      s.now(),
	})
}

func (s *Store) decode(event *calendar.Event) model.Task {
	d := DecodeEvent(event)
	s.logAnomalies(d)
	return d.Task
}

func (s *Store) logAnomalies(d Decoded) {
	for _, a := range d.Anomalies {
		s.log.Warn("task metadata replaced with default",
			zap.String("id", d.Task.ID),
			zap.String("field", a.Field),
			zap.String("value", a.Value),
			zap.String("reason", a.Reason))
	}
}
