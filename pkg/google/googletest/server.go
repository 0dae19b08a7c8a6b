// Package googletest serves an in-memory stand-in for the parts of the
// Google Calendar v3 API used by the task store.
package googletest

import (
	"encoding/hex"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
)

// Server is a fake Calendar API. All state lives in memory.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	calendars []*calendar.CalendarListEntry
	events    map[string]map[string]*calendar.Event
	requests  []Request
	now       func() time.Time
}

// Request is a recorded API call.
type Request struct {
	Method        string
	Path          string
	Query         map[string][]string
	Authorization string
}

// NewServer starts a fake with a primary calendar for the identity. Close
// it when done.
func NewServer() *Server {
	s := &Server{
		events: make(map[string]map[string]*calendar.Event),
		now:    time.Now,
	}
	s.calendars = append(s.calendars, &calendar.CalendarListEntry{
		Id:      "primary@example.com",
		Summary: "primary@example.com",
		Primary: true,
	})
	s.events["primary@example.com"] = make(map[string]*calendar.Event)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me/calendarList", s.listCalendars)
	mux.HandleFunc("POST /calendars", s.insertCalendar)
	mux.HandleFunc("GET /calendars/{calendarId}", s.getCalendar)
	mux.HandleFunc("GET /calendars/{calendarId}/events", s.listEvents)
	mux.HandleFunc("POST /calendars/{calendarId}/events", s.insertEvent)
	mux.HandleFunc("GET /calendars/{calendarId}/events/{eventId}", s.getEvent)
	mux.HandleFunc("PATCH /calendars/{calendarId}/events/{eventId}", s.patchEvent)
	mux.HandleFunc("DELETE /calendars/{calendarId}/events/{eventId}", s.deleteEvent)

	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// Endpoint is the base URL to hand to the store.
func (s *Server) Endpoint() string {
	return s.URL + "/"
}

// SetClock replaces the clock used for update timestamps.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddCalendar registers a calendar and returns its id.
func (s *Server) AddCalendar(summary string, primary bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCalendarLocked(summary, "", primary)
}

func (s *Server) addCalendarLocked(summary, description string, primary bool) string {
	id := uuid.NewString() + "@group.calendar.google.com"
	s.calendars = append(s.calendars, &calendar.CalendarListEntry{
		Id:          id,
		Summary:     summary,
		Description: description,
		Primary:     primary,
	})
	s.events[id] = make(map[string]*calendar.Event)
	return id
}

// Calendars returns a copy of the calendar list.
func (s *Server) Calendars() []calendar.CalendarListEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]calendar.CalendarListEntry, 0, len(s.calendars))
	for _, c := range s.calendars {
		out = append(out, *c)
	}
	return out
}

// PutEvent stores an event as is, assigning an id when it has none.
func (s *Server) PutEvent(calendarID string, ev *calendar.Event) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Id == "" {
		ev.Id = newEventID()
	}
	if s.events[calendarID] == nil {
		s.events[calendarID] = make(map[string]*calendar.Event)
	}
	s.events[calendarID][ev.Id] = ev
	return ev.Id
}

// Event returns a stored event, or nil.
func (s *Server) Event(calendarID, eventID string) *calendar.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[calendarID][eventID]
}

// Requests returns the calls received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CountRequests returns how many calls used the given method.
func (s *Server) CountRequests(method string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

// ResetRequests forgets the recorded calls.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listCalendars(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]*calendar.CalendarListEntry, len(s.calendars))
	copy(items, s.calendars)
	writeJSON(w, http.StatusOK, &calendar.CalendarList{Kind: "calendar#calendarList", Items: items})
}

func (s *Server) insertCalendar(w http.ResponseWriter, r *http.Request) {
	var in calendar.Calendar
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "parseError")
		return
	}
	if in.Summary == "" {
		writeError(w, http.StatusBadRequest, "Missing title.")
		return
	}
	s.mu.Lock()
	id := s.addCalendarLocked(in.Summary, in.Description, false)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, &calendar.Calendar{
		Kind:        "calendar#calendar",
		Id:          id,
		Summary:     in.Summary,
		Description: in.Description,
	})
}

func (s *Server) getCalendar(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("calendarId")
	for _, c := range s.calendars {
		if c.Id == id {
			writeJSON(w, http.StatusOK, &calendar.Calendar{
				Kind:        "calendar#calendar",
				Id:          c.Id,
				Summary:     c.Summary,
				Description: c.Description,
			})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Not Found")
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 250
	if v := q.Get("maxResults"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid value for maxResults")
			return
		}
		limit = min(n, 2500)
	}
	var timeMin time.Time
	if v := q.Get("timeMin"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Bad Request")
			return
		}
		timeMin = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	evs, ok := s.events[r.PathValue("calendarId")]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	items := make([]*calendar.Event, 0, len(evs))
	for _, ev := range evs {
		if !timeMin.IsZero() && !eventEnd(ev).After(timeMin) {
			continue
		}
		items = append(items, ev)
	}
	if q.Get("orderBy") == "startTime" {
		sort.SliceStable(items, func(i, j int) bool {
			return eventStart(items[i]).Before(eventStart(items[j]))
		})
	}
	if len(items) > limit {
		items = items[:limit]
	}
	writeJSON(w, http.StatusOK, &calendar.Events{Kind: "calendar#events", Items: items})
}

func (s *Server) insertEvent(w http.ResponseWriter, r *http.Request) {
	var ev calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "parseError")
		return
	}
	if ev.Start == nil || ev.End == nil {
		writeError(w, http.StatusBadRequest, "Missing time.")
		return
	}
	if !eventEnd(&ev).After(eventStart(&ev)) {
		writeError(w, http.StatusBadRequest, "The specified time range is empty.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	evs, ok := s.events[r.PathValue("calendarId")]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	ev.Id = newEventID()
	ev.Kind = "calendar#event"
	ev.Status = "confirmed"
	ev.Etag = strconv.Quote(uuid.NewString())
	ev.Updated = s.now().UTC().Format(time.RFC3339Nano)
	evs[ev.Id] = &ev
	writeJSON(w, http.StatusOK, &ev)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.events[r.PathValue("calendarId")][r.PathValue("eventId")]
	if ev == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// patchEvent applies the top-level fields present in the body, the way the
// real API does for patch semantics. Extended properties merge key by key.
func (s *Server) patchEvent(w http.ResponseWriter, r *http.Request) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "parseError")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.events[r.PathValue("calendarId")][r.PathValue("eventId")]
	if ev == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	current, err := json.Marshal(ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(current, &merged); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for k, v := range fields {
		merged[k] = v
	}
	if patch, ok := fields["extendedProperties"]; ok {
		props, err := mergeProperties(ev.ExtendedProperties, patch)
		if err != nil {
			writeError(w, http.StatusBadRequest, "parseError")
			return
		}
		merged["extendedProperties"] = props
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var next calendar.Event
	if err := json.Unmarshal(raw, &next); err != nil {
		writeError(w, http.StatusBadRequest, "parseError")
		return
	}
	next.Id = ev.Id
	next.Etag = strconv.Quote(uuid.NewString())
	next.Updated = s.now().UTC().Format(time.RFC3339Nano)
	*ev = next
	writeJSON(w, http.StatusOK, ev)
}

// mergeProperties overlays the private and shared keys in patch onto cur.
func mergeProperties(cur *calendar.EventExtendedProperties, patch json.RawMessage) (json.RawMessage, error) {
	var in calendar.EventExtendedProperties
	if err := json.Unmarshal(patch, &in); err != nil {
		return nil, err
	}
	out := calendar.EventExtendedProperties{}
	if cur != nil {
		out.Private = maps.Clone(cur.Private)
		out.Shared = maps.Clone(cur.Shared)
	}
	if len(in.Private) > 0 && out.Private == nil {
		out.Private = make(map[string]string)
	}
	if len(in.Shared) > 0 && out.Shared == nil {
		out.Shared = make(map[string]string)
	}
	maps.Copy(out.Private, in.Private)
	maps.Copy(out.Shared, in.Shared)
	return json.Marshal(&out)
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.events[r.PathValue("calendarId")]
	id := r.PathValue("eventId")
	if _, ok := evs[id]; !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	delete(evs, id)
	w.WriteHeader(http.StatusNoContent)
}

// newEventID returns a base32hex-compatible id.
func newEventID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func eventStart(ev *calendar.Event) time.Time {
	return parseEventTime(ev.Start)
}

func eventEnd(ev *calendar.Event) time.Time {
	return parseEventTime(ev.End)
}

func parseEventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, dt.DateTime)
		return t
	}
	t, _ := time.ParseInLocation(time.DateOnly, dt.Date, time.UTC)
	return t
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers in the Calendar API error envelope.
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"errors": []map[string]string{{
				"domain":  "global",
				"reason":  http.StatusText(code),
				"message": message,
			}},
		},
	})
}
