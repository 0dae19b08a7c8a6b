package google

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/caltask/pkg/colors"
	"github.com/harrisonrobin/caltask/pkg/model"
	"google.golang.org/api/calendar/v3"
)

// Private extended property keys. Events written by earlier versions of the
// app use exactly these names, so they must not change.
const (
	privatePrefix = "private-"
	StatusKey     = privatePrefix + "taskStatus"
	ProgressKey   = privatePrefix + "taskProgress"
	LabelsKey     = privatePrefix + "taskLabels"
)

// EventMode selects how a task's due date is laid out on the calendar.
type EventMode string

const (
	// AllDay puts the task on its due date as an all-day event.
	AllDay EventMode = "all-day"
	// Timed puts the task in a one hour slot starting at the due time.
	Timed EventMode = "timed"
)

const timedDuration = time.Hour

// EncodeOptions controls the event layout produced by EncodeTask.
type EncodeOptions struct {
	Mode     EventMode
	TimeZone string
	// Now stands in for a missing due date.
	Now time.Time
}

// EncodeTask converts a task into the calendar event that stores it.
func EncodeTask(task model.Task, opts EncodeOptions) (*calendar.Event, error) {
	status, err := model.ParseStatus(string(task.Status))
	if err != nil {
		return nil, err
	}

	labels, err := encodeLabels(task.Labels)
	if err != nil {
		return nil, fmt.Errorf("could not encode labels: %w", err)
	}

	title := task.Title
	if title == "" {
		title = model.DefaultTitle
	}

	due := opts.Now
	if task.Due != nil {
		due = *task.Due
	}

	event := &calendar.Event{
		Summary:     title,
		Description: task.Description,
		ColorId:     colors.ForStatus(status),
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				StatusKey:   string(status),
				ProgressKey: strconv.Itoa(model.ClampProgress(task.Progress)),
				LabelsKey:   labels,
			},
		},
		// Patches must be able to clear these.
		ForceSendFields: []string{"Summary", "Description"},
	}

	switch opts.Mode {
	case Timed:
		if opts.TimeZone != "" {
			loc, err := time.LoadLocation(opts.TimeZone)
			if err != nil {
				return nil, fmt.Errorf("invalid time zone %q: %w", opts.TimeZone, err)
			}
			due = due.In(loc)
		}
		event.Start = &calendar.EventDateTime{DateTime: due.Format(time.RFC3339), TimeZone: opts.TimeZone}
		event.End = &calendar.EventDateTime{DateTime: due.Add(timedDuration).Format(time.RFC3339), TimeZone: opts.TimeZone}
	case AllDay, "":
		// The calendar day is the one due falls on in its own zone.
		start := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
		// All-day end dates are exclusive.
		event.Start = &calendar.EventDateTime{Date: start.Format(time.DateOnly)}
		event.End = &calendar.EventDateTime{Date: start.AddDate(0, 0, 1).Format(time.DateOnly)}
	default:
		return nil, fmt.Errorf("unknown event mode %q", opts.Mode)
	}

	return event, nil
}

// encodeLabels renders labels as a JSON array without HTML escaping. The
// output matches JSON.stringify except for U+2028 and U+2029, which Go still
// escapes; both forms decode to the same labels.
func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(labels); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Anomaly records a field that could not be read from an event and was
// replaced with its default.
type Anomaly struct {
	Field  string
	Value  string
	Reason string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s=%q: %s", a.Field, a.Value, a.Reason)
}

// Decoded is a task read back from an event together with anything that had
// to be defaulted along the way.
type Decoded struct {
	Task      model.Task
	Anomalies []Anomaly
}

// Clean reports whether the event decoded without falling back to defaults.
func (d Decoded) Clean() bool {
	return len(d.Anomalies) == 0
}

// DecodeEvent converts a calendar event back into a task. It never fails:
// malformed private properties are replaced by defaults and reported as
// anomalies.
func DecodeEvent(event *calendar.Event) Decoded {
	var d Decoded
	note := func(field, value, reason string) {
		d.Anomalies = append(d.Anomalies, Anomaly{Field: field, Value: value, Reason: reason})
	}

	var private map[string]string
	if event.ExtendedProperties != nil {
		private = event.ExtendedProperties.Private
	}

	task := model.Task{
		ID:          event.Id,
		Title:       event.Summary,
		Description: event.Description,
		Status:      model.StatusTodo,
		Labels:      []string{},
	}
	if task.Title == "" {
		task.Title = model.DefaultTitle
	}

	if raw, ok := private[StatusKey]; ok && raw != "" {
		if st := model.Status(raw); st.Valid() {
			task.Status = st
		} else {
			note(StatusKey, raw, "unknown status")
		}
	}

	if raw, ok := private[ProgressKey]; ok && raw != "" {
		p, err := strconv.Atoi(strings.TrimSpace(raw))
		switch {
		case err != nil:
			note(ProgressKey, raw, "not an integer")
		case p != model.ClampProgress(p):
			note(ProgressKey, raw, "out of range")
			task.Progress = model.ClampProgress(p)
		default:
			task.Progress = p
		}
	}

	if raw, ok := private[LabelsKey]; ok && raw != "" {
		var labels []string
		if err := json.Unmarshal([]byte(raw), &labels); err != nil {
			note(LabelsKey, raw, "not a JSON string array")
		} else if labels != nil {
			task.Labels = labels
		}
	}

	if event.Start != nil {
		if raw := event.Start.DateTime; raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				// Keep the event's own zone so the due date is the day
				// the calendar shows.
				if loc, err := time.LoadLocation(event.Start.TimeZone); err == nil && event.Start.TimeZone != "" {
					t = t.In(loc)
				}
				task.Due = &t
			} else {
				note("start.dateTime", raw, "not an RFC 3339 timestamp")
			}
		} else if raw := event.Start.Date; raw != "" {
			if t, err := time.ParseInLocation(time.DateOnly, raw, time.UTC); err == nil {
				task.Due = &t
			} else {
				note("start.date", raw, "not a date")
			}
		}
	}

	if event.Updated != "" {
		if t, err := time.Parse(time.RFC3339, event.Updated); err == nil {
			task.Updated = t.UTC()
		} else {
			note("updated", event.Updated, "not an RFC 3339 timestamp")
		}
	}

	d.Task = task
	return d
}
