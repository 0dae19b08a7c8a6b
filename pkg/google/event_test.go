package google

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/harrisonrobin/caltask/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
)

var encodeNow = time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC)

func allDay() EncodeOptions {
	return EncodeOptions{Mode: AllDay, Now: encodeNow}
}

func date(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestEncodeTaskDefaults(t *testing.T) {
	event, err := EncodeTask(model.Task{}, allDay())
	require.NoError(t, err)

	assert.Equal(t, model.DefaultTitle, event.Summary)
	assert.Equal(t, map[string]string{
		StatusKey:   "todo",
		ProgressKey: "0",
		LabelsKey:   "[]",
	}, event.ExtendedProperties.Private)
	assert.Equal(t, "2024-05-20", event.Start.Date)
	assert.Equal(t, "2024-05-21", event.End.Date)
	assert.Empty(t, event.Start.DateTime)
}

func TestEncodeTaskAllDay(t *testing.T) {
	task := model.Task{
		Title:       "Write report",
		Description: "quarterly",
		Status:      model.StatusInProgress,
		Progress:    40,
		Labels:      []string{"work", "q2", "work"},
		Due:         date("2024-06-01"),
	}
	event, err := EncodeTask(task, allDay())
	require.NoError(t, err)

	assert.Equal(t, "Write report", event.Summary)
	assert.Equal(t, "quarterly", event.Description)
	assert.Equal(t, "2024-06-01", event.Start.Date)
	assert.Equal(t, "2024-06-02", event.End.Date)
	assert.Equal(t, "in-progress", event.ExtendedProperties.Private[StatusKey])
	assert.Equal(t, "40", event.ExtendedProperties.Private[ProgressKey])
	assert.Equal(t, `["work","q2","work"]`, event.ExtendedProperties.Private[LabelsKey])
	assert.Equal(t, "5", event.ColorId)
	assert.Contains(t, event.ForceSendFields, "Description")
}

func TestEncodeTaskTimedKeepsLocalDay(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	for _, due := range []time.Time{
		time.Date(2024, 6, 1, 0, 0, 0, 0, la),
		time.Date(2024, 6, 1, 21, 30, 0, 0, la),
	} {
		event, err := EncodeTask(model.Task{Due: &due}, EncodeOptions{Mode: Timed, TimeZone: "America/Los_Angeles"})
		require.NoError(t, err)
		assert.Equal(t, due.Format(time.RFC3339), event.Start.DateTime)
		assert.Equal(t, "America/Los_Angeles", event.Start.TimeZone)

		d := DecodeEvent(event)
		require.NotNil(t, d.Task.Due)
		assert.True(t, due.Equal(*d.Task.Due))
		assert.Equal(t, "2024-06-01", d.Task.DueDate())
	}
}

func TestEncodeTaskAllDayUsesOwnDate(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	due := time.Date(2024, 6, 1, 21, 30, 0, 0, la)

	event, err := EncodeTask(model.Task{Due: &due}, EncodeOptions{Mode: AllDay, TimeZone: "America/Los_Angeles"})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", event.Start.Date)

	// A decoded all-day task re-encodes onto the same day whatever the zone.
	decoded := DecodeEvent(event).Task
	again, err := EncodeTask(decoded, EncodeOptions{Mode: AllDay, TimeZone: "America/Los_Angeles"})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", again.Start.Date)
}

func TestEncodeTaskTimed(t *testing.T) {
	due := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	event, err := EncodeTask(model.Task{Title: "Standup", Due: &due}, EncodeOptions{
		Mode:     Timed,
		TimeZone: "Europe/Berlin",
		Now:      encodeNow,
	})
	require.NoError(t, err)

	assert.Equal(t, "2024-06-01T11:00:00+02:00", event.Start.DateTime)
	assert.Equal(t, "2024-06-01T12:00:00+02:00", event.End.DateTime)
	assert.Equal(t, "Europe/Berlin", event.Start.TimeZone)
	assert.Empty(t, event.Start.Date)
}

func TestEncodeTaskErrors(t *testing.T) {
	_, err := EncodeTask(model.Task{Status: "blocked"}, allDay())
	assert.ErrorIs(t, err, model.ErrInvalidStatus)

	_, err = EncodeTask(model.Task{}, EncodeOptions{Mode: Timed, TimeZone: "Mars/Olympus"})
	assert.Error(t, err)

	_, err = EncodeTask(model.Task{}, EncodeOptions{Mode: "hourly"})
	assert.Error(t, err)
}

func TestEncodeTaskLabelsNotHTMLEscaped(t *testing.T) {
	event, err := EncodeTask(model.Task{Labels: []string{"R&D", "<urgent>"}}, allDay())
	require.NoError(t, err)
	assert.Equal(t, `["R&D","<urgent>"]`, event.ExtendedProperties.Private[LabelsKey])
}

func TestEncodeTaskLabelsLineSeparators(t *testing.T) {
	event, err := EncodeTask(model.Task{Labels: []string{"a\u2028b", "c\u2029d"}}, allDay())
	require.NoError(t, err)
	assert.Equal(t, `["a\u2028b","c\u2029d"]`, event.ExtendedProperties.Private[LabelsKey])

	event.ExtendedProperties.Private[LabelsKey] = "[\"a\u2028b\",\"c\u2029d\"]"
	d := DecodeEvent(event)
	assert.True(t, d.Clean(), "%v", d.Anomalies)
	assert.Equal(t, []string{"a\u2028b", "c\u2029d"}, d.Task.Labels)
}

func TestProgressClampedThroughRoundTrip(t *testing.T) {
	for _, p := range []int{-50, -1, 0, 1, 42, 99, 100, 101, 1000} {
		event, err := EncodeTask(model.Task{Progress: p}, allDay())
		require.NoError(t, err)

		d := DecodeEvent(event)
		assert.GreaterOrEqual(t, d.Task.Progress, 0, "progress %d", p)
		assert.LessOrEqual(t, d.Task.Progress, 100, "progress %d", p)
		assert.Equal(t, model.ClampProgress(p), d.Task.Progress)
		assert.True(t, d.Clean(), "progress %d: %v", p, d.Anomalies)
	}
}

func TestDecodeEmptyLabels(t *testing.T) {
	for _, labels := range [][]string{nil, {}} {
		event, err := EncodeTask(model.Task{Labels: labels}, allDay())
		require.NoError(t, err)
		d := DecodeEvent(event)
		require.NotNil(t, d.Task.Labels)
		assert.Empty(t, d.Task.Labels)
	}

	d := DecodeEvent(&calendar.Event{})
	require.NotNil(t, d.Task.Labels)
	assert.Empty(t, d.Task.Labels)

	d = DecodeEvent(eventWith(map[string]string{LabelsKey: "null"}))
	require.NotNil(t, d.Task.Labels)
	assert.True(t, d.Clean())
}

func eventWith(private map[string]string) *calendar.Event {
	return &calendar.Event{
		Id:                 "evt1",
		Summary:            "Task",
		ExtendedProperties: &calendar.EventExtendedProperties{Private: private},
	}
}

func TestDecodeMalformedSideChannel(t *testing.T) {
	tests := []struct {
		name    string
		private map[string]string
		want    model.Task
		field   string
	}{
		{
			name:    "non-numeric progress",
			private: map[string]string{ProgressKey: "half"},
			want:    model.Task{Status: model.StatusTodo, Progress: 0, Labels: []string{}},
			field:   ProgressKey,
		},
		{
			name:    "progress with trailing text",
			private: map[string]string{ProgressKey: "42abc"},
			want:    model.Task{Status: model.StatusTodo, Progress: 0, Labels: []string{}},
			field:   ProgressKey,
		},
		{
			name:    "progress out of range",
			private: map[string]string{ProgressKey: "250"},
			want:    model.Task{Status: model.StatusTodo, Progress: 100, Labels: []string{}},
			field:   ProgressKey,
		},
		{
			name:    "invalid labels JSON",
			private: map[string]string{LabelsKey: `["work",`},
			want:    model.Task{Status: model.StatusTodo, Labels: []string{}},
			field:   LabelsKey,
		},
		{
			name:    "labels not strings",
			private: map[string]string{LabelsKey: `[1,2]`},
			want:    model.Task{Status: model.StatusTodo, Labels: []string{}},
			field:   LabelsKey,
		},
		{
			name:    "unknown status",
			private: map[string]string{StatusKey: "blocked"},
			want:    model.Task{Status: model.StatusTodo, Labels: []string{}},
			field:   StatusKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DecodeEvent(eventWith(tt.private))
			got := d.Task
			got.ID, got.Title = "", ""
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decoded task mismatch (-want +got):\n%s", diff)
			}
			require.Len(t, d.Anomalies, 1)
			assert.Equal(t, tt.field, d.Anomalies[0].Field)
		})
	}
}

func TestDecodeMissingKeys(t *testing.T) {
	d := DecodeEvent(&calendar.Event{Id: "abc"})
	assert.True(t, d.Clean())
	assert.Equal(t, model.Task{
		ID:     "abc",
		Title:  model.DefaultTitle,
		Status: model.StatusTodo,
		Labels: []string{},
	}, d.Task)
}

func TestDecodeDue(t *testing.T) {
	d := DecodeEvent(&calendar.Event{Start: &calendar.EventDateTime{Date: "2024-06-01"}})
	require.NotNil(t, d.Task.Due)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *d.Task.Due)

	d = DecodeEvent(&calendar.Event{Start: &calendar.EventDateTime{DateTime: "2024-06-01T11:00:00+02:00"}})
	require.NotNil(t, d.Task.Due)
	assert.True(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC).Equal(*d.Task.Due))
	assert.Equal(t, "2024-06-01", d.Task.DueDate())

	// Late evening in Los Angeles is already the next day in UTC.
	d = DecodeEvent(&calendar.Event{Start: &calendar.EventDateTime{
		DateTime: "2024-06-01T21:30:00-07:00",
		TimeZone: "America/Los_Angeles",
	}})
	require.NotNil(t, d.Task.Due)
	assert.Equal(t, "America/Los_Angeles", d.Task.Due.Location().String())
	assert.Equal(t, "2024-06-01", d.Task.DueDate())
	assert.True(t, d.Clean())

	d = DecodeEvent(&calendar.Event{Start: &calendar.EventDateTime{Date: "June 1st"}})
	assert.Nil(t, d.Task.Due)
	assert.False(t, d.Clean())

	d = DecodeEvent(&calendar.Event{})
	assert.Nil(t, d.Task.Due)
}

func TestDecodeUpdated(t *testing.T) {
	d := DecodeEvent(&calendar.Event{Updated: "2024-06-01T10:20:30.123Z"})
	assert.Equal(t, time.Date(2024, 6, 1, 10, 20, 30, 123000000, time.UTC), d.Task.Updated)

	d = DecodeEvent(&calendar.Event{Updated: "yesterday"})
	assert.True(t, d.Task.Updated.IsZero())
	require.Len(t, d.Anomalies, 1)
	assert.Equal(t, "updated", d.Anomalies[0].Field)
}

func TestRoundTripPreservesSideChannel(t *testing.T) {
	tasks := []model.Task{
		{Title: "a"},
		{Title: "b", Status: model.StatusDone, Progress: 100, Labels: []string{"x"}},
		{Title: "c", Status: model.StatusInProgress, Progress: 37, Labels: []string{"with space", "ünïcode", "quote\"d", "R&D"}, Due: date("2023-12-31")},
		{Title: "d", Status: model.StatusTodo, Labels: []string{"dup", "dup"}, Due: date("2024-02-29")},
	}
	for _, task := range tasks {
		first, err := EncodeTask(task, allDay())
		require.NoError(t, err)

		second, err := EncodeTask(DecodeEvent(first).Task, allDay())
		require.NoError(t, err)

		assert.Equal(t, first.ExtendedProperties.Private, second.ExtendedProperties.Private, task.Title)
		assert.Equal(t, first.Start, second.Start, task.Title)
		assert.Equal(t, first.End, second.End, task.Title)
	}
}
