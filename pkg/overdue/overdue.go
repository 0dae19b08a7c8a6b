package overdue

import (
	"sort"
	"strconv"
	"time"

	"github.com/harrisonrobin/caltask/pkg/model"
)

// Entry is an unfinished task whose due date has passed.
type Entry struct {
	Task model.Task
	// Days is how many whole days the task is late.
	Days int
}

// Sweep returns the tasks that are not done and were due before the day of
// now, most overdue first. Days are compared as calendar dates: today in
// now's zone against each due date in its own zone.
func Sweep(tasks []model.Task, now time.Time) []Entry {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var swept []Entry
	for _, t := range tasks {
		if t.Status == model.StatusDone || t.Due == nil {
			continue
		}
		due := *t.Due
		dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
		if !dueDay.Before(today) {
			continue
		}
		swept = append(swept, Entry{
			Task: t,
			Days: int(today.Sub(dueDay).Hours() / 24),
		})
	}
	sort.SliceStable(swept, func(i, j int) bool {
		return swept[i].Days > swept[j].Days
	})
	return swept
}

// Rows formats entries for a table with the columns ID, Title, Due and
// Days late.
func Rows(entries []Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Task.ID, e.Task.Title, e.Task.DueDate(), strconv.Itoa(e.Days)})
	}
	return rows
}
