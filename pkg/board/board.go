// Package board arranges tasks the way the kanban and weekly calendar views
// show them, and renders both for the terminal.
package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/harrisonrobin/caltask/pkg/model"
)

// Column is one kanban column.
type Column struct {
	Status model.Status
	Title  string
	Tasks  []model.Task
}

var columnTitles = map[model.Status]string{
	model.StatusTodo:       "To do",
	model.StatusInProgress: "In progress",
	model.StatusDone:       "Done",
}

// Columns groups tasks by status, keeping their order within each column.
// Tasks with a status outside the enumeration land in the first column.
func Columns(tasks []model.Task) []Column {
	cols := make([]Column, len(model.Statuses))
	pos := make(map[model.Status]int, len(model.Statuses))
	for i, st := range model.Statuses {
		cols[i] = Column{Status: st, Title: columnTitles[st], Tasks: []model.Task{}}
		pos[st] = i
	}
	for _, t := range tasks {
		i, ok := pos[t.Status]
		if !ok {
			i = 0
		}
		cols[i].Tasks = append(cols[i].Tasks, t)
	}
	return cols
}

// Day is one cell of the weekly view.
type Day struct {
	Date  time.Time
	Tasks []model.Task
}

// WeekStart returns the Sunday on or before t, as a UTC date.
func WeekStart(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// Week lays out the seven days starting at the Sunday of anchor's week and
// places every task on its due date, read in the zone the due time carries.
// Tasks without a due date, or due outside the week, are left out.
func Week(tasks []model.Task, anchor time.Time) []Day {
	start := WeekStart(anchor)
	days := make([]Day, 7)
	byKey := make(map[string]int, 7)
	for i := range days {
		d := start.AddDate(0, 0, i)
		days[i] = Day{Date: d, Tasks: []model.Task{}}
		byKey[d.Format(time.DateOnly)] = i
	}
	for _, t := range tasks {
		if i, ok := byKey[t.DueDate()]; ok {
			days[i].Tasks = append(days[i].Tasks, t)
		}
	}
	return days
}

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("245")).
			Padding(0, 1)

	todayStyle = columnStyle.
			BorderForeground(lipgloss.Color("252"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("110"))
)

// RenderBoard draws the kanban columns side by side, each width cells wide.
func RenderBoard(cols []Column, width int) string {
	inner := max(width-4, 8)
	boxes := make([]string, 0, len(cols))
	for _, c := range cols {
		var lines []string
		lines = append(lines, headerStyle.Render(fmt.Sprintf("%s (%d)", c.Title, len(c.Tasks))))
		if len(c.Tasks) == 0 {
			lines = append(lines, mutedStyle.Render("No tasks"))
		}
		for _, t := range c.Tasks {
			lines = append(lines, renderCard(t, inner))
		}
		boxes = append(boxes, columnStyle.Width(width).Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func renderCard(t model.Task, width int) string {
	title := lipgloss.NewStyle().Width(width).Render("• " + t.Title)
	var meta []string
	if t.Progress > 0 {
		meta = append(meta, fmt.Sprintf("%d%%", t.Progress))
	}
	if d := t.DueDate(); d != "" {
		meta = append(meta, d)
	}
	out := title
	if len(meta) > 0 {
		out += "\n" + mutedStyle.Render("  "+strings.Join(meta, "  "))
	}
	if len(t.Labels) > 0 {
		shown := t.Labels
		if len(shown) > 3 {
			shown = shown[:3]
		}
		out += "\n" + labelStyle.Render("  #"+strings.Join(shown, " #"))
	}
	return out
}

// RenderWeek draws the seven days of a week side by side. The day matching
// today is highlighted.
func RenderWeek(days []Day, today time.Time, width int) string {
	todayKey := today.Format(time.DateOnly)
	inner := max(width-4, 6)
	boxes := make([]string, 0, len(days))
	for _, d := range days {
		var lines []string
		lines = append(lines, headerStyle.Render(d.Date.Format("Mon 2")))
		for _, t := range d.Tasks {
			lines = append(lines, lipgloss.NewStyle().Width(inner).Render(t.Title))
		}
		style := columnStyle
		if d.Date.Format(time.DateOnly) == todayKey {
			style = todayStyle
		}
		boxes = append(boxes, style.Width(width).Render(strings.Join(lines, "\n")))
	}

	heading := ""
	if len(days) > 0 {
		heading = headerStyle.Render("Week of "+days[0].Date.Format("Jan 2, 2006")) + "\n"
	}
	return heading + lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

// RenderList draws tasks as a table, one row per task.
func RenderList(tasks []model.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			t.ID,
			t.Title,
			string(t.Status),
			fmt.Sprintf("%d%%", t.Progress),
			t.DueDate(),
			strings.Join(t.Labels, ","),
		})
	}
	return Table([]string{"ID", "Title", "Status", "Progress", "Due", "Labels"}, rows)
}

// Table renders rows under headers with the shared border style.
func Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
