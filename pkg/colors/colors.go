package colors

import "github.com/harrisonrobin/caltask/pkg/model"

// Google Calendar event color ids.
const (
	Lavender = "1"
	Sage     = "2"
	Banana   = "5"
	Graphite = "8"
)

var byStatus = map[model.Status]string{
	model.StatusTodo:       Lavender,
	model.StatusInProgress: Banana,
	model.StatusDone:       Sage,
}

// ForStatus returns the event color id used for tasks in the given column.
// Unknown statuses get graphite.
func ForStatus(s model.Status) string {
	if id, ok := byStatus[s]; ok {
		return id
	}
	return Graphite
}
