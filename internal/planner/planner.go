package planner

import (
	"time"

	"github.com/pedronipalhares/imea/internal/model"
)

// Plan expands the indicator table over the month range [start, end] into
// the full task list, one task per indicator per calendar month. Pure
// function of its inputs; ordering is indicator-major, month-minor.
func Plan(start, end time.Time, indicators []model.Indicator) []model.Task {
	windows := monthWindows(start, end)

	tasks := make([]model.Task, 0, len(indicators)*len(windows))
	for _, indicator := range indicators {
		for _, window := range windows {
			tasks = append(tasks, model.Task{
				Indicator: indicator,
				Year:      window.start.Year(),
				Month:     window.start.Month(),
				Start:     window.start,
				End:       window.end,
			})
		}
	}
	return tasks
}

type window struct {
	start time.Time
	end   time.Time
}

// monthWindows yields one [first day, last day] window per calendar month
// between start and end inclusive. The final window is clipped to end.
func monthWindows(start, end time.Time) []window {
	current := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	windows := make([]window, 0)
	for !current.After(endDay) {
		next := current.AddDate(0, 1, 0)
		last := next.AddDate(0, 0, -1)
		if last.After(endDay) {
			last = endDay
		}
		windows = append(windows, window{start: current, end: last})
		current = next
	}
	return windows
}
