package report

import (
	"fmt"
	"time"

	"github.com/actiontracker/tracker-server-go/internal/model"
)

// WeeklyRange covers the seven days starting at trigger-7d, in UTC.
func WeeklyRange(trigger time.Time) model.DateRange {
	return WeekFrom(trigger.UTC().AddDate(0, 0, -7))
}

// WeekFrom covers start's day 00:00:00 through start+6d 23:59:59 UTC.
func WeekFrom(start time.Time) model.DateRange {
	s := startOfDay(start.UTC())
	return model.DateRange{
		Start: s,
		End:   endOfDay(s.AddDate(0, 0, 6)),
	}
}

// MonthlyRange covers the calendar month before trigger, in UTC.
func MonthlyRange(trigger time.Time) model.DateRange {
	t := trigger.UTC()
	prev := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	r, _ := MonthRange(prev.Year(), int(prev.Month()))
	return r
}

// MonthRange covers the given calendar month in UTC.
func MonthRange(year, month int) (model.DateRange, error) {
	if month < 1 || month > 12 {
		return model.DateRange{}, fmt.Errorf("month must be between 1 and 12, got %d", month)
	}
	if year < 1970 || year > 9999 {
		return model.DateRange{}, fmt.Errorf("invalid year %d", year)
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return model.DateRange{Start: first, End: endOfDay(last)}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
