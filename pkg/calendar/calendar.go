// Package calendar enumerates the report periods a batch run covers.
package calendar

import (
	"time"

	"github.com/rickar/cal/v2"
)

// businessCal is a Monday–Friday workweek with no holiday set. The portal
// publishes daily statements for every weekday, public holidays included, so
// holidays are deliberately not registered.
var businessCal = cal.NewBusinessCalendar()

// TradingDays returns every weekday from start through end inclusive, in
// chronological order. Time-of-day components are ignored.
func TradingDays(start, end time.Time) []time.Time {
	start = truncate(start)
	end = truncate(end)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if businessCal.IsWorkday(d) {
			days = append(days, d)
		}
	}
	return days
}

// MonthStarts returns the first day of every month touched by the range,
// inclusive of both endpoints' months, in chronological order.
func MonthStarts(start, end time.Time) []time.Time {
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)

	var months []time.Time
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
