// Package stats provides calendar helpers shared by discovery and reporting.
package stats

import (
	"fmt"
	"time"
)

// TimeRange represents a start and end time period. Start is inclusive and
// End is exclusive.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// LookbackRange returns the window covering the last days calendar days up to
// and including the day of now.
func LookbackRange(days int) TimeRange {
	return LookbackRangeFrom(time.Now(), days)
}

// LookbackRangeFrom calculates the lookback window relative to a reference
// time. The window starts at midnight of the day that is days before the
// reference day, so an event dated exactly days ago is inside the window.
func LookbackRangeFrom(referenceTime time.Time, days int) TimeRange {
	if days < 0 {
		days = 0
	}
	day := startOfDay(referenceTime)

	return TimeRange{
		Start: day.AddDate(0, 0, -days),
		End:   day.AddDate(0, 0, 1),
	}
}

// Contains reports whether t falls inside the range.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// ContainsDate reports whether the calendar day of t is on or after the
// start day. Events are published with day precision, so times within the
// start day always count. End is not checked: a site ahead of the local
// timezone lists events dated after today.
func (tr TimeRange) ContainsDate(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, tr.Start.Location())
	return !day.Before(tr.Start)
}

// Days returns the number of calendar days covered by the range.
func (tr TimeRange) Days() int {
	return int(tr.End.Sub(tr.Start).Hours() / 24)
}

// FormatPeriod returns a human-readable description of the time period.
func (tr TimeRange) FormatPeriod() string {
	start := tr.Start.Format("2006-01-02")
	end := tr.End.AddDate(0, 0, -1).Format("2006-01-02") // End is exclusive, so subtract 1 day for display
	return fmt.Sprintf("%s to %s", start, end)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
