package dispatch

import (
	"time"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
)

// NextOccurrence returns when a message sent for at should repeat. Daily
// and weekly add whole days in at's location. Monthly moves to the next
// calendar month on DayOfMonth (or at's day), clamped to the month's last
// day. Once and unknown types do not repeat.
func NextOccurrence(at time.Time, r store.Recurrence) (time.Time, bool) {
	switch r.Type {
	case store.RecurrenceDaily:
		return at.AddDate(0, 0, 1), true
	case store.RecurrenceWeekly:
		return at.AddDate(0, 0, 7), true
	case store.RecurrenceMonthly:
		day := at.Day()
		if r.DayOfMonth != nil && *r.DayOfMonth > 0 {
			day = *r.DayOfMonth
		}
		year, month := at.Year(), at.Month()+1
		if month > time.December {
			year, month = year+1, time.January
		}
		if last := daysIn(year, month, at.Location()); day > last {
			day = last
		}
		return time.Date(year, month, day, at.Hour(), at.Minute(), at.Second(), at.Nanosecond(), at.Location()), true
	default:
		return time.Time{}, false
	}
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
