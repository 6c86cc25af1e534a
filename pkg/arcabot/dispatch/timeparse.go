package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTime reads a schedule time given on the command line. It accepts a
// relative duration ("90m"), unix seconds, RFC 3339, "2006-01-02T15:04:05",
// "2006-01-02 15:04" and "15:04" (today, or tomorrow once passed). Times
// without a zone are read in now's location.
func ParseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	loc := now.Location()

	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return now.Add(d), nil
	}

	if len(s) >= 10 {
		if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(epoch, 0).In(loc), nil
		}
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04", "02/01/2006 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	if t, err := time.ParseInLocation("15:04", s, loc); err == nil {
		target := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, loc)
		if target.Before(now) {
			target = target.AddDate(0, 0, 1)
		}
		return target, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
