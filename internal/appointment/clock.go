package appointment

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var weekdayKeys = [...]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

// parseClock returns minutes since midnight for an HH:mm string.
func parseClock(s string) (int, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("time %q must be HH:mm", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// startsFor returns the start times declared for the weekday of date. Keys are
// matched case-insensitively so "Monday" and "monday" are equivalent.
func (a Availability) startsFor(date time.Time) []string {
	key := weekdayKeys[date.Weekday()]
	if starts, ok := a[key]; ok {
		return starts
	}
	for k, starts := range a {
		if strings.EqualFold(k, key) {
			return starts
		}
	}
	return nil
}

// today truncates now to a calendar date in loc, expressed as a UTC midnight
// so it compares with dates produced by parseDate.
func today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// minutesOfDay returns now's clock position in loc.
func minutesOfDay(now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	return n.Hour()*60 + n.Minute()
}

type interval struct {
	start, end int
}

func (i interval) overlaps(o interval) bool {
	return i.start < o.end && o.start < i.end
}

func appointmentInterval(a Appointment) (interval, bool) {
	start, err := parseClock(a.StartTime)
	if err != nil {
		return interval{}, false
	}
	end, err := parseClock(a.EndTime)
	if err != nil || end <= start {
		return interval{start: start, end: start + 1}, true
	}
	return interval{start: start, end: end}, true
}

// Overlaps reports whether two appointments of the same provider and date
// intersect on [start, end).
func Overlaps(a, b Appointment) bool {
	if a.ProviderID != b.ProviderID || a.Date != b.Date {
		return false
	}
	ia, ok := appointmentInterval(a)
	if !ok {
		return false
	}
	ib, ok := appointmentInterval(b)
	if !ok {
		return false
	}
	return ia.overlaps(ib)
}
