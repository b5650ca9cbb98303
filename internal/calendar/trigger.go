// Package calendar computes when calendar events fire.
//
// A rule is a pure function of "now": given the current timestamp it returns
// the next strictly later timestamp at which its event occurs. Rules are
// built once from explicit configuration values and then shared read-only.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Trigger fixes some calendar fields of an occurrence. Unset (nil) fields
// follow the current time. Year is accepted only so that it can be rejected
// with a clear error: a year-fixed rule has no well-defined next occurrence.
type Trigger struct {
	Year        *int          `yaml:"year"`
	Month       *int          `yaml:"month"`
	Day         *int          `yaml:"day"`
	Weekday     *time.Weekday `yaml:"weekday"`
	Hour        *int          `yaml:"hour"`
	Minute      *int          `yaml:"minute"`
	Second      *int          `yaml:"second"`
	Microsecond *int          `yaml:"microsecond"`
}

// Int returns a pointer to v, for building Trigger literals.
func Int(v int) *int {
	return &v
}

// Weekday returns a pointer to d, for building Trigger literals.
func Weekday(d time.Weekday) *time.Weekday {
	return &d
}

// At returns a trigger firing daily at the given time of day, to the microsecond.
func At(hour, minute, second int) Trigger {
	return Trigger{Hour: Int(hour), Minute: Int(minute), Second: Int(second), Microsecond: Int(0)}
}

// unit is the calendar step used to roll an occurrence forward.
type unit int

const (
	unitNone unit = iota
	unitSecond
	unitMinute
	unitHour
	unitDay
	unitWeek
	unitMonth
	unitYear
)

// rollUnit returns the unit one step more significant than the most
// significant fixed field.
func (t Trigger) rollUnit() unit {
	switch {
	case t.Month != nil:
		return unitYear
	case t.Day != nil:
		return unitMonth
	case t.Weekday != nil:
		return unitWeek
	case t.Hour != nil:
		return unitDay
	case t.Minute != nil:
		return unitHour
	case t.Second != nil:
		return unitMinute
	case t.Microsecond != nil:
		return unitSecond
	default:
		return unitNone
	}
}

func (t Trigger) validate() error {
	checks := []struct {
		name     string
		v        *int
		min, max int
	}{
		{"month", t.Month, 1, 12},
		{"day", t.Day, 1, 31},
		{"hour", t.Hour, 0, 23},
		{"minute", t.Minute, 0, 59},
		{"second", t.Second, 0, 59},
		{"microsecond", t.Microsecond, 0, 999999},
	}
	for _, c := range checks {
		if c.v != nil && (*c.v < c.min || *c.v > c.max) {
			return fmt.Errorf("%s %d out of range [%d, %d]", c.name, *c.v, c.min, c.max)
		}
	}
	if t.Weekday != nil && (*t.Weekday < time.Sunday || *t.Weekday > time.Saturday) {
		return fmt.Errorf("weekday %d out of range", *t.Weekday)
	}
	return nil
}

// apply overwrites the fixed fields of now. Day overflow is clamped to the
// last day of the month; a fixed weekday advances to the next such day on or
// after the resulting date.
func (t Trigger) apply(now time.Time) time.Time {
	year, month, day := now.Date()
	hour, minute, second := now.Clock()
	nsec := now.Nanosecond()

	if t.Month != nil {
		month = time.Month(*t.Month)
	}
	if t.Day != nil {
		day = *t.Day
	}
	day = min(day, daysIn(year, month))
	if t.Hour != nil {
		hour = *t.Hour
	}
	if t.Minute != nil {
		minute = *t.Minute
	}
	if t.Second != nil {
		second = *t.Second
	}
	if t.Microsecond != nil {
		nsec = *t.Microsecond * 1000
	}

	next := time.Date(year, month, day, hour, minute, second, nsec, now.Location())
	if t.Weekday != nil {
		delta := (int(*t.Weekday) - int(next.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, delta)
	}
	return next
}

// shift moves now forward by one unit, clamping the day of month.
func shift(now time.Time, u unit) time.Time {
	switch u {
	case unitYear:
		return addMonths(now, 12)
	case unitMonth:
		return addMonths(now, 1)
	case unitWeek:
		return now.AddDate(0, 0, 7)
	case unitDay:
		return now.AddDate(0, 0, 1)
	case unitHour:
		return now.Add(time.Hour)
	case unitMinute:
		return now.Add(time.Minute)
	default:
		return now.Add(time.Second)
	}
}

func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, second := t.Clock()
	total := int(month) - 1 + months
	year += total / 12
	month = time.Month(total%12 + 1)
	day = min(day, daysIn(year, month))
	return time.Date(year, month, day, hour, minute, second, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// TimeOfDay is an offset from midnight with second precision.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q, expected HH:MM[:SS]", s)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
		}
		vals[i] = v
	}
	tod := TimeOfDay{Hour: vals[0], Minute: vals[1], Second: vals[2]}
	if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 || tod.Second < 0 || tod.Second > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return tod, nil
}

// Offset returns the duration since midnight.
func (t TimeOfDay) Offset() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute + time.Duration(t.Second)*time.Second
}

// Trigger returns a daily trigger at this time of day.
func (t TimeOfDay) Trigger() Trigger {
	return At(t.Hour, t.Minute, t.Second)
}

// String formats the time of day as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func timeOfDayFromOffset(d time.Duration) TimeOfDay {
	secs := int(d / time.Second)
	return TimeOfDay{Hour: secs / 3600, Minute: secs % 3600 / 60, Second: secs % 60}
}
