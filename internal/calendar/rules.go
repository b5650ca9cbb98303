package calendar

import (
	"fmt"
	"sort"
	"time"

	"backtestCore/internal/ports"
)

// Rule yields the next trigger time strictly after now.
// ok is false when the rule will never fire again.
type Rule interface {
	NextTriggerTime(now time.Time) (next time.Time, ok bool)
}

// PayloadRule is a rule whose occurrences carry data.
type PayloadRule interface {
	Rule
	Payload(at time.Time) (any, bool)
}

// Consumer is a rule whose occurrences are used up once delivered.
type Consumer interface {
	Consume(at time.Time)
}

// RegularRule fires whenever the calendar matches a Trigger.
type RegularRule struct {
	trigger         Trigger
	unit            unit
	excludeWeekends bool
}

// NewRegularRule validates trigger and builds a rule from it.
func NewRegularRule(trigger Trigger, excludeWeekends bool) (*RegularRule, error) {
	if trigger.Year != nil {
		return nil, ports.ErrYearFixedRule
	}
	u := trigger.rollUnit()
	if u == unitNone {
		return nil, ports.ErrEmptyTrigger
	}
	if err := trigger.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInvalidRule, err)
	}
	if excludeWeekends && trigger.Weekday != nil && isWeekend(*trigger.Weekday) {
		return nil, fmt.Errorf("%w: weekday %s excluded as weekend", ports.ErrInvalidRule, *trigger.Weekday)
	}
	return &RegularRule{trigger: trigger, unit: u, excludeWeekends: excludeWeekends}, nil
}

// NextTriggerTime always succeeds for a regular rule.
func (r *RegularRule) NextTriggerTime(now time.Time) (time.Time, bool) {
	next := r.next(now)
	if !r.excludeWeekends || !isWeekend(next.Weekday()) {
		return next, true
	}

	shiftDays := (int(time.Monday) - int(next.Weekday()) + 7) % 7
	if r.unit > unitDay {
		// Day/month/week anchored rules move to the following Monday.
		return next.AddDate(0, 0, shiftDays), true
	}
	// Finer rules restart from Monday midnight; the fixed fields are all
	// time-of-day fields, so the result stays on Monday.
	y, m, d := next.Date()
	monday := time.Date(y, m, d+shiftDays, 0, 0, 0, 0, next.Location())
	return r.trigger.apply(monday), true
}

func (r *RegularRule) next(now time.Time) time.Time {
	loc := now.Location()
	if r.unit <= unitHour {
		// No hour is fixed, so step in the offset in effect at now. Wall-clock
		// fields would resolve a repeated local hour to its first reading.
		name, offset := now.Zone()
		now = now.In(time.FixedZone(name, offset))
	}
	// Each shift moves base forward by a whole unit and apply stays within
	// base's unit, so the loop ends.
	base := now
	candidate := r.trigger.apply(base)
	for !candidate.After(now) {
		base = shift(base, r.unit)
		candidate = r.trigger.apply(base)
	}
	return candidate.In(loc)
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

// PeriodicRule fires every Frequency from Start through End (inclusive)
// each day.
type PeriodicRule struct {
	start, end TimeOfDay
	frequency  time.Duration
	rules      []*RegularRule
}

// NewPeriodicRule decomposes the window into one daily rule per instant.
func NewPeriodicRule(start, end TimeOfDay, frequency time.Duration, excludeWeekends bool) (*PeriodicRule, error) {
	if frequency <= 0 || frequency >= 24*time.Hour {
		return nil, fmt.Errorf("%w: frequency %s must be positive and shorter than a day", ports.ErrInvalidRule, frequency)
	}
	if frequency%time.Second != 0 {
		return nil, fmt.Errorf("%w: frequency %s must be a whole number of seconds", ports.ErrInvalidRule, frequency)
	}
	if end.Offset() < start.Offset() {
		return nil, fmt.Errorf("%w: end %s before start %s", ports.ErrInvalidRule, end, start)
	}

	p := &PeriodicRule{start: start, end: end, frequency: frequency}
	for off := start.Offset(); off <= end.Offset(); off += frequency {
		rule, err := NewRegularRule(timeOfDayFromOffset(off).Trigger(), excludeWeekends)
		if err != nil {
			return nil, err
		}
		p.rules = append(p.rules, rule)
	}
	return p, nil
}

// NextTriggerTime returns the earliest next time among the window instants.
func (p *PeriodicRule) NextTriggerTime(now time.Time) (time.Time, bool) {
	var best time.Time
	for i, r := range p.rules {
		next, _ := r.NextTriggerTime(now)
		if i == 0 || next.Before(best) {
			best = next
		}
	}
	return best, true
}

// Instants returns how many times the rule fires per day.
func (p *PeriodicRule) Instants() int {
	return len(p.rules)
}

type singleShot struct {
	at      time.Time
	payload any
}

// SingleShotRule fires once at each explicitly scheduled time. Each
// scheduled time may carry a payload. The zero value is ready to use.
type SingleShotRule struct {
	shots []singleShot // sorted by at
}

// NewSingleShotRule creates an empty single-shot rule.
func NewSingleShotRule() *SingleShotRule {
	return &SingleShotRule{}
}

// Schedule adds an occurrence at t. Scheduling two occurrences at the same
// instant fails with ports.ErrDuplicateSingleShot.
func (r *SingleShotRule) Schedule(t time.Time, payload any) error {
	i := sort.Search(len(r.shots), func(i int) bool { return !r.shots[i].at.Before(t) })
	if i < len(r.shots) && r.shots[i].at.Equal(t) {
		return fmt.Errorf("%w: %s", ports.ErrDuplicateSingleShot, t.Format(time.RFC3339Nano))
	}
	r.shots = append(r.shots, singleShot{})
	copy(r.shots[i+1:], r.shots[i:])
	r.shots[i] = singleShot{at: t, payload: payload}
	return nil
}

// NextTriggerTime returns the first scheduled time strictly after now.
func (r *SingleShotRule) NextTriggerTime(now time.Time) (time.Time, bool) {
	i := r.after(now)
	if i == len(r.shots) {
		return time.Time{}, false
	}
	return r.shots[i].at, true
}

// Payload returns the data scheduled for t.
func (r *SingleShotRule) Payload(t time.Time) (any, bool) {
	i := sort.Search(len(r.shots), func(i int) bool { return !r.shots[i].at.Before(t) })
	if i < len(r.shots) && r.shots[i].at.Equal(t) {
		return r.shots[i].payload, true
	}
	return nil, false
}

// Consume drops every occurrence at or before t.
func (r *SingleShotRule) Consume(t time.Time) {
	i := r.after(t)
	r.shots = append(r.shots[:0], r.shots[i:]...)
}

// Pending reports how many occurrences remain.
func (r *SingleShotRule) Pending() int {
	return len(r.shots)
}

func (r *SingleShotRule) after(now time.Time) int {
	return sort.Search(len(r.shots), func(i int) bool { return r.shots[i].at.After(now) })
}
