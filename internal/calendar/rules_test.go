package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"

	"backtestCore/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, h, mi, s int) time.Time {
	return time.Date(y, m, d, h, mi, s, 0, time.UTC)
}

func TestNewRegularRule_Errors(t *testing.T) {
	tests := []struct {
		name            string
		trigger         Trigger
		excludeWeekends bool
		wantErr         error
	}{
		{name: "year fixed", trigger: Trigger{Year: Int(2024), Hour: Int(9)}, wantErr: ports.ErrYearFixedRule},
		{name: "nothing fixed", trigger: Trigger{}, wantErr: ports.ErrEmptyTrigger},
		{name: "hour out of range", trigger: Trigger{Hour: Int(24)}, wantErr: ports.ErrInvalidRule},
		{name: "month out of range", trigger: Trigger{Month: Int(13)}, wantErr: ports.ErrInvalidRule},
		{name: "weekend weekday excluded", trigger: Trigger{Weekday: Weekday(time.Saturday)}, excludeWeekends: true, wantErr: ports.ErrInvalidRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegularRule(tt.trigger, tt.excludeWeekends)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ports.ErrConfiguration)
		})
	}
}

func TestRegularRule_NextTriggerTime(t *testing.T) {
	friday := Trigger{Weekday: Weekday(time.Friday), Hour: Int(16), Minute: Int(0), Second: Int(0), Microsecond: Int(0)}
	monthEnd := Trigger{Day: Int(31), Hour: Int(9), Minute: Int(0), Second: Int(0), Microsecond: Int(0)}
	yearly := Trigger{Month: Int(3), Day: Int(15), Hour: Int(12), Minute: Int(0), Second: Int(0), Microsecond: Int(0)}

	tests := []struct {
		name    string
		trigger Trigger
		now     time.Time
		want    time.Time
	}{
		{name: "daily later today", trigger: At(9, 30, 0), now: date(2024, 1, 2, 0, 0, 0), want: date(2024, 1, 2, 9, 30, 0)},
		{name: "daily exactly now rolls a day", trigger: At(9, 30, 0), now: date(2024, 1, 2, 9, 30, 0), want: date(2024, 1, 3, 9, 30, 0)},
		{name: "daily already passed", trigger: At(9, 30, 0), now: date(2024, 1, 2, 10, 0, 0), want: date(2024, 1, 3, 9, 30, 0)},
		{name: "minute rolls an hour and keeps seconds", trigger: Trigger{Minute: Int(15)}, now: date(2024, 1, 2, 10, 20, 5), want: date(2024, 1, 2, 11, 15, 5)},
		{name: "second rolls a minute", trigger: Trigger{Second: Int(0), Microsecond: Int(0)}, now: date(2024, 1, 2, 10, 20, 5), want: date(2024, 1, 2, 10, 21, 0)},
		{name: "weekday later this week", trigger: friday, now: date(2024, 1, 3, 0, 0, 0), want: date(2024, 1, 5, 16, 0, 0)},
		{name: "weekday passed rolls a week", trigger: friday, now: date(2024, 1, 5, 17, 0, 0), want: date(2024, 1, 12, 16, 0, 0)},
		{name: "day clamps to month length", trigger: monthEnd, now: date(2024, 1, 31, 10, 0, 0), want: date(2024, 2, 29, 9, 0, 0)},
		{name: "month rolls a year", trigger: yearly, now: date(2024, 6, 1, 0, 0, 0), want: date(2025, 3, 15, 12, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := NewRegularRule(tt.trigger, false)
			require.NoError(t, err)
			got, ok := rule.NextTriggerTime(tt.now)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegularRule_ExcludeWeekends(t *testing.T) {
	hourly := Trigger{Minute: Int(0), Second: Int(0), Microsecond: Int(0)}
	sixth := Trigger{Day: Int(6), Hour: Int(9), Minute: Int(0), Second: Int(0), Microsecond: Int(0)}

	tests := []struct {
		name    string
		trigger Trigger
		now     time.Time
		want    time.Time
	}{
		{name: "daily skips to monday", trigger: At(9, 30, 0), now: date(2024, 1, 5, 10, 0, 0), want: date(2024, 1, 8, 9, 30, 0)},
		{name: "weekday unaffected", trigger: At(9, 30, 0), now: date(2024, 1, 2, 10, 0, 0), want: date(2024, 1, 3, 9, 30, 0)},
		{name: "hourly resumes at monday midnight", trigger: hourly, now: date(2024, 1, 5, 23, 30, 0), want: date(2024, 1, 8, 0, 0, 0)},
		{name: "unset fields restart from monday midnight", trigger: Trigger{Hour: Int(9), Minute: Int(30)}, now: date(2024, 1, 5, 17, 0, 0), want: date(2024, 1, 8, 9, 30, 0)},
		{name: "monthly on saturday moves to monday", trigger: sixth, now: date(2024, 1, 2, 0, 0, 0), want: date(2024, 1, 8, 9, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := NewRegularRule(tt.trigger, true)
			require.NoError(t, err)
			got, _ := rule.NextTriggerTime(tt.now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegularRule_StrictlyIncreasing(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name    string
		trig    Trigger
		exclude bool
		start   time.Time
		steps   int
	}{
		{name: "daily", exclude: true, trig: At(9, 30, 0), start: date(2024, 1, 1, 0, 0, 0), steps: 100},
		{name: "hourly", exclude: true, trig: Trigger{Minute: Int(0)}, start: date(2024, 1, 1, 0, 0, 0), steps: 100},
		{name: "month end", exclude: true, trig: Trigger{Day: Int(31), Hour: Int(0)}, start: date(2024, 1, 1, 0, 0, 0), steps: 100},
		{name: "weekly", exclude: true, trig: Trigger{Weekday: Weekday(time.Monday), Hour: Int(8)}, start: date(2024, 1, 1, 0, 0, 0), steps: 100},
		{name: "minutely over fall back", trig: Trigger{Second: Int(0)}, start: time.Date(2024, 11, 3, 0, 30, 0, 0, ny), steps: 180},
		{name: "hourly over fall back", trig: Trigger{Minute: Int(30)}, start: time.Date(2024, 11, 2, 22, 0, 0, 0, ny), steps: 10},
		{name: "minutely over spring forward", trig: Trigger{Second: Int(0)}, start: time.Date(2024, 3, 10, 1, 0, 0, 0, ny), steps: 120},
		{name: "daily over fall back", trig: At(1, 30, 0), start: time.Date(2024, 11, 1, 0, 0, 0, 0, ny), steps: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := NewRegularRule(tt.trig, tt.exclude)
			require.NoError(t, err)

			now := tt.start
			for i := 0; i < tt.steps; i++ {
				next, ok := rule.NextTriggerTime(now)
				require.True(t, ok)
				require.True(t, next.After(now), "next %s not after %s", next, now)
				again, _ := rule.NextTriggerTime(now)
				require.Equal(t, next, again)
				now = next
			}
		})
	}
}

func TestRegularRule_RepeatedHour(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 01:00-02:00 happens twice on 2024-11-03; a minutely rule fires in both.
	rule, err := NewRegularRule(Trigger{Second: Int(0)}, false)
	require.NoError(t, err)
	start := time.Date(2024, 11, 3, 0, 59, 30, 0, ny)
	now := start
	for i := 1; i <= 120; i++ {
		next, _ := rule.NextTriggerTime(now)
		assert.Equal(t, start.Add(time.Duration(i)*time.Minute-30*time.Second).Unix(), next.Unix(), "firing %d", i)
		assert.Equal(t, ny, next.Location())
		now = next
	}
	_, offset := now.Zone()
	assert.Equal(t, -5*3600, offset, "second pass of the hour is standard time")

	// An hourly rule fires at both 01:30 readings.
	hourly, err := NewRegularRule(Trigger{Minute: Int(30)}, false)
	require.NoError(t, err)
	first, _ := hourly.NextTriggerTime(time.Date(2024, 11, 3, 1, 0, 0, 0, ny))
	second, _ := hourly.NextTriggerTime(first)
	assert.Equal(t, time.Hour, second.Sub(first))
	assert.Equal(t, 1, second.Hour())
}

func TestPeriodicRule(t *testing.T) {
	start := TimeOfDay{Hour: 9, Minute: 30}
	end := TimeOfDay{Hour: 16}
	rule, err := NewPeriodicRule(start, end, 30*time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, 14, rule.Instants())

	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{now: date(2024, 1, 2, 0, 0, 0), want: date(2024, 1, 2, 9, 30, 0)},
		{now: date(2024, 1, 2, 9, 30, 0), want: date(2024, 1, 2, 10, 0, 0)},
		{now: date(2024, 1, 2, 15, 45, 0), want: date(2024, 1, 2, 16, 0, 0)},
		{now: date(2024, 1, 2, 16, 0, 0), want: date(2024, 1, 3, 9, 30, 0)},
	}
	for _, tt := range tests {
		got, ok := rule.NextTriggerTime(tt.now)
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "now=%s", tt.now)
	}
}

func TestNewPeriodicRule_Errors(t *testing.T) {
	nine := TimeOfDay{Hour: 9}
	ten := TimeOfDay{Hour: 10}

	for _, freq := range []time.Duration{0, -time.Minute, 24 * time.Hour, 1500 * time.Millisecond} {
		_, err := NewPeriodicRule(nine, ten, freq, false)
		assert.ErrorIs(t, err, ports.ErrInvalidRule, "frequency %s", freq)
	}

	_, err := NewPeriodicRule(ten, nine, time.Minute, false)
	assert.ErrorIs(t, err, ports.ErrInvalidRule)
}

func TestSingleShotRule(t *testing.T) {
	rule := NewSingleShotRule()
	t1 := date(2024, 1, 2, 10, 0, 0)
	t2 := date(2024, 1, 2, 11, 0, 0)

	require.NoError(t, rule.Schedule(t2, "second"))
	require.NoError(t, rule.Schedule(t1, "first"))
	err := rule.Schedule(t1, "again")
	assert.ErrorIs(t, err, ports.ErrDuplicateSingleShot)
	assert.Equal(t, 2, rule.Pending())

	next, ok := rule.NextTriggerTime(t1.Add(-time.Hour))
	require.True(t, ok)
	assert.Equal(t, t1, next)

	payload, ok := rule.Payload(t1)
	require.True(t, ok)
	assert.Equal(t, "first", payload)

	next, ok = rule.NextTriggerTime(t1)
	require.True(t, ok)
	assert.Equal(t, t2, next)

	_, ok = rule.NextTriggerTime(t2)
	assert.False(t, ok)

	_, ok = rule.Payload(t1.Add(time.Minute))
	assert.False(t, ok)
}

func TestSingleShotRule_Consume(t *testing.T) {
	var rule SingleShotRule
	t1 := date(2024, 1, 2, 10, 0, 0)
	require.NoError(t, rule.Schedule(t1, nil))
	require.NoError(t, rule.Schedule(t1.Add(time.Hour), nil))

	rule.Consume(t1)
	assert.Equal(t, 1, rule.Pending())

	// A consumed time never fires again, even from before it.
	next, ok := rule.NextTriggerTime(t1.Add(-time.Minute))
	require.True(t, ok)
	assert.Equal(t, t1.Add(time.Hour), next)
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 30}, tod)
	assert.Equal(t, "09:30:00", tod.String())
	assert.Equal(t, 9*time.Hour+30*time.Minute, tod.Offset())

	tod, err = ParseTimeOfDay("16:00:15")
	require.NoError(t, err)
	assert.Equal(t, 15, tod.Second)

	for _, bad := range []string{"", "9", "25:00", "09:61", "aa:bb"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}
