package searches

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxScheduleTimes is how many daily run times a search may carry.
const MaxScheduleTimes = 3

var (
	ErrTooManyScheduleTimes = errors.New("searches: at most 3 schedule times are allowed")
	ErrInvalidScheduleTime  = errors.New("searches: schedule time must be HH:MM")
)

// ScheduleTime is one daily run time in 24h "HH:MM" form.
type ScheduleTime struct {
	At      string
	Enabled bool
}

// Schedule lists the daily times at which a search refreshes itself.
type Schedule struct {
	Enabled bool
	Times   []ScheduleTime
}

// ClockTime is a validated hour/minute pair.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func DefaultSchedule() Schedule {
	return Schedule{
		Times: []ScheduleTime{
			{At: "07:00"},
			{At: "14:00"},
			{At: "21:00"},
		},
	}
}

func ParseClock(raw string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidScheduleTime, raw)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidScheduleTime, raw)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidScheduleTime, raw)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

func (s Schedule) Validate() error {
	if len(s.Times) > MaxScheduleTimes {
		return ErrTooManyScheduleTimes
	}
	for _, t := range s.Times {
		if _, err := ParseClock(t.At); err != nil {
			return err
		}
	}
	return nil
}

// Normalized returns a copy with times rewritten as zero-padded HH:MM.
func (s Schedule) Normalized() Schedule {
	out := Schedule{Enabled: s.Enabled}
	if s.Times == nil {
		return out
	}
	out.Times = make([]ScheduleTime, 0, len(s.Times))
	for _, t := range s.Times {
		if c, err := ParseClock(t.At); err == nil {
			t.At = c.String()
		}
		out.Times = append(out.Times, t)
	}
	return out
}

// ActiveTimes lists the distinct times that should fire. Nothing fires when the schedule is off.
func (s Schedule) ActiveTimes() []ClockTime {
	if !s.Enabled {
		return nil
	}
	seen := make(map[ClockTime]bool, len(s.Times))
	var out []ClockTime
	for _, t := range s.Times {
		if !t.Enabled {
			continue
		}
		c, err := ParseClock(t.At)
		if err != nil || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
