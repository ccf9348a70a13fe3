package timer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/senseyeio/duration"
)

// Schedule yields the fire times of a timeCycle.
type Schedule interface {
	// Next returns the first fire time after the given time. ok is false once
	// the schedule is exhausted.
	Next(after time.Time) (next time.Time, ok bool)
}

// ParseDuration parses an ISO 8601 duration such as PT10S or P1DT2H.
func ParseDuration(value string) (duration.Duration, error) {
	d, err := duration.ParseISO8601(strings.TrimSpace(value))
	if err != nil {
		return duration.Duration{}, fmt.Errorf("invalid ISO 8601 duration %q: %w", value, err)
	}
	return d, nil
}

// ParseDate parses an RFC 3339 timestamp.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return t, nil
}

// ParseCycle parses either an ISO 8601 repeating interval (R5/PT10S,
// R/PT1M, R3/2025-01-01T00:00:00Z/PT1H) or a five field cron expression.
func ParseCycle(value string) (Schedule, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "R") && strings.Contains(value, "/") {
		return parseRepeatingInterval(value)
	}
	schedule, err := cron.ParseStandard(value)
	if err != nil {
		return nil, fmt.Errorf("invalid cycle %q: %w", value, err)
	}
	return &cronSchedule{schedule: schedule}, nil
}

type cronSchedule struct {
	schedule cron.Schedule
}

func (c *cronSchedule) Next(after time.Time) (time.Time, bool) {
	next := c.schedule.Next(after)
	return next, !next.IsZero()
}

// repeatingInterval fires every interval, Repetitions times or forever when
// Repetitions is negative.
type repeatingInterval struct {
	Repetitions int
	Start       *time.Time
	Interval    duration.Duration
	fired       int
}

func parseRepeatingInterval(value string) (*repeatingInterval, error) {
	parts := strings.Split(value, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("invalid repeating interval %q", value)
	}
	r := &repeatingInterval{Repetitions: -1}
	if count := strings.TrimPrefix(parts[0], "R"); count != "" {
		n, err := strconv.Atoi(count)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid repetition count in %q", value)
		}
		r.Repetitions = n
	}
	if len(parts) == 3 {
		start, err := ParseDate(parts[1])
		if err != nil {
			return nil, err
		}
		r.Start = &start
	}
	interval, err := ParseDuration(parts[len(parts)-1])
	if err != nil {
		return nil, err
	}
	if interval.Shift(time.Time{}).Equal(time.Time{}) {
		return nil, fmt.Errorf("repeating interval %q must not be zero", value)
	}
	r.Interval = interval
	return r, nil
}

func (r *repeatingInterval) Next(after time.Time) (time.Time, bool) {
	if r.Repetitions >= 0 && r.fired >= r.Repetitions {
		return time.Time{}, false
	}
	r.fired++
	if r.Start != nil && r.Start.After(after) {
		return *r.Start, true
	}
	return r.Interval.Shift(after), true
}
