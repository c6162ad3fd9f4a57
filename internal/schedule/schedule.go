// Package schedule decides whether cron-scheduled work is due. Due-ness is a
// function of trigger boundaries crossed since the last recorded success, not
// of elapsed wall-clock time, so a host that slept through a trigger catches
// up on the next evaluation.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Parse validates a standard 5-field cron expression.
func Parse(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return sched, nil
}

// IsDue reports whether a trigger boundary of expr lies in (lastSuccess, ref].
// A zero lastSuccess means no success was ever recorded, which is always due.
func IsDue(expr string, ref, lastSuccess time.Time) (bool, error) {
	sched, err := Parse(expr)
	if err != nil {
		return false, err
	}
	if lastSuccess.IsZero() {
		return true, nil
	}
	next := sched.Next(lastSuccess)
	if next.IsZero() {
		return false, nil
	}
	return !next.After(ref), nil
}

// probeWindows are the look-back horizons tried when searching for the most
// recent trigger. A standard cron expression fires at least once in two years
// unless it names an impossible date.
var probeWindows = []time.Duration{
	time.Hour,
	24 * time.Hour,
	31 * 24 * time.Hour,
	366 * 24 * time.Hour,
	2 * 366 * 24 * time.Hour,
}

// PrevTrigger returns the most recent trigger of expr at or before ref, or
// the zero time when no trigger occurs within the look-back horizon.
func PrevTrigger(expr string, ref time.Time) (time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}

	for _, window := range probeWindows {
		t := sched.Next(ref.Add(-window))
		if t.IsZero() || t.After(ref) {
			continue
		}
		for {
			next := sched.Next(t)
			if next.IsZero() || next.After(ref) {
				return t, nil
			}
			t = next
		}
	}

	return time.Time{}, nil
}

// MinAcceptable returns the earliest evidence timestamp a checker accepts:
// the most recent trigger minus the accuracy tolerance. The tolerance absorbs
// scheduler jitter and backup duration. The zero time means the schedule
// imposes no constraint.
func MinAcceptable(expr string, ref time.Time, accuracyDays int) (time.Time, error) {
	prev, err := PrevTrigger(expr, ref)
	if err != nil || prev.IsZero() {
		return time.Time{}, err
	}
	return prev.Add(-time.Duration(accuracyDays) * 24 * time.Hour), nil
}
