// Package clock provides the single source of "now" used across fetch and
// digest scheduling, so tests can inject a fixed time instead of racing the
// wall clock.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock returns the current instant. Production code uses Real; tests
// supply a Fixed or Sequence clock instead of sleeping.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock, always returning UTC.
type Real struct{}

// Now returns time.Now() normalized to UTC.
func (Real) Now() time.Time { return time.Now().UTC() }

// New returns the production clock.
func New() Clock { return Real{} }

// Now is a package-level convenience equivalent to Real{}.Now(), used by
// code that doesn't need a Clock injected (e.g. one-shot helpers).
func Now() time.Time { return time.Now().UTC() }

// NextRunUTC computes the next UTC instant at or after now that matches
// the "HH:MM" time of day. If now is already past today's occurrence, it
// returns tomorrow's. hhmm is expected to already have been validated by
// the settings store (entity.SettingTypeTime); an unparseable value falls
// back to midnight UTC, which the caller should treat as a configuration
// warning rather than an error.
func NextRunUTC(now time.Time, hhmm string) time.Time {
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		h, m = 0, 0
	}
	now = now.UTC()
	target := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, time.UTC)
	if now.Before(target) {
		return target
	}
	return target.Add(24 * time.Hour)
}

// ParseHHMM parses a "HH:MM" string (00:00-23:59) into hour and minute.
func ParseHHMM(hhmm string) (hour, minute int, err error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format %q, want HH:MM", hhmm)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", hhmm)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", hhmm)
	}
	return hour, minute, nil
}
