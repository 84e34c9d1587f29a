package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a duration-valued config field such as
// journal.busy_timeout or a task timeout. An empty or blank value means
// "unset" and parses to zero; negative durations are rejected. path names
// the field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback: unset (or
// zero) values resolve to def instead of zero. Invalid input is still an
// error, never the default.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
