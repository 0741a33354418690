package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses one of the harness timing fields (poll_interval,
// verify_timeout, ...). Blank means "unset" and yields 0. field names the
// key in error messages.
func ParseDurationField(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a Go duration (e.g. \"100ms\", \"5s\"): %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", field, d)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for unset or zero
// values, so "0s" falls back to the default instead of disabling polling or
// timeouts.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
