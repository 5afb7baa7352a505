// Package timespec parses the time filters accepted by 'flexprep runs':
// either an absolute RFC3339 timestamp or a Go duration measured back from
// the current time.
package timespec

import (
	"fmt"
	"time"
)

// Parse converts one time filter into a Unix timestamp in milliseconds.
//
// Two forms are accepted:
//   - RFC3339: "2026-08-25T13:00:00Z"
//   - Go duration, relative to now: "90m" means 90 minutes ago
func Parse(spec string) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		return time.Now().Add(-d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use a duration like '1h30m' or RFC3339 like '2026-08-25T13:00:00Z')", spec)
}

// ParseRange parses the --since and --until pair into a time window. An
// empty spec leaves that bound at zero, meaning unbounded. A window whose
// start does not precede its end is rejected.
func ParseRange(since, until string) (int64, int64, error) {
	var sinceMS, untilMS int64
	var err error

	if since != "" {
		if sinceMS, err = Parse(since); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		if untilMS, err = Parse(until); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMS > 0 && untilMS > 0 && sinceMS >= untilMS {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}

	return sinceMS, untilMS, nil
}
