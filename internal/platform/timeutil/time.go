package timeutil

import "time"

// RFC3339Micros is RFC 3339 UTC with fixed microsecond precision.
// Log timestamps and stored signup timestamps use this precision.
const RFC3339Micros = "2006-01-02T15:04:05.000000Z"

// Now returns the current UTC time truncated to microseconds, the finest
// precision every supported store round-trips without loss.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Format renders t in RFC3339Micros.
func Format(t time.Time) string {
	return t.UTC().Format(RFC3339Micros)
}

// Parse accepts RFC 3339 values with any fractional precision and returns UTC.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
