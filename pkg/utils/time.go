package utils

import "time"

// NowUTC returns the current time in UTC
func NowUTC() time.Time {
	return time.Now().UTC()
}

// DayKey returns the UTC calendar date of t as YYYY-MM-DD, the key daily
// usage counters are stored under.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
