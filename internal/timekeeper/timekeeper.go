// Package timekeeper derives attempt timing from the persisted start time
// and the quiz duration. It holds no state.
package timekeeper

import "time"

// Duration converts a quiz duration in minutes to a time.Duration.
func Duration(durationMinutes int) time.Duration {
	return time.Duration(durationMinutes) * time.Minute
}

// Deadline is the instant the attempt runs out of time.
func Deadline(startedAt time.Time, durationMinutes int) time.Time {
	return startedAt.Add(Duration(durationMinutes))
}

// ElapsedSeconds is floor(now - startedAt) in whole seconds, never negative.
func ElapsedSeconds(startedAt, now time.Time) int {
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / time.Second)
}

// RemainingSeconds is max(0, duration*60 - floor(elapsed)).
func RemainingSeconds(startedAt time.Time, durationMinutes int, now time.Time) int {
	return max(0, durationMinutes*60-ElapsedSeconds(startedAt, now))
}

// Expired reports whether no time is left.
func Expired(startedAt time.Time, durationMinutes int, now time.Time) bool {
	return RemainingSeconds(startedAt, durationMinutes, now) == 0
}
