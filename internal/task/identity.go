// Package task defines forecast task identity and the queue message contract.
package task

import (
	"crypto/sha256"
	"time"

	"github.com/google/uuid"

	"github.com/tempcast/tempcast/internal/location"
)

// DateLayout is the canonical ISO-8601 calendar date layout.
const DateLayout = "2006-01-02"

// ID identifies a forecast task. Equal (location, date) inputs always yield
// equal IDs; this is the only deduplication mechanism in the pipeline.
type ID = uuid.UUID

// Derive returns the task ID for a location and target date.
//
// The canonical form is "{location}:{YYYY-MM-DD}"; the ID is the first 16
// bytes of its SHA-256 digest. Only the calendar date of date is used, so
// the result does not depend on the time-of-day or zone of the value.
// Callers validate loc beforehand.
func Derive(loc location.Location, date time.Time) ID {
	sum := sha256.Sum256([]byte(Canonical(loc, date)))
	var id ID
	copy(id[:], sum[:16])
	return id
}

// ParseID parses the textual form of an ID.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}

// Canonical returns the canonical string that Derive hashes.
func Canonical(loc location.Location, date time.Time) string {
	return string(loc) + ":" + FormatDate(date)
}

// FormatDate formats the calendar date of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Day truncates t to midnight UTC of its own calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
