// Package worker consumes forecast tasks from the queue and computes results.
package worker

import (
	"time"

	"github.com/tempcast/tempcast/internal/task"
)

// Config holds configuration for forecast processing.
type Config struct {
	// HistoryDays is the number of daily observations in a training window.
	// Default: 7
	HistoryDays int

	// Timeout bounds the processing of one task, including weather fetches
	// and the result write.
	// Default: 2 minutes
	Timeout time.Duration

	// LatestLag is how far before today the newest usable observation lies.
	// The archive source publishes days with a delay.
	// Default: 2 days
	LatestLag int
}

// DefaultConfig returns the default processing configuration.
func DefaultConfig() Config {
	return Config{
		HistoryDays: 7,
		Timeout:     2 * time.Minute,
		LatestLag:   2,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HistoryDays <= 0 {
		c.HistoryDays = def.HistoryDays
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.LatestLag <= 0 {
		c.LatestLag = def.LatestLag
	}
	return c
}

// Window returns the days of the training window for target, oldest first.
// The window ends on the earlier of today-lag and the day before target.
func Window(target, now time.Time, days, lag int) []time.Time {
	end := task.Day(now).AddDate(0, 0, -lag)
	if prev := task.Day(target).AddDate(0, 0, -1); prev.Before(end) {
		end = prev
	}

	window := make([]time.Time, days)
	for i := range window {
		window[i] = end.AddDate(0, 0, i-(days-1))
	}
	return window
}
