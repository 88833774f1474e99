// Package forecast owns forecast results: the request coordinator that
// deduplicates and enqueues work, and the result store workers write to.
package forecast

import (
	"errors"
	"fmt"
	"time"

	"github.com/tempcast/tempcast/internal/task"
)

// Forecast errors.
var (
	ErrNotFound       = errors.New("forecast not found")
	ErrDateOutOfRange = errors.New("date is outside the forecast horizon")
)

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Result is a computed forecast. It is never mutated after being written;
// a recomputation for the same task overwrites it with an equivalent value.
type Result struct {
	TaskID     task.ID  `json:"task_id"`
	Location   string   `json:"location,omitempty"`
	TargetDate string   `json:"target_date,omitempty"`
	Metadata   Metadata `json:"metadata"`
	Forecast   Values   `json:"forecast"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	ModelID    string    `json:"model_id"`
	ComputedAt time.Time `json:"computed_at"`
}

// Values are predicted temperatures in Celsius.
type Values struct {
	TempMin  float64 `json:"temp_min"`
	TempMean float64 `json:"temp_mean"`
	TempMax  float64 `json:"temp_max"`
}

// Status is the outcome of a forecast request.
type Status string

const (
	// StatusAccepted means the task was enqueued.
	StatusAccepted Status = "accepted"

	// StatusConflict means a result already exists; nothing was enqueued.
	StatusConflict Status = "conflict"
)

// Submission is returned by RequestForecast.
type Submission struct {
	Status Status
	TaskID task.ID
}
