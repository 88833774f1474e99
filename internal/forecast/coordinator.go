package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tempcast/tempcast/internal/location"
	"github.com/tempcast/tempcast/internal/queue"
	"github.com/tempcast/tempcast/internal/task"
)

// Results is the read side of a ResultStore.
type Results interface {
	Get(ctx context.Context, id task.ID) (*Result, error)
}

// CoordinatorConfig holds configuration for a Coordinator.
type CoordinatorConfig struct {
	Results   Results
	Publisher queue.Publisher

	// HorizonDays bounds target dates to before today+HorizonDays (default: 7).
	HorizonDays int

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	Logger zerolog.Logger
}

// Coordinator accepts forecast requests. Requests for a task that already
// has a result are rejected as conflicts; everything else is enqueued.
// Tasks that are queued but not yet computed are not tracked, so concurrent
// duplicate requests each enqueue a message.
type Coordinator struct {
	results   Results
	publisher queue.Publisher
	horizon   int
	now       func() time.Time
	logger    zerolog.Logger
}

// NewCoordinator creates a new coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	horizon := cfg.HorizonDays
	if horizon <= 0 {
		horizon = 7
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Coordinator{
		results:   cfg.Results,
		publisher: cfg.Publisher,
		horizon:   horizon,
		now:       now,
		logger:    cfg.Logger,
	}
}

// RequestForecast validates the request, derives its task id and either
// reports a conflict or enqueues the task. It never waits for the worker.
func (c *Coordinator) RequestForecast(ctx context.Context, loc string, date time.Time) (Submission, error) {
	l, err := location.Parse(loc)
	if err != nil {
		return Submission{}, &ValidationError{Field: "location", Err: err}
	}

	date = task.Day(date)
	limit := task.Day(c.now()).AddDate(0, 0, c.horizon)
	if !date.Before(limit) {
		return Submission{}, &ValidationError{
			Field: "date",
			Err:   fmt.Errorf("%w: must be before %s", ErrDateOutOfRange, task.FormatDate(limit)),
		}
	}

	msg := task.NewMessage(l, date)

	_, err = c.results.Get(ctx, msg.TaskID)
	switch {
	case err == nil:
		c.logger.Debug().Str("task_id", msg.TaskID.String()).Msg("forecast already computed")
		return Submission{Status: StatusConflict, TaskID: msg.TaskID}, nil
	case !errors.Is(err, ErrNotFound):
		return Submission{}, fmt.Errorf("check existing forecast: %w", err)
	}

	body, err := msg.Encode()
	if err != nil {
		return Submission{}, fmt.Errorf("encode task: %w", err)
	}
	if err := c.publisher.Publish(ctx, body); err != nil {
		return Submission{}, fmt.Errorf("enqueue task: %w", err)
	}

	c.logger.Info().
		Str("task_id", msg.TaskID.String()).
		Str("location", loc).
		Str("target_date", task.FormatDate(date)).
		Msg("forecast task enqueued")

	return Submission{Status: StatusAccepted, TaskID: msg.TaskID}, nil
}

// GetForecast returns the result for id, or ErrNotFound if it has not been
// computed. Pending and unknown tasks are indistinguishable.
func (c *Coordinator) GetForecast(ctx context.Context, id task.ID) (*Result, error) {
	return c.results.Get(ctx, id)
}
