package worker

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tempcast/tempcast/internal/worker"

// Task outcomes.
const (
	OutcomeSuccess             = "success"
	OutcomeFailed              = "failed"
	OutcomeInsufficientHistory = "insufficient_history"
	OutcomeDeadLetter          = "dead_letter"
)

// Stats tracks processing statistics for the health endpoint.
type Stats struct {
	mu sync.RWMutex

	// Counters
	TasksProcessed      int64
	TasksFailed         int64
	TasksDeadLettered   int64
	InsufficientHistory int64
	DaysRequested       int64
	DaysMissing         int64

	// Last task
	LastTaskID       string
	LastOutcome      string
	LastTaskAt       time.Time
	LastTaskDuration time.Duration
	TotalDuration    time.Duration
}

type taskRecord struct {
	taskID        string
	outcome       string
	at            time.Time
	duration      time.Duration
	daysRequested int
	daysMissing   int
}

func (s *Stats) record(r taskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.outcome {
	case OutcomeSuccess:
		s.TasksProcessed++
	case OutcomeDeadLetter:
		s.TasksDeadLettered++
	case OutcomeInsufficientHistory:
		s.InsufficientHistory++
		s.TasksFailed++
	default:
		s.TasksFailed++
	}

	s.DaysRequested += int64(r.daysRequested)
	s.DaysMissing += int64(r.daysMissing)
	s.LastTaskID = r.taskID
	s.LastOutcome = r.outcome
	s.LastTaskAt = r.at
	s.LastTaskDuration = r.duration
	s.TotalDuration += r.duration
}

// snapshot returns a copy without the lock.
func (s *Stats) snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		TasksProcessed:      s.TasksProcessed,
		TasksFailed:         s.TasksFailed,
		TasksDeadLettered:   s.TasksDeadLettered,
		InsufficientHistory: s.InsufficientHistory,
		DaysRequested:       s.DaysRequested,
		DaysMissing:         s.DaysMissing,
		LastTaskID:          s.LastTaskID,
		LastOutcome:         s.LastOutcome,
		LastTaskAt:          s.LastTaskAt,
		LastTaskDuration:    s.LastTaskDuration,
		TotalDuration:       s.TotalDuration,
	}
}

// Metrics holds worker instruments.
type Metrics struct {
	tasks    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates worker instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	tasks, err := meter.Int64Counter(
		"forecast.tasks",
		metric.WithDescription("Number of forecast tasks handled, by outcome"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"forecast.task.duration",
		metric.WithDescription("Duration of forecast task processing"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{tasks: tasks, duration: duration}, nil
}

func (m *Metrics) record(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.tasks.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}
