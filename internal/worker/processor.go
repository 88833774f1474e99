package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tempcast/tempcast/internal/forecast"
	"github.com/tempcast/tempcast/internal/location"
	"github.com/tempcast/tempcast/internal/model"
	"github.com/tempcast/tempcast/internal/queue"
	"github.com/tempcast/tempcast/internal/task"
	"github.com/tempcast/tempcast/internal/weather"
)

// History supplies daily observations, aligned with days and nil where a
// day could not be fetched.
type History interface {
	GetDays(ctx context.Context, loc location.Location, days []time.Time) []*weather.DailyObservation
}

// Forecaster fits a model on a window and predicts the following day.
type Forecaster interface {
	Forecast(obs []*weather.DailyObservation) (model.Prediction, error)
}

// ResultWriter persists forecast results.
type ResultWriter interface {
	Put(ctx context.Context, r *forecast.Result) error
}

// ProcessorConfig holds configuration for creating a Processor.
type ProcessorConfig struct {
	Config     Config
	History    History
	Forecaster Forecaster
	Results    ResultWriter

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	Logger  zerolog.Logger
	Metrics *Metrics
}

// Processor computes forecasts for queued tasks. Its Handle method is a
// queue.Handler; any number of deliveries may be handled concurrently.
type Processor struct {
	config     Config
	history    History
	forecaster Forecaster
	results    ResultWriter
	now        func() time.Time
	logger     zerolog.Logger
	tracer     trace.Tracer
	metrics    *Metrics
	stats      *Stats
}

// NewProcessor creates a new forecast task processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Processor{
		config:     cfg.Config.withDefaults(),
		history:    cfg.History,
		forecaster: cfg.Forecaster,
		results:    cfg.Results,
		now:        now,
		logger:     cfg.Logger,
		tracer:     otel.Tracer(instrumentationName),
		metrics:    cfg.Metrics,
		stats:      &Stats{},
	}
}

// Run consumes from c until ctx is cancelled or the consumer fails.
func (p *Processor) Run(ctx context.Context, c queue.Consumer) error {
	p.logger.Info().
		Int("history_days", p.config.HistoryDays).
		Dur("timeout", p.config.Timeout).
		Msg("forecast worker started")

	err := c.Consume(ctx, p.Handle)

	p.logger.Info().Err(err).Msg("forecast worker stopped")
	return err
}

// Handle processes one queue message. The result is written before Handle
// returns nil, so an acknowledgement always follows a durable write.
func (p *Processor) Handle(ctx context.Context, body []byte) error {
	start := time.Now()

	msg, err := task.DecodeMessage(body)
	if err != nil {
		p.logger.Error().Err(err).Int("bytes", len(body)).Msg("dropping malformed task message")
		p.finish(ctx, taskRecord{outcome: OutcomeDeadLetter}, start)
		return fmt.Errorf("%w: %w", queue.ErrMalformedMessage, err)
	}

	logger := p.logger.With().
		Str("task_id", msg.TaskID.String()).
		Str("location", msg.Location.String()).
		Str("target_date", task.FormatDate(msg.TargetDate)).
		Logger()

	ctx, span := p.tracer.Start(ctx, "forecast.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("forecast.task_id", msg.TaskID.String()),
			attribute.String("forecast.location", msg.Location.String()),
			attribute.String("forecast.target_date", task.FormatDate(msg.TargetDate)),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	rec, err := p.process(ctx, msg)
	rec.taskID = msg.TaskID.String()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).
			Str("outcome", rec.outcome).
			Int("days_missing", rec.daysMissing).
			Msg("forecast task failed, requeueing")
		p.finish(ctx, rec, start)
		return err
	}

	span.SetStatus(codes.Ok, "")
	logger.Info().
		Int("days_missing", rec.daysMissing).
		Dur("duration", time.Since(start)).
		Msg("forecast computed")
	p.finish(ctx, rec, start)
	return nil
}

func (p *Processor) process(ctx context.Context, msg task.Message) (taskRecord, error) {
	days := Window(msg.TargetDate, p.now(), p.config.HistoryDays, p.config.LatestLag)
	obs := p.history.GetDays(ctx, msg.Location, days)

	rec := taskRecord{outcome: OutcomeFailed, daysRequested: len(days)}
	for _, o := range obs {
		if o == nil {
			rec.daysMissing++
		}
	}

	pred, err := p.forecaster.Forecast(obs)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientHistory) {
			rec.outcome = OutcomeInsufficientHistory
		}
		return rec, fmt.Errorf("forecast %s: %w", msg.TaskID, err)
	}

	result := &forecast.Result{
		TaskID:     msg.TaskID,
		Location:   msg.Location.String(),
		TargetDate: task.FormatDate(msg.TargetDate),
		Metadata: forecast.Metadata{
			ModelID:    pred.ModelID,
			ComputedAt: p.now().UTC(),
		},
		Forecast: forecast.Values{
			TempMin:  pred.TempMin,
			TempMean: pred.TempMean,
			TempMax:  pred.TempMax,
		},
	}

	if err := p.results.Put(ctx, result); err != nil {
		return rec, fmt.Errorf("write result: %w", err)
	}

	rec.outcome = OutcomeSuccess
	return rec, nil
}

func (p *Processor) finish(ctx context.Context, rec taskRecord, start time.Time) {
	rec.at = p.now()
	rec.duration = time.Since(start)
	p.stats.record(rec)
	p.metrics.record(ctx, rec.outcome, rec.duration)
}

// GetStats returns a copy of the current statistics.
func (p *Processor) GetStats() Stats {
	return p.stats.snapshot()
}

// StatsSnapshot returns the current statistics as a map.
func (p *Processor) StatsSnapshot() map[string]interface{} {
	s := p.GetStats()
	return map[string]interface{}{
		"tasks_processed":      s.TasksProcessed,
		"tasks_failed":         s.TasksFailed,
		"tasks_dead_lettered":  s.TasksDeadLettered,
		"insufficient_history": s.InsufficientHistory,
		"days_requested":       s.DaysRequested,
		"days_missing":         s.DaysMissing,
		"last_task_id":         s.LastTaskID,
		"last_outcome":         s.LastOutcome,
		"last_task_at":         s.LastTaskAt,
		"last_task_duration":   s.LastTaskDuration.String(),
		"total_duration":       s.TotalDuration.String(),
	}
}
