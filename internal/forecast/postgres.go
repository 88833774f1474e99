package forecast

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tempcast/tempcast/internal/task"
)

const schema = `
	CREATE TABLE IF NOT EXISTS forecast_results (
		task_id     UUID PRIMARY KEY,
		location    TEXT NOT NULL,
		target_date DATE NOT NULL,
		model_id    TEXT NOT NULL,
		computed_at TIMESTAMPTZ NOT NULL,
		temp_min    DOUBLE PRECISION NOT NULL,
		temp_mean   DOUBLE PRECISION NOT NULL,
		temp_max    DOUBLE PRECISION NOT NULL
	)
`

// PostgresArchive is a PostgreSQL implementation of Archive.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive creates a new PostgreSQL result archive.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// EnsureSchema creates the results table if it does not exist.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, schema)
	return err
}

// Save upserts a result.
func (a *PostgresArchive) Save(ctx context.Context, r *Result) error {
	query := `
		INSERT INTO forecast_results (
			task_id, location, target_date, model_id, computed_at,
			temp_min, temp_mean, temp_max
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (task_id) DO UPDATE SET
			model_id = EXCLUDED.model_id,
			computed_at = EXCLUDED.computed_at,
			temp_min = EXCLUDED.temp_min,
			temp_mean = EXCLUDED.temp_mean,
			temp_max = EXCLUDED.temp_max
	`

	_, err := a.pool.Exec(ctx, query,
		r.TaskID,
		r.Location,
		r.TargetDate,
		r.Metadata.ModelID,
		r.Metadata.ComputedAt,
		r.Forecast.TempMin,
		r.Forecast.TempMean,
		r.Forecast.TempMax,
	)
	return err
}

// Load retrieves a result by task id.
func (a *PostgresArchive) Load(ctx context.Context, id task.ID) (*Result, error) {
	query := `
		SELECT
			task_id, location, to_char(target_date, 'YYYY-MM-DD'),
			model_id, computed_at,
			temp_min, temp_mean, temp_max
		FROM forecast_results
		WHERE task_id = $1
	`

	var r Result
	err := a.pool.QueryRow(ctx, query, id).Scan(
		&r.TaskID,
		&r.Location,
		&r.TargetDate,
		&r.Metadata.ModelID,
		&r.Metadata.ComputedAt,
		&r.Forecast.TempMin,
		&r.Forecast.TempMean,
		&r.Forecast.TempMax,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	r.Metadata.ComputedAt = r.Metadata.ComputedAt.UTC()
	return &r, nil
}
