package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/tempcast/tempcast/internal/api/middleware"
	"github.com/tempcast/tempcast/internal/api/models"
	"github.com/tempcast/tempcast/internal/api/response"
	"github.com/tempcast/tempcast/internal/location"
	"github.com/tempcast/tempcast/internal/task"
	"github.com/tempcast/tempcast/internal/weather"
)

// WeatherSource returns one observed day for a location.
type WeatherSource interface {
	GetDaily(ctx context.Context, loc location.Location, date time.Time) (*weather.DailyObservation, error)
}

// WeatherHandler serves observed weather from the shared weather cache.
type WeatherHandler struct {
	source   WeatherSource
	validate *validator.Validate
	now      func() time.Time
	logger   zerolog.Logger
}

// NewWeatherHandler creates a new WeatherHandler. A nil now uses time.Now.
func NewWeatherHandler(source WeatherSource, now func() time.Time, logger zerolog.Logger) *WeatherHandler {
	if now == nil {
		now = time.Now
	}
	return &WeatherHandler{
		source:   source,
		validate: validator.New(),
		now:      now,
		logger:   logger,
	}
}

// GetWeather handles GET /v1/weather?location=&date=. Only past dates have
// observations.
func (h *WeatherHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q := models.WeatherQuery{
		Location: r.URL.Query().Get("location"),
		Date:     r.URL.Query().Get("date"),
	}
	if err := h.validate.Struct(q); err != nil {
		response.Invalid(w, r, err)
		return
	}

	loc, err := location.Parse(q.Location)
	if err != nil {
		response.BadRequest(w, r, "unsupported location", []models.FieldError{
			{Field: "location", Message: err.Error(), Code: "invalid"},
		})
		return
	}

	date, err := task.ParseDate(q.Date)
	if err != nil {
		response.Invalid(w, r, err)
		return
	}
	if !date.Before(task.Day(h.now())) {
		response.BadRequest(w, r, weather.ErrDateNotPast.Error(), []models.FieldError{
			{Field: "date", Message: "must be before today", Code: "invalid"},
		})
		return
	}

	obs, err := h.source.GetDaily(r.Context(), loc, date)
	switch {
	case errors.Is(err, weather.ErrNoData):
		response.NotFound(w, r, "no weather data for location and date")
		return
	case err != nil:
		h.logger.Warn().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("location", q.Location).
			Str("date", q.Date).
			Msg("weather lookup failed")
		response.ServiceUnavailable(w, r, "weather provider unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, obs)
}
