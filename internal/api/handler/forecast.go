package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/tempcast/tempcast/internal/api/middleware"
	"github.com/tempcast/tempcast/internal/api/models"
	"github.com/tempcast/tempcast/internal/api/response"
	"github.com/tempcast/tempcast/internal/forecast"
	"github.com/tempcast/tempcast/internal/task"
)

// Forecasts is the forecast request surface the handler depends on.
type Forecasts interface {
	RequestForecast(ctx context.Context, loc string, date time.Time) (forecast.Submission, error)
	GetForecast(ctx context.Context, id task.ID) (*forecast.Result, error)
}

// ForecastHandler handles forecast submission and retrieval.
type ForecastHandler struct {
	forecasts Forecasts
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewForecastHandler creates a new ForecastHandler.
func NewForecastHandler(forecasts Forecasts, logger zerolog.Logger) *ForecastHandler {
	return &ForecastHandler{
		forecasts: forecasts,
		validate:  validator.New(),
		logger:    logger,
	}
}

// SubmitForecast handles POST /v1/forecasts. A new task is answered with
// 202 and a Location to poll; an already computed one with 409.
func (h *ForecastHandler) SubmitForecast(w http.ResponseWriter, r *http.Request) {
	var input models.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		response.Invalid(w, r, err)
		return
	}

	date, err := task.ParseDate(input.Date)
	if err != nil {
		response.Invalid(w, r, err)
		return
	}

	sub, err := h.forecasts.RequestForecast(r.Context(), input.Location, date)
	if err != nil {
		var verr *forecast.ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(w, r, verr.Error(), []models.FieldError{
				{Field: verr.Field, Message: verr.Err.Error(), Code: "invalid"},
			})
			return
		}
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("location", input.Location).
			Str("date", input.Date).
			Msg("failed to submit forecast")
		response.ServiceUnavailable(w, r, "forecast could not be scheduled, try again later")
		return
	}

	body := models.SubmissionResponse{
		Status: string(sub.Status),
		TaskID: sub.TaskID.String(),
	}
	if sub.Status == forecast.StatusConflict {
		response.JSON(w, r, http.StatusConflict, body)
		return
	}
	response.Accepted(w, r, "/v1/forecasts/"+body.TaskID, body)
}

// GetForecast handles GET /v1/forecasts/{taskId}. Pending and unknown
// tasks are both reported as 404.
func (h *ForecastHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	id, err := task.ParseID(chi.URLParam(r, "taskId"))
	if err != nil {
		response.BadRequest(w, r, "taskId must be a UUID", []models.FieldError{
			{Field: "taskId", Message: "must be a UUID", Code: "uuid"},
		})
		return
	}

	result, err := h.forecasts.GetForecast(r.Context(), id)
	switch {
	case errors.Is(err, forecast.ErrNotFound):
		response.NotFound(w, r, "forecast not found or not yet computed")
		return
	case err != nil:
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("task_id", id.String()).
			Msg("failed to read forecast")
		response.ServiceUnavailable(w, r, "forecast store unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, result)
}
