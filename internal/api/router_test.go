package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempcast/tempcast/internal/api"
	"github.com/tempcast/tempcast/internal/api/handler"
	"github.com/tempcast/tempcast/internal/api/middleware"
	"github.com/tempcast/tempcast/internal/api/models"
	"github.com/tempcast/tempcast/internal/cache"
	"github.com/tempcast/tempcast/internal/forecast"
	"github.com/tempcast/tempcast/internal/location"
	"github.com/tempcast/tempcast/internal/provider/resilience"
	"github.com/tempcast/tempcast/internal/task"
	"github.com/tempcast/tempcast/internal/weather"
)

var testNow = time.Date(2024, 3, 16, 10, 0, 0, 0, time.UTC)

type fakeWeather struct {
	obs map[string]*weather.DailyObservation
	err error
}

func (f *fakeWeather) GetDaily(_ context.Context, loc location.Location, date time.Time) (*weather.DailyObservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	obs, ok := f.obs[weather.CacheKey(loc, date)]
	if !ok {
		return nil, weather.ErrNoData
	}
	return obs, nil
}

type testEnv struct {
	router  http.Handler
	queue   *queueStub
	results *forecast.ResultStore
	weather *fakeWeather
}

// queueStub publishes into memory and reports readiness from pingErr.
type queueStub struct {
	published [][]byte
	pubErr    error
	pingErr   error
}

func (q *queueStub) Publish(_ context.Context, body []byte) error {
	if q.pubErr != nil {
		return q.pubErr
	}
	q.published = append(q.published, body)
	return nil
}

func (q *queueStub) Ping(context.Context) error { return q.pingErr }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := cache.NewMemoryStore(cache.WithClock(func() time.Time { return testNow }))
	results := forecast.NewStore(forecast.StoreConfig{
		Store:  store,
		TTL:    24 * time.Hour,
		Logger: zerolog.Nop(),
	})
	q := &queueStub{}
	coordinator := forecast.NewCoordinator(forecast.CoordinatorConfig{
		Results:   results,
		Publisher: q,
		Now:       func() time.Time { return testNow },
		Logger:    zerolog.Nop(),
	})
	wx := &fakeWeather{obs: map[string]*weather.DailyObservation{}}

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2024-01-01T00:00:00Z",
		Logger:    zerolog.New(io.Discard),
		Forecasts: coordinator,
		Weather:   wx,
		Dependencies: map[string]handler.Pinger{
			"cache": store,
			"queue": q,
		},
		Now: func() time.Time { return testNow },
	})

	return &testEnv{router: router, queue: q, results: results, weather: wx}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	env.queue.pingErr = assert.AnError
	w = env.do(t, http.MethodGet, "/v1/ops/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusFail, health.Status)
	assert.Equal(t, string(models.HealthStatusFail), health.Details["queue"])
	assert.Equal(t, string(models.HealthStatusOK), health.Details["cache"])
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 2)
	assert.Equal(t, "cache", status.Subsystems[0].Name)
	assert.Empty(t, status.Providers)
}

func TestOpsHandler_SystemStatusReportsProviderCircuit(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("open-meteo")
	cfg.Registry = registry
	resilience.NewClient(cfg)

	h := handler.NewOpsHandler(handler.OpsConfig{
		Version:      "test",
		Dependencies: map[string]handler.Pinger{"cache": cache.NewMemoryStore()},
		Providers:    registry,
	})

	w := httptest.NewRecorder()
	h.SystemStatus(w, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"latencyMs":`)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Providers, 1)
	p := status.Providers[0]
	assert.Equal(t, "open-meteo", p.Provider)
	assert.Equal(t, models.HealthStatusOK, p.Status)
	assert.Equal(t, "closed", p.Circuit)
	assert.Zero(t, p.ConsecutiveFailures)
	assert.GreaterOrEqual(t, status.Subsystems[0].LatencyMs, int64(0))
}

func TestRouter_SubmitForecast_Accepted(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/forecasts", models.ForecastRequest{Location: "Moscow", Date: "2024-03-20"})

	require.Equal(t, http.StatusAccepted, w.Code)
	want := task.Derive("Moscow", time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)).String()

	var sub models.SubmissionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, "accepted", sub.Status)
	assert.Equal(t, want, sub.TaskID)
	assert.Equal(t, "/v1/forecasts/"+want, w.Header().Get("Location"))

	require.Len(t, env.queue.published, 1)
	msg, err := task.DecodeMessage(env.queue.published[0])
	require.NoError(t, err)
	assert.Equal(t, want, msg.TaskID.String())
}

func TestRouter_SubmitForecast_ConflictOnceComputed(t *testing.T) {
	env := newTestEnv(t)
	date := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	id := task.Derive("Moscow", date)

	require.NoError(t, env.results.Put(context.Background(), &forecast.Result{
		TaskID:   id,
		Metadata: forecast.Metadata{ModelID: "linear-regression-1.0", ComputedAt: testNow},
		Forecast: forecast.Values{TempMin: -5, TempMean: -1, TempMax: 2},
	}))

	w := env.do(t, http.MethodPost, "/v1/forecasts", models.ForecastRequest{Location: "Moscow", Date: "2024-03-20"})

	assert.Equal(t, http.StatusConflict, w.Code)
	var sub models.SubmissionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, "conflict", sub.Status)
	assert.Equal(t, id.String(), sub.TaskID)
	assert.Empty(t, env.queue.published)
}

func TestRouter_SubmitForecast_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  interface{}
		field string
	}{
		{"missing location", models.ForecastRequest{Date: "2024-03-20"}, "location"},
		{"bad date format", models.ForecastRequest{Location: "Moscow", Date: "20/03/2024"}, "date"},
		{"unknown location", models.ForecastRequest{Location: "Atlantis", Date: "2024-03-20"}, "location"},
		{"beyond horizon", models.ForecastRequest{Location: "Moscow", Date: "2024-03-23"}, "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(t, http.MethodPost, "/v1/forecasts", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			p := decodeProblem(t, w)
			assert.Equal(t, models.ProblemTypeValidation, p.Type)
			require.NotEmpty(t, p.Errors)
			assert.Equal(t, tt.field, p.Errors[0].Field)
			assert.Empty(t, env.queue.published)
		})
	}
}

func TestRouter_SubmitForecast_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/forecasts", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid JSON body", decodeProblem(t, w).Detail)
}

func TestRouter_SubmitForecast_RejectsNonJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/forecasts", bytes.NewBufferString("location=Moscow"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_SubmitForecast_QueueDown(t *testing.T) {
	env := newTestEnv(t)
	env.queue.pubErr = assert.AnError

	w := env.do(t, http.MethodPost, "/v1/forecasts", models.ForecastRequest{Location: "Moscow", Date: "2024-03-20"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.ProblemTypeUnavailable, decodeProblem(t, w).Type)
}

func TestRouter_GetForecast(t *testing.T) {
	env := newTestEnv(t)
	id := task.Derive("Paris", time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC))

	w := env.do(t, http.MethodGet, "/v1/forecasts/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "/v1/forecasts/"+id.String(), decodeProblem(t, w).Instance)

	require.NoError(t, env.results.Put(context.Background(), &forecast.Result{
		TaskID:   id,
		Metadata: forecast.Metadata{ModelID: "gbdt-multirmse-1.0", ComputedAt: testNow},
		Forecast: forecast.Values{TempMin: 6.5, TempMean: 10.25, TempMax: 14},
	}))

	w = env.do(t, http.MethodGet, "/v1/forecasts/"+id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]interface{}{
		"model_id":    "gbdt-multirmse-1.0",
		"computed_at": "2024-03-16T10:00:00Z",
	}, body["metadata"])
	assert.Equal(t, map[string]interface{}{
		"temp_min":  6.5,
		"temp_mean": 10.25,
		"temp_max":  float64(14),
	}, body["forecast"])
}

func TestRouter_GetForecast_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/forecasts/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "taskId", decodeProblem(t, w).Errors[0].Field)
}

func TestRouter_GetWeather(t *testing.T) {
	env := newTestEnv(t)
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	env.weather.obs[weather.CacheKey("Tokyo", date)] = &weather.DailyObservation{
		Date: date, TempMin: 5, TempAvg: 9, TempMax: 13,
	}

	w := env.do(t, http.MethodGet, "/v1/weather?location=Tokyo&date=2024-03-10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var obs weather.DailyObservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &obs))
	assert.InDelta(t, 9.0, obs.TempAvg, 1e-9)

	w = env.do(t, http.MethodGet, "/v1/weather?location=Tokyo&date=2024-03-11", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_GetWeather_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing date", "location=Tokyo", http.StatusBadRequest},
		{"unknown location", "location=Atlantis&date=2024-03-10", http.StatusBadRequest},
		{"today", "location=Tokyo&date=2024-03-16", http.StatusBadRequest},
		{"future", "location=Tokyo&date=2024-03-17", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodGet, "/v1/weather?"+tt.query, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRouter_GetWeather_ProviderDown(t *testing.T) {
	env := newTestEnv(t)
	env.weather.err = weather.ErrProviderUnavailable

	w := env.do(t, http.MethodGet, "/v1/weather?location=Tokyo&date=2024-03-10", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_ListLocations(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/locations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.LocationList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, len(location.All()))
	assert.Equal(t, "Berlin", list.Items[0].Name)
}

func TestRouter_SubmitRateLimited(t *testing.T) {
	env := newTestEnv(t)
	router := api.NewRouter(api.RouterConfig{
		Logger:      zerolog.Nop(),
		Forecasts:   forecast.NewCoordinator(forecast.CoordinatorConfig{Results: env.results, Publisher: env.queue, Now: func() time.Time { return testNow }}),
		Weather:     env.weather,
		Now:         func() time.Time { return testNow },
		SubmitLimit: middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute},
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/forecasts", bytes.NewBufferString(`{"location":"Moscow","date":"2024-03-20"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusAccepted, http.StatusTooManyRequests}, codes)
}
