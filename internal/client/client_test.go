package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempcast/tempcast/internal/api/models"
	"github.com/tempcast/tempcast/internal/client"
)

const taskID = "5b1f5a4e-8a8b-4a57-9d55-3c1f2d7b4e10"

func TestClient_Submit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/forecasts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req models.ForecastRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Moscow", req.Location)
		assert.Equal(t, "2024-03-20", req.Date)

		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(models.SubmissionResponse{Status: "conflict", TaskID: taskID})
	}))
	defer server.Close()

	sub, err := client.New(server.URL+"/", nil).Submit(context.Background(), "Moscow", "2024-03-20")
	require.NoError(t, err)
	assert.Equal(t, "conflict", sub.Status)
	assert.Equal(t, taskID, sub.TaskID)
}

func TestClient_SubmitValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		models.NewBadRequest("req_1", "invalid location: invalid location", nil).Write(w)
	}))
	defer server.Close()

	_, err := client.New(server.URL, nil).Submit(context.Background(), "Atlantis", "2024-03-20")

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "req_1", apiErr.Problem.TraceID)
	assert.Contains(t, apiErr.Error(), "invalid location")
}

func TestClient_GetPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		models.NewNotFound("req_1", "forecast not found").Write(w)
	}))
	defer server.Close()

	_, err := client.New(server.URL, nil).Get(context.Background(), taskID)
	assert.ErrorIs(t, err, client.ErrPending)
}

func TestClient_WaitPollsUntilReady(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecasts/"+taskID, r.URL.Path)
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"metadata":{"model_id":"gbdt-multirmse-1.0","computed_at":"2024-03-16T10:00:00Z"},` +
			`"forecast":{"temp_min":1.5,"temp_mean":4,"temp_max":7.25}}`))
	}))
	defer server.Close()

	result, err := client.New(server.URL, nil).Wait(context.Background(), taskID, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "gbdt-multirmse-1.0", result.Metadata.ModelID)
	assert.InDelta(t, 7.25, result.Forecast.TempMax, 1e-9)
}

func TestClient_WaitStopsOnContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.New(server.URL, nil).Wait(ctx, taskID, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_WaitRejectsNonPositiveInterval(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := client.New(server.URL, nil)
	for _, interval := range []time.Duration{0, -time.Second} {
		assert.NotPanics(t, func() {
			_, err := c.Wait(context.Background(), taskID, interval)
			assert.ErrorIs(t, err, client.ErrInvalidInterval)
		})
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClient_Locations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(models.LocationList{Items: []models.LocationItem{
			{Name: "Berlin", Lat: 52.52, Lon: 13.405},
		}})
	}))
	defer server.Close()

	items, err := client.New(server.URL, nil).Locations(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Berlin", items[0].Name)
}

func TestClient_Weather(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Tokyo", r.URL.Query().Get("location"))
		assert.Equal(t, "2024-03-10", r.URL.Query().Get("date"))
		_, _ = w.Write([]byte(`{"date":"2024-03-10T00:00:00Z","temp_min":5,"temp_avg":9,"temp_max":13}`))
	}))
	defer server.Close()

	obs, err := client.New(server.URL, nil).Weather(context.Background(), "Tokyo", "2024-03-10")
	require.NoError(t, err)
	assert.InDelta(t, 9.0, obs.TempAvg, 1e-9)
}
