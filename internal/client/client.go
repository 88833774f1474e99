// Package client is an HTTP client for the tempcast API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tempcast/tempcast/internal/api/models"
	"github.com/tempcast/tempcast/internal/forecast"
	"github.com/tempcast/tempcast/internal/weather"
)

// ErrPending is returned by Get while a forecast has not been computed.
// The API does not distinguish pending from never-requested tasks.
var ErrPending = errors.New("forecast not available yet")

// ErrInvalidInterval is returned by Wait for a non-positive polling interval.
var ErrInvalidInterval = errors.New("polling interval must be positive")

// APIError is a non-success response carrying an RFC 7807 problem.
type APIError struct {
	StatusCode int
	Problem    models.Problem
}

func (e *APIError) Error() string {
	if e.Problem.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Problem.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client talks to one tempcast API instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL. A nil httpClient uses a client with a
// 30 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Submit requests a forecast. Both accepted and conflict outcomes are
// successful submissions.
func (c *Client) Submit(ctx context.Context, loc, date string) (models.SubmissionResponse, error) {
	var out models.SubmissionResponse

	body, err := json.Marshal(models.ForecastRequest{Location: loc, Date: date})
	if err != nil {
		return out, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/forecasts", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusConflict {
		return out, decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding submission: %w", err)
	}
	return out, nil
}

// Get fetches a computed forecast, or ErrPending.
func (c *Client) Get(ctx context.Context, taskID string) (*forecast.Result, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/forecasts/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrPending
	default:
		return nil, decodeError(resp)
	}

	var result forecast.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding forecast: %w", err)
	}
	return &result, nil
}

// Wait polls Get every interval until the forecast exists or ctx ends.
func (c *Client) Wait(ctx context.Context, taskID string, interval time.Duration) (*forecast.Result, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := c.Get(ctx, taskID)
		if !errors.Is(err, ErrPending) {
			return result, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Weather fetches one observed day.
func (c *Client) Weather(ctx context.Context, loc, date string) (*weather.DailyObservation, error) {
	q := url.Values{}
	q.Set("location", loc)
	q.Set("date", date)

	resp, err := c.do(ctx, http.MethodGet, "/v1/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var obs weather.DailyObservation
	if err := json.NewDecoder(resp.Body).Decode(&obs); err != nil {
		return nil, fmt.Errorf("decoding weather: %w", err)
	}
	return &obs, nil
}

// Locations lists the supported locations.
func (c *Client) Locations(ctx context.Context) ([]models.LocationItem, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/locations", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var list models.LocationList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding locations: %w", err)
	}
	return list.Items, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &apiErr.Problem)
	return apiErr
}
