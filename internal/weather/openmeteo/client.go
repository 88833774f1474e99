// Package openmeteo implements weather.Provider against the Open-Meteo
// historical archive API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tempcast/tempcast/internal/location"
	"github.com/tempcast/tempcast/internal/provider/resilience"
	"github.com/tempcast/tempcast/internal/task"
	"github.com/tempcast/tempcast/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "open-meteo"

	// DefaultBaseURL is the Open-Meteo archive API host.
	DefaultBaseURL = "https://archive-api.open-meteo.com"

	archivePath = "/v1/archive"
)

// dailyVariables are the aggregates requested for each day.
var dailyVariables = []string{
	"temperature_2m_mean",
	"temperature_2m_min",
	"temperature_2m_max",
	"precipitation_sum",
	"relative_humidity_2m_mean",
	"relative_humidity_2m_max",
	"relative_humidity_2m_min",
}

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// BaseURL is the API host (optional, defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an Open-Meteo archive API client.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetDaily fetches daily aggregates for a single day.
func (c *Client) GetDaily(ctx context.Context, loc location.Location, date time.Time) (*weather.DailyObservation, error) {
	coords, err := loc.Coordinates()
	if err != nil {
		return nil, err
	}
	day := task.FormatDate(date)

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(coords.Lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(coords.Lon, 'f', 4, 64))
	q.Set("start_date", day)
	q.Set("end_date", day)
	q.Set("daily", strings.Join(dailyVariables, ","))
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+archivePath+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var body archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return body.toObservation(task.Day(date))
}

// statusError maps a non-200 response. Open-Meteo answers 400 with a reason
// for dates outside its archive, which is a data gap rather than an outage.
func (c *Client) statusError(resp *http.Response) error {
	var apiErr errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &apiErr)

	if resp.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", weather.ErrNoData, apiErr.Reason)
	}
	return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

type archiveResponse struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Timezone  string     `json:"timezone"`
	Daily     dailyBlock `json:"daily"`
}

// dailyBlock holds parallel arrays keyed by variable; missing values are null.
type dailyBlock struct {
	Time             []string   `json:"time"`
	TemperatureMean  []*float64 `json:"temperature_2m_mean"`
	TemperatureMin   []*float64 `json:"temperature_2m_min"`
	TemperatureMax   []*float64 `json:"temperature_2m_max"`
	PrecipitationSum []*float64 `json:"precipitation_sum"`
	HumidityMean     []*float64 `json:"relative_humidity_2m_mean"`
	HumidityMax      []*float64 `json:"relative_humidity_2m_max"`
	HumidityMin      []*float64 `json:"relative_humidity_2m_min"`
}

func (r *archiveResponse) toObservation(day time.Time) (*weather.DailyObservation, error) {
	d := r.Daily
	if len(d.Time) == 0 {
		return nil, fmt.Errorf("%w: empty daily block", weather.ErrNoData)
	}

	values := make([]float64, 0, len(dailyVariables))
	for _, series := range [][]*float64{
		d.TemperatureMin, d.TemperatureMean, d.TemperatureMax,
		d.HumidityMin, d.HumidityMean, d.HumidityMax,
		d.PrecipitationSum,
	} {
		if len(series) == 0 || series[0] == nil {
			return nil, fmt.Errorf("%w: incomplete record for %s", weather.ErrNoData, d.Time[0])
		}
		values = append(values, *series[0])
	}

	return &weather.DailyObservation{
		Date:          day,
		TempMin:       values[0],
		TempAvg:       values[1],
		TempMax:       values[2],
		HumidityMin:   values[3],
		HumidityAvg:   values[4],
		HumidityMax:   values[5],
		Precipitation: values[6],
	}, nil
}
