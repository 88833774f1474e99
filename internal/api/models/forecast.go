package models

// ForecastRequest is the body of POST /v1/forecasts.
type ForecastRequest struct {
	Location string `json:"location" validate:"required"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
}

// SubmissionResponse is returned for accepted and conflicting submissions.
type SubmissionResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}

// WeatherQuery holds the query parameters of GET /v1/weather.
type WeatherQuery struct {
	Location string `validate:"required"`
	Date     string `validate:"required,datetime=2006-01-02"`
}

// LocationItem is one entry of GET /v1/locations.
type LocationItem struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// LocationList is the body of GET /v1/locations.
type LocationList struct {
	Items []LocationItem `json:"items"`
}
