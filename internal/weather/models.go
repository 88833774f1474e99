package weather

import (
	"errors"
	"time"

	"github.com/tempcast/tempcast/internal/task"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrNoData              = errors.New("no weather data for location and date")
	ErrDateNotPast         = errors.New("weather is only available for past dates")
)

// DailyObservation is one day of observed weather at a location.
type DailyObservation struct {
	// Date is the calendar day, UTC midnight.
	Date time.Time `json:"date"`

	// Temperature in Celsius
	TempMin float64 `json:"temp_min"`
	TempAvg float64 `json:"temp_avg"`
	TempMax float64 `json:"temp_max"`

	// Relative humidity percentage (0-100)
	HumidityMin float64 `json:"humidity_min"`
	HumidityAvg float64 `json:"humidity_avg"`
	HumidityMax float64 `json:"humidity_max"`

	// Precipitation sum in mm
	Precipitation float64 `json:"precipitation"`
}

// DateString returns the observation date as YYYY-MM-DD.
func (o *DailyObservation) DateString() string {
	return task.FormatDate(o.Date)
}
