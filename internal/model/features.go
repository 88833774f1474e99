package model

import (
	"sort"

	"github.com/tempcast/tempcast/internal/weather"
)

// Feature and target column names, in matrix order.
var (
	FeatureNames = []string{
		"temp_min", "temp_avg", "temp_max",
		"humidity_min", "humidity_avg", "humidity_max",
		"precipitation", "day_of_year",
	}
	TargetNames = []string{"temp_min", "temp_avg", "temp_max"}
)

// Dataset is a supervised training window plus the row to predict from.
type Dataset struct {
	X [][]float64
	Y [][]float64

	// Input is the feature row of the most recent observation.
	Input []float64
}

// Pairs returns the number of supervised rows.
func (d *Dataset) Pairs() int {
	return len(d.X)
}

// BuildDataset turns daily observations into supervised pairs. Nil entries
// are skipped. A pair is formed only between observations on consecutive
// calendar days; the label is the following day's temperatures. The latest
// observation is the prediction input.
func BuildDataset(obs []*weather.DailyObservation) *Dataset {
	days := make([]*weather.DailyObservation, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			days = append(days, o)
		}
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	ds := &Dataset{}
	if len(days) == 0 {
		return ds
	}

	for i := 0; i+1 < len(days); i++ {
		cur, next := days[i], days[i+1]
		if !next.Date.Equal(cur.Date.AddDate(0, 0, 1)) {
			continue
		}
		ds.X = append(ds.X, features(cur))
		ds.Y = append(ds.Y, targets(next))
	}
	ds.Input = features(days[len(days)-1])
	return ds
}

func features(o *weather.DailyObservation) []float64 {
	return []float64{
		o.TempMin, o.TempAvg, o.TempMax,
		o.HumidityMin, o.HumidityAvg, o.HumidityMax,
		o.Precipitation, float64(o.Date.YearDay()),
	}
}

func targets(o *weather.DailyObservation) []float64 {
	return []float64{o.TempMin, o.TempAvg, o.TempMax}
}
