package model

import (
	"fmt"

	"github.com/tempcast/tempcast/internal/weather"
)

// Prediction is the next-day temperature range in Celsius.
type Prediction struct {
	TempMin       float64
	TempMean      float64
	TempMax       float64
	ModelID       string
	TrainingPairs int
}

// Pipeline standardizes a training window, fits a fresh regressor and
// predicts the day after the last observation. Nothing is retained between
// calls, so a Pipeline is safe for concurrent use.
type Pipeline struct {
	strategy Strategy
}

// NewPipeline returns a pipeline for the given strategy.
func NewPipeline(s Strategy) (*Pipeline, error) {
	if _, err := ParseStrategy(string(s)); err != nil {
		return nil, err
	}
	return &Pipeline{strategy: s}, nil
}

// Strategy returns the configured model strategy.
func (p *Pipeline) Strategy() Strategy {
	return p.strategy
}

// Forecast fits on obs and predicts the following day.
func (p *Pipeline) Forecast(obs []*weather.DailyObservation) (Prediction, error) {
	ds := BuildDataset(obs)
	if ds.Pairs() < MinTrainingPairs {
		return Prediction{}, fmt.Errorf("%w: %d usable pairs, need %d", ErrInsufficientHistory, ds.Pairs(), MinTrainingPairs)
	}

	var xs, ys StandardScaler
	X, err := xs.FitTransform(ds.X)
	if err != nil {
		return Prediction{}, fmt.Errorf("scale features: %w", err)
	}
	Y, err := ys.FitTransform(ds.Y)
	if err != nil {
		return Prediction{}, fmt.Errorf("scale targets: %w", err)
	}

	reg, err := New(p.strategy)
	if err != nil {
		return Prediction{}, err
	}
	if err := reg.Fit(X, Y); err != nil {
		return Prediction{}, fmt.Errorf("fit %s: %w", reg.ID(), err)
	}

	in, err := xs.Transform([][]float64{ds.Input})
	if err != nil {
		return Prediction{}, fmt.Errorf("scale input: %w", err)
	}
	out, err := reg.Predict(in)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict %s: %w", reg.ID(), err)
	}
	pred, err := ys.InverseTransform(out)
	if err != nil {
		return Prediction{}, fmt.Errorf("unscale prediction: %w", err)
	}

	return Prediction{
		TempMin:       pred[0][0],
		TempMean:      pred[0][1],
		TempMax:       pred[0][2],
		ModelID:       reg.ID(),
		TrainingPairs: ds.Pairs(),
	}, nil
}
