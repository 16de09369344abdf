package knn

// Feature Scaling
//
// Cue features live on very different scales: blink rates are fractions of a
// blink per second while lip-pursing and blushing counts are small integers.
// With raw Euclidean distances the count columns dominate. Standardizing each
// column to mean 0 and std 1 lets every cue contribute. Scaling is opt-in so
// that the default behavior matches the plain distance on raw columns.

import (
	"errors"
	"math"
)

// FeatureScaler standardizes features using z-score normalization.
type FeatureScaler struct {
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

// NewFeatureScaler computes scaling parameters from a set of rows.
func NewFeatureScaler(rows []Row) (*FeatureScaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows provided")
	}

	featureCount := len(rows[0].Features)
	if featureCount == 0 {
		return nil, errors.New("rows have no features")
	}

	mean := make([]float64, featureCount)
	for _, row := range rows {
		if len(row.Features) != featureCount {
			return nil, errors.New("inconsistent feature dimensions")
		}
		for i, val := range row.Features {
			mean[i] += val
		}
	}
	for i := range mean {
		mean[i] /= float64(len(rows))
	}

	stddev := make([]float64, featureCount)
	for _, row := range rows {
		for i, val := range row.Features {
			diff := val - mean[i]
			stddev[i] += diff * diff
		}
	}
	for i := range stddev {
		stddev[i] = math.Sqrt(stddev[i] / float64(len(rows)))
		// constant columns pass through centred
		if stddev[i] < 1e-10 {
			stddev[i] = 1.0
		}
	}

	return &FeatureScaler{
		Mean:   mean,
		Stddev: stddev,
	}, nil
}

// Transform returns a standardized copy of features. Vectors of the wrong
// width are returned unchanged.
func (fs *FeatureScaler) Transform(features []float64) []float64 {
	if len(features) != len(fs.Mean) {
		return features
	}

	scaled := make([]float64, len(features))
	for i, val := range features {
		scaled[i] = (val - fs.Mean[i]) / fs.Stddev[i]
	}

	return scaled
}
