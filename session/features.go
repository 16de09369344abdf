package session

import (
	"errors"
	"fmt"
	"strings"

	"lie-detector/person"
)

// Feature column names understood in a dataset header.
const (
	FeatureBaselineBlinkRate  = "baseline_blink_rate"
	FeatureBlinkRate          = "blink_rate"
	FeatureLipPursingCount    = "lip_pursing_count"
	FeatureBlushingCount      = "blushing_count"
	FeatureEyeRatio           = "eye_ratio"
	FeatureLipsRatio          = "lips_ratio"
	FeatureBaselineLipPursing = "baseline_lip_pursing"
)

// KnownFeatures lists every projectable feature.
var KnownFeatures = []string{
	FeatureBaselineBlinkRate,
	FeatureBlinkRate,
	FeatureLipPursingCount,
	FeatureBlushingCount,
	FeatureEyeRatio,
	FeatureLipsRatio,
	FeatureBaselineLipPursing,
}

// ErrUnknownFeature is returned when a dataset column has no session stat.
var ErrUnknownFeature = errors.New("unknown feature column")

// Stats are the statistics gathered for one checkpoint.
type Stats struct {
	Blinks             int
	BlinkRate          float64
	LipPursingCount    int
	BlushingCount      int
	Baseline           person.Baseline
	BaselineBlinkRate  float64
	BaselineLipPursing int
}

func (s Stats) value(feature string) float64 {
	switch feature {
	case FeatureBaselineBlinkRate:
		return s.BaselineBlinkRate
	case FeatureBlinkRate:
		return s.BlinkRate
	case FeatureLipPursingCount:
		return float64(s.LipPursingCount)
	case FeatureBlushingCount:
		return float64(s.BlushingCount)
	case FeatureEyeRatio:
		return s.Baseline.EyeRatio
	case FeatureLipsRatio:
		return s.Baseline.LipsRatio
	case FeatureBaselineLipPursing:
		return float64(s.BaselineLipPursing)
	}
	return 0
}

// Projector maps Stats onto a dataset's feature columns, in header order.
type Projector struct {
	columns []string
}

// NewProjector checks that every column names a known feature.
func NewProjector(columns []string) (Projector, error) {
	if len(columns) == 0 {
		return Projector{}, fmt.Errorf("%w: dataset has no feature columns", ErrUnknownFeature)
	}
	normalized := make([]string, len(columns))
	for i, col := range columns {
		name := strings.ToLower(strings.TrimSpace(col))
		if !isKnownFeature(name) {
			return Projector{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownFeature, col, strings.Join(KnownFeatures, ", "))
		}
		normalized[i] = name
	}
	return Projector{columns: normalized}, nil
}

func isKnownFeature(name string) bool {
	for _, f := range KnownFeatures {
		if f == name {
			return true
		}
	}
	return false
}

// Columns returns the projected feature names.
func (p Projector) Columns() []string {
	return append([]string(nil), p.columns...)
}

// Project builds the feature vector for s.
func (p Projector) Project(s Stats) []float64 {
	vec := make([]float64, len(p.columns))
	for i, col := range p.columns {
		vec[i] = s.value(col)
	}
	return vec
}
