// Package person keeps the per-subject baseline: averaged eye and lips
// ratios, resting cheek color and the blink and lip-pursing rates measured
// during calibration.
package person

import "lie-detector/geometry"

// Baseline is the subject's resting profile.
type Baseline struct {
	EyeRatio   float64        `json:"eye_ratio" bson:"eye_ratio"`
	LipsRatio  float64        `json:"lips_ratio" bson:"lips_ratio"`
	CheekColor geometry.Color `json:"cheek_color" bson:"cheek_color"`
}

// Person aggregates the subject's baseline over a session. It is owned by a
// single session and not safe for concurrent use.
type Person struct {
	Baseline           Baseline
	BaselineBlinkRate  float64
	BaselineLipPursing int
}

// New returns an empty profile.
func New() *Person {
	return &Person{}
}

// UpdateRunningAverage folds sample into current. A zero current means no
// sample has been seen yet.
func UpdateRunningAverage(current, sample float64) float64 {
	if current == 0 {
		return sample
	}
	return (current + sample) / 2.0
}

// UpdateRunningColor applies UpdateRunningAverage channel-wise; the zero
// sentinel is all three channels being zero.
func UpdateRunningColor(current, sample geometry.Color) geometry.Color {
	if current.IsZero() {
		return sample
	}
	return current.Mean(sample)
}

// DeriveRatePerSecond returns count/elapsed, or count when no time elapsed.
func DeriveRatePerSecond(count int, elapsedSeconds float64) float64 {
	if elapsedSeconds > 0 {
		return float64(count) / elapsedSeconds
	}
	return float64(count)
}

// AddEyeRatio folds one frame's EAR into the baseline.
func (p *Person) AddEyeRatio(ratio float64) {
	p.Baseline.EyeRatio = UpdateRunningAverage(p.Baseline.EyeRatio, ratio)
}

// AddLipsRatio folds one frame's LAR into the baseline.
func (p *Person) AddLipsRatio(ratio float64) {
	p.Baseline.LipsRatio = UpdateRunningAverage(p.Baseline.LipsRatio, ratio)
}

// AddCheekColor folds one frame's cheek color into the baseline.
func (p *Person) AddCheekColor(c geometry.Color) {
	p.Baseline.CheekColor = UpdateRunningColor(p.Baseline.CheekColor, c)
}

// SetBaselineBlinkRate stores count/seconds. Non-positive inputs leave the
// previous value untouched.
func (p *Person) SetBaselineBlinkRate(count int, seconds float64) {
	if count > 0 && seconds > 0 {
		p.BaselineBlinkRate = float64(count) / seconds
	}
}

// SetBaselineLipPursing stores the lip-pursing count seen during calibration.
func (p *Person) SetBaselineLipPursing(count int) {
	p.BaselineLipPursing = count
}
