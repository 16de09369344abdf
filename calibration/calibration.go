// Package calibration decides, frame by frame, which part of the session
// pipeline runs: baseline averaging, threshold derivation, baseline event
// counting, the baseline freeze, and finally full detection.
package calibration

import (
	"errors"
	"fmt"

	"lie-detector/cue"
	"lie-detector/person"
)

// ErrInvalidSchedule is returned by Validate for inconsistent frame counts.
var ErrInvalidSchedule = errors.New("invalid calibration schedule")

// Phase is the pipeline stage for one face-bearing frame.
type Phase int

const (
	// PhaseAveraging folds EAR and LAR into the baseline averages.
	PhaseAveraging Phase = iota
	// PhaseThresholds derives the blink and lip thresholds from the averages.
	PhaseThresholds
	// PhaseBaselineCounting runs the blink and lip detectors to measure the
	// subject's resting event rates.
	PhaseBaselineCounting
	// PhaseFreeze hands the cheek baseline to the blush detector and records
	// the baseline rates.
	PhaseFreeze
	// PhaseDetecting runs every detector.
	PhaseDetecting
)

func (p Phase) String() string {
	switch p {
	case PhaseAveraging:
		return "averaging"
	case PhaseThresholds:
		return "thresholds"
	case PhaseBaselineCounting:
		return "baseline_counting"
	case PhaseFreeze:
		return "freeze"
	case PhaseDetecting:
		return "detecting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Schedule holds the frame counts and threshold factors. The stock values
// are empirical, not derived.
type Schedule struct {
	// AveragingFrames (K1) is the number of frames averaged for EAR and LAR.
	AveragingFrames int `json:"averaging_frames" yaml:"averaging_frames" validate:"gte=1"`
	// ThresholdFrames (K2) is the number of frames spent deriving thresholds.
	ThresholdFrames int `json:"threshold_frames" yaml:"threshold_frames" validate:"gte=1"`
	// BaselineFrame (K3) is the frame at which the baselines are frozen.
	BaselineFrame int `json:"baseline_frame" yaml:"baseline_frame" validate:"gte=3"`

	BlinkFactor    float64 `json:"blink_factor" yaml:"blink_factor" validate:"gt=0"`
	BlinkRunLength int     `json:"blink_run_length" yaml:"blink_run_length" validate:"gte=1"`
	LipsFactor     float64 `json:"lips_factor" yaml:"lips_factor" validate:"gt=0"`
	LipsRunLength  int     `json:"lips_run_length" yaml:"lips_run_length" validate:"gte=1"`
}

// DefaultSchedule returns K1=24, K2=3, K3=300 with the stock factors.
func DefaultSchedule() Schedule {
	return Schedule{
		AveragingFrames: 24,
		ThresholdFrames: 3,
		BaselineFrame:   300,
		BlinkFactor:     0.7,
		BlinkRunLength:  1,
		LipsFactor:      0.8,
		LipsRunLength:   4,
	}
}

// Validate checks the phases are ordered: averaging and threshold derivation
// must end before the baseline freeze.
func (s Schedule) Validate() error {
	if s.AveragingFrames < 1 || s.ThresholdFrames < 1 {
		return fmt.Errorf("averaging %d / threshold %d frames: %w", s.AveragingFrames, s.ThresholdFrames, ErrInvalidSchedule)
	}
	if s.AveragingFrames+s.ThresholdFrames >= s.BaselineFrame {
		return fmt.Errorf("baseline frame %d must come after frame %d: %w",
			s.BaselineFrame, s.AveragingFrames+s.ThresholdFrames, ErrInvalidSchedule)
	}
	if s.BlinkRunLength < 1 || s.LipsRunLength < 1 {
		return fmt.Errorf("run lengths must be positive: %w", ErrInvalidSchedule)
	}
	return nil
}

// PhaseAt returns the phase of the n-th face-bearing frame (1-based).
func (s Schedule) PhaseAt(n int) Phase {
	switch {
	case n <= s.AveragingFrames:
		return PhaseAveraging
	case n <= s.AveragingFrames+s.ThresholdFrames:
		return PhaseThresholds
	case n < s.BaselineFrame:
		return PhaseBaselineCounting
	case n == s.BaselineFrame:
		return PhaseFreeze
	default:
		return PhaseDetecting
	}
}

// CollectsCheekColor reports whether frame n feeds the cheek color average.
// It runs independently of the other phases up to the freeze.
func (s Schedule) CollectsCheekColor(n int) bool {
	return n < s.BaselineFrame
}

// Thresholds derives the subject-relative detector configs from the
// averaged baseline.
func (s Schedule) Thresholds(b person.Baseline) (blink, lips cue.Config) {
	blink = cue.Config{Threshold: s.BlinkFactor * b.EyeRatio, MinRunLength: s.BlinkRunLength}
	lips = cue.Config{Threshold: s.LipsFactor * b.LipsRatio, MinRunLength: s.LipsRunLength}
	return blink, lips
}

// Calibrator counts face-bearing frames and maps each to its phase.
type Calibrator struct {
	schedule Schedule
	frames   int
}

// New returns a calibrator at frame zero.
func New(schedule Schedule) *Calibrator {
	return &Calibrator{schedule: schedule}
}

// Schedule returns the calibrator's schedule.
func (c *Calibrator) Schedule() Schedule { return c.schedule }

// Frames returns the number of face-bearing frames seen so far.
func (c *Calibrator) Frames() int { return c.frames }

// Next advances to the next frame and returns its number and phase.
func (c *Calibrator) Next() (int, Phase) {
	c.frames++
	return c.frames, c.schedule.PhaseAt(c.frames)
}

// Calibrated reports whether the baselines have been frozen.
func (c *Calibrator) Calibrated() bool {
	return c.frames >= c.schedule.BaselineFrame
}
