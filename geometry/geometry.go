// Package geometry computes the per-frame ratios and colors the cue
// detectors consume: eye aspect ratio, lips aspect ratio and the mean color
// of the cheek regions.
package geometry

import (
	"errors"
	"fmt"

	"lie-detector/landmarks"
)

// ErrDegenerateGeometry is returned when a reference distance is zero, so a
// ratio cannot be formed. Callers skip the frame's ratio update.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// SmileSentinel is returned by LipsAspectRatio when the smile guard trips.
// It sits far above any pursing threshold so the frame never counts.
const SmileSentinel = 5.0

// SmileGapLimit is the inner-lip gap (|m14 m18|) above which the mouth is
// considered open or smiling.
const SmileGapLimit = 3.0

// lipPairs are the upper/lower lip thickness pairs in mouth-local indices.
var lipPairs = [6][2]int{{2, 13}, {3, 14}, {4, 15}, {8, 17}, {9, 18}, {10, 19}}

// EyeAspectRatio returns (|p1p5| + |p2p4|) / (2 |p0p3|) for a six point eye.
func EyeAspectRatio(eye []landmarks.Point) (float64, error) {
	if len(eye) < landmarks.EyePointCount {
		return 0, fmt.Errorf("eye has %d points: %w", len(eye), ErrDegenerateGeometry)
	}

	width := landmarks.Dist(eye[0], eye[3])
	if width == 0 {
		return 0, fmt.Errorf("zero eye width: %w", ErrDegenerateGeometry)
	}

	a := landmarks.Dist(eye[1], eye[5])
	b := landmarks.Dist(eye[2], eye[4])
	return (a + b) / (2.0 * width), nil
}

// BothEyesAspectRatio averages the EAR of the left and right eye.
func BothEyesAspectRatio(frame landmarks.Frame) (float64, error) {
	left, err := EyeAspectRatio(frame.LeftEye())
	if err != nil {
		return 0, fmt.Errorf("left eye: %w", err)
	}
	right, err := EyeAspectRatio(frame.RightEye())
	if err != nil {
		return 0, fmt.Errorf("right eye: %w", err)
	}
	return (left + right) / 2.0, nil
}

// LipsAspectRatio measures lip thickness against mouth width over the twenty
// mouth points. Small values mean pursed lips.
//
// With smileGuard set, an inner-lip gap above SmileGapLimit short-circuits to
// SmileSentinel before the width is checked.
func LipsAspectRatio(mouth []landmarks.Point, smileGuard bool) (float64, error) {
	if len(mouth) < landmarks.MouthPoints {
		return 0, fmt.Errorf("mouth has %d points: %w", len(mouth), ErrDegenerateGeometry)
	}

	if smileGuard && landmarks.Dist(mouth[14], mouth[18]) > SmileGapLimit {
		return SmileSentinel, nil
	}

	width := landmarks.Dist(mouth[0], mouth[6])
	if width == 0 {
		return 0, fmt.Errorf("zero mouth width: %w", ErrDegenerateGeometry)
	}

	var thickness float64
	for _, p := range lipPairs {
		thickness += landmarks.Dist(mouth[p[0]], mouth[p[1]])
	}
	return thickness / (float64(len(lipPairs)) * width), nil
}

// FrameLipsAspectRatio is LipsAspectRatio over a frame's mouth points.
func FrameLipsAspectRatio(frame landmarks.Frame, smileGuard bool) (float64, error) {
	return LipsAspectRatio(frame.Mouth(), smileGuard)
}
