// Package landmarks describes the 68-point facial landmark frames consumed by
// the cue detectors and the sources that produce them.
package landmarks

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

// Index ranges of the 68-point iBUG/dlib layout (end exclusive).
const (
	JawStart       = 0
	JawEnd         = 17
	RightEyeStart  = 36
	RightEyeEnd    = 42
	LeftEyeStart   = 42
	LeftEyeEnd     = 48
	MouthStart     = 48
	MouthEnd       = 68
	NumLandmarks   = 68
	EyePointCount  = RightEyeEnd - RightEyeStart
	MouthPoints    = MouthEnd - MouthStart
	CheekPointsLen = 7
)

// Cheek polygons, as absolute landmark indices.
var (
	RightCheek = [CheekPointsLen]int{1, 2, 3, 4, 48, 31, 36}
	LeftCheek  = [CheekPointsLen]int{12, 13, 14, 15, 45, 35, 54}
)

// ErrNoFace is returned by a Source when a frame carried no detectable face.
// Callers skip such frames; it is not a failure.
var ErrNoFace = errors.New("no face detected in frame")

// Point is a 2D landmark coordinate in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt builds a Point from integer pixel coordinates.
func Pt(x, y int) Point {
	return Point{X: float64(x), Y: float64(y)}
}

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Frame is one video frame's landmark set together with its pixel buffer.
// Frames are immutable once produced; consumers only borrow them.
type Frame struct {
	Index  int
	Points []Point
	Pixels image.Image
}

// Validate checks the frame carries a complete landmark set.
func (f Frame) Validate() error {
	if len(f.Points) != NumLandmarks {
		return fmt.Errorf("frame %d has %d landmarks, expected %d", f.Index, len(f.Points), NumLandmarks)
	}
	return nil
}

// RightEye returns the six right-eye points.
func (f Frame) RightEye() []Point { return f.Points[RightEyeStart:RightEyeEnd] }

// LeftEye returns the six left-eye points.
func (f Frame) LeftEye() []Point { return f.Points[LeftEyeStart:LeftEyeEnd] }

// Mouth returns the twenty mouth points.
func (f Frame) Mouth() []Point { return f.Points[MouthStart:MouthEnd] }

// Subset picks points by absolute index, in the given order.
func (f Frame) Subset(indices []int) []Point {
	out := make([]Point, len(indices))
	for i, idx := range indices {
		out[i] = f.Points[idx]
	}
	return out
}

// Source yields frames in arrival order. Next returns io.EOF once the
// stream is exhausted and ErrNoFace for frames that must be skipped.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}
