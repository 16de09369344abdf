package geometry

import (
	"image"
	"math"

	"lie-detector/landmarks"
)

// Color is a mean pixel color in B, G, R channel order, 0..255 per channel.
type Color struct {
	B float64 `json:"b" bson:"b"`
	G float64 `json:"g" bson:"g"`
	R float64 `json:"r" bson:"r"`
}

// IsZero reports whether all three channels are zero. The running averages
// treat this as "no sample yet".
func (c Color) IsZero() bool {
	return c.B == 0 && c.G == 0 && c.R == 0
}

// Mean returns the channel-wise average of c and o.
func (c Color) Mean(o Color) Color {
	return Color{B: (c.B + o.B) / 2, G: (c.G + o.G) / 2, R: (c.R + o.R) / 2}
}

// Sub returns the channel-wise difference c - o.
func (c Color) Sub(o Color) Color {
	return Color{B: c.B - o.B, G: c.G - o.G, R: c.R - o.R}
}

// MeanRegionColor fills polygon into a mask the size of img (boundary pixels
// included) and returns the mean color of the covered pixels. A polygon that
// covers no pixel yields the zero Color.
func MeanRegionColor(img image.Image, polygon []landmarks.Point) Color {
	if img == nil || len(polygon) < 3 {
		return Color{}
	}

	bounds := img.Bounds()
	minX, minY, maxX, maxY := polygonBounds(polygon)
	x0 := max(bounds.Min.X, int(math.Floor(minX)))
	y0 := max(bounds.Min.Y, int(math.Floor(minY)))
	x1 := min(bounds.Max.X-1, int(math.Ceil(maxX)))
	y1 := min(bounds.Max.Y-1, int(math.Ceil(maxY)))

	var sumB, sumG, sumR float64
	var count int
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			p := landmarks.Point{X: float64(x), Y: float64(y)}
			if !insidePolygon(polygon, p) {
				continue
			}
			r, g, b, _ := img.At(x, y).RGBA()
			sumB += float64(b >> 8)
			sumG += float64(g >> 8)
			sumR += float64(r >> 8)
			count++
		}
	}

	if count == 0 {
		return Color{}
	}
	n := float64(count)
	return Color{B: sumB / n, G: sumG / n, R: sumR / n}
}

// CheekColor averages the mean colors of the right and left cheek polygons.
func CheekColor(frame landmarks.Frame) Color {
	right := MeanRegionColor(frame.Pixels, frame.Subset(landmarks.RightCheek[:]))
	left := MeanRegionColor(frame.Pixels, frame.Subset(landmarks.LeftCheek[:]))
	return right.Mean(left)
}

func polygonBounds(polygon []landmarks.Point) (minX, minY, maxX, maxY float64) {
	minX, minY = polygon[0].X, polygon[0].Y
	maxX, maxY = minX, minY
	for _, p := range polygon[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}

// insidePolygon is an even-odd crossing test that also accepts points lying
// on an edge.
func insidePolygon(polygon []landmarks.Point, p landmarks.Point) bool {
	inside := false
	j := len(polygon) - 1
	for i := range polygon {
		a, b := polygon[i], polygon[j]
		if onSegment(a, b, p) {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xCross := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

const edgeEpsilon = 1e-9

func onSegment(a, b, p landmarks.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > edgeEpsilon {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-edgeEpsilon && p.X <= math.Max(a.X, b.X)+edgeEpsilon &&
		p.Y >= math.Min(a.Y, b.Y)-edgeEpsilon && p.Y <= math.Max(a.Y, b.Y)+edgeEpsilon
}
