package cue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lie-detector/geometry"
)

func newTestDetector(t *testing.T, threshold float64, minRun int) *Detector {
	t.Helper()

	d := NewDetector("test")
	require.NoError(t, d.Configure(Config{Threshold: threshold, MinRunLength: minRun}))
	return d
}

func feed(d *Detector, ratios ...float64) {
	for _, r := range ratios {
		d.Update(r)
	}
}

func TestDetectorCountsQualifyingRun(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, 0.5, 3)
	assert.False(t, d.Update(0.1))
	assert.False(t, d.Update(0.1))
	assert.False(t, d.Update(0.1))
	assert.True(t, d.Update(0.9))

	assert.Equal(t, State{Run: 0, Events: 1}, d.Snapshot())
}

func TestDetectorIgnoresShortRun(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, 0.5, 3)
	feed(d, 0.1, 0.1, 0.9)

	assert.Equal(t, State{Run: 0, Events: 0}, d.Snapshot())
}

func TestDetectorOpenRunIsNotCounted(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, 0.5, 1)
	feed(d, 0.1, 0.1, 0.1, 0.1)

	assert.Equal(t, State{Run: 4, Events: 0}, d.Snapshot())
	assert.Equal(t, 0, d.Drain())
	assert.Equal(t, State{}, d.Snapshot())
}

func TestDetectorThresholdIsStrict(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, 0.5, 1)
	feed(d, 0.5, 0.5)
	assert.Equal(t, 0, d.Snapshot().Run)
}

func TestDrainIsIdempotentToZero(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, 0.5, 1)
	feed(d, 0.1, 0.9, 0.2, 0.9, 0.3)

	assert.Equal(t, 2, d.Drain())
	assert.Equal(t, 0, d.Drain())
}

func TestUnconfiguredDetectorIgnoresUpdates(t *testing.T) {
	t.Parallel()

	d := NewDetector("blink")
	feed(d, 0.1, 0.1, 0.9)
	assert.Equal(t, State{}, d.Snapshot())

	_, ok := d.Config()
	assert.False(t, ok)
}

func TestConfigureRejectsZeroRunLength(t *testing.T) {
	t.Parallel()

	d := NewDetector("lips")
	err := d.Configure(Config{Threshold: 0.3, MinRunLength: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestIsBlushing(t *testing.T) {
	t.Parallel()

	bounds := DefaultBlushBounds()
	base := geometry.Color{B: 100, G: 100, R: 100}

	cases := []struct {
		name    string
		current geometry.Color
		want    bool
	}{
		{"within all bounds", geometry.Color{B: 120, G: 130, R: 120}, true},
		{"red over bound despite total", geometry.Color{B: 110, G: 110, R: 145}, false},
		{"total too small", geometry.Color{B: 101, G: 101, R: 111}, false},
		{"red at lower bound", geometry.Color{B: 140, G: 140, R: 110}, false},
		{"red at upper bound", geometry.Color{B: 140, G: 140, R: 135}, false},
		{"green not positive", geometry.Color{B: 160, G: 100, R: 120}, false},
		{"blue at upper bound", geometry.Color{B: 180, G: 110, R: 120}, false},
		{"darker on every channel", geometry.Color{B: 80, G: 70, R: 80}, true},
		{"mixed drift", geometry.Color{B: 80, G: 160, R: 120}, true},
		{"red darker beyond bound", geometry.Color{B: 120, G: 130, R: 60}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsBlushing(tc.current, base, bounds), tc.name)
	}

	assert.False(t, IsBlushing(geometry.Color{B: 0, G: 0, R: 45}, geometry.Color{}, bounds))
}

func newTestBlush(t *testing.T, minRun, grace int) *BlushDetector {
	t.Helper()

	b, err := NewBlushDetector(BlushConfig{MinRunLength: minRun, Grace: grace, Bounds: DefaultBlushBounds()})
	require.NoError(t, err)
	b.SetBaseline(geometry.Color{B: 100, G: 100, R: 100})
	return b
}

func feedBlush(b *BlushDetector, blushing bool, n int) {
	for i := 0; i < n; i++ {
		b.UpdateBlushing(blushing)
	}
}

func TestBlushDetectorCountsLongRun(t *testing.T) {
	t.Parallel()

	b := newTestBlush(t, 50, 20)
	feedBlush(b, true, 49)
	assert.Equal(t, 49, b.Snapshot().Run)
	assert.True(t, b.UpdateBlushing(true))
	assert.Equal(t, State{Run: 0, Events: 1}, b.Snapshot())
}

func TestBlushDetectorShortRunResets(t *testing.T) {
	t.Parallel()

	b := newTestBlush(t, 50, 20)
	feedBlush(b, true, 19)
	b.UpdateBlushing(false)
	assert.Equal(t, 0, b.Snapshot().Run)
}

func TestBlushDetectorAbsorbsFlicker(t *testing.T) {
	t.Parallel()

	b := newTestBlush(t, 50, 20)
	feedBlush(b, true, 20)
	feedBlush(b, false, 5)
	assert.Equal(t, 20, b.Snapshot().Run)

	feedBlush(b, true, 30)
	assert.Equal(t, 1, b.Drain())
	assert.Equal(t, 0, b.Drain())
}

func TestBlushDetectorWaitsForBaseline(t *testing.T) {
	t.Parallel()

	b, err := NewBlushDetector(DefaultBlushConfig())
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		assert.False(t, b.Update(geometry.Color{B: 120, G: 130, R: 120}))
	}
	assert.Equal(t, State{}, b.Snapshot())

	b.SetBaseline(geometry.Color{B: 100, G: 100, R: 100})
	for i := 0; i < 50; i++ {
		b.Update(geometry.Color{B: 120, G: 130, R: 120})
	}
	assert.Equal(t, 1, b.Drain())
}

func TestNewBlushDetectorRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewBlushDetector(BlushConfig{MinRunLength: 0, Bounds: DefaultBlushBounds()})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBlushDetector(BlushConfig{MinRunLength: 5, Grace: -1, Bounds: DefaultBlushBounds()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
