package cue

import (
	"fmt"
	"math"
	"sync"

	"lie-detector/geometry"
)

// BlushBounds are the per-channel and aggregate limits on how far the current
// cheek color may drift from the baseline and still count as blushing. All
// comparisons are strict.
type BlushBounds struct {
	MinTotal float64 `json:"min_total" yaml:"min_total"`
	MinRed   float64 `json:"min_red" yaml:"min_red"`
	MaxRed   float64 `json:"max_red" yaml:"max_red" validate:"gtfield=MinRed"`
	MinGreen float64 `json:"min_green" yaml:"min_green"`
	MaxGreen float64 `json:"max_green" yaml:"max_green" validate:"gtfield=MinGreen"`
	MinBlue  float64 `json:"min_blue" yaml:"min_blue"`
	MaxBlue  float64 `json:"max_blue" yaml:"max_blue" validate:"gtfield=MinBlue"`
}

// DefaultBlushBounds are the empirically picked limits.
func DefaultBlushBounds() BlushBounds {
	return BlushBounds{
		MinTotal: 60,
		MinRed:   10,
		MaxRed:   35,
		MinGreen: 0,
		MaxGreen: 100,
		MinBlue:  0,
		MaxBlue:  80,
	}
}

// IsBlushing compares the current cheek color against the baseline. Each
// channel's drift is taken as an absolute difference.
func IsBlushing(current, baseline geometry.Color, bounds BlushBounds) bool {
	d := current.Sub(baseline)
	dr, dg, db := math.Abs(d.R), math.Abs(d.G), math.Abs(d.B)
	return dr+dg+db > bounds.MinTotal &&
		dr > bounds.MinRed && dr < bounds.MaxRed &&
		dg > bounds.MinGreen && dg < bounds.MaxGreen &&
		db > bounds.MinBlue && db < bounds.MaxBlue
}

// BlushConfig configures a BlushDetector. A run of MinRunLength blushing
// frames counts one episode. Once a run reaches Grace frames, non-blushing
// frames no longer reset it.
type BlushConfig struct {
	MinRunLength int         `json:"min_run_length" yaml:"min_run_length" validate:"gte=1"`
	Grace        int         `json:"grace" yaml:"grace" validate:"gte=0"`
	Bounds       BlushBounds `json:"bounds" yaml:"bounds"`
}

// DefaultBlushConfig returns the stock blushing detector settings.
func DefaultBlushConfig() BlushConfig {
	return BlushConfig{MinRunLength: 50, Grace: 20, Bounds: DefaultBlushBounds()}
}

// BlushDetector counts blushing episodes against a frozen cheek baseline.
// Updates before SetBaseline are ignored.
type BlushDetector struct {
	cfg BlushConfig

	mu          sync.Mutex
	baseline    geometry.Color
	hasBaseline bool
	state       State
}

// NewBlushDetector returns a detector waiting for its baseline.
func NewBlushDetector(cfg BlushConfig) (*BlushDetector, error) {
	if cfg.MinRunLength < 1 {
		return nil, fmt.Errorf("blushing: min run length %d: %w", cfg.MinRunLength, ErrInvalidConfig)
	}
	if cfg.Grace < 0 {
		return nil, fmt.Errorf("blushing: grace %d: %w", cfg.Grace, ErrInvalidConfig)
	}
	return &BlushDetector{cfg: cfg}, nil
}

// SetBaseline freezes the resting cheek color.
func (b *BlushDetector) SetBaseline(c geometry.Color) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baseline = c
	b.hasBaseline = true
}

// Baseline returns the frozen baseline and whether it has been set.
func (b *BlushDetector) Baseline() (geometry.Color, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baseline, b.hasBaseline
}

// Update classifies one frame's cheek color and advances the run. It reports
// whether an episode was counted on this frame.
func (b *BlushDetector) Update(current geometry.Color) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasBaseline {
		return false
	}
	return b.step(IsBlushing(current, b.baseline, b.cfg.Bounds))
}

// UpdateBlushing advances the run with an already classified frame.
func (b *BlushDetector) UpdateBlushing(blushing bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasBaseline {
		return false
	}
	return b.step(blushing)
}

func (b *BlushDetector) step(blushing bool) bool {
	if blushing {
		b.state.Run++
	}
	if b.state.Run >= b.cfg.MinRunLength {
		b.state.Events++
		b.state.Run = 0
		return true
	}
	if !blushing && b.state.Run < b.cfg.Grace {
		b.state.Run = 0
	}
	return false
}

// Drain returns the episodes counted so far and resets the state.
func (b *BlushDetector) Drain() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.state.Events
	b.state = State{}
	return events
}

// Snapshot returns a copy of the current state.
func (b *BlushDetector) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
