// Package cue holds the debounce state machines that turn per-frame ratios
// into counted behavioral events (blinks, lip pursing, blushing episodes).
package cue

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidConfig is returned for a non-positive run length or a negative
// grace window.
var ErrInvalidConfig = errors.New("invalid detector config")

// Config is the immutable part of a detector: a ratio below Threshold is an
// active frame, and an active run must last MinRunLength frames to count.
type Config struct {
	Threshold    float64 `json:"threshold" yaml:"threshold"`
	MinRunLength int     `json:"min_run_length" yaml:"min_run_length"`
}

// State is the detector's mutable part.
type State struct {
	Run    int `json:"run"`
	Events int `json:"events"`
}

// Detector counts runs of consecutive below-threshold ratios. It stays inert
// until Configure is called.
type Detector struct {
	name string

	mu         sync.Mutex
	cfg        Config
	configured bool
	state      State
}

// NewDetector returns an unconfigured detector.
func NewDetector(name string) *Detector {
	return &Detector{name: name}
}

// Name identifies the cue the detector counts.
func (d *Detector) Name() string { return d.name }

// Configure replaces the detector's config. State is kept.
func (d *Detector) Configure(cfg Config) error {
	if cfg.MinRunLength < 1 {
		return fmt.Errorf("%s: min run length %d: %w", d.name, cfg.MinRunLength, ErrInvalidConfig)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.configured = true
	return nil
}

// Config returns the current config and whether one has been set.
func (d *Detector) Config() (Config, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, d.configured
}

// Update feeds one frame's ratio and reports whether it closed a qualifying
// run, i.e. whether an event was counted on this frame.
func (d *Detector) Update(ratio float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.configured {
		return false
	}

	if ratio < d.cfg.Threshold {
		d.state.Run++
		return false
	}

	counted := d.state.Run >= d.cfg.MinRunLength
	if counted {
		d.state.Events++
	}
	d.state.Run = 0
	return counted
}

// Drain returns the events counted so far and resets the detector state.
func (d *Detector) Drain() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := d.state.Events
	d.state = State{}
	return events
}

// Snapshot returns a copy of the current state.
func (d *Detector) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
