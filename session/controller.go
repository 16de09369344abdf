// Package session runs one subject's analysis: it feeds landmark frames
// through calibration and the cue detectors and, at each question
// checkpoint, classifies the accumulated statistics.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"

	"lie-detector/calibration"
	"lie-detector/cue"
	"lie-detector/db"
	"lie-detector/geometry"
	"lie-detector/knn"
	"lie-detector/landmarks"
	"lie-detector/metrics"
	"lie-detector/models"
	"lie-detector/person"
	"lie-detector/utils"
)

// ErrSessionClosed is returned for frames or checkpoints after Close.
var ErrSessionClosed = errors.New("session closed")

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now for elapsed-time measurements.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithStore persists every checkpoint report.
func WithStore(store db.ReportStore) Option {
	return func(c *Controller) { c.store = store }
}

// WithSessionID sets the session identifier instead of a random UUID.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// WithLogger replaces the process logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// Progress describes where a session stands.
type Progress struct {
	SessionID  string `json:"sessionId"`
	Frames     int    `json:"frames"`
	Phase      string `json:"phase"`
	Calibrated bool   `json:"calibrated"`
	Questions  int    `json:"questions"`
}

// Controller owns one session's state. Its methods are serialized, so a
// transport may call them from different goroutines, but frames must still
// arrive in order.
type Controller struct {
	mu sync.Mutex

	id         string
	tuning     Tuning
	classifier *knn.Classifier
	projector  Projector
	store      db.ReportStore
	logger     *slog.Logger
	now        func() time.Time

	calibrator *calibration.Calibrator
	person     *person.Person
	blink      *cue.Detector
	lips       *cue.Detector
	blush      *cue.BlushDetector

	phase          calibration.Phase
	lastCheckpoint time.Time
	question       int
	closed         bool
}

// New builds a session bound to classifier. The classifier's dataset columns
// decide the feature vector layout; an unknown column is an error.
func New(tuning Tuning, classifier *knn.Classifier, opts ...Option) (*Controller, error) {
	if classifier == nil {
		return nil, errors.New("session needs a classifier")
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	projector, err := NewProjector(classifier.Columns())
	if err != nil {
		return nil, err
	}
	blush, err := cue.NewBlushDetector(tuning.Blush)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		tuning:     tuning,
		classifier: classifier,
		projector:  projector,
		now:        time.Now,
		calibrator: calibration.New(tuning.Schedule),
		person:     person.New(),
		blink:      cue.NewDetector("blink"),
		lips:       cue.NewDetector("lip_pursing"),
		blush:      blush,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	if c.logger == nil {
		c.logger = utils.GetLogger()
	}
	c.logger = c.logger.With("session", c.id)
	c.lastCheckpoint = c.now()

	return c, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Progress returns a snapshot of the session's position.
func (c *Controller) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Progress{
		SessionID:  c.id,
		Frames:     c.calibrator.Frames(),
		Phase:      c.phase.String(),
		Calibrated: c.calibrator.Calibrated(),
		Questions:  c.question,
	}
}

// Baseline returns the subject's current baseline.
func (c *Controller) Baseline() person.Baseline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.person.Baseline
}

// ProcessFrame runs one face-bearing frame through the pipeline. Degenerate
// geometry skips the affected ratio update and is not an error.
func (c *Controller) ProcessFrame(frame landmarks.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionClosed
	}
	if err := frame.Validate(); err != nil {
		metrics.FramesSkipped.WithLabelValues(metrics.SkipInvalid).Inc()
		return err
	}

	n, phase := c.calibrator.Next()
	c.phase = phase
	metrics.FramesProcessed.WithLabelValues(phase.String()).Inc()

	switch phase {
	case calibration.PhaseAveraging:
		c.averageRatios(frame)
	case calibration.PhaseThresholds:
		if err := c.deriveThresholds(); err != nil {
			return err
		}
	case calibration.PhaseBaselineCounting:
		c.detectEyesAndLips(frame)
	case calibration.PhaseFreeze:
		c.freezeBaseline()
	case calibration.PhaseDetecting:
		c.detectEyesAndLips(frame)
		if frame.Pixels != nil {
			if color := geometry.CheekColor(frame); !color.IsZero() && c.blush.Update(color) {
				metrics.CueEvents.WithLabelValues("blushing").Inc()
			}
		}
	}

	if c.tuning.Schedule.CollectsCheekColor(n) && frame.Pixels != nil {
		// an empty mask yields no sample
		if color := geometry.CheekColor(frame); !color.IsZero() {
			c.person.AddCheekColor(color)
		}
	}

	return nil
}

func (c *Controller) averageRatios(frame landmarks.Frame) {
	if ear, err := geometry.BothEyesAspectRatio(frame); err == nil {
		c.person.AddEyeRatio(ear)
	} else {
		c.skipDegenerate(frame, "eye", err)
	}
	if lar, err := geometry.FrameLipsAspectRatio(frame, false); err == nil {
		c.person.AddLipsRatio(lar)
	} else {
		c.skipDegenerate(frame, "lips", err)
	}
}

func (c *Controller) deriveThresholds() error {
	blink, lips := c.tuning.Schedule.Thresholds(c.person.Baseline)
	if err := c.blink.Configure(blink); err != nil {
		return err
	}
	return c.lips.Configure(lips)
}

func (c *Controller) detectEyesAndLips(frame landmarks.Frame) {
	if ear, err := geometry.BothEyesAspectRatio(frame); err == nil {
		if c.blink.Update(ear) {
			metrics.CueEvents.WithLabelValues("blink").Inc()
		}
	} else {
		c.skipDegenerate(frame, "eye", err)
	}

	if lar, err := geometry.FrameLipsAspectRatio(frame, c.tuning.SmileGuard); err == nil {
		if c.lips.Update(lar) {
			metrics.CueEvents.WithLabelValues("lip_pursing").Inc()
		}
	} else {
		c.skipDegenerate(frame, "lips", err)
	}
}

func (c *Controller) skipDegenerate(frame landmarks.Frame, region string, err error) {
	metrics.FramesSkipped.WithLabelValues(metrics.SkipDegenerate).Inc()
	c.logger.Debug("ratio update skipped", "frame", frame.Index, "region", region, "error", err)
}

func (c *Controller) freezeBaseline() {
	c.blush.SetBaseline(c.person.Baseline.CheekColor)

	elapsed := c.now().Sub(c.lastCheckpoint).Seconds()
	c.person.SetBaselineBlinkRate(c.blink.Drain(), elapsed)
	c.person.SetBaselineLipPursing(c.lips.Drain())

	c.logger.Info("baseline frozen",
		"eye_ratio", c.person.Baseline.EyeRatio,
		"lips_ratio", c.person.Baseline.LipsRatio,
		"cheek_color", c.person.Baseline.CheekColor,
		"baseline_blink_rate", c.person.BaselineBlinkRate,
		"baseline_lip_pursing", c.person.BaselineLipPursing)
}

// Checkpoint closes the current question: it derives the blink rate since
// the previous checkpoint, classifies the statistics, drains the detectors
// and stores the report. A classification failure leaves the counts in
// place. A storage failure is returned alongside the complete report.
func (c *Controller) Checkpoint(ctx context.Context) (models.CheckpointReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return models.CheckpointReport{}, ErrSessionClosed
	}
	return c.checkpoint(ctx, false)
}

// Close produces the final checkpoint and ends the session.
func (c *Controller) Close(ctx context.Context) (models.CheckpointReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return models.CheckpointReport{}, ErrSessionClosed
	}
	c.closed = true
	return c.checkpoint(ctx, true)
}

func (c *Controller) checkpoint(ctx context.Context, final bool) (models.CheckpointReport, error) {
	started := time.Now()
	defer func() { metrics.CheckpointDuration.Observe(time.Since(started).Seconds()) }()

	// counts are drained only once the question has been classified
	blinks := c.blink.Snapshot().Events
	blushing := c.blush.Snapshot().Events
	pursing := c.lips.Snapshot().Events

	now := c.now()
	elapsed := now.Sub(c.lastCheckpoint).Seconds()
	stats := Stats{
		Blinks:             blinks,
		BlinkRate:          person.DeriveRatePerSecond(blinks, elapsed),
		LipPursingCount:    pursing,
		BlushingCount:      blushing,
		Baseline:           c.person.Baseline,
		BaselineBlinkRate:  c.person.BaselineBlinkRate,
		BaselineLipPursing: c.person.BaselineLipPursing,
	}
	features := c.projector.Project(stats)

	prediction, err := c.classifier.Predict(features)
	if err != nil {
		return models.CheckpointReport{}, fmt.Errorf("classify checkpoint: %w", err)
	}
	c.blink.Drain()
	c.blush.Drain()
	c.lips.Drain()

	c.question++
	c.lastCheckpoint = now

	report := models.CheckpointReport{
		SessionID:       c.id,
		Question:        c.question,
		Blinks:          blinks,
		BlinkRate:       stats.BlinkRate,
		BlushingCount:   blushing,
		LipPursingCount: pursing,
		ElapsedSeconds:  elapsed,
		Features:        features,
		PredictedLabel:  prediction.Label,
		Confidence:      prediction.Confidence,
		Calibrated:      c.calibrator.Calibrated(),
		Final:           final,
		CreatedAt:       now.UTC(),
	}
	if c.question == 1 {
		b := c.person.Baseline
		report.Baseline = &models.BaselineReport{
			EyeRatio:       b.EyeRatio,
			LipsRatio:      b.LipsRatio,
			CheekColor:     [3]float64{b.CheekColor.B, b.CheekColor.G, b.CheekColor.R},
			BlinkRate:      c.person.BaselineBlinkRate,
			LipPursing:     c.person.BaselineLipPursing,
			CalibrationEnd: c.tuning.Schedule.BaselineFrame,
		}
	}

	metrics.Predictions.WithLabelValues(prediction.Label).Inc()
	c.logger.Info("checkpoint",
		"question", report.Question,
		"blinks", blinks,
		"blink_rate", report.BlinkRate,
		"blushing", blushing,
		"lip_pursing", pursing,
		"predicted", prediction.Label,
		"final", final)

	if c.store != nil {
		if err := c.store.StoreCheckpoint(ctx, &report); err != nil {
			c.logger.ErrorContext(ctx, "failed to store checkpoint", slog.Any("error", xerrors.New(err)))
			return report, fmt.Errorf("store checkpoint: %w", err)
		}
	}

	return report, nil
}

// Run drains src into the session. checkpointAt is consulted for every
// frame index, including frames without a face, and triggers a checkpoint
// after that frame. The final checkpoint is produced when src is exhausted.
func (c *Controller) Run(ctx context.Context, src landmarks.Source, checkpointAt func(index int) bool) ([]models.CheckpointReport, error) {
	var reports []models.CheckpointReport

	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		switch {
		case errors.Is(err, landmarks.ErrNoFace):
			metrics.FramesSkipped.WithLabelValues(metrics.SkipNoFace).Inc()
		case err != nil:
			return reports, err
		default:
			if err := c.ProcessFrame(frame); err != nil {
				return reports, fmt.Errorf("frame %d: %w", frame.Index, err)
			}
		}

		if checkpointAt != nil && checkpointAt(frame.Index) {
			report, err := c.Checkpoint(ctx)
			if err != nil {
				return reports, err
			}
			reports = append(reports, report)
		}
	}

	report, err := c.Close(ctx)
	if err != nil {
		return reports, err
	}
	return append(reports, report), nil
}
