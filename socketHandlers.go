package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"sync"

	"lie-detector/capture"
	"lie-detector/db"
	"lie-detector/knn"
	"lie-detector/landmarks"
	"lie-detector/metrics"
	"lie-detector/models"
	"lie-detector/session"
	"lie-detector/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

// progressEvery is how often, in frames, a progress event is pushed.
const progressEvery = 30

type startSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type frameResult struct {
	Skipped  bool             `json:"skipped"`
	Progress session.Progress `json:"progress"`
}

type socketController struct {
	tuning     session.Tuning
	classifier *knn.Classifier
	store      db.ReportStore
	detector   capture.Detector

	mu       sync.Mutex
	sessions map[string]*session.Controller
}

func newSocketController(tuning session.Tuning, classifier *knn.Classifier, store db.ReportStore, detector capture.Detector) *socketController {
	return &socketController{
		tuning:     tuning,
		classifier: classifier,
		store:      store,
		detector:   detector,
		sessions:   make(map[string]*session.Controller),
	}
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	socket.Emit("modelInfo", c.classifier.Stats())
}

func (c *socketController) lookup(socketID string) (*session.Controller, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctrl, ok := c.sessions[socketID]
	return ctrl, ok
}

func (c *socketController) detach(socketID string) (*session.Controller, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctrl, ok := c.sessions[socketID]
	if ok {
		delete(c.sessions, socketID)
		metrics.ActiveSessions.Dec()
	}
	return ctrl, ok
}

// startSession binds a fresh session to socketID. An open session on the same
// socket is closed first, producing its final checkpoint.
func (c *socketController) startSession(ctx context.Context, socketID, payload string) (session.Progress, error) {
	var req startSessionRequest
	if strings.TrimSpace(payload) != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return session.Progress{}, fmt.Errorf("invalid session payload: %w", err)
		}
	}

	opts := []session.Option{session.WithSessionID(req.SessionID)}
	if c.store != nil {
		opts = append(opts, session.WithStore(c.store))
	}
	ctrl, err := session.New(c.tuning, c.classifier, opts...)
	if err != nil {
		return session.Progress{}, err
	}

	if previous, ok := c.detach(socketID); ok {
		if _, err := previous.Close(ctx); err != nil && !errors.Is(err, session.ErrSessionClosed) {
			utils.GetLogger().WarnContext(ctx, "failed to close replaced session",
				slog.String("session", previous.ID()), slog.Any("error", err))
		}
	}

	c.mu.Lock()
	c.sessions[socketID] = ctrl
	c.mu.Unlock()
	metrics.ActiveSessions.Inc()

	return ctrl.Progress(), nil
}

// decodeFrame turns a socket payload into a landmark frame. Points sent by
// the client win; otherwise the image goes through the landmark detector.
func (c *socketController) decodeFrame(ctx context.Context, payload string) (landmarks.Frame, error) {
	var rec models.RecordData
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return landmarks.Frame{}, fmt.Errorf("invalid frame payload: %w", err)
	}

	frame := landmarks.Frame{Index: rec.Index}
	if len(rec.Points) > 0 {
		frame.Points = make([]landmarks.Point, len(rec.Points))
		for i, p := range rec.Points {
			frame.Points[i] = landmarks.Point{X: p[0], Y: p[1]}
		}
	}

	if rec.Image == "" {
		if frame.Points == nil {
			return landmarks.Frame{}, errors.New("frame carries neither points nor image")
		}
		return frame, nil
	}

	data, err := base64.StdEncoding.DecodeString(stripDataURL(rec.Image))
	if err != nil {
		return landmarks.Frame{}, fmt.Errorf("invalid image encoding: %w", err)
	}

	width := capture.DefaultWidth
	if frame.Points != nil {
		width = 0
	}
	img, jpeg, err := capture.DecodeFrame(data, width)
	if err != nil {
		return landmarks.Frame{}, err
	}
	frame.Pixels = img

	if frame.Points == nil {
		if c.detector == nil {
			return landmarks.Frame{}, errors.New("no landmark detector configured")
		}
		points, err := c.detector.DetectJPEG(ctx, jpeg)
		if err != nil {
			return frame, err
		}
		frame.Points = points
	}
	return frame, nil
}

func stripDataURL(s string) string {
	if i := strings.Index(s, ","); i >= 0 && strings.HasPrefix(s, "data:") {
		return s[i+1:]
	}
	return s
}

func (c *socketController) processFrame(ctx context.Context, socketID, payload string) (frameResult, error) {
	ctrl, ok := c.lookup(socketID)
	if !ok {
		return frameResult{}, errors.New("no active session, send startSession first")
	}

	frame, err := c.decodeFrame(ctx, payload)
	if errors.Is(err, landmarks.ErrNoFace) {
		metrics.FramesSkipped.WithLabelValues(metrics.SkipNoFace).Inc()
		return frameResult{Skipped: true, Progress: ctrl.Progress()}, nil
	}
	if err != nil {
		return frameResult{}, err
	}

	if err := ctrl.ProcessFrame(frame); err != nil {
		return frameResult{}, err
	}
	return frameResult{Progress: ctrl.Progress()}, nil
}

func (c *socketController) checkpoint(ctx context.Context, socketID string) (models.CheckpointReport, error) {
	ctrl, ok := c.lookup(socketID)
	if !ok {
		return models.CheckpointReport{}, errors.New("no active session")
	}
	return ctrl.Checkpoint(ctx)
}

func (c *socketController) endSession(ctx context.Context, socketID string) (models.CheckpointReport, error) {
	ctrl, ok := c.detach(socketID)
	if !ok {
		return models.CheckpointReport{}, errors.New("no active session")
	}
	return ctrl.Close(ctx)
}

func emitError(socket socketio.Conn, message string) {
	socket.Emit("analysisError", map[string]string{"message": message})
}

func (c *socketController) handleStartSession(socket socketio.Conn, msg string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	progress, err := c.startSession(ctx, socket.ID(), msg)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to start session", slog.Any("error", err))
		emitError(socket, "unable to start session")
		return
	}

	logger.InfoContext(ctx, "session started",
		slog.String("socketID", socket.ID()),
		slog.String("session", progress.SessionID),
	)
	socket.Emit("sessionStarted", progress)
}

func (c *socketController) handleFrame(socket socketio.Conn, msg string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	if msg == "" {
		emitError(socket, "no frame data received")
		return
	}

	result, err := c.processFrame(ctx, socket.ID(), msg)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to process frame",
			slog.String("socketID", socket.ID()), slog.Any("error", err))
		emitError(socket, err.Error())
		return
	}

	if result.Skipped {
		socket.Emit("frameSkipped", result.Progress)
		return
	}
	if result.Progress.Frames%progressEvery == 0 {
		socket.Emit("progress", result.Progress)
	}
}

func (c *socketController) handleCheckpoint(socket socketio.Conn) {
	logger := utils.GetLogger()
	ctx := context.Background()

	report, err := c.checkpoint(ctx, socket.ID())
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "checkpoint failed",
			slog.String("socketID", socket.ID()), slog.Any("error", err))
		if report.Question == 0 {
			emitError(socket, "checkpoint failed")
			return
		}
	}
	socket.Emit("checkpoint", report)
}

func (c *socketController) handleEndSession(socket socketio.Conn) {
	logger := utils.GetLogger()
	ctx := context.Background()

	report, err := c.endSession(ctx, socket.ID())
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to end session",
			slog.String("socketID", socket.ID()), slog.Any("error", err))
		if report.Question == 0 {
			emitError(socket, "unable to end session")
			return
		}
	}
	socket.Emit("sessionEnded", report)
}

// handleDisconnect finalizes a session left open by a dropped socket.
func (c *socketController) handleDisconnect(socketID string) {
	report, err := c.endSession(context.Background(), socketID)
	if err != nil {
		return
	}
	log.Printf("Closed session %s on disconnect after %d questions\n", report.SessionID, report.Question)
}
