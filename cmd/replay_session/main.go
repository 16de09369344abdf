package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"lie-detector/capture"
	"lie-detector/db"
	"lie-detector/knn"
	"lie-detector/landmarks"
	"lie-detector/models"
	"lie-detector/session"
	"lie-detector/utils"

	"github.com/joho/godotenv"
)

// ReplayConfig holds the command's parameters
type ReplayConfig struct {
	ReplayPath  string
	TuningPath  string
	Checkpoints string
	SessionID   string
	FPS         float64
	Store       bool
	ReportPath  string
}

// pacedSource tracks the last frame index so elapsed time can be derived
// from the recording's frame rate instead of the wall clock.
type pacedSource struct {
	landmarks.Source
	index int
}

func (p *pacedSource) Next(ctx context.Context) (landmarks.Frame, error) {
	frame, err := p.Source.Next(ctx)
	if frame.Index > 0 {
		p.index = frame.Index
	}
	return frame, err
}

func main() {
	_ = godotenv.Load()
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Session Replay ===")
	log.Printf("Recording: %s\n", config.ReplayPath)

	checkpoints, err := parseCheckpoints(config.Checkpoints)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	tuning, err := session.LoadTuning(config.TuningPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load tuning: %v", err)
	}
	var opts []knn.Option
	if tuning.Standardize {
		opts = append(opts, knn.WithStandardization())
	}
	classifier, err := knn.NewClassifierFromFile(tuning.DatasetPath, tuning.K, opts...)
	if err != nil {
		log.Fatalf("ERROR: Failed to load classifier: %v", err)
	}

	replay, err := landmarks.OpenReplay(config.ReplayPath, capture.LoadImage)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	defer replay.Close()
	src := &pacedSource{Source: replay}

	start := time.Now()
	clock := func() time.Time {
		return start.Add(time.Duration(float64(src.index) / config.FPS * float64(time.Second)))
	}

	sessionOpts := []session.Option{
		session.WithClock(clock),
		session.WithSessionID(config.SessionID),
	}
	ctx := context.Background()
	if config.Store {
		store, err := db.NewReportStore(ctx)
		if err != nil {
			log.Fatalf("ERROR: Failed to open report store: %v", err)
		}
		defer store.Close()
		sessionOpts = append(sessionOpts, session.WithStore(store))
	}

	ctrl, err := session.New(tuning, classifier, sessionOpts...)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	log.Printf("Session: %s\n", ctrl.ID())

	reports, err := ctrl.Run(ctx, src, func(index int) bool { return checkpoints[index] })
	for _, r := range reports {
		printCheckpoint(r)
	}
	if err != nil {
		log.Fatalf("ERROR: Replay stopped: %v", err)
	}

	progress := ctrl.Progress()
	log.Printf("Processed %d frames, calibrated=%v, %d checkpoints\n",
		progress.Frames, progress.Calibrated, progress.Questions)

	if config.ReportPath != "" {
		report := models.BuildSessionReport(ctrl.ID(), reports)
		data, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			err = os.WriteFile(config.ReportPath, data, 0644)
		}
		if err != nil {
			log.Printf("WARNING: Failed to save report: %v\n", err)
		} else {
			log.Printf("Report saved to: %s\n", config.ReportPath)
		}
	}
}

func parseFlags() ReplayConfig {
	config := ReplayConfig{}

	flag.StringVar(&config.ReplayPath, "replay", "recording.jsonl",
		"Landmark recording (JSON lines)")
	flag.StringVar(&config.TuningPath, "tuning", utils.GetEnv("TUNING_PATH", "tuning.yaml"),
		"Detection tuning file (YAML)")
	flag.StringVar(&config.Checkpoints, "checkpoints", "",
		"Comma separated frame indices after which a question ends")
	flag.StringVar(&config.SessionID, "session", "",
		"Session identifier (random when empty)")
	flag.Float64Var(&config.FPS, "fps", utils.GetEnvFloat("REPLAY_FPS", 30),
		"Frame rate of the recording")
	flag.BoolVar(&config.Store, "store", true,
		"Persist checkpoints in the report store (DB_TYPE)")
	flag.StringVar(&config.ReportPath, "report", "",
		"Path to save the session report as JSON (empty to skip)")

	flag.Parse()

	if config.FPS <= 0 {
		log.Fatalf("ERROR: -fps must be positive")
	}
	return config
}

func parseCheckpoints(list string) (map[int]bool, error) {
	checkpoints := map[int]bool{}
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid checkpoint frame %q", field)
		}
		checkpoints[n] = true
	}
	return checkpoints, nil
}

func printCheckpoint(r models.CheckpointReport) {
	kind := "question"
	if r.Final {
		kind = "final"
	}
	log.Printf("[%s %d] blinks=%d (%.3f/s) lip_pursing=%d blushing=%d elapsed=%.1fs → %s (%.0f%%)\n",
		kind, r.Question, r.Blinks, r.BlinkRate, r.LipPursingCount, r.BlushingCount,
		r.ElapsedSeconds, r.PredictedLabel, r.Confidence*100)
	if r.Baseline != nil {
		log.Printf("  baseline: eye=%.4f lips=%.4f cheek(BGR)=%.1f,%.1f,%.1f blink_rate=%.3f/s lip_pursing=%d\n",
			r.Baseline.EyeRatio, r.Baseline.LipsRatio,
			r.Baseline.CheekColor[0], r.Baseline.CheekColor[1], r.Baseline.CheekColor[2],
			r.Baseline.BlinkRate, r.Baseline.LipPursing)
	}
}
