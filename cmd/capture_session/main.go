package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"lie-detector/capture"
	"lie-detector/db"
	"lie-detector/knn"
	"lie-detector/landmarks"
	"lie-detector/metrics"
	"lie-detector/models"
	"lie-detector/session"
	"lie-detector/utils"

	"github.com/joho/godotenv"
)

// CaptureConfig holds the command's parameters
type CaptureConfig struct {
	Device      string
	Width       int
	ServiceURL  string
	TuningPath  string
	SessionID   string
	RecordDir   string
	RecordImage bool
}

func main() {
	_ = godotenv.Load()
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Live Session ===")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	detector := landmarks.NewServiceClient(config.ServiceURL)
	if err := detector.HealthCheck(ctx); err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	video, err := capture.OpenVideo(config.Device, detector, config.Width)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	defer video.Close()

	store, err := db.NewReportStore(ctx)
	if err != nil {
		log.Fatalf("ERROR: Failed to open report store: %v", err)
	}
	defer store.Close()

	ctrl, err := session.New(tuning, classifier,
		session.WithStore(store),
		session.WithSessionID(config.SessionID),
	)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	log.Printf("Session: %s\n", ctrl.ID())
	log.Printf("Stay still for the first %d frames while the baseline is measured.\n", tuning.Schedule.BaselineFrame)
	log.Println("Press Enter after each answer, type x and Enter to finish.")

	recorder, err := newRecorder(config.RecordDir, config.RecordImage)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	defer recorder.Close()

	commands := make(chan string)
	go readCommands(os.Stdin, commands)

	if err := runLoop(ctx, ctrl, video, recorder, commands); err != nil {
		log.Printf("ERROR: %v\n", err)
	}

	final, err := ctrl.Close(context.Background())
	if err != nil && final.Question == 0 {
		log.Fatalf("ERROR: Failed to close session: %v", err)
	}
	printCheckpoint(final)
}

func parseFlags() CaptureConfig {
	config := CaptureConfig{}

	flag.StringVar(&config.Device, "device", utils.GetEnv("CAMERA_DEVICE", "0"),
		"Camera index or video file")
	flag.IntVar(&config.Width, "width", capture.DefaultWidth,
		"Frame width before landmark detection")
	flag.StringVar(&config.ServiceURL, "landmarks", utils.GetEnv("LANDMARK_SERVICE_URL", ""),
		"Landmark service URL")
	flag.StringVar(&config.TuningPath, "tuning", utils.GetEnv("TUNING_PATH", "tuning.yaml"),
		"Detection tuning file (YAML)")
	flag.StringVar(&config.SessionID, "session", "",
		"Session identifier (random when empty)")
	flag.StringVar(&config.RecordDir, "record", "",
		"Directory to record the session as a replayable landmark file (empty to skip)")
	flag.BoolVar(&config.RecordImage, "record-frames", false,
		"Also save every frame image when recording")

	flag.Parse()

	return config
}

func readCommands(r io.Reader, commands chan<- string) {
	defer close(commands)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		commands <- strings.TrimSpace(scanner.Text())
	}
}

func runLoop(ctx context.Context, ctrl *session.Controller, src landmarks.Source, rec *recorder, commands <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-commands:
			if !ok || strings.EqualFold(cmd, "x") {
				return nil
			}
			report, err := ctrl.Checkpoint(ctx)
			if err != nil && report.Question == 0 {
				return err
			}
			printCheckpoint(report)
			continue
		default:
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err := rec.Write(frame); err != nil {
			log.Printf("WARNING: Failed to record frame %d: %v\n", frame.Index, err)
		}
		switch {
		case errors.Is(err, landmarks.ErrNoFace):
			metrics.FramesSkipped.WithLabelValues(metrics.SkipNoFace).Inc()
			continue
		case err != nil:
			return err
		}

		if err := ctrl.ProcessFrame(frame); err != nil {
			log.Printf("WARNING: frame %d: %v\n", frame.Index, err)
		}
	}
}

// recorder writes frames as a landmark recording readable by replay_session.
type recorder struct {
	dir    string
	images bool
	file   *os.File
}

func newRecorder(dir string, images bool) (*recorder, error) {
	if dir == "" {
		return &recorder{}, nil
	}
	if err := utils.CreateFolder(filepath.Join(dir, "frames")); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	file, err := os.Create(filepath.Join(dir, "recording.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return &recorder{dir: dir, images: images, file: file}, nil
}

func (r *recorder) Write(frame landmarks.Frame) error {
	if r.file == nil || frame.Index == 0 {
		return nil
	}
	imagePath := ""
	if r.images && frame.Pixels != nil {
		imagePath = filepath.Join("frames", fmt.Sprintf("%06d.png", frame.Index))
		if err := capture.SaveImage(filepath.Join(r.dir, imagePath), frame.Pixels); err != nil {
			return err
		}
	}
	return landmarks.WriteReplayRecord(r.file, frame, imagePath)
}

func (r *recorder) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

func printCheckpoint(r models.CheckpointReport) {
	kind := "Question"
	if r.Final {
		kind = "Final"
	}
	log.Printf("%s %d: %s (%.0f%%) blinks=%d (%.3f/s) lip_pursing=%d blushing=%d\n",
		kind, r.Question, strings.ToUpper(r.PredictedLabel), r.Confidence*100,
		r.Blinks, r.BlinkRate, r.LipPursingCount, r.BlushingCount)
}
