package landmarks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ImageLoader decodes the pixel buffer referenced by a replay record.
type ImageLoader func(path string) (image.Image, error)

type replayRecord struct {
	Index  int          `json:"index"`
	Points [][2]float64 `json:"points"`
	Image  string       `json:"image,omitempty"`
}

// ReplaySource reads frames from a JSON-lines landmark recording:
//
//	{"index":1,"points":[[x,y],...68],"image":"frames/0001.png"}
//
// A record without points stands for a frame where no face was found.
type ReplaySource struct {
	file    *os.File
	scanner *bufio.Scanner
	baseDir string
	loader  ImageLoader
	line    int
}

// OpenReplay opens a recording. Image paths are resolved relative to the
// recording's directory; a nil loader leaves Frame.Pixels empty.
func OpenReplay(path string, loader ImageLoader) (*ReplaySource, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open replay %s: %w", path, err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	return &ReplaySource{
		file:    file,
		scanner: scanner,
		baseDir: filepath.Dir(path),
		loader:  loader,
	}, nil
}

// Next returns the next recorded frame.
func (r *ReplaySource) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return Frame{}, fmt.Errorf("failed to read replay: %w", err)
			}
			return Frame{}, io.EOF
		}
		r.line++

		raw := strings.TrimSpace(r.scanner.Text())
		if raw == "" {
			continue
		}

		var rec replayRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return Frame{}, fmt.Errorf("replay line %d: %w", r.line, err)
		}
		if rec.Index == 0 {
			rec.Index = r.line
		}
		if len(rec.Points) == 0 {
			return Frame{Index: rec.Index}, ErrNoFace
		}

		frame := Frame{Index: rec.Index, Points: make([]Point, len(rec.Points))}
		for i, p := range rec.Points {
			frame.Points[i] = Point{X: p[0], Y: p[1]}
		}
		if err := frame.Validate(); err != nil {
			return Frame{}, fmt.Errorf("replay line %d: %w", r.line, err)
		}

		if rec.Image != "" && r.loader != nil {
			imgPath := rec.Image
			if !filepath.IsAbs(imgPath) {
				imgPath = filepath.Join(r.baseDir, imgPath)
			}
			img, err := r.loader(imgPath)
			if err != nil {
				return Frame{}, fmt.Errorf("replay line %d: failed to load image: %w", r.line, err)
			}
			frame.Pixels = img
		}

		return frame, nil
	}
}

// Close releases the underlying file.
func (r *ReplaySource) Close() error {
	return r.file.Close()
}

// WriteReplayRecord appends one frame to a JSON-lines recording. Frames with
// no points are written as face-less records.
func WriteReplayRecord(w io.Writer, frame Frame, imagePath string) error {
	rec := replayRecord{Index: frame.Index, Image: imagePath}
	if len(frame.Points) > 0 {
		rec.Points = make([][2]float64, len(frame.Points))
		for i, p := range frame.Points {
			rec.Points[i] = [2]float64{p.X, p.Y}
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal replay record: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
