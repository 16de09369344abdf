package landmarks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticPoints() []Point {
	points := make([]Point, NumLandmarks)
	for i := range points {
		points[i] = Pt(i, 2*i)
	}
	return points
}

func TestFrameSlices(t *testing.T) {
	t.Parallel()

	frame := Frame{Points: syntheticPoints()}
	require.NoError(t, frame.Validate())

	assert.Len(t, frame.RightEye(), EyePointCount)
	assert.Equal(t, Pt(36, 72), frame.RightEye()[0])
	assert.Equal(t, Pt(42, 84), frame.LeftEye()[0])
	assert.Len(t, frame.Mouth(), MouthPoints)
	assert.Equal(t, Pt(48, 96), frame.Mouth()[0])

	cheek := frame.Subset(RightCheek[:])
	require.Len(t, cheek, CheekPointsLen)
	assert.Equal(t, Pt(48, 96), cheek[4])
}

func TestFrameValidateRejectsShortSets(t *testing.T) {
	t.Parallel()

	err := Frame{Index: 3, Points: syntheticPoints()[:10]}.Validate()
	assert.Error(t, err)
}

func TestDist(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 5.0, Dist(Pt(0, 0), Pt(3, 4)), 1e-12)
}

func TestReplayRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")

	var buf bytes.Buffer
	require.NoError(t, WriteReplayRecord(&buf, Frame{Index: 1, Points: syntheticPoints()}, "f1.png"))
	require.NoError(t, WriteReplayRecord(&buf, Frame{Index: 2}, ""))
	buf.WriteString("\n")
	require.NoError(t, WriteReplayRecord(&buf, Frame{Index: 3, Points: syntheticPoints()}, ""))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	var loaded []string
	loader := func(p string) (image.Image, error) {
		loaded = append(loaded, p)
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	}

	src, err := OpenReplay(path, loader)
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()

	first, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Index)
	assert.NotNil(t, first.Pixels)
	assert.Equal(t, []string{filepath.Join(dir, "f1.png")}, loaded)

	second, err := src.Next(ctx)
	assert.ErrorIs(t, err, ErrNoFace)
	assert.Equal(t, 2, second.Index)

	third, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, third.Index)
	assert.Nil(t, third.Pixels)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplayRejectsIncompleteFrames(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"index":1,"points":[[1,2],[3,4]]}`+"\n"), 0o644))

	src, err := OpenReplay(path, nil)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoFace))
}

func TestServiceClientDetectJPEG(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/landmarks" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("image")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)

		var resp LandmarkResponse
		if string(data) == "face" {
			resp.Faces = append(resp.Faces, struct {
				Points [][2]float64 `json:"points"`
			}{Points: make([][2]float64, NumLandmarks)})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewServiceClient(server.URL)

	points, err := client.DetectJPEG(context.Background(), []byte("face"))
	require.NoError(t, err)
	assert.Len(t, points, NumLandmarks)

	_, err = client.DetectJPEG(context.Background(), []byte("empty"))
	assert.ErrorIs(t, err, ErrNoFace)
}
