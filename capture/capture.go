// Package capture reads video frames with OpenCV and turns them into
// landmark frames through a landmark detector.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"

	"gocv.io/x/gocv"

	"lie-detector/landmarks"
)

// DefaultWidth is the width frames are resized to before detection.
const DefaultWidth = 800

// Detector locates the 68 facial landmarks in a JPEG-encoded frame.
// landmarks.ServiceClient satisfies it.
type Detector interface {
	DetectJPEG(ctx context.Context, jpeg []byte) ([]landmarks.Point, error)
}

var _ Detector = (*landmarks.ServiceClient)(nil)

// VideoSource is a landmarks.Source over a camera or a video file.
type VideoSource struct {
	capture  *gocv.VideoCapture
	detector Detector
	width    int
	live     bool
	index    int
	mat      gocv.Mat
	resized  gocv.Mat
}

// OpenVideo opens device, either a camera index ("0") or a file path.
// Frames are resized to width (DefaultWidth when zero).
func OpenVideo(device string, detector Detector, width int) (*VideoSource, error) {
	if detector == nil {
		return nil, errors.New("capture needs a landmark detector")
	}
	if width <= 0 {
		width = DefaultWidth
	}

	var (
		vc   *gocv.VideoCapture
		err  error
		live bool
	)
	if id, convErr := strconv.Atoi(device); convErr == nil {
		vc, err = gocv.OpenVideoCapture(id)
		live = true
	} else {
		vc, err = gocv.OpenVideoCapture(device)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", device, err)
	}

	return &VideoSource{
		capture:  vc,
		detector: detector,
		width:    width,
		live:     live,
		mat:      gocv.NewMat(),
		resized:  gocv.NewMat(),
	}, nil
}

// Next grabs, resizes and annotates the next frame. A file source returns
// io.EOF at its end; frames without a face return landmarks.ErrNoFace.
func (v *VideoSource) Next(ctx context.Context) (landmarks.Frame, error) {
	if err := ctx.Err(); err != nil {
		return landmarks.Frame{}, err
	}
	if ok := v.capture.Read(&v.mat); !ok || v.mat.Empty() {
		if v.live {
			return landmarks.Frame{}, errors.New("camera returned no frame")
		}
		return landmarks.Frame{}, io.EOF
	}
	v.index++

	resizeToWidth(v.mat, &v.resized, v.width)

	jpeg, err := encodeJPEG(v.resized)
	if err != nil {
		return landmarks.Frame{}, err
	}
	frame := landmarks.Frame{Index: v.index}

	points, err := v.detector.DetectJPEG(ctx, jpeg)
	if err != nil {
		return frame, err
	}
	frame.Points = points

	img, err := v.resized.ToImage()
	if err != nil {
		return landmarks.Frame{}, fmt.Errorf("failed to convert frame %d: %w", v.index, err)
	}
	frame.Pixels = img

	return frame, nil
}

// Close releases the capture device and frame buffers.
func (v *VideoSource) Close() error {
	v.mat.Close()
	v.resized.Close()
	return v.capture.Close()
}

func resizeToWidth(src gocv.Mat, dst *gocv.Mat, width int) {
	if src.Cols() == width {
		src.CopyTo(dst)
		return
	}
	height := src.Rows() * width / src.Cols()
	gocv.Resize(src, dst, image.Pt(width, height), 0, 0, gocv.InterpolationArea)
}

func encodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// LoadImage reads an image file in BGR color. It serves as the replay
// ImageLoader.
func LoadImage(path string) (image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("failed to read image %s", path)
	}
	return mat.ToImage()
}

// DecodeFrame decodes an encoded image, resizes it to width, and returns the
// pixels together with the JPEG bytes to send to a Detector. A width of zero
// keeps the native size, so landmarks computed by the sender still line up.
func DecodeFrame(data []byte, width int) (image.Image, []byte, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, nil, errors.New("image is empty")
	}
	if width <= 0 {
		width = mat.Cols()
	}

	resized := gocv.NewMat()
	defer resized.Close()
	resizeToWidth(mat, &resized, width)

	jpeg, err := encodeJPEG(resized)
	if err != nil {
		return nil, nil, err
	}
	img, err := resized.ToImage()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert image: %w", err)
	}
	return img, jpeg, nil
}

// SaveImage writes img to path; the extension picks the format.
func SaveImage(path string, img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()
	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}
