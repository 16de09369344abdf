package landmarks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ServiceClient talks to the landmark sidecar: a face detector + 68-point
// shape predictor exposed over HTTP.
type ServiceClient struct {
	serviceURL string
	client     *http.Client
}

// LandmarkResponse is the sidecar's reply for one image.
type LandmarkResponse struct {
	Faces []struct {
		Points [][2]float64 `json:"points"`
	} `json:"faces"`
}

// NewServiceClient creates a new landmark service client.
func NewServiceClient(serviceURL string) *ServiceClient {
	if serviceURL == "" {
		serviceURL = "http://localhost:5003"
	}

	return &ServiceClient{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// HealthCheck verifies the landmark service is running.
func (sc *ServiceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.serviceURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := sc.client.Do(req)
	if err != nil {
		return fmt.Errorf("landmark service not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("landmark service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// DetectJPEG sends an encoded frame and returns the first face's landmarks.
// ErrNoFace is returned when the service found no face.
func (sc *ServiceClient) DetectJPEG(ctx context.Context, jpeg []byte) ([]Point, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, fmt.Errorf("failed to write frame data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.serviceURL+"/landmarks", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("landmark request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("landmark service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var lmResp LandmarkResponse
	if err := json.NewDecoder(resp.Body).Decode(&lmResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(lmResp.Faces) == 0 || len(lmResp.Faces[0].Points) == 0 {
		return nil, ErrNoFace
	}

	raw := lmResp.Faces[0].Points
	if len(raw) != NumLandmarks {
		return nil, fmt.Errorf("landmark service returned %d points, expected %d", len(raw), NumLandmarks)
	}

	points := make([]Point, len(raw))
	for i, p := range raw {
		points[i] = Point{X: p[0], Y: p[1]}
	}
	return points, nil
}
