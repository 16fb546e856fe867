// Package faceclient talks to the landmark sidecar, a small HTTP service
// wrapping a face mesh model.
package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"faceattend/internal/face"
	"faceattend/internal/liveness"
)

// Client calls the landmark service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Quality is the JPEG quality used to ship frames.
	Quality int
}

// New creates a client with a timeout suited to per-frame inference.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Quality: 90,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type landmarkRequest struct {
	Image    string `json:"image"`
	NumFaces int    `json:"num_faces"`
}

type landmarkResponse struct {
	Faces [][]liveness.Point `json:"faces"`
}

// DetectLandmarks implements liveness.LandmarkDetector in single-face mode.
func (c *Client) DetectLandmarks(ctx context.Context, img image.Image) ([]liveness.Point, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.Quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	body, err := json.Marshal(landmarkRequest{
		Image:    base64.StdEncoding.EncodeToString(buf.Bytes()),
		NumFaces: 1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/landmarks", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("landmark service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("landmark service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out landmarkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Faces) == 0 || len(out.Faces[0]) == 0 {
		return nil, face.ErrNoFace
	}
	return out.Faces[0], nil
}

// Health checks if the landmark service is available.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("landmark service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("landmark service unhealthy: %s", resp.Status)
	}
	return nil
}
