package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/nabta-labs/leafscope/internal/models"
)

// Client is a thin typed wrapper around the plant-analysis API. All four
// endpoints take a multipart image upload with a bearer credential. The
// client is stateless and safe for concurrent use.
type Client struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewClient creates an analysis API client with a bounded request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RemoteError is returned for any non-2xx response or transport failure.
// Status is 0 when the request never produced an HTTP response.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("analysis API request failed: %s", e.Message)
	}
	return fmt.Sprintf("analysis API returned status %d: %s", e.Status, e.Message)
}

// DetectionResult is the /detect response.
type DetectionResult struct {
	TotalBoxes int                  `json:"total_boxes"`
	Boxes      []models.BoundingBox `json:"boxes"`
}

// SegmentationResult is the /segment response.
type SegmentationResult struct {
	MaskImageBase64 string `json:"mask_image_base64"`
	ImageWidth      int    `json:"image_width"`
	ImageHeight     int    `json:"image_height"`
	LeafPixelCount  int    `json:"leaf_pixel_count"`
}

// ClassificationResult is the /classify and /classify-cam response. For
// classify-cam the image is a class-activation-map overlay.
type ClassificationResult struct {
	PlantName         string  `json:"plant_name"`
	DiseaseName       string  `json:"disease_name"`
	Confidence        float64 `json:"confidence"`
	DiseasePercentage float64 `json:"disease_percentage"`
	Severity          string  `json:"severity"`
	ImageBase64       string  `json:"image_base64"`
}

// Detect uploads the full image and returns the detected bounding boxes.
// progress, when non-nil, receives the upload percentage (0-100) as body
// bytes are transferred.
func (c *Client) Detect(ctx context.Context, image []byte, filename string, progress func(int)) (*DetectionResult, error) {
	var result DetectionResult
	if err := c.postImage(ctx, "/detect", image, filename, progress, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Segment returns the leaf mask for a region (or full image) blob.
func (c *Client) Segment(ctx context.Context, region []byte) (*SegmentationResult, error) {
	var result SegmentationResult
	if err := c.postImage(ctx, "/segment", region, "region.jpg", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Classify returns the disease classification for a region blob.
func (c *Client) Classify(ctx context.Context, region []byte) (*ClassificationResult, error) {
	var result ClassificationResult
	if err := c.postImage(ctx, "/classify", region, "region.jpg", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClassifyCAM returns the classification with a class-activation-map
// overlay image for a region blob.
func (c *Client) ClassifyCAM(ctx context.Context, region []byte) (*ClassificationResult, error) {
	var result ClassificationResult
	if err := c.postImage(ctx, "/classify-cam", region, "region.jpg", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postImage(ctx context.Context, path string, image []byte, filename string, progress func(int), out any) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return fmt.Errorf("failed to write image to multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	total := int64(body.Len())
	var reqBody io.Reader = &body
	if progress != nil {
		reqBody = newProgressReader(&body, total, progress)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RemoteError{Status: resp.StatusCode, Message: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Status: resp.StatusCode, Message: "failed to decode response: " + err.Error()}
	}

	return nil
}
