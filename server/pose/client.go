// Package pose reads landmark sequences from CSV exports and from the external pose
// estimation service.
package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/analysis"
	"github.com/san-kum/probowler/server/config"
	"github.com/san-kum/probowler/server/metrics"
)

// ErrUnavailable is returned when the pose service cannot be reached or keeps failing.
var ErrUnavailable = errors.New("pose service unavailable")

// Client talks to the pose service that turns a delivery video into landmark frames.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	config     config.PoseConfig
	healthy    atomic.Bool
}

// ExtractResponse is the pose service reply to /extract.
type ExtractResponse struct {
	Frames       []FramePayload `json:"frames"`
	FPS          float64        `json:"fps"`
	ModelVersion string         `json:"model_version"`
}

type FramePayload struct {
	Frame     int                          `json:"frame"`
	Landmarks map[string]analysis.Landmark `json:"landmarks"`
}

// statusError is a non-2xx reply. 4xx replies are not retried.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("pose service error (status %d): %s", e.code, e.body)
}

func NewClient(cfg config.PoseConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
		config:  cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}
}

// ExtractLandmarks uploads a video and returns its landmark sequence.
func (c *Client) ExtractLandmarks(ctx context.Context, video []byte, filename string) (analysis.Sequence, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying pose extraction request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		resp, err := c.executeExtractRequest(ctx, video, filename)
		if err == nil {
			c.healthy.Store(true)
			return resp.Sequence()
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && se.code < http.StatusInternalServerError {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	c.healthy.Store(false)
	return nil, fmt.Errorf("%w: extraction failed after %d attempts: %w",
		ErrUnavailable, c.config.MaxRetries+1, lastErr)
}

func (c *Client) executeExtractRequest(ctx context.Context, video []byte, filename string) (resp *ExtractResponse, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.PoseRequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(video); err != nil {
		return nil, fmt.Errorf("failed to write video: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	url := fmt.Sprintf("%s/extract", c.baseURL)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	request.Header.Set("User-Agent", "probowler/1.0")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return nil, &statusError{code: response.StatusCode, body: string(bodyBytes)}
	}

	var extract ExtractResponse
	if err := json.NewDecoder(response.Body).Decode(&extract); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &extract, nil
}

// Sequence converts the payload frames, accepting landmark names or MediaPipe indices
// as keys.
func (r *ExtractResponse) Sequence() (analysis.Sequence, error) {
	frames := make([]analysis.Frame, 0, len(r.Frames))
	for _, fp := range r.Frames {
		f := analysis.Frame{Index: fp.Frame, Landmarks: make(map[analysis.LandmarkName]analysis.Landmark, len(fp.Landmarks))}
		for key, lm := range fp.Landmarks {
			name, ok := landmarkKey(key)
			if !ok {
				continue
			}
			f.Landmarks[name] = lm
		}
		frames = append(frames, f)
	}
	return analysis.NewSequence(frames)
}

func landmarkKey(key string) (analysis.LandmarkName, bool) {
	if col, ok := parseColumn(key + "_x"); ok {
		return col.landmark, true
	}
	return "", false
}

func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.healthy.Store(false)
		return fmt.Errorf("health check failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		c.healthy.Store(false)
		return fmt.Errorf("pose service unhealthy (status %d)", response.StatusCode)
	}

	c.healthy.Store(true)
	return nil
}

// Healthy reports the result of the last health check or request.
func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

// StartHealthChecker polls the service until ctx is done.
func (c *Client) StartHealthChecker(ctx context.Context) {
	if c.config.HealthCheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.HealthCheck(ctx); err != nil {
				c.logger.Error("Pose service health check failed", zap.Error(err))
			} else {
				c.logger.Debug("Pose service health check passed")
			}
		}
	}
}
