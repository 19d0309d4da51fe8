package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultRetries   = 3
	defaultRetryWait = 2 * time.Second
)

// HTTPConfig configures an HTTP recognition backend client.
type HTTPConfig struct {
	// BaseURL of the backend, e.g. "http://localhost:8000".
	BaseURL string
	// Timeout per request. Defaults to 60s.
	Timeout time.Duration
	// MaxRetries before giving up on transient failures. Defaults to 3.
	MaxRetries int
	// RetryWait is the base delay for exponential backoff. Defaults to 2s.
	RetryWait time.Duration
}

// HTTPClient submits crops to a recognition service over JSON/HTTP.
// Wire format: POST {base}/recognize with {"image": "<base64 PNG>"}, response
// {"lines": [{"text": ..., "y_center": ...}, ...]} ordered top to bottom.
type HTTPClient struct {
	baseURL    string
	maxRetries int
	retryWait  time.Duration
	client     *http.Client
}

// NewHTTPClient creates a recognition backend client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultRetries
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = defaultRetryWait
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

type recognizeRequest struct {
	Image string `json:"image"`
}

type recognizeResponse struct {
	Lines []Line `json:"lines"`
}

// Recognize sends the crop to the backend and returns its lines. Connection
// failures and 5xx responses are retried with backoff; if all attempts fail
// the error wraps ErrUnavailable.
func (c *HTTPClient) Recognize(ctx context.Context, crop image.Image) ([]Line, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}

	body, err := json.Marshal(recognizeRequest{
		Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lines []Line
	err = retry.Do(
		func() error {
			var attemptErr error
			lines, attemptErr = c.recognizeOnce(ctx, body)
			return attemptErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryWait),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrUnavailable)
		}),
	)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (c *HTTPClient) recognizeOnce(ctx context.Context, body []byte) ([]Line, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/recognize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// transport-level failure: backend not reachable
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: backend returned %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend rejected request: %d (%s)",
			resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var parsed recognizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode backend response: %w", err)
	}
	return parsed.Lines, nil
}
