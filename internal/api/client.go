// Package api provides the HTTP client for the dashboard backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "marketdash/internal/errors"
	"marketdash/internal/logging"
	"marketdash/pkg/utils"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 8 << 20

// Config holds client configuration.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	UserAgent     string
	WarmupRetries int
	WarmupDelay   time.Duration

	// RateLimit caps requests per second. Zero disables pacing.
	RateLimit float64
	RateBurst int
}

// Client talks JSON over HTTP to the dashboard backend.
type Client struct {
	baseURL   *url.URL
	token     string
	userAgent string
	http      *http.Client
	retry     utils.RetryConfig
	limiter   *rateLimiter
	logger    zerolog.Logger
}

// NewClient creates a new Client with its own http.Client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewClientWithHTTP(cfg, &http.Client{Timeout: timeout}, logger)
}

// NewClientWithHTTP creates a new Client using the given http.Client.
func NewClientWithHTTP(cfg Config, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", apperrors.ErrConfigInvalid, cfg.BaseURL)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "marketdash"
	}

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.WarmupRetries + 1
	if cfg.WarmupDelay > 0 {
		retry.InitialDelay = cfg.WarmupDelay
	}
	retry.Retryable = func(err error) bool {
		return errors.Is(err, apperrors.ErrBackendWarmingUp)
	}

	c := &Client{
		baseURL:   base,
		token:     cfg.Token,
		userAgent: userAgent,
		http:      httpClient,
		retry:     retry,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	if cfg.RateLimit > 0 {
		c.limiter = newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// get performs a GET, retrying while the backend is warming up.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return utils.Retry(ctx, c.retry, func() error {
		return c.do(ctx, http.MethodGet, path, query, nil, out)
	})
}

// post performs a POST. Mutations are never retried.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// delete performs a DELETE. Mutations are never retried.
func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// do sends one request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	endpoint := c.resolve(path, query)
	requestID := uuid.NewString()
	logger := logging.WithRequestID(c.logger, requestID)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		err = classifyTransportError(ctx, err)
		logging.LogAPICall(logger, method, path, 0, time.Since(start), err)
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		err = fmt.Errorf("%w: reading response: %v", apperrors.ErrConnectionFailed, err)
		logging.LogAPICall(logger, method, path, resp.StatusCode, time.Since(start), err)
		return err
	}

	err = decodeResponse(method, path, resp, data, out)
	logging.LogAPICall(logger, method, path, resp.StatusCode, time.Since(start), err)
	return err
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func decodeResponse(method, path string, resp *http.Response, data []byte, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewAPIError(method, path, resp.StatusCode, errorDetail(data))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if looksLikeHTML(resp.Header.Get("Content-Type"), data) {
		return fmt.Errorf("%w: %s %s returned an HTML page", apperrors.ErrBackendWarmingUp, method, path)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %v", apperrors.ErrBackendWarmingUp, method, path, err)
	}
	return nil
}

func looksLikeHTML(contentType string, data []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// errorDetail extracts a short message from an error body.
func errorDetail(data []byte) string {
	var body struct {
		Detail  interface{} `json:"detail"`
		Error   string      `json:"error"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		switch {
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		case body.Detail != nil:
			if s, ok := body.Detail.(string); ok {
				return s
			}
			if b, err := json.Marshal(body.Detail); err == nil {
				return string(b)
			}
		}
	}
	return utils.Truncate(strings.TrimSpace(string(data)), 200)
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", apperrors.ErrConnectionFailed, err)
}

// decodeList accepts either a bare JSON array or an object wrapping the
// array under one of keys.
func decodeList[T any](raw json.RawMessage, keys ...string) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: decoding list: %v", apperrors.ErrBackendWarmingUp, err)
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding list envelope: %v", apperrors.ErrBackendWarmingUp, err)
	}
	candidates := append(append([]string{}, keys...), "items", "data", "results")
	for _, key := range candidates {
		if inner, ok := envelope[key]; ok {
			var items []T
			if err := json.Unmarshal(inner, &items); err != nil {
				return nil, fmt.Errorf("%w: decoding %q: %v", apperrors.ErrBackendWarmingUp, key, err)
			}
			if items == nil {
				items = []T{}
			}
			return items, nil
		}
	}
	return []T{}, nil
}
