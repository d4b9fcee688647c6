package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Client talks to an embedding provider over HTTP. Every call goes through
// a local rate limiter, the circuit breaker, and bounded retries for
// transient failures.
type Client struct {
	baseURL    string
	model      string
	client     *http.Client
	breaker    *circuitBreaker
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries uint64
}

// ClientConfig holds embedding client configuration.
type ClientConfig struct {
	// BaseURL is the base URL for the provider API (default: http://localhost:11434)
	BaseURL string

	// Model is the embedding model name (default: nomic-embed-text)
	Model string

	// Timeout is the per-request timeout (default: 10s)
	Timeout time.Duration

	// RequestsPerSecond caps the local call rate (default: 10)
	RequestsPerSecond float64

	// Burst is the limiter burst size (default: 5)
	Burst int

	// MaxRetries bounds retries of transient failures per call (default: 3)
	MaxRetries uint64
}

// embedRequest is the request body for the /api/embed endpoint.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the response from the /api/embed endpoint. The
// embeddings field is a 2D array; we always use the first embedding.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewClient creates an embedding client with the given configuration.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "nomic-embed-text"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = 10
	}
	if config.Burst == 0 {
		config.Burst = 5
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	return &Client{
		baseURL: config.BaseURL,
		model:   config.Model,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		breaker:    newCircuitBreaker("embedding-provider"),
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
	}
}

// Ensure *Client implements Gateway at compile time.
var _ Gateway = (*Client)(nil)

// Embed generates the full-dimensional embedding for text. Transient
// failures are retried with exponential backoff up to MaxRetries times;
// permanent failures and open-circuit rejections return immediately.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}

	// Wait fails only on context cancellation or an unsatisfiable
	// deadline, which is the caller's error class, not the provider's.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	var vec []float32

	operation := func() error {
		result, err := c.breaker.call(ctx, func() ([]float32, error) {
			return c.embed(ctx, text)
		})
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrInvalidInput) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		vec = result
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return vec, nil
}

// Compress reduces a full embedding for the central index.
func (c *Client) Compress(full []float32, dims int) ([]float32, error) {
	return Compress(full, dims)
}

// embed performs one HTTP call without retry or breaker wrapping.
func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := embedRequest{
		Model: c.model,
		Input: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: provider returned 429", ErrRateLimited)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: provider returned status %d: %s", ErrInvalidInput, resp.StatusCode, string(body))
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: provider returned status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}

	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: provider returned empty embedding vector", ErrUnavailable)
	}

	return respData.Embeddings[0], nil
}

// HealthCheck verifies the provider is reachable via the /api/version
// endpoint. It bypasses the circuit breaker since it is itself the probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: health check returned status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	return nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}
