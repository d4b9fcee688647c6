package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:           baseURL,
		Model:             "test-embed",
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
		MaxRetries:        1,
	})
}

func TestClientEmbed(t *testing.T) {
	t.Run("returns first embedding", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/embed", r.URL.Path)

			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-embed", req.Model)
			assert.Equal(t, "hello", req.Input)

			json.NewEncoder(w).Encode(embedResponse{
				Embeddings: [][]float32{{0.1, 0.2, 0.3}},
			})
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		vec, err := client.Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	})

	t.Run("rejects empty text without calling provider", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		_, err := client.Embed(context.Background(), "")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("maps 429 to rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		_, err := client.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		_, err := client.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, int32(1), calls.Load(), "permanent failures must not be retried")
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(embedResponse{
				Embeddings: [][]float32{{1, 0}},
			})
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		vec, err := client.Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, vec)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("caller cancellation is not rate limiting", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Embed(ctx, "hello")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("empty embedding is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(embedResponse{})
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		_, err := client.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestCircuitBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Default breaker trips after 3 consecutive failures; each Embed makes
	// up to 2 attempts with MaxRetries 1.
	for i := 0; i < 3; i++ {
		_, err := client.Embed(context.Background(), "hello")
		require.Error(t, err)
	}

	assert.Equal(t, "open", client.breaker.State())

	_, err := client.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestClientHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/version", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		assert.NoError(t, client.HealthCheck(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		client := newTestClient("http://127.0.0.1:1")
		assert.ErrorIs(t, client.HealthCheck(context.Background()), ErrUnavailable)
	})
}
