package embed

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

	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
)

func TestStaticEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	a1, err := e.Embed(ctx, "Weekly review of project notes")
	require.NoError(t, err)
	a2, err := e.Embed(ctx, "Weekly review of project notes")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Len(t, a1, StaticDimensions)
	assert.InDelta(t, 1.0, vectorMagnitude(a1), 1e-5)
}

func TestStaticEmbedder_SimilarTextScoresHigher(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	q, _ := e.Embed(ctx, "gardening tomatoes in spring")
	near, _ := e.Embed(ctx, "spring gardening: planting tomatoes")
	far, _ := e.Embed(ctx, "quarterly tax filing deadline")

	assert.Greater(t, cosineSimilarity(q, near), cosineSimilarity(q, far))
}

func TestStaticEmbedder_HangulAndBlank(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	v, err := e.Embed(ctx, "회의록 정리")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-5)

	zero, err := e.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, StaticDimensions), zero)
}

func TestStaticEmbedder_Closed(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())
	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

type countingEmbedder struct {
	*StaticEmbedder
	batchCalls atomic.Int32
	texts      atomic.Int32
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls.Add(1)
	c.texts.Add(int32(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.texts.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func TestCachedEmbedder_OnlyMissesReachInner(t *testing.T) {
	// Given: a cache with one text already embedded
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()
	_, err := c.Embed(ctx, "a")
	require.NoError(t, err)

	// When: batching the cached text with two new ones
	vecs, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	// Then: only the two misses were embedded
	require.Len(t, vecs, 3)
	assert.Equal(t, int32(3), inner.texts.Load())
	assert.Equal(t, 3, c.Len())

	_, err = c.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.batchCalls.Load())
}

func ollamaServer(t *testing.T, failFirst int32, dims int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/version":
			_, _ = w.Write([]byte(`{"version":"0.5.0"}`))
		case "/api/embed":
			n := calls.Add(1)
			if n <= failFirst {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("loading model"))
				return
			}
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			resp := ollamaEmbedResponse{Model: req.Model}
			for range req.Input {
				v := make([]float64, dims)
				v[0] = 3
				v[1] = 4
				resp.Embeddings = append(resp.Embeddings, v)
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fastRetry() nerrors.RetryConfig {
	return nerrors.RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, Multiplier: 1}
}

func TestOllamaEmbedder_ProbeDetectsDimensions(t *testing.T) {
	srv, _ := ollamaServer(t, 0, 8)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Model: "bge-m3", Retry: fastRetry()})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, 8, e.Dimensions())
	assert.True(t, e.Available(context.Background()))

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}

func TestOllamaEmbedder_RetriesTransientFailures(t *testing.T) {
	srv, calls := ollamaServer(t, 2, 4)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, SkipHealthCheck: true, Retry: fastRetry(),
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaEmbedder_BatchesBySize(t *testing.T) {
	srv, calls := ollamaServer(t, 0, 4)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, SkipHealthCheck: true, BatchSize: 2, Retry: fastRetry(),
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaEmbedder_UnreachableIsEmbeddingError(t *testing.T) {
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: "http://127.0.0.1:1", SkipHealthCheck: true,
		Retry: nerrors.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 1},
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, nerrors.HasCode(err, nerrors.ErrCodeEmbeddingFailed))
	assert.True(t, nerrors.HasCode(err, nerrors.ErrCodeNetworkUnavailable))
}

func TestNew_FallsBackToStaticWhenOllamaDown(t *testing.T) {
	e, err := New(context.Background(), Options{Provider: "ollama", OllamaHost: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.Equal(t, "static", e.ModelName())

	_, err = New(context.Background(), Options{Provider: "ollama", OllamaHost: "http://127.0.0.1:1", Strict: true})
	assert.Error(t, err)

	_, err = New(context.Background(), Options{Provider: "mlx"})
	assert.Error(t, err)
}
