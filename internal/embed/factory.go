package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings.
	ProviderStatic ProviderType = "static"
	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"
)

// Options selects and tunes an embedder.
type Options struct {
	Provider   string
	Model      string
	OllamaHost string
	CacheSize  int
	// Strict returns an error instead of falling back to the static
	// embedder when Ollama cannot be reached.
	Strict bool
}

// New builds the configured embedder wrapped in a CachedEmbedder.
func New(ctx context.Context, opts Options) (Embedder, error) {
	var inner Embedder

	switch ProviderType(strings.ToLower(opts.Provider)) {
	case ProviderOllama:
		oe, err := NewOllamaEmbedder(ctx, OllamaConfig{Host: opts.OllamaHost, Model: opts.Model})
		if err != nil {
			if opts.Strict {
				return nil, err
			}
			slog.Warn("ollama unavailable, falling back to static embeddings",
				slog.String("model", opts.Model), slog.String("error", err.Error()))
			inner = NewStaticEmbedder()
		} else {
			inner = oe
		}
	case ProviderStatic, "":
		inner = NewStaticEmbedder()
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", opts.Provider)
	}

	slog.Debug("embedder ready",
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))
	return NewCachedEmbedder(inner, opts.CacheSize), nil
}
