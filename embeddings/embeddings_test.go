package embeddings_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/frossi85/researcher-agent/config"
	"github.com/frossi85/researcher-agent/embeddings"
	"github.com/frossi85/researcher-agent/retrying"
)

func TestNewProviderSelectsByConfig(t *testing.T) {
	cfg := config.Config{
		OpenAIAPIKey: "sk-test",
		Embeddings:   config.EmbeddingConfig{Provider: config.ProviderOpenAI, Model: "text-embedding-3-small"},
	}
	if _, err := embeddings.NewProvider(cfg); err != nil {
		t.Fatalf("openai provider: %v", err)
	}

	cfg = config.Config{
		OllamaHost: "http://localhost:11434",
		Embeddings: config.EmbeddingConfig{Provider: config.ProviderOllama, Model: "nomic-embed-text"},
	}
	if _, err := embeddings.NewProvider(cfg); err != nil {
		t.Fatalf("ollama provider: %v", err)
	}

	cfg = config.Config{Embeddings: config.EmbeddingConfig{Provider: config.ProviderOpenAI}}
	if _, err := embeddings.NewProvider(cfg); err == nil {
		t.Fatalf("expected error for missing API key")
	}

	cfg = config.Config{Embeddings: config.EmbeddingConfig{Provider: "vertex"}}
	if _, err := embeddings.NewProvider(cfg); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestOllamaEmbedderEmbedsPerText(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer server.Close()

	embedder := embeddings.NewOllamaEmbedder(embeddings.Options{
		OllamaHost: server.URL,
		Model:      "nomic-embed-text",
		Dimension:  3,
	})

	vectors, err := embedder.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if requests != 2 {
		t.Fatalf("expected one request per text, got %d", requests)
	}
	if len(vectors[0]) != 3 {
		t.Fatalf("unexpected dimension: %d", len(vectors[0]))
	}
}

func TestOllamaEmbedderClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, retrying.ErrRateLimited},
		{"invalid input", http.StatusBadRequest, retrying.ErrInvalidInput},
		{"server error", http.StatusInternalServerError, retrying.ErrProvider},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			embedder := embeddings.NewOllamaEmbedder(embeddings.Options{OllamaHost: server.URL, Model: "m"})
			_, err := embedder.Embed(context.Background(), []string{"text"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOllamaEmbedderServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := embeddings.NewOllamaEmbedder(embeddings.Options{OllamaHost: server.URL, Model: "m"})
	_, err := embedder.Embed(context.Background(), []string{"text"})
	if !retrying.IsTransient(err) {
		t.Fatalf("5xx must be transient, got %v", err)
	}
}

func TestOllamaEmbedderRejectsDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2]}`))
	}))
	defer server.Close()

	embedder := embeddings.NewOllamaEmbedder(embeddings.Options{OllamaHost: server.URL, Model: "m", Dimension: 3})
	if _, err := embedder.Embed(context.Background(), []string{"text"}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}
