package embeddings_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/frossi85/researcher-agent/embeddings"
	"github.com/frossi85/researcher-agent/retrying"
)

// countingProvider returns a deterministic vector per text so tests can
// verify order preservation, and records how many texts it was asked for.
type countingProvider struct {
	mu       sync.Mutex
	calls    int
	texts    int
	failures int
	failWith error
}

func (p *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return nil, p.failWith
	}
	p.texts += len(texts)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), float32(text[0])}
	}
	return vectors, nil
}

func (p *countingProvider) stats() (calls, texts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, p.texts
}

var _ embeddings.Embedder = (*countingProvider)(nil)

func fastPolicy(attempts uint64) retrying.Policy {
	return retrying.Policy{
		MaxAttempts:  attempts,
		BaseInterval: time.Millisecond,
		MaxInterval:  2 * time.Millisecond,
	}
}

func newTestGateway(provider embeddings.Embedder, batchSize int) *embeddings.Gateway {
	return embeddings.NewGateway(provider, embeddings.GatewayOptions{
		Model:     "test-model",
		BatchSize: batchSize,
		Policy:    fastPolicy(3),
		Logger:    log.New(io.Discard, "", 0),
	})
}

func TestGatewayPreservesInputOrderAcrossBatches(t *testing.T) {
	provider := &countingProvider{}
	gateway := newTestGateway(provider, 2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := gateway.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}

	for i, text := range texts {
		if vectors[i][0] != float32(len(text)) || vectors[i][1] != float32(text[0]) {
			t.Fatalf("vector %d does not correspond to text %q: %v", i, text, vectors[i])
		}
	}

	calls, sent := provider.stats()
	if sent != len(texts) {
		t.Fatalf("provider received %d texts, want %d", sent, len(texts))
	}
	if calls != 3 {
		t.Fatalf("expected 3 batches of size 2 for 5 texts, got %d calls", calls)
	}
}

func TestGatewayServesRepeatCallsFromCache(t *testing.T) {
	provider := &countingProvider{}
	gateway := newTestGateway(provider, 100)

	texts := []string{"alpha", "beta"}
	first, err := gateway.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("first embed: %v", err)
	}

	second, err := gateway.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("second embed: %v", err)
	}

	calls, sent := provider.stats()
	if calls != 1 || sent != 2 {
		t.Fatalf("expected a single provider call for 2 texts, got calls=%d texts=%d", calls, sent)
	}

	for i := range texts {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("cached vector differs for %q", texts[i])
			}
		}
	}
}

func TestGatewayCacheIgnoresSurroundingWhitespace(t *testing.T) {
	provider := &countingProvider{}
	gateway := newTestGateway(provider, 100)

	if _, err := gateway.Embed(context.Background(), []string{"alpha"}); err != nil {
		t.Fatalf("first embed: %v", err)
	}
	if _, err := gateway.Embed(context.Background(), []string{"  alpha  "}); err != nil {
		t.Fatalf("second embed: %v", err)
	}

	calls, _ := provider.stats()
	if calls != 1 {
		t.Fatalf("whitespace variant must hit the cache, got %d provider calls", calls)
	}
}

func TestGatewayRetriesTransientFailures(t *testing.T) {
	provider := &countingProvider{failures: 1, failWith: retrying.ErrRateLimited}
	gateway := newTestGateway(provider, 100)

	vectors, err := gateway.Embed(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}

	calls, _ := provider.stats()
	if calls != 2 {
		t.Fatalf("expected retry after transient failure, got %d calls", calls)
	}
}

func TestGatewayFailsWholeCallOnRetryExhaustion(t *testing.T) {
	provider := &countingProvider{failures: 100, failWith: retrying.ErrTimeout}
	gateway := newTestGateway(provider, 100)

	vectors, err := gateway.Embed(context.Background(), []string{"alpha", "beta"})
	if !errors.Is(err, retrying.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if vectors != nil {
		t.Fatalf("partial results must not be returned on failure")
	}
}

func TestGatewayDoesNotRetryInvalidInput(t *testing.T) {
	provider := &countingProvider{failures: 100, failWith: fmt.Errorf("bad request: %w", retrying.ErrInvalidInput)}
	gateway := newTestGateway(provider, 100)

	_, err := gateway.Embed(context.Background(), []string{"alpha"})
	if !errors.Is(err, retrying.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	calls, _ := provider.stats()
	if calls != 1 {
		t.Fatalf("invalid input must not be retried, got %d calls", calls)
	}
}
