package embeddings

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/frossi85/researcher-agent/retrying"
)

const (
	defaultBatchSize   = 100
	defaultConcurrency = 4
)

// Gateway decorates a provider with a content-keyed cache, provider batch
// splitting, bounded-concurrency batch fan-out, and the shared retry policy.
// On retry exhaustion the whole call fails; partial results are never
// returned.
type Gateway struct {
	provider    Embedder
	model       string
	cache       Cache
	policy      retrying.Policy
	batchSize   int
	concurrency int
	logger      *log.Logger
}

type GatewayOptions struct {
	Model       string
	Cache       Cache
	Policy      retrying.Policy
	BatchSize   int
	Concurrency int
	Logger      *log.Logger
}

func NewGateway(provider Embedder, opts GatewayOptions) *Gateway {
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retrying.DefaultPolicy()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Gateway{
		provider:    provider,
		model:       opts.Model,
		cache:       opts.Cache,
		policy:      opts.Policy,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

// Embed returns one vector per input text, in input order. Texts already in
// the cache are not re-sent to the provider; overlap duplication across
// chunks and repeated query variants hit the cache, not the API.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if vec, ok := g.cache.Get(cacheKey(g.model, text)); ok {
			results[i] = vec
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.concurrency)

	for start := 0; start < len(missing); start += g.batchSize {
		end := start + g.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		group.Go(func() error {
			batchTexts := make([]string, len(batch))
			for i, idx := range batch {
				batchTexts[i] = texts[idx]
			}

			var vectors [][]float32
			err := g.policy.Do(groupCtx, func() error {
				embedded, embedErr := g.provider.Embed(groupCtx, batchTexts)
				if embedErr != nil {
					return embedErr
				}
				vectors = embedded
				return nil
			})
			if err != nil {
				return fmt.Errorf("embed batch of %d: %w", len(batchTexts), err)
			}
			if len(vectors) != len(batchTexts) {
				return fmt.Errorf("%w: expected %d vectors, got %d", retrying.ErrProvider, len(batchTexts), len(vectors))
			}

			// Each batch writes a disjoint set of result slots, so no lock
			// is needed for the reassembly.
			for i, idx := range batch {
				results[idx] = vectors[i]
				g.cache.Put(cacheKey(g.model, texts[idx]), vectors[i])
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

var _ Embedder = (*Gateway)(nil)
