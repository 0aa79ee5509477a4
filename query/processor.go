// Package query implements the state-free query pipeline: expand the user
// query, retrieve candidates per variant, merge and deduplicate, filter by
// relevance, boost exact-term matches, and assemble the final context in
// document reading order.
package query

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/frossi85/researcher-agent/embeddings"
	"github.com/frossi85/researcher-agent/vectorstore"
)

const (
	defaultTopK        = 5
	defaultBoostWeight = 0.1
	minRetrievalFetch  = 15

	// NoContentMarker is returned as the context text when the document's
	// namespace holds no vectors, which is a normal state for a document
	// still being ingested.
	NoContentMarker = "[no content indexed for this document]"
)

// SourceRef points a generated claim back at the chunk it came from.
type SourceRef struct {
	DocumentID string `json:"document_id"`
	PageNumber int    `json:"page_number"`
	ChunkID    string `json:"chunk_id"`
}

// Context is the ordered, deduplicated text handed to the response
// generator, plus one source entry per contributing chunk. Consumed once,
// never persisted.
type Context struct {
	Text    string
	Sources []SourceRef
}

func (c Context) Empty() bool {
	return len(c.Sources) == 0
}

type Options struct {
	TopK          int
	MinSimilarity float64
	BoostWeight   float64
}

type Processor struct {
	embedder embeddings.Embedder
	store    vectorstore.Store
	opts     Options
	logger   *log.Logger
}

func NewProcessor(embedder embeddings.Embedder, store vectorstore.Store, opts Options, logger *log.Logger) *Processor {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.BoostWeight <= 0 {
		opts.BoostWeight = defaultBoostWeight
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{embedder: embedder, store: store, opts: opts, logger: logger}
}

// Process runs the full pipeline against one document's namespace. It never
// returns an empty context for a non-empty namespace: when the relevance
// filter would remove every candidate, the single best unfiltered result is
// kept and its low score signals the degraded confidence.
func (p *Processor) Process(ctx context.Context, queryText, documentID string, topK int) (Context, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return Context{}, fmt.Errorf("query text cannot be empty")
	}
	if topK <= 0 {
		topK = p.opts.TopK
	}

	variants := ExpandQuery(queryText)

	vectors, err := p.embedder.Embed(ctx, variants)
	if err != nil {
		return Context{}, fmt.Errorf("embed query variants: %w", err)
	}
	if len(vectors) != len(variants) {
		return Context{}, fmt.Errorf("expected %d query vectors, got %d", len(variants), len(vectors))
	}

	// Over-fetch relative to topK so the relevance filter has room to work.
	fetchK := topK * 3
	if fetchK < minRetrievalFetch {
		fetchK = minRetrievalFetch
	}

	merged := make([]vectorstore.RetrievedResult, 0, fetchK*len(variants))
	seen := make(map[string]struct{}, fetchK*len(variants))
	for i, variant := range variants {
		results, queryErr := p.store.Query(ctx, documentID, vectors[i], fetchK)
		if queryErr != nil {
			return Context{}, fmt.Errorf("retrieve candidates for variant %q: %w", variant, queryErr)
		}
		// First occurrence wins, in variant order, so no single variant's
		// scores bias the merged ranking.
		for _, result := range results {
			if _, ok := seen[result.ChunkID]; ok {
				continue
			}
			seen[result.ChunkID] = struct{}{}
			merged = append(merged, result)
		}
	}

	if len(merged) == 0 {
		return Context{Text: NoContentMarker}, nil
	}

	survivors := filterByRelevance(merged, p.opts.MinSimilarity)
	if len(survivors) < len(merged) {
		p.logger.Printf("relevance filter kept %d of %d candidates (threshold %.2f)", len(survivors), len(merged), p.opts.MinSimilarity)
	}

	boosted := applyKeywordBoost(survivors, queryText, p.opts.BoostWeight)
	sort.SliceStable(boosted, func(i, j int) bool {
		return boosted[i].Score > boosted[j].Score
	})

	if topK < len(boosted) {
		boosted = boosted[:topK]
	}

	return assembleContext(boosted), nil
}

// filterByRelevance drops candidates below the threshold. When that would
// leave nothing, the single highest-scoring candidate is kept so the caller
// always has something to reason about.
func filterByRelevance(results []vectorstore.RetrievedResult, threshold float64) []vectorstore.RetrievedResult {
	filtered := make([]vectorstore.RetrievedResult, 0, len(results))
	for _, result := range results {
		if result.Score >= threshold {
			filtered = append(filtered, result)
		}
	}
	if len(filtered) > 0 {
		return filtered
	}

	best := results[0]
	for _, result := range results[1:] {
		if result.Score > best.Score {
			best = result
		}
	}
	return []vectorstore.RetrievedResult{best}
}
