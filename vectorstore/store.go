// Package vectorstore wraps the external vector index behind a capability
// interface with namespace-per-document semantics. Namespace isolation is
// the system's only correctness boundary: queries never cross documents and
// upserts are idempotent by id.
package vectorstore

import (
	"context"
	"fmt"
	"log"

	"github.com/frossi85/researcher-agent/config"
)

// Metadata is the payload persisted beside each vector; it carries enough
// to rebuild a retrieved chunk without a separate durable store.
type Metadata struct {
	Text         string `json:"text"`
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	PageNumber   int    `json:"page_number"`
	StartChar    int    `json:"start_char"`
	EndChar      int    `json:"end_char"`
}

// IndexedVector is the persisted unit inside the vector index.
type IndexedVector struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// RetrievedResult is one similarity match; higher score means more relevant.
// Ephemeral, produced per query.
type RetrievedResult struct {
	ChunkID  string
	Score    float64
	Metadata Metadata
}

// Store is the vector index capability. Implementations must treat a
// missing namespace as empty on Query and as a no-op on Delete, since a
// document may not yet have committed vectors.
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []IndexedVector) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]RetrievedResult, error)
	Delete(ctx context.Context, namespace string) error
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

// Providers cap the metadata payload size; chunk text beyond the cap is
// cut with an explicit marker rather than rejected.
const (
	maxMetadataTextBytes = 36 << 10
	truncationMarker     = "...[truncated]"
)

func truncateMetadataText(text string) string {
	if len(text) <= maxMetadataTextBytes {
		return text
	}
	cut := maxMetadataTextBytes - len(truncationMarker)
	return text[:cut] + truncationMarker
}

// New builds the Store selected by cfg.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (Store, error) {
	switch cfg.VectorStore {
	case config.StoreMemory:
		return NewMemoryStore(cfg.Embeddings.Dimension), nil
	case config.StorePostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, cfg.Embeddings.Dimension)
	case config.StorePinecone:
		return NewPineconeStore(PineconeOptions{
			APIKey:    cfg.PineconeAPIKey,
			IndexHost: cfg.PineconeIndexHost,
			Dimension: cfg.Embeddings.Dimension,
			Logger:    logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore)
	}
}
