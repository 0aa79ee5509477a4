package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/frossi85/researcher-agent/retrying"
)

// PineconeStore talks to a Pinecone index over its REST API. Connectivity
// and quota errors go through the shared retry policy; an index-not-found
// on query is treated as no results.
type PineconeStore struct {
	apiKey    string
	indexHost string
	dimension int
	client    *http.Client
	policy    retrying.Policy
	logger    *log.Logger
}

type PineconeOptions struct {
	APIKey    string
	IndexHost string
	Dimension int
	Timeout   time.Duration
	Policy    retrying.Policy
	Logger    *log.Logger
}

func NewPineconeStore(opts PineconeOptions) *PineconeStore {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retrying.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &PineconeStore{
		apiKey:    opts.APIKey,
		indexHost: opts.IndexHost,
		dimension: opts.Dimension,
		client:    &http.Client{Timeout: opts.Timeout},
		policy:    opts.Policy,
		logger:    opts.Logger,
	}
}

type pineconeVector struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace"`
}

type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string   `json:"id"`
		Score    float64  `json:"score"`
		Metadata Metadata `json:"metadata"`
	} `json:"matches"`
}

type pineconeDeleteRequest struct {
	IDs       []string `json:"ids,omitempty"`
	DeleteAll bool     `json:"deleteAll,omitempty"`
	Namespace string   `json:"namespace"`
}

const pineconeUpsertBatch = 100

func (s *PineconeStore) Upsert(ctx context.Context, namespace string, vectors []IndexedVector) error {
	for _, vec := range vectors {
		if s.dimension > 0 && len(vec.Values) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(vec.Values))
		}
	}

	for start := 0; start < len(vectors); start += pineconeUpsertBatch {
		end := start + pineconeUpsertBatch
		if end > len(vectors) {
			end = len(vectors)
		}

		batch := make([]pineconeVector, 0, end-start)
		for _, vec := range vectors[start:end] {
			meta := vec.Metadata
			meta.Text = truncateMetadataText(meta.Text)
			batch = append(batch, pineconeVector{ID: vec.ID, Values: vec.Values, Metadata: meta})
		}

		req := pineconeUpsertRequest{Vectors: batch, Namespace: namespace}
		if err := s.policy.Do(ctx, func() error {
			return s.post(ctx, "/vectors/upsert", req, nil)
		}); err != nil {
			return fmt.Errorf("upsert %d vectors to namespace %s: %w", len(batch), namespace, err)
		}
	}
	return nil
}

func (s *PineconeStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]RetrievedResult, error) {
	if topK <= 0 {
		topK = 5
	}

	req := pineconeQueryRequest{
		Vector:          vector,
		TopK:            topK,
		Namespace:       namespace,
		IncludeMetadata: true,
	}

	var resp pineconeQueryResponse
	err := s.policy.Do(ctx, func() error {
		return s.post(ctx, "/query", req, &resp)
	})
	if err != nil {
		if errors.Is(err, errIndexNotFound) {
			// The namespace has no committed vectors yet; a normal state.
			return nil, nil
		}
		return nil, fmt.Errorf("query namespace %s: %w", namespace, err)
	}

	results := make([]RetrievedResult, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		results = append(results, RetrievedResult{
			ChunkID:  match.ID,
			Score:    match.Score,
			Metadata: match.Metadata,
		})
	}
	return results, nil
}

func (s *PineconeStore) Delete(ctx context.Context, namespace string) error {
	req := pineconeDeleteRequest{DeleteAll: true, Namespace: namespace}
	err := s.policy.Do(ctx, func() error {
		return s.post(ctx, "/vectors/delete", req, nil)
	})
	if err != nil && !errors.Is(err, errIndexNotFound) {
		return fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	return nil
}

func (s *PineconeStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	req := pineconeDeleteRequest{IDs: ids, Namespace: namespace}
	err := s.policy.Do(ctx, func() error {
		return s.post(ctx, "/vectors/delete", req, nil)
	})
	if err != nil && !errors.Is(err, errIndexNotFound) {
		return fmt.Errorf("delete %d vectors from namespace %s: %w", len(ids), namespace, err)
	}
	return nil
}

var errIndexNotFound = errors.New("index not found")

func (s *PineconeStore) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pinecone request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.indexHost+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pinecone request: %w", err)
	}
	req.Header.Set("Api-Key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: call pinecone %s: %v", retrying.ErrTimeout, path, err)
		}
		return retrying.Transient(fmt.Errorf("call pinecone %s: %w", path, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errIndexNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: pinecone %s returned 429", retrying.ErrRateLimited, path)
	case resp.StatusCode >= 500:
		return retrying.Transient(fmt.Errorf("%w: pinecone %s returned %d", retrying.ErrProvider, path, resp.StatusCode))
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: pinecone %s returned %d: %s", retrying.ErrInvalidInput, path, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode pinecone response: %w", err)
	}
	return nil
}

var _ Store = (*PineconeStore)(nil)
