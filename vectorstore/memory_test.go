package vectorstore

import (
	"context"
	"strings"
	"testing"
)

func TestMemoryStoreUpsertIsIdempotent(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	vec := IndexedVector{
		ID:     "chunk-1",
		Values: []float32{1, 0},
		Metadata: Metadata{
			Text:       "first version",
			DocumentID: "doc-1",
			PageNumber: 1,
		},
	}
	if err := store.Upsert(ctx, "doc-1", []IndexedVector{vec}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	vec.Metadata.Text = "second version"
	if err := store.Upsert(ctx, "doc-1", []IndexedVector{vec}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	results, err := store.Query(ctx, "doc-1", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("re-upserting the same id must not duplicate, got %d results", len(results))
	}
	if results[0].Metadata.Text != "second version" {
		t.Fatalf("upsert must overwrite metadata, got %q", results[0].Metadata.Text)
	}
}

func TestMemoryStoreMissingNamespaceIsEmptyNotError(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	results, err := store.Query(ctx, "unknown", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("query on missing namespace must not fail: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}

	if err := store.Delete(ctx, "unknown"); err != nil {
		t.Fatalf("delete on missing namespace must be a no-op: %v", err)
	}
	if err := store.DeleteIDs(ctx, "unknown", []string{"chunk-1"}); err != nil {
		t.Fatalf("deleteIDs on missing namespace must be a no-op: %v", err)
	}
}

func TestMemoryStoreRanksByCosineSimilarity(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	err := store.Upsert(ctx, "doc-1", []IndexedVector{
		{ID: "aligned", Values: []float32{1, 0}},
		{ID: "orthogonal", Values: []float32{0, 1}},
		{ID: "diagonal", Values: []float32{1, 1}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := store.Query(ctx, "doc-1", []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected topK=2 results, got %d", len(results))
	}
	if results[0].ChunkID != "aligned" {
		t.Fatalf("expected aligned vector first, got %q", results[0].ChunkID)
	}
	if results[0].Score < 0.99 {
		t.Fatalf("aligned vector score should be ~1, got %f", results[0].Score)
	}
	if results[1].ChunkID != "diagonal" {
		t.Fatalf("expected diagonal vector second, got %q", results[1].ChunkID)
	}
}

func TestMemoryStoreNamespaceIsolation(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	if err := store.Upsert(ctx, "doc-a", []IndexedVector{{ID: "a1", Values: []float32{1, 0}}}); err != nil {
		t.Fatalf("upsert doc-a: %v", err)
	}
	if err := store.Upsert(ctx, "doc-b", []IndexedVector{{ID: "b1", Values: []float32{1, 0}}}); err != nil {
		t.Fatalf("upsert doc-b: %v", err)
	}

	results, err := store.Query(ctx, "doc-a", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "a1" {
		t.Fatalf("query must only see its own namespace, got %+v", results)
	}

	if err := store.Delete(ctx, "doc-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	results, err = store.Query(ctx, "doc-b", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("query doc-b: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("deleting doc-a must not touch doc-b, got %d results", len(results))
	}
}

func TestMemoryStoreDeleteIDs(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	err := store.Upsert(ctx, "doc-1", []IndexedVector{
		{ID: "keep", Values: []float32{1, 0}},
		{ID: "drop", Values: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.DeleteIDs(ctx, "doc-1", []string{"drop"}); err != nil {
		t.Fatalf("deleteIDs: %v", err)
	}

	results, err := store.Query(ctx, "doc-1", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "keep" {
		t.Fatalf("expected only the kept vector, got %+v", results)
	}
}

func TestMemoryStoreRejectsDimensionMismatch(t *testing.T) {
	store := NewMemoryStore(3)
	err := store.Upsert(context.Background(), "doc-1", []IndexedVector{{ID: "bad", Values: []float32{1, 0}}})
	if err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestTruncateMetadataText(t *testing.T) {
	short := "fits fine"
	if got := truncateMetadataText(short); got != short {
		t.Fatalf("short text must pass through unchanged")
	}

	long := strings.Repeat("a", maxMetadataTextBytes+100)
	got := truncateMetadataText(long)
	if len(got) > maxMetadataTextBytes {
		t.Fatalf("truncated text is %d bytes, limit is %d", len(got), maxMetadataTextBytes)
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Fatalf("truncated text must end with the marker")
	}
}
