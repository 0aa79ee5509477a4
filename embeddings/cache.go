package embeddings

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// Cache stores embeddings keyed by content hash. Implementations must be
// safe for concurrent use; the gateway only ever inserts, never mutates a
// stored vector.
type Cache interface {
	Get(key string) ([]float32, bool)
	Put(key string, vector []float32)
}

type memoryCache struct {
	entries sync.Map
}

// NewMemoryCache returns a process-lifetime in-memory cache.
func NewMemoryCache() Cache {
	return &memoryCache{}
}

func (c *memoryCache) Get(key string) ([]float32, bool) {
	value, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return value.([]float32), true
}

func (c *memoryCache) Put(key string, vector []float32) {
	c.entries.Store(key, vector)
}

// cacheKey hashes the normalized text together with the model name, so the
// same text embedded under a different model never collides.
func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
