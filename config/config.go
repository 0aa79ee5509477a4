// Package config loads and validates the process configuration from the
// environment. Components receive an explicit Config (or a slice of it) at
// construction; nothing reads environment variables after startup.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StorePinecone = "pinecone"
)

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
	BatchSize int
}

type LLMConfig struct {
	Provider string
	Model    string
}

type Config struct {
	HTTPAddr string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaHost    string

	Embeddings EmbeddingConfig
	LLM        LLMConfig

	ChunkSize    int
	ChunkOverlap int

	MinSimilarityThreshold float64
	TopK                   int

	VectorStore       string
	PostgresDSN       string
	PineconeAPIKey    string
	PineconeIndexHost string
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),

		Embeddings: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", ProviderOpenAI),
			Model:     getEnv("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),
			Dimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
			BatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 100),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		},

		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		MinSimilarityThreshold: getEnvFloat("MIN_SIMILARITY_THRESHOLD", 0.6),
		TopK:                   getEnvInt("TOP_K", 5),

		VectorStore:       getEnv("VECTOR_STORE", StoreMemory),
		PostgresDSN:       getEnv("POSTGRES_DSN", "postgres://localhost:5432/researcher-agent?sslmode=disable"),
		PineconeAPIKey:    getEnv("PINECONE_API_KEY", ""),
		PineconeIndexHost: getEnv("PINECONE_INDEX_HOST", ""),
	}
}

// Validate checks option combinations that would otherwise fail deep inside
// the pipeline. Every violation here is fatal: the process must not start.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must satisfy 0 <= overlap < CHUNK_SIZE, got overlap=%d size=%d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.MinSimilarityThreshold < 0 || c.MinSimilarityThreshold > 1 {
		return fmt.Errorf("MIN_SIMILARITY_THRESHOLD must be within [0,1], got %g", c.MinSimilarityThreshold)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive, got %d", c.TopK)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive, got %d", c.Embeddings.BatchSize)
	}

	switch c.Embeddings.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai embedding provider selected but OPENAI_API_KEY not set")
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("unknown embedding provider: %s", c.Embeddings.Provider)
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai llm provider selected but OPENAI_API_KEY not set")
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}

	switch c.VectorStore {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres vector store selected but POSTGRES_DSN not set")
		}
	case StorePinecone:
		if c.PineconeAPIKey == "" {
			return fmt.Errorf("pinecone vector store selected but PINECONE_API_KEY not set")
		}
		if c.PineconeIndexHost == "" {
			return fmt.Errorf("pinecone vector store selected but PINECONE_INDEX_HOST not set")
		}
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
