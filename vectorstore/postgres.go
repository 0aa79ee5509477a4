package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore keeps vectors in a pgvector table with a namespace column,
// one namespace per document.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
}

func NewPostgresStore(ctx context.Context, dsn string, dimension int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	store := &PostgresStore{pool: pool, dimension: dimension}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rag_vectors (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			content TEXT NOT NULL,
			document_id TEXT NOT NULL,
			document_name TEXT NOT NULL,
			page_number INT NOT NULL,
			start_char INT NOT NULL,
			end_char INT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.dimension),
		"CREATE INDEX IF NOT EXISTS rag_vectors_namespace_idx ON rag_vectors (namespace)",
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, namespace string, vectors []IndexedVector) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, vec := range vectors {
		if s.dimension > 0 && len(vec.Values) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(vec.Values))
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO rag_vectors (id, namespace, content, document_id, document_name, page_number, start_char, end_char, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				namespace = EXCLUDED.namespace,
				content = EXCLUDED.content,
				document_id = EXCLUDED.document_id,
				document_name = EXCLUDED.document_name,
				page_number = EXCLUDED.page_number,
				start_char = EXCLUDED.start_char,
				end_char = EXCLUDED.end_char,
				embedding = EXCLUDED.embedding,
				updated_at = NOW()
		`, vec.ID, namespace, truncateMetadataText(vec.Metadata.Text), vec.Metadata.DocumentID, vec.Metadata.DocumentName,
			vec.Metadata.PageNumber, vec.Metadata.StartChar, vec.Metadata.EndChar, pgvector.NewVector(vec.Values)); err != nil {
			return fmt.Errorf("upsert vector %s: %w", vec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]RetrievedResult, error) {
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, content, document_id, document_name, page_number, start_char, end_char,
		       1 - (embedding <=> $1::vector) AS score
		FROM rag_vectors
		WHERE namespace = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, pgvector.NewVector(vector), namespace, topK)
	if err != nil {
		return nil, fmt.Errorf("query similar vectors: %w", err)
	}
	defer rows.Close()

	results := make([]RetrievedResult, 0, topK)
	for rows.Next() {
		var item RetrievedResult
		if err := rows.Scan(&item.ChunkID, &item.Metadata.Text, &item.Metadata.DocumentID, &item.Metadata.DocumentName,
			&item.Metadata.PageNumber, &item.Metadata.StartChar, &item.Metadata.EndChar, &item.Score); err != nil {
			return nil, fmt.Errorf("scan similar vector: %w", err)
		}
		results = append(results, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

func (s *PostgresStore) Delete(ctx context.Context, namespace string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM rag_vectors WHERE namespace = $1", namespace); err != nil {
		return fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	return nil
}

func (s *PostgresStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM rag_vectors WHERE namespace = $1 AND id = ANY($2)", namespace, ids); err != nil {
		return fmt.Errorf("delete vectors from %s: %w", namespace, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
