// Package ingestion runs the document path: extract PDF text, chunk it,
// embed the chunks, and commit the vectors to the document's namespace.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/frossi85/researcher-agent/chunker"
	"github.com/frossi85/researcher-agent/document"
	"github.com/frossi85/researcher-agent/embeddings"
	"github.com/frossi85/researcher-agent/vectorstore"
)

// Stage names the pipeline step a failure belongs to, so a caller can
// report what to retry.
type Stage string

const (
	StageExtract Stage = "extract"
	StageChunk   Stage = "chunk"
	StageEmbed   Stage = "embed"
	StageIndex   Stage = "index"
)

// StageError tags an ingestion failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func stageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

const (
	previewLength = 100
	sampleChunks  = 3
)

type ChunkPreview struct {
	ChunkID     string `json:"chunk_id"`
	Page        int    `json:"page"`
	TextPreview string `json:"text_preview"`
}

type Result struct {
	DocumentID   string         `json:"document_id"`
	SessionID    string         `json:"session_id"`
	Filename     string         `json:"filename"`
	ChunkCount   int            `json:"chunk_count"`
	PageCount    int            `json:"page_count"`
	SampleChunks []ChunkPreview `json:"sample_chunks"`
}

type Service struct {
	chunker  *chunker.Chunker
	embedder embeddings.Embedder
	store    vectorstore.Store
	tracker  *document.Tracker
	logger   *log.Logger
	extract  func(data []byte) ([]Page, error)
}

func NewService(ch *chunker.Chunker, embedder embeddings.Embedder, store vectorstore.Store, tracker *document.Tracker, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		chunker:  ch,
		embedder: embedder,
		store:    store,
		tracker:  tracker,
		logger:   logger,
		extract:  ExtractPages,
	}
}

// ProcessDocument ingests one uploaded PDF: extract, chunk, embed, index,
// track. A fresh document id becomes the vector namespace; a session id is
// generated when the caller has none yet.
func (s *Service) ProcessDocument(ctx context.Context, pdfBytes []byte, filename, sessionID string) (*Result, error) {
	documentID := uuid.NewString()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	pages, err := s.extract(pdfBytes)
	if err != nil {
		return nil, stageError(StageExtract, err)
	}

	chunks := make([]chunker.TextChunk, 0, len(pages)*2)
	for _, page := range pages {
		chunks = append(chunks, s.chunker.Chunk(page.Text, page.Number, documentID, filename)...)
	}
	s.logger.Printf("chunked %s into %d chunks across %d pages", filename, len(chunks), len(pages))

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}

		vectors, embedErr := s.embedder.Embed(ctx, texts)
		if embedErr != nil {
			return nil, stageError(StageEmbed, embedErr)
		}
		if len(vectors) != len(chunks) {
			return nil, stageError(StageEmbed, fmt.Errorf("embedding count mismatch: have %d chunks, %d vectors", len(chunks), len(vectors)))
		}

		indexed := make([]vectorstore.IndexedVector, len(chunks))
		for i, chunk := range chunks {
			indexed[i] = vectorstore.IndexedVector{
				ID:     chunk.ChunkID,
				Values: vectors[i],
				Metadata: vectorstore.Metadata{
					Text:         chunk.Text,
					DocumentID:   chunk.DocumentID,
					DocumentName: chunk.DocumentName,
					PageNumber:   chunk.PageNumber,
					StartChar:    chunk.StartChar,
					EndChar:      chunk.EndChar,
				},
			}
		}

		if upsertErr := s.store.Upsert(ctx, documentID, indexed); upsertErr != nil {
			return nil, stageError(StageIndex, upsertErr)
		}
	}

	s.tracker.Add(document.Document{
		ID:         documentID,
		Name:       filename,
		UploadedAt: time.Now(),
		SessionID:  sessionID,
		ChunkCount: len(chunks),
		PageCount:  len(pages),
	})

	result := &Result{
		DocumentID: documentID,
		SessionID:  sessionID,
		Filename:   filename,
		ChunkCount: len(chunks),
		PageCount:  len(pages),
	}
	for i := 0; i < len(chunks) && i < sampleChunks; i++ {
		preview := chunks[i].Text
		if len(preview) > previewLength {
			preview = preview[:previewLength] + "..."
		}
		result.SampleChunks = append(result.SampleChunks, ChunkPreview{
			ChunkID:     chunks[i].ChunkID,
			Page:        chunks[i].PageNumber,
			TextPreview: preview,
		})
	}

	s.logger.Printf("ingested %s as document %s (%d chunks)", filename, documentID, len(chunks))
	return result, nil
}

// DeleteDocument removes the document's vectors and untracks it. The
// document's chunks live only in the index, so this destroys them.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.tracker.Get(documentID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, documentID); err != nil {
		return stageError(StageIndex, err)
	}
	return s.tracker.Remove(documentID)
}

// ClearSession deletes every document the session owns, best effort, and
// returns how many were removed.
func (s *Service) ClearSession(ctx context.Context, sessionID string) (int, error) {
	docs := s.tracker.BySession(sessionID)

	count := 0
	for _, doc := range docs {
		if err := s.DeleteDocument(ctx, doc.ID); err != nil {
			if errors.Is(err, document.ErrNotFound) {
				continue
			}
			s.logger.Printf("delete document %s: %v", doc.ID, err)
			continue
		}
		count++
	}

	s.tracker.RemoveSession(sessionID)
	return count, nil
}
