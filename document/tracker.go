// Package document tracks uploaded documents and their session ownership.
// The tracker is thin bookkeeping: the vector index remains the source of
// truth for chunk content, and nothing here survives a process restart.
package document

import (
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("document not found")

type Document struct {
	ID         string
	Name       string
	UploadedAt time.Time
	SessionID  string
	ChunkCount int
	PageCount  int
}

type Tracker struct {
	mu        sync.RWMutex
	documents map[string]Document
	sessions  map[string][]string
}

func NewTracker() *Tracker {
	return &Tracker{
		documents: make(map[string]Document),
		sessions:  make(map[string][]string),
	}
}

func (t *Tracker) Add(doc Document) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.documents[doc.ID] = doc
	t.sessions[doc.SessionID] = append(t.sessions[doc.SessionID], doc.ID)
}

func (t *Tracker) Get(documentID string) (Document, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	doc, ok := t.documents[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// BySession returns the session's documents in upload order.
func (t *Tracker) BySession(sessionID string) []Document {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := t.sessions[sessionID]
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := t.documents[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

func (t *Tracker) Remove(documentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.documents[documentID]
	if !ok {
		return ErrNotFound
	}
	delete(t.documents, documentID)

	ids := t.sessions[doc.SessionID]
	for i, id := range ids {
		if id == documentID {
			t.sessions[doc.SessionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// RemoveSession drops the session and returns the ids of its documents so
// the caller can delete their vectors.
func (t *Tracker) RemoveSession(sessionID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	for _, id := range ids {
		delete(t.documents, id)
	}
	return ids
}
