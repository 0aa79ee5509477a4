// Package api exposes the HTTP surface: document upload, per-document
// question answering, and document/session management.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/frossi85/researcher-agent/chat"
	"github.com/frossi85/researcher-agent/document"
	"github.com/frossi85/researcher-agent/ingestion"
	"github.com/frossi85/researcher-agent/retrying"
)

const maxUploadBytes = 50 << 20

// Server routes HTTP requests to the ingestion and chat services. Services
// are shared across requests; the in-memory tracker and vector store live
// for the process lifetime.
type Server struct {
	ingest  *ingestion.Service
	chat    *chat.Service
	tracker *document.Tracker
	logger  *log.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type documentResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	UploadedAt time.Time `json:"uploaded_at"`
	SessionID  string    `json:"session_id"`
	ChunkCount int       `json:"chunk_count"`
	PageCount  int       `json:"page_count"`
}

type documentListResponse struct {
	Documents []documentResponse `json:"documents"`
}

type clearSessionResponse struct {
	Removed int `json:"removed"`
}

func New(ingest *ingestion.Service, chatSvc *chat.Service, tracker *document.Tracker, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		ingest:  ingest,
		chat:    chatSvc,
		tracker: tracker,
		logger:  logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/documents", s.handleUpload)
	mux.HandleFunc("GET /v1/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("POST /v1/documents/{id}/query", s.handleQuery)
	mux.HandleFunc("DELETE /v1/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("GET /v1/sessions/{id}/documents", s.handleSessionDocuments)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleClearSession)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("file field is required: %w", err))
		return
	}
	defer file.Close()

	filename := header.Filename
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("only PDF files are supported, got %q", filename))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read uploaded file: %w", err))
		return
	}

	sessionID := strings.TrimSpace(r.FormValue("session_id"))

	result, err := s.ingest.ProcessDocument(r.Context(), data, filename, sessionID)
	if err != nil {
		s.writeError(w, ingestStatus(err), fmt.Errorf("ingestion failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.tracker.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")
	if _, err := s.tracker.Get(documentID); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	resp, err := s.chat.Answer(r.Context(), req.Question, documentID, req.TopK)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, retrying.ErrUpstreamUnavailable) {
			status = http.StatusBadGateway
		}
		s.writeError(w, status, fmt.Errorf("query failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.ingest.DeleteDocument(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("delete document: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "document deleted"})
}

func (s *Server) handleSessionDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.tracker.BySession(r.PathValue("id"))

	resp := documentListResponse{Documents: make([]documentResponse, 0, len(docs))}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(doc))
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	removed, err := s.ingest.ClearSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear session: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, clearSessionResponse{Removed: removed})
}

// ingestStatus maps a pipeline failure to an HTTP status. Malformed PDFs are
// the client's fault; exhausted provider retries are the upstream's.
func ingestStatus(err error) int {
	var stageErr *ingestion.StageError
	if errors.As(err, &stageErr) && stageErr.Stage == ingestion.StageExtract {
		return http.StatusBadRequest
	}
	if errors.Is(err, retrying.ErrUpstreamUnavailable) {
		return http.StatusBadGateway
	}
	if errors.Is(err, retrying.ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func toDocumentResponse(doc document.Document) documentResponse {
	return documentResponse{
		ID:         doc.ID,
		Name:       doc.Name,
		UploadedAt: doc.UploadedAt,
		SessionID:  doc.SessionID,
		ChunkCount: doc.ChunkCount,
		PageCount:  doc.PageCount,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
