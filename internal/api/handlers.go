package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/ingest"
	"github.com/docsift/docsift/internal/rag"
)

var allowedTypes = []string{".pdf"}

type errorResponse struct {
	Error string `json:"error"`
}

type submitResponse struct {
	ID       uuid.UUID     `json:"id"`
	Filename string        `json:"filename,omitempty"`
	Status   ingest.Status `json:"status"`
}

type queryRequest struct {
	Question    string      `json:"question"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
	K           int         `json:"k,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps domain errors onto status codes
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rag.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrAlreadyProcessing):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.deps.Log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "docsift document research and theme identification API"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUpload)
	if err := r.ParseMultipartForm(s.deps.MaxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !isAllowed(ext) {
		writeError(w, http.StatusBadRequest, "File type not supported. Allowed types: "+strings.Join(allowedTypes, ", "))
		return
	}

	doc, err := ingest.Register(r.Context(), s.deps.Documents, s.deps.Blobs, header.Filename, file)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	status, err := s.deps.Ingest.Submit(r.Context(), doc.ID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	s.deps.Log.Info("document uploaded", "document_id", doc.ID, "file", doc.OriginalFilename, "bytes", doc.FileSize)
	writeJSON(w, http.StatusOK, submitResponse{ID: doc.ID, Filename: doc.OriginalFilename, Status: status})
}

func isAllowed(ext string) bool {
	for _, t := range allowedTypes {
		if ext == t {
			return true
		}
	}
	return false
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Documents.GetAllDocuments(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if docs == nil {
		docs = []*db.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	doc, err := s.deps.Documents.GetDocument(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Documents.GetDocument(r.Context(), id); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	status, err := s.deps.Ingest.Submit(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{ID: id, Status: status})
}

func (s *Server) handleDocumentPages(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	pages, err := s.deps.Pages.Pages(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{"message": "Delete functionality not implemented yet"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question cannot be empty")
		return
	}

	k := req.K
	if k <= 0 {
		k = s.deps.TopK
	}
	result, err := s.deps.Query.ProcessUserQuery(r.Context(), req.Question, req.DocumentIDs, k)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
