// Package api exposes the knowledge base over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/knowledgebase/internal/auth"
	"github.com/seanblong/knowledgebase/internal/documents"
	"github.com/seanblong/knowledgebase/internal/extract"
	"github.com/seanblong/knowledgebase/pkg/models"
)

// Documents is the document store as seen by the HTTP layer.
type Documents interface {
	Ingest(ctx context.Context, filePath, filename string) (models.IngestResult, error)
	Delete(ctx context.Context, documentID string) (models.DeleteResult, error)
	ListDocuments(ctx context.Context) ([]models.DocumentSummary, error)
	Count(ctx context.Context) (int, error)
}

type Answerer interface {
	Answer(ctx context.Context, query string) models.QueryResult
	SuggestAutoEnrichment(missingInfo []string, query string) []models.EnrichmentSuggestion
	RateAnswerQuality(ctx context.Context, fb models.Feedback) models.FeedbackAck
}

type AutoEnricher interface {
	Enrich(ctx context.Context, query string) models.EnrichmentResult
}

type ExternalEnricher interface {
	Enrich(ctx context.Context, query string, topics []string) models.EnrichmentResult
}

type Config struct {
	UploadDir     string
	MaxFileSizeMB int
}

type Server struct {
	config   Config
	docs     Documents
	rag      Answerer
	auto     AutoEnricher
	external ExternalEnricher
	auth     *auth.Authenticator
}

func NewServer(cfg Config, docs Documents, rag Answerer, auto AutoEnricher, external ExternalEnricher, a *auth.Authenticator) *Server {
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 50
	}
	return &Server{config: cfg, docs: docs, rag: rag, auto: auto, external: external, auth: a}
}

// Handler returns the routed mux wrapped with request logging.
func (s *Server) Handler(logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	protect := s.auth.RequireAuth

	mux.HandleFunc("GET /health", s.health)
	mux.Handle("POST /upload", protect(http.HandlerFunc(s.upload)))
	mux.HandleFunc("POST /search", s.search)
	mux.HandleFunc("POST /feedback", s.feedback)
	mux.HandleFunc("GET /stats", s.stats)
	mux.HandleFunc("GET /documents", s.listDocuments)
	mux.Handle("DELETE /documents/{id}", protect(http.HandlerFunc(s.deleteDocument)))
	mux.Handle("POST /auto-enrich", protect(http.HandlerFunc(s.autoEnrich)))
	mux.Handle("POST /enrich/external", protect(http.HandlerFunc(s.externalEnrich)))

	return hlog.NewHandler(logger)(
		hlog.RequestIDHandler("req_id", "Request-Id")(
			hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
				hlog.FromRequest(r).Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("size", size).
					Dur("dur", dur).
					Msg("http")
			})(mux),
		),
	)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "knowledgebase"})
}

type uploadRecord struct {
	DocumentID  string `json:"document_id,omitempty"`
	Filename    string `json:"filename"`
	TotalChunks int    `json:"total_chunks,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	maxBytes := int64(s.config.MaxFileSizeMB) * 1024 * 1024
	logger := hlog.FromRequest(r)
	results := make([]uploadRecord, 0, len(files))
	for _, fh := range files {
		rec := s.ingestUpload(r.Context(), fh, maxBytes)
		logger.Info().Str("filename", rec.Filename).Str("status", rec.Status).Str("error", rec.Error).
			Int("chunks", rec.TotalChunks).Msg("document upload")
		results = append(results, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) ingestUpload(ctx context.Context, fh *multipart.FileHeader, maxBytes int64) uploadRecord {
	filename := fh.Filename
	rec := uploadRecord{Filename: filename, Status: "error"}

	ext := strings.ToLower(filepath.Ext(filename))
	if !extract.Supported(ext) {
		rec.Error = "Unsupported file type: " + ext
		return rec
	}
	if fh.Size > maxBytes {
		rec.Error = fmt.Sprintf("File too large. Maximum size: %dMB", s.config.MaxFileSizeMB)
		return rec
	}

	f, err := fh.Open()
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	path, err := documents.SaveUpload(s.config.UploadDir, filename, f)
	_ = f.Close()
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	res, err := s.docs.Ingest(ctx, path, filename)
	if err != nil {
		_ = os.Remove(path)
		rec.Error = err.Error()
		return rec
	}
	rec.DocumentID = res.DocumentID
	rec.TotalChunks = res.TotalChunks
	rec.Status = "success"
	return rec
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		Query string `json:"query"`
	}
	if err := decode(w, r, &req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	res := s.rag.Answer(r.Context(), req.Query)
	if len(res.MissingInfo) > 0 {
		res.AutoEnrichment = s.rag.SuggestAutoEnrichment(res.MissingInfo, req.Query)
	}

	hlog.FromRequest(r).Info().
		Str("query", req.Query).
		Float64("confidence", res.Confidence).
		Strs("missing_info", res.MissingInfo).
		Int("sources", len(res.Sources)).
		Dur("processing_time", time.Since(start)).
		Msg("query served")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	var fb models.Feedback
	if err := decode(w, r, &fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid feedback: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.rag.RateAnswerQuality(r.Context(), fb))
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	n, err := s.docs.Count(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("count failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_chunks": n, "status": "success"})
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.ListDocuments(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list documents failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []models.DocumentSummary{}
	}
	chunks := 0
	for _, d := range docs {
		chunks += len(d.Chunks)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":       docs,
		"total_documents": len(docs),
		"total_chunks":    chunks,
		"status":          "success",
	})
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.docs.Delete(r.Context(), id)
	switch {
	case errors.Is(err, models.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "Document not found")
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("document_id", id).Msg("delete failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"message":        fmt.Sprintf("Document '%s' deleted successfully", res.Filename),
		"document_id":    res.DocumentID,
		"filename":       res.Filename,
		"deleted_chunks": res.DeletedChunks,
	})
}

type enrichRequest struct {
	UserQuery string   `json:"user_query"`
	Topics    []string `json:"topics"`
}

func (s *Server) autoEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	res := s.auto.Enrich(r.Context(), req.UserQuery)
	hlog.FromRequest(r).Info().Str("status", res.Status).Str("filename", res.Filename).Msg("auto-enrichment completed")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) externalEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	res := s.external.Enrich(r.Context(), req.UserQuery, req.Topics)
	hlog.FromRequest(r).Info().Str("status", res.Status).Int("sources", res.Sources).Msg("external enrichment completed")
	writeJSON(w, http.StatusOK, res)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}
