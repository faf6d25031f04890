// Package chi exposes the query and ingest pipelines over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/examdex/examdex/internal/domain"
	logpkg "github.com/examdex/examdex/internal/logger"
	"github.com/examdex/examdex/internal/metrics"
	healthuc "github.com/examdex/examdex/internal/usecase/health"
	ingestuc "github.com/examdex/examdex/internal/usecase/ingest"
	queryuc "github.com/examdex/examdex/internal/usecase/query"
	"github.com/examdex/examdex/internal/usecase/retrieval"
)

// QueryService answers student messages.
type QueryService interface {
	Ask(ctx context.Context, text string, flt retrieval.Filters, citationLimit int) queryuc.Response
}

// IngestService turns document text into embedded fragments.
type IngestService interface {
	IngestText(ctx context.Context, doc domain.SourceDocument, text string) (ingestuc.Result, error)
}

// Catalogue registers papers and their source documents.
type Catalogue interface {
	SavePaper(ctx context.Context, p domain.Paper) error
	SaveDocument(ctx context.Context, d domain.SourceDocument) error
}

// HealthService aggregates component checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// Server is the HTTP API server.
type Server struct {
	query     QueryService
	ingest    IngestService
	catalogue Catalogue
	health    HealthService
	logger    *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(query QueryService, ingest IngestService, catalogue Catalogue, health HealthService, logger *zap.Logger) *Server {
	return &Server{
		query:     query,
		ingest:    ingest,
		catalogue: catalogue,
		health:    health,
		logger:    logger,
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chimw.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Post("/api/query", s.Query)
	r.Post("/api/ingest", s.Ingest)

	return r
}

type queryRequest struct {
	Question string        `json:"question"`
	Limit    int           `json:"limit,omitempty"`
	Filters  *queryFilters `json:"filters,omitempty"`
}

type queryFilters struct {
	Subject  string `json:"subject,omitempty"`
	Year     int    `json:"year,omitempty"`
	FileType string `json:"file_type,omitempty"`
	Level    string `json:"level,omitempty"`
}

// Query handles POST /api/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "question is required")
		return
	}

	var flt retrieval.Filters
	if req.Filters != nil {
		flt = retrieval.Filters{
			Subject:  req.Filters.Subject,
			Year:     req.Filters.Year,
			FileType: req.Filters.FileType,
			Level:    req.Filters.Level,
		}
	}

	resp := s.query.Ask(r.Context(), req.Question, flt, req.Limit)
	writeJSON(w, http.StatusOK, resp)
}

type ingestRequest struct {
	Document ingestDocument `json:"document"`
	Text     string         `json:"text"`
}

type ingestDocument struct {
	ID          string `json:"id,omitempty"`
	PaperID     string `json:"paper_id,omitempty"`
	FileType    string `json:"file_type"`
	StoragePath string `json:"storage_path"`
	Subject     string `json:"subject"`
	Level       string `json:"level"`
	Year        int    `json:"year"`
	Session     string `json:"session"`
	PaperNumber int    `json:"paper_number"`
}

type ingestResponse struct {
	DocumentID        string `json:"document_id"`
	PaperID           string `json:"paper_id"`
	FragmentsCreated  int    `json:"fragments_created"`
	EmbeddingsCreated int    `json:"embeddings_created"`
}

// Ingest handles POST /api/ingest. Registers the paper and document rows,
// then runs the text through the fragment pipeline. Re-posting the same
// document is an idempotent no-op for everything already stored.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	doc, err := documentFromRequest(req.Document)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "text is required")
		return
	}

	if err := s.catalogue.SavePaper(r.Context(), paperFromDocument(doc)); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	created := true
	if err := s.catalogue.SaveDocument(r.Context(), doc); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			s.handleDomainError(w, r, err)
			return
		}
		created = false
	}

	res, err := s.ingest.IngestText(r.Context(), doc, req.Text)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ingestResponse{
		DocumentID:        doc.ID,
		PaperID:           doc.PaperID,
		FragmentsCreated:  res.FragmentsCreated,
		EmbeddingsCreated: res.EmbeddingsCreated,
	})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func documentFromRequest(d ingestDocument) (domain.SourceDocument, error) {
	ft := domain.FileType(d.FileType)
	if !domain.ValidFileType(ft) {
		return domain.SourceDocument{}, errors.New("file_type must be one of QP, MS, ER, GT")
	}
	if d.Subject == "" {
		return domain.SourceDocument{}, errors.New("subject is required")
	}
	if d.Year == 0 {
		return domain.SourceDocument{}, errors.New("year is required")
	}

	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	paperID := d.PaperID
	if paperID == "" {
		paperID = uuid.NewString()
	}

	return domain.SourceDocument{
		ID:          id,
		PaperID:     paperID,
		FileType:    ft,
		StoragePath: d.StoragePath,
		SubjectCode: d.Subject,
		Level:       d.Level,
		Year:        d.Year,
		Session:     d.Session,
		PaperNumber: d.PaperNumber,
	}, nil
}

func paperFromDocument(d domain.SourceDocument) domain.Paper {
	return domain.Paper{
		ID:          d.PaperID,
		SubjectCode: d.SubjectCode,
		Level:       d.Level,
		Year:        d.Year,
		Session:     d.Session,
		PaperNumber: d.PaperNumber,
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrFragmentNotFound,
		domain.ErrEmbeddingProviderError,
		domain.ErrModelProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)

	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrFragmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", msg)
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", msg)
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		writeError(w, http.StatusBadGateway, "embedding_provider_error", msg)
	case errors.Is(err, domain.ErrModelProviderError):
		writeError(w, http.StatusBadGateway, "model_provider_error", msg)
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
