package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	healthuc "github.com/kailas-cloud/semdex/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/semdex/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/semdex/internal/usecase/usage"
	workflowuc "github.com/kailas-cloud/semdex/internal/usecase/workflow"
)

// maxTopK bounds how many candidates one search request may ask for.
const maxTopK = 500

// maxRelatedPreview caps how many related documents a story response embeds.
const maxRelatedPreview = 3

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the retrieval and drafting services over HTTP.
type Server struct {
	retrieval     *retrievaluc.Service
	workflow      *workflowuc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	retrieval *retrievaluc.Service,
	workflow *workflowuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		retrieval: retrieval,
		workflow:  workflow,
		usage:     usage,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNoIndex, http.StatusNotFound, codeNoIndex),
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrRequirementMissing, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded,
			http.StatusPaymentRequired, codeEmbeddingQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrGenerationProviderError,
			http.StatusBadGateway, codeGenerationProviderError),
		sentinelHandler(domain.ErrTrackerError, http.StatusBadGateway, codeTrackerError),
	}
	return s
}

// Routes mounts every handler on a fresh chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/stories", s.CreateStory)
		r.Post("/search", s.Search)
		r.Post("/queries", s.GenerateQueries)
		r.Get("/snapshot", s.GetSnapshot)
		r.Post("/snapshot/reload", s.ReloadSnapshot)
		r.Get("/usage", s.GetUsage)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	return r
}

// CreateStory handles POST /api/v1/stories.
func (s *Server) CreateStory(w http.ResponseWriter, r *http.Request) {
	var req storyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Requirement) == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Requirement is required")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	result, err := s.workflow.Draft(ctx, req.Requirement, req.CreateTickets)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	related := result.Related
	if len(related) > maxRelatedPreview {
		related = related[:maxRelatedPreview]
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, storyResponse{
		DraftID:       result.DraftID,
		Requirement:   result.Requirement,
		Complexity:    result.Complexity,
		Content:       result.Content,
		SearchQueries: result.Queries,
		RelatedCount:  len(result.Related),
		Related:       related,
		Tickets:       result.Drafts,
		Created:       result.Created,
	})
}

// Search handles POST /api/v1/search. It runs a single-pass query: an
// explicit threshold is honored as-is, with no fallback widening.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Query is required")
		return
	}

	threshold := s.retrieval.Threshold()
	if req.Threshold != nil {
		if *req.Threshold > 1 {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "threshold must not exceed 1")
			return
		}
		threshold = *req.Threshold
	}

	topK := 0
	if req.TopK != nil {
		if *req.TopK <= 0 || *req.TopK > maxTopK {
			writeError(w, http.StatusBadRequest, codeValidationFailed,
				"top_k must be between 1 and "+strconv.Itoa(maxTopK))
			return
		}
		topK = *req.TopK
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.retrieval.Retrieve(ctx, req.Query, threshold, topK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, searchResponse{
		Query:     req.Query,
		Threshold: threshold,
		Results:   results,
		Total:     len(results),
	})
}

// GenerateQueries handles POST /api/v1/queries.
func (s *Server) GenerateQueries(w http.ResponseWriter, r *http.Request) {
	var req queriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Requirement) == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Requirement is required")
		return
	}

	queries, err := s.workflow.GenerateQueries(r.Context(), req.Requirement)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if queries == nil {
		queries = []string{}
	}

	writeJSON(w, http.StatusOK, queriesResponse{Queries: queries})
}

// GetSnapshot handles GET /api/v1/snapshot.
func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	info, err := s.retrieval.SnapshotInfo(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// ReloadSnapshot handles POST /api/v1/snapshot/reload.
func (s *Server) ReloadSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.retrieval.Reload(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	info, err := s.retrieval.SnapshotInfo(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reloadResponse{
		Status:   "reloaded",
		Snapshot: info,
	})
}

// GetUsage handles GET /api/v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period := usageuc.PeriodDay
	if r.URL.Query().Get("period") == "month" {
		period = usageuc.PeriodMonth
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := usageResponse{
		Period: string(report.Period),
		Budget: budgetStatus{
			TokensLimit:     report.TokensLimit,
			TokensUsed:      report.TokensUsed,
			TokensRemaining: report.Remaining,
			IsExhausted:     report.Exhausted,
		},
	}
	if report.PeriodStart > 0 {
		start := time.UnixMilli(report.PeriodStart).UTC()
		end := time.UnixMilli(report.PeriodEnd).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNoIndex,
		domain.ErrEmptyQuery,
		domain.ErrRequirementMissing,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationProviderError,
		domain.ErrTrackerError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	// Request-scoped logger carries the request id from the middleware.
	log := logpkg.FromContext(r.Context(), s.logger)

	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
