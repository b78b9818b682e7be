package httpapi

import (
	"time"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// errorCode is the machine-readable code carried in error response bodies.
type errorCode string

const (
	codeBadRequest              errorCode = "bad_request"
	codeUnauthorized            errorCode = "unauthorized"
	codeValidationFailed        errorCode = "validation_failed"
	codeNoIndex                 errorCode = "no_index"
	codeEmbeddingQuotaExceeded  errorCode = "embedding_quota_exceeded"
	codeEmbeddingProviderError  errorCode = "embedding_provider_error"
	codeGenerationProviderError errorCode = "generation_provider_error"
	codeTrackerError            errorCode = "tracker_error"
	codeInternalError           errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

type searchRequest struct {
	Query     string   `json:"query"`
	Threshold *float64 `json:"threshold,omitempty"`
	TopK      *int     `json:"top_k,omitempty"`
}

type searchResponse struct {
	Query     string                  `json:"query"`
	Threshold float64                 `json:"threshold"`
	Results   []domain.ScoredDocument `json:"results"`
	Total     int                     `json:"total"`
}

type storyRequest struct {
	Requirement   string `json:"requirement"`
	CreateTickets bool   `json:"create_tickets"`
}

type storyResponse struct {
	DraftID       string                  `json:"draft_id"`
	Requirement   string                  `json:"requirement"`
	Complexity    domain.Complexity       `json:"complexity"`
	Content       string                  `json:"content"`
	SearchQueries []string                `json:"search_queries"`
	RelatedCount  int                     `json:"related_count"`
	Related       []domain.ScoredDocument `json:"related,omitempty"`
	Tickets       []domain.TicketDraft    `json:"tickets"`
	Created       []domain.CreatedTicket  `json:"created,omitempty"`
}

type queriesRequest struct {
	Requirement string `json:"requirement"`
}

type queriesResponse struct {
	Queries []string `json:"queries"`
}

type reloadResponse struct {
	Status   string              `json:"status"`
	Snapshot domain.SnapshotInfo `json:"snapshot"`
}

type budgetStatus struct {
	TokensLimit     int64 `json:"tokens_limit"`
	TokensUsed      int64 `json:"tokens_used"`
	TokensRemaining int64 `json:"tokens_remaining"`
	IsExhausted     bool  `json:"is_exhausted"`
}

type usageResponse struct {
	Period        string       `json:"period"`
	PeriodStartAt *time.Time   `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time   `json:"period_end_at,omitempty"`
	Budget        budgetStatus `json:"budget"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
