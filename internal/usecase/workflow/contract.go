// Package workflow drafts structured tickets from free-form requirements,
// grounding the drafts in retrieved related documents.
package workflow

import (
	"context"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Searcher answers search queries against the knowledge base.
type Searcher interface {
	FanOut(ctx context.Context, queries []string) ([]domain.ScoredDocument, error)
}

// Tracker creates tickets in an external issue tracker.
type Tracker interface {
	Create(ctx context.Context, draft domain.TicketDraft) (key string, url string, err error)
}
