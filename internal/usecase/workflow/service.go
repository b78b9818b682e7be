package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

const maxQueries = 2

// Service orchestrates drafting: generate search queries, fan them out over
// the knowledge base, classify the requirement and draft tickets sized to it.
type Service struct {
	generator Generator
	searcher  Searcher
	tracker   Tracker
	logger    *zap.Logger
}

// New creates a drafting service without ticket creation.
func New(generator Generator, searcher Searcher, logger *zap.Logger) *Service {
	return &Service{
		generator: generator,
		searcher:  searcher,
		logger:    logger,
	}
}

// WithTracker enables ticket creation in an external issue tracker.
func (s *Service) WithTracker(tracker Tracker) *Service {
	s.tracker = tracker
	return s
}

// TrackerConfigured reports whether ticket creation is available.
func (s *Service) TrackerConfigured() bool {
	return s.tracker != nil
}

// Result carries everything one drafting run produced.
type Result struct {
	DraftID     string
	Requirement string
	Queries     []string
	Related     []domain.ScoredDocument
	Complexity  domain.Complexity
	Content     string
	Drafts      []domain.TicketDraft
	Created     []domain.CreatedTicket
}

// Draft runs the full pipeline for a requirement. Query generation and
// search failures degrade to drafting without related context; failing to
// generate the draft content itself is fatal. When createTickets is set and
// a tracker is configured, every parsed draft is pushed to the tracker.
func (s *Service) Draft(ctx context.Context, requirement string, createTickets bool) (Result, error) {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return Result{}, domain.ErrRequirementMissing
	}

	result := Result{
		DraftID:     uuid.NewString(),
		Requirement: requirement,
	}

	queries, err := s.GenerateQueries(ctx, requirement)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, err
		}
		s.logger.Warn("Query generation failed, drafting without related context", zap.Error(err))
	}
	result.Queries = queries

	if len(queries) > 0 {
		related, err := s.searcher.FanOut(ctx, queries)
		switch {
		case errors.Is(err, domain.ErrNoIndex):
			s.logger.Warn("No snapshot loaded, drafting without related context")
		case err != nil:
			if ctx.Err() != nil {
				return Result{}, err
			}
			s.logger.Warn("Search failed, drafting without related context", zap.Error(err))
		default:
			result.Related = related
		}
	}

	contextBlock := buildContext(result.Related)
	result.Complexity = s.classify(ctx, requirement, contextBlock)

	content, err := s.generator.Generate(ctx, draftPrompt(result.Complexity, requirement, contextBlock))
	if err != nil {
		return Result{}, fmt.Errorf("draft content: %w", err)
	}
	result.Content = content
	result.Drafts = ParseDrafts(content)

	s.logger.Info("Requirement drafted",
		zap.String("draft_id", result.DraftID),
		zap.String("complexity", string(result.Complexity)),
		zap.Int("queries", len(result.Queries)),
		zap.Int("related", len(result.Related)),
		zap.Int("drafts", len(result.Drafts)),
	)

	if createTickets {
		result.Created = s.createTickets(ctx, result.Drafts)
	}
	return result, nil
}

// GenerateQueries asks the generator for short search queries covering the
// requirement, one per line, at most maxQueries of them.
func (s *Service) GenerateQueries(ctx context.Context, requirement string) ([]string, error) {
	if strings.TrimSpace(requirement) == "" {
		return nil, domain.ErrRequirementMissing
	}

	raw, err := s.generator.Generate(ctx, queryPrompt(requirement))
	if err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}

	var queries []string
	for _, line := range strings.Split(raw, "\n") {
		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		queries = append(queries, query)
		if len(queries) == maxQueries {
			break
		}
	}
	return queries, nil
}

// classify sizes the requirement, falling back to MEDIUM when the generator
// fails or answers something unexpected.
func (s *Service) classify(ctx context.Context, requirement, contextBlock string) domain.Complexity {
	raw, err := s.generator.Generate(ctx, classifyPrompt(requirement, contextBlock))
	if err != nil {
		s.logger.Warn("Complexity classification failed, assuming MEDIUM", zap.Error(err))
		return domain.ComplexityMedium
	}
	return domain.ParseComplexity(raw)
}

// createTickets pushes drafts to the tracker one by one, recording failures
// instead of aborting the batch.
func (s *Service) createTickets(ctx context.Context, drafts []domain.TicketDraft) []domain.CreatedTicket {
	if s.tracker == nil {
		s.logger.Warn("Ticket creation requested but no tracker is configured")
		return nil
	}

	created := make([]domain.CreatedTicket, 0, len(drafts))
	for _, draft := range drafts {
		key, url, err := s.tracker.Create(ctx, draft)
		if err != nil {
			s.logger.Warn("Ticket creation failed",
				zap.String("title", draft.Title),
				zap.Error(err),
			)
			created = append(created, domain.CreatedTicket{
				Title:  draft.Title,
				Error:  err.Error(),
				Status: domain.TicketStatusFailed,
			})
			continue
		}
		s.logger.Info("Ticket created",
			zap.String("key", key),
			zap.String("title", draft.Title),
		)
		created = append(created, domain.CreatedTicket{
			Title:  draft.Title,
			Key:    key,
			URL:    url,
			Status: domain.TicketStatusCreated,
		})
	}
	return created
}
