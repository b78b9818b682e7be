package domain

import "errors"

var (
	// ErrNoIndex signals that no persisted index snapshot is available.
	ErrNoIndex = errors.New("no index available")
	// ErrEmptyQuery signals an empty or whitespace-only query string.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrCorpusNotFound signals a missing corpus directory.
	ErrCorpusNotFound = errors.New("corpus directory not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingQuotaExceeded signals that the embedding token budget is spent.
	ErrEmbeddingQuotaExceeded = errors.New("embedding token budget exceeded")
	// ErrGenerationProviderError signals a text-generation provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrTrackerError signals an issue-tracker API failure.
	ErrTrackerError = errors.New("tracker error")
	// ErrRequirementMissing signals a story request without requirement text.
	ErrRequirementMissing = errors.New("requirement is required")
)
