package health

import (
	"context"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// SnapshotChecker reads the active snapshot pointer.
type SnapshotChecker interface {
	Pointer() (domain.SnapshotInfo, error)
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// CachePinger checks embedding cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}
