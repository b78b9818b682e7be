// Package retrieval answers semantic search queries against the active
// index snapshot.
package retrieval

import (
	"context"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/snapshot"
)

// SnapshotLoader loads the active snapshot from storage.
type SnapshotLoader interface {
	Load(ctx context.Context) (*snapshot.Snapshot, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
