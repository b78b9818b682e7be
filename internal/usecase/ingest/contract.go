// Package ingest builds index snapshots from a corpus directory.
package ingest

import (
	"context"

	"github.com/kailas-cloud/semdex/internal/corpus"
	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/index"
)

// CorpusLoader reads raw source records into normalized documents.
type CorpusLoader interface {
	Load(ctx context.Context) ([]domain.Document, corpus.Stats, error)
}

// SnapshotWriter persists a built index/documents pair and activates it.
type SnapshotWriter interface {
	Write(idx *index.Flat, documents []domain.Document) (domain.SnapshotInfo, error)
	Prune(keep int) (int, error)
}
