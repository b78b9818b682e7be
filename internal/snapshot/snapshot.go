// Package snapshot persists and loads index/documents pairs.
//
// Each build lands in its own versioned directory under the data root; a
// single pointer file names the active pair and is replaced atomically via
// rename. Readers therefore always see a complete snapshot, and a build that
// dies halfway never corrupts the active one.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/index"
)

// Snapshot is one immutable index/documents pair loaded into memory.
// Row i of the index corresponds to documents[i].
type Snapshot struct {
	index     *index.Flat
	documents []domain.Document
	info      domain.SnapshotInfo
}

// New wraps an index, its document sequence and its descriptor.
func New(idx *index.Flat, documents []domain.Document, info domain.SnapshotInfo) *Snapshot {
	return &Snapshot{index: idx, documents: documents, info: info}
}

// Search runs a top-k scan over the snapshot index.
func (s *Snapshot) Search(query []float32, k int) ([]index.Candidate, error) {
	candidates, err := s.index.Search(query, k)
	if err != nil {
		if errors.Is(err, index.ErrDimensionMismatch) {
			return nil, fmt.Errorf("%w: %v", domain.ErrVectorDimMismatch, err)
		}
		return nil, err
	}
	return candidates, nil
}

// Document returns the document at the given index row. The second return is
// false when the row does not map onto the document sequence.
func (s *Snapshot) Document(row int) (domain.Document, bool) {
	if row < 0 || row >= len(s.documents) {
		return domain.Document{}, false
	}
	return s.documents[row], true
}

// Len returns the number of documents in the snapshot.
func (s *Snapshot) Len() int { return len(s.documents) }

// Info returns the snapshot descriptor.
func (s *Snapshot) Info() domain.SnapshotInfo { return s.info }
