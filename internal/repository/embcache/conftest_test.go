package embcache

import (
	"context"
	"time"

	"github.com/kailas-cloud/semdex/internal/db"
	"github.com/kailas-cloud/semdex/internal/domain"
)

// countingEmbedder counts provider calls and produces one vector per text
// via vecFn, so tests can tell apart which texts reached the provider.
type countingEmbedder struct {
	vec       []float32
	vecFn     func(text string) []float32
	tokens    int
	err       error
	batchErr  error
	calls     int
	batches   int
	lastBatch []string
}

func (m *countingEmbedder) vectorFor(text string) []float32 {
	if m.vecFn != nil {
		return m.vecFn(text)
	}
	return m.vec
}

func (m *countingEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{
		Embedding:    m.vectorFor(text),
		PromptTokens: m.tokens,
		TotalTokens:  m.tokens,
	}, nil
}

func (m *countingEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batches++
	m.lastBatch = texts
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, t := range texts {
		out.Embeddings[i] = m.vectorFor(t)
		out.PromptTokens += m.tokens
		out.TotalTokens += m.tokens
	}
	return out, nil
}

// singleOnlyEmbedder hides BatchEmbed so tests can exercise the per-text
// fallback path.
type singleOnlyEmbedder struct {
	c *countingEmbedder
}

func (s singleOnlyEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return s.c.Embed(ctx, text)
}

// memStore is an in-memory stand-in for the redis KV store.
type memStore struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
	sets   int
}

func newMemStore() *memStore {
	return &memStore{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = value
	return nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.Set(context.Background(), key, value); err != nil {
		return err
	}
	m.ttls[key] = ttl
	return nil
}
