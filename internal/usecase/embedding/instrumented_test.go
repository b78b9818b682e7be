package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

// stubProvider fabricates dims-sized vectors and charges tokensPer tokens
// per text, counting how it was called.
type stubProvider struct {
	dims      int
	tokensPer int
	err       error
	batchErr  error

	embeds  int
	batches int
}

func (p *stubProvider) vec() []float32 {
	v := make([]float32, p.dims)
	for i := range v {
		v[i] = float32(i + 1)
	}
	return v
}

func (p *stubProvider) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	p.embeds++
	if p.err != nil {
		return domain.EmbeddingResult{}, p.err
	}
	return domain.EmbeddingResult{
		Embedding:    p.vec(),
		PromptTokens: p.tokensPer,
		TotalTokens:  p.tokensPer,
	}, nil
}

func (p *stubProvider) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	p.batches++
	if p.batchErr != nil {
		return domain.BatchEmbeddingResult{}, p.batchErr
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i := range texts {
		out.Embeddings[i] = p.vec()
	}
	out.PromptTokens = p.tokensPer * len(texts)
	out.TotalTokens = p.tokensPer * len(texts)
	return out, nil
}

// singleProvider exposes only Embed, forcing the batch fallback path.
type singleProvider struct {
	p *stubProvider
}

func (s *singleProvider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return s.p.Embed(ctx, text)
}

// rejectingBudget builds a tracker whose day budget is already spent.
func rejectingBudget(provider string) *BudgetTracker {
	b := NewBudgetTracker(provider, 50, 0, BudgetActionReject, zap.NewNop())
	b.Record(50)
	return b
}

func TestEmbed_DelegatesAndReports(t *testing.T) {
	inner := &stubProvider{dims: 3, tokensPer: 100}
	emb := NewInstrumentedEmbedder(inner, "test", "test-model", nil, zap.NewNop())

	res, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Embedding) != 3 {
		t.Errorf("len(res.Embedding) = %d, want 3", len(res.Embedding))
	}
	if res.TotalTokens != 100 {
		t.Errorf("res.TotalTokens = %d, want 100", res.TotalTokens)
	}
	if inner.embeds != 1 {
		t.Errorf("inner.embeds = %d, want 1", inner.embeds)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &stubProvider{err: fmt.Errorf("api down")}
	emb := NewInstrumentedEmbedder(inner, "test-err", "test-model-e", nil, zap.NewNop())

	if _, err := emb.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("want error from inner provider")
	}
}

func TestEmbed_BudgetExhausted(t *testing.T) {
	inner := &stubProvider{dims: 1}
	emb := NewInstrumentedEmbedder(inner, "test-budget", "test-model-b",
		rejectingBudget("test-budget"), zap.NewNop())

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("err = %v, want ErrEmbeddingQuotaExceeded", err)
	}
	// Провайдер не должен вызываться, токены уже не на что тратить.
	if inner.embeds != 0 {
		t.Errorf("inner.embeds = %d, want 0", inner.embeds)
	}
}

func TestEmbed_SpendsBudgetAndGauge(t *testing.T) {
	budget := NewBudgetTracker("test-gauge", 1_000_000, 10_000_000, BudgetActionReject, zap.NewNop())

	inner := &stubProvider{dims: 3, tokensPer: 500}
	emb := NewInstrumentedEmbedder(inner, "test-gauge", "test-model-r", budget, zap.NewNop())

	if _, err := emb.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if got := budget.RemainingDaily(); got != 1_000_000-500 {
		t.Errorf("RemainingDaily() = %d, want 999500", got)
	}
	if got := budget.RemainingMonthly(); got != 10_000_000-500 {
		t.Errorf("RemainingMonthly() = %d, want 9999500", got)
	}

	gauge := metrics.EmbeddingBudgetTokensRemaining.WithLabelValues("test-gauge", string(PeriodDay))
	if got := testutil.ToFloat64(gauge); got != 999500 {
		t.Errorf("day gauge = %f, want 999500", got)
	}
}

func TestBatchEmbed_SingleChunk(t *testing.T) {
	inner := &stubProvider{dims: 2, tokensPer: 10}
	emb := NewInstrumentedEmbedder(inner, "test-batch", "test-model-b", nil, zap.NewNop())

	res, err := emb.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("len(res.Embeddings) = %d, want 3", len(res.Embeddings))
	}
	if res.TotalTokens != 30 {
		t.Errorf("res.TotalTokens = %d, want 30", res.TotalTokens)
	}
	if inner.batches != 1 {
		t.Errorf("inner.batches = %d, want 1", inner.batches)
	}
}

func TestBatchEmbed_Empty(t *testing.T) {
	inner := &stubProvider{dims: 1}
	emb := NewInstrumentedEmbedder(inner, "test", "test-model", nil, zap.NewNop())

	res, err := emb.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if res.Embeddings != nil {
		t.Errorf("res.Embeddings = %v, want nil", res.Embeddings)
	}
	if inner.batches != 0 {
		t.Errorf("inner.batches = %d, want 0", inner.batches)
	}
}

func TestBatchEmbed_ChunksAtLimit(t *testing.T) {
	inner := &stubProvider{dims: 1, tokensPer: 10}
	emb := NewInstrumentedEmbedder(inner, "test-chunk", "model", nil, zap.NewNop())

	texts := make([]string, DefaultMaxAPIBatchSize+44)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	res, err := emb.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if len(res.Embeddings) != len(texts) {
		t.Fatalf("len(res.Embeddings) = %d, want %d", len(res.Embeddings), len(texts))
	}
	if inner.batches != 2 {
		t.Errorf("inner.batches = %d, want 2", inner.batches)
	}
	if res.TotalTokens != 10*len(texts) {
		t.Errorf("res.TotalTokens = %d, want %d", res.TotalTokens, 10*len(texts))
	}
}

func TestBatchEmbed_RejectedBeforeProviderCall(t *testing.T) {
	inner := &stubProvider{dims: 1}
	emb := NewInstrumentedEmbedder(inner, "test-batch-budget", "model",
		rejectingBudget("test-batch-budget"), zap.NewNop())

	_, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("err = %v, want ErrEmbeddingQuotaExceeded", err)
	}
	if inner.batches != 0 {
		t.Errorf("inner.batches = %d, want 0", inner.batches)
	}
}

func TestBatchEmbed_SpendsBudgetPerText(t *testing.T) {
	budget := NewBudgetTracker("test-batch-rec", 1_000_000, 0, BudgetActionReject, zap.NewNop())

	inner := &stubProvider{dims: 1, tokensPer: 100}
	emb := NewInstrumentedEmbedder(inner, "test-batch-rec", "model", budget, zap.NewNop())

	before := budget.RemainingDaily()
	if _, err := emb.BatchEmbed(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}

	if spent := before - budget.RemainingDaily(); spent != 300 {
		t.Errorf("budget spent = %d, want 300", spent)
	}
}

func TestBatchEmbed_InnerError(t *testing.T) {
	inner := &stubProvider{batchErr: fmt.Errorf("api down")}
	emb := NewInstrumentedEmbedder(inner, "test-err", "model", nil, zap.NewNop())

	if _, err := emb.BatchEmbed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("want error from inner provider")
	}
}

func TestBatchEmbed_SingleOnlyProviderFallsBack(t *testing.T) {
	inner := &stubProvider{dims: 1, tokensPer: 5}
	emb := NewInstrumentedEmbedder(&singleProvider{p: inner}, "test-fb", "model", nil, zap.NewNop())

	res, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("len(res.Embeddings) = %d, want 2", len(res.Embeddings))
	}
	if inner.embeds != 2 {
		t.Errorf("inner.embeds = %d, want 2", inner.embeds)
	}
	if inner.batches != 0 {
		t.Errorf("inner.batches = %d, want 0", inner.batches)
	}
}
