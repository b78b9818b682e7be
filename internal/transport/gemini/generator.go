// Package gemini provides text generation and embedding over the Google
// Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/metrics"
)

const providerName = "gemini"

// Generator produces text with a Gemini chat model.
type Generator struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// GeneratorConfig holds text-generation provider settings.
type GeneratorConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	Logger      *zap.Logger
}

// NewGenerator creates a Gemini text generator.
func NewGenerator(ctx context.Context, cfg *GeneratorConfig) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Generator{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		logger:      cfg.Logger,
	}, nil
}

// Generate implements domain.TextGenerator. The response text is returned
// verbatim; callers own any parsing of it.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}

	start := time.Now()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, g.model, "error").Inc()
		g.logger.Error("Generation request failed",
			zap.String("model", g.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", fmt.Errorf("generate content: %v: %w", err, domain.ErrGenerationProviderError)
	}

	text := textFromResponse(resp)
	if text == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, g.model, "error").Inc()
		return "", fmt.Errorf("empty generation response: %w", domain.ErrGenerationProviderError)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(providerName, g.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(providerName, g.model).Observe(duration.Seconds())
	recordTokenUsage(g.model, resp)

	g.logger.Debug("Generation request completed",
		zap.String("model", g.model),
		zap.Duration("duration", duration),
		zap.Int("response_chars", len(text)),
	)

	return text, nil
}

// textFromResponse concatenates the text parts of the first candidate that
// has any. Candidates blocked by safety filters come back with empty parts.
func textFromResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func recordTokenUsage(model string, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	u := resp.UsageMetadata
	if u.PromptTokenCount > 0 {
		metrics.GenerationTokensTotal.WithLabelValues(providerName, model, "prompt").
			Add(float64(u.PromptTokenCount))
	}
	if u.TotalTokenCount > 0 {
		metrics.GenerationTokensTotal.WithLabelValues(providerName, model, "total").
			Add(float64(u.TotalTokenCount))
	}
}
