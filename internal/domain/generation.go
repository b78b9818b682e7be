package domain

import (
	"context"
	"strings"
)

// TextGenerator is the opaque text-generation contract. The retrieval core
// never inspects generated text; only the workflow boundary parses it.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Complexity is the estimated size of a requirement, used to pick a drafting strategy.
type Complexity string

const (
	// ComplexitySmall maps to one or two stories.
	ComplexitySmall Complexity = "SMALL"
	// ComplexityMedium maps to one epic with several stories.
	ComplexityMedium Complexity = "MEDIUM"
	// ComplexityBig maps to multiple epics with many stories.
	ComplexityBig Complexity = "BIG"
)

// ParseComplexity maps generated classifier output onto a Complexity.
// Unrecognized output falls back to MEDIUM rather than failing the workflow.
func ParseComplexity(s string) Complexity {
	c := Complexity(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case ComplexitySmall, ComplexityMedium, ComplexityBig:
		return c
	default:
		return ComplexityMedium
	}
}
