package workflow

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/semdex/internal/domain"
)

const previewLimit = 200

func queryPrompt(requirement string) string {
	return fmt.Sprintf(`Based on this requirement, generate 1-2 search queries to find related tickets:

Requirement: %s

Create queries that would find similar issues, features, or bugs. Return one query per line, maximum 2 queries, no numbering or explanations.`, requirement)
}

func classifyPrompt(requirement, contextBlock string) string {
	return fmt.Sprintf(`Classify the complexity of this requirement as SMALL, MEDIUM, or BIG:

Requirement: %s

%s

SMALL: simple bug fix or minor change, 1-2 stories
MEDIUM: feature touching multiple components, 1 epic with 2-4 stories
BIG: large initiative spanning multiple features, 2 or more epics with stories

Respond with only one word: SMALL, MEDIUM, or BIG.`, requirement, contextBlock)
}

func draftPrompt(complexity domain.Complexity, requirement, contextBlock string) string {
	switch complexity {
	case domain.ComplexitySmall:
		return smallPrompt(requirement, contextBlock)
	case domain.ComplexityBig:
		return largePrompt(requirement, contextBlock)
	default:
		return mediumPrompt(requirement, contextBlock)
	}
}

func smallPrompt(requirement, contextBlock string) string {
	return fmt.Sprintf(`Create 1-2 tickets for this SMALL requirement. Use the related tickets below to stay consistent with existing work and avoid duplicates.

Requirement: %s

%s

Format each ticket exactly as:

**Story 1**
1. **Story Title**: [concise title]
2. **Description**: [what needs to be done and acceptance criteria]
3. **Story Points**: [1, 2, 3, 5, 8 or 13]
4. **Priority**: [High, Medium or Low]`, requirement, contextBlock)
}

func mediumPrompt(requirement, contextBlock string) string {
	return fmt.Sprintf(`Create 1 epic with 2-4 stories for this MEDIUM requirement. Use the related tickets below to stay consistent with existing work and avoid duplicates.

Requirement: %s

%s

Format the epic exactly as:

**Epic 1**
1. **Epic Title**: [concise title]
2. **Epic Description**: [goal and scope]

Format each story exactly as:

**Story 1**
1. **Story Title**: [concise title]
2. **Description**: [what needs to be done and acceptance criteria]
3. **Story Points**: [1, 2, 3, 5, 8 or 13]
4. **Priority**: [High, Medium or Low]`, requirement, contextBlock)
}

func largePrompt(requirement, contextBlock string) string {
	return fmt.Sprintf(`Create 2 or more epics, each with 2-4 stories, for this BIG requirement. Use the related tickets below to stay consistent with existing work and avoid duplicates.

Requirement: %s

%s

Format each epic exactly as:

**Epic 1**
1. **Epic Title**: [concise title]
2. **Epic Description**: [goal and scope]

Format each story exactly as:

**Story 1**
1. **Story Title**: [concise title]
2. **Description**: [what needs to be done and acceptance criteria]
3. **Story Points**: [1, 2, 3, 5, 8 or 13]
4. **Priority**: [High, Medium or Low]`, requirement, contextBlock)
}

// buildContext renders the retrieved documents as a block the prompts embed.
// Only the first contextSize documents are included.
func buildContext(related []domain.ScoredDocument) string {
	if len(related) == 0 {
		return "No related tickets found in the knowledge base."
	}

	var b strings.Builder
	b.WriteString("RELATED TICKETS FOUND:\n\n")
	for i, doc := range related {
		if i == contextSize {
			break
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, strings.ToUpper(string(doc.Source)), doc.Title)
		if doc.URL != "" {
			fmt.Fprintf(&b, "   URL: %s\n", doc.URL)
		}
		fmt.Fprintf(&b, "   Similarity: %.3f\n", doc.Score)
		if doc.Source == domain.SourceTicket {
			fmt.Fprintf(&b, "   Status: %s | Priority: %s\n", doc.Metadata["status"], doc.Metadata["priority"])
			fmt.Fprintf(&b, "   Type: %s\n", doc.Metadata["issue_type"])
		}
		fmt.Fprintf(&b, "   Preview: %s\n\n", truncateRunes(doc.Text, previewLimit))
	}
	return strings.TrimRight(b.String(), "\n")
}
