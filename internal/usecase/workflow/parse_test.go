package workflow

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/semdex/internal/domain"
)

func TestParseDraftsEpicWithStories(t *testing.T) {
	content := `Here is the plan.

**Epic 1**
1. **Epic Title**: Unified login experience
2. **Epic Description**: Consolidate all login flows behind one service.

**Story 1**
1. **Story Title**: Fix Safari session cookie
2. **Description**: Session cookies are dropped on Safari 17.
3. **Story Points**: [5]
4. **Priority**: [High]

**Story 2**
1. **Story Title**: Add login rate limiting
2. **Description**: Throttle repeated failures per account.
3. **Story Points**: 3
4. **Priority**: Low
`

	drafts := ParseDrafts(content)
	if len(drafts) != 3 {
		t.Fatalf("expected 3 drafts, got %d: %+v", len(drafts), drafts)
	}

	epic := drafts[0]
	if epic.IssueType != domain.IssueTypeEpic {
		t.Errorf("drafts[0].IssueType = %q, want Epic", epic.IssueType)
	}
	if epic.Title != "Unified login experience" {
		t.Errorf("epic title = %q", epic.Title)
	}
	if epic.Description != "Consolidate all login flows behind one service." {
		t.Errorf("epic description = %q", epic.Description)
	}

	first := drafts[1]
	if first.IssueType != domain.IssueTypeStory {
		t.Errorf("drafts[1].IssueType = %q, want Story", first.IssueType)
	}
	if first.Title != "Fix Safari session cookie" {
		t.Errorf("story title = %q", first.Title)
	}
	if first.StoryPoints != "5" {
		t.Errorf("story points = %q, want 5", first.StoryPoints)
	}
	if first.Priority != "High" {
		t.Errorf("priority = %q, want High", first.Priority)
	}

	second := drafts[2]
	if second.StoryPoints != "3" || second.Priority != "Low" {
		t.Errorf("second story = %+v", second)
	}
}

func TestParseDraftsDefaults(t *testing.T) {
	drafts := ParseDrafts("**Story 1**\nnothing usable follows")
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}

	got := drafts[0]
	if got.Title != "Untitled" {
		t.Errorf("title = %q, want Untitled", got.Title)
	}
	if got.Priority != "Medium" {
		t.Errorf("priority = %q, want Medium", got.Priority)
	}
	if got.StoryPoints != "3" {
		t.Errorf("story points = %q, want 3", got.StoryPoints)
	}
	if got.IssueType != domain.IssueTypeStory {
		t.Errorf("issue type = %q, want Story", got.IssueType)
	}
}

func TestParseDraftsIgnoresFieldsBeforeFirstHeading(t *testing.T) {
	content := `1. **Story Title**: stray line
**Story 1**
1. **Story Title**: Real title
`

	drafts := ParseDrafts(content)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	if drafts[0].Title != "Real title" {
		t.Errorf("title = %q, want the title after the heading", drafts[0].Title)
	}
}

func TestParseDraftsKeepsDefaultsOnBadValues(t *testing.T) {
	content := `**Story 1**
1. **Story Title**:
3. **Story Points**: [five]
4. **Priority**: Urgent
`

	drafts := ParseDrafts(content)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}

	got := drafts[0]
	if got.Title != "Untitled" {
		t.Errorf("empty title value should keep Untitled, got %q", got.Title)
	}
	if got.StoryPoints != "3" {
		t.Errorf("non-numeric points should keep 3, got %q", got.StoryPoints)
	}
	if got.Priority != "Medium" {
		t.Errorf("unknown priority should keep Medium, got %q", got.Priority)
	}
}

func TestParseDraftsPriorityInsideBrackets(t *testing.T) {
	drafts := ParseDrafts("**Story 1**\n4. **Priority**: [High]")
	if drafts[0].Priority != "High" {
		t.Errorf("priority = %q, want High", drafts[0].Priority)
	}
}

func TestParseDraftsFallback(t *testing.T) {
	content := "The system should support exporting reports as PDF."

	drafts := ParseDrafts(content)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 fallback draft, got %d", len(drafts))
	}

	got := drafts[0]
	if got.Title != "Generated Requirement" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Description != content {
		t.Errorf("description = %q", got.Description)
	}
	if got.IssueType != domain.IssueTypeStory || got.Priority != "Medium" || got.StoryPoints != "3" {
		t.Errorf("fallback defaults wrong: %+v", got)
	}
}

func TestParseDraftsFallbackTruncates(t *testing.T) {
	long := strings.Repeat("х", 600)

	drafts := ParseDrafts(long)
	desc := []rune(drafts[0].Description)
	if len(desc) != fallbackDescriptionLimit {
		t.Errorf("description length = %d runes, want %d", len(desc), fallbackDescriptionLimit)
	}
	if strings.HasSuffix(drafts[0].Description, "...") {
		t.Error("fallback description should not carry an ellipsis")
	}
}

func TestBuildContextEmpty(t *testing.T) {
	got := buildContext(nil)
	if got != "No related tickets found in the knowledge base." {
		t.Errorf("buildContext(nil) = %q", got)
	}
}

func TestBuildContextTicketFields(t *testing.T) {
	related := []domain.ScoredDocument{
		{
			Document: domain.Document{
				Text:   "Login fails on Safari when cookies are blocked",
				Source: domain.SourceTicket,
				Title:  "Safari login broken",
				URL:    "https://tracker.example.com/browse/PROJ-1",
				Metadata: map[string]string{
					"status":     "Open",
					"priority":   "High",
					"issue_type": "Bug",
				},
			},
			Score: 0.8234,
		},
		{
			Document: domain.Document{
				Text:   "How to configure single sign-on",
				Source: domain.SourceWikiPage,
				Title:  "SSO guide",
				URL:    "https://wiki.example.com/sso",
			},
			Score: 0.51,
		},
	}

	got := buildContext(related)

	for _, want := range []string{
		"RELATED TICKETS FOUND:",
		"1. [TICKET] Safari login broken",
		"URL: https://tracker.example.com/browse/PROJ-1",
		"Similarity: 0.823",
		"Status: Open | Priority: High",
		"Type: Bug",
		"2. [WIKI_PAGE] SSO guide",
		"Similarity: 0.510",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q:\n%s", want, got)
		}
	}

	// Status and Type lines describe tracker state and must not appear for
	// wiki pages.
	wikiPart := got[strings.Index(got, "2. [WIKI_PAGE]"):]
	if strings.Contains(wikiPart, "Status:") || strings.Contains(wikiPart, "Type:") {
		t.Errorf("wiki entry carries ticket-only fields:\n%s", wikiPart)
	}
}

func TestBuildContextCapsEntries(t *testing.T) {
	related := make([]domain.ScoredDocument, 7)
	for i := range related {
		related[i] = domain.ScoredDocument{
			Document: domain.Document{
				Text:   "text",
				Source: domain.SourceTextArtifact,
				Title:  "doc",
			},
			Score: 0.9,
		}
	}

	got := buildContext(related)
	if !strings.Contains(got, "5. [TEXT_ARTIFACT]") {
		t.Errorf("fifth entry missing:\n%s", got)
	}
	if strings.Contains(got, "6. [TEXT_ARTIFACT]") {
		t.Errorf("context should stop after %d entries:\n%s", contextSize, got)
	}
}

func TestBuildContextTruncatesPreview(t *testing.T) {
	related := []domain.ScoredDocument{{
		Document: domain.Document{
			Text:   strings.Repeat("a", previewLimit+50),
			Source: domain.SourceTextArtifact,
			Title:  "long",
		},
		Score: 0.7,
	}}

	got := buildContext(related)
	want := "Preview: " + strings.Repeat("a", previewLimit) + "..."
	if !strings.Contains(got, want) {
		t.Errorf("preview not truncated to %d runes:\n%s", previewLimit, got)
	}
}
