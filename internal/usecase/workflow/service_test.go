package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

type mockGenerator struct {
	queries     string
	queriesErr  error
	classified  string
	classifyErr error
	content     string
	contentErr  error

	prompts []string
}

func (m *mockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	switch {
	case strings.Contains(prompt, "generate 1-2 search queries"):
		return m.queries, m.queriesErr
	case strings.Contains(prompt, "Classify the complexity"):
		return m.classified, m.classifyErr
	default:
		return m.content, m.contentErr
	}
}

// contentPrompt returns the last prompt, which is the drafting one on any
// run that got past classification.
func (m *mockGenerator) contentPrompt() string {
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

type mockSearcher struct {
	results []domain.ScoredDocument
	err     error

	got [][]string
}

func (m *mockSearcher) FanOut(_ context.Context, queries []string) ([]domain.ScoredDocument, error) {
	m.got = append(m.got, queries)
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

type mockTracker struct {
	failTitle string
	failErr   error

	calls int
}

func (m *mockTracker) Create(_ context.Context, draft domain.TicketDraft) (string, string, error) {
	m.calls++
	if m.failTitle != "" && draft.Title == m.failTitle {
		return "", "", m.failErr
	}
	key := fmt.Sprintf("PROJ-%d", m.calls)
	return key, "https://tracker.example.com/browse/" + key, nil
}

const storyContent = `**Story 1**
1. **Story Title**: Fix Safari session cookie
2. **Description**: Cookies are dropped on Safari 17.
3. **Story Points**: 5
4. **Priority**: High

**Story 2**
1. **Story Title**: Add login rate limiting
2. **Description**: Throttle repeated failures.
3. **Story Points**: 3
4. **Priority**: Medium
`

func relatedFixture() []domain.ScoredDocument {
	return []domain.ScoredDocument{{
		Document: domain.Document{
			Text:   "Safari drops session cookies",
			Source: domain.SourceTicket,
			Title:  "Safari login broken",
			URL:    "https://tracker.example.com/browse/PROJ-9",
			Metadata: map[string]string{
				"status":     "Open",
				"priority":   "High",
				"issue_type": "Bug",
			},
		},
		Score: 0.91,
	}}
}

func TestDraftFullPipeline(t *testing.T) {
	generator := &mockGenerator{
		queries:    "safari login cookies\nsession handling bugs",
		classified: "SMALL",
		content:    storyContent,
	}
	searcher := &mockSearcher{results: relatedFixture()}
	svc := New(generator, searcher, zap.NewNop())

	result, err := svc.Draft(context.Background(), "Fix login on Safari", false)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}

	if result.DraftID == "" {
		t.Error("draft id not assigned")
	}
	if len(result.Queries) != 2 {
		t.Fatalf("queries = %v, want 2", result.Queries)
	}
	if len(searcher.got) != 1 || len(searcher.got[0]) != 2 {
		t.Fatalf("searcher got %v", searcher.got)
	}
	if len(result.Related) != 1 {
		t.Fatalf("related = %d, want 1", len(result.Related))
	}
	if result.Complexity != domain.ComplexitySmall {
		t.Errorf("complexity = %q, want SMALL", result.Complexity)
	}
	if result.Content != storyContent {
		t.Errorf("content not carried through")
	}
	if len(result.Drafts) != 2 {
		t.Fatalf("drafts = %d, want 2", len(result.Drafts))
	}
	if result.Created != nil {
		t.Errorf("tickets created without being asked: %+v", result.Created)
	}
	if len(generator.prompts) != 3 {
		t.Fatalf("generator called %d times, want 3", len(generator.prompts))
	}

	prompt := generator.contentPrompt()
	if !strings.Contains(prompt, "SMALL requirement") {
		t.Errorf("drafting prompt not sized SMALL:\n%s", prompt)
	}
	if !strings.Contains(prompt, "RELATED TICKETS FOUND:") || !strings.Contains(prompt, "Safari login broken") {
		t.Errorf("drafting prompt missing related context:\n%s", prompt)
	}
}

func TestDraftEmptyRequirement(t *testing.T) {
	svc := New(&mockGenerator{}, &mockSearcher{}, zap.NewNop())

	for _, requirement := range []string{"", "   \n\t"} {
		if _, err := svc.Draft(context.Background(), requirement, false); !errors.Is(err, domain.ErrRequirementMissing) {
			t.Errorf("Draft(%q) error = %v, want ErrRequirementMissing", requirement, err)
		}
	}
}

func TestDraftDegradesWhenQueryGenerationFails(t *testing.T) {
	generator := &mockGenerator{
		queriesErr: fmt.Errorf("model overloaded: %w", domain.ErrGenerationProviderError),
		classified: "SMALL",
		content:    storyContent,
	}
	searcher := &mockSearcher{results: relatedFixture()}
	svc := New(generator, searcher, zap.NewNop())

	result, err := svc.Draft(context.Background(), "Fix login on Safari", false)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if len(result.Queries) != 0 {
		t.Errorf("queries = %v, want none", result.Queries)
	}
	if len(searcher.got) != 0 {
		t.Errorf("searcher called with no queries: %v", searcher.got)
	}
	if !strings.Contains(generator.contentPrompt(), "No related tickets found") {
		t.Errorf("drafting prompt should note the empty context:\n%s", generator.contentPrompt())
	}
	if len(result.Drafts) != 2 {
		t.Errorf("drafting still expected, got %d drafts", len(result.Drafts))
	}
}

func TestDraftDegradesWhenSearchFails(t *testing.T) {
	for name, searchErr := range map[string]error{
		"no index": domain.ErrNoIndex,
		"provider": fmt.Errorf("embed query: %w", domain.ErrEmbeddingProviderError),
	} {
		t.Run(name, func(t *testing.T) {
			generator := &mockGenerator{
				queries:    "safari login",
				classified: "SMALL",
				content:    storyContent,
			}
			svc := New(generator, &mockSearcher{err: searchErr}, zap.NewNop())

			result, err := svc.Draft(context.Background(), "Fix login on Safari", false)
			if err != nil {
				t.Fatalf("Draft: %v", err)
			}
			if len(result.Related) != 0 {
				t.Errorf("related = %v, want none", result.Related)
			}
		})
	}
}

func TestDraftContentFailureIsFatal(t *testing.T) {
	generator := &mockGenerator{
		queries:    "safari login",
		classified: "SMALL",
		contentErr: fmt.Errorf("model overloaded: %w", domain.ErrGenerationProviderError),
	}
	svc := New(generator, &mockSearcher{}, zap.NewNop())

	_, err := svc.Draft(context.Background(), "Fix login on Safari", false)
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("error = %v, want ErrGenerationProviderError", err)
	}
}

func TestDraftClassificationFallsBackToMedium(t *testing.T) {
	cases := map[string]*mockGenerator{
		"error": {
			queries:     "q",
			classifyErr: errors.New("timeout"),
			content:     storyContent,
		},
		"unrecognized answer": {
			queries:    "q",
			classified: "probably quite big",
			content:    storyContent,
		},
	}

	for name, generator := range cases {
		t.Run(name, func(t *testing.T) {
			svc := New(generator, &mockSearcher{}, zap.NewNop())

			result, err := svc.Draft(context.Background(), "Fix login", false)
			if err != nil {
				t.Fatalf("Draft: %v", err)
			}
			if result.Complexity != domain.ComplexityMedium {
				t.Errorf("complexity = %q, want MEDIUM", result.Complexity)
			}
			if !strings.Contains(generator.contentPrompt(), "MEDIUM requirement") {
				t.Errorf("drafting prompt not sized MEDIUM:\n%s", generator.contentPrompt())
			}
		})
	}
}

func TestDraftNormalizesClassifierAnswer(t *testing.T) {
	generator := &mockGenerator{
		queries:    "q",
		classified: "  big\n",
		content:    storyContent,
	}
	svc := New(generator, &mockSearcher{}, zap.NewNop())

	result, err := svc.Draft(context.Background(), "Rebuild the billing platform", false)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if result.Complexity != domain.ComplexityBig {
		t.Errorf("complexity = %q, want BIG", result.Complexity)
	}
	if !strings.Contains(generator.contentPrompt(), "BIG requirement") {
		t.Errorf("drafting prompt not sized BIG:\n%s", generator.contentPrompt())
	}
}

func TestDraftCreatesTickets(t *testing.T) {
	generator := &mockGenerator{
		queries:    "q",
		classified: "SMALL",
		content:    storyContent,
	}
	tracker := &mockTracker{}
	svc := New(generator, &mockSearcher{}, zap.NewNop()).WithTracker(tracker)

	if !svc.TrackerConfigured() {
		t.Fatal("tracker should be configured")
	}

	result, err := svc.Draft(context.Background(), "Fix login", true)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if tracker.calls != 2 {
		t.Fatalf("tracker called %d times, want 2", tracker.calls)
	}
	if len(result.Created) != 2 {
		t.Fatalf("created = %d, want 2", len(result.Created))
	}

	first := result.Created[0]
	if first.Status != domain.TicketStatusCreated || first.Key != "PROJ-1" {
		t.Errorf("first created = %+v", first)
	}
	if first.URL != "https://tracker.example.com/browse/PROJ-1" {
		t.Errorf("first url = %q", first.URL)
	}
}

func TestDraftContinuesPastTrackerFailures(t *testing.T) {
	generator := &mockGenerator{
		queries:    "q",
		classified: "SMALL",
		content:    storyContent,
	}
	tracker := &mockTracker{
		failTitle: "Fix Safari session cookie",
		failErr:   fmt.Errorf("401: %w", domain.ErrTrackerError),
	}
	svc := New(generator, &mockSearcher{}, zap.NewNop()).WithTracker(tracker)

	result, err := svc.Draft(context.Background(), "Fix login", true)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if len(result.Created) != 2 {
		t.Fatalf("created = %d, want 2", len(result.Created))
	}

	failed, created := result.Created[0], result.Created[1]
	if failed.Status != domain.TicketStatusFailed || failed.Error == "" || failed.Key != "" {
		t.Errorf("failed entry = %+v", failed)
	}
	if created.Status != domain.TicketStatusCreated || created.Key == "" {
		t.Errorf("second entry = %+v", created)
	}
}

func TestDraftWithoutTrackerSkipsCreation(t *testing.T) {
	generator := &mockGenerator{
		queries:    "q",
		classified: "SMALL",
		content:    storyContent,
	}
	svc := New(generator, &mockSearcher{}, zap.NewNop())

	result, err := svc.Draft(context.Background(), "Fix login", true)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if result.Created != nil {
		t.Errorf("created = %+v, want none without a tracker", result.Created)
	}
}

func TestGenerateQueriesLimitsAndTrims(t *testing.T) {
	generator := &mockGenerator{queries: "\n  safari login cookies  \n\ndatabase migration errors\nthird query\n"}
	svc := New(generator, &mockSearcher{}, zap.NewNop())

	queries, err := svc.GenerateQueries(context.Background(), "Fix login")
	if err != nil {
		t.Fatalf("GenerateQueries: %v", err)
	}
	want := []string{"safari login cookies", "database migration errors"}
	if len(queries) != len(want) {
		t.Fatalf("queries = %v, want %v", queries, want)
	}
	for i := range want {
		if queries[i] != want[i] {
			t.Errorf("queries[%d] = %q, want %q", i, queries[i], want[i])
		}
	}
}

func TestGenerateQueriesEmptyRequirement(t *testing.T) {
	svc := New(&mockGenerator{}, &mockSearcher{}, zap.NewNop())

	if _, err := svc.GenerateQueries(context.Background(), " "); !errors.Is(err, domain.ErrRequirementMissing) {
		t.Errorf("error = %v, want ErrRequirementMissing", err)
	}
}

func TestGenerateQueriesPropagatesProviderError(t *testing.T) {
	generator := &mockGenerator{queriesErr: fmt.Errorf("429: %w", domain.ErrGenerationProviderError)}
	svc := New(generator, &mockSearcher{}, zap.NewNop())

	if _, err := svc.GenerateQueries(context.Background(), "Fix login"); !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Errorf("error = %v, want ErrGenerationProviderError", err)
	}
}
