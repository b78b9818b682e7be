package workflow

import (
	"strings"

	"github.com/kailas-cloud/semdex/internal/domain"
)

const (
	contextSize = 5

	defaultPriority = "Medium"
	defaultPoints   = "3"

	fallbackDescriptionLimit = 500
)

// ParseDrafts extracts ticket drafts from generated content. A line starting
// with **Epic or **Story opens a new draft, numbered field lines fill the
// current one. Content with no recognizable structure falls back to a single
// story carrying the raw text.
func ParseDrafts(content string) []domain.TicketDraft {
	var drafts []domain.TicketDraft
	var current *domain.TicketDraft

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "**Epic"):
			if current != nil {
				drafts = append(drafts, *current)
			}
			current = newDraft(domain.IssueTypeEpic)
		case strings.HasPrefix(line, "**Story"):
			if current != nil {
				drafts = append(drafts, *current)
			}
			current = newDraft(domain.IssueTypeStory)
		case current == nil:
			// Field lines before the first heading have no draft to fill.
		case strings.Contains(line, "**Epic Title**"), strings.Contains(line, "**Story Title**"):
			if value := fieldValue(line); value != "" {
				current.Title = value
			}
		case strings.Contains(line, "**Epic Description**"), strings.Contains(line, "**Description**"):
			if value := fieldValue(line); value != "" {
				current.Description = value
			}
		case strings.Contains(line, "**Story Points**"):
			points := strings.Trim(fieldValue(line), "[]")
			if isDigits(points) {
				current.StoryPoints = points
			}
		case strings.Contains(line, "**Priority**"):
			value := fieldValue(line)
			for _, level := range []string{"High", "Medium", "Low"} {
				if strings.Contains(value, level) {
					current.Priority = level
					break
				}
			}
		}
	}
	if current != nil {
		drafts = append(drafts, *current)
	}

	if len(drafts) == 0 {
		return []domain.TicketDraft{fallbackDraft(content)}
	}
	return drafts
}

func newDraft(issueType domain.IssueType) *domain.TicketDraft {
	return &domain.TicketDraft{
		Title:       "Untitled",
		IssueType:   issueType,
		Priority:    defaultPriority,
		StoryPoints: defaultPoints,
	}
}

// fieldValue returns the trimmed text after the first colon, or "" when the
// line has none.
func fieldValue(line string) string {
	_, after, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(after)
}

func fallbackDraft(content string) domain.TicketDraft {
	return domain.TicketDraft{
		Title:       "Generated Requirement",
		Description: cutRunes(strings.TrimSpace(content), fallbackDescriptionLimit),
		IssueType:   domain.IssueTypeStory,
		Priority:    defaultPriority,
		StoryPoints: defaultPoints,
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func cutRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// truncateRunes is cutRunes with an ellipsis marking removed text.
func truncateRunes(s string, limit int) string {
	cut := cutRunes(s, limit)
	if cut == s {
		return s
	}
	return cut + "..."
}
