package normalize

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Ticket is a raw issue-tracker record as produced by the extractor export.
type Ticket struct {
	Key         string
	Summary     string
	Description string
	Status      string
	Priority    string
	IssueType   string
	Assignee    string
	Reporter    string
	Created     string
	Updated     string
	Labels      string
	Components  string
	URL         string
}

// Document composes the embeddable text for a ticket. The second return is
// false when cleaning leaves no text and the record must be dropped.
func (t Ticket) Document() (domain.Document, bool) {
	full := fmt.Sprintf("%s\n\n%s\n\nStatus: %s\nPriority: %s\nType: %s",
		t.Summary, t.Description, t.Status, t.Priority, t.IssueType)

	text := CleanText(full)
	if text == "" {
		return domain.Document{}, false
	}

	return domain.Document{
		Text:     text,
		Source:   domain.SourceTicket,
		SourceID: t.Key,
		Title:    t.Summary,
		URL:      t.URL,
		Metadata: map[string]string{
			"status":     t.Status,
			"priority":   t.Priority,
			"issue_type": t.IssueType,
			"assignee":   t.Assignee,
			"reporter":   t.Reporter,
			"created":    t.Created,
			"updated":    t.Updated,
			"labels":     t.Labels,
			"components": t.Components,
		},
	}, true
}

// WikiPage is a raw wiki export record.
type WikiPage struct {
	ID        string
	Title     string
	Content   string
	SpaceKey  string
	SpaceName string
	Version   string
	Created   string
	URL       string
}

// Document composes the embeddable text for a wiki page.
func (p WikiPage) Document() (domain.Document, bool) {
	full := fmt.Sprintf("%s\n\nSpace: %s\n\n%s", p.Title, p.SpaceName, p.Content)

	text := CleanText(full)
	if text == "" {
		return domain.Document{}, false
	}

	return domain.Document{
		Text:     text,
		Source:   domain.SourceWikiPage,
		SourceID: p.ID,
		Title:    p.Title,
		URL:      p.URL,
		Metadata: map[string]string{
			"space_key":  p.SpaceKey,
			"space_name": p.SpaceName,
			"version":    p.Version,
			"created":    p.Created,
		},
	}, true
}

// TextArtifact is the full content of a plain-text corpus file.
type TextArtifact struct {
	Filename string
	Content  string
}

// Document cleans the artifact content as-is, keyed by the file stem.
func (a TextArtifact) Document() (domain.Document, bool) {
	text := CleanText(a.Content)
	if text == "" {
		return domain.Document{}, false
	}

	stem := fileStem(a.Filename)
	return domain.Document{
		Text:     text,
		Source:   domain.SourceTextArtifact,
		SourceID: stem,
		Title:    stem,
		Metadata: map[string]string{
			"filename":  a.Filename,
			"file_type": "text",
		},
	}, true
}

// TabularRow is one row of an unrecognized tabular export, header-keyed.
// Ordinal is the count of documents already produced from the same file and
// makes the source_id stable across rebuilds of an unchanged corpus.
type TabularRow struct {
	Filename string
	Columns  []string
	Values   []string
	Ordinal  int
}

// Document renders every non-empty cell as a "column: value" line.
func (r TabularRow) Document() (domain.Document, bool) {
	var b strings.Builder
	for i, col := range r.Columns {
		if i < len(r.Values) && r.Values[i] != "" {
			fmt.Fprintf(&b, "%s: %s\n", col, r.Values[i])
		}
	}

	text := CleanText(b.String())
	if text == "" {
		return domain.Document{}, false
	}

	stem := fileStem(r.Filename)
	return domain.Document{
		Text:     text,
		Source:   domain.SourceTabularRow,
		SourceID: fmt.Sprintf("%s_%d", stem, r.Ordinal),
		Title:    stem,
		Metadata: map[string]string{
			"filename":  r.Filename,
			"file_type": "csv",
		},
	}, true
}

func fileStem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
