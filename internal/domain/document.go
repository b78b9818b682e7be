package domain

// KeyPrefix namespaces every cache key the service writes.
const KeyPrefix = "semdex:"

// Source identifies the kind of knowledge-base record a document came from.
type Source string

const (
	// SourceTicket is an issue-tracker ticket.
	SourceTicket Source = "ticket"
	// SourceWikiPage is a wiki or knowledge-base page.
	SourceWikiPage Source = "wiki_page"
	// SourceTextArtifact is plain text extracted from a file or attachment.
	SourceTextArtifact Source = "text_artifact"
	// SourceTabularRow is a row from an unrecognized tabular export.
	SourceTabularRow Source = "tabular_row"
)

// Document is a normalized unit of indexed knowledge. Row i of the similarity
// index always corresponds to document i of the same snapshot.
type Document struct {
	Text     string            `json:"text"`
	Source   Source            `json:"source"`
	SourceID string            `json:"source_id"`
	Title    string            `json:"title"`
	URL      string            `json:"url"` // may be empty for artifact-derived documents
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ScoredDocument is a Document enriched with its similarity score for one query.
type ScoredDocument struct {
	Document
	Score float64 `json:"similarity_score"`
}

// SnapshotInfo describes the currently active index/documents pair.
type SnapshotInfo struct {
	IndexPath      string `json:"index_path"`
	DocumentsPath  string `json:"documents_path"`
	Timestamp      string `json:"timestamp"`
	TotalDocuments int    `json:"total_documents"`
}
