package domain

// IssueType distinguishes the two draft kinds the parser recognizes.
type IssueType string

const (
	// IssueTypeEpic is a container issue grouping related stories.
	IssueTypeEpic IssueType = "Epic"
	// IssueTypeStory is a single deliverable work item.
	IssueTypeStory IssueType = "Story"
)

// TicketDraft is one structured ticket extracted from generated narrative text.
// Parsing is best effort; fields keep their defaults when the text does not
// yield a value.
type TicketDraft struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IssueType   IssueType `json:"issue_type"`
	Priority    string    `json:"priority"`
	StoryPoints string    `json:"story_points"`
}

// Outcome values for CreatedTicket.Status.
const (
	TicketStatusCreated = "created"
	TicketStatusFailed  = "failed"
)

// CreatedTicket records the outcome of creating one draft in the issue tracker.
type CreatedTicket struct {
	Title  string `json:"title"`
	Key    string `json:"key,omitempty"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
	Status string `json:"status"`
}
