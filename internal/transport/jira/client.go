// Package jira creates issues in a Jira-compatible tracker over its REST v2 API.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/metrics"
)

const (
	createIssuePath = "/rest/api/2/issue"

	// fallbackIssueType is retried when the project rejects the draft's type,
	// e.g. a project without the Epic type configured.
	fallbackIssueType = "Task"

	maxResponseBody = 8 << 10
)

// Client creates issues via the tracker REST API with basic auth.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	username        string
	apiToken        string
	projectKey      string
	includePriority bool
	logger          *zap.Logger
}

// Config holds issue tracker settings.
type Config struct {
	URL             string
	Username        string
	APIToken        string
	ProjectKey      string
	IncludePriority bool
	Timeout         time.Duration
	Logger          *zap.Logger
}

// New creates a tracker client.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient:      &http.Client{Timeout: timeout},
		baseURL:         strings.TrimRight(cfg.URL, "/"),
		username:        cfg.Username,
		apiToken:        cfg.APIToken,
		projectKey:      cfg.ProjectKey,
		includePriority: cfg.IncludePriority,
		logger:          cfg.Logger,
	}
}

type namedField struct {
	Name string `json:"name"`
}

type keyedField struct {
	Key string `json:"key"`
}

type issueFields struct {
	Project     keyedField  `json:"project"`
	Summary     string      `json:"summary"`
	Description string      `json:"description"`
	IssueType   namedField  `json:"issuetype"`
	Priority    *namedField `json:"priority,omitempty"`
}

type createRequest struct {
	Fields issueFields `json:"fields"`
}

// Create files one issue and returns its key and browse URL. A 400 response
// mentioning the issue type is retried once as a plain Task; any other
// failure is terminal.
func (c *Client) Create(ctx context.Context, draft domain.TicketDraft) (string, string, error) {
	issueType := string(draft.IssueType)
	if issueType == "" {
		issueType = fallbackIssueType
	}

	key, err := c.createIssue(ctx, draft, issueType)
	if err != nil {
		var typeErr *unknownIssueTypeError
		if errors.As(err, &typeErr) && issueType != fallbackIssueType {
			c.logger.Warn("Issue type rejected by tracker, retrying as Task",
				zap.String("issue_type", issueType),
				zap.String("title", draft.Title),
			)
			key, err = c.createIssue(ctx, draft, fallbackIssueType)
		}
	}
	if err != nil {
		return "", "", err
	}

	return key, c.baseURL + "/browse/" + key, nil
}

func (c *Client) createIssue(ctx context.Context, draft domain.TicketDraft, issueType string) (string, error) {
	payload := createRequest{Fields: issueFields{
		Project:     keyedField{Key: c.projectKey},
		Summary:     draft.Title,
		Description: draft.Description,
		IssueType:   namedField{Name: issueType},
	}}
	if c.includePriority && draft.Priority != "" {
		payload.Fields.Priority = &namedField{Name: draft.Priority}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal issue payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createIssuePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build issue request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.TrackerRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("tracker request: %v: %w", err, domain.ErrTrackerError)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode == http.StatusCreated {
		var created struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(respBody, &created); err != nil || created.Key == "" {
			metrics.TrackerRequestsTotal.WithLabelValues("error").Inc()
			return "", fmt.Errorf("tracker response missing issue key: %w", domain.ErrTrackerError)
		}
		metrics.TrackerRequestsTotal.WithLabelValues("success").Inc()
		return created.Key, nil
	}

	metrics.TrackerRequestsTotal.WithLabelValues("error").Inc()

	if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(respBody), "issuetype") {
		return "", &unknownIssueTypeError{status: resp.StatusCode, body: string(respBody)}
	}

	return "", fmt.Errorf("tracker returned %d: %s: %w",
		resp.StatusCode, strings.TrimSpace(string(respBody)), domain.ErrTrackerError)
}

// unknownIssueTypeError marks a 400 response complaining about the issue type.
type unknownIssueTypeError struct {
	status int
	body   string
}

func (e *unknownIssueTypeError) Error() string {
	return fmt.Sprintf("tracker rejected issue type (%d): %s", e.status, strings.TrimSpace(e.body))
}

func (e *unknownIssueTypeError) Unwrap() error { return domain.ErrTrackerError }
