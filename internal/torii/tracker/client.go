// Package tracker implements the Reader and Mutator collaborators against a
// Jira-style REST v2 work-item tracker.
//
// Every transport failure is converted into the ops error taxonomy at this
// boundary: connection errors and 429/5xx responses become transient, 404
// becomes not-found, any other 4xx becomes permanent. Nothing escapes raw.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bdobrica/Torii/common/redact"
	"github.com/bdobrica/Torii/internal/torii/ops"
)

// Config holds tracker connection settings.
type Config struct {
	// BaseURL is the tracker root, e.g. "https://tracker.example.com".
	BaseURL string
	// Username and Token are sent as basic auth (personal access token).
	Username string
	Token    string
	// Timeout per HTTP request. Defaults as in New.
	Timeout time.Duration
}

const defaultTimeout = 30 * time.Second

// Client talks to the tracker. It implements ops.Reader and ops.Mutator.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a tracker client. A nil logger uses slog.Default.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// --- wire types (subset of the tracker REST v2 API) ---

type named struct {
	Name string `json:"name"`
}

type issueFields struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Status      *named   `json:"status,omitempty"`
	Assignee    *named   `json:"assignee,omitempty"`
	Priority    *named   `json:"priority,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

type issue struct {
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

type searchResult struct {
	Issues []issue `json:"issues"`
}

type transitionList struct {
	Transitions []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		To   named  `json:"to"`
	} `json:"transitions"`
}

// --- Reader ---

const issueFieldList = "summary,description,status,assignee,priority,labels"

// ReadState returns the current field values of target, used to build
// update previews.
func (c *Client) ReadState(ctx context.Context, _ ops.Kind, target string) (ops.Fields, error) {
	var is issue
	q := url.Values{"fields": {issueFieldList}}
	if err := c.doJSON(ctx, http.MethodGet, "/rest/api/2/issue/"+target, q, nil, &is, target, ""); err != nil {
		return nil, err
	}

	fields := ops.Fields{
		"summary":     is.Fields.Summary,
		"description": is.Fields.Description,
	}
	if is.Fields.Status != nil {
		fields["status"] = is.Fields.Status.Name
	}
	if is.Fields.Assignee != nil {
		fields["assignee"] = is.Fields.Assignee.Name
	} else {
		fields["assignee"] = "Unassigned"
	}
	if is.Fields.Priority != nil {
		fields["priority"] = is.Fields.Priority.Name
	}
	if len(is.Fields.Labels) > 0 {
		fields["labels"] = strings.Join(is.Fields.Labels, ", ")
	}
	return fields, nil
}

// ListTickets lists the caller's tickets, optionally filtered by status.
func (c *Client) ListTickets(ctx context.Context, status string) (string, error) {
	jql := "assignee = currentUser()"
	if status != "" {
		jql += fmt.Sprintf(" AND status = %q", status)
	}
	jql += " ORDER BY updated DESC"

	var res searchResult
	q := url.Values{"jql": {jql}, "fields": {"summary,status"}, "maxResults": {"50"}}
	if err := c.doJSON(ctx, http.MethodGet, "/rest/api/2/search", q, nil, &res, "tickets", ""); err != nil {
		return "", err
	}

	if len(res.Issues) == 0 {
		if status != "" {
			return fmt.Sprintf("No tickets with status %q.", status), nil
		}
		return "No tickets assigned to you.", nil
	}

	var sb strings.Builder
	sb.WriteString("Your tickets:\n")
	for i, is := range res.Issues {
		statusName := ""
		if is.Fields.Status != nil {
			statusName = is.Fields.Status.Name
		}
		sb.WriteString(fmt.Sprintf("  %d. [%s] %s (Status: %s)\n", i+1, is.Key, is.Fields.Summary, statusName))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// SummarizeTicket returns a formatted overview of one ticket.
func (c *Client) SummarizeTicket(ctx context.Context, key string) (string, error) {
	fields, err := c.ReadState(ctx, ops.KindUpdate, key)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Ticket %s\n", key))
	sb.WriteString(fmt.Sprintf("  Summary:  %s\n", fields["summary"]))
	sb.WriteString(fmt.Sprintf("  Status:   %s\n", fields["status"]))
	sb.WriteString(fmt.Sprintf("  Assignee: %s\n", fields["assignee"]))
	if p := fields["priority"]; p != "" {
		sb.WriteString(fmt.Sprintf("  Priority: %s\n", p))
	}
	if l := fields["labels"]; l != "" {
		sb.WriteString(fmt.Sprintf("  Labels:   %s\n", l))
	}
	if d := fields["description"]; d != "" {
		sb.WriteString("  Description:\n")
		for _, line := range strings.Split(d, "\n") {
			sb.WriteString("    " + line + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// ListStatuses returns the status names known to the tracker.
func (c *Client) ListStatuses(ctx context.Context) ([]string, error) {
	var raw []named
	if err := c.doJSON(ctx, http.MethodGet, "/rest/api/2/status", nil, nil, &raw, "statuses", ""); err != nil {
		return nil, err
	}
	names := make([]string, len(raw))
	for i, n := range raw {
		names[i] = n.Name
	}
	return names, nil
}

// --- http plumbing ---

// idempotencyHeader carries the approval request id on mutating calls, so a
// crash-and-retry of the same approval can be deduplicated tracker-side.
const idempotencyHeader = "X-Idempotency-Key"

// doJSON performs one request and decodes the JSON response into out (when
// non-nil). target names the subject for not-found errors; requestID, when
// non-empty, is sent as the idempotency key.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}, target, requestID string) error {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("tracker: encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("tracker: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set(idempotencyHeader, requestID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return ops.Transient("tracker "+method+" "+path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return ops.Permanent("tracker "+method+" "+path, fmt.Errorf("decode response: %w", err))
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return &ops.NotFoundError{Target: target}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return ops.Transient("tracker "+method+" "+path, fmt.Errorf("status %d", resp.StatusCode))
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		// The error text ends up in logs and chat replies; strip the
		// credential in case the tracker echoes it back.
		detail := redact.String(strings.TrimSpace(string(snippet)), c.cfg.Token)
		return ops.Permanent("tracker "+method+" "+path,
			fmt.Errorf("status %d: %s", resp.StatusCode, detail))
	}
}
