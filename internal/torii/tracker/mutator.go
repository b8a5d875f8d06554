package tracker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bdobrica/Torii/internal/torii/ops"
)

// ApplyOperation applies an approved write operation. requestID is forwarded
// as an idempotency key on every mutating call.
func (c *Client) ApplyOperation(ctx context.Context, requestID string, kind ops.Kind, fields ops.Fields) (*ops.Outcome, error) {
	switch kind {
	case ops.KindCreate:
		return c.createTicket(ctx, requestID, fields)
	case ops.KindUpdate:
		return c.updateTicket(ctx, requestID, fields["key"], fields)
	case ops.KindTransition:
		return c.transitionTicket(ctx, requestID, fields["key"], fields["status"], fields["comment"])
	case ops.KindAssign:
		return c.assignTicket(ctx, requestID, fields["key"], fields["assignee"])
	case ops.KindComment:
		return c.addComment(ctx, requestID, fields["key"], fields["comment"], fields["visibility"])
	case ops.KindBulk:
		return c.bulkUpdate(ctx, requestID, fields)
	default:
		return nil, ops.Permanent("tracker", fmt.Errorf("unknown operation kind %q", kind))
	}
}

func (c *Client) createTicket(ctx context.Context, requestID string, fields ops.Fields) (*ops.Outcome, error) {
	body := map[string]interface{}{
		"fields": createFieldsBody(fields),
	}

	var created struct {
		Key string `json:"key"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/api/2/issue", nil, body, &created, "new ticket", requestID); err != nil {
		return nil, err
	}

	c.logger.Info("ticket created", "key", created.Key, "request_id", requestID)
	return &ops.Outcome{
		Key:     created.Key,
		Message: fmt.Sprintf("Ticket created successfully: %s", created.Key),
	}, nil
}

func createFieldsBody(fields ops.Fields) map[string]interface{} {
	body := map[string]interface{}{
		"project":   map[string]string{"key": fields["project"]},
		"summary":   fields["summary"],
		"issuetype": map[string]string{"name": valueOr(fields["issue_type"], "Task")},
	}
	if d := fields["description"]; d != "" {
		body["description"] = d
	}
	if a := fields["assignee"]; a != "" && a != "Unassigned" {
		body["assignee"] = map[string]string{"name": a}
	}
	if p := fields["priority"]; p != "" {
		body["priority"] = map[string]string{"name": p}
	}
	if l := fields["labels"]; l != "" {
		body["labels"] = splitList(l)
	}
	return body
}

func (c *Client) updateTicket(ctx context.Context, requestID, key string, fields ops.Fields) (*ops.Outcome, error) {
	edit := map[string]interface{}{}
	if v := fields["summary"]; v != "" {
		edit["summary"] = v
	}
	if v, ok := fields["description"]; ok {
		edit["description"] = v
	}
	if v := fields["assignee"]; v != "" {
		edit["assignee"] = map[string]string{"name": v}
	}
	if v := fields["priority"]; v != "" {
		edit["priority"] = map[string]string{"name": v}
	}
	if v := fields["labels"]; v != "" {
		edit["labels"] = splitList(v)
	}

	if len(edit) > 0 {
		body := map[string]interface{}{"fields": edit}
		if err := c.doJSON(ctx, http.MethodPut, "/rest/api/2/issue/"+key, nil, body, nil, key, requestID); err != nil {
			return nil, err
		}
	}

	// Status changes go through the transition workflow, not the edit
	// endpoint.
	if status := fields["status"]; status != "" {
		if _, err := c.transitionTicket(ctx, requestID, key, status, ""); err != nil {
			return nil, err
		}
	}

	c.logger.Info("ticket updated", "key", key, "request_id", requestID)
	return &ops.Outcome{Key: key, Message: fmt.Sprintf("Ticket %s updated successfully.", key)}, nil
}

func (c *Client) transitionTicket(ctx context.Context, requestID, key, targetStatus, comment string) (*ops.Outcome, error) {
	var list transitionList
	path := "/rest/api/2/issue/" + key + "/transitions"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &list, key, ""); err != nil {
		return nil, err
	}

	transitionID := ""
	for _, t := range list.Transitions {
		if strings.EqualFold(t.Name, targetStatus) || strings.EqualFold(t.To.Name, targetStatus) {
			transitionID = t.ID
			break
		}
	}
	if transitionID == "" {
		return nil, ops.Permanent("tracker transition",
			fmt.Errorf("no transition to status %q available for %s", targetStatus, key))
	}

	body := map[string]interface{}{
		"transition": map[string]string{"id": transitionID},
	}
	if comment != "" {
		body["update"] = map[string]interface{}{
			"comment": []map[string]interface{}{
				{"add": map[string]string{"body": comment}},
			},
		}
	}
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, nil, key, requestID); err != nil {
		return nil, err
	}

	c.logger.Info("ticket transitioned", "key", key, "status", targetStatus, "request_id", requestID)
	return &ops.Outcome{Key: key, Message: fmt.Sprintf("Ticket %s moved to %q.", key, targetStatus)}, nil
}

func (c *Client) assignTicket(ctx context.Context, requestID, key, assignee string) (*ops.Outcome, error) {
	body := map[string]string{"name": assignee}
	if err := c.doJSON(ctx, http.MethodPut, "/rest/api/2/issue/"+key+"/assignee", nil, body, nil, key, requestID); err != nil {
		return nil, err
	}
	c.logger.Info("ticket assigned", "key", key, "assignee", assignee, "request_id", requestID)
	return &ops.Outcome{Key: key, Message: fmt.Sprintf("Ticket %s assigned to %s.", key, assignee)}, nil
}

func (c *Client) addComment(ctx context.Context, requestID, key, comment, visibility string) (*ops.Outcome, error) {
	body := map[string]interface{}{"body": comment}
	if visibility != "" {
		body["visibility"] = map[string]string{"type": "role", "value": visibility}
	}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/api/2/issue/"+key+"/comment", nil, body, nil, key, requestID); err != nil {
		return nil, err
	}
	c.logger.Info("comment added", "key", key, "request_id", requestID)
	return &ops.Outcome{Key: key, Message: fmt.Sprintf("Comment added to %s.", key)}, nil
}

// bulkUpdate applies the same change to every listed ticket, stopping at the
// first failure. The per-key idempotency header includes the key so retries
// skip the tickets that already applied.
func (c *Client) bulkUpdate(ctx context.Context, requestID string, fields ops.Fields) (*ops.Outcome, error) {
	keys := splitList(fields["keys"])
	if len(keys) == 0 {
		return nil, ops.Permanent("tracker bulk", fmt.Errorf("no ticket keys given"))
	}

	change := fields.Clone()
	delete(change, "keys")

	for i, key := range keys {
		change["key"] = key
		if _, err := c.updateTicket(ctx, fmt.Sprintf("%s/%s", requestID, key), key, change); err != nil {
			return nil, fmt.Errorf("bulk update stopped at %s (%d of %d applied): %w", key, i, len(keys), err)
		}
	}

	return &ops.Outcome{
		Key:     strings.Join(keys, ", "),
		Message: fmt.Sprintf("Updated %d tickets: %s.", len(keys), strings.Join(keys, ", ")),
	}, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
