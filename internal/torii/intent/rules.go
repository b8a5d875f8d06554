package intent

import (
	"errors"
	"regexp"
	"strings"

	"github.com/bdobrica/Torii/internal/torii/approvals"
	"github.com/bdobrica/Torii/internal/torii/ops"
)

// rule is one entry of the ordered rule list. match returns (intent, true)
// when the rule claims the message.
type rule struct {
	name  string
	match func(text string) (Intent, bool)
}

// rules is evaluated top to bottom; the first claiming rule wins. Decision
// patterns come first so "approve <id>" is never misread as a write verb,
// writes come before reads so "update ticket" is never misread as a listing.
var rules = []rule{
	{name: "approval_decision", match: matchDecision},
	{name: "write_create", match: matchCreate},
	{name: "write_bulk", match: matchBulk},
	{name: "write_update", match: matchUpdate},
	{name: "write_transition", match: matchTransition},
	{name: "write_assign", match: matchAssign},
	{name: "write_comment", match: matchComment},
	{name: "read_summarize", match: matchSummarize},
	{name: "read_list_tickets", match: matchListTickets},
	{name: "read_list_statuses", match: matchListStatuses},
	{name: "read_pending_approvals", match: matchPendingApprovals},
}

var (
	ticketKeyRe = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-[0-9]+\b`)
	projectRe   = regexp.MustCompile(`\bin\s+([A-Z][A-Z0-9]+)\b`)
	quotedRe    = regexp.MustCompile(`"([^"]+)"`)

	priorityRe  = regexp.MustCompile(`\bpriority\s+(?:to\s+)?(highest|high|medium|low|lowest)\b`)
	issueTypeRe = regexp.MustCompile(`\b(bug|task|story|epic)\b`)

	setFieldRe = regexp.MustCompile(`\bset\s+(summary|description|status|assignee|priority|labels)\s+to\s+`)

	transitionRe = regexp.MustCompile(`(?:^|\s)(?i:move|transition)\s+([A-Z][A-Z0-9]+-[0-9]+)\s+(?i:to)\s+(.+)$`)
	assignRe     = regexp.MustCompile(`(?:^|\s)(?i:assign)\s+([A-Z][A-Z0-9]+-[0-9]+)\s+(?i:to)\s+(.+)$`)
	commentRe    = regexp.MustCompile(`(?i:comment\s+on|add\s+(?:a\s+)?comment\s+(?:to|on))\s+([A-Z][A-Z0-9]+-[0-9]+)\s*[:,]?\s*(.*)$`)
	summarizeRe  = regexp.MustCompile(`(?i:summari[sz]e)\s+(?:ticket\s+)?([A-Z][A-Z0-9]+-[0-9]+)`)
	statusWordRe = regexp.MustCompile(`(?i:with\s+status|in\s+status|status)\s+"?([^"]+?)"?\s*$`)
)

func matchDecision(text string) (Intent, bool) {
	d, err := approvals.ParseDecision(text)
	if err != nil {
		if errors.Is(err, approvals.ErrNotADecision) {
			return Intent{}, false
		}
		return Intent{}, false
	}
	return Intent{
		Type:      TypeApprovalDecision,
		Approve:   d.Approve,
		RequestID: d.RequestID,
		Reason:    d.Reason,
	}, true
}

// createRe claims creation phrasings: the verb and the noun may be separated
// by qualifiers, as in "create a bug ticket" or "file a high priority issue".
var createRe = regexp.MustCompile(`\b(?:create|open|file)\b.{0,40}?\b(?:ticket|issue|bug)\b|\bnew\s+ticket\b`)

func matchCreate(text string) (Intent, bool) {
	lower := strings.ToLower(text)
	if !createRe.MatchString(lower) {
		return Intent{}, false
	}

	// The head (before any colon) names the project and qualifiers; the
	// tail is the summary. Scanning only the head keeps words inside the
	// summary ("Fix login bug") from being read as qualifiers.
	head, tail := splitColon(text)

	fields := ops.Fields{}
	if m := projectRe.FindStringSubmatch(head); m != nil {
		fields["project"] = m[1]
	}

	summary := strings.TrimSpace(tail)
	if summary == "" {
		if m := quotedRe.FindStringSubmatch(text); m != nil {
			summary = m[1]
		}
	}
	if summary != "" {
		fields["summary"] = summary
	}

	if fields["project"] == "" || fields["summary"] == "" {
		return Intent{
			Type: TypeAmbiguous,
			Op:   ops.KindCreate,
			Hint: "To create a ticket I need a project key and a summary, e.g. `create ticket in PROJ: Fix login bug`.",
		}, true
	}

	if m := issueTypeRe.FindStringSubmatch(strings.ToLower(head)); m != nil {
		fields["issue_type"] = titleCase(m[1])
	}
	if m := priorityRe.FindStringSubmatch(strings.ToLower(head)); m != nil {
		fields["priority"] = titleCase(m[1])
	}

	return Intent{Type: TypeWriteRequest, Op: ops.KindCreate, Fields: fields}, true
}

func matchBulk(text string) (Intent, bool) {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "bulk update") {
		return Intent{}, false
	}

	keys := ticketKeyRe.FindAllString(text, -1)
	fields := parseAssignments(text)

	if len(keys) < 2 || len(fields) == 0 {
		return Intent{
			Type: TypeAmbiguous,
			Op:   ops.KindBulk,
			Hint: "A bulk update needs at least two ticket keys and a change, e.g. `bulk update PROJ-1, PROJ-2 set priority to High`.",
		}, true
	}

	fields["keys"] = strings.Join(keys, ", ")
	return Intent{Type: TypeWriteRequest, Op: ops.KindBulk, Target: fields["keys"], Fields: fields}, true
}

var updatePhrases = []string{"update ticket", "update issue", "modify ticket", "change ticket", "edit ticket"}

func matchUpdate(text string) (Intent, bool) {
	lower := strings.ToLower(text)
	if !containsAny(lower, updatePhrases) {
		return Intent{}, false
	}

	key := ticketKeyRe.FindString(text)
	fields := parseAssignments(text)

	if key == "" || len(fields) == 0 {
		return Intent{
			Type: TypeAmbiguous,
			Op:   ops.KindUpdate,
			Hint: "To update a ticket tell me the key and the change, e.g. `update ticket PROJ-7 set priority to High`.",
		}, true
	}

	fields["key"] = key
	return Intent{Type: TypeWriteRequest, Op: ops.KindUpdate, Target: key, Fields: fields}, true
}

func matchTransition(text string) (Intent, bool) {
	m := transitionRe.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}

	status := trimValue(m[2])
	fields := ops.Fields{"key": m[1]}

	// Optional trailing `with comment "..."`.
	if i := strings.Index(strings.ToLower(status), "with comment"); i >= 0 {
		if q := quotedRe.FindStringSubmatch(status[i:]); q != nil {
			fields["comment"] = q[1]
		}
		status = trimValue(status[:i])
	}
	if status == "" {
		return Intent{
			Type: TypeAmbiguous,
			Op:   ops.KindTransition,
			Hint: "Which status should the ticket move to? e.g. `move PROJ-7 to In Progress`.",
		}, true
	}

	fields["status"] = status
	return Intent{Type: TypeWriteRequest, Op: ops.KindTransition, Target: m[1], Fields: fields}, true
}

func matchAssign(text string) (Intent, bool) {
	m := assignRe.FindStringSubmatch(text)
	if m == nil {
		// "assign" without a resolvable key/assignee is still claimed so the
		// engine asks instead of falling through to the responder.
		if strings.Contains(strings.ToLower(text), "assign ticket") ||
			strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "assign ") {
			return Intent{
				Type: TypeAmbiguous,
				Op:   ops.KindAssign,
				Hint: "To assign a ticket I need the key and the assignee, e.g. `assign PROJ-7 to alice`.",
			}, true
		}
		return Intent{}, false
	}

	assignee := trimValue(m[2])
	if assignee == "" {
		return Intent{
			Type: TypeAmbiguous,
			Op:   ops.KindAssign,
			Hint: "Who should the ticket be assigned to?",
		}, true
	}

	return Intent{
		Type:   TypeWriteRequest,
		Op:     ops.KindAssign,
		Target: m[1],
		Fields: ops.Fields{"key": m[1], "assignee": assignee},
	}, true
}

func matchComment(text string) (Intent, bool) {
	m := commentRe.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}

	body := strings.TrimSpace(m[2])
	if q := quotedRe.FindStringSubmatch(body); q != nil {
		body = q[1]
	}
	if body == "" {
		return Intent{
			Type: TypeAmbiguous,
			Op:   ops.KindComment,
			Hint: "What should the comment say? e.g. `comment on PROJ-7: deployed to staging`.",
		}, true
	}

	return Intent{
		Type:   TypeWriteRequest,
		Op:     ops.KindComment,
		Target: m[1],
		Fields: ops.Fields{"key": m[1], "comment": body},
	}, true
}

func matchSummarize(text string) (Intent, bool) {
	if m := summarizeRe.FindStringSubmatch(text); m != nil {
		return Intent{Type: TypeRead, Query: ops.Query{Kind: ops.QuerySummarizeTicket, Key: m[1]}}, true
	}
	if strings.Contains(strings.ToLower(text), "summarize ticket") ||
		strings.Contains(strings.ToLower(text), "summarise ticket") {
		return Intent{
			Type: TypeAmbiguous,
			Hint: "Which ticket should I summarize? e.g. `summarize ticket PROJ-7`.",
		}, true
	}
	return Intent{}, false
}

func matchListTickets(text string) (Intent, bool) {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "ticket") {
		return Intent{}, false
	}
	if !strings.Contains(lower, "my tickets") &&
		!containsAny(lower, []string{"show", "list", "fetch"}) {
		return Intent{}, false
	}

	q := ops.Query{Kind: ops.QueryListTickets}
	if m := statusWordRe.FindStringSubmatch(text); m != nil {
		q.Status = strings.TrimSpace(m[1])
	}
	return Intent{Type: TypeRead, Query: q}, true
}

func matchListStatuses(text string) (Intent, bool) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "statuses") &&
		containsAny(lower, []string{"list", "show", "what", "which"}) {
		return Intent{Type: TypeRead, Query: ops.Query{Kind: ops.QueryListStatuses}}, true
	}
	return Intent{}, false
}

func matchPendingApprovals(text string) (Intent, bool) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "pending approval") ||
		(strings.Contains(lower, "approvals") && containsAny(lower, []string{"list", "show"})) {
		return Intent{Type: TypeRead, Query: ops.Query{Kind: ops.QueryPendingApprovals}}, true
	}
	return Intent{}, false
}

// parseAssignments extracts every `set <field> to <value>` clause. Values run
// until the next clause (or end of text) with connective words trimmed, so
// `set priority to High and set status to Done` yields both fields.
func parseAssignments(text string) ops.Fields {
	locs := setFieldRe.FindAllStringSubmatchIndex(text, -1)
	if locs == nil {
		return ops.Fields{}
	}

	fields := make(ops.Fields, len(locs))
	for i, loc := range locs {
		field := strings.ToLower(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		value := trimValue(text[loc[1]:end])
		value = strings.TrimSuffix(value, " and")
		value = trimValue(value)
		if value == "" {
			continue
		}
		if field == "priority" {
			value = titleCase(strings.ToLower(value))
		}
		fields[field] = value
	}
	return fields
}

func splitColon(text string) (head, tail string) {
	if i := strings.Index(text, ":"); i >= 0 {
		return text[:i], text[i+1:]
	}
	return text, ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// trimValue strips surrounding quotes, trailing punctuation, and whitespace
// from an extracted value.
func trimValue(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".,;")
	return strings.TrimSpace(s)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
