package approvals

import (
	"errors"
	"strings"
)

// Decision is the parsed form of an approve/reject chat message.
type Decision struct {
	// Approve is true for "approve", false for "reject".
	Approve bool
	// RequestID is the id being acted on. It may be empty ("approve" alone),
	// in which case the engine resolves it against the session's pending
	// request.
	RequestID string
	// Reason is the optional free-text reason.
	Reason string
}

// ErrNotADecision is returned when the message is not an approval decision.
// Callers use errors.Is to distinguish this expected case from malformed
// decisions.
var ErrNotADecision = errors.New("not an approval decision")

// decisionVerbs maps recognised leading verbs to the approve flag. "deny" is
// accepted as an alias for reject.
var decisionVerbs = map[string]bool{
	"approve": true,
	"reject":  false,
	"deny":    false,
}

// ParseDecision parses a plain chat message into a Decision.
//
// Accepted formats (case-insensitive verb):
//
//	approve
//	approve <id>
//	reject <id>
//	reject <id> <reason text>
//	reject <id> reason="<text>"
func ParseDecision(text string) (*Decision, error) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, ErrNotADecision
	}

	approve, ok := decisionVerbs[strings.ToLower(fields[0])]
	if !ok {
		return nil, ErrNotADecision
	}

	d := &Decision{Approve: approve}
	if len(fields) > 1 {
		d.RequestID = fields[1]
	}
	if len(fields) > 2 {
		d.Reason = parseReason(strings.Join(fields[2:], " "))
	}
	return d, nil
}

// parseReason extracts the reason from either `reason="<text>"` /
// `reason=<text>` or plain trailing text.
func parseReason(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "reason=") {
		val := s[len("reason="):]
		return strings.Trim(val, `"'`)
	}
	return s
}
