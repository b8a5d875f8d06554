// Package intent classifies free-form chat messages into the actions the
// conversation engine can take: read queries, approval decisions, write
// requests, or nothing recognisable.
//
// Classification is deterministic keyword/pattern matching over an explicit,
// ordered rule list — no LLM is involved in control decisions. The matching
// order is fixed: approval-decision patterns first, then write-operation
// verbs, then read verbs. A rule that recognises a write verb but cannot
// confidently extract the mandatory fields returns an Ambiguous intent with
// a clarification hint; it never guesses a value for a destructive action.
package intent

import (
	"github.com/bdobrica/Torii/internal/torii/ops"
)

// Type discriminates the Intent union.
type Type string

const (
	// TypeRead is an observation-only request that bypasses the gate.
	TypeRead Type = "read"
	// TypeApprovalDecision is an approve/reject of a pending request.
	TypeApprovalDecision Type = "approval_decision"
	// TypeWriteRequest asks for a state-changing tracker operation.
	TypeWriteRequest Type = "write_request"
	// TypeAmbiguous is a recognised write verb with missing mandatory
	// fields; the engine must ask for clarification, never fill them in.
	TypeAmbiguous Type = "ambiguous"
	// TypeUnclassified matched no rule; the engine delegates to the
	// general responder.
	TypeUnclassified Type = "unclassified"
)

// Intent is the tagged result of classifying one message. Only the fields
// relevant to Type are populated.
type Intent struct {
	Type Type

	// Text is the original message, always set.
	Text string

	// Read.
	Query ops.Query

	// ApprovalDecision.
	Approve   bool
	RequestID string
	Reason    string

	// WriteRequest.
	Op     ops.Kind
	Target string
	Fields ops.Fields

	// Ambiguous.
	Hint string
}

// Classify runs the ordered rule list over text. Identical text always
// yields an identical Intent.
func Classify(text string) Intent {
	for _, r := range rules {
		if it, ok := r.match(text); ok {
			it.Text = text
			return it
		}
	}
	return Intent{Type: TypeUnclassified, Text: text}
}
