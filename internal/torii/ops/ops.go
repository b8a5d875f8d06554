// Package ops defines the operation vocabulary shared across Torii: the
// write-operation kinds that require approval, the read queries that bypass
// the gate, the interfaces of the external collaborators (tracker reader,
// tracker mutator, general responder), and the error taxonomy every
// collaborator failure must be converted into before it reaches the
// conversation engine.
package ops

import "context"

// Kind identifies a state-changing operation against the tracker.
type Kind string

const (
	KindCreate     Kind = "create"
	KindUpdate     Kind = "update"
	KindTransition Kind = "transition"
	KindAssign     Kind = "assign"
	KindComment    Kind = "comment"
	KindBulk       Kind = "bulk"
)

// Kinds lists all write-operation kinds in canonical order.
var Kinds = []Kind{KindCreate, KindUpdate, KindTransition, KindAssign, KindComment, KindBulk}

// Valid reports whether k is a known write-operation kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// CreateLike reports whether previews for this kind show every field rather
// than a diff against current state. Create and comment produce something new;
// there is no current value to diff against.
func (k Kind) CreateLike() bool {
	return k == KindCreate || k == KindComment
}

// Fields is a flat field→value map describing the desired state of an
// operation. Multi-valued fields (labels, bulk keys) are comma-joined.
type Fields map[string]string

// Clone returns a shallow copy of f. A nil map clones to an empty map so
// callers can mutate the result unconditionally.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// QueryKind identifies a read-only request. Reads bypass the approval gate
// entirely.
type QueryKind string

const (
	QueryListTickets      QueryKind = "list_tickets"
	QuerySummarizeTicket  QueryKind = "summarize_ticket"
	QueryListStatuses     QueryKind = "list_statuses"
	QueryPendingApprovals QueryKind = "pending_approvals"
)

// Query describes a read-only request.
type Query struct {
	Kind QueryKind
	// Status optionally filters list_tickets by status name.
	Status string
	// Key is the ticket key for summarize_ticket.
	Key string
}

// Outcome is the result of a successfully applied operation.
type Outcome struct {
	// Key is the ticket key created or affected (e.g. "PROJ-42").
	Key string `json:"key"`
	// Message is a human-readable result description.
	Message string `json:"message"`
}

// Reader observes tracker state without mutating it. Implementations must
// convert transport failures into the ops error taxonomy: a missing target is
// a *NotFoundError, an unreachable tracker is a *TransientError.
type Reader interface {
	// ReadState returns the current field values of the target of a write
	// operation, used to compute field-level previews.
	ReadState(ctx context.Context, kind Kind, target string) (Fields, error)

	// ListTickets returns a human-readable listing of the caller's tickets,
	// optionally filtered by status.
	ListTickets(ctx context.Context, status string) (string, error)

	// SummarizeTicket returns a human-readable summary of one ticket.
	SummarizeTicket(ctx context.Context, key string) (string, error)

	// ListStatuses returns the status names known to the tracker.
	ListStatuses(ctx context.Context) ([]string, error)
}

// Mutator applies an approved operation to the tracker. requestID is the
// approval request id and doubles as an idempotency key on the tracker side,
// so a crash-and-retry of the same approval does not apply twice.
type Mutator interface {
	ApplyOperation(ctx context.Context, requestID string, kind Kind, fields Fields) (*Outcome, error)
}

// ChatMessage is one turn of conversation history handed to the
// GeneralResponder.
type ChatMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// GeneralResponder produces a free-form reply for messages the intent router
// could not classify.
type GeneralResponder interface {
	Respond(ctx context.Context, history []ChatMessage) (string, error)
}
