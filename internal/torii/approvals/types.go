// Package approvals implements the approval ledger at the heart of Torii.
//
// Every state-changing tracker operation is held here as a pending Request
// until a human approves or rejects it. The ledger is the sole authority on
// "is this approved" and the only mutator of request status; sessions and
// transports hold request ids, never the records themselves.
package approvals

import (
	"errors"
	"time"

	"github.com/bdobrica/Torii/internal/torii/ops"
	"github.com/bdobrica/Torii/internal/torii/preview"
)

// Status is the lifecycle state of an approval request.
//
// Transitions are monotonic: pending → {approved, rejected, expired};
// approved → {executed, failed}. Rejected, expired, executed, and failed are
// terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
	StatusExpired  Status = "expired"
)

// DefaultTTL is how long a pending request remains decidable before the
// reaper expires it.
const DefaultTTL = 24 * time.Hour

// Request is one approval request. Instances handed out by the Ledger are
// snapshots; mutating them has no effect on the ledger's own record.
type Request struct {
	// ID is a globally unique opaque token (UUID).
	ID string `json:"id"`

	// Kind is the write operation being gated.
	Kind ops.Kind `json:"operation_kind"`

	// Target is the primary subject of the operation (ticket key, or the
	// comma-joined key list for bulk). Empty for create.
	Target string `json:"target,omitempty"`

	// Fields is the full desired field set, sufficient to execute the
	// operation after approval.
	Fields ops.Fields `json:"fields"`

	// Preview is the field-level diff shown to the human.
	Preview preview.Preview `json:"preview"`

	// OwnerSession is the session that requested the operation. Ownership of
	// the record itself stays with the ledger.
	OwnerSession string `json:"owner_session"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// DecidedAt, DecidedBy, and DecisionReason are set when the request
	// leaves pending.
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	DecidedBy      string     `json:"decided_by,omitempty"`
	DecisionReason string     `json:"decision_reason,omitempty"`

	// Outcome is set once the operation has executed successfully.
	Outcome *ops.Outcome `json:"outcome,omitempty"`

	// FailureReason is set when execution failed permanently.
	FailureReason string `json:"failure_reason,omitempty"`
}

// Terminal reports whether no further transition is possible.
func (r *Request) Terminal() bool {
	switch r.Status {
	case StatusRejected, StatusExecuted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when no request exists for the given id.
	ErrNotFound = errors.New("approval request not found")

	// ErrAlreadyDecided is returned when a decision is attempted on a
	// request that is no longer pending. Exactly one concurrent decision
	// wins; all others observe this error.
	ErrAlreadyDecided = errors.New("approval request already decided")

	// ErrNotApproved is returned when an execution-side transition is
	// attempted on a request that is not in the approved state. Hitting it
	// outside a race indicates a programming error in the caller.
	ErrNotApproved = errors.New("approval request is not approved")
)
