// Package engine implements the per-turn conversation state machine that
// orchestrates the approval gate.
//
// A turn runs Start → (ReadInFlight | ApprovalPending | ExecuteInFlight) →
// Done. The engine itself is stateless per invocation and reconstructed
// every turn; session continuity lives entirely in the Session the transport
// passes in and out, so transports can be replicated freely while only the
// approval ledger needs shared synchronization.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/Torii/common/trace"
	"github.com/bdobrica/Torii/internal/torii/approvals"
	"github.com/bdobrica/Torii/internal/torii/executor"
	"github.com/bdobrica/Torii/internal/torii/intent"
	"github.com/bdobrica/Torii/internal/torii/ops"
	"github.com/bdobrica/Torii/internal/torii/preview"
	"github.com/bdobrica/Torii/internal/torii/session"
)

// Engine wires the intent router, preview builder, approval ledger, and
// executor into the turn handler exposed to transports.
type Engine struct {
	ledger    *approvals.Ledger
	exec      *executor.Executor
	reader    ops.Reader
	responder ops.GeneralResponder
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. A nil logger uses slog.Default.
func New(ledger *approvals.Ledger, exec *executor.Executor, reader ops.Reader, responder ops.GeneralResponder, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		ledger:    ledger,
		exec:      exec,
		reader:    reader,
		responder: responder,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TurnResult is what a transport renders back to the human after one turn.
type TurnResult struct {
	Response string `json:"response"`

	// PendingApproval is set when this turn created a new approval request.
	PendingApproval *PendingApproval `json:"pending_approval,omitempty"`
}

// PendingApproval identifies a newly created approval request.
type PendingApproval struct {
	ID      string          `json:"id"`
	Kind    ops.Kind        `json:"operation_kind"`
	Preview preview.Preview `json:"preview"`
}

// HandleTurn processes one human message within a session.
//
// An empty (or whitespace-only) message fails with ops.ErrMissingHumanInput
// before any session or ledger mutation. All collaborator failures are
// converted into user-facing response text; the returned error is reserved
// for turn-fatal conditions.
func (e *Engine) HandleTurn(ctx context.Context, sess *session.Session, humanMessage string) (*TurnResult, error) {
	if isBlank(humanMessage) {
		return nil, ops.ErrMissingHumanInput
	}

	traceID := trace.GenerateID()
	ctx = trace.WithTraceID(ctx, traceID)
	log := e.logger.With("trace_id", traceID, "session_id", sess.ID)

	now := e.now()
	sess.Append(session.RoleHuman, humanMessage, now)

	it := intent.Classify(humanMessage)
	log.Info("turn classified", "intent", string(it.Type), "kind", string(it.Op))

	var result *TurnResult
	switch it.Type {
	case intent.TypeRead:
		result = e.handleRead(ctx, sess, it.Query, log)
	case intent.TypeApprovalDecision:
		result = e.handleDecisionTurn(ctx, sess, it, log)
	case intent.TypeWriteRequest:
		result = e.handleWriteRequest(ctx, sess, it, log)
	case intent.TypeAmbiguous:
		result = &TurnResult{Response: it.Hint}
	default:
		result = e.handleUnclassified(ctx, sess, log)
	}

	sess.Append(session.RoleAssistant, result.Response, e.now())
	return result, nil
}

// handleRead services an observation-only query. Reads bypass the approval
// gate entirely.
func (e *Engine) handleRead(ctx context.Context, sess *session.Session, q ops.Query, log *slog.Logger) *TurnResult {
	var (
		text string
		err  error
	)
	switch q.Kind {
	case ops.QueryListTickets:
		text, err = e.reader.ListTickets(ctx, q.Status)
	case ops.QuerySummarizeTicket:
		text, err = e.reader.SummarizeTicket(ctx, q.Key)
	case ops.QueryListStatuses:
		var statuses []string
		statuses, err = e.reader.ListStatuses(ctx)
		if err == nil {
			text = formatStatuses(statuses)
		}
	case ops.QueryPendingApprovals:
		return &TurnResult{Response: formatPendingList(e.ledger.ListPending(sess.ID))}
	default:
		return &TurnResult{Response: "I don't know how to answer that query."}
	}

	if err != nil {
		log.Warn("read failed", "query", string(q.Kind), "err", err)
		return &TurnResult{Response: readErrorMessage(q, err)}
	}
	return &TurnResult{Response: text}
}

// handleDecisionTurn resolves an approve/reject message, falling back to the
// session's pending request when no id was given.
func (e *Engine) handleDecisionTurn(ctx context.Context, sess *session.Session, it intent.Intent, log *slog.Logger) *TurnResult {
	id := it.RequestID
	if id == "" {
		id = sess.PendingRequestID
	}
	if id == "" {
		return &TurnResult{Response: "There is no pending approval in this conversation. Include the request id, e.g. `approve <id>`."}
	}

	res, err := e.Decide(ctx, id, it.Approve, sess.ID, it.Reason)
	if err != nil {
		return &TurnResult{Response: decisionErrorMessage(id, err)}
	}

	if sess.PendingRequestID == id && res.Status != approvals.StatusApproved {
		// Terminal for this conversation's pending request (executed,
		// failed, or rejected); approved-but-transient keeps the weak
		// reference so the human can retry with a bare "approve".
		sess.PendingRequestID = ""
	}
	log.Info("decision applied", "request_id", id, "status", string(res.Status))
	return &TurnResult{Response: res.Message}
}

// handleWriteRequest validates the desired fields, computes the preview, and
// parks the operation in the ledger as pending.
func (e *Engine) handleWriteRequest(ctx context.Context, sess *session.Session, it intent.Intent, log *slog.Logger) *TurnResult {
	if err := ops.ValidateFields(it.Op, it.Fields); err != nil {
		var fv *ops.FieldValidationError
		if errors.As(err, &fv) {
			return &TurnResult{Response: fmt.Sprintf("I can't prepare that %s operation: %s. Please restate it with the missing details.", it.Op, fv.Detail)}
		}
		return &TurnResult{Response: fmt.Sprintf("I can't prepare that operation: %v.", err)}
	}

	// Update-like single-target operations diff against current state; the
	// Reader call happens here, outside the preview builder, which stays
	// pure.
	var current ops.Fields
	if !it.Op.CreateLike() && it.Op != ops.KindBulk {
		var err error
		current, err = e.reader.ReadState(ctx, it.Op, it.Target)
		if err != nil {
			log.Warn("read state failed", "kind", string(it.Op), "target", it.Target, "err", err)
			switch {
			case ops.IsNotFound(err):
				return &TurnResult{Response: fmt.Sprintf("Ticket %s was not found, so there is nothing to %s.", it.Target, it.Op)}
			case ops.IsTransient(err):
				return &TurnResult{Response: "The tracker is temporarily unreachable; please try again in a moment."}
			default:
				return &TurnResult{Response: fmt.Sprintf("I couldn't read the current state of %s: %v.", it.Target, err)}
			}
		}
	}

	pv := preview.Build(it.Op, it.Fields, current)
	if len(pv) == 0 {
		return &TurnResult{Response: fmt.Sprintf("Everything you asked for already matches the current state of %s; nothing to change.", it.Target)}
	}

	req := e.ledger.Create(it.Op, it.Target, it.Fields, pv, sess.ID)
	sess.PendingRequestID = req.ID
	sess.LastOperationKind = it.Op
	log.Info("approval request created", "request_id", req.ID, "kind", string(it.Op), "target", it.Target)

	return &TurnResult{
		Response: preview.Render(req.ID, req.Kind, req.Target, req.Preview),
		PendingApproval: &PendingApproval{
			ID:      req.ID,
			Kind:    req.Kind,
			Preview: req.Preview,
		},
	}
}

// handleUnclassified delegates to the general responder.
func (e *Engine) handleUnclassified(ctx context.Context, sess *session.Session, log *slog.Logger) *TurnResult {
	text, err := e.responder.Respond(ctx, sess.History())
	if err != nil {
		log.Warn("responder failed", "err", err)
		return &TurnResult{Response: "I couldn't work out what you need. Try `show me my tickets`, `create ticket in PROJ: <summary>`, or `approve <id>`."}
	}
	return &TurnResult{Response: text}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
