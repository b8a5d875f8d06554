package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdobrica/Torii/internal/torii/approvals"
	"github.com/bdobrica/Torii/internal/torii/ops"
)

// DecisionResult reports the request's status after a decision, with a
// human-readable message ready for any transport.
type DecisionResult struct {
	Status  approvals.Status `json:"status"`
	Message string           `json:"message"`
}

// Decide applies an approve or reject to a pending request. An approval
// immediately routes the request to the executor; the result message covers
// both the decision and the execution outcome. Errors wrap the ledger
// sentinels (approvals.ErrNotFound, approvals.ErrAlreadyDecided) so
// transports can map them to status codes.
func (e *Engine) Decide(ctx context.Context, id string, approve bool, actor, reason string) (*DecisionResult, error) {
	if !approve {
		req, err := e.ledger.Reject(id, actor, reason)
		if err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("❌ Operation rejected. Request %s has been cancelled.", id)
		if reason != "" {
			msg = fmt.Sprintf("❌ Operation rejected (%s). Request %s has been cancelled.", reason, id)
		}
		return &DecisionResult{Status: req.Status, Message: msg}, nil
	}

	req, err := e.ledger.Approve(id, actor)
	if err != nil {
		// An approve on an already-approved request is a retry: the first
		// approval stands and execution is attempted again. Anything else
		// (rejected, executed, failed, expired, unknown) is surfaced.
		if !errors.Is(err, approvals.ErrAlreadyDecided) || req == nil || req.Status != approvals.StatusApproved {
			return nil, err
		}
	} else {
		e.logger.Info("request approved", "request_id", id, "kind", string(req.Kind), "actor", actor)
	}

	outcome, execErr := e.exec.Execute(ctx, id)
	switch {
	case execErr == nil:
		return &DecisionResult{
			Status:  approvals.StatusExecuted,
			Message: fmt.Sprintf("✅ Approved and executed %s: %s", req.Kind, outcome.Message),
		}, nil
	case ops.IsTransient(execErr):
		// Still approved: no re-approval needed, the same id can be
		// executed again once the tracker recovers.
		return &DecisionResult{
			Status: approvals.StatusApproved,
			Message: fmt.Sprintf(
				"✅ Approved, but the tracker is temporarily unavailable. The approval stands — say `approve %s` again to retry.", id),
		}, nil
	default:
		return &DecisionResult{
			Status:  approvals.StatusFailed,
			Message: fmt.Sprintf("❌ Approved, but execution failed permanently: %v. Please submit a new request.", execErr),
		}, nil
	}
}

// ListPending returns the pending requests visible to a transport, oldest
// first. ownerSession filters to one session when non-empty.
func (e *Engine) ListPending(ownerSession string) []*approvals.Request {
	return e.ledger.ListPending(ownerSession)
}
