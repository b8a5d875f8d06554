// Package executor performs the side-effecting tracker call for an approved
// request, exactly once per approval.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bdobrica/Torii/common/retry"
	"github.com/bdobrica/Torii/internal/torii/approvals"
	"github.com/bdobrica/Torii/internal/torii/ops"
)

// Executor applies approved operations through the Mutator and reports the
// outcome back to the ledger. All external calls happen here, outside every
// ledger critical section, so a slow tracker never holds a ledger lock.
type Executor struct {
	ledger  *approvals.Ledger
	mutator ops.Mutator
	retry   retry.Config
	logger  *slog.Logger

	// inflight serializes concurrent Execute calls per request id so the
	// Mutator is invoked at most once per approval.
	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// Config tunes the executor's transient-failure retry behaviour.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// New creates an Executor. A zero Config uses the retry package defaults;
// a nil logger uses slog.Default.
func New(ledger *approvals.Ledger, mutator ops.Mutator, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	rc := retry.DefaultConfig
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelay > 0 {
		rc.InitialDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		rc.MaxDelay = cfg.MaxDelay
	}
	rc.ShouldRetry = ops.IsTransient

	return &Executor{
		ledger:   ledger,
		mutator:  mutator,
		retry:    rc,
		logger:   logger,
		inflight: make(map[string]*sync.Mutex),
	}
}

// Execute applies the operation behind an approved request id.
//
// Semantics:
//   - an already-executed id short-circuits to the stored outcome without
//     invoking the Mutator again (exactly-once);
//   - any id the ledger does not report approved fails fast with
//     ErrNotApproved — calling Execute on a pending, rejected, or failed
//     request is a caller bug, never a silent run;
//   - a transient Mutator failure is retried with backoff, and if it still
//     fails the request stays approved so the same id can be executed again
//     without a fresh approval;
//   - a permanent failure marks the request failed; it needs a new write
//     request.
func (e *Executor) Execute(ctx context.Context, id string) (*ops.Outcome, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	req, err := e.ledger.Get(id)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case approvals.StatusExecuted:
		e.logger.Debug("execute short-circuit: already executed", "request_id", id)
		return req.Outcome, nil
	case approvals.StatusApproved:
		// proceed
	default:
		return nil, fmt.Errorf("request %s is %s: %w", id, req.Status, approvals.ErrNotApproved)
	}

	var outcome *ops.Outcome
	err = retry.Do(ctx, e.retry, func() error {
		o, applyErr := e.mutator.ApplyOperation(ctx, req.ID, req.Kind, req.Fields)
		if applyErr != nil {
			return applyErr
		}
		outcome = o
		return nil
	})
	if err != nil {
		if ops.IsTransient(err) {
			// Stays approved; the same id is re-executable without a new
			// approval.
			e.logger.Warn("execution failed transiently", "request_id", id, "kind", req.Kind, "err", err)
			return nil, err
		}
		if !ops.IsPermanent(err) {
			err = ops.Permanent(string(req.Kind), err)
		}
		e.logger.Error("execution failed permanently", "request_id", id, "kind", req.Kind, "err", err)
		if _, markErr := e.ledger.MarkFailed(id, err.Error()); markErr != nil {
			e.logger.Error("mark failed did not apply", "request_id", id, "err", markErr)
		}
		return nil, err
	}

	if _, markErr := e.ledger.MarkExecuted(id, outcome); markErr != nil {
		// The transport may have retried the turn after a crash; the record
		// is authoritative, so surface what it holds.
		e.logger.Error("mark executed did not apply", "request_id", id, "err", markErr)
	}

	e.logger.Info("operation executed", "request_id", id, "kind", req.Kind, "key", outcome.Key)
	return outcome, nil
}

func (e *Executor) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.inflight[id]
	if !ok {
		m = &sync.Mutex{}
		e.inflight[id] = m
	}
	return m
}
