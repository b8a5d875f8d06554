package approvals

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Torii/internal/torii/ops"
	"github.com/bdobrica/Torii/internal/torii/preview"
)

// Ledger is a concurrency-safe, in-memory store of approval requests.
//
// Lock discipline: the ledger-wide RWMutex guards only the id table and
// insertion order; every status transition takes the per-request mutex, so
// decisions and execution marks on distinct ids never contend. All
// per-id operations are linearizable. Requests are never deleted — terminal
// entries stay queryable by id for the process lifetime so a slow or retried
// executor can still resolve them.
//
// Durable cross-restart persistence is deliberately absent; if a deployment
// needs it, the ledger is injected by handle everywhere and can be swapped
// for a shared external store.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	ttl time.Duration

	// now is injectable for tests.
	now func() time.Time
}

type entry struct {
	mu  sync.Mutex
	req Request
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the ledger's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates an empty ledger. ttl controls how long a pending request
// remains decidable; pass 0 for DefaultTTL.
func NewLedger(ttl time.Duration, opts ...Option) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l := &Ledger{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create allocates a fresh pending request and returns a snapshot of it.
// It never blocks on anything but the id-table lock and cannot fail.
func (l *Ledger) Create(kind ops.Kind, target string, fields ops.Fields, pv preview.Preview, ownerSession string) *Request {
	now := l.now()
	e := &entry{req: Request{
		ID:           uuid.NewString(),
		Kind:         kind,
		Target:       target,
		Fields:       fields.Clone(),
		Preview:      pv,
		OwnerSession: ownerSession,
		Status:       StatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(l.ttl),
	}}

	l.mu.Lock()
	l.entries[e.req.ID] = e
	l.order = append(l.order, e.req.ID)
	l.mu.Unlock()

	snap := e.req
	return &snap
}

// Approve transitions pending → approved. Exactly one of a set of concurrent
// Approve/Reject calls on the same id succeeds; the rest receive
// ErrAlreadyDecided. Unknown ids receive ErrNotFound.
func (l *Ledger) Approve(id, actor string) (*Request, error) {
	return l.decide(id, StatusApproved, actor, "")
}

// Reject transitions pending → rejected and records the reason.
func (l *Ledger) Reject(id, actor, reason string) (*Request, error) {
	return l.decide(id, StatusRejected, actor, reason)
}

func (l *Ledger) decide(id string, to Status, actor, reason string) (*Request, error) {
	e, ok := l.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Lazy expiry: a stale pending request cannot be decided.
	l.expireLocked(e)

	if e.req.Status != StatusPending {
		snap := e.req
		return &snap, fmt.Errorf("request %s is already %s: %w", id, e.req.Status, ErrAlreadyDecided)
	}

	now := l.now()
	e.req.Status = to
	e.req.DecidedAt = &now
	e.req.DecidedBy = actor
	e.req.DecisionReason = reason

	snap := e.req
	return &snap, nil
}

// IsApproved reports whether the request's current or historical status is
// approved or executed.
func (l *Ledger) IsApproved(id string) bool {
	e, ok := l.lookup(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req.Status == StatusApproved || e.req.Status == StatusExecuted
}

// MarkExecuted transitions approved → executed and stores the outcome.
// Only valid after the request has been approved; anything else returns
// ErrNotApproved.
func (l *Ledger) MarkExecuted(id string, outcome *ops.Outcome) (*Request, error) {
	return l.finish(id, StatusExecuted, outcome, "")
}

// MarkFailed transitions approved → failed and records why. Used for
// permanent execution failures only: a transient failure leaves the request
// approved so the human need not re-approve.
func (l *Ledger) MarkFailed(id, reason string) (*Request, error) {
	return l.finish(id, StatusFailed, nil, reason)
}

func (l *Ledger) finish(id string, to Status, outcome *ops.Outcome, reason string) (*Request, error) {
	e, ok := l.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.req.Status != StatusApproved {
		snap := e.req
		return &snap, fmt.Errorf("request %s is %s: %w", id, e.req.Status, ErrNotApproved)
	}

	e.req.Status = to
	e.req.Outcome = outcome
	e.req.FailureReason = reason

	snap := e.req
	return &snap, nil
}

// Get returns a snapshot of the request with the given id.
func (l *Ledger) Get(id string) (*Request, error) {
	e, ok := l.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.req
	return &snap, nil
}

// ListPending returns snapshots of all pending requests in creation order.
// ownerSession filters by owner when non-empty.
func (l *Ledger) ListPending(ownerSession string) []*Request {
	l.mu.RLock()
	ids := make([]string, len(l.order))
	copy(ids, l.order)
	l.mu.RUnlock()

	var out []*Request
	for _, id := range ids {
		e, ok := l.lookup(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		l.expireLocked(e)
		if e.req.Status == StatusPending && (ownerSession == "" || e.req.OwnerSession == ownerSession) {
			snap := e.req
			out = append(out, &snap)
		}
		e.mu.Unlock()
	}
	return out
}

// ExpireStale transitions every pending request past its deadline to expired
// and returns how many were expired.
func (l *Ledger) ExpireStale() int {
	l.mu.RLock()
	ids := make([]string, len(l.order))
	copy(ids, l.order)
	l.mu.RUnlock()

	n := 0
	for _, id := range ids {
		e, ok := l.lookup(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		if l.expireLocked(e) {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// expireLocked expires e if it is pending and past its deadline. The caller
// must hold e.mu.
func (l *Ledger) expireLocked(e *entry) bool {
	if e.req.Status != StatusPending || !l.now().After(e.req.ExpiresAt) {
		return false
	}
	now := l.now()
	e.req.Status = StatusExpired
	e.req.DecidedAt = &now
	return true
}

func (l *Ledger) lookup(id string) (*entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	return e, ok
}
