package approvals_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/Torii/internal/torii/approvals"
	"github.com/bdobrica/Torii/internal/torii/ops"
	"github.com/bdobrica/Torii/internal/torii/preview"
)

func newTestLedger(t *testing.T, opts ...approvals.Option) *approvals.Ledger {
	t.Helper()
	return approvals.NewLedger(time.Hour, opts...)
}

func createRequest(l *approvals.Ledger, owner string) *approvals.Request {
	fields := ops.Fields{"key": "PROJ-7", "status": "Done"}
	pv := preview.Preview{{Field: "status", From: "In Progress", To: "Done"}}
	return l.Create(ops.KindTransition, "PROJ-7", fields, pv, owner)
}

func TestCreateReturnsPendingSnapshot(t *testing.T) {
	l := newTestLedger(t)
	req := createRequest(l, "sess-1")

	if req.ID == "" {
		t.Fatal("expected non-empty request id")
	}
	if req.Status != approvals.StatusPending {
		t.Fatalf("status = %s, want pending", req.Status)
	}
	if req.OwnerSession != "sess-1" {
		t.Fatalf("owner = %q, want sess-1", req.OwnerSession)
	}
	if !req.ExpiresAt.After(req.CreatedAt) {
		t.Fatal("expected expiry after creation time")
	}

	// Mutating the snapshot must not affect the ledger's record.
	req.Status = approvals.StatusExecuted
	got, err := l.Get(req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != approvals.StatusPending {
		t.Fatalf("ledger status = %s, want pending", got.Status)
	}
}

func TestApproveThenRejectConflicts(t *testing.T) {
	l := newTestLedger(t)
	req := createRequest(l, "sess-1")

	approved, err := l.Approve(req.ID, "alice")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != approvals.StatusApproved {
		t.Fatalf("status = %s, want approved", approved.Status)
	}
	if approved.DecidedBy != "alice" {
		t.Fatalf("decided_by = %q, want alice", approved.DecidedBy)
	}
	if approved.DecidedAt == nil {
		t.Fatal("expected decided_at to be set")
	}

	rejected, err := l.Reject(req.ID, "bob", "changed my mind")
	if !errors.Is(err, approvals.ErrAlreadyDecided) {
		t.Fatalf("second decision err = %v, want ErrAlreadyDecided", err)
	}
	if rejected.Status != approvals.StatusApproved {
		t.Fatalf("losing decision observed status %s, want approved", rejected.Status)
	}
}

func TestConcurrentDecisionsExactlyOneWins(t *testing.T) {
	l := newTestLedger(t)
	req := createRequest(l, "sess-1")

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan approvals.Status, n)
	for i := 0; i < n; i++ {
		approve := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if approve {
				_, err = l.Approve(req.ID, "racer")
			} else {
				_, err = l.Reject(req.ID, "racer", "")
			}
			if err == nil {
				if approve {
					wins <- approvals.StatusApproved
				} else {
					wins <- approvals.StatusRejected
				}
			} else if !errors.Is(err, approvals.ErrAlreadyDecided) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []approvals.Status
	for s := range wins {
		winners = append(winners, s)
	}
	if len(winners) != 1 {
		t.Fatalf("got %d winning decisions, want exactly 1", len(winners))
	}

	got, err := l.Get(req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != winners[0] {
		t.Fatalf("final status %s does not match winning decision %s", got.Status, winners[0])
	}
}

func TestDecideUnknownID(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Approve("no-such-id", "alice"); !errors.Is(err, approvals.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := l.Get("no-such-id"); !errors.Is(err, approvals.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestIsApproved(t *testing.T) {
	l := newTestLedger(t)
	req := createRequest(l, "sess-1")

	if l.IsApproved(req.ID) {
		t.Fatal("pending request must not report approved")
	}
	if _, err := l.Approve(req.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if !l.IsApproved(req.ID) {
		t.Fatal("approved request must report approved")
	}
	if _, err := l.MarkExecuted(req.ID, &ops.Outcome{Key: "PROJ-7", Message: "done"}); err != nil {
		t.Fatal(err)
	}
	if !l.IsApproved(req.ID) {
		t.Fatal("executed request must still report approved")
	}
	if l.IsApproved("no-such-id") {
		t.Fatal("unknown id must not report approved")
	}
}

func TestMarkExecutedRequiresApproval(t *testing.T) {
	l := newTestLedger(t)
	req := createRequest(l, "sess-1")

	if _, err := l.MarkExecuted(req.ID, &ops.Outcome{Key: "PROJ-7"}); !errors.Is(err, approvals.ErrNotApproved) {
		t.Fatalf("err = %v, want ErrNotApproved", err)
	}

	if _, err := l.Reject(req.ID, "alice", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := l.MarkExecuted(req.ID, &ops.Outcome{Key: "PROJ-7"}); !errors.Is(err, approvals.ErrNotApproved) {
		t.Fatalf("err after reject = %v, want ErrNotApproved", err)
	}
}

func TestMarkFailedRecordsReason(t *testing.T) {
	l := newTestLedger(t)
	req := createRequest(l, "sess-1")

	if _, err := l.Approve(req.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	failed, err := l.MarkFailed(req.ID, "no transition to Done")
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != approvals.StatusFailed {
		t.Fatalf("status = %s, want failed", failed.Status)
	}
	if failed.FailureReason != "no transition to Done" {
		t.Fatalf("failure reason = %q", failed.FailureReason)
	}
	if !failed.Terminal() {
		t.Fatal("failed must be terminal")
	}
}

func TestListPendingOrderAndOwnerFilter(t *testing.T) {
	l := newTestLedger(t)
	a := createRequest(l, "sess-a")
	b := createRequest(l, "sess-b")
	c := createRequest(l, "sess-a")

	all := l.ListPending("")
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID != a.ID || all[1].ID != b.ID || all[2].ID != c.ID {
		t.Fatal("pending list not in creation order")
	}

	mine := l.ListPending("sess-a")
	if len(mine) != 2 {
		t.Fatalf("owner-filtered len = %d, want 2", len(mine))
	}
	if mine[0].ID != a.ID || mine[1].ID != c.ID {
		t.Fatal("owner filter returned wrong requests")
	}

	if _, err := l.Approve(b.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if got := l.ListPending(""); len(got) != 2 {
		t.Fatalf("after decision len = %d, want 2", len(got))
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	l := approvals.NewLedger(time.Hour, approvals.WithClock(clock))

	stale := createRequest(l, "sess-1")
	now = now.Add(2 * time.Hour)
	fresh := createRequest(l, "sess-1")

	// Lazy expiry: deciding a stale request fails.
	if _, err := l.Approve(stale.ID, "alice"); !errors.Is(err, approvals.ErrAlreadyDecided) {
		t.Fatalf("stale approve err = %v, want ErrAlreadyDecided", err)
	}
	got, err := l.Get(stale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != approvals.StatusExpired {
		t.Fatalf("stale status = %s, want expired", got.Status)
	}

	// The fresh request is unaffected and the sweeper finds nothing more.
	if n := l.ExpireStale(); n != 0 {
		t.Fatalf("ExpireStale = %d, want 0", n)
	}
	pending := l.ListPending("")
	if len(pending) != 1 || pending[0].ID != fresh.ID {
		t.Fatal("expected only the fresh request pending")
	}

	// Advance past the fresh request's deadline and sweep.
	now = now.Add(2 * time.Hour)
	if n := l.ExpireStale(); n != 1 {
		t.Fatalf("ExpireStale = %d, want 1", n)
	}
	if got := l.ListPending(""); len(got) != 0 {
		t.Fatalf("pending after sweep = %d, want 0", len(got))
	}
}
