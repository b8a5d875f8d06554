package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Torii/internal/torii/approvals"
	"github.com/bdobrica/Torii/internal/torii/engine"
	"github.com/bdobrica/Torii/internal/torii/executor"
	"github.com/bdobrica/Torii/internal/torii/ops"
	"github.com/bdobrica/Torii/internal/torii/session"
	"github.com/bdobrica/Torii/internal/torii/web"
)

type fakeReader struct{}

func (fakeReader) ReadState(ctx context.Context, kind ops.Kind, target string) (ops.Fields, error) {
	if target == "PROJ-404" {
		return nil, &ops.NotFoundError{Target: target}
	}
	return ops.Fields{"summary": "Fix login bug", "status": "In Progress", "assignee": "alice"}, nil
}

func (fakeReader) ListTickets(ctx context.Context, status string) (string, error) {
	return "1. [PROJ-7] Fix login bug (Status: In Progress)", nil
}

func (fakeReader) SummarizeTicket(ctx context.Context, key string) (string, error) {
	return "[" + key + "]", nil
}

func (fakeReader) ListStatuses(ctx context.Context) ([]string, error) {
	return []string{"To Do", "Done"}, nil
}

type fakeMutator struct{ calls int }

func (m *fakeMutator) ApplyOperation(ctx context.Context, requestID string, kind ops.Kind, fields ops.Fields) (*ops.Outcome, error) {
	m.calls++
	return &ops.Outcome{Key: fields["key"], Message: "applied"}, nil
}

type fakeResponder struct{}

func (fakeResponder) Respond(context.Context, []ops.ChatMessage) (string, error) {
	return "hi", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, authToken string) (*httptest.Server, *fakeMutator) {
	t.Helper()
	ledger := approvals.NewLedger(time.Hour)
	mutator := &fakeMutator{}
	exec := executor.New(ledger, mutator, executor.Config{MaxAttempts: 1}, nil)
	eng := engine.New(ledger, exec, fakeReader{}, fakeResponder{}, nil)
	srv := web.New(web.Config{Listen: ":0", AuthToken: authToken}, eng, session.NewMemoryStore(), discardLogger())
	ts := httptest.NewServer(srv.TestHandler())
	t.Cleanup(ts.Close)
	return ts, mutator
}

func postJSON(t *testing.T, url string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestChatCreatesApproval(t *testing.T) {
	ts, mutator := newTestServer(t, "")

	var chat web.ChatResponse
	resp := postJSON(t, ts.URL+"/chat", web.ChatRequest{
		SessionID: "sess-1",
		Message:   "move PROJ-7 to Done",
	}, &chat)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if chat.Pending == nil {
		t.Fatalf("no pending approval; response: %s", chat.Response)
	}
	if chat.Pending.Kind != "transition" {
		t.Errorf("kind = %q", chat.Pending.Kind)
	}
	if mutator.calls != 0 {
		t.Fatal("mutator ran before any decision")
	}

	// The approval shows up in the session's pending list.
	var pending web.PendingResponse
	listResp, err := http.Get(ts.URL + "/approvals?session_id=sess-1")
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()
	if err := json.NewDecoder(listResp.Body).Decode(&pending); err != nil {
		t.Fatal(err)
	}
	if len(pending.Requests) != 1 || pending.Requests[0].ID != chat.Pending.ID {
		t.Fatalf("pending list = %+v", pending.Requests)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp := postJSON(t, ts.URL+"/chat", web.ChatRequest{SessionID: "sess-1", Message: "   "}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/chat", web.ChatRequest{Message: "hello"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing session status = %d, want 400", resp.StatusCode)
	}
}

func TestDecisionLifecycle(t *testing.T) {
	ts, mutator := newTestServer(t, "")

	var chat web.ChatResponse
	postJSON(t, ts.URL+"/chat", web.ChatRequest{SessionID: "sess-1", Message: "move PROJ-7 to Done"}, &chat)
	if chat.Pending == nil {
		t.Fatalf("no pending approval; response: %s", chat.Response)
	}
	id := chat.Pending.ID

	var decision web.DecisionResponse
	resp := postJSON(t, ts.URL+"/approvals/"+id+"/decision", web.DecisionRequest{
		Action: "approve",
		Actor:  "alice",
	}, &decision)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if decision.Status != string(approvals.StatusExecuted) {
		t.Fatalf("status = %q, want executed", decision.Status)
	}
	if mutator.calls != 1 {
		t.Fatalf("mutator calls = %d, want 1", mutator.calls)
	}

	// Deciding the same request again conflicts.
	resp = postJSON(t, ts.URL+"/approvals/"+id+"/decision", web.DecisionRequest{Action: "reject"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second decision status = %d, want 409", resp.StatusCode)
	}
	if mutator.calls != 1 {
		t.Fatal("mutator re-ran after conflicting decision")
	}
}

func TestDecisionUnknownRequest(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp := postJSON(t, ts.URL+"/approvals/no-such-id/decision", web.DecisionRequest{Action: "approve"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/approvals/no-such-id/decision", web.DecisionRequest{Action: "maybe"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown action status = %d, want 400", resp.StatusCode)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	ts, _ := newTestServer(t, "sekrit")

	// /healthz stays open.
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	// Everything else requires the token.
	resp = postJSON(t, ts.URL+"/chat", web.ChatRequest{SessionID: "s", Message: "hi"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/approvals", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", authed.StatusCode)
	}

	req.Header.Set("Authorization", "Bearer wrong")
	denied, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer denied.Body.Close()
	if denied.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", denied.StatusCode)
	}
}

func TestChatPersistsSessionAcrossTurns(t *testing.T) {
	ts, _ := newTestServer(t, "")

	var chat web.ChatResponse
	postJSON(t, ts.URL+"/chat", web.ChatRequest{SessionID: "sess-1", Message: "move PROJ-7 to Done"}, &chat)
	if chat.Pending == nil {
		t.Fatal("no pending approval")
	}

	// A bare approve in the same session resolves against the stored
	// pending request id.
	var second web.ChatResponse
	postJSON(t, ts.URL+"/chat", web.ChatRequest{SessionID: "sess-1", Message: "approve"}, &second)
	if !strings.Contains(second.Response, "Approved and executed") {
		t.Fatalf("bare approve response: %s", second.Response)
	}
}
