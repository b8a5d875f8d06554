// Package web exposes Torii's conversation engine over a small JSON HTTP API.
//
// Endpoints:
//
//	GET  /healthz                   → {"status":"ok"}
//	POST /chat                      → ChatRequest → ChatResponse
//	GET  /approvals?session_id=     → PendingResponse
//	POST /approvals/{id}/decision   → DecisionRequest → DecisionResponse
//
// Bearer-token authentication: set Config.AuthToken to require
// "Authorization: Bearer <token>" on every request except /healthz. When the
// token is empty authentication is disabled (dev/test mode).
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Torii/internal/torii/approvals"
	"github.com/bdobrica/Torii/internal/torii/engine"
	"github.com/bdobrica/Torii/internal/torii/ops"
	"github.com/bdobrica/Torii/internal/torii/preview"
	"github.com/bdobrica/Torii/internal/torii/session"
)

// Config configures the web server.
type Config struct {
	Listen    string
	AuthToken string
}

// ChatRequest is the body for POST /chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// PendingInfo summarizes an approval attached to a chat response.
type PendingInfo struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Preview preview.Preview `json:"preview"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Response string       `json:"response"`
	Pending  *PendingInfo `json:"pending_approval,omitempty"`
}

// PendingResponse is returned by GET /approvals.
type PendingResponse struct {
	Requests []*approvals.Request `json:"requests"`
}

// DecisionRequest is the body for POST /approvals/{id}/decision.
type DecisionRequest struct {
	// Action is "approve" or "reject".
	Action string `json:"action"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// DecisionResponse is returned by POST /approvals/{id}/decision.
type DecisionResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Server is the HTTP front end.
type Server struct {
	cfg     Config
	engine  *engine.Engine
	store   session.Store
	locker  *session.Locker
	server  *http.Server
	logger  *slog.Logger
	nowFunc func() time.Time
}

// New creates a Server. The store and locker hold per-session conversation
// state; each session's turns are serialized through the locker.
func New(cfg Config, eng *engine.Engine, store session.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  eng,
		store:   store,
		locker:  session.NewLocker(),
		logger:  logger,
		nowFunc: time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/approvals", s.handleListPending)
	mux.HandleFunc("/approvals/{id}/decision", s.handleDecision)

	outer := http.NewServeMux()
	outer.HandleFunc("/healthz", s.handleHealth)
	outer.Handle("/", s.authMiddleware(mux))

	s.server = &http.Server{
		Addr:         cfg.Listen,
		Handler:      outer,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// authMiddleware rejects requests that do not carry the configured bearer
// token. When Config.AuthToken is empty, all requests are allowed.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if auth[len("Bearer "):] != s.cfg.AuthToken {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins listening. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("web listen %s: %w", s.cfg.Listen, err)
	}
	s.logger.Info("web server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("web server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.server.Shutdown(context.Background())
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	unlock := s.locker.Lock(req.SessionID)
	defer unlock()

	sess, err := s.store.Load(r.Context(), req.SessionID)
	if err != nil {
		s.logger.Error("session load failed", "session", req.SessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "session load failed")
		return
	}
	if sess == nil {
		sess = session.New(req.SessionID, s.nowFunc())
	}

	result, err := s.engine.HandleTurn(r.Context(), sess, req.Message)
	if err != nil {
		if errors.Is(err, ops.ErrMissingHumanInput) {
			writeError(w, http.StatusBadRequest, "message must not be empty")
			return
		}
		s.logger.Error("turn failed", "session", req.SessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "turn failed")
		return
	}

	if err := s.store.Save(r.Context(), sess); err != nil {
		s.logger.Error("session save failed", "session", req.SessionID, "err", err)
	}

	resp := ChatResponse{Response: result.Response}
	if result.PendingApproval != nil {
		resp.Pending = &PendingInfo{
			ID:      result.PendingApproval.ID,
			Kind:    string(result.PendingApproval.Kind),
			Preview: result.PendingApproval.Preview,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	owner := r.URL.Query().Get("session_id")
	reqs := s.engine.ListPending(owner)
	if reqs == nil {
		reqs = []*approvals.Request{}
	}
	writeJSON(w, http.StatusOK, PendingResponse{Requests: reqs})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "request id is required")
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	var approve bool
	switch req.Action {
	case "approve":
		approve = true
	case "reject":
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q (want approve or reject)", req.Action))
		return
	}

	result, err := s.engine.Decide(r.Context(), id, approve, req.Actor, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, approvals.ErrNotFound):
			writeError(w, http.StatusNotFound, "no such approval request")
		case errors.Is(err, approvals.ErrAlreadyDecided):
			writeError(w, http.StatusConflict, "request already decided")
		default:
			s.logger.Error("decision failed", "request", id, "err", err)
			writeError(w, http.StatusInternalServerError, "decision failed")
		}
		return
	}

	// An approve that hit a transient tracker failure leaves the request
	// approved; the client may POST the same decision again to retry.
	status := http.StatusOK
	if approve && result.Status == approvals.StatusApproved {
		status = http.StatusAccepted
	}
	writeJSON(w, status, DecisionResponse{
		Status:  string(result.Status),
		Message: result.Message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// TestHandler exposes the server's HTTP handler for use in httptest.NewServer.
// This is only intended for tests.
func (s *Server) TestHandler() http.Handler {
	return s.server.Handler
}
