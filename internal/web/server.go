// Package web serves the browser chat front end: a websocket chat endpoint,
// a plain JSON chat endpoint, Prometheus metrics, and health probes.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vectorpress/vectorpress/internal/agent"
	"github.com/vectorpress/vectorpress/internal/health"
	"github.com/vectorpress/vectorpress/internal/observe"
)

// shutdownTimeout bounds graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Chat is the subset of the session manager the server needs.
type Chat interface {
	// Advance routes one user message into the session and returns the reply.
	Advance(ctx context.Context, sessionID, userText string) (string, error)

	// Reset clears the session's history.
	Reset(sessionID string)

	// Remove ends the session.
	Remove(ctx context.Context, sessionID string) error
}

// Server is the vectorpress HTTP front end.
type Server struct {
	chat       Chat
	metrics    *observe.Metrics
	httpServer *http.Server
	handler    http.Handler
	log        *slog.Logger
}

// New creates a Server listening on addr. The health handler's probes are
// mounted beside /metrics and the chat endpoints.
func New(addr string, chat Chat, healthHandler *health.Handler, metrics *observe.Metrics) *Server {
	s := &Server{
		chat:    chat,
		metrics: metrics,
		log:     slog.Default().With("component", "web"),
	}

	mux := http.NewServeMux()
	healthHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/chat/ws", s.handleWebsocket)

	s.handler = observe.Middleware(metrics)(mux)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the assembled HTTP handler. Used by tests to mount the
// server behind httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe blocks serving requests until Shutdown is called or the
// listener fails.
func (s *Server) ListenAndServe() error {
	s.log.Info("web server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// chatRequest is the POST /v1/chat body.
type chatRequest struct {
	// SessionID identifies the conversation. Empty creates a fresh session
	// whose ID is returned in the response.
	SessionID string `json:"session_id"`

	// Message is the user's request.
	Message string `json:"message"`
}

// chatResponse is the POST /v1/chat reply body.
type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// errorResponse is the JSON error body shared by all endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

// handleChat serves single-exchange chat over plain JSON.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed JSON body"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = newSessionID()
	}

	reply, err := s.chat.Advance(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.writeAdvanceError(w, req.SessionID, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, Reply: reply})
}

// writeAdvanceError maps conversation-loop failures onto HTTP statuses: a
// model invocation failure is an upstream problem (502), anything else is
// internal.
func (s *Server) writeAdvanceError(w http.ResponseWriter, sessionID string, err error) {
	s.log.Error("chat advance failed", "session_id", sessionID, "err", err)

	var modelErr *agent.ModelInvocationError
	if errors.As(err, &modelErr) {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "the model backend is unavailable"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// newSessionID mints a random 16-byte hex session identifier.
func newSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
