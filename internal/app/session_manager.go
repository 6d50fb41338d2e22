package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vectorpress/vectorpress/internal/agent"
	"github.com/vectorpress/vectorpress/internal/observe"
)

// defaultIdleTimeout is how long an untouched session survives before the
// sweeper evicts it.
const defaultIdleTimeout = 30 * time.Minute

// SessionInfo holds metadata about an active chat session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session was created.
	StartedAt time.Time

	// LastActive is when the session last advanced.
	LastActive time.Time

	// Turns is the current number of retained conversation turns.
	Turns int
}

// managedSession pairs a conversation with its activity timestamps. mu
// serialises whole exchanges on the session: the agent appends several turns
// per advance (user, decision, tool results, answer) and an interleaved
// second advance would split a tool result from its decision.
type managedSession struct {
	mu         sync.Mutex
	session    *agent.Session
	startedAt  time.Time
	lastActive time.Time
}

// SessionManager owns the lifecycle of chat sessions across front ends. The
// terminal REPL holds one session; the web server creates one per
// connection. Idle sessions are evicted by the sweeper.
//
// All exported methods are safe for concurrent use. Model calls run outside
// the manager's lock, so concurrent sessions advance independently.
type SessionManager struct {
	agent        *agent.Agent
	metrics      *observe.Metrics
	historyLimit int
	idleTimeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*managedSession
}

// SessionManagerOption tunes a [SessionManager].
type SessionManagerOption func(*SessionManager)

// WithIdleTimeout overrides how long idle sessions are retained.
func WithIdleTimeout(d time.Duration) SessionManagerOption {
	return func(sm *SessionManager) { sm.idleTimeout = d }
}

// NewSessionManager creates a SessionManager that opens sessions on the
// given agent. historyLimit zero selects the agent's built-in default.
func NewSessionManager(ag *agent.Agent, metrics *observe.Metrics, historyLimit int, opts ...SessionManagerOption) *SessionManager {
	sm := &SessionManager{
		agent:        ag,
		metrics:      metrics,
		historyLimit: historyLimit,
		idleTimeout:  defaultIdleTimeout,
		sessions:     make(map[string]*managedSession),
	}
	for _, o := range opts {
		o(sm)
	}
	return sm
}

// Advance routes one user message into the session's conversation loop and
// returns the assistant's reply. The session is created on first use.
func (sm *SessionManager) Advance(ctx context.Context, sessionID, userText string) (string, error) {
	ms := sm.getOrCreate(ctx, sessionID)

	// The model call runs outside sm.mu so other sessions advance freely,
	// but under ms.mu so two advances on the same ID cannot interleave
	// their turns.
	ms.mu.Lock()
	reply, err := sm.agent.Advance(ctx, ms.session, userText)
	ms.mu.Unlock()

	sm.mu.Lock()
	ms.lastActive = time.Now().UTC()
	sm.mu.Unlock()

	return reply, err
}

// Reset clears the session's conversation history while keeping the session
// alive. Resetting an unknown session is a no-op.
func (sm *SessionManager) Reset(sessionID string) {
	sm.mu.Lock()
	ms, ok := sm.sessions[sessionID]
	if ok {
		ms.lastActive = time.Now().UTC()
	}
	sm.mu.Unlock()
	if !ok {
		return
	}

	// Taken outside sm.mu: an in-flight advance holds ms.mu and reacquires
	// sm.mu for its activity update.
	ms.mu.Lock()
	ms.session.Reset()
	ms.mu.Unlock()
}

// Remove ends a session and releases its history.
func (sm *SessionManager) Remove(ctx context.Context, sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.sessions[sessionID]; !ok {
		return fmt.Errorf("session: no session %q", sessionID)
	}
	delete(sm.sessions, sessionID)
	sm.metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("session removed", "session_id", sessionID)
	return nil
}

// Info returns metadata about one session.
func (sm *SessionManager) Info(sessionID string) (SessionInfo, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ms, ok := sm.sessions[sessionID]
	if !ok {
		return SessionInfo{}, false
	}
	return sm.infoLocked(sessionID, ms), true
}

// List returns metadata for all active sessions, ordered by session ID.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sm.sessions))
	for id, ms := range sm.sessions {
		infos = append(infos, sm.infoLocked(id, ms))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionID < infos[j].SessionID })
	return infos
}

// Len reports the number of active sessions.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Sweep evicts sessions idle longer than the idle timeout and returns how
// many were removed.
func (sm *SessionManager) Sweep(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-sm.idleTimeout)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	var evicted int
	for id, ms := range sm.sessions {
		if ms.lastActive.Before(cutoff) {
			delete(sm.sessions, id)
			sm.metrics.ActiveSessions.Add(ctx, -1)
			evicted++
			slog.Info("session evicted", "session_id", id, "idle_since", ms.lastActive)
		}
	}
	return evicted
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (sm *SessionManager) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sm.Sweep(ctx)
			}
		}
	}()
}

// getOrCreate returns the managed session for sessionID, creating it when
// absent.
func (sm *SessionManager) getOrCreate(ctx context.Context, sessionID string) *managedSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if ms, ok := sm.sessions[sessionID]; ok {
		return ms
	}

	now := time.Now().UTC()
	ms := &managedSession{
		session:    sm.agent.NewSession(sessionID, sm.historyLimit),
		startedAt:  now,
		lastActive: now,
	}
	sm.sessions[sessionID] = ms
	sm.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session started", "session_id", sessionID)
	return ms
}

// infoLocked builds a SessionInfo. Callers must hold sm.mu.
func (sm *SessionManager) infoLocked(id string, ms *managedSession) SessionInfo {
	return SessionInfo{
		SessionID:  id,
		StartedAt:  ms.startedAt,
		LastActive: ms.lastActive,
		Turns:      len(ms.session.Turns()),
	}
}
