package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/vectorpress/vectorpress/internal/agent"
)

// wsMessage is one client → server frame.
type wsMessage struct {
	// Type is "message" or "reset".
	Type string `json:"type"`

	// Text carries the user's request for "message" frames.
	Text string `json:"text"`
}

// wsReply is one server → client frame. Type is "reply", "reset" (ack), or
// "error".
type wsReply struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleWebsocket upgrades the connection and runs the chat loop. Each
// connection owns one session; the session is removed when the connection
// closes. A ?session= query parameter resumes a named session instead.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = newSessionID()
		defer func() {
			_ = s.chat.Remove(context.Background(), sessionID)
		}()
	}

	ctx := r.Context()
	s.log.Info("websocket session opened", "session_id", sessionID)

	for {
		reply, fatal := s.serveFrame(ctx, conn, sessionID)
		if fatal {
			return
		}
		if err := writeFrame(ctx, conn, reply); err != nil {
			s.log.Warn("websocket write failed", "session_id", sessionID, "err", err)
			return
		}
	}
}

// serveFrame reads and handles one frame. A true second return value means
// the connection is finished and no reply should be written.
func (s *Server) serveFrame(ctx context.Context, conn *websocket.Conn, sessionID string) (wsReply, bool) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			s.log.Info("websocket session closed", "session_id", sessionID)
		} else if !errors.Is(err, context.Canceled) {
			s.log.Warn("websocket read failed", "session_id", sessionID, "err", err)
		}
		return wsReply{}, true
	}

	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return wsReply{Type: "error", Error: "malformed frame"}, false
	}

	switch msg.Type {
	case "reset":
		s.chat.Reset(sessionID)
		return wsReply{Type: "reset"}, false

	case "message":
		if msg.Text == "" {
			return wsReply{Type: "error", Error: "text is required"}, false
		}
		reply, err := s.chat.Advance(ctx, sessionID, msg.Text)
		if err != nil {
			s.log.Error("chat advance failed", "session_id", sessionID, "err", err)
			var modelErr *agent.ModelInvocationError
			if errors.As(err, &modelErr) {
				return wsReply{Type: "error", Error: "the model backend is unavailable"}, false
			}
			return wsReply{Type: "error", Error: "internal error"}, false
		}
		return wsReply{Type: "reply", Text: reply}, false

	default:
		return wsReply{Type: "error", Error: "unknown frame type"}, false
	}
}

// writeFrame marshals and sends one reply frame.
func writeFrame(ctx context.Context, conn *websocket.Conn, reply wsReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
