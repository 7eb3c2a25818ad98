package devserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/model"
	ws "github.com/stemsi/exstem-client/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// hub tracks one live connection per exam+candidate identity and enforces
// the takeover rule: a second join with the same identity forcibly errors
// and closes the earlier connection.
type hub struct {
	server   *Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*candidateConn
}

type candidateConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (cc *candidateConn) write(v interface{}) error {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	return ws.WriteTyped(cc.conn, v)
}

func newHub(server *Server, allowedOrigins []string) *hub {
	return &hub{
		server:   server,
		upgrader: buildUpgrader(allowedOrigins),
		conns:    make(map[string]*candidateConn),
	}
}

func identityKey(examID, candidateID string) string {
	return examID + ":" + candidateID
}

func unmarshal(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

// stream upgrades the connection, expects a join message first, then loops
// over save_answer / log_violation / ping actions.
func (h *hub) stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.server.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var join ws.JoinRequest
	if err := ws.ReadJSON(conn, &join); err != nil || join.Action != ws.ActionJoin {
		ws.WriteError(conn, "join message required")
		return
	}
	if join.ExamID == "" || join.CandidateID == "" {
		ws.WriteError(conn, "exam_id and candidate_id are required")
		return
	}

	key := identityKey(join.ExamID, join.CandidateID)
	cc := &candidateConn{conn: conn}

	h.mu.Lock()
	if prev, ok := h.conns[key]; ok {
		// Takeover: the newer connection wins the identity slot.
		prev.write(ws.ErrorResponse{
			Event: ws.EventError,
			Error: api.GetMessage(api.ErrDuplicateLogin),
		})
		prev.conn.Close()
	}
	h.conns[key] = cc
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.conns[key] == cc {
			delete(h.conns, key)
		}
		h.mu.Unlock()
	}()

	connLog := h.server.log.With().
		Str("exam_id", join.ExamID).
		Str("candidate_id", join.CandidateID).
		Str("tab_id", join.TabID).
		Logger()
	connLog.Info().Msg("Candidate connected")

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				connLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				connLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := unmarshal(raw, &env); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionSaveAnswer:
			h.handleSaveAnswer(cc, raw, &join)
		case ws.ActionLogViolation:
			h.handleLogViolation(cc, raw, &join)
		case ws.ActionPing:
			cc.write(ws.PongResponse{Event: ws.EventPong})
		default:
			connLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(env.Action))
		}
	}
}

func (h *hub) handleSaveAnswer(cc *candidateConn, raw []byte, join *ws.JoinRequest) {
	var msg ws.SaveAnswerRequest
	if err := unmarshal(raw, &msg); err != nil || msg.Key == "" {
		cc.write(ws.ErrorResponse{Event: ws.EventError, Error: "key is required"})
		return
	}

	sessionID, err := uuid.Parse(msg.SessionID)
	if err != nil {
		cc.write(ws.ErrorResponse{Event: ws.EventError, Error: "invalid session_id"})
		return
	}

	h.server.mu.Lock()
	defer h.server.mu.Unlock()

	claims := &api.TicketClaims{ExamID: join.ExamID, CandidateID: join.CandidateID}
	sess, _ := h.server.findSession(claims, sessionID)
	if sess == nil {
		cc.write(ws.ErrorResponse{Event: ws.EventError, Error: "no session"})
		return
	}
	if sess.Status == model.SessionStatusCompleted {
		cc.write(ws.ErrorResponse{Event: ws.EventError, Error: "session completed"})
		return
	}

	// Last write wins: replays on reconnect are safe no-ops.
	sess.Answers[msg.Key] = msg.Value
	cc.write(ws.SuccessResponse{Event: ws.EventSuccess, Status: "saved"})
}

func (h *hub) handleLogViolation(cc *candidateConn, raw []byte, join *ws.JoinRequest) {
	var msg ws.LogViolationRequest
	if err := unmarshal(raw, &msg); err != nil || msg.Type == "" {
		cc.write(ws.ErrorResponse{Event: ws.EventError, Error: "type is required"})
		return
	}

	examID, err := uuid.Parse(join.ExamID)
	if err != nil {
		return
	}
	sessionID, _ := uuid.Parse(msg.SessionID)

	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	h.server.mu.Lock()
	defer h.server.mu.Unlock()

	exam, ok := h.server.exams[examID]
	if !ok {
		return
	}
	exam.violations = append(exam.violations, model.ViolationEvent{
		SessionID:   sessionID,
		ExamID:      examID,
		CandidateID: join.CandidateID,
		Type:        msg.Type,
		Message:     msg.Message,
		Evidence:    msg.Evidence,
		Timestamp:   at,
	})
	cc.write(ws.SuccessResponse{Event: ws.EventSuccess, Status: "logged"})
}
