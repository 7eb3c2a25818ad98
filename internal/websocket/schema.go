package websocket

import (
	"encoding/json"
	"time"

	"github.com/stemsi/exstem-client/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionJoin         Action = "join"
	ActionSaveAnswer   Action = "save_answer"
	ActionLogViolation Action = "log_violation"
	ActionPing         Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// JoinRequest announces the connection's identity; it is always the first
// message on a fresh connection and keys the takeover detection.
type JoinRequest struct {
	Action      Action `json:"action"`
	ExamID      string `json:"exam_id"`
	CandidateID string `json:"candidate_id"`
	Role        string `json:"role"`
	DeviceID    string `json:"device_id"`
	TabID       string `json:"tab_id"`
}

// SaveAnswerRequest pushes one answer-map entry to the remote session store.
type SaveAnswerRequest struct {
	Action    Action `json:"action"`
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// LogViolationRequest appends one integrity event to the session trail.
type LogViolationRequest struct {
	Action      Action              `json:"action"`
	SessionID   string              `json:"session_id"`
	ExamID      string              `json:"exam_id"`
	CandidateID string              `json:"candidate_id"`
	Type        model.ViolationType `json:"type"`
	Message     string              `json:"message"`
	Evidence    json.RawMessage     `json:"evidence,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// PingRequest keeps the connection alive.
type PingRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSuccess  Event = "success"
	EventPong     Event = "pong"
	EventLiveView Event = "request_live_view"
)

// EventEnvelope is used to peek at the event before full parsing.
type EventEnvelope struct {
	Event Event `json:"event"`
}

type SuccessResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// ErrorResponse carries takeover and suspension signals among ordinary
// errors; the client matches on the message content.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// LiveViewResponse is the remote monitor's command to start a live view.
type LiveViewResponse struct {
	Event Event `json:"event"`
}
