package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ViolationType enumerates observed integrity signals.
type ViolationType string

const (
	ViolationTabSwitchOut   ViolationType = "TAB_SWITCH_OUT"
	ViolationTabSwitchIn    ViolationType = "TAB_SWITCH_IN"
	ViolationFullscreenExit ViolationType = "FULLSCREEN_EXIT"
	ViolationOffline        ViolationType = "OFFLINE"
)

// ViolationEvent is an append-only integrity record logged for later
// arbitration. Evidence is supplied by an external detection collaborator and
// attached opaquely; the runtime never interprets its content.
type ViolationEvent struct {
	SessionID   uuid.UUID       `json:"session_id"`
	ExamID      uuid.UUID       `json:"exam_id"`
	CandidateID string          `json:"candidate_id"`
	Type        ViolationType   `json:"type"`
	Message     string          `json:"message"`
	Evidence    json.RawMessage `json:"evidence,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}
