package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// Session represents one candidate's exam attempt. Answers is the flat
// key-value map restored by the server on resume; it carries both question
// responses and the reserved marker keys.
type Session struct {
	ID             uuid.UUID         `json:"id"`
	ExamID         uuid.UUID         `json:"exam_id"`
	CandidateID    string            `json:"candidate_id"`
	DeviceID       string            `json:"device_id"`
	TabID          string            `json:"tab_id"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     *time.Time        `json:"finished_at,omitempty"`
	Status         SessionStatus     `json:"status"`
	TabSwitchesIn  int               `json:"tab_switches_in"`
	TabSwitchesOut int               `json:"tab_switches_out"`
	Answers        map[string]string `json:"answers"`
}

// StartSessionRequest is the payload for starting or resuming a session.
type StartSessionRequest struct {
	CandidateID string            `json:"candidate_id" binding:"required"`
	DeviceID    string            `json:"device_id" binding:"required"`
	TabID       string            `json:"tab_id" binding:"required"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
