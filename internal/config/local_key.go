package config

import (
	"fmt"
)

type LocalKeyStruct struct{}

func NewLocalKeyStruct() *LocalKeyStruct {
	return &LocalKeyStruct{}
}

// DeviceScope returns the local-store scope holding the device identifier.
func (r *LocalKeyStruct) DeviceScope() string {
	return "device"
}

// ReviewScope returns the local-store scope for a candidate's review markers
func (r *LocalKeyStruct) ReviewScope(examID, candidateID string) string {
	return fmt.Sprintf("exam:%s:candidate:%s:review", examID, candidateID)
}

// SessionScope returns the local-store scope for a candidate's session markers
func (r *LocalKeyStruct) SessionScope(examID, candidateID string) string {
	return fmt.Sprintf("exam:%s:candidate:%s:session", examID, candidateID)
}

// KeyDeviceID is the key holding the persisted device identifier.
func (r *LocalKeyStruct) KeyDeviceID() string {
	return "device_id"
}

// KeyLastSessionID is the key holding the last known session identifier.
func (r *LocalKeyStruct) KeyLastSessionID() string {
	return "last_session_id"
}

// KeySubmittedAt is the key holding the final submission timestamp.
func (r *LocalKeyStruct) KeySubmittedAt() string {
	return "submitted_at"
}

// KeyFeedbackDone is the key holding the feedback-completion flag.
func (r *LocalKeyStruct) KeyFeedbackDone() string {
	return "feedback_done"
}

var LocalKey = NewLocalKeyStruct()
