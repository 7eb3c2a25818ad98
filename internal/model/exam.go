package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// SectionStatus enumerates the lifecycle of a section. At most one section is
// ACTIVE at any time; everything before it is SUBMITTED, everything after
// remains LOCKED.
type SectionStatus string

const (
	SectionStatusLocked    SectionStatus = "LOCKED"
	SectionStatusActive    SectionStatus = "ACTIVE"
	SectionStatusSubmitted SectionStatus = "SUBMITTED"
)

// QuestionStatus is derived from answer-map markers, never stored.
type QuestionStatus string

const (
	QuestionStatusUnanswered QuestionStatus = "UNANSWERED"
	QuestionStatusAnswered   QuestionStatus = "ANSWERED"
	QuestionStatusReview     QuestionStatus = "REVIEW"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeEssay          QuestionType = "ESSAY"
	QuestionTypeCoding         QuestionType = "CODING"
	QuestionTypeWeb            QuestionType = "WEB"
	QuestionTypeReading        QuestionType = "READING"
	QuestionTypeNotebook       QuestionType = "NOTEBOOK"
)

// Question belongs to exactly one section. Number is assigned post-shuffle,
// 1-based and contiguous within its section; it is what the candidate sees
// and what navigation grids use, never the underlying ID.
type Question struct {
	ID          uuid.UUID       `json:"id" validate:"required"`
	Type        QuestionType    `json:"type" validate:"required"`
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description"`
	Config      json.RawMessage `json:"config"`
	Number      int             `json:"number"`
}

// Section is an ordered, independently lockable group of questions.
type Section struct {
	ID        uuid.UUID  `json:"id" validate:"required"`
	Title     string     `json:"title" validate:"required"`
	Questions []Question `json:"questions" validate:"min=1,dive"`
}

// ExamContent is the candidate-facing exam payload fetched from the remote
// session store. Validated client-side before the runtime starts.
type ExamContent struct {
	ExamID            uuid.UUID `json:"exam_id" validate:"required"`
	Title             string    `json:"title" validate:"required"`
	Sections          []Section `json:"sections" validate:"min=1,dive"`
	DurationSeconds   int       `json:"duration_seconds" validate:"min=1"`
	TabSwitchLimit    int       `json:"tab_switch_limit" validate:"min=0"`
	MonitoringEnabled bool      `json:"monitoring_enabled"`
}
