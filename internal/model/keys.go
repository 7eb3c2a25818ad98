package model

import "strings"

// Reserved answer-map keys. Everything that is not a bare question ID lives
// under one of these prefixes so the remote store stays a flat
// last-write-wins map.
const (
	submittedPrefix   = "_submitted_"
	reviewPrefix      = "_rev_"
	sectionPrefix     = "_section_"
	sectionSuffix     = "_submitted"
	KeyLastSectionID  = "_last_section_id"
	KeyLastQuestionID = "_last_question_id"

	// MarkerTrue is the stored value for boolean markers.
	MarkerTrue = "true"
)

// SubmittedKey returns the marker key recording an explicit answer submission.
func SubmittedKey(questionID string) string {
	return submittedPrefix + questionID
}

// ReviewKey returns the marker key recording a review flag.
func ReviewKey(questionID string) string {
	return reviewPrefix + questionID
}

// SectionSubmittedKey returns the marker key recording a section submission.
func SectionSubmittedKey(sectionID string) string {
	return sectionPrefix + sectionID + sectionSuffix
}

// IsReviewKey reports whether k is a review marker, returning the question ID.
func IsReviewKey(k string) (string, bool) {
	if strings.HasPrefix(k, reviewPrefix) {
		return strings.TrimPrefix(k, reviewPrefix), true
	}
	return "", false
}

// IsReservedKey reports whether k is any reserved marker rather than a
// candidate response keyed by question ID.
func IsReservedKey(k string) bool {
	return strings.HasPrefix(k, "_")
}

// DeriveQuestionStatus is the pure projection from answer-map markers to a
// question status: REVIEW if the review marker is set, else ANSWERED if the
// submission marker is set, else UNANSWERED. Status is never stored
// independently, so UI and persisted truth cannot drift.
func DeriveQuestionStatus(answers map[string]string, questionID string) QuestionStatus {
	if answers[ReviewKey(questionID)] == MarkerTrue {
		return QuestionStatusReview
	}
	if answers[SubmittedKey(questionID)] == MarkerTrue {
		return QuestionStatusAnswered
	}
	return QuestionStatusUnanswered
}
