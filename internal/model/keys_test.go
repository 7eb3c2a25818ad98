package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveQuestionStatus(t *testing.T) {
	const qid = "q-1"

	answers := map[string]string{}
	assert.Equal(t, QuestionStatusUnanswered, DeriveQuestionStatus(answers, qid))

	// Free-form input without the explicit submission marker stays
	// unanswered; the draft is flushed for recovery only.
	answers[qid] = "draft text"
	assert.Equal(t, QuestionStatusUnanswered, DeriveQuestionStatus(answers, qid))

	answers[SubmittedKey(qid)] = MarkerTrue
	assert.Equal(t, QuestionStatusAnswered, DeriveQuestionStatus(answers, qid))

	// Review overrides answered/unanswered for display.
	answers[ReviewKey(qid)] = MarkerTrue
	assert.Equal(t, QuestionStatusReview, DeriveQuestionStatus(answers, qid))

	// Unmarking restores whatever the submission marker yields: no residual
	// state from review history.
	answers[ReviewKey(qid)] = "false"
	assert.Equal(t, QuestionStatusAnswered, DeriveQuestionStatus(answers, qid))

	delete(answers, SubmittedKey(qid))
	assert.Equal(t, QuestionStatusUnanswered, DeriveQuestionStatus(answers, qid))
}

func TestReservedKeys(t *testing.T) {
	assert.True(t, IsReservedKey(SubmittedKey("x")))
	assert.True(t, IsReservedKey(ReviewKey("x")))
	assert.True(t, IsReservedKey(SectionSubmittedKey("x")))
	assert.True(t, IsReservedKey(KeyLastSectionID))
	assert.False(t, IsReservedKey("4c2f0a"))

	qid, ok := IsReviewKey(ReviewKey("abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", qid)

	_, ok = IsReviewKey(SubmittedKey("abc"))
	assert.False(t, ok)
}
