package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/model"
)

func envelope(data interface{}) string {
	raw, _ := json.Marshal(data)
	return fmt.Sprintf(`{"data":%s,"metadata":{"request_id":"r1","timestamp":"2026-03-01T09:00:00Z"}}`, raw)
}

func errorEnvelope(code api.ErrCode) string {
	return fmt.Sprintf(`{"error":{"code":%q,"message":%q},"metadata":{"request_id":"r1","timestamp":"2026-03-01T09:00:00Z"}}`, code, api.GetMessage(code))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-ticket", 5*time.Second, zerolog.Nop())
}

func validContent(examID uuid.UUID) model.ExamContent {
	return model.ExamContent{
		ExamID: examID,
		Title:  "Exam",
		Sections: []model.Section{{
			ID:    uuid.New(),
			Title: "Section A",
			Questions: []model.Question{{
				ID:    uuid.New(),
				Type:  model.QuestionTypeMultipleChoice,
				Title: "Q1",
			}},
		}},
		DurationSeconds: 600,
	}
}

func TestStartOrResumeSessionSendsTicketAndBody(t *testing.T) {
	examID := uuid.New()
	sess := model.Session{ID: uuid.New(), ExamID: examID, CandidateID: "cand-1", Status: model.SessionStatusInProgress}

	var gotAuth string
	var gotReq model.StartSessionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, fmt.Sprintf("/api/v1/candidate/exams/%s/sessions", examID), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, envelope(sess))
	})

	got, err := c.StartOrResumeSession(context.Background(), examID, model.StartSessionRequest{
		CandidateID: "cand-1", DeviceID: "dev-1", TabID: "tab-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-ticket", gotAuth)
	assert.Equal(t, "dev-1", gotReq.DeviceID)
	assert.Equal(t, sess.ID, got.ID)
	assert.NotNil(t, got.Answers, "nil answer map is normalized")
}

func TestGetExamContentValidates(t *testing.T) {
	examID := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(validContent(examID)))
	})

	content, err := c.GetExamContent(context.Background(), examID)
	require.NoError(t, err)
	assert.Equal(t, examID, content.ExamID)
	require.Len(t, content.Sections, 1)
}

func TestGetExamContentRejectsMalformedPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// No sections, no title: structurally valid JSON that fails validation.
		fmt.Fprint(w, envelope(model.ExamContent{ExamID: uuid.New(), DurationSeconds: 600}))
	})

	_, err := c.GetExamContent(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed exam content")
}

func TestErrorCodesMapToTaxonomy(t *testing.T) {
	cases := []struct {
		code   api.ErrCode
		status int
		want   error
	}{
		{api.ErrExamNotFound, http.StatusNotFound, ErrNotFound},
		{api.ErrSessionNotFound, http.StatusNotFound, ErrNotFound},
		{api.ErrTicketRequired, http.StatusUnauthorized, ErrUnauthenticated},
		{api.ErrTicketInvalid, http.StatusUnauthorized, ErrUnauthenticated},
		{api.ErrTicketExpired, http.StatusUnauthorized, ErrUnauthenticated},
		{api.ErrDuplicateLogin, http.StatusConflict, ErrConflict},
		{api.ErrSuspended, http.StatusForbidden, ErrSuspended},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, errorEnvelope(tc.code))
			})

			_, err := c.GetExamContent(context.Background(), uuid.New())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUnmappedCodeStaysTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, errorEnvelope(api.ErrInternal))
	})

	err := c.SubmitExam(context.Background(), uuid.New())
	require.Error(t, err)
	for _, structural := range []error{ErrNotFound, ErrUnauthenticated, ErrConflict, ErrSuspended} {
		assert.NotErrorIs(t, err, structural)
	}
}

func TestSubmitSectionAnswersPath(t *testing.T) {
	sessionID, sectionID := uuid.New(), uuid.New()
	var gotBody struct {
		Answers map[string]string `json:"answers"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fmt.Sprintf("/api/v1/candidate/sessions/%s/sections/%s/submit", sessionID, sectionID), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, envelope(map[string]string{"status": "ok"}))
	})

	answers := map[string]string{"q1": "a", model.SubmittedKey("q1"): model.MarkerTrue}
	require.NoError(t, c.SubmitSectionAnswers(context.Background(), sessionID, sectionID, answers))
	assert.Equal(t, answers, gotBody.Answers)
}

func TestContextCancellationAborts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := c.SubmitExam(ctx, uuid.New())
	assert.Error(t, err)
}
