package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/devserver"
	"github.com/stemsi/exstem-client/internal/integrity"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/remote"
)

func signedTicket(t *testing.T, examID string) string {
	t.Helper()
	ticket, err := api.SignTicket(&api.TicketClaims{ExamID: examID, CandidateID: "cand-1"}, "test-secret")
	require.NoError(t, err)
	return ticket
}

func TestExitReasonMapping(t *testing.T) {
	cases := []struct {
		err  error
		want ExitReason
	}{
		{remote.ErrNotFound, ExitNotFound},
		{remote.ErrUnauthenticated, ExitUnauthenticated},
		{remote.ErrConflict, ExitDuplicateLogin},
		{remote.ErrSuspended, ExitSuspended},
		{fmt.Errorf("get exam content: %w", remote.ErrSuspended), ExitSuspended},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exitFor(tc.err), tc.err.Error())
	}

	// Unmapped errors are transient server trouble, not a missing exam.
	assert.Equal(t, ExitUnavailable, exitFor(errors.New("dial tcp: connection refused")))
}

func TestRunRejectsMalformedTicket(t *testing.T) {
	cfg := &config.Config{ExamTicket: "not-a-ticket", RequestTimeout: time.Second}
	rt := New(cfg, nil, integrity.NewChannelSource(1), zerolog.Nop())

	reason, err := rt.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, ExitUnauthenticated, reason)
}

func TestRunRejectsTicketForPinnedExam(t *testing.T) {
	cfg := &config.Config{
		ExamTicket: signedTicket(t, uuid.New().String()),
		ExamID:     uuid.New().String(),
		// Unreachable on purpose: the mismatch must be caught before any
		// request goes out.
		ServerBaseURL:  "http://127.0.0.1:1",
		RequestTimeout: time.Second,
	}
	rt := New(cfg, nil, integrity.NewChannelSource(1), zerolog.Nop())

	reason, err := rt.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, ExitUnauthenticated, reason)
}

func TestRunPinnedExamAcceptsMatchingTicket(t *testing.T) {
	examID := uuid.New()
	cfg := &config.Config{
		ExamTicket:     signedTicket(t, examID.String()),
		ExamID:         examID.String(),
		ServerBaseURL:  "http://127.0.0.1:1",
		RequestTimeout: 500 * time.Millisecond,
	}
	rt := New(cfg, nil, integrity.NewChannelSource(1), zerolog.Nop())

	// Passes the pin check and fails on the unreachable server instead.
	reason, err := rt.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, ExitUnavailable, reason)
}

func TestRunUnreachableServerIsUnavailable(t *testing.T) {
	cfg := &config.Config{
		ExamTicket:     signedTicket(t, uuid.New().String()),
		ServerBaseURL:  "http://127.0.0.1:1",
		RequestTimeout: 500 * time.Millisecond,
	}
	rt := New(cfg, nil, integrity.NewChannelSource(1), zerolog.Nop())

	reason, err := rt.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, ExitUnavailable, reason)
}

func TestRunDrivesSessionToAutoSubmit(t *testing.T) {
	ds := devserver.New(&config.Config{GinMode: "test", JWTSecret: "test-secret"}, zerolog.Nop())
	content := model.ExamContent{
		ExamID: uuid.New(),
		Title:  "Wired Exam",
		Sections: []model.Section{{
			ID:    uuid.New(),
			Title: "Section A",
			Questions: []model.Question{
				{ID: uuid.New(), Type: model.QuestionTypeMultipleChoice, Title: "Q1"},
			},
		}},
		DurationSeconds:   1,
		TabSwitchLimit:    3,
		MonitoringEnabled: true,
	}
	ds.SeedExam(content)
	ticket, err := ds.IssueTicket(content.ExamID, "cand-1")
	require.NoError(t, err)

	srv := httptest.NewServer(ds.Router())
	defer srv.Close()

	cfg := &config.Config{
		ServerBaseURL:  srv.URL,
		ChannelURL:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/candidate/stream",
		ExamTicket:     ticket,
		AnswerDebounce: 20 * time.Millisecond,
		OfflineGrace:   time.Second,
		RequestTimeout: 5 * time.Second,
	}
	rt := New(cfg, nil, integrity.NewChannelSource(4), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The one-second exam expires on its own; the countdown's forced
	// submission must land as a clean completion.
	reason, err := rt.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExitCompleted, reason)
}
