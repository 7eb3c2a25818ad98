// Package submission orchestrates section-level submission and the
// irreversible final exam submission, including the retyped confirmation
// code that guards both against accidental clicks.
package submission

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/autosave"
	"github.com/stemsi/exstem-client/internal/session"
)

// ErrConfirmationMismatch blocks final submission locally; no network call is
// made on a mistyped code.
var ErrConfirmationMismatch = errors.New("submission: confirmation code mismatch")

// RemoteStore is the subset of the session store the coordinator calls.
type RemoteStore interface {
	SubmitSectionAnswers(ctx context.Context, sessionID, sectionID uuid.UUID, answers map[string]string) error
	SubmitExam(ctx context.Context, sessionID uuid.UUID) error
}

// Channel is disconnected permanently after final submission.
type Channel interface {
	Terminate()
}

// Trail records the client-side audit artifacts.
type Trail interface {
	RecordSubmission(examID, candidateID string, at time.Time) error
	SetFeedbackDone(examID, candidateID string) error
}

// Coordinator mutates the session state machine on behalf of the candidate's
// submit actions and the timer's auto-submit.
type Coordinator struct {
	ctrl     *session.Controller
	pipeline *autosave.Pipeline
	store    RemoteStore
	channel  Channel
	trail    Trail
	log      zerolog.Logger

	sessionID   uuid.UUID
	examID      string
	candidateID string

	mu sync.Mutex
	// Confirmation codes are regenerated only when the section context
	// changes, never per render, so the candidate is never shown a different
	// code than the one they are about to type.
	code        string
	codeContext string

	submitted       bool
	feedbackPending bool
	onSubmitted     func()
}

// New creates a Coordinator. trail may be nil.
func New(ctrl *session.Controller, pipeline *autosave.Pipeline, store RemoteStore, ch Channel, trail Trail, sessionID uuid.UUID, examID, candidateID string, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		ctrl:        ctrl,
		pipeline:    pipeline,
		store:       store,
		channel:     ch,
		trail:       trail,
		log:         log.With().Str("component", "submission").Logger(),
		sessionID:   sessionID,
		examID:      examID,
		candidateID: candidateID,
	}
}

// OnSubmitted registers a hook fired once after the terminal transition,
// whichever path (candidate confirmation or timer) triggered it.
func (co *Coordinator) OnSubmitted(fn func()) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.onSubmitted = fn
}

// Letters that survive being read aloud and retyped under pressure.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func generateCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// ConfirmationCode returns the code for the current submission context: the
// active section, or the final exam when none remains. Stable until the
// context changes.
func (co *Coordinator) ConfirmationCode() string {
	context := "final"
	if id, ok := co.ctrl.ActiveSection(); ok {
		context = id.String()
	}

	co.mu.Lock()
	defer co.mu.Unlock()

	if co.code == "" || co.codeContext != context {
		co.code = generateCode()
		co.codeContext = context
	}
	return co.code
}

// SubmitSection flushes the section's answers, calls the remote section
// submit and applies the local transition regardless of remote success
// (optimistic, with a logged warning) so the candidate is never stuck.
// Rejected unless sectionID is the current active section.
func (co *Coordinator) SubmitSection(ctx context.Context, sectionID uuid.UUID) error {
	active, ok := co.ctrl.ActiveSection()
	if !ok || active != sectionID {
		return session.ErrSectionNotActive
	}

	answers := co.ctrl.SectionAnswers(sectionID)
	if err := co.store.SubmitSectionAnswers(ctx, co.sessionID, sectionID, answers); err != nil {
		co.log.Warn().Err(err).Str("section_id", sectionID.String()).Msg("Remote section submit failed, applying local transition anyway")
	}

	return co.ctrl.SubmitSection(sectionID)
}

// SubmitFinal requires the freshly generated confirmation code to be retyped.
// On match it performs the irreversible final submission.
func (co *Coordinator) SubmitFinal(ctx context.Context, code string) error {
	co.mu.Lock()
	expected := co.code
	co.mu.Unlock()

	if expected == "" || code != expected {
		return ErrConfirmationMismatch
	}
	return co.ForceSubmit(ctx)
}

// ForceSubmit is the confirmation-free path used by the auto-submit timer.
// Idempotent: a second invocation is a no-op with no duplicate remote call.
func (co *Coordinator) ForceSubmit(ctx context.Context) error {
	co.mu.Lock()
	if co.submitted {
		co.mu.Unlock()
		return nil
	}
	co.submitted = true
	co.feedbackPending = true
	co.mu.Unlock()

	// One last synchronous flush of the whole answer map. Best-effort: the
	// terminal transition below happens even if the flush or the remote
	// submit fails, because keeping a candidate locked inside a timed exam
	// is worse than a lost remote write.
	if err := co.pipeline.FlushAll(co.ctrl.AnswersSnapshot()); err != nil {
		co.log.Warn().Err(err).Msg("Final answer flush incomplete")
	}
	if err := co.store.SubmitExam(ctx, co.sessionID); err != nil {
		co.log.Warn().Err(err).Msg("Remote exam submit failed, completing locally")
	}

	if err := co.ctrl.CompleteExam(); err != nil && !errors.Is(err, session.ErrSessionCompleted) {
		return err
	}

	co.pipeline.Close()
	co.channel.Terminate()

	if co.trail != nil {
		if err := co.trail.RecordSubmission(co.examID, co.candidateID, time.Now()); err != nil {
			co.log.Warn().Err(err).Msg("Submission trail write failed")
		}
	}

	co.log.Info().Str("session_id", co.sessionID.String()).Msg("Exam submitted")

	co.mu.Lock()
	hook := co.onSubmitted
	co.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

// Submitted reports whether final submission already happened.
func (co *Coordinator) Submitted() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.submitted
}

// FeedbackPending reports whether the feedback-collection step is still open.
func (co *Coordinator) FeedbackPending() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.feedbackPending
}

// CompleteFeedback closes the feedback step and records the flag locally.
func (co *Coordinator) CompleteFeedback() error {
	co.mu.Lock()
	if !co.submitted {
		co.mu.Unlock()
		return errors.New("submission: feedback before final submission")
	}
	co.feedbackPending = false
	co.mu.Unlock()

	if co.trail != nil {
		return co.trail.SetFeedbackDone(co.examID, co.candidateID)
	}
	return nil
}
