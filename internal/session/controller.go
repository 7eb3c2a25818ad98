// Package session owns the in-memory model of one exam attempt: sections,
// questions, their statuses and the transition rules between them. All
// mutation flows through the Controller's entry points, which is the single
// serialization point for answer and state changes regardless of how many
// producers (renderer, sync pipeline, integrity monitor, timer) exist.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/shuffle"
)

var (
	// ErrSessionCompleted rejects any mutation after the terminal transition.
	ErrSessionCompleted = errors.New("session: already completed")
	// ErrSectionNotActive rejects operations on locked or submitted sections.
	ErrSectionNotActive = errors.New("session: section is not active")
	// ErrUnknownQuestion rejects operations on questions outside the exam.
	ErrUnknownQuestion = errors.New("session: unknown question")
)

// AnswerSink receives every answer-map write for remote propagation. The
// Controller is the sole writer to the in-memory copy; the sink (the sync
// pipeline) is the sole writer to the remote copy.
type AnswerSink interface {
	Queue(key, value string)
}

type sectionState struct {
	section model.Section
	status  model.SectionStatus
}

// Controller is the session state machine.
type Controller struct {
	mu   sync.Mutex
	log  zerolog.Logger
	sess *model.Session

	sections []*sectionState
	// byQuestion maps question id -> section index.
	byQuestion map[uuid.UUID]int

	sink AnswerSink

	// Current navigation position. curSection/curQuestion are indexes into
	// the shuffled order; -1 means no selection (summary view).
	curSection  int
	curQuestion int
}

// New builds a Controller from a started-or-resumed session and the exam
// content. Each section's questions are shuffled deterministically with the
// session id as seed, then section statuses and the resume position are
// computed from the (already merged) answer map.
func New(sess *model.Session, content *model.ExamContent, log zerolog.Logger) *Controller {
	if sess.Answers == nil {
		sess.Answers = make(map[string]string)
	}

	c := &Controller{
		log:         log.With().Str("component", "session").Logger(),
		sess:        sess,
		byQuestion:  make(map[uuid.UUID]int),
		curSection:  -1,
		curQuestion: -1,
	}

	seed := sess.ID.String()
	for i, sec := range content.Sections {
		shuffled := sec
		shuffled.Questions = shuffle.Questions(seed, sec.ID.String(), sec.Questions)
		c.sections = append(c.sections, &sectionState{
			section: shuffled,
			status:  model.SectionStatusLocked,
		})
		for _, q := range shuffled.Questions {
			c.byQuestion[q.ID] = i
		}
	}

	c.recomputeSections()
	c.restorePosition()
	return c
}

// AttachSink wires the sync pipeline. Writes made before attachment stay
// local only (used during initial load, before the channel is up).
func (c *Controller) AttachSink(sink AnswerSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// recomputeSections applies the active-section invariant: the first section
// without a submission marker becomes ACTIVE, everything before it is
// SUBMITTED, everything after stays LOCKED.
func (c *Controller) recomputeSections() {
	activeFound := false
	for _, st := range c.sections {
		submitted := c.sess.Answers[model.SectionSubmittedKey(st.section.ID.String())] == model.MarkerTrue
		switch {
		case submitted && !activeFound:
			st.status = model.SectionStatusSubmitted
		case !activeFound:
			st.status = model.SectionStatusActive
			activeFound = true
		default:
			st.status = model.SectionStatusLocked
		}
	}
}

// restorePosition prefers the last-visited section/question recorded in the
// answer map, but only if that section is still active; otherwise it falls
// back to the first question of the computed active section.
func (c *Controller) restorePosition() {
	activeIdx := c.activeIndex()
	if activeIdx < 0 {
		return
	}

	lastSec := c.sess.Answers[model.KeyLastSectionID]
	lastQ := c.sess.Answers[model.KeyLastQuestionID]
	if lastSec == c.sections[activeIdx].section.ID.String() {
		for qi, q := range c.sections[activeIdx].section.Questions {
			if q.ID.String() == lastQ {
				c.curSection, c.curQuestion = activeIdx, qi
				return
			}
		}
	}

	c.curSection, c.curQuestion = activeIdx, 0
}

func (c *Controller) activeIndex() int {
	for i, st := range c.sections {
		if st.status == model.SectionStatusActive {
			return i
		}
	}
	return -1
}

func (c *Controller) emit(key, value string) {
	c.sess.Answers[key] = value
	if c.sink != nil {
		c.sink.Queue(key, value)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Commands
// ────────────────────────────────────────────────────────────────────────────

// Select moves the current position to (sectionID, questionID). Selection into
// a locked or submitted section is silently rejected (returns false); only
// system-initiated advancement may force it.
func (c *Controller) Select(sectionID, questionID uuid.UUID) bool {
	return c.selectPos(sectionID, questionID, false)
}

// SelectForced is the system-initiated variant used by section advancement.
func (c *Controller) SelectForced(sectionID, questionID uuid.UUID) bool {
	return c.selectPos(sectionID, questionID, true)
}

func (c *Controller) selectPos(sectionID, questionID uuid.UUID, force bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.Status == model.SessionStatusCompleted {
		return false
	}

	for si, st := range c.sections {
		if st.section.ID != sectionID {
			continue
		}
		if st.status != model.SectionStatusActive && !force {
			return false
		}
		for qi, q := range st.section.Questions {
			if q.ID == questionID {
				c.curSection, c.curQuestion = si, qi
				c.emit(model.KeyLastSectionID, sectionID.String())
				c.emit(model.KeyLastQuestionID, questionID.String())
				return true
			}
		}
		return false
	}
	return false
}

// SetAnswer records the candidate's response for a question. The in-memory
// map updates synchronously; the sink schedules the debounced network write.
func (c *Controller) SetAnswer(questionID uuid.UUID, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutableQuestion(questionID); err != nil {
		return err
	}
	c.emit(questionID.String(), value)
	return nil
}

// MarkSubmitted sets the explicit submission marker that makes a question
// count as ANSWERED. Free-form input without this marker is still flushed for
// recovery but stays UNANSWERED.
func (c *Controller) MarkSubmitted(questionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutableQuestion(questionID); err != nil {
		return err
	}
	c.emit(model.SubmittedKey(questionID.String()), model.MarkerTrue)
	return nil
}

// SetReview toggles the advisory review marker. Unmarking writes "false" so
// the derived status falls back to whatever the submission marker yields.
func (c *Controller) SetReview(questionID uuid.UUID, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutableQuestion(questionID); err != nil {
		return err
	}
	v := "false"
	if on {
		v = model.MarkerTrue
	}
	c.emit(model.ReviewKey(questionID.String()), v)
	return nil
}

func (c *Controller) mutableQuestion(questionID uuid.UUID) error {
	if c.sess.Status == model.SessionStatusCompleted {
		return ErrSessionCompleted
	}
	si, ok := c.byQuestion[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if c.sections[si].status != model.SectionStatusActive {
		return ErrSectionNotActive
	}
	return nil
}

// SubmitSection applies the local section transition: valid only for the
// current active section. Sets the submission marker, locks the section and
// activates the next one, landing navigation on its first question. With no
// next section the position clears (summary view) and final submission
// becomes the only remaining action.
func (c *Controller) SubmitSection(sectionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.Status == model.SessionStatusCompleted {
		return ErrSessionCompleted
	}

	activeIdx := c.activeIndex()
	if activeIdx < 0 || c.sections[activeIdx].section.ID != sectionID {
		return ErrSectionNotActive
	}

	c.emit(model.SectionSubmittedKey(sectionID.String()), model.MarkerTrue)
	c.recomputeSections()

	next := c.activeIndex()
	if next < 0 {
		c.curSection, c.curQuestion = -1, -1
		c.log.Info().Str("section_id", sectionID.String()).Msg("Last section submitted, final submission pending")
		return nil
	}

	c.curSection, c.curQuestion = next, 0
	first := c.sections[next].section.Questions[0]
	c.emit(model.KeyLastSectionID, c.sections[next].section.ID.String())
	c.emit(model.KeyLastQuestionID, first.ID.String())
	return nil
}

// CompleteExam is the terminal transition. Valid from any state, irreversible;
// returns ErrSessionCompleted if already terminal so callers can keep final
// submission idempotent.
func (c *Controller) CompleteExam() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.Status == model.SessionStatusCompleted {
		return ErrSessionCompleted
	}
	c.sess.Status = model.SessionStatusCompleted
	c.curSection, c.curQuestion = -1, -1
	return nil
}

// RecordTabSwitch increments the cumulative visibility counters. Returns the
// updated pair (in, out). No-op once terminal.
func (c *Controller) RecordTabSwitch(out bool) (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.Status != model.SessionStatusCompleted {
		if out {
			c.sess.TabSwitchesOut++
		} else {
			c.sess.TabSwitchesIn++
		}
	}
	return c.sess.TabSwitchesIn, c.sess.TabSwitchesOut
}
