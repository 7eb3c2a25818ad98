package session

import (
	"github.com/google/uuid"

	"github.com/stemsi/exstem-client/internal/model"
)

// QuestionView is the normalized projection consumed by the question
// renderer collaborator.
type QuestionView struct {
	SectionID     uuid.UUID            `json:"section_id"`
	Question      model.Question       `json:"question"`
	Status        model.QuestionStatus `json:"status"`
	CurrentAnswer string               `json:"current_answer"`
}

// NavQuestion is one cell of the navigation grid.
type NavQuestion struct {
	ID     uuid.UUID            `json:"id"`
	Number int                  `json:"number"`
	Status model.QuestionStatus `json:"status"`
}

// NavSection is one row of the navigation grid.
type NavSection struct {
	ID        uuid.UUID           `json:"id"`
	Title     string              `json:"title"`
	Status    model.SectionStatus `json:"status"`
	Questions []NavQuestion       `json:"questions"`
}

// Current returns the view of the currently selected question, or false when
// no question is selected (summary or terminal view).
func (c *Controller) Current() (QuestionView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.curSection < 0 || c.curQuestion < 0 {
		return QuestionView{}, false
	}
	st := c.sections[c.curSection]
	q := st.section.Questions[c.curQuestion]
	return QuestionView{
		SectionID:     st.section.ID,
		Question:      q,
		Status:        model.DeriveQuestionStatus(c.sess.Answers, q.ID.String()),
		CurrentAnswer: c.sess.Answers[q.ID.String()],
	}, true
}

// Navigation returns the grid consumed by the navigation shell, in shuffled,
// renumbered order. Question statuses are recomputed from the answer map on
// every call (derived, never cached).
func (c *Controller) Navigation() []NavSection {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]NavSection, 0, len(c.sections))
	for _, st := range c.sections {
		ns := NavSection{
			ID:     st.section.ID,
			Title:  st.section.Title,
			Status: st.status,
		}
		for _, q := range st.section.Questions {
			ns.Questions = append(ns.Questions, NavQuestion{
				ID:     q.ID,
				Number: q.Number,
				Status: model.DeriveQuestionStatus(c.sess.Answers, q.ID.String()),
			})
		}
		out = append(out, ns)
	}
	return out
}

// QuestionStatus derives the status of one question from the answer map.
func (c *Controller) QuestionStatus(questionID uuid.UUID) model.QuestionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.DeriveQuestionStatus(c.sess.Answers, questionID.String())
}

// ActiveSection returns the id of the current active section, or false when
// every section is submitted and only final submission remains.
func (c *Controller) ActiveSection() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.activeIndex(); i >= 0 {
		return c.sections[i].section.ID, true
	}
	return uuid.Nil, false
}

// SectionAnswers returns a snapshot of the answer entries belonging to one
// section: its question responses plus their markers.
func (c *Controller) SectionAnswers(sectionID uuid.UUID) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string)
	for _, st := range c.sections {
		if st.section.ID != sectionID {
			continue
		}
		for _, q := range st.section.Questions {
			qid := q.ID.String()
			for _, k := range []string{qid, model.SubmittedKey(qid), model.ReviewKey(qid)} {
				if v, ok := c.sess.Answers[k]; ok {
					out[k] = v
				}
			}
		}
		if v, ok := c.sess.Answers[model.SectionSubmittedKey(sectionID.String())]; ok {
			out[model.SectionSubmittedKey(sectionID.String())] = v
		}
	}
	return out
}

// AnswersSnapshot returns a copy of the full answer map, used for the final
// best-effort flush.
func (c *Controller) AnswersSnapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.sess.Answers))
	for k, v := range c.sess.Answers {
		out[k] = v
	}
	return out
}

// Completed reports whether the session reached its terminal state.
func (c *Controller) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Status == model.SessionStatusCompleted
}

// Session returns a snapshot copy of the session record.
func (c *Controller) Session() model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := *c.sess
	snap.Answers = make(map[string]string, len(c.sess.Answers))
	for k, v := range c.sess.Answers {
		snap.Answers[k] = v
	}
	return snap
}
