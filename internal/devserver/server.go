// Package devserver is an in-memory stand-in for the remote session store
// and real-time gateway, for local development and integration tests. It
// speaks the same envelope, ticket and channel protocol as the production
// backend but keeps every session in RAM.
package devserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/model"
)

type examState struct {
	content model.ExamContent
	// sessions by candidate id; one attempt per candidate.
	sessions   map[string]*model.Session
	violations []model.ViolationEvent
	suspended  map[string]bool
}

// Server holds all in-memory exam state.
type Server struct {
	cfg *config.Config
	log zerolog.Logger

	mu    sync.Mutex
	exams map[uuid.UUID]*examState

	hub *hub
}

// New creates an empty devserver.
func New(cfg *config.Config, log zerolog.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		log:   log.With().Str("component", "devserver").Logger(),
		exams: make(map[uuid.UUID]*examState),
	}
	s.hub = newHub(s, cfg.AllowedOrigins)
	return s
}

// SeedExam registers exam content, replacing any previous state for its id.
func (s *Server) SeedExam(content model.ExamContent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[content.ExamID] = &examState{
		content:   content,
		sessions:  make(map[string]*model.Session),
		suspended: make(map[string]bool),
	}
}

// IssueTicket signs an exam ticket for a candidate.
func (s *Server) IssueTicket(examID uuid.UUID, candidateID string) (string, error) {
	return api.SignTicket(&api.TicketClaims{
		ExamID:      examID.String(),
		CandidateID: candidateID,
	}, s.cfg.JWTSecret)
}

// Router builds the gin engine with CORS, request ids and ticket auth.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(s.cfg.GinMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestIDMiddleware())

	corsCfg := cors.DefaultConfig()
	if len(s.cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.AllowedOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Request-ID")
	r.Use(cors.New(corsCfg))

	v1 := r.Group("/api/v1/candidate", s.ticketAuth())
	{
		v1.GET("/exams/:exam_id/content", s.getExamContent)
		v1.POST("/exams/:exam_id/sessions", s.startOrResumeSession)
		v1.POST("/sessions/:session_id/sections/:section_id/submit", s.submitSection)
		v1.POST("/sessions/:session_id/submit", s.submitExam)
	}

	r.GET("/ws/v1/candidate/stream", s.hub.stream)
	return r
}

const contextKeyClaims = "ticket_claims"

// ticketAuth verifies the bearer exam ticket and stores its claims.
func (s *Server) ticketAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			api.AbortFail(c, http.StatusUnauthorized, api.ErrTicketRequired)
			return
		}
		claims, err := api.VerifyTicket(strings.TrimPrefix(header, "Bearer "), s.cfg.JWTSecret)
		if err != nil {
			api.AbortFail(c, http.StatusUnauthorized, api.ErrTicketInvalid)
			return
		}
		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

func getClaims(c *gin.Context) *api.TicketClaims {
	v, _ := c.Get(contextKeyClaims)
	claims, _ := v.(*api.TicketClaims)
	return claims
}

// ────────────────────────────────────────────────────────────────────────────
// Handlers
// ────────────────────────────────────────────────────────────────────────────

// getExamContent returns the candidate-facing payload. Correct answers never
// leave the authoring side, so there is nothing to strip here.
func (s *Server) getExamContent(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		api.Fail(c, http.StatusBadRequest, api.ErrInvalidID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exam, ok := s.exams[examID]
	if !ok {
		api.Fail(c, http.StatusNotFound, api.ErrExamNotFound)
		return
	}
	api.Success(c, http.StatusOK, exam.content)
}

// startOrResumeSession is idempotent per exam+candidate: a refresh or a new
// device returns the existing session with its restored answer map.
func (s *Server) startOrResumeSession(c *gin.Context) {
	claims := getClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		api.Fail(c, http.StatusBadRequest, api.ErrInvalidID)
		return
	}
	if claims.ExamID != examID.String() {
		api.Fail(c, http.StatusUnauthorized, api.ErrTicketInvalid)
		return
	}

	var req model.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.FailWithFields(c, http.StatusBadRequest, api.ErrValidation, map[string]string{"detail": err.Error()})
		return
	}
	if req.CandidateID != claims.CandidateID {
		api.Fail(c, http.StatusUnauthorized, api.ErrTicketInvalid)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exam, ok := s.exams[examID]
	if !ok {
		api.Fail(c, http.StatusNotFound, api.ErrExamNotFound)
		return
	}
	if exam.suspended[claims.CandidateID] {
		api.Fail(c, http.StatusForbidden, api.ErrSuspended)
		return
	}

	sess, ok := exam.sessions[claims.CandidateID]
	if !ok {
		sess = &model.Session{
			ID:          uuid.New(),
			ExamID:      examID,
			CandidateID: claims.CandidateID,
			StartedAt:   time.Now(),
			Status:      model.SessionStatusInProgress,
			Answers:     make(map[string]string),
		}
		exam.sessions[claims.CandidateID] = sess
	}
	// The latest device/tab always wins the identity slot.
	sess.DeviceID = req.DeviceID
	sess.TabID = req.TabID

	api.Success(c, http.StatusOK, sess)
}

type submitSectionRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}

func (s *Server) submitSection(c *gin.Context) {
	claims := getClaims(c)

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		api.Fail(c, http.StatusBadRequest, api.ErrInvalidID)
		return
	}
	sectionID, err := uuid.Parse(c.Param("section_id"))
	if err != nil {
		api.Fail(c, http.StatusBadRequest, api.ErrInvalidID)
		return
	}

	var req submitSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.FailWithFields(c, http.StatusBadRequest, api.ErrValidation, map[string]string{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exam := s.findSession(claims, sessionID)
	if sess == nil {
		api.Fail(c, http.StatusNotFound, api.ErrSessionNotFound)
		return
	}
	if sess.Status == model.SessionStatusCompleted {
		api.Fail(c, http.StatusConflict, api.ErrSessionCompleted)
		return
	}

	hasSection := false
	for _, sec := range exam.content.Sections {
		if sec.ID == sectionID {
			hasSection = true
			break
		}
	}
	if !hasSection {
		api.Fail(c, http.StatusNotFound, api.ErrSectionNotActive)
		return
	}

	for k, v := range req.Answers {
		sess.Answers[k] = v
	}
	sess.Answers[model.SectionSubmittedKey(sectionID.String())] = model.MarkerTrue

	api.Success(c, http.StatusOK, gin.H{"status": "submitted"})
}

// submitExam is idempotent: a repeated call on a completed session returns
// success without a second transition.
func (s *Server) submitExam(c *gin.Context) {
	claims := getClaims(c)

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		api.Fail(c, http.StatusBadRequest, api.ErrInvalidID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.findSession(claims, sessionID)
	if sess == nil {
		api.Fail(c, http.StatusNotFound, api.ErrSessionNotFound)
		return
	}

	if sess.Status != model.SessionStatusCompleted {
		now := time.Now()
		sess.Status = model.SessionStatusCompleted
		sess.FinishedAt = &now
	}
	api.Success(c, http.StatusOK, gin.H{"status": string(sess.Status)})
}

// findSession locates the caller's session by id. Callers hold s.mu.
func (s *Server) findSession(claims *api.TicketClaims, sessionID uuid.UUID) (*model.Session, *examState) {
	for _, exam := range s.exams {
		if sess, ok := exam.sessions[claims.CandidateID]; ok && sess.ID == sessionID {
			return sess, exam
		}
	}
	return nil, nil
}

// Violations returns a copy of the recorded violation trail for an exam.
func (s *Server) Violations(examID uuid.UUID) []model.ViolationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	exam, ok := s.exams[examID]
	if !ok {
		return nil
	}
	out := make([]model.ViolationEvent, len(exam.violations))
	copy(out, exam.violations)
	return out
}

// SessionAnswers returns a snapshot of a candidate's stored answers.
func (s *Server) SessionAnswers(examID uuid.UUID, candidateID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	exam, ok := s.exams[examID]
	if !ok {
		return nil
	}
	sess, ok := exam.sessions[candidateID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(sess.Answers))
	for k, v := range sess.Answers {
		out[k] = v
	}
	return out
}
