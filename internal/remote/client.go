// Package remote is the HTTP client for the remote session store. It speaks
// the standard response envelope and maps wire error codes onto the client's
// error taxonomy.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/model"
)

// Client talks to the remote session store.
type Client struct {
	base     string
	ticket   string
	http     *http.Client
	validate *validator.Validate
	log      zerolog.Logger
}

// NewClient creates a session store client. ticket is the signed exam ticket
// sent as a bearer token.
func NewClient(base, ticket string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		base:     base,
		ticket:   ticket,
		http:     &http.Client{Timeout: timeout},
		validate: validator.New(),
		log:      log.With().Str("component", "remote").Logger(),
	}
}

// StartOrResumeSession starts a new session or returns the existing one for
// this exam+candidate (idempotent on the server side).
func (c *Client) StartOrResumeSession(ctx context.Context, examID uuid.UUID, req model.StartSessionRequest) (*model.Session, error) {
	var sess model.Session
	path := fmt.Sprintf("/api/v1/candidate/exams/%s/sessions", examID)
	if err := c.do(ctx, http.MethodPost, path, req, &sess); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if sess.Answers == nil {
		sess.Answers = make(map[string]string)
	}
	return &sess, nil
}

// GetExamContent fetches and validates the candidate-facing exam payload.
func (c *Client) GetExamContent(ctx context.Context, examID uuid.UUID) (*model.ExamContent, error) {
	var content model.ExamContent
	path := fmt.Sprintf("/api/v1/candidate/exams/%s/content", examID)
	if err := c.do(ctx, http.MethodGet, path, nil, &content); err != nil {
		return nil, fmt.Errorf("get exam content: %w", err)
	}
	if err := c.validate.Struct(&content); err != nil {
		return nil, fmt.Errorf("malformed exam content: %w", err)
	}
	return &content, nil
}

type submitSectionRequest struct {
	Answers map[string]string `json:"answers"`
}

// SubmitSectionAnswers submits one section's answer entries.
func (c *Client) SubmitSectionAnswers(ctx context.Context, sessionID, sectionID uuid.UUID, answers map[string]string) error {
	path := fmt.Sprintf("/api/v1/candidate/sessions/%s/sections/%s/submit", sessionID, sectionID)
	if err := c.do(ctx, http.MethodPost, path, submitSectionRequest{Answers: answers}, nil); err != nil {
		return fmt.Errorf("submit section: %w", err)
	}
	return nil
}

// SubmitExam performs the remote terminal transition.
func (c *Client) SubmitExam(ctx context.Context, sessionID uuid.UUID) error {
	path := fmt.Sprintf("/api/v1/candidate/sessions/%s/submit", sessionID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("submit exam: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ticket != "" {
		req.Header.Set("Authorization", "Bearer "+c.ticket)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope api.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}

	if envelope.Error != nil {
		if structural := mapCode(envelope.Error.Code); structural != nil {
			return fmt.Errorf("%s: %w", envelope.Error.Message, structural)
		}
		return fmt.Errorf("server error %s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
