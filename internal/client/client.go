// Package client talks to the interview session service over HTTP.
//
// One Client drives one session: StartSession stores the session-scoped
// bearer token and subsequent calls send it automatically.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/session"
)

// Client implements session.Service against the HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger

	token     string
	sessionID string
}

// New creates a client for the service at baseURL.
func New(baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// do issues one JSON request and decodes the response into out (may be nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		msg := resp.Status
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return fmt.Errorf("%s %s: %s", method, path, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type startResponse struct {
	SessionID     string `json:"session_id"`
	TransportURL  string `json:"transport_url"`
	RoomName      string `json:"room_name"`
	AccessToken   string `json:"access_token"`
	SessionToken  string `json:"session_token"`
	FirstQuestion string `json:"first_question"`
	Progress      struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	} `json:"progress"`
}

// StartSession creates a session and stores its token for later calls.
func (c *Client) StartSession(ctx context.Context, cfg session.StartConfig) (*session.Handle, error) {
	body := map[string]any{
		"participant_id": cfg.ParticipantID,
		"role":           cfg.Role,
		"question_count": cfg.QuestionCount,
		"language":       cfg.Language,
	}

	var res startResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &res); err != nil {
		return nil, err
	}

	c.token = res.SessionToken
	c.sessionID = res.SessionID

	return &session.Handle{
		SessionID:     res.SessionID,
		TransportURL:  res.TransportURL,
		RoomName:      res.RoomName,
		AccessToken:   res.AccessToken,
		SessionToken:  res.SessionToken,
		FirstQuestion: res.FirstQuestion,
		Total:         res.Progress.Total,
	}, nil
}

// PauseSession pauses the session on the server.
func (c *Client) PauseSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/pause", nil, nil)
}

// ResumeSession resumes a paused session.
func (c *Client) ResumeSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/resume", nil, nil)
}

// EndSession finishes the session.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/end", nil, nil)
}

type submitResponse struct {
	IsComplete   bool   `json:"is_complete"`
	NextQuestion string `json:"next_question"`
	Progress     struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	} `json:"progress"`
}

// SubmitResponse sends one spoken answer and returns the next step.
func (c *Client) SubmitResponse(ctx context.Context, sessionID, text string, meta session.SubmitMeta) (*session.SubmitResult, error) {
	body := map[string]any{
		"answer":      text,
		"audio_level": meta.AudioLevel,
		"duration_ms": meta.DurationMs,
		"confidence":  meta.Confidence,
	}

	var res submitResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/response", body, &res); err != nil {
		return nil, err
	}

	return &session.SubmitResult{
		IsComplete:   res.IsComplete,
		NextQuestion: res.NextQuestion,
		Current:      res.Progress.Current,
		Total:        res.Progress.Total,
	}, nil
}
