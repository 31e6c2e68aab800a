package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/costs"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/eventlog"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/interview"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/notifications"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/store"
)

const (
	maxQuestionCount = 20
	roomTokenTTL     = 4 * time.Hour
)

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// newRoomName returns a random room name like "interview-3f9a2c1d".
func newRoomName() string {
	return "interview-" + randomHex(4)
}

// roomToken mints a LiveKit access token scoped to one room.
func (r *Router) roomToken(roomName, identity string) (string, error) {
	at := auth.NewAccessToken(r.cfg.LiveKitAPIKey, r.cfg.LiveKitAPISecret)

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomName,
	}

	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetValidFor(roomTokenTTL)

	return at.ToJWT()
}

// clampQuestionCount keeps the requested count in a sane range, substituting
// the configured default for zero.
func (r *Router) clampQuestionCount(n int) int {
	if n <= 0 {
		n = r.cfg.QuestionCount
	}
	if n <= 0 {
		n = interview.DefaultQuestionCount
	}
	if n > maxQuestionCount {
		n = maxQuestionCount
	}
	return n
}

type progressPayload struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

func progressFor(current, total int) progressPayload {
	p := interview.Progress{Current: current, Total: total}
	return progressPayload{Current: current, Total: total, Percentage: p.Percentage()}
}

// handleStartSession creates a session: generates the question list, persists
// the session row, and issues both the LiveKit room token and the
// session-scoped API token.
func (r *Router) handleStartSession(w http.ResponseWriter, req *http.Request) {
	var body struct {
		ParticipantID string `json:"participant_id"`
		Role          string `json:"role"`
		QuestionCount int    `json:"question_count"`
		Language      string `json:"language"`
	}

	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	body.Role = strings.TrimSpace(body.Role)
	if body.Role == "" {
		http.Error(w, `{"error": "role is required"}`, http.StatusBadRequest)
		return
	}
	if body.ParticipantID == "" {
		body.ParticipantID = "guest-" + randomHex(4)
	}

	if r.registry.IsDraining() {
		http.Error(w, `{"error": "server is shutting down"}`, http.StatusServiceUnavailable)
		return
	}

	cfg := interview.Config{
		Role:          body.Role,
		QuestionCount: r.clampQuestionCount(body.QuestionCount),
		Language:      body.Language,
	}
	if cfg.Language == "" {
		cfg.Language = r.cfg.Language
	}

	questions, err := r.questions.GenerateQuestions(req.Context(), cfg)
	if err != nil {
		r.logger.Printf("sessions: question generation failed for role %q: %v", cfg.Role, err)
		captureError(req, err, "question generation failed")
		questions, err = r.fallback.GenerateQuestions(req.Context(), cfg)
		if err != nil {
			http.Error(w, `{"error": "failed to generate questions"}`, http.StatusInternalServerError)
			return
		}
	}

	roomName := newRoomName()
	now := nowUTC()
	sessionID, err := r.store.CreateSession(req.Context(), store.Session{
		ParticipantID: body.ParticipantID,
		Role:          cfg.Role,
		Status:        store.SessionActive,
		RoomName:      roomName,
		QuestionCount: len(questions),
		StartedAt:     now,
		LastActiveAt:  now,
	}, questions)
	if err != nil {
		r.logger.Printf("sessions: failed to create session: %v", err)
		captureError(req, err, "session create failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	if !r.registry.Add(sessionID) {
		// Drain flag flipped between the early check and the insert.
		_ = r.store.EndSession(req.Context(), sessionID, store.SessionAbandoned, nowUTC())
		http.Error(w, `{"error": "server is shutting down"}`, http.StatusServiceUnavailable)
		return
	}

	accessToken, err := r.roomToken(roomName, body.ParticipantID)
	if err != nil {
		r.logger.Printf("sessions: failed to mint room token: %v", err)
		captureError(req, err, "room token failed")
		r.abortStartedSession(req.Context(), sessionID)
		http.Error(w, `{"error": "failed to create room token"}`, http.StatusInternalServerError)
		return
	}

	sessionToken, expiresAt, err := r.generateSessionToken(sessionID, body.ParticipantID)
	if err != nil {
		r.logger.Printf("sessions: failed to generate session token: %v", err)
		captureError(req, err, "session token failed")
		r.abortStartedSession(req.Context(), sessionID)
		http.Error(w, `{"error": "failed to create session token"}`, http.StatusInternalServerError)
		return
	}

	r.eventLog.LogAsync(sessionID, eventlog.EventSessionStarted, map[string]any{
		"role":           cfg.Role,
		"question_count": len(questions),
		"room_name":      roomName,
	})
	r.eventLog.LogAsync(sessionID, eventlog.EventTokenIssued, map[string]any{
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	r.logger.Printf("sessions: started %s (role=%q, questions=%d, room=%s)", sessionID, cfg.Role, len(questions), roomName)

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id":     sessionID,
		"transport_url":  r.cfg.LiveKitURL,
		"room_name":      roomName,
		"access_token":   accessToken,
		"session_token":  sessionToken,
		"expires_at":     expiresAt.Format(time.RFC3339),
		"first_question": questions[0],
		"progress":       progressFor(0, len(questions)),
	})
}

// abortStartedSession rolls back a session whose start failed after the row
// was inserted.
func (r *Router) abortStartedSession(ctx context.Context, sessionID string) {
	_ = r.store.EndSession(ctx, sessionID, store.SessionAbandoned, nowUTC())
	r.registry.Done(sessionID)
}

// loadOwnSession fetches the session named in the path and verifies it exists.
// Auth middleware already guaranteed the token matches the path ID.
func (r *Router) loadOwnSession(w http.ResponseWriter, req *http.Request) *store.Session {
	sess, err := r.store.GetSession(req.Context(), req.PathValue("id"))
	if err != nil {
		r.logger.Printf("sessions: failed to load session %s: %v", req.PathValue("id"), err)
		captureError(req, err, "session load failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return nil
	}
	if sess == nil {
		http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
		return nil
	}
	return sess
}

func sessionEnded(sess *store.Session) bool {
	return sess.Status == store.SessionCompleted || sess.Status == store.SessionAbandoned
}

// handleGetSession returns the current state of a session.
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) {
	sess := r.loadOwnSession(w, req)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"progress": progressFor(sess.CurrentIndex, sess.QuestionCount),
	})
}

// handlePauseSession marks a session paused. Pausing an already paused session
// succeeds without touching the row.
func (r *Router) handlePauseSession(w http.ResponseWriter, req *http.Request) {
	sess := r.loadOwnSession(w, req)
	if sess == nil {
		return
	}
	if sessionEnded(sess) {
		http.Error(w, `{"error": "session already ended"}`, http.StatusConflict)
		return
	}
	if sess.Status == store.SessionPaused {
		writeJSON(w, http.StatusOK, map[string]string{"status": store.SessionPaused})
		return
	}

	if err := r.store.UpdateSessionStatus(req.Context(), sess.ID, store.SessionPaused, nowUTC()); err != nil {
		r.logger.Printf("sessions: failed to pause %s: %v", sess.ID, err)
		captureError(req, err, "session pause failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	r.eventLog.LogAsync(sess.ID, eventlog.EventSessionPaused, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": store.SessionPaused})
}

// handleResumeSession marks a paused session active again.
func (r *Router) handleResumeSession(w http.ResponseWriter, req *http.Request) {
	sess := r.loadOwnSession(w, req)
	if sess == nil {
		return
	}
	if sessionEnded(sess) {
		http.Error(w, `{"error": "session already ended"}`, http.StatusConflict)
		return
	}
	if sess.Status == store.SessionActive {
		writeJSON(w, http.StatusOK, map[string]string{"status": store.SessionActive})
		return
	}

	if err := r.store.UpdateSessionStatus(req.Context(), sess.ID, store.SessionActive, nowUTC()); err != nil {
		r.logger.Printf("sessions: failed to resume %s: %v", sess.ID, err)
		captureError(req, err, "session resume failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	r.eventLog.LogAsync(sess.ID, eventlog.EventSessionResumed, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": store.SessionActive})
}

// handleEndSession finishes a session early. Ending an already ended session
// succeeds, the client retries teardown on flaky networks.
func (r *Router) handleEndSession(w http.ResponseWriter, req *http.Request) {
	sess := r.loadOwnSession(w, req)
	if sess == nil {
		return
	}
	if sessionEnded(sess) {
		writeJSON(w, http.StatusOK, map[string]string{"status": sess.Status})
		return
	}

	status := store.SessionAbandoned
	if sess.CurrentIndex >= sess.QuestionCount {
		status = store.SessionCompleted
	}

	if err := r.store.EndSession(req.Context(), sess.ID, status, nowUTC()); err != nil {
		r.logger.Printf("sessions: failed to end %s: %v", sess.ID, err)
		captureError(req, err, "session end failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	r.registry.Done(sess.ID)
	r.eventLog.LogAsync(sess.ID, eventlog.EventSessionEnded, map[string]any{
		"status":   status,
		"answered": sess.CurrentIndex,
		"total":    sess.QuestionCount,
	})
	r.notifySessionFinished(req.Context(), sess, status)

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// handleSubmitResponse records one spoken answer and advances to the next
// question. Completing the final question ends the session.
func (r *Router) handleSubmitResponse(w http.ResponseWriter, req *http.Request) {
	sess := r.loadOwnSession(w, req)
	if sess == nil {
		return
	}
	if sessionEnded(sess) {
		http.Error(w, `{"error": "session already ended"}`, http.StatusConflict)
		return
	}
	if sess.Status == store.SessionPaused {
		http.Error(w, `{"error": "session is paused"}`, http.StatusConflict)
		return
	}

	var body struct {
		Answer     string  `json:"answer"`
		AudioLevel float64 `json:"audio_level"`
		DurationMs int     `json:"duration_ms"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	body.Answer = strings.TrimSpace(body.Answer)
	if body.Answer == "" {
		http.Error(w, `{"error": "answer is empty"}`, http.StatusBadRequest)
		return
	}

	question, err := r.store.GetQuestion(req.Context(), sess.ID, sess.CurrentIndex)
	if err != nil {
		r.logger.Printf("sessions: failed to load question %d for %s: %v", sess.CurrentIndex, sess.ID, err)
		captureError(req, err, "question load failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	now := nowUTC()
	if err := r.store.InsertResponse(req.Context(), sess.ID, store.Response{
		QuestionIndex: sess.CurrentIndex,
		Question:      question,
		Answer:        body.Answer,
		AudioLevel:    body.AudioLevel,
		DurationMs:    body.DurationMs,
		Confidence:    body.Confidence,
		CreatedAt:     now,
	}); err != nil {
		r.logger.Printf("sessions: failed to insert response for %s: %v", sess.ID, err)
		captureError(req, err, "response insert failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	nextIndex, err := r.store.AdvanceSession(req.Context(), sess.ID, now)
	if err != nil {
		r.logger.Printf("sessions: failed to advance %s: %v", sess.ID, err)
		captureError(req, err, "session advance failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	r.eventLog.LogAsync(sess.ID, eventlog.EventResponseSubmitted, map[string]any{
		"question_index": sess.CurrentIndex,
		"answer_chars":   len(body.Answer),
		"duration_ms":    body.DurationMs,
		"confidence":     body.Confidence,
	})

	if nextIndex >= sess.QuestionCount {
		if err := r.store.EndSession(req.Context(), sess.ID, store.SessionCompleted, nowUTC()); err != nil {
			r.logger.Printf("sessions: failed to complete %s: %v", sess.ID, err)
			captureError(req, err, "session complete failed")
		}
		r.registry.Done(sess.ID)
		r.eventLog.LogAsync(sess.ID, eventlog.EventInterviewComplete, map[string]any{
			"total": sess.QuestionCount,
		})
		r.notifySessionFinished(req.Context(), sess, store.SessionCompleted)

		writeJSON(w, http.StatusOK, map[string]any{
			"is_complete": true,
			"progress":    progressFor(nextIndex, sess.QuestionCount),
		})
		return
	}

	nextQuestion, err := r.store.GetQuestion(req.Context(), sess.ID, nextIndex)
	if err != nil {
		r.logger.Printf("sessions: failed to load next question for %s: %v", sess.ID, err)
		captureError(req, err, "next question load failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	r.eventLog.LogAsync(sess.ID, eventlog.EventQuestionAdvanced, map[string]any{
		"question_index": nextIndex,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"is_complete":   false,
		"next_question": nextQuestion,
		"progress":      progressFor(nextIndex, sess.QuestionCount),
	})
}

// handleListResponses returns all recorded answers for review.
func (r *Router) handleListResponses(w http.ResponseWriter, req *http.Request) {
	sess := r.loadOwnSession(w, req)
	if sess == nil {
		return
	}

	responses, err := r.store.ListResponses(req.Context(), sess.ID)
	if err != nil {
		r.logger.Printf("sessions: failed to list responses for %s: %v", sess.ID, err)
		captureError(req, err, "response list failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"responses":  responses,
	})
}

// handleSessionCosts returns the estimated provider costs for a session.
func (r *Router) handleSessionCosts(w http.ResponseWriter, req *http.Request) {
	sess := r.loadOwnSession(w, req)
	if sess == nil {
		return
	}

	usage, err := r.store.GetSessionUsage(req.Context(), sess.ID)
	if err != nil {
		r.logger.Printf("sessions: failed to load usage for %s: %v", sess.ID, err)
		captureError(req, err, "usage load failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	c := costs.CalculateSessionCosts(sessionMetrics(usage))
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":           sess.ID,
		"transport_cost_cents": c.TransportCostCents,
		"stt_cost_cents":       c.STTCostCents,
		"llm_cost_cents":       c.LLMCostCents,
		"tts_cost_cents":       c.TTSCostCents,
		"total_cost_cents":     c.TotalCostCents,
	})
}

// sessionMetrics maps stored usage aggregates onto cost calculator inputs.
// LLM token counts are estimated from text length since streamed usage is not
// persisted per session.
func sessionMetrics(u store.SessionUsage) costs.SessionMetrics {
	return costs.SessionMetrics{
		SessionDurationSeconds: u.SessionSeconds,
		STTDurationSeconds:     u.SpeechMs / 1000,
		LLMInputTokens:         costs.EstimateTokens(u.AnswerChars),
		LLMOutputTokens:        costs.EstimateTokens(u.QuestionChars),
		TTSCharacters:          u.QuestionChars,
	}
}

// notifySessionFinished sends the Discord summary with the session's costs.
func (r *Router) notifySessionFinished(ctx context.Context, sess *store.Session, status string) {
	if !r.discord.Enabled() {
		return
	}
	usage, err := r.store.GetSessionUsage(ctx, sess.ID)
	if err != nil {
		r.logger.Printf("sessions: failed to load usage for summary of %s: %v", sess.ID, err)
		return
	}
	c := costs.CalculateSessionCosts(sessionMetrics(usage))
	r.discord.NotifySessionFinished(ctx, notifications.SessionSummary{
		SessionID:      sess.ID,
		Role:           sess.Role,
		Status:         status,
		Answered:       sess.CurrentIndex,
		Total:          sess.QuestionCount,
		DurationSec:    usage.SessionSeconds,
		TotalCostCents: c.TotalCostCents,
	})
}
