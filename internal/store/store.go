// Package store persists interview sessions and submitted responses.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Session status values.
const (
	SessionActive    = "active"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
	SessionAbandoned = "abandoned"
)

// Session is one interview practice session.
type Session struct {
	ID            string     `json:"id"`
	ParticipantID string     `json:"participant_id"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	RoomName      string     `json:"room_name"`
	QuestionCount int        `json:"question_count"`
	CurrentIndex  int        `json:"current_index"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	LastActiveAt  time.Time  `json:"last_active_at"`
}

// Response is one submitted spoken answer.
type Response struct {
	QuestionIndex int       `json:"question_index"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	AudioLevel    float64   `json:"audio_level"`
	DurationMs    int       `json:"duration_ms"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateSession inserts a session row plus its generated question list and
// returns the new session ID.
func (s *Store) CreateSession(ctx context.Context, sess Session, questions []string) (string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO interview_sessions (id, participant_id, role, status, room_name, question_count, current_index, started_at, last_active_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, 0, $6, $6)
		RETURNING id
	`, sess.ParticipantID, sess.Role, SessionActive, sess.RoomName, len(questions), sess.StartedAt).Scan(&id)
	if err != nil {
		return "", err
	}

	for i, q := range questions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO interview_questions (session_id, question_index, question)
			VALUES ($1, $2, $3)
		`, id, i, q); err != nil {
			return "", err
		}
	}

	return id, tx.Commit(ctx)
}

// GetSession loads one session row.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, `
		SELECT id, participant_id, role, status, room_name, question_count, current_index, started_at, ended_at, last_active_at
		FROM interview_sessions
		WHERE id = $1
	`, id).Scan(&sess.ID, &sess.ParticipantID, &sess.Role, &sess.Status, &sess.RoomName,
		&sess.QuestionCount, &sess.CurrentIndex, &sess.StartedAt, &sess.EndedAt, &sess.LastActiveAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetQuestion returns the question text at the given index.
func (s *Store) GetQuestion(ctx context.Context, sessionID string, index int) (string, error) {
	var q string
	err := s.db.QueryRow(ctx, `
		SELECT question FROM interview_questions
		WHERE session_id = $1 AND question_index = $2
	`, sessionID, index).Scan(&q)
	return q, err
}

// UpdateSessionStatus sets the session status and bumps last_active_at.
func (s *Store) UpdateSessionStatus(ctx context.Context, id, status string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE interview_sessions
		SET status = $2, last_active_at = $3
		WHERE id = $1
	`, id, status, at)
	return err
}

// EndSession marks the session terminal with the given status.
func (s *Store) EndSession(ctx context.Context, id, status string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE interview_sessions
		SET status = $2, ended_at = $3, last_active_at = $3
		WHERE id = $1 AND ended_at IS NULL
	`, id, status, at)
	return err
}

// AdvanceSession moves the session to the next question and returns the
// new current index.
func (s *Store) AdvanceSession(ctx context.Context, id string, at time.Time) (int, error) {
	var idx int
	err := s.db.QueryRow(ctx, `
		UPDATE interview_sessions
		SET current_index = current_index + 1, last_active_at = $2
		WHERE id = $1
		RETURNING current_index
	`, id, at).Scan(&idx)
	return idx, err
}

// InsertResponse stores one submitted answer.
func (s *Store) InsertResponse(ctx context.Context, sessionID string, r Response) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO interview_responses (id, session_id, question_index, question, answer, audio_level, duration_ms, confidence, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
	`, sessionID, r.QuestionIndex, r.Question, r.Answer, r.AudioLevel, r.DurationMs, r.Confidence, r.CreatedAt)
	return err
}

// ListResponses returns a session's answers in question order.
func (s *Store) ListResponses(ctx context.Context, sessionID string) ([]Response, error) {
	rows, err := s.db.Query(ctx, `
		SELECT question_index, question, answer, audio_level, duration_ms, confidence, created_at
		FROM interview_responses
		WHERE session_id = $1
		ORDER BY question_index
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		var r Response
		if err := rows.Scan(&r.QuestionIndex, &r.Question, &r.Answer, &r.AudioLevel,
			&r.DurationMs, &r.Confidence, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListStaleActiveSessions returns sessions still active or paused whose
// last activity predates the cutoff. Used by the session reaper.
func (s *Store) ListStaleActiveSessions(ctx context.Context, cutoff time.Time, limit int) ([]Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, participant_id, role, status, room_name, question_count, current_index, started_at, ended_at, last_active_at
		FROM interview_sessions
		WHERE status IN ($1, $2) AND last_active_at < $3
		ORDER BY last_active_at
		LIMIT $4
	`, SessionActive, SessionPaused, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.ParticipantID, &sess.Role, &sess.Status, &sess.RoomName,
			&sess.QuestionCount, &sess.CurrentIndex, &sess.StartedAt, &sess.EndedAt, &sess.LastActiveAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SessionUsage aggregates the signals needed for cost calculation.
type SessionUsage struct {
	SpeechMs       int // total answer audio submitted
	AnswerChars    int
	QuestionChars  int // narrated by TTS
	SessionSeconds int
}

// GetSessionUsage aggregates usage metrics for one session.
func (s *Store) GetSessionUsage(ctx context.Context, sessionID string) (SessionUsage, error) {
	var u SessionUsage
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(r.duration_ms), 0),
		       COALESCE(SUM(LENGTH(r.answer)), 0),
		       COALESCE(SUM(LENGTH(r.question)), 0),
		       COALESCE(EXTRACT(EPOCH FROM (MAX(s.ended_at) - MAX(s.started_at)))::int, 0)
		FROM interview_sessions s
		LEFT JOIN interview_responses r ON r.session_id = s.id
		WHERE s.id = $1
		GROUP BY s.id
	`, sessionID).Scan(&u.SpeechMs, &u.AnswerChars, &u.QuestionChars, &u.SessionSeconds)
	if err == pgx.ErrNoRows {
		return SessionUsage{}, nil
	}
	return u, err
}
