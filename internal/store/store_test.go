package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// getTestDB returns a database pool for testing.
// Skips the test if DATABASE_URL is not set.
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

func createTestSession(t *testing.T, s *Store, startedAt time.Time, questions []string) string {
	t.Helper()
	id, err := s.CreateSession(context.Background(), Session{
		ParticipantID: "guest-test",
		Role:          "backend engineer",
		RoomName:      "interview-test",
		StartedAt:     startedAt,
		LastActiveAt:  startedAt,
	}, questions)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if id == "" {
		t.Fatal("session ID should not be empty")
	}
	return id
}

func TestSessionLifecycle(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	questions := []string{"Tell me about yourself.", "Why this role?"}
	id := createTestSession(t, s, now, questions)

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess == nil {
		t.Fatal("session not found after create")
	}
	if sess.Status != SessionActive {
		t.Errorf("status = %q, want %q", sess.Status, SessionActive)
	}
	if sess.QuestionCount != 2 {
		t.Errorf("question_count = %d, want 2", sess.QuestionCount)
	}
	if sess.CurrentIndex != 0 {
		t.Errorf("current_index = %d, want 0", sess.CurrentIndex)
	}
	if sess.EndedAt != nil {
		t.Error("ended_at should be nil for an open session")
	}

	q, err := s.GetQuestion(ctx, id, 1)
	if err != nil {
		t.Fatalf("GetQuestion failed: %v", err)
	}
	if q != "Why this role?" {
		t.Errorf("question at index 1 = %q", q)
	}

	if err := s.UpdateSessionStatus(ctx, id, SessionPaused, now.Add(time.Second)); err != nil {
		t.Fatalf("UpdateSessionStatus failed: %v", err)
	}
	sess, err = s.GetSession(ctx, id)
	if err != nil || sess == nil {
		t.Fatalf("GetSession after pause: %v", err)
	}
	if sess.Status != SessionPaused {
		t.Errorf("status after pause = %q, want %q", sess.Status, SessionPaused)
	}

	if err := s.InsertResponse(ctx, id, Response{
		QuestionIndex: 0,
		Question:      questions[0],
		Answer:        "I build backend services",
		AudioLevel:    0.4,
		DurationMs:    1500,
		Confidence:    0.9,
		CreatedAt:     now.Add(time.Second),
	}); err != nil {
		t.Fatalf("InsertResponse failed: %v", err)
	}

	idx, err := s.AdvanceSession(ctx, id, now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("AdvanceSession failed: %v", err)
	}
	if idx != 1 {
		t.Errorf("AdvanceSession returned %d, want 1", idx)
	}

	responses, err := s.ListResponses(ctx, id)
	if err != nil {
		t.Fatalf("ListResponses failed: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	if responses[0].Answer != "I build backend services" || responses[0].DurationMs != 1500 {
		t.Errorf("response round trip = %+v", responses[0])
	}

	endedAt := now.Add(90 * time.Second)
	if err := s.EndSession(ctx, id, SessionCompleted, endedAt); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	sess, err = s.GetSession(ctx, id)
	if err != nil || sess == nil {
		t.Fatalf("GetSession after end: %v", err)
	}
	if sess.Status != SessionCompleted {
		t.Errorf("status after end = %q, want %q", sess.Status, SessionCompleted)
	}
	if sess.EndedAt == nil {
		t.Fatal("ended_at should be set after end")
	}

	// A second end must not overwrite the terminal status or timestamp.
	if err := s.EndSession(ctx, id, SessionAbandoned, endedAt.Add(time.Minute)); err != nil {
		t.Fatalf("second EndSession failed: %v", err)
	}
	sess, err = s.GetSession(ctx, id)
	if err != nil || sess == nil {
		t.Fatalf("GetSession after second end: %v", err)
	}
	if sess.Status != SessionCompleted {
		t.Errorf("status after second end = %q, want %q", sess.Status, SessionCompleted)
	}
}

func TestGetSessionMissing(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	sess, err := New(db).GetSession(context.Background(), "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("GetSession on missing id: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil session, got %+v", sess)
	}
}

func TestListStaleActiveSessions(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	staleAt := time.Now().UTC().Add(-time.Hour)
	id := createTestSession(t, s, staleAt, []string{"Q1"})
	defer func() {
		_ = s.EndSession(ctx, id, SessionAbandoned, time.Now().UTC())
	}()

	found := func(cutoff time.Time) bool {
		sessions, err := s.ListStaleActiveSessions(ctx, cutoff, 100)
		if err != nil {
			t.Fatalf("ListStaleActiveSessions failed: %v", err)
		}
		for _, sess := range sessions {
			if sess.ID == id {
				return true
			}
		}
		return false
	}

	if !found(time.Now().UTC().Add(-30 * time.Minute)) {
		t.Error("session idle for an hour should be past a 30m cutoff")
	}
	if found(time.Now().UTC().Add(-2 * time.Hour)) {
		t.Error("session idle for an hour should not be past a 2h cutoff")
	}
}

func TestGetSessionUsage(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	id := createTestSession(t, s, now, []string{"Q1", "Q2"})

	for i, r := range []Response{
		{Answer: "first answer", Question: "Q1", DurationMs: 1000},
		{Answer: "second", Question: "Q2", DurationMs: 2000},
	} {
		r.QuestionIndex = i
		r.CreatedAt = now
		if err := s.InsertResponse(ctx, id, r); err != nil {
			t.Fatalf("InsertResponse failed: %v", err)
		}
	}
	if err := s.EndSession(ctx, id, SessionCompleted, now.Add(90*time.Second)); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	u, err := s.GetSessionUsage(ctx, id)
	if err != nil {
		t.Fatalf("GetSessionUsage failed: %v", err)
	}
	if u.SpeechMs != 3000 {
		t.Errorf("SpeechMs = %d, want 3000", u.SpeechMs)
	}
	if want := len("first answer") + len("second"); u.AnswerChars != want {
		t.Errorf("AnswerChars = %d, want %d", u.AnswerChars, want)
	}
	if want := len("Q1") + len("Q2"); u.QuestionChars != want {
		t.Errorf("QuestionChars = %d, want %d", u.QuestionChars, want)
	}
	if u.SessionSeconds != 90 {
		t.Errorf("SessionSeconds = %d, want 90", u.SessionSeconds)
	}
}

func TestNewWithNilPool(t *testing.T) {
	// The store is constructed before the first query; a nil pool must not
	// panic at construction time (connection errors surface per call).
	s := New(nil)
	if s == nil {
		t.Fatal("New(nil) returned nil")
	}
}

func TestSessionStatusConstants(t *testing.T) {
	statuses := map[string]string{
		SessionActive:    "active",
		SessionPaused:    "paused",
		SessionCompleted: "completed",
		SessionAbandoned: "abandoned",
	}
	for got, want := range statuses {
		if got != want {
			t.Errorf("status constant = %q, want %q", got, want)
		}
	}
}

func TestSessionZeroValues(t *testing.T) {
	var sess Session
	if sess.EndedAt != nil {
		t.Error("EndedAt should default to nil for open sessions")
	}
	if sess.CurrentIndex != 0 {
		t.Error("CurrentIndex should start at 0")
	}
}

func TestResponseFields(t *testing.T) {
	now := time.Now().UTC()
	r := Response{
		QuestionIndex: 2,
		Question:      "Tell me about a challenge you faced.",
		Answer:        "I have five years of experience",
		AudioLevel:    0.4,
		DurationMs:    5200,
		Confidence:    0.9,
		CreatedAt:     now,
	}
	if r.QuestionIndex != 2 || r.DurationMs != 5200 {
		t.Errorf("response fields not carried: %+v", r)
	}
}
