// Package jobs contains background maintenance jobs.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/eventlog"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/notifications"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/store"
)

const reapBatchSize = 100

// SessionReaper closes interview sessions whose participants disappeared
// without ending them. Browsers crash and tabs close, so active sessions with
// no activity past the idle cutoff are marked abandoned on a fixed interval.
type SessionReaper struct {
	store    *store.Store
	eventLog *eventlog.Logger
	discord  *notifications.Discord
	logger   *log.Logger
	interval time.Duration
	idleFor  time.Duration
	onReaped func(sessionID string)
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSessionReaper creates a new reaper. interval defaults to 1 minute and
// idleFor to 10 minutes. onReaped, if set, is called once per reaped session
// so the HTTP layer can release its registry slot.
func NewSessionReaper(s *store.Store, eventLog *eventlog.Logger, discord *notifications.Discord, logger *log.Logger, interval, idleFor time.Duration, onReaped func(sessionID string)) *SessionReaper {
	if interval == 0 {
		interval = 1 * time.Minute
	}
	if idleFor == 0 {
		idleFor = 10 * time.Minute
	}
	return &SessionReaper{
		store:    s,
		eventLog: eventLog,
		discord:  discord,
		logger:   logger,
		interval: interval,
		idleFor:  idleFor,
		onReaped: onReaped,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background job.
func (j *SessionReaper) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Printf("SessionReaper: started (interval=%v, idleFor=%v)", j.interval, j.idleFor)
}

// Stop gracefully stops the background job.
func (j *SessionReaper) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Println("SessionReaper: stopped")
}

func (j *SessionReaper) run() {
	defer j.wg.Done()

	// Run immediately on start
	j.reapStaleSessions()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.reapStaleSessions()
		case <-j.stopCh:
			return
		}
	}
}

func (j *SessionReaper) reapStaleSessions() {
	ctx := context.Background()

	cutoff := time.Now().UTC().Add(-j.idleFor)
	sessions, err := j.store.ListStaleActiveSessions(ctx, cutoff, reapBatchSize)
	if err != nil {
		j.logger.Printf("SessionReaper: failed to list stale sessions: %v", err)
		return
	}

	reaped := 0
	for _, sess := range sessions {
		if err := j.store.EndSession(ctx, sess.ID, store.SessionAbandoned, time.Now().UTC()); err != nil {
			j.logger.Printf("SessionReaper: failed to end session %s: %v", sess.ID, err)
			continue
		}
		j.eventLog.LogAsync(sess.ID, eventlog.EventSessionReaped, map[string]any{
			"idle_since": sess.LastActiveAt.Format(time.RFC3339),
			"answered":   sess.CurrentIndex,
			"total":      sess.QuestionCount,
		})
		if j.onReaped != nil {
			j.onReaped(sess.ID)
		}
		reaped++
	}

	if reaped > 0 {
		j.logger.Printf("SessionReaper: reaped %d stale sessions", reaped)
		if j.discord != nil {
			j.discord.NotifyStaleSessionsReaped(ctx, reaped)
		}
	}
}
