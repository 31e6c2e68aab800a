package session

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/synth"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/transport"
)

// defaultConfidence is reported when the recognizer has not produced a
// confidence score yet.
const defaultConfidence = 0.9

// Coordinator drives one interview session. Commands are serialized: each
// runs to completion before the next starts. Adapter events may arrive while
// a command is suspended on a network call; they mutate state under mu and
// the most recent event wins over any stale in-flight assumption.
//
// A Coordinator is single-use. After End it stays Ended; run a new session
// with a new Coordinator.
type Coordinator struct {
	logger *log.Logger
	svc    Service
	tr     Transport
	in     SpeechInput
	out    SpeechOutput

	// audioLevel supplies the level signal attached to submitted responses.
	audioLevel func() float64

	lang string

	cmdMu sync.Mutex // serializes Start/Pause/Resume/End/Toggle/Submit

	mu              sync.Mutex
	state           State
	handle          *Handle
	currentQuestion string
	answered        int
	total           int
	thinking        bool
	micActive       bool
	micWasActive    bool // capture state remembered across pause/resume
	errMsg          string
	startTime       time.Time
	questionStart   time.Time
	elapsed         time.Duration
	tickerStop      chan struct{}
	tickWG          sync.WaitGroup
}

// Config wires a Coordinator.
type Config struct {
	Service   Service
	Transport Transport
	Input     SpeechInput
	Output    SpeechOutput

	// AudioLevel reports the current microphone level in [0,1]. Optional;
	// the default is a placeholder, not real signal analysis.
	AudioLevel func() float64

	// Language for narrated questions. Defaults to "en-US".
	Language string

	Logger *log.Logger
}

// NewCoordinator creates an idle coordinator and registers the transport
// event handlers.
func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	level := cfg.AudioLevel
	if level == nil {
		level = func() float64 { return rand.Float64() }
	}
	lang := cfg.Language
	if lang == "" {
		lang = synth.DefaultLang
	}

	c := &Coordinator{
		logger:     logger,
		svc:        cfg.Service,
		tr:         cfg.Transport,
		in:         cfg.Input,
		out:        cfg.Output,
		audioLevel: level,
		lang:       lang,
		state:      StateIdle,
	}

	c.tr.SetHandlers(transport.Handlers{
		OnConnected:    c.onTransportConnected,
		OnDisconnected: c.onTransportDisconnected,
		OnError:        c.onTransportError,
	})
	return c
}

// Start creates the remote session and connects the audio room. On any
// failure the partially created session is released before the error
// surfaces.
func (c *Coordinator) Start(ctx context.Context, cfg StartConfig) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: cannot start from state %q", state)
	}
	c.state = StateConnecting
	c.startTime = time.Now()
	c.mu.Unlock()

	handle, err := c.svc.StartSession(ctx, cfg)
	if err != nil {
		c.fail(fmt.Sprintf("session start failed: %v", err))
		return fmt.Errorf("start session: %w", err)
	}

	c.mu.Lock()
	c.handle = handle
	c.currentQuestion = handle.FirstQuestion
	c.total = handle.Total
	c.answered = 0
	c.questionStart = time.Now()
	c.mu.Unlock()

	if err := c.tr.Connect(ctx, handle.TransportURL, handle.AccessToken); err != nil {
		// Release the remote session created above before surfacing.
		if endErr := c.svc.EndSession(ctx, handle.SessionID); endErr != nil {
			c.logger.Printf("session: failed to release session %s after connect error: %v", handle.SessionID, endErr)
		}
		c.mu.Lock()
		c.handle = nil
		c.mu.Unlock()
		c.fail(fmt.Sprintf("transport connect failed: %v", err))
		return fmt.Errorf("connect transport: %w", err)
	}

	go c.speakQuestion(handle.FirstQuestion)
	return nil
}

// Pause stops capture and notifies the remote service. Pausing while already
// paused is a no-op: no teardown step runs twice.
func (c *Coordinator) Pause(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case StatePaused:
		c.mu.Unlock()
		return nil
	case StateActive:
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: cannot pause from state %q", state)
	}
	c.micWasActive = c.micActive
	c.elapsed = time.Since(c.startTime)
	c.state = StatePaused
	c.stopTickerLocked()
	handle := c.handle
	c.mu.Unlock()

	c.releaseCapture()
	c.out.Pause()

	if handle != nil {
		if err := c.svc.PauseSession(ctx, handle.SessionID); err != nil {
			// Locally paused regardless; capture is already released.
			c.logger.Printf("session: remote pause failed for %s: %v", handle.SessionID, err)
			return fmt.Errorf("pause session: %w", err)
		}
	}
	return nil
}

// Resume re-acquires capture and resumes the remote session. If
// re-acquisition fails the session moves to Error rather than silently
// staying paused.
func (c *Coordinator) Resume(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case StateActive:
		c.mu.Unlock()
		return nil
	case StatePaused:
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: cannot resume from state %q", state)
	}
	handle := c.handle
	micWasActive := c.micWasActive
	c.mu.Unlock()

	if handle != nil {
		if err := c.svc.ResumeSession(ctx, handle.SessionID); err != nil {
			c.fail(fmt.Sprintf("remote resume failed: %v", err))
			return fmt.Errorf("resume session: %w", err)
		}
	}

	if micWasActive {
		if err := c.acquireCapture(ctx); err != nil {
			c.fail(fmt.Sprintf("capture re-acquisition failed: %v", err))
			return err
		}
	}

	c.out.Resume()

	c.mu.Lock()
	if c.state == StatePaused {
		c.state = StateActive
		c.startTime = time.Now().Add(-c.elapsed)
		c.startTickerLocked()
	}
	c.mu.Unlock()
	return nil
}

// End releases every acquired resource and reaches Ended regardless of
// individual release failures. Ending twice is a no-op.
func (c *Coordinator) End(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	c.teardown(ctx)
	return nil
}

// teardown is the best-effort release protocol shared by End and interview
// completion. Every step runs even when an earlier one fails.
func (c *Coordinator) teardown(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	if c.state == StateActive {
		c.elapsed = time.Since(c.startTime)
	}
	handle := c.handle
	c.handle = nil
	c.state = StateEnded
	c.micActive = false
	c.thinking = false
	c.stopTickerLocked()
	c.mu.Unlock()

	c.out.Stop()
	if err := c.in.StopListening(); err != nil {
		c.logger.Printf("session: stop listening during teardown: %v", err)
	}
	if err := c.tr.StopLocalAudio(); err != nil {
		c.logger.Printf("session: stop local audio during teardown: %v", err)
	}
	if err := c.tr.Disconnect(); err != nil {
		c.logger.Printf("session: disconnect during teardown: %v", err)
	}
	if handle != nil {
		if err := c.svc.EndSession(ctx, handle.SessionID); err != nil {
			c.logger.Printf("session: remote end during teardown: %v", err)
		}
	}
}

// Close ends the session and waits for the elapsed ticker to exit. Safe to
// call multiple times.
func (c *Coordinator) Close() {
	_ = c.End(context.Background())
	c.tickWG.Wait()
}

// ToggleMicrophone starts or stops local audio capture and speech input as
// one unit. They never end up in a mismatched state.
func (c *Coordinator) ToggleMicrophone(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	if c.state != StateActive {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: cannot toggle microphone from state %q", state)
	}
	active := c.micActive
	c.mu.Unlock()

	if active {
		c.releaseCapture()
		return nil
	}
	return c.acquireCapture(ctx)
}

// acquireCapture starts local audio then listening. A listening failure
// rolls the audio track back so the pair stays consistent.
func (c *Coordinator) acquireCapture(ctx context.Context) error {
	if err := c.tr.StartLocalAudio(ctx); err != nil {
		return fmt.Errorf("start local audio: %w", err)
	}
	if err := c.in.StartListening(ctx); err != nil {
		if stopErr := c.tr.StopLocalAudio(); stopErr != nil {
			c.logger.Printf("session: rollback local audio: %v", stopErr)
		}
		return fmt.Errorf("start listening: %w", err)
	}
	c.mu.Lock()
	c.micActive = true
	c.mu.Unlock()
	return nil
}

// releaseCapture stops listening and local audio, logging failures instead
// of aborting, so both are always attempted.
func (c *Coordinator) releaseCapture() {
	if err := c.in.StopListening(); err != nil {
		c.logger.Printf("session: stop listening: %v", err)
	}
	if err := c.tr.StopLocalAudio(); err != nil {
		c.logger.Printf("session: stop local audio: %v", err)
	}
	c.mu.Lock()
	c.micActive = false
	c.mu.Unlock()
}

// SubmitResponse sends the current transcript to the remote service and
// advances the interview. With an empty transcript or no session handle it
// is a no-op, not an error. On failure the transcript is preserved so the
// user's words can be retried.
func (c *Coordinator) SubmitResponse(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	if c.state != StateActive || c.handle == nil {
		c.mu.Unlock()
		return nil
	}
	handle := c.handle
	questionStart := c.questionStart
	micActive := c.micActive
	c.mu.Unlock()

	text := strings.TrimSpace(c.in.Transcript())
	if text == "" {
		return nil
	}

	c.setThinking(true)
	defer c.setThinking(false)

	// Freeze the transcript while the submission is in flight.
	if err := c.in.StopListening(); err != nil {
		c.logger.Printf("session: stop listening before submit: %v", err)
	}

	confidence := c.in.Confidence()
	if confidence == 0 {
		confidence = defaultConfidence
	}
	meta := SubmitMeta{
		AudioLevel: c.audioLevel(),
		DurationMs: int(time.Since(questionStart) / time.Millisecond),
		Confidence: confidence,
	}

	res, err := c.svc.SubmitResponse(ctx, handle.SessionID, text, meta)
	if err != nil {
		// Transcript left intact for retry; the session stays active.
		if micActive {
			c.resumeListening(ctx)
		}
		return fmt.Errorf("submit response: %w", err)
	}

	if res.IsComplete {
		c.teardown(ctx)
		return nil
	}

	c.in.ResetTranscript()
	c.mu.Lock()
	c.currentQuestion = res.NextQuestion
	c.answered = res.Current
	if res.Total > 0 {
		c.total = res.Total
	}
	c.questionStart = time.Now()
	c.mu.Unlock()

	go c.speakQuestion(res.NextQuestion)
	if micActive {
		c.resumeListening(ctx)
	}
	return nil
}

// resumeListening restarts recognition after a submission. A restart failure
// releases the audio track too, so the capture pair never splits.
func (c *Coordinator) resumeListening(ctx context.Context) {
	if err := c.in.StartListening(ctx); err != nil {
		c.logger.Printf("session: restart listening: %v", err)
		if stopErr := c.tr.StopLocalAudio(); stopErr != nil {
			c.logger.Printf("session: release local audio after failed restart: %v", stopErr)
		}
		c.mu.Lock()
		c.micActive = false
		c.mu.Unlock()
	}
}

func (c *Coordinator) setThinking(v bool) {
	c.mu.Lock()
	c.thinking = v
	c.mu.Unlock()
}

// speakQuestion narrates one question. Synthesis errors are informational,
// never session-fatal.
func (c *Coordinator) speakQuestion(text string) {
	if text == "" {
		return
	}
	res := c.out.Speak(context.Background(), text, synth.Options{Lang: c.lang}, synth.Callbacks{})
	if !res.OK && res.Err != "" {
		c.logger.Printf("session: question narration: %s", res.Err)
	}
}

func (c *Coordinator) onTransportConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnecting {
		c.state = StateActive
		c.startTime = time.Now()
		c.startTickerLocked()
	}
}

func (c *Coordinator) onTransportDisconnected() {
	// Connection status is derived from the transport on read; an orderly
	// disconnect carries no state transition of its own.
}

func (c *Coordinator) onTransportError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle, StateEnded, StateError:
		return
	}
	c.state = StateError
	c.errMsg = fmt.Sprintf("transport error: %v", err)
	if !c.startTime.IsZero() {
		c.elapsed = time.Since(c.startTime)
	}
	c.stopTickerLocked()
}

// fail moves the coordinator to Error unless the session already ended.
func (c *Coordinator) fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEnded {
		return
	}
	c.state = StateError
	c.errMsg = msg
	c.stopTickerLocked()
}

func (c *Coordinator) startTickerLocked() {
	if c.tickerStop != nil {
		return
	}
	stop := make(chan struct{})
	c.tickerStop = stop
	c.tickWG.Add(1)
	go c.runTicker(stop)
}

func (c *Coordinator) stopTickerLocked() {
	if c.tickerStop != nil {
		close(c.tickerStop)
		c.tickerStop = nil
	}
}

func (c *Coordinator) runTicker(stop chan struct{}) {
	defer c.tickWG.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.state == StateActive {
				c.elapsed = time.Since(c.startTime)
			}
			c.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// Snapshot is the read-only view the presentation layer renders.
type Snapshot struct {
	State            State
	ConnectionStatus ConnectionStatus
	SessionID        string
	CurrentQuestion  string
	Answered         int
	Total            int
	Transcript       string
	Thinking         bool
	MicActive        bool
	Speaking         bool
	Elapsed          time.Duration
	ErrMsg           string
}

// Snapshot returns a consistent view of the coordinator's state. It never
// mutates anything.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State:           c.state,
		CurrentQuestion: c.currentQuestion,
		Answered:        c.answered,
		Total:           c.total,
		Thinking:        c.thinking,
		MicActive:       c.micActive,
		Elapsed:         c.elapsed,
		ErrMsg:          c.errMsg,
	}
	if c.handle != nil {
		snap.SessionID = c.handle.SessionID
	}
	if c.state == StateActive {
		snap.Elapsed = time.Since(c.startTime)
	}
	c.mu.Unlock()

	snap.ConnectionStatus = deriveConnectionStatus(c.tr.Status())
	snap.Transcript = c.in.Transcript()
	snap.Speaking = c.out.Status().Speaking
	return snap
}
