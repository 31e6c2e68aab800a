package synth

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Default utterance options.
const (
	DefaultRate   = 0.9
	DefaultPitch  = 1.0
	DefaultVolume = 1.0
	DefaultLang   = "en-US"
)

// voiceNameHints are name fragments that mark the preferred interviewer
// voices across common platform catalogs. Matched case-insensitively.
var voiceNameHints = []string{
	"female", "woman",
	"zira", "hazel", "aria", "jenny",
	"samantha", "karen", "victoria", "moira", "tessa", "fiona", "veena", "susan",
}

// Speaker narrates text through a synthesis Engine, enforcing the
// at-most-one-in-flight utterance invariant: a new Speak supersedes the
// prior utterance, whose callbacks then never fire.
type Speaker struct {
	engine    Engine
	logger    *log.Logger
	supported bool

	engineMu sync.Mutex // serializes engine.Speak calls

	mu      sync.Mutex
	voices  []Voice
	current *utterance
	paused  bool
}

type utterance struct {
	text       string
	cb         Callbacks
	superseded bool
	started    bool
	startOnce  sync.Once
	doneOnce   sync.Once
	done       chan Result
}

// NewSpeaker creates a speaker over the given engine. A nil engine means
// the platform lacks speech synthesis; the absence is permanent and every
// Speak resolves immediately with a failure result.
func NewSpeaker(engine Engine, logger *log.Logger) *Speaker {
	if logger == nil {
		logger = log.Default()
	}
	s := &Speaker{
		engine:    engine,
		logger:    logger,
		supported: engine != nil,
	}
	if s.supported {
		engine.OnVoicesChanged(s.refreshVoices)
		s.refreshVoices()
	}
	return s
}

// refreshVoices re-reads the engine catalog. Called once at construction
// and again whenever the engine signals an update.
func (s *Speaker) refreshVoices() {
	voices := s.engine.Voices()
	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()
	if len(voices) > 0 {
		s.logger.Printf("synth: voice catalog loaded (%d voices)", len(voices))
	}
}

// Voices returns a copy of the current voice catalog.
func (s *Speaker) Voices() []Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Voice, len(s.voices))
	copy(out, s.voices)
	return out
}

// PreferredVoice selects a voice for the requested language tag:
// first a primary-subtag match whose name carries one of the known name
// hints, then any primary-subtag match, then the first catalog entry.
// Returns nil when the catalog is empty.
func (s *Speaker) PreferredVoice(lang string) *Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return preferredVoice(s.voices, lang)
}

func preferredVoice(voices []Voice, lang string) *Voice {
	if len(voices) == 0 {
		return nil
	}
	subtag := primarySubtag(lang)

	for i := range voices {
		if !langMatches(voices[i].Lang, subtag) {
			continue
		}
		name := strings.ToLower(voices[i].Name)
		for _, hint := range voiceNameHints {
			if strings.Contains(name, hint) {
				return &voices[i]
			}
		}
	}
	for i := range voices {
		if langMatches(voices[i].Lang, subtag) {
			return &voices[i]
		}
	}
	return &voices[0]
}

// primarySubtag returns the text before the first hyphen, lowercased.
func primarySubtag(lang string) string {
	lang = strings.ToLower(lang)
	if i := strings.IndexByte(lang, '-'); i >= 0 {
		return lang[:i]
	}
	return lang
}

func langMatches(voiceLang, subtag string) bool {
	return subtag != "" && strings.HasPrefix(strings.ToLower(voiceLang), subtag)
}

// Speak narrates text, cancelling any in-flight utterance first. It blocks
// until the engine reports the utterance ended or failed and resolves with
// a Result either way. The superseded utterance's Speak call resolves with
// a failure result and its callbacks are dropped.
func (s *Speaker) Speak(ctx context.Context, text string, opts Options, cb Callbacks) Result {
	if !s.supported {
		return Result{Err: "speech synthesis not available"}
	}

	req := EngineRequest{
		Text:   text,
		Voice:  opts.Voice,
		Rate:   opts.Rate,
		Pitch:  opts.Pitch,
		Volume: opts.Volume,
		Lang:   opts.Lang,
	}
	if req.Rate == 0 {
		req.Rate = DefaultRate
	}
	if req.Pitch == 0 {
		req.Pitch = DefaultPitch
	}
	if req.Volume == 0 {
		req.Volume = DefaultVolume
	}
	if req.Lang == "" {
		req.Lang = DefaultLang
	}

	u := &utterance{text: text, cb: cb, done: make(chan Result, 1)}

	s.mu.Lock()
	s.cancelCurrentLocked("superseded")
	if req.Voice == nil {
		req.Voice = preferredVoice(s.voices, req.Lang)
	}
	s.current = u
	s.paused = false
	s.mu.Unlock()

	// Engine calls run one at a time. A concurrent Speak may have
	// superseded this utterance after the commit above; its waiter is
	// already resolved, so the engine must never see it.
	s.engineMu.Lock()
	s.mu.Lock()
	superseded := u.superseded
	s.mu.Unlock()
	if superseded {
		s.engineMu.Unlock()
		return <-u.done
	}
	err := s.engine.Speak(ctx, req, EngineEvents{
		Started: func() { s.utteranceStarted(u) },
		Ended:   func() { s.utteranceEnded(u) },
		Errored: func(err error) { s.utteranceErrored(u, err) },
	})
	s.engineMu.Unlock()
	if err != nil {
		s.utteranceErrored(u, err)
	}

	select {
	case res := <-u.done:
		return res
	case <-ctx.Done():
		s.Stop()
		return Result{Err: ctx.Err().Error()}
	}
}

// cancelCurrentLocked supersedes the in-flight utterance. Caller holds mu.
func (s *Speaker) cancelCurrentLocked(reason string) {
	u := s.current
	if u == nil {
		return
	}
	u.superseded = true
	s.current = nil
	s.paused = false
	s.engine.Cancel()
	// Resolve the superseded waiter without firing its callbacks.
	u.doneOnce.Do(func() { u.done <- Result{Err: reason} })
}

func (s *Speaker) utteranceStarted(u *utterance) {
	s.mu.Lock()
	if u.superseded {
		s.mu.Unlock()
		return
	}
	u.started = true
	s.mu.Unlock()
	u.startOnce.Do(func() {
		if u.cb.OnStart != nil {
			u.cb.OnStart()
		}
	})
}

func (s *Speaker) utteranceEnded(u *utterance) {
	s.mu.Lock()
	if u.superseded {
		s.mu.Unlock()
		return
	}
	if s.current == u {
		s.current = nil
		s.paused = false
	}
	s.mu.Unlock()
	u.doneOnce.Do(func() {
		if u.cb.OnEnd != nil {
			u.cb.OnEnd()
		}
		u.done <- Result{OK: true}
	})
}

func (s *Speaker) utteranceErrored(u *utterance, err error) {
	s.mu.Lock()
	if u.superseded {
		s.mu.Unlock()
		return
	}
	if s.current == u {
		s.current = nil
		s.paused = false
	}
	s.mu.Unlock()
	u.doneOnce.Do(func() {
		if u.cb.OnError != nil {
			u.cb.OnError(err)
		}
		u.done <- Result{Err: fmt.Sprintf("synthesis error: %v", err)}
	})
}

// Stop cancels the in-flight utterance. No-op when nothing is playing.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.supported || s.current == nil {
		return
	}
	s.cancelCurrentLocked("stopped")
}

// Pause suspends playback of the in-flight utterance, if any.
func (s *Speaker) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.supported || s.current == nil || s.paused {
		return
	}
	s.paused = true
	s.engine.Pause()
}

// Resume continues a paused utterance, if any.
func (s *Speaker) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.supported || s.current == nil || !s.paused {
		return
	}
	s.paused = false
	s.engine.Resume()
}

// Status returns a read-only snapshot without mutating any state.
func (s *Speaker) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Supported:  s.supported,
		Speaking:   s.current != nil,
		Paused:     s.paused,
		VoiceCount: len(s.voices),
	}
	if v := preferredVoice(s.voices, DefaultLang); v != nil {
		st.PreferredVoice = v.Name
	}
	return st
}
