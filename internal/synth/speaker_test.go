package synth

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeEngine is a manually driven Engine for speaker tests.
type fakeEngine struct {
	mu        sync.Mutex
	voices    []Voice
	listeners []func()
	requests  []EngineRequest
	events    []EngineEvents
	cancels   int
	pauses    int
	resumes   int

	// speakGate, when set, blocks Speak until the channel is closed.
	speakGate chan struct{}
}

func (f *fakeEngine) Voices() []Voice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voices
}

func (f *fakeEngine) OnVoicesChanged(fn func()) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *fakeEngine) setVoices(voices []Voice) {
	f.mu.Lock()
	f.voices = voices
	listeners := append([]func(){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (f *fakeEngine) Speak(_ context.Context, req EngineRequest, ev EngineEvents) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.events = append(f.events, ev)
	gate := f.speakGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return nil
}

func (f *fakeEngine) Cancel() {
	f.mu.Lock()
	f.cancels++
	f.mu.Unlock()
}

func (f *fakeEngine) Pause() {
	f.mu.Lock()
	f.pauses++
	f.mu.Unlock()
}

func (f *fakeEngine) Resume() {
	f.mu.Lock()
	f.resumes++
	f.mu.Unlock()
}

func (f *fakeEngine) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeEngine) eventsFor(i int) EngineEvents {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[i]
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPreferredVoiceNameHint(t *testing.T) {
	voices := []Voice{
		{ID: "2", Name: "Generic", Lang: "en-GB"},
		{ID: "1", Name: "Microsoft Zira", Lang: "en-US"},
	}
	v := preferredVoice(voices, "en-US")
	if v == nil || v.Name != "Microsoft Zira" {
		t.Fatalf("preferredVoice(en-US) = %v, want Microsoft Zira", v)
	}
}

func TestPreferredVoiceLanguageFallback(t *testing.T) {
	voices := []Voice{
		{ID: "1", Name: "Thomas", Lang: "en-US"},
		{ID: "2", Name: "Daniel", Lang: "en-GB"},
	}
	v := preferredVoice(voices, "en-GB")
	if v == nil || v.Name != "Thomas" {
		// No name hint matches; first primary-subtag match wins.
		t.Fatalf("preferredVoice(en-GB) = %v, want Thomas", v)
	}
}

func TestPreferredVoiceFirstCatalogFallback(t *testing.T) {
	voices := []Voice{
		{ID: "1", Name: "Thomas", Lang: "de-DE"},
		{ID: "2", Name: "Yuki", Lang: "ja-JP"},
	}
	v := preferredVoice(voices, "fr-FR")
	if v == nil || v.Name != "Thomas" {
		t.Fatalf("preferredVoice(fr-FR) = %v, want first catalog voice", v)
	}
}

func TestPreferredVoiceEmptyCatalog(t *testing.T) {
	if v := preferredVoice(nil, "en-US"); v != nil {
		t.Fatalf("preferredVoice on empty catalog = %v, want nil", v)
	}
}

func TestPrimarySubtag(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"en-US", "en"},
		{"EN-us", "en"},
		{"fr-FR", "fr"},
		{"cs", "cs"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := primarySubtag(tt.lang); got != tt.want {
			t.Errorf("primarySubtag(%q) = %q, want %q", tt.lang, got, tt.want)
		}
	}
}

func TestSpeakerCatalogRefreshOnEngineSignal(t *testing.T) {
	eng := &fakeEngine{}
	s := NewSpeaker(eng, testLogger())

	if got := s.Status().VoiceCount; got != 0 {
		t.Fatalf("initial VoiceCount = %d, want 0", got)
	}

	eng.setVoices([]Voice{{ID: "1", Name: "Aria", Lang: "en-US"}})

	if got := s.Status().VoiceCount; got != 1 {
		t.Fatalf("VoiceCount after catalog update = %d, want 1", got)
	}
}

func TestSpeakUnsupported(t *testing.T) {
	s := NewSpeaker(nil, testLogger())

	var errFired atomic.Int32
	res := s.Speak(context.Background(), "hello", Options{}, Callbacks{
		OnError: func(error) { errFired.Add(1) },
	})
	if res.OK {
		t.Error("Speak on unsupported platform should fail")
	}
	if res.Err == "" {
		t.Error("failure result should carry a message")
	}
	if errFired.Load() != 0 {
		t.Error("no engine callbacks should fire when capability is absent")
	}
	if s.Status().Supported {
		t.Error("Status().Supported should be false")
	}
}

func TestSpeakDefaults(t *testing.T) {
	eng := &fakeEngine{}
	eng.voices = []Voice{{ID: "1", Name: "Aria", Lang: "en-US"}}
	s := NewSpeaker(eng, testLogger())

	done := make(chan Result, 1)
	go func() { done <- s.Speak(context.Background(), "hi", Options{}, Callbacks{}) }()

	waitFor(t, func() bool { return eng.requestCount() == 1 })
	eng.eventsFor(0).Ended()
	<-done

	eng.mu.Lock()
	req := eng.requests[0]
	eng.mu.Unlock()

	if req.Rate != DefaultRate || req.Pitch != DefaultPitch || req.Volume != DefaultVolume {
		t.Errorf("defaults = rate %v pitch %v volume %v", req.Rate, req.Pitch, req.Volume)
	}
	if req.Lang != "en-US" {
		t.Errorf("default lang = %q, want en-US", req.Lang)
	}
	if req.Voice == nil || req.Voice.Name != "Aria" {
		t.Errorf("voice = %v, want preferred catalog voice", req.Voice)
	}
}

func TestSpeakSupersedesInFlightUtterance(t *testing.T) {
	eng := &fakeEngine{}
	s := NewSpeaker(eng, testLogger())

	var helloEnds, helloErrs, worldEnds, worldErrs atomic.Int32

	helloRes := make(chan Result, 1)
	go func() {
		helloRes <- s.Speak(context.Background(), "hello", Options{}, Callbacks{
			OnEnd:   func() { helloEnds.Add(1) },
			OnError: func(error) { helloErrs.Add(1) },
		})
	}()
	waitFor(t, func() bool { return eng.requestCount() == 1 })

	worldRes := make(chan Result, 1)
	go func() {
		worldRes <- s.Speak(context.Background(), "world", Options{}, Callbacks{
			OnEnd:   func() { worldEnds.Add(1) },
			OnError: func(error) { worldErrs.Add(1) },
		})
	}()
	waitFor(t, func() bool { return eng.requestCount() == 2 })

	eng.mu.Lock()
	cancels := eng.cancels
	eng.mu.Unlock()
	if cancels != 1 {
		t.Errorf("engine cancels = %d, want 1", cancels)
	}

	// The superseded utterance resolves without firing its callbacks,
	// even if the engine still reports its end afterwards.
	hr := <-helloRes
	if hr.OK {
		t.Error("superseded Speak should not resolve OK")
	}
	eng.eventsFor(0).Ended()

	eng.eventsFor(1).Started()
	eng.eventsFor(1).Ended()
	wr := <-worldRes
	if !wr.OK {
		t.Errorf("world result = %+v, want OK", wr)
	}

	if helloEnds.Load() != 0 || helloErrs.Load() != 0 {
		t.Errorf("hello callbacks fired (%d ends, %d errors), want none",
			helloEnds.Load(), helloErrs.Load())
	}
	if worldEnds.Load() != 1 || worldErrs.Load() != 0 {
		t.Errorf("world callbacks = %d ends, %d errors, want exactly one end",
			worldEnds.Load(), worldErrs.Load())
	}
}

func TestSpeakSerializesEngineCalls(t *testing.T) {
	eng := &fakeEngine{speakGate: make(chan struct{})}
	s := NewSpeaker(eng, testLogger())

	helloRes := make(chan Result, 1)
	go func() { helloRes <- s.Speak(context.Background(), "hello", Options{}, Callbacks{}) }()
	waitFor(t, func() bool { return eng.requestCount() == 1 })

	worldRes := make(chan Result, 1)
	go func() { worldRes <- s.Speak(context.Background(), "world", Options{}, Callbacks{}) }()

	// The second Speak has committed its supersede (visible as the engine
	// cancel) but must not reach the engine while the first call is still
	// inside it.
	waitFor(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return eng.cancels == 1
	})
	if got := eng.requestCount(); got != 1 {
		t.Fatalf("engine requests while first Speak in flight = %d, want 1", got)
	}

	close(eng.speakGate)
	waitFor(t, func() bool { return eng.requestCount() == 2 })

	hr := <-helloRes
	if hr.OK {
		t.Error("superseded Speak should not resolve OK")
	}

	eng.eventsFor(1).Ended()
	wr := <-worldRes
	if !wr.OK {
		t.Errorf("world result = %+v, want OK", wr)
	}

	eng.mu.Lock()
	last := eng.requests[len(eng.requests)-1].Text
	eng.mu.Unlock()
	if last != "world" {
		t.Errorf("last engine request = %q, want world", last)
	}
}

func TestNewSpeakerNilLogger(t *testing.T) {
	eng := &fakeEngine{}
	eng.voices = []Voice{{ID: "1", Name: "Aria", Lang: "en-US"}}

	// The catalog load logs; construction must tolerate a nil logger.
	s := NewSpeaker(eng, nil)

	if got := s.Status().VoiceCount; got != 1 {
		t.Fatalf("VoiceCount = %d, want 1", got)
	}
}

func TestSpeakEngineError(t *testing.T) {
	eng := &fakeEngine{}
	s := NewSpeaker(eng, testLogger())

	var errFired atomic.Int32
	res := make(chan Result, 1)
	go func() {
		res <- s.Speak(context.Background(), "hi", Options{}, Callbacks{
			OnError: func(error) { errFired.Add(1) },
		})
	}()
	waitFor(t, func() bool { return eng.requestCount() == 1 })
	eng.eventsFor(0).Errored(errors.New("synthesis-failed"))

	r := <-res
	if r.OK {
		t.Error("errored utterance should not resolve OK")
	}
	if errFired.Load() != 1 {
		t.Errorf("OnError fired %d times, want 1", errFired.Load())
	}
}

func TestStopWithoutUtteranceIsNoop(t *testing.T) {
	eng := &fakeEngine{}
	s := NewSpeaker(eng, testLogger())

	s.Stop()
	s.Pause()
	s.Resume()

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.cancels != 0 || eng.pauses != 0 || eng.resumes != 0 {
		t.Errorf("engine calls without utterance: cancels=%d pauses=%d resumes=%d",
			eng.cancels, eng.pauses, eng.resumes)
	}
}

func TestPauseResumeForwardedWhileSpeaking(t *testing.T) {
	eng := &fakeEngine{}
	s := NewSpeaker(eng, testLogger())

	res := make(chan Result, 1)
	go func() { res <- s.Speak(context.Background(), "hi", Options{}, Callbacks{}) }()
	waitFor(t, func() bool { return eng.requestCount() == 1 })

	s.Pause()
	if !s.Status().Paused {
		t.Error("Status().Paused should be true after Pause")
	}
	s.Resume()
	s.Stop()
	<-res

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.pauses != 1 || eng.resumes != 1 {
		t.Errorf("pauses=%d resumes=%d, want 1 and 1", eng.pauses, eng.resumes)
	}
}

func TestStopResolvesWaiter(t *testing.T) {
	eng := &fakeEngine{}
	s := NewSpeaker(eng, testLogger())

	res := make(chan Result, 1)
	go func() { res <- s.Speak(context.Background(), "hi", Options{}, Callbacks{}) }()
	waitFor(t, func() bool { return eng.requestCount() == 1 })

	s.Stop()
	r := <-res
	if r.OK {
		t.Errorf("stopped utterance resolved %+v, want failure", r)
	}
	if s.Status().Speaking {
		t.Error("Status().Speaking should be false after Stop")
	}
}
