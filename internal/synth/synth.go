// Package synth provides text-to-speech narration for interview questions.
//
// The Speaker wraps a synthesis Engine (the platform capability) and adds
// voice selection, default utterance options and the at-most-one-in-flight
// utterance guarantee. Engine implementations deliver audio to a playback
// sink; the Speaker never touches audio bytes itself.
package synth

import "context"

// Voice describes one synthesis voice from the engine's catalog.
type Voice struct {
	ID   string
	Name string
	Lang string // BCP-47 tag, e.g. "en-US"
}

// Options control a single utterance. Zero values fall back to defaults
// (rate 0.9, pitch 1.0, volume 1.0, language "en-US", automatic voice).
type Options struct {
	Voice  *Voice
	Rate   float64
	Pitch  float64
	Volume float64
	Lang   string
}

// Callbacks are best-effort lifecycle notifications for one utterance.
// Each fires at most once. A superseded utterance fires none of them.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
}

// Result is the resolution of a Speak call. It is always returned, never
// raised: engine failures and absent capability both resolve as !OK.
type Result struct {
	OK  bool
	Err string
}

// Status is a read-only snapshot of the speaker.
type Status struct {
	Supported      bool
	Speaking       bool
	Paused         bool
	VoiceCount     int
	PreferredVoice string
}

// EngineRequest is the fully resolved utterance handed to the engine.
type EngineRequest struct {
	Text   string
	Voice  *Voice
	Rate   float64
	Pitch  float64
	Volume float64
	Lang   string
}

// EngineEvents are fired by the engine for the utterance it is playing.
type EngineEvents struct {
	Started func()
	Ended   func()
	Errored func(err error)
}

// Engine is the platform synthesis capability. The voice catalog is
// populated asynchronously; engines signal updates through the callback
// registered with OnVoicesChanged.
type Engine interface {
	// Voices returns the currently loaded voice catalog.
	Voices() []Voice

	// OnVoicesChanged registers a callback invoked whenever the catalog
	// changes. May be called before the first catalog load completes.
	OnVoicesChanged(fn func())

	// Speak starts synthesizing the request and returns once the utterance
	// is underway. Exactly one of events.Ended or events.Errored fires
	// afterwards unless the utterance is cancelled first.
	Speak(ctx context.Context, req EngineRequest, events EngineEvents) error

	// Cancel stops the in-flight utterance, if any. Its events do not fire
	// after Cancel returns.
	Cancel()

	// Pause and Resume control playback of the in-flight utterance.
	Pause()
	Resume()
}

// PlaybackSink receives synthesized audio chunks in order.
type PlaybackSink interface {
	Play(chunk []byte) error
}

// DiscardSink drops all audio. Used when no playout path is wired.
type DiscardSink struct{}

func (DiscardSink) Play([]byte) error { return nil }
