// Package session contains the voice session coordinator: the single
// authority for interview session lifecycle. It folds asynchronous signals
// from the transport, speech input, and speech output adapters into one
// consistent state and exposes the commands a front end invokes.
package session

import (
	"context"

	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/synth"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/transport"
)

// State is the coordinator's lifecycle state. Exactly one holds at any
// instant.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StatePaused     State = "paused"
	StateEnded      State = "ended"
	StateError      State = "error"
)

// ConnectionStatus is derived from the transport adapter's raw signals with
// priority connecting > connected > error > disconnected.
type ConnectionStatus string

const (
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnConnecting   ConnectionStatus = "connecting"
	ConnConnected    ConnectionStatus = "connected"
	ConnError        ConnectionStatus = "error"
)

func deriveConnectionStatus(st transport.State) ConnectionStatus {
	switch {
	case st.Connecting:
		return ConnConnecting
	case st.Connected:
		return ConnConnected
	case st.Err != nil:
		return ConnError
	default:
		return ConnDisconnected
	}
}

// StartConfig describes the interview to start.
type StartConfig struct {
	ParticipantID string
	Role          string
	QuestionCount int
	Language      string
}

// Handle is the identity and credentials returned by the remote service on
// start. It lives for the session's duration and is discarded on end.
type Handle struct {
	SessionID     string
	TransportURL  string
	RoomName      string
	AccessToken   string
	SessionToken  string
	FirstQuestion string
	Total         int
}

// SubmitMeta carries the auxiliary signals sent with a spoken response.
type SubmitMeta struct {
	AudioLevel float64
	DurationMs int
	Confidence float64
}

// SubmitResult is the remote service's verdict on a submitted response.
type SubmitResult struct {
	IsComplete   bool
	NextQuestion string
	Current      int
	Total        int
}

// Service is the remote interview session service as the coordinator
// consumes it.
type Service interface {
	StartSession(ctx context.Context, cfg StartConfig) (*Handle, error)
	PauseSession(ctx context.Context, sessionID string) error
	ResumeSession(ctx context.Context, sessionID string) error
	EndSession(ctx context.Context, sessionID string) error
	SubmitResponse(ctx context.Context, sessionID, text string, meta SubmitMeta) (*SubmitResult, error)
}

// Transport is the real-time audio room as the coordinator consumes it.
type Transport interface {
	SetHandlers(h transport.Handlers)
	Connect(ctx context.Context, url, token string) error
	Disconnect() error
	StartLocalAudio(ctx context.Context) error
	StopLocalAudio() error
	LocalAudioActive() bool
	Status() transport.State
}

// SpeechInput is the streaming speech recognizer as the coordinator
// consumes it.
type SpeechInput interface {
	Supported() bool
	IsListening() bool
	Transcript() string
	Confidence() float64
	ResetTranscript()
	StartListening(ctx context.Context) error
	StopListening() error
}

// SpeechOutput narrates interviewer questions.
type SpeechOutput interface {
	Speak(ctx context.Context, text string, opts synth.Options, cb synth.Callbacks) synth.Result
	Stop()
	Pause()
	Resume()
	Status() synth.Status
}
