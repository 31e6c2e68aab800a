// Package transport connects a practice session to its real-time audio room.
//
// The adapter owns two resources for the session's duration: the room
// connection and the local audio capture track. Connection events arrive
// asynchronously through Handlers; the session coordinator folds the raw
// State signals into one connection status.
package transport

import "context"

// Handlers receive asynchronous room events. All fields are optional.
type Handlers struct {
	OnConnected    func()
	OnDisconnected func()
	OnError        func(err error)
}

// State exposes the adapter's raw connection signals.
type State struct {
	Connecting bool
	Connected  bool
	Err        error
}

// FrameSource supplies encoded local audio frames from the capture device
// (e.g. 20ms opus packets). Start may be called again after Stop.
type FrameSource interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
}

// FrameSink observes local audio frames as they are published, letting the
// caller tee microphone audio into speech recognition.
type FrameSink func(frame []byte)
