package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const frameDuration = 20 * time.Millisecond

// LiveKitRoom is the real-time transport adapter backed by a LiveKit room.
// The room connection and the published microphone track are singly owned
// here; callers go through Connect/Disconnect and Start/StopLocalAudio.
type LiveKitRoom struct {
	logger *log.Logger
	source FrameSource
	sink   FrameSink

	mu           sync.Mutex
	room         *lksdk.Room
	handlers     Handlers
	connecting   bool
	connected    bool
	lastErr      error
	localSID     string
	localTrack   *lksdk.LocalSampleTrack
	captureStop  context.CancelFunc
	captureWG    sync.WaitGroup
	remoteTracks []string
}

// NewLiveKitRoom creates the adapter. source supplies microphone frames
// when local audio is started; sink, if non-nil, observes each published
// frame (the speech recognizer tap).
func NewLiveKitRoom(source FrameSource, sink FrameSink, logger *log.Logger) *LiveKitRoom {
	return &LiveKitRoom{logger: logger, source: source, sink: sink}
}

// SetHandlers registers the event handlers. Must be called before Connect.
func (r *LiveKitRoom) SetHandlers(h Handlers) {
	r.mu.Lock()
	r.handlers = h
	r.mu.Unlock()
}

// Connect joins the room at url with the given access token. OnConnected
// fires once the join completes; later disconnects and errors arrive via
// the registered handlers.
func (r *LiveKitRoom) Connect(_ context.Context, url, token string) error {
	r.mu.Lock()
	if r.room != nil {
		r.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	r.connecting = true
	r.lastErr = nil
	h := r.handlers
	r.mu.Unlock()

	callback := &lksdk.RoomCallback{
		OnDisconnected: func() {
			r.mu.Lock()
			r.connected = false
			r.mu.Unlock()
			if h.OnDisconnected != nil {
				h.OnDisconnected()
			}
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed:   r.onTrackSubscribed,
			OnTrackUnsubscribed: r.onTrackUnsubscribed,
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(url, token, callback)
	if err != nil {
		r.mu.Lock()
		r.connecting = false
		r.lastErr = err
		r.mu.Unlock()
		if h.OnError != nil {
			h.OnError(err)
		}
		return fmt.Errorf("failed to join room: %w", err)
	}

	r.mu.Lock()
	r.room = room
	r.connecting = false
	r.connected = true
	r.mu.Unlock()

	r.logger.Printf("transport: joined room %s", room.Name())
	if h.OnConnected != nil {
		h.OnConnected()
	}
	return nil
}

// Disconnect leaves the room, stopping local audio first. Safe to call
// repeatedly.
func (r *LiveKitRoom) Disconnect() error {
	_ = r.StopLocalAudio()

	r.mu.Lock()
	room := r.room
	r.room = nil
	r.connected = false
	r.connecting = false
	r.remoteTracks = nil
	r.mu.Unlock()

	if room != nil {
		room.Disconnect()
		r.logger.Printf("transport: left room")
	}
	return nil
}

// StartLocalAudio acquires the capture source and publishes a microphone
// track into the room. No-op when already active.
func (r *LiveKitRoom) StartLocalAudio(ctx context.Context) error {
	r.mu.Lock()
	if r.localTrack != nil {
		r.mu.Unlock()
		return nil
	}
	room := r.room
	r.mu.Unlock()

	if room == nil {
		return fmt.Errorf("not connected")
	}
	if r.source == nil {
		return fmt.Errorf("no capture source wired")
	}

	frames, err := r.source.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  1,
	})
	if err != nil {
		_ = r.source.Stop()
		return fmt.Errorf("failed to create local track: %w", err)
	}

	pub, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "microphone",
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		_ = r.source.Stop()
		return fmt.Errorf("failed to publish track: %w", err)
	}

	captureCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.localTrack = track
	r.localSID = pub.SID()
	r.captureStop = cancel
	r.mu.Unlock()

	r.captureWG.Add(1)
	go r.pumpFrames(captureCtx, track, frames)

	r.logger.Printf("transport: local audio started")
	return nil
}

// pumpFrames writes capture frames into the published track and tees them
// to the recognizer sink.
func (r *LiveKitRoom) pumpFrames(ctx context.Context, track *lksdk.LocalSampleTrack, frames <-chan []byte) {
	defer r.captureWG.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}, nil); err != nil {
				r.logger.Printf("transport: write sample: %v", err)
			}
			if r.sink != nil {
				r.sink(frame)
			}
		}
	}
}

// StopLocalAudio releases the capture source and unpublishes the track.
// Safe to call when inactive.
func (r *LiveKitRoom) StopLocalAudio() error {
	r.mu.Lock()
	track := r.localTrack
	sid := r.localSID
	cancel := r.captureStop
	room := r.room
	r.localTrack = nil
	r.localSID = ""
	r.captureStop = nil
	r.mu.Unlock()

	if track == nil {
		return nil
	}

	if cancel != nil {
		cancel()
	}
	r.captureWG.Wait()

	if room != nil && sid != "" {
		if err := room.LocalParticipant.UnpublishTrack(sid); err != nil {
			r.logger.Printf("transport: unpublish track: %v", err)
		}
	}
	if r.source != nil {
		if err := r.source.Stop(); err != nil {
			r.logger.Printf("transport: stop capture: %v", err)
		}
	}

	r.logger.Printf("transport: local audio stopped")
	return nil
}

// LocalAudioActive reports whether the microphone track is published.
func (r *LiveKitRoom) LocalAudioActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localTrack != nil
}

// RemoteAudioTracks returns the subscribed remote audio track IDs in
// subscription order.
func (r *LiveKitRoom) RemoteAudioTracks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.remoteTracks))
	copy(out, r.remoteTracks)
	return out
}

// Status returns the raw connection signals.
func (r *LiveKitRoom) Status() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{Connecting: r.connecting, Connected: r.connected, Err: r.lastErr}
}

func (r *LiveKitRoom) onTrackSubscribed(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	r.mu.Lock()
	r.remoteTracks = append(r.remoteTracks, track.ID())
	r.mu.Unlock()
	r.logger.Printf("transport: subscribed to audio track %s from %s", track.ID(), rp.Identity())
}

func (r *LiveKitRoom) onTrackUnsubscribed(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	r.mu.Lock()
	for i, id := range r.remoteTracks {
		if id == track.ID() {
			r.remoteTracks = append(r.remoteTracks[:i], r.remoteTracks[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	r.logger.Printf("transport: track %s from %s unsubscribed", track.ID(), rp.Identity())
}
