package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// DeepgramConfig holds configuration for the Deepgram recognizer.
type DeepgramConfig struct {
	APIKey      string
	Language    string // e.g. "en-US"
	Model       string // e.g. "nova-3"
	SampleRate  int    // e.g. 48000 for room audio
	Encoding    string // e.g. "opus"
	Channels    int
	Punctuate   bool
	Endpointing int // milliseconds of silence for endpointing, 0 for default
}

// DeepgramRecognizer is a speech input adapter backed by Deepgram's
// streaming API. Each listening interval opens one websocket; audio frames
// are forwarded with Feed and final results accumulate in the transcript.
type DeepgramRecognizer struct {
	cfg    DeepgramConfig
	logger *log.Logger

	mu         sync.Mutex
	stream     *deepgramStream
	transcript strings.Builder
	confidence float64
}

// deepgramStream is the connection for one listening interval.
type deepgramStream struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	writeMu   sync.Mutex
}

// NewDeepgramRecognizer creates a recognizer. The capability check happens
// here: a missing API key means speech input is not supported for the
// recognizer's lifetime.
func NewDeepgramRecognizer(cfg DeepgramConfig, logger *log.Logger) *DeepgramRecognizer {
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &DeepgramRecognizer{cfg: cfg, logger: logger}
}

// Supported reports whether speech input is available. Detected once from
// configuration, never re-probed.
func (r *DeepgramRecognizer) Supported() bool {
	return r.cfg.APIKey != ""
}

// IsListening reports whether a listening interval is open.
func (r *DeepgramRecognizer) IsListening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

// Transcript returns the accumulated final transcript.
func (r *DeepgramRecognizer) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.String()
}

// Confidence returns the confidence of the most recent final result.
func (r *DeepgramRecognizer) Confidence() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confidence
}

// ResetTranscript clears the accumulated transcript.
func (r *DeepgramRecognizer) ResetTranscript() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript.Reset()
	r.confidence = 0
}

// StartListening opens a streaming connection. Calling it while already
// listening is a no-op.
func (r *DeepgramRecognizer) StartListening(ctx context.Context) error {
	if !r.Supported() {
		return fmt.Errorf("speech recognition not available")
	}

	r.mu.Lock()
	if r.stream != nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	url := fmt.Sprintf("%s?model=%s&language=%s&channels=%d&punctuate=%t",
		deepgramWSURL, r.cfg.Model, r.cfg.Language, r.cfg.Channels, r.cfg.Punctuate)
	if r.cfg.Encoding != "" {
		url += fmt.Sprintf("&encoding=%s&sample_rate=%d", r.cfg.Encoding, r.cfg.SampleRate)
	}
	if r.cfg.Endpointing > 0 {
		url += fmt.Sprintf("&endpointing=%d", r.cfg.Endpointing)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	s := &deepgramStream{
		conn: conn,
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.stream = s
	r.mu.Unlock()

	s.wg.Add(1)
	go r.readLoop(s)
	return nil
}

// StopListening closes the streaming connection. The transcript is kept.
// Safe to call when not listening.
func (r *DeepgramRecognizer) StopListening() error {
	r.mu.Lock()
	s := r.stream
	r.stream = nil
	r.mu.Unlock()

	if s == nil {
		return nil
	}

	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "CloseStream"}`))
		s.writeMu.Unlock()

		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

// Feed forwards one audio frame to the recognizer. Frames arriving while
// not listening are dropped silently.
func (r *DeepgramRecognizer) Feed(_ context.Context, audio []byte) error {
	r.mu.Lock()
	s := r.stream
	r.mu.Unlock()

	if s == nil {
		return nil
	}

	select {
	case <-s.done:
		return nil
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// deepgramResponse is a Deepgram websocket response.
type deepgramResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

func (r *DeepgramRecognizer) readLoop(s *deepgramStream) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				r.logger.Printf("stt: read error: %v", err)
			}
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			r.logger.Printf("stt: failed to parse response: %v", err)
			continue
		}
		if resp.Type != "Results" {
			continue
		}

		var result Result
		if len(resp.Channel.Alternatives) > 0 {
			alt := resp.Channel.Alternatives[0]
			result = Result{Text: alt.Transcript, Confidence: alt.Confidence, IsFinal: resp.IsFinal}
		}
		r.handleResult(result)
	}
}

// handleResult folds one streaming result into the transcript. Interim
// results are dropped; final segments append separated by a space.
func (r *DeepgramRecognizer) handleResult(res Result) {
	if res.Text == "" || !res.IsFinal {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transcript.Len() > 0 {
		r.transcript.WriteString(" ")
	}
	r.transcript.WriteString(res.Text)
	r.confidence = res.Confidence
}
