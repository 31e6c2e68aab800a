package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

const (
	elevenLabsAPIURL    = "https://api.elevenlabs.io/v1/text-to-speech"
	elevenLabsVoicesURL = "https://api.elevenlabs.io/v1/voices"

	// defaultVoiceID is Rachel, used when a request carries no voice and
	// the catalog has not loaded yet.
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

// ElevenLabsEngine implements Engine using the ElevenLabs streaming API.
// The voice catalog is fetched in the background after construction and
// refreshed on demand; listeners registered with OnVoicesChanged are
// notified after each successful load.
type ElevenLabsEngine struct {
	apiKey     string
	modelID    string
	httpClient *http.Client
	sink       PlaybackSink
	logger     *log.Logger

	mu        sync.Mutex
	voices    []Voice
	listeners []func()
	cancel    context.CancelFunc // in-flight utterance
	paused    bool
	resumeCh  chan struct{}
}

// ElevenLabsConfig holds configuration for the ElevenLabs engine.
type ElevenLabsConfig struct {
	APIKey     string
	ModelID    string       // e.g. "eleven_flash_v2_5" for low latency
	HTTPClient *http.Client // optional shared client with connection pooling
	Sink       PlaybackSink // where synthesized audio chunks go
}

// NewElevenLabsEngine creates the engine and kicks off the initial voice
// catalog load. Returns nil when no API key is configured, which the
// Speaker treats as an absent capability.
func NewElevenLabsEngine(cfg ElevenLabsConfig, logger *log.Logger) *ElevenLabsEngine {
	if cfg.APIKey == "" {
		return nil
	}
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = "eleven_flash_v2_5"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = DiscardSink{}
	}
	e := &ElevenLabsEngine{
		apiKey:     cfg.APIKey,
		modelID:    modelID,
		httpClient: httpClient,
		sink:       sink,
		logger:     logger,
	}
	go e.loadVoices()
	return e
}

// Voices returns the currently loaded catalog.
func (e *ElevenLabsEngine) Voices() []Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Voice, len(e.voices))
	copy(out, e.voices)
	return out
}

// OnVoicesChanged registers a catalog update listener.
func (e *ElevenLabsEngine) OnVoicesChanged(fn func()) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// voicesResponse is the /v1/voices payload.
type voicesResponse struct {
	Voices []struct {
		VoiceID string            `json:"voice_id"`
		Name    string            `json:"name"`
		Labels  map[string]string `json:"labels"`
	} `json:"voices"`
}

func (e *ElevenLabsEngine) loadVoices() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", elevenLabsVoicesURL, nil)
	if err != nil {
		e.logger.Printf("synth: voice list request: %v", err)
		return
	}
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Printf("synth: voice list fetch: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		e.logger.Printf("synth: voice list error: %s - %s", resp.Status, string(body))
		return
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		e.logger.Printf("synth: voice list decode: %v", err)
		return
	}

	voices := make([]Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		lang := v.Labels["language"]
		if lang == "" {
			lang = "en-US"
		}
		voices = append(voices, Voice{ID: v.VoiceID, Name: v.Name, Lang: lang})
	}

	e.mu.Lock()
	e.voices = voices
	listeners := make([]func(), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// ttsRequest is an ElevenLabs synthesis request.
type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// Speak streams synthesized audio to the playback sink. The first received
// chunk fires Started; stream drain fires Ended; any failure fires Errored.
// Nothing fires after Cancel.
func (e *ElevenLabsEngine) Speak(ctx context.Context, req EngineRequest, events EngineEvents) error {
	voiceID := defaultVoiceID
	if req.Voice != nil && req.Voice.ID != "" {
		voiceID = req.Voice.ID
	}

	url := fmt.Sprintf("%s/%s/stream?output_format=pcm_16000", elevenLabsAPIURL, voiceID)

	body, err := json.Marshal(ttsRequest{
		Text:    req.Text,
		ModelID: e.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           req.Rate,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	speakCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
	e.paused = false
	e.resumeCh = nil
	e.mu.Unlock()

	httpReq, err := http.NewRequestWithContext(speakCtx, "POST", url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	go e.stream(speakCtx, httpReq, events)
	return nil
}

func (e *ElevenLabsEngine) stream(ctx context.Context, httpReq *http.Request, events EngineEvents) {
	fail := func(err error) {
		if ctx.Err() != nil {
			return // cancelled, stay silent
		}
		if events.Errored != nil {
			events.Errored(err)
		}
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		fail(fmt.Errorf("failed to send request: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		fail(fmt.Errorf("ElevenLabs API error: %s - %s", resp.Status, string(respBody)))
		return
	}

	started := false
	buf := make([]byte, 4096)
	for {
		if !e.waitWhilePaused(ctx) {
			return
		}
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if !started {
				started = true
				if events.Started != nil {
					events.Started()
				}
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sinkErr := e.sink.Play(chunk); sinkErr != nil {
				fail(fmt.Errorf("playback: %w", sinkErr))
				return
			}
		}
		if err == io.EOF {
			if ctx.Err() == nil && events.Ended != nil {
				events.Ended()
			}
			return
		}
		if err != nil {
			fail(fmt.Errorf("stream read: %w", err))
			return
		}
	}
}

// waitWhilePaused blocks chunk delivery while paused. Returns false when
// the utterance was cancelled while waiting.
func (e *ElevenLabsEngine) waitWhilePaused(ctx context.Context) bool {
	for {
		e.mu.Lock()
		if !e.paused {
			e.mu.Unlock()
			return ctx.Err() == nil
		}
		if e.resumeCh == nil {
			e.resumeCh = make(chan struct{})
		}
		ch := e.resumeCh
		e.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return false
		}
	}
}

// Cancel stops the in-flight utterance.
func (e *ElevenLabsEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.paused = false
	if e.resumeCh != nil {
		close(e.resumeCh)
		e.resumeCh = nil
	}
}

// Pause suspends chunk delivery to the sink.
func (e *ElevenLabsEngine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Resume releases a paused stream.
func (e *ElevenLabsEngine) Resume() {
	e.mu.Lock()
	e.paused = false
	if e.resumeCh != nil {
		close(e.resumeCh)
		e.resumeCh = nil
	}
	e.mu.Unlock()
}
