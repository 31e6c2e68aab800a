package stt

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
)

func testRecognizer() *DeepgramRecognizer {
	return NewDeepgramRecognizer(DeepgramConfig{APIKey: "key"}, log.New(io.Discard, "", 0))
}

func TestSupportedRequiresAPIKey(t *testing.T) {
	r := NewDeepgramRecognizer(DeepgramConfig{}, log.New(io.Discard, "", 0))
	if r.Supported() {
		t.Error("recognizer without API key should not be supported")
	}
	if err := r.StartListening(context.Background()); err == nil {
		t.Error("StartListening without API key should fail")
	}
}

func TestConfigDefaults(t *testing.T) {
	r := testRecognizer()
	if r.cfg.Model != "nova-3" {
		t.Errorf("default model = %q, want nova-3", r.cfg.Model)
	}
	if r.cfg.Language != "en-US" {
		t.Errorf("default language = %q, want en-US", r.cfg.Language)
	}
	if r.cfg.Channels != 1 {
		t.Errorf("default channels = %d, want 1", r.cfg.Channels)
	}
}

func TestHandleResultAccumulatesFinals(t *testing.T) {
	r := testRecognizer()

	r.handleResult(Result{Text: "I have five", IsFinal: true, Confidence: 0.91})
	r.handleResult(Result{Text: "years of experience", IsFinal: true, Confidence: 0.88})

	want := "I have five years of experience"
	if got := r.Transcript(); got != want {
		t.Errorf("Transcript() = %q, want %q", got, want)
	}
	if got := r.Confidence(); got != 0.88 {
		t.Errorf("Confidence() = %v, want most recent final 0.88", got)
	}
}

func TestHandleResultIgnoresInterimAndEmpty(t *testing.T) {
	r := testRecognizer()

	r.handleResult(Result{Text: "partial words", IsFinal: false, Confidence: 0.5})
	r.handleResult(Result{Text: "", IsFinal: true, Confidence: 0.9})

	if got := r.Transcript(); got != "" {
		t.Errorf("Transcript() = %q, want empty", got)
	}
}

func TestResetTranscript(t *testing.T) {
	r := testRecognizer()
	r.handleResult(Result{Text: "something", IsFinal: true, Confidence: 0.7})

	r.ResetTranscript()

	if got := r.Transcript(); got != "" {
		t.Errorf("Transcript() after reset = %q, want empty", got)
	}
	if got := r.Confidence(); got != 0 {
		t.Errorf("Confidence() after reset = %v, want 0", got)
	}
}

func TestStopListeningWhenNotListening(t *testing.T) {
	r := testRecognizer()
	if err := r.StopListening(); err != nil {
		t.Errorf("StopListening while idle = %v, want nil", err)
	}
	if r.IsListening() {
		t.Error("IsListening should be false")
	}
}

func TestFeedWhileNotListeningDropsFrame(t *testing.T) {
	r := testRecognizer()
	if err := r.Feed(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Errorf("Feed while not listening = %v, want nil", err)
	}
}

func TestDeepgramResponseDecoding(t *testing.T) {
	payload := `{
		"type": "Results",
		"channel": {"alternatives": [{"transcript": "tell me about yourself", "confidence": 0.97}]},
		"is_final": true
	}`

	var resp deepgramResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Type != "Results" || !resp.IsFinal {
		t.Errorf("decoded type=%q is_final=%v", resp.Type, resp.IsFinal)
	}
	if resp.Channel.Alternatives[0].Transcript != "tell me about yourself" {
		t.Errorf("transcript = %q", resp.Channel.Alternatives[0].Transcript)
	}
}
