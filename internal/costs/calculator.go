// Package costs provides cost calculation for API usage.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// These are based on 2026 market rates and can be overridden via environment variables.
var (
	// LiveKitCentsPerMinute is the cost per participant minute for LiveKit Cloud rooms.
	// Default: $0.005/min = 0.5 cents/min
	LiveKitCentsPerMinute = getEnvFloat("COST_LIVEKIT_CENTS_PER_MIN", 0.5)

	// DeepgramCentsPerMinute is the cost per minute for Deepgram Nova-3 streaming STT.
	// Default: $0.0077/min = 0.77 cents/min
	DeepgramCentsPerMinute = getEnvFloat("COST_DEEPGRAM_CENTS_PER_MIN", 0.77)

	// OpenAICentsPerThousandInputTokens is the cost per 1K input tokens for GPT-4o-mini.
	// Default: $0.15/1M = $0.00015/1K = 0.015 cents/1K tokens
	OpenAICentsPerThousandInputTokens = getEnvFloat("COST_OPENAI_INPUT_CENTS_PER_1K", 0.015)

	// OpenAICentsPerThousandOutputTokens is the cost per 1K output tokens for GPT-4o-mini.
	// Default: $0.60/1M = $0.0006/1K = 0.06 cents/1K tokens
	OpenAICentsPerThousandOutputTokens = getEnvFloat("COST_OPENAI_OUTPUT_CENTS_PER_1K", 0.06)

	// ElevenLabsCentsPerThousandChars is the cost per 1K characters for ElevenLabs TTS.
	// Default: $0.18/1K chars = 18 cents/1K chars
	ElevenLabsCentsPerThousandChars = getEnvFloat("COST_ELEVENLABS_CENTS_PER_1K_CHARS", 18.0)
)

// SessionMetrics contains the raw metrics from an interview session used for
// cost calculation.
type SessionMetrics struct {
	SessionDurationSeconds int // Total room time (for LiveKit billing)
	STTDurationSeconds     int // Audio processed by STT (may differ from session duration)
	LLMInputTokens         int // Tokens sent to LLM for question generation
	LLMOutputTokens        int // Tokens received from LLM
	TTSCharacters          int // Characters synthesized for question playback
}

// SessionCosts contains the calculated costs for a session in cents.
type SessionCosts struct {
	TransportCostCents int
	STTCostCents       int
	LLMCostCents       int
	TTSCostCents       int
	TotalCostCents     int
}

// CalculateSessionCosts computes the costs for a session based on usage metrics.
func CalculateSessionCosts(m SessionMetrics) SessionCosts {
	// Convert seconds to minutes for per-minute billing
	roomMinutes := float64(m.SessionDurationSeconds) / 60.0
	sttMinutes := float64(m.STTDurationSeconds) / 60.0

	transportCents := roomMinutes * LiveKitCentsPerMinute
	sttCents := sttMinutes * DeepgramCentsPerMinute

	// LLM costs: per 1K tokens
	llmInputCents := (float64(m.LLMInputTokens) / 1000.0) * OpenAICentsPerThousandInputTokens
	llmOutputCents := (float64(m.LLMOutputTokens) / 1000.0) * OpenAICentsPerThousandOutputTokens
	llmCents := llmInputCents + llmOutputCents

	// TTS costs: per 1K characters
	ttsCents := (float64(m.TTSCharacters) / 1000.0) * ElevenLabsCentsPerThousandChars

	// Round to nearest cent (we store as integers)
	costs := SessionCosts{
		TransportCostCents: roundToInt(transportCents),
		STTCostCents:       roundToInt(sttCents),
		LLMCostCents:       roundToInt(llmCents),
		TTSCostCents:       roundToInt(ttsCents),
	}
	costs.TotalCostCents = costs.TransportCostCents + costs.STTCostCents + costs.LLMCostCents + costs.TTSCostCents

	return costs
}

// EstimateTokens gives a rough token count for a piece of prompt or completion
// text of the given length. Per-session token usage is not persisted, so cost
// reporting falls back to this heuristic of ~4 characters per token.
func EstimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	n := chars / 4
	if n == 0 {
		n = 1
	}
	return n
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
