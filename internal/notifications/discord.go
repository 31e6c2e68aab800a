package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Discord is a simple Discord webhook notifier.
type Discord struct {
	webhookURL string
	logger     *log.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger *log.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Color       int           `json:"color,omitempty"`
	Fields      []embedField  `json:"fields,omitempty"`
	Timestamp   string        `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(ctx context.Context, msg discordMessage) {
	if !d.Enabled() {
		return
	}

	go func() {
		body, err := json.Marshal(msg)
		if err != nil {
			d.logger.Printf("discord: failed to marshal message: %v", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewReader(body))
		if err != nil {
			d.logger.Printf("discord: failed to create request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Printf("discord: failed to send webhook: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			d.logger.Printf("discord: webhook returned status %d", resp.StatusCode)
		}
	}()
}

// SessionSummary describes a finished interview session for notification.
type SessionSummary struct {
	SessionID      string
	Role           string
	Status         string
	Answered       int
	Total          int
	DurationSec    int
	TotalCostCents int
}

// NotifySessionFinished sends a summary when an interview session ends.
func (d *Discord) NotifySessionFinished(ctx context.Context, s SessionSummary) {
	color := 0x00FF00 // Green for completed
	if s.Status != "completed" {
		color = 0xFFA500 // Orange for abandoned or reaped
	}
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Interview session finished",
			Description: fmt.Sprintf("Session `%s` ended with status **%s**", s.SessionID, s.Status),
			Color:       color,
			Fields: []embedField{
				{Name: "Role", Value: s.Role, Inline: true},
				{Name: "Questions", Value: fmt.Sprintf("%d/%d", s.Answered, s.Total), Inline: true},
				{Name: "Duration", Value: fmt.Sprintf("%dm %ds", s.DurationSec/60, s.DurationSec%60), Inline: true},
				{Name: "Est. cost", Value: fmt.Sprintf("%d.%02d USD", s.TotalCostCents/100, s.TotalCostCents%100), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}

// NotifyStaleSessionsReaped reports how many abandoned sessions were closed
// by the background reaper.
func (d *Discord) NotifyStaleSessionsReaped(ctx context.Context, count int) {
	if count == 0 {
		return
	}
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Stale sessions reaped",
			Description: fmt.Sprintf("Closed %d abandoned interview sessions", count),
			Color:       0xFF0000, // Red
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}
