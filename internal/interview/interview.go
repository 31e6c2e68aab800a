// Package interview owns question generation and interview progression.
package interview

import (
	"context"
	"strings"
)

// Config describes one practice interview.
type Config struct {
	Role          string // target role, e.g. "backend engineer"
	QuestionCount int
	Language      string // BCP-47 tag for narration, default "en-US"
}

// Progress is the position within an interview's question list.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Percentage returns progress as 0-100, clamped.
func (p Progress) Percentage() int {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Current * 100 / p.Total
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// QuestionSource produces the ordered question list for a session.
type QuestionSource interface {
	GenerateQuestions(ctx context.Context, cfg Config) ([]string, error)
}

// DefaultQuestionCount is used when a session asks for zero questions.
const DefaultQuestionCount = 5

// genericQuestions cover any role when no role-specific bank matches.
var genericQuestions = []string{
	"Tell me about yourself and your background.",
	"Why are you interested in this role?",
	"Tell me about a challenge you faced and how you handled it.",
	"What do you consider your greatest professional strength?",
	"Describe a time you disagreed with a teammate. What did you do?",
	"Where do you see yourself in five years?",
	"Tell me about a project you are particularly proud of.",
	"How do you handle feedback on your work?",
}

// roleQuestions hold role-specific openers prepended to the generic set.
var roleQuestions = map[string][]string{
	"software engineer": {
		"Walk me through a system you designed. What trade-offs did you make?",
		"Tell me about the hardest bug you ever tracked down.",
		"How do you decide when code is ready to ship?",
	},
	"product manager": {
		"How do you decide what to build next?",
		"Tell me about a product decision you got wrong.",
		"How do you handle conflicting stakeholder priorities?",
	},
	"data scientist": {
		"Walk me through a model you took from idea to production.",
		"How do you validate that an analysis is trustworthy?",
	},
}

// StaticBank is the fallback question source: a fixed bank keyed by role.
type StaticBank struct{}

// GenerateQuestions returns cfg.QuestionCount questions, role-specific
// first, padded from the generic bank. Never returns an error.
func (StaticBank) GenerateQuestions(_ context.Context, cfg Config) ([]string, error) {
	count := cfg.QuestionCount
	if count <= 0 {
		count = DefaultQuestionCount
	}

	var out []string
	if specific, ok := roleQuestions[strings.ToLower(strings.TrimSpace(cfg.Role))]; ok {
		out = append(out, specific...)
	}
	for _, q := range genericQuestions {
		if len(out) >= count {
			break
		}
		out = append(out, q)
	}
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}
