package interview

import "fmt"

// interviewerSystemPrompt frames the model as a question writer, not a
// conversational agent; the server narrates questions one at a time.
const interviewerSystemPrompt = `You are an experienced hiring interviewer preparing questions for a mock interview.

RULES:
- Questions must be answerable out loud in 1-3 minutes.
- One topic per question; never stack multiple questions into one.
- Prefer behavioral and experience questions over trivia.
- Do not number the questions or add commentary.`

// questionsPrompt asks for a strict JSON array so parsing stays simple.
func questionsPrompt(cfg Config) string {
	count := cfg.QuestionCount
	if count <= 0 {
		count = DefaultQuestionCount
	}
	role := cfg.Role
	if role == "" {
		role = "a professional role"
	}
	return fmt.Sprintf(
		`Write %d interview questions for a candidate applying for %s. Respond ONLY with a JSON array of strings, e.g. ["question one", "question two"].`,
		count, role)
}
