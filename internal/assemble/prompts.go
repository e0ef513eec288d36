package assemble

import (
	"fmt"
	"strings"

	"github.com/roasbeef/draftsmith/internal/intent"
)

// intentInstruction tailors the drafting instructions to the intent.
func intentInstruction(label intent.Intent) string {
	switch label {
	case intent.IntentFollowUp:
		return "Write a follow-up email continuing the " +
			"conversation. Provide updates, additional " +
			"information, or move the discussion forward."
	case intent.IntentReminder:
		return "Write a gentle reminder about pending items or " +
			"unanswered questions. Be polite and professional, " +
			"not pushy."
	case intent.IntentInquiry:
		return "Write an email asking for information, " +
			"clarification, or updates. Be specific about what " +
			"you need."
	default:
		return "Write a direct, responsive reply to the most " +
			"recent email in the thread. Address their " +
			"questions or points clearly."
	}
}

// SystemPrompt renders the generation system prompt for a thread draft.
func (p PromptPayload) SystemPrompt() string {
	return fmt.Sprintf(`You are a professional email writer with expertise in business communication.

TASK: Generate an email based on the conversation thread provided.

TONE: %s

INTENT: %s
%s

IMPORTANT:
- Write in a %s tone
- Reference relevant parts of the conversation naturally
- Keep it concise and focused
- Include appropriate greeting and closing
- Do not make up any PII
- Use proper email etiquette

Email Format:
Subject: [Clear subject line]

[Email body with greeting, content, and closing]`,
		p.Tone, p.Intent, intentInstruction(p.Intent), p.Tone)
}

// UserPrompt renders the generation user prompt around the excerpt.
func (p PromptPayload) UserPrompt() string {
	return fmt.Sprintf(`Generate an email based on this conversation thread:

%s

Email Goal: %s

Intent: %s

Write a complete email with subject and body that fulfills the user's goal.`,
		p.Excerpt, p.Goal, p.Intent)
}

// ConstructionStrings lists the literal strings fed into prompt
// construction. A candidate draft whose body is byte-identical to any of
// them is a prompt echo, not an email.
func (p PromptPayload) ConstructionStrings() []string {
	return []string{
		p.Excerpt,
		p.Goal,
		p.SystemPrompt(),
		p.UserPrompt(),
	}
}

// NewEmailPayload is the assembled context for an email written from
// scratch, without a backing thread.
type NewEmailPayload struct {
	Recipient string
	Goal      string
	Tone      string
}

// AssembleNewEmail resolves defaults for a from-scratch draft.
func AssembleNewEmail(recipient, goal, tone string) NewEmailPayload {
	tone = strings.TrimSpace(tone)
	if tone == "" {
		tone = DefaultTone
	}

	return NewEmailPayload{
		Recipient: recipient,
		Goal:      strings.TrimSpace(goal),
		Tone:      tone,
	}
}

// SystemPrompt renders the system prompt for a from-scratch draft.
func (p NewEmailPayload) SystemPrompt() string {
	return fmt.Sprintf(`You are a professional email writer with expertise in business communication.

TASK: Write a new email from scratch based on the user's goal.

TONE: %s

IMPORTANT:
- Write in a %s tone
- Stay focused on the user's stated goal
- Keep it concise and focused
- Include appropriate greeting and closing
- Do not make up any PII
- Use proper email etiquette

Email Format:
Subject: [Clear subject line]

[Email body with greeting, content, and closing]`, p.Tone, p.Tone)
}

// UserPrompt renders the user prompt for a from-scratch draft.
func (p NewEmailPayload) UserPrompt() string {
	return fmt.Sprintf(`Write a new email to %s with the following goal:

%s

Tone: %s`, p.Recipient, p.Goal, p.Tone)
}

// ConstructionStrings mirrors PromptPayload.ConstructionStrings for
// echo detection on from-scratch drafts.
func (p NewEmailPayload) ConstructionStrings() []string {
	return []string{
		p.Goal,
		p.SystemPrompt(),
		p.UserPrompt(),
	}
}

// RetryInstruction is appended to the user prompt on retry attempts. It
// tightens the format demand without altering the thread context.
const RetryInstruction = "\n\nYour previous answer was unusable. You " +
	"MUST return a non-empty subject line starting with \"Subject:\" " +
	"followed by a non-empty email body."
