package assemble

import (
	"fmt"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/draftsmith/internal/intent"
	"github.com/roasbeef/draftsmith/internal/thread"
)

const (
	// DefaultBudget is the maximum size of the rendered thread excerpt
	// in characters.
	DefaultBudget = 4000

	// bodyCap bounds each message body inside the excerpt.
	bodyCap = 500

	// DefaultTone is used when the caller does not specify one.
	DefaultTone = "professional"

	// goalSnippetCap bounds the last-message snippet used for goal
	// synthesis.
	goalSnippetCap = 80
)

// Params are the inputs to Assemble.
type Params struct {
	Thread thread.Thread

	Intent intent.Intent

	// EmailGoal is the caller's stated goal, possibly empty.
	EmailGoal string

	// Tone is the requested writing tone, defaulted when empty.
	Tone string

	// SelectedIndex optionally marks one message as the focus of the
	// draft.
	SelectedIndex fn.Option[int]

	// Budget overrides DefaultBudget when positive.
	Budget int
}

// PromptPayload is the assembled, bounded context handed to the model.
// It is a pure function of Params: same inputs, same payload.
type PromptPayload struct {
	// Excerpt is the rendered thread window.
	Excerpt string

	// Goal is the resolved goal, never empty.
	Goal string

	Tone   string
	Intent intent.Intent

	// IncludedMessages counts how many thread messages survived the
	// budget.
	IncludedMessages int
}

// Assemble renders the thread into a bounded excerpt and resolves the
// goal and tone. Truncation drops whole messages from the oldest end
// first, and the most recent message is always kept in full regardless
// of budget.
func Assemble(p Params) PromptPayload {
	budget := p.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	tone := strings.TrimSpace(p.Tone)
	if tone == "" {
		tone = DefaultTone
	}

	excerpt, included := renderExcerpt(p.Thread, p.SelectedIndex, budget)

	return PromptPayload{
		Excerpt:          excerpt,
		Goal:             resolveGoal(p.EmailGoal, p.Intent, p.Thread),
		Tone:             tone,
		Intent:           p.Intent,
		IncludedMessages: included,
	}
}

// renderExcerpt builds the conversation excerpt. It first renders every
// message block, then walks newest to oldest accumulating blocks until
// the budget is spent, and finally emits the survivors oldest first.
func renderExcerpt(t thread.Thread, selected fn.Option[int],
	budget int) (string, int) {

	header := renderHeader(t)

	blocks := make([]string, len(t.Messages))
	for i, msg := range t.Messages {
		focus := selected.UnwrapOr(-1) == i
		blocks[i] = renderMessage(i, msg, focus)
	}

	// The newest message is unconditional, so seed with it and grow
	// the window backwards while it fits.
	start := len(blocks)
	used := len(header)
	for i := len(blocks) - 1; i >= 0; i-- {
		if i < len(blocks)-1 && used+len(blocks[i]) > budget {
			break
		}
		used += len(blocks[i])
		start = i
	}

	var b strings.Builder
	b.WriteString(header)
	if start > 0 {
		fmt.Fprintf(&b, "[%d earlier email(s) omitted]\n\n", start)
	}
	for _, block := range blocks[start:] {
		b.WriteString(block)
	}

	return b.String(), len(blocks) - start
}

func renderHeader(t thread.Thread) string {
	var b strings.Builder

	b.WriteString("=== CONVERSATION THREAD ===\n")
	fmt.Fprintf(&b, "Subject: %s\n", t.Subject)
	fmt.Fprintf(&b, "Participants: %s\n",
		strings.Join(t.Participants(), ", "))
	fmt.Fprintf(&b, "Total Emails: %d\n\n", len(t.Messages))
	b.WriteString("--- EMAIL HISTORY ---\n\n")

	return b.String()
}

func renderMessage(idx int, msg thread.Message, focus bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Email #%d", idx+1)
	if focus {
		b.WriteString(" [SELECTED EMAIL - FOCUS CONTEXT]")
	}
	b.WriteString(":\n")
	fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	fmt.Fprintf(&b, "To: %s\n", msg.Recipient)
	fmt.Fprintf(&b, "Date: %s\n", msg.Timestamp.Format(time.RFC1123Z))

	body := msg.Body
	if len(body) > bodyCap {
		body = body[:bodyCap] + "..."
	}
	fmt.Fprintf(&b, "Body: %s\n", body)
	b.WriteString(strings.Repeat("-", 60) + "\n\n")

	return b.String()
}

// resolveGoal prefers the explicit goal, else synthesizes a one liner
// from the intent and the newest message.
func resolveGoal(goal string, label intent.Intent, t thread.Thread) string {
	if trimmed := strings.TrimSpace(goal); trimmed != "" {
		return trimmed
	}
	if len(t.Messages) == 0 {
		return "Write an appropriate email."
	}

	last := t.Last()
	snippet := strings.Join(strings.Fields(last.Body), " ")
	if len(snippet) > goalSnippetCap {
		snippet = snippet[:goalSnippetCap] + "..."
	}

	var action string
	switch label {
	case intent.IntentFollowUp:
		action = "Follow up on"
	case intent.IntentReminder:
		action = "Send a reminder about"
	case intent.IntentInquiry:
		action = "Ask for an update on"
	default:
		action = "Respond to"
	}

	return fmt.Sprintf("%s the latest message from %s: %q",
		action, last.Sender, snippet)
}
