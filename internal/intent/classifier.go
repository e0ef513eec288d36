package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roasbeef/draftsmith/internal/llm"
	"github.com/roasbeef/draftsmith/internal/thread"
)

const (
	// DefaultMaxMessages bounds how many trailing messages of a thread
	// are shown to the model during classification.
	DefaultMaxMessages = 6

	// DefaultStaleness is the age of the newest message beyond which
	// the fallback heuristic treats the thread as needing a follow up.
	DefaultStaleness = 7 * 24 * time.Hour

	// classifyBodyCap bounds each message body shown to the classifier.
	classifyBodyCap = 400

	// classifyMaxTokens is generous for a one word answer but leaves
	// room for models that pad with reasoning.
	classifyMaxTokens = 64
)

// classifySystemPrompt instructs the model to answer with a single label.
const classifySystemPrompt = `You are an expert email assistant that analyzes conversation threads to determine the appropriate intent for a reply.

Your task: Analyze the conversation thread and determine the most appropriate intent for the next email.

Intent types:
- reply: Direct response to a question or request in the most recent email
- follow_up: Continuing a previous conversation with updates or additional information
- reminder: Gentle reminder about pending items, unanswered questions, or awaiting response
- inquiry: Asking for information, clarification, or updates

Return ONLY ONE WORD: reply, follow_up, reminder, or inquiry`

// Config tunes the classifier thresholds.
type Config struct {
	// MaxMessages bounds the trailing window of messages included in
	// the classification prompt.
	MaxMessages int

	// Staleness is the fallback heuristic's follow_up threshold.
	Staleness time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MaxMessages: DefaultMaxMessages,
		Staleness:   DefaultStaleness,
	}
}

// Classifier derives an Intent for a thread, preferring the model and
// falling back to a deterministic heuristic when the model is unavailable.
type Classifier struct {
	cfg Config
	llm llm.Client
	log *slog.Logger

	// now is swappable for tests of the staleness heuristic.
	now func() time.Time
}

// NewClassifier creates a classifier over the given completion client.
func NewClassifier(cfg Config, client llm.Client,
	log *slog.Logger) *Classifier {

	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultStaleness
	}
	if log == nil {
		log = slog.Default()
	}

	return &Classifier{
		cfg: cfg,
		llm: client,
		log: log.With("component", "intent"),
		now: time.Now,
	}
}

// Classify labels the thread. It never returns an error: a failed or
// nonsensical model call degrades to the heuristic, and the heuristic
// itself always produces a label.
func (c *Classifier) Classify(ctx context.Context, t thread.Thread,
	emailGoal string) Intent {

	label, err := c.classifyLLM(ctx, t, emailGoal)
	if err == nil {
		return label
	}

	c.log.WarnContext(ctx, "Classification call failed, using "+
		"heuristic", "thread_id", t.ThreadID, "err", err)

	return c.Heuristic(t, emailGoal)
}

// classifyLLM runs the model path. An out-of-enum answer is not an
// error: it maps to IntentUnknown after salvage fails.
func (c *Classifier) classifyLLM(ctx context.Context, t thread.Thread,
	emailGoal string) (Intent, error) {

	resp, err := c.llm.Complete(ctx, llm.Request{
		System:    classifySystemPrompt,
		Prompt:    c.buildPrompt(t, emailGoal),
		MaxTokens: classifyMaxTokens,
	})
	if err != nil {
		return IntentUnknown, err
	}

	answer := strings.ToLower(strings.TrimSpace(resp))
	if label, perr := Parse(answer); perr == nil {
		return label, nil
	}

	if label, ok := salvage(answer); ok {
		c.log.DebugContext(ctx, "Salvaged intent from verbose "+
			"response", "thread_id", t.ThreadID,
			"intent", label)
		return label, nil
	}

	c.log.InfoContext(ctx, "Model returned out-of-enum intent",
		"thread_id", t.ThreadID, "answer", answer)

	return IntentUnknown, nil
}

// Heuristic is the deterministic fallback: stale threads want a follow
// up, fresh one-message goalless threads read as inquiries, and
// everything else is a plain reply.
func (c *Classifier) Heuristic(t thread.Thread, emailGoal string) Intent {
	if len(t.Messages) == 0 {
		return IntentUnknown
	}

	last := t.Last()
	if c.now().Sub(last.Timestamp) > c.cfg.Staleness {
		return IntentFollowUp
	}
	if len(t.Messages) == 1 && strings.TrimSpace(emailGoal) == "" {
		return IntentInquiry
	}

	return IntentReply
}

// buildPrompt renders the trailing window of the thread for the model.
func (c *Classifier) buildPrompt(t thread.Thread, emailGoal string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze this conversation thread and determine "+
		"the intent:\n\n")
	fmt.Fprintf(&b, "Subject: %s\n", t.Subject)
	fmt.Fprintf(&b, "Total Emails: %d\n", len(t.Messages))
	fmt.Fprintf(&b, "Participants: %s\n",
		strings.Join(t.Participants(), ", "))

	window := t.Messages
	if len(window) > c.cfg.MaxMessages {
		window = window[len(window)-c.cfg.MaxMessages:]
	}

	b.WriteString("\nRecent conversation (most recent last):")
	for i, msg := range window {
		body := msg.Body
		if len(body) > classifyBodyCap {
			body = body[:classifyBodyCap] + "..."
		}
		fmt.Fprintf(&b, "\n\nEmail #%d:\n", i+1)
		fmt.Fprintf(&b, "From: %s\n", msg.Sender)
		fmt.Fprintf(&b, "Date: %s\n",
			msg.Timestamp.Format(time.RFC1123Z))
		fmt.Fprintf(&b, "Body: %s\n", body)
	}

	if strings.TrimSpace(emailGoal) != "" {
		fmt.Fprintf(&b, "\n\nUser's Goal: %s", emailGoal)
		b.WriteString("\n\nConsider the user's goal when " +
			"determining intent.")
	}

	b.WriteString("\n\nReturn ONLY the intent (reply, follow_up, " +
		"reminder, or inquiry):")

	return b.String()
}
