package draft

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/draftsmith/internal/assemble"
	"github.com/roasbeef/draftsmith/internal/intent"
	"github.com/roasbeef/draftsmith/internal/llm"
	"github.com/roasbeef/draftsmith/internal/store"
	"github.com/roasbeef/draftsmith/internal/thread"
)

const (
	// DefaultMaxAttempts is the total model call budget per draft: the
	// initial attempt plus two retries.
	DefaultMaxAttempts = 3

	// generateMaxTokens bounds a single draft completion.
	generateMaxTokens = 1500
)

// Config tunes a Generator.
type Config struct {
	// MaxAttempts is the total number of model calls allowed per
	// draft, including the first.
	MaxAttempts int

	// ExcerptBudget bounds the rendered thread excerpt in characters.
	ExcerptBudget int

	// Intent configures the classifier thresholds.
	Intent intent.Config
}

// DefaultConfig returns the stock generator settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   DefaultMaxAttempts,
		ExcerptBudget: assemble.DefaultBudget,
		Intent:        intent.DefaultConfig(),
	}
}

// Request describes one draft to generate.
type Request struct {
	// EmailAddress is the counterparty the draft is for.
	EmailAddress string

	// RawMessages is the unnormalized thread content. Ignored for
	// from-scratch drafts.
	RawMessages []thread.Message

	// ThreadID and ThreadSubject identify the conversation. Ignored
	// for from-scratch drafts.
	ThreadID      string
	ThreadSubject string

	// EmailGoal is the caller's stated goal, possibly empty. Required
	// for from-scratch drafts.
	EmailGoal string

	// Tone is the requested writing tone, defaulted when empty.
	Tone string

	// SelectedIndex optionally focuses the draft on one message.
	SelectedIndex fn.Option[int]

	// NewEmail requests a from-scratch draft with no backing thread.
	NewEmail bool
}

// Draft is one generated email.
type Draft struct {
	Subject string
	Body    string
	Intent  intent.Intent
	Tone    string
}

// Result is a successfully generated and saved draft.
type Result struct {
	Draft Draft

	// SessionID keys the persisted session.
	SessionID string

	// ThreadEmailCount is how many messages backed the draft.
	ThreadEmailCount int
}

// promptSource is the common surface of the two assembled payload kinds.
type promptSource interface {
	SystemPrompt() string
	UserPrompt() string
	ConstructionStrings() []string
}

// Generator runs the draft generation workflow: normalize, classify,
// assemble, generate with bounded retries, validate, persist.
type Generator struct {
	cfg        Config
	llm        llm.Client
	classifier *intent.Classifier
	store      store.SessionStore
	log        *slog.Logger
}

// NewGenerator wires up a generator.
func NewGenerator(cfg Config, client llm.Client,
	sessions store.SessionStore, log *slog.Logger) *Generator {

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.ExcerptBudget <= 0 {
		cfg.ExcerptBudget = assemble.DefaultBudget
	}
	if log == nil {
		log = slog.Default()
	}

	return &Generator{
		cfg:        cfg,
		llm:        client,
		classifier: intent.NewClassifier(cfg.Intent, client, log),
		store:      sessions,
		log:        log.With("component", "draft"),
	}
}

// Generate runs the workflow for one request. On success the draft has
// been persisted. A PersistenceError still carries the generated draft.
func (g *Generator) Generate(ctx context.Context, req Request) (Result,
	error) {

	env := &genEnv{
		generator: g,
		req:       req,
	}

	var state genState = &stateNormalizing{}
	for !state.IsTerminal() {
		g.log.DebugContext(ctx, "Draft workflow step",
			"email_address", req.EmailAddress,
			"state", state.String(),
		)

		next, err := state.Run(ctx, env)
		if err != nil {
			g.log.WarnContext(ctx, "Draft workflow failed",
				"email_address", req.EmailAddress,
				"state", state.String(),
				"err", err,
			)
			return Result{}, err
		}
		state = next
	}

	return Result{
		Draft:            env.candidate,
		SessionID:        env.sessionID,
		ThreadEmailCount: len(env.thread.Messages),
	}, nil
}

// parseDraftText splits raw model output into subject and body. The
// subject comes from the first "Subject:" line, which is removed from
// the body along with any leading blank lines.
func parseDraftText(raw string) (string, string) {
	// Some models wrap deliberation in a reasoning block; only the
	// text after it is the email.
	if _, after, found := strings.Cut(raw, "</reasoning>"); found {
		raw = after
	}
	raw = strings.TrimSpace(raw)

	subject := ""
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "Subject:") {
			continue
		}

		_, value, _ := strings.Cut(line, "Subject:")
		subject = strings.TrimSpace(value)

		lines = append(lines[:i], lines[i+1:]...)
		break
	}

	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}

	return subject, strings.TrimSpace(strings.Join(lines, "\n"))
}

// validateDraft reports why a candidate is unusable, or "" when it is
// acceptable. A body that is byte-identical to any prompt construction
// string is an echo of the instructions, not an email.
func validateDraft(subject, body string, construction []string) string {
	if strings.TrimSpace(subject) == "" {
		return "empty subject"
	}
	if strings.TrimSpace(body) == "" {
		return "empty body"
	}
	for _, s := range construction {
		if body == s {
			return "body echoes prompt text"
		}
	}
	return ""
}
