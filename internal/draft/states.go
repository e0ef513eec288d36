package draft

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/draftsmith/internal/assemble"
	"github.com/roasbeef/draftsmith/internal/intent"
	"github.com/roasbeef/draftsmith/internal/llm"
	"github.com/roasbeef/draftsmith/internal/store"
	"github.com/roasbeef/draftsmith/internal/thread"
)

// genState is the sealed interface for the draft workflow states. Each
// state performs its step against the shared environment and returns the
// next state, or an error which terminates the workflow as failed.
type genState interface {
	// Run executes this step and returns the next state.
	Run(ctx context.Context, env *genEnv) (genState, error)

	// IsTerminal returns true if this state requires no further
	// processing.
	IsTerminal() bool

	// String returns a human-readable name for the state.
	String() string

	// isGenState seals the interface to prevent external
	// implementations.
	isGenState()
}

// genEnv is the shared environment the states read and write as the
// workflow advances.
type genEnv struct {
	generator *Generator
	req       Request

	// thread is set by normalizing; empty for from-scratch drafts.
	thread thread.Thread

	// label is set by classifying.
	label intent.Intent

	// payload is set by assembling.
	payload promptSource

	// attempts counts model calls made so far.
	attempts int

	// lastReason records why the latest candidate was rejected.
	lastReason string

	// candidate is the latest parsed draft.
	candidate Draft

	// sessionID is set by persisting.
	sessionID string
}

// Ensure all state types implement genState.
var (
	_ genState = (*stateNormalizing)(nil)
	_ genState = (*stateClassifying)(nil)
	_ genState = (*stateAssembling)(nil)
	_ genState = (*stateGenerating)(nil)
	_ genState = (*stateValidating)(nil)
	_ genState = (*stateExhausted)(nil)
	_ genState = (*statePersisting)(nil)
	_ genState = (*stateDone)(nil)
)

// stateNormalizing turns the raw messages into an ordered, deduplicated
// thread. From-scratch drafts have no thread and skip straight to
// assembly.
type stateNormalizing struct{}

func (*stateNormalizing) isGenState()      {}
func (*stateNormalizing) IsTerminal() bool { return false }
func (*stateNormalizing) String() string   { return "normalizing" }

func (s *stateNormalizing) Run(_ context.Context, env *genEnv) (genState,
	error) {

	if env.req.NewEmail {
		env.label = intent.IntentUnknown
		return &stateAssembling{}, nil
	}

	t, err := thread.Normalize(
		env.req.ThreadID, thread.CleanSubject(env.req.ThreadSubject),
		env.req.RawMessages,
	)
	if err != nil {
		return nil, err
	}
	env.thread = t

	return &stateClassifying{}, nil
}

// stateClassifying labels the thread. The classifier never fails, so
// this step cannot terminate the workflow.
type stateClassifying struct{}

func (*stateClassifying) isGenState()      {}
func (*stateClassifying) IsTerminal() bool { return false }
func (*stateClassifying) String() string   { return "classifying" }

func (s *stateClassifying) Run(ctx context.Context,
	env *genEnv) (genState, error) {

	env.label = env.generator.classifier.Classify(
		ctx, env.thread, env.req.EmailGoal,
	)

	return &stateAssembling{}, nil
}

// stateAssembling builds the bounded prompt payload.
type stateAssembling struct{}

func (*stateAssembling) isGenState()      {}
func (*stateAssembling) IsTerminal() bool { return false }
func (*stateAssembling) String() string   { return "assembling" }

func (s *stateAssembling) Run(_ context.Context, env *genEnv) (genState,
	error) {

	if env.req.NewEmail {
		env.payload = assemble.AssembleNewEmail(
			env.req.EmailAddress, env.req.EmailGoal,
			env.req.Tone,
		)
		return &stateGenerating{}, nil
	}

	env.payload = assemble.Assemble(assemble.Params{
		Thread:        env.thread,
		Intent:        env.label,
		EmailGoal:     env.req.EmailGoal,
		Tone:          env.req.Tone,
		SelectedIndex: env.req.SelectedIndex,
		Budget:        env.generator.cfg.ExcerptBudget,
	})

	return &stateGenerating{}, nil
}

// stateGenerating makes one model call. Transport failures and unusable
// candidates both consume an attempt; the thread context itself never
// changes between attempts, only the appended format demand.
type stateGenerating struct{}

func (*stateGenerating) isGenState()      {}
func (*stateGenerating) IsTerminal() bool { return false }
func (*stateGenerating) String() string   { return "generating" }

func (s *stateGenerating) Run(ctx context.Context,
	env *genEnv) (genState, error) {

	prompt := env.payload.UserPrompt()
	if env.attempts > 0 {
		prompt += assemble.RetryInstruction
	}
	env.attempts++

	raw, err := env.generator.llm.Complete(ctx, llm.Request{
		System:    env.payload.SystemPrompt(),
		Prompt:    prompt,
		MaxTokens: generateMaxTokens,
	})
	if err != nil {
		// A dead caller context terminates the workflow outright;
		// retrying against it would only burn the remaining
		// attempts on the same failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		env.lastReason = err.Error()
		return retryOrExhaust(env), nil
	}

	subject, body := parseDraftText(raw)
	env.candidate = Draft{
		Subject: subject,
		Body:    body,
		Intent:  env.label,
		Tone:    resolveTone(env),
	}

	return &stateValidating{}, nil
}

// stateValidating accepts or rejects the latest candidate.
type stateValidating struct{}

func (*stateValidating) isGenState()      {}
func (*stateValidating) IsTerminal() bool { return false }
func (*stateValidating) String() string   { return "validating" }

func (s *stateValidating) Run(_ context.Context, env *genEnv) (genState,
	error) {

	reason := validateDraft(
		env.candidate.Subject, env.candidate.Body,
		env.payload.ConstructionStrings(),
	)
	if reason == "" {
		return &statePersisting{}, nil
	}

	env.lastReason = reason
	return retryOrExhaust(env), nil
}

// retryOrExhaust routes back to generating while attempts remain.
// Exhaustion is expressed as a state so the terminal transition carries
// the final rejection reason.
func retryOrExhaust(env *genEnv) genState {
	if env.attempts < env.generator.cfg.MaxAttempts {
		return &stateGenerating{}
	}
	return &stateExhausted{}
}

// stateExhausted converts the accumulated rejection into the terminal
// error.
type stateExhausted struct{}

func (*stateExhausted) isGenState()      {}
func (*stateExhausted) IsTerminal() bool { return false }
func (*stateExhausted) String() string   { return "exhausted" }

func (s *stateExhausted) Run(_ context.Context, env *genEnv) (genState,
	error) {

	return nil, &GenerationExhaustedError{
		Attempts:   env.attempts,
		LastReason: env.lastReason,
	}
}

// statePersisting saves the accepted draft. The save is detached from
// the caller's cancellation: once a draft exists, an expiring request
// deadline must not cost us the row.
type statePersisting struct{}

func (*statePersisting) isGenState()      {}
func (*statePersisting) IsTerminal() bool { return false }
func (*statePersisting) String() string   { return "persisting" }

func (s *statePersisting) Run(ctx context.Context,
	env *genEnv) (genState, error) {

	var emailGoal fn.Option[string]
	if env.req.EmailGoal != "" {
		emailGoal = fn.Some(env.req.EmailGoal)
	}

	threadSubject := env.thread.Subject
	if env.req.NewEmail {
		threadSubject = env.candidate.Subject
	}

	saveCtx := context.WithoutCancel(ctx)
	sess, err := env.generator.store.SaveGeneration(
		saveCtx, store.SaveParams{
			EmailAddress:  env.req.EmailAddress,
			ThreadSubject: threadSubject,
			Intent:        env.candidate.Intent,
			Subject:       env.candidate.Subject,
			EmailBody:     env.candidate.Body,
			Tone:          env.candidate.Tone,
			SelectedEmailIndex: fn.MapOption(
				func(idx int) int64 { return int64(idx) },
			)(env.req.SelectedIndex),
			EmailGoal:        emailGoal,
			ThreadEmailCount: int64(len(env.thread.Messages)),
			IsNewEmail:       env.req.NewEmail,
		},
	)
	if err != nil {
		return nil, &PersistenceError{
			Draft: env.candidate,
			Err:   err,
		}
	}
	env.sessionID = sess.SessionID

	return &stateDone{}, nil
}

// stateDone is the successful terminal state.
type stateDone struct{}

func (*stateDone) isGenState()      {}
func (*stateDone) IsTerminal() bool { return true }
func (*stateDone) String() string   { return "done" }

func (s *stateDone) Run(_ context.Context, _ *genEnv) (genState, error) {
	return s, nil
}

// resolveTone mirrors the assembler's tone defaulting for the persisted
// record.
func resolveTone(env *genEnv) string {
	if env.req.Tone != "" {
		return env.req.Tone
	}
	return assemble.DefaultTone
}
