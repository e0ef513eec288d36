package draft

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/draftsmith/internal/llm"
	"github.com/roasbeef/draftsmith/internal/provider"
	"github.com/roasbeef/draftsmith/internal/thread"
)

const (
	// DefaultBatchWorkers bounds concurrent per-address workflows.
	DefaultBatchWorkers = 4

	// DefaultBatchTimeout bounds a whole batch call. Addresses still
	// in flight when it expires are reported as timed out.
	DefaultBatchTimeout = 2 * time.Minute
)

// ErrThreadNotFound is returned when no conversation thread matches the
// request.
var ErrThreadNotFound = errors.New("thread not found")

// ServiceConfig tunes the drafting service.
type ServiceConfig struct {
	// Generator configures the per-draft workflow.
	Generator Config

	// BatchWorkers bounds concurrent address workflows in a batch.
	BatchWorkers int

	// BatchTimeout bounds a whole batch call.
	BatchTimeout time.Duration

	// FetchMaxResults caps how many emails are pulled per address.
	FetchMaxResults int
}

// DefaultServiceConfig returns the stock service settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Generator:       DefaultConfig(),
		BatchWorkers:    DefaultBatchWorkers,
		BatchTimeout:    DefaultBatchTimeout,
		FetchMaxResults: provider.DefaultMaxResults,
	}
}

// Service ties the mailbox gateway, the generation workflow, and goal
// based thread selection together behind the API surface.
type Service struct {
	cfg       ServiceConfig
	provider  provider.Client
	generator *Generator
	llm       llm.Client
	log       *slog.Logger
}

// NewService wires up the drafting service.
func NewService(cfg ServiceConfig, gateway provider.Client,
	generator *Generator, client llm.Client, log *slog.Logger) *Service {

	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = DefaultBatchWorkers
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		cfg:       cfg,
		provider:  gateway,
		generator: generator,
		llm:       client,
		log:       log.With("component", "service"),
	}
}

// FetchThreads lists the normalized conversation threads for an address,
// newest activity first, optionally ranked against a goal.
func (s *Service) FetchThreads(ctx context.Context, address,
	emailGoal string) ([]thread.Thread, error) {

	emails, err := s.provider.FetchEmails(
		ctx, address, s.cfg.FetchMaxResults,
	)
	if err != nil {
		return nil, err
	}

	threads := provider.GroupThreads(address, emails, s.log)

	return FilterThreadsByGoal(ctx, s.llm, threads, emailGoal, s.log), nil
}

// ThreadRequest asks for a draft against one specific thread of an
// address's mailbox.
type ThreadRequest struct {
	EmailAddress string

	// ThreadID selects the conversation. Empty means the best match:
	// the most relevant thread for the goal, else the newest.
	ThreadID string

	EmailGoal string
	Tone      string

	// SelectedIndex optionally focuses the draft on one message.
	SelectedIndex fn.Option[int]
}

// GenerateForThread runs the full workflow for one address.
func (s *Service) GenerateForThread(ctx context.Context,
	req ThreadRequest) (Result, error) {

	threads, err := s.FetchThreads(
		ctx, req.EmailAddress, req.EmailGoal,
	)
	if err != nil {
		return Result{}, err
	}

	var (
		selected thread.Thread
		found    bool
	)
	if req.ThreadID != "" {
		selected, found = provider.FindThread(threads, req.ThreadID)
	} else if len(threads) > 0 {
		selected, found = threads[0], true
	}
	if !found {
		return Result{}, ErrThreadNotFound
	}

	return s.generator.Generate(ctx, Request{
		EmailAddress:  req.EmailAddress,
		RawMessages:   selected.Messages,
		ThreadID:      selected.ThreadID,
		ThreadSubject: selected.Subject,
		EmailGoal:     req.EmailGoal,
		Tone:          req.Tone,
		SelectedIndex: req.SelectedIndex,
	})
}

// GenerateNewEmail drafts an email from scratch, without a backing
// thread.
func (s *Service) GenerateNewEmail(ctx context.Context, address, emailGoal,
	tone string) (Result, error) {

	return s.generator.Generate(ctx, Request{
		EmailAddress: address,
		EmailGoal:    emailGoal,
		Tone:         tone,
		NewEmail:     true,
	})
}

// BatchRequest asks for one draft per address.
type BatchRequest struct {
	Addresses []string
	EmailGoal string
	Tone      string

	// NewEmail drafts every address from scratch instead of from its
	// best matching thread.
	NewEmail bool
}

// AddressOutcome is the per-address result of a batch call. Exactly one
// of Result, Err, or TimedOut describes what happened.
type AddressOutcome struct {
	EmailAddress string

	// Result is set on success.
	Result fn.Option[Result]

	// NewEmail is true when the draft was written from scratch, either
	// by request or because the address had no usable thread.
	NewEmail bool

	// Err is set when this address's workflow failed.
	Err error

	// TimedOut marks addresses still in flight when the batch
	// deadline expired.
	TimedOut bool
}

// GenerateBatch runs the workflow for every address concurrently with a
// bounded worker pool. One address failing never aborts the others, and
// the batch deadline turns unfinished addresses into timed-out outcomes
// instead of an overall error. Workflows already past generation keep
// persisting in the background even after the deadline.
func (s *Service) GenerateBatch(parent context.Context,
	req BatchRequest) []AddressOutcome {

	ctx, cancel := context.WithTimeout(parent, s.cfg.BatchTimeout)
	defer cancel()

	outcomes := make([]AddressOutcome, len(req.Addresses))
	for i, address := range req.Addresses {
		outcomes[i] = AddressOutcome{EmailAddress: address}
	}

	var (
		mu   sync.Mutex
		done = make([]bool, len(req.Addresses))
		sem  = make(chan struct{}, s.cfg.BatchWorkers)
		wg   sync.WaitGroup
	)

	for i, address := range req.Addresses {
		wg.Add(1)
		go func(i int, address string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			result, newEmail, err := s.generateForAddress(
				ctx, address, req,
			)

			mu.Lock()
			defer mu.Unlock()

			// A workflow error caused by the batch deadline is not
			// a per-address failure; leave the slot for the
			// collector to mark as timed out.
			if err != nil && ctx.Err() != nil {
				return
			}

			done[i] = true
			outcomes[i].NewEmail = newEmail
			if err != nil {
				outcomes[i].Err = err
				return
			}
			outcomes[i].Result = fn.Some(result)
		}(i, address)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	for i := range outcomes {
		if done[i] {
			continue
		}
		outcomes[i].TimedOut = true

		s.log.WarnContext(parent, "Address timed out in batch",
			"email_address", outcomes[i].EmailAddress)
	}

	// Late workers may still write into the shared slice under the
	// mutex, so hand the caller a snapshot.
	snapshot := make([]AddressOutcome, len(outcomes))
	copy(snapshot, outcomes)

	return snapshot
}

// generateForAddress runs one address's workflow inside a batch. An
// address with no usable thread falls back to a from-scratch draft; the
// returned bool reports whether that fallback (or an explicit new-email
// request) produced the draft.
func (s *Service) generateForAddress(ctx context.Context, address string,
	req BatchRequest) (Result, bool, error) {

	if req.NewEmail {
		result, err := s.GenerateNewEmail(
			ctx, address, req.EmailGoal, req.Tone,
		)
		return result, true, err
	}

	result, err := s.GenerateForThread(ctx, ThreadRequest{
		EmailAddress: address,
		EmailGoal:    req.EmailGoal,
		Tone:         req.Tone,
	})
	if errors.Is(err, ErrThreadNotFound) {
		s.log.InfoContext(ctx, "No thread for address, "+
			"drafting from scratch",
			"email_address", address)

		result, err = s.GenerateNewEmail(
			ctx, address, req.EmailGoal, req.Tone,
		)
		return result, true, err
	}

	return result, false, err
}
