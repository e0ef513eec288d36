package db

import (
	"context"
	"log/slog"
	"math"
	prand "math/rand"
	"time"
)

// txExecutorOptions holds the retry knobs for the transaction executor.
type txExecutorOptions struct {
	numRetries        int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
}

func defaultTxExecutorOptions() *txExecutorOptions {
	return &txExecutorOptions{
		numRetries:        DefaultNumTxRetries,
		initialRetryDelay: DefaultInitialRetryDelay,
		maxRetryDelay:     DefaultMaxRetryDelay,
	}
}

// randRetryDelay returns the backoff before the given retry attempt:
// a jittered delay between 50% and 150% of the initial delay, doubled
// per attempt and capped at the configured max. The jitter keeps
// goroutines created together from retrying in lockstep.
func (t *txExecutorOptions) randRetryDelay(attempt int) time.Duration {
	halfDelay := t.initialRetryDelay / 2
	randDelay := prand.Int63n(int64(t.initialRetryDelay)) //nolint:gosec

	initialDelay := halfDelay + time.Duration(randDelay)
	if attempt == 0 {
		return initialDelay
	}

	// Doubling n times is multiplying by 2^n; cap the exponent to
	// avoid overflow.
	factor := time.Duration(math.Pow(2, math.Min(float64(attempt), 32)))
	//nolint:durationcheck
	actualDelay := initialDelay * factor

	if actualDelay > t.maxRetryDelay {
		return t.maxRetryDelay
	}

	return actualDelay
}

// TxExecutorOption overrides a retry knob on executor construction.
type TxExecutorOption func(*txExecutorOptions)

// WithTxRetries sets how many times a transaction is attempted before
// giving up with ErrRetriesExceeded.
func WithTxRetries(numRetries int) TxExecutorOption {
	return func(o *txExecutorOptions) {
		o.numRetries = numRetries
	}
}

// WithTxRetryDelay sets the initial delay between retry attempts.
func WithTxRetryDelay(delay time.Duration) TxExecutorOption {
	return func(o *txExecutorOptions) {
		o.initialRetryDelay = delay
	}
}

// TransactionExecutor runs query closures inside database transactions,
// transparently retrying the whole transaction when it fails with a
// serialization or deadlock error. The QueryCreator wraps each fresh
// transaction in the caller's per-transaction query type Q.
type TransactionExecutor[Q any] struct {
	BatchedQuerier

	createQuery QueryCreator[Q]

	opts *txExecutorOptions

	log *slog.Logger
}

// NewTransactionExecutor creates an executor over the given querier and
// per-transaction query constructor.
func NewTransactionExecutor[Querier any](db BatchedQuerier,
	createQuery QueryCreator[Querier], log *slog.Logger,
	opts ...TxExecutorOption,
) *TransactionExecutor[Querier] {
	txOpts := defaultTxExecutorOptions()
	for _, optFunc := range opts {
		optFunc(txOpts)
	}

	return &TransactionExecutor[Querier]{
		BatchedQuerier: db,
		createQuery:    createQuery,
		opts:           txOpts,
		log:            log,
	}
}

// ExecTx runs txBody inside one transaction: begin, run, commit, with
// rollback on any failure. Retryable errors restart the whole
// transaction after a randomized backoff; every other error is mapped
// through MapSQLError and returned as-is, so sentinel errors from txBody
// survive.
func (t *TransactionExecutor[Q]) ExecTx(ctx context.Context,
	txOptions TxOptions, txBody func(Q) error,
) error {
	for attempt := 0; attempt < t.opts.numRetries; attempt++ {
		retry, err := t.attemptTx(ctx, txOptions, txBody)
		if err != nil {
			return err
		}
		if !retry {
			return nil
		}

		retryDelay := t.opts.randRetryDelay(attempt)
		t.log.DebugContext(ctx, "Retrying transaction after "+
			"serialization or deadlock error",
			"attempt", attempt,
			"delay", retryDelay,
		)
		time.Sleep(retryDelay)
	}

	return ErrRetriesExceeded
}

// attemptTx makes one begin/run/commit attempt. It reports whether the
// attempt failed retryably; any other failure is returned as the error.
func (t *TransactionExecutor[Q]) attemptTx(ctx context.Context,
	txOptions TxOptions, txBody func(Q) error,
) (bool, error) {
	tx, err := t.BeginTx(ctx, txOptions)
	if err != nil {
		dbErr := MapSQLError(err)
		if IsSerializationOrDeadlockError(dbErr) {
			return true, nil
		}
		return false, dbErr
	}

	// Rollback after a successful commit is a no-op, so this covers
	// every early return below.
	defer func() {
		_ = tx.Rollback()
	}()

	if err := txBody(t.createQuery(tx)); err != nil {
		dbErr := MapSQLError(err)
		if IsSerializationOrDeadlockError(dbErr) {
			return true, nil
		}
		return false, dbErr
	}

	if err := tx.Commit(); err != nil {
		dbErr := MapSQLError(err)
		if IsSerializationOrDeadlockError(dbErr) {
			return true, nil
		}
		return false, dbErr
	}

	return false, nil
}
