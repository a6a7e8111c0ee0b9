// Package actor implements the proof actor (C7): a bounded-concurrency
// scheduler that accepts requests, dispatches drivers, honors
// cancellations, and writes results back through the pool, grounded on the
// teacher's prover/prover.go eventLoop (select-over-channels, a
// backoff-wrapped retry helper, and a sync.WaitGroup-drained shutdown).
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/rpc"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
	"github.com/taikoxyz/raiko-sub001/pool"
	"github.com/taikoxyz/raiko-sub001/proof/producer"
)

// Pipeline runs preflight (C2), the block builder (C4), and returns the
// GuestOutput to hand to a driver (C5). It is the actor's single
// collaborator for "build a witness and reproduce the header" — kept as an
// interface so the actor package has no direct dependency on the preflight
// or builder packages' internals, matching how prover.go only depends on
// proof_producer through its ProofProducer interface.
type Pipeline interface {
	Run(ctx context.Context, req *proofrequest.ProofRequest) (*witness.GuestInput, *witness.GuestOutput, error)
}

// Config bounds the actor's concurrency and retry behavior.
type Config struct {
	MaxConcurrentWorkers int64
	BackOffMaxRetries    uint64
}

// Actor is the proof actor of spec §4.7.
type Actor struct {
	cfg       Config
	pool      pool.Pool
	pipeline  Pipeline
	producers map[proofrequest.ProofType]producer.ProofProducer
	sem       *semaphore.Weighted
	metrics   *metrics

	mu     sync.Mutex
	tokens map[proofrequest.Key]context.CancelFunc

	workCh   chan workItem
	cancelCh chan proofrequest.Key

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type workItem struct {
	key     proofrequest.Key
	req     *proofrequest.ProofRequest
	traceID string
}

// New constructs an Actor. Producers maps each supported ProofType to its
// driver; a request for an unregistered type fails immediately with
// StatusInvalidOrUnsupportedBlock, before preflight runs.
func New(cfg Config, p pool.Pool, pipeline Pipeline, producers map[proofrequest.ProofType]producer.ProofProducer) *Actor {
	if cfg.MaxConcurrentWorkers <= 0 {
		cfg.MaxConcurrentWorkers = 1
	}
	return &Actor{
		cfg:       cfg,
		pool:      p,
		pipeline:  pipeline,
		producers: producers,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentWorkers),
		metrics:   newMetrics(),
		tokens:    make(map[proofrequest.Key]context.CancelFunc),
		workCh:    make(chan workItem, 64),
		cancelCh:  make(chan proofrequest.Key, 64),
	}
}

// Start begins the scheduler loop. Call Close to drain in-flight workers.
func (a *Actor) Start(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.eventLoop()
}

// Registry exposes the actor's Prometheus registry for an operator to serve
// over /metrics.
func (a *Actor) Registry() *prometheus.Registry { return a.metrics.registry }

// Close cancels the scheduler loop and waits for every in-flight worker to
// finish (spec §5's graceful resource-lifecycle rule).
func (a *Actor) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

// Submit derives the request key, enqueues it (idempotently) in the pool,
// and schedules a worker if this is a fresh request — spec §4.7 steps 1-3.
func (a *Actor) Submit(ctx context.Context, req *proofrequest.ProofRequest, chainID uint64, blockHash [32]byte) error {
	key := proofrequest.NewKey(chainID, req.BlockNumber, blockHash, req.ProofType, req.ProverAddress)

	if err := a.pool.Enqueue(ctx, key, pool.Entity{Request: *req}, proofrequest.StatusRegistered); err != nil {
		return fmt.Errorf("actor: enqueue: %w", err)
	}

	rec, ok, err := a.pool.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("actor: get after enqueue: %w", err)
	}
	if !ok || rec.Status != proofrequest.StatusRegistered {
		// Re-submission of an already-observed key: scenario 6 of spec §8 —
		// the actor must not re-run.
		return nil
	}

	traceID := uuid.NewString()
	a.metrics.tasksSubmitted.Inc()

	select {
	case a.workCh <- workItem{key: key, req: req, traceID: traceID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel requests cancellation of an in-flight key, per spec §4.7's
// cancellation path. Only a key whose worker is already running is
// cancelled; a key still waiting in the work queue is not affected.
func (a *Actor) Cancel(ctx context.Context, key proofrequest.Key) error {
	select {
	case a.cancelCh <- key:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) eventLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case item := <-a.workCh:
			if err := a.sem.Acquire(a.ctx, 1); err != nil {
				return
			}
			a.wg.Add(1)
			go a.runWorker(item)
		case key := <-a.cancelCh:
			a.mu.Lock()
			cancel, ok := a.tokens[key]
			a.mu.Unlock()
			if ok {
				cancel()
			}
		}
	}
}

func (a *Actor) runWorker(item workItem) {
	defer a.wg.Done()
	defer a.sem.Release(1)

	a.metrics.workersBusy.Inc()
	defer a.metrics.workersBusy.Dec()

	workerCtx, cancel := context.WithCancel(a.ctx)
	a.mu.Lock()
	a.tokens[item.key] = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.tokens, item.key)
		a.mu.Unlock()
		cancel()
	}()

	if _, err := a.pool.UpdateStatus(workerCtx, item.key, proofrequest.StatusWorkInProgress, ""); err != nil {
		log.Error("Proof actor failed to mark task in progress", "key", item.key, "traceID", item.traceID, "err", err)
		return
	}

	status, proofHex := a.process(workerCtx, item)

	if status == proofrequest.StatusSuccess {
		a.metrics.tasksSucceeded.Inc()
	} else {
		a.metrics.tasksFailed.WithLabelValues(status.String()).Inc()
	}

	if _, err := a.pool.UpdateStatus(a.ctx, item.key, status, proofHex); err != nil {
		log.Error("Proof actor failed to persist final status", "key", item.key, "traceID", item.traceID, "status", status, "err", err)
	}
}

func (a *Actor) process(ctx context.Context, item workItem) (proofrequest.TaskStatus, string) {
	producerImpl, ok := a.producers[item.req.ProofType]
	if !ok {
		return proofrequest.StatusInvalidOrUnsupportedBlock, ""
	}

	_, output, err := a.pipeline.Run(ctx, item.req)
	if err != nil {
		if ctx.Err() != nil {
			return proofrequest.StatusCancelledAborted, ""
		}
		return classifyPreflightError(err), ""
	}

	var proof *witness.Proof
	retryErr := withRetry(ctx, a.cfg.BackOffMaxRetries, func() error {
		var runErr error
		proof, runErr = producerImpl.Run(ctx, item.key, nil, output, idStoreAdapter{a.pool})
		return runErr
	})

	if ctx.Err() != nil {
		_ = producerImpl.Cancel(a.ctx, item.key, idStoreAdapter{a.pool})
		return proofrequest.StatusCancelledAborted, ""
	}
	if retryErr != nil {
		return classifyDriverError(retryErr), ""
	}

	return proofrequest.StatusSuccess, proof.Proof
}

// withRetry wraps fn in a bounded exponential backoff retry, matching the
// teacher's prover.go withRetry helper, collapsed into a blocking call
// since the actor already runs fn inside its own worker goroutine.
func withRetry(ctx context.Context, maxRetries uint64, fn func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	return backoff.Retry(fn, backoff.WithContext(b, ctx))
}

// classifyPreflightError maps a failure from the preflight/builder pipeline
// to a task status by inspecting the error chain, not by assuming a single
// cause. Per spec §8 scenario 4, an eth_getProof (or any other) RPC refusal
// (preflight does not retry it) must surface as
// StatusGuestProverFailure, not StatusInvalidOrUnsupportedBlock — only a
// genuinely malformed/unsupported block falls through to the latter.
func classifyPreflightError(err error) proofrequest.TaskStatus {
	switch {
	case errors.Is(err, rpc.ErrRPCFailure):
		return proofrequest.StatusGuestProverFailure
	default:
		return proofrequest.StatusInvalidOrUnsupportedBlock
	}
}

// classifyDriverError maps a producer.Run/BatchRun failure to a task status
// by inspecting the sentinel each backend wraps its errors in (producer.go),
// rather than collapsing every cause to StatusGuestProverFailure.
func classifyDriverError(err error) proofrequest.TaskStatus {
	switch {
	case err == nil:
		return proofrequest.StatusSuccess
	case errors.Is(err, producer.ErrInvalidRequest):
		return proofrequest.StatusInvalidOrUnsupportedBlock
	case errors.Is(err, producer.ErrNetworkFailure), errors.Is(err, rpc.ErrRPCFailure):
		return proofrequest.StatusNetworkFailure
	case errors.Is(err, producer.ErrIoFailure):
		return proofrequest.StatusIoFailure
	case errors.Is(err, producer.ErrGuestFailure):
		return proofrequest.StatusGuestProverFailure
	default:
		return proofrequest.StatusUnspecifiedFailureReason
	}
}

type idStoreAdapter struct {
	p pool.Pool
}

func (a idStoreAdapter) StoreID(ctx context.Context, key proofrequest.Key, id string) error {
	return a.p.StoreID(ctx, key, id)
}

func (a idStoreAdapter) ReadID(ctx context.Context, key proofrequest.Key) (string, bool, error) {
	return a.p.ReadID(ctx, key)
}

func (a idStoreAdapter) RemoveID(ctx context.Context, key proofrequest.Key) error {
	return a.p.RemoveID(ctx, key)
}

var _ producer.IDStore = idStoreAdapter{}
