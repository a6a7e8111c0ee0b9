package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
)

// ErrProofInProgress names a market order that has not yet been fulfilled,
// mirroring the teacher's sgx_zkvm_producer.go sentinel errors for polling
// loops. BoundlessProducer does not use it: PollStatus reports an
// unfinished order with done == false, and any error from PollStatus ends
// the run.
var ErrProofInProgress = fmt.Errorf("boundless: proof still in progress")

// BoundlessMarket is the external collaborator talking to the Boundless
// proof market: submitting a request and polling an opaque market id to
// completion, per spec §4.5.
type BoundlessMarket interface {
	Submit(ctx context.Context, journal []byte) (marketID string, err error)
	PollStatus(ctx context.Context, marketID string) (proofBytes []byte, done bool, err error)
	Cancel(ctx context.Context, marketID string) error
}

// BoundlessProducer implements the Boundless backend: it persists the
// market request id via IDStore immediately on submission, then polls to
// completion, so a process restart can resume or cancel the same order.
type BoundlessProducer struct {
	market       BoundlessMarket
	pollInterval time.Duration
}

// NewBoundlessProducer constructs a Boundless producer, polling at
// pollInterval (defaulting to 5s if zero).
func NewBoundlessProducer(market BoundlessMarket, pollInterval time.Duration) *BoundlessProducer {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &BoundlessProducer{market: market, pollInterval: pollInterval}
}

func (p *BoundlessProducer) Run(
	ctx context.Context,
	key proofrequest.Key,
	_ *witness.GuestInput,
	output *witness.GuestOutput,
	idStore IDStore,
) (*witness.Proof, error) {
	hash := output.InstanceHash
	return p.submitAndPoll(ctx, key, hash.Bytes(), hash, idStore)
}

// BatchRun submits the batch's folded instance hash to the market as one
// order, per spec §4.5's batch_run, reusing the same submit/poll/id_store
// path as Run.
func (p *BoundlessProducer) BatchRun(
	ctx context.Context,
	key proofrequest.Key,
	_ []*witness.GuestInput,
	outputs []*witness.GuestOutput,
	idStore IDStore,
) (*witness.Proof, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("boundless producer: batch_run requires at least one block: %w", ErrInvalidRequest)
	}
	hash := batchInstanceHash(outputs)
	return p.submitAndPoll(ctx, key, hash.Bytes(), hash, idStore)
}

// submitAndPoll is shared by Run and BatchRun: it persists the market order
// id via idStore immediately on submission (so a process restart can resume
// or cancel the same order), then polls to completion.
func (p *BoundlessProducer) submitAndPoll(ctx context.Context, key proofrequest.Key, journal []byte, hash common.Hash, idStore IDStore) (*witness.Proof, error) {
	marketID, ok, err := idStore.ReadID(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("boundless producer: read id: %w: %w", ErrIoFailure, err)
	}
	if !ok {
		marketID, err = p.market.Submit(ctx, journal)
		if err != nil {
			return nil, fmt.Errorf("boundless producer: submit: %w: %w", ErrNetworkFailure, err)
		}
		if err := idStore.StoreID(ctx, key, marketID); err != nil {
			return nil, fmt.Errorf("boundless producer: store id: %w: %w", ErrIoFailure, err)
		}
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		proofBytes, done, err := p.market.PollStatus(ctx, marketID)
		if err != nil {
			return nil, fmt.Errorf("boundless producer: poll: %w: %w", ErrNetworkFailure, err)
		}
		if done {
			_ = idStore.RemoveID(ctx, key)
			return &witness.Proof{
				Proof: "0x" + common.Bytes2Hex(proofBytes),
				Input: &hash,
				UUID:  marketID,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *BoundlessProducer) Cancel(ctx context.Context, key proofrequest.Key, idStore IDStore) error {
	marketID, ok, err := idStore.ReadID(ctx, key)
	if err != nil {
		return fmt.Errorf("boundless producer: read id: %w", err)
	}
	if !ok {
		return nil
	}
	if err := p.market.Cancel(ctx, marketID); err != nil {
		return fmt.Errorf("boundless producer: cancel: %w", err)
	}
	return idStore.RemoveID(ctx, key)
}

func (p *BoundlessProducer) ProofType() proofrequest.ProofType { return proofrequest.ProofTypeBoundless }

var _ ProofProducer = (*BoundlessProducer)(nil)
