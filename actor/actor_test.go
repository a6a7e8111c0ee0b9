package actor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
	"github.com/taikoxyz/raiko-sub001/pool"
	"github.com/taikoxyz/raiko-sub001/proof/producer"
)

type fakePipeline struct {
	err   error
	block chan struct{}
}

func (f *fakePipeline) Run(ctx context.Context, req *proofrequest.ProofRequest) (*witness.GuestInput, *witness.GuestOutput, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	return &witness.GuestInput{}, &witness.GuestOutput{Header: &types.Header{}}, nil
}

func testReq() *proofrequest.ProofRequest {
	return &proofrequest.ProofRequest{
		BlockNumber:   10,
		ProverAddress: common.HexToAddress("0xabc"),
		ProofType:     proofrequest.ProofTypeNative,
	}
}

func TestActorSubmitRunsToSuccess(t *testing.T) {
	p := pool.NewMemoryPool()
	a := New(Config{MaxConcurrentWorkers: 2}, p, &fakePipeline{}, map[proofrequest.ProofType]producer.ProofProducer{
		proofrequest.ProofTypeNative: producer.NativeProducer{},
	})
	ctx := context.Background()
	a.Start(ctx)
	defer a.Close()

	req := testReq()
	require.NoError(t, a.Submit(ctx, req, 1, [32]byte{1}))

	key := proofrequest.NewKey(1, req.BlockNumber, common.Hash{1}, req.ProofType, req.ProverAddress)

	require.Eventually(t, func() bool {
		rec, ok, err := p.Get(ctx, key)
		return err == nil && ok && rec.Status == proofrequest.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
}

func TestActorSubmitIdempotentDoesNotReschedule(t *testing.T) {
	p := pool.NewMemoryPool()
	a := New(Config{MaxConcurrentWorkers: 1}, p, &fakePipeline{}, map[proofrequest.ProofType]producer.ProofProducer{
		proofrequest.ProofTypeNative: producer.NativeProducer{},
	})
	ctx := context.Background()
	a.Start(ctx)
	defer a.Close()

	req := testReq()
	key := proofrequest.NewKey(1, req.BlockNumber, common.Hash{1}, req.ProofType, req.ProverAddress)

	require.NoError(t, p.Enqueue(ctx, key, pool.Entity{Request: *req}, proofrequest.StatusSuccess))
	require.NoError(t, a.Submit(ctx, req, 1, [32]byte{1}))

	time.Sleep(50 * time.Millisecond)
	rec, ok, err := p.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, proofrequest.StatusSuccess, rec.Status)
}

func TestActorCancelAbortsInFlightWork(t *testing.T) {
	p := pool.NewMemoryPool()
	block := make(chan struct{})
	a := New(Config{MaxConcurrentWorkers: 1}, p, &fakePipeline{block: block}, map[proofrequest.ProofType]producer.ProofProducer{
		proofrequest.ProofTypeNative: producer.NativeProducer{},
	})
	ctx := context.Background()
	a.Start(ctx)
	defer a.Close()

	req := testReq()
	key := proofrequest.NewKey(1, req.BlockNumber, common.Hash{1}, req.ProofType, req.ProverAddress)
	require.NoError(t, a.Submit(ctx, req, 1, [32]byte{1}))

	require.Eventually(t, func() bool {
		rec, ok, _ := p.Get(ctx, key)
		return ok && rec.Status == proofrequest.StatusWorkInProgress
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, a.Cancel(ctx, key))

	require.Eventually(t, func() bool {
		rec, ok, _ := p.Get(ctx, key)
		return ok && rec.Status == proofrequest.StatusCancelledAborted
	}, 2*time.Second, 10*time.Millisecond)

	close(block)
}

func TestActorUnsupportedProofTypeFailsFast(t *testing.T) {
	p := pool.NewMemoryPool()
	a := New(Config{MaxConcurrentWorkers: 1}, p, &fakePipeline{}, map[proofrequest.ProofType]producer.ProofProducer{})
	ctx := context.Background()
	a.Start(ctx)
	defer a.Close()

	req := testReq()
	key := proofrequest.NewKey(1, req.BlockNumber, common.Hash{1}, req.ProofType, req.ProverAddress)
	require.NoError(t, a.Submit(ctx, req, 1, [32]byte{1}))

	require.Eventually(t, func() bool {
		rec, ok, _ := p.Get(ctx, key)
		return ok && rec.Status == proofrequest.StatusInvalidOrUnsupportedBlock
	}, time.Second, 10*time.Millisecond)
}

func TestActorPipelineErrorFails(t *testing.T) {
	p := pool.NewMemoryPool()
	a := New(Config{MaxConcurrentWorkers: 1}, p, &fakePipeline{err: fmt.Errorf("boom")}, map[proofrequest.ProofType]producer.ProofProducer{
		proofrequest.ProofTypeNative: producer.NativeProducer{},
	})
	ctx := context.Background()
	a.Start(ctx)
	defer a.Close()

	req := testReq()
	key := proofrequest.NewKey(1, req.BlockNumber, common.Hash{1}, req.ProofType, req.ProverAddress)
	require.NoError(t, a.Submit(ctx, req, 1, [32]byte{1}))

	require.Eventually(t, func() bool {
		rec, ok, _ := p.Get(ctx, key)
		return ok && rec.Status == proofrequest.StatusInvalidOrUnsupportedBlock
	}, time.Second, 10*time.Millisecond)
}
