package producer

import (
	"context"
	"fmt"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
)

// NativeProducer validates a block by re-execution only: it never produces
// an actual SNARK/STARK/attestation artifact. proof is empty/"0x" and input
// is the instance hash, per spec §4.5.
type NativeProducer struct{}

func (NativeProducer) Run(
	_ context.Context,
	_ proofrequest.Key,
	_ *witness.GuestInput,
	output *witness.GuestOutput,
	_ IDStore,
) (*witness.Proof, error) {
	hash := output.InstanceHash
	return &witness.Proof{Proof: "0x", Input: &hash}, nil
}

// BatchRun validates a batch of blocks by re-execution only, same as Run:
// no artifact is produced, just the folded instance hash of the batch.
func (NativeProducer) BatchRun(
	_ context.Context,
	_ proofrequest.Key,
	_ []*witness.GuestInput,
	outputs []*witness.GuestOutput,
	_ IDStore,
) (*witness.Proof, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("native producer: batch_run requires at least one block: %w", ErrInvalidRequest)
	}
	hash := batchInstanceHash(outputs)
	return &witness.Proof{Proof: "0x", Input: &hash}, nil
}

func (NativeProducer) Cancel(context.Context, proofrequest.Key, IDStore) error { return nil }

func (NativeProducer) ProofType() proofrequest.ProofType { return proofrequest.ProofTypeNative }

var _ ProofProducer = NativeProducer{}
