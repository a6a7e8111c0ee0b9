package producer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
)

// ZKProver is the external collaborator producing the opaque zk proof
// bytes over a journal — one concrete implementation per backend lives
// outside this package (SP1/RISC0/Zisk guest circuits are out of scope per
// spec §1, "the in-guest proving circuits themselves"). ZKProducer only
// carries the dispatch contract.
type ZKProver interface {
	// Prove returns the opaque proof bytes for the given instance hash
	// journal, and a uuid if the backend exposes one (e.g. a mock-prover
	// run id).
	Prove(ctx context.Context, journal []byte) (proofBytes []byte, uuid string, err error)
	// Verify optionally checks the produced proof locally, matching spec
	// §4.5's "optional verification step runs the verifier locally".
	Verify(ctx context.Context, journal []byte, proofBytes []byte) (bool, error)
}

// ZKProducer implements the SP1/RISC0/Zisk backend shape: an opaque
// zk-STARK/SNARK proof over the journal `instance_hash`, grounded on the
// teacher's compose_proof_producer.go multi-backend dispatch pattern.
type ZKProducer struct {
	proofType proofrequest.ProofType
	prover    ZKProver
	verify    bool
}

// NewZKProducer constructs a zk backend producer. verify controls whether
// the optional local-verification step runs after proving.
func NewZKProducer(proofType proofrequest.ProofType, prover ZKProver, verify bool) *ZKProducer {
	return &ZKProducer{proofType: proofType, prover: prover, verify: verify}
}

func (p *ZKProducer) Run(
	ctx context.Context,
	_ proofrequest.Key,
	_ *witness.GuestInput,
	output *witness.GuestOutput,
	_ IDStore,
) (*witness.Proof, error) {
	journal := output.InstanceHash.Bytes()

	proofBytes, uuid, err := p.prover.Prove(ctx, journal)
	if err != nil {
		return nil, fmt.Errorf("%s producer: prove: %w: %w", p.proofType, ErrGuestFailure, err)
	}

	if p.verify {
		ok, err := p.prover.Verify(ctx, journal, proofBytes)
		if err != nil {
			return nil, fmt.Errorf("%s producer: verify: %w: %w", p.proofType, ErrGuestFailure, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s producer: local verification failed: %w", p.proofType, ErrGuestFailure)
		}
	}

	hash := output.InstanceHash
	return &witness.Proof{
		Proof: "0x" + common.Bytes2Hex(proofBytes),
		Input: &hash,
		UUID:  uuid,
	}, nil
}

// BatchRun proves the batch's folded instance hash as a single journal,
// per spec §4.5's batch_run.
func (p *ZKProducer) BatchRun(
	ctx context.Context,
	_ proofrequest.Key,
	_ []*witness.GuestInput,
	outputs []*witness.GuestOutput,
	_ IDStore,
) (*witness.Proof, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%s producer: batch_run requires at least one block: %w", p.proofType, ErrInvalidRequest)
	}

	hash := batchInstanceHash(outputs)
	journal := hash.Bytes()

	proofBytes, uuid, err := p.prover.Prove(ctx, journal)
	if err != nil {
		return nil, fmt.Errorf("%s producer: batch prove: %w: %w", p.proofType, ErrGuestFailure, err)
	}

	if p.verify {
		ok, err := p.prover.Verify(ctx, journal, proofBytes)
		if err != nil {
			return nil, fmt.Errorf("%s producer: batch verify: %w: %w", p.proofType, ErrGuestFailure, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s producer: batch local verification failed: %w", p.proofType, ErrGuestFailure)
		}
	}

	return &witness.Proof{
		Proof: "0x" + common.Bytes2Hex(proofBytes),
		Input: &hash,
		UUID:  uuid,
	}, nil
}

// Cancel is a no-op: the zk backends modeled here run synchronously to
// completion within Run (no remote job id to abort).
func (p *ZKProducer) Cancel(context.Context, proofrequest.Key, IDStore) error { return nil }

func (p *ZKProducer) ProofType() proofrequest.ProofType { return p.proofType }

var _ ProofProducer = (*ZKProducer)(nil)
