// Package aggregator implements the aggregator (C8): combining independent
// single-block TEE proofs into one chained proof, and delegating zk
// aggregation to an external recursive-proof collaborator, grounded on the
// teacher's prover/proof_producer/combined_producer.go parallel
// fan-out-then-combine shape.
package aggregator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"github.com/taikoxyz/raiko-sub001/pkg/witness"
	"github.com/taikoxyz/raiko-sub001/proof/producer"
)

const (
	teeProofLen   = 89  // instance_id(4) || new_instance(20) || sig(65)
	teeAggLen     = 109 // instance_id(4) || old_instance(20) || new_instance(20) || sig(65)
	instanceIDLen = 4
	addressLen    = 20
)

// ErrChainBroken is returned when one sub-proof's recovered signer does not
// match its declared new_instance, or the chain does not terminate at the
// current enclave's address — spec §8's P6.
var ErrChainBroken = fmt.Errorf("aggregator: TEE instance chain verification failed")

// TEEAggregator combines SGX/Nitro sub-proofs into one chained proof, per
// spec §4.8. It signs the aggregation hash with its own sealed key, so the
// resulting proof attests "I, the current enclave, verified this chain."
type TEEAggregator struct {
	instanceID uint32
	key        *producer.SealedKey
}

// NewTEEAggregator constructs a TEEAggregator backed by an already-loaded
// sealed key (the same key a TEEProducer for this enclave would use).
func NewTEEAggregator(instanceID uint32, key *producer.SealedKey) *TEEAggregator {
	return &TEEAggregator{instanceID: instanceID, key: key}
}

// Aggregate implements spec §4.8's TEE aggregation: verify each sub-proof's
// signer-recovery against its declared new_instance (P6), verify the chain
// terminates at this enclave's address, compute the aggregation hash over
// chainStart || final new_instance || every sub-proof's input, and return a
// new 109-byte chained proof signed by this enclave's key.
func (a *TEEAggregator) Aggregate(ctx context.Context, chainStart common.Address, proofs []*witness.Proof) (*witness.Proof, error) {
	if len(proofs) == 0 {
		return nil, fmt.Errorf("aggregator: no sub-proofs to aggregate")
	}

	newInstances := make([]common.Address, len(proofs))

	for i, p := range proofs {
		newInstance, err := verifySubProof(p)
		if err != nil {
			return nil, fmt.Errorf("aggregator: sub-proof %d: %w", i, err)
		}
		newInstances[i] = newInstance
	}

	finalInstance := newInstances[len(newInstances)-1]
	if finalInstance != a.key.Address {
		return nil, fmt.Errorf("%w: final new_instance %s does not match enclave address %s",
			ErrChainBroken, finalInstance, a.key.Address)
	}

	hash := aggregationHash(chainStart, finalInstance, proofs)

	sig, err := crypto.Sign(hash.Bytes(), a.key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("aggregator: sign aggregation hash: %w", err)
	}

	out := make([]byte, 0, teeAggLen)
	out = append(out, instanceIDBytes(a.instanceID)...)
	out = append(out, chainStart.Bytes()...)
	out = append(out, finalInstance.Bytes()...)
	out = append(out, sig...)

	return &witness.Proof{
		Proof: "0x" + common.Bytes2Hex(out),
		Input: &hash,
	}, nil
}

// verifySubProof decodes an 89-byte single-block TEE proof and checks that
// the signature over the proof's instance hash recovers to its declared
// new_instance address, per P6's per-sub-proof check.
func verifySubProof(p *witness.Proof) (common.Address, error) {
	if p.Input == nil {
		return common.Address{}, fmt.Errorf("missing instance hash input")
	}

	raw := common.FromHex(p.Proof)
	if len(raw) != teeProofLen {
		return common.Address{}, fmt.Errorf("expected %d-byte TEE proof, got %d", teeProofLen, len(raw))
	}

	newInstance := common.BytesToAddress(raw[instanceIDLen : instanceIDLen+addressLen])
	sig := raw[instanceIDLen+addressLen:]

	pubKey, err := crypto.SigToPub(p.Input.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	if recovered != newInstance {
		return common.Address{}, fmt.Errorf("%w: recovered signer %s != declared new_instance %s", ErrChainBroken, recovered, newInstance)
	}

	return newInstance, nil
}

// aggregationHash computes keccak(old_instance_padded || new_instance_padded
// || input_0 || ... || input_k), per spec §4.8.
func aggregationHash(oldInstance, newInstance common.Address, proofs []*witness.Proof) common.Hash {
	data := make([]byte, 0, addressLen*2+32*len(proofs))
	data = append(data, common.LeftPadBytes(oldInstance.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(newInstance.Bytes(), 32)...)
	for _, p := range proofs {
		data = append(data, p.Input.Bytes()...)
	}
	return crypto.Keccak256Hash(data)
}

func instanceIDBytes(id uint32) []byte {
	return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

// ZKAggregator delegates aggregation to a dedicated recursive-proof circuit
// (SP1/RISC0/Zisk's aggregation program), an external collaborator out of
// scope per spec §1 ("the in-guest proving circuits themselves"); this type
// only carries the dispatch and fan-in, grounded on combined_producer.go's
// errgroup-based parallel collection shape.
type ZKAggregator struct {
	Recursive RecursiveProver
}

// RecursiveProver runs the aggregation circuit over a set of (journal,
// proof) pairs and returns one recursive proof.
type RecursiveProver interface {
	Aggregate(ctx context.Context, journals [][]byte, proofBytes [][]byte) ([]byte, error)
}

// Aggregate gathers each sub-proof's instance hash as its journal and
// delegates to the recursive prover.
func (z *ZKAggregator) Aggregate(ctx context.Context, proofs []*witness.Proof) (*witness.Proof, error) {
	journals := make([][]byte, len(proofs))
	proofBytes := make([][]byte, len(proofs))

	g, _ := errgroup.WithContext(ctx)
	for i, p := range proofs {
		i, p := i, p
		g.Go(func() error {
			if p.Input == nil {
				return fmt.Errorf("zk aggregator: sub-proof %d missing instance hash", i)
			}
			journals[i] = p.Input.Bytes()
			proofBytes[i] = common.FromHex(p.Proof)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recursive, err := z.Recursive.Aggregate(ctx, journals, proofBytes)
	if err != nil {
		return nil, fmt.Errorf("zk aggregator: recursive aggregate: %w", err)
	}

	hash := crypto.Keccak256Hash(recursive)
	return &witness.Proof{
		Proof: "0x" + common.Bytes2Hex(recursive),
		Input: &hash,
	}, nil
}

var (
	_ producer.Aggregator = aggregatorAdapter{}
	_ producer.Aggregator = (*ZKAggregator)(nil)
)

// aggregatorAdapter adapts TEEAggregator's chainStart-taking signature to
// producer.Aggregator's simpler contract, fixing chainStart at the
// zero address — the common case where the chain has no predecessor
// (the first aggregation in a Shasta-style proof-carry-data sequence).
// Callers that need explicit chain continuity call TEEAggregator.Aggregate
// directly instead of going through this adapter.
type aggregatorAdapter struct {
	tee *TEEAggregator
}

func (a aggregatorAdapter) Aggregate(ctx context.Context, proofs []*witness.Proof) (*witness.Proof, error) {
	return a.tee.Aggregate(ctx, common.Address{}, proofs)
}

// AsProducerAggregator exposes a TEEAggregator through the simpler
// producer.Aggregator interface for callers that have no explicit chain
// predecessor to supply.
func AsProducerAggregator(tee *TEEAggregator) producer.Aggregator {
	return aggregatorAdapter{tee: tee}
}
