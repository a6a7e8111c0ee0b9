// Package producer implements the driver interface (C5): a uniform contract
// over every proving backend (native, sgx, sp1, risc0, zisk, nitro,
// boundless), grounded on the teacher's prover/proof_producer package but
// re-targeted from "call a remote raiko-host over HTTP" to "act as the
// raiko-host" — each type here is the in-process driver itself.
package producer

import (
	"context"
	stderrors "errors"

	"github.com/cyberhorsey/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
)

// ErrFeatureNotSupported describes a proof_type whose backend is not
// enabled at runtime (spec §4.5). Nothing in this module returns it: the
// actor records StatusInvalidOrUnsupportedBlock for a proof type with no
// registered producer.
var ErrFeatureNotSupported = errors.Validation.NewWithKeyAndDetail(
	"ERR_FEATURE_NOT_SUPPORTED",
	"backend not enabled",
)

// Sentinel causes a backend wraps its errors in, so the actor's error
// classification (spec §7/§8 scenario 4) can tell a guest-side proving
// failure apart from a transient network failure apart from a bad request,
// by inspecting the error chain rather than guessing from a constant.
var (
	// ErrInvalidRequest marks a malformed call into a backend (e.g. an
	// empty batch), never the backend's fault.
	ErrInvalidRequest = stderrors.New("producer: invalid request")
	// ErrGuestFailure marks the proving/attestation step itself failing —
	// the enclave, the zk circuit, or local proof verification.
	ErrGuestFailure = stderrors.New("producer: guest execution failed")
	// ErrNetworkFailure marks a remote collaborator (the Boundless market)
	// being unreachable or erroring.
	ErrNetworkFailure = stderrors.New("producer: network failure")
	// ErrIoFailure marks the id-store (pool backend) failing to
	// persist/read/remove a request's market/job id.
	ErrIoFailure = stderrors.New("producer: io failure")
)

// IDStore lets a long-running remote backend persist an opaque handle so
// cancellation survives process restarts (spec §4.5). It is implemented by
// pool.Pool's StoreID/ReadID/RemoveID trio; kept as its own minimal
// interface here so producer does not import pool (avoiding a dependency
// cycle with the actor, which imports both).
type IDStore interface {
	StoreID(ctx context.Context, key proofrequest.Key, id string) error
	ReadID(ctx context.Context, key proofrequest.Key) (string, bool, error)
	RemoveID(ctx context.Context, key proofrequest.Key) error
}

// ProofProducer is the uniform driver contract of spec §4.5.
type ProofProducer interface {
	// Run produces a proof for a single block.
	Run(ctx context.Context, key proofrequest.Key, input *witness.GuestInput, output *witness.GuestOutput, idStore IDStore) (*witness.Proof, error)
	// BatchRun produces one proof covering multiple blocks, per spec
	// §4.5's batch_run — a distinct, mandatory operation from Run, not a
	// loop over it: the backend folds every block's instance hash into one
	// proof rather than producing one proof per block.
	BatchRun(ctx context.Context, key proofrequest.Key, inputs []*witness.GuestInput, outputs []*witness.GuestOutput, idStore IDStore) (*witness.Proof, error)
	// Cancel asks the backend to abort an in-flight or previously
	// dispatched request. It MUST be idempotent.
	Cancel(ctx context.Context, key proofrequest.Key, idStore IDStore) error
	// ProofType identifies which backend this producer implements.
	ProofType() proofrequest.ProofType
}

// batchInstanceHash folds a batch's per-block instance hashes into the one
// journal/envelope payload batch_run backends sign or prove over, per spec
// §4.5. Ordering matters: outputs must be passed in block order so
// BatchRun's result is deterministic (P3 extends to batches).
func batchInstanceHash(outputs []*witness.GuestOutput) common.Hash {
	buf := make([]byte, 0, len(outputs)*common.HashLength)
	for _, o := range outputs {
		buf = append(buf, o.InstanceHash.Bytes()...)
	}
	return crypto.Keccak256Hash(buf)
}

// Aggregator is implemented by backends that support combining independent
// single-block proofs into one (spec §4.5's `aggregate`); non-aggregating
// backends simply do not implement it, letting batch callers detect support
// with a type assertion rather than a sentinel error.
type Aggregator interface {
	Aggregate(ctx context.Context, proofs []*witness.Proof) (*witness.Proof, error)
}
