// Package witness defines the GuestInput/GuestOutput/Proof types that flow
// between the preflight engine (C2), the block builder (C4), and the driver
// interface (C5).
package witness

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/statedb"
)

// AccountWitness is the pre-state entry for one address: balance, nonce,
// code (if any), and the storage slots touched during preflight.
type AccountWitness struct {
	Balance *big.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// ChainSpec names the active fork parameters, mirroring the "active chain
// spec and fork id" field of GuestInput in spec §3. It is deliberately thin:
// chain-spec *definition* is an external collaborator out of scope (spec
// §1); this struct only carries what C4 needs to validate and build.
type ChainSpec struct {
	Name            string
	ChainID         uint64
	IsTaiko         bool
	MinFork         string // e.g. "Shanghai" — enforced minimum per spec §4.4
	ShastaActive    bool
	ShastaTimestamp uint64
}

// GuestInput is the complete witness: block metadata, parent header,
// pre-state, code, ancestor hashes, and Taiko-specific fields, per spec §3.
type GuestInput struct {
	Block        *types.Block
	ParentHeader *types.Header

	// Accounts and Storages hold the EVM pre-state as sparse maps keyed by
	// address, mirroring the "accounts, storages as sparse tries" wording
	// of spec §3 — tries are constructed lazily by the block builder from
	// these maps rather than carried here directly.
	Accounts map[common.Address]*AccountWitness
	Codes    map[common.Hash][]byte

	// AncestorHashes holds up to 256 preceding block hashes keyed by block
	// number, satisfying the BLOCKHASH-256 invariant of spec §3.
	AncestorHashes map[uint64]common.Hash

	// Taiko-specific fields.
	AnchorTx              *types.Transaction
	L1BlockID             uint64
	L1StateRoot           common.Hash
	L1InclusionBlockHash  common.Hash
	TxListBytes           []byte
	Blob                  []byte
	BlobKZGCommitment     []byte
	BlobProofType         proofrequest.BlobProofType

	ChainSpec ChainSpec
	ForkID    string

	// Proofs carries the merkle proof pair bracketing this block's state
	// transition (spec §4.3's get_proofs), nil until the preflight engine's
	// final pass populates it. Drivers that verify state transitions
	// against account/storage proofs rather than trusting the witness's
	// MemDB tiers directly read it from here.
	Proofs *statedb.ProofSet
}

// GuestOutput is the reproduced header plus the instance hash binding the
// proven block to its public inputs, per spec §3 and §4.4.
type GuestOutput struct {
	Header       *types.Header
	InstanceHash common.Hash
}

// Proof is the backend-agnostic proof artifact, per spec §3.
type Proof struct {
	Proof    string // hex, optional
	Quote    string // hex, TEE only
	Input    *common.Hash
	UUID     string // backend-side handle, optional
	KZGProof string // hex, optional
}

// IsEmpty reports whether the proof carries no artifact at all, the shape
// used by the Native backend (spec §4.5: "proof is empty/'0x'").
func (p Proof) IsEmpty() bool {
	return p.Proof == "" || p.Proof == "0x"
}
