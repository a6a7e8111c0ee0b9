package proofrequest

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key is the deterministic tuple identifying a proving task, per spec §3.
// Equal requests MUST produce identical keys; Key is also the deduplication
// unit of the pool (C6).
type Key struct {
	ChainID       uint64
	BlockID       uint64
	BlockHash     common.Hash
	ProofType     ProofType
	ProverAddress common.Address
}

// NewKey builds a Key from its constituent fields. All fields are required;
// there is no validation beyond the type system since a Key is always
// derived internally, never parsed from untrusted wire input.
func NewKey(chainID, blockID uint64, blockHash common.Hash, proofType ProofType, prover common.Address) Key {
	return Key{
		ChainID:       chainID,
		BlockID:       blockID,
		BlockHash:     blockHash,
		ProofType:     proofType,
		ProverAddress: prover,
	}
}

// String renders a stable, human-readable and map-safe identifier, used as
// the Redis key suffix (the memory pool backend keys its map by Key itself).
func (k Key) String() string {
	return fmt.Sprintf("%d-%d-%s-%s-%s", k.ChainID, k.BlockID, k.BlockHash.Hex(), k.ProofType, k.ProverAddress.Hex())
}
