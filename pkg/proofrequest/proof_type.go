// Package proofrequest defines the wire-level request and status types shared
// by the preflight engine, the task pool, and the proof actor.
package proofrequest

import (
	"strings"

	"github.com/cyberhorsey/errors"
)

// ProofType selects which backend driver (C5) handles a request and which
// instance-hash domain applies when the block builder (C4) finalizes output.
type ProofType uint8

const (
	ProofTypeUnspecified ProofType = iota
	ProofTypeNative
	ProofTypeSgx
	ProofTypeSp1
	ProofTypeRisc0
	ProofTypeZisk
	ProofTypeNitro
	ProofTypeBoundless
)

// ErrInvalidProofType is returned by ParseProofType for any string that does
// not case-insensitively match a known variant.
var ErrInvalidProofType = errors.Validation.NewWithKeyAndDetail(
	"ERR_INVALID_PROOF_TYPE",
	"unrecognized proof type",
)

// ParseProofType parses a proof type name case-insensitively, matching the
// wire shape described by the inbound ProofRequestOpt JSON.
func ParseProofType(s string) (ProofType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native":
		return ProofTypeNative, nil
	case "sgx":
		return ProofTypeSgx, nil
	case "sp1":
		return ProofTypeSp1, nil
	case "risc0":
		return ProofTypeRisc0, nil
	case "zisk":
		return ProofTypeZisk, nil
	case "nitro":
		return ProofTypeNitro, nil
	case "boundless":
		return ProofTypeBoundless, nil
	default:
		return ProofTypeUnspecified, ErrInvalidProofType
	}
}

// String implements fmt.Stringer, matching the lowercase wire form.
func (p ProofType) String() string {
	switch p {
	case ProofTypeNative:
		return "native"
	case ProofTypeSgx:
		return "sgx"
	case ProofTypeSp1:
		return "sp1"
	case ProofTypeRisc0:
		return "risc0"
	case ProofTypeZisk:
		return "zisk"
	case ProofTypeNitro:
		return "nitro"
	case ProofTypeBoundless:
		return "boundless"
	default:
		return "unspecified"
	}
}

// IsTEE reports whether the backend produces a signed-attestation proof
// (SGX, Nitro) rather than a zk-SNARK/STARK artifact.
func (p ProofType) IsTEE() bool {
	return p == ProofTypeSgx || p == ProofTypeNitro
}

// BlobProofType selects how a blob's KZG commitment is carried in the proof.
type BlobProofType uint8

const (
	BlobProofTypeProofOfCommitment BlobProofType = iota
	BlobProofTypeProofOfEquivalence
)

func (b BlobProofType) String() string {
	if b == BlobProofTypeProofOfEquivalence {
		return "proof_of_equivalence"
	}
	return "proof_of_commitment"
}
