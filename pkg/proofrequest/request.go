package proofrequest

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/cyberhorsey/errors"
)

// ErrInvalidRequestConfig is returned when a ProofRequestOpt is missing a
// field required to build a well-formed ProofRequest.
var ErrInvalidRequestConfig = errors.Validation.NewWithKeyAndDetail(
	"ERR_INVALID_REQUEST_CONFIG",
	"missing required field",
)

// ProofRequest is the validated, fully-populated request value consumed by
// the proof actor (C7). It is never constructed directly from untrusted
// input; callers build a ProofRequestOpt and call Validate.
type ProofRequest struct {
	BlockNumber           uint64
	L1InclusionBlockNumber uint64
	Network               string
	L1Network             string
	Graffiti              common.Hash
	ProverAddress         common.Address
	ProofType             ProofType
	BlobProofType         BlobProofType
	ProverArgs            map[string]json.RawMessage
}

// ProofRequestOpt mirrors the inbound wire shape: every field optional, to
// be merged over operator-supplied defaults before validation. This matches
// the "all fields optional in the wire shape" contract of spec §6.
type ProofRequestOpt struct {
	BlockNumber            *uint64                    `json:"block_number,omitempty"`
	L1InclusionBlockNumber *uint64                    `json:"l1_inclusion_block_number,omitempty"`
	Network                *string                    `json:"network,omitempty"`
	L1Network              *string                    `json:"l1_network,omitempty"`
	Graffiti               *string                    `json:"graffiti,omitempty"`
	Prover                 *string                    `json:"prover,omitempty"`
	ProofType              *string                    `json:"proof_type,omitempty"`
	BlobProofType          *string                    `json:"blob_proof_type,omitempty"`
	ProverArgs             map[string]json.RawMessage `json:"prover_args,omitempty"`
}

// Merge overlays non-nil fields of other onto a copy of o, matching the
// "server merges over defaults" rule of spec §6. Fields set on other win.
func (o ProofRequestOpt) Merge(other ProofRequestOpt) ProofRequestOpt {
	merged := o
	if other.BlockNumber != nil {
		merged.BlockNumber = other.BlockNumber
	}
	if other.L1InclusionBlockNumber != nil {
		merged.L1InclusionBlockNumber = other.L1InclusionBlockNumber
	}
	if other.Network != nil {
		merged.Network = other.Network
	}
	if other.L1Network != nil {
		merged.L1Network = other.L1Network
	}
	if other.Graffiti != nil {
		merged.Graffiti = other.Graffiti
	}
	if other.Prover != nil {
		merged.Prover = other.Prover
	}
	if other.ProofType != nil {
		merged.ProofType = other.ProofType
	}
	if other.BlobProofType != nil {
		merged.BlobProofType = other.BlobProofType
	}
	if other.ProverArgs != nil {
		if merged.ProverArgs == nil {
			merged.ProverArgs = make(map[string]json.RawMessage, len(other.ProverArgs))
		}
		for k, v := range other.ProverArgs {
			merged.ProverArgs[k] = v
		}
	}
	return merged
}

// Validate converts a merged ProofRequestOpt into a ProofRequest, rejecting
// missing required fields before the request ever reaches the pool, per
// spec §3, with a validation error that carries ErrInvalidRequestConfig's
// key (ERR_INVALID_REQUEST_CONFIG) and a detail naming the field.
func (o ProofRequestOpt) Validate() (*ProofRequest, error) {
	if o.BlockNumber == nil {
		return nil, errors.Validation.NewWithKeyAndDetail("ERR_INVALID_REQUEST_CONFIG", "block_number required")
	}
	if o.Network == nil || *o.Network == "" {
		return nil, errors.Validation.NewWithKeyAndDetail("ERR_INVALID_REQUEST_CONFIG", "network required")
	}
	if o.L1Network == nil || *o.L1Network == "" {
		return nil, errors.Validation.NewWithKeyAndDetail("ERR_INVALID_REQUEST_CONFIG", "l1_network required")
	}
	if o.Prover == nil || !common.IsHexAddress(*o.Prover) {
		return nil, errors.Validation.NewWithKeyAndDetail("ERR_INVALID_REQUEST_CONFIG", "prover address required")
	}
	if o.ProofType == nil {
		return nil, errors.Validation.NewWithKeyAndDetail("ERR_INVALID_REQUEST_CONFIG", "proof_type required")
	}

	pt, err := ParseProofType(*o.ProofType)
	if err != nil {
		return nil, err
	}

	blobProofType := BlobProofTypeProofOfCommitment
	if o.BlobProofType != nil && *o.BlobProofType == "proof_of_equivalence" {
		blobProofType = BlobProofTypeProofOfEquivalence
	}

	var graffiti common.Hash
	if o.Graffiti != nil {
		graffiti = common.HexToHash(*o.Graffiti)
	}

	var l1InclusionBlockNumber uint64
	if o.L1InclusionBlockNumber != nil {
		l1InclusionBlockNumber = *o.L1InclusionBlockNumber
	}

	return &ProofRequest{
		BlockNumber:            *o.BlockNumber,
		L1InclusionBlockNumber: l1InclusionBlockNumber,
		Network:                *o.Network,
		L1Network:              *o.L1Network,
		Graffiti:               graffiti,
		ProverAddress:          common.HexToAddress(*o.Prover),
		ProofType:              pt,
		BlobProofType:          blobProofType,
		ProverArgs:             o.ProverArgs,
	}, nil
}
