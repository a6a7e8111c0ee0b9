package builder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"

	"github.com/taikoxyz/raiko-sub001/pkg/witness"
)

// Shasta-fork constants from spec §4.4's "Shasta-fork extensions". Gas
// limit bounds and the base-fee clamp are expressed in wei-per-gwei terms
// using go-ethereum's GWei constant, matching how the teacher's
// bindings/encoding package expresses protocol config in base units
// (bindings/encoding/protocol_config.go's GasIssuancePerSecond etc. are
// also plain integer base units, not floating gwei).
const (
	shastaTimestampMaxOffset = 12 // seconds; proposal.ts - offset lower-bounds block.ts
	shastaGasLimitBpsDelta   = 10 // ±10bps of parent
	shastaGasLimitMin        = 10_000_000
	shastaGasLimitMax        = 100_000_000
)

var (
	shastaBaseFeeMin = new(big.Int).Div(big.NewInt(params.GWei), big.NewInt(200)) // 0.005 gwei
	shastaBaseFeeMax = big.NewInt(params.GWei)                                    // 1 gwei
)

// ValidateShastaHeader enforces the additional timestamp, gas-limit, and
// base-fee rules that apply once the Shasta fork is active, on top of the
// base validation performed by Build. It is a separate entry point so
// callers can apply it only for chains/blocks where ChainSpec.ShastaActive
// is true, per spec §4.4.
func ValidateShastaHeader(input *witness.GuestInput, blockTimestamp uint64, proposalTimestamp uint64, gasLimit uint64, baseFee *big.Int) error {
	if !input.ChainSpec.ShastaActive {
		return nil
	}

	parentTimestamp := input.ParentHeader.Time
	lowerBound := parentTimestamp + 1
	if proposalTimestamp > shastaTimestampMaxOffset && proposalTimestamp-shastaTimestampMaxOffset > lowerBound {
		lowerBound = proposalTimestamp - shastaTimestampMaxOffset
	}
	if blockTimestamp < lowerBound || blockTimestamp > proposalTimestamp {
		return fmt.Errorf("shasta: timestamp %d out of bounds [%d, %d]", blockTimestamp, lowerBound, proposalTimestamp)
	}

	parentGasLimit := input.ParentHeader.GasLimit
	delta := parentGasLimit * shastaGasLimitBpsDelta / 10_000
	minLimit := parentGasLimit - delta
	maxLimit := parentGasLimit + delta
	if minLimit < shastaGasLimitMin {
		minLimit = shastaGasLimitMin
	}
	if maxLimit > shastaGasLimitMax {
		maxLimit = shastaGasLimitMax
	}
	if gasLimit < minLimit || gasLimit > maxLimit {
		return fmt.Errorf("shasta: gas limit %d out of bounds [%d, %d]", gasLimit, minLimit, maxLimit)
	}

	if baseFee == nil {
		return fmt.Errorf("shasta: base fee required")
	}
	if baseFee.Cmp(shastaBaseFeeMin) < 0 || baseFee.Cmp(shastaBaseFeeMax) > 0 {
		return fmt.Errorf("shasta: base fee %s out of clamp [%s, %s]", baseFee, shastaBaseFeeMin, shastaBaseFeeMax)
	}

	return nil
}
