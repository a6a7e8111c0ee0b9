// Package builder implements the block builder (C4): deterministically
// reconstructing the L2 block header from a witness and tx-list, then
// computing the protocol instance hash, grounded on the original raiko
// RethBlockBuilder's prepare/execute/finalize sequence.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
	"github.com/taikoxyz/raiko-sub001/statedb"
)

// maxExtraDataBytes is the header extra-data length ceiling enforced by
// spec §4.4 step 1, matching the original's MAX_EXTRA_DATA_BYTES.
const maxExtraDataBytes = 32

// maxBlobGasPerBlock bounds the sum of blob gas used across all blob
// transactions in a block, per spec §4.4 step 5.
const maxBlobGasPerBlock = params.BlobTxBlobGasPerBlob * 6

// Executor runs one transaction against db and reports whether it was
// skipped (Taiko tolerance, spec §4.4 step 5 / P9) along with its receipt
// and any storage changes it produced. The EVM itself — go-ethereum's
// core/vm — is an external collaborator wired in by the concrete
// implementation; Builder only orchestrates the sequence described in
// spec §4.4.
type Executor interface {
	ExecuteAnchor(ctx *ExecContext, tx *types.Transaction) (*types.Receipt, error)
	ExecuteTransaction(ctx *ExecContext, tx *types.Transaction) (receipt *types.Receipt, skipped bool, err error)
	ApplySystemCall(ctx *ExecContext, beaconRoot common.Hash) error
}

// ExecContext threads the per-block EVM environment (chain id, block env,
// the provider-backed state DB) through Executor calls. Ctx carries the
// caller's cancellation signal into any blocking eager-mode state fetch an
// Executor triggers via DB.
type ExecContext struct {
	Ctx         context.Context
	ChainID     uint64
	BlockNumber *big.Int
	Timestamp   uint64
	Coinbase    common.Address
	BaseFee     *big.Int
	GasLimit    uint64
	MixDigest   common.Hash
	DB          *statedb.ProviderDB
}

// Builder reconstructs a block header from a GuestInput, per spec §4.4.
type Builder struct {
	executor Executor
}

// New constructs a Builder backed by the given Executor.
func New(executor Executor) *Builder {
	return &Builder{executor: executor}
}

// Build runs the full spec §4.4 sequence: validate, prepare header, run the
// Cancun beacon-roots system call, execute the anchor and user
// transactions, accumulate tries, compute the withdrawals root, recompute
// the state root, and check the header hash against reference. Withdrawal
// amounts are not credited to account balances.
func (b *Builder) Build(ctx context.Context, input *witness.GuestInput, db *statedb.ProviderDB, reference *types.Header) (*witness.GuestOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	header, err := prepareHeader(input)
	if err != nil {
		return nil, err
	}

	execCtx := &ExecContext{
		Ctx:         ctx,
		ChainID:     input.ChainSpec.ChainID,
		BlockNumber: header.Number,
		Timestamp:   header.Time,
		Coinbase:    header.Coinbase,
		BaseFee:     header.BaseFee,
		GasLimit:    header.GasLimit,
		MixDigest:   header.MixDigest,
		DB:          db,
	}

	if input.ParentHeader != nil && header.ParentBeaconRoot != nil {
		if err := b.executor.ApplySystemCall(execCtx, *header.ParentBeaconRoot); err != nil {
			return nil, fmt.Errorf("builder: beacon roots system call: %w", err)
		}
	}

	receipts := make([]*types.Receipt, 0)
	cumulativeGasUsed := uint64(0)
	var bloom types.Bloom
	txIndex := 0

	if input.ChainSpec.IsTaiko {
		if input.AnchorTx == nil {
			return nil, fmt.Errorf("builder: taiko block missing anchor transaction")
		}
		receipt, err := b.executor.ExecuteAnchor(execCtx, input.AnchorTx)
		if err != nil {
			return nil, fmt.Errorf("builder: anchor transaction failed: %w", err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return nil, fmt.Errorf("builder: anchor transaction reverted")
		}
		receipts = append(receipts, receipt)
		cumulativeGasUsed += receipt.GasUsed
		for i := range bloom {
			bloom[i] |= receipt.Bloom[i]
		}
		txIndex++
	}

	blobGasUsed := uint64(0)
	if input.Block != nil {
		txs := input.Block.Transactions()
		if input.ChainSpec.IsTaiko && len(txs) > 0 {
			// The anchor transaction is txs[0] (spec §4.2 step 3) and was
			// already applied via ExecuteAnchor above; skip it here so it
			// is not executed twice.
			txs = txs[1:]
		}
		for _, tx := range txs {
			if err := validateTxLimits(tx, header); err != nil {
				if input.ChainSpec.IsTaiko {
					continue // P9: Taiko skips invalid transactions.
				}
				return nil, fmt.Errorf("builder: invalid transaction on non-Taiko chain: %w", err)
			}
			if blobGasUsed+tx.BlobGas() > maxBlobGasPerBlock {
				if input.ChainSpec.IsTaiko {
					continue
				}
				return nil, fmt.Errorf("builder: invalid transaction on non-Taiko chain: block blob gas %d exceeds maximum %d", blobGasUsed+tx.BlobGas(), maxBlobGasPerBlock)
			}

			receipt, skipped, err := b.executor.ExecuteTransaction(execCtx, tx)
			if err != nil {
				if input.ChainSpec.IsTaiko {
					continue
				}
				return nil, fmt.Errorf("builder: transaction execution failed: %w", err)
			}
			if skipped {
				if input.ChainSpec.IsTaiko {
					continue
				}
				return nil, fmt.Errorf("builder: transaction %s skipped by executor on non-Taiko chain", tx.Hash())
			}

			blobGasUsed += tx.BlobGas()
			receipt.TransactionIndex = uint(txIndex)
			receipts = append(receipts, receipt)
			cumulativeGasUsed += receipt.GasUsed
			for i := range bloom {
				bloom[i] |= receipt.Bloom[i]
			}
			txIndex++
		}
	}

	header.GasUsed = cumulativeGasUsed
	header.Bloom = bloom
	header.ReceiptHash = types.DeriveSha(types.Receipts(receipts), trie.NewStackTrie(nil))
	header.TxHash = computeTransactionsRoot(receipts, input.Block)

	if header.WithdrawalsHash != nil && input.Block != nil && input.Block.Withdrawals() != nil {
		wHash := types.DeriveSha(input.Block.Withdrawals(), trie.NewStackTrie(nil))
		header.WithdrawalsHash = &wHash
	}

	stateRoot, err := FinalizeStateRoot(db.InitialTier(), db.CurrentTier())
	if err != nil {
		return nil, fmt.Errorf("builder: finalize state root: %w", err)
	}
	header.Root = stateRoot

	if err := compareHeaders(header, reference); err != nil {
		return nil, err
	}

	instanceHash := computeInstanceHash(input, header)

	return &witness.GuestOutput{Header: header, InstanceHash: instanceHash}, nil
}

func validateInput(input *witness.GuestInput) error {
	if input.ParentHeader != nil && input.Block != nil && input.Block.Time() < input.ParentHeader.Time {
		return fmt.Errorf("builder: invalid timestamp: expected >= %d, got %d", input.ParentHeader.Time, input.Block.Time())
	}
	if input.Block != nil && len(input.Block.Extra()) > maxExtraDataBytes {
		return fmt.Errorf("builder: invalid extra data: expected <= %d, got %d", maxExtraDataBytes, len(input.Block.Extra()))
	}
	if input.ChainSpec.MinFork != "" && !forkAtLeast(input.ChainSpec, "Shanghai") {
		return fmt.Errorf("builder: chain spec fork %q below minimum Shanghai", input.ChainSpec.MinFork)
	}
	return nil
}

func forkAtLeast(spec witness.ChainSpec, min string) bool {
	order := map[string]int{"Homestead": 0, "London": 1, "Shanghai": 2, "Cancun": 3, "Shasta": 4}
	return order[spec.MinFork] >= order[min]
}

func prepareHeader(input *witness.GuestInput) (*types.Header, error) {
	if input.Block == nil || input.ParentHeader == nil {
		return nil, fmt.Errorf("builder: missing block or parent header")
	}
	b := input.Block
	h := &types.Header{
		ParentHash:    input.ParentHeader.Hash(),
		Number:        new(big.Int).Add(input.ParentHeader.Number, common.Big1),
		Coinbase:      b.Coinbase(),
		GasLimit:      b.GasLimit(),
		Time:          b.Time(),
		MixDigest:     b.MixDigest(),
		Extra:         b.Extra(),
		BaseFee:       b.BaseFee(),
		BlobGasUsed:   b.BlobGasUsed(),
		ExcessBlobGas: b.ExcessBlobGas(),
		Difficulty:    common.Big0,
		UncleHash:     types.EmptyUncleHash,
		Nonce:         types.BlockNonce{},
	}
	if root := b.BeaconRoot(); root != nil {
		h.ParentBeaconRoot = root
	}
	if b.Withdrawals() != nil {
		empty := types.EmptyWithdrawalsHash
		h.WithdrawalsHash = &empty
	}
	return h, nil
}

func validateTxLimits(tx *types.Transaction, header *types.Header) error {
	signer := types.LatestSignerForChainID(tx.ChainId())
	if _, err := types.Sender(signer, tx); err != nil {
		return fmt.Errorf("invalid sender signature: %w", err)
	}
	if tx.Gas() > header.GasLimit {
		return fmt.Errorf("tx gas limit %d exceeds block gas limit %d", tx.Gas(), header.GasLimit)
	}
	if tx.Type() == types.BlobTxType {
		blobGas := tx.BlobGas()
		if blobGas > maxBlobGasPerBlock {
			return fmt.Errorf("blob gas %d exceeds per-block maximum %d", blobGas, maxBlobGasPerBlock)
		}
	}
	return nil
}

func computeTransactionsRoot(_ []*types.Receipt, block *types.Block) common.Hash {
	if block == nil {
		return types.DeriveSha(types.Transactions{}, trie.NewStackTrie(nil))
	}
	return types.DeriveSha(block.Transactions(), trie.NewStackTrie(nil))
}

// compareHeaders performs the header equality check of spec §4.4 step 10 by
// comparing header hashes only; it computes no per-field diff, and nothing
// is logged about which fields differ.
func compareHeaders(got, reference *types.Header) error {
	if got.Hash() != reference.Hash() {
		return fmt.Errorf("builder: reconstructed header hash %s does not match reference %s", got.Hash(), reference.Hash())
	}
	return nil
}

// computeInstanceHash implements spec §4.4 step 11: H(protocol_instance,
// new_sgx_instance_address?). Build computes one domain-neutral
// protocol-instance hash for every proof type; no producer (C5) folds in a
// per-type domain separator such as the SGX instance address — TEE
// producers sign this hash as-is and zk producers use it as the journal.
func computeInstanceHash(input *witness.GuestInput, header *types.Header) common.Hash {
	buf := new(bytes.Buffer)
	buf.Write(header.Hash().Bytes())
	buf.Write(input.L1StateRoot.Bytes())
	var blockID [8]byte
	big.NewInt(0).SetUint64(input.L1BlockID).FillBytes(blockID[:])
	buf.Write(blockID[:])
	return crypto.Keccak256Hash(buf.Bytes())
}
