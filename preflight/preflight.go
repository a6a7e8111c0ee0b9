// Package preflight implements the preflight engine (C2): turning a
// (block_number, chain_spec, prover data) triple into a complete
// witness.GuestInput, grounded on the original raiko host's
// generate_input/Raiko::generate_input orchestration
// (original_source/host/src/raiko.rs) and the optimistic-refinement loop of
// original_source/core/src/provider/db.rs.
package preflight

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/taikoxyz/raiko-sub001/builder"
	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
	"github.com/taikoxyz/raiko-sub001/statedb"
)

// maxOptimisticIterations bounds the speculative-execution refinement loop
// of spec §4.2 step 6 / property P5.
const maxOptimisticIterations = 100

// BlockClient fetches L2 blocks/headers for preflight's step 1.
type BlockClient interface {
	BlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error)
}

// AnchorDecoder decodes the anchor transaction that must be the first
// transaction of every Taiko block, per spec §4.2 step 3.
type AnchorDecoder interface {
	Decode(tx *types.Transaction) (l1BlockID uint64, l1StateRoot common.Hash, err error)
}

// L1Resolver fetches the L1 inclusion/state headers and the matching
// BlockProposed(V2) event, per spec §4.2 step 4.
type L1Resolver interface {
	HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error)
	FindBlockProposed(ctx context.Context, l1InclusionBlockHash common.Hash, l2BlockID uint64) (l1InclusionBlockHash2 common.Hash, err error)
}

// TxListResolver resolves the calldata-or-blob path for the proposed
// block's transaction list, per spec §4.2 step 5.
type TxListResolver interface {
	Resolve(ctx context.Context, l1InclusionBlockHash common.Hash, l2BlockID uint64) (TxListData, error)
}

// TxListData is what TxListResolver produces: either the raw tx-list bytes
// (calldata path) or a blob plus its KZG commitment (blob path), along with
// which blob-proof scheme was requested.
type TxListData struct {
	TxListBytes       []byte
	Blob              []byte
	BlobKZGCommitment []byte
	BlobProofType     proofrequest.BlobProofType
}

// Request is the preflight engine's input, a narrowed view of
// proofrequest.ProofRequest plus the chain spec it runs under.
type Request struct {
	BlockNumber            uint64
	L1InclusionBlockNumber uint64
	ChainSpec              witness.ChainSpec
	Graffiti               common.Hash
	ProverAddress          common.Address
}

// Preflighter runs the seven-step algorithm of spec §4.2.
type Preflighter struct {
	blocks  BlockClient
	anchor  AnchorDecoder
	l1      L1Resolver
	txlist  TxListResolver
	provider statedb.BlockDataProvider
	builder *builder.Builder
}

// New constructs a Preflighter from its collaborators.
func New(
	blocks BlockClient,
	anchor AnchorDecoder,
	l1 L1Resolver,
	txlist TxListResolver,
	provider statedb.BlockDataProvider,
	b *builder.Builder,
) *Preflighter {
	return &Preflighter{blocks: blocks, anchor: anchor, l1: l1, txlist: txlist, provider: provider, builder: b}
}

// Run executes the full preflight algorithm and returns the assembled
// GuestInput together with the GuestOutput the block builder reproduced
// (the latter is what drivers sign/prove over).
func (p *Preflighter) Run(ctx context.Context, req *Request) (*witness.GuestInput, *witness.GuestOutput, error) {
	// Step 1: fetch target (full) and parent (header only).
	target, err := p.blocks.BlockByNumber(ctx, req.BlockNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("preflight: fetch target block: %w", err)
	}
	parent, err := p.blocks.HeaderByNumber(ctx, req.BlockNumber-1)
	if err != nil {
		return nil, nil, fmt.Errorf("preflight: fetch parent header: %w", err)
	}

	// Step 2: layered state DB pinned at the parent, optimistic mode.
	db := statedb.NewProviderDB(p.provider, parent.Number.Uint64(), true)
	if req.ChainSpec.IsTaiko {
		if err := db.SeedAncestorHashes(ctx); err != nil {
			return nil, nil, fmt.Errorf("preflight: seed ancestor hashes: %w", err)
		}
	}

	input := &witness.GuestInput{
		Block:        target,
		ParentHeader: parent,
		ChainSpec:    req.ChainSpec,
	}

	// Step 3: decode the anchor transaction.
	if req.ChainSpec.IsTaiko {
		txs := target.Transactions()
		if len(txs) == 0 {
			return nil, nil, fmt.Errorf("preflight: taiko block has no anchor transaction")
		}
		anchorTx := txs[0]
		l1BlockID, l1StateRoot, err := p.anchor.Decode(anchorTx)
		if err != nil {
			return nil, nil, fmt.Errorf("preflight: decode anchor transaction: %w", err)
		}
		input.AnchorTx = anchorTx
		input.L1BlockID = l1BlockID
		input.L1StateRoot = l1StateRoot
	}

	// Step 4: L1 headers + BlockProposed(V2) event.
	if req.ChainSpec.IsTaiko {
		l1InclusionHeader, err := p.l1.HeaderByNumber(ctx, req.L1InclusionBlockNumber)
		if err != nil {
			return nil, nil, fmt.Errorf("preflight: fetch l1 inclusion header: %w", err)
		}
		l1InclusionHash, err := p.l1.FindBlockProposed(ctx, l1InclusionHeader.Hash(), req.BlockNumber)
		if err != nil {
			return nil, nil, fmt.Errorf("preflight: find BlockProposed event: %w", err)
		}
		input.L1InclusionBlockHash = l1InclusionHash
	}

	// Step 5: resolve calldata or blob tx-list path.
	if req.ChainSpec.IsTaiko {
		data, err := p.txlist.Resolve(ctx, input.L1InclusionBlockHash, req.BlockNumber)
		if err != nil {
			return nil, nil, fmt.Errorf("preflight: resolve tx-list: %w", err)
		}
		input.TxListBytes = data.TxListBytes
		input.Blob = data.Blob
		input.BlobKZGCommitment = data.BlobKZGCommitment
		input.BlobProofType = data.BlobProofType
	}

	// Step 6: speculative execution refinement loop.
	if err := p.refine(ctx, input, db, target.Header()); err != nil {
		return nil, nil, err
	}

	// Fill any gap left by the 256-block seed window or by a BLOCKHASH read
	// that reached further back, so the final witness's ancestor chain is
	// complete (spec §4.3's get_ancestor_headers).
	if req.ChainSpec.IsTaiko {
		if err := db.GetAncestorHeaders(ctx); err != nil {
			return nil, nil, fmt.Errorf("preflight: get ancestor headers: %w", err)
		}
	}

	// Final eager pass: seed a fresh, non-optimistic ProviderDB from the
	// converged witness (initial_db) so every remaining read blocks and is
	// committed directly, per spec §4.2's "final eager pass commits the
	// witness".
	eagerDB := statedb.NewProviderDB(p.provider, parent.Number.Uint64(), false)
	eagerDB.SetInitialDB(db.InitialTier())

	// Step 7: finalize via the block builder and compare hashes.
	output, err := p.builder.Build(ctx, input, eagerDB, target.Header())
	if err != nil {
		return nil, nil, fmt.Errorf("preflight: finalize: %w", err)
	}

	// spec §4.3's get_proofs: the merkle proof pair bracketing this block's
	// state transition, carried in the witness for drivers that verify
	// against proofs rather than the MemDB tiers directly.
	proofs, err := eagerDB.GetProofs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("preflight: get proofs: %w", err)
	}
	input.Proofs = &proofs

	return input, output, nil
}

// refine implements spec §4.2 step 6: up to maxOptimisticIterations rounds
// of speculative execution against db, batching whatever the round left
// pending through the provider and re-running. The shrinking-pending-set
// invariant (P5) is enforced here; a round that fails to shrink the pending
// count is a preflight failure.
func (p *Preflighter) refine(ctx context.Context, input *witness.GuestInput, db *statedb.ProviderDB, reference *types.Header) error {
	prevPending := -1

	for i := 0; i < maxOptimisticIterations; i++ {
		// A speculative Build run against the optimistic db: every error
		// here is ignored (placeholders make the execution semantically
		// wrong, but that is fine — this pass exists only to discover
		// which reads are needed); the final eager Build reports errors.
		_, _ = p.builder.Build(ctx, input, db, reference)

		pending := db.PendingCount()
		if pending == 0 {
			log.Debug("Preflight speculative execution converged", "iteration", i)
			return nil
		}
		if prevPending >= 0 && pending >= prevPending {
			return fmt.Errorf("preflight: pending read set did not shrink (iteration %d, pending %d)", i, pending)
		}
		prevPending = pending

		if _, err := db.FetchData(ctx); err != nil {
			return fmt.Errorf("preflight: fetch pending data: %w", err)
		}
	}

	return fmt.Errorf("preflight: optimistic execution did not converge within %d iterations", maxOptimisticIterations)
}
