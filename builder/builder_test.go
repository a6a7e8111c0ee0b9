package builder

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/require"

	"github.com/taikoxyz/raiko-sub001/pkg/witness"
	"github.com/taikoxyz/raiko-sub001/statedb"
)

func headerWithTime(ts uint64, gasLimit uint64) *types.Header {
	return &types.Header{Time: ts, GasLimit: gasLimit}
}

func TestFinalizeStateRootEmptyIsConsistent(t *testing.T) {
	root1, err := FinalizeStateRoot(statedb.NewMemDB(), statedb.NewMemDB())
	require.NoError(t, err)

	root2, err := FinalizeStateRoot(statedb.NewMemDB(), statedb.NewMemDB())
	require.NoError(t, err)

	require.Equal(t, root1, root2, "finalizing two empty tiers must be deterministic")
}

func TestFinalizeStateRootSkipsDeletedAccounts(t *testing.T) {
	initial := statedb.NewMemDB()
	addr := common.HexToAddress("0x1")
	require.NoError(t, initial.InsertAccountInfo(addr, statedb.AccountInfo{Nonce: 1, Balance: big.NewInt(10)}))

	withAccount, err := FinalizeStateRoot(initial, statedb.NewMemDB())
	require.NoError(t, err)

	// selfdestruct on an account unknown to current_db is a no-op, so seed
	// current_db with the account first via a Touched commit, then delete it.
	current2 := statedb.NewMemDB()
	current2.Commit(map[common.Address]statedb.AccountChange{
		addr: {Touched: true, Info: statedb.AccountInfo{Nonce: 1, Balance: big.NewInt(10)}},
	})
	current2.Commit(map[common.Address]statedb.AccountChange{
		addr: {SelfDestructed: true},
	})

	withoutAccount, err := FinalizeStateRoot(initial, current2)
	require.NoError(t, err)

	require.NotEqual(t, withAccount, withoutAccount, "deleting the account must change the state root")
}

func TestValidateShastaHeaderRejectsBaseFeeBelowMinimum(t *testing.T) {
	input := &witness.GuestInput{
		ChainSpec:    witness.ChainSpec{ShastaActive: true},
		ParentHeader: headerWithTime(1000, 30_000_000),
	}
	baseFee := new(big.Int).SetUint64(1_000_000) // 0.001 gwei -> below min, should fail
	err := ValidateShastaHeader(input, 1001, 1010, 30_000_000, baseFee)
	require.Error(t, err, "base fee below the shasta minimum must be rejected")
}

func TestValidateShastaHeaderSkippedWhenInactive(t *testing.T) {
	input := &witness.GuestInput{
		ChainSpec:    witness.ChainSpec{ShastaActive: false},
		ParentHeader: headerWithTime(1000, 30_000_000),
	}
	err := ValidateShastaHeader(input, 500, 1010, 1, big.NewInt(1))
	require.NoError(t, err)
}

// TestBuilderBuildReproducesReferenceHeaderForRealisticTaikoBlock covers P4
// ("for any block whose preflight succeeds, C4 MUST reproduce the reference
// header hash exactly") for the value-transfer subset ValueTransferExecutor
// supports: an anchor transaction followed by a plain transfer, within a
// single Taiko block. It is deliberately not a round-trip of Build's own
// output: the reference header's computed fields (GasUsed, ReceiptHash,
// TxHash, Root) are derived independently, by driving the same executor
// against a second, separately-seeded ProviderDB, so a regression in Build's
// sequencing (e.g. re-executing the anchor transaction as a regular one)
// would produce a mismatching hash rather than trivially passing.
func TestBuilderBuildReproducesReferenceHeaderForRealisticTaikoBlock(t *testing.T) {
	chainID := big.NewInt(167000)
	sender := newTestKey(t)
	recipient := common.HexToAddress("0xCAFE")

	provider := newFakeProvider()
	provider.accounts[sender.addr] = statedb.AccountInfo{Balance: big.NewInt(10_000_000), Nonce: 0}
	provider.accounts[recipient] = statedb.AccountInfo{Balance: big.NewInt(0)}

	anchorTx := signedLegacyTx(t, sender, chainID, recipient, 0, 0, nil)
	transferTx := signedLegacyTx(t, sender, chainID, recipient, 500, 1, nil)

	parent := &types.Header{
		Number:   big.NewInt(10),
		Time:     1000,
		GasLimit: 30_000_000,
	}

	header := &types.Header{
		ParentHash: parent.Hash(),
		Number:     new(big.Int).Add(parent.Number, common.Big1),
		Coinbase:   common.HexToAddress("0xC0FFEE"),
		GasLimit:   30_000_000,
		Time:       1001,
		Extra:      []byte("taiko"),
		BaseFee:    big.NewInt(1),
		Difficulty: common.Big0,
		UncleHash:  types.EmptyUncleHash,
	}

	body := &types.Body{Transactions: types.Transactions{anchorTx, transferTx}}
	target := types.NewBlock(header, body, nil, trie.NewStackTrie(nil))

	// Derive the reference header's computed fields independently.
	refDB := statedb.NewProviderDB(provider, parent.Number.Uint64(), false)
	refExecCtx := &ExecContext{Ctx: context.Background(), DB: refDB}
	refExec := NewValueTransferExecutor(chainID)

	anchorReceipt, err := refExec.ExecuteAnchor(refExecCtx, anchorTx)
	require.NoError(t, err)
	transferReceipt, skipped, err := refExec.ExecuteTransaction(refExecCtx, transferTx)
	require.NoError(t, err)
	require.False(t, skipped)
	transferReceipt.TransactionIndex = 1

	refRoot, err := FinalizeStateRoot(refDB.InitialTier(), refDB.CurrentTier())
	require.NoError(t, err)

	reference := types.CopyHeader(header)
	reference.GasUsed = anchorReceipt.GasUsed + transferReceipt.GasUsed
	reference.ReceiptHash = types.DeriveSha(types.Receipts{anchorReceipt, transferReceipt}, trie.NewStackTrie(nil))
	reference.TxHash = types.DeriveSha(target.Transactions(), trie.NewStackTrie(nil))
	reference.Root = refRoot

	// Run the builder end to end against a freshly-seeded db and confirm it
	// reproduces reference's hash exactly.
	db := statedb.NewProviderDB(provider, parent.Number.Uint64(), false)
	b := New(NewValueTransferExecutor(chainID))

	input := &witness.GuestInput{
		Block:        target,
		ParentHeader: parent,
		ChainSpec:    witness.ChainSpec{IsTaiko: true, ChainID: chainID.Uint64(), MinFork: "Shanghai"},
		AnchorTx:     anchorTx,
	}

	output, err := b.Build(context.Background(), input, db, reference)
	require.NoError(t, err)
	require.Equal(t, reference.Hash(), output.Header.Hash())
}
