package builder

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/taikoxyz/raiko-sub001/statedb"
)

type testKey struct {
	priv *ecdsa.PrivateKey
	addr common.Address
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testKey{priv: priv, addr: crypto.PubkeyToAddress(priv.PublicKey)}
}

// fakeProvider is a minimal statedb.BlockDataProvider backing the eager-mode
// reads ValueTransferExecutor triggers through ProviderDB.Basic.
type fakeProvider struct {
	accounts map[common.Address]statedb.AccountInfo
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{accounts: make(map[common.Address]statedb.AccountInfo)}
}

func (f *fakeProvider) GetAccounts(ctx context.Context, addrs []common.Address) ([]statedb.AccountInfo, error) {
	infos := make([]statedb.AccountInfo, len(addrs))
	for i, a := range addrs {
		info := f.accounts[a]
		if info.Balance == nil {
			info.Balance = new(big.Int)
		}
		infos[i] = info
	}
	return infos, nil
}

func (f *fakeProvider) GetStorageValues(ctx context.Context, keys []statedb.StorageKey) ([]common.Hash, error) {
	return make([]common.Hash, len(keys)), nil
}

func (f *fakeProvider) GetBlockHashes(ctx context.Context, numbers []uint64) ([]common.Hash, error) {
	return make([]common.Hash, len(numbers)), nil
}

func (f *fakeProvider) GetMerkleProofs(ctx context.Context, blockNumber uint64, slots map[common.Address][]common.Hash, offset, totalExpected int) (map[common.Address]statedb.AccountProof, error) {
	return map[common.Address]statedb.AccountProof{}, nil
}

func signedLegacyTx(t *testing.T, key testKey, chainID *big.Int, to common.Address, value int64, nonce uint64, data []byte) *types.Transaction {
	t.Helper()

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(value),
		Gas:      21000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key.priv)
	require.NoError(t, err)
	return signed
}

func TestValueTransferExecutorAppliesBalanceChange(t *testing.T) {
	chainID := big.NewInt(1)
	sender := newTestKey(t)
	recipient := common.HexToAddress("0xCAFE")

	provider := newFakeProvider()
	provider.accounts[sender.addr] = statedb.AccountInfo{Balance: big.NewInt(1_000_000), Nonce: 0}
	provider.accounts[recipient] = statedb.AccountInfo{Balance: big.NewInt(0)}

	db := statedb.NewProviderDB(provider, 0, false)
	execCtx := &ExecContext{Ctx: context.Background(), DB: db}

	tx := signedLegacyTx(t, sender, chainID, recipient, 100, 0, nil)

	exec := NewValueTransferExecutor(chainID)
	receipt, skipped, err := exec.ExecuteTransaction(execCtx, tx)
	require.NoError(t, err)
	require.False(t, skipped)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	senderAfter, err := db.Basic(context.Background(), sender.addr)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000-100-21000), senderAfter.Balance.Int64())
	require.Equal(t, uint64(1), senderAfter.Nonce)

	recvAfter, err := db.Basic(context.Background(), recipient)
	require.NoError(t, err)
	require.Equal(t, int64(100), recvAfter.Balance.Int64())
}

func TestValueTransferExecutorSkipsContractCalls(t *testing.T) {
	chainID := big.NewInt(1)
	sender := newTestKey(t)
	to := common.HexToAddress("0xCAFE")

	provider := newFakeProvider()
	provider.accounts[sender.addr] = statedb.AccountInfo{Balance: big.NewInt(1_000_000)}

	db := statedb.NewProviderDB(provider, 0, false)
	execCtx := &ExecContext{Ctx: context.Background(), DB: db}

	tx := signedLegacyTx(t, sender, chainID, to, 0, 0, []byte{0x01})

	exec := NewValueTransferExecutor(chainID)
	_, skipped, err := exec.ExecuteTransaction(execCtx, tx)
	require.NoError(t, err)
	require.True(t, skipped)
}

func TestValueTransferExecutorRejectsInsufficientBalance(t *testing.T) {
	chainID := big.NewInt(1)
	sender := newTestKey(t)
	to := common.HexToAddress("0xCAFE")

	provider := newFakeProvider()
	provider.accounts[sender.addr] = statedb.AccountInfo{Balance: big.NewInt(10)}

	db := statedb.NewProviderDB(provider, 0, false)
	execCtx := &ExecContext{Ctx: context.Background(), DB: db}

	tx := signedLegacyTx(t, sender, chainID, to, 1_000_000, 0, nil)

	exec := NewValueTransferExecutor(chainID)
	_, _, err := exec.ExecuteTransaction(execCtx, tx)
	require.Error(t, err)
}

func TestValueTransferExecutorAnchorDebitsFeeOnly(t *testing.T) {
	chainID := big.NewInt(1)
	sender := newTestKey(t)
	to := common.HexToAddress("0xCAFE")

	provider := newFakeProvider()
	provider.accounts[sender.addr] = statedb.AccountInfo{Balance: big.NewInt(1_000_000)}

	db := statedb.NewProviderDB(provider, 0, false)
	execCtx := &ExecContext{Ctx: context.Background(), DB: db}

	tx := signedLegacyTx(t, sender, chainID, to, 0, 0, nil)

	exec := NewValueTransferExecutor(chainID)
	receipt, err := exec.ExecuteAnchor(execCtx, tx)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	senderAfter, err := db.Basic(context.Background(), sender.addr)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000-21000), senderAfter.Balance.Int64())
}
